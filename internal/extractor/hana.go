package extractor

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"github.com/vitebski/purview-catalog-tools/pkg/models"
)

// HANA object kinds
const (
	HanaTable = "tables"
	HanaView  = "views"
)

var (
	hanaTablePrefixes = []string{"ZV_", "ZC_", "TA_"}
	hanaViewPrefixes  = []string{"HL_", "RL_", "IL_"}
)

// HanaColumn is one element of a DSP definition
type HanaColumn struct {
	Name  string
	Label string
}

// HanaObject is a table or view of a DSP export
type HanaObject struct {
	Schema  string
	Name    string
	Kind    string
	Columns []HanaColumn
}

// QualifiedName renders the object's name under a host header such as
// "sap_hana://<host>/databases/H00/schemas/"
func (o HanaObject) QualifiedName(header string) string {
	return header + o.Schema + "/" + o.Kind + "/" + o.Name
}

// Entities returns the object entity followed by its column entities
func (o HanaObject) Entities(header string) []models.CatalogEntity {
	qn := o.QualifiedName(header)
	typeName, columnType, rel := "sap_hana_table", "sap_hana_table_column", "table"
	if o.Kind == HanaView {
		typeName, columnType, rel = "sap_hana_view", "sap_hana_view_column", "view"
	}

	parent := models.CatalogEntity{TypeName: typeName, QualifiedName: qn, Name: o.Name}
	out := []models.CatalogEntity{parent}
	for _, c := range o.Columns {
		out = append(out, models.CatalogEntity{
			TypeName:      columnType,
			QualifiedName: qn + "#" + c.Name,
			Name:          c.Name,
			Attributes:    map[string]interface{}{"type": "str", "userDescription": c.Label},
			RelationshipAttributes: map[string]interface{}{
				rel: map[string]interface{}{
					"typeName":         typeName,
					"uniqueAttributes": map[string]interface{}{"qualifiedName": qn},
				},
			},
		})
	}
	return out
}

// HanaDefinition is a parsed DSP view export: the first definition is the
// target, the rest are its sources
type HanaDefinition struct {
	Target  HanaObject
	Sources []HanaObject
	// Skipped lists definitions whose kind could not be told from the name
	Skipped []string
}

func hanaKind(name string) string {
	for _, p := range hanaTablePrefixes {
		if strings.HasPrefix(name, p) {
			return HanaTable
		}
	}
	for _, p := range hanaViewPrefixes {
		if strings.HasPrefix(name, p) {
			return HanaView
		}
	}
	return ""
}

// ParseHanaDefinition reads the definitions of a DSP JSON export in file
// order. Names of the form "SCHEMA.NAME" belong to another schema.
func ParseHanaDefinition(data []byte, schema string) (*HanaDefinition, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("invalid DSP JSON")
	}

	def := &HanaDefinition{}
	first := true
	gjson.GetBytes(data, "definitions").ForEach(func(key, value gjson.Result) bool {
		if !value.Get("elements").Exists() {
			return true
		}
		obj := HanaObject{Schema: schema, Name: key.String()}
		if i := strings.Index(obj.Name, "."); i >= 0 {
			obj.Schema, obj.Name = obj.Name[:i], obj.Name[i+1:]
		}
		obj.Kind = hanaKind(obj.Name)
		value.Get("elements").ForEach(func(col, el gjson.Result) bool {
			obj.Columns = append(obj.Columns, HanaColumn{
				Name:  col.String(),
				Label: childString(el, "@EndUserText.label"),
			})
			return true
		})

		isTarget := first
		first = false
		if obj.Kind == "" {
			def.Skipped = append(def.Skipped, obj.Name)
			return true
		}
		if isTarget {
			def.Target = obj
		} else {
			def.Sources = append(def.Sources, obj)
		}
		return true
	})

	if def.Target.Name == "" {
		return def, errors.New("DSP export has no recognizable target definition")
	}
	return def, nil
}

// childString reads a direct child whose key gjson would parse as a path
// (leading "@", embedded dots)
func childString(r gjson.Result, key string) string {
	out := ""
	r.ForEach(func(k, v gjson.Result) bool {
		if k.String() == key {
			out = v.String()
			return false
		}
		return true
	})
	return out
}
