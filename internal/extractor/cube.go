package extractor

import (
	"encoding/xml"
	"io"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/vitebski/purview-catalog-tools/pkg/models"
)

// CubeHost prefixes the qualified names of Analysis Services cubes
const CubeHost = "wsbissasqryp2v.res.hbi.net://"

type xmlNode struct {
	XMLName  xml.Name
	Text     string    `xml:",chardata"`
	Children []xmlNode `xml:",any"`
}

func (n xmlNode) child(names ...string) *xmlNode {
	for _, name := range names {
		for i := range n.Children {
			if n.Children[i].XMLName.Local == name {
				return &n.Children[i]
			}
		}
	}
	return nil
}

func (n xmlNode) walk(local string, fn func(xmlNode)) {
	for _, c := range n.Children {
		if c.XMLName.Local == local {
			fn(c)
		}
		c.walk(local, fn)
	}
}

// CubeDimension is a cube dimension and its attribute IDs
type CubeDimension struct {
	ID         string
	Attributes []string
}

// ParseCubeXMLA collects every Dimension (by ID or DimensionID) with the
// de-duplicated IDs of its attributes. Dimensions are sorted by ID.
func ParseCubeXMLA(r io.Reader) ([]CubeDimension, error) {
	var root xmlNode
	if err := xml.NewDecoder(r).Decode(&root); err != nil {
		return nil, errors.Wrap(err, "decoding XMLA")
	}

	attrs := map[string]map[string]bool{}
	visit := func(dim xmlNode) {
		idNode := dim.child("ID", "DimensionID")
		if idNode == nil {
			return
		}
		id := strings.TrimSpace(idNode.Text)
		if attrs[id] == nil {
			attrs[id] = map[string]bool{}
		}
		dim.walk("Attribute", func(a xmlNode) {
			if n := a.child("ID", "AttributeID"); n != nil {
				attrs[id][strings.TrimSpace(n.Text)] = true
			}
		})
	}
	if root.XMLName.Local == "Dimension" {
		visit(root)
	}
	root.walk("Dimension", visit)

	out := make([]CubeDimension, 0, len(attrs))
	for id, set := range attrs {
		d := CubeDimension{ID: id}
		for a := range set {
			d.Attributes = append(d.Attributes, a)
		}
		sort.Strings(d.Attributes)
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CubeQualifiedName returns the qualified name of a cube
func CubeQualifiedName(cube string) string {
	return CubeHost + cube
}

// CubeEntities builds the cube DataSet, its tabular schema, and a column
// entity per dimension and per dimension attribute
func CubeEntities(cube string, dims []CubeDimension) (models.CatalogEntity, models.CatalogEntity, []models.CatalogEntity) {
	qn := CubeQualifiedName(cube)
	dataset := models.CatalogEntity{TypeName: "DataSet", QualifiedName: qn, Name: cube}
	schema := models.CatalogEntity{TypeName: "tabular_schema", QualifiedName: qn + "/tabular_schema", Name: cube + " Tabular Schema"}

	var columns []models.CatalogEntity
	for _, d := range dims {
		dimQN := qn + "/dimension/" + d.ID
		columns = append(columns, models.CatalogEntity{
			TypeName:      "column",
			QualifiedName: dimQN,
			Name:          d.ID,
			Attributes:    map[string]interface{}{"type": "Dimension"},
		})
		for _, a := range d.Attributes {
			columns = append(columns, models.CatalogEntity{
				TypeName:      "column",
				QualifiedName: dimQN + "/attribute/" + a,
				Name:          a,
				Attributes:    map[string]interface{}{"type": "Attribute"},
			})
		}
	}
	return dataset, schema, columns
}
