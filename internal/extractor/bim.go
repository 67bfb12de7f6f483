package extractor

import (
	"regexp"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

var (
	bimSchemaPattern = regexp.MustCompile(`Schema="([^"]+)"`)
	bimItemPattern   = regexp.MustCompile(`Item="([^"]+)"`)
)

// TabularModelHost prefixes the qualified names of Analysis Services models
const TabularModelHost = "asazure://aspaaseastus2.asazure.windows.net/hbipd01analyticsssas/"

// ModelTable is a tabular model table and the warehouse table feeding it
type ModelTable struct {
	Name   string
	Schema string
	Source string
}

// Path returns "schema/table" of the feeding warehouse table
func (t ModelTable) Path() string {
	return t.Schema + "/" + t.Source
}

// ParseBim reads the source schema and item of the first partition of every
// model table. Tables without both are left out.
func ParseBim(data []byte) ([]ModelTable, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("invalid .bim JSON")
	}

	var out []ModelTable
	gjson.GetBytes(data, "model.tables").ForEach(func(_, table gjson.Result) bool {
		expr := table.Get("partitions.0.source.expression")
		var lines []string
		if expr.IsArray() {
			for _, l := range expr.Array() {
				lines = append(lines, l.String())
			}
		} else if expr.Exists() {
			lines = append(lines, expr.String())
		}

		mt := ModelTable{Name: table.Get("name").String()}
		for _, l := range lines {
			if m := bimSchemaPattern.FindStringSubmatch(l); m != nil {
				mt.Schema = m[1]
			}
			if m := bimItemPattern.FindStringSubmatch(l); m != nil {
				mt.Source = m[1]
			}
		}
		if mt.Schema != "" && mt.Source != "" {
			out = append(out, mt)
		}
		return true
	})
	return out, nil
}
