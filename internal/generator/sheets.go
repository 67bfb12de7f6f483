// Package generator builds classification rules and the column-name test
// files used to check them.
package generator

import (
	"strings"

	"github.com/vitebski/purview-catalog-tools/internal/tabular"
)

// Sheet columns
const (
	ColumnClassification = "Classification_Name"
	ColumnGlossaryTerm   = "Associated_Glossary_Terms"
	ColumnKeywords       = "Keywords"
	ColumnWord           = "Word"
	ColumnAbbreviations  = "Abbreviations"
)

// Classification is one row of the classifications sheet
type Classification struct {
	Name         string
	GlossaryTerm string
	Keywords     []string
}

// Mapping lists the abbreviations accepted for a word
type Mapping struct {
	Word          string
	Abbreviations []string
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ReadClassifications loads the classifications sheet of a workbook or a
// CSV export of it
func ReadClassifications(path, sheet string) ([]Classification, error) {
	t, err := tabular.Read(path, tabular.Options{Sheet: sheet})
	if err != nil {
		return nil, err
	}
	if err := t.Require(ColumnClassification, ColumnGlossaryTerm, ColumnKeywords); err != nil {
		return nil, err
	}
	var out []Classification
	for _, r := range t.Rows {
		if r.Get(ColumnClassification) == "" {
			continue
		}
		out = append(out, Classification{
			Name:         r.Get(ColumnClassification),
			GlossaryTerm: r.Get(ColumnGlossaryTerm),
			Keywords:     splitList(r.Get(ColumnKeywords)),
		})
	}
	return out, nil
}

// ReadMappings loads the word to abbreviation sheet
func ReadMappings(path, sheet string) ([]Mapping, error) {
	t, err := tabular.Read(path, tabular.Options{Sheet: sheet})
	if err != nil {
		return nil, err
	}
	if err := t.Require(ColumnWord, ColumnAbbreviations); err != nil {
		return nil, err
	}
	var out []Mapping
	for _, r := range t.Rows {
		if r.Get(ColumnWord) == "" {
			continue
		}
		out = append(out, Mapping{Word: r.Get(ColumnWord), Abbreviations: splitList(r.Get(ColumnAbbreviations))})
	}
	return out, nil
}
