package generator

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/vitebski/purview-catalog-tools/internal/tabular"
)

// wordSeparator allows a single non-alphanumeric character between words
const wordSeparator = "[^A-Za-z0-9]?"

// RegexRule is the generated column-name pattern of a classification
type RegexRule struct {
	ClassificationName string
	Description        string
	GlossaryTerm       string
	Keywords           []string
	Regex              string
}

// Compile returns the case-insensitive whole-name matcher of the rule
func (r RegexRule) Compile() (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)^(?:" + r.Regex + ")$")
	if err != nil {
		return nil, errors.Wrapf(err, "classification %s", r.ClassificationName)
	}
	return re, nil
}

func wordPattern(word string, mappings map[string][]string) string {
	if abbrs, ok := mappings[word]; ok {
		return "(" + strings.Join(append([]string{word}, abbrs...), "|") + ")"
	}
	return "(" + word + ")"
}

// BuildRegex joins the words of each keyword with an optional separator and
// alternates the keywords, each allowed anywhere in the name
func BuildRegex(keywords []string, mappings map[string][]string) string {
	parts := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		words := strings.Fields(kw)
		comps := make([]string, 0, len(words))
		for _, w := range words {
			comps = append(comps, wordPattern(w, mappings))
		}
		parts = append(parts, strings.Join(comps, wordSeparator)+".*")
	}
	return ".*" + strings.Join(parts, "|.*")
}

func mappingIndex(mappings []Mapping) map[string][]string {
	m := make(map[string][]string, len(mappings))
	for _, mp := range mappings {
		m[mp.Word] = mp.Abbreviations
	}
	return m
}

// Rules generates a regex rule per classification
func (g *Generator) Rules(classifications []Classification) []RegexRule {
	index := mappingIndex(g.Mappings)
	rules := make([]RegexRule, 0, len(classifications))
	for _, c := range classifications {
		rule := RegexRule{
			ClassificationName: c.Name,
			Description:        c.GlossaryTerm,
			GlossaryTerm:       c.GlossaryTerm,
			Keywords:           c.Keywords,
			Regex:              BuildRegex(c.Keywords, index),
		}
		if _, err := rule.Compile(); err != nil {
			g.Logger.Warnf("Generated regex for %s does not compile: %v", c.Name, err)
		}
		rules = append(rules, rule)
	}
	return rules
}

// WriteRules writes the rules as CSV, or as a workbook for .xlsx paths
func WriteRules(path string, rules []RegexRule) error {
	header := []string{"Classification_Name", "Classification_Description", "Glossary_Term", "Keywords", "REGEX"}
	records := make([][]string, 0, len(rules))
	for _, r := range rules {
		records = append(records, []string{
			r.ClassificationName,
			r.Description,
			r.GlossaryTerm,
			strings.Join(r.Keywords, ", "),
			r.Regex,
		})
	}
	return tabular.Write(path, header, records)
}
