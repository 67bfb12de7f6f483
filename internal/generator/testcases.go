package generator

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jaswdr/faker"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/purview-catalog-tools/internal/tabular"
	"github.com/vitebski/purview-catalog-tools/internal/utils"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// MaxColumnNames is the largest column count a classification test file
// may carry
const MaxColumnNames = 1000

var (
	separatorChars = []string{"!", "&", "*", "+", ".", "-", "/", ":", "_", "~", "|"}
	// '+' and '-' are left out of padding
	paddingChars = []string{"!", "&", "*", ".", "/", ":", "_", "~", "|"}
	letters      = strings.Split("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ", "")
)

// Generator produces regex rules and column-name test cases for
// classifications
type Generator struct {
	Faker    faker.Faker
	Mappings []Mapping
	MaxNames int
	Logger   *logrus.Logger
}

// NewGenerator creates a new generator
func NewGenerator(mappings []Mapping, logger *logrus.Logger) *Generator {
	return &Generator{
		Faker:    faker.New(),
		Mappings: mappings,
		MaxNames: MaxColumnNames,
		Logger:   logger,
	}
}

type stringSet map[string]bool

func (s stringSet) add(values ...string) {
	for _, v := range values {
		s[v] = true
	}
}

func (s stringSet) sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Variations expands keywords by substituting every mapped word with its
// abbreviations, repeatedly
func (g *Generator) Variations(keywords []string) []string {
	seen := stringSet{}
	queue := append([]string(nil), keywords...)
	for len(queue) > 0 {
		kw := strings.TrimSpace(queue[0])
		queue = queue[1:]
		if seen[kw] {
			continue
		}
		seen.add(kw)
		for _, m := range g.Mappings {
			if !strings.Contains(kw, m.Word) {
				continue
			}
			for _, abbr := range m.Abbreviations {
				queue = append(queue, strings.Replace(kw, m.Word, abbr, -1))
			}
		}
	}
	return seen.sorted()
}

func (g *Generator) mixedCase(s string) string {
	var b strings.Builder
	for _, r := range s {
		if g.Faker.Bool() {
			b.WriteString(strings.ToUpper(string(r)))
		} else {
			b.WriteString(strings.ToLower(string(r)))
		}
	}
	return b.String()
}

func titleCase(s string) string {
	return cases.Title(language.Und).String(s)
}

// PassNames returns column names a classification's regex should match:
// every variation in several letter cases, word spacings and paddings
func (g *Generator) PassNames(c Classification) []string {
	cased := stringSet{}
	for _, v := range g.Variations(c.Keywords) {
		cased.add(v, strings.ToUpper(v), strings.ToLower(v), g.mixedCase(v), titleCase(v))
	}

	spaced := stringSet{}
	for _, v := range cased.sorted() {
		spaced.add(
			v,
			strings.ReplaceAll(v, " ", ""),
			strings.ReplaceAll(v, " ", "_"),
			strings.ReplaceAll(v, " ", g.Faker.RandomStringElement(separatorChars)),
		)
	}

	padChars := append(append([]string(nil), letters...), paddingChars...)
	padded := stringSet{}
	for _, v := range spaced.sorted() {
		padded.add(
			v,
			" "+v+" ",
			"_"+v+"_",
			g.Faker.RandomStringElement(padChars)+v+g.Faker.RandomStringElement(padChars),
		)
	}
	return g.sample(padded.sorted())
}

// FailNames returns column names a classification's regex should reject:
// the words of multi-word keywords, and their abbreviations, on their own
func (g *Generator) FailNames(c Classification) []string {
	standalone := stringSet{}
	for _, kw := range c.Keywords {
		if words := strings.Fields(kw); len(words) == 1 {
			standalone.add(strings.ToLower(words[0]))
		}
	}

	base := stringSet{}
	for _, kw := range c.Keywords {
		for _, w := range strings.Fields(kw) {
			if !standalone[strings.ToLower(w)] {
				base.add(w)
			}
		}
	}
	for _, m := range g.Mappings {
		if base[m.Word] {
			base.add(m.Abbreviations...)
		}
	}

	names := stringSet{}
	for _, item := range base.sorted() {
		names.add(
			item,
			" "+item+" ",
			"_"+item+"_",
			g.Faker.RandomStringElement(paddingChars)+item+g.Faker.RandomStringElement(paddingChars),
			strings.ToUpper(item),
			strings.ToLower(item),
			g.mixedCase(item),
			titleCase(item),
			strings.ToLower(g.Faker.Lorem().Word())+"_"+item,
		)
	}
	return g.sample(names.sorted())
}

// sample keeps at most MaxNames entries, chosen at random
func (g *Generator) sample(names []string) []string {
	if g.MaxNames <= 0 || len(names) <= g.MaxNames {
		return names
	}
	for i := 0; i < g.MaxNames; i++ {
		j := g.Faker.IntBetween(i, len(names)-1)
		names[i], names[j] = names[j], names[i]
	}
	return names[:g.MaxNames]
}

// TestCaseFile returns the path of a classification's pass or fail file
func TestCaseFile(dir, classification, outcome string) string {
	name := utils.ToSnakeCase(classification) + "_" + outcome + "_test_column_names.csv"
	return filepath.Join(dir, outcome, name)
}

func writeTestCaseFile(path string, names []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", filepath.Dir(path))
	}
	zeros := make([]string, len(names))
	for i := range zeros {
		zeros[i] = "0"
	}
	return tabular.WriteCSV(path, names, [][]string{zeros})
}

// WriteTestCases writes the to_pass and to_fail files of a classification
// under dir and returns their paths
func (g *Generator) WriteTestCases(dir string, c Classification) (string, string, error) {
	pass := TestCaseFile(dir, c.Name, "to_pass")
	if err := writeTestCaseFile(pass, g.PassNames(c)); err != nil {
		return "", "", err
	}
	fail := TestCaseFile(dir, c.Name, "to_fail")
	if err := writeTestCaseFile(fail, g.FailNames(c)); err != nil {
		return "", "", err
	}
	g.Logger.Infof("Created test files %s and %s", pass, fail)
	return pass, fail, nil
}
