package generator

import (
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jaswdr/faker"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

var testMappings = []Mapping{
	{Word: "Customer", Abbreviations: []string{"Cust", "Cst"}},
	{Word: "Number", Abbreviations: []string{"Nbr", "Num"}},
}

var customerNumber = Classification{
	Name:         "Customer Number",
	GlossaryTerm: "Customer Number",
	Keywords:     []string{"Customer Number", "Kunnr"},
}

func newTestGenerator() *Generator {
	g := NewGenerator(testMappings, testLogger())
	g.Faker = faker.NewWithSeed(rand.NewSource(42))
	return g
}

func TestBuildRegex(t *testing.T) {
	got := BuildRegex([]string{"Customer Number", "Kunnr"}, mappingIndex(testMappings))
	assert.Equal(t, ".*(Customer|Cust|Cst)[^A-Za-z0-9]?(Number|Nbr|Num).*|.*(Kunnr).*", got)
}

func TestRules(t *testing.T) {
	rules := newTestGenerator().Rules([]Classification{customerNumber})
	require.Len(t, rules, 1)
	re, err := rules[0].Compile()
	require.NoError(t, err)

	assert.True(t, re.MatchString("SHIP_TO_CUST_NBR"))
	assert.True(t, re.MatchString("kunnr"))
	assert.True(t, re.MatchString("customer-number"))
	assert.False(t, re.MatchString("customer__number"))
	assert.False(t, re.MatchString("order_number"))
}

func TestVariations(t *testing.T) {
	got := newTestGenerator().Variations([]string{"Customer Number"})
	assert.Len(t, got, 9)
	assert.Contains(t, got, "Cst Num")
	assert.Contains(t, got, "Customer Number")
}

func TestPassAndFailNames(t *testing.T) {
	g := newTestGenerator()
	re, err := g.Rules([]Classification{customerNumber})[0].Compile()
	require.NoError(t, err)

	pass := g.PassNames(customerNumber)
	require.NotEmpty(t, pass)
	for _, name := range pass {
		assert.Truef(t, re.MatchString(name), "expected %q to match", name)
	}

	fail := g.FailNames(customerNumber)
	require.NotEmpty(t, fail)
	for _, name := range fail {
		assert.Falsef(t, re.MatchString(name), "expected %q not to match", name)
	}
	assert.Contains(t, fail, "Cust")
	assert.NotContains(t, fail, "Kunnr")
}

func TestSampleCap(t *testing.T) {
	g := newTestGenerator()
	g.MaxNames = 10
	assert.Len(t, g.PassNames(customerNumber), 10)
}

func TestWriteTestCases(t *testing.T) {
	dir := t.TempDir()
	pass, fail, err := newTestGenerator().WriteTestCases(dir, customerNumber)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "to_pass", "customer_number_to_pass_test_column_names.csv"), pass)
	assert.Equal(t, filepath.Join(dir, "to_fail", "customer_number_to_fail_test_column_names.csv"), fail)

	data, err := os.ReadFile(pass)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "0,0"))
}

func TestReadSheets(t *testing.T) {
	dir := t.TempDir()
	classPath := filepath.Join(dir, "classifications.csv")
	require.NoError(t, os.WriteFile(classPath, []byte(
		"Classification_Name,Associated_Glossary_Terms,Keywords\n"+
			"Customer Number,Customer Number,\"Customer Number, Kunnr\"\n"), 0o644))
	mapPath := filepath.Join(dir, "mappings.csv")
	require.NoError(t, os.WriteFile(mapPath, []byte("Word,Abbreviations\nCustomer,\"Cust, Cst\"\n"), 0o644))

	classes, err := ReadClassifications(classPath, "")
	require.NoError(t, err)
	require.Len(t, classes, 1)
	assert.Equal(t, []string{"Customer Number", "Kunnr"}, classes[0].Keywords)

	mappings, err := ReadMappings(mapPath, "")
	require.NoError(t, err)
	assert.Equal(t, []Mapping{{Word: "Customer", Abbreviations: []string{"Cust", "Cst"}}}, mappings)
}

func TestWriteRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regex.csv")
	rules := newTestGenerator().Rules([]Classification{customerNumber})
	require.NoError(t, WriteRules(path, rules))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Classification_Name,Classification_Description,Glossary_Term,Keywords,REGEX")
	assert.Contains(t, string(data), "\"Customer Number, Kunnr\"")
}
