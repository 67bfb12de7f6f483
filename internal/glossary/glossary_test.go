package glossary

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitebski/purview-catalog-tools/internal/catalog"
	"github.com/vitebski/purview-catalog-tools/internal/report"
	"github.com/vitebski/purview-catalog-tools/internal/snapshot"
	"github.com/vitebski/purview-catalog-tools/internal/tabular"
)

type fakeCatalog struct {
	terms     map[string]string
	assigned  map[string][]string
	assignErr error
	hits      []catalog.SearchHit
	search    catalog.SearchRequest
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		terms:    map[string]string{"Material Number": "term-1", "Created On": "term-2", "Customer": "term-3"},
		assigned: map[string][]string{},
	}
}

func (f *fakeCatalog) FindTerm(_ context.Context, _ string, name string) (catalog.GlossaryTermRef, error) {
	guid, ok := f.terms[name]
	if !ok {
		return catalog.GlossaryTermRef{}, errors.Wrapf(catalog.ErrNotFound, "glossary term %q", name)
	}
	return catalog.GlossaryTermRef{GUID: guid, Name: name}, nil
}

func (f *fakeCatalog) AssignTerm(_ context.Context, termGUID string, guids []string) error {
	if f.assignErr != nil {
		return f.assignErr
	}
	f.assigned[termGUID] = append(f.assigned[termGUID], guids...)
	return nil
}

func (f *fakeCatalog) SearchAll(_ context.Context, req catalog.SearchRequest) ([]catalog.SearchHit, error) {
	f.search = req
	return f.hits, nil
}

func (f *fakeCatalog) ListGlossaries(context.Context) ([]catalog.Glossary, error) {
	return []catalog.Glossary{
		{Name: "Glossary", Terms: []catalog.GlossaryTermRef{{GUID: "term-1", Name: "Material Number"}}},
		{Name: "Other", Terms: []catalog.GlossaryTermRef{{GUID: "term-9", Name: "Ignored"}}},
	}, nil
}

func (f *fakeCatalog) GetTerm(_ context.Context, guid string) (*catalog.GlossaryTerm, error) {
	return &catalog.GlossaryTerm{
		GUID:            guid,
		Name:            "Material Number",
		LongDescription: "Identifies a material",
		Status:          "Approved",
		Experts:         []string{"a@example.com"},
		Attributes: map[string]map[string]string{
			BusinessGlossaryGroup: {"Domain": "Supply", "System-Table-Field": "MDG-MARA-MATNR"},
		},
	}, nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func writeSheet(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "glossary.csv")
	require.NoError(t, os.WriteFile(path, []byte("Nick Name,[Attribute][Business Glossary]System-Table-Field\n"+
		"Material Number,\"MDG-MARA-MATNR, MDG-MARC-MATNR\"\n"+
		"No Keys,\n"+
		"Created On,MDG-MARA-ERSDA\n"+
		"Customer,MDG-KNA1-KUNNR\n"+
		"Material Number,MDG-MVKE-MATNR\n"), 0o644))
	return path
}

var pulled = []snapshot.Entity{
	{GUID: "mara", Name: " MARA ", Columns: []snapshot.Column{
		{GUID: "mara-matnr", Name: "MATNR"},
		{GUID: "mara-ersda", Name: "ERSDA"},
		{GUID: "mara-other", Name: "MTART"},
	}},
	{GUID: "marc", Name: "MARC", Columns: []snapshot.Column{{GUID: "marc-matnr", Name: "MATNR"}}},
}

func TestReadTerms(t *testing.T) {
	terms, err := ReadTerms(writeSheet(t), "")
	require.NoError(t, err)
	require.Len(t, terms, 3)
	assert.Equal(t, Term{Number: 1, Name: "Material Number", Keys: []string{"MDG-MARA-MATNR", "MDG-MARC-MATNR", "MDG-MVKE-MATNR"}}, terms[0])
	assert.Equal(t, 2, terms[1].Number)
	assert.Equal(t, "Customer", terms[2].Name)
}

func TestReadTermsMissingColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("Nick Name,Field\nA,B\n"), 0o644))
	_, err := ReadTerms(path, "")
	var missing *tabular.MissingColumnError
	assert.ErrorAs(t, err, &missing)
}

func TestMatchColumns(t *testing.T) {
	terms, err := ReadTerms(writeSheet(t), "")
	require.NoError(t, err)

	matches := MatchColumns(terms, pulled)
	require.Len(t, matches, 3)
	assert.Equal(t, []string{"mara-matnr", "mara", "marc-matnr", "marc"}, matches[0].GUIDs)
	assert.Equal(t, []string{"MATNR"}, matches[0].Columns)
	assert.Equal(t, []string{"mara-ersda", "mara"}, matches[1].GUIDs)
	assert.Empty(t, matches[2].GUIDs)
}

func TestPropagateWindow(t *testing.T) {
	terms, err := ReadTerms(writeSheet(t), "")
	require.NoError(t, err)
	client := newFakeCatalog()
	rec := report.NewRecorder("glossary", testLogger())
	p := NewPropagator(client, "Glossary", 2, 3, rec, testLogger())

	var out bytes.Buffer
	now := time.Date(2024, 1, 2, 9, 5, 0, 0, time.UTC)
	require.NoError(t, p.Propagate(context.Background(), MatchColumns(terms, pulled), now, &out))

	assert.NotContains(t, client.assigned, "term-1")
	assert.Equal(t, []string{"mara-ersda", "mara"}, client.assigned["term-2"])
	assert.Equal(t, 1, rec.Count(CounterTermsAssigned))
	assert.Equal(t, 1, rec.Count(CounterTermsUnmatched))

	log := out.String()
	assert.Contains(t, log, "Last propagated on: 01/02/2024 09:05\n")
	assert.Contains(t, log, "Ran for Glossary Terms 2 to 3\n")
	assert.Contains(t, log, "Assigned glossary term, Created On, to 2 entities\n")
	assert.Contains(t, log, "   ERSDA\n")
	assert.Contains(t, log, "No matches for glossary term, Customer\n")
	assert.NotContains(t, log, "Glossary Term Number: 1\n")
}

func TestPropagateRecordsFailures(t *testing.T) {
	terms, err := ReadTerms(writeSheet(t), "")
	require.NoError(t, err)
	client := newFakeCatalog()
	client.assignErr = &catalog.APIError{StatusCode: 400, ErrorCode: "ATLAS-400-00-001"}
	rec := report.NewRecorder("glossary", testLogger())
	p := NewPropagator(client, "Glossary", 1, 250, rec, testLogger())

	var out bytes.Buffer
	require.NoError(t, p.Propagate(context.Background(), MatchColumns(terms, pulled), time.Now(), &out))
	require.Len(t, rec.Errors(), 2)
	assert.Equal(t, StagePropagate, rec.Errors()[0].Stage)
	assert.Equal(t, "Material Number", rec.Errors()[0].ItemKey)
	assert.Zero(t, rec.Count(CounterTermsAssigned))
}

func TestPropagateAlreadyAssigned(t *testing.T) {
	client := newFakeCatalog()
	client.assignErr = &catalog.APIError{StatusCode: 409, ErrorCode: "ATLAS-409-00-001"}
	rec := report.NewRecorder("glossary", testLogger())
	p := NewPropagator(client, "Glossary", 1, 1, rec, testLogger())

	matches := []Match{{Term: Term{Number: 1, Name: "Customer"}, GUIDs: []string{"g"}}}
	require.NoError(t, p.Propagate(context.Background(), matches, time.Now(), &bytes.Buffer{}))
	assert.Empty(t, rec.Errors())
	assert.Equal(t, 1, rec.Count(CounterTermsAssigned))
}

func TestExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.csv")
	n, err := Export(context.Background(), newFakeCatalog(), "glossary", path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	tbl, err := tabular.Read(path, tabular.Options{})
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, "Material Number", tbl.Rows[0].Get("Name"))
	assert.Equal(t, "Supply", tbl.Rows[0].Get("[Attribute][Business Glossary]Domain"))
	assert.Equal(t, "MDG-MARA-MATNR", tbl.Rows[0].Get(ColumnKeys))
	assert.Equal(t, "a@example.com", tbl.Rows[0].Get("Experts"))
}

func TestClassifierAssociate(t *testing.T) {
	client := newFakeCatalog()
	client.hits = []catalog.SearchHit{{ID: "e1"}, {ID: "e2"}}
	rec := report.NewRecorder("classify", testLogger())
	c := NewClassifier(client, "Glossary", rec, testLogger())

	n, err := c.Associate(context.Background(), "HBI Customer Number", "Customer")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"e1", "e2"}, client.assigned["term-3"])
	assert.Equal(t, "HBI Customer Number", client.search.Filter["classification"])

	total := c.AssociateAll(context.Background(), []Pair{
		{Classification: "HBI Customer Number", Term: "Unknown Term"},
		{Classification: "HBI Customer Number", Term: "Customer"},
	})
	assert.Equal(t, 2, total)
	assert.Len(t, rec.Errors(), 1)
}

func TestClassifierNoInstances(t *testing.T) {
	client := newFakeCatalog()
	c := NewClassifier(client, "Glossary", report.NewRecorder("classify", testLogger()), testLogger())
	n, err := c.Associate(context.Background(), "Unused", "Customer")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, client.assigned)
}
