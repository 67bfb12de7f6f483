package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitebski/purview-catalog-tools/internal/catalog"
	"github.com/vitebski/purview-catalog-tools/internal/populator"
	"github.com/vitebski/purview-catalog-tools/internal/report"
	"github.com/vitebski/purview-catalog-tools/internal/tabular"
	"github.com/vitebski/purview-catalog-tools/pkg/models"
)

type fakeCatalog struct {
	typeDefErr error
	typeDefs   int
	uploads    [][]models.CatalogEntity
	failType   string
}

func (f *fakeCatalog) UploadEntities(_ context.Context, entities []models.CatalogEntity) (*catalog.MutationResult, error) {
	if f.failType != "" && len(entities) > 0 && entities[0].TypeName == f.failType {
		return nil, &catalog.APIError{StatusCode: 400, ErrorCode: "ATLAS-400-00-01A"}
	}
	f.uploads = append(f.uploads, entities)
	return &catalog.MutationResult{GUIDAssignments: map[string]string{}}, nil
}

func (f *fakeCatalog) UploadTypeDefs(_ context.Context, defs []catalog.EntityTypeDef, _ []catalog.RelationshipTypeDef) error {
	f.typeDefs += len(defs)
	return f.typeDefErr
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "qube.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newQube(client *fakeCatalog) (*QubeIngester, *report.Recorder) {
	rec := report.NewRecorder("qube", testLogger())
	pop := populator.NewEntityPopulator(client, 100, 1, rec, testLogger())
	return NewQubeIngester(client, pop, rec, testLogger()), rec
}

func TestQubeEndToEnd(t *testing.T) {
	path := writeCSV(t, "Table Name,Field Name,Business Name,Sequence Number,Nulls Allowed,Last Amended\n"+
		"MARA,MATNR,Material,1,N,05-JAN-2023\n"+
		"MARA,ERSDA,Created On,2.0,Y,\n")

	client := &fakeCatalog{}
	q, rec := newQube(client)
	stats, err := q.Ingest(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, Stats{TablesProcessed: 1, FieldsProcessed: 2, EntitiesCreated: 3}, stats)
	assert.Equal(t, 2, client.typeDefs)
	assert.Empty(t, rec.Errors())

	require.Len(t, client.uploads, 2)
	table := client.uploads[0][0]
	assert.Equal(t, "qube://MARA", table.QualifiedName)
	assert.Equal(t, "Material", table.Attributes["business_name"])

	fields := client.uploads[1]
	assert.Equal(t, "qube://MARA/MATNR", fields[0].QualifiedName)
	assert.Equal(t, false, fields[0].Attributes["nulls_allowed"])
	assert.Equal(t, int64(1), fields[0].Attributes["sequence_number"])
	assert.Equal(t, int64(1672876800000), fields[0].Attributes["field_last_amended"])
	assert.Equal(t, int64(2), fields[1].Attributes["sequence_number"])
	assert.Nil(t, fields[1].Attributes["field_last_amended"])
	parent := fields[1].Attributes["parent_table"].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"qualifiedName": "qube://MARA"}, parent["uniqueAttributes"])
}

func TestQubePartialFailure(t *testing.T) {
	var b strings.Builder
	b.WriteString("Table Name,Field Name\n")
	for i := 1; i <= 10; i++ {
		field := fmt.Sprintf("F%d", i)
		if i == 5 {
			field = ""
		}
		fmt.Fprintf(&b, "T%d,%s\n", i%3, field)
	}

	client := &fakeCatalog{}
	q, rec := newQube(client)
	stats, err := q.Ingest(context.Background(), writeCSV(t, b.String()))
	require.NoError(t, err)

	assert.Equal(t, 9, stats.FieldsProcessed)
	assert.Equal(t, 3, stats.TablesProcessed)
	assert.Equal(t, 1, stats.Errors)
	require.Len(t, rec.Errors(), 1)
	assert.Equal(t, StageValidate, rec.Errors()[0].Stage)
	assert.Equal(t, "row 5", rec.Errors()[0].ItemKey)
}

func TestQubeTableBatchFailureKeepsProcessedCounts(t *testing.T) {
	client := &fakeCatalog{failType: QubeTableType}
	q, rec := newQube(client)
	stats, err := q.Ingest(context.Background(), writeCSV(t, "Table Name,Field Name\nMARA,MATNR\nMARA,ERSDA\n"))
	require.NoError(t, err)

	assert.Equal(t, 1, stats.TablesProcessed)
	assert.Equal(t, 2, stats.FieldsProcessed)
	assert.Equal(t, 2, stats.EntitiesCreated)
	assert.Equal(t, 1, stats.Errors)
	require.Len(t, rec.Errors(), 1)
	assert.Equal(t, StageUploadTables, rec.Errors()[0].Stage)
}

func TestQubeTypeDefsAlreadyExist(t *testing.T) {
	client := &fakeCatalog{typeDefErr: &catalog.APIError{StatusCode: 409, ErrorCode: "ATLAS-409-00-001"}}
	q, _ := newQube(client)
	stats, err := q.Ingest(context.Background(), writeCSV(t, "Table Name,Field Name\nMARA,MATNR\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FieldsProcessed)
}

func TestQubeTypeDefsFailureAborts(t *testing.T) {
	client := &fakeCatalog{typeDefErr: &catalog.APIError{StatusCode: 400, ErrorCode: "ATLAS-400-00-001"}}
	q, rec := newQube(client)
	_, err := q.Ingest(context.Background(), writeCSV(t, "Table Name,Field Name\nMARA,MATNR\n"))
	require.Error(t, err)
	assert.Empty(t, client.uploads)
	assert.Equal(t, StageTypeDefs, rec.Errors()[0].Stage)
}

func TestQubeMissingColumn(t *testing.T) {
	client := &fakeCatalog{}
	q, rec := newQube(client)
	_, err := q.Ingest(context.Background(), writeCSV(t, "Table Name,Description\nMARA,x\n"))

	var missing *tabular.MissingColumnError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{ColumnField}, missing.Columns)
	assert.Equal(t, StageLoad, rec.Errors()[0].Stage)
	assert.Zero(t, client.typeDefs)
}

func TestSAPBWEntities(t *testing.T) {
	path := writeCSV(t, " devclass ,COMPONENT,PARENTCL,CTEXT\nZBW_SALES,BW,ZBW,Sales extracts\n,BW,ZBW,orphan\n")
	tbl, err := tabular.Read(path, tabular.Options{})
	require.NoError(t, err)

	rec := report.NewRecorder("bw", testLogger())
	s := NewSAPBWIngester(nil, "abc123", rec, testLogger())
	ents, err := s.Entities(tbl)
	require.NoError(t, err)
	require.Len(t, ents, 1)
	assert.Equal(t, "sap_bw://abc123/ZBW_SALES", ents[0].QualifiedName)
	assert.Equal(t, "abc123", ents[0].Collection)
	assert.Equal(t, "Sales extracts", ents[0].Attributes["description"])
	assert.Len(t, rec.Errors(), 1)
}

func TestSAPBWIngest(t *testing.T) {
	path := writeCSV(t, "DEVCLASS,COMPONENT,PARENTCL,CTEXT\nZBW_A,BW,,A\nZBW_B,BW,,B\n")
	client := &fakeCatalog{}
	rec := report.NewRecorder("bw", testLogger())
	s := NewSAPBWIngester(populator.NewEntityPopulator(client, 100, 1, rec, testLogger()), "abc123", rec, testLogger())

	n, err := s.Ingest(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, client.uploads, 1)
	assert.Equal(t, SAPBWType, client.uploads[0][0].TypeName)
}
