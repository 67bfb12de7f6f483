package connector

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/purview-catalog-tools/internal/catalog"
	"github.com/vitebski/purview-catalog-tools/internal/config"
	"github.com/vitebski/purview-catalog-tools/internal/lineage"
	"github.com/vitebski/purview-catalog-tools/internal/populator"
	"github.com/vitebski/purview-catalog-tools/internal/report"
	"github.com/vitebski/purview-catalog-tools/pkg/models"
)

func TestNewDatabaseConnector(t *testing.T) {
	t.Setenv("MYSQL_HOST", "test-host")
	t.Setenv("MYSQL_USER", "test-user")
	t.Setenv("MYSQL_PASSWORD", "test-password")
	t.Setenv("MYSQL_DATABASE", "test-database")
	t.Setenv("MYSQL_PORT", "3307")

	logger := createTestLogger()

	db := NewDatabaseConnector("", "", "", "", "", logger)
	if db.Host != "test-host" {
		t.Errorf("Expected host to be 'test-host', got '%s'", db.Host)
	}
	if db.User != "test-user" {
		t.Errorf("Expected user to be 'test-user', got '%s'", db.User)
	}
	if db.Password != "test-password" {
		t.Errorf("Expected password to be 'test-password', got '%s'", db.Password)
	}
	if db.Database != "test-database" {
		t.Errorf("Expected database to be 'test-database', got '%s'", db.Database)
	}
	if db.Port != "3307" {
		t.Errorf("Expected port to be '3307', got '%s'", db.Port)
	}

	db = NewDatabaseConnector("explicit-host", "explicit-user", "explicit-password", "explicit-database", "3308", logger)
	if db.Host != "explicit-host" || db.User != "explicit-user" || db.Database != "explicit-database" {
		t.Errorf("Expected explicit parameters to win, got %+v", db)
	}
	if db.Port != "3308" {
		t.Errorf("Expected port to be '3308', got '%s'", db.Port)
	}
}

func TestDSN(t *testing.T) {
	db := NewDatabaseConnector("db.internal", "reader", "s3cret", "shop", "3306", createTestLogger())
	dsn := db.DSN()
	if !strings.HasPrefix(dsn, "reader:s3cret@tcp(db.internal:3306)/shop") {
		t.Errorf("Unexpected DSN: %s", dsn)
	}
	if !strings.Contains(dsn, "parseTime=true") {
		t.Errorf("Expected parseTime in DSN: %s", dsn)
	}
}

func TestConnectRequiresDatabase(t *testing.T) {
	t.Setenv("MYSQL_DATABASE", "")
	db := NewDatabaseConnector("localhost", "root", "", "", "3306", createTestLogger())
	if err := db.Connect(context.Background()); err == nil {
		t.Error("Expected an error without a database name")
	}
}

func TestViewSources(t *testing.T) {
	def := "select `shop`.`orders`.`id` AS `id` from (`shop`.`orders` join `shop`.`customers` on((`shop`.`orders`.`customer_id` = `shop`.`customers`.`id`)))"
	got := ViewSources(def)
	if len(got) != 2 || got[0] != "shop/customers" || got[1] != "shop/orders" {
		t.Errorf("Unexpected view sources: %v", got)
	}
}

func TestHarvest(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	defer sqlDB.Close()

	mock.ExpectQuery("FROM information_schema.tables").WithArgs("shop").WillReturnRows(
		sqlmock.NewRows([]string{"table_name", "table_type", "table_comment"}).
			AddRow("customers", "BASE TABLE", "").
			AddRow("orders", "BASE TABLE", "Customer orders").
			AddRow("v_orders", "VIEW", "").
			AddRow("v_summary", "VIEW", ""))
	mock.ExpectQuery("FROM information_schema.columns").WithArgs("shop").WillReturnRows(
		sqlmock.NewRows([]string{"table_name", "column_name", "data_type", "is_nullable", "ordinal_position", "column_comment"}).
			AddRow("orders", "id", "int", "NO", int64(1), "").
			AddRow("orders", "customer_id", "int", "YES", int64(2), "").
			AddRow("v_orders", "id", "int", "NO", int64(1), "").
			AddRow("dropped", "id", "int", "NO", int64(1), ""))
	mock.ExpectQuery("FROM information_schema.views").WithArgs("shop").WillReturnRows(
		sqlmock.NewRows([]string{"table_name", "view_definition"}).
			AddRow("v_summary", "select count(0) AS `n` from `shop`.`v_orders`").
			AddRow("v_orders", "select `shop`.`orders`.`id` AS `id` from (`shop`.`orders` join `shop`.`customers` on((`shop`.`orders`.`customer_id` = `shop`.`customers`.`id`)))"))

	client := newFakeCatalog()
	h, rec := newTestHarvester(sqlDB, client)

	res, err := h.Harvest(context.Background())
	if err != nil {
		t.Fatalf("Harvest failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet query expectations: %v", err)
	}

	if res.Tables != 4 || res.Columns != 3 || res.Views != 2 || res.Edges != 3 {
		t.Errorf("Unexpected result: %+v", res)
	}
	if len(res.Cycles) != 0 {
		t.Errorf("Expected no cycles, got %v", res.Cycles)
	}
	if rec.Count(CounterTables) != 4 || rec.Count(lineage.CounterWritten) != 3 {
		t.Errorf("Unexpected counters: tables=%d edges=%d", rec.Count(CounterTables), rec.Count(lineage.CounterWritten))
	}
	if len(rec.Errors()) != 1 || rec.Errors()[0].ItemKey != "dropped.id" {
		t.Errorf("Expected the orphan column to be recorded, got %v", rec.Errors())
	}

	columns := client.uploads[1]
	if columns[1].TypeName != ColumnType || columns[1].QualifiedName != "mysql://db1/shop/orders#customer_id" {
		t.Errorf("Unexpected column entity: %+v", columns[1])
	}
	if columns[1].Attributes["is_nullable"] != true || columns[1].Attributes["position"] != int64(2) {
		t.Errorf("Unexpected column attributes: %v", columns[1].Attributes)
	}
	viewCol := columns[2]
	parent, ok := viewCol.RelationshipAttributes["view"].(map[string]interface{})
	if viewCol.TypeName != ViewColumnType || !ok || parent["typeName"] != ViewType {
		t.Errorf("Unexpected view column: %+v", viewCol)
	}

	// views are linked in dependency order
	first := client.uploads[2]
	process := first[len(first)-1]
	if process.TypeName != string(models.MySQLViewCreation) || first[0].QualifiedName != "mysql://db1/shop/v_orders" {
		t.Errorf("Unexpected first edge payload: %+v", first)
	}
	if first[1].GUID != "g:mysql://db1/shop/customers" {
		t.Errorf("Expected the uploaded table GUID to be reused, got %s", first[1].GUID)
	}
	last := client.uploads[len(client.uploads)-1]
	if last[0].QualifiedName != "mysql://db1/shop/v_summary" || last[1].QualifiedName != "mysql://db1/shop/v_orders" {
		t.Errorf("Unexpected last edge payload: %+v", last)
	}
}

func TestHarvestReportsViewCycles(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	defer sqlDB.Close()

	mock.ExpectQuery("FROM information_schema.tables").WithArgs("shop").WillReturnRows(
		sqlmock.NewRows([]string{"table_name", "table_type", "table_comment"}).
			AddRow("v_a", "VIEW", "").
			AddRow("v_b", "VIEW", ""))
	mock.ExpectQuery("FROM information_schema.columns").WithArgs("shop").WillReturnRows(
		sqlmock.NewRows([]string{"table_name", "column_name", "data_type", "is_nullable", "ordinal_position", "column_comment"}))
	mock.ExpectQuery("FROM information_schema.views").WithArgs("shop").WillReturnRows(
		sqlmock.NewRows([]string{"table_name", "view_definition"}).
			AddRow("v_a", "select * from `shop`.`v_b`").
			AddRow("v_b", "select * from `shop`.`v_a`"))

	h, rec := newTestHarvester(sqlDB, newFakeCatalog())
	res, err := h.Harvest(context.Background())
	if err != nil {
		t.Fatalf("Harvest failed: %v", err)
	}
	if len(res.Cycles) != 1 || strings.Join(res.Cycles[0], ",") != "v_a,v_b" {
		t.Errorf("Unexpected cycles: %v", res.Cycles)
	}
	if rec.Count(CounterViewCycles) != 1 {
		t.Errorf("Expected one recorded cycle, got %d", rec.Count(CounterViewCycles))
	}
	if res.Edges != 2 {
		t.Errorf("Expected views in a cycle to still be linked, got %d edges", res.Edges)
	}
}

func TestHarvestQueryFailure(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	defer sqlDB.Close()
	mock.ExpectQuery("FROM information_schema.tables").WithArgs("shop").WillReturnError(errors.New("access denied"))

	h, rec := newTestHarvester(sqlDB, newFakeCatalog())
	if _, err := h.Harvest(context.Background()); err == nil {
		t.Fatal("Expected the query error to be returned")
	}
	if len(rec.Errors()) != 1 || rec.Errors()[0].Stage != StageSchema {
		t.Errorf("Expected a schema failure, got %v", rec.Errors())
	}
}

type fakeCatalog struct {
	uploads [][]models.CatalogEntity
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{}
}

func (f *fakeCatalog) UploadEntities(_ context.Context, entities []models.CatalogEntity) (*catalog.MutationResult, error) {
	f.uploads = append(f.uploads, entities)
	res := &catalog.MutationResult{GUIDAssignments: map[string]string{}}
	for _, e := range entities {
		if strings.HasPrefix(e.GUID, "-") {
			res.GUIDAssignments[e.GUID] = "g:" + e.QualifiedName
		}
	}
	return res, nil
}

func (f *fakeCatalog) GetEntity(_ context.Context, guid string) (*catalog.EntityDetail, error) {
	return nil, errors.Wrap(catalog.ErrNotFound, guid)
}

func (f *fakeCatalog) GetEntityByQualifiedName(_ context.Context, _, qn string) (*catalog.EntityDetail, error) {
	return nil, errors.Wrap(catalog.ErrNotFound, qn)
}

func (f *fakeCatalog) SearchAll(context.Context, catalog.SearchRequest) ([]catalog.SearchHit, error) {
	return nil, nil
}

func (f *fakeCatalog) UpdateEntityAttribute(context.Context, string, string, interface{}) error {
	return nil
}

func newTestHarvester(sqlDB *sql.DB, client *fakeCatalog) (*Harvester, *report.Recorder) {
	logger := createTestLogger()
	rec := report.NewRecorder("mysql", logger)
	db := &DatabaseConnector{Host: "db1", Database: "shop", DB: sqlDB, Logger: logger}
	pop := populator.NewEntityPopulator(client, 100, 1, rec, logger)
	writer := lineage.NewWriter(client, config.WriteModeCreateOrSkip, rec, nil, logger)
	return NewHarvester(db, pop, writer, rec, logger), rec
}

func createTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}
