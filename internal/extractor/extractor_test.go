package extractor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitebski/purview-catalog-tools/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func TestSQLSources(t *testing.T) {
	sql := `
SELECT a.*, b.x
FROM [stage].[Orders] a
JOIN stage.Customers b ON a.id = b.id
LEFT JOIN #tmp t ON t.id = a.id
WHERE EXISTS (SELECT 1 FROM sys.objects)
MERGE INTO Common.FactSales USING (stage.OrderLines);
SELECT * FROM stage.Orders
SELECT * FROM NoSchema`

	assert.Equal(t, []string{"stage/Customers", "stage/OrderLines", "stage/Orders"}, SQLSources(sql))
}

func TestSQLSourcesWideEncoding(t *testing.T) {
	plain := "SELECT * FROM stage.Orders\nGO\nSELECT * FROM [stage].[Items] JOIN #t\nGO\n"
	var wide strings.Builder
	for _, r := range plain {
		wide.WriteRune(r)
		wide.WriteByte(0)
	}
	assert.Equal(t, []string{"stage/items", "stage/orders"}, SQLSources(wide.String()))
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestDWPlannerPlanView(t *testing.T) {
	views := t.TempDir()
	routines := t.TempDir()

	writeFile(t, views, "Sales.vwOrders.sql", "CREATE VIEW Sales.vwOrders AS SELECT * FROM Common.DimOrder JOIN Sales.vwBase")
	writeFile(t, views, "Sales.vwBase.sql", "CREATE VIEW Sales.vwBase AS SELECT * FROM Common.DimOrder")
	writeFile(t, routines, "Common.LoadDimOrder.sql", "INSERT INTO Common.DimOrder SELECT * FROM stage.Orders JOIN Common.DimOrder")

	p := NewDWPlanner(views, routines, testLogger())
	edges, err := p.PlanView("Sales.vwOrders.sql")
	require.NoError(t, err)

	assert.Contains(t, edges, PathEdge{Source: "stage/Orders", Target: "Common/DimOrder", ProcessType: models.DWRoutine})
	assert.Contains(t, edges, PathEdge{Source: "Common/DimOrder", Target: "Sales/vwOrders", ProcessType: models.DWViewCreation})
	assert.Contains(t, edges, PathEdge{Source: "Common/DimOrder", Target: "Sales/vwBase", ProcessType: models.DWViewCreation})
	assert.Contains(t, edges, PathEdge{Source: "Sales/vwBase", Target: "Sales/vwOrders", ProcessType: models.DWViewCreation})
	for _, e := range edges {
		assert.NotEqual(t, e.Source, e.Target)
	}
	assert.Len(t, edges, 4)
}

func TestDWPlannerRoutineNaming(t *testing.T) {
	p := NewDWPlanner("", "", testLogger())
	assert.Equal(t, []string{"Common.LoadFactSalesDaily.sql"}, p.routineFiles("common/FactSales"))
	assert.Equal(t, []string{"master.load_Calendar.sql"}, p.routineFiles("Master/Calendar"))
	assert.Equal(t, []string{"dbo.load_Thing.sql"}, p.routineFiles("dbo/Thing"))
	assert.Equal(t, []string{"Inventory.LoadDimItem.sql"}, p.routineFiles("Inventory/DimItem"))
	assert.Len(t, p.routineFiles("dbo/FactSupply"), 6)
	assert.Equal(t, "Inventory/vwDim", FileToPath("views/Inventory.vwDim.sql"))
}

func TestDWPlannerPlanTable(t *testing.T) {
	routines := t.TempDir()
	writeFile(t, routines, "dbo.load_FactDemand_SAP.sql", "SELECT * FROM stage.DemandSAP")
	writeFile(t, routines, "dbo.load_FactDemand_STO.sql", "SELECT * FROM stage.DemandSTO")

	p := NewDWPlanner("", routines, testLogger())
	edges, err := p.PlanTable("dbo.FactDemand.sql")
	require.NoError(t, err)
	assert.Equal(t, []PathEdge{
		{Source: "stage/DemandSAP", Target: "dbo/FactDemand", ProcessType: models.DWRoutine},
		{Source: "stage/DemandSTO", Target: "dbo/FactDemand", ProcessType: models.DWRoutine},
	}, edges)

	_, err = p.PlanTable("dbo.Missing.sql")
	assert.Error(t, err)
}

const informaticaXML = `<?xml version="1.0" encoding="Windows-1252"?>
<POWERMART>
<REPOSITORY NAME="rep">
<FOLDER NAME="SLBA">
  <SOURCE DBDNAME="prod1" NAME="SQ_ITEMS" OWNERNAME="APPS"/>
  <SOURCE DBDNAME="Flat_File" NAME="items.csv" OWNERNAME=""/>
  <TARGET DBDNAME="slbadw" NAME="ITEM_DIM" OWNERNAME="STAGING"/>
  <MAPPING NAME="m"><TRANSFORMATION NAME="SOURCE"/></MAPPING>
  <SESSION NAME="s_load">
    <SESSIONEXTENSION SINSTANCENAME="ITEM_DIM" TYPE="WRITER">
      <CONNECTIONREFERENCE CONNECTIONNAME="SLBADW_PRD"/>
    </SESSIONEXTENSION>
    <SESSIONEXTENSION SINSTANCENAME="SQ_ITEMS" TYPE="READER">
      <CONNECTIONREFERENCE CONNECTIONNAME="ORA_PROD1"/>
      <CONNECTIONREFERENCE CONNECTIONNAME="UNKNOWN"/>
    </SESSIONEXTENSION>
  </SESSION>
</FOLDER>
</REPOSITORY>
</POWERMART>`

func TestParseInformatica(t *testing.T) {
	export, err := ParseInformatica(strings.NewReader(informaticaXML))
	require.NoError(t, err)

	assert.Equal(t, []models.ParsedReference{
		{Server: "prod1", Schema: "APPS", Table: "SQ_ITEMS"},
		{Server: "Flat_File", Schema: "", Table: "items.csv"},
		{Server: "slbadw", Schema: "STAGING", Table: "ITEM_DIM"},
	}, export.Sources)
	assert.Len(t, export.Uses, 3)

	targets := export.Targets(map[string]Connection{"ORA_PROD1": {Server: "prod1", Database: "APPS"}})
	assert.Equal(t, []models.ParsedReference{
		{Server: "oakdwhp1", Schema: "SLBA", Table: "ITEM_DIM"},
		{Server: "prod1", Schema: "APPS", Table: "SQ_ITEMS"},
	}, targets)
}

func TestLoadConnections(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "conn.csv", "Connection Name,Server name,Database name\nORA_PROD1,prod1,APPS\n")
	conns, err := LoadConnections(filepath.Join(dir, "conn.csv"))
	require.NoError(t, err)
	assert.Equal(t, Connection{Server: "prod1", Database: "APPS"}, conns["ORA_PROD1"])
}

func TestParseExternalTable(t *testing.T) {
	sql := "BEGIN\nCREATE EXTERNAL TABLE [ext].[Orders] (\n id int\n)\nWITH (\nLOCATION = N'/curated/sales/orders/',\nDATA_SOURCE = dl\n)\nEND"
	et, err := ParseExternalTable(sql)
	require.NoError(t, err)
	assert.Equal(t, "/curated/sales/orders/", et.Location)
	assert.Equal(t, "[ext].[Orders]", et.Table)
	assert.Equal(t, "ext/Orders", et.TablePath())

	_, err = ParseExternalTable("CREATE TABLE x (id int)")
	assert.True(t, errors.Is(err, ErrPatternNotFound))
}

func TestQueryTables(t *testing.T) {
	q := "select * from [Sales].[FactOrders] f inner join Sales.DimStore s on 1=1 JOIN sales.dimdate d"
	assert.Equal(t, []string{"Sales/DimStore", "Sales/FactOrders", "sales/dimdate"}, QueryTables(q))
	assert.Equal(t, []string{"Sales/DimStore", "Sales/FactOrders"}, QueriesTables([]string{
		"select 1 from Sales.FactOrders", "select 1 from Sales.DimStore join Sales.FactOrders", "",
	}))
}

func TestParseBim(t *testing.T) {
	bim := `{"model": {"tables": [
		{"name": "Orders", "partitions": [{"source": {"expression": [
			"let", "    Source = #\"SQL/dw;db\",", "    dbo_Orders = Source{[Schema=\"Sales\",Item=\"FactOrders\"]}[Data]", "in dbo_Orders"]}}]},
		{"name": "Calc", "partitions": [{"source": {"type": "calculated", "expression": "1"}}]},
		{"name": "Store", "partitions": [{"source": {"expression": "Source{[Schema=\"Sales\",Item=\"DimStore\"]}"}}]}
	]}}`

	tables, err := ParseBim([]byte(bim))
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, ModelTable{Name: "Orders", Schema: "Sales", Source: "FactOrders"}, tables[0])
	assert.Equal(t, "Sales/DimStore", tables[1].Path())

	_, err = ParseBim([]byte("{"))
	assert.Error(t, err)
}

func TestParseHanaDefinition(t *testing.T) {
	dsp := `{"definitions": {
		"HL_SALES": {"kind": "entity", "elements": {"VBELN": {"@EndUserText.label": "Sales Doc"}, "POSNR": {}}},
		"FIN_REP.ZV_ORDERS": {"elements": {"ID": {"@EndUserText.label": "Id"}}},
		"XX_UNKNOWN": {"elements": {}},
		"TA_ITEMS": {"elements": {"ITEM": {}}},
		"context": {"kind": "context"}
	}}`

	def, err := ParseHanaDefinition([]byte(dsp), "TD_STG")
	require.NoError(t, err)
	assert.Equal(t, "HL_SALES", def.Target.Name)
	assert.Equal(t, HanaView, def.Target.Kind)
	assert.Equal(t, "TD_STG", def.Target.Schema)
	assert.Equal(t, "Sales Doc", def.Target.Columns[0].Label)

	require.Len(t, def.Sources, 2)
	assert.Equal(t, "FIN_REP", def.Sources[0].Schema)
	assert.Equal(t, HanaTable, def.Sources[0].Kind)
	assert.Equal(t, []string{"XX_UNKNOWN"}, def.Skipped)

	header := "sap_hana://host/databases/H00/schemas/"
	ents := def.Target.Entities(header)
	require.Len(t, ents, 3)
	assert.Equal(t, "sap_hana://host/databases/H00/schemas/TD_STG/views/HL_SALES", ents[0].QualifiedName)
	assert.Equal(t, "sap_hana_view_column", ents[1].TypeName)
	assert.Equal(t, ents[0].QualifiedName+"#VBELN", ents[1].QualifiedName)
}

const cubeXMLA = `<Batch xmlns="http://schemas.microsoft.com/analysisservices/2003/engine">
<Create><ObjectDefinition><Database>
  <Dimensions>
    <Dimension><ID>Date</ID><Attributes>
      <Attribute><ID>Year</ID></Attribute><Attribute><ID>Month</ID></Attribute>
    </Attributes></Dimension>
  </Dimensions>
  <Cubes><Cube><ID>Sales</ID><Dimensions>
    <Dimension><DimensionID>Date</DimensionID><Attributes>
      <Attribute><AttributeID>Year</AttributeID></Attribute><Attribute><AttributeID>Day</AttributeID></Attribute>
    </Attributes></Dimension>
    <Dimension><DimensionID>Store</DimensionID></Dimension>
  </Dimensions></Cube></Cubes>
</Database></ObjectDefinition></Create></Batch>`

func TestParseCubeXMLA(t *testing.T) {
	dims, err := ParseCubeXMLA(strings.NewReader(cubeXMLA))
	require.NoError(t, err)
	assert.Equal(t, []CubeDimension{
		{ID: "Date", Attributes: []string{"Day", "Month", "Year"}},
		{ID: "Store"},
	}, dims)

	dataset, schema, cols := CubeEntities("Sales", dims)
	assert.Equal(t, "wsbissasqryp2v.res.hbi.net://Sales", dataset.QualifiedName)
	assert.Equal(t, "wsbissasqryp2v.res.hbi.net://Sales/tabular_schema", schema.QualifiedName)
	require.Len(t, cols, 5)
	assert.Equal(t, "wsbissasqryp2v.res.hbi.net://Sales/dimension/Date/attribute/Day", cols[1].QualifiedName)
}
