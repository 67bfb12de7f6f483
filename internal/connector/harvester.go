// Package connector harvests the schema of a MySQL source system into
// catalog entities and view lineage.
package connector

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/purview-catalog-tools/internal/analyzer"
	"github.com/vitebski/purview-catalog-tools/internal/extractor"
	"github.com/vitebski/purview-catalog-tools/internal/lineage"
	"github.com/vitebski/purview-catalog-tools/internal/populator"
	"github.com/vitebski/purview-catalog-tools/internal/report"
	"github.com/vitebski/purview-catalog-tools/pkg/models"
)

// Catalog types of harvested objects
const (
	TableType      = "mysql_table"
	ViewType       = "mysql_view"
	ColumnType     = "mysql_column"
	ViewColumnType = "mysql_view_column"
)

// Stages and counters
const (
	StageSchema = "mysql-schema"
	StageViews  = "mysql-views"

	CounterTables     = "mysql_tables"
	CounterColumns    = "mysql_columns"
	CounterViewCycles = "mysql_view_cycles"
)

const (
	tablesQuery = `
		SELECT table_name AS table_name, table_type AS table_type, table_comment AS table_comment
		FROM information_schema.tables
		WHERE table_schema = ?
		ORDER BY table_name
	`
	columnsQuery = `
		SELECT table_name AS table_name, column_name AS column_name, data_type AS data_type,
			is_nullable AS is_nullable, ordinal_position AS ordinal_position, column_comment AS column_comment
		FROM information_schema.columns
		WHERE table_schema = ?
		ORDER BY table_name, ordinal_position
	`
	viewsQuery = `
		SELECT table_name AS table_name, view_definition AS view_definition
		FROM information_schema.views
		WHERE table_schema = ?
		ORDER BY table_name
	`
)

// Table is a base table or view of the source schema
type Table struct {
	Name    string
	View    bool
	Comment string
}

// Column is a column of a table or view
type Column struct {
	Table    string
	Name     string
	DataType string
	Nullable bool
	Position int64
	Comment  string
}

// HarvestResult counts what a harvest found and wrote
type HarvestResult struct {
	Tables  int
	Columns int
	Views   int
	Edges   int
	Cycles  [][]string
}

// Harvester reads information_schema and writes catalog entities and
// view-creation lineage
type Harvester struct {
	DB        *DatabaseConnector
	Populator *populator.EntityPopulator
	Writer    *lineage.Writer
	Recorder  *report.Recorder
	Logger    *logrus.Logger
}

// NewHarvester creates a new harvester
func NewHarvester(db *DatabaseConnector, pop *populator.EntityPopulator, writer *lineage.Writer, recorder *report.Recorder, logger *logrus.Logger) *Harvester {
	return &Harvester{
		DB:        db,
		Populator: pop,
		Writer:    writer,
		Recorder:  recorder,
		Logger:    logger,
	}
}

// QualifiedName returns mysql://<host>/<db>/<table>, with #<column> when a
// column is given
func QualifiedName(host, database, table, column string) string {
	qn := fmt.Sprintf("mysql://%s/%s/%s", host, database, table)
	if column != "" {
		qn += "#" + column
	}
	return qn
}

func text(row map[string]interface{}, key string) string {
	if v, ok := row[key]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

// Tables lists the tables and views of the schema
func (h *Harvester) Tables(ctx context.Context) ([]Table, error) {
	rows, err := h.DB.ExecuteQuery(ctx, tablesQuery, h.DB.Database)
	if err != nil {
		return nil, errors.Wrap(err, "listing tables")
	}
	out := make([]Table, 0, len(rows))
	for _, r := range rows {
		out = append(out, Table{
			Name:    text(r, "table_name"),
			View:    text(r, "table_type") == "VIEW",
			Comment: text(r, "table_comment"),
		})
	}
	return out, nil
}

// Columns lists every column of the schema in ordinal order
func (h *Harvester) Columns(ctx context.Context) ([]Column, error) {
	rows, err := h.DB.ExecuteQuery(ctx, columnsQuery, h.DB.Database)
	if err != nil {
		return nil, errors.Wrap(err, "listing columns")
	}
	out := make([]Column, 0, len(rows))
	for _, r := range rows {
		c := Column{
			Table:    text(r, "table_name"),
			Name:     text(r, "column_name"),
			DataType: text(r, "data_type"),
			Nullable: text(r, "is_nullable") == "YES",
			Comment:  text(r, "column_comment"),
		}
		switch v := r["ordinal_position"].(type) {
		case int64:
			c.Position = v
		case uint64:
			c.Position = int64(v)
		default:
			fmt.Sscan(text(r, "ordinal_position"), &c.Position)
		}
		out = append(out, c)
	}
	return out, nil
}

// ViewDefinitions returns the SQL body of each view
func (h *Harvester) ViewDefinitions(ctx context.Context) (map[string]string, error) {
	rows, err := h.DB.ExecuteQuery(ctx, viewsQuery, h.DB.Database)
	if err != nil {
		return nil, errors.Wrap(err, "listing views")
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[text(r, "table_name")] = text(r, "view_definition")
	}
	return out, nil
}

func (h *Harvester) tableEntity(t Table) models.CatalogEntity {
	typeName := TableType
	if t.View {
		typeName = ViewType
	}
	e := models.CatalogEntity{
		TypeName:      typeName,
		QualifiedName: QualifiedName(h.DB.Host, h.DB.Database, t.Name, ""),
		Name:          t.Name,
		Attributes:    map[string]interface{}{},
	}
	if t.Comment != "" {
		e.Attributes["description"] = t.Comment
	}
	return e
}

// Entities converts tables and columns into catalog entities. Columns refer
// to their table or view by qualified name.
func (h *Harvester) Entities(tables []Table, columns []Column) (tableEntities, columnEntities []models.CatalogEntity) {
	byName := make(map[string]models.CatalogEntity, len(tables))
	for _, t := range tables {
		e := h.tableEntity(t)
		byName[t.Name] = e
		tableEntities = append(tableEntities, e)
	}

	for _, c := range columns {
		parent, ok := byName[c.Table]
		if !ok {
			h.Recorder.Fail(StageSchema, c.Table+"."+c.Name, errors.New("column of unknown table"))
			continue
		}
		typeName, rel := ColumnType, "table"
		if parent.TypeName == ViewType {
			typeName, rel = ViewColumnType, "view"
		}
		attrs := map[string]interface{}{
			"data_type":   c.DataType,
			"is_nullable": c.Nullable,
			"position":    c.Position,
		}
		if c.Comment != "" {
			attrs["description"] = c.Comment
		}
		columnEntities = append(columnEntities, models.CatalogEntity{
			TypeName:      typeName,
			QualifiedName: QualifiedName(h.DB.Host, h.DB.Database, c.Table, c.Name),
			Name:          c.Name,
			Attributes:    attrs,
			RelationshipAttributes: map[string]interface{}{
				rel: map[string]interface{}{
					"typeName":         parent.TypeName,
					"uniqueAttributes": map[string]interface{}{"qualifiedName": parent.QualifiedName},
				},
			},
		})
	}
	return tableEntities, columnEntities
}

// ViewSources returns the schema/table paths a MySQL view definition reads
func ViewSources(definition string) []string {
	return extractor.SQLSources(strings.ReplaceAll(definition, "`", ""))
}

// Harvest uploads the schema's tables, views and columns and links each
// view to the objects it selects from
func (h *Harvester) Harvest(ctx context.Context) (HarvestResult, error) {
	var res HarvestResult

	tables, err := h.Tables(ctx)
	if err != nil {
		h.Recorder.Fail(StageSchema, h.DB.Database, err)
		return res, err
	}
	columns, err := h.Columns(ctx)
	if err != nil {
		h.Recorder.Fail(StageSchema, h.DB.Database, err)
		return res, err
	}
	views, err := h.ViewDefinitions(ctx)
	if err != nil {
		h.Recorder.Fail(StageViews, h.DB.Database, err)
		return res, err
	}

	tableEntities, columnEntities := h.Entities(tables, columns)
	for _, step := range []struct {
		stage    string
		counter  string
		entities []models.CatalogEntity
		count    *int
	}{
		{"upload mysql tables", CounterTables, tableEntities, &res.Tables},
		{"upload mysql columns", CounterColumns, columnEntities, &res.Columns},
	} {
		out, err := h.Populator.Populate(ctx, step.stage, step.entities)
		for qn, guid := range out.GUIDs {
			h.Writer.Cache.Put(qn, guid)
		}
		*step.count = out.Created
		h.Recorder.Inc(step.counter, out.Created)
		if err != nil {
			return res, err
		}
	}

	res.Views = len(views)
	edges, cycles := h.linkViews(ctx, tableEntities, views)
	res.Edges, res.Cycles = edges, cycles
	h.Logger.Infof("Harvested %d tables, %d columns and %d view edges from %s", res.Tables, res.Columns, res.Edges, h.DB.Database)
	return res, ctx.Err()
}

// linkViews writes a mysql_view_creation edge from every source of every
// view. Views are handled in dependency order; views in cycles come last
// and are reported.
func (h *Harvester) linkViews(ctx context.Context, tables []models.CatalogEntity, views map[string]string) (int, [][]string) {
	known := make(map[string]models.CatalogEntity, len(tables))
	for _, t := range tables {
		known[t.QualifiedName] = t
	}

	deps := analyzer.NewDependencyAnalyzer(h.Logger)
	sources := make(map[string][]string, len(views))
	names := make([]string, 0, len(views))
	for name := range views {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		deps.AddNode(name)
		sources[name] = ViewSources(views[name])
		for _, src := range sources[name] {
			db, obj, _ := strings.Cut(src, "/")
			if _, isView := views[obj]; isView && db == h.DB.Database {
				deps.AddDependency(obj, name)
			}
		}
	}

	order, _ := deps.GetOrder()
	cycles := deps.GetCycles()
	for _, c := range cycles {
		h.Recorder.Inc(CounterViewCycles, 1)
		h.Recorder.Fail(StageViews, strings.Join(c, ","), errors.New("circular view dependency"))
	}

	edges := 0
	for _, name := range order {
		if ctx.Err() != nil {
			break
		}
		target := h.tableEntity(Table{Name: name, View: true})
		for _, src := range sources[name] {
			qn := "mysql://" + h.DB.Host + "/" + src
			source, ok := known[qn]
			if !ok {
				source = models.CatalogEntity{TypeName: TableType, QualifiedName: qn, Name: src[strings.LastIndex(src, "/")+1:]}
			}
			if source.QualifiedName == target.QualifiedName {
				continue
			}
			edge := lineage.NewEdge([]models.CatalogEntity{source}, []models.CatalogEntity{target}, models.MySQLViewCreation)
			if err := h.Writer.Write(ctx, edge); err == nil {
				edges++
			}
		}
	}
	return edges, cycles
}
