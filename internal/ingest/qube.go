// Package ingest loads data dictionaries into custom catalog entity types.
package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/purview-catalog-tools/internal/catalog"
	"github.com/vitebski/purview-catalog-tools/internal/populator"
	"github.com/vitebski/purview-catalog-tools/internal/report"
	"github.com/vitebski/purview-catalog-tools/internal/tabular"
	"github.com/vitebski/purview-catalog-tools/internal/utils"
	"github.com/vitebski/purview-catalog-tools/pkg/models"
)

// QUBE entity types
const (
	QubeTableType = "qube_table_specification"
	QubeFieldType = "qube_field_specification"
)

// QUBE stages, in execution order
const (
	StageLoad         = "load"
	StageTransform    = "transform"
	StageCoerce       = "coerce"
	StageValidate     = "validate"
	StageTypeDefs     = "typedefs"
	StageCreateTables = "create tables"
	StageUploadTables = "upload tables"
	StageCreateFields = "create fields"
	StageUploadFields = "upload fields"
)

// Stats counters
const (
	CounterTables   = "tables_processed"
	CounterFields   = "fields_processed"
	CounterCreated  = "entities_created"
	CounterErrors   = "errors"
	CounterTypeDefs = "typedefs_registered"
)

// Required QUBE columns
const (
	ColumnTable = "Table Name"
	ColumnField = "Field Name"
)

// Client is the subset of the catalog session used by ingestion
type Client interface {
	populator.Uploader
	UploadTypeDefs(ctx context.Context, entityDefs []catalog.EntityTypeDef, relationshipDefs []catalog.RelationshipTypeDef) error
}

// Stats is the outcome of a QUBE ingestion
type Stats struct {
	TablesProcessed int
	FieldsProcessed int
	EntitiesCreated int
	Errors          int
}

// qubeRow is one dictionary line after transformation
type qubeRow struct {
	Line   int
	Table  string `validate:"required"`
	Field  string `validate:"required"`
	Values tabular.Row

	tableAttrs map[string]interface{}
	fieldAttrs map[string]interface{}
}

// QubeIngester loads a QUBE data dictionary (one row per field)
type QubeIngester struct {
	Client    Client
	Populator *populator.EntityPopulator
	Recorder  *report.Recorder
	Logger    *logrus.Logger

	validate *validator.Validate

	table  *tabular.Table
	rows   []*qubeRow
	tables []models.CatalogEntity
	fields []models.CatalogEntity
}

// NewQubeIngester creates a new QUBE ingester
func NewQubeIngester(client Client, pop *populator.EntityPopulator, recorder *report.Recorder, logger *logrus.Logger) *QubeIngester {
	return &QubeIngester{
		Client:    client,
		Populator: pop,
		Recorder:  recorder,
		Logger:    logger,
		validate:  validator.New(),
	}
}

type qubeStep struct {
	name string
	run  func(ctx context.Context, path string) error
}

// Ingest runs load -> transform -> coerce -> validate -> typedefs -> create
// tables -> upload tables -> create fields -> upload fields. A load or
// typedef failure stops the run; row and batch failures are recorded and
// skipped.
func (q *QubeIngester) Ingest(ctx context.Context, path string) (Stats, error) {
	q.Logger.Infof("Starting QUBE data dictionary ingestion from %s", path)

	steps := []qubeStep{
		{StageLoad, q.load},
		{StageTransform, q.transform},
		{StageCoerce, q.coerce},
		{StageValidate, q.validateRows},
		{StageTypeDefs, q.registerTypes},
		{StageCreateTables, q.createTables},
		{StageUploadTables, q.uploadTables},
		{StageCreateFields, q.createFields},
		{StageUploadFields, q.uploadFields},
	}
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return q.stats(), err
		}
		q.Logger.Debugf("QUBE stage: %s", s.name)
		if err := s.run(ctx, path); err != nil {
			q.Recorder.Fail(s.name, path, err)
			q.Recorder.Inc(CounterErrors, 1)
			return q.stats(), err
		}
	}

	stats := q.stats()
	q.Logger.Infof("QUBE ingestion finished: %d tables, %d fields, %d entities created, %d errors",
		stats.TablesProcessed, stats.FieldsProcessed, stats.EntitiesCreated, stats.Errors)
	return stats, nil
}

func (q *QubeIngester) stats() Stats {
	return Stats{
		TablesProcessed: q.Recorder.Count(CounterTables),
		FieldsProcessed: q.Recorder.Count(CounterFields),
		EntitiesCreated: q.Recorder.Count(CounterCreated),
		Errors:          q.Recorder.Count(CounterErrors),
	}
}

func (q *QubeIngester) load(_ context.Context, path string) error {
	t, err := tabular.Read(path, tabular.Options{})
	if err != nil {
		return err
	}
	if err := t.Require(ColumnTable, ColumnField); err != nil {
		return err
	}
	q.table = t
	q.Logger.Infof("Loaded %d rows from %s", len(t.Rows), path)
	return nil
}

func (q *QubeIngester) transform(_ context.Context, _ string) error {
	q.rows = q.rows[:0]
	for _, r := range q.table.Rows {
		q.rows = append(q.rows, &qubeRow{
			Line:   r.Line,
			Table:  r.Get(ColumnTable),
			Field:  r.Get(ColumnField),
			Values: r,
		})
	}
	return nil
}

func deref[T any](p *T) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func (q *QubeIngester) coerce(_ context.Context, _ string) error {
	for _, r := range q.rows {
		v := r.Values
		r.tableAttrs = map[string]interface{}{
			"table_name":           r.Table,
			"business_name":        deref(utils.ParseString(v.Get("Business Name"))),
			"release_version":      deref(utils.ParseString(v.Get("Release"))),
			"module_name":          deref(utils.ParseString(v.Get("Module"))),
			"table_description":    deref(utils.ParseString(v.Get("Description"))),
			"last_amended_date":    deref(utils.ParseDateMillis(v.Get("Last Amended"))),
			"amendment_logging":    deref(utils.ParseBool(v.Get("Amendment Logging"))),
			"operational_security": deref(utils.ParseBool(v.Get("Operational Security"))),
			"document_folders":     deref(utils.ParseBool(v.Get("Document Folders"))),
		}
		r.fieldAttrs = map[string]interface{}{
			"field_name":          r.Field,
			"field_business_name": deref(utils.ParseString(v.Get("Business Name"))),
			"sequence_number":     deref(utils.ParseInt(v.Get("Sequence Number"))),
			"field_description":   deref(utils.ParseString(v.Get("Description"))),
			"data_type":           deref(utils.ParseString(v.Get("Data Type"))),
			"field_length":        deref(utils.ParseInt(v.Get("Length"))),
			"precision_value":     deref(utils.ParseInt(v.Get("Precision"))),
			"scale_value":         deref(utils.ParseInt(v.Get("Scale"))),
			"key_field":           deref(utils.ParseInt(v.Get("Key Field"))),
			"log_type":            deref(utils.ParseString(v.Get("Log Type"))),
			"validation_rule":     deref(utils.ParseString(v.Get("Validation Rule"))),
			"validation_code":     deref(utils.ParseString(v.Get("Validation Code"))),
			"nulls_allowed":       deref(utils.ParseBool(v.Get("Nulls Allowed"))),
			"required_field":      deref(utils.ParseBool(v.Get("Required"))),
			"field_last_amended":  deref(utils.ParseDateMillis(v.Get("Last Amended"))),
			"optimize_filtering":  deref(utils.ParseBool(v.Get("Optimize Filtering"))),
		}
	}
	return nil
}

func (q *QubeIngester) validateRows(_ context.Context, _ string) error {
	valid := q.rows[:0]
	for _, r := range q.rows {
		if err := q.validate.Struct(r); err != nil {
			var verrs validator.ValidationErrors
			msg := err.Error()
			if errors.As(err, &verrs) {
				names := make([]string, 0, len(verrs))
				for _, fe := range verrs {
					names = append(names, fe.Field())
				}
				msg = "missing " + strings.Join(names, ", ")
			}
			q.Logger.Warnf("Skipping row %d: %s", r.Line, msg)
			q.Recorder.Fail(StageValidate, fmt.Sprintf("row %d", r.Line), errors.New(msg))
			q.Recorder.Inc(CounterErrors, 1)
			continue
		}
		valid = append(valid, r)
	}
	q.rows = valid
	return nil
}

// QubeTypeDefs returns the table and field specification types
func QubeTypeDefs() []catalog.EntityTypeDef {
	return []catalog.EntityTypeDef{
		{
			Name:        QubeTableType,
			Description: "QUBE data dictionary table specification",
			SuperTypes:  []string{"DataSet"},
			AttributeDefs: []catalog.AttributeDef{
				catalog.StringAttr("table_name", "string"),
				catalog.StringAttr("business_name", "string"),
				catalog.StringAttr("release_version", "string"),
				catalog.StringAttr("module_name", "string"),
				catalog.StringAttr("table_description", "string"),
				catalog.StringAttr("last_amended_date", "date"),
				catalog.StringAttr("amendment_logging", "boolean"),
				catalog.StringAttr("operational_security", "boolean"),
				catalog.StringAttr("document_folders", "boolean"),
			},
		},
		{
			Name:        QubeFieldType,
			Description: "QUBE data dictionary field specification",
			SuperTypes:  []string{"DataSet"},
			AttributeDefs: []catalog.AttributeDef{
				catalog.StringAttr("field_name", "string"),
				catalog.StringAttr("field_business_name", "string"),
				catalog.StringAttr("sequence_number", "int"),
				catalog.StringAttr("field_description", "string"),
				catalog.StringAttr("data_type", "string"),
				catalog.StringAttr("field_length", "int"),
				catalog.StringAttr("precision_value", "int"),
				catalog.StringAttr("scale_value", "int"),
				catalog.StringAttr("key_field", "int"),
				catalog.StringAttr("log_type", "string"),
				catalog.StringAttr("validation_rule", "string"),
				catalog.StringAttr("validation_code", "string"),
				catalog.StringAttr("nulls_allowed", "boolean"),
				catalog.StringAttr("required_field", "boolean"),
				catalog.StringAttr("field_last_amended", "date"),
				catalog.StringAttr("optimize_filtering", "boolean"),
				catalog.StringAttr("parent_table", QubeTableType),
			},
		},
	}
}

func (q *QubeIngester) registerTypes(ctx context.Context, _ string) error {
	err := q.Client.UploadTypeDefs(ctx, QubeTypeDefs(), nil)
	switch {
	case err == nil:
		q.Recorder.Inc(CounterTypeDefs, 2)
		q.Logger.Infof("Registered %s and %s", QubeTableType, QubeFieldType)
	case catalog.IsAlreadyExists(err):
		q.Logger.Infof("QUBE types already registered")
	default:
		return errors.Wrap(err, "registering QUBE types")
	}
	return nil
}

// TableQualifiedName returns "qube://<table>"
func TableQualifiedName(table string) string {
	return "qube://" + table
}

// FieldQualifiedName returns "qube://<table>/<field>"
func FieldQualifiedName(table, field string) string {
	return "qube://" + table + "/" + field
}

// createTables groups rows by table; the first row of a table supplies its
// attributes
func (q *QubeIngester) createTables(_ context.Context, _ string) error {
	seen := make(map[string]bool)
	q.tables = q.tables[:0]
	for _, r := range q.rows {
		if seen[r.Table] {
			continue
		}
		seen[r.Table] = true
		q.tables = append(q.tables, models.CatalogEntity{
			TypeName:      QubeTableType,
			QualifiedName: TableQualifiedName(r.Table),
			Name:          r.Table,
			Attributes:    r.tableAttrs,
		})
	}
	q.Recorder.Inc(CounterTables, len(q.tables))
	q.Logger.Infof("Created %d table entities", len(q.tables))
	return nil
}

func (q *QubeIngester) uploadTables(ctx context.Context, _ string) error {
	res, err := q.Populator.Populate(ctx, StageUploadTables, q.tables)
	q.Recorder.Inc(CounterCreated, res.Created)
	q.Recorder.Inc(CounterErrors, res.FailedBatches)
	return err
}

func (q *QubeIngester) createFields(_ context.Context, _ string) error {
	q.fields = q.fields[:0]
	for _, r := range q.rows {
		attrs := make(map[string]interface{}, len(r.fieldAttrs)+1)
		for k, v := range r.fieldAttrs {
			attrs[k] = v
		}
		attrs["parent_table"] = map[string]interface{}{
			"typeName":         QubeTableType,
			"uniqueAttributes": map[string]interface{}{"qualifiedName": TableQualifiedName(r.Table)},
		}
		q.fields = append(q.fields, models.CatalogEntity{
			TypeName:      QubeFieldType,
			QualifiedName: FieldQualifiedName(r.Table, r.Field),
			Name:          r.Field,
			Attributes:    attrs,
		})
	}
	q.Recorder.Inc(CounterFields, len(q.fields))
	q.Logger.Infof("Created %d field entities", len(q.fields))
	return nil
}

func (q *QubeIngester) uploadFields(ctx context.Context, _ string) error {
	res, err := q.Populator.Populate(ctx, StageUploadFields, q.fields)
	q.Recorder.Inc(CounterCreated, res.Created)
	q.Recorder.Inc(CounterErrors, res.FailedBatches)
	return err
}
