package lineage

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"github.com/vitebski/purview-catalog-tools/internal/catalog"
	"github.com/vitebski/purview-catalog-tools/internal/config"
	"github.com/vitebski/purview-catalog-tools/internal/extractor"
	"github.com/vitebski/purview-catalog-tools/pkg/models"
)

// Asset stages and counters
const (
	StageAssets = "asset-upload"

	CounterAssets = "entities_uploaded"
)

// Cube relationship types
const (
	CubeSchemaRelationship = "tabular_schema_datasets"
	CubeColumnRelationship = "tabular_schema_columns"
)

// UploadAssets upserts entities in one bulk call and remembers the GUIDs the
// service assigns. itemKey names the group in recorded failures.
func (w *Writer) UploadAssets(ctx context.Context, itemKey string, entities []models.CatalogEntity) error {
	if len(entities) == 0 {
		return nil
	}
	payload := make([]models.CatalogEntity, len(entities))
	for i, e := range entities {
		if !e.HasGUID() {
			e.GUID = "-" + strconv.Itoa(i+1)
		}
		payload[i] = e
	}

	result, err := w.Client.UploadEntities(ctx, payload)
	if err != nil {
		err = errors.Wrapf(err, "uploading %s", itemKey)
		w.Recorder.Fail(StageAssets, itemKey, err)
		return err
	}
	for _, e := range payload {
		guid := e.GUID
		if assigned, ok := result.GUIDAssignments[guid]; ok {
			guid = assigned
		}
		w.Cache.Put(e.QualifiedName, guid)
	}
	w.Recorder.Inc(CounterAssets, len(payload))
	return nil
}

// known returns e carrying its cached GUID when one is known
func (w *Writer) known(e models.CatalogEntity) models.CatalogEntity {
	if guid, ok := w.Cache.Get(e.QualifiedName); ok {
		e.GUID = guid
	}
	return e
}

// WriteHana uploads a DSP view, its sources and their columns, then links
// every source to the view. DSP edges are never duplicated regardless of
// the configured write mode.
func (w *Writer) WriteHana(ctx context.Context, header string, def *extractor.HanaDefinition) error {
	objects := append([]extractor.HanaObject{def.Target}, def.Sources...)
	for _, obj := range objects {
		if err := w.UploadAssets(ctx, obj.QualifiedName(header), obj.Entities(header)); err != nil {
			return err
		}
	}

	dsp := *w
	dsp.Mode = config.WriteModeCreateOrSkip

	target := w.known(def.Target.Entities(header)[0])
	var firstErr error
	for _, src := range def.Sources {
		source := w.known(src.Entities(header)[0])
		edge := NewEdge([]models.CatalogEntity{source}, []models.CatalogEntity{target}, models.DSPConnection)
		edge.QualifiedName = DSPQualifiedName(src.Schema, src.Name, def.Target.Schema, def.Target.Name)
		edge.Name = edge.QualifiedName
		if err := dsp.Write(ctx, edge); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// WriteCube uploads a cube with its tabular schema and dimension columns and
// relates them. When datasetQN is set, the cube is linked to that dataset.
func (l *Linker) WriteCube(ctx context.Context, cube string, dims []extractor.CubeDimension, datasetQN string) error {
	dataset, schema, columns := extractor.CubeEntities(cube, dims)
	all := append([]models.CatalogEntity{dataset, schema}, columns...)
	if err := l.Writer.UploadAssets(ctx, extractor.CubeQualifiedName(cube), all); err != nil {
		return err
	}

	dataset = l.Writer.known(dataset)
	schema = l.Writer.known(schema)
	l.relate(ctx, CubeSchemaRelationship, dataset, schema)
	for _, c := range columns {
		l.relate(ctx, CubeColumnRelationship, schema, l.Writer.known(c))
	}

	if datasetQN == "" {
		return nil
	}
	target, err := l.Resolve(ctx, datasetQN)
	if err != nil {
		return err
	}
	return l.LinkEntities(ctx, dataset, target, models.CubeToPBI)
}

func (l *Linker) relate(ctx context.Context, typeName string, end1, end2 models.CatalogEntity) {
	err := l.Relations.UploadRelationship(ctx, catalog.Relationship{TypeName: typeName, End1: end1, End2: end2})
	switch {
	case err == nil:
		l.Writer.Recorder.Inc(CounterRelations, 1)
	case catalog.IsAlreadyExists(err):
		l.Logger.Debugf("Relationship %s already exists: %s -> %s", typeName, end1.QualifiedName, end2.QualifiedName)
	default:
		l.Writer.Recorder.Fail(StageRelationship, end1.QualifiedName+" -> "+end2.QualifiedName,
			errors.Wrapf(err, "uploading %s relationship", typeName))
	}
}
