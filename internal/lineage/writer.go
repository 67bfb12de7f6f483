package lineage

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/purview-catalog-tools/internal/catalog"
	"github.com/vitebski/purview-catalog-tools/internal/config"
	"github.com/vitebski/purview-catalog-tools/internal/report"
	"github.com/vitebski/purview-catalog-tools/internal/resolver"
	"github.com/vitebski/purview-catalog-tools/pkg/models"
)

// Stage names recorded by the writer
const (
	StageWrite    = "lineage-write"
	StageDescribe = "lineage-describe"
)

// Counters maintained by the writer
const (
	CounterWritten = "edges_written"
	CounterSkipped = "edges_skipped"
	CounterFailed  = "edges_failed"
)

// Client is the subset of the catalog session the writer uses
type Client interface {
	UploadEntities(ctx context.Context, entities []models.CatalogEntity) (*catalog.MutationResult, error)
	GetEntity(ctx context.Context, guid string) (*catalog.EntityDetail, error)
	GetEntityByQualifiedName(ctx context.Context, typeName, qualifiedName string) (*catalog.EntityDetail, error)
	SearchAll(ctx context.Context, req catalog.SearchRequest) ([]catalog.SearchHit, error)
	UpdateEntityAttribute(ctx context.Context, guid, name string, value interface{}) error
}

// Writer persists lineage edges together with their endpoints
type Writer struct {
	Client   Client
	Mode     string
	Recorder *report.Recorder
	Cache    *resolver.NameCache
	Logger   *logrus.Logger
}

// NewWriter creates a new lineage writer
func NewWriter(client Client, mode string, recorder *report.Recorder, cache *resolver.NameCache, logger *logrus.Logger) *Writer {
	if mode == "" {
		mode = config.WriteModeCreateOrSkip
	}
	if cache == nil {
		cache = resolver.NewNameCache()
	}
	return &Writer{
		Client:   client,
		Mode:     mode,
		Recorder: recorder,
		Cache:    cache,
		Logger:   logger,
	}
}

// Write uploads the edge and its endpoints in one bulk call. Terminal
// failures are recorded and returned; callers usually continue.
func (w *Writer) Write(ctx context.Context, edge models.LineageEdge) error {
	if edge.QualifiedName == "" {
		edge.QualifiedName = EdgeQualifiedName(edge.Sources, edge.Targets, edge.ProcessType)
	}
	if edge.Name == "" {
		edge.Name = edge.QualifiedName
	}
	if edge.Description == "" {
		edge.Description = DefaultDescription(edge.Sources, edge.Targets)
	}

	if w.Mode == config.WriteModeCreateOrSkip {
		exists, err := w.exists(ctx, edge)
		if err != nil {
			w.fail(edge.QualifiedName, err)
			return err
		}
		if exists {
			w.Logger.Debugf("Lineage already exists: %s", edge.QualifiedName)
			w.Recorder.Inc(CounterSkipped, 1)
			return nil
		}
	}

	payload := w.buildPayload(edge)
	result, err := w.Client.UploadEntities(ctx, payload)
	if err != nil {
		err = errors.Wrapf(err, "uploading %s", edge.QualifiedName)
		w.fail(edge.QualifiedName, err)
		return err
	}

	for _, e := range payload {
		guid := e.GUID
		if assigned, ok := result.GUIDAssignments[guid]; ok {
			guid = assigned
		}
		w.Cache.Put(e.QualifiedName, guid)
	}
	w.Recorder.Inc(CounterWritten, 1)
	w.Logger.Infof("Lineage built: %s", edge.QualifiedName)
	return nil
}

// exists reports whether the process is already in the catalog, checking
// the run cache before the service
func (w *Writer) exists(ctx context.Context, edge models.LineageEdge) (bool, error) {
	if _, ok := w.Cache.Get(edge.QualifiedName); ok {
		return true, nil
	}
	detail, err := w.Client.GetEntityByQualifiedName(ctx, string(edge.ProcessType), edge.QualifiedName)
	if err != nil {
		if catalog.IsNotFound(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "checking %s", edge.QualifiedName)
	}
	w.Cache.Put(edge.QualifiedName, detail.Entity.GUID)
	return true, nil
}

// buildPayload orders targets, sources and then the process. Endpoints
// without a known GUID get negative placeholders so the process can refer
// to them within the same upload.
func (w *Writer) buildPayload(edge models.LineageEdge) []models.CatalogEntity {
	next := 0
	placeholder := func() string {
		next++
		return "-" + strconv.Itoa(next)
	}
	prepare := func(list []models.CatalogEntity) []models.CatalogEntity {
		out := make([]models.CatalogEntity, 0, len(list))
		for _, e := range list {
			if e.HasGUID() {
				// existing entities are referenced, not rewritten
				e = models.CatalogEntity{GUID: e.GUID, TypeName: e.TypeName, QualifiedName: e.QualifiedName, Name: e.Name}
			} else {
				if guid, ok := w.Cache.Get(e.QualifiedName); ok {
					e.GUID = guid
				} else {
					e.GUID = placeholder()
				}
			}
			out = append(out, e)
		}
		return out
	}

	targets := prepare(edge.Targets)
	sources := prepare(edge.Sources)

	attrs := map[string]interface{}{
		"inputs":  objectIDs(sources),
		"outputs": objectIDs(targets),
	}
	if edge.Description != "" {
		attrs["description"] = edge.Description
	}
	for k, v := range edge.Attributes {
		attrs[k] = v
	}

	process := models.CatalogEntity{
		GUID:          placeholder(),
		TypeName:      string(edge.ProcessType),
		QualifiedName: edge.QualifiedName,
		Name:          edge.Name,
		Attributes:    attrs,
	}

	payload := make([]models.CatalogEntity, 0, len(targets)+len(sources)+1)
	payload = append(payload, targets...)
	payload = append(payload, sources...)
	return append(payload, process)
}

func objectIDs(entities []models.CatalogEntity) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(entities))
	for _, e := range entities {
		out = append(out, catalog.ObjectID(e))
	}
	return out
}

func (w *Writer) fail(itemKey string, err error) {
	w.Recorder.Inc(CounterFailed, 1)
	w.Recorder.Fail(StageWrite, itemKey, err)
}
