package lineage

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/purview-catalog-tools/internal/catalog"
	"github.com/vitebski/purview-catalog-tools/internal/lookup"
	"github.com/vitebski/purview-catalog-tools/internal/resolver"
	"github.com/vitebski/purview-catalog-tools/pkg/models"
)

// Linker stages and counters
const (
	StageResolve      = "lineage-resolve"
	StageRelationship = "lineage-relationship"

	CounterUnresolved = "endpoints_unresolved"
	CounterSameEntity = "edges_same_entity"
	CounterRelations  = "relationships_written"
)

// SynonymType is the entity type linked by relationship instead of process
const SynonymType = "oracle_synonym"

// SynonymRelationship is the relationship type between a synonym and its source
const SynonymRelationship = "oracle_synonym_source_synonym"

// RelationshipUploader creates Atlas relationships
type RelationshipUploader interface {
	UploadRelationship(ctx context.Context, rel catalog.Relationship) error
}

// Linker turns extracted names into catalog entities and writes the edges
// between them
type Linker struct {
	Writer    *Writer
	Finder    lookup.Strategy
	Relations RelationshipUploader
	// Prefix is prepended to relative paths such as "schema/table"
	Prefix string
	Logger *logrus.Logger

	mu       sync.Mutex
	resolved map[string]models.CatalogEntity
}

// NewLinker creates a new linker
func NewLinker(writer *Writer, finder lookup.Strategy, relations RelationshipUploader, prefix string, logger *logrus.Logger) *Linker {
	return &Linker{
		Writer:    writer,
		Finder:    finder,
		Relations: relations,
		Prefix:    prefix,
		Logger:    logger,
		resolved:  make(map[string]models.CatalogEntity),
	}
}

// QualifiedName expands a relative path with the linker prefix. Names that
// already carry a scheme are returned as-is.
func (l *Linker) QualifiedName(path string) string {
	if strings.Contains(path, "://") {
		return path
	}
	return l.Prefix + strings.TrimPrefix(path, "/")
}

// Resolve finds the entity behind a path or qualified name. Failures are
// recorded against the qualified name.
func (l *Linker) Resolve(ctx context.Context, path string) (models.CatalogEntity, error) {
	qn := l.QualifiedName(path)
	l.mu.Lock()
	e, ok := l.resolved[qn]
	l.mu.Unlock()
	if ok {
		return e, nil
	}

	res, err := l.Finder.Find(ctx, qn, "")
	if err != nil {
		l.Writer.Recorder.Inc(CounterUnresolved, 1)
		l.Writer.Recorder.Fail(StageResolve, qn, err)
		return models.CatalogEntity{}, err
	}
	l.Writer.Cache.Put(res.Entity.QualifiedName, res.Entity.GUID)
	l.mu.Lock()
	l.resolved[qn] = res.Entity
	l.mu.Unlock()
	return res.Entity, nil
}

// Link resolves both paths and writes the edge between them. Edges from an
// entity to itself are skipped.
func (l *Linker) Link(ctx context.Context, source, target string, pt models.ProcessType) error {
	src, err := l.Resolve(ctx, source)
	if err != nil {
		return err
	}
	dst, err := l.Resolve(ctx, target)
	if err != nil {
		return err
	}
	return l.LinkEntities(ctx, src, dst, pt)
}

// LinkEntities writes an edge between two resolved entities
func (l *Linker) LinkEntities(ctx context.Context, src, dst models.CatalogEntity, pt models.ProcessType) error {
	if src.GUID != "" && src.GUID == dst.GUID {
		l.Logger.Debugf("Skipping edge from %s to itself", src.QualifiedName)
		l.Writer.Recorder.Inc(CounterSameEntity, 1)
		return nil
	}
	return l.Writer.Write(ctx, NewEdge([]models.CatalogEntity{src}, []models.CatalogEntity{dst}, pt))
}

// LinkReferences resolves parsed references through the server table and
// links every source to every target. Synonym ends are joined by
// relationship instead of process.
func (l *Linker) LinkReferences(ctx context.Context, res *resolver.Resolver, sources, targets []models.ParsedReference, pt models.ProcessType) {
	resolveAll := func(refs []models.ParsedReference) []models.CatalogEntity {
		var out []models.CatalogEntity
		for _, ref := range refs {
			qn, ok := res.Resolve(ref)
			if !ok {
				continue
			}
			e, err := l.Resolve(ctx, qn)
			if err != nil {
				continue
			}
			out = append(out, e)
		}
		return out
	}

	srcs := resolveAll(sources)
	dsts := resolveAll(targets)
	for _, src := range srcs {
		for _, dst := range dsts {
			if ctx.Err() != nil {
				return
			}
			if src.TypeName == SynonymType || dst.TypeName == SynonymType {
				l.linkSynonym(ctx, src, dst)
				continue
			}
			_ = l.LinkEntities(ctx, src, dst, pt)
		}
	}
}

func (l *Linker) linkSynonym(ctx context.Context, src, dst models.CatalogEntity) {
	if src.GUID == dst.GUID {
		l.Writer.Recorder.Inc(CounterSameEntity, 1)
		return
	}
	key := src.QualifiedName + " -> " + dst.QualifiedName
	err := l.Relations.UploadRelationship(ctx, catalog.Relationship{TypeName: SynonymRelationship, End1: src, End2: dst})
	switch {
	case err == nil:
		l.Writer.Recorder.Inc(CounterRelations, 1)
		l.Logger.Infof("Synonym relationship built: %s", key)
	case catalog.IsAlreadyExists(err):
		l.Writer.Recorder.Inc(CounterSkipped, 1)
	default:
		l.Writer.Recorder.Fail(StageRelationship, key, errors.Wrap(err, "uploading synonym relationship"))
	}
}
