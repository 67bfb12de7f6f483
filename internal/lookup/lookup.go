package lookup

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/vitebski/purview-catalog-tools/internal/catalog"
	"github.com/vitebski/purview-catalog-tools/pkg/models"
)

// ErrNotFound is returned when no candidate matches the query
var ErrNotFound = catalog.ErrNotFound

// Searcher runs keyword queries against the catalog
type Searcher interface {
	Search(ctx context.Context, req catalog.SearchRequest) (*catalog.SearchPage, error)
}

// EntityGetter fetches entities by GUID
type EntityGetter interface {
	GetEntity(ctx context.Context, guid string) (*catalog.EntityDetail, error)
}

// Result is a resolved entity together with how it was found
type Result struct {
	Entity   models.CatalogEntity
	Score    float64
	Strategy string
}

// Strategy resolves a qualified name to a single catalog entity
type Strategy interface {
	Name() string
	Find(ctx context.Context, qualifiedName, typeName string) (Result, error)
}

// AmbiguousEntityError is returned when more than one candidate matches exactly
type AmbiguousEntityError struct {
	Query      string
	Candidates []string
}

func (e *AmbiguousEntityError) Error() string {
	return fmt.Sprintf("ambiguous match for %q: %s", e.Query, strings.Join(e.Candidates, ", "))
}

// candidates runs the search shared by both strategies
func candidates(ctx context.Context, s Searcher, query, typeName string) ([]catalog.SearchHit, error) {
	req := catalog.SearchRequest{Keywords: query, Limit: catalog.PageSize}
	if typeName != "" {
		req.Filter = map[string]interface{}{"entityType": typeName}
	}
	page, err := s.Search(ctx, req)
	if err != nil {
		return nil, errors.Wrapf(err, "search %q", query)
	}
	return page.Hits, nil
}

// ByGUID fetches an entity together with its referred entities (columns)
func ByGUID(ctx context.Context, g EntityGetter, guid string) (*catalog.EntityDetail, error) {
	detail, err := g.GetEntity(ctx, guid)
	if err != nil {
		return nil, err
	}
	return detail, nil
}
