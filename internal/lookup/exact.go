package lookup

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// StrategyExact is the name reported by the Exact strategy
const StrategyExact = "exact"

// Exact selects the single candidate whose qualified name contains the
// query and is either the same length or one separator longer
type Exact struct {
	Searcher Searcher
}

// NewExact creates a new exact-match strategy
func NewExact(s Searcher) *Exact {
	return &Exact{Searcher: s}
}

// Name returns the strategy name
func (x *Exact) Name() string {
	return StrategyExact
}

// Find resolves qualifiedName, optionally restricted to typeName
func (x *Exact) Find(ctx context.Context, qualifiedName, typeName string) (Result, error) {
	hits, err := candidates(ctx, x.Searcher, qualifiedName, typeName)
	if err != nil {
		return Result{}, err
	}

	var matches []Result
	var names []string
	for _, h := range hits {
		if !ExactMatch(qualifiedName, h.QualifiedName) {
			continue
		}
		matches = append(matches, Result{Entity: h.Entity(), Score: 1, Strategy: StrategyExact})
		names = append(names, h.QualifiedName)
	}

	switch len(matches) {
	case 0:
		return Result{}, errors.Wrapf(ErrNotFound, "%q", qualifiedName)
	case 1:
		return matches[0], nil
	default:
		return Result{}, &AmbiguousEntityError{Query: qualifiedName, Candidates: names}
	}
}

// ExactMatch reports whether candidate is an exact-length match for query.
// Queries are often lower-cased so the comparison ignores case, and the one
// extra character allowed must be a path separator.
func ExactMatch(query, candidate string) bool {
	q := strings.ToLower(query)
	c := strings.ToLower(candidate)
	switch len(c) {
	case len(q):
		return c == q
	case len(q) + 1:
		return strings.Contains(c, q) && (c[len(c)-1] == '/' || c[0] == '/')
	}
	return false
}
