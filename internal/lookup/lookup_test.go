package lookup

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitebski/purview-catalog-tools/internal/catalog"
)

type fakeSearcher struct {
	hits []catalog.SearchHit
	err  error
	last catalog.SearchRequest
}

func (f *fakeSearcher) Search(_ context.Context, req catalog.SearchRequest) (*catalog.SearchPage, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &catalog.SearchPage{Count: len(f.hits), Hits: f.hits}, nil
}

func hits(names ...string) []catalog.SearchHit {
	var out []catalog.SearchHit
	for i, n := range names {
		out = append(out, catalog.SearchHit{ID: string(rune('a' + i)), QualifiedName: n, EntityType: "t"})
	}
	return out
}

func TestExactSelectsSameLength(t *testing.T) {
	s := &fakeSearcher{hits: hits("a/b/cc", "a/b/c")}
	res, err := NewExact(s).Find(context.Background(), "a/b/c", "")
	require.NoError(t, err)
	assert.Equal(t, "a/b/c", res.Entity.QualifiedName)
	assert.Equal(t, StrategyExact, res.Strategy)
	assert.Nil(t, s.last.Filter)
}

func TestExactToleratesTrailingSeparator(t *testing.T) {
	s := &fakeSearcher{hits: hits("mssql://srv/db/T/", "mssql://srv/db/TT/x")}
	res, err := NewExact(s).Find(context.Background(), "mssql://srv/db/T", "azure_sql_table")
	require.NoError(t, err)
	assert.Equal(t, "mssql://srv/db/T/", res.Entity.QualifiedName)
	assert.Equal(t, "azure_sql_table", s.last.Filter["entityType"])
}

func TestExactIgnoresCase(t *testing.T) {
	s := &fakeSearcher{hits: hits("mssql://SRV/DB/Orders")}
	res, err := NewExact(s).Find(context.Background(), "mssql://srv/db/orders", "")
	require.NoError(t, err)
	assert.Equal(t, "mssql://SRV/DB/Orders", res.Entity.QualifiedName)
}

func TestExactAmbiguous(t *testing.T) {
	s := &fakeSearcher{hits: hits("a/b/c", "a/b/c/")}
	_, err := NewExact(s).Find(context.Background(), "a/b/c", "")
	require.Error(t, err)

	var amb *AmbiguousEntityError
	require.True(t, errors.As(err, &amb))
	assert.Equal(t, []string{"a/b/c", "a/b/c/"}, amb.Candidates)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestExactNotFound(t *testing.T) {
	s := &fakeSearcher{hits: hits("a/b/cc", "x/a/b/c")}
	_, err := NewExact(s).Find(context.Background(), "a/b/c", "")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, catalog.IsNotFound(err))
}

func TestExactPropagatesSearchErrors(t *testing.T) {
	s := &fakeSearcher{err: &catalog.APIError{StatusCode: 500}}
	_, err := NewExact(s).Find(context.Background(), "a", "")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.True(t, catalog.IsRetryable(err))
}

func TestFuzzyPicksBestScore(t *testing.T) {
	s := &fakeSearcher{hits: hits("sales/orders_archive", "sales/order", "hr/people")}
	res, err := NewFuzzy(s, 0).Find(context.Background(), "sales/orders", "")
	require.NoError(t, err)
	assert.Equal(t, "sales/order", res.Entity.QualifiedName)
	assert.Equal(t, StrategyFuzzy, res.Strategy)
	assert.Greater(t, res.Score, 0.9)
}

func TestFuzzyEmptyPool(t *testing.T) {
	_, err := NewFuzzy(&fakeSearcher{}, 0).Find(context.Background(), "x", "")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFuzzyMinScore(t *testing.T) {
	s := &fakeSearcher{hits: hits("zzzz")}
	_, err := NewFuzzy(s, 0.8).Find(context.Background(), "abcd", "")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRatio(t *testing.T) {
	assert.Equal(t, 1.0, Ratio("", ""))
	assert.Equal(t, 1.0, Ratio("abc", "abc"))
	assert.Equal(t, 0.5, Ratio("abc", "xyz"))
	assert.InDelta(t, 6.0/7.0, Ratio("abcd", "abc"), 1e-9)
}

func TestStrategiesShareInterface(t *testing.T) {
	s := &fakeSearcher{hits: hits("a/b/c")}
	for _, st := range []Strategy{NewExact(s), NewFuzzy(s, 0)} {
		res, err := st.Find(context.Background(), "a/b/c", "")
		require.NoError(t, err, st.Name())
		assert.Equal(t, "a/b/c", res.Entity.QualifiedName)
	}
}
