package lookup

import (
	"context"

	"github.com/agnivade/levenshtein"
	"github.com/pkg/errors"
)

// StrategyFuzzy is the name reported by the Fuzzy strategy
const StrategyFuzzy = "fuzzy"

// Fuzzy picks the candidate most similar to the query. It is meant for
// hand-curated inputs where names drift from the catalog.
type Fuzzy struct {
	Searcher Searcher
	// MinScore rejects best matches scoring below it
	MinScore float64
}

// NewFuzzy creates a new fuzzy strategy
func NewFuzzy(s Searcher, minScore float64) *Fuzzy {
	return &Fuzzy{Searcher: s, MinScore: minScore}
}

// Name returns the strategy name
func (f *Fuzzy) Name() string {
	return StrategyFuzzy
}

// Find resolves qualifiedName to the best scoring candidate
func (f *Fuzzy) Find(ctx context.Context, qualifiedName, typeName string) (Result, error) {
	hits, err := candidates(ctx, f.Searcher, qualifiedName, typeName)
	if err != nil {
		return Result{}, err
	}
	if len(hits) == 0 {
		return Result{}, errors.Wrapf(ErrNotFound, "%q", qualifiedName)
	}

	best := Result{Score: -1, Strategy: StrategyFuzzy}
	for _, h := range hits {
		score := Ratio(qualifiedName, h.QualifiedName)
		// first hit wins ties, matching the search ranking
		if score > best.Score {
			best.Entity = h.Entity()
			best.Score = score
		}
	}

	if best.Score < f.MinScore {
		return Result{}, errors.Wrapf(ErrNotFound, "%q: best score %.2f below %.2f", qualifiedName, best.Score, f.MinScore)
	}
	return best, nil
}

// Ratio returns a normalized similarity between 0 and 1
func Ratio(a, b string) float64 {
	total := len([]rune(a)) + len([]rune(b))
	if total == 0 {
		return 1
	}
	d := levenshtein.ComputeDistance(a, b)
	return float64(total-d) / float64(total)
}
