package resolver

import (
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/purview-catalog-tools/internal/report"
	"github.com/vitebski/purview-catalog-tools/pkg/models"
)

// Skip reasons
const (
	ReasonFlatFile   = "flat file"
	ReasonUnmapped   = "unmapped server"
	ReasonIncomplete = "incomplete reference"
)

// Informatica lookup and source-qualifier transformations prefix the table name
var tablePrefixes = []string{"LKP_", "SQ_"}

// Resolver converts parsed references into catalog qualified names
type Resolver struct {
	Servers map[string]ServerRule
	Logger  *logrus.Logger

	mu      sync.Mutex
	skipped map[string]int
	warned  map[string]bool
}

// NewResolver creates a new resolver over a server table
func NewResolver(servers map[string]ServerRule, logger *logrus.Logger) *Resolver {
	return &Resolver{
		Servers: servers,
		Logger:  logger,
		skipped: make(map[string]int),
		warned:  make(map[string]bool),
	}
}

// Resolve returns the qualified name for ref. The second result is false when
// the reference was skipped; every skip is counted by reason.
func (r *Resolver) Resolve(ref models.ParsedReference) (string, bool) {
	server := strings.ToLower(strings.TrimSpace(ref.Server))
	if server == "" || server == "flat_file" || server == "flat file" {
		r.skip(ReasonFlatFile)
		return "", false
	}

	table := StripTablePrefix(strings.TrimSpace(ref.Table))
	if table == "" {
		r.skip(ReasonIncomplete)
		return "", false
	}

	rule, ok := r.Servers[server]
	if !ok {
		r.warnUnmapped(ref.Server)
		r.skip(ReasonUnmapped)
		return "", false
	}

	qn := rule.Format(strings.TrimSpace(ref.Schema), table)
	if ref.Column != "" {
		qn += "#" + ref.Column
	}
	return qn, true
}

// ResolvePair resolves both ends of a reference pair
func (r *Resolver) ResolvePair(pair models.ReferencePair) (string, string, bool) {
	src, ok := r.Resolve(pair.Source)
	if !ok {
		return "", "", false
	}
	dst, ok := r.Resolve(pair.Target)
	if !ok {
		return "", "", false
	}
	return src, dst, true
}

// Skipped returns the total number of skipped references
func (r *Resolver) Skipped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, n := range r.skipped {
		total += n
	}
	return total
}

// SkippedByReason returns a copy of the per-reason skip counters
func (r *Resolver) SkippedByReason() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.skipped))
	for k, v := range r.skipped {
		out[k] = v
	}
	return out
}

// CounterSkippedPrefix prefixes the per-reason skip counters of a run
const CounterSkippedPrefix = "references_skipped_"

// SkippedCounter returns the run counter name for a skip reason
func SkippedCounter(reason string) string {
	return CounterSkippedPrefix + strings.ReplaceAll(reason, " ", "_")
}

// RecordSkipped logs the skip counters at info level and adds them to the
// run's counters
func (r *Resolver) RecordSkipped(rec *report.Recorder) {
	counts := r.SkippedByReason()
	reasons := make([]string, 0, len(counts))
	for k := range counts {
		reasons = append(reasons, k)
	}
	sort.Strings(reasons)
	for _, k := range reasons {
		r.Logger.Infof("Skipped %d references: %s", counts[k], k)
		rec.Inc(SkippedCounter(k), counts[k])
	}
}

func (r *Resolver) skip(reason string) {
	r.mu.Lock()
	r.skipped[reason]++
	r.mu.Unlock()
}

// warnUnmapped logs once per server name
func (r *Resolver) warnUnmapped(server string) {
	r.mu.Lock()
	seen := r.warned[server]
	r.warned[server] = true
	r.mu.Unlock()
	if !seen {
		r.Logger.Warnf("No qualified name mapping for server %q, skipping its references", server)
	}
}

// StripTablePrefix removes the LKP_ and then the SQ_ transformation prefix
// from a table name. Matching is case-sensitive.
func StripTablePrefix(table string) string {
	for _, p := range tablePrefixes {
		table = strings.TrimPrefix(table, p)
	}
	return table
}
