// Package glossary propagates business glossary terms onto catalog columns
// and exports the glossary.
package glossary

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/purview-catalog-tools/internal/catalog"
	"github.com/vitebski/purview-catalog-tools/internal/report"
	"github.com/vitebski/purview-catalog-tools/internal/snapshot"
	"github.com/vitebski/purview-catalog-tools/internal/tabular"
)

// Import sheet columns
const (
	ColumnTermName = "Nick Name"
	ColumnKeys     = "[Attribute][Business Glossary]System-Table-Field"
)

// Stages and counters
const (
	StagePropagate = "glossary-propagate"

	CounterTermsAssigned    = "terms_assigned"
	CounterEntitiesAssigned = "entities_assigned"
	CounterTermsUnmatched   = "terms_unmatched"
)

// Term is a glossary term with the System-Table-Field keys it applies to.
// Number is its 1-based position in the import sheet.
type Term struct {
	Number int
	Name   string
	Keys   []string
}

// MatchKey builds the System-Table-Field key of a column
func MatchKey(entity, column string) string {
	return "MDG-" + strings.TrimSpace(entity) + "-" + column
}

// ReadTerms loads the glossary import sheet. Rows without keys are skipped;
// rows repeating a term name add keys to the first one.
func ReadTerms(path, sheet string) ([]Term, error) {
	t, err := tabular.Read(path, tabular.Options{Sheet: sheet})
	if err != nil {
		return nil, err
	}
	if err := t.Require(ColumnTermName, ColumnKeys); err != nil {
		return nil, err
	}

	var terms []Term
	index := map[string]int{}
	for _, r := range t.Rows {
		name, keys := r.Get(ColumnTermName), r.Get(ColumnKeys)
		if name == "" || keys == "" {
			continue
		}
		i, ok := index[name]
		if !ok {
			i = len(terms)
			index[name] = i
			terms = append(terms, Term{Number: i + 1, Name: name})
		}
		for _, k := range strings.Split(keys, ",") {
			if k = strings.TrimSpace(k); k != "" {
				terms[i].Keys = append(terms[i].Keys, k)
			}
		}
	}
	return terms, nil
}

// Match is a term with the columns found for it
type Match struct {
	Term
	GUIDs   []string
	Columns []string
}

// MatchColumns finds, for every term, the column and entity GUIDs whose
// System-Table-Field key it lists. A key listed by several terms belongs
// to the last one.
func MatchColumns(terms []Term, entities []snapshot.Entity) []Match {
	owner := map[string]int{}
	for i, t := range terms {
		for _, k := range t.Keys {
			owner[k] = i
		}
	}

	matches := make([]Match, len(terms))
	seenGUID := make([]map[string]bool, len(terms))
	seenCol := make([]map[string]bool, len(terms))
	for i, t := range terms {
		matches[i] = Match{Term: t}
		seenGUID[i] = map[string]bool{}
		seenCol[i] = map[string]bool{}
	}

	for _, e := range entities {
		for _, c := range e.Columns {
			i, ok := owner[MatchKey(e.Name, c.Name)]
			if !ok {
				continue
			}
			for _, g := range []string{c.GUID, e.GUID} {
				if g != "" && !seenGUID[i][g] {
					seenGUID[i][g] = true
					matches[i].GUIDs = append(matches[i].GUIDs, g)
				}
			}
			if !seenCol[i][c.Name] {
				seenCol[i][c.Name] = true
				matches[i].Columns = append(matches[i].Columns, c.Name)
			}
		}
	}
	return matches
}

// Client is the subset of the catalog session used to assign terms
type Client interface {
	FindTerm(ctx context.Context, glossaryName, termName string) (catalog.GlossaryTermRef, error)
	AssignTerm(ctx context.Context, termGUID string, entityGUIDs []string) error
}

// Propagator assigns the matched terms inside the configured term window
type Propagator struct {
	Client   Client
	Glossary string
	Start    int
	End      int
	Recorder *report.Recorder
	Logger   *logrus.Logger
}

// NewPropagator creates a new propagator for terms start..end, inclusive
func NewPropagator(client Client, glossary string, start, end int, recorder *report.Recorder, logger *logrus.Logger) *Propagator {
	return &Propagator{
		Client:   client,
		Glossary: glossary,
		Start:    start,
		End:      end,
		Recorder: recorder,
		Logger:   logger,
	}
}

// InWindow reports whether a term number lies in start..end
func (p *Propagator) InWindow(number int) bool {
	return number >= p.Start && number <= p.End
}

// Propagate assigns every matched term in the window to its column and
// entity GUIDs and writes the results log to w. Failures are recorded per
// term and do not stop the run.
func (p *Propagator) Propagate(ctx context.Context, matches []Match, now time.Time, w io.Writer) error {
	fmt.Fprintf(w, "Last propagated on: %s\n", now.Format(snapshot.TimeLayout))
	fmt.Fprintf(w, "Ran for Glossary Terms %d to %d\n", p.Start, p.End)
	fmt.Fprintln(w, "_____________________________________________________________")
	fmt.Fprintln(w)

	for _, m := range matches {
		if !p.InWindow(m.Number) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprintf(w, "Glossary Term Number: %d\n", m.Number)

		if len(m.GUIDs) == 0 {
			fmt.Fprintf(w, "No matches for glossary term, %s\n", m.Name)
			p.Recorder.Inc(CounterTermsUnmatched, 1)
			continue
		}

		if err := p.assign(ctx, m); err != nil {
			p.Recorder.Fail(StagePropagate, m.Name, err)
			fmt.Fprintf(w, "Error assigning glossary term, %s: %v\n\n", m.Name, err)
			continue
		}
		p.Recorder.Inc(CounterTermsAssigned, 1)
		p.Recorder.Inc(CounterEntitiesAssigned, len(m.GUIDs))
		p.Logger.Infof("Assigned glossary term %s to %d entities", m.Name, len(m.GUIDs))

		fmt.Fprintf(w, "Assigned glossary term, %s, to %d entities\n", m.Name, len(m.GUIDs))
		fmt.Fprintln(w, "Unique column names that the glossary term was applied to:")
		for _, c := range m.Columns {
			fmt.Fprintf(w, "   %s\n", c)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func (p *Propagator) assign(ctx context.Context, m Match) error {
	ref, err := p.Client.FindTerm(ctx, p.Glossary, m.Name)
	if err != nil {
		return err
	}
	err = p.Client.AssignTerm(ctx, ref.GUID, m.GUIDs)
	if catalog.IsAlreadyExists(err) {
		p.Logger.Debugf("Glossary term %s already assigned", m.Name)
		return nil
	}
	return errors.Wrapf(err, "assigning %s", m.Name)
}
