package report

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/purview-catalog-tools/pkg/models"
)

// Recorder accumulates counters and stage errors for one run. It is safe
// for concurrent use.
type Recorder struct {
	mu        sync.Mutex
	runID     string
	name      string
	startedAt time.Time
	counts    map[string]int
	errs      []*models.StageError
	Logger    *logrus.Logger
}

// NewRecorder creates a recorder for the named run
func NewRecorder(name string, logger *logrus.Logger) *Recorder {
	return &Recorder{
		runID:     uuid.NewString(),
		name:      name,
		startedAt: time.Now(),
		counts:    make(map[string]int),
		Logger:    logger,
	}
}

// Inc adds n to the named counter
func (r *Recorder) Inc(counter string, n int) {
	r.mu.Lock()
	r.counts[counter] += n
	r.mu.Unlock()
}

// Count returns the current value of a counter
func (r *Recorder) Count(counter string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[counter]
}

// Fail records a stage error and logs it
func (r *Recorder) Fail(stage, itemKey string, cause error) {
	se := &models.StageError{Stage: stage, ItemKey: itemKey, Cause: cause}
	r.mu.Lock()
	r.errs = append(r.errs, se)
	r.mu.Unlock()
	if r.Logger != nil {
		r.Logger.Errorf("%v", se)
	}
}

// Errors returns a copy of the recorded stage errors
func (r *Recorder) Errors() []*models.StageError {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.StageError, len(r.errs))
	copy(out, r.errs)
	return out
}

// Summary snapshots the recorder into a RunSummary
func (r *Recorder) Summary() models.RunSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[string]int, len(r.counts))
	for k, v := range r.counts {
		counts[k] = v
	}
	entries := make([]models.ErrorEntry, 0, len(r.errs))
	for _, e := range r.errs {
		cause := ""
		if e.Cause != nil {
			cause = e.Cause.Error()
		}
		entries = append(entries, models.ErrorEntry{Stage: e.Stage, ItemKey: e.ItemKey, Cause: cause})
	}

	return models.RunSummary{
		RunID:      r.runID,
		Name:       r.name,
		StartedAt:  r.startedAt,
		FinishedAt: time.Now(),
		Counts:     counts,
		Errors:     entries,
	}
}

// WriteJSON writes the summary to path
func (r *Recorder) WriteJSON(path string) error {
	data, err := json.MarshalIndent(r.Summary(), "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding run summary")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "writing run summary to %s", path)
	}
	return nil
}
