// Package scans reports failed data source scans.
package scans

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/purview-catalog-tools/internal/catalog"
	"github.com/vitebski/purview-catalog-tools/internal/report"
	"golang.org/x/sync/errgroup"
)

// StatusFailed is the run status reported
const StatusFailed = "Failed"

// Stage and counter names
const (
	StageScans    = "scan-report"
	CounterFailed = "failed_scan_runs"
)

// Client is the subset of the catalog session used for scans
type Client interface {
	ListDataSources(ctx context.Context) ([]string, error)
	ListScans(ctx context.Context, dataSource string) ([]string, error)
	ListScanRuns(ctx context.Context, dataSource, scan string) ([]catalog.ScanRun, error)
}

// FailedRun is one failed run in the report
type FailedRun struct {
	DataSource string `json:"Data Source Name"`
	Scan       string `json:"Scan Name"`
	RunID      string `json:"Failed Scan ID"`
	Status     string `json:"Status"`
	Error      string `json:"Error Message"`
}

// Report is the written document
type Report struct {
	FailedScans []FailedRun `json:"failed_scans"`
}

// DefaultFileName returns the dated report name, e.g. 2024_11_28_scan_errors.json
func DefaultFileName(now time.Time) string {
	return now.Format("2006_01_02") + "_scan_errors.json"
}

// Reporter walks every data source and scan to collect failed runs
type Reporter struct {
	Client   Client
	Workers  int
	Recorder *report.Recorder
	Logger   *logrus.Logger
}

// NewReporter creates a new failed scan reporter
func NewReporter(client Client, workers int, recorder *report.Recorder, logger *logrus.Logger) *Reporter {
	if workers < 1 {
		workers = 1
	}
	return &Reporter{Client: client, Workers: workers, Recorder: recorder, Logger: logger}
}

// Failed returns the failed runs of every scan, ordered by data source and
// scan. A data source whose scans cannot be listed is recorded and skipped.
func (r *Reporter) Failed(ctx context.Context) ([]FailedRun, error) {
	sources, err := r.Client.ListDataSources(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing data sources")
	}

	perSource := make([][]FailedRun, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.Workers)
	for i, ds := range sources {
		i, ds := i, ds
		g.Go(func() error {
			runs, err := r.failedFor(gctx, ds)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				r.Recorder.Fail(StageScans, ds, err)
			}
			perSource[i] = runs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []FailedRun
	for _, runs := range perSource {
		out = append(out, runs...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DataSource != out[j].DataSource {
			return out[i].DataSource < out[j].DataSource
		}
		return out[i].Scan < out[j].Scan
	})
	r.Recorder.Inc(CounterFailed, len(out))
	return out, nil
}

func (r *Reporter) failedFor(ctx context.Context, dataSource string) ([]FailedRun, error) {
	scans, err := r.Client.ListScans(ctx, dataSource)
	if err != nil {
		return nil, errors.Wrapf(err, "listing scans of %s", dataSource)
	}
	if len(scans) == 0 {
		r.Logger.Debugf("No scans found for data source %s", dataSource)
		return nil, nil
	}

	var out []FailedRun
	for _, scan := range scans {
		runs, err := r.Client.ListScanRuns(ctx, dataSource, scan)
		if err != nil {
			return out, errors.Wrapf(err, "listing runs of %s/%s", dataSource, scan)
		}
		for _, run := range runs {
			if run.Status != StatusFailed {
				continue
			}
			out = append(out, FailedRun{
				DataSource: dataSource,
				Scan:       scan,
				RunID:      run.RunID,
				Status:     run.Status,
				Error:      run.Error,
			})
		}
	}
	if len(out) > 0 {
		r.Logger.Infof("Found %d failed scan runs for data source %s", len(out), dataSource)
	}
	return out, nil
}

// Write stores the report as indented JSON
func Write(path string, runs []FailedRun) error {
	if runs == nil {
		runs = []FailedRun{}
	}
	data, err := json.MarshalIndent(Report{FailedScans: runs}, "", "    ")
	if err != nil {
		return errors.Wrap(err, "encoding scan report")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "creating %s", dir)
		}
	}
	return errors.Wrapf(os.WriteFile(path, data, 0o644), "writing %s", path)
}
