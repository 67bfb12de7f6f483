package catalog

import (
	"context"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"
)

// ScanRun is one execution of a data source scan
type ScanRun struct {
	DataSource string `json:"dataSource"`
	Scan       string `json:"scan"`
	RunID      string `json:"runId"`
	Status     string `json:"status"`
	StartTime  string `json:"startTime"`
	EndTime    string `json:"endTime"`
	Error      string `json:"error,omitempty"`
}

func (s *Session) listNames(ctx context.Context, path string) ([]string, error) {
	body, err := s.Do(ctx, RequestOptions{
		Method: http.MethodGet,
		Path:   path,
		Query:  apiVersion(scanAPIVersion),
		Scan:   true,
	})
	if err != nil {
		return nil, err
	}
	var names []string
	gjson.GetBytes(body, "value.#.name").ForEach(func(_, v gjson.Result) bool {
		names = append(names, v.String())
		return true
	})
	return names, nil
}

// ListDataSources returns the names of all registered data sources
func (s *Session) ListDataSources(ctx context.Context) ([]string, error) {
	return s.listNames(ctx, "/datasources")
}

// ListScans returns the scan names of a data source
func (s *Session) ListScans(ctx context.Context, dataSource string) ([]string, error) {
	return s.listNames(ctx, "/datasources/"+url.PathEscape(dataSource)+"/scans")
}

// ListScanRuns returns the run history of a scan
func (s *Session) ListScanRuns(ctx context.Context, dataSource, scan string) ([]ScanRun, error) {
	body, err := s.Do(ctx, RequestOptions{
		Method: http.MethodGet,
		Path:   "/datasources/" + url.PathEscape(dataSource) + "/scans/" + url.PathEscape(scan) + "/runs",
		Query:  apiVersion(scanAPIVersion),
		Scan:   true,
	})
	if err != nil {
		return nil, err
	}

	var runs []ScanRun
	gjson.GetBytes(body, "value").ForEach(func(_, v gjson.Result) bool {
		msg := v.Get("errorMessage").String()
		if msg == "" {
			msg = v.Get("error.message").String()
		}
		runs = append(runs, ScanRun{
			DataSource: dataSource,
			Scan:       scan,
			RunID:      v.Get("id").String(),
			Status:     v.Get("status").String(),
			StartTime:  v.Get("startTime").String(),
			EndTime:    v.Get("endTime").String(),
			Error:      msg,
		})
		return true
	})
	return runs, nil
}
