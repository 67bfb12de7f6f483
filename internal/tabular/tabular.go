// Package tabular reads CSV and Excel dictionaries into header-keyed rows.
package tabular

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

// ErrFileNotFound is returned when the input file does not exist
var ErrFileNotFound = errors.New("input file not found")

// MissingColumnError is returned when required headers are absent
type MissingColumnError struct {
	Path    string
	Columns []string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("%s: missing required columns: %s", e.Path, strings.Join(e.Columns, ", "))
}

// Table is a header row plus data rows keyed by header
type Table struct {
	Path    string
	Headers []string
	Rows    []Row
}

// Row is one data row. Line is the 1-based data row number.
type Row struct {
	Line   int
	Values map[string]string
}

// Get returns the trimmed value of a column
func (r Row) Get(column string) string {
	return strings.TrimSpace(r.Values[column])
}

// Options controls how a file is read
type Options struct {
	// Sheet selects an Excel sheet; the first sheet is used when empty
	Sheet string
	// Comma overrides the CSV delimiter
	Comma rune
}

// Read loads a .csv, .xlsx or .xlsm file
func Read(path string, opts Options) (*Table, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(ErrFileNotFound, path)
		}
		return nil, errors.Wrapf(err, "stat %s", path)
	}

	var records [][]string
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		records, err = readExcel(path, opts.Sheet)
	default:
		records, err = readCSV(path, opts.Comma)
	}
	if err != nil {
		return nil, err
	}
	return fromRecords(path, records), nil
}

// Require checks that every column is present in the header row
func (t *Table) Require(columns ...string) error {
	have := make(map[string]bool, len(t.Headers))
	for _, h := range t.Headers {
		have[h] = true
	}
	var missing []string
	for _, c := range columns {
		if !have[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return &MissingColumnError{Path: t.Path, Columns: missing}
	}
	return nil
}

// UpperHeaders upper-cases every header and row key
func (t *Table) UpperHeaders() {
	for i, h := range t.Headers {
		t.Headers[i] = strings.ToUpper(h)
	}
	for _, r := range t.Rows {
		for k, v := range r.Values {
			if up := strings.ToUpper(k); up != k {
				delete(r.Values, k)
				r.Values[up] = v
			}
		}
	}
}

// Column returns every non-empty value of a column in row order
func (t *Table) Column(name string) []string {
	var out []string
	for _, r := range t.Rows {
		if v := r.Get(name); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func fromRecords(path string, records [][]string) *Table {
	t := &Table{Path: path}
	if len(records) == 0 {
		return t
	}
	for _, h := range records[0] {
		t.Headers = append(t.Headers, strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}
	for i, rec := range records[1:] {
		if isBlank(rec) {
			continue
		}
		values := make(map[string]string, len(t.Headers))
		for j, h := range t.Headers {
			if j < len(rec) {
				values[h] = rec[j]
			}
		}
		t.Rows = append(t.Rows, Row{Line: i + 1, Values: values})
	}
	return t
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func readCSV(path string, comma rune) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	if comma != 0 {
		r.Comma = comma
	}

	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", path)
		}
		records = append(records, rec)
	}
	return records, nil
}

func readExcel(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.Wrapf(err, "reading sheet %q of %s", sheet, path)
	}
	return rows, nil
}

// WriteCSV writes a header row and records to path
func WriteCSV(path string, header []string, records [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	if err := w.WriteAll(records); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	return nil
}

// Write writes a header row and records as Excel when path ends in .xlsx
// and as CSV otherwise
func Write(path string, header []string, records [][]string) error {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return WriteExcel(path, header, records)
	}
	return WriteCSV(path, header, records)
}

// WriteExcel writes a header row and records to the first sheet of a new
// workbook
func WriteExcel(path string, header []string, records [][]string) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows := append([][]string{header}, records...)
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return errors.Wrapf(err, "writing %s", path)
		}
		if err := f.SetSheetRow(sheet, cell, &rows[i]); err != nil {
			return errors.Wrapf(err, "writing row %d of %s", i+1, path)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return errors.Wrapf(err, "saving %s", path)
	}
	return nil
}
