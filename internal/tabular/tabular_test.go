package tabular

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestReadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dict.csv")
	content := "\ufeffTable Name,Field Name,Key Flag\nMARA,MATNR,Y\n,,\nMARA,ERSDA\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	tbl, err := Read(path, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Table Name", "Field Name", "Key Flag"}, tbl.Headers)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, "MATNR", tbl.Rows[0].Get("Field Name"))
	assert.Equal(t, 1, tbl.Rows[0].Line)
	assert.Equal(t, 3, tbl.Rows[1].Line)
	assert.Equal(t, "", tbl.Rows[1].Get("Key Flag"))
	assert.NoError(t, tbl.Require("Table Name", "Field Name"))
	assert.Equal(t, []string{"MATNR", "ERSDA"}, tbl.Column("Field Name"))
}

func TestReadExcel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conn.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]string{"Connection Name", "Server name", "Database name"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]string{"ORA_PROD1", "prod1", "APPS"}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	tbl, err := Read(path, Options{})
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, "prod1", tbl.Rows[0].Get("Server name"))
}

func TestReadMissingFileAndColumns(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "nope.csv"), Options{})
	assert.True(t, errors.Is(err, ErrFileNotFound))

	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("Table Name\nMARA\n"), 0o644))
	tbl, err := Read(path, Options{})
	require.NoError(t, err)

	err = tbl.Require("Table Name", "Field Name")
	var missing *MissingColumnError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, []string{"Field Name"}, missing.Columns)
}

func TestWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, WriteCSV(path, []string{"a", "b"}, [][]string{{"1", "2"}}))

	tbl, err := Read(path, Options{})
	require.NoError(t, err)
	assert.Equal(t, "2", tbl.Rows[0].Get("b"))
}

func TestWriteExcelRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regex.xlsx")
	require.NoError(t, Write(path, []string{"Classification_Name", "REGEX"}, [][]string{
		{"Customer Number", ".*(Customer)[^A-Za-z0-9]?(Number).*"},
	}))

	tbl, err := Read(path, Options{})
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, ".*(Customer)[^A-Za-z0-9]?(Number).*", tbl.Rows[0].Get("REGEX"))
}
