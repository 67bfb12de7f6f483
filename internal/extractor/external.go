package extractor

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

var (
	locationPattern      = regexp.MustCompile(`LOCATION = N(.*?),`)
	externalTablePattern = regexp.MustCompile(`CREATE EXTERNAL TABLE (.*?)\(`)
)

// ErrPatternNotFound is returned when a DDL script lacks an expected clause
var ErrPatternNotFound = errors.New("pattern not found")

// ExternalTable is the data lake location behind an external table
type ExternalTable struct {
	Location string
	Table    string
}

// ParseExternalTable extracts the LOCATION and table name of a
// CREATE EXTERNAL TABLE script
func ParseExternalTable(sql string) (ExternalTable, error) {
	text := strings.ReplaceAll(sql, "BEGIN", " ")
	text = strings.NewReplacer("\r", "", "\n", "").Replace(text)

	loc := locationPattern.FindStringSubmatch(text)
	if loc == nil {
		return ExternalTable{}, errors.Wrap(ErrPatternNotFound, "LOCATION")
	}
	tbl := externalTablePattern.FindStringSubmatch(text)
	if tbl == nil {
		return ExternalTable{}, errors.Wrap(ErrPatternNotFound, "CREATE EXTERNAL TABLE")
	}

	unquote := strings.NewReplacer("'", "")
	return ExternalTable{
		Location: strings.TrimSpace(unquote.Replace(loc[1])),
		Table:    strings.TrimSpace(unquote.Replace(tbl[1])),
	}, nil
}

// TablePath converts "[schema].[table]" into "schema/table"
func (e ExternalTable) TablePath() string {
	return normalizeSource(e.Table)
}
