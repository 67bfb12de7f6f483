package utils

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// dayFirstLayouts are tried in order by ParseDateMillis
var dayFirstLayouts = []string{
	"02-Jan-2006",
	"2-Jan-2006",
	"02-Jan-06",
	"02 Jan 2006",
	"02 January 2006",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"02.01.2006",
	"02/01/2006 15:04:05",
	"02-01-2006 15:04:05",
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// ParseBool converts the spreadsheet conventions Y/N, 1/0, yes/no and
// true/false into a boolean. Anything else yields nil.
func ParseBool(value string) *bool {
	v := strings.ToLower(strings.TrimSpace(value))
	var b bool
	switch v {
	case "true", "1", "yes", "y":
		b = true
	case "false", "0", "no", "n":
		b = false
	default:
		return nil
	}
	return &b
}

// ParseInt converts value to an integer, going through a float so that
// "12.0" is accepted. Unparseable, non-finite and out-of-range values
// yield nil.
func ParseInt(value string) *int64 {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	// float64(math.MaxInt64) rounds up to 2^63
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return nil
	}
	i := int64(f)
	return &i
}

// ParseDateMillis parses a day-first date string and returns its UTC epoch
// timestamp in milliseconds, or nil when no layout matches.
func ParseDateMillis(value string) *int64 {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}
	for _, layout := range dayFirstLayouts {
		t, err := time.ParseInLocation(layout, v, time.UTC)
		if err == nil {
			ms := t.UnixMilli()
			return &ms
		}
	}
	return nil
}

// ParseString trims value and returns nil when it is empty
func ParseString(value string) *string {
	v := strings.TrimSpace(value)
	if v == "" || strings.EqualFold(v, "nan") {
		return nil
	}
	return &v
}
