// Package extractor parses source artifacts (SQL, Informatica XML, HANA
// DSP JSON, tabular models and cube XMLA) into lineage candidates.
package extractor

import (
	"regexp"
	"sort"
	"strings"
)

var (
	sqlKeywords    = map[string]bool{"using": true, "from": true, "join": true}
	ignoredSources = map[string]bool{"sys/objects": true}
	pathCleaner    = strings.NewReplacer(".", "/", "[", "", "]", "", "(", "", ")", "", ";", "")
	batchSeparator = regexp.MustCompile(`(?m)^\s*GO\s*$`)
)

// SQLSources returns the sorted, de-duplicated schema/table paths read by a
// SQL script: the token after every USING, FROM or JOIN with dots turned
// into slashes. Temp tables, system objects and single-part names are dropped.
func SQLSources(sql string) []string {
	var raw []string
	if strings.ContainsRune(sql, '\x00') {
		raw = wideSQLSources(sql)
	} else {
		tokens := strings.Fields(sql)
		for i := 0; i < len(tokens)-1; i++ {
			if sqlKeywords[strings.ToLower(tokens[i])] {
				raw = append(raw, normalizeSource(tokens[i+1]))
			}
		}
	}
	return uniquePaths(raw)
}

// wideSQLSources handles scripts exported as UTF-16, where every other byte
// is NUL: the text is split into GO batches and searched by keyword
func wideSQLSources(sql string) []string {
	clean := strings.ReplaceAll(sql, "\x00", "")
	var raw []string
	for _, batch := range batchSeparator.Split(clean, -1) {
		text := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(batch), "\n", " "))
		for kw := range sqlKeywords {
			parts := strings.Split(text, kw)
			for _, after := range parts[1:] {
				fields := strings.Fields(after)
				if len(fields) > 0 {
					raw = append(raw, normalizeSource(fields[0]))
				}
			}
		}
	}
	return raw
}

func normalizeSource(token string) string {
	return pathCleaner.Replace(token)
}

func uniquePaths(raw []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range raw {
		if s == "" || strings.HasPrefix(s, "#") || ignoredSources[strings.ToLower(s)] {
			continue
		}
		if !strings.Contains(s, "/") || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
