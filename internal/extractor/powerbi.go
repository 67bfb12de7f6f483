package extractor

import (
	"regexp"
	"sort"
	"strings"
)

var tableNamePattern = regexp.MustCompile(`(?i)\bFROM\s+([a-zA-Z0-9._]+)|\bJOIN\s+([a-zA-Z0-9._]+)`)

// QueryTables returns the sorted schema/table paths referenced by FROM and
// JOIN clauses of a dataset query
func QueryTables(query string) []string {
	clean := strings.NewReplacer("[", "", "]", "").Replace(query)
	seen := make(map[string]bool)
	var out []string
	for _, m := range tableNamePattern.FindAllStringSubmatch(clean, -1) {
		for _, name := range m[1:] {
			if name == "" {
				continue
			}
			p := strings.ReplaceAll(name, ".", "/")
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	sort.Strings(out)
	return out
}

// QueriesTables merges the tables of many queries
func QueriesTables(queries []string) []string {
	var all []string
	for _, q := range queries {
		all = append(all, QueryTables(q)...)
	}
	return uniquePaths(all)
}
