package resolver

import (
	"strings"

	"github.com/vitebski/purview-catalog-tools/internal/config"
)

// ServerRule describes how references on one server map to qualified names
type ServerRule struct {
	Protocol string
	Host     string
	// Instance is inserted between host and schema (SQL Server instances)
	Instance string
	// SchemaOverride replaces the schema from the source data
	SchemaOverride string
	// SchemaSuffix is appended after the schema (e.g. "dbo")
	SchemaSuffix string
}

// Format renders the qualified name for schema and table
func (r ServerRule) Format(schema, table string) string {
	if r.SchemaOverride != "" {
		schema = r.SchemaOverride
	}
	parts := []string{r.Protocol + "://" + r.Host}
	if r.Instance != "" {
		parts = append(parts, r.Instance)
	}
	parts = append(parts, schema)
	if r.SchemaSuffix != "" {
		parts = append(parts, r.SchemaSuffix)
	}
	parts = append(parts, table)
	return strings.Join(parts, "/")
}

// DefaultServers is the built-in server table, keyed by lower-case server name
func DefaultServers() map[string]ServerRule {
	sqlpag := ServerRule{Protocol: "mssql", Host: "10.1.70.20:1433", Instance: "MSSQLSERVER", SchemaSuffix: "dbo"}
	pos := ServerRule{Protocol: "mssql", Host: "wsbip3sqlv.res.hbi.net", Instance: "MSSQLSERVER/POS"}
	bipao := ServerRule{Protocol: "mssql", Host: "bipaosql.res.hbi.net", Instance: "MSSQLSERVER", SchemaSuffix: "dbo"}
	prod1 := ServerRule{Protocol: "oracle", Host: "10.1.17.190"}
	prod5 := ServerRule{Protocol: "oracle", Host: "10.1.17.28"}
	slba := ServerRule{Protocol: "oracle", Host: "10.1.17.127", SchemaOverride: "SLBA"}
	oak := ServerRule{Protocol: "oracle", Host: "10.1.17.127"}
	prod4d := ServerRule{Protocol: "oracle", Host: "10.1.17.106"}
	law := ServerRule{Protocol: "oracle", Host: "10.1.17.126"}

	return map[string]ServerRule{
		"sqlpag19":   sqlpag,
		"wsbip3sqlv": pos,
		"bipaosql":   bipao,
		"prod1":      prod1,
		"tprod1":     prod1,
		"prod5":      prod5,
		"slbadw":     slba,
		"slba":       slba,
		"slbadw_prd": slba,
		"oakdwhp1":   oak,
		"prod4d":     prod4d,
		"lawprod":    law,
		"lawp2":      law,
	}
}

// ServersFromConfig returns the built-in table with configured overrides applied
func ServersFromConfig(overrides []config.ServerOverride) map[string]ServerRule {
	servers := DefaultServers()
	for _, o := range overrides {
		rule := ServerRule{
			Protocol:       o.Protocol,
			Host:           o.Host,
			Instance:       o.Instance,
			SchemaOverride: o.SchemaOverride,
			SchemaSuffix:   o.SchemaSuffix,
		}
		for _, n := range o.Names {
			servers[strings.ToLower(n)] = rule
		}
	}
	return servers
}
