package lineage

import (
	"fmt"
	"strings"

	"github.com/vitebski/purview-catalog-tools/pkg/models"
)

// EdgeQualifiedName derives the deterministic qualified name of a lineage
// edge from its endpoint names and process type
func EdgeQualifiedName(sources, targets []models.CatalogEntity, processType models.ProcessType) string {
	return "sources:" + joinNames(sources) + "/targets:" + joinNames(targets) + "/process_type:" + string(processType)
}

func joinNames(entities []models.CatalogEntity) string {
	names := make([]string, 0, len(entities))
	for _, e := range entities {
		names = append(names, strings.ReplaceAll(e.Name, " ", "_"))
	}
	return strings.Join(names, "/")
}

// DSPQualifiedName names a HANA data-provisioning edge by schema-qualified names
func DSPQualifiedName(sourceSchema, sourceName, targetSchema, targetName string) string {
	return fmt.Sprintf("sources:%s.%s/targets:%s.%s/process_type:%s",
		sourceSchema, sourceName, targetSchema, targetName, models.DSPConnection)
}

// ColumnQualifiedName names the column-connection process of an asset
func ColumnQualifiedName(asset string) string {
	return "sources:" + asset + "/targets:" + asset + "/process_type:" + string(models.ColumnConnection)
}

// Description renders the connector description shown in the catalog
func Description(sourceType, sourceName, targetType, targetName string) string {
	return fmt.Sprintf("Source Type: %s\nSource Name: %s\nTarget Type: %s\nTarget Name: %s",
		sourceType, sourceName, targetType, targetName)
}

// DefaultDescription describes an edge by its first source and first target
func DefaultDescription(sources, targets []models.CatalogEntity) string {
	if len(sources) == 0 || len(targets) == 0 {
		return ""
	}
	return Description(sources[0].TypeName, sources[0].Name, targets[0].TypeName, targets[0].Name)
}

// NewEdge builds an edge with its qualified name, name and description filled in
func NewEdge(sources, targets []models.CatalogEntity, processType models.ProcessType) models.LineageEdge {
	qn := EdgeQualifiedName(sources, targets, processType)
	return models.LineageEdge{
		Sources:       sources,
		Targets:       targets,
		ProcessType:   processType,
		QualifiedName: qn,
		Name:          qn,
		Description:   DefaultDescription(sources, targets),
	}
}
