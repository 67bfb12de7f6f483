package extractor

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/purview-catalog-tools/pkg/models"
)

// PathEdge is a lineage candidate between two warehouse paths
// ("schema/table"), not yet resolved to catalog entities
type PathEdge struct {
	Source      string
	Target      string
	ProcessType models.ProcessType
}

// DefaultRoutineOverrides maps tables whose load routine does not follow the
// "<schema>.Load<table>.sql" naming convention
func DefaultRoutineOverrides() map[string][]string {
	return map[string][]string{
		"common/factsales":                {"Common.LoadFactSalesDaily.sql"},
		"common/dimflathierarchalbom":     {"Common.LoadFlatHierarchalBOM.sql"},
		"explore/hbi_upc_preferred":       {"Explore.LoadUPCPreferred.sql"},
		"explore/amz_salesdiagnostic":     {"Explore.LoadAmz_SalesDiagnosticAPI.sql"},
		"explore/keplermediaspend":        {"Explore.Load_KeplerMediaSpend.sql"},
		"stage/dimproduct_style_master_1": {"stage.load_DimProductStyleMaster1.sql"},
		"dbo/factdemand":                  {"dbo.load_FactDemand_SAP.sql", "dbo.load_FactDemand_STO.sql"},
		"dbo/factsupply": {
			"dbo.load_FactSupply_OnHand.sql",
			"dbo.load_FactSupply_STO.sql",
			"dbo.load_FactSupply_Intransit.sql",
			"dbo.load_FactSupply_WIP.sql",
			"dbo.load_FactSupply_ChampionManualWIP.sql",
			"dbo.load_FactSupply_SuggestedWorkOrders.sql",
		},
	}
}

// DWPlanner walks warehouse view and load-routine scripts to derive
// stage -> common -> view lineage
type DWPlanner struct {
	ViewDir          string
	RoutineDir       string
	RoutineOverrides map[string][]string
	Logger           *logrus.Logger
}

// NewDWPlanner creates a new planner over the view and routine directories
func NewDWPlanner(viewDir, routineDir string, logger *logrus.Logger) *DWPlanner {
	return &DWPlanner{
		ViewDir:          viewDir,
		RoutineDir:       routineDir,
		RoutineOverrides: DefaultRoutineOverrides(),
		Logger:           logger,
	}
}

// FileToPath converts "Schema.Object.sql" into "Schema/Object"
func FileToPath(file string) string {
	base := strings.TrimSuffix(filepath.Base(file), ".sql")
	return strings.Replace(base, ".", "/", 1)
}

// routineFiles returns the load routine scripts that populate a table
func (p *DWPlanner) routineFiles(table string) []string {
	if files, ok := p.RoutineOverrides[strings.ToLower(table)]; ok {
		return files
	}
	parts := strings.SplitN(table, "/", 2)
	if len(parts) != 2 {
		return nil
	}
	schema, name := parts[0], parts[1]
	switch strings.ToLower(schema) {
	case "master":
		return []string{"master.load_" + name + ".sql"}
	case "dbo":
		return []string{"dbo.load_" + name + ".sql"}
	}
	return []string{schema + ".Load" + name + ".sql"}
}

func isViewName(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasPrefix(lower, "vw") || strings.HasPrefix(lower, "mvw")
}

func readSQL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "reading %s", path)
	}
	return string(data), nil
}

// PlanView derives the edges behind a view script. Views built on other
// views are followed recursively; each view is visited once.
func (p *DWPlanner) PlanView(viewFile string) ([]PathEdge, error) {
	return p.planView(viewFile, make(map[string]bool))
}

func (p *DWPlanner) planView(viewFile string, visited map[string]bool) ([]PathEdge, error) {
	view := FileToPath(viewFile)
	if visited[strings.ToLower(view)] {
		return nil, nil
	}
	visited[strings.ToLower(view)] = true

	sql, err := readSQL(filepath.Join(p.ViewDir, filepath.Base(viewFile)))
	if err != nil {
		return nil, err
	}
	commons := SQLSources(sql)
	if len(commons) == 0 {
		p.Logger.Infof("No sources for view %s", view)
		return nil, nil
	}

	var edges []PathEdge
	for _, common := range commons {
		parts := strings.SplitN(common, "/", 2)
		if isViewName(parts[1]) {
			nested, err := p.planView(parts[0]+"."+parts[1]+".sql", visited)
			if err != nil {
				p.Logger.Warnf("Skipping nested view %s: %v", common, err)
			}
			edges = append(edges, nested...)
			edges = append(edges, PathEdge{Source: common, Target: view, ProcessType: models.DWViewCreation})
			continue
		}

		stages, err := p.tableSources(common)
		if err != nil {
			p.Logger.Warnf("No load routine for %s: %v", common, err)
		}
		for _, stage := range stages {
			if strings.EqualFold(stage, common) {
				continue
			}
			edges = append(edges, PathEdge{Source: stage, Target: common, ProcessType: models.DWRoutine})
		}
		edges = append(edges, PathEdge{Source: common, Target: view, ProcessType: models.DWViewCreation})
	}
	return dedupeEdges(edges), nil
}

// PlanTable derives the stage -> table edges from a table's load routines
func (p *DWPlanner) PlanTable(tableFile string) ([]PathEdge, error) {
	table := FileToPath(tableFile)
	sources, err := p.tableSources(table)
	if err != nil {
		return nil, err
	}
	var edges []PathEdge
	for _, s := range sources {
		if !strings.EqualFold(s, table) {
			edges = append(edges, PathEdge{Source: s, Target: table, ProcessType: models.DWRoutine})
		}
	}
	if len(edges) == 0 {
		p.Logger.Infof("No stage sources for table %s", table)
	}
	return edges, nil
}

func (p *DWPlanner) tableSources(table string) ([]string, error) {
	var all []string
	var firstErr error
	for _, f := range p.routineFiles(table) {
		sql, err := readSQL(filepath.Join(p.RoutineDir, f))
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		all = append(all, SQLSources(sql)...)
	}
	if len(all) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return uniquePaths(all), nil
}

func dedupeEdges(edges []PathEdge) []PathEdge {
	seen := make(map[PathEdge]bool, len(edges))
	out := edges[:0]
	for _, e := range edges {
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	return out
}
