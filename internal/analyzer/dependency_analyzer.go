package analyzer

import (
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/yourbasic/graph"
)

// DependencyAnalyzer orders named nodes (collections, tables, views) so that
// every node comes after the nodes it depends on, and detects cycles
type DependencyAnalyzer struct {
	Nodes        []string
	NodeIndexMap map[string]int
	Edges        [][2]int
	Logger       *logrus.Logger
}

// NewDependencyAnalyzer creates a new dependency analyzer
func NewDependencyAnalyzer(logger *logrus.Logger) *DependencyAnalyzer {
	return &DependencyAnalyzer{
		NodeIndexMap: make(map[string]int),
		Logger:       logger,
	}
}

// AddNode registers a node and returns its index
func (da *DependencyAnalyzer) AddNode(name string) int {
	if i, ok := da.NodeIndexMap[name]; ok {
		return i
	}
	da.NodeIndexMap[name] = len(da.Nodes)
	da.Nodes = append(da.Nodes, name)
	return da.NodeIndexMap[name]
}

// AddDependency records that dependent must come after dependency
func (da *DependencyAnalyzer) AddDependency(dependency, dependent string) {
	from := da.AddNode(dependency)
	to := da.AddNode(dependent)
	da.Edges = append(da.Edges, [2]int{from, to})
}

// buildGraph builds the dependency graph, leaving out nodes in skip
func (da *DependencyAnalyzer) buildGraph(skip map[int]bool) *graph.Mutable {
	g := graph.New(len(da.Nodes))
	for _, e := range da.Edges {
		if skip[e[0]] || skip[e[1]] {
			continue
		}
		g.Add(e[0], e[1])
	}
	return g
}

// GetCircularNodes returns the nodes that take part in a dependency cycle,
// including self references
func (da *DependencyAnalyzer) GetCircularNodes() map[string]bool {
	circular := make(map[string]bool)
	g := da.buildGraph(nil)

	for _, comp := range graph.StrongComponents(g) {
		if len(comp) > 1 {
			for _, v := range comp {
				circular[da.Nodes[v]] = true
			}
		}
	}
	for _, e := range da.Edges {
		if e[0] == e[1] {
			circular[da.Nodes[e[0]]] = true
		}
	}
	return circular
}

// GetCycles returns each dependency cycle as a sorted list of node names
func (da *DependencyAnalyzer) GetCycles() [][]string {
	var cycles [][]string
	for _, comp := range graph.StrongComponents(da.buildGraph(nil)) {
		if len(comp) < 2 {
			continue
		}
		names := make([]string, 0, len(comp))
		for _, v := range comp {
			names = append(names, da.Nodes[v])
		}
		sort.Strings(names)
		cycles = append(cycles, names)
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i][0] < cycles[j][0] })
	return cycles
}

// GetOrder returns the nodes in dependency order. Nodes in cycles cannot be
// ordered; they are appended by name and also returned as a set.
func (da *DependencyAnalyzer) GetOrder() ([]string, map[string]bool) {
	circular := da.GetCircularNodes()
	skip := make(map[int]bool, len(circular))
	for name := range circular {
		skip[da.NodeIndexMap[name]] = true
	}

	order, ok := graph.TopSort(da.buildGraph(skip))
	if !ok {
		// unreachable once cycles are removed
		da.Logger.Errorf("Dependency graph still cyclic after removing %d circular nodes", len(circular))
	}

	var ordered []string
	for _, v := range order {
		if !skip[v] {
			ordered = append(ordered, da.Nodes[v])
		}
	}

	var rest []string
	for name := range circular {
		rest = append(rest, name)
	}
	sort.Strings(rest)
	if len(rest) > 0 {
		da.Logger.Warnf("%d nodes are part of dependency cycles: %v", len(rest), rest)
	}
	return append(ordered, rest...), circular
}
