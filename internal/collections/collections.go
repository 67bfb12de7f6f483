// Package collections manages the catalog collection tree and the placement
// of entities in it.
package collections

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/vitebski/purview-catalog-tools/internal/analyzer"
	"github.com/vitebski/purview-catalog-tools/internal/catalog"
	"github.com/vitebski/purview-catalog-tools/internal/report"
	"github.com/vitebski/purview-catalog-tools/internal/tabular"
	"github.com/vitebski/purview-catalog-tools/pkg/models"
)

// Stages and counters
const (
	StageCreate = "collection-create"
	StageMove   = "collection-move"

	CounterCreated = "collections_created"
	CounterMoved   = "entities_moved"
)

// SortThreshold is the number of matching entities a collection must hold
// before they are moved into a subcollection
const SortThreshold = 20

// Client is the subset of the catalog session used for collections
type Client interface {
	ListCollections(ctx context.Context) ([]models.Collection, error)
	CreateOrUpdateCollection(ctx context.Context, c models.Collection) error
	SearchAll(ctx context.Context, req catalog.SearchRequest) ([]catalog.SearchHit, error)
	MoveEntities(ctx context.Context, collection string, guids []string) error
	GetEntity(ctx context.Context, guid string) (*catalog.EntityDetail, error)
}

// Node is a collection with its nested subcollections
type Node struct {
	models.Collection
	Subcollections []*Node `json:"subcollections"`
}

// Nest builds the collection forest. Parents that are referenced but not
// listed get a placeholder node.
func Nest(cols []models.Collection) []*Node {
	nodes := make(map[string]*Node, len(cols))
	var order []string
	get := func(name string) *Node {
		n, ok := nodes[name]
		if !ok {
			n = &Node{Collection: models.Collection{Name: name}}
			nodes[name] = n
			order = append(order, name)
		}
		return n
	}
	for _, c := range cols {
		get(c.Name).Collection = c
	}
	for _, c := range cols {
		if c.ParentName != "" {
			parent := get(c.ParentName)
			parent.Subcollections = append(parent.Subcollections, nodes[c.Name])
		}
	}

	var roots []*Node
	for _, name := range order {
		if nodes[name].IsRoot() {
			roots = append(roots, nodes[name])
		}
	}
	return roots
}

// Flat is a collection with the names of its direct subcollections
type Flat struct {
	models.Collection
	Subcollections []string `json:"subcollections"`
}

// Flatten lists every collection with the names of its children
func Flatten(cols []models.Collection) []Flat {
	index := make(map[string]int, len(cols))
	var out []Flat
	add := func(c models.Collection) int {
		if i, ok := index[c.Name]; ok {
			return i
		}
		index[c.Name] = len(out)
		out = append(out, Flat{Collection: c})
		return len(out) - 1
	}
	for _, c := range cols {
		add(c)
	}
	for _, c := range cols {
		if c.ParentName != "" {
			i := add(models.Collection{Name: c.ParentName})
			out[i].Subcollections = append(out[i].Subcollections, c.Name)
		}
	}
	return out
}

// FindByFriendlyName searches a forest depth-first
func FindByFriendlyName(nodes []*Node, friendly string) *Node {
	for _, n := range nodes {
		if n.FriendlyName == friendly {
			return n
		}
		if found := FindByFriendlyName(n.Subcollections, friendly); found != nil {
			return found
		}
	}
	return nil
}

// NewName returns a 6-character collection name not present in existing
func NewName(existing map[string]bool) string {
	for {
		name := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
		if !existing[name] {
			return name
		}
	}
}

// Manager creates collections and moves entities between them
type Manager struct {
	Client   Client
	Recorder *report.Recorder
	Logger   *logrus.Logger
}

// NewManager creates a new collection manager
func NewManager(client Client, recorder *report.Recorder, logger *logrus.Logger) *Manager {
	return &Manager{Client: client, Recorder: recorder, Logger: logger}
}

// CreateFromFile creates the collections listed in a CSV or Excel sheet
// (name, friendlyName, parent, description) parents first. A parent may be
// another row's name or an existing collection's name or friendly name.
// It returns the catalog name given to each row.
func (m *Manager) CreateFromFile(ctx context.Context, path string) (map[string]string, error) {
	t, err := tabular.Read(path, tabular.Options{})
	if err != nil {
		return nil, err
	}
	if err := t.Require("name", "friendlyName", "parent"); err != nil {
		return nil, err
	}

	existing, err := m.Client.ListCollections(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing collections")
	}
	taken := make(map[string]bool, len(existing))
	byFriendly := make(map[string]string, len(existing))
	for _, c := range existing {
		taken[c.Name] = true
		byFriendly[strings.ToLower(c.FriendlyName)] = c.Name
	}

	rows := make(map[string]tabular.Row, len(t.Rows))
	deps := analyzer.NewDependencyAnalyzer(m.Logger)
	for _, r := range t.Rows {
		key := r.Get("name")
		rows[key] = r
		deps.AddNode(key)
		if parent := r.Get("parent"); parent != "" {
			deps.AddDependency(parent, key)
		}
	}

	order, circular := deps.GetOrder()
	created := make(map[string]string)
	for _, key := range order {
		r, listed := rows[key]
		if !listed {
			continue
		}
		if circular[key] {
			m.Recorder.Fail(StageCreate, key, errors.New("collection is part of a parent cycle"))
			continue
		}

		parent := r.Get("parent")
		parentName := ""
		switch {
		case parent == "":
		case created[parent] != "":
			parentName = created[parent]
		case taken[parent]:
			parentName = parent
		case byFriendly[strings.ToLower(parent)] != "":
			parentName = byFriendly[strings.ToLower(parent)]
		default:
			m.Recorder.Fail(StageCreate, key, errors.Errorf("unknown parent collection %q", parent))
			continue
		}

		name := key
		if !taken[name] {
			name = NewName(taken)
		}
		c := models.Collection{
			Name:         name,
			FriendlyName: r.Get("friendlyName"),
			Description:  r.Get("description"),
			ParentName:   parentName,
		}
		if err := m.Client.CreateOrUpdateCollection(ctx, c); err != nil {
			m.Recorder.Fail(StageCreate, key, errors.Wrapf(err, "creating %s", c.FriendlyName))
			continue
		}
		taken[name] = true
		created[key] = name
		m.Recorder.Inc(CounterCreated, 1)
		m.Logger.Infof("Created collection %s (%s) under %q", c.FriendlyName, name, parentName)
	}
	return created, nil
}

// Targets names the subcollections entities are sorted into
type Targets struct {
	Archive string
	Log     string
	Ingest  string
}

// DefaultTargets picks the Archive, Log and Ingest children of a collection
// by friendly name
func DefaultTargets(cols []models.Collection, parent string) Targets {
	var t Targets
	for _, c := range cols {
		if c.ParentName != parent {
			continue
		}
		switch f := strings.ToLower(c.FriendlyName); {
		case strings.Contains(f, "archive"):
			t.Archive = c.Name
		case strings.Contains(f, "log"):
			t.Log = c.Name
		case strings.Contains(f, "ingest"):
			t.Ingest = c.Name
		}
	}
	return t
}

// Sort moves a collection's Archive, Log (including "_delta_log") and
// Ingest entities into their subcollections. A group is only moved when it
// holds more than SortThreshold entities. It returns the moved GUID count.
func (m *Manager) Sort(ctx context.Context, collection string, targets Targets) (int, error) {
	hits, err := m.Client.SearchAll(ctx, catalog.SearchRequest{
		Keywords: collection,
		Filter:   map[string]interface{}{"collectionId": collection},
	})
	if err != nil {
		return 0, errors.Wrapf(err, "searching collection %s", collection)
	}

	groups := map[string][]string{}
	for _, h := range hits {
		name := h.DisplayText
		switch {
		case name == "Log" || strings.Contains(name, "_delta_log"):
			groups[targets.Log] = append(groups[targets.Log], h.ID)
		case name == "Archive":
			groups[targets.Archive] = append(groups[targets.Archive], h.ID)
		case name == "Ingest":
			groups[targets.Ingest] = append(groups[targets.Ingest], h.ID)
		}
	}

	dests := make([]string, 0, len(groups))
	for d := range groups {
		dests = append(dests, d)
	}
	sort.Strings(dests)

	moved := 0
	for _, dest := range dests {
		guids := groups[dest]
		if len(guids) <= SortThreshold {
			m.Logger.Infof("Only %d entities for %q, leaving them in %s", len(guids), dest, collection)
			continue
		}
		if dest == "" {
			m.Recorder.Fail(StageMove, collection, errors.Errorf("no subcollection for %d entities", len(guids)))
			continue
		}
		if err := m.Client.MoveEntities(ctx, dest, guids); err != nil {
			m.Recorder.Fail(StageMove, dest, errors.Wrapf(err, "moving %d entities", len(guids)))
			continue
		}
		moved += len(guids)
		m.Recorder.Inc(CounterMoved, len(guids))
		m.Logger.Infof("Moved %d entities from %s to %s", len(guids), collection, dest)
	}
	return moved, nil
}

// PackageGUIDs collects a package, its tables and its nested packages
func (m *Manager) PackageGUIDs(ctx context.Context, packageGUID string) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	var walk func(guid string) error
	walk = func(guid string) error {
		if seen[guid] {
			return nil
		}
		seen[guid] = true
		out = append(out, guid)

		detail, err := m.Client.GetEntity(ctx, guid)
		if err != nil {
			return errors.Wrapf(err, "fetching package %s", guid)
		}
		rel := gjson.GetBytes(detail.Raw, "entity.relationshipAttributes")
		m.Logger.Infof("Identified package: %s", detail.Entity.Name)
		rel.Get("tables").ForEach(func(_, t gjson.Result) bool {
			if g := t.Get("guid").String(); g != "" && !seen[g] {
				seen[g] = true
				out = append(out, g)
			}
			return true
		})
		var subs []string
		rel.Get("packages").ForEach(func(_, p gjson.Result) bool {
			subs = append(subs, p.Get("guid").String())
			return true
		})
		for _, s := range subs {
			if s == "" {
				continue
			}
			if err := walk(s); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(packageGUID); err != nil {
		return out, err
	}
	return out, nil
}

// MovePackage moves a package with everything nested under it
func (m *Manager) MovePackage(ctx context.Context, packageGUID, collection string) (int, error) {
	guids, err := m.PackageGUIDs(ctx, packageGUID)
	if err != nil {
		m.Recorder.Fail(StageMove, packageGUID, err)
		return 0, err
	}
	if err := m.Client.MoveEntities(ctx, collection, guids); err != nil {
		err = errors.Wrapf(err, "moving package %s", packageGUID)
		m.Recorder.Fail(StageMove, packageGUID, err)
		return 0, err
	}
	m.Recorder.Inc(CounterMoved, len(guids))
	m.Logger.Infof("Moved package %s (%d entities) to %s", packageGUID, len(guids), collection)
	return len(guids), nil
}
