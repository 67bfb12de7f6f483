// Package snapshot pulls catalog entities with their columns into a local
// JSON file that later runs can work from offline.
package snapshot

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/vitebski/purview-catalog-tools/internal/catalog"
	"github.com/vitebski/purview-catalog-tools/internal/report"
	"golang.org/x/sync/errgroup"
)

// Stage and counter names
const (
	StagePull     = "pull"
	CounterPulled = "entities_pulled"
)

// TimeLayout is the format of info_pulled_on
const TimeLayout = "01/02/2006 15:04"

// ColumnAttributes are the relationship attributes that hold an entity's
// columns, depending on its type
var ColumnAttributes = []string{"columns", "view_columns", "primary_key_fields", "fields"}

// Column is a column reference of a pulled entity
type Column struct {
	GUID string `json:"guid"`
	Name string `json:"displayText"`
}

// Entity is a pulled entity with its columns
type Entity struct {
	GUID          string   `json:"guid"`
	TypeName      string   `json:"typeName"`
	Name          string   `json:"name"`
	QualifiedName string   `json:"qualifiedName"`
	Columns       []Column `json:"columns"`
}

// Source holds the entities pulled for one data source
type Source struct {
	InfoPulledOn string   `json:"info_pulled_on"`
	Entities     []Entity `json:"entities"`
}

// Snapshot is the content of a pulled entities file
type Snapshot struct {
	PurviewAccount string             `json:"purview_account"`
	DataSources    map[string]*Source `json:"data_sources"`
}

// FileName returns the snapshot path of an account under dir
func FileName(dir, account string) string {
	return filepath.Join(dir, account+"_pulled_entities.json")
}

// Load reads a snapshot file
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading snapshot %s", path)
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrapf(err, "parsing snapshot %s", path)
	}
	if s.DataSources == nil {
		s.DataSources = map[string]*Source{}
	}
	return &s, nil
}

// LoadOrNew reads a snapshot file, or starts an empty one when the file
// does not exist yet
func LoadOrNew(path, account string) (*Snapshot, error) {
	s, err := Load(path)
	if err == nil {
		return s, nil
	}
	if os.IsNotExist(errors.Cause(err)) {
		return &Snapshot{PurviewAccount: account, DataSources: map[string]*Source{}}, nil
	}
	return nil, err
}

// Merge replaces the entities of typeName under a data source and keeps the
// entities of other types
func (s *Snapshot) Merge(dataSource, typeName string, entities []Entity, pulledOn time.Time) {
	src, ok := s.DataSources[dataSource]
	if !ok {
		src = &Source{}
		s.DataSources[dataSource] = src
	}
	kept := src.Entities[:0]
	for _, e := range src.Entities {
		if e.TypeName != typeName {
			kept = append(kept, e)
		}
	}
	src.Entities = append(kept, entities...)
	src.InfoPulledOn = pulledOn.Format(TimeLayout)
}

// Entities returns the entities of a data source, optionally limited to
// some types
func (s *Snapshot) Entities(dataSource string, types ...string) []Entity {
	src, ok := s.DataSources[dataSource]
	if !ok {
		return nil
	}
	if len(types) == 0 {
		return src.Entities
	}
	want := make(map[string]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	var out []Entity
	for _, e := range src.Entities {
		if want[e.TypeName] {
			out = append(out, e)
		}
	}
	return out
}

// Save writes the snapshot, replacing the file atomically
func (s *Snapshot) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "   ")
	if err != nil {
		return errors.Wrap(err, "encoding snapshot")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", tmp)
	}
	return errors.Wrapf(os.Rename(tmp, path), "replacing %s", path)
}

// Client is the subset of the catalog session used for pulling
type Client interface {
	BrowseAll(ctx context.Context, entityType string) ([]catalog.SearchHit, error)
	GetEntity(ctx context.Context, guid string) (*catalog.EntityDetail, error)
}

// Puller fetches every entity of a type together with its columns
type Puller struct {
	Client   Client
	Workers  int
	Recorder *report.Recorder
	Logger   *logrus.Logger
}

// NewPuller creates a new puller
func NewPuller(client Client, workers int, recorder *report.Recorder, logger *logrus.Logger) *Puller {
	if workers < 1 {
		workers = 1
	}
	return &Puller{Client: client, Workers: workers, Recorder: recorder, Logger: logger}
}

func columnsOf(raw []byte) []Column {
	rel := gjson.GetBytes(raw, "entity.relationshipAttributes")
	var cols []Column
	seen := map[string]bool{}
	for _, attr := range ColumnAttributes {
		rel.Get(attr).ForEach(func(_, c gjson.Result) bool {
			guid := c.Get("guid").String()
			if guid != "" && !seen[guid] {
				seen[guid] = true
				cols = append(cols, Column{GUID: guid, Name: c.Get("displayText").String()})
			}
			return true
		})
	}
	return cols
}

// Pull returns every entity of typeName in browse order. Entities that
// cannot be fetched are recorded and left out.
func (p *Puller) Pull(ctx context.Context, typeName string) ([]Entity, error) {
	hits, err := p.Client.BrowseAll(ctx, typeName)
	if err != nil {
		return nil, errors.Wrapf(err, "browsing %s", typeName)
	}
	p.Logger.Infof("Pulled %d guids for type %s, fetching details", len(hits), typeName)

	details := make([]*Entity, len(hits))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Workers)
	for i, hit := range hits {
		i, hit := i, hit
		g.Go(func() error {
			detail, err := p.Client.GetEntity(gctx, hit.ID)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				p.Recorder.Fail(StagePull, hit.ID, err)
				return nil
			}
			e := Entity{
				GUID:          hit.ID,
				TypeName:      typeName,
				Name:          detail.Entity.Name,
				QualifiedName: detail.Entity.QualifiedName,
				Columns:       columnsOf(detail.Raw),
			}
			if e.Name == "" {
				e.Name = hit.Name
			}
			details[i] = &e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Entity, 0, len(details))
	for _, e := range details {
		if e != nil {
			out = append(out, *e)
		}
	}
	p.Recorder.Inc(CounterPulled, len(out))
	p.Logger.Infof("Pulled %d %s entities", len(out), typeName)
	return out, nil
}

// PullInto pulls each type and merges the results into the snapshot at path
func (p *Puller) PullInto(ctx context.Context, path, account, dataSource string, types []string, now time.Time) (*Snapshot, error) {
	snap, err := LoadOrNew(path, account)
	if err != nil {
		return nil, err
	}
	snap.PurviewAccount = account

	sorted := append([]string(nil), types...)
	sort.Strings(sorted)
	for _, t := range sorted {
		entities, err := p.Pull(ctx, t)
		if err != nil {
			return nil, err
		}
		snap.Merge(dataSource, t, entities, now)
	}
	if err := snap.Save(path); err != nil {
		return nil, err
	}
	p.Logger.Infof("Snapshot written to %s", path)
	return snap, nil
}
