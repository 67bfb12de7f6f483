package lineage

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
	"github.com/vitebski/purview-catalog-tools/internal/catalog"
	"github.com/vitebski/purview-catalog-tools/pkg/models"
)

// ColumnProcessName is the display name of column-connection processes
const ColumnProcessName = "Column Lineage"

// ColumnPair maps a source column onto a target column
type ColumnPair struct {
	Source string `json:"Source"`
	Sink   string `json:"Sink"`
}

type datasetMapping struct {
	Source string `json:"Source"`
	Sink   string `json:"Sink"`
}

type columnMapping struct {
	DatasetMapping datasetMapping `json:"DatasetMapping"`
	ColumnMapping  []ColumnPair   `json:"ColumnMapping"`
}

// columnNames returns the sorted display names of an entity's referred columns
func columnNames(detail *catalog.EntityDetail) []string {
	names := make([]string, 0, len(detail.Referred))
	for _, e := range detail.Referred {
		names = append(names, e.Name)
	}
	sort.Strings(names)
	return names
}

// MatchColumns pairs columns present under the same name on both sides
func MatchColumns(source, target []string) []ColumnPair {
	inTarget := make(map[string]bool, len(target))
	for _, c := range target {
		inTarget[c] = true
	}
	var pairs []ColumnPair
	for _, c := range source {
		if inTarget[c] {
			pairs = append(pairs, ColumnPair{Source: c, Sink: c})
		}
	}
	return pairs
}

// WriteColumnLineage links the same-named columns of two entities through
// one Column_Connection process. It returns the matched pairs.
func (w *Writer) WriteColumnLineage(ctx context.Context, sourceGUID, targetGUID, asset string) ([]ColumnPair, error) {
	src, err := w.Client.GetEntity(ctx, sourceGUID)
	if err != nil {
		return nil, errors.Wrap(err, "fetching column lineage source")
	}
	dst, err := w.Client.GetEntity(ctx, targetGUID)
	if err != nil {
		return nil, errors.Wrap(err, "fetching column lineage target")
	}

	pairs := MatchColumns(columnNames(src), columnNames(dst))
	if len(pairs) == 0 {
		w.Logger.Warnf("No matching columns between %s and %s", src.Entity.QualifiedName, dst.Entity.QualifiedName)
		return nil, nil
	}

	mapping, err := json.Marshal([]columnMapping{{
		DatasetMapping: datasetMapping{Source: src.Entity.QualifiedName, Sink: dst.Entity.QualifiedName},
		ColumnMapping:  pairs,
	}})
	if err != nil {
		return nil, errors.Wrap(err, "encoding column mapping")
	}

	edge := models.LineageEdge{
		Sources:       []models.CatalogEntity{src.Entity},
		Targets:       []models.CatalogEntity{dst.Entity},
		ProcessType:   models.ColumnConnection,
		QualifiedName: ColumnQualifiedName(asset),
		Name:          ColumnProcessName,
		Attributes:    map[string]interface{}{"columnMapping": string(mapping)},
	}
	if err := w.Write(ctx, edge); err != nil {
		return pairs, err
	}
	return pairs, nil
}
