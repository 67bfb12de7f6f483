package ingest

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/purview-catalog-tools/internal/populator"
	"github.com/vitebski/purview-catalog-tools/internal/report"
	"github.com/vitebski/purview-catalog-tools/internal/tabular"
	"github.com/vitebski/purview-catalog-tools/pkg/models"
)

// SAPBWType is the entity type of SAP BW development classes
const SAPBWType = "sap_bw_instance"

// SAPBWIngester imports SAP BW development classes into a collection
type SAPBWIngester struct {
	Populator  *populator.EntityPopulator
	Collection string
	Recorder   *report.Recorder
	Logger     *logrus.Logger
}

// NewSAPBWIngester creates a new SAP BW ingester
func NewSAPBWIngester(pop *populator.EntityPopulator, collection string, recorder *report.Recorder, logger *logrus.Logger) *SAPBWIngester {
	return &SAPBWIngester{
		Populator:  pop,
		Collection: collection,
		Recorder:   recorder,
		Logger:     logger,
	}
}

// Entities converts the rows of a DEVCLASS export into catalog entities.
// Header case is ignored. Rows without a DEVCLASS are recorded and skipped.
func (s *SAPBWIngester) Entities(t *tabular.Table) ([]models.CatalogEntity, error) {
	t.UpperHeaders()
	if err := t.Require("DEVCLASS", "COMPONENT", "PARENTCL", "CTEXT"); err != nil {
		return nil, err
	}
	var out []models.CatalogEntity
	for _, r := range t.Rows {
		name := r.Get("DEVCLASS")
		if name == "" {
			s.Recorder.Fail(StageValidate, fmt.Sprintf("row %d", r.Line), errors.New("missing DEVCLASS"))
			continue
		}
		out = append(out, models.CatalogEntity{
			TypeName:      SAPBWType,
			QualifiedName: fmt.Sprintf("sap_bw://%s/%s", s.Collection, name),
			Name:          name,
			Collection:    s.Collection,
			Attributes: map[string]interface{}{
				"description":  r.Get("CTEXT"),
				"component":    r.Get("COMPONENT"),
				"parent_class": r.Get("PARENTCL"),
			},
		})
	}
	return out, nil
}

// Ingest reads the export at path and uploads its entities
func (s *SAPBWIngester) Ingest(ctx context.Context, path string) (int, error) {
	t, err := tabular.Read(path, tabular.Options{})
	if err != nil {
		s.Recorder.Fail(StageLoad, path, err)
		return 0, err
	}
	entities, err := s.Entities(t)
	if err != nil {
		s.Recorder.Fail(StageLoad, path, err)
		return 0, err
	}

	res, err := s.Populator.Populate(ctx, "upload sap bw", entities)
	s.Recorder.Inc(CounterCreated, res.Created)
	s.Logger.Infof("Imported %d of %d SAP BW assets into collection %s", res.Created, len(entities), s.Collection)
	return res.Created, err
}
