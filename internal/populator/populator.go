package populator

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/purview-catalog-tools/internal/catalog"
	"github.com/vitebski/purview-catalog-tools/internal/report"
	"github.com/vitebski/purview-catalog-tools/pkg/models"
	"golang.org/x/sync/errgroup"
)

// DefaultBatchSize is the number of entities per bulk upload
const DefaultBatchSize = 100

// Uploader persists one batch of entities
type Uploader interface {
	UploadEntities(ctx context.Context, entities []models.CatalogEntity) (*catalog.MutationResult, error)
}

// Result summarizes one Populate call
type Result struct {
	Created       int
	Failed        int
	FailedBatches int
	// GUIDs maps qualified names to the GUIDs the service assigned or kept
	GUIDs map[string]string
}

// EntityPopulator uploads entities to the catalog in batches
type EntityPopulator struct {
	Client    Uploader
	BatchSize int
	Workers   int
	Recorder  *report.Recorder
	Logger    *logrus.Logger
}

// NewEntityPopulator creates a new entity populator
func NewEntityPopulator(client Uploader, batchSize, workers int, recorder *report.Recorder, logger *logrus.Logger) *EntityPopulator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if workers <= 0 {
		workers = 1
	}
	return &EntityPopulator{
		Client:    client,
		BatchSize: batchSize,
		Workers:   workers,
		Recorder:  recorder,
		Logger:    logger,
	}
}

// Populate uploads entities in batches of BatchSize. A failed batch is
// recorded under stage and the remaining batches still run. With one worker
// batches are uploaded in order.
func (p *EntityPopulator) Populate(ctx context.Context, stage string, entities []models.CatalogEntity) (Result, error) {
	res := Result{GUIDs: make(map[string]string)}
	if len(entities) == 0 {
		return res, nil
	}

	total := (len(entities) + p.BatchSize - 1) / p.BatchSize
	p.Logger.Infof("Uploading %d entities in %d batches (%s)", len(entities), total, stage)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Workers)

	for i := 0; i < len(entities); i += p.BatchSize {
		end := i + p.BatchSize
		if end > len(entities) {
			end = len(entities)
		}
		batch := withPlaceholders(entities[i:end])
		num := i/p.BatchSize + 1

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p.Logger.Infof("Processing batch %d/%d (%d entities)", num, total, len(batch))
			out, err := p.Client.UploadEntities(gctx, batch)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed += len(batch)
				res.FailedBatches++
				p.Recorder.Fail(stage, fmt.Sprintf("batch %d", num), errors.Wrapf(err, "uploading batch %d/%d", num, total))
				return nil
			}
			res.Created += len(batch)
			for _, e := range batch {
				guid := e.GUID
				if assigned, ok := out.GUIDAssignments[guid]; ok {
					guid = assigned
				}
				res.GUIDs[e.QualifiedName] = guid
			}
			p.Logger.Infof("Successfully created batch %d", num)
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	return res, err
}

// withPlaceholders copies a batch, giving entities without a GUID a
// negative placeholder unique within the batch
func withPlaceholders(batch []models.CatalogEntity) []models.CatalogEntity {
	out := make([]models.CatalogEntity, len(batch))
	for i, e := range batch {
		if e.GUID == "" {
			e.GUID = fmt.Sprintf("-%d", i+1)
		}
		out[i] = e
	}
	return out
}
