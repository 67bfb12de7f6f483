package glossary

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/purview-catalog-tools/internal/catalog"
	"github.com/vitebski/purview-catalog-tools/internal/report"
)

// StageClassify is the stage of classification to term association
const StageClassify = "glossary-classify"

// ClassifyClient is the subset of the catalog session used to associate
// classifications with terms
type ClassifyClient interface {
	Client
	SearchAll(ctx context.Context, req catalog.SearchRequest) ([]catalog.SearchHit, error)
}

// Classifier assigns a glossary term to every entity carrying a
// classification
type Classifier struct {
	Client   ClassifyClient
	Glossary string
	Recorder *report.Recorder
	Logger   *logrus.Logger
}

// NewClassifier creates a new classifier
func NewClassifier(client ClassifyClient, glossary string, recorder *report.Recorder, logger *logrus.Logger) *Classifier {
	return &Classifier{Client: client, Glossary: glossary, Recorder: recorder, Logger: logger}
}

// Associate assigns term to the entities classified as classification and
// returns how many were assigned
func (c *Classifier) Associate(ctx context.Context, classification, term string) (int, error) {
	hits, err := c.Client.SearchAll(ctx, catalog.SearchRequest{
		Keywords: classification,
		Filter:   map[string]interface{}{"classification": classification},
	})
	if err != nil {
		err = errors.Wrapf(err, "searching classification %s", classification)
		c.Recorder.Fail(StageClassify, classification, err)
		return 0, err
	}
	if len(hits) == 0 {
		c.Logger.Infof("Classification %q for glossary term %q has no instances", classification, term)
		return 0, nil
	}

	guids := make([]string, 0, len(hits))
	for _, h := range hits {
		guids = append(guids, h.ID)
	}
	ref, err := c.Client.FindTerm(ctx, c.Glossary, term)
	if err != nil {
		c.Recorder.Fail(StageClassify, classification, err)
		return 0, err
	}
	if err := c.Client.AssignTerm(ctx, ref.GUID, guids); err != nil && !catalog.IsAlreadyExists(err) {
		err = errors.Wrapf(err, "linking %s to %s", classification, term)
		c.Recorder.Fail(StageClassify, classification, err)
		return 0, err
	}
	c.Recorder.Inc(CounterEntitiesAssigned, len(guids))
	c.Logger.Infof("Linked classification %s to glossary term %s on %d entities", classification, term, len(guids))
	return len(guids), nil
}

// Pair is a classification and the glossary term it implies
type Pair struct {
	Classification string
	Term           string
}

// AssociateAll runs Associate for each pair, continuing past failures
func (c *Classifier) AssociateAll(ctx context.Context, pairs []Pair) int {
	total := 0
	for _, p := range pairs {
		if ctx.Err() != nil {
			break
		}
		n, err := c.Associate(ctx, p.Classification, p.Term)
		if err != nil {
			continue
		}
		total += n
	}
	return total
}
