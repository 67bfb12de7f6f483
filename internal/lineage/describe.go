package lineage

import (
	"context"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"github.com/vitebski/purview-catalog-tools/internal/catalog"
	"github.com/vitebski/purview-catalog-tools/pkg/models"
)

// UpdateConnectorDescriptions sets the userDescription of every process of
// the given type from its first input and first output
func (w *Writer) UpdateConnectorDescriptions(ctx context.Context, processType models.ProcessType) error {
	hits, err := w.Client.SearchAll(ctx, catalog.SearchRequest{
		Filter: map[string]interface{}{
			"and": []map[string]interface{}{{
				"attributeName":  "qualifiedName",
				"operator":       "contains",
				"attributeValue": "process_type:" + string(processType),
			}},
		},
	})
	if err != nil {
		return errors.Wrapf(err, "searching processes of type %s", processType)
	}
	if len(hits) == 0 {
		w.Logger.Infof("No entities found for process type '%s'", processType)
		return nil
	}

	for _, hit := range hits {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if hit.ID == "" {
			w.Logger.Warnf("Skipping search result without a guid: %s", hit.QualifiedName)
			continue
		}

		detail, err := w.Client.GetEntity(ctx, hit.ID)
		if err != nil {
			w.Recorder.Fail(StageDescribe, hit.ID, err)
			continue
		}

		input := gjson.GetBytes(detail.Raw, "entity.relationshipAttributes.inputs.0")
		output := gjson.GetBytes(detail.Raw, "entity.relationshipAttributes.outputs.0")
		if !input.Exists() || !output.Exists() {
			w.Logger.Infof("Skipping update for entity %s: missing source or target information", hit.ID)
			w.Recorder.Inc("descriptions_skipped", 1)
			continue
		}

		desc := Description(
			input.Get("typeName").String(), input.Get("displayText").String(),
			output.Get("typeName").String(), output.Get("displayText").String(),
		)
		if err := w.Client.UpdateEntityAttribute(ctx, hit.ID, "userDescription", desc); err != nil {
			w.Recorder.Fail(StageDescribe, hit.ID, err)
			continue
		}
		w.Recorder.Inc("descriptions_updated", 1)
		w.Logger.Debugf("Updated entity %s with description: %s", hit.ID, desc)
	}
	return nil
}
