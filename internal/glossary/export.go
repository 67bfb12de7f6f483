package glossary

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/vitebski/purview-catalog-tools/internal/catalog"
	"github.com/vitebski/purview-catalog-tools/internal/tabular"
)

// BusinessGlossaryGroup is the managed attribute group exported with terms
const BusinessGlossaryGroup = "Business Glossary"

// ExportHeader is the column layout of a glossary export, which is also the
// layout the catalog accepts for term imports
var ExportHeader = []string{
	"Name",
	"Definition",
	"Status",
	"Experts",
	"Stewards",
	"[Attribute][Business Glossary]Domain",
	"[Attribute][Business Glossary]Equivalent Phrases",
	ColumnKeys,
}

// Reader is the subset of the catalog session used to read the glossary
type Reader interface {
	ListGlossaries(ctx context.Context) ([]catalog.Glossary, error)
	GetTerm(ctx context.Context, guid string) (*catalog.GlossaryTerm, error)
}

// ExportRecord flattens a term into an export row
func ExportRecord(t *catalog.GlossaryTerm) []string {
	attrs := t.Attributes[BusinessGlossaryGroup]
	return []string{
		t.Name,
		t.LongDescription,
		t.Status,
		strings.Join(t.Experts, ";"),
		strings.Join(t.Stewards, ";"),
		attrs["Domain"],
		attrs["Equivalent Phrases"],
		attrs["System-Table-Field"],
	}
}

// Export writes every term of the named glossary, or of all glossaries
// when name is empty, to path. It returns the number of terms written.
func Export(ctx context.Context, client Reader, name, path string) (int, error) {
	glossaries, err := client.ListGlossaries(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "listing glossaries")
	}

	var records [][]string
	for _, g := range glossaries {
		if name != "" && !strings.EqualFold(g.Name, name) {
			continue
		}
		for _, ref := range g.Terms {
			term, err := client.GetTerm(ctx, ref.GUID)
			if err != nil {
				return 0, errors.Wrapf(err, "fetching term %s", ref.Name)
			}
			records = append(records, ExportRecord(term))
		}
	}
	if err := tabular.Write(path, ExportHeader, records); err != nil {
		return 0, err
	}
	return len(records), nil
}
