package catalog

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// GlossaryTermRef is a term listed under a glossary
type GlossaryTermRef struct {
	GUID string
	Name string
}

// Glossary is a glossary with its term references
type Glossary struct {
	GUID  string
	Name  string
	Terms []GlossaryTermRef
}

// GlossaryTerm is the detail of a single term
type GlossaryTerm struct {
	GUID            string
	Name            string
	LongDescription string
	Status          string
	Experts         []string
	Stewards        []string
	// Attributes holds the managed attribute groups, e.g. "Business Glossary"
	Attributes map[string]map[string]string
}

// ListGlossaries returns every glossary in the account
func (s *Session) ListGlossaries(ctx context.Context) ([]Glossary, error) {
	body, err := s.Do(ctx, RequestOptions{
		Method: http.MethodGet,
		Path:   atlasPath + "/glossary",
		Query:  url.Values{"limit": []string{"-1"}, "offset": []string{"0"}, "sort": []string{"ASC"}},
	})
	if err != nil {
		return nil, err
	}

	var out []Glossary
	gjson.ParseBytes(body).ForEach(func(_, g gjson.Result) bool {
		gl := Glossary{GUID: g.Get("guid").String(), Name: g.Get("name").String()}
		g.Get("terms").ForEach(func(_, t gjson.Result) bool {
			gl.Terms = append(gl.Terms, GlossaryTermRef{
				GUID: t.Get("termGuid").String(),
				Name: t.Get("displayText").String(),
			})
			return true
		})
		out = append(out, gl)
		return true
	})
	return out, nil
}

// FindTerm resolves a term name within the named glossary. An empty
// glossary name searches all glossaries.
func (s *Session) FindTerm(ctx context.Context, glossaryName, termName string) (GlossaryTermRef, error) {
	glossaries, err := s.ListGlossaries(ctx)
	if err != nil {
		return GlossaryTermRef{}, err
	}
	for _, g := range glossaries {
		if glossaryName != "" && !strings.EqualFold(g.Name, glossaryName) {
			continue
		}
		for _, t := range g.Terms {
			if t.Name == termName {
				return t, nil
			}
		}
	}
	return GlossaryTermRef{}, errors.Wrapf(ErrNotFound, "glossary term %q", termName)
}

// GetTerm fetches the detail of a glossary term
func (s *Session) GetTerm(ctx context.Context, guid string) (*GlossaryTerm, error) {
	body, err := s.Do(ctx, RequestOptions{
		Method: http.MethodGet,
		Path:   atlasPath + "/glossary/term/" + url.PathEscape(guid),
	})
	if err != nil {
		return nil, err
	}

	r := gjson.ParseBytes(body)
	term := &GlossaryTerm{
		GUID:            r.Get("guid").String(),
		Name:            r.Get("name").String(),
		LongDescription: r.Get("longDescription").String(),
		Status:          r.Get("status").String(),
		Attributes:      map[string]map[string]string{},
	}
	r.Get("contacts.Expert.#.info").ForEach(func(_, v gjson.Result) bool {
		term.Experts = append(term.Experts, v.String())
		return true
	})
	r.Get("contacts.Steward.#.info").ForEach(func(_, v gjson.Result) bool {
		term.Stewards = append(term.Stewards, v.String())
		return true
	})
	r.Get("attributes").ForEach(func(group, attrs gjson.Result) bool {
		m := map[string]string{}
		attrs.ForEach(func(k, v gjson.Result) bool {
			m[k.String()] = v.String()
			return true
		})
		term.Attributes[group.String()] = m
		return true
	})
	return term, nil
}

// AssignTerm links a term to entities. Assignment is additive.
func (s *Session) AssignTerm(ctx context.Context, termGUID string, entityGUIDs []string) error {
	refs := make([]map[string]string, 0, len(entityGUIDs))
	for _, g := range entityGUIDs {
		refs = append(refs, map[string]string{"guid": g})
	}
	_, err := s.Do(ctx, RequestOptions{
		Method: http.MethodPost,
		Path:   atlasPath + "/glossary/terms/" + url.PathEscape(termGUID) + "/assignedEntities",
		Body:   refs,
	})
	return err
}
