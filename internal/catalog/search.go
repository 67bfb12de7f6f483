package catalog

import (
	"context"
	"net/http"

	"github.com/tidwall/gjson"
	"github.com/vitebski/purview-catalog-tools/pkg/models"
)

// PageSize is the number of results requested per search or browse page
const PageSize = 100

// SearchRequest is a full-text query against the catalog
type SearchRequest struct {
	Keywords string
	Filter   map[string]interface{}
	Limit    int
	Offset   int
}

// SearchHit is one search or browse result
type SearchHit struct {
	ID            string
	QualifiedName string
	Name          string
	DisplayText   string
	EntityType    string
	Collection    string
}

// Entity converts the hit into a CatalogEntity
func (h SearchHit) Entity() models.CatalogEntity {
	return models.CatalogEntity{
		GUID:          h.ID,
		TypeName:      h.EntityType,
		QualifiedName: h.QualifiedName,
		Name:          h.Name,
		Collection:    h.Collection,
	}
}

// SearchPage is one page of hits plus the total count
type SearchPage struct {
	Count int
	Hits  []SearchHit
}

func decodeHits(body []byte) *SearchPage {
	page := &SearchPage{Count: searchCount(body)}
	gjson.GetBytes(body, "value").ForEach(func(_, v gjson.Result) bool {
		hit := SearchHit{
			ID:            v.Get("id").String(),
			QualifiedName: v.Get("qualifiedName").String(),
			Name:          v.Get("name").String(),
			DisplayText:   v.Get("displayText").String(),
			EntityType:    v.Get("entityType").String(),
			Collection:    v.Get("collectionId").String(),
		}
		if hit.DisplayText == "" {
			hit.DisplayText = hit.Name
		}
		page.Hits = append(page.Hits, hit)
		return true
	})
	return page
}

// searchCount reads the "@search.count" key, which gjson would otherwise
// treat as a path modifier
func searchCount(body []byte) int {
	count := 0
	gjson.ParseBytes(body).ForEach(func(k, v gjson.Result) bool {
		if k.String() == "@search.count" {
			count = int(v.Int())
			return false
		}
		return true
	})
	return count
}

// Search runs one page of a keyword query
func (s *Session) Search(ctx context.Context, req SearchRequest) (*SearchPage, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = PageSize
	}
	body := map[string]interface{}{
		"keywords": req.Keywords,
		"limit":    limit,
		"offset":   req.Offset,
	}
	if len(req.Filter) > 0 {
		body["filter"] = req.Filter
	}

	data, err := s.Do(ctx, RequestOptions{
		Method: http.MethodPost,
		Path:   "/catalog/api/search/query",
		Query:  apiVersion(searchAPIVersion),
		Body:   body,
	})
	if err != nil {
		return nil, err
	}
	return decodeHits(data), nil
}

// SearchAll pages through every hit of a query
func (s *Session) SearchAll(ctx context.Context, req SearchRequest) ([]SearchHit, error) {
	var all []SearchHit
	req.Limit = PageSize
	for {
		page, err := s.Search(ctx, req)
		if err != nil {
			return all, err
		}
		all = append(all, page.Hits...)
		req.Offset += len(page.Hits)
		if len(page.Hits) == 0 || req.Offset >= page.Count {
			return all, nil
		}
	}
}

// Browse returns one page of entities of the given type
func (s *Session) Browse(ctx context.Context, entityType string, offset int) (*SearchPage, error) {
	data, err := s.Do(ctx, RequestOptions{
		Method: http.MethodPost,
		Path:   "/catalog/api/browse",
		Query:  apiVersion(searchAPIVersion),
		Body: map[string]interface{}{
			"entityType": entityType,
			"offset":     offset,
			"limit":      PageSize,
		},
	})
	if err != nil {
		return nil, err
	}
	return decodeHits(data), nil
}

// BrowseAll returns every entity of the given type, following the
// @search.count total
func (s *Session) BrowseAll(ctx context.Context, entityType string) ([]SearchHit, error) {
	var all []SearchHit
	offset := 0
	for {
		page, err := s.Browse(ctx, entityType, offset)
		if err != nil {
			return all, err
		}
		all = append(all, page.Hits...)
		offset += len(page.Hits)
		if len(page.Hits) == 0 || offset >= page.Count {
			return all, nil
		}
	}
}
