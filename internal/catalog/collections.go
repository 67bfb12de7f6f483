package catalog

import (
	"context"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"
	"github.com/vitebski/purview-catalog-tools/pkg/models"
)

// ListCollections returns every collection of the account, following
// nextLink pages
func (s *Session) ListCollections(ctx context.Context) ([]models.Collection, error) {
	var out []models.Collection
	query := apiVersion(collectionAPIVersion)
	for {
		body, err := s.Do(ctx, RequestOptions{
			Method: http.MethodGet,
			Path:   "/account/collections",
			Query:  query,
		})
		if err != nil {
			return out, err
		}

		gjson.GetBytes(body, "value").ForEach(func(_, v gjson.Result) bool {
			out = append(out, models.Collection{
				Name:         v.Get("name").String(),
				FriendlyName: v.Get("friendlyName").String(),
				Description:  v.Get("description").String(),
				ParentName:   v.Get("parentCollection.referenceName").String(),
			})
			return true
		})

		next := gjson.GetBytes(body, "nextLink").String()
		if next == "" {
			return out, nil
		}
		u, err := url.Parse(next)
		if err != nil {
			return out, nil
		}
		query = u.Query()
	}
}

// CreateOrUpdateCollection writes a collection under its parent
func (s *Session) CreateOrUpdateCollection(ctx context.Context, c models.Collection) error {
	body := map[string]interface{}{
		"friendlyName": c.FriendlyName,
		"description":  c.Description,
	}
	if c.ParentName != "" {
		body["parentCollection"] = map[string]string{"referenceName": c.ParentName}
	}
	_, err := s.Do(ctx, RequestOptions{
		Method: http.MethodPut,
		Path:   "/account/collections/" + url.PathEscape(c.Name),
		Query:  apiVersion(collectionAPIVersion),
		Body:   body,
	})
	return err
}

// DeleteCollection removes an empty collection
func (s *Session) DeleteCollection(ctx context.Context, name string) error {
	_, err := s.Do(ctx, RequestOptions{
		Method: http.MethodDelete,
		Path:   "/account/collections/" + url.PathEscape(name),
		Query:  apiVersion(collectionAPIVersion),
	})
	return err
}

// MoveEntities moves entities into a collection
func (s *Session) MoveEntities(ctx context.Context, collection string, guids []string) error {
	q := apiVersion(datamapAPIVersion)
	q.Set("collectionId", collection)
	_, err := s.Do(ctx, RequestOptions{
		Method: http.MethodPost,
		Path:   "/datamap/api/entity/moveTo",
		Query:  q,
		Body:   map[string]interface{}{"entityGuids": guids},
	})
	return err
}
