package catalog

import (
	"context"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"github.com/vitebski/purview-catalog-tools/pkg/models"
)

const atlasPath = "/catalog/api/atlas/v2"

// EntityHeader is the short form of an entity returned by mutations
type EntityHeader struct {
	GUID          string
	TypeName      string
	QualifiedName string
}

// MutationResult is the outcome of a bulk entity upload
type MutationResult struct {
	GUIDAssignments map[string]string
	Created         []EntityHeader
	Updated         []EntityHeader
}

// EntityDetail is an entity together with the entities it refers to
type EntityDetail struct {
	Entity   models.CatalogEntity
	Referred map[string]models.CatalogEntity
	Raw      []byte
}

// ObjectID builds an Atlas object reference for e, by GUID when known and
// by qualified name otherwise
func ObjectID(e models.CatalogEntity) map[string]interface{} {
	ref := map[string]interface{}{"typeName": e.TypeName}
	if e.GUID != "" {
		ref["guid"] = e.GUID
	}
	if e.QualifiedName != "" {
		ref["uniqueAttributes"] = map[string]interface{}{"qualifiedName": e.QualifiedName}
	}
	return ref
}

// toAtlas converts an entity into its wire form
func toAtlas(e models.CatalogEntity) map[string]interface{} {
	attrs := make(map[string]interface{}, len(e.Attributes)+2)
	for k, v := range e.Attributes {
		attrs[k] = v
	}
	attrs["qualifiedName"] = e.QualifiedName
	if e.Name != "" {
		attrs["name"] = e.Name
	}

	out := map[string]interface{}{
		"typeName":   e.TypeName,
		"attributes": attrs,
	}
	if e.GUID != "" {
		out["guid"] = e.GUID
	}
	if len(e.RelationshipAttributes) > 0 {
		out["relationshipAttributes"] = e.RelationshipAttributes
	}
	if e.Collection != "" {
		out["collectionId"] = e.Collection
	}
	return out
}

// DecodeEntity converts an Atlas entity JSON object into a CatalogEntity
func DecodeEntity(r gjson.Result) models.CatalogEntity {
	e := models.CatalogEntity{
		GUID:          r.Get("guid").String(),
		TypeName:      r.Get("typeName").String(),
		QualifiedName: r.Get("attributes.qualifiedName").String(),
		Name:          r.Get("attributes.name").String(),
		Collection:    r.Get("collectionId").String(),
	}
	if e.Name == "" {
		e.Name = r.Get("displayText").String()
	}
	if m, ok := r.Get("attributes").Value().(map[string]interface{}); ok {
		e.Attributes = m
	}
	if m, ok := r.Get("relationshipAttributes").Value().(map[string]interface{}); ok {
		e.RelationshipAttributes = m
	}
	return e
}

func decodeHeaders(r gjson.Result) []EntityHeader {
	var out []EntityHeader
	r.ForEach(func(_, h gjson.Result) bool {
		out = append(out, EntityHeader{
			GUID:          h.Get("guid").String(),
			TypeName:      h.Get("typeName").String(),
			QualifiedName: h.Get("attributes.qualifiedName").String(),
		})
		return true
	})
	return out
}

// UploadEntities creates or updates entities in one bulk call. Entities with
// a real GUID are updated; placeholder GUIDs ("-1", "-2", ...) are assigned.
func (s *Session) UploadEntities(ctx context.Context, entities []models.CatalogEntity) (*MutationResult, error) {
	if len(entities) == 0 {
		return &MutationResult{GUIDAssignments: map[string]string{}}, nil
	}

	wire := make([]map[string]interface{}, 0, len(entities))
	for _, e := range entities {
		wire = append(wire, toAtlas(e))
	}

	body, err := s.Do(ctx, RequestOptions{
		Method: http.MethodPost,
		Path:   atlasPath + "/entity/bulk",
		Body:   map[string]interface{}{"entities": wire},
	})
	if err != nil {
		return nil, err
	}

	result := &MutationResult{GUIDAssignments: map[string]string{}}
	gjson.GetBytes(body, "guidAssignments").ForEach(func(k, v gjson.Result) bool {
		result.GUIDAssignments[k.String()] = v.String()
		return true
	})
	result.Created = decodeHeaders(gjson.GetBytes(body, "mutatedEntities.CREATE"))
	result.Updated = decodeHeaders(gjson.GetBytes(body, "mutatedEntities.UPDATE"))
	return result, nil
}

func decodeDetail(body []byte) *EntityDetail {
	detail := &EntityDetail{
		Entity:   DecodeEntity(gjson.GetBytes(body, "entity")),
		Referred: map[string]models.CatalogEntity{},
		Raw:      body,
	}
	gjson.GetBytes(body, "referredEntities").ForEach(func(k, v gjson.Result) bool {
		detail.Referred[k.String()] = DecodeEntity(v)
		return true
	})
	return detail
}

// GetEntity fetches an entity and its referred entities by GUID
func (s *Session) GetEntity(ctx context.Context, guid string) (*EntityDetail, error) {
	body, err := s.Do(ctx, RequestOptions{
		Method: http.MethodGet,
		Path:   atlasPath + "/entity/guid/" + url.PathEscape(guid),
	})
	if err != nil {
		if IsNotFound(err) {
			return nil, errors.Wrapf(ErrNotFound, "guid %s", guid)
		}
		return nil, err
	}
	return decodeDetail(body), nil
}

// GetEntityByQualifiedName fetches an entity by its exact unique attribute
func (s *Session) GetEntityByQualifiedName(ctx context.Context, typeName, qualifiedName string) (*EntityDetail, error) {
	body, err := s.Do(ctx, RequestOptions{
		Method: http.MethodGet,
		Path:   atlasPath + "/entity/uniqueAttribute/type/" + url.PathEscape(typeName),
		Query:  url.Values{"attr:qualifiedName": []string{qualifiedName}},
	})
	if err != nil {
		if IsNotFound(err) {
			return nil, errors.Wrapf(ErrNotFound, "%s %s", typeName, qualifiedName)
		}
		return nil, err
	}
	return decodeDetail(body), nil
}

// UpdateEntityAttribute sets a single attribute on an existing entity
func (s *Session) UpdateEntityAttribute(ctx context.Context, guid, name string, value interface{}) error {
	_, err := s.Do(ctx, RequestOptions{
		Method: http.MethodPut,
		Path:   atlasPath + "/entity/guid/" + url.PathEscape(guid),
		Query:  url.Values{"name": []string{name}},
		Body:   value,
	})
	return err
}

// AddClassification attaches a classification to every listed entity
func (s *Session) AddClassification(ctx context.Context, classification string, guids []string) error {
	_, err := s.Do(ctx, RequestOptions{
		Method: http.MethodPost,
		Path:   atlasPath + "/entity/bulk/classification",
		Body: map[string]interface{}{
			"classification": map[string]interface{}{"typeName": classification},
			"entityGuids":    guids,
		},
	})
	return err
}

// Relationship is an Atlas relationship between two entities
type Relationship struct {
	TypeName string
	End1     models.CatalogEntity
	End2     models.CatalogEntity
}

// UploadRelationship creates a relationship. Callers decide whether a
// conflict (IsAlreadyExists) is acceptable.
func (s *Session) UploadRelationship(ctx context.Context, rel Relationship) error {
	_, err := s.Do(ctx, RequestOptions{
		Method: http.MethodPost,
		Path:   atlasPath + "/relationship",
		Body: map[string]interface{}{
			"typeName": rel.TypeName,
			"end1":     ObjectID(rel.End1),
			"end2":     ObjectID(rel.End2),
		},
	})
	return err
}
