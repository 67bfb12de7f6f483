package catalog

import (
	"context"
	"net/http"
)

// AttributeDef describes one attribute of a custom entity type
type AttributeDef struct {
	Name        string `json:"name"`
	TypeName    string `json:"typeName"`
	IsOptional  bool   `json:"isOptional"`
	Cardinality string `json:"cardinality"`
	IsUnique    bool   `json:"isUnique"`
	IsIndexable bool   `json:"isIndexable"`
}

// EntityTypeDef is a custom entity type registered before ingestion
type EntityTypeDef struct {
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	SuperTypes    []string       `json:"superTypes"`
	AttributeDefs []AttributeDef `json:"attributeDefs"`
}

// RelationshipEndDef is one end of a relationship type
type RelationshipEndDef struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	IsContainer bool   `json:"isContainer"`
	Cardinality string `json:"cardinality"`
}

// RelationshipTypeDef is a custom relationship type
type RelationshipTypeDef struct {
	Name                 string             `json:"name"`
	RelationshipCategory string             `json:"relationshipCategory"`
	EndDef1              RelationshipEndDef `json:"endDef1"`
	EndDef2              RelationshipEndDef `json:"endDef2"`
}

// StringAttr returns an optional single-valued attribute definition
func StringAttr(name, typeName string) AttributeDef {
	return AttributeDef{Name: name, TypeName: typeName, IsOptional: true, Cardinality: "SINGLE"}
}

// UploadTypeDefs registers entity and relationship types. A conflict is
// reported as an error; use IsAlreadyExists to treat it as success.
func (s *Session) UploadTypeDefs(ctx context.Context, entityDefs []EntityTypeDef, relationshipDefs []RelationshipTypeDef) error {
	body := map[string]interface{}{
		"entityDefs":       entityDefs,
		"relationshipDefs": relationshipDefs,
	}
	if entityDefs == nil {
		body["entityDefs"] = []EntityTypeDef{}
	}
	if relationshipDefs == nil {
		body["relationshipDefs"] = []RelationshipTypeDef{}
	}
	_, err := s.Do(ctx, RequestOptions{
		Method: http.MethodPost,
		Path:   atlasPath + "/types/typedefs",
		Body:   body,
	})
	return err
}
