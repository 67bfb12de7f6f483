package models

import (
	"fmt"
	"time"
)

// CatalogEntity represents one cataloged asset (table, view, file path, report, column, etc.)
type CatalogEntity struct {
	GUID                   string                 `json:"guid,omitempty"`
	TypeName               string                 `json:"typeName"`
	QualifiedName          string                 `json:"qualifiedName"`
	Name                   string                 `json:"name"`
	Attributes             map[string]interface{} `json:"attributes,omitempty"`
	RelationshipAttributes map[string]interface{} `json:"relationshipAttributes,omitempty"`
	Collection             string                 `json:"collectionId,omitempty"`
}

// HasGUID reports whether the entity already exists in the catalog
func (e CatalogEntity) HasGUID() bool {
	return e.GUID != "" && e.GUID[0] != '-'
}

// ProcessType names the kind of pipeline a lineage edge represents
type ProcessType string

const (
	IngestionFramework        ProcessType = "ingestion_framework"
	DWRoutine                 ProcessType = "dw_routine"
	DWViewCreation            ProcessType = "dw_view_creation"
	DSPConnection             ProcessType = "dsp_connection"
	SharepointToPBI           ProcessType = "sharepoint_to_pbi"
	DatabricksToPBI           ProcessType = "Databricks_to_PBI"
	SQLServerToPBI            ProcessType = "SQL_Server_to_PBI"
	OracleServerToPBI         ProcessType = "Oracle_Server_to_PBI"
	CubeToPBI                 ProcessType = "Cube_to_PBI"
	DLStageToDLCurated        ProcessType = "DL_Stage_to_DL_Curated"
	DLCuratedToDWStage        ProcessType = "DL_Curated_to_DW_Stage"
	OracleToDLStage           ProcessType = "Oracle_to_DL_Stage"
	DLManualFileToDLStage     ProcessType = "DL_Manual_File_to_DL_Stage"
	SQLViewToDLStage          ProcessType = "SQL_VW_to_DL_Stage"
	SQLTableToDLStage         ProcessType = "SQL_Table_to_DL_Stage"
	DLCuratedToDLCurated      ProcessType = "DL_Curated_to_DL_Curated"
	SQLDatabaseExtract        ProcessType = "sql_database_extract"
	SQLDatabaseSource         ProcessType = "sql_database_source"
	DWToPBIDataset            ProcessType = "DW_to_PBI_Dataset"
	TabularModelToPBIDataset  ProcessType = "Tabular_Model_to_PBI_Dataset"
	InformaticaConnection     ProcessType = "Informatica_Connection"
	ColumnMapping             ProcessType = "Column_Mapping"
	ColumnConnection          ProcessType = "Column_Connection"
	MySQLViewCreation         ProcessType = "mysql_view_creation"
)

// ProcessTypes lists every known process type
var ProcessTypes = []ProcessType{
	IngestionFramework, DWRoutine, DWViewCreation, DSPConnection, SharepointToPBI,
	DatabricksToPBI, SQLServerToPBI, OracleServerToPBI, CubeToPBI, DLStageToDLCurated,
	DLCuratedToDWStage, OracleToDLStage, DLManualFileToDLStage, SQLViewToDLStage,
	SQLTableToDLStage, DLCuratedToDLCurated, SQLDatabaseExtract, SQLDatabaseSource,
	DWToPBIDataset, TabularModelToPBIDataset, InformaticaConnection, ColumnMapping,
	ColumnConnection, MySQLViewCreation,
}

// ParseProcessType returns the process type matching name
func ParseProcessType(name string) (ProcessType, error) {
	for _, pt := range ProcessTypes {
		if string(pt) == name {
			return pt, nil
		}
	}
	return "", fmt.Errorf("unknown process type: %s", name)
}

// LineageEdge represents a directed data-flow relationship (a process entity)
type LineageEdge struct {
	Sources       []CatalogEntity
	Targets       []CatalogEntity
	ProcessType   ProcessType
	QualifiedName string
	Name          string
	Description   string
	Attributes    map[string]interface{}
}

// TermAssignment associates a glossary term with catalog entities
type TermAssignment struct {
	TermGUID    string
	TermName    string
	EntityGUIDs []string
}

// Collection is a hierarchical grouping node
type Collection struct {
	Name         string `json:"name"`
	FriendlyName string `json:"friendlyName"`
	Description  string `json:"description,omitempty"`
	ParentName   string `json:"parentName,omitempty"`
}

// IsRoot reports whether the collection has no parent
func (c Collection) IsRoot() bool {
	return c.ParentName == ""
}

// ParsedReference holds the raw identifying fragments extracted from a source artifact
type ParsedReference struct {
	Server string
	Schema string
	Table  string
	Column string
}

func (r ParsedReference) String() string {
	s := fmt.Sprintf("%s/%s/%s", r.Server, r.Schema, r.Table)
	if r.Column != "" {
		s += "#" + r.Column
	}
	return s
}

// ReferencePair is a (source, target) candidate emitted by an extractor
type ReferencePair struct {
	Source ParsedReference
	Target ParsedReference
}

// StageError is a per-item failure recorded during a best-effort run
type StageError struct {
	Stage   string `json:"stage"`
	ItemKey string `json:"itemKey"`
	Cause   error  `json:"-"`
}

func (e *StageError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s [%s]", e.Stage, e.ItemKey)
	}
	return fmt.Sprintf("%s [%s]: %v", e.Stage, e.ItemKey, e.Cause)
}

func (e *StageError) Unwrap() error {
	return e.Cause
}

// RunSummary represents the outcome of a single command run
type RunSummary struct {
	RunID      string         `json:"runId"`
	Name       string         `json:"name"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	Counts     map[string]int `json:"counts"`
	Errors     []ErrorEntry   `json:"errors"`
}

// ErrorEntry is the serialized form of a StageError
type ErrorEntry struct {
	Stage   string `json:"stage"`
	ItemKey string `json:"itemKey"`
	Cause   string `json:"cause"`
}

// SourceColumn represents a column harvested from a SQL source system
type SourceColumn struct {
	Name       string
	DataType   string
	ColumnType string
	IsNullable bool
	ColumnKey  string
	Comment    string
}

// SourceTable represents a table or view harvested from a SQL source system
type SourceTable struct {
	Schema  string
	Name    string
	IsView  bool
	Columns []SourceColumn
	// Definition holds the view body for views
	Definition string
}
