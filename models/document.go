package models

import (
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DocumentType is the ingestion class of an uploaded file
type DocumentType string

const (
	DocumentTypePDF DocumentType = "pdf"
	DocumentTypeCSV DocumentType = "csv"
	DocumentTypeTXT DocumentType = "txt"
)

// Tabular reports whether the type is chunked row by row
func (t DocumentType) Tabular() bool {
	return t == DocumentTypeCSV
}

// DetectDocumentType classifies a storage name by its extension (case-insensitive).
// ok is false for unsupported extensions.
func DetectDocumentType(name string) (DocumentType, bool) {
	switch strings.ToLower(path.Ext(name)) {
	case ".pdf":
		return DocumentTypePDF, true
	case ".csv":
		return DocumentTypeCSV, true
	case ".txt":
		return DocumentTypeTXT, true
	default:
		return "", false
	}
}

// Document is one uploaded file, identified by its storage name
type Document struct {
	ID         string       `json:"document_id"`
	FileName   string       `json:"file_name"`
	Type       DocumentType `json:"document_type"`
	IngestedAt time.Time    `json:"ingested_at"`
}

// Chunk is the atomic retrieval unit persisted in the document store
type Chunk struct {
	ID           string       `json:"chunk_id"`
	DocumentID   string       `json:"document_id"`
	DocumentName string       `json:"document_name"`
	InternalID   string       `json:"internal_id"` // chunk_N or row_N
	Ordinal      int          `json:"ordinal"`
	Text         string       `json:"text_content"`
	PageNumber   *int         `json:"page_number,omitempty"`
	DocumentType DocumentType `json:"document_type"`
	CreatedAt    time.Time    `json:"timestamp"`
}

// Page is extracted text of one page. Number is 0 for sources without pagination.
type Page struct {
	Number int
	Text   string
}

// ObjectEvent is the storage trigger fired when an object is created
type ObjectEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// IngestResult summarises one ingestion run
type IngestResult struct {
	DocumentID string `json:"document_id"`
	FileName   string `json:"file_name"`
	Skipped    bool   `json:"skipped"`
	Chunks     int    `json:"chunks"`
	Stored     int    `json:"stored"`
	Failed     int    `json:"failed"`
	Indexed    int    `json:"indexed"`
	Removed    int    `json:"removed"`
}

var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("rag-document-platform"))

// DocumentIDFor returns the stable document id of a storage name
func DocumentIDFor(fileName string) string {
	return uuid.NewSHA1(idNamespace, []byte(fileName)).String()
}

// ChunkIDFor returns the stable chunk id of (document, internal id), so re-ingesting
// the same file addresses the same rows and vectors.
func ChunkIDFor(fileName, internalID string) string {
	return uuid.NewSHA1(idNamespace, []byte(fileName+"/"+internalID)).String()
}
