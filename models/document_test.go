package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectDocumentType(t *testing.T) {
	cases := []struct {
		name string
		want DocumentType
		ok   bool
	}{
		{"report.pdf", DocumentTypePDF, true},
		{"REPORT.PDF", DocumentTypePDF, true},
		{"data.csv", DocumentTypeCSV, true},
		{"folder/notes.Txt", DocumentTypeTXT, true},
		{"image.png", "", false},
		{"archive.pdf.zip", "", false},
		{"noext", "", false},
	}
	for _, tc := range cases {
		got, ok := DetectDocumentType(tc.name)
		assert.Equal(t, tc.ok, ok, tc.name)
		assert.Equal(t, tc.want, got, tc.name)
	}
}

func TestSourceFromChunk(t *testing.T) {
	page := 3
	c := Chunk{ID: "c1", DocumentName: "report.pdf", Text: "hello", DocumentType: DocumentTypePDF, PageNumber: &page}
	s := SourceFromChunk(c)
	assert.Equal(t, "report.pdf", s.DocumentName)
	assert.Equal(t, "c1", s.ChunkID)
	assert.Equal(t, "hello", s.TextContent)
	assert.Equal(t, 3, *s.PageNumber)
}

func TestStableIDs(t *testing.T) {
	assert.Equal(t, DocumentIDFor("report.pdf"), DocumentIDFor("report.pdf"))
	assert.NotEqual(t, DocumentIDFor("report.pdf"), DocumentIDFor("report2.pdf"))

	a := ChunkIDFor("report.pdf", "chunk_0")
	assert.Equal(t, a, ChunkIDFor("report.pdf", "chunk_0"))
	assert.NotEqual(t, a, ChunkIDFor("report.pdf", "chunk_1"))
	assert.NotEqual(t, a, ChunkIDFor("other.pdf", "chunk_0"))
	assert.Len(t, a, 36)
}
