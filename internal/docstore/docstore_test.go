package docstore

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-document-platform/internal/database"
	"rag-document-platform/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "rag.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func testDoc(name string, docType models.DocumentType, n int) (models.Document, []models.Chunk) {
	doc := models.Document{ID: models.DocumentIDFor(name), FileName: name, Type: docType}
	chunks := make([]models.Chunk, n)
	for i := range chunks {
		internal := fmt.Sprintf("chunk_%d", i)
		page := i + 1
		chunks[i] = models.Chunk{
			ID:           models.ChunkIDFor(name, internal),
			DocumentID:   doc.ID,
			DocumentName: name,
			InternalID:   internal,
			Ordinal:      i,
			Text:         fmt.Sprintf("text %d", i),
			PageNumber:   &page,
			DocumentType: docType,
		}
	}
	return doc, chunks
}

func ids(chunks []models.Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.ID
	}
	sort.Strings(out)
	return out
}

func TestReplaceDocumentStoresChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc, chunks := testDoc("report.pdf", models.DocumentTypePDF, 3)

	removed, err := s.ReplaceDocument(ctx, doc, chunks)
	require.NoError(t, err)
	assert.Empty(t, removed)

	got, err := s.ChunksByDocument(ctx, "report.pdf")
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, c := range got {
		assert.Equal(t, chunks[i].ID, c.ID)
		assert.Equal(t, "report.pdf", c.DocumentName)
		assert.Equal(t, chunks[i].Text, c.Text)
		require.NotNil(t, c.PageNumber)
		assert.Equal(t, i+1, *c.PageNumber)
		assert.Equal(t, models.DocumentTypePDF, c.DocumentType)
	}
}

func TestReplaceDocumentIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc, chunks := testDoc("report.pdf", models.DocumentTypePDF, 3)

	_, err := s.ReplaceDocument(ctx, doc, chunks)
	require.NoError(t, err)
	require.NoError(t, s.MarkIndexed(ctx, ids(chunks)))

	removed, err := s.ReplaceDocument(ctx, doc, chunks)
	require.NoError(t, err)
	assert.Empty(t, removed)

	got, err := s.ChunksByDocument(ctx, "report.pdf")
	require.NoError(t, err)
	assert.Len(t, got, 3)

	// re-ingested rows need their vectors re-confirmed
	pending, err := s.UnindexedChunks(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 3)
}

func TestReplaceDocumentRemovesStaleChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc, chunks := testDoc("report.pdf", models.DocumentTypePDF, 3)
	_, err := s.ReplaceDocument(ctx, doc, chunks)
	require.NoError(t, err)

	removed, err := s.ReplaceDocument(ctx, doc, chunks[:1])
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{chunks[1].ID, chunks[2].ID}, removed)

	got, err := s.ChunksByDocument(ctx, "report.pdf")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	pending, err := s.PendingDeletions(ctx, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, removed, pending)

	require.NoError(t, s.ClearDeletions(ctx, pending))
	pending, err = s.PendingDeletions(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestChunksByIDSkipsMissing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc, chunks := testDoc("faq.txt", models.DocumentTypeTXT, 2)
	chunks[1].PageNumber = nil
	_, err := s.ReplaceDocument(ctx, doc, chunks)
	require.NoError(t, err)

	got, err := s.ChunksByID(ctx, []string{chunks[1].ID, "does-not-exist", chunks[0].ID})
	require.NoError(t, err)
	assert.Equal(t, ids(chunks), ids(got))

	for _, c := range got {
		if c.ID == chunks[1].ID {
			assert.Nil(t, c.PageNumber)
		}
	}

	none, err := s.ChunksByID(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMarkIndexedAndUnindexed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc, chunks := testDoc("report.pdf", models.DocumentTypePDF, 4)
	_, err := s.ReplaceDocument(ctx, doc, chunks)
	require.NoError(t, err)

	require.NoError(t, s.MarkIndexed(ctx, []string{chunks[0].ID, chunks[2].ID}))

	pending, err := s.UnindexedChunks(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, ids([]models.Chunk{chunks[1], chunks[3]}), ids(pending))

	limited, err := s.UnindexedChunks(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestDeleteChunksRecordsTombstones(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc, chunks := testDoc("report.pdf", models.DocumentTypePDF, 2)
	_, err := s.ReplaceDocument(ctx, doc, chunks)
	require.NoError(t, err)

	require.NoError(t, s.DeleteChunks(ctx, []string{chunks[0].ID}))

	got, err := s.ChunksByDocument(ctx, "report.pdf")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, chunks[1].ID, got[0].ID)

	pending, err := s.PendingDeletions(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{chunks[0].ID}, pending)
}

func TestReplaceDocumentClearsTombstoneOfRewrittenChunk(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc, chunks := testDoc("report.pdf", models.DocumentTypePDF, 2)
	_, err := s.ReplaceDocument(ctx, doc, chunks)
	require.NoError(t, err)
	require.NoError(t, s.DeleteChunks(ctx, []string{chunks[1].ID}))

	_, err = s.ReplaceDocument(ctx, doc, chunks)
	require.NoError(t, err)

	pending, err := s.PendingDeletions(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestResetIndexed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc, chunks := testDoc("report.pdf", models.DocumentTypePDF, 3)
	_, err := s.ReplaceDocument(ctx, doc, chunks)
	require.NoError(t, err)
	require.NoError(t, s.MarkIndexed(ctx, ids(chunks)))

	n, err := s.ResetIndexed(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	pending, err := s.UnindexedChunks(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, ids(chunks), ids(pending))
}

func TestCanceledContextWritesNothing(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	doc, chunks := testDoc("report.pdf", models.DocumentTypePDF, 2)
	_, err := s.ReplaceDocument(ctx, doc, chunks)
	require.Error(t, err)

	got, err := s.ChunksByDocument(context.Background(), "report.pdf")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	empty, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, empty)

	doc, chunks := testDoc("report.pdf", models.DocumentTypePDF, 3)
	_, err = s.ReplaceDocument(ctx, doc, chunks)
	require.NoError(t, err)
	require.NoError(t, s.MarkIndexed(ctx, []string{chunks[0].ID}))
	require.NoError(t, s.DeleteChunks(ctx, []string{chunks[2].ID}))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Documents: 1, Chunks: 2, Unindexed: 1, PendingDeletions: 1}, st)
}

func TestDocumentsListsCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pdf, pdfChunks := testDoc("report.pdf", models.DocumentTypePDF, 3)
	_, err := s.ReplaceDocument(ctx, pdf, pdfChunks)
	require.NoError(t, err)
	csv, csvChunks := testDoc("data.csv", models.DocumentTypeCSV, 2)
	_, err = s.ReplaceDocument(ctx, csv, csvChunks)
	require.NoError(t, err)
	require.NoError(t, s.MarkIndexed(ctx, ids(csvChunks)))

	docs, err := s.Documents(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "data.csv", docs[0].FileName)
	assert.Equal(t, models.DocumentTypeCSV, docs[0].Type)
	assert.Equal(t, 2, docs[0].Chunks)
	assert.Equal(t, 0, docs[0].Unindexed)

	assert.Equal(t, "report.pdf", docs[1].FileName)
	assert.Equal(t, 3, docs[1].Chunks)
	assert.Equal(t, 3, docs[1].Unindexed)
	assert.False(t, docs[1].IngestedAt.IsZero())
}
