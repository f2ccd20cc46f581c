package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-document-platform/internal/chunker"
	"rag-document-platform/internal/docstore"
	"rag-document-platform/internal/vectorindex"
	"rag-document-platform/models"
)

type ingestFixture struct {
	objects  memObjects
	embedder *hashEmbedder
	store    *docstore.Store
	index    *vectorindex.Memory
	locker   *mapLocker
	pipeline *IngestionPipeline
}

func newIngestFixture(t *testing.T) *ingestFixture {
	f := &ingestFixture{
		objects:  memObjects{},
		embedder: &hashEmbedder{fail: map[string]bool{}},
		store:    newSQLiteStore(t),
		index:    vectorindex.NewMemory(testDim),
		locker:   &mapLocker{},
	}
	f.pipeline = NewIngestionPipeline(f.objects, textExtractor{}, chunker.New(chunker.DefaultTokensPerChunk),
		f.embedder, f.store, f.index, IngestionOptions{Locker: f.locker, Concurrency: 3})
	return f
}

func (f *ingestFixture) put(name, content string) models.ObjectEvent {
	f.objects["uploads/"+name] = []byte(content)
	return models.ObjectEvent{Bucket: "uploads", Name: name}
}

func TestIngestReportPDFIntoThreeChunks(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()

	result, err := f.pipeline.Ingest(ctx, f.put("report.pdf", words(1200, "w")))
	require.NoError(t, err)
	assert.Equal(t, 3, result.Chunks)
	assert.Equal(t, 3, result.Stored)
	assert.Equal(t, 3, result.Indexed)

	chunks, err := f.store.ChunksByDocument(ctx, "report.pdf")
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for i, want := range []int{500, 500, 200} {
		assert.Len(t, strings.Fields(chunks[i].Text), want)
		assert.Equal(t, fmt.Sprintf("chunk_%d", i), chunks[i].InternalID)
		require.NotNil(t, chunks[i].PageNumber)
		assert.Equal(t, 1, *chunks[i].PageNumber)
	}
	assert.Equal(t, 3, f.index.Len())

	pending, err := f.store.UnindexedChunks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestIngestCSVRows(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()
	csv := "id,name,price\n1,Widget,9.99\n2,Gadget,19.50\n3,Gizmo,4.00\n4,Doohickey,0.50\n"

	result, err := f.pipeline.Ingest(ctx, f.put("data.csv", csv))
	require.NoError(t, err)
	assert.Equal(t, 4, result.Stored)

	chunks, err := f.store.ChunksByDocument(ctx, "data.csv")
	require.NoError(t, err)
	require.Len(t, chunks, 4)
	lines := strings.Split(strings.TrimSpace(csv), "\n")[1:]
	for i, c := range chunks {
		assert.Equal(t, fmt.Sprintf("row_%d", i+1), c.InternalID)
		assert.Equal(t, lines[i], c.Text)
		assert.Nil(t, c.PageNumber)
		assert.Equal(t, models.DocumentTypeCSV, c.DocumentType)
	}
}

func TestIngestSkipsFailedChunkAndContinues(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()

	var rows []string
	for i := 1; i <= 10; i++ {
		rows = append(rows, fmt.Sprintf("%d,item %d", i, i))
	}
	f.embedder.fail[rows[6]] = true

	result, err := f.pipeline.Ingest(ctx, f.put("items.csv", "id,name\n"+strings.Join(rows, "\n")))
	require.NoError(t, err)
	assert.Equal(t, 10, result.Chunks)
	assert.Equal(t, 9, result.Stored)
	assert.Equal(t, 1, result.Failed)
	assert.False(t, result.Skipped)

	chunks, err := f.store.ChunksByDocument(ctx, "items.csv")
	require.NoError(t, err)
	assert.Len(t, chunks, 9)
	assert.Equal(t, 9, f.index.Len())
	for _, c := range chunks {
		assert.NotEqual(t, "row_7", c.InternalID)
	}
}

func TestIngestEmbedsInBatches(t *testing.T) {
	f := newIngestFixture(t)
	p := NewIngestionPipeline(f.objects, textExtractor{}, chunker.New(500), f.embedder, f.store, f.index,
		IngestionOptions{Concurrency: 2, EmbedBatchSize: 4})

	var rows []string
	for i := 1; i <= 10; i++ {
		rows = append(rows, fmt.Sprintf("%d,item %d", i, i))
	}
	result, err := p.Ingest(context.Background(), f.put("items.csv", "id,name\n"+strings.Join(rows, "\n")))
	require.NoError(t, err)
	assert.Equal(t, 10, result.Indexed)
	assert.Equal(t, 3, f.embedder.batchCalls)
	assert.Zero(t, f.embedder.calls)

	chunks, err := f.store.ChunksByDocument(context.Background(), "items.csv")
	require.NoError(t, err)
	require.Len(t, chunks, 10)
	for i, c := range chunks {
		assert.Equal(t, fmt.Sprintf("row_%d", i+1), c.InternalID)
	}
}

func TestIngestFallsBackToSingleEmbeds(t *testing.T) {
	f := newIngestFixture(t)
	f.embedder.batchDown = true

	result, err := f.pipeline.Ingest(context.Background(), f.put("data.csv", "h\na\nb\nc"))
	require.NoError(t, err)
	assert.Equal(t, 3, result.Stored)
	assert.Equal(t, 3, f.embedder.calls)
	assert.Equal(t, 3, f.index.Len())
}

func TestIngestUnsupportedTypeHasNoSideEffects(t *testing.T) {
	f := newIngestFixture(t)

	result, err := f.pipeline.Ingest(context.Background(), models.ObjectEvent{Bucket: "uploads", Name: "image.png"})
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Zero(t, f.embedder.calls)
	assert.Zero(t, f.embedder.batchCalls)
	assert.Zero(t, f.index.Len())
}

func TestIngestEmptyDocumentIsNoop(t *testing.T) {
	f := newIngestFixture(t)

	result, err := f.pipeline.Ingest(context.Background(), f.put("blank.txt", "  \n\t "))
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Zero(t, result.Chunks)

	chunks, err := f.store.ChunksByDocument(context.Background(), "blank.txt")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestIngestIsIdempotentUnderRedelivery(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()
	event := f.put("report.pdf", words(1200, "w"))

	first, err := f.pipeline.Ingest(ctx, event)
	require.NoError(t, err)
	second, err := f.pipeline.Ingest(ctx, event)
	require.NoError(t, err)

	assert.Equal(t, first.DocumentID, second.DocumentID)
	chunks, err := f.store.ChunksByDocument(ctx, "report.pdf")
	require.NoError(t, err)
	assert.Len(t, chunks, 3)
	assert.Equal(t, 3, f.index.Len())
	assert.Zero(t, second.Removed)
}

func TestReingestSmallerDocumentRemovesStaleChunks(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()

	_, err := f.pipeline.Ingest(ctx, f.put("report.pdf", words(1200, "w")))
	require.NoError(t, err)

	result, err := f.pipeline.Ingest(ctx, f.put("report.pdf", words(300, "v")))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Removed)

	chunks, err := f.store.ChunksByDocument(ctx, "report.pdf")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.True(t, strings.HasPrefix(chunks[0].Text, "v0 "))
	assert.Equal(t, 1, f.index.Len())

	tombstones, err := f.store.PendingDeletions(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, tombstones)
}

func TestIngestExtractionFailureWritesNothing(t *testing.T) {
	f := newIngestFixture(t)
	p := NewIngestionPipeline(f.objects, textExtractor{err: errors.New("corrupt xref table")},
		chunker.New(500), f.embedder, f.store, f.index, IngestionOptions{})

	_, err := p.Ingest(context.Background(), f.put("broken.pdf", "%PDF-1.7"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractionFailure)
	assert.False(t, Retryable(err))
	assert.Zero(t, f.embedder.calls)

	chunks, err := f.store.ChunksByDocument(context.Background(), "broken.pdf")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestIngestCommitFailureLeavesNoVectors(t *testing.T) {
	f := newIngestFixture(t)
	p := NewIngestionPipeline(f.objects, textExtractor{}, chunker.New(500), f.embedder,
		failingCommitStore{f.store}, f.index, IngestionOptions{})

	result, err := p.Ingest(context.Background(), f.put("report.pdf", words(700, "w")))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistenceFailure)
	assert.True(t, Retryable(err))
	assert.Zero(t, result.Stored)
	assert.Zero(t, f.index.Len())
}

func TestIngestAllEmbeddingsFailing(t *testing.T) {
	f := newIngestFixture(t)
	text := words(10, "w")
	f.embedder.fail[text] = true

	_, err := f.pipeline.Ingest(context.Background(), f.put("notes.txt", text))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbeddingFailure)

	chunks, err := f.store.ChunksByDocument(context.Background(), "notes.txt")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestIngestRespectsLease(t *testing.T) {
	f := newIngestFixture(t)
	release, ok, err := f.locker.Acquire(context.Background(), "ingest:report.pdf")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.pipeline.Ingest(context.Background(), f.put("report.pdf", words(10, "w")))
	assert.ErrorIs(t, err, ErrIngestionInProgress)
	assert.True(t, Retryable(err))

	release()
	_, err = f.pipeline.Ingest(context.Background(), f.put("report.pdf", words(10, "w")))
	assert.NoError(t, err)
}

func TestIngestMissingObjectIsSkipped(t *testing.T) {
	f := newIngestFixture(t)

	result, err := f.pipeline.Ingest(context.Background(), models.ObjectEvent{Bucket: "uploads", Name: "gone.txt"})
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Zero(t, f.embedder.calls)
	assert.Zero(t, f.embedder.batchCalls)

	chunks, err := f.store.ChunksByDocument(context.Background(), "gone.txt")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestIngestUnreadableObjectIsRetryable(t *testing.T) {
	f := newIngestFixture(t)
	p := NewIngestionPipeline(brokenObjects{}, textExtractor{}, chunker.New(500), f.embedder, f.store, f.index, IngestionOptions{})

	_, err := p.Ingest(context.Background(), models.ObjectEvent{Bucket: "uploads", Name: "notes.txt"})
	assert.ErrorIs(t, err, ErrUpstreamFailure)
	assert.True(t, Retryable(err))
}

func TestIngestPageNumbersFromPages(t *testing.T) {
	f := newIngestFixture(t)
	p := NewIngestionPipeline(f.objects, textExtractor{}, chunker.New(4), f.embedder, f.store, f.index, IngestionOptions{})

	_, err := p.Ingest(context.Background(), f.put("paged.pdf", "a b c\fd e f g h\fi"))
	require.NoError(t, err)

	chunks, err := f.store.ChunksByDocument(context.Background(), "paged.pdf")
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for i, want := range []int{1, 2, 3} {
		require.NotNil(t, chunks[i].PageNumber)
		assert.Equal(t, want, *chunks[i].PageNumber, "chunk %d", i)
	}
}
