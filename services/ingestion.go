package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"rag-document-platform/internal/chunker"
	"rag-document-platform/internal/logger"
	"rag-document-platform/internal/objectstore"
	"rag-document-platform/internal/telemetry"
	"rag-document-platform/models"
)

const defaultEmbedBatch = 32

type IngestionOptions struct {
	Locker         Locker
	Metrics        *telemetry.Metrics
	Concurrency    int
	EmbedBatchSize int
	EmbedTimeout   time.Duration
	IndexTimeout   time.Duration
}

// IngestionPipeline turns one stored object into persisted, indexed chunks.
//
// The document store is the source of truth: chunks are embedded first, committed
// in one transaction marked unindexed, and only then upserted into the vector index
// and marked indexed. A chunk whose embedding fails is skipped. Vectors of chunks
// dropped by re-ingestion are deleted after commit.
type IngestionPipeline struct {
	objects   ObjectReader
	extractor Extractor
	chunker   *chunker.Chunker
	embedder  Embedder
	store     DocumentStore
	index     VectorIndex
	opts      IngestionOptions
}

func NewIngestionPipeline(
	objects ObjectReader,
	extractor Extractor,
	chunker *chunker.Chunker,
	embedder Embedder,
	store DocumentStore,
	index VectorIndex,
	opts IngestionOptions,
) *IngestionPipeline {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.EmbedBatchSize <= 0 {
		opts.EmbedBatchSize = defaultEmbedBatch
	}
	return &IngestionPipeline{
		objects:   objects,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		store:     store,
		index:     index,
		opts:      opts,
	}
}

// Ingest processes one object-created event. Unsupported types, objects deleted
// before the event arrived and documents without text return a skipped result and no error.
func (p *IngestionPipeline) Ingest(ctx context.Context, event models.ObjectEvent) (result *models.IngestResult, err error) {
	start := time.Now()
	ctx, span := telemetry.Tracer("ingestion").Start(ctx, "ingestion.document")
	span.SetAttributes(attribute.String("document.bucket", event.Bucket), attribute.String("document.name", event.Name))
	log := logger.With("bucket", event.Bucket, "document", event.Name)

	result = &models.IngestResult{DocumentID: models.DocumentIDFor(event.Name), FileName: event.Name}
	docType, supported := models.DetectDocumentType(event.Name)

	defer func() {
		outcome := "ingested"
		switch {
		case err != nil:
			outcome = "failed"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case result.Skipped:
			outcome = "skipped"
		}
		span.SetAttributes(attribute.String("ingestion.outcome", outcome), attribute.Int("ingestion.stored", result.Stored))
		span.End()
		p.opts.Metrics.RecordIngestion(ctx, string(docType), outcome, result.Stored, result.Failed, time.Since(start).Seconds())
	}()

	if event.Name == "" {
		return result, fail(ErrInvalidRequest, "ingest", errors.New("event has no object name"))
	}
	if !supported {
		log.Info("Skipping unsupported document type")
		result.Skipped = true
		return result, nil
	}

	if p.opts.Locker != nil {
		release, ok, err := p.opts.Locker.Acquire(ctx, "ingest:"+event.Name)
		if err != nil {
			return result, upstream("acquire ingestion lease", err)
		}
		if !ok {
			return result, fail(ErrIngestionInProgress, "acquire ingestion lease", nil)
		}
		defer release()
	}

	data, err := p.objects.Get(ctx, event.Bucket, event.Name)
	if errors.Is(err, objectstore.ErrNotFound) {
		log.Warn("Object no longer exists, skipping")
		result.Skipped = true
		return result, nil
	}
	if err != nil {
		return result, upstream("read object", err)
	}

	pages, err := p.extractor.Extract(ctx, event.Name, docType, data)
	if err != nil {
		log.Error("Text extraction failed", "error", err)
		return result, fail(ErrExtractionFailure, "extract", err)
	}

	pieces := p.chunker.Split(docType, pages)
	result.Chunks = len(pieces)
	if len(pieces) == 0 {
		log.Info("Document produced no chunks, nothing to ingest")
		result.Skipped = true
		return result, nil
	}

	doc := models.Document{ID: result.DocumentID, FileName: event.Name, Type: docType, IngestedAt: time.Now().UTC()}
	chunks, vectors := p.embedAll(ctx, doc, pieces)
	result.Stored = len(chunks)
	result.Failed = len(pieces) - len(chunks)
	if len(chunks) == 0 {
		log.Error("Every chunk failed embedding", "chunks", len(pieces))
		return result, fail(ErrEmbeddingFailure, "embed", fmt.Errorf("all %d chunks failed", len(pieces)))
	}

	removed, err := p.store.ReplaceDocument(ctx, doc, chunks)
	if err != nil {
		log.Error("Document store commit failed, document not ingested", "error", err)
		result.Stored = 0
		return result, fail(ErrPersistenceFailure, "commit chunks", err)
	}
	result.Removed = len(removed)

	indexed := p.indexAll(ctx, chunks, vectors)
	result.Indexed = len(indexed)
	if len(indexed) < len(chunks) {
		log.Warn("Some chunks are committed without vectors, reconciler will retry",
			"indexed", len(indexed), "stored", len(chunks))
	}
	if err := p.store.MarkIndexed(ctx, indexed); err != nil {
		log.Warn("Failed to mark chunks indexed, reconciler will retry", "error", err)
	}

	if len(removed) > 0 {
		p.purgeVectors(ctx, removed)
	}

	log.Info("Document ingested",
		"type", docType,
		"chunks", result.Chunks,
		"stored", result.Stored,
		"failed", result.Failed,
		"indexed", result.Indexed,
		"removed", result.Removed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// embedAll embeds pieces in batches with bounded concurrency. Ordinals and ids are
// fixed before fan-out so the result order does not depend on completion order.
func (p *IngestionPipeline) embedAll(ctx context.Context, doc models.Document, pieces []chunker.Piece) ([]models.Chunk, [][]float32) {
	all := make([]models.Chunk, len(pieces))
	vecs := make([][]float32, len(pieces))
	for i, piece := range pieces {
		all[i] = chunkFromPiece(doc, piece)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)
	for start := 0; start < len(all); start += p.opts.EmbedBatchSize {
		end := min(start+p.opts.EmbedBatchSize, len(all))
		g.Go(func() error {
			texts := make([]string, end-start)
			for i := range texts {
				texts[i] = all[start+i].Text
			}
			got, errs := embedTexts(gctx, p.embedder, texts, p.opts.EmbedTimeout)
			for i, err := range errs {
				if err != nil {
					logger.Warn("Skipping chunk after embedding failure",
						"document", doc.FileName, "chunk", all[start+i].InternalID, "error", err)
				}
			}
			copy(vecs[start:end], got)
			return nil
		})
	}
	g.Wait()

	chunks := make([]models.Chunk, 0, len(all))
	vectors := make([][]float32, 0, len(all))
	for i := range all {
		if vecs[i] == nil {
			continue
		}
		chunks = append(chunks, all[i])
		vectors = append(vectors, vecs[i])
	}
	return chunks, vectors
}

// embedTexts embeds texts in one batch call, then retries the entries the batch
// left empty one at a time. A nil vector has a matching embedding failure in errs.
func embedTexts(ctx context.Context, e Embedder, texts []string, timeout time.Duration) ([][]float32, []error) {
	if len(texts) == 0 {
		return nil, nil
	}
	bctx, cancel := withTimeout(ctx, timeout)
	batch, err := e.EmbedMany(bctx, texts)
	cancel()
	if err != nil {
		logger.Debug("Batch embedding incomplete, retrying per chunk", "texts", len(texts), "error", err)
	}
	if len(batch) != len(texts) {
		batch = nil
	}

	vecs := make([][]float32, len(texts))
	errs := make([]error, len(texts))
	for i, text := range texts {
		if batch != nil && len(batch[i]) > 0 {
			vecs[i] = batch[i]
			continue
		}
		cctx, cancel := withTimeout(ctx, timeout)
		vec, err := e.Embed(cctx, text)
		cancel()
		if err == nil && len(vec) == 0 {
			err = errors.New("empty vector")
		}
		if err != nil {
			errs[i] = fail(ErrEmbeddingFailure, "embed chunk", err)
			continue
		}
		vecs[i] = vec
	}
	return vecs, errs
}

// indexAll upserts committed chunks and returns the ids that made it into the index
func (p *IngestionPipeline) indexAll(ctx context.Context, chunks []models.Chunk, vectors [][]float32) []string {
	indexed := make([]string, 0, len(chunks))
	for i, c := range chunks {
		uctx, cancel := withTimeout(ctx, p.opts.IndexTimeout)
		err := p.index.Upsert(uctx, c.ID, vectors[i])
		cancel()
		if err != nil {
			logger.Warn("Vector upsert failed", "document", c.DocumentName, "chunk", c.InternalID, "error", err)
			continue
		}
		indexed = append(indexed, c.ID)
	}
	return indexed
}

// purgeVectors deletes vectors of chunks removed by re-ingestion and clears their tombstones
func (p *IngestionPipeline) purgeVectors(ctx context.Context, ids []string) {
	dctx, cancel := withTimeout(ctx, p.opts.IndexTimeout)
	defer cancel()
	if err := p.index.Delete(dctx, ids...); err != nil {
		p.opts.Metrics.RecordOrphanVectors(ctx, len(ids), "reingest_delete_failed")
		logger.Error("Failed to delete vectors of removed chunks, left for reconciler", "count", len(ids), "error", err)
		return
	}
	if err := p.store.ClearDeletions(ctx, ids); err != nil {
		logger.Warn("Failed to clear vector tombstones", "count", len(ids), "error", err)
	}
}

func chunkFromPiece(doc models.Document, piece chunker.Piece) models.Chunk {
	c := models.Chunk{
		ID:           models.ChunkIDFor(doc.FileName, piece.InternalID),
		DocumentID:   doc.ID,
		DocumentName: doc.FileName,
		InternalID:   piece.InternalID,
		Ordinal:      piece.Ordinal,
		Text:         piece.Text,
		DocumentType: doc.Type,
		CreatedAt:    doc.IngestedAt,
	}
	if piece.Page > 0 {
		page := piece.Page
		c.PageNumber = &page
	}
	return c
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
