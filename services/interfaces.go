package services

import (
	"context"

	"rag-document-platform/models"
)

// Embedder maps text to a vector. Implementations must return an error rather than a zero vector.
// EmbedMany returns one entry per text, nil where that text got no vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces text from a fully assembled prompt
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Extractor returns the page-ordered text of a stored object
type Extractor interface {
	Extract(ctx context.Context, name string, docType models.DocumentType, data []byte) ([]models.Page, error)
}

// ObjectReader reads uploaded objects. Get reports a missing object with objectstore.ErrNotFound.
type ObjectReader interface {
	Get(ctx context.Context, bucket, name string) ([]byte, error)
}

// DocumentStore is the relational source of truth for documents and chunks
type DocumentStore interface {
	ReplaceDocument(ctx context.Context, doc models.Document, chunks []models.Chunk) (removed []string, err error)
	ChunksByID(ctx context.Context, ids []string) ([]models.Chunk, error)
	MarkIndexed(ctx context.Context, ids []string) error
	UnindexedChunks(ctx context.Context, limit int) ([]models.Chunk, error)
	PendingDeletions(ctx context.Context, limit int) ([]string, error)
	ClearDeletions(ctx context.Context, ids []string) error
}

// VectorIndex holds one embedding per chunk id
type VectorIndex interface {
	Upsert(ctx context.Context, id string, vector []float32) error
	Search(ctx context.Context, vector []float32, k int) ([]models.Neighbor, error)
	Delete(ctx context.Context, ids ...string) error
}

// Locker grants a short exclusive lease on a key. ok is false when another holder has it.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), ok bool, err error)
}
