// Package vectorindex stores chunk embeddings and answers nearest-neighbour queries.
// Distances are cosine distances: 0 is identical, larger is further.
package vectorindex

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"

	"rag-document-platform/internal/config"
	"rag-document-platform/internal/database"
	"rag-document-platform/models"
)

var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Index is implemented by every backend
type Index interface {
	Upsert(ctx context.Context, id string, vector []float32) error
	Search(ctx context.Context, vector []float32, k int) ([]models.Neighbor, error)
	Delete(ctx context.Context, ids ...string) error
}

// New returns the backend selected by VECTOR_BACKEND. db is used by pgvector, mongoDB by mongo.
func New(ctx context.Context, cfg *config.Config, db *database.DB, mongoDB *mongo.Database) (Index, error) {
	switch cfg.VectorBackend {
	case "memory", "":
		return NewMemory(cfg.VectorDimensions), nil
	case "pgvector":
		if db == nil || db.Dialect != database.DialectPostgres {
			return nil, errors.New("pgvector backend requires the postgres database driver")
		}
		return NewPGVector(ctx, db, cfg.VectorDimensions)
	case "mongo":
		if mongoDB == nil {
			return nil, errors.New("mongo backend requires a mongo connection")
		}
		return NewMongo(mongoDB, cfg.MongoVectorCollection, cfg.MongoVectorIndex, cfg.VectorDimensions), nil
	default:
		return nil, fmt.Errorf("unknown vector backend: %s", cfg.VectorBackend)
	}
}

func checkDim(dim int, vector []float32) error {
	if dim > 0 && len(vector) != dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), dim)
	}
	if len(vector) == 0 {
		return fmt.Errorf("%w: empty vector", ErrDimensionMismatch)
	}
	return nil
}
