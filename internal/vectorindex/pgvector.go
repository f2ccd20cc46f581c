package vectorindex

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"rag-document-platform/internal/database"
	"rag-document-platform/models"
)

// PGVector keeps embeddings next to the chunk rows in Postgres
type PGVector struct {
	db        *database.DB
	dimension int
}

func NewPGVector(ctx context.Context, db *database.DB, dimension int) (*PGVector, error) {
	p := &PGVector{db: db, dimension: dimension}
	if err := p.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PGVector) ensureSchema(ctx context.Context) error {
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunk_embeddings (
			chunk_id TEXT PRIMARY KEY,
			embedding vector(%d) NOT NULL
		)`, p.dimension),
		"CREATE INDEX IF NOT EXISTS idx_chunk_embeddings_hnsw ON chunk_embeddings USING hnsw (embedding vector_cosine_ops)",
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("pgvector schema: %w", err)
		}
	}
	return nil
}

func (p *PGVector) Upsert(ctx context.Context, id string, vector []float32) error {
	if err := checkDim(p.dimension, vector); err != nil {
		return err
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO chunk_embeddings (chunk_id, embedding) VALUES ($1, $2)
		ON CONFLICT (chunk_id) DO UPDATE SET embedding = excluded.embedding
	`, id, pgvector.NewVector(vector))
	if err != nil {
		return fmt.Errorf("upsert embedding %s: %w", id, err)
	}
	return nil
}

func (p *PGVector) Search(ctx context.Context, vector []float32, k int) ([]models.Neighbor, error) {
	if err := checkDim(p.dimension, vector); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT chunk_id, embedding <=> $1 AS distance
		FROM chunk_embeddings
		ORDER BY embedding <=> $1, chunk_id
		LIMIT $2
	`, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var out []models.Neighbor
	for rows.Next() {
		var n models.Neighbor
		if err := rows.Scan(&n.ID, &n.Distance); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (p *PGVector) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := p.db.ExecContext(ctx,
		p.db.Rebind("DELETE FROM chunk_embeddings WHERE chunk_id IN ("+database.Placeholders(len(ids))+")"),
		args...)
	if err != nil {
		return fmt.Errorf("delete embeddings: %w", err)
	}
	return nil
}
