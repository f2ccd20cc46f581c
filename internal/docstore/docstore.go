// Package docstore persists documents and chunk metadata in the relational store.
package docstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"rag-document-platform/internal/database"
	"rag-document-platform/models"
)

// Store is the document store over a migrated database
type Store struct {
	db  *database.DB
	now func() time.Time
}

func New(db *database.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// ReplaceDocument makes chunks the complete chunk set of doc in one transaction.
// Chunks are upserted by id and marked unindexed, and any tombstone left for a
// rewritten id is cleared so a later purge cannot drop its new vector. Chunks the
// document had before but no longer has are deleted and recorded as vector
// tombstones; their ids are returned.
func (s *Store) ReplaceDocument(ctx context.Context, doc models.Document, chunks []models.Chunk) (removed []string, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := s.now()
	if doc.IngestedAt.IsZero() {
		doc.IngestedAt = now
	}

	_, err = tx.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO documents (document_id, file_name, document_type, ingested_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (document_id) DO UPDATE SET
			document_type = excluded.document_type,
			ingested_at = excluded.ingested_at
	`), doc.ID, doc.FileName, string(doc.Type), doc.IngestedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert document %s: %w", doc.FileName, err)
	}

	existing, err := s.chunkIDsTx(ctx, tx, doc.ID)
	if err != nil {
		return nil, err
	}

	keep := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		keep[c.ID] = struct{}{}
	}
	for _, id := range existing {
		if _, ok := keep[id]; !ok {
			removed = append(removed, id)
		}
	}

	if len(removed) > 0 {
		if err = s.deleteChunksTx(ctx, tx, removed, now); err != nil {
			return nil, err
		}
	}

	stmt, err := tx.PrepareContext(ctx, s.db.Rebind(`
		INSERT INTO document_chunks
			(chunk_id, document_id, internal_id, ordinal, text_content, page_number, document_type, indexed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, FALSE, ?)
		ON CONFLICT (chunk_id) DO UPDATE SET
			ordinal = excluded.ordinal,
			text_content = excluded.text_content,
			page_number = excluded.page_number,
			document_type = excluded.document_type,
			indexed = FALSE,
			created_at = excluded.created_at
	`))
	if err != nil {
		return nil, fmt.Errorf("prepare chunk upsert: %w", err)
	}
	defer stmt.Close()

	revive, err := tx.PrepareContext(ctx, s.db.Rebind("DELETE FROM vector_tombstones WHERE chunk_id = ?"))
	if err != nil {
		return nil, fmt.Errorf("prepare tombstone clear: %w", err)
	}
	defer revive.Close()

	for _, c := range chunks {
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		if _, err = stmt.ExecContext(ctx,
			c.ID, doc.ID, c.InternalID, c.Ordinal, c.Text, nullPage(c.PageNumber), string(c.DocumentType), createdAt,
		); err != nil {
			return nil, fmt.Errorf("upsert chunk %s: %w", c.InternalID, err)
		}
		if _, err = revive.ExecContext(ctx, c.ID); err != nil {
			return nil, fmt.Errorf("clear tombstone %s: %w", c.InternalID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit document %s: %w", doc.FileName, err)
	}
	return removed, nil
}

// ChunksByID returns the chunks that exist among ids, in no particular order
func (s *Store) ChunksByID(ctx context.Context, ids []string) ([]models.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.queryChunks(ctx, "WHERE c.chunk_id IN ("+database.Placeholders(len(ids))+")", toArgs(ids)...)
}

// ChunksByDocument returns a document's chunks in ordinal order
func (s *Store) ChunksByDocument(ctx context.Context, fileName string) ([]models.Chunk, error) {
	return s.queryChunks(ctx, "WHERE d.file_name = ? ORDER BY c.ordinal", fileName)
}

// UnindexedChunks returns up to limit chunks whose vectors have not been confirmed
func (s *Store) UnindexedChunks(ctx context.Context, limit int) ([]models.Chunk, error) {
	return s.queryChunks(ctx, "WHERE c.indexed = FALSE ORDER BY c.document_id, c.ordinal LIMIT ?", limit)
}

// MarkIndexed flags chunks whose vectors are in the index
func (s *Store) MarkIndexed(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		s.db.Rebind("UPDATE document_chunks SET indexed = TRUE WHERE chunk_id IN ("+database.Placeholders(len(ids))+")"),
		toArgs(ids)...)
	if err != nil {
		return fmt.Errorf("mark indexed: %w", err)
	}
	return nil
}

// ResetIndexed marks every chunk unindexed. Used when the vector index starts
// empty so the reconciler rebuilds it from the store.
func (s *Store) ResetIndexed(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "UPDATE document_chunks SET indexed = FALSE WHERE indexed = TRUE")
	if err != nil {
		return 0, fmt.Errorf("reset indexed: %w", err)
	}
	return res.RowsAffected()
}

// DeleteChunks removes chunks and records tombstones for their vectors
func (s *Store) DeleteChunks(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.deleteChunksTx(ctx, tx, ids, s.now()); err != nil {
		return err
	}
	return tx.Commit()
}

// PendingDeletions returns up to limit tombstoned chunk ids
func (s *Store) PendingDeletions(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind("SELECT chunk_id FROM vector_tombstones ORDER BY created_at LIMIT ?"), limit)
	if err != nil {
		return nil, fmt.Errorf("list tombstones: %w", err)
	}
	return scanIDs(rows)
}

// ClearDeletions drops tombstones once their vectors are gone
func (s *Store) ClearDeletions(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		s.db.Rebind("DELETE FROM vector_tombstones WHERE chunk_id IN ("+database.Placeholders(len(ids))+")"),
		toArgs(ids)...)
	if err != nil {
		return fmt.Errorf("clear tombstones: %w", err)
	}
	return nil
}

// DocumentSummary is a document with its chunk counts
type DocumentSummary struct {
	models.Document
	Chunks    int
	Unindexed int
}

// Documents lists every document by file name with chunk counts
func (s *Store) Documents(ctx context.Context) ([]DocumentSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.document_id, d.file_name, d.document_type, d.ingested_at,
			COUNT(c.chunk_id),
			COALESCE(SUM(CASE WHEN c.indexed = FALSE THEN 1 ELSE 0 END), 0)
		FROM documents d
		LEFT JOIN document_chunks c ON c.document_id = d.document_id
		GROUP BY d.document_id, d.file_name, d.document_type, d.ingested_at
		ORDER BY d.file_name
	`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []DocumentSummary
	for rows.Next() {
		var (
			d       DocumentSummary
			docType string
		)
		if err := rows.Scan(&d.ID, &d.FileName, &docType, &d.IngestedAt, &d.Chunks, &d.Unindexed); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.Type = models.DocumentType(docType)
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// Stats counts rows relevant to store/index consistency
type Stats struct {
	Documents        int
	Chunks           int
	Unindexed        int
	PendingDeletions int
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	counts := []struct {
		dst   *int
		query string
	}{
		{&st.Documents, "SELECT COUNT(*) FROM documents"},
		{&st.Chunks, "SELECT COUNT(*) FROM document_chunks"},
		{&st.Unindexed, "SELECT COUNT(*) FROM document_chunks WHERE indexed = FALSE"},
		{&st.PendingDeletions, "SELECT COUNT(*) FROM vector_tombstones"},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return Stats{}, fmt.Errorf("count rows: %w", err)
		}
	}
	return st, nil
}

// Ping reports whether the store is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) queryChunks(ctx context.Context, where string, args ...any) ([]models.Chunk, error) {
	query := `
		SELECT c.chunk_id, c.document_id, d.file_name, c.internal_id, c.ordinal,
			c.text_content, c.page_number, c.document_type
		FROM document_chunks c
		JOIN documents d ON d.document_id = c.document_id
	` + where

	rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var (
			c       models.Chunk
			page    sql.NullInt64
			docType string
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.DocumentName, &c.InternalID, &c.Ordinal, &c.Text, &page, &docType); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		c.DocumentType = models.DocumentType(docType)
		if page.Valid {
			p := int(page.Int64)
			c.PageNumber = &p
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (s *Store) chunkIDsTx(ctx context.Context, tx *sql.Tx, documentID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, s.db.Rebind("SELECT chunk_id FROM document_chunks WHERE document_id = ?"), documentID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	return scanIDs(rows)
}

func (s *Store) deleteChunksTx(ctx context.Context, tx *sql.Tx, ids []string, now time.Time) error {
	if _, err := tx.ExecContext(ctx,
		s.db.Rebind("DELETE FROM document_chunks WHERE chunk_id IN ("+database.Placeholders(len(ids))+")"),
		toArgs(ids)...); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, s.db.Rebind(`
		INSERT INTO vector_tombstones (chunk_id, created_at) VALUES (?, ?)
		ON CONFLICT (chunk_id) DO NOTHING
	`))
	if err != nil {
		return fmt.Errorf("prepare tombstone insert: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id, now); err != nil {
			return fmt.Errorf("record tombstone %s: %w", id, err)
		}
	}
	return nil
}

func scanIDs(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullPage(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func toArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
