package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_chunk_store.go -package=mocks studyqa/internal/storage ChunkStore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// ChunkStore defines the interface for chunk storage operations.
type ChunkStore interface {
	// InsertBatch inserts chunks in a single transaction. IDs must be set.
	InsertBatch(ctx context.Context, chunks []*Chunk) error
	// GetByIDs returns the chunks with the given IDs. Unknown IDs are skipped.
	GetByIDs(ctx context.Context, ids []string) ([]*Chunk, error)
	// ListByDocument returns all chunks of a document ordered by chunk_index.
	ListByDocument(ctx context.Context, documentID string) ([]*Chunk, error)
	// ListBefore returns up to limit chunks of a document with chunk_index < beforeIndex,
	// nearest first.
	ListBefore(ctx context.Context, documentID string, beforeIndex, limit int) ([]*Chunk, error)
	// DeleteByDocument deletes all chunks for a document.
	DeleteByDocument(ctx context.Context, documentID string) error
}

// ChunkRepo provides methods for chunk operations.
// It implements the ChunkStore interface.
type ChunkRepo struct {
	db *sql.DB
}

// NewChunkRepo creates a new ChunkRepo.
func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// InsertBatch inserts chunks in a single transaction.
func (r *ChunkRepo) InsertBatch(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO chunks (id, document_id, chunk_index, content, metadata) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for _, c := range chunks {
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode chunk metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.DocumentID, c.ChunkIndex, c.Content, string(meta)); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", c.ChunkIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}
	return nil
}

// GetByIDs returns the chunks with the given IDs in chunk_index order.
// Unknown IDs are skipped, not reported.
func (r *ChunkRepo) GetByIDs(ctx context.Context, ids []string) ([]*Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return r.query(ctx,
		"SELECT id, document_id, chunk_index, content, metadata FROM chunks WHERE id IN ("+placeholders+") ORDER BY document_id, chunk_index",
		args...)
}

// ListByDocument returns all chunks of a document ordered by chunk_index.
func (r *ChunkRepo) ListByDocument(ctx context.Context, documentID string) ([]*Chunk, error) {
	return r.query(ctx,
		"SELECT id, document_id, chunk_index, content, metadata FROM chunks WHERE document_id = ? ORDER BY chunk_index",
		documentID)
}

// ListBefore returns up to limit chunks preceding beforeIndex, nearest first.
func (r *ChunkRepo) ListBefore(ctx context.Context, documentID string, beforeIndex, limit int) ([]*Chunk, error) {
	return r.query(ctx,
		"SELECT id, document_id, chunk_index, content, metadata FROM chunks WHERE document_id = ? AND chunk_index < ? ORDER BY chunk_index DESC LIMIT ?",
		documentID, beforeIndex, limit)
}

// DeleteByDocument deletes all chunks for a document.
func (r *ChunkRepo) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", documentID)
	if err != nil {
		return fmt.Errorf("failed to delete chunks by document: %w", err)
	}
	return nil
}

func (r *ChunkRepo) query(ctx context.Context, query string, args ...any) ([]*Chunk, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var chunks []*Chunk
	for rows.Next() {
		var c Chunk
		var meta string
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Content, &meta); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if meta != "" {
			if err := json.Unmarshal([]byte(meta), &c.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata of chunk %s: %w", c.ID, err)
			}
		}
		chunks = append(chunks, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return chunks, nil
}
