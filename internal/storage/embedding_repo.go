package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_embedding_store.go -package=mocks studyqa/internal/storage EmbeddingStore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// EmbeddingStore defines the interface for chunk-to-vector linkage records.
type EmbeddingStore interface {
	// InsertBatch inserts embedding records in a single transaction.
	InsertBatch(ctx context.Context, records []*EmbeddingRecord) error
	// FindByVectorIndexes returns the records of a document with the given vector indexes.
	// Indexes without a record are skipped.
	FindByVectorIndexes(ctx context.Context, documentID string, indexes []int64) ([]*EmbeddingRecord, error)
	// NextVectorIndex returns the first unused vector index of a document.
	NextVectorIndex(ctx context.Context, documentID string) (int64, error)
	// DeleteByDocument deletes all embedding records of a document.
	DeleteByDocument(ctx context.Context, documentID string) error
}

// EmbeddingRepo implements EmbeddingStore on SQLite.
type EmbeddingRepo struct {
	db *sql.DB
}

// NewEmbeddingRepo creates a new EmbeddingRepo.
func NewEmbeddingRepo(db *sql.DB) *EmbeddingRepo {
	return &EmbeddingRepo{db: db}
}

// InsertBatch inserts embedding records in a single transaction.
// The UNIQUE (document_id, vector_index) constraint rejects reused indexes.
func (r *EmbeddingRepo) InsertBatch(ctx context.Context, records []*EmbeddingRecord) error {
	if len(records) == 0 {
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
		`INSERT INTO embeddings (id, document_id, chunk_id, chunk_index, vector_index, embedding_model, provider)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare embedding insert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for _, rec := range records {
		_, err := stmt.ExecContext(ctx, rec.ID, rec.DocumentID, rec.ChunkID, rec.ChunkIndex,
			rec.VectorIndex, rec.EmbeddingModel, rec.Provider)
		if err != nil {
			return fmt.Errorf("failed to insert embedding for vector %d: %w", rec.VectorIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit embeddings: %w", err)
	}
	return nil
}

// FindByVectorIndexes returns the records of a document with the given vector indexes.
func (r *EmbeddingRepo) FindByVectorIndexes(ctx context.Context, documentID string, indexes []int64) ([]*EmbeddingRecord, error) {
	if len(indexes) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(indexes)), ",")
	args := make([]any, 0, len(indexes)+1)
	args = append(args, documentID)
	for _, idx := range indexes {
		args = append(args, idx)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, document_id, chunk_id, chunk_index, vector_index, embedding_model, provider
		FROM embeddings WHERE document_id = ? AND vector_index IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var records []*EmbeddingRecord
	for rows.Next() {
		var rec EmbeddingRecord
		if err := rows.Scan(&rec.ID, &rec.DocumentID, &rec.ChunkID, &rec.ChunkIndex, &rec.VectorIndex,
			&rec.EmbeddingModel, &rec.Provider); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return records, nil
}

// NextVectorIndex returns the high-water mark of a document's vector indexes plus one.
func (r *EmbeddingRepo) NextVectorIndex(ctx context.Context, documentID string) (int64, error) {
	var maxIdx sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		"SELECT MAX(vector_index) FROM embeddings WHERE document_id = ?", documentID,
	).Scan(&maxIdx)
	if err != nil {
		return 0, fmt.Errorf("failed to query vector index: %w", err)
	}
	if !maxIdx.Valid {
		return 0, nil
	}
	return maxIdx.Int64 + 1, nil
}

// DeleteByDocument deletes all embedding records of a document.
func (r *EmbeddingRepo) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM embeddings WHERE document_id = ?", documentID)
	if err != nil {
		return fmt.Errorf("failed to delete embeddings by document: %w", err)
	}
	return nil
}
