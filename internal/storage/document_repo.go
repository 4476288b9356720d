package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_document_store.go -package=mocks studyqa/internal/storage DocumentStore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DocumentStore defines the interface for document storage operations.
type DocumentStore interface {
	// Create inserts a document. ID and Namespace must be set.
	Create(ctx context.Context, doc *Document) error
	// GetByID gets a document by its ID. Returns ErrNotFound if not found.
	GetByID(ctx context.Context, id string) (*Document, error)
	// ListByUser returns all documents owned by userID, newest first.
	ListByUser(ctx context.Context, userID string) ([]*Document, error)
	// MarkEmbedded flags a document as fully embedded.
	MarkEmbedded(ctx context.Context, id, model string, dimension int) error
	// UpdateChunkCount sets the number of chunks stored for a document.
	UpdateChunkCount(ctx context.Context, id string, count int) error
	// Delete removes a document with its chunks and embeddings.
	Delete(ctx context.Context, id string) error
}

// DocumentRepo implements DocumentStore on SQLite.
type DocumentRepo struct {
	db *sql.DB
}

// NewDocumentRepo creates a new DocumentRepo.
func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

const documentColumns = `id, user_id, filename, file_type, file_path, chunk_count, is_embedded,
	embedding_model, embedding_dimension, namespace, created_at`

// Create inserts a document.
func (r *DocumentRepo) Create(ctx context.Context, doc *Document) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO documents (`+documentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.UserID, doc.Filename, doc.FileType, doc.FilePath, doc.ChunkCount, doc.IsEmbedded,
		doc.EmbeddingModel, doc.EmbeddingDimension, doc.Namespace, doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

// GetByID gets a document by its ID. Returns ErrNotFound if not found.
func (r *DocumentRepo) GetByID(ctx context.Context, id string) (*Document, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query document: %w", err)
	}
	return doc, nil
}

// ListByUser returns all documents owned by userID, newest first.
func (r *DocumentRepo) ListByUser(ctx context.Context, userID string) ([]*Document, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE user_id = ? ORDER BY created_at DESC, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return docs, nil
}

// MarkEmbedded flags a document as fully embedded.
func (r *DocumentRepo) MarkEmbedded(ctx context.Context, id, model string, dimension int) error {
	return r.exec(ctx, "mark document embedded",
		`UPDATE documents SET is_embedded = 1, embedding_model = ?, embedding_dimension = ? WHERE id = ?`,
		model, dimension, id)
}

// UpdateChunkCount sets the number of chunks stored for a document.
func (r *DocumentRepo) UpdateChunkCount(ctx context.Context, id string, count int) error {
	return r.exec(ctx, "update chunk count",
		`UPDATE documents SET chunk_count = ? WHERE id = ?`, count, id)
}

// Delete removes a document. Chunks and embeddings go through ON DELETE CASCADE.
func (r *DocumentRepo) Delete(ctx context.Context, id string) error {
	return r.exec(ctx, "delete document", `DELETE FROM documents WHERE id = ?`, id)
}

func (r *DocumentRepo) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	err := row.Scan(&doc.ID, &doc.UserID, &doc.Filename, &doc.FileType, &doc.FilePath, &doc.ChunkCount,
		&doc.IsEmbedded, &doc.EmbeddingModel, &doc.EmbeddingDimension, &doc.Namespace, &doc.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}
