package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_history_store.go -package=mocks studyqa/internal/storage HistoryStore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// HistoryStore defines the interface for conversation history operations.
type HistoryStore interface {
	// Create appends a turn. ID must be set.
	Create(ctx context.Context, h *History) error
	// SetConversationID updates the conversation a turn belongs to.
	SetConversationID(ctx context.Context, id, conversationID string) error
	// GetByID gets a turn by its ID. Returns ErrNotFound if not found.
	GetByID(ctx context.Context, id string) (*History, error)
	// ListByUser returns the newest turns of a user, optionally restricted to one document.
	ListByUser(ctx context.Context, userID, documentID string, limit int) ([]*History, error)
	// ListByConversation returns the turns of a conversation in chronological order.
	ListByConversation(ctx context.Context, userID, conversationID string) ([]*History, error)
	// Delete removes a turn owned by userID. Returns ErrNotFound otherwise.
	Delete(ctx context.Context, userID, id string) error
	// DeleteByDocument removes every turn attached to a document.
	DeleteByDocument(ctx context.Context, documentID string) error
}

// HistoryRepo implements HistoryStore on SQLite.
type HistoryRepo struct {
	db *sql.DB
}

// NewHistoryRepo creates a new HistoryRepo.
func NewHistoryRepo(db *sql.DB) *HistoryRepo {
	return &HistoryRepo{db: db}
}

const historyColumns = "id, user_id, question, answer, refs, document_id, conversation_id, created_at"

// Create appends a turn.
func (r *HistoryRepo) Create(ctx context.Context, h *History) error {
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
	refs := h.References
	if refs == nil {
		refs = []Reference{}
	}
	encoded, err := json.Marshal(refs)
	if err != nil {
		return fmt.Errorf("failed to encode references: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		"INSERT INTO histories ("+historyColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		h.ID, h.UserID, h.Question, h.Answer, string(encoded), h.DocumentID, h.ConversationID, h.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert history: %w", err)
	}
	return nil
}

// SetConversationID updates the conversation a turn belongs to.
func (r *HistoryRepo) SetConversationID(ctx context.Context, id, conversationID string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE histories SET conversation_id = ? WHERE id = ?", conversationID, id)
	if err != nil {
		return fmt.Errorf("failed to update conversation id: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID gets a turn by its ID. Returns ErrNotFound if not found.
func (r *HistoryRepo) GetByID(ctx context.Context, id string) (*History, error) {
	h, err := scanHistory(r.db.QueryRowContext(ctx, "SELECT "+historyColumns+" FROM histories WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	return h, nil
}

// ListByUser returns the newest turns of a user. An empty documentID lists all documents.
func (r *HistoryRepo) ListByUser(ctx context.Context, userID, documentID string, limit int) ([]*History, error) {
	if limit <= 0 {
		limit = 50
	}
	if documentID == "" {
		return r.query(ctx,
			"SELECT "+historyColumns+" FROM histories WHERE user_id = ? ORDER BY created_at DESC, id LIMIT ?",
			userID, limit)
	}
	return r.query(ctx,
		"SELECT "+historyColumns+" FROM histories WHERE user_id = ? AND document_id = ? ORDER BY created_at DESC, id LIMIT ?",
		userID, documentID, limit)
}

// ListByConversation returns the turns of a conversation in chronological order.
func (r *HistoryRepo) ListByConversation(ctx context.Context, userID, conversationID string) ([]*History, error) {
	return r.query(ctx,
		"SELECT "+historyColumns+" FROM histories WHERE user_id = ? AND conversation_id = ? ORDER BY created_at, id",
		userID, conversationID)
}

// Delete removes a turn owned by userID.
func (r *HistoryRepo) Delete(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM histories WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete history: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByDocument removes every turn attached to a document.
func (r *HistoryRepo) DeleteByDocument(ctx context.Context, documentID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM histories WHERE document_id = ?", documentID); err != nil {
		return fmt.Errorf("failed to delete history by document: %w", err)
	}
	return nil
}

func (r *HistoryRepo) query(ctx context.Context, query string, args ...any) ([]*History, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []*History
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}

func scanHistory(row rowScanner) (*History, error) {
	var h History
	var refs string
	if err := row.Scan(&h.ID, &h.UserID, &h.Question, &h.Answer, &refs, &h.DocumentID, &h.ConversationID, &h.CreatedAt); err != nil {
		return nil, err
	}
	if refs != "" {
		if err := json.Unmarshal([]byte(refs), &h.References); err != nil {
			return nil, fmt.Errorf("failed to decode references: %w", err)
		}
	}
	return &h, nil
}
