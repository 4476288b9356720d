package service

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_history_service.go -package=mocks studyqa/internal/service HistoryService

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"studyqa/internal/storage"
)

const (
	// DefaultHistoryLimit is used when a listing does not ask for a limit.
	DefaultHistoryLimit = 20
	// MaxHistoryLimit caps a single history listing.
	MaxHistoryLimit = 100
)

// HistoryService exposes a user's question/answer turns.
type HistoryService interface {
	// List returns the newest turns of a user, optionally restricted to one document.
	// A limit of 0 means DefaultHistoryLimit.
	List(ctx context.Context, userID, documentID string, limit int) ([]*storage.History, error)
	// Conversation returns the turns of one conversation in chronological order.
	Conversation(ctx context.Context, userID, conversationID string) ([]*storage.History, error)
	// Delete removes one turn owned by userID.
	Delete(ctx context.Context, userID, id string) error
}

type historyService struct {
	histories storage.HistoryStore
}

// NewHistoryService creates a new HistoryService.
func NewHistoryService(histories storage.HistoryStore) HistoryService {
	return &historyService{histories: histories}
}

func (s *historyService) List(ctx context.Context, userID, documentID string, limit int) ([]*storage.History, error) {
	if limit < 0 || limit > MaxHistoryLimit {
		return nil, &ValidationError{Field: "limit", Message: fmt.Sprintf("must be between 1 and %d", MaxHistoryLimit)}
	}
	if limit == 0 {
		limit = DefaultHistoryLimit
	}
	turns, err := s.histories.ListByUser(ctx, userID, documentID, limit)
	if err != nil {
		return nil, WrapError(err, "failed to list history")
	}
	if turns == nil {
		turns = []*storage.History{}
	}
	return turns, nil
}

func (s *historyService) Conversation(ctx context.Context, userID, conversationID string) ([]*storage.History, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, &ValidationError{Field: "conversation_id", Message: "cannot be empty"}
	}
	turns, err := s.histories.ListByConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, WrapError(err, "failed to load conversation")
	}
	if len(turns) == 0 {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}
	return turns, nil
}

func (s *historyService) Delete(ctx context.Context, userID, id string) error {
	err := s.histories.Delete(ctx, userID, id)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("history %s: %w", id, ErrNotFound)
	}
	return WrapError(err, "failed to delete history")
}
