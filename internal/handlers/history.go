package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"studyqa/internal/service"
	"studyqa/internal/storage"
)

// HistoryHandler serves the caller's question/answer history.
type HistoryHandler struct {
	histories service.HistoryService
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(histories service.HistoryService) *HistoryHandler {
	return &HistoryHandler{histories: histories}
}

// HistoryResponse represents one turn in the HTTP response.
//
// swagger:model HistoryResponse
type HistoryResponse struct {
	ID             string              `json:"id"`
	Question       string              `json:"question"`
	Answer         string              `json:"answer"`
	References     []storage.Reference `json:"references"`
	DocumentID     string              `json:"document_id,omitempty"`
	ConversationID string              `json:"conversation_id"`
	CreatedAt      time.Time           `json:"created_at"`
}

// ListHistoryResponse wraps a list of turns.
//
// swagger:model ListHistoryResponse
type ListHistoryResponse struct {
	History []HistoryResponse `json:"history"`
}

func toListHistoryResponse(turns []*storage.History) ListHistoryResponse {
	resp := ListHistoryResponse{History: make([]HistoryResponse, 0, len(turns))}
	for _, h := range turns {
		refs := h.References
		if refs == nil {
			refs = []storage.Reference{}
		}
		resp.History = append(resp.History, HistoryResponse{
			ID:             h.ID,
			Question:       h.Question,
			Answer:         h.Answer,
			References:     refs,
			DocumentID:     h.DocumentID,
			ConversationID: h.ConversationID,
			CreatedAt:      h.CreatedAt,
		})
	}
	return resp
}

// List returns the newest turns of the caller.
//
// swagger:route GET /api/v1/history listHistory
//
// ---
// parameters:
//   - in: query
//     name: limit
//     type: integer
//   - in: query
//     name: document_id
//     type: string
//
// responses:
//
//	'200':
//	  schema:
//	    "$ref": "#/definitions/ListHistoryResponse"
//	'400':
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := userID(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = v
	}

	turns, err := h.histories.List(ctx, user, r.URL.Query().Get("document_id"), limit)
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to list history")
		return
	}
	writeJSON(ctx, w, http.StatusOK, toListHistoryResponse(turns))
}

// Conversation returns every turn of one conversation, oldest first.
//
// swagger:route GET /api/v1/history/conversations/{id} getConversation
//
// ---
// responses:
//
//	'200':
//	  schema:
//	    "$ref": "#/definitions/ListHistoryResponse"
//	'404':
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
func (h *HistoryHandler) Conversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := userID(w, r)
	if !ok {
		return
	}

	turns, err := h.histories.Conversation(ctx, user, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to load conversation")
		return
	}
	writeJSON(ctx, w, http.StatusOK, toListHistoryResponse(turns))
}

// Delete removes one turn.
//
// swagger:route DELETE /api/v1/history/{id} deleteHistory
//
// ---
// responses:
//
//	'204':
//	  description: Deleted
//	'404':
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
func (h *HistoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := userID(w, r)
	if !ok {
		return
	}

	if err := h.histories.Delete(ctx, user, chi.URLParam(r, "id")); err != nil {
		handleServiceError(ctx, w, err, "Failed to delete history")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
