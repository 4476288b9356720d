package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"studyqa/internal/contextutil"
	"studyqa/internal/rag"
)

// maxAskBodyBytes bounds the JSON body of an ask request.
const maxAskBodyBytes = 1 << 20

// AskHandler handles HTTP requests for questions over the caller's documents.
type AskHandler struct {
	engine rag.Engine
}

// NewAskHandler creates a new AskHandler.
func NewAskHandler(engine rag.Engine) *AskHandler {
	return &AskHandler{engine: engine}
}

// AskRequest represents the HTTP request payload for a question.
//
// swagger:model AskRequest
type AskRequest struct {
	// The question, in any language
	Question string `json:"question"`

	// Restrict the search to these documents; all embedded documents of the caller when empty
	DocumentIDs []string `json:"document_ids,omitempty"`

	// Continue an existing conversation
	ConversationID string `json:"conversation_id,omitempty"`
}

// ServeHTTP handles HTTP requests for questions.
//
// swagger:route POST /api/v1/ask askQuestion
//
// # Ask a question about uploaded documents
//
// Classifies the question, retrieves and ranks passages from the selected documents,
// and returns a generated answer with references back to the source chunks.
// Every answered question is stored as a history turn.
//
// ---
// consumes:
// - application/json
// produces:
// - application/json
// parameters:
//   - in: header
//     name: X-User-ID
//     type: string
//     required: true
//   - in: body
//     name: body
//     required: true
//     schema:
//     "$ref": "#/definitions/AskRequest"
//
// responses:
//
//	'200':
//	  description: Answer with references and metadata
//	  schema:
//	    "$ref": "#/definitions/AskResponse"
//	'400':
//	  description: Empty question or invalid body
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
//	'401':
//	  description: Missing X-User-ID header
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
//	'404':
//	  description: A requested document does not exist or belongs to another user
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
//	'500':
//	  description: Internal server error
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
func (h *AskHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	user, ok := userID(w, r)
	if !ok {
		return
	}

	var req AskRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAskBodyBytes)).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if strings.TrimSpace(req.Question) == "" {
		logger.WarnContext(ctx, "empty question in request")
		writeError(w, http.StatusBadRequest, "Question is required")
		return
	}

	resp, err := h.engine.Ask(ctx, rag.AskRequest{
		UserID:         user,
		Question:       req.Question,
		DocumentIDs:    req.DocumentIDs,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to answer question")
		return
	}

	logger.InfoContext(ctx, "question answered",
		"history_id", resp.HistoryID,
		"answer_type", resp.Metadata.AnswerType,
		"references", len(resp.References),
	)
	writeJSON(ctx, w, http.StatusOK, resp)
}
