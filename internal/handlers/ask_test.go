package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"studyqa/internal/rag"
	rag_mocks "studyqa/internal/rag/mocks"
	"studyqa/internal/storage"

	"go.uber.org/mock/gomock"
)

func TestAskHandler_ServeHTTP(t *testing.T) {
	answered := rag.AskResponse{
		Answer: "COCOMO ước lượng chi phí phần mềm.",
		References: []storage.Reference{
			{DocumentID: "d1", DocumentFilename: "se.pdf", ChunkIndex: 4, Score: 0.82},
		},
		Documents:      []string{"d1"},
		ConversationID: "h1",
		HistoryID:      "h1",
		Metadata:       rag.ResponseMetadata{AnswerType: rag.IntentDirect, Confidence: 0.9, QueryType: rag.IntentDirect},
	}

	tests := []struct {
		name           string
		method         string
		user           string
		body           string
		mockSetup      func(m *rag_mocks.MockEngine)
		expectedStatus int
	}{
		{
			name:   "answers question",
			method: http.MethodPost,
			user:   "u1",
			body:   `{"question":"COCOMO là gì?","document_ids":["d1"],"conversation_id":"c1"}`,
			mockSetup: func(m *rag_mocks.MockEngine) {
				m.EXPECT().Ask(gomock.Any(), rag.AskRequest{
					UserID:         "u1",
					Question:       "COCOMO là gì?",
					DocumentIDs:    []string{"d1"},
					ConversationID: "c1",
				}).Return(answered, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "missing user",
			method:         http.MethodPost,
			body:           `{"question":"hi"}`,
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "wrong method",
			method:         http.MethodGet,
			user:           "u1",
			expectedStatus: http.StatusMethodNotAllowed,
		},
		{
			name:           "invalid body",
			method:         http.MethodPost,
			user:           "u1",
			body:           `{"question":`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "blank question",
			method:         http.MethodPost,
			user:           "u1",
			body:           `{"question":"   "}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:   "foreign document",
			method: http.MethodPost,
			user:   "u1",
			body:   `{"question":"COCOMO?","document_ids":["d9"]}`,
			mockSetup: func(m *rag_mocks.MockEngine) {
				m.EXPECT().Ask(gomock.Any(), gomock.Any()).
					Return(rag.AskResponse{}, fmt.Errorf("%w: d9", rag.ErrDocumentNotFound))
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name:   "engine failure",
			method: http.MethodPost,
			user:   "u1",
			body:   `{"question":"COCOMO?"}`,
			mockSetup: func(m *rag_mocks.MockEngine) {
				m.EXPECT().Ask(gomock.Any(), gomock.Any()).Return(rag.AskResponse{}, errors.New("database is locked"))
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			engine := rag_mocks.NewMockEngine(ctrl)
			if tt.mockSetup != nil {
				tt.mockSetup(engine)
			}
			handler := NewAskHandler(engine)

			req := httptest.NewRequest(tt.method, "/api/v1/ask", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			if tt.user != "" {
				req = asUser(req, tt.user)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
			if w.Code != http.StatusOK {
				return
			}

			var resp rag.AskResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Answer != answered.Answer || resp.HistoryID != "h1" {
				t.Errorf("unexpected response %+v", resp)
			}
			if len(resp.References) != 1 || resp.References[0].ChunkIndex != 4 {
				t.Errorf("references = %+v", resp.References)
			}
			if resp.Metadata.AnswerType != rag.IntentDirect {
				t.Errorf("answer_type = %s", resp.Metadata.AnswerType)
			}
		})
	}
}
