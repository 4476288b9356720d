package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"studyqa/internal/indexer"
	"studyqa/internal/service"
	service_mocks "studyqa/internal/service/mocks"
	"studyqa/internal/storage"

	"go.uber.org/mock/gomock"
)

func multipartUpload(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestDocumentHandler_Upload(t *testing.T) {
	ctrl := gomock.NewController(t)
	docs := service_mocks.NewMockDocumentService(ctrl)
	handler := NewDocumentHandler(docs)

	doc := &storage.Document{
		ID: "d1", UserID: "u1", Filename: "notes.md", FileType: storage.FileTypeMD,
		ChunkCount: 2, IsEmbedded: true, CreatedAt: time.Now().UTC(),
	}
	docs.EXPECT().Upload(gomock.Any(), service.UploadRequest{
		UserID:   "u1",
		Filename: "notes.md",
		Data:     []byte("# Notes\n\nbody"),
	}).Return(service.UploadResult{Document: doc, Stats: &indexer.IngestStats{Chunks: 2}}, nil)

	w := httptest.NewRecorder()
	handler.Upload(w, asUser(multipartUpload(t, "file", "notes.md", []byte("# Notes\n\nbody")), "u1"))

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}
	var resp UploadResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Document.ID != "d1" || !resp.Document.IsEmbedded || resp.Stats.Chunks != 2 {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestDocumentHandler_UploadErrors(t *testing.T) {
	tests := []struct {
		name           string
		req            func(t *testing.T) *http.Request
		mockSetup      func(m *service_mocks.MockDocumentService)
		expectedStatus int
	}{
		{
			name: "wrong form field",
			req: func(t *testing.T) *http.Request {
				return asUser(multipartUpload(t, "upload", "a.txt", []byte("x")), "u1")
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "validation error",
			req: func(t *testing.T) *http.Request {
				return asUser(multipartUpload(t, "file", "a.exe", []byte("x")), "u1")
			},
			mockSetup: func(m *service_mocks.MockDocumentService) {
				m.EXPECT().Upload(gomock.Any(), gomock.Any()).
					Return(service.UploadResult{}, &service.ValidationError{Field: "file", Message: "unsupported file type"})
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "embedding outage",
			req: func(t *testing.T) *http.Request {
				return asUser(multipartUpload(t, "file", "a.txt", []byte("x")), "u1")
			},
			mockSetup: func(m *service_mocks.MockDocumentService) {
				m.EXPECT().Upload(gomock.Any(), gomock.Any()).
					Return(service.UploadResult{}, fmt.Errorf("%w: timeout", service.ErrExternalService))
			},
			expectedStatus: http.StatusBadGateway,
		},
		{
			name: "anonymous caller",
			req: func(t *testing.T) *http.Request {
				return multipartUpload(t, "file", "a.txt", []byte("x"))
			},
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			docs := service_mocks.NewMockDocumentService(ctrl)
			if tt.mockSetup != nil {
				tt.mockSetup(docs)
			}
			w := httptest.NewRecorder()
			NewDocumentHandler(docs).Upload(w, tt.req(t))
			if w.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestDocumentHandler_List(t *testing.T) {
	ctrl := gomock.NewController(t)
	docs := service_mocks.NewMockDocumentService(ctrl)
	handler := NewDocumentHandler(docs)

	docs.EXPECT().List(gomock.Any(), "u1").Return([]*storage.Document{
		{ID: "d2", Filename: "b.pdf", FileType: storage.FileTypePDF},
		{ID: "d1", Filename: "a.txt", FileType: storage.FileTypeTXT},
	}, nil)

	w := httptest.NewRecorder()
	handler.List(w, asUser(httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil), "u1"))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var resp ListDocumentsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Documents) != 2 || resp.Documents[0].ID != "d2" || resp.Documents[1].FileType != "txt" {
		t.Errorf("unexpected documents %+v", resp.Documents)
	}
}

func TestDocumentHandler_Delete(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
	}{
		{name: "deleted", expectedStatus: http.StatusNoContent},
		{name: "not found", err: fmt.Errorf("document d1: %w", service.ErrNotFound), expectedStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			docs := service_mocks.NewMockDocumentService(ctrl)
			docs.EXPECT().Delete(gomock.Any(), "u1", "d1").Return(tt.err)

			req := httptest.NewRequest(http.MethodDelete, "/api/v1/documents/d1", nil)
			req = asUser(withURLParam(req, "id", "d1"), "u1")
			w := httptest.NewRecorder()
			NewDocumentHandler(docs).Delete(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, w.Code)
			}
		})
	}
}

func TestDocumentHandler_Get(t *testing.T) {
	ctrl := gomock.NewController(t)
	docs := service_mocks.NewMockDocumentService(ctrl)
	handler := NewDocumentHandler(docs)

	docs.EXPECT().Get(gomock.Any(), "u1", "d1").Return(service.DocumentDetail{
		Document: &storage.Document{ID: "d1", Filename: "notes.md", FileType: storage.FileTypeMD, ChunkCount: 2},
		Chunks: []*storage.Chunk{
			{ID: "c0", DocumentID: "d1", ChunkIndex: 0, Content: "Chương 1", Metadata: storage.ChunkMetadata{Section: "CHƯƠNG 1", IsMainSection: true}},
			{ID: "c1", DocumentID: "d1", ChunkIndex: 1, Content: "1.1 Giao thức", Metadata: storage.ChunkMetadata{Section: "1.1", IsSubsection: true}},
		},
	}, nil)

	req := asUser(withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/documents/d1", nil), "id", "d1"), "u1")
	w := httptest.NewRecorder()
	handler.Get(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var resp DocumentDetailResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Document.ID != "d1" || len(resp.Chunks) != 2 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Chunks[1].ChunkIndex != 1 || resp.Chunks[1].Metadata.Section != "1.1" {
		t.Errorf("unexpected chunk %+v", resp.Chunks[1])
	}
}

func TestDocumentHandler_GetNotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	docs := service_mocks.NewMockDocumentService(ctrl)
	docs.EXPECT().Get(gomock.Any(), "u2", "d1").Return(service.DocumentDetail{}, fmt.Errorf("document d1: %w", service.ErrNotFound))

	req := asUser(withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/documents/d1", nil), "id", "d1"), "u2")
	w := httptest.NewRecorder()
	NewDocumentHandler(docs).Get(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}
