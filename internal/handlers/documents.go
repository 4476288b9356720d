package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"studyqa/internal/contextutil"
	"studyqa/internal/indexer"
	"studyqa/internal/service"
	"studyqa/internal/storage"
)

// DocumentHandler handles HTTP requests for uploading, listing, inspecting and deleting documents.
type DocumentHandler struct {
	documents service.DocumentService
}

// NewDocumentHandler creates a new DocumentHandler.
func NewDocumentHandler(documents service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documents: documents}
}

// DocumentResponse represents a document in the HTTP response.
//
// swagger:model DocumentResponse
type DocumentResponse struct {
	ID                 string    `json:"id"`
	Filename           string    `json:"filename"`
	FileType           string    `json:"file_type"`
	ChunkCount         int       `json:"chunk_count"`
	IsEmbedded         bool      `json:"is_embedded"`
	EmbeddingModel     string    `json:"embedding_model,omitempty"`
	EmbeddingDimension int       `json:"embedding_dimension,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// UploadResponse is returned after a successful upload.
//
// swagger:model UploadResponse
type UploadResponse struct {
	Document DocumentResponse     `json:"document"`
	Stats    *indexer.IngestStats `json:"stats,omitempty"`
}

// ListDocumentsResponse wraps the caller's documents.
//
// swagger:model ListDocumentsResponse
type ListDocumentsResponse struct {
	Documents []DocumentResponse `json:"documents"`
}

// ChunkResponse is one stored chunk of a document.
//
// swagger:model ChunkResponse
type ChunkResponse struct {
	ID         string                `json:"id"`
	ChunkIndex int                   `json:"chunk_index"`
	Content    string                `json:"content"`
	Metadata   storage.ChunkMetadata `json:"metadata"`
}

// DocumentDetailResponse is a document with its chunks in reading order.
//
// swagger:model DocumentDetailResponse
type DocumentDetailResponse struct {
	Document DocumentResponse `json:"document"`
	Chunks   []ChunkResponse  `json:"chunks"`
}

func toDocumentResponse(doc *storage.Document) DocumentResponse {
	return DocumentResponse{
		ID:                 doc.ID,
		Filename:           doc.Filename,
		FileType:           doc.FileType,
		ChunkCount:         doc.ChunkCount,
		IsEmbedded:         doc.IsEmbedded,
		EmbeddingModel:     doc.EmbeddingModel,
		EmbeddingDimension: doc.EmbeddingDimension,
		CreatedAt:          doc.CreatedAt,
	}
}

// Upload handles multipart uploads under the "file" form field.
//
// swagger:route POST /api/v1/documents uploadDocument
//
// # Upload a document
//
// Accepts pdf, docx, md and txt files. The file is chunked and embedded before the
// response is written, so the document is immediately searchable.
//
// ---
// consumes:
// - multipart/form-data
// produces:
// - application/json
// responses:
//
//	'201':
//	  schema:
//	    "$ref": "#/definitions/UploadResponse"
//	'400':
//	  description: Missing, empty, oversized or unsupported file
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
//	'502':
//	  description: Embedding providers unavailable
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	user, ok := userID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, service.MaxUploadBytes+(1<<20))
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		logger.WarnContext(ctx, "missing upload", "error", err)
		writeError(w, http.StatusBadRequest, "A file is required in the \"file\" form field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		logger.WarnContext(ctx, "failed to read upload", "error", err)
		writeError(w, http.StatusBadRequest, "Failed to read file")
		return
	}

	res, err := h.documents.Upload(ctx, service.UploadRequest{
		UserID:   user,
		Filename: header.Filename,
		Data:     data,
	})
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to upload document")
		return
	}

	writeJSON(ctx, w, http.StatusCreated, UploadResponse{
		Document: toDocumentResponse(res.Document),
		Stats:    res.Stats,
	})
}

// List returns the caller's documents.
//
// swagger:route GET /api/v1/documents listDocuments
//
// ---
// produces:
// - application/json
// responses:
//
//	'200':
//	  schema:
//	    "$ref": "#/definitions/ListDocumentsResponse"
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := userID(w, r)
	if !ok {
		return
	}

	docs, err := h.documents.List(ctx, user)
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to list documents")
		return
	}

	resp := ListDocumentsResponse{Documents: make([]DocumentResponse, 0, len(docs))}
	for _, doc := range docs {
		resp.Documents = append(resp.Documents, toDocumentResponse(doc))
	}
	writeJSON(ctx, w, http.StatusOK, resp)
}

// Get returns one of the caller's documents with its chunks.
//
// swagger:route GET /api/v1/documents/{id} getDocument
//
// ---
// produces:
// - application/json
// responses:
//
//	'200':
//	  schema:
//	    "$ref": "#/definitions/DocumentDetailResponse"
//	'404':
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := userID(w, r)
	if !ok {
		return
	}

	detail, err := h.documents.Get(ctx, user, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to get document")
		return
	}

	resp := DocumentDetailResponse{
		Document: toDocumentResponse(detail.Document),
		Chunks:   make([]ChunkResponse, 0, len(detail.Chunks)),
	}
	for _, c := range detail.Chunks {
		resp.Chunks = append(resp.Chunks, ChunkResponse{
			ID:         c.ID,
			ChunkIndex: c.ChunkIndex,
			Content:    c.Content,
			Metadata:   c.Metadata,
		})
	}
	writeJSON(ctx, w, http.StatusOK, resp)
}

// Delete removes a document and everything derived from it.
//
// swagger:route DELETE /api/v1/documents/{id} deleteDocument
//
// ---
// responses:
//
//	'204':
//	  description: Deleted
//	'404':
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := userID(w, r)
	if !ok {
		return
	}

	if err := h.documents.Delete(ctx, user, chi.URLParam(r, "id")); err != nil {
		handleServiceError(ctx, w, err, "Failed to delete document")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
