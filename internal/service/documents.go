package service

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_document_ingester.go -package=mocks studyqa/internal/service DocumentIngester
//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_document_service.go -package=mocks studyqa/internal/service DocumentService

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"studyqa/internal/contextutil"
	"studyqa/internal/indexer"
	"studyqa/internal/llm"
	"studyqa/internal/storage"
)

// MaxUploadBytes bounds the size of a single uploaded file.
const MaxUploadBytes = 50 << 20

// DocumentIngester stores, indexes and removes uploaded files.
// This interface is defined from the service layer's perspective (consumer-first);
// *indexer.Pipeline satisfies it.
type DocumentIngester interface {
	Ingest(ctx context.Context, userID, filename string, data []byte) (*storage.Document, *indexer.IngestStats, error)
	List(ctx context.Context, userID string) ([]*storage.Document, error)
	Get(ctx context.Context, userID, documentID string) (*storage.Document, error)
	Chunks(ctx context.Context, userID, documentID string) ([]*storage.Chunk, error)
	Delete(ctx context.Context, userID, documentID string) error
}

// UploadRequest is one file uploaded by a user.
type UploadRequest struct {
	UserID   string
	Filename string
	Data     []byte
}

// UploadResult describes a freshly ingested document.
type UploadResult struct {
	Document *storage.Document
	Stats    *indexer.IngestStats
}

// DocumentDetail is a document together with its chunks in reading order.
type DocumentDetail struct {
	Document *storage.Document
	Chunks   []*storage.Chunk
}

// DocumentService manages a user's documents.
type DocumentService interface {
	// Upload validates and ingests a file.
	Upload(ctx context.Context, req UploadRequest) (UploadResult, error)
	// List returns the documents owned by userID, newest first.
	List(ctx context.Context, userID string) ([]*storage.Document, error)
	// Get returns a document owned by userID with its chunks.
	Get(ctx context.Context, userID, documentID string) (DocumentDetail, error)
	// Delete removes a document with its chunks, embeddings, history and index.
	Delete(ctx context.Context, userID, documentID string) error
}

type documentService struct {
	ingester DocumentIngester
}

// NewDocumentService creates a new DocumentService.
func NewDocumentService(ingester DocumentIngester) DocumentService {
	return &documentService{ingester: ingester}
}

// Upload validates and ingests a file.
func (s *documentService) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if strings.TrimSpace(req.Filename) == "" {
		return UploadResult{}, &ValidationError{Field: "file", Message: "filename is required"}
	}
	if len(req.Data) == 0 {
		return UploadResult{}, &ValidationError{Field: "file", Message: "cannot be empty"}
	}
	if len(req.Data) > MaxUploadBytes {
		return UploadResult{}, &ValidationError{Field: "file", Message: fmt.Sprintf("exceeds %d bytes", MaxUploadBytes)}
	}
	if _, err := indexer.FileTypeFor(req.Filename); err != nil {
		return UploadResult{}, &ValidationError{Field: "file", Message: err.Error()}
	}

	doc, stats, err := s.ingester.Ingest(ctx, req.UserID, req.Filename, req.Data)
	switch {
	case errors.Is(err, indexer.ErrEmptyDocument):
		logger.WarnContext(ctx, "uploaded document has no text", "filename", req.Filename)
		return UploadResult{}, &ValidationError{Field: "file", Message: err.Error()}
	case errors.Is(err, indexer.ErrUnsupportedFileType):
		return UploadResult{}, &ValidationError{Field: "file", Message: err.Error()}
	case errors.Is(err, llm.ErrAllProvidersFailed):
		logger.ErrorContext(ctx, "embedding providers unavailable", "filename", req.Filename, "error", err)
		return UploadResult{}, fmt.Errorf("%w: %v", ErrExternalService, err)
	case err != nil:
		logger.ErrorContext(ctx, "failed to ingest document", "filename", req.Filename, "error", err)
		return UploadResult{}, WrapError(err, "failed to ingest document")
	}

	return UploadResult{Document: doc, Stats: stats}, nil
}

// List returns the documents owned by userID.
func (s *documentService) List(ctx context.Context, userID string) ([]*storage.Document, error) {
	docs, err := s.ingester.List(ctx, userID)
	if err != nil {
		return nil, WrapError(err, "failed to list documents")
	}
	if docs == nil {
		docs = []*storage.Document{}
	}
	return docs, nil
}

// Get returns a document owned by userID with its chunks.
func (s *documentService) Get(ctx context.Context, userID, documentID string) (DocumentDetail, error) {
	if strings.TrimSpace(documentID) == "" {
		return DocumentDetail{}, &ValidationError{Field: "id", Message: "cannot be empty"}
	}
	doc, err := s.ingester.Get(ctx, userID, documentID)
	if errors.Is(err, storage.ErrNotFound) {
		return DocumentDetail{}, fmt.Errorf("document %s: %w", documentID, ErrNotFound)
	}
	if err != nil {
		return DocumentDetail{}, WrapError(err, "failed to get document")
	}
	chunks, err := s.ingester.Chunks(ctx, userID, documentID)
	if err != nil {
		return DocumentDetail{}, WrapError(err, "failed to list chunks")
	}
	if chunks == nil {
		chunks = []*storage.Chunk{}
	}
	return DocumentDetail{Document: doc, Chunks: chunks}, nil
}

// Delete removes a document owned by userID.
func (s *documentService) Delete(ctx context.Context, userID, documentID string) error {
	if strings.TrimSpace(documentID) == "" {
		return &ValidationError{Field: "id", Message: "cannot be empty"}
	}
	err := s.ingester.Delete(ctx, userID, documentID)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("document %s: %w", documentID, ErrNotFound)
	}
	if err != nil {
		return WrapError(err, "failed to delete document")
	}
	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "document deleted", "document_id", documentID)
	return nil
}
