package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"studyqa/internal/contextutil"
	"studyqa/internal/llm"
	"studyqa/internal/metrics"
	"studyqa/internal/storage"
	"studyqa/internal/vectorstore"
)

// ErrEmptyDocument is returned when a file yields no text to index.
var ErrEmptyDocument = errors.New("document contains no extractable text")

// Pipeline ingests uploaded files into SQLite and the vector index.
type Pipeline struct {
	documents  storage.DocumentStore
	chunks     storage.ChunkStore
	embeddings storage.EmbeddingStore
	histories  storage.HistoryStore
	embedder   llm.Embedder
	index      vectorstore.IndexStore
	uploadDir  string
	chunkSize  int
	overlap    int
	text       Chunker
	markdown   Chunker
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(
	documents storage.DocumentStore,
	chunks storage.ChunkStore,
	embeddings storage.EmbeddingStore,
	histories storage.HistoryStore,
	embedder llm.Embedder,
	index vectorstore.IndexStore,
	uploadDir string,
	chunkSize, overlap int,
) *Pipeline {
	return &Pipeline{
		documents:  documents,
		chunks:     chunks,
		embeddings: embeddings,
		histories:  histories,
		embedder:   embedder,
		index:      index,
		uploadDir:  uploadDir,
		chunkSize:  chunkSize,
		overlap:    overlap,
		text:       NewTextChunker(chunkSize, overlap),
		markdown:   NewMarkdownChunker(chunkSize, overlap),
	}
}

// Ingest stores, chunks and embeds an uploaded file for userID.
// On failure after the document row exists, everything written so far is removed.
func (p *Pipeline) Ingest(ctx context.Context, userID, filename string, data []byte) (*storage.Document, *IngestStats, error) {
	logger := contextutil.LoggerFromContext(ctx)
	start := time.Now()

	fileType, err := FileTypeFor(filename)
	if err != nil {
		return nil, nil, err
	}

	doc, stats, err := p.ingest(ctx, userID, filename, fileType, data)
	metrics.IngestsTotal.WithLabelValues(fileType, metrics.Status(err)).Inc()
	if err != nil {
		return nil, nil, err
	}
	metrics.IngestChunks.Observe(float64(stats.Chunks))

	logger.InfoContext(ctx, "document ingested",
		"document_id", doc.ID,
		"filename", filename,
		"file_type", fileType,
		"pages", stats.Pages,
		"chunks", stats.Chunks,
		"provider", stats.Provider,
		"dimension", stats.Dimension,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return doc, stats, nil
}

func (p *Pipeline) ingest(ctx context.Context, userID, filename, fileType string, data []byte) (*storage.Document, *IngestStats, error) {
	logger := contextutil.LoggerFromContext(ctx)

	pages, err := Extract(fileType, data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to extract text: %w", err)
	}

	chunker := p.text
	if fileType == storage.FileTypeMD {
		chunker = p.markdown
	}
	chunks := chunker.Chunk(pages)
	if len(chunks) == 0 {
		return nil, nil, ErrEmptyDocument
	}

	docID := uuid.New().String()
	if err := os.MkdirAll(p.uploadDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	path := filepath.Join(p.uploadDir, docID+filepath.Ext(filename))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, nil, fmt.Errorf("failed to store upload: %w", err)
	}

	doc := &storage.Document{
		ID:        docID,
		UserID:    userID,
		Filename:  filepath.Base(filename),
		FileType:  fileType,
		FilePath:  path,
		Namespace: storage.NamespaceFor(userID, docID),
	}
	if err := p.documents.Create(ctx, doc); err != nil {
		_ = os.Remove(path)
		return nil, nil, fmt.Errorf("failed to create document: %w", err)
	}

	stats, err := p.embedChunks(ctx, doc, chunks)
	if err != nil {
		if cleanupErr := p.remove(ctx, doc); cleanupErr != nil {
			logger.WarnContext(ctx, "failed to roll back partial ingestion", "document_id", docID, "error", cleanupErr)
		}
		return nil, nil, err
	}
	stats.Pages = len(pages)

	doc.ChunkCount = len(chunks)
	doc.IsEmbedded = true
	doc.EmbeddingModel = stats.Model
	doc.EmbeddingDimension = stats.Dimension
	return doc, stats, nil
}

// embedChunks persists chunks, embeds them and writes the vectors with their linkage records.
func (p *Pipeline) embedChunks(ctx context.Context, doc *storage.Document, chunks []Chunk) (*IngestStats, error) {
	records := make([]*storage.Chunk, len(chunks))
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		records[i] = &storage.Chunk{
			ID:         uuid.New().String(),
			DocumentID: doc.ID,
			ChunkIndex: c.Index,
			Content:    c.Content,
			Metadata:   c.Metadata,
		}
		texts[i] = c.Content
	}

	if err := p.chunks.InsertBatch(ctx, records); err != nil {
		return nil, fmt.Errorf("failed to insert chunks: %w", err)
	}
	if err := p.documents.UpdateChunkCount(ctx, doc.ID, len(records)); err != nil {
		return nil, fmt.Errorf("failed to update chunk count: %w", err)
	}

	res, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(res.Vectors) != len(records) {
		return nil, fmt.Errorf("embedding count mismatch: expected %d, got %d", len(records), len(res.Vectors))
	}

	next, err := p.embeddings.NextVectorIndex(ctx, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate vector indexes: %w", err)
	}
	ids := make([]int64, len(records))
	links := make([]*storage.EmbeddingRecord, len(records))
	for i, r := range records {
		ids[i] = next + int64(i)
		links[i] = &storage.EmbeddingRecord{
			ID:             uuid.New().String(),
			DocumentID:     doc.ID,
			ChunkID:        r.ID,
			ChunkIndex:     r.ChunkIndex,
			VectorIndex:    ids[i],
			EmbeddingModel: res.Model,
			Provider:       res.Provider,
		}
	}

	if err := p.index.Add(ctx, doc.Namespace, ids, res.Vectors); err != nil {
		return nil, fmt.Errorf("failed to add vectors: %w", err)
	}
	if err := p.embeddings.InsertBatch(ctx, links); err != nil {
		return nil, fmt.Errorf("failed to insert embedding records: %w", err)
	}
	if err := p.documents.MarkEmbedded(ctx, doc.ID, res.Model, res.Dimension()); err != nil {
		return nil, fmt.Errorf("failed to mark document embedded: %w", err)
	}

	return newIngestStats(chunks, res, p.chunkSize, p.overlap), nil
}

// List returns the documents owned by userID.
func (p *Pipeline) List(ctx context.Context, userID string) ([]*storage.Document, error) {
	return p.documents.ListByUser(ctx, userID)
}

// Get returns a document owned by userID. Documents of other users are reported as not found.
func (p *Pipeline) Get(ctx context.Context, userID, documentID string) (*storage.Document, error) {
	doc, err := p.documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.UserID != userID {
		return nil, storage.ErrNotFound
	}
	return doc, nil
}

// Chunks returns the chunks of a document owned by userID in reading order.
func (p *Pipeline) Chunks(ctx context.Context, userID, documentID string) ([]*storage.Chunk, error) {
	if _, err := p.Get(ctx, userID, documentID); err != nil {
		return nil, err
	}
	return p.chunks.ListByDocument(ctx, documentID)
}

// Delete removes a document owned by userID together with its history turns,
// chunks, embeddings, vector index and stored upload.
func (p *Pipeline) Delete(ctx context.Context, userID, documentID string) error {
	doc, err := p.Get(ctx, userID, documentID)
	if err != nil {
		return err
	}
	if err := p.remove(ctx, doc); err != nil {
		return err
	}
	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "document deleted", "document_id", documentID)
	return nil
}

func (p *Pipeline) remove(ctx context.Context, doc *storage.Document) error {
	if err := p.histories.DeleteByDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("failed to delete history: %w", err)
	}
	if err := p.documents.Delete(ctx, doc.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if err := p.index.Drop(ctx, doc.Namespace); err != nil {
		return fmt.Errorf("failed to drop vector index: %w", err)
	}
	if doc.FilePath != "" && strings.HasPrefix(filepath.Clean(doc.FilePath), filepath.Clean(p.uploadDir)) {
		if err := os.Remove(doc.FilePath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove upload: %w", err)
		}
	}
	return nil
}
