package rag

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"studyqa/internal/contextutil"
	"studyqa/internal/llm"
	"studyqa/internal/storage"
	"studyqa/internal/vectorstore"
)

var (
	// ErrEmbeddingFailed is returned when the question cannot be embedded.
	ErrEmbeddingFailed = errors.New("failed to embed question")

	errEmptyEmbedding = errors.New("embedding provider returned no vector")
)

const (
	baseSearchK = 30
	// maxParallelSearches bounds concurrent per-document index searches.
	maxParallelSearches = 8
)

// Retriever embeds a question and searches the vector indexes of the target documents.
type Retriever struct {
	embedder   llm.Embedder
	index      vectorstore.IndexStore
	embeddings storage.EmbeddingStore
	chunks     storage.ChunkStore
}

// NewRetriever creates a Retriever.
func NewRetriever(embedder llm.Embedder, index vectorstore.IndexStore, embeddings storage.EmbeddingStore, chunks storage.ChunkStore) *Retriever {
	return &Retriever{embedder: embedder, index: index, embeddings: embeddings, chunks: chunks}
}

// searchK returns the number of neighbors to request per document.
func searchK(intent Intent, numDocs int) int {
	k := baseSearchK
	switch intent {
	case IntentDocumentOverview:
		k = 150
	case IntentSectionOverview:
		k = 80
	case IntentCompareSynthesize, IntentMultiConceptReasoning:
		k = 50
	}
	return int(float64(k) * docScale(numDocs))
}

// docScale widens budgets so that coverage per document does not shrink with more documents.
func docScale(numDocs int) float64 {
	switch {
	case numDocs >= 3:
		return 2.0
	case numDocs == 2:
		return 1.5
	default:
		return 1.0
	}
}

// Retrieve returns the unordered candidates of all documents. Documents with an empty
// index, a dimension mismatch or a failing search are skipped. The only error is
// ErrEmbeddingFailed (wrapped) when the question cannot be embedded.
func (r *Retriever) Retrieve(ctx context.Context, question string, docs []*storage.Document, intent Intent) ([]*Candidate, error) {
	logger := contextutil.LoggerFromContext(ctx)

	res, err := r.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
	if len(res.Vectors) == 0 || len(res.Vectors[0]) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, errEmptyEmbedding)
	}
	query := res.Vectors[0]
	k := searchK(intent, len(docs))

	var (
		mu         sync.Mutex
		candidates []*Candidate
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelSearches)
	for _, doc := range docs {
		g.Go(func() error {
			found, err := r.searchDocument(gctx, doc, query, k)
			if err != nil {
				logger.WarnContext(ctx, "skipping document", "document_id", doc.ID, "error", err)
				return nil
			}
			mu.Lock()
			candidates = append(candidates, found...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	logger.InfoContext(ctx, "retrieval completed", "documents", len(docs), "k", k, "candidates", len(candidates))
	return candidates, nil
}

var errSkipDocument = errors.New("index unusable for query")

// searchDocument searches one document's index and hydrates the hits into candidates.
func (r *Retriever) searchDocument(ctx context.Context, doc *storage.Document, query []float32, k int) ([]*Candidate, error) {
	stats, err := r.index.Stats(ctx, doc.Namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to read index stats: %w", err)
	}
	if stats.Count == 0 {
		return nil, fmt.Errorf("%w: empty index", errSkipDocument)
	}
	if stats.Dimension != len(query) {
		return nil, fmt.Errorf("%w: dimension %d, query %d", errSkipDocument, stats.Dimension, len(query))
	}

	neighbors, err := r.index.Search(ctx, doc.Namespace, query, min(k, stats.Count))
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}
	if len(neighbors) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(neighbors))
	distances := make(map[int64]float32, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.ID
		distances[n.ID] = n.Distance
	}

	records, err := r.embeddings.FindByVectorIndexes(ctx, doc.ID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedding records: %w", err)
	}
	chunkIDs := make([]string, len(records))
	vectorOf := make(map[string]int64, len(records))
	for i, rec := range records {
		chunkIDs[i] = rec.ChunkID
		vectorOf[rec.ChunkID] = rec.VectorIndex
	}

	chunks, err := r.chunks.GetByIDs(ctx, chunkIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}

	out := make([]*Candidate, 0, len(chunks))
	for _, c := range chunks {
		vi := vectorOf[c.ID]
		out = append(out, &Candidate{
			Chunk:       c,
			Document:    doc,
			VectorIndex: vi,
			Similarity:  1 / (1 + float64(distances[vi])),
			Meta:        c.Metadata,
		})
	}
	return out, nil
}
