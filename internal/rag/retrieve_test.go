package rag

import (
	"context"
	"errors"
	"math"
	"testing"

	"go.uber.org/mock/gomock"

	"studyqa/internal/llm"
	llm_mocks "studyqa/internal/llm/mocks"
	"studyqa/internal/storage"
	storage_mocks "studyqa/internal/storage/mocks"
	"studyqa/internal/vectorstore"
	vectorstore_mocks "studyqa/internal/vectorstore/mocks"
)

func TestSearchK(t *testing.T) {
	tests := []struct {
		intent  Intent
		numDocs int
		want    int
	}{
		{IntentDirect, 1, 30},
		{IntentDirect, 2, 45},
		{IntentDirect, 5, 60},
		{IntentDocumentOverview, 1, 150},
		{IntentDocumentOverview, 3, 300},
		{IntentSectionOverview, 1, 80},
		{IntentCompareSynthesize, 2, 75},
		{IntentMultiConceptReasoning, 1, 50},
	}
	for _, tt := range tests {
		if got := searchK(tt.intent, tt.numDocs); got != tt.want {
			t.Errorf("searchK(%s, %d) = %d, want %d", tt.intent, tt.numDocs, got, tt.want)
		}
	}
}

type retrieverMocks struct {
	embedder   *llm_mocks.MockEmbedder
	index      *vectorstore_mocks.MockIndexStore
	embeddings *storage_mocks.MockEmbeddingStore
	chunks     *storage_mocks.MockChunkStore
}

func newTestRetriever(t *testing.T) (*Retriever, retrieverMocks) {
	t.Helper()
	ctrl := gomock.NewController(t)
	m := retrieverMocks{
		embedder:   llm_mocks.NewMockEmbedder(ctrl),
		index:      vectorstore_mocks.NewMockIndexStore(ctrl),
		embeddings: storage_mocks.NewMockEmbeddingStore(ctrl),
		chunks:     storage_mocks.NewMockChunkStore(ctrl),
	}
	return NewRetriever(m.embedder, m.index, m.embeddings, m.chunks), m
}

func TestRetrieveSkipsUnusableIndexes(t *testing.T) {
	r, m := newTestRetriever(t)
	ctx := context.Background()
	query := []float32{1, 0, 0}

	empty := &storage.Document{ID: "d1", Namespace: "ns1"}
	mismatch := &storage.Document{ID: "d2", Namespace: "ns2"}
	good := &storage.Document{ID: "d3", Namespace: "ns3"}

	m.embedder.EXPECT().Embed(gomock.Any(), []string{"câu hỏi"}).
		Return(llm.EmbeddingResult{Vectors: [][]float32{query}}, nil)
	m.index.EXPECT().Stats(gomock.Any(), "ns1").Return(vectorstore.IndexStats{}, nil)
	m.index.EXPECT().Stats(gomock.Any(), "ns2").Return(vectorstore.IndexStats{Dimension: 2, Count: 5}, nil)
	m.index.EXPECT().Stats(gomock.Any(), "ns3").Return(vectorstore.IndexStats{Dimension: 3, Count: 2}, nil)
	m.index.EXPECT().Search(gomock.Any(), "ns3", query, 2).Return([]vectorstore.Neighbor{
		{ID: 6, Distance: 0},
		{ID: 5, Distance: 1},
	}, nil)
	m.embeddings.EXPECT().FindByVectorIndexes(gomock.Any(), "d3", []int64{6, 5}).Return([]*storage.EmbeddingRecord{
		{DocumentID: "d3", ChunkID: "c6", VectorIndex: 6},
		{DocumentID: "d3", ChunkID: "c5", VectorIndex: 5},
	}, nil)
	m.chunks.EXPECT().GetByIDs(gomock.Any(), []string{"c6", "c5"}).Return([]*storage.Chunk{
		{ID: "c5", DocumentID: "d3", ChunkIndex: 5, Content: "năm", Metadata: storage.ChunkMetadata{Section: "A"}},
		{ID: "c6", DocumentID: "d3", ChunkIndex: 6, Content: "sáu"},
	}, nil)

	got, err := r.Retrieve(ctx, "câu hỏi", []*storage.Document{empty, mismatch, good}, IntentDirect)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	sims := map[string]float64{}
	for _, c := range got {
		sims[c.Chunk.ID] = c.Similarity
		if c.Document != good {
			t.Errorf("candidate %s attached to wrong document", c.Chunk.ID)
		}
	}
	if math.Abs(sims["c6"]-1) > 1e-9 || math.Abs(sims["c5"]-0.5) > 1e-9 {
		t.Errorf("unexpected similarities %v", sims)
	}
	for _, c := range got {
		if c.Chunk.ID == "c5" && (c.VectorIndex != 5 || c.Meta.Section != "A") {
			t.Errorf("candidate not hydrated: %+v", c)
		}
	}
}

func TestRetrieveSkipsFailingDocument(t *testing.T) {
	r, m := newTestRetriever(t)
	doc := &storage.Document{ID: "d1", Namespace: "ns1"}

	m.embedder.EXPECT().Embed(gomock.Any(), gomock.Any()).
		Return(llm.EmbeddingResult{Vectors: [][]float32{{1}}}, nil)
	m.index.EXPECT().Stats(gomock.Any(), "ns1").Return(vectorstore.IndexStats{}, errors.New("disk error"))

	got, err := r.Retrieve(context.Background(), "q", []*storage.Document{doc}, IntentDirect)
	if err != nil {
		t.Fatalf("a failing document must not fail the request: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no candidates, got %d", len(got))
	}
}

func TestRetrieveEmbeddingFailure(t *testing.T) {
	tests := []struct {
		name string
		res  llm.EmbeddingResult
		err  error
	}{
		{"provider error", llm.EmbeddingResult{}, llm.ErrAllProvidersFailed},
		{"no vector", llm.EmbeddingResult{}, nil},
		{"empty vector", llm.EmbeddingResult{Vectors: [][]float32{{}}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, m := newTestRetriever(t)
			m.embedder.EXPECT().Embed(gomock.Any(), gomock.Any()).Return(tt.res, tt.err)

			_, err := r.Retrieve(context.Background(), "q", []*storage.Document{{ID: "d1"}}, IntentDirect)
			if !errors.Is(err, ErrEmbeddingFailed) {
				t.Errorf("expected ErrEmbeddingFailed, got %v", err)
			}
		})
	}
}
