package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"studyqa/internal/contextutil"
	"studyqa/internal/llm"
	"studyqa/internal/metrics"
	"studyqa/internal/storage"
	"studyqa/internal/vectorstore"
)

const (
	embeddingFailedMessage = "Không thể tạo embedding cho câu hỏi."
	noPassagesMessage      = "Không tìm thấy đoạn văn phù hợp trong tài liệu của bạn."
	tooBroadMessage        = "Câu hỏi của bạn khá rộng. Hãy thu hẹp lại, ví dụ hỏi về một chương, một phần hoặc một khái niệm cụ thể trong tài liệu."
)

// ErrEmptyQuestion is returned when the question is blank.
var ErrEmptyQuestion = errors.New("question is empty")

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_engine.go -package=mocks studyqa/internal/rag Engine

// Engine answers questions about a user's documents.
type Engine interface {
	// Ask answers a question from the user's documents and records the turn in the history.
	Ask(ctx context.Context, req AskRequest) (AskResponse, error)
}

// ragEngine implements the Engine interface.
type ragEngine struct {
	documents storage.DocumentStore
	histories storage.HistoryStore
	retriever *Retriever
	selector  *Selector
	generator *Generator
	tuning    Tuning
}

// NewEngine creates a new RAG engine. A zero tuning uses DefaultTuning.
func NewEngine(
	documents storage.DocumentStore,
	chunks storage.ChunkStore,
	embeddings storage.EmbeddingStore,
	histories storage.HistoryStore,
	embedder llm.Embedder,
	index vectorstore.IndexStore,
	completer llm.Completer,
	tuning Tuning,
) Engine {
	tuning = tuning.withDefaults()
	return &ragEngine{
		documents: documents,
		histories: histories,
		retriever: NewRetriever(embedder, index, embeddings, chunks),
		selector:  NewSelector(chunks, tuning),
		generator: NewGenerator(completer, tuning),
		tuning:    tuning,
	}
}

// outcome is what a pipeline run produced, before it is persisted.
type outcome struct {
	answer   GeneratedAnswer
	intent   Intent
	refs     []storage.Reference
	searched []*storage.Document
	selected int
}

// Ask answers a question using RAG.
func (e *ragEngine) Ask(ctx context.Context, req AskRequest) (AskResponse, error) {
	logger := contextutil.LoggerFromContext(ctx)
	start := time.Now()

	question := strings.TrimSpace(req.Question)
	if question == "" {
		return AskResponse{}, ErrEmptyQuestion
	}

	if reply, ok := smallTalkResponse(question); ok {
		logger.InfoContext(ctx, "small talk detected")
		return e.finish(ctx, req, question, outcome{
			answer: GeneratedAnswer{Answer: reply, AnswerType: IntentDirect, Confidence: 1},
			intent: IntentDirect,
		})
	}

	intent := Classify(question)
	logger.InfoContext(ctx, "RAG query started", "intent", intent, "document_ids", req.DocumentIDs)

	if intent == IntentTooBroad {
		return e.finish(ctx, req, question, outcome{
			answer: GeneratedAnswer{Answer: tooBroadMessage, AnswerType: IntentTooBroad},
			intent: intent,
		})
	}

	docs, err := e.resolveDocuments(ctx, req.UserID, req.DocumentIDs)
	if err != nil {
		return AskResponse{}, err
	}
	if len(docs) == 0 {
		logger.InfoContext(ctx, "no embedded documents to search")
		return e.finish(ctx, req, question, outcome{answer: fallbackAnswer(noPassagesMessage), intent: intent})
	}

	o, err := e.run(ctx, question, intent, docs, req.DocumentIDs)
	if err != nil {
		return AskResponse{}, err
	}
	resp, err := e.finish(ctx, req, question, o)
	if err != nil {
		return AskResponse{}, err
	}

	logger.InfoContext(ctx, "RAG query completed",
		"intent", intent,
		"answer_type", resp.Metadata.AnswerType,
		"confidence", resp.Metadata.Confidence,
		"chunks_selected", o.selected,
		"references", len(resp.References),
		"duration", time.Since(start),
	)
	return resp, nil
}

// run executes retrieval through reconciliation for the resolved documents.
func (e *ragEngine) run(ctx context.Context, question string, intent Intent, docs []*storage.Document, requested []string) (outcome, error) {
	logger := contextutil.LoggerFromContext(ctx)
	o := outcome{intent: intent, searched: docs}

	stage := time.Now()
	candidates, err := e.retriever.Retrieve(ctx, question, docs, intent)
	metrics.ObserveStage("retrieve", stage)
	if err != nil {
		if errors.Is(err, ErrEmbeddingFailed) {
			logger.WarnContext(ctx, "question embedding failed", "error", err)
			o.answer = fallbackAnswer(embeddingFailedMessage)
			return o, nil
		}
		return o, fmt.Errorf("failed to retrieve candidates: %w", err)
	}
	if len(candidates) == 0 {
		logger.InfoContext(ctx, "no candidates retrieved")
		o.answer = fallbackAnswer(noPassagesMessage)
		return o, nil
	}

	stage = time.Now()
	boosted := Boost(candidates, question, intent, e.tuning)
	metrics.ObserveStage("boost", stage)

	stage = time.Now()
	selected := e.selector.Select(ctx, boosted, intent, len(docs))
	metrics.ObserveStage("select", stage)
	o.selected = len(selected)

	threshold := e.tuning.similarityThreshold(intent)
	best := maxSimilarity(selected)
	if best < threshold {
		logger.InfoContext(ctx, "best similarity below threshold", "best", best, "threshold", threshold)
		o.answer = fallbackAnswer(notFoundMessage)
		return o, nil
	}

	stage = time.Now()
	prompt := BuildPrompt(PromptInput{
		Question:  question,
		Intent:    intent,
		Chunks:    selected,
		Documents: docs,
		Threshold: threshold,
	})
	metrics.ObserveStage("prompt", stage)
	logger.DebugContext(ctx, "prompt built", "prompt_length", len(prompt), "chunks", len(selected))

	stage = time.Now()
	o.answer = e.generator.Generate(ctx, prompt, selected, intent)
	metrics.ObserveStage("generate", stage)

	stage = time.Now()
	o.refs = Reconcile(ReconcileInput{
		Answer:        o.answer,
		Selected:      selected,
		Intent:        intent,
		RequestedDocs: requested,
	})
	metrics.ObserveStage("reconcile", stage)
	return o, nil
}

// resolveDocuments returns the embedded documents to search. Without explicit ids all of
// the user's documents are used; an explicit id that is missing or foreign is an error.
func (e *ragEngine) resolveDocuments(ctx context.Context, userID string, ids []string) ([]*storage.Document, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if len(ids) == 0 {
		all, err := e.documents.ListByUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to list documents: %w", err)
		}
		docs := make([]*storage.Document, 0, len(all))
		for _, d := range all {
			if d.IsEmbedded {
				docs = append(docs, d)
			}
		}
		return docs, nil
	}

	seen := make(map[string]bool, len(ids))
	docs := make([]*storage.Document, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		doc, err := e.documents.GetByID(ctx, id)
		if errors.Is(err, storage.ErrNotFound) || (err == nil && doc.UserID != userID) {
			return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get document %s: %w", id, err)
		}
		if !doc.IsEmbedded {
			logger.WarnContext(ctx, "document is not embedded, skipping", "document_id", id)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// finish persists the turn and builds the response.
func (e *ragEngine) finish(ctx context.Context, req AskRequest, question string, o outcome) (AskResponse, error) {
	ans := o.answer
	refs := o.refs
	if ans.AnswerType.isEmpty() || refs == nil {
		refs = []storage.Reference{}
	}

	documents := citedDocuments(refs)
	if len(documents) == 0 {
		for _, d := range o.searched {
			documents = append(documents, d.ID)
		}
	}

	h := &storage.History{
		ID:             uuid.New().String(),
		UserID:         req.UserID,
		Question:       question,
		Answer:         ans.Answer,
		References:     refs,
		ConversationID: req.ConversationID,
	}
	if len(documents) > 0 {
		h.DocumentID = documents[0]
	}
	if err := e.histories.Create(ctx, h); err != nil {
		return AskResponse{}, fmt.Errorf("failed to save history: %w", err)
	}
	if h.ConversationID == "" {
		if err := e.histories.SetConversationID(ctx, h.ID, h.ID); err != nil {
			return AskResponse{}, fmt.Errorf("failed to set conversation id: %w", err)
		}
		h.ConversationID = h.ID
	}

	metrics.AsksTotal.WithLabelValues(string(o.intent), string(ans.AnswerType)).Inc()

	return AskResponse{
		Answer:         ans.Answer,
		References:     refs,
		Documents:      documents,
		ConversationID: h.ConversationID,
		HistoryID:      h.ID,
		Metadata: ResponseMetadata{
			AnswerType:     ans.AnswerType,
			Confidence:     ans.Confidence,
			QueryType:      o.intent,
			ChunksSelected: o.selected,
			ChunksUsed:     len(ans.ChunksUsed),
		},
	}, nil
}

// citedDocuments returns the distinct document ids of refs in citation order.
func citedDocuments(refs []storage.Reference) []string {
	out := []string{}
	seen := make(map[string]bool)
	for _, r := range refs {
		if !seen[r.DocumentID] {
			seen[r.DocumentID] = true
			out = append(out, r.DocumentID)
		}
	}
	return out
}

func maxSimilarity(cs []*Candidate) float64 {
	best := 0.0
	for _, c := range cs {
		if c.Similarity > best {
			best = c.Similarity
		}
	}
	return best
}
