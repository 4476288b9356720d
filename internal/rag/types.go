package rag

import (
	"errors"

	"studyqa/internal/storage"
)

// ErrDocumentNotFound is returned when a requested document does not exist or belongs to another user.
var ErrDocumentNotFound = errors.New("document not found or not accessible")

// Intent is the classified category of a question. Answer types share the same tags.
type Intent string

const (
	IntentDirect                Intent = "DIRECT"
	IntentExpand                Intent = "EXPAND"
	IntentExistence             Intent = "EXISTENCE"
	IntentCompareSynthesize     Intent = "COMPARE_SYNTHESIZE"
	IntentSectionOverview       Intent = "SECTION_OVERVIEW"
	IntentDocumentOverview      Intent = "DOCUMENT_OVERVIEW"
	IntentCodeAnalysis          Intent = "CODE_ANALYSIS"
	IntentExerciseGeneration    Intent = "EXERCISE_GENERATION"
	IntentMultiConceptReasoning Intent = "MULTI_CONCEPT_REASONING"
	IntentTooBroad              Intent = "TOO_BROAD"

	// AnswerSynthesis and AnswerFallback only appear as answer types.
	AnswerSynthesis Intent = "SYNTHESIS"
	AnswerFallback  Intent = "FALLBACK"
)

var knownAnswerTypes = map[Intent]bool{
	IntentDirect: true, IntentExpand: true, IntentExistence: true, IntentCompareSynthesize: true,
	IntentSectionOverview: true, IntentDocumentOverview: true, IntentCodeAnalysis: true,
	IntentExerciseGeneration: true, IntentMultiConceptReasoning: true, IntentTooBroad: true,
	AnswerSynthesis: true, AnswerFallback: true,
}

// isEmpty reports whether an answer of this type must carry no chunks, no references and zero confidence.
func (i Intent) isEmpty() bool {
	return i == AnswerFallback || i == IntentTooBroad
}

// AskRequest represents a question asked by a user.
type AskRequest struct {
	UserID   string `json:"-"`
	Question string `json:"question"`
	// DocumentIDs restricts the search. If empty, all documents of the user are searched.
	DocumentIDs    []string `json:"document_ids,omitempty"`
	ConversationID string   `json:"conversation_id,omitempty"`
}

// AskResponse represents the answer to an AskRequest.
type AskResponse struct {
	Answer     string              `json:"answer"`
	References []storage.Reference `json:"references"`
	// Documents lists the cited documents, or the searched documents when nothing was cited.
	Documents      []string         `json:"documents"`
	ConversationID string           `json:"conversation_id"`
	HistoryID      string           `json:"history_id"`
	Metadata       ResponseMetadata `json:"metadata"`
}

// ResponseMetadata describes how an answer was produced.
type ResponseMetadata struct {
	AnswerType     Intent  `json:"answer_type"`
	Confidence     float64 `json:"confidence"`
	QueryType      Intent  `json:"query_type"`
	ChunksSelected int     `json:"chunks_selected"`
	ChunksUsed     int     `json:"chunks_used"`
}

// Candidate is a retrieved chunk joined with its document and retrieval scores.
type Candidate struct {
	Chunk       *storage.Chunk
	Document    *storage.Document
	VectorIndex int64
	// Similarity starts as 1/(1+distance) and is boosted in place; always within [0, 1].
	Similarity float64
	// Meta is the chunk metadata with back-filled section labels.
	Meta storage.ChunkMetadata

	IsTOC          bool
	KeywordMatches int
	SectionScore   int
}

// key identifies a chunk across documents.
func (c *Candidate) key() chunkKey {
	return chunkKey{documentID: c.Chunk.DocumentID, chunkIndex: c.Chunk.ChunkIndex}
}

type chunkKey struct {
	documentID string
	chunkIndex int
}

// ChunkRef is one entry of an answer's chunks_used list.
// Position refers to a [Chunk N] marker of the prompt; DocumentID and ChunkIndex are
// set instead when the model cites a chunk by its document coordinates.
type ChunkRef struct {
	Position   int    `json:"position,omitempty"`
	DocumentID string `json:"document_id,omitempty"`
	ChunkIndex int    `json:"chunk_index,omitempty"`
}

// SentenceMapping attributes one answer sentence to the chunks supporting it.
type SentenceMapping struct {
	Sentence string `json:"sentence"`
	Chunks   []int  `json:"chunks"`
}

// GeneratedAnswer is the validated output of the answer generator.
type GeneratedAnswer struct {
	Answer          string
	AnswerType      Intent
	ChunksUsed      []ChunkRef
	Confidence      float64
	SentenceMapping []SentenceMapping
}
