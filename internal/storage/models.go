package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// File types accepted for upload.
const (
	FileTypePDF  = "pdf"
	FileTypeDOCX = "docx"
	FileTypeMD   = "md"
	FileTypeTXT  = "txt"
)

// Document represents a user's uploaded file.
type Document struct {
	ID                 string // UUID
	UserID             string
	Filename           string
	FileType           string // one of pdf, docx, md, txt
	FilePath           string // location of the stored upload
	ChunkCount         int
	IsEmbedded         bool
	EmbeddingModel     string
	EmbeddingDimension int
	Namespace          string // vector index namespace, see NamespaceFor
	CreatedAt          time.Time
}

// NamespaceFor derives the vector index namespace of a document. User ids are
// free-form header values, so they are folded into a name-based UUID.
func NamespaceFor(userID, documentID string) string {
	return fmt.Sprintf("user_%s_doc_%s", uuid.NewSHA1(uuid.NameSpaceOID, []byte(userID)), documentID)
}

// ChunkMetadata holds the structural annotations produced at ingestion.
type ChunkMetadata struct {
	PageNumber    *int   `json:"page_number,omitempty"`
	Section       string `json:"section,omitempty"`
	Heading       string `json:"heading,omitempty"`
	IsMainSection bool   `json:"is_main_section,omitempty"`
	IsSubsection  bool   `json:"is_subsection,omitempty"`
}

// Chunk is a bounded passage of a document's text.
type Chunk struct {
	ID         string // UUID
	DocumentID string
	ChunkIndex int // ordinal within the document, starts at 0
	Content    string
	Metadata   ChunkMetadata
}

// EmbeddingRecord links a chunk to its position in the document's vector index.
type EmbeddingRecord struct {
	ID             string
	DocumentID     string
	ChunkID        string
	ChunkIndex     int
	VectorIndex    int64 // unique within the document namespace, never reused
	EmbeddingModel string
	Provider       string
}

// Reference is a citation attached to a history turn.
type Reference struct {
	DocumentID       string  `json:"document_id"`
	DocumentFilename string  `json:"document_filename"`
	DocumentFileType string  `json:"document_file_type"`
	ChunkID          string  `json:"chunk_id"`
	ChunkIndex       int     `json:"chunk_index"`
	PageNumber       *int    `json:"page_number,omitempty"`
	Section          string  `json:"section,omitempty"`
	Score            float64 `json:"score"`
	ContentPreview   string  `json:"content_preview"`
}

// History is one persisted question/answer turn.
type History struct {
	ID             string
	UserID         string
	Question       string
	Answer         string
	References     []Reference
	DocumentID     string // first selected document, empty when none
	ConversationID string
	CreatedAt      time.Time
}
