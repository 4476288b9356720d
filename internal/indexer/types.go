package indexer

import "studyqa/internal/storage"

// Page is extracted text with its 1-based page number. Formats without pages use 0.
type Page struct {
	Number int
	Text   string
}

// Chunk is a chunker's output before it is assigned IDs and stored.
type Chunk struct {
	Index    int // position within the document, starts at 0
	Content  string
	Metadata storage.ChunkMetadata
}

// Chunker splits extracted pages into bounded chunks.
type Chunker interface {
	Chunk(pages []Page) []Chunk
}
