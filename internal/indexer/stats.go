package indexer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"unicode/utf8"

	"studyqa/internal/llm"
)

const (
	// ChunkerVersion is the version identifier for the chunker implementation.
	// Update this when chunking logic changes significantly.
	ChunkerVersion = "v2.0"
	// TokensPerRune is an approximation for token counting (4 chars per token).
	TokensPerRune = 4.0
)

// IngestStats describes the result of ingesting one document.
type IngestStats struct {
	Pages           int             `json:"pages"`
	Chunks          int             `json:"chunks"`
	Provider        string          `json:"provider"`
	Model           string          `json:"model"`
	Dimension       int             `json:"dimension"`
	ChunkTokenStats ChunkTokenStats `json:"chunk_token_stats"`
	ChunkerVersion  string          `json:"chunker_version"`
	// IndexVersion is a hash identifying the index build (chunker + embedding model + params).
	IndexVersion string `json:"index_version"`
}

// ChunkTokenStats contains statistics about token counts in chunks.
type ChunkTokenStats struct {
	Min  int     `json:"min"`
	Max  int     `json:"max"`
	Mean float64 `json:"mean"`
	P95  int     `json:"p95"`
}

func newIngestStats(chunks []Chunk, res llm.EmbeddingResult, chunkSize, overlap int) *IngestStats {
	tokenCounts := make([]int, 0, len(chunks))
	for _, c := range chunks {
		tokenCounts = append(tokenCounts, estimateTokens(c.Content))
	}

	return &IngestStats{
		Chunks:          len(chunks),
		Provider:        res.Provider,
		Model:           res.Model,
		Dimension:       res.Dimension(),
		ChunkTokenStats: computeTokenStats(tokenCounts),
		ChunkerVersion:  ChunkerVersion,
		IndexVersion:    indexVersion(res.Model, chunkSize, overlap),
	}
}

// estimateTokens approximates the token count of s from its rune count. Minimum 1.
func estimateTokens(s string) int {
	n := int(math.Round(float64(utf8.RuneCountInString(s)) / TokensPerRune))
	if n < 1 {
		return 1
	}
	return n
}

func indexVersion(model string, chunkSize, overlap int) string {
	input := fmt.Sprintf("%s|%s|chunkSize=%d|overlap=%d", ChunkerVersion, model, chunkSize, overlap)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])[:16]
}

// computeTokenStats computes min, max, mean, and p95 from token counts.
func computeTokenStats(tokenCounts []int) ChunkTokenStats {
	if len(tokenCounts) == 0 {
		return ChunkTokenStats{}
	}

	sorted := make([]int, len(tokenCounts))
	copy(sorted, tokenCounts)
	sort.Ints(sorted)

	sum := 0
	for _, count := range tokenCounts {
		sum += count
	}
	mean := float64(sum) / float64(len(tokenCounts))

	p95Index := int(math.Ceil(float64(len(sorted)) * 0.95))
	if p95Index >= len(sorted) {
		p95Index = len(sorted) - 1
	}

	return ChunkTokenStats{
		Min:  sorted[0],
		Max:  sorted[len(sorted)-1],
		Mean: math.Round(mean*100) / 100,
		P95:  sorted[p95Index],
	}
}
