package llm

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_completer.go -package=mocks studyqa/internal/llm Completer
//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_embedder.go -package=mocks studyqa/internal/llm Embedder

import (
	"context"
	"errors"
)

// ErrAllProvidersFailed is returned by a chain when every provider failed.
var ErrAllProvidersFailed = errors.New("all providers failed")

// CompletionParams holds parameters for a one-shot completion.
type CompletionParams struct {
	// MaxTokens bounds the generated output. 0 leaves it to the provider.
	MaxTokens int

	// Temperature controls the randomness of the output.
	Temperature float32
}

// Completer turns a prompt into generated text.
type Completer interface {
	Complete(ctx context.Context, prompt string, params CompletionParams) (string, error)
}

// EmbeddingResult holds one vector per embedded text and which provider produced them.
type EmbeddingResult struct {
	Vectors  [][]float32
	Provider string
	Model    string
}

// Dimension returns the vector size, or 0 when there are no vectors.
func (r EmbeddingResult) Dimension() int {
	if len(r.Vectors) == 0 {
		return 0
	}
	return len(r.Vectors[0])
}

// Embedder turns texts into fixed-dimension vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) (EmbeddingResult, error)
}
