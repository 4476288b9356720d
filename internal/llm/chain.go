package llm

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"studyqa/internal/contextutil"
	"studyqa/internal/metrics"
)

// NamedCompleter pairs a Completer with the provider name used in logs.
type NamedCompleter struct {
	Name      string
	Completer Completer
}

// CompleterChain tries each provider in order and returns the first success.
type CompleterChain struct {
	providers []NamedCompleter
	timeout   time.Duration
}

// NewCompleterChain creates a chain. timeout bounds each provider attempt; 0 means no limit.
func NewCompleterChain(timeout time.Duration, providers ...NamedCompleter) *CompleterChain {
	return &CompleterChain{providers: providers, timeout: timeout}
}

// Complete returns the first successful completion. Failures are logged and
// only reported once every provider has failed.
func (c *CompleterChain) Complete(ctx context.Context, prompt string, params CompletionParams) (string, error) {
	logger := contextutil.LoggerFromContext(ctx)

	var errs []error
	for _, p := range c.providers {
		attemptCtx, cancel := attemptContext(ctx, c.timeout)
		start := time.Now()
		text, err := p.Completer.Complete(attemptCtx, prompt, params)
		cancel()
		if err == nil {
			logger.DebugContext(ctx, "completion succeeded", "provider", p.Name, "duration_ms", time.Since(start).Milliseconds())
			return text, nil
		}
		logger.WarnContext(ctx, "completion provider failed", "provider", p.Name, "error", err)
		metrics.ProviderFailures.WithLabelValues("completion", p.Name).Inc()
		errs = append(errs, fmt.Errorf("%s: %w", p.Name, err))
		if ctx.Err() != nil {
			break
		}
	}
	return "", fmt.Errorf("%w: %w", ErrAllProvidersFailed, errors.Join(errs...))
}

func attemptContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

// EmbedderChain tries each provider in order for a whole request, so every
// vector of one call comes from the same provider.
type EmbedderChain struct {
	providers []Embedder
	batchSize int
	cache     *EmbeddingCache
	timeout   time.Duration
}

// NewEmbedderChain creates a chain. cache may be nil.
func NewEmbedderChain(batchSize int, cache *EmbeddingCache, timeout time.Duration, providers ...Embedder) *EmbedderChain {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &EmbedderChain{providers: providers, batchSize: batchSize, cache: cache, timeout: timeout}
}

// Embed drops blank texts, then embeds the rest in batches. It returns an empty
// result without calling any provider when nothing is left. Single-text calls
// are served from the cache when possible.
func (c *EmbedderChain) Embed(ctx context.Context, texts []string) (EmbeddingResult, error) {
	logger := contextutil.LoggerFromContext(ctx)

	inputs := make([]string, 0, len(texts))
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			inputs = append(inputs, t)
		}
	}
	if len(inputs) == 0 {
		return EmbeddingResult{}, nil
	}

	single := len(inputs) == 1 && c.cache != nil
	if single {
		if res, ok := c.cache.Get(inputs[0]); ok {
			return res, nil
		}
	}

	var errs []error
	for i, p := range c.providers {
		res, err := c.embedAll(ctx, p, inputs)
		if err == nil {
			if single {
				c.cache.Set(inputs[0], res.Vectors[0], res.Provider, res.Model)
			}
			return res, nil
		}
		logger.WarnContext(ctx, "embedding provider failed", "provider_index", i, "error", err)
		metrics.ProviderFailures.WithLabelValues("embedding", strconv.Itoa(i)).Inc()
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return EmbeddingResult{}, fmt.Errorf("%w: %w", ErrAllProvidersFailed, errors.Join(errs...))
}

func (c *EmbedderChain) embedAll(ctx context.Context, p Embedder, inputs []string) (EmbeddingResult, error) {
	out := EmbeddingResult{Vectors: make([][]float32, 0, len(inputs))}
	for start := 0; start < len(inputs); start += c.batchSize {
		end := min(start+c.batchSize, len(inputs))

		attemptCtx, cancel := attemptContext(ctx, c.timeout)
		res, err := p.Embed(attemptCtx, inputs[start:end])
		cancel()
		if err != nil {
			return EmbeddingResult{}, err
		}
		if len(res.Vectors) != end-start {
			return EmbeddingResult{}, fmt.Errorf("expected %d embeddings, got %d", end-start, len(res.Vectors))
		}
		if out.Dimension() != 0 && res.Dimension() != out.Dimension() {
			return EmbeddingResult{}, fmt.Errorf("provider changed dimension mid-request: %d != %d", res.Dimension(), out.Dimension())
		}
		out.Vectors = append(out.Vectors, res.Vectors...)
		out.Provider, out.Model = res.Provider, res.Model
	}
	return out, nil
}
