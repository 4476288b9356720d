package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ProviderLocal names the self-hosted provider in embedding records and logs.
const ProviderLocal = "local"

// EmbeddingsClient is a client for an OpenAI-compatible embeddings API such as llama.cpp.
type EmbeddingsClient struct {
	BaseURL string
	APIKey  string
	Model   string
	client  *http.Client
}

// NewEmbeddingsClient creates a new embeddings client.
func NewEmbeddingsClient(baseURL, apiKey, model string, timeout time.Duration) *EmbeddingsClient {
	return &EmbeddingsClient{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		client:  newHTTPClient(timeout),
	}
}

// EmbeddingsRequest represents the request payload for embeddings API.
type EmbeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// EmbeddingData represents a single embedding in the response.
type EmbeddingData struct {
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

// EmbeddingsResponse represents the response from the embeddings API.
type EmbeddingsResponse struct {
	Data []EmbeddingData `json:"data"`
}

// Embed generates one vector per text. All vectors must share one dimension.
func (c *EmbeddingsClient) Embed(ctx context.Context, texts []string) (EmbeddingResult, error) {
	if len(texts) == 0 {
		return EmbeddingResult{}, fmt.Errorf("empty input array")
	}

	url := fmt.Sprintf("%s/v1/embeddings", c.BaseURL)

	body, err := json.Marshal(EmbeddingsRequest{
		Model: c.Model,
		Input: texts,
	})
	if err != nil {
		return EmbeddingResult{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return EmbeddingResult{}, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return EmbeddingResult{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return EmbeddingResult{}, fmt.Errorf("bad status %d: %s", resp.StatusCode, string(raw))
	}

	var embeddingsResp EmbeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&embeddingsResp); err != nil {
		return EmbeddingResult{}, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(embeddingsResp.Data) != len(texts) {
		return EmbeddingResult{}, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(embeddingsResp.Data))
	}

	// servers that report an index may return data out of order
	indexed := false
	for _, data := range embeddingsResp.Data {
		if data.Index != 0 {
			indexed = true
			break
		}
	}

	vectors := make([][]float32, len(texts))
	size := len(embeddingsResp.Data[0].Embedding)
	for i, data := range embeddingsResp.Data {
		if len(data.Embedding) == 0 || len(data.Embedding) != size {
			return EmbeddingResult{}, fmt.Errorf("embedding %d has size %d, expected %d", i, len(data.Embedding), size)
		}
		pos := i
		if indexed {
			if data.Index < 0 || data.Index >= len(texts) {
				return EmbeddingResult{}, fmt.Errorf("embedding index %d out of range", data.Index)
			}
			pos = data.Index
		}

		vec := make([]float32, len(data.Embedding))
		for j, v := range data.Embedding {
			vec[j] = float32(v)
		}
		vectors[pos] = vec
	}
	for i, v := range vectors {
		if v == nil {
			return EmbeddingResult{}, fmt.Errorf("missing embedding for input %d", i)
		}
	}

	return EmbeddingResult{Vectors: vectors, Provider: ProviderLocal, Model: c.Model}, nil
}
