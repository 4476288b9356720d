package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"studyqa/internal/contextutil"
)

// ModelLoader asks a llama.cpp router server to load a model via /models/load
// so the local provider is warm before the first request falls back to it.
type ModelLoader struct {
	baseURL      string
	client       *http.Client
	pollInterval time.Duration
	maxPolls     int
}

// NewModelLoader creates a new model loader.
func NewModelLoader(baseURL string) *ModelLoader {
	return &ModelLoader{
		baseURL:      baseURL,
		client:       newHTTPClient(10 * time.Second),
		pollInterval: time.Second,
		maxPolls:     30,
	}
}

type loadModelRequest struct {
	Model string `json:"model"`
}

type loadModelResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ModelStatus is one entry of the /models listing.
type ModelStatus struct {
	ID      string `json:"id"`
	InCache bool   `json:"in_cache"`
	Status  struct {
		Value    string `json:"value"`
		ExitCode *int   `json:"exit_code,omitempty"`
		Failed   *bool  `json:"failed,omitempty"`
	} `json:"status"`
}

type modelsResponse struct {
	Data []ModelStatus `json:"data"`
}

// Status returns the server's view of modelName, or nil when the server does not list it.
func (ml *ModelLoader) Status(ctx context.Context, modelName string) (*ModelStatus, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", ml.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create status request: %w", err)
	}

	resp, err := ml.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to check model status: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("bad status %d: %s", resp.StatusCode, string(raw))
	}

	var models modelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&models); err != nil {
		return nil, fmt.Errorf("failed to decode models response: %w", err)
	}
	for i := range models.Data {
		if models.Data[i].ID == modelName {
			return &models.Data[i], nil
		}
	}
	return nil, nil
}

// EnsureLoaded loads modelName unless it is already cached, then polls until
// the server reports it in cache, reports a failure, or the poll budget runs out.
func (ml *ModelLoader) EnsureLoaded(ctx context.Context, modelName string) error {
	logger := contextutil.LoggerFromContext(ctx)

	if status, err := ml.Status(ctx, modelName); err == nil && status != nil && status.InCache {
		return nil
	}

	body, err := json.Marshal(loadModelRequest{Model: modelName})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", ml.baseURL+"/models/load", bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ml.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("bad status %d: %s", resp.StatusCode, string(raw))
	}
	var loadResp loadModelResponse
	if err := json.NewDecoder(resp.Body).Decode(&loadResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if !loadResp.Success {
		return fmt.Errorf("model load failed: %s", loadResp.Error)
	}

	// /models/load returns before the model is up
	ticker := time.NewTicker(ml.pollInterval)
	defer ticker.Stop()
	for i := 0; i < ml.maxPolls; i++ {
		status, err := ml.Status(ctx, modelName)
		switch {
		case err != nil:
			logger.DebugContext(ctx, "model status unavailable, retrying", "model", modelName, "error", err)
		case status == nil:
		case status.InCache:
			logger.InfoContext(ctx, "model loaded", "model", modelName)
			return nil
		case status.Status.Failed != nil && *status.Status.Failed:
			exitCode := 0
			if status.Status.ExitCode != nil {
				exitCode = *status.Status.ExitCode
			}
			return fmt.Errorf("model load failed with exit code %d", exitCode)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return fmt.Errorf("model %s did not load within %d polls", modelName, ml.maxPolls)
}
