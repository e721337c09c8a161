// Package ollama provides embedding and chat providers backed by a local
// Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fks-trading/intel/internal/domain"
	"github.com/fks-trading/intel/internal/metrics"
)

const backendName = "local"

// Default configuration values.
const (
	DefaultBaseURL      = "http://localhost:11434"
	DefaultEmbedModel   = "all-minilm"
	DefaultEmbedTimeout = 30 * time.Second
)

// Embedder generates embeddings via the Ollama /api/embeddings endpoint.
type Embedder struct {
	client  *http.Client
	baseURL string
	model   string
	logger  *zap.Logger
}

// EmbedderConfig holds the Ollama embedding settings.
type EmbedderConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
	Logger  *zap.Logger
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// NewEmbedder creates an Ollama embedding provider.
func NewEmbedder(cfg *EmbedderConfig) *Embedder {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultEmbedModel
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultEmbedTimeout
	}

	return &Embedder{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		model:   model,
		logger:  cfg.Logger,
	}
}

// EmbedBatch embeds texts sequentially. Ollama has no native batch
// endpoint, so each text is one request.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	start := time.Now()

	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.embed(ctx, text)
		if err != nil {
			metrics.EmbeddingRequestsTotal.WithLabelValues(backendName, e.model, "error").Inc()
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		out[i] = vec
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(backendName, e.model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(backendName, e.model).Observe(time.Since(start).Seconds())

	return out, nil
}

func (e *Embedder) embed(ctx context.Context, text string) ([]float32, error) {
	body, err := postJSON(ctx, e.client, e.baseURL+"/api/embeddings", embedRequest{
		Model:  e.model,
		Prompt: text,
	})
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrEmbeddingProviderError)
	}

	var resp embedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", domain.ErrEmbeddingProviderError)
	}

	// Ollama returns float64; the index stores float32.
	vec := make([]float32, len(resp.Embedding))
	for i, v := range resp.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

// HealthCheck probes the /api/tags endpoint. Lightweight, no inference.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	return ping(ctx, e.client, e.baseURL)
}

// --- shared HTTP helpers ---

func postJSON(ctx context.Context, client *http.Client, url string, payload any) ([]byte, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ollama error (status %d): failed to read response", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

func ping(ctx context.Context, client *http.Client, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/tags", http.NoBody)
	if err != nil {
		return fmt.Errorf("ollama: failed to create ping request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama: ping failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama: API returned status %d", resp.StatusCode)
	}
	return nil
}
