package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fks-trading/intel/internal/domain"
	"github.com/fks-trading/intel/internal/metrics"
)

// Default chat configuration values.
const (
	DefaultChatModel   = "llama3.2:3b"
	DefaultChatTimeout = 120 * time.Second
)

// Generator produces chat completions via the Ollama /api/chat endpoint.
type Generator struct {
	client      *http.Client
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	logger      *zap.Logger
}

// GeneratorConfig holds the Ollama chat settings.
type GeneratorConfig struct {
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	Logger      *zap.Logger
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  *chatOptions  `json:"options,omitempty"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

// NewGenerator creates an Ollama chat provider.
func NewGenerator(cfg *GeneratorConfig) *Generator {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultChatModel
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultChatTimeout
	}

	return &Generator{
		client:      &http.Client{Timeout: timeout},
		baseURL:     baseURL,
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      cfg.Logger,
	}
}

// Generate runs a single chat completion with a system and user message.
func (g *Generator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req := chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Stream: false,
	}
	if g.maxTokens > 0 || g.temperature > 0 {
		req.Options = &chatOptions{
			NumPredict:  g.maxTokens,
			Temperature: g.temperature,
		}
	}

	start := time.Now()

	body, err := postJSON(ctx, g.client, g.baseURL+"/api/chat", req)

	duration := time.Since(start)

	if err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues(backendName, g.model, "error").Inc()
		return "", fmt.Errorf("%v: %w", err, domain.ErrGenerationProviderError)
	}

	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		metrics.GenerationRequestsTotal.WithLabelValues(backendName, g.model, "error").Inc()
		return "", fmt.Errorf("decode response: %w", domain.ErrGenerationProviderError)
	}

	metrics.GenerationRequestsTotal.WithLabelValues(backendName, g.model, "success").Inc()
	metrics.GenerationRequestDuration.WithLabelValues(backendName, g.model).Observe(duration.Seconds())

	return resp.Message.Content, nil
}

// Model returns the configured model name.
func (g *Generator) Model() string {
	return g.model
}

// HealthCheck probes the /api/tags endpoint.
func (g *Generator) HealthCheck(ctx context.Context) error {
	return ping(ctx, g.client, g.baseURL)
}
