package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/fks-trading/intel/internal/domain"
	"github.com/fks-trading/intel/internal/metrics"
)

func init() {
	metrics.RegisterRAGMetrics()
}

func newEmbedderFor(t *testing.T, handler http.HandlerFunc) (*Embedder, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	e := NewEmbedder(&EmbedderConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "text-embedding-3-small",
		Logger:  zap.NewNop(),
	})
	return e, srv
}

func TestEmbedBatchReordersByIndex(t *testing.T) {
	e, _ := newEmbedderFor(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		// Data deliberately out of order; Index is authoritative.
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"object": "embedding", "index": 1, "embedding": []float32{2, 2}},
				{"object": "embedding", "index": 0, "embedding": []float32{1, 1}},
			},
			"model": "text-embedding-3-small",
		})
	})

	out, err := e.EmbedBatch(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[0][0] != 1 || out[1][0] != 2 {
		t.Errorf("vectors not reordered by index: %v", out)
	}
}

func TestEmbedBatchEmptyInput(t *testing.T) {
	e, _ := newEmbedderFor(t, func(_ http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected for empty input")
	})

	out, err := e.EmbedBatch(context.Background(), nil)
	if err != nil || out != nil {
		t.Fatalf("expected nil, nil; got %v, %v", out, err)
	}
}

func TestEmbedBatchAPIError(t *testing.T) {
	e, _ := newEmbedderFor(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"detail":"upstream model unavailable"}`))
	})

	_, err := e.EmbedBatch(context.Background(), []string{"text"})
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected ErrEmbeddingProviderError, got %v", err)
	}
}

func TestEmbedBatchTransportErrorKeepsCause(t *testing.T) {
	// A 200 with a garbage body fails client-side, not as an API error.
	e, _ := newEmbedderFor(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	})

	_, err := e.EmbedBatch(context.Background(), []string{"text"})
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected ErrEmbeddingProviderError, got %v", err)
	}
	if err.Error() == "embedding request failed: "+domain.ErrEmbeddingProviderError.Error() {
		t.Errorf("underlying cause dropped from error: %v", err)
	}
}

func TestEmbedBatchCountMismatch(t *testing.T) {
	e, _ := newEmbedderFor(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"object": "embedding", "index": 0, "embedding": []float32{1}},
			},
		})
	})

	_, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected ErrEmbeddingProviderError, got %v", err)
	}
}

func newGeneratorFor(t *testing.T, handler http.HandlerFunc) *Generator {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGenerator(&GeneratorConfig{
		APIKey:      "test-key",
		BaseURL:     srv.URL,
		Model:       "gpt-4o-mini",
		Temperature: 0.7,
		MaxTokens:   1000,
		Logger:      zap.NewNop(),
	})
}

func TestGenerate(t *testing.T) {
	g := newGeneratorFor(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-4o-mini",
			"choices": []map[string]any{
				{"index": 0, "message": map[string]any{"role": "assistant", "content": "the reply"}},
			},
		})
	})

	out, err := g.Generate(context.Background(), "system prompt", "user prompt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "the reply" {
		t.Errorf("unexpected reply: %q", out)
	}
}

func TestGenerateEmptyChoices(t *testing.T) {
	g := newGeneratorFor(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-2",
			"object":  "chat.completion",
			"choices": []map[string]any{},
		})
	})

	_, err := g.Generate(context.Background(), "s", "u")
	if !errors.Is(err, domain.ErrGenerationProviderError) {
		t.Fatalf("expected ErrGenerationProviderError, got %v", err)
	}
}

func TestGenerateAPIError(t *testing.T) {
	g := newGeneratorFor(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	})

	_, err := g.Generate(context.Background(), "s", "u")
	if !errors.Is(err, domain.ErrGenerationProviderError) {
		t.Fatalf("expected ErrGenerationProviderError, got %v", err)
	}
}

func TestModel(t *testing.T) {
	g := NewGenerator(&GeneratorConfig{APIKey: "k", Model: "gpt-4o-mini", Logger: zap.NewNop()})
	if g.Model() != "gpt-4o-mini" {
		t.Errorf("unexpected model: %q", g.Model())
	}
}
