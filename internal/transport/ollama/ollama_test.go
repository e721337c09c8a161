package ollama

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

func TestEmbedBatch(t *testing.T) {
	var prompts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		prompts = append(prompts, req.Prompt)
		json.NewEncoder(w).Encode(embedResponse{Embedding: []float64{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	e := NewEmbedder(&EmbedderConfig{BaseURL: srv.URL, Model: "all-minilm", Logger: zap.NewNop()})

	vecs, err := e.EmbedBatch(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vecs))
	}
	if len(vecs[0]) != 3 {
		t.Errorf("expected 3 dims, got %d", len(vecs[0]))
	}
	if prompts[0] != "first" || prompts[1] != "second" {
		t.Errorf("prompts out of order: %v", prompts)
	}
}

func TestEmbedBatch_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	e := NewEmbedder(&EmbedderConfig{BaseURL: srv.URL, Logger: zap.NewNop()})

	_, err := e.EmbedBatch(context.Background(), []string{"text"})
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected ErrEmbeddingProviderError, got %v", err)
	}
}

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("unexpected messages: %v", req.Messages)
		}
		if req.Stream {
			t.Error("expected stream=false")
		}
		json.NewEncoder(w).Encode(chatResponse{
			Message: chatMessage{Role: "assistant", Content: "BUY with 75% confidence"},
			Done:    true,
		})
	}))
	defer srv.Close()

	g := NewGenerator(&GeneratorConfig{
		BaseURL:     srv.URL,
		Model:       "llama3.2:3b",
		Temperature: 0.7,
		MaxTokens:   1000,
		Logger:      zap.NewNop(),
	})

	out, err := g.Generate(context.Background(), "system", "user question")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "BUY with 75% confidence" {
		t.Errorf("unexpected output: %q", out)
	}
	if g.Model() != "llama3.2:3b" {
		t.Errorf("unexpected model: %q", g.Model())
	}
}

func TestGenerate_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	g := NewGenerator(&GeneratorConfig{BaseURL: srv.URL, Logger: zap.NewNop()})

	_, err := g.Generate(context.Background(), "system", "user")
	if !errors.Is(err, domain.ErrGenerationProviderError) {
		t.Fatalf("expected ErrGenerationProviderError, got %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := NewEmbedder(&EmbedderConfig{BaseURL: srv.URL, Logger: zap.NewNop()})
	if err := e.HealthCheck(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHealthCheck_Down(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g := NewGenerator(&GeneratorConfig{BaseURL: srv.URL, Logger: zap.NewNop()})
	if err := g.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
