// Package embedding wraps an embedding backend with batching and
// graceful degradation. A failed backend never aborts ingestion or
// retrieval: affected texts get zero vectors and the pipeline continues.
package embedding

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/fks-trading/intel/internal/domain"
	"github.com/fks-trading/intel/internal/metrics"
)

// Provider generates embeddings through a configured backend.
type Provider struct {
	backend   domain.BatchEmbedder
	name      string // "local" or "remote"
	model     string
	dimension int
	batchSize int
	logger    *zap.Logger
}

// Config holds provider settings.
type Config struct {
	Backend   domain.BatchEmbedder
	Name      string
	Model     string
	Dimension int
	BatchSize int
	Logger    *zap.Logger
}

// NewProvider creates an embedding provider.
func NewProvider(cfg *Config) *Provider {
	return &Provider{
		backend:   cfg.Backend,
		name:      cfg.Name,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		batchSize: cfg.BatchSize,
		logger:    cfg.Logger,
	}
}

// Dimension returns the configured vector dimension.
func (p *Provider) Dimension() int {
	return p.dimension
}

// Name returns the backend name.
func (p *Provider) Name() string {
	return p.name
}

// Embed returns the embedding for a single text. Blank input yields a
// zero vector without a backend call. Backend failure degrades to a
// zero vector.
func (p *Provider) Embed(ctx context.Context, text string) []float32 {
	return p.EmbedBatch(ctx, []string{text})[0]
}

// EmbedBatch embeds texts in batches, preserving input order. A failed
// batch is replaced with zero vectors and the remaining batches proceed.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) [][]float32 {
	out := make([][]float32, len(texts))

	// Blank texts never reach the backend.
	pending := make([]int, 0, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			out[i] = domain.ZeroVector(p.dimension)
		} else {
			pending = append(pending, i)
		}
	}

	for start := 0; start < len(pending); start += p.batchSize {
		end := start + p.batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		batchTexts := make([]string, len(batch))
		for j, idx := range batch {
			batchTexts[j] = texts[idx]
		}

		vecs, err := p.backend.EmbedBatch(ctx, batchTexts)
		if err != nil || len(vecs) != len(batch) {
			p.logger.Warn("embedding batch failed, degrading to zero vectors",
				zap.String("backend", p.name),
				zap.String("model", p.model),
				zap.Int("batch_size", len(batch)),
				zap.Error(err),
			)
			metrics.EmbeddingDegradedTotal.WithLabelValues(p.name, p.model).Add(float64(len(batch)))
			for _, idx := range batch {
				out[idx] = domain.ZeroVector(p.dimension)
			}
			continue
		}

		for j, idx := range batch {
			out[idx] = p.validated(vecs[j])
		}
	}

	return out
}

// validated replaces vectors of the wrong dimension with zero vectors.
func (p *Provider) validated(vec []float32) []float32 {
	if len(vec) != p.dimension {
		p.logger.Warn("embedding dimension mismatch, degrading to zero vector",
			zap.String("backend", p.name),
			zap.Int("want", p.dimension),
			zap.Int("got", len(vec)),
		)
		metrics.EmbeddingDegradedTotal.WithLabelValues(p.name, p.model).Inc()
		return domain.ZeroVector(p.dimension)
	}
	return vec
}

// HealthCheck probes the backend when it supports health checks.
func (p *Provider) HealthCheck(ctx context.Context) error {
	if hc, ok := p.backend.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}
