// Package retrieval finds, reranks and formats knowledge-base context
// for answer generation.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fks-trading/intel/internal/domain"
)

// Method selects a rerank strategy.
type Method string

const (
	// MethodSimilarity keeps the vector-similarity order.
	MethodSimilarity Method = "similarity"
	// MethodRecency orders newest first.
	MethodRecency Method = "recency"
	// MethodHybrid blends normalized similarity with a recency component.
	MethodHybrid Method = "hybrid"
)

const (
	similarityWeight = 0.6
	recencyWeight    = 0.4

	// recencyPlaceholder stands in until chunk ages feed the recency term.
	// TODO: score recency from hit.CreatedAt once ingest backfills it everywhere.
	recencyPlaceholder = 0.5

	truncationMarker = "[Additional context truncated due to length...]"
	noContextText    = "No relevant context found."
)

// embedder narrows the embedding provider to what retrieval needs.
type embedder interface {
	Embed(ctx context.Context, text string) []float32
}

// searcher narrows the knowledge repo to vector search.
type searcher interface {
	Search(ctx context.Context, vector []float32, k int, floor float64, filters domain.Filters) []domain.SearchHit
}

// Service retrieves and ranks context chunks.
type Service struct {
	embedder embedder
	repo     searcher
	floor    float64
	topK     int
	logger   *zap.Logger
}

// New creates a retrieval service. floor <= 0 and topK <= 0 take the
// defaults 0.6 and 5.
func New(e embedder, repo searcher, floor float64, topK int, logger *zap.Logger) *Service {
	if floor <= 0 {
		floor = 0.6
	}
	if topK <= 0 {
		topK = 5
	}
	return &Service{embedder: e, repo: repo, floor: floor, topK: topK, logger: logger}
}

// DefaultTopK returns the configured result count.
func (s *Service) DefaultTopK() int {
	return s.topK
}

// Retrieve embeds the query and returns the chunks above the similarity
// floor. topK <= 0 uses the configured default. Failures degrade to an
// empty slice.
func (s *Service) Retrieve(ctx context.Context, query string, topK int, filters domain.Filters) []domain.SearchHit {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	if topK <= 0 {
		topK = s.topK
	}

	vec := s.embedder.Embed(ctx, query)
	if domain.IsZeroVector(vec) {
		s.logger.Warn("query embedding degraded to zero vector, skipping search")
		return nil
	}
	return s.repo.Search(ctx, vec, topK, s.floor, filters)
}

// Rerank orders hits by the given method and fills CombinedScore.
// Unknown methods fall back to similarity order.
func (s *Service) Rerank(hits []domain.SearchHit, method Method) []domain.SearchHit {
	if len(hits) == 0 {
		return hits
	}

	switch method {
	case MethodRecency:
		sort.SliceStable(hits, func(i, j int) bool {
			return hits[i].CreatedAt.After(hits[j].CreatedAt)
		})
		for i := range hits {
			hits[i].CombinedScore = hits[i].Similarity
		}
	case MethodHybrid:
		maxSim := hits[0].Similarity
		for _, h := range hits[1:] {
			if h.Similarity > maxSim {
				maxSim = h.Similarity
			}
		}
		for i := range hits {
			norm := 0.0
			if maxSim > 0 {
				norm = hits[i].Similarity / maxSim
			}
			hits[i].CombinedScore = similarityWeight*norm + recencyWeight*recencyPlaceholder
		}
		sort.SliceStable(hits, func(i, j int) bool {
			return hits[i].CombinedScore > hits[j].CombinedScore
		})
	default:
		sort.SliceStable(hits, func(i, j int) bool {
			return hits[i].Similarity > hits[j].Similarity
		})
		for i := range hits {
			hits[i].CombinedScore = hits[i].Similarity
		}
	}
	return hits
}

// FormatContext renders hits into the labeled context block fed to the
// generator. maxTokens bounds the output at roughly 4 chars per token.
func (s *Service) FormatContext(hits []domain.SearchHit, maxTokens int) string {
	if len(hits) == 0 {
		return noContextText
	}
	if maxTokens <= 0 {
		maxTokens = 4000
	}
	maxChars := maxTokens * 4

	var parts []string
	total := 0
	for i, hit := range hits {
		symbol := hit.Symbol
		if symbol == "" {
			symbol = "N/A"
		}
		part := fmt.Sprintf(
			"\n[Context %d - %s - %s - Relevance: %.2f]\n%s\n",
			i+1, strings.ToUpper(string(hit.DocType)), symbol, hit.Similarity, hit.Content,
		)
		if total+len(part) > maxChars {
			parts = append(parts, truncationMarker)
			break
		}
		parts = append(parts, part)
		total += len(part)
	}
	return strings.Join(parts, "\n")
}
