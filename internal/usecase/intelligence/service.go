// Package intelligence is the caller-facing knowledge-base API. It ties
// chunking, embedding, storage, retrieval and generation together and
// degrades gracefully when any of them fail.
package intelligence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fks-trading/intel/internal/domain"
	"github.com/fks-trading/intel/internal/metrics"
	"github.com/fks-trading/intel/internal/usecase/generate"
	"github.com/fks-trading/intel/internal/usecase/retrieval"
)

const degradedAnswerPrefix = "Error generating response:"

// splitter narrows the chunker to what ingest needs.
type splitter interface {
	Split(text string, meta map[string]string) []domain.Chunk
}

// embedder narrows the embedding provider.
type embedder interface {
	EmbedBatch(ctx context.Context, texts []string) [][]float32
	Dimension() int
}

// repository narrows the knowledge repo to document persistence.
type repository interface {
	SaveDocument(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error
	GetDocument(ctx context.Context, id string) (domain.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	CountChunks(ctx context.Context) (int, error)
}

// retriever narrows the retrieval service.
type retriever interface {
	Retrieve(ctx context.Context, query string, topK int, filters domain.Filters) []domain.SearchHit
	Rerank(hits []domain.SearchHit, method retrieval.Method) []domain.SearchHit
	FormatContext(hits []domain.SearchHit, maxTokens int) string
	DefaultTopK() int
}

// answerer narrows the generation service.
type answerer interface {
	Answer(ctx context.Context, question, contextBlock string) string
	Model() string
	Usage() generate.Usage
}

// auditor records answered queries.
type auditor interface {
	Save(ctx context.Context, rec domain.QueryRecord)
}

// Service is the knowledge-base facade.
type Service struct {
	splitter         splitter
	embedder         embedder
	repo             repository
	retriever        retriever
	answerer         answerer
	audit            auditor
	maxContextTokens int
	logger           *zap.Logger
	now              func() time.Time
}

// New wires the knowledge-base facade. audit may be nil to disable the
// query log. maxContextTokens <= 0 takes the default 4000.
func New(
	sp splitter, e embedder, repo repository, ret retriever, ans answerer,
	audit auditor, maxContextTokens int, logger *zap.Logger,
) *Service {
	if maxContextTokens <= 0 {
		maxContextTokens = 4000
	}
	return &Service{
		splitter:         sp,
		embedder:         e,
		repo:             repo,
		retriever:        ret,
		answerer:         ans,
		audit:            audit,
		maxContextTokens: maxContextTokens,
		logger:           logger,
		now:              time.Now,
	}
}

// IngestRequest describes a document to add to the knowledge base.
type IngestRequest struct {
	Title     string
	Content   string
	DocType   string
	Symbol    string
	Timeframe string
	Metadata  map[string]string
}

// IngestResult reports what ingestion actually stored. Embedded < Chunks
// means some chunks carry zero vectors and will not surface in search.
type IngestResult struct {
	DocumentID string
	Chunks     int
	Embedded   int
}

// IngestDocument chunks, embeds and stores one document.
func (s *Service) IngestDocument(ctx context.Context, req IngestRequest) (IngestResult, error) {
	docType, err := domain.ParseDocType(req.DocType)
	if err != nil {
		return IngestResult{}, err
	}
	if strings.TrimSpace(req.Content) == "" {
		return IngestResult{}, fmt.Errorf("empty content: %w", domain.ErrInvalidChunkConfig)
	}

	doc := &domain.Document{
		ID:        uuid.NewString(),
		Title:     req.Title,
		Content:   req.Content,
		Type:      docType,
		Symbol:    req.Symbol,
		Timeframe: req.Timeframe,
		Metadata:  req.Metadata,
		CreatedAt: s.now().UTC(),
	}

	meta := map[string]string{"type": string(docType)}
	if req.Symbol != "" {
		meta["symbol"] = req.Symbol
	}
	chunks := s.splitter.Split(req.Content, meta)

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Content
	}
	vectors := s.embedder.EmbedBatch(ctx, texts)

	embedded := 0
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
		if !domain.IsZeroVector(vectors[i]) {
			embedded++
		}
	}

	if err := s.repo.SaveDocument(ctx, doc, chunks); err != nil {
		return IngestResult{}, err
	}
	metrics.DocumentsIngestedTotal.WithLabelValues(string(docType)).Inc()
	s.logger.Info("document ingested",
		zap.String("document_id", doc.ID),
		zap.String("doc_type", string(docType)),
		zap.Int("chunks", len(chunks)),
		zap.Int("embedded", embedded))

	return IngestResult{DocumentID: doc.ID, Chunks: len(chunks), Embedded: embedded}, nil
}

// GetDocument returns a stored document.
func (s *Service) GetDocument(ctx context.Context, id string) (domain.Document, error) {
	return s.repo.GetDocument(ctx, id)
}

// DeleteDocument removes a document and its chunks.
func (s *Service) DeleteDocument(ctx context.Context, id string) error {
	return s.repo.DeleteDocument(ctx, id)
}

// CountChunks returns the number of searchable chunks.
func (s *Service) CountChunks(ctx context.Context) (int, error) {
	return s.repo.CountChunks(ctx)
}

// Usage exposes the generation quota snapshot.
func (s *Service) Usage() generate.Usage {
	return s.answerer.Usage()
}

// QueryOpts tunes a knowledge-base query.
type QueryOpts struct {
	Symbol    string
	Timeframe string
	DocTypes  []domain.DocType
	TopK      int
}

// Query answers a question from retrieved context. Subsystem failures
// degrade the answer text; the response is always structurally valid.
func (s *Service) Query(ctx context.Context, question string, opts QueryOpts) domain.QueryResponse {
	start := s.now()

	topK := opts.TopK
	if topK <= 0 {
		topK = s.retriever.DefaultTopK()
	}

	var hits []domain.SearchHit
	if len(opts.DocTypes) == 0 {
		hits = s.retriever.Retrieve(ctx, question, topK, domain.Filters{
			Symbol: opts.Symbol, Timeframe: opts.Timeframe,
		})
	} else {
		// Fan out per doc type so one dominant type cannot crowd out the rest.
		for _, dt := range opts.DocTypes {
			hits = append(hits, s.retriever.Retrieve(ctx, question, topK, domain.Filters{
				Symbol: opts.Symbol, DocType: dt, Timeframe: opts.Timeframe,
			})...)
		}
	}

	hits = s.retriever.Rerank(hits, retrieval.MethodHybrid)
	if len(hits) > topK {
		hits = hits[:topK]
	}

	contextBlock := s.retriever.FormatContext(hits, s.maxContextTokens)
	answer := s.answerer.Answer(ctx, question, contextBlock)

	elapsed := s.now().Sub(start).Milliseconds()
	status := "ok"
	if strings.HasPrefix(answer, degradedAnswerPrefix) {
		status = "degraded"
	}
	metrics.QueriesTotal.WithLabelValues(status).Inc()

	if s.audit != nil {
		retrieved := make([]domain.RetrievedChunk, len(hits))
		for i, h := range hits {
			retrieved[i] = domain.RetrievedChunk{ChunkID: h.ChunkID, Similarity: h.Similarity, DocType: h.DocType}
		}
		s.audit.Save(ctx, domain.QueryRecord{
			Question:       question,
			Answer:         answer,
			Chunks:         retrieved,
			Model:          s.answerer.Model(),
			ResponseTimeMS: elapsed,
			CreatedAt:      start.UTC(),
		})
	}

	return domain.QueryResponse{
		Answer:         answer,
		Sources:        hits,
		ContextUsed:    len(hits),
		ResponseTimeMS: elapsed,
		Timestamp:      start.UTC(),
	}
}

// SuggestStrategy asks the knowledge base for strategy advice backed by
// backtests.
func (s *Service) SuggestStrategy(ctx context.Context, symbol, timeframe string) domain.QueryResponse {
	question := fmt.Sprintf(
		"What are the best trading strategies for %s on the %s timeframe based on backtest results?",
		symbol, timeframe,
	)
	return s.Query(ctx, question, QueryOpts{
		Symbol:   symbol,
		DocTypes: []domain.DocType{domain.DocTypeBacktest, domain.DocTypeStrategy},
	})
}

// AnalyzePastTrades summarizes what worked and what did not for a symbol.
func (s *Service) AnalyzePastTrades(ctx context.Context, symbol string) domain.QueryResponse {
	question := fmt.Sprintf(
		"What patterns can be identified from past trades for %s? What worked and what didn't?",
		symbol,
	)
	return s.Query(ctx, question, QueryOpts{
		Symbol:   symbol,
		DocTypes: []domain.DocType{domain.DocTypeTradeAnalysis},
	})
}

// ExplainSignal explains a signal against similar historical signals and
// their outcomes.
func (s *Service) ExplainSignal(ctx context.Context, symbol, action string) domain.QueryResponse {
	question := fmt.Sprintf(
		"Explain the reasoning behind a %s signal for %s. What do similar historical signals and their outcomes suggest?",
		action, symbol,
	)
	return s.Query(ctx, question, QueryOpts{
		Symbol:   symbol,
		DocTypes: []domain.DocType{domain.DocTypeSignal, domain.DocTypeTradeAnalysis},
	})
}
