// Package httpapi exposes the knowledge base and recommendation
// orchestrator over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fks-trading/intel/internal/domain"
	"github.com/fks-trading/intel/internal/metrics"
	"github.com/fks-trading/intel/internal/usecase/generate"
	"github.com/fks-trading/intel/internal/usecase/ingestion"
	"github.com/fks-trading/intel/internal/usecase/intelligence"
	"github.com/fks-trading/intel/internal/usecase/orchestrator"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// intelService narrows the knowledge-base facade.
type intelService interface {
	IngestDocument(ctx context.Context, req intelligence.IngestRequest) (intelligence.IngestResult, error)
	GetDocument(ctx context.Context, id string) (domain.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	Query(ctx context.Context, question string, opts intelligence.QueryOpts) domain.QueryResponse
	Usage() generate.Usage
}

// ingestPipeline narrows the record ingestion pipeline.
type ingestPipeline interface {
	IngestSignal(ctx context.Context, sig domain.TradingSignal) (string, error)
	IngestBacktest(ctx context.Context, bt domain.BacktestResult) (string, error)
	IngestMarketAnalysis(ctx context.Context, report, symbol, timeframe string) (string, error)
	BatchIngestTrades(ctx context.Context, trades []domain.TradeRecord) ingestion.BatchResult
}

// recommender narrows the orchestrator.
type recommender interface {
	GetTradingRecommendation(ctx context.Context, req orchestrator.RecommendationRequest) (domain.Recommendation, error)
	OptimizePortfolio(ctx context.Context, req orchestrator.PortfolioRequest) domain.PortfolioPlan
	DailySignals(ctx context.Context, symbols []string, minConfidence float64) domain.DailySignals
}

// pinger reports store liveness for health checks.
type pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP API.
type Server struct {
	intel         intelService
	pipeline      ingestPipeline
	recommender   recommender
	store         pinger
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates the HTTP API server.
func NewServer(intel intelService, pipeline ingestPipeline, rec recommender, store pinger, logger *zap.Logger) *Server {
	s := &Server{
		intel:       intel,
		pipeline:    pipeline,
		recommender: rec,
		store:       store,
		logger:      logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrDocumentNotFound, http.StatusNotFound, "document_not_found"),
		sentinelHandler(domain.ErrChunkNotFound, http.StatusNotFound, "chunk_not_found"),
		sentinelHandler(domain.ErrInvalidDocType, http.StatusBadRequest, "invalid_doc_type"),
		sentinelHandler(domain.ErrInvalidChunkConfig, http.StatusBadRequest, "validation_failed"),
		sentinelHandler(domain.ErrUnsupportedFilter, http.StatusBadRequest, "unsupported_filter"),
		sentinelHandler(domain.ErrDimensionMismatch, http.StatusBadRequest, "vector_dim_mismatch"),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, "embedding_provider_error"),
		sentinelHandler(domain.ErrGenerationProviderError, http.StatusBadGateway, "generation_provider_error"),
		sentinelHandler(domain.ErrBackendUnavailable, http.StatusBadGateway, "backend_unavailable"),
	}
	return s
}

// Router assembles the chi router with the standard middleware chain.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(s.recoverer)
	r.Use(metrics.Middleware())

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/documents", s.handleIngest)
		r.Get("/documents/{id}", s.handleGetDocument)
		r.Delete("/documents/{id}", s.handleDeleteDocument)
		r.Post("/ingest/signal", s.handleIngestSignal)
		r.Post("/ingest/backtest", s.handleIngestBacktest)
		r.Post("/ingest/market-analysis", s.handleIngestMarketAnalysis)
		r.Post("/ingest/trades", s.handleIngestTrades)
		r.Post("/query", s.handleQuery)
		r.Post("/recommendations", s.handleRecommendation)
		r.Post("/portfolio", s.handlePortfolio)
		r.Get("/signals/daily", s.handleDailySignals)
		r.Get("/usage", s.handleUsage)
	})
	return r
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "Content is required")
		return
	}

	res, err := s.intel.IngestDocument(r.Context(), intelligence.IngestRequest{
		Title:     req.Title,
		Content:   req.Content,
		DocType:   req.DocType,
		Symbol:    req.Symbol,
		Timeframe: req.Timeframe,
		Metadata:  req.Metadata,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ingestResponse{
		DocumentID: res.DocumentID,
		Chunks:     res.Chunks,
		Embedded:   res.Embedded,
	})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.intel.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.intel.DeleteDocument(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleIngestSignal(w http.ResponseWriter, r *http.Request) {
	var req signalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if req.Symbol == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "Symbol is required")
		return
	}

	id, err := s.pipeline.IngestSignal(r.Context(), req.toDomain())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ingestResponse{DocumentID: id})
}

func (s *Server) handleIngestBacktest(w http.ResponseWriter, r *http.Request) {
	var req backtestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if req.StrategyName == "" || req.Symbol == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "Strategy name and symbol are required")
		return
	}

	id, err := s.pipeline.IngestBacktest(r.Context(), req.toDomain())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ingestResponse{DocumentID: id})
}

func (s *Server) handleIngestMarketAnalysis(w http.ResponseWriter, r *http.Request) {
	var req marketAnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Report) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "Report is required")
		return
	}

	id, err := s.pipeline.IngestMarketAnalysis(r.Context(), req.Report, req.Symbol, req.Timeframe)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ingestResponse{DocumentID: id})
}

func (s *Server) handleIngestTrades(w http.ResponseWriter, r *http.Request) {
	var req tradesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if len(req.Trades) == 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", "At least one trade is required")
		return
	}

	trades := make([]domain.TradeRecord, len(req.Trades))
	for i, tr := range req.Trades {
		trades[i] = tr.toDomain()
	}
	res := s.pipeline.BatchIngestTrades(r.Context(), trades)
	writeJSON(w, http.StatusOK, batchResponse{
		Ingested: res.Ingested,
		Skipped:  res.Skipped,
		Failed:   res.Failed,
	})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	// Unknown body fields are rejected so a misspelled filter key cannot
	// silently widen the search.
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		if strings.Contains(err.Error(), "unknown field") {
			s.handleDomainError(w, fmt.Errorf("%s: %w", err.Error(), domain.ErrUnsupportedFilter))
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "Question is required")
		return
	}

	docTypes := make([]domain.DocType, 0, len(req.DocTypes))
	for _, raw := range req.DocTypes {
		dt, err := domain.ParseDocType(raw)
		if err != nil {
			s.handleDomainError(w, err)
			return
		}
		docTypes = append(docTypes, dt)
	}

	resp := s.intel.Query(r.Context(), req.Question, intelligence.QueryOpts{
		Symbol:    req.Symbol,
		Timeframe: req.Timeframe,
		DocTypes:  docTypes,
		TopK:      req.TopK,
	})
	writeJSON(w, http.StatusOK, toQueryResponse(resp))
}

func (s *Server) handleRecommendation(w http.ResponseWriter, r *http.Request) {
	var req recommendationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if req.Symbol == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "Symbol is required")
		return
	}

	orcReq := orchestrator.RecommendationRequest{
		Symbol:        req.Symbol,
		TotalBalance:  req.TotalBalance,
		AvailableCash: req.AvailableCash,
		MarketContext: req.MarketContext,
	}
	if req.Position != nil {
		orcReq.Position = &domain.Position{
			Quantity:   req.Position.Quantity,
			EntryPrice: req.Position.EntryPrice,
		}
	}

	rec, err := s.recommender.GetTradingRecommendation(r.Context(), orcReq)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecommendationResponse(rec))
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	var req portfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if len(req.Symbols) == 0 && len(req.Positions) == 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", "At least one symbol or position is required")
		return
	}

	positions := make(map[string]domain.Position, len(req.Positions))
	for symbol, pos := range req.Positions {
		positions[symbol] = domain.Position{Quantity: pos.Quantity, EntryPrice: pos.EntryPrice}
	}

	plan := s.recommender.OptimizePortfolio(r.Context(), orchestrator.PortfolioRequest{
		Symbols:         req.Symbols,
		TotalBalance:    req.TotalBalance,
		AvailableCash:   req.AvailableCash,
		Positions:       positions,
		MarketCondition: req.MarketCondition,
	})

	out := portfolioResponse{
		Symbols:         make(map[string]recommendationResponse, len(plan.Symbols)),
		PortfolioAdvice: plan.PortfolioAdvice,
		TotalBalance:    plan.TotalBalance,
		AvailableCash:   plan.AvailableCash,
		Timestamp:       plan.Timestamp,
	}
	for symbol, rec := range plan.Symbols {
		out.Symbols[symbol] = toRecommendationResponse(rec)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDailySignals(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("symbols")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "symbols query parameter is required")
		return
	}
	symbols := strings.Split(raw, ",")

	minConfidence := 0.6
	if v := r.URL.Query().Get("min_confidence"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			writeError(w, http.StatusBadRequest, "validation_failed", "min_confidence must be a number in [0, 1]")
			return
		}
		minConfidence = f
	}

	out := s.recommender.DailySignals(r.Context(), symbols, minConfidence)
	resp := dailySignalsResponse{
		Date:          out.Date,
		Signals:       make(map[string]dailySignalDTO, len(out.Signals)),
		MinConfidence: out.MinConfidence,
	}
	for symbol, sig := range out.Signals {
		resp.Signals[symbol] = dailySignalDTO{
			Recommendation: sig.Recommendation,
			Confidence:     sig.Confidence,
			Sources:        sig.Sources,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.intel.Usage())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic in handler", zap.Any("panic", rec), zap.String("path", r.URL.Path))
				writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}

func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// safeDomainMessage maps an error to a message safe to expose. Anything
// other than a known sentinel is masked.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrDocumentNotFound,
		domain.ErrChunkNotFound,
		domain.ErrInvalidDocType,
		domain.ErrInvalidChunkConfig,
		domain.ErrUnsupportedFilter,
		domain.ErrDimensionMismatch,
		domain.ErrRateLimited,
		domain.ErrEmbeddingProviderError,
		domain.ErrGenerationProviderError,
		domain.ErrBackendUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}
