// Package ingestion turns trading records into knowledge-base documents.
package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fks-trading/intel/internal/chunker"
	"github.com/fks-trading/intel/internal/domain"
	"github.com/fks-trading/intel/internal/metrics"
)

// renderer narrows the chunker to record rendering.
type renderer interface {
	ChunkSignal(sig domain.TradingSignal) []domain.Chunk
	ChunkBacktest(bt domain.BacktestResult) []domain.Chunk
	ChunkTrade(tr domain.TradeRecord) []domain.Chunk
	ChunkMarketReport(report, symbol, timeframe string) []domain.Chunk
}

// embedder narrows the embedding provider.
type embedder interface {
	EmbedBatch(ctx context.Context, texts []string) [][]float32
}

// repository narrows the knowledge repo to document writes and the
// trade dedup markers.
type repository interface {
	SaveDocument(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error
	MarkTradeIngested(ctx context.Context, tradeID string) error
	TradeIngested(ctx context.Context, tradeID string) (bool, error)
}

// Pipeline ingests structured trading records.
type Pipeline struct {
	renderer renderer
	embedder embedder
	repo     repository
	logger   *zap.Logger
	now      func() time.Time
}

// New creates an ingestion pipeline.
func New(r renderer, e embedder, repo repository, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		renderer: r,
		embedder: e,
		repo:     repo,
		logger:   logger,
		now:      time.Now,
	}
}

// IngestSignal stores a trading signal.
func (p *Pipeline) IngestSignal(ctx context.Context, sig domain.TradingSignal) (string, error) {
	doc := &domain.Document{
		Title:   fmt.Sprintf("Signal: %s %s", sig.Action, sig.Symbol),
		Content: chunker.RenderSignal(sig),
		Type:    domain.DocTypeSignal,
		Symbol:  sig.Symbol,
		Metadata: map[string]string{
			"action":    sig.Action,
			"timestamp": sig.Timestamp.Format(time.RFC3339),
		},
	}
	return p.store(ctx, doc, p.renderer.ChunkSignal(sig))
}

// IngestBacktest stores a backtest result.
func (p *Pipeline) IngestBacktest(ctx context.Context, bt domain.BacktestResult) (string, error) {
	doc := &domain.Document{
		Title:     fmt.Sprintf("Backtest: %s on %s", bt.StrategyName, bt.Symbol),
		Content:   chunker.RenderBacktest(bt),
		Type:      domain.DocTypeBacktest,
		Symbol:    bt.Symbol,
		Timeframe: bt.Timeframe,
		Metadata: map[string]string{
			"strategy": bt.StrategyName,
		},
	}
	return p.store(ctx, doc, p.renderer.ChunkBacktest(bt))
}

// IngestTrade stores a closed trade analysis.
func (p *Pipeline) IngestTrade(ctx context.Context, tr domain.TradeRecord) (string, error) {
	doc := &domain.Document{
		Title:   fmt.Sprintf("Trade: %s %s", tr.PositionSide, tr.Symbol),
		Content: chunker.RenderTrade(tr),
		Type:    domain.DocTypeTradeAnalysis,
		Symbol:  tr.Symbol,
		Metadata: map[string]string{
			"trade_id": tr.TradeID,
			"side":     tr.PositionSide,
		},
	}
	id, err := p.store(ctx, doc, p.renderer.ChunkTrade(tr))
	if err == nil && tr.TradeID != "" {
		if markErr := p.repo.MarkTradeIngested(ctx, tr.TradeID); markErr != nil {
			p.logger.Warn("trade dedup marker not written",
				zap.String("trade_id", tr.TradeID), zap.Error(markErr))
		}
	}
	return id, err
}

// IngestMarketAnalysis stores a free-form market report.
func (p *Pipeline) IngestMarketAnalysis(ctx context.Context, report, symbol, timeframe string) (string, error) {
	doc := &domain.Document{
		Title:     fmt.Sprintf("Market Analysis: %s %s", symbol, timeframe),
		Content:   report,
		Type:      domain.DocTypeMarketReport,
		Symbol:    symbol,
		Timeframe: timeframe,
	}
	return p.store(ctx, doc, p.renderer.ChunkMarketReport(report, symbol, timeframe))
}

// BatchResult reports a batch ingest outcome.
type BatchResult struct {
	Ingested int
	Skipped  int
	Failed   int
}

// BatchIngestTrades ingests trades, skipping trade IDs already stored
// in this process. Individual failures are counted, not fatal.
func (p *Pipeline) BatchIngestTrades(ctx context.Context, trades []domain.TradeRecord) BatchResult {
	var res BatchResult
	for _, tr := range trades {
		if tr.TradeID != "" {
			seen, err := p.repo.TradeIngested(ctx, tr.TradeID)
			if err != nil {
				p.logger.Warn("trade dedup check failed, ingesting anyway",
					zap.String("trade_id", tr.TradeID), zap.Error(err))
			}
			if seen {
				res.Skipped++
				continue
			}
		}
		if _, err := p.IngestTrade(ctx, tr); err != nil {
			p.logger.Warn("trade ingest failed", zap.String("trade_id", tr.TradeID), zap.Error(err))
			res.Failed++
			continue
		}
		res.Ingested++
	}
	return res
}

func (p *Pipeline) store(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) (string, error) {
	doc.ID = uuid.NewString()
	doc.CreatedAt = p.now().UTC()

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Content
	}
	vectors := p.embedder.EmbedBatch(ctx, texts)
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}

	if err := p.repo.SaveDocument(ctx, doc, chunks); err != nil {
		return "", fmt.Errorf("ingest %s: %w", doc.Type, err)
	}
	metrics.DocumentsIngestedTotal.WithLabelValues(string(doc.Type)).Inc()
	p.logger.Info("record ingested",
		zap.String("document_id", doc.ID),
		zap.String("doc_type", string(doc.Type)),
		zap.String("symbol", doc.Symbol),
		zap.Int("chunks", len(chunks)))
	return doc.ID, nil
}
