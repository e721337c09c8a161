package ingestion

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fks-trading/intel/internal/domain"
	"github.com/fks-trading/intel/internal/metrics"
)

func init() {
	metrics.RegisterRAGMetrics()
}

type fakeRenderer struct{}

func (fakeRenderer) ChunkSignal(sig domain.TradingSignal) []domain.Chunk {
	return []domain.Chunk{{Index: 0, Content: "signal " + sig.Symbol}}
}

func (fakeRenderer) ChunkBacktest(bt domain.BacktestResult) []domain.Chunk {
	return []domain.Chunk{{Index: 0, Content: "backtest " + bt.StrategyName}}
}

func (fakeRenderer) ChunkTrade(tr domain.TradeRecord) []domain.Chunk {
	return []domain.Chunk{{Index: 0, Content: "trade " + tr.TradeID}}
}

func (fakeRenderer) ChunkMarketReport(report, _, _ string) []domain.Chunk {
	return []domain.Chunk{{Index: 0, Content: report}}
}

type fakeEmbedder struct{ calls int }

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) [][]float32 {
	f.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1}
	}
	return out
}

type fakeRepo struct {
	docs    []*domain.Document
	chunks  [][]domain.Chunk
	saveErr error
	marked  map[string]bool
}

func (f *fakeRepo) SaveDocument(_ context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.docs = append(f.docs, doc)
	f.chunks = append(f.chunks, chunks)
	return nil
}

func (f *fakeRepo) MarkTradeIngested(_ context.Context, tradeID string) error {
	if f.marked == nil {
		f.marked = make(map[string]bool)
	}
	f.marked[tradeID] = true
	return nil
}

func (f *fakeRepo) TradeIngested(_ context.Context, tradeID string) (bool, error) {
	return f.marked[tradeID], nil
}

func newPipeline(repo *fakeRepo) (*Pipeline, *fakeEmbedder) {
	e := &fakeEmbedder{}
	p := New(fakeRenderer{}, e, repo, zap.NewNop())
	p.now = func() time.Time { return time.Date(2026, 8, 30, 8, 0, 0, 0, time.UTC) }
	return p, e
}

func TestIngestSignal(t *testing.T) {
	repo := &fakeRepo{}
	p, e := newPipeline(repo)

	id, err := p.IngestSignal(context.Background(), domain.TradingSignal{
		Symbol: "BTCUSDT", Action: "BUY", Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "" {
		t.Error("expected document ID")
	}

	doc := repo.docs[0]
	if doc.Type != domain.DocTypeSignal || doc.Symbol != "BTCUSDT" {
		t.Errorf("unexpected document: %+v", doc)
	}
	if !strings.Contains(doc.Title, "BUY BTCUSDT") {
		t.Errorf("unexpected title: %q", doc.Title)
	}
	if !strings.Contains(doc.Content, "Trading Signal for BTCUSDT") {
		t.Errorf("content not rendered: %q", doc.Content)
	}
	if doc.Metadata["action"] != "BUY" {
		t.Errorf("metadata missing: %v", doc.Metadata)
	}
	if e.calls != 1 {
		t.Errorf("expected one embed batch, got %d", e.calls)
	}
	if domain.IsZeroVector(repo.chunks[0][0].Embedding) {
		t.Error("chunk embedding not set")
	}
}

func TestIngestBacktest(t *testing.T) {
	repo := &fakeRepo{}
	p, _ := newPipeline(repo)

	_, err := p.IngestBacktest(context.Background(), domain.BacktestResult{
		StrategyName: "momentum", Symbol: "ETHUSDT", Timeframe: "4h",
	})
	if err != nil {
		t.Fatal(err)
	}
	doc := repo.docs[0]
	if doc.Type != domain.DocTypeBacktest || doc.Timeframe != "4h" {
		t.Errorf("unexpected document: %+v", doc)
	}
	if doc.Metadata["strategy"] != "momentum" {
		t.Errorf("strategy metadata missing: %v", doc.Metadata)
	}
}

func TestIngestMarketAnalysis(t *testing.T) {
	repo := &fakeRepo{}
	p, _ := newPipeline(repo)

	_, err := p.IngestMarketAnalysis(context.Background(), "volatility rising", "BTCUSDT", "1d")
	if err != nil {
		t.Fatal(err)
	}
	doc := repo.docs[0]
	if doc.Type != domain.DocTypeMarketReport || doc.Content != "volatility rising" {
		t.Errorf("unexpected document: %+v", doc)
	}
}

func TestIngestSaveError(t *testing.T) {
	repo := &fakeRepo{saveErr: errors.New("store down")}
	p, _ := newPipeline(repo)

	if _, err := p.IngestSignal(context.Background(), domain.TradingSignal{Symbol: "BTCUSDT"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestBatchIngestTradesDedup(t *testing.T) {
	repo := &fakeRepo{}
	p, _ := newPipeline(repo)

	trades := []domain.TradeRecord{
		{TradeID: "t-1", Symbol: "BTCUSDT"},
		{TradeID: "t-2", Symbol: "ETHUSDT"},
	}
	res := p.BatchIngestTrades(context.Background(), trades)
	if res.Ingested != 2 || res.Skipped != 0 {
		t.Fatalf("unexpected first batch result: %+v", res)
	}

	res = p.BatchIngestTrades(context.Background(), append(trades, domain.TradeRecord{TradeID: "t-3", Symbol: "SOLUSDT"}))
	if res.Ingested != 1 || res.Skipped != 2 {
		t.Errorf("expected dedup of known trades: %+v", res)
	}
	if len(repo.docs) != 3 {
		t.Errorf("expected 3 stored documents, got %d", len(repo.docs))
	}
}

func TestBatchIngestTradesCountsFailures(t *testing.T) {
	repo := &fakeRepo{saveErr: errors.New("store down")}
	p, _ := newPipeline(repo)

	res := p.BatchIngestTrades(context.Background(), []domain.TradeRecord{{TradeID: "t-1"}})
	if res.Failed != 1 || res.Ingested != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
}
