package intelligence

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fks-trading/intel/internal/domain"
	"github.com/fks-trading/intel/internal/metrics"
	"github.com/fks-trading/intel/internal/usecase/generate"
	"github.com/fks-trading/intel/internal/usecase/retrieval"
)

func init() {
	metrics.RegisterRAGMetrics()
}

type fakeSplitter struct{ chunks int }

func (f *fakeSplitter) Split(text string, meta map[string]string) []domain.Chunk {
	n := f.chunks
	if n == 0 {
		n = 1
	}
	out := make([]domain.Chunk, n)
	for i := range out {
		out[i] = domain.Chunk{Index: i, Content: text, Metadata: meta}
	}
	return out
}

type fakeEmbedder struct {
	dim      int
	zeroFrom int // index from which vectors degrade to zero, -1 for never
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, f.dim)
		if f.zeroFrom < 0 || i < f.zeroFrom {
			v[0] = 1
		}
		out[i] = v
	}
	return out
}

func (f *fakeEmbedder) Dimension() int { return f.dim }

type fakeRepo struct {
	saved   *domain.Document
	chunks  []domain.Chunk
	saveErr error
	deleted string
}

func (f *fakeRepo) SaveDocument(_ context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = doc
	f.chunks = chunks
	return nil
}

func (f *fakeRepo) GetDocument(_ context.Context, id string) (domain.Document, error) {
	if f.saved == nil || f.saved.ID != id {
		return domain.Document{}, domain.ErrDocumentNotFound
	}
	return *f.saved, nil
}

func (f *fakeRepo) DeleteDocument(_ context.Context, id string) error {
	f.deleted = id
	return nil
}

func (f *fakeRepo) CountChunks(_ context.Context) (int, error) {
	return len(f.chunks), nil
}

type fakeRetriever struct {
	hitsByType map[domain.DocType][]domain.SearchHit
	hits       []domain.SearchHit
	calls      []domain.Filters
}

func (f *fakeRetriever) Retrieve(_ context.Context, _ string, _ int, filters domain.Filters) []domain.SearchHit {
	f.calls = append(f.calls, filters)
	if filters.DocType != "" {
		return f.hitsByType[filters.DocType]
	}
	return f.hits
}

func (f *fakeRetriever) Rerank(hits []domain.SearchHit, _ retrieval.Method) []domain.SearchHit {
	return hits
}

func (f *fakeRetriever) FormatContext(hits []domain.SearchHit, _ int) string {
	if len(hits) == 0 {
		return "No relevant context found."
	}
	var parts []string
	for _, h := range hits {
		parts = append(parts, h.Content)
	}
	return strings.Join(parts, "\n")
}

func (f *fakeRetriever) DefaultTopK() int { return 5 }

type fakeAnswerer struct {
	answer       string
	lastQuestion string
	lastContext  string
}

func (f *fakeAnswerer) Answer(_ context.Context, question, contextBlock string) string {
	f.lastQuestion = question
	f.lastContext = contextBlock
	return f.answer
}

func (f *fakeAnswerer) Model() string         { return "test-model" }
func (f *fakeAnswerer) Usage() generate.Usage { return generate.Usage{} }

type fakeAuditor struct {
	records []domain.QueryRecord
}

func (f *fakeAuditor) Save(_ context.Context, rec domain.QueryRecord) {
	f.records = append(f.records, rec)
}

func newTestService(sp *fakeSplitter, e *fakeEmbedder, repo *fakeRepo, ret *fakeRetriever, ans *fakeAnswerer, audit *fakeAuditor) *Service {
	var a auditor
	if audit != nil {
		a = audit
	}
	s := New(sp, e, repo, ret, ans, a, 4000, zap.NewNop())
	s.now = func() time.Time { return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestIngestDocument(t *testing.T) {
	repo := &fakeRepo{}
	s := newTestService(&fakeSplitter{chunks: 3}, &fakeEmbedder{dim: 4, zeroFrom: -1}, repo, &fakeRetriever{}, &fakeAnswerer{}, nil)

	res, err := s.IngestDocument(context.Background(), IngestRequest{
		Title:   "BTC momentum signal",
		Content: "strong breakout above resistance",
		DocType: "signal",
		Symbol:  "BTCUSDT",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.DocumentID == "" {
		t.Error("expected generated document ID")
	}
	if res.Chunks != 3 || res.Embedded != 3 {
		t.Errorf("unexpected counts: %+v", res)
	}
	if repo.saved == nil || repo.saved.Type != domain.DocTypeSignal {
		t.Fatalf("document not saved: %+v", repo.saved)
	}
	for i, ch := range repo.chunks {
		if domain.IsZeroVector(ch.Embedding) {
			t.Errorf("chunk %d missing embedding", i)
		}
	}
}

func TestIngestDocumentPartialEmbedding(t *testing.T) {
	repo := &fakeRepo{}
	s := newTestService(&fakeSplitter{chunks: 3}, &fakeEmbedder{dim: 4, zeroFrom: 2}, repo, &fakeRetriever{}, &fakeAnswerer{}, nil)

	res, err := s.IngestDocument(context.Background(), IngestRequest{Content: "text", DocType: "signal"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Chunks != 3 || res.Embedded != 2 {
		t.Errorf("expected 2/3 embedded, got %+v", res)
	}
}

func TestIngestDocumentInvalidType(t *testing.T) {
	s := newTestService(&fakeSplitter{}, &fakeEmbedder{dim: 4, zeroFrom: -1}, &fakeRepo{}, &fakeRetriever{}, &fakeAnswerer{}, nil)

	_, err := s.IngestDocument(context.Background(), IngestRequest{Content: "text", DocType: "tweet"})
	if !errors.Is(err, domain.ErrInvalidDocType) {
		t.Fatalf("expected ErrInvalidDocType, got %v", err)
	}
}

func TestIngestDocumentEmptyContent(t *testing.T) {
	s := newTestService(&fakeSplitter{}, &fakeEmbedder{dim: 4, zeroFrom: -1}, &fakeRepo{}, &fakeRetriever{}, &fakeAnswerer{}, nil)

	if _, err := s.IngestDocument(context.Background(), IngestRequest{Content: "  ", DocType: "signal"}); err == nil {
		t.Fatal("expected error for blank content")
	}
}

func TestQueryFansOutPerDocType(t *testing.T) {
	ret := &fakeRetriever{hitsByType: map[domain.DocType][]domain.SearchHit{
		domain.DocTypeSignal:   {{ChunkID: "s:0", Content: "signal ctx", DocType: domain.DocTypeSignal, Similarity: 0.9}},
		domain.DocTypeBacktest: {{ChunkID: "b:0", Content: "backtest ctx", DocType: domain.DocTypeBacktest, Similarity: 0.8}},
	}}
	ans := &fakeAnswerer{answer: "a comprehensive answer"}
	audit := &fakeAuditor{}
	s := newTestService(&fakeSplitter{}, &fakeEmbedder{dim: 4, zeroFrom: -1}, &fakeRepo{}, ret, ans, audit)

	resp := s.Query(context.Background(), "how is BTC", QueryOpts{
		Symbol:   "BTCUSDT",
		DocTypes: []domain.DocType{domain.DocTypeSignal, domain.DocTypeBacktest},
	})

	if len(ret.calls) != 2 {
		t.Fatalf("expected one retrieval per doc type, got %d", len(ret.calls))
	}
	if ret.calls[0].DocType != domain.DocTypeSignal || ret.calls[1].DocType != domain.DocTypeBacktest {
		t.Errorf("unexpected fan-out filters: %+v", ret.calls)
	}
	if resp.Answer != "a comprehensive answer" {
		t.Errorf("unexpected answer: %q", resp.Answer)
	}
	if resp.ContextUsed != 2 || len(resp.Sources) != 2 {
		t.Errorf("unexpected context accounting: %+v", resp)
	}
	if !strings.Contains(ans.lastContext, "signal ctx") || !strings.Contains(ans.lastContext, "backtest ctx") {
		t.Errorf("context not assembled: %q", ans.lastContext)
	}

	if len(audit.records) != 1 {
		t.Fatalf("expected one audit record, got %d", len(audit.records))
	}
	rec := audit.records[0]
	if rec.Question != "how is BTC" || rec.Model != "test-model" || len(rec.Chunks) != 2 {
		t.Errorf("unexpected audit record: %+v", rec)
	}
}

func TestQueryTruncatesToTopK(t *testing.T) {
	hits := make([]domain.SearchHit, 8)
	for i := range hits {
		hits[i] = domain.SearchHit{ChunkID: "c", Content: "x", Similarity: 0.9}
	}
	ret := &fakeRetriever{hits: hits}
	s := newTestService(&fakeSplitter{}, &fakeEmbedder{dim: 4, zeroFrom: -1}, &fakeRepo{}, ret, &fakeAnswerer{answer: "ok"}, nil)

	resp := s.Query(context.Background(), "q", QueryOpts{TopK: 3})
	if len(resp.Sources) != 3 {
		t.Errorf("expected 3 sources, got %d", len(resp.Sources))
	}
}

func TestQueryNoContext(t *testing.T) {
	ans := &fakeAnswerer{answer: "best effort"}
	s := newTestService(&fakeSplitter{}, &fakeEmbedder{dim: 4, zeroFrom: -1}, &fakeRepo{}, &fakeRetriever{}, ans, nil)

	resp := s.Query(context.Background(), "q", QueryOpts{})
	if resp.ContextUsed != 0 {
		t.Errorf("expected no context, got %d", resp.ContextUsed)
	}
	if ans.lastContext != "No relevant context found." {
		t.Errorf("unexpected context block: %q", ans.lastContext)
	}
}

func TestSuggestStrategyTargetsBacktests(t *testing.T) {
	ret := &fakeRetriever{}
	ans := &fakeAnswerer{answer: "use momentum"}
	s := newTestService(&fakeSplitter{}, &fakeEmbedder{dim: 4, zeroFrom: -1}, &fakeRepo{}, ret, ans, nil)

	s.SuggestStrategy(context.Background(), "ETHUSDT", "4h")

	if len(ret.calls) != 2 {
		t.Fatalf("expected backtest+strategy fan-out, got %d calls", len(ret.calls))
	}
	if ret.calls[0].DocType != domain.DocTypeBacktest || ret.calls[1].DocType != domain.DocTypeStrategy {
		t.Errorf("unexpected doc types: %+v", ret.calls)
	}
	if !strings.Contains(ans.lastQuestion, "ETHUSDT") || !strings.Contains(ans.lastQuestion, "4h") {
		t.Errorf("question missing parameters: %q", ans.lastQuestion)
	}
}

func TestAnalyzePastTrades(t *testing.T) {
	ret := &fakeRetriever{}
	s := newTestService(&fakeSplitter{}, &fakeEmbedder{dim: 4, zeroFrom: -1}, &fakeRepo{}, ret, &fakeAnswerer{answer: "x"}, nil)

	s.AnalyzePastTrades(context.Background(), "BTCUSDT")

	if len(ret.calls) != 1 || ret.calls[0].DocType != domain.DocTypeTradeAnalysis {
		t.Errorf("expected trade_analysis retrieval, got %+v", ret.calls)
	}
}

func TestExplainSignal(t *testing.T) {
	ret := &fakeRetriever{}
	ans := &fakeAnswerer{answer: "x"}
	s := newTestService(&fakeSplitter{}, &fakeEmbedder{dim: 4, zeroFrom: -1}, &fakeRepo{}, ret, ans, nil)

	s.ExplainSignal(context.Background(), "BTCUSDT", "BUY")

	if len(ret.calls) != 2 {
		t.Fatalf("expected signal+trade_analysis fan-out, got %d", len(ret.calls))
	}
	if !strings.Contains(ans.lastQuestion, "BUY") {
		t.Errorf("question missing action: %q", ans.lastQuestion)
	}
}
