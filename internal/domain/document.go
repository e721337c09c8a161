package domain

import (
	"fmt"
	"time"
)

// DocType classifies a knowledge-base document.
type DocType string

const (
	// DocTypeSignal is a generated trading signal.
	DocTypeSignal DocType = "signal"
	// DocTypeBacktest is a strategy backtest result.
	DocTypeBacktest DocType = "backtest"
	// DocTypeTradeAnalysis is a completed-trade post-mortem.
	DocTypeTradeAnalysis DocType = "trade_analysis"
	// DocTypeMarketReport is a market analysis report.
	DocTypeMarketReport DocType = "market_report"
	// DocTypeStrategy is a strategy description.
	DocTypeStrategy DocType = "strategy"
	// DocTypeInsight is a curated trading insight.
	DocTypeInsight DocType = "insight"
)

// ParseDocType validates a document type string.
func ParseDocType(s string) (DocType, error) {
	switch DocType(s) {
	case DocTypeSignal, DocTypeBacktest, DocTypeTradeAnalysis,
		DocTypeMarketReport, DocTypeStrategy, DocTypeInsight:
		return DocType(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDocType, s)
}

// Document is a unit of ingested knowledge. Immutable once created except for
// metadata corrections; chunks cascade on delete.
type Document struct {
	ID        string
	Title     string
	Content   string
	Type      DocType
	Symbol    string
	Timeframe string
	Metadata  map[string]string
	CreatedAt time.Time
}

// Chunk is a token-bounded slice of a document's content, the unit of
// embedding and retrieval. Embedding is nil until computed; a chunk without
// an embedding is stored but not searchable.
type Chunk struct {
	ID         string
	DocumentID string
	Index      int
	Content    string
	TokenCount int
	Metadata   map[string]string
	Embedding  []float32
}

// Filters is a conjunctive set of equality constraints for search.
// Zero-value fields are not applied.
type Filters struct {
	Symbol    string
	DocType   DocType
	Timeframe string
}

// IsEmpty reports whether no constraint is set.
func (f Filters) IsEmpty() bool {
	return f.Symbol == "" && f.DocType == "" && f.Timeframe == ""
}

// SearchHit is a retrieved chunk joined with its parent document metadata.
type SearchHit struct {
	ChunkID    string
	DocumentID string
	Content    string
	ChunkIndex int
	DocType    DocType
	Title      string
	Symbol     string
	Timeframe  string
	Similarity float64
	CreatedAt  time.Time

	// CombinedScore is populated by hybrid re-ranking.
	CombinedScore float64
}
