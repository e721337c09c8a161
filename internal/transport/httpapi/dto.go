package httpapi

import (
	"time"

	"github.com/fks-trading/intel/internal/domain"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ingestRequest struct {
	Title     string            `json:"title"`
	Content   string            `json:"content"`
	DocType   string            `json:"doc_type"`
	Symbol    string            `json:"symbol,omitempty"`
	Timeframe string            `json:"timeframe,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type ingestResponse struct {
	DocumentID string `json:"document_id"`
	Chunks     int    `json:"chunks"`
	Embedded   int    `json:"embedded"`
}

type signalRequest struct {
	Symbol     string             `json:"symbol"`
	Action     string             `json:"action"`
	Timestamp  time.Time          `json:"timestamp,omitempty"`
	Indicators map[string]float64 `json:"indicators,omitempty"`
	Price      *float64           `json:"price,omitempty"`
	StopLoss   *float64           `json:"stop_loss,omitempty"`
	TakeProfit *float64           `json:"take_profit,omitempty"`
	Reasoning  string             `json:"reasoning,omitempty"`
}

func (r signalRequest) toDomain() domain.TradingSignal {
	return domain.TradingSignal{
		Symbol:     r.Symbol,
		Action:     r.Action,
		Timestamp:  r.Timestamp,
		Indicators: r.Indicators,
		Price:      r.Price,
		StopLoss:   r.StopLoss,
		TakeProfit: r.TakeProfit,
		Reasoning:  r.Reasoning,
	}
}

type backtestRequest struct {
	StrategyName string            `json:"strategy_name"`
	Symbol       string            `json:"symbol"`
	Timeframe    string            `json:"timeframe,omitempty"`
	StartDate    string            `json:"start_date,omitempty"`
	EndDate      string            `json:"end_date,omitempty"`
	TotalReturn  float64           `json:"total_return"`
	WinRate      float64           `json:"win_rate"`
	SharpeRatio  float64           `json:"sharpe_ratio"`
	MaxDrawdown  float64           `json:"max_drawdown"`
	TotalTrades  int               `json:"total_trades"`
	Parameters   map[string]string `json:"parameters,omitempty"`
	Insights     string            `json:"insights,omitempty"`
}

func (r backtestRequest) toDomain() domain.BacktestResult {
	return domain.BacktestResult{
		StrategyName: r.StrategyName,
		Symbol:       r.Symbol,
		Timeframe:    r.Timeframe,
		StartDate:    r.StartDate,
		EndDate:      r.EndDate,
		TotalReturn:  r.TotalReturn,
		WinRate:      r.WinRate,
		SharpeRatio:  r.SharpeRatio,
		MaxDrawdown:  r.MaxDrawdown,
		TotalTrades:  r.TotalTrades,
		Parameters:   r.Parameters,
		Insights:     r.Insights,
	}
}

type marketAnalysisRequest struct {
	Report    string `json:"report"`
	Symbol    string `json:"symbol,omitempty"`
	Timeframe string `json:"timeframe,omitempty"`
}

type tradeDTO struct {
	TradeID      string    `json:"trade_id"`
	Symbol       string    `json:"symbol"`
	PositionSide string    `json:"position_side,omitempty"`
	EntryPrice   float64   `json:"entry_price"`
	ExitPrice    float64   `json:"exit_price"`
	Quantity     float64   `json:"quantity"`
	RealizedPnL  float64   `json:"realized_pnl"`
	PnLPercent   float64   `json:"pnl_percent"`
	Duration     string    `json:"duration,omitempty"`
	Time         time.Time `json:"time,omitempty"`
	StrategyName string    `json:"strategy_name,omitempty"`
	Notes        string    `json:"notes,omitempty"`
}

func (r tradeDTO) toDomain() domain.TradeRecord {
	return domain.TradeRecord{
		TradeID:      r.TradeID,
		Symbol:       r.Symbol,
		PositionSide: r.PositionSide,
		EntryPrice:   r.EntryPrice,
		ExitPrice:    r.ExitPrice,
		Quantity:     r.Quantity,
		RealizedPnL:  r.RealizedPnL,
		PnLPercent:   r.PnLPercent,
		Duration:     r.Duration,
		Time:         r.Time,
		StrategyName: r.StrategyName,
		Notes:        r.Notes,
	}
}

type tradesRequest struct {
	Trades []tradeDTO `json:"trades"`
}

type batchResponse struct {
	Ingested int `json:"ingested"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

type queryRequest struct {
	Question  string   `json:"question"`
	Symbol    string   `json:"symbol,omitempty"`
	Timeframe string   `json:"timeframe,omitempty"`
	DocTypes  []string `json:"doc_types,omitempty"`
	TopK      int      `json:"top_k,omitempty"`
}

type sourceDTO struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Content    string  `json:"content"`
	DocType    string  `json:"doc_type"`
	Title      string  `json:"title,omitempty"`
	Symbol     string  `json:"symbol,omitempty"`
	Timeframe  string  `json:"timeframe,omitempty"`
	Similarity float64 `json:"similarity"`
}

type queryResponse struct {
	Answer         string      `json:"answer"`
	Sources        []sourceDTO `json:"sources"`
	ContextUsed    int         `json:"context_used"`
	ResponseTimeMS int64       `json:"response_time_ms"`
	Timestamp      time.Time   `json:"timestamp"`
}

type positionDTO struct {
	Quantity   float64 `json:"quantity"`
	EntryPrice float64 `json:"entry_price"`
}

type recommendationRequest struct {
	Symbol        string       `json:"symbol"`
	TotalBalance  float64      `json:"total_balance"`
	AvailableCash float64      `json:"available_cash"`
	Position      *positionDTO `json:"position,omitempty"`
	MarketContext string       `json:"market_context,omitempty"`
}

type recommendationResponse struct {
	Symbol              string    `json:"symbol"`
	Action              string    `json:"action"`
	PositionSizeUSD     float64   `json:"position_size_usd"`
	PositionSizePercent float64   `json:"position_size_percent"`
	EntryPoints         []float64 `json:"entry_points"`
	ExitPoints          []float64 `json:"exit_points"`
	StopLoss            *float64  `json:"stop_loss,omitempty"`
	Risk                string    `json:"risk"`
	Reasoning           string    `json:"reasoning"`
	Confidence          float64   `json:"confidence"`
	Strategy            string    `json:"strategy"`
	Timeframe           string    `json:"timeframe"`
	SourcesUsed         int       `json:"sources_used"`
	QueryTimeMS         int64     `json:"query_time_ms"`
	Timestamp           time.Time `json:"timestamp"`
	Error               string    `json:"error,omitempty"`
}

type portfolioRequest struct {
	Symbols         []string               `json:"symbols"`
	TotalBalance    float64                `json:"total_balance"`
	AvailableCash   float64                `json:"available_cash"`
	Positions       map[string]positionDTO `json:"positions"`
	MarketCondition string                 `json:"market_condition"`
}

type portfolioResponse struct {
	Symbols         map[string]recommendationResponse `json:"symbols"`
	PortfolioAdvice string                            `json:"portfolio_advice"`
	TotalBalance    float64                           `json:"total_balance"`
	AvailableCash   float64                           `json:"available_cash"`
	Timestamp       time.Time                         `json:"timestamp"`
}

type dailySignalDTO struct {
	Recommendation string  `json:"recommendation"`
	Confidence     float64 `json:"confidence"`
	Sources        int     `json:"sources"`
}

type dailySignalsResponse struct {
	Date          string                    `json:"date"`
	Signals       map[string]dailySignalDTO `json:"signals"`
	MinConfidence float64                   `json:"min_confidence"`
}

type healthResponse struct {
	Status string `json:"status"`
}

func toSourceDTOs(hits []domain.SearchHit) []sourceDTO {
	out := make([]sourceDTO, len(hits))
	for i, h := range hits {
		out[i] = sourceDTO{
			ChunkID:    h.ChunkID,
			DocumentID: h.DocumentID,
			Content:    h.Content,
			DocType:    string(h.DocType),
			Title:      h.Title,
			Symbol:     h.Symbol,
			Timeframe:  h.Timeframe,
			Similarity: h.Similarity,
		}
	}
	return out
}

func toQueryResponse(resp domain.QueryResponse) queryResponse {
	return queryResponse{
		Answer:         resp.Answer,
		Sources:        toSourceDTOs(resp.Sources),
		ContextUsed:    resp.ContextUsed,
		ResponseTimeMS: resp.ResponseTimeMS,
		Timestamp:      resp.Timestamp,
	}
}

func toRecommendationResponse(rec domain.Recommendation) recommendationResponse {
	return recommendationResponse{
		Symbol:              rec.Symbol,
		Action:              string(rec.Action),
		PositionSizeUSD:     rec.PositionSizeUSD,
		PositionSizePercent: rec.PositionSizePercent,
		EntryPoints:         rec.EntryPoints,
		ExitPoints:          rec.ExitPoints,
		StopLoss:            rec.StopLoss,
		Risk:                string(rec.Risk),
		Reasoning:           rec.Reasoning,
		Confidence:          rec.Confidence,
		Strategy:            rec.Strategy,
		Timeframe:           rec.Timeframe,
		SourcesUsed:         rec.SourcesUsed,
		QueryTimeMS:         rec.QueryTimeMS,
		Timestamp:           rec.Timestamp,
		Error:               rec.Err,
	}
}
