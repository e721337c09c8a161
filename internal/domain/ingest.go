package domain

import "time"

// TradingSignal is a strategy signal submitted for ingestion.
type TradingSignal struct {
	Symbol     string
	Action     string
	Timestamp  time.Time
	Indicators map[string]float64
	Price      *float64
	StopLoss   *float64
	TakeProfit *float64
	Reasoning  string
}

// BacktestResult is a completed backtest submitted for ingestion.
type BacktestResult struct {
	StrategyName string
	Symbol       string
	Timeframe    string
	StartDate    string
	EndDate      string
	TotalReturn  float64
	WinRate      float64
	SharpeRatio  float64
	MaxDrawdown  float64
	TotalTrades  int
	Parameters   map[string]string
	Insights     string
}

// TradeRecord is a closed trade submitted for ingestion.
type TradeRecord struct {
	TradeID      string
	Symbol       string
	PositionSide string
	EntryPrice   float64
	ExitPrice    float64
	Quantity     float64
	RealizedPnL  float64
	PnLPercent   float64
	Duration     string
	Time         time.Time
	StrategyName string
	Notes        string
}
