package domain

import "time"

// Action is a trading decision.
type Action string

const (
	// ActionBuy opens or increases a position.
	ActionBuy Action = "BUY"
	// ActionSell closes or reduces a position.
	ActionSell Action = "SELL"
	// ActionHold keeps the current exposure.
	ActionHold Action = "HOLD"
)

// RiskLevel is a qualitative risk assessment.
type RiskLevel string

const (
	// RiskLow sizes positions at 2% of available cash.
	RiskLow RiskLevel = "low"
	// RiskMedium sizes positions at 3% of available cash.
	RiskMedium RiskLevel = "medium"
	// RiskHigh sizes positions at 5% of available cash.
	RiskHigh RiskLevel = "high"
)

// RiskPercent returns the fixed position-sizing fraction for a risk tier.
func (r RiskLevel) RiskPercent() float64 {
	switch r {
	case RiskLow:
		return 0.02
	case RiskHigh:
		return 0.05
	default:
		return 0.03
	}
}

// Position describes an existing holding passed in by the caller.
type Position struct {
	Quantity   float64
	EntryPrice float64
}

// Recommendation is the structured trading decision derived from a generated
// answer. Ephemeral, never persisted.
type Recommendation struct {
	Symbol              string
	Action              Action
	PositionSizeUSD     float64
	PositionSizePercent float64
	EntryPoints         []float64
	ExitPoints          []float64
	StopLoss            *float64
	Risk                RiskLevel
	Reasoning           string
	Confidence          float64
	Strategy            string
	Timeframe           string
	SourcesUsed         int
	QueryTimeMS         int64
	Timestamp           time.Time

	// Err carries a per-symbol failure inside a portfolio batch; the action
	// defaults to HOLD in that case.
	Err string
}

// PortfolioPlan aggregates per-symbol recommendations with portfolio-level advice.
type PortfolioPlan struct {
	Symbols         map[string]Recommendation
	PortfolioAdvice string
	TotalBalance    float64
	AvailableCash   float64
	Timestamp       time.Time
}

// DailySignal is a per-symbol signal summary.
type DailySignal struct {
	Recommendation string
	Confidence     float64
	Sources        int
}

// DailySignals is the batch of signal summaries for one day.
type DailySignals struct {
	Date          string
	Signals       map[string]DailySignal
	MinConfidence float64
}
