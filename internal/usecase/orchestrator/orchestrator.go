// Package orchestrator turns knowledge-base answers into structured
// trading recommendations.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fks-trading/intel/internal/domain"
	"github.com/fks-trading/intel/internal/usecase/intelligence"
)

const (
	recommendationTopK = 7
	portfolioTopK      = 10
	dailySignalTopK    = 3
	defaultStrategy    = "RAG-optimized"
	defaultTimeframe   = "1h"
)

// Knowledge slices consulted per operation.
var (
	recommendationDocTypes = []domain.DocType{
		domain.DocTypeSignal,
		domain.DocTypeBacktest,
		domain.DocTypeTradeAnalysis,
		domain.DocTypeStrategy,
	}
	portfolioDocTypes = []domain.DocType{
		domain.DocTypeBacktest,
		domain.DocTypeStrategy,
		domain.DocTypeInsight,
	}
	dailySignalDocTypes = []domain.DocType{
		domain.DocTypeSignal,
		domain.DocTypeMarketReport,
	}
)

// querier narrows the intelligence service to query execution.
type querier interface {
	Query(ctx context.Context, question string, opts intelligence.QueryOpts) domain.QueryResponse
}

// Orchestrator derives recommendations, portfolio plans and daily signals.
type Orchestrator struct {
	intel  querier
	logger *zap.Logger
	now    func() time.Time
}

// New creates a recommendation orchestrator.
func New(intel querier, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{intel: intel, logger: logger, now: time.Now}
}

// RecommendationRequest carries the account state for one decision.
type RecommendationRequest struct {
	Symbol        string
	TotalBalance  float64
	AvailableCash float64
	Position      *domain.Position
	MarketContext string
}

// GetTradingRecommendation queries the knowledge base with the account
// state and parses the answer into a structured recommendation. A
// degraded answer still yields a valid recommendation from the parser
// defaults; the Err field carries the failure text.
func (o *Orchestrator) GetTradingRecommendation(ctx context.Context, req RecommendationRequest) (domain.Recommendation, error) {
	question := o.buildQuestion(req)

	resp := o.intel.Query(ctx, question, intelligence.QueryOpts{
		Symbol:   req.Symbol,
		DocTypes: recommendationDocTypes,
		TopK:     recommendationTopK,
	})
	degraded := strings.HasPrefix(resp.Answer, "Error generating response:")

	action := parseAction(resp.Answer)
	risk := parseRisk(resp.Answer)
	sizeUSD := req.AvailableCash * risk.RiskPercent()

	rec := domain.Recommendation{
		Symbol:              req.Symbol,
		Action:              action,
		PositionSizeUSD:     sizeUSD,
		PositionSizePercent: risk.RiskPercent() * 100,
		EntryPoints:         []float64{},
		ExitPoints:          []float64{},
		StopLoss:            extractStopLoss(resp.Answer),
		Risk:                risk,
		Reasoning:           resp.Answer,
		Confidence:          extractConfidence(resp.Answer),
		Strategy:            defaultStrategy,
		Timeframe:           defaultTimeframe,
		SourcesUsed:         resp.ContextUsed,
		QueryTimeMS:         resp.ResponseTimeMS,
		Timestamp:           o.now().UTC(),
	}
	if degraded {
		rec.Err = resp.Answer
		o.logger.Warn("recommendation built from degraded answer",
			zap.String("symbol", req.Symbol), zap.String("answer", resp.Answer))
		return rec, nil
	}

	o.logger.Info("trading recommendation",
		zap.String("symbol", req.Symbol),
		zap.String("action", string(action)),
		zap.String("risk", string(risk)),
		zap.Float64("confidence", rec.Confidence),
		zap.Int("sources", resp.ContextUsed))
	return rec, nil
}

// PortfolioRequest carries the whole account for portfolio optimization.
// Symbols is the roster to consider; a symbol does not need an open
// position. An empty roster falls back to the position keys.
type PortfolioRequest struct {
	Symbols         []string
	TotalBalance    float64
	AvailableCash   float64
	Positions       map[string]domain.Position
	MarketCondition string
}

func (r PortfolioRequest) roster() []string {
	if len(r.Symbols) > 0 {
		return r.Symbols
	}
	symbols := make([]string, 0, len(r.Positions))
	for symbol := range r.Positions {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// OptimizePortfolio produces a per-symbol recommendation set plus
// holistic allocation advice. A failing symbol degrades to a HOLD entry
// carrying the error, never fails the whole plan.
func (o *Orchestrator) OptimizePortfolio(ctx context.Context, req PortfolioRequest) domain.PortfolioPlan {
	symbols := req.roster()
	plan := domain.PortfolioPlan{
		Symbols:       make(map[string]domain.Recommendation, len(symbols)),
		TotalBalance:  req.TotalBalance,
		AvailableCash: req.AvailableCash,
		Timestamp:     o.now().UTC(),
	}

	for _, symbol := range symbols {
		recReq := RecommendationRequest{
			Symbol:        symbol,
			TotalBalance:  req.TotalBalance,
			AvailableCash: req.AvailableCash,
			MarketContext: req.MarketCondition,
		}
		if pos, ok := req.Positions[symbol]; ok {
			position := pos
			recReq.Position = &position
		}
		rec, err := o.GetTradingRecommendation(ctx, recReq)
		if err != nil {
			o.logger.Warn("symbol recommendation failed", zap.String("symbol", symbol), zap.Error(err))
			plan.Symbols[symbol] = domain.Recommendation{
				Symbol:    symbol,
				Action:    domain.ActionHold,
				Err:       err.Error(),
				Timestamp: o.now().UTC(),
			}
			continue
		}
		plan.Symbols[symbol] = rec
	}

	advice := o.intel.Query(ctx, fmt.Sprintf(
		"Given a portfolio holding %s with total balance $%.2f and available cash $%.2f, "+
			"how should the allocation be adjusted based on historical performance and current signals?",
		strings.Join(symbols, ", "), req.TotalBalance, req.AvailableCash,
	), intelligence.QueryOpts{DocTypes: portfolioDocTypes, TopK: portfolioTopK})
	plan.PortfolioAdvice = advice.Answer

	return plan
}

// DailySignals summarizes the outlook for each symbol, keeping only
// signals at or above minConfidence.
func (o *Orchestrator) DailySignals(ctx context.Context, symbols []string, minConfidence float64) domain.DailySignals {
	out := domain.DailySignals{
		Date:          o.now().UTC().Format("2006-01-02"),
		Signals:       make(map[string]domain.DailySignal, len(symbols)),
		MinConfidence: minConfidence,
	}

	for _, symbol := range symbols {
		resp := o.intel.Query(ctx, fmt.Sprintf(
			"What is the trading outlook for %s today? Should I buy, sell, or hold?", symbol,
		), intelligence.QueryOpts{Symbol: symbol, DocTypes: dailySignalDocTypes, TopK: dailySignalTopK})
		if strings.HasPrefix(resp.Answer, "Error generating response:") {
			continue
		}

		confidence := extractConfidence(resp.Answer)
		if confidence < minConfidence {
			continue
		}
		out.Signals[symbol] = domain.DailySignal{
			Recommendation: string(parseAction(resp.Answer)),
			Confidence:     confidence,
			Sources:        resp.ContextUsed,
		}
	}
	return out
}

func (o *Orchestrator) buildQuestion(req RecommendationRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Based on historical signals, backtest results and past trades for %s:\n", req.Symbol)
	fmt.Fprintf(&b, "Account Balance: $%.2f\n", req.TotalBalance)
	fmt.Fprintf(&b, "Available Cash: $%.2f\n", req.AvailableCash)
	if req.Position != nil {
		fmt.Fprintf(&b, "Current Position: %g units at entry price $%.2f\n",
			req.Position.Quantity, req.Position.EntryPrice)
	} else {
		b.WriteString("Current Position: none\n")
	}
	if req.MarketContext != "" {
		fmt.Fprintf(&b, "Market Context: %s\n", req.MarketContext)
	}
	b.WriteString("\nShould I buy, sell, or hold? Please provide:\n")
	b.WriteString("1. Recommended action (buy/sell/hold)\n")
	b.WriteString("2. Suggested entry/exit points if applicable\n")
	b.WriteString("3. Risk assessment (low/medium/high)\n")
	b.WriteString("4. Confidence level\n")
	return b.String()
}
