package chunker

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fks-trading/intel/internal/domain"
)

// ChunkSignal renders a trading signal as natural language and chunks it.
func (c *Chunker) ChunkSignal(sig domain.TradingSignal) []domain.Chunk {
	meta := map[string]string{
		"type":      string(domain.DocTypeSignal),
		"symbol":    sig.Symbol,
		"action":    sig.Action,
		"timestamp": sig.Timestamp.Format(time.RFC3339),
	}
	return c.Split(RenderSignal(sig), meta)
}

// ChunkBacktest renders backtest results as natural language and chunks them.
func (c *Chunker) ChunkBacktest(bt domain.BacktestResult) []domain.Chunk {
	meta := map[string]string{
		"type":         string(domain.DocTypeBacktest),
		"strategy":     bt.StrategyName,
		"symbol":       bt.Symbol,
		"timeframe":    bt.Timeframe,
		"total_return": formatFloat(bt.TotalReturn),
		"win_rate":     formatFloat(bt.WinRate),
	}
	return c.Split(RenderBacktest(bt), meta)
}

// ChunkTrade renders a closed trade as natural language and chunks it.
func (c *Chunker) ChunkTrade(tr domain.TradeRecord) []domain.Chunk {
	meta := map[string]string{
		"type":      string(domain.DocTypeTradeAnalysis),
		"symbol":    tr.Symbol,
		"side":      tr.PositionSide,
		"pnl":       formatFloat(tr.RealizedPnL),
		"timestamp": tr.Time.Format(time.RFC3339),
	}
	return c.Split(RenderTrade(tr), meta)
}

// ChunkMarketReport chunks a free-form market analysis report.
func (c *Chunker) ChunkMarketReport(report, symbol, timeframe string) []domain.Chunk {
	meta := map[string]string{
		"type":      string(domain.DocTypeMarketReport),
		"symbol":    symbol,
		"timeframe": timeframe,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	return c.Split(report, meta)
}

// RenderSignal renders a trading signal as natural language.
func RenderSignal(sig domain.TradingSignal) string {
	symbol := sig.Symbol
	if symbol == "" {
		symbol = "Unknown"
	}
	action := sig.Action
	if action == "" {
		action = "HOLD"
	}
	ts := sig.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	parts := []string{
		fmt.Sprintf("Trading Signal for %s", symbol),
		fmt.Sprintf("Action: %s", action),
		fmt.Sprintf("Timestamp: %s", ts.Format(time.RFC3339)),
	}

	if len(sig.Indicators) > 0 {
		parts = append(parts, "Technical Indicators:")
		for _, name := range sortedKeys(sig.Indicators) {
			parts = append(parts, fmt.Sprintf("  - %s: %s", name, formatFloat(sig.Indicators[name])))
		}
	}

	if sig.Price != nil {
		parts = append(parts, fmt.Sprintf("Current Price: %s", formatFloat(*sig.Price)))
	}
	if sig.StopLoss != nil {
		parts = append(parts, fmt.Sprintf("Stop Loss: %s", formatFloat(*sig.StopLoss)))
	}
	if sig.TakeProfit != nil {
		parts = append(parts, fmt.Sprintf("Take Profit: %s", formatFloat(*sig.TakeProfit)))
	}
	if sig.Reasoning != "" {
		parts = append(parts, fmt.Sprintf("Reasoning: %s", sig.Reasoning))
	}

	return strings.Join(parts, "\n")
}

// RenderBacktest renders backtest results as natural language.
func RenderBacktest(bt domain.BacktestResult) string {
	strategy := bt.StrategyName
	if strategy == "" {
		strategy = "Unknown Strategy"
	}

	parts := []string{
		fmt.Sprintf("Backtest Results: %s", strategy),
		fmt.Sprintf("Symbol: %s | Timeframe: %s", orNA(bt.Symbol), orNA(bt.Timeframe)),
		fmt.Sprintf("Period: %s to %s", orNA(bt.StartDate), orNA(bt.EndDate)),
		"",
		"Performance Metrics:",
		fmt.Sprintf("  - Total Return: %.2f%%", bt.TotalReturn),
		fmt.Sprintf("  - Win Rate: %.2f%%", bt.WinRate),
		fmt.Sprintf("  - Sharpe Ratio: %.2f", bt.SharpeRatio),
		fmt.Sprintf("  - Max Drawdown: %.2f%%", bt.MaxDrawdown),
		fmt.Sprintf("  - Total Trades: %d", bt.TotalTrades),
	}

	if len(bt.Parameters) > 0 {
		parts = append(parts, "\nStrategy Parameters:")
		names := make([]string, 0, len(bt.Parameters))
		for name := range bt.Parameters {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			parts = append(parts, fmt.Sprintf("  - %s: %s", name, bt.Parameters[name]))
		}
	}

	if bt.Insights != "" {
		parts = append(parts, fmt.Sprintf("\nInsights: %s", bt.Insights))
	}

	return strings.Join(parts, "\n")
}

// RenderTrade renders a closed trade as natural language.
func RenderTrade(tr domain.TradeRecord) string {
	symbol := tr.Symbol
	if symbol == "" {
		symbol = "Unknown"
	}

	ts := "N/A"
	if !tr.Time.IsZero() {
		ts = tr.Time.Format(time.RFC3339)
	}

	parts := []string{
		fmt.Sprintf("Trade: %s %s", symbol, orNA(tr.PositionSide)),
		fmt.Sprintf("Entry Price: %s | Exit Price: %s", formatFloat(tr.EntryPrice), formatFloat(tr.ExitPrice)),
		fmt.Sprintf("Quantity: %s", formatFloat(tr.Quantity)),
		fmt.Sprintf("Realized PnL: %s (%.2f%%)", formatFloat(tr.RealizedPnL), tr.PnLPercent),
		fmt.Sprintf("Duration: %s", orNA(tr.Duration)),
		fmt.Sprintf("Timestamp: %s", ts),
	}

	if tr.StrategyName != "" {
		parts = append(parts, fmt.Sprintf("Strategy: %s", tr.StrategyName))
	}
	if tr.Notes != "" {
		parts = append(parts, fmt.Sprintf("Notes: %s", tr.Notes))
	}

	return strings.Join(parts, "\n")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
