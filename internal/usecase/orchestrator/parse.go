package orchestrator

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/fks-trading/intel/internal/domain"
)

var (
	percentConfidenceRe = regexp.MustCompile(`(\d+)%\s*confiden`)
	labeledConfidenceRe = regexp.MustCompile(`confidence[:\s]+(\d+\.?\d*)`)
	stopLossRe          = regexp.MustCompile(`stop[\s-]?loss[:\s]*\$?(\d+\.?\d*)`)
)

var (
	highRiskPhrases = []string{"high risk", "risky", "aggressive"}
	lowRiskPhrases  = []string{"low risk", "safe", "conservative"}
)

// parseAction maps answer text to a trading action. Buy wins over sell
// unless explicitly negated.
func parseAction(answer string) domain.Action {
	lower := strings.ToLower(answer)
	if strings.Contains(lower, "buy") && !strings.Contains(lower, "don't buy") {
		return domain.ActionBuy
	}
	if strings.Contains(lower, "sell") {
		return domain.ActionSell
	}
	return domain.ActionHold
}

// parseRisk maps answer text to a risk tier, defaulting to medium.
func parseRisk(answer string) domain.RiskLevel {
	lower := strings.ToLower(answer)
	for _, phrase := range highRiskPhrases {
		if strings.Contains(lower, phrase) {
			return domain.RiskHigh
		}
	}
	for _, phrase := range lowRiskPhrases {
		if strings.Contains(lower, phrase) {
			return domain.RiskLow
		}
	}
	return domain.RiskMedium
}

// extractConfidence pulls a confidence estimate out of answer text.
// Explicit numbers win over keyword hints; the fallback is 0.7.
func extractConfidence(answer string) float64 {
	lower := strings.ToLower(answer)

	if m := percentConfidenceRe.FindStringSubmatch(lower); m != nil {
		if n, err := strconv.ParseFloat(m[1], 64); err == nil {
			return n / 100
		}
	}
	if m := labeledConfidenceRe.FindStringSubmatch(lower); m != nil {
		if n, err := strconv.ParseFloat(m[1], 64); err == nil {
			if n > 1 {
				n /= 100
			}
			return n
		}
	}

	switch {
	case strings.Contains(lower, "highly confident"),
		strings.Contains(lower, "very confident"),
		strings.Contains(lower, "strong"):
		return 0.85
	case strings.Contains(lower, "confident"),
		strings.Contains(lower, "likely"):
		return 0.75
	case strings.Contains(lower, "uncertain"),
		strings.Contains(lower, "unclear"),
		strings.Contains(lower, "maybe"):
		return 0.5
	}
	return 0.7
}

// extractStopLoss pulls an explicit stop-loss price if the answer names one.
func extractStopLoss(answer string) *float64 {
	m := stopLossRe.FindStringSubmatch(strings.ToLower(answer))
	if m == nil {
		return nil
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	return &n
}
