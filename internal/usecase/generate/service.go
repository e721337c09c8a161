// Package generate produces answers from retrieved context through a
// chat backend, guarded by a sliding-window rate limiter.
package generate

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fks-trading/intel/internal/domain"
)

// systemPrompt frames every completion. The assistant persona and answer
// structure are fixed; only the user prompt varies per query.
const systemPrompt = `You are FKS Intelligence, an expert AI trading assistant with deep knowledge of crypto trading strategies, technical analysis, and risk management.

Your role is to provide actionable trading insights based on historical data, past signals, backtest results, and trading lessons learned.

Guidelines:
- Base your answers on the provided context
- Be specific and reference actual data when available
- Acknowledge uncertainty when context is limited
- Provide actionable recommendations
- Consider risk management in all suggestions
- Explain your reasoning clearly

Format your responses with:
1. Direct answer to the question
2. Supporting evidence from historical data
3. Actionable recommendations
4. Risk considerations`

// Service generates answers with rate limiting and graceful degradation.
// Backend failures surface as error text in the answer, never as a
// pipeline failure.
type Service struct {
	generator domain.Generator
	limiter   *RateLimiter
	logger    *zap.Logger
}

// NewService creates a generation service. The limiter may be nil to
// disable rate limiting.
func NewService(generator domain.Generator, limiter *RateLimiter, logger *zap.Logger) *Service {
	return &Service{
		generator: generator,
		limiter:   limiter,
		logger:    logger,
	}
}

// Answer generates a response to the question grounded in the given
// context block. All failures degrade to an error message string.
func (s *Service) Answer(ctx context.Context, question, contextBlock string) string {
	if s.limiter != nil {
		if err := s.limiter.Allow(); err != nil {
			s.logger.Warn("generation rejected by rate limiter", zap.Error(err))
			return fmt.Sprintf("Error generating response: %s", err.Error())
		}
		s.limiter.Record()
	}

	userPrompt := fmt.Sprintf(`Context from FKS Knowledge Base:
%s

Question: %s

Please provide a comprehensive answer based on the context above.`, contextBlock, question)

	answer, err := s.generator.Generate(ctx, systemPrompt, userPrompt)
	if err != nil {
		s.logger.Error("generation backend failed",
			zap.String("model", s.generator.Model()),
			zap.Error(err),
		)
		return fmt.Sprintf("Error generating response: %s", err.Error())
	}

	return answer
}

// Model returns the backend model name.
func (s *Service) Model() string {
	return s.generator.Model()
}

// Usage returns limiter counters, or zero values when unlimited.
func (s *Service) Usage() Usage {
	if s.limiter == nil {
		return Usage{}
	}
	return s.limiter.Usage()
}
