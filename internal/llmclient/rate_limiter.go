package llmclient

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter throttles outbound LLM calls with an in-process
// token-bucket per requests and per estimated tokens; the LLM client is
// the pipeline's sole rate limiter, so nothing downstream needs its own
// back-pressure.
type RateLimiter struct {
	requests *rate.Limiter
	tokens   *rate.Limiter
}

// Default request/token budgets.
const (
	DefaultRPM = 1000
	DefaultTPM = 1_000_000
)

// NewRateLimiter builds a limiter from requests-per-minute and
// tokens-per-minute budgets.
func NewRateLimiter(rpm, tpm int) *RateLimiter {
	if rpm <= 0 {
		rpm = DefaultRPM
	}
	if tpm <= 0 {
		tpm = DefaultTPM
	}
	return &RateLimiter{
		requests: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm),
		tokens:   rate.NewLimiter(rate.Limit(float64(tpm)/60.0), tpm),
	}
}

// Wait blocks until both the request and estimated-token budgets admit one
// more call, or ctx is cancelled.
func (l *RateLimiter) Wait(ctx context.Context, estimatedTokens int) error {
	if err := l.requests.Wait(ctx); err != nil {
		return err
	}
	if estimatedTokens <= 0 {
		return nil
	}
	return l.tokens.WaitN(ctx, estimatedTokens)
}

// EstimateTokens gives a rough token count for a set of messages, good
// enough for rate-limiting purposes (not billing).
func EstimateTokens(messages []Message) int {
	chars := 0
	for _, m := range messages {
		chars += len(m.Content)
	}
	return chars/4 + 1
}
