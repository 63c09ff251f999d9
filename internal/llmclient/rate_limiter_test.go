package llmclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewRateLimiter_AppliesDefaultsWhenUnset(t *testing.T) {
	l := NewRateLimiter(0, -5)
	assert.Equal(t, DefaultRPM, l.requests.Burst())
	assert.Equal(t, DefaultTPM, l.tokens.Burst())
}

func TestNewRateLimiter_HonorsExplicitBudgets(t *testing.T) {
	l := NewRateLimiter(10, 5000)
	assert.Equal(t, 10, l.requests.Burst())
	assert.Equal(t, 5000, l.tokens.Burst())
}

func TestRateLimiter_Wait_AllowsCallWithinBurst(t *testing.T) {
	l := NewRateLimiter(10, 1000)
	err := l.Wait(context.Background(), 50)
	assert.NoError(t, err)
}

func TestRateLimiter_Wait_SkipsTokenCheckWhenEstimateIsZero(t *testing.T) {
	l := NewRateLimiter(10, 1)
	err := l.Wait(context.Background(), 0)
	assert.NoError(t, err)
}

func TestRateLimiter_Wait_ExceedsTokenBurstReturnsErrorImmediately(t *testing.T) {
	l := NewRateLimiter(10, 100)
	err := l.Wait(context.Background(), 1000)
	assert.Error(t, err)
}

func TestRateLimiter_Wait_BlocksPastBurstUntilContextDeadline(t *testing.T) {
	l := NewRateLimiter(1, 1000)
	err := l.Wait(context.Background(), 1)
	assert.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = l.Wait(ctx, 1)
	assert.Error(t, err)
}

func TestRateLimiter_Wait_CancelledContextErrors(t *testing.T) {
	l := NewRateLimiter(1, 1000)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Wait(ctx, 9999999)
	assert.Error(t, err)
}

func TestEstimateTokens_ApproximatesFromCharacterCount(t *testing.T) {
	msgs := []Message{{Role: "user", Content: "12345678"}, {Role: "assistant", Content: "1234"}}
	assert.Equal(t, 4, EstimateTokens(msgs)) // (8+4) chars / 4 + 1
}

func TestEstimateTokens_EmptyMessagesIsOne(t *testing.T) {
	assert.Equal(t, 1, EstimateTokens(nil))
}
