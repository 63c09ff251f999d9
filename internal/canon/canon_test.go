package canon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperstructure/ingestor/internal/llmclient"
)

type stubClient struct {
	content string
	err     error
	lastReq llmclient.ChatRequest
}

func (s *stubClient) Chat(ctx context.Context, req llmclient.ChatRequest) (*llmclient.ChatResponse, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return &llmclient.ChatResponse{Content: s.content}, nil
}

func TestCanonicalise_SplitsNonEmptyLines(t *testing.T) {
	llm := &stubClient{content: "Alice: joined: Acme: [2020, null]\n\nAlice: left: Acme: [2021, null]\n"}
	c := New(llm, "gpt-5-nano")

	lines, err := c.Canonicalise(context.Background(), "Alice joined then left Acme.", "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Alice: joined: Acme: [2020, null]",
		"Alice: left: Acme: [2021, null]",
	}, lines)
}

func TestCanonicalise_NoOutputLinesReturnsEmptySlice(t *testing.T) {
	llm := &stubClient{content: "   \n  \n"}
	c := New(llm, "gpt-5-nano")

	lines, err := c.Canonicalise(context.Background(), "...", "")
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestCanonicalise_PropagatesUpstreamError(t *testing.T) {
	llm := &stubClient{err: assert.AnError}
	c := New(llm, "gpt-5-nano")

	_, err := c.Canonicalise(context.Background(), "Alice joined Acme.", "")
	assert.Error(t, err)
}

func TestCanonicalise_UsesInjectedClock(t *testing.T) {
	llm := &stubClient{content: "Alice: joined: Acme: [2020, null]"}
	c := New(llm, "gpt-5-nano")
	c.nowFn = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	_, err := c.Canonicalise(context.Background(), "Alice joined Acme.", "surrounding context")
	require.NoError(t, err)
	assert.Contains(t, llm.lastReq.Messages[1].Content, "2026-01-02T03:04:05")
}
