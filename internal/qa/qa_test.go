package qa

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperstructure/ingestor/internal/geospatial"
	"github.com/hyperstructure/ingestor/internal/graph"
	"github.com/hyperstructure/ingestor/internal/llmclient"
)

// scriptedClient returns one canned response per call, in order.
type scriptedClient struct {
	responses []llmclient.ChatResponse
	calls     int
}

func (s *scriptedClient) Chat(ctx context.Context, req llmclient.ChatRequest) (*llmclient.ChatResponse, error) {
	resp := s.responses[s.calls]
	s.calls++
	return &resp, nil
}

type fakeGraph struct {
	records []graph.HyperedgeRecord
}

func (f *fakeGraph) RunRead(ctx context.Context, operation, query string, params map[string]any) ([]map[string]any, error) {
	return nil, nil
}

func (f *fakeGraph) QuerySpatiotemporal(ctx context.Context, q graph.SpatiotemporalQuery) ([]graph.HyperedgeRecord, error) {
	return f.records, nil
}

func (f *fakeGraph) QueryBySpatialArea(ctx context.Context, ring geospatial.Ring) ([]graph.HyperedgeRecord, error) {
	return f.records, nil
}

func TestAsk_ValidatesOnFirstToolCall(t *testing.T) {
	llm := &scriptedClient{responses: []llmclient.ChatResponse{
		{ToolCalls: []llmclient.ToolCall{{Name: "query_facts", Arguments: `{"subjects":["Alice"]}`}}},
		{Content: `{"valid":true,"descriptor":"Alice joined Acme in 2020"}`},
	}}
	fg := &fakeGraph{records: []graph.HyperedgeRecord{
		{ID: "h1", RelationType: "joined", Subjects: []string{"Alice"}, Objects: []string{"Acme"}},
	}}

	loop := New(llm, "gpt-5-nano", fg)
	result, err := loop.Ask(context.Background(), "When did Alice join Acme?", 3)

	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, "Alice joined Acme in 2020", result.Descriptor)
	require.Len(t, result.Trace, 1)
	assert.Equal(t, "query_facts", result.Trace[0].Tool)
}

func TestAsk_NoToolCallIsInvalid(t *testing.T) {
	llm := &scriptedClient{responses: []llmclient.ChatResponse{{Content: "I don't know"}}}
	loop := New(llm, "gpt-5-nano", &fakeGraph{})

	result, err := loop.Ask(context.Background(), "huh?", 3)

	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Empty(t, result.Trace)
}

func TestAsk_ExhaustsLoopsWithoutValidAnswer(t *testing.T) {
	toolCall := llmclient.ChatResponse{ToolCalls: []llmclient.ToolCall{{Name: "query_facts", Arguments: `{}`}}}
	invalid := llmclient.ChatResponse{Content: `{"valid":false,"descriptor":"not enough information"}`}
	llm := &scriptedClient{responses: []llmclient.ChatResponse{
		toolCall, invalid,
		toolCall, invalid,
	}}
	loop := New(llm, "gpt-5-nano", &fakeGraph{})

	result, err := loop.Ask(context.Background(), "anything?", 2)

	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, "not enough information", result.Descriptor)
	assert.Len(t, result.Trace, 2)
}

func TestClampLoops(t *testing.T) {
	assert.Equal(t, 1, clampLoops(0))
	assert.Equal(t, 1, clampLoops(-5))
	assert.Equal(t, 5, clampLoops(100))
	assert.Equal(t, 3, clampLoops(3))
}
