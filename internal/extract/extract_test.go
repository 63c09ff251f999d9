package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperstructure/ingestor/internal/llmclient"
)

type stubClient struct {
	content string
	err     error
}

func (s *stubClient) Chat(ctx context.Context, req llmclient.ChatRequest) (*llmclient.ChatResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llmclient.ChatResponse{Content: s.content}, nil
}

func TestExtract_DropsPlaceholderFacts(t *testing.T) {
	stub := &stubClient{content: `{"facts":[
		{"fact_type":"temporal_fact","subjects":["Marie Curie"],"objects":["The Nobel Prize"],"relation_type":"wins","temporal_intervals":[{"start_time":"1903-01-01T00:00:00","end_time":"1903-12-31T23:59:59"}],"spatial_contexts":[null]},
		{"fact_type":"temporal_fact","subjects":["?"],"objects":[],"relation_type":"is","temporal_intervals":[],"spatial_contexts":[]}
	]}`}
	e := New(stub, "gpt-5-nano")

	got, err := e.Extract(context.Background(), "Marie Curie : wins : The Nobel Prize (from 1903-01-01T00:00:00 to 1903-12-31T23:59:59).")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"Marie Curie"}, got[0].Subjects)
	assert.Equal(t, []string{"The Nobel Prize"}, got[0].Objects)
	assert.Equal(t, "wins", got[0].RelationType)
	assert.Empty(t, got[0].SpatialNames)
}

func TestExtract_NullifiesUnknownBounds(t *testing.T) {
	stub := &stubClient{content: `{"facts":[
		{"fact_type":"temporal_fact","subjects":["John"],"objects":[],"relation_type":"is born","temporal_intervals":[{"start_time":"2000-01-01T00:00:00","end_time":"unknown"}],"spatial_contexts":["unknown"]}
	]}`}
	e := New(stub, "gpt-5-nano")

	got, err := e.Extract(context.Background(), "John : is born : (from 2000-01-01T00:00:00 to unknown).")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Len(t, got[0].TemporalIntervals, 1)
	assert.NotNil(t, got[0].TemporalIntervals[0].StartTime)
	assert.Nil(t, got[0].TemporalIntervals[0].EndTime)
	assert.Empty(t, got[0].SpatialNames)
}

func TestExtract_EmptyInputSkipsCall(t *testing.T) {
	stub := &stubClient{content: "should never be read"}
	e := New(stub, "gpt-5-nano")

	got, err := e.Extract(context.Background(), "   ")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestExtract_SchemaViolationReturnsError(t *testing.T) {
	stub := &stubClient{content: "not json"}
	e := New(stub, "gpt-5-nano")

	_, err := e.Extract(context.Background(), "John : likes : cats.")
	require.Error(t, err)
}
