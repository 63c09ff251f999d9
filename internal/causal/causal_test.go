package causal

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperstructure/ingestor/internal/facts"
	"github.com/hyperstructure/ingestor/internal/llmclient"
)

type stubClient struct {
	content string
	err     error
}

func (s *stubClient) Chat(_ context.Context, _ llmclient.ChatRequest) (*llmclient.ChatResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llmclient.ChatResponse{Content: s.content}, nil
}

func TestInfer_EmptyCommittedSkipsCall(t *testing.T) {
	inf := New(&stubClient{content: "should not be read"}, "test-model")
	events, err := inf.Infer(context.Background(), "some text", nil)
	require.NoError(t, err)
	assert.Nil(t, events)
}

func TestInfer_ParsesCausedByAndCauses(t *testing.T) {
	resp := rawResponse{
		Events: []rawEvent{
			{
				AffectedFact: rawAffectedFact{Subjects: []string{"Alice"}, RelationType: "became_ceo"},
				CausedBy: [][]rawCauseRef{
					{{AffectedFact: rawAffectedFact{Subjects: []string{"Bob"}, RelationType: "resigned"}, State: true}},
				},
				Causes: []rawCauseRef{
					{AffectedFact: rawAffectedFact{Subjects: []string{"Acme"}, RelationType: "stock_rose"}, State: true},
				},
			},
		},
	}
	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	inf := New(&stubClient{content: string(raw)}, "test-model")
	committed := []facts.TemporalFact{{Subjects: []string{"Alice"}, RelationType: "became_ceo"}}

	events, err := inf.Infer(context.Background(), "Alice became CEO after Bob resigned.", committed)
	require.NoError(t, err)
	require.Len(t, events, 1)

	evt := events[0]
	assert.Equal(t, "became_ceo", evt.AffectedFact.RelationType)
	require.Len(t, evt.CausedBy, 1)
	require.Len(t, evt.CausedBy[0], 1)
	assert.Equal(t, "resigned", evt.CausedBy[0][0].Fact.RelationType)
	assert.True(t, evt.CausedBy[0][0].State)
	require.Len(t, evt.Causes, 1)
	assert.Equal(t, "stock_rose", evt.Causes[0].Fact.RelationType)
}

func TestInfer_SchemaViolationReturnsError(t *testing.T) {
	inf := New(&stubClient{content: "not json"}, "test-model")
	committed := []facts.TemporalFact{{Subjects: []string{"X"}, RelationType: "y"}}
	_, err := inf.Infer(context.Background(), "text", committed)
	assert.Error(t, err)
}
