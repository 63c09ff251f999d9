package ingestion

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperstructure/ingestor/internal/canon"
	"github.com/hyperstructure/ingestor/internal/causal"
	"github.com/hyperstructure/ingestor/internal/classify"
	"github.com/hyperstructure/ingestor/internal/extract"
	"github.com/hyperstructure/ingestor/internal/geocode"
	"github.com/hyperstructure/ingestor/internal/graphwriter"
	"github.com/hyperstructure/ingestor/internal/llmclient"
	"github.com/hyperstructure/ingestor/internal/llmclient/prompts"
	"github.com/hyperstructure/ingestor/internal/spatialexpand"
)

// scriptedClient routes each Chat call to a canned response keyed by the
// request's system prompt, so one fake can stand in for every LLM-backed
// pipeline stage in an orchestrator test.
type scriptedClient struct {
	bySystemPrompt map[string]string
}

func (s *scriptedClient) Chat(_ context.Context, req llmclient.ChatRequest) (*llmclient.ChatResponse, error) {
	for _, m := range req.Messages {
		if m.Role == llmclient.RoleSystem {
			if content, ok := s.bySystemPrompt[m.Content]; ok {
				return &llmclient.ChatResponse{Content: content}, nil
			}
		}
	}
	return &llmclient.ChatResponse{Content: "{}"}, nil
}

func newTestOrchestrator(t *testing.T, runner *fakeWriterRunner) (*Orchestrator, *scriptedClient) {
	t.Helper()

	client := &scriptedClient{bySystemPrompt: map[string]string{
		prompts.CanonicaliserSystem:       "Alice joined Acme.",
		prompts.StructuredExtractorSystem: `{"facts":[{"fact_type":"temporal_fact","subjects":["Alice"],"objects":["Acme"],"relation_type":"joined","temporal_intervals":[],"spatial_contexts":[]}]}`,
		prompts.CausalInfererSystem:       `{"events":[]}`,
	}}

	classifier := classify.New(nil, "", false)
	canonicaliser := canon.New(client, "test-model")
	extractor := extract.New(client, "test-model")
	modExtractor := extract.NewModificationExtractor(client, "test-model")
	geocoder, err := geocode.New(nil, nil, 100, "")
	require.NoError(t, err)
	expander := spatialexpand.New(geocoder)
	writer := graphwriter.New(runner)
	causalInfer := causal.New(client, "test-model")

	logger := logrus.New()
	logger.SetOutput(nopWriter{})

	return New(classifier, canonicaliser, extractor, modExtractor, expander, writer, causalInfer, logger, 4), client
}

// fakeWriterRunner implements graphwriter.Runner, recording every query so
// tests can assert on the writer's behavior without a live Neo4j instance.
type fakeWriterRunner struct {
	runCalls int
}

func (f *fakeWriterRunner) Run(_ context.Context, _, _ string, _ map[string]any) ([]map[string]any, error) {
	f.runCalls++
	return nil, nil
}

func (f *fakeWriterRunner) RunRead(_ context.Context, _, _ string, _ map[string]any) ([]map[string]any, error) {
	return nil, nil // no existing hyperedges: every probe misses, every fact is created
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func drain(ch <-chan Event) []Event {
	var out []Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestProcessText_EmitsOrderedStagesAndCompletesOnce(t *testing.T) {
	runner := &fakeWriterRunner{}
	o, _ := newTestOrchestrator(t, runner)

	events := drain(o.ProcessText(context.Background(), "Alice joined Acme in 2020."))
	require.NotEmpty(t, events)

	completeCount := 0
	var sawGraphDone bool
	for _, ev := range events {
		if ev.Stage == StageComplete {
			completeCount++
		}
		if ev.Stage == StageGraphDone {
			sawGraphDone = true
		}
	}
	assert.Equal(t, 1, completeCount, "exactly one terminal complete event")
	assert.True(t, sawGraphDone)
	assert.Equal(t, StageComplete, events[len(events)-1].Stage, "complete is emitted last")
}

func TestProcessText_RunsCausalInferenceAfterAllSucceed(t *testing.T) {
	runner := &fakeWriterRunner{}
	o, _ := newTestOrchestrator(t, runner)

	events := drain(o.ProcessText(context.Background(), "Alice joined Acme."))

	var sawCausalDone, sawCausalSkipped bool
	for _, ev := range events {
		if ev.Stage == StageCausalDone {
			sawCausalDone = true
		}
		if ev.Stage == StageCausalSkipped {
			sawCausalSkipped = true
		}
	}
	assert.True(t, sawCausalDone)
	assert.False(t, sawCausalSkipped)
}

// stateChangeRunner answers "state_change_write" reads with a fixed
// hyperedge id so an empty-causality StateChangeEvent can still locate its
// affected fact, and records every write's operation name.
type stateChangeRunner struct {
	writeOps []string
}

func (r *stateChangeRunner) Run(_ context.Context, operation, _ string, _ map[string]any) ([]map[string]any, error) {
	r.writeOps = append(r.writeOps, operation)
	return nil, nil
}

func (r *stateChangeRunner) RunRead(_ context.Context, operation, _ string, _ map[string]any) ([]map[string]any, error) {
	if operation == "state_change_write" {
		return []map[string]any{{"id": "he1"}}, nil
	}
	return nil, nil
}

func TestProcessText_WritesStateChangeEventWithNoCausalLinks(t *testing.T) {
	runner := &stateChangeRunner{}
	client := &scriptedClient{bySystemPrompt: map[string]string{
		prompts.CanonicaliserSystem:       "Alice joined Acme.",
		prompts.StructuredExtractorSystem: `{"facts":[{"fact_type":"temporal_fact","subjects":["Alice"],"objects":["Acme"],"relation_type":"joined","temporal_intervals":[],"spatial_contexts":[]}]}`,
		prompts.CausalInfererSystem:       `{"events":[{"affected_fact":{"subjects":["Alice"],"objects":["Acme"],"relation_type":"joined"},"caused_by":[],"causes":[],"requires_state":[]}]}`,
	}}
	classifier := classify.New(nil, "", false)
	canonicaliser := canon.New(client, "test-model")
	extractor := extract.New(client, "test-model")
	modExtractor := extract.NewModificationExtractor(client, "test-model")
	geocoder, err := geocode.New(nil, nil, 100, "")
	require.NoError(t, err)
	expander := spatialexpand.New(geocoder)
	writer := graphwriter.New(runner)
	causalInfer := causal.New(client, "test-model")
	logger := logrus.New()
	logger.SetOutput(nopWriter{})

	o := New(classifier, canonicaliser, extractor, modExtractor, expander, writer, causalInfer, logger, 4)
	events := drain(o.ProcessText(context.Background(), "Alice joined Acme."))

	var sawCausalDone bool
	for _, ev := range events {
		if ev.Stage == StageCausalDone {
			sawCausalDone = true
		}
	}
	assert.True(t, sawCausalDone)

	var sawStateChangeWrite bool
	for _, op := range runner.writeOps {
		if op == "state_change_write" {
			sawStateChangeWrite = true
		}
	}
	assert.True(t, sawStateChangeWrite, "an empty-causality event must still produce a StateChangeEvent node")
}

func TestProcessText_SkipsCausalInferenceOnExtractionFailure(t *testing.T) {
	runner := &fakeWriterRunner{}
	client := &scriptedClient{bySystemPrompt: map[string]string{
		prompts.CanonicaliserSystem:       "Alice joined Acme.",
		prompts.StructuredExtractorSystem: "not valid json",
	}}
	classifier := classify.New(nil, "", false)
	canonicaliser := canon.New(client, "test-model")
	extractor := extract.New(client, "test-model")
	modExtractor := extract.NewModificationExtractor(client, "test-model")
	geocoder, err := geocode.New(nil, nil, 100, "")
	require.NoError(t, err)
	expander := spatialexpand.New(geocoder)
	writer := graphwriter.New(runner)
	causalInfer := causal.New(client, "test-model")
	logger := logrus.New()
	logger.SetOutput(nopWriter{})

	o := New(classifier, canonicaliser, extractor, modExtractor, expander, writer, causalInfer, logger, 4)

	events := drain(o.ProcessText(context.Background(), "Alice joined Acme."))

	var sawSkipped, sawFailed bool
	for _, ev := range events {
		if ev.Stage == StageCausalSkipped {
			sawSkipped = true
		}
		if ev.Stage == StageGraphFailed {
			sawFailed = true
		}
	}
	assert.True(t, sawSkipped)
	assert.True(t, sawFailed)
}
