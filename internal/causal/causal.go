// Package causal implements the post-hoc causal-inference pass: given
// every temporal fact committed for one input text, build
// skeleton StateChangeEvent records and ask the LLM to fill in their
// caused_by/causes/requires_state lists.
package causal

import (
	"context"
	"encoding/json"
	"fmt"

	apperrors "github.com/hyperstructure/ingestor/internal/errors"
	"github.com/hyperstructure/ingestor/internal/facts"
	"github.com/hyperstructure/ingestor/internal/llmclient"
	"github.com/hyperstructure/ingestor/internal/llmclient/prompts"
)

// Inferer runs one causal-inference pass over a committed fact set.
type Inferer struct {
	llm   llmclient.Client
	model string
}

// New builds an Inferer against the given chat model.
func New(llm llmclient.Client, model string) *Inferer {
	return &Inferer{llm: llm, model: model}
}

type rawAffectedFact struct {
	Subjects     []string `json:"subjects"`
	Objects      []string `json:"objects"`
	RelationType string   `json:"relation_type"`
}

type rawCauseRef struct {
	AffectedFact rawAffectedFact `json:"affected_fact"`
	State        bool            `json:"state"`
}

type rawEvent struct {
	AffectedFact  rawAffectedFact `json:"affected_fact"`
	CausedBy      [][]rawCauseRef `json:"caused_by"`
	Causes        []rawCauseRef   `json:"causes"`
	RequiresState []rawCauseRef   `json:"requires_state"`
}

type rawResponse struct {
	Events []rawEvent `json:"events"`
}

// skeletonsFor builds one empty-causality StateChangeEvent skeleton per
// temporal fact, in order.
func skeletonsFor(committed []facts.TemporalFact) []rawEvent {
	out := make([]rawEvent, len(committed))
	for i, f := range committed {
		out[i] = rawEvent{AffectedFact: rawAffectedFact{
			Subjects:     f.Subjects,
			Objects:      f.Objects,
			RelationType: f.RelationType,
		}}
	}
	return out
}

// Infer submits originalText and the skeletons derived from committed to
// the LLM, and returns the filled-in StateChangeEvent list. Callers must
// only invoke Infer after confirming every temporal fact for originalText
// committed successfully — Infer itself does not re-check that
// precondition.
func (inf *Inferer) Infer(ctx context.Context, originalText string, committed []facts.TemporalFact) ([]facts.StateChangeEvent, error) {
	if len(committed) == 0 {
		return nil, nil
	}

	skeletons := skeletonsFor(committed)
	skeletonJSON, err := json.Marshal(rawResponse{Events: skeletons})
	if err != nil {
		return nil, fmt.Errorf("marshal causal inference skeletons: %w", err)
	}

	userContent := fmt.Sprintf("Passage:\n%s\n\nSkeleton events:\n%s", originalText, skeletonJSON)

	resp, err := inf.llm.Chat(ctx, llmclient.ChatRequest{
		Model: inf.model,
		Messages: []llmclient.Message{
			{Role: llmclient.RoleSystem, Content: prompts.CausalInfererSystem},
			{Role: llmclient.RoleUser, Content: userContent},
		},
		ResponseSchema: &llmclient.ResponseSchema{
			Name:   "state_change_events",
			Schema: prompts.StateChangeEventSchema,
			Strict: true,
		},
	})
	if err != nil {
		return nil, apperrors.UpstreamErrorf(err, "causal inferer chat")
	}

	var parsed rawResponse
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		return nil, apperrors.SchemaViolationErrorf("causal inferer response did not match schema: %v", err)
	}

	out := make([]facts.StateChangeEvent, 0, len(parsed.Events))
	for _, re := range parsed.Events {
		out = append(out, toStateChangeEvent(re))
	}
	return out, nil
}

func toStateChangeEvent(re rawEvent) facts.StateChangeEvent {
	event := facts.StateChangeEvent{
		AffectedFact: toAffectedFactRef(re.AffectedFact),
	}

	for _, group := range re.CausedBy {
		refs := make([]facts.CauseRef, 0, len(group))
		for _, c := range group {
			refs = append(refs, toCauseRef(c))
		}
		event.CausedBy = append(event.CausedBy, refs)
	}

	for _, c := range re.Causes {
		event.Causes = append(event.Causes, toCauseRef(c))
	}
	for _, c := range re.RequiresState {
		event.RequiresState = append(event.RequiresState, toCauseRef(c))
	}

	return event
}

func toAffectedFactRef(raw rawAffectedFact) facts.AffectedFactRef {
	return facts.AffectedFactRef{
		Subjects:     raw.Subjects,
		Objects:      raw.Objects,
		RelationType: raw.RelationType,
	}
}

func toCauseRef(raw rawCauseRef) facts.CauseRef {
	return facts.CauseRef{Fact: toAffectedFactRef(raw.AffectedFact), State: raw.State}
}
