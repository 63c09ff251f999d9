// Package extract turns canonicalised sentences into TemporalFact records
// by calling the LLM client with the fixed temporal_fact JSON schema and
// validating the response (fact_type tag, minimum one subject, null/[]
// for missing fields, never placeholder strings).
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	apperrors "github.com/hyperstructure/ingestor/internal/errors"
	"github.com/hyperstructure/ingestor/internal/facts"
	"github.com/hyperstructure/ingestor/internal/llmclient"
	"github.com/hyperstructure/ingestor/internal/llmclient/prompts"
)

// placeholderTokens are never valid subject/object/relation values;
// extraction results carrying one are dropped as a validation defect
// rather than written to the graph.
var placeholderTokens = map[string]bool{
	"?":             true,
	"unknown":       true,
	"n/a":           true,
	"none":          true,
	"not specified": true,
	"unspecified":   true,
}

// Extractor parses canonical text into TemporalFact records via a single
// JSON-schema-constrained LLM call.
type Extractor struct {
	llm   llmclient.Client
	model string
}

// New builds an Extractor against the given chat model.
func New(llm llmclient.Client, model string) *Extractor {
	return &Extractor{llm: llm, model: model}
}

type rawInterval struct {
	StartTime *string `json:"start_time"`
	EndTime   *string `json:"end_time"`
}

type rawFact struct {
	FactType          string        `json:"fact_type"`
	Subjects          []string      `json:"subjects"`
	Objects           []string      `json:"objects"`
	RelationType      string        `json:"relation_type"`
	TemporalIntervals []rawInterval `json:"temporal_intervals"`
	SpatialContexts   []*string     `json:"spatial_contexts"`
}

type rawResponse struct {
	Facts []rawFact `json:"facts"`
}

// Extract submits canonicalText (one or more canonical sentences, already
// colon-delimited) and returns the validated TemporalFact list.
// A schema violation drops the whole call's output with a wrapped
// *errors.Error rather than returning partially-parsed facts.
func (e *Extractor) Extract(ctx context.Context, canonicalText string) ([]facts.TemporalFact, error) {
	if strings.TrimSpace(canonicalText) == "" {
		return nil, nil
	}

	resp, err := e.llm.Chat(ctx, llmclient.ChatRequest{
		Model: e.model,
		Messages: []llmclient.Message{
			{Role: llmclient.RoleSystem, Content: prompts.StructuredExtractorSystem},
			{Role: llmclient.RoleUser, Content: canonicalText},
		},
		ResponseSchema: &llmclient.ResponseSchema{
			Name:   "temporal_facts",
			Schema: prompts.TemporalFactSchema,
			Strict: true,
		},
	})
	if err != nil {
		return nil, apperrors.UpstreamErrorf(err, "structured extractor chat")
	}

	var parsed rawResponse
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		return nil, apperrors.SchemaViolationErrorf("structured extractor response did not match schema: %v", err)
	}

	out := make([]facts.TemporalFact, 0, len(parsed.Facts))
	for _, rf := range parsed.Facts {
		fact, ok := validate(rf)
		if !ok {
			continue
		}
		out = append(out, fact)
	}
	return out, nil
}

// validate enforces the field rules and drops placeholder
// entities/relations.
func validate(rf rawFact) (facts.TemporalFact, bool) {
	if rf.FactType != "temporal_fact" {
		return facts.TemporalFact{}, false
	}
	subjects := cleanList(rf.Subjects)
	if len(subjects) == 0 {
		return facts.TemporalFact{}, false
	}
	objects := cleanList(rf.Objects)

	relation := strings.TrimSpace(rf.RelationType)
	if relation == "" || placeholderTokens[strings.ToLower(relation)] {
		return facts.TemporalFact{}, false
	}

	intervals := make([]facts.TemporalInterval, 0, len(rf.TemporalIntervals))
	for _, ri := range rf.TemporalIntervals {
		intervals = append(intervals, facts.TemporalInterval{
			StartTime: cleanBound(ri.StartTime),
			EndTime:   cleanBound(ri.EndTime),
		})
	}

	names := make([]string, 0, len(rf.SpatialContexts))
	for _, sc := range rf.SpatialContexts {
		if sc == nil {
			continue
		}
		name := strings.TrimSpace(*sc)
		if name == "" || placeholderTokens[strings.ToLower(name)] {
			continue
		}
		names = append(names, name)
	}

	return facts.TemporalFact{
		Subjects:          subjects,
		Objects:           objects,
		RelationType:      relation,
		TemporalIntervals: intervals,
		SpatialNames:      names,
	}, true
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || placeholderTokens[strings.ToLower(v)] {
			continue
		}
		out = append(out, v)
	}
	return out
}

// cleanBound normalizes a null/empty/placeholder temporal bound to nil,
// never emitting the literal string "unknown" into a TemporalFact: a
// bound written as the word "unknown" becomes a nil pointer, not a
// placeholder string.
func cleanBound(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" || strings.EqualFold(trimmed, "unknown") || strings.EqualFold(trimmed, "null") {
		return nil
	}
	return &trimmed
}

// Error renders a diagnostic summary for logging, used by the
// orchestrator when a sentence's extraction fails.
func Error(sentence string, err error) string {
	return fmt.Sprintf("extract sentence %q: %v", sentence, err)
}
