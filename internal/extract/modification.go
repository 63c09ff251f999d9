package extract

import (
	"context"
	"encoding/json"
	"strings"

	apperrors "github.com/hyperstructure/ingestor/internal/errors"
	"github.com/hyperstructure/ingestor/internal/facts"
	"github.com/hyperstructure/ingestor/internal/llmclient"
	"github.com/hyperstructure/ingestor/internal/llmclient/prompts"
)

// ModificationExtractor parses the sentences the Classifier tagged as
// retroactive corrections into Modification records.
type ModificationExtractor struct {
	llm   llmclient.Client
	model string
}

// NewModificationExtractor builds a ModificationExtractor against the
// given chat model.
func NewModificationExtractor(llm llmclient.Client, model string) *ModificationExtractor {
	return &ModificationExtractor{llm: llm, model: model}
}

type rawAffectedFact struct {
	Subjects     []string `json:"subjects"`
	Objects      []string `json:"objects"`
	RelationType string   `json:"relation_type"`
}

type rawModification struct {
	AffectedFact         rawAffectedFact `json:"affected_fact"`
	NewRelationType      *string         `json:"new_relation_type"`
	NewSubjects          []string        `json:"new_subjects"`
	NewObjects           []string        `json:"new_objects"`
	NewTemporalIntervals []rawInterval   `json:"new_temporal_intervals"`
	NewSpatialContexts   []*string       `json:"new_spatial_contexts"`
}

type rawModificationResponse struct {
	Modifications []rawModification `json:"modifications"`
}

// Extract submits modificationText (the sentences the Classifier joined
// under LabelModification) and returns the parsed Modification list. An
// empty input skips the call entirely.
func (m *ModificationExtractor) Extract(ctx context.Context, modificationText string) ([]facts.Modification, error) {
	if strings.TrimSpace(modificationText) == "" {
		return nil, nil
	}

	resp, err := m.llm.Chat(ctx, llmclient.ChatRequest{
		Model: m.model,
		Messages: []llmclient.Message{
			{Role: llmclient.RoleSystem, Content: prompts.ModificationExtractorSystem},
			{Role: llmclient.RoleUser, Content: modificationText},
		},
		ResponseSchema: &llmclient.ResponseSchema{
			Name:   "modifications",
			Schema: prompts.ModificationSchema,
			Strict: true,
		},
	})
	if err != nil {
		return nil, apperrors.UpstreamErrorf(err, "modification extractor chat")
	}

	var parsed rawModificationResponse
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		return nil, apperrors.SchemaViolationErrorf("modification extractor response did not match schema: %v", err)
	}

	out := make([]facts.Modification, 0, len(parsed.Modifications))
	for _, rm := range parsed.Modifications {
		mod, ok := validateModification(rm)
		if !ok {
			continue
		}
		out = append(out, mod)
	}
	return out, nil
}

// validateModification requires at least one subject on the affected
// fact and at least one populated change field; a modification naming no
// actual change is dropped rather than written (mirrors the Structured
// Extractor's placeholder-drop rule).
func validateModification(rm rawModification) (facts.Modification, bool) {
	subjects := cleanList(rm.AffectedFact.Subjects)
	if len(subjects) == 0 {
		return facts.Modification{}, false
	}
	relation := strings.TrimSpace(rm.AffectedFact.RelationType)
	if relation == "" {
		return facts.Modification{}, false
	}

	mod := facts.Modification{
		AffectedFact: facts.AffectedFactRef{
			Subjects:     subjects,
			Objects:      cleanList(rm.AffectedFact.Objects),
			RelationType: relation,
		},
	}

	if rm.NewRelationType != nil {
		if nr := strings.TrimSpace(*rm.NewRelationType); nr != "" {
			mod.NewRelationType = &nr
		}
	}
	mod.NewSubjects = cleanList(rm.NewSubjects)
	mod.NewObjects = cleanList(rm.NewObjects)

	for _, ri := range rm.NewTemporalIntervals {
		mod.NewTemporalIntervals = append(mod.NewTemporalIntervals, facts.TemporalInterval{
			StartTime: cleanBound(ri.StartTime),
			EndTime:   cleanBound(ri.EndTime),
		})
	}
	for _, sc := range rm.NewSpatialContexts {
		if sc == nil {
			continue
		}
		name := strings.TrimSpace(*sc)
		if name == "" || placeholderTokens[strings.ToLower(name)] {
			continue
		}
		mod.NewSpatialContexts = append(mod.NewSpatialContexts, facts.SpatialContext{Name: name, Type: facts.SpatialUnknown})
	}

	changed := mod.NewRelationType != nil || len(mod.NewSubjects) > 0 || len(mod.NewObjects) > 0 ||
		len(mod.NewTemporalIntervals) > 0 || len(mod.NewSpatialContexts) > 0
	if !changed {
		return facts.Modification{}, false
	}

	return mod, true
}
