// Package classify splits input text into sentences and tags each one as
// a regular temporal-fact statement or a retroactive modification.
// A fixed keyword pass runs first; an optional LLM
// refinement pass can override individual tags without ever being
// allowed to invent new sentences.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/hyperstructure/ingestor/internal/llmclient"
	"github.com/hyperstructure/ingestor/internal/llmclient/prompts"
)

// Label is the classification assigned to one sentence.
type Label string

const (
	LabelRegular      Label = "regular"
	LabelModification Label = "modification"
)

// modificationKeywords is the fixed indicator list: any sentence
// containing one of these phrases, case-insensitively, is a candidate
// modification until the optional LLM pass says otherwise.
var modificationKeywords = []string{
	"actually", "in fact", "oops", "my mistake", "update", "correction", "modification",
}

// sentenceSplitter matches the boundary after a sentence-ending
// punctuation mark followed by whitespace.
var sentenceSplitter = regexp.MustCompile(`(?s)(?:[.!?])\s+`)

// Sentence is one classified unit of input text.
type Sentence struct {
	Index int
	Text  string
	Label Label
}

// Classifier splits text and applies the keyword pass, with an optional
// LLM confirmation round.
type Classifier struct {
	llm           llmclient.Client
	model         string
	llmRefinement bool
	logger        *slog.Logger
}

// New builds a Classifier. llm may be nil if llmRefinement is false.
func New(llm llmclient.Client, model string, llmRefinement bool) *Classifier {
	return &Classifier{
		llm:           llm,
		model:         model,
		llmRefinement: llmRefinement,
		logger:        slog.Default().With("component", "classify"),
	}
}

// Split breaks text into trimmed, non-empty sentences. Fragments of
// length 3 or fewer characters are dropped as noise (stray punctuation,
// abbreviation artifacts).
func Split(text string) []string {
	raw := sentenceSplitter.Split(strings.TrimSpace(text), -1)
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if len(s) > 3 {
			out = append(out, s)
		}
	}
	return out
}

// keywordLabel tags one sentence by the fixed indicator list.
func keywordLabel(sentence string) Label {
	lower := strings.ToLower(sentence)
	for _, kw := range modificationKeywords {
		if strings.Contains(lower, kw) {
			return LabelModification
		}
	}
	return LabelRegular
}

// Classify splits text into sentences and labels each one. When
// c.llmRefinement is enabled and an llm client is configured, every
// keyword-derived label is passed through one confirmation call; a
// malformed or short LLM response falls back to the keyword labels
// unchanged rather than failing the whole batch.
func (c *Classifier) Classify(ctx context.Context, text string) ([]Sentence, error) {
	raw := Split(text)
	sentences := make([]Sentence, len(raw))
	for i, s := range raw {
		sentences[i] = Sentence{Index: i, Text: s, Label: keywordLabel(s)}
	}

	if !c.llmRefinement || c.llm == nil || len(sentences) == 0 {
		return sentences, nil
	}

	refined, err := c.refine(ctx, sentences)
	if err != nil {
		c.logger.Warn("llm refinement failed, keeping keyword labels", "error", err)
		return sentences, nil
	}
	return refined, nil
}

func (c *Classifier) refine(ctx context.Context, sentences []Sentence) ([]Sentence, error) {
	var sb strings.Builder
	for _, s := range sentences {
		fmt.Fprintf(&sb, "%d. [%s] %s\n", s.Index+1, s.Label, s.Text)
	}

	resp, err := c.llm.Chat(ctx, llmclient.ChatRequest{
		Model: c.model,
		Messages: []llmclient.Message{
			{Role: llmclient.RoleSystem, Content: prompts.ClassifierRefinementSystem},
			{Role: llmclient.RoleUser, Content: sb.String()},
		},
		ResponseSchema: &llmclient.ResponseSchema{
			Name:   "classifier_labels",
			Schema: prompts.ClassifierLabelsSchema,
			Strict: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("classifier refinement chat: %w", err)
	}

	var parsed struct {
		Labels []string `json:"labels"`
	}
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		return nil, fmt.Errorf("classifier refinement decode: %w", err)
	}
	if len(parsed.Labels) != len(sentences) {
		return nil, fmt.Errorf("classifier refinement label count mismatch: got %d, want %d", len(parsed.Labels), len(sentences))
	}

	out := make([]Sentence, len(sentences))
	for i, s := range sentences {
		label := s.Label
		switch parsed.Labels[i] {
		case string(LabelRegular):
			label = LabelRegular
		case string(LabelModification):
			label = LabelModification
		}
		out[i] = Sentence{Index: s.Index, Text: s.Text, Label: label}
	}
	return out, nil
}

// JoinByLabel concatenates every sentence carrying label, in order,
// rejoined with ". " the way the orchestrator hands regular text to the
// canonicaliser and modification text to the modification extractor.
func JoinByLabel(sentences []Sentence, label Label) string {
	var parts []string
	for _, s := range sentences {
		if s.Label == label {
			parts = append(parts, s.Text)
		}
	}
	return strings.Join(parts, ". ")
}
