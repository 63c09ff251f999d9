// Package canon rewrites one sentence at a time into the colon-delimited
// canonical form the structured extractor depends on, resolving pronouns
// and relative time against the surrounding passage.
package canon

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hyperstructure/ingestor/internal/llmclient"
	"github.com/hyperstructure/ingestor/internal/llmclient/prompts"
)

// Canonicaliser turns raw sentences into one or more canonical sentences.
type Canonicaliser struct {
	llm    llmclient.Client
	model  string
	logger *slog.Logger
	nowFn  func() time.Time
}

// New builds a Canonicaliser against the given chat model.
func New(llm llmclient.Client, model string) *Canonicaliser {
	return &Canonicaliser{
		llm:    llm,
		model:  model,
		logger: slog.Default().With("component", "canon"),
		nowFn:  time.Now,
	}
}

// Canonicalise rewrites sentence using surroundingText for pronoun and
// disambiguation resolution, returning one canonical sentence per line
// the model emitted. A call that returns no lines is treated as a
// schema/upstream failure by the caller, not silently dropped here.
func (c *Canonicaliser) Canonicalise(ctx context.Context, sentence, surroundingText string) ([]string, error) {
	nowUTC := c.nowFn().UTC().Format("2006-01-02T15:04:05")

	resp, err := c.llm.Chat(ctx, llmclient.ChatRequest{
		Model: c.model,
		Messages: []llmclient.Message{
			{Role: llmclient.RoleSystem, Content: prompts.CanonicaliserSystem},
			{Role: llmclient.RoleUser, Content: prompts.CanonicaliserUser(sentence, surroundingText, nowUTC)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("canonicaliser chat: %w", err)
	}

	var lines []string
	for _, line := range strings.Split(resp.Content, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, nil
}
