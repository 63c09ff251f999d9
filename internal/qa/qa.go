// Package qa implements the function-calling question-answering loop
// POST /api/query/ask and POST /api/query/ask_multi expose:
// tool-select, execute, validate, bounded by max_loops.
package qa

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hyperstructure/ingestor/internal/classify"
	apperrors "github.com/hyperstructure/ingestor/internal/errors"
	"github.com/hyperstructure/ingestor/internal/geospatial"
	"github.com/hyperstructure/ingestor/internal/graph"
	"github.com/hyperstructure/ingestor/internal/llmclient"
	"github.com/hyperstructure/ingestor/internal/llmclient/prompts"
)

// QueryClient is the subset of *graph.Client the tool executor needs.
type QueryClient interface {
	RunRead(ctx context.Context, operation, query string, params map[string]any) ([]map[string]any, error)
	QuerySpatiotemporal(ctx context.Context, q graph.SpatiotemporalQuery) ([]graph.HyperedgeRecord, error)
	QueryBySpatialArea(ctx context.Context, areaRing geospatial.Ring) ([]graph.HyperedgeRecord, error)
}

// TraceEntry records one loop iteration's tool call and result, returned
// to the caller for transparency.
type TraceEntry struct {
	Loop   int            `json:"loop"`
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args"`
	Result map[string]any `json:"result"`
}

// Result is one question's outcome.
type Result struct {
	Valid      bool         `json:"valid"`
	Descriptor string       `json:"descriptor"`
	Trace      []TraceEntry `json:"tool_trace"`
}

// validationResponse is the validator call's decoded JSON body.
type validationResponse struct {
	Valid      bool   `json:"valid"`
	Descriptor string `json:"descriptor"`
}

// MultiResult pairs one sentence of a multi-question input with its
// Result.
type MultiResult struct {
	Question string `json:"question"`
	Result
}

// Loop runs the bounded tool-select/execute/validate cycle against an
// LLM backend and a read-only graph client.
type Loop struct {
	llm    llmclient.Client
	model  string
	graph  QueryClient
	logger *slog.Logger
}

// New builds a Loop.
func New(llm llmclient.Client, model string, graphClient QueryClient) *Loop {
	return &Loop{llm: llm, model: model, graph: graphClient, logger: slog.Default().With("component", "qa")}
}

// clampLoops bounds the iteration budget to [1, 5].
func clampLoops(n int) int {
	if n < 1 {
		return 1
	}
	if n > 5 {
		return 5
	}
	return n
}

// Ask runs the loop once for a single question, backing POST
// /api/query/ask.
func (l *Loop) Ask(ctx context.Context, message string, maxLoops int) (*Result, error) {
	return l.run(ctx, message, "", clampLoops(maxLoops))
}

// AskMulti splits text into sentences using the Classifier's sentence
// splitter and runs the loop once per sentence, carrying the full text as
// extra context so cross-sentence references still resolve.
func (l *Loop) AskMulti(ctx context.Context, text string, maxLoops int) ([]MultiResult, error) {
	loops := clampLoops(maxLoops)
	sentences := classify.Split(text)

	out := make([]MultiResult, 0, len(sentences))
	for _, s := range sentences {
		res, err := l.run(ctx, s, text, loops)
		if err != nil {
			return nil, err
		}
		out = append(out, MultiResult{Question: s, Result: *res})
	}
	return out, nil
}

// run is the shared tool-select -> execute -> validate cycle, ported
// verbatim in shape from _run_function_calling_loop: on each iteration the
// model is offered the tool set with tool_choice "auto"; no tool call ends
// the loop as invalid; a validator call checks whether the tool result
// answered the question, and a valid verdict ends the loop early.
func (l *Loop) run(ctx context.Context, message, fullContext string, loops int) (*Result, error) {
	messages := []llmclient.Message{
		{Role: llmclient.RoleSystem, Content: prompts.QASystem},
		{Role: llmclient.RoleUser, Content: message},
	}
	if fullContext != "" {
		messages = append(messages, llmclient.Message{Role: llmclient.RoleSystem, Content: "Full passage context:\n" + fullContext})
	}

	var trace []TraceEntry
	var lastDescriptor string

	for i := 1; i <= loops; i++ {
		resp, err := l.llm.Chat(ctx, llmclient.ChatRequest{
			Model:      l.model,
			Messages:   messages,
			Tools:      prompts.QATools,
			ToolChoice: "auto",
		})
		if err != nil {
			return nil, apperrors.UpstreamErrorf(err, "qa loop tool selection")
		}
		if len(resp.ToolCalls) == 0 {
			return &Result{Valid: false, Descriptor: "Model did not select a tool", Trace: trace}, nil
		}

		call := resp.ToolCalls[0]
		var args map[string]any
		if call.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
				args = map[string]any{}
			}
		}

		result := l.executeTool(ctx, call.Name, args)
		trace = append(trace, TraceEntry{Loop: i, Tool: call.Name, Args: args, Result: result})

		resultJSON, err := json.Marshal(map[string]any{"tool": call.Name, "args": args, "result": result})
		if err != nil {
			return nil, fmt.Errorf("marshal tool result for validation: %w", err)
		}

		validation, err := l.llm.Chat(ctx, llmclient.ChatRequest{
			Model: l.model,
			Messages: []llmclient.Message{
				{Role: llmclient.RoleSystem, Content: prompts.QAValidatorSystem},
				{Role: llmclient.RoleUser, Content: message},
				{Role: llmclient.RoleSystem, Content: string(resultJSON)},
			},
			ResponseSchema: &llmclient.ResponseSchema{
				Name:   "qa_validation",
				Schema: prompts.QAValidationSchema,
				Strict: true,
			},
		})

		var valid bool
		var descriptor string
		if err != nil {
			descriptor = "Validator call failed"
		} else {
			var parsed validationResponse
			if jerr := json.Unmarshal([]byte(validation.Content), &parsed); jerr != nil {
				descriptor = "Validator returned invalid JSON"
			} else {
				valid = parsed.Valid
				descriptor = parsed.Descriptor
			}
		}

		if valid {
			return &Result{Valid: true, Descriptor: descriptor, Trace: trace}, nil
		}
		lastDescriptor = descriptor

		// Feed the tool result back so the next loop iteration can pick a
		// different tool or refine arguments.
		messages = append(messages, llmclient.Message{Role: llmclient.RoleSystem, Content: string(resultJSON)})
	}

	if lastDescriptor == "" {
		lastDescriptor = "No valid answer found"
	}
	return &Result{Valid: false, Descriptor: lastDescriptor, Trace: trace}, nil
}
