package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
)

// jsonSchema adapts a plain map to go-openai's Marshaler-based schema
// field without pulling in a second schema-definition dependency.
type jsonSchema map[string]any

func (s jsonSchema) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any(s))
}

// OpenAIClient is the primary LLM backend, a thin wrapper over
// go-openai's chat-completion call: messages in, response_format
// passthrough, full assistant message out including tool_calls.
type OpenAIClient struct {
	client  *openai.Client
	limiter *RateLimiter
	logger  *slog.Logger
}

// NewOpenAIClient builds a client against the default OpenAI API base URL.
func NewOpenAIClient(apiKey string, limiter *RateLimiter) *OpenAIClient {
	return &OpenAIClient{
		client:  openai.NewClient(apiKey),
		limiter: limiter,
		logger:  slog.Default().With("component", "llmclient.openai"),
	}
}

func (c *OpenAIClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, EstimateTokens(req.Messages)); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		})
	}

	creq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
	}
	if req.Temperature != nil {
		creq.Temperature = float32(*req.Temperature)
	}

	switch {
	case req.ResponseSchema != nil:
		creq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   req.ResponseSchema.Name,
				Schema: jsonSchema(req.ResponseSchema.Schema),
				Strict: req.ResponseSchema.Strict,
			},
		}
	case req.JSONObject:
		creq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	if len(req.Tools) > 0 {
		tools := make([]openai.Tool, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, openai.Tool{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		creq.Tools = tools
		if req.ToolChoice != "" {
			creq.ToolChoice = req.ToolChoice
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai chat completion: no choices returned")
	}

	msg := resp.Choices[0].Message
	out := &ChatResponse{
		Content: msg.Content,
		Model:   resp.Model,
	}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}
