package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"google.golang.org/genai"
)

// GeminiClient is the secondary LLM backend, selectable in place of
// OpenAIClient via config. This service uses Gemini strictly as an
// alternate chat-completion backend, never for multimodal input.
type GeminiClient struct {
	client  *genai.Client
	limiter *RateLimiter
	logger  *slog.Logger
}

// NewGeminiClient builds a client against the public Gemini API.
func NewGeminiClient(ctx context.Context, apiKey string, limiter *RateLimiter) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiClient{
		client:  client,
		limiter: limiter,
		logger:  slog.Default().With("component", "llmclient.gemini"),
	}, nil
}

func (c *GeminiClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, EstimateTokens(req.Messages)); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}
	}

	var systemText string
	var contents []*genai.Content
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			if systemText != "" {
				systemText += "\n\n"
			}
			systemText += m.Content
		case RoleUser:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		}
	}

	cfg := &genai.GenerateContentConfig{}
	if systemText != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemText, genai.RoleUser)
	}
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		cfg.Temperature = &t
	}
	if req.ResponseSchema != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = schemaToGenai(req.ResponseSchema.Schema)
	} else if req.JSONObject {
		cfg.ResponseMIMEType = "application/json"
	}

	result, err := c.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}

	return &ChatResponse{
		Content: result.Text(),
		Model:   req.Model,
	}, nil
}

// schemaToGenai converts the caller's plain JSON-schema map into genai's
// typed Schema by round-tripping through JSON — good enough for the
// object/string/array/number shapes this service's prompts use.
func schemaToGenai(schema map[string]any) *genai.Schema {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var out genai.Schema
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return &out
}
