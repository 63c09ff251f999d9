package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/hyperstructure/ingestor/internal/canon"
	"github.com/hyperstructure/ingestor/internal/causal"
	"github.com/hyperstructure/ingestor/internal/classify"
	"github.com/hyperstructure/ingestor/internal/config"
	"github.com/hyperstructure/ingestor/internal/extract"
	"github.com/hyperstructure/ingestor/internal/geocode"
	"github.com/hyperstructure/ingestor/internal/graph"
	"github.com/hyperstructure/ingestor/internal/graphwriter"
	"github.com/hyperstructure/ingestor/internal/ingestion"
	"github.com/hyperstructure/ingestor/internal/llmclient"
	"github.com/hyperstructure/ingestor/internal/qa"
	"github.com/hyperstructure/ingestor/internal/spatialexpand"
)

// services bundles every long-lived component the subcommands wire
// together, built once from cfg.
type services struct {
	graphClient  *graph.Client
	orchestrator *ingestion.Orchestrator
	writer       *graphwriter.Writer
	expander     *spatialexpand.Expander
	geocoder     *geocode.Geocoder
	qaLoop       *qa.Loop
	llm          llmclient.Client
}

// buildServices wires every pipeline stage against cfg, constructing
// dependencies directly in main rather than through a DI container.
func buildServices(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*services, error) {
	graphClient, err := graph.NewClient(ctx, cfg.Neo4j.URI, cfg.Neo4j.Username, cfg.Neo4j.Password, cfg.Neo4j.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to neo4j: %w", err)
	}
	if err := graphClient.InitSchema(ctx); err != nil {
		return nil, fmt.Errorf("init graph schema: %w", err)
	}

	llmBackend, err := buildLLMClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	nominatim := geocode.NewNominatimProvider("hyperctl/" + Version)
	if cfg.Geocoder.ProviderURL != "" {
		nominatim.BaseURL = cfg.Geocoder.ProviderURL
	}
	geocoder, err := geocode.New(nominatim, nominatim, 1, geocodeCachePath())
	if err != nil {
		return nil, fmt.Errorf("build geocoder: %w", err)
	}

	classifier := classify.New(llmBackend, cfg.OpenAI.ExtractorModel, cfg.Pipeline.ClassifierLLMRefinement)
	canonicaliser := canon.New(llmBackend, cfg.OpenAI.CanonicaliserModel)
	extractor := extract.New(llmBackend, cfg.OpenAI.ExtractorModel)
	modExtractor := extract.NewModificationExtractor(llmBackend, cfg.OpenAI.ExtractorModel)
	expander := spatialexpand.New(geocoder)
	writer := graphwriter.New(graphClient)
	causalInfer := causal.New(llmBackend, cfg.OpenAI.ExtractorModel)

	orchestrator := ingestion.New(
		classifier,
		canonicaliser,
		extractor,
		modExtractor,
		expander,
		writer,
		causalInfer,
		log,
		cfg.Pipeline.MaxConcurrentSentences,
	)

	qaLoop := qa.New(llmBackend, cfg.OpenAI.ExtractorModel, graphClient)

	return &services{
		graphClient:  graphClient,
		orchestrator: orchestrator,
		writer:       writer,
		expander:     expander,
		geocoder:     geocoder,
		qaLoop:       qaLoop,
		llm:          llmBackend,
	}, nil
}

// buildLLMClient selects OpenAI (primary) or Gemini (secondary):
// Gemini is used when an OpenAI key is absent and a Gemini key is
// present, otherwise OpenAI is the default backend.
func buildLLMClient(ctx context.Context, cfg *config.Config) (llmclient.Client, error) {
	limiter := llmclient.NewRateLimiter(llmclient.DefaultRPM, llmclient.DefaultTPM)

	if cfg.OpenAI.APIKey == "" && cfg.Gemini.APIKey != "" {
		return llmclient.NewGeminiClient(ctx, cfg.Gemini.APIKey, limiter)
	}
	if cfg.OpenAI.APIKey == "" {
		return nil, fmt.Errorf("no LLM backend configured: set OPENAI_API_KEY or GEMINI_API_KEY")
	}
	return llmclient.NewOpenAIClient(cfg.OpenAI.APIKey, limiter), nil
}

// geocodeCachePath returns the on-disk bbolt cache location under the
// user's config directory, matching config.Load's ".hyperstructure" home.
func geocodeCachePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	dir := filepath.Join(homeDir, ".hyperstructure")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ""
	}
	return filepath.Join(dir, "geocode_cache.db")
}
