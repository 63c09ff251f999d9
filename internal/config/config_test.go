package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "neo4j", cfg.Neo4j.Database)
	assert.Equal(t, "gpt-5-mini", cfg.OpenAI.CanonicaliserModel)
	assert.Equal(t, "gpt-5-nano", cfg.OpenAI.ExtractorModel)
	assert.Equal(t, 16, cfg.Pipeline.MaxConcurrentSentences)
}

func TestApplyEnvOverridesReadsNeo4jAndOpenAI(t *testing.T) {
	t.Setenv("NEO4J_URI", "bolt://localhost:7687")
	t.Setenv("NEO4J_USERNAME", "neo4j")
	t.Setenv("NEO4J_PASSWORD", "secret")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("FRONTEND_ORIGIN", "http://localhost:3000, http://localhost:5173")

	cfg := Default()
	applyEnvOverrides(cfg)

	require.Equal(t, "bolt://localhost:7687", cfg.Neo4j.URI)
	require.Equal(t, "neo4j", cfg.Neo4j.Username)
	require.Equal(t, "secret", cfg.Neo4j.Password)
	require.Equal(t, "sk-test", cfg.OpenAI.APIKey)
	require.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.HTTP.FrontendOrigin)
}

func TestSplitAndTrim(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, splitAndTrim("a, b,c", ","))
	assert.Equal(t, []string{"only"}, splitAndTrim("only", ","))
	assert.Nil(t, splitAndTrim("", ","))
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "(not set)", MaskAPIKey(""))
	assert.Equal(t, "***", MaskAPIKey("short"))
	assert.Equal(t, "sk-proj...f789", MaskAPIKey("sk-proj-abcdef789"))
}

func TestLoadWithoutConfigFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(wd)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "neo4j", cfg.Neo4j.Database)
}
