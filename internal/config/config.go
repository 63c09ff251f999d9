// Package config loads service configuration from defaults, a YAML file and
// environment variables (including ones loaded from .env files), later
// sources overriding earlier ones. For the Neo4j password and the OpenAI API
// key the OS keychain is consulted only when neither the environment nor the
// file sets a value.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the ingestion service.
type Config struct {
	Neo4j    Neo4jConfig    `yaml:"neo4j"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Gemini   GeminiConfig   `yaml:"gemini"`
	Geocoder GeocoderConfig `yaml:"geocoder"`
	HTTP     HTTPConfig     `yaml:"http"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

type Neo4jConfig struct {
	URI      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type OpenAIConfig struct {
	APIKey             string `yaml:"api_key"`
	CanonicaliserModel string `yaml:"canonicaliser_model"` // e.g. gpt-5-mini
	ExtractorModel     string `yaml:"extractor_model"`     // e.g. gpt-5-nano
}

type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type GeocoderConfig struct {
	ProviderURL string `yaml:"provider_url"`
	APIKey      string `yaml:"api_key"`
}

type HTTPConfig struct {
	Addr           string        `yaml:"addr"`
	FrontendOrigin []string      `yaml:"frontend_origin"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type PipelineConfig struct {
	MaxConcurrentSentences int           `yaml:"max_concurrent_sentences"`
	UpstreamTimeout        time.Duration `yaml:"upstream_timeout"`
	SSEPollInterval        time.Duration `yaml:"sse_poll_interval"`
	// DefaultChunkSize is read from the config file but nothing uses it;
	// the stream endpoint's default chunk size is the constant
	// defaultChunkSize (3) in internal/httpapi.
	DefaultChunkSize int `yaml:"default_chunk_size"`
	// ClassifierLLMRefinement enables the optional LLM confirmation pass
	// over the keyword-based modification/regular split.
	ClassifierLLMRefinement bool `yaml:"classifier_llm_refinement"`
}

// Default returns the baseline configuration before env/file overrides.
func Default() *Config {
	return &Config{
		Neo4j: Neo4jConfig{
			Database: "neo4j",
		},
		OpenAI: OpenAIConfig{
			CanonicaliserModel: "gpt-5-mini",
			ExtractorModel:     "gpt-5-nano",
		},
		Gemini: GeminiConfig{
			Model: "gemini-2.0-flash",
		},
		HTTP: HTTPConfig{
			Addr:           ":8080",
			RequestTimeout: 60 * time.Second,
		},
		Pipeline: PipelineConfig{
			MaxConcurrentSentences: 16,
			UpstreamTimeout:        60 * time.Second,
			SSEPollInterval:        250 * time.Millisecond,
		},
	}
}

// Load reads configuration from the given path (or the standard search
// locations if empty), layering env var and keychain overrides on top.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	v.SetDefault("neo4j", cfg.Neo4j)
	v.SetDefault("openai", cfg.OpenAI)
	v.SetDefault("gemini", cfg.Gemini)
	v.SetDefault("geocoder", cfg.Geocoder)
	v.SetDefault("http", cfg.HTTP)
	v.SetDefault("pipeline", cfg.Pipeline)

	v.SetEnvPrefix("HYPERSTRUCTURE")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".hyperstructure")
		v.AddConfigPath(".")
		if homeDir, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".hyperstructure"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// loadEnvFiles loads .env files in order of precedence, ignoring any that
// don't exist.
func loadEnvFiles() {
	envFiles := []string{".env.local", ".env", ".env.example"}
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			if err := godotenv.Load(file); err == nil {
				continue
			}
		}
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		homeEnvFile := filepath.Join(homeDir, ".hyperstructure", ".env")
		if _, err := os.Stat(homeEnvFile); err == nil {
			godotenv.Load(homeEnvFile)
		}
	}
}

// applyEnvOverrides applies the NEO4J_*/OPENAI_*/GEMINI_*/FRONTEND_ORIGIN
// environment variables, plus service-level knobs, on top of whatever the
// file/defaults set.
// Precedence for secrets: env var > config file > keychain.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NEO4J_URI"); v != "" {
		cfg.Neo4j.URI = v
	}
	if v := os.Getenv("NEO4J_USERNAME"); v != "" {
		cfg.Neo4j.Username = v
	}
	if v := os.Getenv("NEO4J_DATABASE"); v != "" {
		cfg.Neo4j.Database = v
	}

	if v := os.Getenv("NEO4J_PASSWORD"); v != "" {
		cfg.Neo4j.Password = v
	} else if cfg.Neo4j.Password == "" {
		km := NewKeyringManager()
		if km.IsAvailable() {
			if pw, err := km.GetNeo4jPassword(); err == nil && pw != "" {
				cfg.Neo4j.Password = pw
			}
		}
	}

	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAI.APIKey = v
	} else if cfg.OpenAI.APIKey == "" {
		km := NewKeyringManager()
		if km.IsAvailable() {
			if key, err := km.GetAPIKey(); err == nil && key != "" {
				cfg.OpenAI.APIKey = key
			}
		}
	}

	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Gemini.APIKey = v
	}

	if v := os.Getenv("GEOCODER_PROVIDER_URL"); v != "" {
		cfg.Geocoder.ProviderURL = v
	}
	if v := os.Getenv("GEOCODER_API_KEY"); v != "" {
		cfg.Geocoder.APIKey = v
	}

	if v := os.Getenv("FRONTEND_ORIGIN"); v != "" {
		cfg.HTTP.FrontendOrigin = splitAndTrim(v, ",")
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}

	if v := os.Getenv("PIPELINE_MAX_CONCURRENT_SENTENCES"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			cfg.Pipeline.MaxConcurrentSentences = n
		}
	}
}

func splitAndTrim(s, sep string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || string(s[i]) == sep {
			part := trimSpace(s[start:i])
			if part != "" {
				out = append(out, part)
			}
			start = i + 1
		}
	}
	return out
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t') {
		end--
	}
	return s[start:end]
}

func parsePositiveInt(s string) (int, error) {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("invalid integer: %s", s)
		}
		n = n*10 + int(r-'0')
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive: %s", s)
	}
	return n, nil
}

// Save writes the configuration back out as YAML.
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	v.Set("neo4j", c.Neo4j)
	v.Set("openai", c.OpenAI)
	v.Set("gemini", c.Gemini)
	v.Set("geocoder", c.Geocoder)
	v.Set("http", c.HTTP)
	v.Set("pipeline", c.Pipeline)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
