package engine

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sabercore/saber/pkg/models"
)

// Config is the top-level engine configuration. Generation parameters,
// retrieval settings, and provider credentials all live here; sessions start
// from these values and may adjust their own copy afterwards.
type Config struct {
	ProviderID    string  `yaml:"provider_id"`
	ModelName     string  `yaml:"model_name"`
	Temperature   float64 `yaml:"temperature"`
	MaxTokens     int     `yaml:"max_tokens"`
	ContextWindow int     `yaml:"context_window"`
	TopP          float64 `yaml:"top_p"`

	ChunkSize          int `yaml:"chunk_size"`
	ChunkOverlap       int `yaml:"chunk_overlap"`
	RetrievalK         int `yaml:"retrieval_k"`
	EmbeddingBatchSize int `yaml:"embedding_batch_size"`
	RetryLimit         int `yaml:"retry_limit"`

	// SystemMessage, when set, is prepended to every new session.
	SystemMessage string `yaml:"system_message"`

	// RequestTimeout bounds each provider call, as a duration string
	// (e.g. "90s"). Empty means no per-call deadline.
	RequestTimeout string `yaml:"request_timeout"`

	// SweepSchedule is the cron spec for the re-embedding sweep that retries
	// chunks whose embedding previously failed.
	SweepSchedule string `yaml:"sweep_schedule"`

	Providers map[string]ProviderConfig `yaml:"providers"`
	Index     IndexConfig               `yaml:"index"`
}

// ProviderConfig holds the credentials and endpoint for one provider id.
type ProviderConfig struct {
	APIKey     string `yaml:"api_key"` //nolint:gosec // configuration field, not a hardcoded secret
	BaseURL    string `yaml:"base_url"`
	EmbedModel string `yaml:"embed_model"`
}

// IndexConfig selects the vector index backend.
type IndexConfig struct {
	Backend string       `yaml:"backend"` // "memory" (default) or "qdrant"
	Qdrant  QdrantConfig `yaml:"qdrant"`
}

// QdrantConfig holds connection settings for a Qdrant server.
type QdrantConfig struct {
	URL        string `yaml:"url"`
	Collection string `yaml:"collection"`
	APIKey     string `yaml:"api_key"` //nolint:gosec // configuration field, not a hardcoded secret
	Dimension  int    `yaml:"dimension"`
}

// DefaultConfig returns a Config with every optional knob at its default.
// Loading a file overlays the file's keys on top of these values.
func DefaultConfig() Config {
	return Config{
		Temperature:        0.7,
		MaxTokens:          1024,
		ContextWindow:      128000,
		ChunkSize:          800,
		ChunkOverlap:       120,
		RetrievalK:         4,
		EmbeddingBatchSize: 16,
		RetryLimit:         3,
		SweepSchedule:      "@every 15m",
		Index:              IndexConfig{Backend: "memory"},
	}
}

// LoadConfig reads a YAML file and returns a Config.
// Environment variables referenced as ${VAR} or $VAR in the YAML are expanded
// before parsing. This allows API keys and other secrets to be kept in
// environment variables (e.g. loaded from a .env file) rather than committed
// in the config.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-provided configuration, not user input
	if err != nil {
		return Config{}, fmt.Errorf("engine: load config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("engine: parse config: %w", err)
	}

	return cfg, nil
}

// Parameters returns the generation parameter set the config describes.
func (c Config) Parameters() models.Parameters {
	return models.Parameters{
		Provider:      c.ProviderID,
		Model:         c.ModelName,
		Temperature:   c.Temperature,
		MaxTokens:     c.MaxTokens,
		ContextWindow: c.ContextWindow,
		TopP:          c.TopP,
	}
}

// requestTimeout parses the RequestTimeout duration string. Empty means zero.
func (c Config) requestTimeout() (time.Duration, error) {
	if c.RequestTimeout == "" {
		return 0, nil
	}
	return time.ParseDuration(c.RequestTimeout)
}

// Validate checks that the configuration is internally consistent. Invalid
// values are rejected here, before any component is built, so a running
// engine never sees them.
func (c Config) Validate() error {
	if c.ProviderID == "" {
		return fmt.Errorf("engine: config: provider_id is required")
	}
	if len(c.Providers) == 0 {
		return fmt.Errorf("engine: config: at least one provider is required")
	}
	if _, ok := c.Providers[c.ProviderID]; !ok {
		return fmt.Errorf("engine: config: provider_id %q not found in providers", c.ProviderID)
	}
	if c.ModelName == "" {
		return fmt.Errorf("engine: config: model_name is required")
	}

	if c.Temperature < 0 || c.Temperature > models.MaxTemperature {
		return fmt.Errorf("engine: config: temperature must be between 0 and %g", models.MaxTemperature)
	}
	if c.TopP < 0 || c.TopP > 1 {
		return fmt.Errorf("engine: config: top_p must be between 0 and 1")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("engine: config: max_tokens must be positive")
	}
	if c.ContextWindow <= 0 {
		return fmt.Errorf("engine: config: context_window must be positive")
	}
	if c.MaxTokens >= c.ContextWindow {
		return fmt.Errorf("engine: config: max_tokens %d must be below context_window %d", c.MaxTokens, c.ContextWindow)
	}

	if c.ChunkSize <= 0 {
		return fmt.Errorf("engine: config: chunk_size must be positive")
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("engine: config: chunk_overlap must not be negative")
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("engine: config: chunk_overlap %d must be below chunk_size %d", c.ChunkOverlap, c.ChunkSize)
	}
	if c.RetrievalK <= 0 {
		return fmt.Errorf("engine: config: retrieval_k must be positive")
	}
	if c.EmbeddingBatchSize <= 0 {
		return fmt.Errorf("engine: config: embedding_batch_size must be positive")
	}
	if c.RetryLimit < 0 {
		return fmt.Errorf("engine: config: retry_limit must not be negative")
	}

	if d, err := c.requestTimeout(); err != nil {
		return fmt.Errorf("engine: config: invalid request_timeout %q: %w", c.RequestTimeout, err)
	} else if c.RequestTimeout != "" && d <= 0 {
		return fmt.Errorf("engine: config: request_timeout must be positive")
	}

	switch c.Index.Backend {
	case "", "memory":
	case "qdrant":
		if c.Index.Qdrant.URL == "" {
			return fmt.Errorf("engine: config: index backend qdrant: url is required")
		}
		if c.Index.Qdrant.Collection == "" {
			return fmt.Errorf("engine: config: index backend qdrant: collection is required")
		}
	default:
		return fmt.Errorf("engine: config: unknown index backend %q", c.Index.Backend)
	}

	return nil
}
