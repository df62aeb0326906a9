package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
	"gopkg.in/yaml.v3"

	"github.com/sabercore/saber/pkg/engine"
)

// wizardProviderEntry is the working state for one provider prompt.
type wizardProviderEntry struct {
	ID         string
	APIKey     string //nolint:gosec // env var reference, not a secret
	BaseURL    string
	EmbedModel string
}

type providerDefault struct {
	APIKey     string //nolint:gosec // env var reference template, not a secret
	Model      string
	EmbedModel string
}

//nolint:gosec // env var reference templates, not hardcoded secrets
var providerDefaults = map[string]providerDefault{
	"openai":    {APIKey: "${OPENAI_API_KEY}", Model: "gpt-4o-mini", EmbedModel: "text-embedding-3-small"},
	"anthropic": {APIKey: "${ANTHROPIC_API_KEY}", Model: "claude-sonnet-4-20250514"},
	"gemini":    {APIKey: "${GEMINI_API_KEY}", Model: "gemini-2.0-flash", EmbedModel: "text-embedding-004"},
	"grok":      {APIKey: "${XAI_API_KEY}", Model: "grok-3-mini-fast-beta"},
}

// runWizard walks through provider, generation, retrieval, and index setup
// and returns the config as YAML. Validation happens at engine startup, so
// the wizard stays forgiving.
func runWizard() ([]byte, error) {
	cfg := engine.DefaultConfig()
	cfg.Providers = make(map[string]engine.ProviderConfig)

	var ids []string
	for {
		p, err := wizardPromptProvider()
		if err != nil {
			return nil, err
		}

		if _, seen := cfg.Providers[p.ID]; !seen {
			ids = append(ids, p.ID)
		}
		cfg.Providers[p.ID] = engine.ProviderConfig{
			APIKey:     p.APIKey,
			BaseURL:    p.BaseURL,
			EmbedModel: p.EmbedModel,
		}

		var more bool
		if err := huh.NewForm(huh.NewGroup(
			huh.NewConfirm().Title("Add another provider?").Value(&more),
		)).Run(); err != nil {
			return nil, err
		}

		if !more {
			break
		}
	}

	if err := wizardDefaultProvider(&cfg, ids); err != nil {
		return nil, err
	}

	if err := wizardGeneration(&cfg); err != nil {
		return nil, err
	}

	if err := wizardRetrieval(&cfg); err != nil {
		return nil, err
	}

	if err := wizardIndex(&cfg); err != nil {
		return nil, err
	}

	return yaml.Marshal(cfg)
}

func wizardPromptProvider() (wizardProviderEntry, error) {
	var p wizardProviderEntry

	var kind string
	if err := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Provider").
			Options(
				huh.NewOption("OpenAI", "openai"),
				huh.NewOption("Anthropic", "anthropic"),
				huh.NewOption("Gemini", "gemini"),
				huh.NewOption("Grok", "grok"),
			).
			Value(&kind),
	)).Run(); err != nil {
		return p, err
	}

	defaults := providerDefaults[kind]
	p.ID = kind
	p.APIKey = defaults.APIKey
	p.EmbedModel = defaults.EmbedModel

	if err := huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("API key env var").Value(&p.APIKey),
		huh.NewInput().Title("Base URL (empty = default)").Value(&p.BaseURL),
		huh.NewInput().Title("Embedding model (empty = none)").Value(&p.EmbedModel),
	)).Run(); err != nil {
		return p, err
	}

	return p, nil
}

func wizardDefaultProvider(cfg *engine.Config, ids []string) error {
	if len(ids) == 0 {
		return fmt.Errorf("no providers configured")
	}

	cfg.ProviderID = ids[0]

	if len(ids) > 1 {
		opts := make([]huh.Option[string], len(ids))
		for i, id := range ids {
			opts[i] = huh.NewOption(id, id)
		}

		if err := huh.NewForm(huh.NewGroup(
			huh.NewSelect[string]().
				Title("Which provider should new sessions use?").
				Options(opts...).
				Value(&cfg.ProviderID),
		)).Run(); err != nil {
			return err
		}
	}

	cfg.ModelName = providerDefaults[cfg.ProviderID].Model

	return huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("Model").Value(&cfg.ModelName),
	)).Run()
}

func wizardGeneration(cfg *engine.Config) error {
	temperature := strconv.FormatFloat(cfg.Temperature, 'g', -1, 64)
	topP := strconv.FormatFloat(cfg.TopP, 'g', -1, 64)
	maxTokens := strconv.Itoa(cfg.MaxTokens)
	contextWindow := strconv.Itoa(cfg.ContextWindow)

	if err := huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("Temperature (0 to 2)").Value(&temperature).Validate(validateFloat),
		huh.NewInput().Title("Top-p (0 to 1, 0 = provider default)").Value(&topP).Validate(validateFloat),
		huh.NewInput().Title("Max completion tokens").Value(&maxTokens).Validate(validatePositiveInt),
		huh.NewInput().Title("Context window (tokens)").Value(&contextWindow).Validate(validatePositiveInt),
		huh.NewText().Title("System message (optional)").Value(&cfg.SystemMessage),
	)).Run(); err != nil {
		return err
	}

	cfg.Temperature, _ = strconv.ParseFloat(temperature, 64)
	cfg.TopP, _ = strconv.ParseFloat(topP, 64)
	cfg.MaxTokens, _ = strconv.Atoi(maxTokens)
	cfg.ContextWindow, _ = strconv.Atoi(contextWindow)

	return nil
}

func wizardRetrieval(cfg *engine.Config) error {
	chunkSize := strconv.Itoa(cfg.ChunkSize)
	chunkOverlap := strconv.Itoa(cfg.ChunkOverlap)
	retrievalK := strconv.Itoa(cfg.RetrievalK)
	batchSize := strconv.Itoa(cfg.EmbeddingBatchSize)
	retryLimit := strconv.Itoa(cfg.RetryLimit)

	if err := huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("Chunk size (characters)").Value(&chunkSize).Validate(validatePositiveInt),
		huh.NewInput().Title("Chunk overlap (characters)").Value(&chunkOverlap).Validate(validateNonNegativeInt),
		huh.NewInput().Title("Retrieved chunks per question").Value(&retrievalK).Validate(validatePositiveInt),
		huh.NewInput().Title("Embedding batch size").Value(&batchSize).Validate(validatePositiveInt),
		huh.NewInput().Title("Retries on throttled calls (0 = none)").Value(&retryLimit).Validate(validateNonNegativeInt),
		huh.NewInput().Title("Per-call timeout (e.g. 90s, empty = none)").Value(&cfg.RequestTimeout).Validate(validateDuration),
	)).Run(); err != nil {
		return err
	}

	cfg.ChunkSize, _ = strconv.Atoi(chunkSize)
	cfg.ChunkOverlap, _ = strconv.Atoi(chunkOverlap)
	cfg.RetrievalK, _ = strconv.Atoi(retrievalK)
	cfg.EmbeddingBatchSize, _ = strconv.Atoi(batchSize)
	cfg.RetryLimit, _ = strconv.Atoi(retryLimit)

	return nil
}

func wizardIndex(cfg *engine.Config) error {
	if err := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Vector index backend").
			Options(
				huh.NewOption("In-memory (rebuilt on start)", "memory"),
				huh.NewOption("Qdrant server", "qdrant"),
			).
			Value(&cfg.Index.Backend),
	)).Run(); err != nil {
		return err
	}

	if cfg.Index.Backend != "qdrant" {
		return nil
	}

	if cfg.Index.Qdrant.URL == "" {
		cfg.Index.Qdrant.URL = "http://localhost:6333"
	}
	if cfg.Index.Qdrant.Collection == "" {
		cfg.Index.Qdrant.Collection = "saber"
	}
	dim := cfg.Index.Qdrant.Dimension
	if dim == 0 {
		dim = 1536
	}
	dimension := strconv.Itoa(dim)

	if err := huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("Qdrant URL").Value(&cfg.Index.Qdrant.URL),
		huh.NewInput().Title("Collection").Value(&cfg.Index.Qdrant.Collection),
		huh.NewInput().Title("API key env var (empty = none)").Value(&cfg.Index.Qdrant.APIKey),
		huh.NewInput().Title("Vector dimension").Value(&dimension).Validate(validatePositiveInt),
	)).Run(); err != nil {
		return err
	}

	cfg.Index.Qdrant.Dimension, _ = strconv.Atoi(dimension)

	return nil
}

func validatePositiveInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fmt.Errorf("must be a positive integer")
	}

	return nil
}

func validateNonNegativeInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return fmt.Errorf("must be a non-negative integer")
	}

	return nil
}

func validateFloat(s string) error {
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return fmt.Errorf("must be a number")
	}

	return nil
}

func validateDuration(s string) error {
	if s == "" {
		return nil
	}

	if _, err := time.ParseDuration(s); err != nil {
		return fmt.Errorf("must be a valid duration (e.g. 1s, 500ms)")
	}

	return nil
}
