package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/charmbracelet/huh"
	"gopkg.in/yaml.v3"

	"github.com/sabercore/saber/pkg/engine"
)

// runConfigEditor is the entry point: load → menu loop → validate → save.
func runConfigEditor(configPath, saberDirPath string) error {
	resolved := resolveConfigPath(configPath, saberDirPath)

	cfg, err := loadRawConfig(resolved)
	if err != nil {
		return err
	}

	for {
		if err := editorMenu(&cfg); err != nil {
			return err
		}

		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Validation error: %v\nReturning to menu.\n", err)

			continue
		}

		break
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	if err := os.WriteFile(resolved, data, 0o600); err != nil {
		return err
	}

	fmt.Printf("Config saved to %s\n", resolved)

	return nil
}

// loadRawConfig reads a YAML config without expanding environment variables,
// preserving ${VAR} references for re-serialization.
func loadRawConfig(path string) (engine.Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-provided configuration
	if err != nil {
		return engine.Config{}, fmt.Errorf("load config: %w", err)
	}

	cfg := engine.DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return engine.Config{}, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

func editorMenu(cfg *engine.Config) error {
	for {
		var choice string
		if err := huh.NewForm(huh.NewGroup(
			huh.NewSelect[string]().
				Title("Edit which section?").
				Options(
					huh.NewOption("Generation parameters", "generation"),
					huh.NewOption("Retrieval settings", "retrieval"),
					huh.NewOption("Providers", "providers"),
					huh.NewOption("Vector index", "index"),
					huh.NewOption("Done", "done"),
				).
				Value(&choice),
		)).Run(); err != nil {
			return err
		}

		var err error
		switch choice {
		case "generation":
			err = wizardGeneration(cfg)
		case "retrieval":
			err = wizardRetrieval(cfg)
		case "providers":
			err = editorProviders(cfg)
		case "index":
			err = wizardIndex(cfg)
		case "done":
			return nil
		}

		if err != nil {
			return err
		}
	}
}

// editorProviders edits one provider's credentials or adds a new provider,
// then re-confirms the default provider and model.
func editorProviders(cfg *engine.Config) error {
	ids := providerIDs(cfg)

	opts := make([]huh.Option[string], 0, len(ids)+1)
	for _, id := range ids {
		opts = append(opts, huh.NewOption(id, id))
	}
	opts = append(opts, huh.NewOption("Add a provider", "add"))

	var choice string
	if err := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().Title("Provider").Options(opts...).Value(&choice),
	)).Run(); err != nil {
		return err
	}

	if choice == "add" {
		p, err := wizardPromptProvider()
		if err != nil {
			return err
		}

		if cfg.Providers == nil {
			cfg.Providers = make(map[string]engine.ProviderConfig)
		}
		cfg.Providers[p.ID] = engine.ProviderConfig{
			APIKey:     p.APIKey,
			BaseURL:    p.BaseURL,
			EmbedModel: p.EmbedModel,
		}

		return editorDefault(cfg)
	}

	pc := cfg.Providers[choice]
	if err := huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("API key env var").Value(&pc.APIKey),
		huh.NewInput().Title("Base URL (empty = default)").Value(&pc.BaseURL),
		huh.NewInput().Title("Embedding model (empty = none)").Value(&pc.EmbedModel),
	)).Run(); err != nil {
		return err
	}
	cfg.Providers[choice] = pc

	return editorDefault(cfg)
}

func editorDefault(cfg *engine.Config) error {
	ids := providerIDs(cfg)

	opts := make([]huh.Option[string], len(ids))
	for i, id := range ids {
		opts[i] = huh.NewOption(id, id)
	}

	if err := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Default provider for new sessions").
			Options(opts...).
			Value(&cfg.ProviderID),
	)).Run(); err != nil {
		return err
	}

	return huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("Model").Value(&cfg.ModelName),
	)).Run()
}

func providerIDs(cfg *engine.Config) []string {
	ids := make([]string, 0, len(cfg.Providers))
	for id := range cfg.Providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids
}
