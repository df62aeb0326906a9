// Package models defines the generation parameter set and the provider
// capability descriptor shared across saber.
package models

import (
	"fmt"
	"slices"
)

// MaxTemperature is the hard upper bound on sampling temperature,
// regardless of provider.
const MaxTemperature = 2.0

// Capabilities describes what a provider backend supports. Providers
// report it; parameter validation runs against it.
type Capabilities struct {
	// Provider is the registry id, e.g. "openai".
	Provider string
	// Models lists the supported model names. Empty means unconstrained.
	Models []string
	// ContextWindow is the largest context window supported, in tokens.
	ContextWindow int
	// MaxTemperature is the highest temperature the API accepts.
	// Zero means the global bound applies.
	MaxTemperature float64
	// CanEmbed reports whether the backend exposes an embedding endpoint.
	CanEmbed bool
}

// SupportsModel reports whether name is in the model catalog. An empty
// catalog accepts any name.
func (c Capabilities) SupportsModel(name string) bool {
	if len(c.Models) == 0 {
		return true
	}
	return slices.Contains(c.Models, name)
}

// Parameters is the generation parameter set for one completion call.
// It is validated against provider Capabilities when configured, never
// when used, so a call site can assume its Parameters are coherent.
type Parameters struct {
	Provider      string            `json:"provider" yaml:"provider"`
	Model         string            `json:"model" yaml:"model"`
	Temperature   float64           `json:"temperature" yaml:"temperature"`
	MaxTokens     int               `json:"max_tokens" yaml:"max_tokens"`
	ContextWindow int               `json:"context_window" yaml:"context_window"`
	TopP          float64           `json:"top_p" yaml:"top_p"`
	Extra         map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// ConfigError reports a parameter rejected at configuration time. It is
// never retried; the previous configuration stays in effect.
type ConfigError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("models: invalid %s (%v): %s", e.Field, e.Value, e.Reason)
}

// Validate checks p against the provider's declared capabilities and
// returns a *ConfigError naming the first offending field, or nil.
func (p Parameters) Validate(caps Capabilities) error {
	if p.Model == "" {
		return &ConfigError{Field: "model", Value: p.Model, Reason: "must be set"}
	}
	if !caps.SupportsModel(p.Model) {
		return &ConfigError{
			Field:  "model",
			Value:  p.Model,
			Reason: fmt.Sprintf("not supported by provider %q", caps.Provider),
		}
	}

	ceil := MaxTemperature
	if caps.MaxTemperature > 0 && caps.MaxTemperature < ceil {
		ceil = caps.MaxTemperature
	}
	if p.Temperature < 0 || p.Temperature > ceil {
		return &ConfigError{
			Field:  "temperature",
			Value:  p.Temperature,
			Reason: fmt.Sprintf("must be between 0 and %g", ceil),
		}
	}

	if p.MaxTokens <= 0 {
		return &ConfigError{Field: "max_tokens", Value: p.MaxTokens, Reason: "must be positive"}
	}
	if p.ContextWindow <= 0 {
		return &ConfigError{Field: "context_window", Value: p.ContextWindow, Reason: "must be positive"}
	}
	if caps.ContextWindow > 0 && p.ContextWindow > caps.ContextWindow {
		return &ConfigError{
			Field:  "context_window",
			Value:  p.ContextWindow,
			Reason: fmt.Sprintf("exceeds provider maximum %d", caps.ContextWindow),
		}
	}
	if p.MaxTokens >= p.ContextWindow {
		return &ConfigError{
			Field:  "max_tokens",
			Value:  p.MaxTokens,
			Reason: "must leave prompt room within the context window",
		}
	}

	if p.TopP < 0 || p.TopP > 1 {
		return &ConfigError{Field: "top_p", Value: p.TopP, Reason: "must be between 0 and 1"}
	}

	return nil
}
