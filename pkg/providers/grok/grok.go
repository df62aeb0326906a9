// Package grok provides a Provider implementation for xAI's Grok models,
// which expose an OpenAI-compatible chat completions API.
package grok

import (
	"github.com/sabercore/saber/pkg/modelprovider"
	"github.com/sabercore/saber/pkg/models"
	"github.com/sabercore/saber/pkg/providers/openai"
)

const (
	// DefaultBaseURL is the production API endpoint (no trailing slash).
	DefaultBaseURL = "https://api.x.ai"

	// maxContextWindow applies to the grok-3 generation and newer.
	maxContextWindow = 131072
)

// defaultModels is the supported model catalog.
var defaultModels = []string{"grok-4", "grok-3", "grok-3-mini"}

var _ modelprovider.Provider = (*Adapter)(nil)

// Adapter implements modelprovider.Provider for the xAI API. The wire
// protocol is OpenAI-compatible, so it reuses the openai adapter and only
// overrides the capability surface. xAI has no embedding endpoint.
type Adapter struct {
	openai.Adapter
}

// New creates an Adapter configured for the xAI API.
func New(baseURL, apiKey string) *Adapter {
	a := &Adapter{}
	a.BaseURL = baseURL
	a.Auth = modelprovider.Auth{Key: apiKey}
	a.HeaderParser = modelprovider.ParseOpenAIRateLimitHeaders

	return a
}

// Capabilities reports the supported models and bounds.
func (a *Adapter) Capabilities() models.Capabilities {
	catalog := a.Models
	if len(catalog) == 0 {
		catalog = defaultModels
	}

	return models.Capabilities{
		Provider:       "grok",
		Models:         catalog,
		ContextWindow:  maxContextWindow,
		MaxTemperature: 2.0,
		CanEmbed:       false,
	}
}
