package engine

import (
	"fmt"
	"sync"

	"github.com/sabercore/saber/pkg/modelprovider"
	"github.com/sabercore/saber/pkg/providers/anthropic"
	"github.com/sabercore/saber/pkg/providers/gemini"
	"github.com/sabercore/saber/pkg/providers/grok"
	"github.com/sabercore/saber/pkg/providers/openai"
)

// ProviderFactory creates a Provider from a ProviderConfig.
type ProviderFactory func(cfg ProviderConfig) (modelprovider.Provider, error)

var (
	factoryMu   sync.RWMutex
	factories   = map[string]ProviderFactory{}
	defaultsReg sync.Once
)

func ensureDefaults() {
	defaultsReg.Do(func() {
		factories["openai"] = newOpenAI
		factories["anthropic"] = newAnthropic
		factories["gemini"] = newGemini
		factories["grok"] = newGrok
	})
}

// RegisterProvider registers a custom provider factory under the given id.
// It can be called before New to extend the engine with additional providers.
func RegisterProvider(id string, factory ProviderFactory) {
	ensureDefaults()

	factoryMu.Lock()
	defer factoryMu.Unlock()

	factories[id] = factory
}

// getFactory returns the factory for the given provider id.
func getFactory(id string) (ProviderFactory, bool) {
	ensureDefaults()

	factoryMu.RLock()
	defer factoryMu.RUnlock()

	f, ok := factories[id]
	return f, ok
}

func newOpenAI(cfg ProviderConfig) (modelprovider.Provider, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openai.DefaultBaseURL
	}

	a := openai.New(baseURL, cfg.APIKey)
	if cfg.EmbedModel != "" {
		a.EmbedModel = cfg.EmbedModel
	}

	return a, nil
}

func newAnthropic(cfg ProviderConfig) (modelprovider.Provider, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = anthropic.DefaultBaseURL
	}

	return anthropic.New(baseURL, cfg.APIKey), nil
}

func newGemini(cfg ProviderConfig) (modelprovider.Provider, error) {
	a := gemini.New(cfg.APIKey)
	if cfg.EmbedModel != "" {
		a.EmbedModel = cfg.EmbedModel
	}

	return a, nil
}

func newGrok(cfg ProviderConfig) (modelprovider.Provider, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = grok.DefaultBaseURL
	}

	return grok.New(baseURL, cfg.APIKey), nil
}

// buildProvider creates a Provider for the given id using its registered
// factory. When retryLimit is positive the provider is wrapped with bounded
// retry on throttled and unavailable errors; zero disables retries.
func buildProvider(id string, cfg ProviderConfig, retryLimit int) (modelprovider.Provider, modelprovider.Provider, error) {
	factory, ok := getFactory(id)
	if !ok {
		return nil, nil, fmt.Errorf("engine: unknown provider %q", id)
	}

	raw, err := factory(cfg)
	if err != nil {
		return nil, nil, err
	}

	if retryLimit <= 0 {
		return raw, raw, nil
	}

	wrapped := modelprovider.NewRetryingProvider(raw, modelprovider.RetryOpts{
		MaxRetries: retryLimit,
	})

	return wrapped, raw, nil
}
