// Package gemini provides a Provider implementation for the Google Gemini
// API, built on the official genai SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/sabercore/saber/pkg/chats/chat"
	"github.com/sabercore/saber/pkg/chats/role"
	"github.com/sabercore/saber/pkg/modelprovider"
	"github.com/sabercore/saber/pkg/modelprovider/usage"
	"github.com/sabercore/saber/pkg/models"
	"google.golang.org/genai"
)

const (
	// DefaultEmbedModel is used when no embedding model is configured.
	DefaultEmbedModel = "gemini-embedding-001"

	// maxContextWindow is the window of the 2.5-generation models.
	maxContextWindow = 1048576

	taskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	taskRetrievalQuery    = "RETRIEVAL_QUERY"
)

// defaultModels is the supported model catalog.
var defaultModels = []string{"gemini-2.5-pro", "gemini-2.5-flash", "gemini-2.0-flash"}

var _ modelprovider.Provider = (*Adapter)(nil)

// Adapter implements modelprovider.Provider for the Gemini API. The SDK
// returns whole responses rather than token streams, so Complete normalizes
// its output into an already-completed stream.
type Adapter struct {
	// APIKey authenticates against the Gemini API backend.
	APIKey string
	// Models overrides the default model catalog.
	Models []string
	// EmbedModel selects the embedding model (default gemini-embedding-001).
	EmbedModel string
	// Usage tracks token usage across calls.
	Usage usage.Tracker
	// Estimator provides local token estimation.
	Estimator modelprovider.TokenEstimator

	clientOnce sync.Once
	client     *genai.Client
	clientErr  error

	generateFn func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	embedFn    func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// New creates an Adapter configured for the Gemini API backend.
func New(apiKey string) *Adapter {
	return &Adapter{APIKey: apiKey}
}

// SetGenerateFunc replaces the SDK generate call, for tests.
func (a *Adapter) SetGenerateFunc(fn func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)) {
	a.generateFn = fn
}

// SetEmbedFunc replaces the SDK embed call, for tests.
func (a *Adapter) SetEmbedFunc(fn func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)) {
	a.embedFn = fn
}

// UsageTracker returns the adapter's token usage tracker.
func (a *Adapter) UsageTracker() *usage.Tracker { return &a.Usage }

// Capabilities reports the supported models and bounds.
func (a *Adapter) Capabilities() models.Capabilities {
	catalog := a.Models
	if len(catalog) == 0 {
		catalog = defaultModels
	}

	return models.Capabilities{
		Provider:       "gemini",
		Models:         catalog,
		ContextWindow:  maxContextWindow,
		MaxTemperature: 2.0,
		CanEmbed:       true,
	}
}

// CountTokens estimates the input tokens a conversation will consume.
func (a *Adapter) CountTokens(c *chat.Chat) int {
	return a.Estimator.EstimateChat(c)
}

// Complete sends a conversation to the Gemini API and returns the reply as a
// completed stream.
func (a *Adapter) Complete(ctx context.Context, c *chat.Chat, params models.Parameters) (*modelprovider.Stream, error) {
	contents, system := buildContents(c)

	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(params.MaxTokens),
	}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if params.Temperature != 0 {
		cfg.Temperature = genai.Ptr(float32(params.Temperature))
	}
	if params.TopP != 0 {
		cfg.TopP = genai.Ptr(float32(params.TopP))
	}

	resp, err := a.generate(ctx, params.Model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", classify(ctx, err))
	}

	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini: empty candidates in response")
	}

	text := resp.Text()
	a.recordUsage(resp, c, text)

	return modelprovider.NewTextStream(text), nil
}

// EmbedDocuments embeds a batch of document texts, preserving input order.
func (a *Adapter) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return a.embed(ctx, texts, taskRetrievalDocument)
}

// EmbedQuery embeds a single query string.
func (a *Adapter) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := a.embed(ctx, []string{text}, taskRetrievalQuery)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Signature identifies the embedding model so that corpora embedded with a
// different model are never mixed in one index.
func (a *Adapter) Signature() string {
	return "gemini/" + a.embedModel()
}

func (a *Adapter) embedModel() string {
	if a.EmbedModel != "" {
		return a.EmbedModel
	}
	return DefaultEmbedModel
}

func (a *Adapter) embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = &genai.Content{Parts: []*genai.Part{{Text: text}}}
	}

	resp, err := a.embedCall(ctx, a.embedModel(), contents, &genai.EmbedContentConfig{TaskType: taskType})
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", classify(ctx, err))
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini: expected %d embeddings, got %d", len(texts), len(resp.Embeddings))
	}

	vecs := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		vecs[i] = e.Values
	}

	return vecs, nil
}

// generate dispatches through the test seam or the lazily created SDK client.
func (a *Adapter) generate(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	if a.generateFn != nil {
		return a.generateFn(ctx, model, contents, cfg)
	}

	client, err := a.clientFor(ctx)
	if err != nil {
		return nil, err
	}

	return client.Models.GenerateContent(ctx, model, contents, cfg)
}

func (a *Adapter) embedCall(ctx context.Context, model string, contents []*genai.Content, cfg *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	if a.embedFn != nil {
		return a.embedFn(ctx, model, contents, cfg)
	}

	client, err := a.clientFor(ctx)
	if err != nil {
		return nil, err
	}

	return client.Models.EmbedContent(ctx, model, contents, cfg)
}

func (a *Adapter) clientFor(ctx context.Context) (*genai.Client, error) {
	a.clientOnce.Do(func() {
		a.client, a.clientErr = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  a.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
	})

	return a.client, a.clientErr
}

func (a *Adapter) recordUsage(resp *genai.GenerateContentResponse, c *chat.Chat, text string) {
	if resp.UsageMetadata != nil {
		a.Usage.Add(usage.TokenCount{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		})
		return
	}

	a.Usage.Add(usage.TokenCount{
		InputTokens:  a.Estimator.EstimateChat(c),
		OutputTokens: a.Estimator.EstimateText(text),
	})
}

// classify maps SDK errors to the normalized taxonomy. A cancelled or expired
// caller context comes back unchanged.
func classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests:
			return &modelprovider.ThrottledError{Body: apiErr.Message}
		case apiErr.Code >= 500 || apiErr.Code == http.StatusRequestTimeout:
			return &modelprovider.UnavailableError{Status: apiErr.Code, Body: apiErr.Message}
		default:
			return &modelprovider.RejectedError{Status: apiErr.Code, Body: apiErr.Message}
		}
	}

	return &modelprovider.UnavailableError{Err: err}
}

// buildContents converts a conversation to SDK contents, extracting the
// system prompt into its own return value for the systemInstruction field.
func buildContents(c *chat.Chat) ([]*genai.Content, string) {
	var contents []*genai.Content

	for _, m := range c.Messages() {
		if m.Role == role.System {
			continue
		}

		r := "user"
		if m.Role == role.Assistant {
			r = "model"
		}

		contents = append(contents, &genai.Content{
			Role:  r,
			Parts: []*genai.Part{{Text: m.Text}},
		})
	}

	return contents, c.SystemPrompt()
}
