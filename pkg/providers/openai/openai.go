// Package openai provides a Provider implementation for the OpenAI Chat
// Completions API, plus an embedding client for the Embeddings API.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/sabercore/saber/pkg/chats/chat"
	"github.com/sabercore/saber/pkg/chats/message"
	"github.com/sabercore/saber/pkg/chats/role"
	"github.com/sabercore/saber/pkg/modelprovider"
	"github.com/sabercore/saber/pkg/modelprovider/usage"
	"github.com/sabercore/saber/pkg/models"
)

const (
	// DefaultBaseURL is the production API endpoint (no trailing slash).
	DefaultBaseURL = "https://api.openai.com"

	// DefaultEmbedModel is used when no embedding model is configured.
	DefaultEmbedModel = "text-embedding-3-small"

	completionsPath = "/v1/chat/completions"
	embeddingsPath  = "/v1/embeddings"

	// maxContextWindow is the largest window across the supported models.
	maxContextWindow = 128000
)

// defaultModels is the supported chat model catalog.
var defaultModels = []string{"gpt-4", "gpt-4-turbo", "gpt-4o", "gpt-4o-mini", "gpt-3.5-turbo"}

var _ modelprovider.Provider = (*Adapter)(nil)

// Adapter implements modelprovider.Provider for the OpenAI Chat Completions
// API. Completions stream over SSE; the stream carries usage accounting in
// its final frame.
type Adapter struct {
	modelprovider.Adapter

	// Models overrides the default chat model catalog.
	Models []string
	// EmbedModel selects the embedding model (default text-embedding-3-small).
	EmbedModel string
}

// New creates an Adapter configured for the OpenAI API.
// The baseURL should be "https://api.openai.com" (no trailing slash).
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
		Provider:       "openai",
		Models:         catalog,
		ContextWindow:  maxContextWindow,
		MaxTemperature: 2.0,
		CanEmbed:       true,
	}
}

// Complete sends a conversation to the Chat Completions API and returns a
// stream of response tokens.
func (a *Adapter) Complete(ctx context.Context, c *chat.Chat, params models.Parameters) (*modelprovider.Stream, error) {
	req := a.buildRequest(c, params)

	ctx, cancel := context.WithCancel(ctx)
	resp, err := a.PostStream(ctx, completionsPath, req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("openai: %w", err)
	}

	s := modelprovider.NewStream(cancel)
	go a.consume(ctx, resp.Body, s, a.CountTokens(c))

	return s, nil
}

var (
	dataPrefix   = []byte("data: ")
	doneSentinel = []byte("[DONE]")
)

// consume reads SSE frames from body and forwards delta tokens to s until
// the server signals completion, the connection drops, or the consumer
// cancels. It records token usage before closing the stream.
func (a *Adapter) consume(ctx context.Context, body io.ReadCloser, s *modelprovider.Stream, inputEstimate int) {
	defer func() { _ = body.Close() }()

	reader := bufio.NewReader(body)
	var reported *usage.TokenCount
	outChars := 0

	finish := func(err error) {
		if reported != nil {
			a.Usage.Add(*reported)
		} else if err == nil {
			a.Usage.Add(usage.TokenCount{
				InputTokens:  inputEstimate,
				OutputTokens: a.Estimator.EstimateChars(outChars),
			})
		}
		s.Close(err)
	}

	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			line = bytes.TrimSpace(line)
			if bytes.HasPrefix(line, dataPrefix) {
				data := bytes.TrimPrefix(line, dataPrefix)
				if bytes.Equal(data, doneSentinel) {
					finish(nil)
					return
				}

				var chunk apiStreamChunk
				if jsonErr := json.Unmarshal(data, &chunk); jsonErr == nil {
					if chunk.Usage != nil {
						reported = &usage.TokenCount{
							InputTokens:  chunk.Usage.PromptTokens,
							OutputTokens: chunk.Usage.CompletionTokens,
						}
					}
					if len(chunk.Choices) > 0 {
						if delta := chunk.Choices[0].Delta.Content; delta != "" {
							outChars += len(delta)
							if !s.Send(delta) {
								finish(context.Canceled)
								return
							}
						}
					}
				}
			}
		}

		if err != nil {
			switch {
			case ctx.Err() != nil:
				finish(ctx.Err())
			case errors.Is(err, io.EOF):
				// The server closed the connection without sending [DONE];
				// the sequence is truncated.
				finish(&modelprovider.UnavailableError{Err: io.ErrUnexpectedEOF})
			default:
				finish(&modelprovider.UnavailableError{Err: err})
			}
			return
		}
	}
}

// EmbedDocuments embeds a batch of document texts, preserving input order.
func (a *Adapter) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return a.embed(ctx, texts)
}

// EmbedQuery embeds a single query string.
func (a *Adapter) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := a.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Signature identifies the embedding model so that corpora embedded with a
// different model are never mixed in one index.
func (a *Adapter) Signature() string {
	return "openai/" + a.embedModel()
}

func (a *Adapter) embedModel() string {
	if a.EmbedModel != "" {
		return a.EmbedModel
	}
	return DefaultEmbedModel
}

func (a *Adapter) embed(ctx context.Context, texts []string) ([][]float32, error) {
	req := embeddingRequest{
		Model: a.embedModel(),
		Input: texts,
	}

	var resp embeddingResponse
	if err := a.PostJSON(ctx, embeddingsPath, req, &resp); err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai: expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	a.Usage.Add(usage.TokenCount{InputTokens: resp.Usage.PromptTokens})

	// The API may return entries out of order; place them by index.
	vecs := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, fmt.Errorf("openai: embedding index %d out of range", d.Index)
		}
		vecs[d.Index] = d.Embedding
	}

	return vecs, nil
}

// --- request types ---

type apiRequest struct {
	Model         string            `json:"model"`
	Messages      []apiMessage      `json:"messages"`
	MaxTokens     int               `json:"max_tokens,omitempty"`
	Temperature   *float64          `json:"temperature,omitempty"`
	TopP          *float64          `json:"top_p,omitempty"`
	Stream        bool              `json:"stream"`
	StreamOptions *apiStreamOptions `json:"stream_options,omitempty"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// --- response types ---

type apiStreamChunk struct {
	Choices []apiStreamChoice `json:"choices"`
	Usage   *apiUsage         `json:"usage"`
}

type apiStreamChoice struct {
	Delta        apiDelta `json:"delta"`
	FinishReason string   `json:"finish_reason"`
}

type apiDelta struct {
	Content string `json:"content"`
}

type apiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Usage apiUsage `json:"usage"`
}

// --- conversion helpers ---

func (a *Adapter) buildRequest(c *chat.Chat, params models.Parameters) apiRequest {
	req := apiRequest{
		Model:         params.Model,
		MaxTokens:     params.MaxTokens,
		Stream:        true,
		StreamOptions: &apiStreamOptions{IncludeUsage: true},
	}

	if params.Temperature != 0 {
		t := params.Temperature
		req.Temperature = &t
	}
	if params.TopP != 0 {
		p := params.TopP
		req.TopP = &p
	}

	c.Each(func(_ int, m message.Message) bool {
		req.Messages = append(req.Messages, apiMessage{
			Role:    apiRole(m.Role),
			Content: m.Text,
		})
		return true
	})

	return req
}

func apiRole(r role.Role) string {
	switch r {
	case role.System:
		return "system"
	case role.Assistant:
		return "assistant"
	default:
		return "user"
	}
}
