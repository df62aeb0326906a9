// Package anthropic provides a Provider implementation for the Anthropic
// Messages API.
package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/sabercore/saber/pkg/chats/chat"
	"github.com/sabercore/saber/pkg/chats/role"
	"github.com/sabercore/saber/pkg/modelprovider"
	"github.com/sabercore/saber/pkg/modelprovider/usage"
	"github.com/sabercore/saber/pkg/models"
)

const (
	// DefaultBaseURL is the production API endpoint (no trailing slash).
	DefaultBaseURL = "https://api.anthropic.com"

	messagesPath = "/v1/messages"

	// apiVersion is the pinned Messages API revision.
	apiVersion = "2023-06-01"

	// maxContextWindow applies to all models in the default catalog.
	maxContextWindow = 200000
)

// defaultModels is the supported model catalog.
var defaultModels = []string{
	"claude-opus-4-1",
	"claude-sonnet-4-0",
	"claude-3-7-sonnet-latest",
	"claude-3-5-haiku-latest",
}

var _ modelprovider.Provider = (*Adapter)(nil)

// Adapter implements modelprovider.Provider for the Anthropic Messages API.
// Completions stream over SSE. Anthropic has no embedding endpoint, so the
// capability descriptor reports CanEmbed false.
type Adapter struct {
	modelprovider.Adapter

	// Models overrides the default model catalog.
	Models []string
}

// New creates an Adapter configured for the Anthropic API.
// The baseURL should be "https://api.anthropic.com" (no trailing slash).
func New(baseURL, apiKey string) *Adapter {
	a := &Adapter{}
	a.BaseURL = baseURL
	a.Auth = modelprovider.Auth{
		Key:    apiKey,
		Header: "x-api-key",
	}
	a.Headers = map[string]string{
		"anthropic-version": apiVersion,
	}
	a.HeaderParser = modelprovider.ParseAnthropicRateLimitHeaders

	return a
}

// Capabilities reports the supported models and bounds. Anthropic caps
// temperature at 1.0, below the generic maximum.
func (a *Adapter) Capabilities() models.Capabilities {
	catalog := a.Models
	if len(catalog) == 0 {
		catalog = defaultModels
	}

	return models.Capabilities{
		Provider:       "anthropic",
		Models:         catalog,
		ContextWindow:  maxContextWindow,
		MaxTemperature: 1.0,
		CanEmbed:       false,
	}
}

// Complete sends a conversation to the Messages API and returns a stream of
// response tokens.
func (a *Adapter) Complete(ctx context.Context, c *chat.Chat, params models.Parameters) (*modelprovider.Stream, error) {
	req := buildRequest(c, params)

	ctx, cancel := context.WithCancel(ctx)
	resp, err := a.PostStream(ctx, messagesPath, req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	s := modelprovider.NewStream(cancel)
	go a.consume(ctx, resp.Body, s)

	return s, nil
}

var dataPrefix = []byte("data: ")

// consume reads SSE frames from body and forwards text deltas to s. Every
// Anthropic data payload carries a "type" field, so the event: lines can be
// ignored. Usage accumulates from message_start (input) and message_delta
// (output) and is recorded when the stream ends.
func (a *Adapter) consume(ctx context.Context, body io.ReadCloser, s *modelprovider.Stream) {
	defer func() { _ = body.Close() }()

	reader := bufio.NewReader(body)
	var u usage.TokenCount

	finish := func(err error) {
		if u.InputTokens > 0 || u.OutputTokens > 0 {
			a.Usage.Add(u)
		}
		s.Close(err)
	}

	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			line = bytes.TrimSpace(line)
			if bytes.HasPrefix(line, dataPrefix) {
				data := bytes.TrimPrefix(line, dataPrefix)

				var ev apiStreamEvent
				if jsonErr := json.Unmarshal(data, &ev); jsonErr == nil {
					switch ev.Type {
					case "message_start":
						if ev.Message != nil {
							u.InputTokens = ev.Message.Usage.InputTokens
						}
					case "content_block_delta":
						if ev.Delta != nil && ev.Delta.Type == "text_delta" && ev.Delta.Text != "" {
							if !s.Send(ev.Delta.Text) {
								finish(context.Canceled)
								return
							}
						}
					case "message_delta":
						if ev.Usage != nil {
							u.OutputTokens = ev.Usage.OutputTokens
						}
					case "message_stop":
						finish(nil)
						return
					case "error":
						finish(streamError(ev.Error))
						return
					}
				}
			}
		}

		if err != nil {
			switch {
			case ctx.Err() != nil:
				finish(ctx.Err())
			case errors.Is(err, io.EOF):
				// The server closed the connection before message_stop.
				finish(&modelprovider.UnavailableError{Err: io.ErrUnexpectedEOF})
			default:
				finish(&modelprovider.UnavailableError{Err: err})
			}
			return
		}
	}
}

// streamError maps an in-stream error event to the normalized taxonomy.
func streamError(e *apiError) error {
	if e == nil {
		return &modelprovider.UnavailableError{Err: errors.New("anthropic: unspecified stream error")}
	}

	switch e.Type {
	case "overloaded_error", "api_error":
		return &modelprovider.UnavailableError{Body: e.Message}
	case "rate_limit_error":
		return &modelprovider.ThrottledError{Body: e.Message}
	default:
		return &modelprovider.RejectedError{Body: e.Message}
	}
}

// --- request types ---

type apiRequest struct {
	Model       string       `json:"model"`
	MaxTokens   int          `json:"max_tokens"`
	System      string       `json:"system,omitempty"`
	Messages    []apiMessage `json:"messages"`
	Temperature *float64     `json:"temperature,omitempty"`
	TopP        *float64     `json:"top_p,omitempty"`
	Stream      bool         `json:"stream"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// --- response types ---

type apiStreamEvent struct {
	Type    string           `json:"type"`
	Message *apiMessageStart `json:"message"`
	Delta   *apiDelta        `json:"delta"`
	Usage   *apiUsage        `json:"usage"`
	Error   *apiError        `json:"error"`
}

type apiMessageStart struct {
	Usage apiUsage `json:"usage"`
}

type apiDelta struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type apiUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// --- conversion helpers ---

func buildRequest(c *chat.Chat, params models.Parameters) apiRequest {
	req := apiRequest{
		Model:     params.Model,
		MaxTokens: params.MaxTokens,
		System:    c.SystemPrompt(),
		Stream:    true,
	}

	if params.Temperature != 0 {
		t := params.Temperature
		req.Temperature = &t
	}
	if params.TopP != 0 {
		p := params.TopP
		req.TopP = &p
	}

	// System messages go in the top-level system field; the API also
	// rejects consecutive messages with the same role, so merge those.
	for _, m := range c.Messages() {
		if m.Role == role.System {
			continue
		}

		r := apiRole(m.Role)
		if n := len(req.Messages); n > 0 && req.Messages[n-1].Role == r {
			req.Messages[n-1].Content += "\n\n" + m.Text
			continue
		}

		req.Messages = append(req.Messages, apiMessage{Role: r, Content: m.Text})
	}

	return req
}

func apiRole(r role.Role) string {
	if r == role.Assistant {
		return "assistant"
	}
	return "user"
}
