package modelprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sabercore/saber/pkg/chats/chat"
	"github.com/sabercore/saber/pkg/modelprovider/usage"
	"github.com/sabercore/saber/pkg/models"
)

// Provider is the uniform surface over heterogeneous LLM backends. A
// Provider exposes exactly three capabilities: completion, token counting,
// and its capability descriptor (which carries the maximum context window).
// Callers never branch on the concrete backend behind the interface.
//
// Complete returns a lazy token stream; request-level failures are reported
// as *ThrottledError, *UnavailableError, or *RejectedError. Mid-stream
// failures surface through Stream.Err with the same classification.
// Providers do not cache; identical calls may produce different sequences.
type Provider interface {
	Complete(ctx context.Context, c *chat.Chat, params models.Parameters) (*Stream, error)
	CountTokens(c *chat.Chat) int
	Capabilities() models.Capabilities
}

// UsageReporter provides token usage information from a provider.
// Providers that embed Adapter implement this interface automatically.
type UsageReporter interface {
	UsageTracker() *usage.Tracker
}

// Auth holds authentication settings for an LLM provider API.
type Auth struct {
	Key    string // API key value.
	Header string // Header name (default: "Authorization").
	Scheme string // Scheme prefix (default: "Bearer" when Header is "Authorization").
}

// Adapter holds shared state for LLM provider implementations. Embed it in
// concrete provider structs to get HTTP helpers, auth, custom headers,
// normalized error classification, token estimation, and usage tracking.
// Concrete types define their own Complete and Capabilities methods.
type Adapter struct {
	Auth         Auth                  // Authentication settings.
	BaseURL      string                // API base URL (no trailing slash).
	Client       *http.Client          // HTTP client; falls back to a cached default.
	Headers      map[string]string     // Extra headers applied to every request.
	Usage        usage.Tracker         // Token usage tracker.
	Estimator    TokenEstimator        // Token estimation heuristic.
	HeaderParser RateLimitHeaderParser // Optional parser for rate limit response headers.

	rateLimitInfo atomic.Pointer[RateLimitInfo]
	clientOnce    sync.Once
	defaultClient *http.Client
}

// NewAdapter creates an Adapter with the given settings.
// A nil client falls back to a shared default client at call time.
func NewAdapter(baseURL string, auth Auth, client *http.Client) Adapter {
	return Adapter{
		Auth:    auth,
		BaseURL: baseURL,
		Client:  client,
	}
}

// UsageTracker returns the adapter's token usage tracker.
func (a *Adapter) UsageTracker() *usage.Tracker { return &a.Usage }

// LastRateLimitInfo returns the most recently observed rate limit info, or nil.
func (a *Adapter) LastRateLimitInfo() *RateLimitInfo { return a.rateLimitInfo.Load() }

// CountTokens estimates the input tokens a conversation will consume.
func (a *Adapter) CountTokens(c *chat.Chat) int {
	return a.Estimator.EstimateChat(c)
}

// httpClient returns the configured client or a cached default client with a 10-minute timeout.
func (a *Adapter) httpClient() *http.Client {
	if a.Client != nil {
		return a.Client
	}

	a.clientOnce.Do(func() {
		a.defaultClient = &http.Client{Timeout: 10 * time.Minute}
	})

	return a.defaultClient
}

// NewRequest builds an *http.Request with the base URL, auth, and custom
// headers already applied.
func (a *Adapter) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	url := a.BaseURL + path

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}

	// Apply auth.
	if a.Auth.Key != "" {
		header := a.Auth.Header
		if header == "" {
			header = "Authorization"
		}

		value := a.Auth.Key
		if header == "Authorization" {
			scheme := a.Auth.Scheme
			if scheme == "" {
				scheme = "Bearer"
			}

			value = scheme + " " + value
		} else if a.Auth.Scheme != "" {
			value = a.Auth.Scheme + " " + value
		}

		req.Header.Set(header, value)
	}

	// Apply custom headers.
	for k, v := range a.Headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

// Do sends the request using the configured HTTP client. Transport
// failures are normalized: a cancelled or expired caller context comes
// back unchanged, anything else (connection refused, client timeout) is
// wrapped as *UnavailableError.
func (a *Adapter) Do(req *http.Request) (*http.Response, error) {
	resp, err := a.httpClient().Do(req) //nolint:gosec // URL is built from trusted BaseURL config, not user input.
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &UnavailableError{Err: err}
	}
	return resp, nil
}

// StatusError reads the response body and classifies a non-2xx status:
// 429 becomes *ThrottledError, 5xx and 408 become *UnavailableError,
// every other status becomes *RejectedError. The body is consumed.
func StatusError(resp *http.Response) error {
	respBody, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &ThrottledError{
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After")),
			Body:       string(respBody),
		}
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusRequestTimeout:
		return &UnavailableError{Status: resp.StatusCode, Body: string(respBody)}
	default:
		return &RejectedError{Status: resp.StatusCode, Body: string(respBody)}
	}
}

// PostJSON marshals payload as JSON, sends a POST to the given path,
// checks for a 2xx status, and unmarshals the response body into dest.
// If dest is nil the response body is discarded after the status check.
func (a *Adapter) PostJSON(ctx context.Context, path string, payload any, dest any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := a.NewRequest(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := a.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return StatusError(resp)
	}

	// Parse and store rate limit info from response headers.
	if a.HeaderParser != nil {
		if info := a.HeaderParser(resp.Header, time.Now()); info != nil {
			a.rateLimitInfo.Store(info)
		}
	}

	if dest == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

// PostStream marshals payload as JSON, sends a POST to the given path, and
// returns the open response for callers that consume a streaming body.
// The status is checked and classified before returning; on success the
// caller owns resp.Body and must close it.
func (a *Adapter) PostStream(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := a.NewRequest(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := a.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer func() { _ = resp.Body.Close() }()
		return nil, StatusError(resp)
	}

	if a.HeaderParser != nil {
		if info := a.HeaderParser(resp.Header, time.Now()); info != nil {
			a.rateLimitInfo.Store(info)
		}
	}

	return resp, nil
}
