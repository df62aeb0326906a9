package modelprovider

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/sabercore/saber/pkg/chats/chat"
	"github.com/sabercore/saber/pkg/modelprovider/usage"
	"github.com/sabercore/saber/pkg/models"
)

var _ Provider = (*RetryingProvider)(nil)

type callEntry struct {
	timestamp   time.Time
	inputTokens int
}

// RetryingProvider wraps a Provider with proactive TPM/RPM-based throttling
// and reactive retry with exponential backoff and jitter. Throttled and
// unavailable errors are retried up to a bounded number of attempts;
// rejected requests and caller cancellation are surfaced immediately.
//
// Retries apply to request-level failures only. Once a stream has started
// producing tokens it is never restarted; a mid-stream failure surfaces
// through Stream.Err.
type RetryingProvider struct {
	inner      Provider
	mu         sync.Mutex
	window     []callEntry
	inputTPM   int           // input tokens-per-minute limit (0 = no limit)
	rpm        int           // requests-per-minute limit (0 = no limit)
	maxRetries int           // max retries on transient errors
	baseDelay  time.Duration // initial backoff delay

	fallbackTracker usage.Tracker // stable fallback tracker when inner lacks UsageReporter

	// nowFunc is used for testing; defaults to time.Now.
	nowFunc func() time.Time
	// sleepFunc is used for testing; defaults to a context-aware sleep.
	sleepFunc func(ctx context.Context, d time.Duration) error
	// randFunc returns a random float64 in [0,1); used for jitter. Defaults to rand.Float64.
	randFunc func() float64
}

// RetryOpts configures the RetryingProvider.
type RetryOpts struct {
	InputTPM   int           // Input tokens per minute (0 = no limit).
	RPM        int           // Requests per minute (0 = no limit).
	MaxRetries int           // Max retries on transient errors (default 3).
	BaseDelay  time.Duration // Initial backoff delay (default 1s).
}

// NewRetryingProvider wraps a Provider with throttling and retry.
func NewRetryingProvider(inner Provider, opts RetryOpts) *RetryingProvider {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}

	return &RetryingProvider{
		inner:      inner,
		inputTPM:   opts.InputTPM,
		rpm:        opts.RPM,
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.BaseDelay,
		nowFunc:    time.Now,
		sleepFunc:  contextSleep,
		randFunc:   rand.Float64,
	}
}

// SetNowFunc overrides the time source (for testing).
func (r *RetryingProvider) SetNowFunc(fn func() time.Time) { r.nowFunc = fn }

// SetSleepFunc overrides the sleep function (for testing).
func (r *RetryingProvider) SetSleepFunc(fn func(ctx context.Context, d time.Duration) error) {
	r.sleepFunc = fn
}

// SetRandFunc overrides the random number generator (for testing).
func (r *RetryingProvider) SetRandFunc(fn func() float64) { r.randFunc = fn }

// contextSleep sleeps for d or until ctx is cancelled.
func contextSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// pruneWindow removes entries older than 1 minute. Must be called with mu held.
func (r *RetryingProvider) pruneWindow(now time.Time) {
	cutoff := now.Add(-time.Minute)
	i := 0
	for i < len(r.window) && !r.window[i].timestamp.After(cutoff) {
		i++
	}
	if i > 0 {
		r.window = append(r.window[:0:0], r.window[i:]...)
	}
}

// windowInputTotal returns the sum of input tokens in the current window.
// Must be called with mu held.
func (r *RetryingProvider) windowInputTotal() int {
	total := 0
	for _, e := range r.window {
		total += e.inputTokens
	}
	return total
}

// waitForCapacity blocks until there is capacity in both the TPM and RPM windows.
func (r *RetryingProvider) waitForCapacity(ctx context.Context) error {
	if r.inputTPM <= 0 && r.rpm <= 0 {
		return nil
	}

	for {
		r.mu.Lock()
		now := r.nowFunc()
		r.pruneWindow(now)

		inputOK := r.inputTPM <= 0 || r.windowInputTotal() < r.inputTPM
		rpmOK := r.rpm <= 0 || len(r.window) < r.rpm

		if inputOK && rpmOK {
			r.mu.Unlock()
			return nil
		}

		// Find when the oldest entry expires to free capacity.
		var waitDur time.Duration
		if len(r.window) > 0 {
			waitDur = max(r.window[0].timestamp.Add(time.Minute).Sub(now), 0)
		}
		r.mu.Unlock()

		const minWait = 10 * time.Millisecond
		if waitDur < minWait {
			waitDur = minWait
		}

		if err := r.sleepFunc(ctx, waitDur); err != nil {
			return err
		}
	}
}

// recordCall adds a call entry to the sliding window.
func (r *RetryingProvider) recordCall(inputTokens int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.window = append(r.window, callEntry{
		timestamp:   r.nowFunc(),
		inputTokens: inputTokens,
	})
}

// jitter applies ±25% random jitter to a duration.
func (r *RetryingProvider) jitter(d time.Duration) time.Duration {
	// Scale factor in [0.75, 1.25).
	factor := 0.75 + r.randFunc()*0.5 //nolint:mnd // jitter range: ±25%
	return time.Duration(float64(d) * factor)
}

// retryable reports whether err is transient and returns the server's
// requested delay when one was given.
func retryable(err error) (time.Duration, bool) {
	var throttled *ThrottledError
	if errors.As(err, &throttled) {
		return throttled.RetryAfter, true
	}
	var unavailable *UnavailableError
	if errors.As(err, &unavailable) {
		return 0, true
	}
	return 0, false
}

// Complete implements Provider with proactive throttling and bounded retry
// on throttled and unavailable errors.
func (r *RetryingProvider) Complete(ctx context.Context, c *chat.Chat, params models.Parameters) (*Stream, error) {
	if err := r.waitForCapacity(ctx); err != nil {
		return nil, err
	}

	if err := r.adaptFromServerInfo(ctx); err != nil {
		return nil, err
	}

	r.recordCall(r.inner.CountTokens(c))

	var lastErr error
	for attempt := range r.maxRetries + 1 {
		s, err := r.inner.Complete(ctx, c, params)
		if err == nil {
			return s, nil
		}

		retryAfter, ok := retryable(err)
		if !ok {
			return nil, err
		}

		lastErr = err

		if attempt >= r.maxRetries {
			break
		}

		// Compute backoff: baseDelay * 2^attempt, but use the server's
		// requested delay if larger. Apply jitter.
		backoff := r.jitter(max(
			r.baseDelay*time.Duration(math.Pow(2, float64(attempt))), //nolint:mnd // exponential backoff formula
			retryAfter,
		))

		if err := r.sleepFunc(ctx, backoff); err != nil {
			return nil, err
		}
	}

	return nil, lastErr
}

// adaptFromServerInfo checks whether the inner provider reports near-zero
// remaining capacity via RateLimitInfoReporter. If so, it preemptively sleeps
// until the provider's reset time before issuing the next request.
func (r *RetryingProvider) adaptFromServerInfo(ctx context.Context) error {
	reporter, ok := r.inner.(RateLimitInfoReporter)
	if !ok {
		return nil
	}

	info := reporter.LastRateLimitInfo()
	if info == nil {
		return nil
	}

	now := r.nowFunc()
	var sleepUntil time.Time

	if info.RemainingRequests <= 1 && !info.RequestsReset.IsZero() && info.RequestsReset.After(now) {
		sleepUntil = info.RequestsReset
	}

	if info.RemainingTokens <= 1 && !info.TokensReset.IsZero() && info.TokensReset.After(now) {
		if info.TokensReset.After(sleepUntil) {
			sleepUntil = info.TokensReset
		}
	}

	if sleepUntil.IsZero() {
		return nil
	}

	return r.sleepFunc(ctx, sleepUntil.Sub(now))
}

// CountTokens forwards to the inner provider.
func (r *RetryingProvider) CountTokens(c *chat.Chat) int {
	return r.inner.CountTokens(c)
}

// Capabilities forwards to the inner provider.
func (r *RetryingProvider) Capabilities() models.Capabilities {
	return r.inner.Capabilities()
}

// UsageTracker forwards to the inner provider if it implements UsageReporter.
func (r *RetryingProvider) UsageTracker() *usage.Tracker {
	if ur, ok := r.inner.(UsageReporter); ok {
		return ur.UsageTracker()
	}
	return &r.fallbackTracker
}
