package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/sabercore/saber/pkg/modelprovider"
	"golang.org/x/sync/errgroup"
)

// BatchEmbedder attaches vectors to chunks. Chunks are grouped into batches
// to amortize provider call overhead, batches run concurrently up to a
// worker limit, and throttled or unavailable batches are retried with
// exponential backoff. Exhausting retries fails only the affected chunks.
type BatchEmbedder struct {
	client     EmbeddingClient
	batchSize  int
	workers    int
	maxRetries int
	baseDelay  time.Duration

	// sleepFunc is used for testing; defaults to a context-aware sleep.
	sleepFunc func(ctx context.Context, d time.Duration) error
	// randFunc returns a random float64 in [0,1); used for jitter.
	randFunc func() float64
}

// EmbedOpts configures the BatchEmbedder.
type EmbedOpts struct {
	BatchSize  int           // Chunks per provider call (default 16).
	Workers    int           // Concurrent batches in flight (default 4).
	MaxRetries int           // Max retries per batch on transient errors (default 3).
	BaseDelay  time.Duration // Initial backoff delay (default 1s).
}

// NewBatchEmbedder creates a BatchEmbedder over the given client.
func NewBatchEmbedder(client EmbeddingClient, opts EmbedOpts) *BatchEmbedder {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 16
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}

	return &BatchEmbedder{
		client:     client,
		batchSize:  opts.BatchSize,
		workers:    opts.Workers,
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.BaseDelay,
		sleepFunc:  embedSleep,
		randFunc:   rand.Float64,
	}
}

// SetSleepFunc overrides the sleep function (for testing).
func (b *BatchEmbedder) SetSleepFunc(fn func(ctx context.Context, d time.Duration) error) {
	b.sleepFunc = fn
}

// SetRandFunc overrides the random number generator (for testing).
func (b *BatchEmbedder) SetRandFunc(fn func() float64) { b.randFunc = fn }

// Signature reports the vector-space signature of the underlying client.
func (b *BatchEmbedder) Signature() string { return b.client.Signature() }

// Embed returns a copy of chunks with vectors attached. The input chunks are
// never mutated. When some batches exhaust their retries the returned error
// is an *EmbeddingFailed naming exactly the chunks without vectors; all other
// returned chunks are embedded and usable.
func (b *BatchEmbedder) Embed(ctx context.Context, chunks []Chunk) ([]Chunk, error) {
	out := make([]Chunk, len(chunks))
	copy(out, chunks)

	var (
		g      errgroup.Group
		mu     sync.Mutex
		failed []string
		causes []error
	)
	g.SetLimit(b.workers)

	// Each batch writes a disjoint range of out, so only the failure lists
	// need the mutex.
	for lo := 0; lo < len(out); lo += b.batchSize {
		hi := min(lo+b.batchSize, len(out))

		g.Go(func() error {
			texts := make([]string, hi-lo)
			for i := lo; i < hi; i++ {
				texts[i-lo] = out[i].Text
			}

			vecs, err := b.embedBatch(ctx, texts)
			if err != nil {
				mu.Lock()
				for i := lo; i < hi; i++ {
					failed = append(failed, out[i].ID)
				}
				causes = append(causes, err)
				mu.Unlock()
				return nil
			}

			for i := lo; i < hi; i++ {
				out[i].Vector = vecs[i-lo]
			}
			return nil
		})
	}

	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(failed) > 0 {
		return out, &EmbeddingFailed{ChunkIDs: failed, Err: errors.Join(causes...)}
	}

	return out, nil
}

// embedBatch calls the client for one batch, retrying transient failures up
// to the attempt limit.
func (b *BatchEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := range b.maxRetries + 1 {
		vecs, err := b.client.EmbedDocuments(ctx, texts)
		if err == nil {
			if len(vecs) != len(texts) {
				return nil, fmt.Errorf("rag: expected %d vectors, got %d", len(texts), len(vecs))
			}
			return vecs, nil
		}

		retryAfter, ok := transient(err)
		if !ok {
			return nil, err
		}

		lastErr = err

		if attempt >= b.maxRetries {
			break
		}

		backoff := b.jitter(max(
			b.baseDelay*time.Duration(math.Pow(2, float64(attempt))), //nolint:mnd // exponential backoff formula
			retryAfter,
		))

		if err := b.sleepFunc(ctx, backoff); err != nil {
			return nil, err
		}
	}

	return nil, lastErr
}

// jitter applies ±25% random jitter to a duration.
func (b *BatchEmbedder) jitter(d time.Duration) time.Duration {
	factor := 0.75 + b.randFunc()*0.5 //nolint:mnd // jitter range: ±25%
	return time.Duration(float64(d) * factor)
}

// transient reports whether err is retryable and returns the server's
// requested delay when one was given.
func transient(err error) (time.Duration, bool) {
	var throttled *modelprovider.ThrottledError
	if errors.As(err, &throttled) {
		return throttled.RetryAfter, true
	}
	var unavailable *modelprovider.UnavailableError
	if errors.As(err, &unavailable) {
		return 0, true
	}
	return 0, false
}

// embedSleep sleeps for d or until ctx is cancelled.
func embedSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
