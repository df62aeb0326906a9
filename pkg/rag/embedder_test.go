package rag_test

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sabercore/saber/pkg/modelprovider"
	"github.com/sabercore/saber/pkg/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedClient records every EmbedDocuments call and delegates to fn,
// which receives the zero-based call number.
type fakeEmbedClient struct {
	mu      sync.Mutex
	calls   [][]string
	queries []string
	fn      func(call int, texts []string) ([][]float32, error)
	queryFn func(text string) ([]float32, error)
}

func (f *fakeEmbedClient) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	call := len(f.calls)
	f.calls = append(f.calls, slices.Clone(texts))
	f.mu.Unlock()

	return f.fn(call, texts)
}

func (f *fakeEmbedClient) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.queries = append(f.queries, text)
	f.mu.Unlock()

	if f.queryFn != nil {
		return f.queryFn(text)
	}
	return []float32{1, 0}, nil
}

func (f *fakeEmbedClient) Signature() string { return "fake/embed-v1" }

func (f *fakeEmbedClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeEmbedClient) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

// lenVecs maps each text to a one-element vector holding its length, so
// tests can tell which vector landed on which chunk.
func lenVecs(texts []string) [][]float32 {
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		vecs[i] = []float32{float32(len(t))}
	}
	return vecs
}

func mkChunks(n int) []rag.Chunk {
	chunks := make([]rag.Chunk, n)
	for i := range chunks {
		chunks[i] = rag.Chunk{
			ID:         fmt.Sprintf("c%d", i),
			DocumentID: "doc",
			Index:      i,
			Text:       fmt.Sprintf("chunk %d ", i) + strings.Repeat("x", i),
		}
	}
	return chunks
}

func TestEmbed_AttachesVectors(t *testing.T) {
	client := &fakeEmbedClient{
		fn: func(_ int, texts []string) ([][]float32, error) { return lenVecs(texts), nil },
	}
	b := rag.NewBatchEmbedder(client, rag.EmbedOpts{BatchSize: 2, Workers: 1})

	chunks := mkChunks(5)

	out, err := b.Embed(context.Background(), chunks)
	require.NoError(t, err)
	require.Len(t, out, 5)

	for i, c := range out {
		require.True(t, c.Embedded(), "chunk %d has no vector", i)
		assert.Equal(t, []float32{float32(len(c.Text))}, c.Vector)
	}

	// The input slice is untouched.
	for i, c := range chunks {
		assert.False(t, c.Embedded(), "input chunk %d was mutated", i)
	}

	// 5 chunks in batches of 2: sizes 2, 2, 1.
	require.Equal(t, 3, client.callCount())
	assert.Len(t, client.calls[0], 2)
	assert.Len(t, client.calls[1], 2)
	assert.Len(t, client.calls[2], 1)
}

func TestEmbed_BoundedConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32

	client := &fakeEmbedClient{
		fn: func(_ int, texts []string) ([][]float32, error) {
			cur := inFlight.Add(1)
			for {
				p := peak.Load()
				if cur <= p || peak.CompareAndSwap(p, cur) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			return lenVecs(texts), nil
		},
	}
	b := rag.NewBatchEmbedder(client, rag.EmbedOpts{BatchSize: 1, Workers: 2})

	out, err := b.Embed(context.Background(), mkChunks(8))
	require.NoError(t, err)
	assert.Len(t, out, 8)

	assert.Equal(t, 8, client.callCount())
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestEmbed_RetriesThrottledBatch(t *testing.T) {
	client := &fakeEmbedClient{
		fn: func(call int, texts []string) ([][]float32, error) {
			if call == 0 {
				return nil, &modelprovider.ThrottledError{RetryAfter: 2 * time.Second}
			}
			return lenVecs(texts), nil
		},
	}
	b := rag.NewBatchEmbedder(client, rag.EmbedOpts{BatchSize: 4, Workers: 1, MaxRetries: 3, BaseDelay: time.Second})

	var slept []time.Duration
	b.SetSleepFunc(func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	})
	b.SetRandFunc(func() float64 { return 0.5 }) // jitter factor 1.0

	out, err := b.Embed(context.Background(), mkChunks(2))
	require.NoError(t, err)
	assert.True(t, out[0].Embedded())
	assert.True(t, out[1].Embedded())

	assert.Equal(t, 2, client.callCount())
	// Server asked for 2s, which beats the 1s base delay.
	require.Len(t, slept, 1)
	assert.Equal(t, 2*time.Second, slept[0])
}

func TestEmbed_BackoffGrowsPerAttempt(t *testing.T) {
	client := &fakeEmbedClient{
		fn: func(call int, texts []string) ([][]float32, error) {
			if call < 3 {
				return nil, &modelprovider.UnavailableError{Status: 503}
			}
			return lenVecs(texts), nil
		},
	}
	b := rag.NewBatchEmbedder(client, rag.EmbedOpts{BatchSize: 1, Workers: 1, MaxRetries: 3, BaseDelay: time.Second})

	var slept []time.Duration
	b.SetSleepFunc(func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	})
	b.SetRandFunc(func() float64 { return 0.5 })

	_, err := b.Embed(context.Background(), mkChunks(1))
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, slept)
}

func TestEmbed_PartialFailure(t *testing.T) {
	client := &fakeEmbedClient{
		fn: func(_ int, texts []string) ([][]float32, error) {
			if slices.Contains(texts, "chunk 0 ") {
				return lenVecs(texts), nil
			}
			return nil, &modelprovider.UnavailableError{Status: 503, Body: "down"}
		},
	}
	b := rag.NewBatchEmbedder(client, rag.EmbedOpts{BatchSize: 2, Workers: 1, MaxRetries: 1})
	b.SetSleepFunc(func(context.Context, time.Duration) error { return nil })

	chunks := mkChunks(4)

	out, err := b.Embed(context.Background(), chunks)

	var ef *rag.EmbeddingFailed
	require.ErrorAs(t, err, &ef)
	assert.Equal(t, []string{"c2", "c3"}, ef.ChunkIDs)

	var unavailable *modelprovider.UnavailableError
	assert.ErrorAs(t, ef.Err, &unavailable)

	// The first batch is embedded and usable despite the failure.
	require.Len(t, out, 4)
	assert.True(t, out[0].Embedded())
	assert.True(t, out[1].Embedded())
	assert.False(t, out[2].Embedded())
	assert.False(t, out[3].Embedded())
}

func TestEmbed_RejectedNotRetried(t *testing.T) {
	client := &fakeEmbedClient{
		fn: func(int, []string) ([][]float32, error) {
			return nil, &modelprovider.RejectedError{Status: 400, Body: "bad input"}
		},
	}
	b := rag.NewBatchEmbedder(client, rag.EmbedOpts{BatchSize: 4, Workers: 1, MaxRetries: 3})
	b.SetSleepFunc(func(context.Context, time.Duration) error { return nil })

	_, err := b.Embed(context.Background(), mkChunks(2))

	var ef *rag.EmbeddingFailed
	require.ErrorAs(t, err, &ef)

	var rejected *modelprovider.RejectedError
	assert.ErrorAs(t, ef.Err, &rejected)

	// Permanent rejections are not worth retrying.
	assert.Equal(t, 1, client.callCount())
}

func TestEmbed_VectorCountMismatch(t *testing.T) {
	client := &fakeEmbedClient{
		fn: func(_ int, texts []string) ([][]float32, error) {
			return lenVecs(texts[:1]), nil
		},
	}
	b := rag.NewBatchEmbedder(client, rag.EmbedOpts{BatchSize: 2, Workers: 1})

	_, err := b.Embed(context.Background(), mkChunks(2))

	var ef *rag.EmbeddingFailed
	require.ErrorAs(t, err, &ef)
	assert.Contains(t, ef.Err.Error(), "expected 2 vectors")
}

func TestEmbed_CancelledContext(t *testing.T) {
	client := &fakeEmbedClient{
		fn: func(int, []string) ([][]float32, error) {
			return nil, &modelprovider.UnavailableError{Status: 503}
		},
	}
	b := rag.NewBatchEmbedder(client, rag.EmbedOpts{BatchSize: 1, Workers: 1, MaxRetries: 3})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := b.Embed(ctx, mkChunks(2))
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, out)
}

func TestEmbed_NoChunks(t *testing.T) {
	client := &fakeEmbedClient{
		fn: func(_ int, texts []string) ([][]float32, error) { return lenVecs(texts), nil },
	}
	b := rag.NewBatchEmbedder(client, rag.EmbedOpts{})

	out, err := b.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, 0, client.callCount())
}

func TestBatchEmbedder_Signature(t *testing.T) {
	b := rag.NewBatchEmbedder(&fakeEmbedClient{}, rag.EmbedOpts{})
	assert.Equal(t, "fake/embed-v1", b.Signature())
}
