package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// WrapCache wraps an EmbeddingClient with an expiring LRU cache keyed by
// signature, task, and content hash. A non-positive size or ttl disables
// caching and returns next unchanged.
func WrapCache(next EmbeddingClient, size int, ttl time.Duration) EmbeddingClient {
	if next == nil || size <= 0 || ttl <= 0 {
		return next
	}
	return &cachingClient{
		next:  next,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

type cachingClient struct {
	next  EmbeddingClient
	cache *expirable.LRU[string, []float32]
}

// EmbedDocuments serves cached vectors where possible and embeds only the
// misses, preserving input order.
func (c *cachingClient) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	var (
		missTexts []string
		missIdx   []int
	)
	for i, text := range texts {
		if cached, ok := c.cache.Get(c.key("doc", text)); ok {
			out[i] = cloneVector(cached)
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.next.EmbedDocuments(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	for j, i := range missIdx {
		c.cache.Add(c.key("doc", texts[i]), cloneVector(vecs[j]))
		out[i] = vecs[j]
	}

	return out, nil
}

func (c *cachingClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := c.key("query", text)
	if cached, ok := c.cache.Get(key); ok {
		return cloneVector(cached), nil
	}

	vec, err := c.next.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}

	c.cache.Add(key, cloneVector(vec))
	return vec, nil
}

func (c *cachingClient) Signature() string { return c.next.Signature() }

// key builds the cache key from signature, task, and a content hash.
func (c *cachingClient) key(task, text string) string {
	sum := sha256.Sum256([]byte(text))
	return "embed:" + c.next.Signature() + ":" + task + ":" + hex.EncodeToString(sum[:])
}

// cloneVector copies a vector so cached entries are never aliased by callers.
func cloneVector(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
