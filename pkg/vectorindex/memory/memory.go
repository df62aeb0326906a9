// Package memory provides an in-process vector index using brute-force
// cosine similarity. It is the default backend: no external service, fully
// deterministic, good up to tens of thousands of chunks.
package memory

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"sync"

	"github.com/sabercore/saber/pkg/rag"
)

// Index stores vectors keyed by chunk id. All vectors must share one
// dimension, fixed by the first insert.
type Index struct {
	mu      sync.RWMutex
	dim     int
	order   []string
	vectors map[string][]float32
}

func New() *Index {
	return &Index{vectors: make(map[string][]float32)}
}

// Insert stores a copy of vector under chunkID. Inserting an existing id
// replaces its vector but keeps its original insertion position.
func (ix *Index) Insert(_ context.Context, chunkID string, vector []float32) error {
	if chunkID == "" {
		return fmt.Errorf("memory: empty chunk id")
	}
	if len(vector) == 0 {
		return fmt.Errorf("memory: empty vector for chunk %s", chunkID)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.dim == 0 {
		ix.dim = len(vector)
	} else if len(vector) != ix.dim {
		return fmt.Errorf("memory: vector dimension %d does not match index dimension %d", len(vector), ix.dim)
	}

	if _, exists := ix.vectors[chunkID]; !exists {
		ix.order = append(ix.order, chunkID)
	}
	ix.vectors[chunkID] = slices.Clone(vector)

	return nil
}

// Query returns the k nearest chunks by cosine similarity, best first.
// Equal scores keep insertion order.
func (ix *Index) Query(_ context.Context, vector []float32, k int) ([]rag.Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("memory: k must be positive")
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(ix.vectors) > 0 && len(vector) != ix.dim {
		return nil, fmt.Errorf("memory: query dimension %d does not match index dimension %d", len(vector), ix.dim)
	}

	hits := make([]rag.Hit, 0, len(ix.order))
	for _, id := range ix.order {
		hits = append(hits, rag.Hit{ChunkID: id, Score: cosine(vector, ix.vectors[id])})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Delete removes the chunk. Deleting an unknown id is a no-op.
func (ix *Index) Delete(_ context.Context, chunkID string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, exists := ix.vectors[chunkID]; !exists {
		return nil
	}
	delete(ix.vectors, chunkID)
	ix.order = slices.DeleteFunc(ix.order, func(id string) bool { return id == chunkID })

	return nil
}

// Clear drops every vector and resets the dimension.
func (ix *Index) Clear() {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.dim = 0
	ix.order = nil
	ix.vectors = make(map[string][]float32)
}

// Len returns the number of stored vectors.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.vectors)
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
