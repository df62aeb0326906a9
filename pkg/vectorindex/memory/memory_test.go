package memory_test

import (
	"context"
	"testing"

	"github.com/sabercore/saber/pkg/vectorindex/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuery_SelfRetrieval(t *testing.T) {
	ix := memory.New()
	ctx := context.Background()

	require.NoError(t, ix.Insert(ctx, "c1", []float32{1, 0, 0}))
	require.NoError(t, ix.Insert(ctx, "c2", []float32{0, 1, 0}))
	require.NoError(t, ix.Insert(ctx, "c3", []float32{0.7, 0.7, 0}))

	hits, err := ix.Query(ctx, []float32{1, 0, 0}, 3)
	require.NoError(t, err)

	// A chunk's own vector is its best match.
	require.NotEmpty(t, hits)
	assert.Equal(t, "c1", hits[0].ChunkID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
}

func TestQuery_OrdersByScoreDesc(t *testing.T) {
	ix := memory.New()
	ctx := context.Background()

	require.NoError(t, ix.Insert(ctx, "far", []float32{0, 1}))
	require.NoError(t, ix.Insert(ctx, "near", []float32{1, 0}))
	require.NoError(t, ix.Insert(ctx, "mid", []float32{0.6, 0.8}))

	hits, err := ix.Query(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)

	require.Len(t, hits, 3)
	assert.Equal(t, "near", hits[0].ChunkID)
	assert.Equal(t, "mid", hits[1].ChunkID)
	assert.Equal(t, "far", hits[2].ChunkID)
	assert.Greater(t, hits[0].Score, hits[1].Score)
	assert.Greater(t, hits[1].Score, hits[2].Score)
}

func TestQuery_TieKeepsInsertionOrder(t *testing.T) {
	ix := memory.New()
	ctx := context.Background()

	require.NoError(t, ix.Insert(ctx, "second", []float32{1, 0}))
	require.NoError(t, ix.Insert(ctx, "first", []float32{1, 0}))

	hits, err := ix.Query(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)

	require.Len(t, hits, 2)
	assert.Equal(t, "second", hits[0].ChunkID)
	assert.Equal(t, "first", hits[1].ChunkID)
}

func TestQuery_TruncatesToK(t *testing.T) {
	ix := memory.New()
	ctx := context.Background()

	require.NoError(t, ix.Insert(ctx, "a", []float32{1, 0}))
	require.NoError(t, ix.Insert(ctx, "b", []float32{0.9, 0.1}))
	require.NoError(t, ix.Insert(ctx, "c", []float32{0, 1}))

	hits, err := ix.Query(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestQuery_EmptyIndex(t *testing.T) {
	ix := memory.New()

	hits, err := ix.Query(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestQuery_RejectsNonPositiveK(t *testing.T) {
	ix := memory.New()

	_, err := ix.Query(context.Background(), []float32{1}, 0)
	assert.Error(t, err)
}

func TestQuery_DimensionMismatch(t *testing.T) {
	ix := memory.New()
	ctx := context.Background()

	require.NoError(t, ix.Insert(ctx, "a", []float32{1, 0, 0}))

	_, err := ix.Query(ctx, []float32{1, 0}, 1)
	assert.ErrorContains(t, err, "dimension")
}

func TestInsert_DimensionMismatch(t *testing.T) {
	ix := memory.New()
	ctx := context.Background()

	require.NoError(t, ix.Insert(ctx, "a", []float32{1, 0, 0}))

	err := ix.Insert(ctx, "b", []float32{1, 0})
	assert.ErrorContains(t, err, "dimension")
}

func TestInsert_Validation(t *testing.T) {
	ix := memory.New()
	ctx := context.Background()

	assert.Error(t, ix.Insert(ctx, "", []float32{1}))
	assert.Error(t, ix.Insert(ctx, "a", nil))
}

func TestInsert_ReplaceKeepsPosition(t *testing.T) {
	ix := memory.New()
	ctx := context.Background()

	require.NoError(t, ix.Insert(ctx, "a", []float32{0, 1}))
	require.NoError(t, ix.Insert(ctx, "b", []float32{1, 0}))
	require.NoError(t, ix.Insert(ctx, "a", []float32{1, 0}))

	assert.Equal(t, 2, ix.Len())

	// a now ties with b but keeps its earlier position.
	hits, err := ix.Query(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ChunkID)
	assert.Equal(t, "b", hits[1].ChunkID)
}

func TestInsert_ClonesVector(t *testing.T) {
	ix := memory.New()
	ctx := context.Background()

	vec := []float32{1, 0}
	require.NoError(t, ix.Insert(ctx, "a", vec))

	// Mutating the caller's slice must not affect the stored vector.
	vec[0] = 0
	vec[1] = 1

	hits, err := ix.Query(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
}

func TestDelete(t *testing.T) {
	ix := memory.New()
	ctx := context.Background()

	require.NoError(t, ix.Insert(ctx, "a", []float32{1, 0}))
	require.NoError(t, ix.Insert(ctx, "b", []float32{0, 1}))

	require.NoError(t, ix.Delete(ctx, "a"))
	assert.Equal(t, 1, ix.Len())

	hits, err := ix.Query(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].ChunkID)

	// Deleting an unknown id is a no-op.
	require.NoError(t, ix.Delete(ctx, "ghost"))
}

func TestClear(t *testing.T) {
	ix := memory.New()
	ctx := context.Background()

	require.NoError(t, ix.Insert(ctx, "a", []float32{1, 0, 0}))
	ix.Clear()

	assert.Equal(t, 0, ix.Len())

	// A fresh dimension is accepted after a clear.
	assert.NoError(t, ix.Insert(ctx, "b", []float32{1, 0}))
}
