package rag_test

import (
	"encoding/json"
	"testing"

	"github.com/sabercore/saber/pkg/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorpus_AddAndLookup(t *testing.T) {
	c := rag.NewCorpus("notes", "fake/embed-v1")
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, 0, c.Len())

	c.Add(
		rag.Chunk{ID: "a", DocumentID: "d", Index: 0, Text: "first"},
		rag.Chunk{ID: "b", DocumentID: "d", Index: 1, Text: "second"},
	)

	require.Equal(t, 2, c.Len())

	ch, ok := c.Chunk("b")
	require.True(t, ok)
	assert.Equal(t, "second", ch.Text)

	pos, ok := c.Position("b")
	require.True(t, ok)
	assert.Equal(t, 1, pos)

	_, ok = c.Chunk("missing")
	assert.False(t, ok)
}

func TestCorpus_AddSkipsDuplicates(t *testing.T) {
	c := rag.NewCorpus("notes", "fake/embed-v1")

	c.Add(rag.Chunk{ID: "a", Text: "original"})
	c.Add(rag.Chunk{ID: "a", Text: "replacement"}, rag.Chunk{ID: "b", Text: "new"})

	require.Equal(t, 2, c.Len())

	ch, ok := c.Chunk("a")
	require.True(t, ok)
	assert.Equal(t, "original", ch.Text)
}

func TestCorpus_JSONRoundTrip(t *testing.T) {
	c := rag.NewCorpus("notes", "fake/embed-v1")
	c.Add(
		rag.Chunk{ID: "a", DocumentID: "d", Index: 0, Text: "first", Start: 0, End: 5, Vector: []float32{0.1, 0.2}},
		rag.Chunk{ID: "b", DocumentID: "d", Index: 1, Text: "second", Start: 3, End: 9},
	)

	data, err := json.Marshal(c)
	require.NoError(t, err)

	var back rag.Corpus
	require.NoError(t, json.Unmarshal(data, &back))

	assert.Equal(t, c.ID, back.ID)
	assert.Equal(t, c.Name, back.Name)
	assert.Equal(t, c.Signature, back.Signature)
	require.Equal(t, 2, back.Len())

	// Lookups work on the decoded corpus without any explicit reindexing.
	ch, ok := back.Chunk("a")
	require.True(t, ok)
	assert.Equal(t, []float32{0.1, 0.2}, ch.Vector)
	assert.True(t, ch.Embedded())

	pos, ok := back.Position("b")
	require.True(t, ok)
	assert.Equal(t, 1, pos)

	ch, ok = back.Chunk("b")
	require.True(t, ok)
	assert.False(t, ch.Embedded())
}
