package rag_test

import (
	"strings"
	"testing"

	"github.com/sabercore/saber/pkg/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIngestor_Validation(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
	}{
		{"zero size", 0, 0},
		{"negative size", -10, 0},
		{"negative overlap", 100, -1},
		{"overlap equals size", 100, 100},
		{"overlap exceeds size", 100, 150},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := rag.NewIngestor(tt.size, tt.overlap)
			assert.Error(t, err)
		})
	}
}

func TestIngest_SingleChunk(t *testing.T) {
	in, err := rag.NewIngestor(100, 10)
	require.NoError(t, err)

	doc := rag.Document{ID: "d1", Name: "short.txt", Text: "A short document."}

	chunks, err := in.Ingest(doc)
	require.NoError(t, err)

	require.Len(t, chunks, 1)
	assert.Equal(t, "A short document.", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, len([]rune(doc.Text)), chunks[0].End)
	assert.Equal(t, "d1", chunks[0].DocumentID)
	assert.Equal(t, 0, chunks[0].Index)
	assert.NotEmpty(t, chunks[0].ID)
	assert.False(t, chunks[0].Embedded())
}

func TestIngest_CoverageAndOverlap(t *testing.T) {
	const (
		size    = 50
		overlap = 10
	)

	in, err := rag.NewIngestor(size, overlap)
	require.NoError(t, err)

	// No boundaries anywhere, so every cut is a hard cut at the target.
	text := strings.Repeat("abcdefghij", 30)

	chunks, err := in.Ingest(rag.Document{ID: "d", Name: "flat.txt", Text: text})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	runes := []rune(text)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, len(runes), chunks[len(chunks)-1].End)

	for i, c := range chunks {
		assert.Equal(t, string(runes[c.Start:c.End]), c.Text)
		assert.Equal(t, i, c.Index)

		if i > 0 {
			prev := chunks[i-1]
			// No gap, and consecutive chunks share at least the overlap.
			assert.LessOrEqual(t, c.Start, prev.End)
			assert.GreaterOrEqual(t, prev.End-c.Start, overlap)
		}
	}
}

func TestIngest_PrefersParagraphBreak(t *testing.T) {
	para1 := strings.Repeat("a", 80) + "\n\n"
	para2 := strings.Repeat("b", 100)

	in, err := rag.NewIngestor(100, 0)
	require.NoError(t, err)

	chunks, err := in.Ingest(rag.Document{ID: "d", Name: "paras.txt", Text: para1 + para2})
	require.NoError(t, err)

	require.Len(t, chunks, 2)
	assert.Equal(t, para1, chunks[0].Text)
	assert.Equal(t, 82, chunks[0].End)
	assert.Equal(t, para2, chunks[1].Text)
}

func TestIngest_FallsBackToSentenceEnd(t *testing.T) {
	s1 := strings.Repeat("a", 78) + ". "
	s2 := strings.Repeat("b", 60)

	in, err := rag.NewIngestor(100, 0)
	require.NoError(t, err)

	chunks, err := in.Ingest(rag.Document{ID: "d", Name: "sentences.txt", Text: s1 + s2})
	require.NoError(t, err)

	require.Len(t, chunks, 2)
	assert.Equal(t, 80, chunks[0].End)
	assert.Equal(t, s2, chunks[1].Text)
}

func TestIngest_HardCutWithoutBoundary(t *testing.T) {
	in, err := rag.NewIngestor(100, 0)
	require.NoError(t, err)

	chunks, err := in.Ingest(rag.Document{ID: "d", Name: "solid.txt", Text: strings.Repeat("x", 250)})
	require.NoError(t, err)

	require.Len(t, chunks, 3)
	assert.Equal(t, 100, chunks[0].End)
	assert.Equal(t, 200, chunks[1].End)
	assert.Equal(t, 250, chunks[2].End)
}

func TestIngest_RuneOffsets(t *testing.T) {
	in, err := rag.NewIngestor(100, 0)
	require.NoError(t, err)

	// Two-byte runes: offsets must count runes, not bytes.
	chunks, err := in.Ingest(rag.Document{ID: "d", Name: "accents.txt", Text: strings.Repeat("é", 120)})
	require.NoError(t, err)

	require.Len(t, chunks, 2)
	assert.Len(t, []rune(chunks[0].Text), 100)
	assert.Equal(t, 100, chunks[1].Start)
	assert.Equal(t, 120, chunks[1].End)
}

func TestIngest_EmptyDocument(t *testing.T) {
	in, err := rag.NewIngestor(100, 0)
	require.NoError(t, err)

	_, err = in.Ingest(rag.Document{ID: "d", Name: "blank.txt", Text: "   \n\t"})
	require.Error(t, err)

	var de *rag.DocumentError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "blank.txt", de.Name)
	assert.Contains(t, err.Error(), "empty")
}

func TestIngest_InvalidUTF8(t *testing.T) {
	in, err := rag.NewIngestor(100, 0)
	require.NoError(t, err)

	_, err = in.Ingest(rag.Document{ID: "d", Name: "binary.bin", Text: string([]byte{0xff, 0xfe, 0xfd})})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UTF-8")
}

func TestIngestAll_PartialFailure(t *testing.T) {
	in, err := rag.NewIngestor(100, 0)
	require.NoError(t, err)

	docs := []rag.Document{
		{ID: "d1", Name: "one.txt", Text: "First document."},
		{ID: "d2", Name: "empty.txt", Text: ""},
		{ID: "d3", Name: "three.txt", Text: "Third document."},
	}

	chunks, err := in.IngestAll(docs)

	var ie *rag.IngestionError
	require.ErrorAs(t, err, &ie)
	require.Len(t, ie.Failed, 1)
	assert.Equal(t, "empty.txt", ie.Failed[0].Name)
	assert.Contains(t, ie.Error(), "empty.txt")

	// The two good documents are fully chunked despite the failure.
	ids := make(map[string]bool)
	for _, c := range chunks {
		ids[c.DocumentID] = true
	}
	assert.True(t, ids["d1"])
	assert.True(t, ids["d3"])
	assert.False(t, ids["d2"])
}

func TestIngestAll_AllGood(t *testing.T) {
	in, err := rag.NewIngestor(100, 0)
	require.NoError(t, err)

	chunks, err := in.IngestAll([]rag.Document{
		{ID: "d1", Name: "one.txt", Text: "First."},
		{ID: "d2", Name: "two.txt", Text: "Second."},
	})
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
}
