package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sabercore/saber/pkg/docstore"
	"github.com/sabercore/saber/pkg/rag"
)

// seedDocs writes three small documents whose keyword vectors are mutually
// orthogonal, so retrieval ranking in tests is predictable.
func seedDocs(t *testing.T, eng *Engine) {
	t.Helper()

	require.NoError(t, eng.Docs().Write(
		docstore.File{Name: "alpha.txt", Data: []byte("alpha is the first letter of the Greek alphabet.")},
		docstore.File{Name: "beta.txt", Data: []byte("beta testing happens before a public release.")},
		docstore.File{Name: "gamma.txt", Data: []byte("gamma rays carry the most energetic photons.")},
	))
}

func TestEngine_BuildCorpus(t *testing.T) {
	eng := newTestEngine(t, newMockEmbedProvider())
	seedDocs(t, eng)

	sub := eng.Events().Subscribe(8)
	defer eng.Events().Unsubscribe(sub)

	corpus, err := eng.BuildCorpus(context.Background(), "kb")
	require.NoError(t, err)
	require.NotNil(t, corpus)
	assert.Equal(t, "kb", corpus.Name)
	assert.Equal(t, "mock/keyword-v1", corpus.Signature)
	require.Equal(t, 3, corpus.Len())
	for _, ch := range corpus.Chunks {
		assert.True(t, ch.Embedded())
	}

	got, ok := eng.Corpus(corpus.ID)
	require.True(t, ok)
	assert.Same(t, corpus, got)

	select {
	case e := <-sub.C:
		require.Equal(t, EventCorpusIngest, e.Kind)
		sum := e.Data.(IngestSummary)
		assert.Equal(t, corpus.ID, sum.CorpusID)
		assert.Equal(t, 3, sum.Documents)
		assert.Equal(t, 3, sum.Chunks)
		assert.Equal(t, 3, sum.Embedded)
		assert.Empty(t, sum.FailedDocs)
		assert.Zero(t, sum.FailedChunk)
	case <-time.After(time.Second):
		t.Fatal("no ingest event")
	}
}

func TestEngine_BuildCorpus_NamedSubset(t *testing.T) {
	eng := newTestEngine(t, newMockEmbedProvider())
	seedDocs(t, eng)

	corpus, err := eng.BuildCorpus(context.Background(), "kb", "alpha.txt", "beta.txt")
	require.NoError(t, err)
	assert.Equal(t, 2, corpus.Len())
}

func TestEngine_BuildCorpus_NoDocuments(t *testing.T) {
	eng := newTestEngine(t, newMockEmbedProvider())

	_, err := eng.BuildCorpus(context.Background(), "kb")
	assert.ErrorContains(t, err, "no documents to ingest")
	assert.Empty(t, eng.Corpora())
}

func TestEngine_BuildCorpus_NoEmbedder(t *testing.T) {
	eng := newTestEngine(t, newMockProvider())
	seedDocs(t, eng)

	_, err := eng.BuildCorpus(context.Background(), "kb")
	assert.ErrorIs(t, err, errNoEmbedder)
}

func TestEngine_BuildCorpus_MissingDocReported(t *testing.T) {
	eng := newTestEngine(t, newMockEmbedProvider())
	seedDocs(t, eng)

	corpus, err := eng.BuildCorpus(context.Background(), "kb", "alpha.txt", "missing.txt")

	var ingErr *rag.IngestionError
	require.ErrorAs(t, err, &ingErr)
	require.Len(t, ingErr.Failed, 1)
	assert.Equal(t, "missing.txt", ingErr.Failed[0].Name)

	// The readable document still made it in.
	require.NotNil(t, corpus)
	require.Equal(t, 1, corpus.Len())
	assert.True(t, corpus.Chunks[0].Embedded())

	_, ok := eng.Corpus(corpus.ID)
	assert.True(t, ok)
}

func TestEngine_BuildCorpus_EmbedFailureKeepsChunks(t *testing.T) {
	mock := newMockEmbedProvider()
	mock.docsErr = errors.New("embedding backend down")
	eng := newTestEngine(t, mock)
	seedDocs(t, eng)

	corpus, err := eng.BuildCorpus(context.Background(), "kb")

	var ef *rag.EmbeddingFailed
	require.ErrorAs(t, err, &ef)
	assert.Len(t, ef.ChunkIDs, 3)

	// The chunks survive without vectors and the corpus is persisted.
	require.NotNil(t, corpus)
	require.Equal(t, 3, corpus.Len())
	for _, ch := range corpus.Chunks {
		assert.False(t, ch.Embedded())
	}

	// Once the backend recovers the sweep embeds what is pending.
	mock.docsErr = nil
	n, err := eng.ReembedPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	updated, ok := eng.Corpus(corpus.ID)
	require.True(t, ok)
	for _, ch := range updated.Chunks {
		assert.True(t, ch.Embedded())
	}

	// Nothing left for the next pass.
	n, err = eng.ReembedPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEngine_BuildCorpus_CancelledContext(t *testing.T) {
	eng := newTestEngine(t, newMockEmbedProvider())
	seedDocs(t, eng)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	corpus, err := eng.BuildCorpus(ctx, "kb")
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, corpus)
	assert.Empty(t, eng.Corpora())
}

func TestEngine_DeleteCorpus(t *testing.T) {
	eng := newTestEngine(t, newMockEmbedProvider(mockResult{tokens: []string{"ok"}}))
	seedDocs(t, eng)

	corpus, err := eng.BuildCorpus(context.Background(), "kb")
	require.NoError(t, err)

	sess, err := eng.NewSession()
	require.NoError(t, err)
	require.NoError(t, sess.SetCorpus(corpus.ID))

	require.NoError(t, eng.DeleteCorpus(context.Background(), corpus.ID))
	_, ok := eng.Corpus(corpus.ID)
	assert.False(t, ok)
	assert.Empty(t, eng.Corpora())

	assert.ErrorContains(t, eng.DeleteCorpus(context.Background(), corpus.ID), "not found")

	// A session still bound to the deleted corpus fails its next turn.
	_, err = sess.Send(context.Background(), "query")
	assert.ErrorContains(t, err, "not found")

	// Rebinding restores it.
	require.NoError(t, sess.SetCorpus(""))
	_, err = sess.Send(context.Background(), "query")
	assert.NoError(t, err)

	// Gone from disk as well.
	eng2 := reopenEngine(t, eng)
	assert.Empty(t, eng2.Corpora())
}

func TestEngine_CorpusPersistsAcrossRestart(t *testing.T) {
	eng := newTestEngine(t, newMockEmbedProvider())
	seedDocs(t, eng)

	corpus, err := eng.BuildCorpus(context.Background(), "kb")
	require.NoError(t, err)

	eng2 := reopenEngine(t, eng)

	restored, ok := eng2.Corpus(corpus.ID)
	require.True(t, ok)
	assert.Equal(t, corpus.Name, restored.Name)
	assert.Equal(t, corpus.Signature, restored.Signature)
	require.Equal(t, corpus.Len(), restored.Len())
	for _, ch := range restored.Chunks {
		assert.True(t, ch.Embedded())
	}

	// The in-memory index is rebuilt from the persisted vectors, so
	// retrieval works without re-ingesting.
	prompt, used, err := eng2.augment(context.Background(), corpus.ID, "tell me about beta", eng2.Config().Parameters())
	require.NoError(t, err)
	require.NotEmpty(t, used)
	assert.Contains(t, used[0].Chunk.Text, "beta")
	assert.Contains(t, prompt, "Context:")
}

func TestEngine_ReembedJob(t *testing.T) {
	eng := newTestEngine(t, newMockEmbedProvider())

	job := eng.ReembedJob()
	assert.Equal(t, "reembed-pending", job.Name())
	assert.NoError(t, job.Run(context.Background()))
}

func TestSession_RagTurnInjectsContextAndCitations(t *testing.T) {
	mock := newMockEmbedProvider(mockResult{tokens: []string{"an answer"}})
	eng := newTestEngine(t, mock)
	seedDocs(t, eng)

	corpus, err := eng.BuildCorpus(context.Background(), "kb")
	require.NoError(t, err)

	sess, err := eng.NewSession()
	require.NoError(t, err)
	require.NoError(t, sess.SetCorpus(corpus.ID))
	assert.Equal(t, corpus.ID, sess.CorpusID())

	reply, err := sess.Send(context.Background(), "tell me about beta")
	require.NoError(t, err)
	assert.Equal(t, "an answer", reply.Text)

	// The provider saw the augmented prompt.
	sent := mock.lastCall()
	require.NotNil(t, sent)
	last, ok := sent.Last()
	require.True(t, ok)
	assert.Contains(t, last.Text, "Context:")
	assert.Contains(t, last.Text, "beta testing")
	assert.Contains(t, last.Text, "Question: tell me about beta")

	// The history keeps what the user actually typed.
	hist := sess.History()
	require.Len(t, hist, 2)
	assert.Equal(t, "tell me about beta", hist[0].Text)

	// The reply cites the injected chunks, best match first.
	require.NotEmpty(t, reply.Citations)
	top, ok := corpus.Chunk(reply.Citations[0].ChunkID)
	require.True(t, ok)
	assert.Contains(t, top.Text, "beta")
	assert.Greater(t, reply.Citations[0].Score, 0.9)
}

func TestSession_RetrievalFailureAppendsMarker(t *testing.T) {
	mock := newMockEmbedProvider()
	mock.queryErr = errors.New("embedding service down")
	eng := newTestEngine(t, mock)
	seedDocs(t, eng)

	corpus, err := eng.BuildCorpus(context.Background(), "kb")
	require.NoError(t, err)

	sess, err := eng.NewSession()
	require.NoError(t, err)
	require.NoError(t, sess.SetCorpus(corpus.ID))

	_, err = sess.Send(context.Background(), "anything")
	require.ErrorContains(t, err, "embed query")

	// The completion never ran; the failed turn is visible in the history.
	assert.Zero(t, mock.callCount())
	hist := sess.History()
	require.Len(t, hist, 2)
	assert.True(t, hist[1].Failed)
}

func TestSession_CorpusSignatureMismatch(t *testing.T) {
	eng := newTestEngine(t, newMockEmbedProvider())

	stale := rag.NewCorpus("old-kb", "other-model/v0")
	require.NoError(t, eng.saveCorpus(stale))

	sess, err := eng.NewSession()
	require.NoError(t, err)
	require.NoError(t, sess.SetCorpus(stale.ID))

	_, err = sess.Send(context.Background(), "hello")

	var mismatch *rag.SignatureMismatch
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "other-model/v0", mismatch.CorpusSignature)
	assert.Equal(t, "mock/keyword-v1", mismatch.EmbedderSignature)

	hist := sess.History()
	require.Len(t, hist, 2)
	assert.True(t, hist[1].Failed)
}
