package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sabercore/saber/pkg/models"
	"github.com/sabercore/saber/pkg/rag"
)

// IngestSummary is the Data payload of an EventCorpusIngest event.
type IngestSummary struct {
	CorpusID    string
	CorpusName  string
	Documents   int
	Chunks      int
	Embedded    int
	FailedDocs  []string
	FailedChunk int
}

// Corpus returns a registered corpus by id.
func (e *Engine) Corpus(id string) (*rag.Corpus, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.corpora[id]
	return c, ok
}

// Corpora returns the registered corpora sorted by name.
func (e *Engine) Corpora() []*rag.Corpus {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*rag.Corpus, 0, len(e.corpora))
	for _, c := range e.corpora {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})

	return out
}

// BuildCorpus ingests the named documents from the document store, embeds
// their chunks, inserts the vectors into the index, and persists the
// resulting corpus. An empty docNames ingests every stored document.
//
// Failures are partial: a document that cannot be read or chunked is skipped
// and reported, a chunk whose embedding attempts are exhausted stays in the
// corpus without a vector and is retried by the re-embedding sweep. The
// returned error describes what failed while the corpus holds everything
// that succeeded.
func (e *Engine) BuildCorpus(ctx context.Context, name string, docNames ...string) (*rag.Corpus, error) {
	if e.embedder == nil {
		return nil, errNoEmbedder
	}
	if err := e.ensureIndex(ctx); err != nil {
		return nil, err
	}

	if len(docNames) == 0 {
		var err error
		docNames, err = e.docs.List()
		if err != nil {
			return nil, fmt.Errorf("engine: list documents: %w", err)
		}
	}
	if len(docNames) == 0 {
		return nil, errors.New("engine: no documents to ingest")
	}

	var failed []*rag.DocumentError
	docs := make([]rag.Document, 0, len(docNames))
	for _, n := range docNames {
		data, err := e.docs.Read(n)
		if err != nil {
			failed = append(failed, &rag.DocumentError{Name: n, Err: err})
			continue
		}
		docs = append(docs, rag.Document{ID: uuid.NewString(), Name: n, Text: string(data)})
	}

	chunks, err := e.ingestor.IngestAll(docs)
	if err != nil {
		var ingErr *rag.IngestionError
		if !errors.As(err, &ingErr) {
			return nil, err
		}
		failed = append(failed, ingErr.Failed...)
	}

	embedded, embedErr := e.batch.Embed(ctx, chunks)
	if embedErr != nil {
		var ef *rag.EmbeddingFailed
		if !errors.As(embedErr, &ef) {
			// Cancellation or another non-partial failure: no corpus.
			return nil, embedErr
		}
	}

	corpus := rag.NewCorpus(name, e.embedder.Signature())
	corpus.Add(embedded...)

	inserted, insertErr := e.insertVectors(ctx, corpus.Chunks)

	if err := e.saveCorpus(corpus); err != nil {
		return nil, err
	}

	summary := IngestSummary{
		CorpusID:   corpus.ID,
		CorpusName: corpus.Name,
		Documents:  len(docs),
		Chunks:     corpus.Len(),
		Embedded:   inserted,
	}
	for _, f := range failed {
		summary.FailedDocs = append(summary.FailedDocs, f.Name)
	}
	summary.FailedChunk = corpus.Len() - inserted
	e.events.Publish(Event{Kind: EventCorpusIngest, Timestamp: time.Now(), Data: summary})

	e.log.Info("corpus built",
		zap.String("corpus", corpus.ID),
		zap.String("name", corpus.Name),
		zap.Int("documents", summary.Documents),
		zap.Int("chunks", summary.Chunks),
		zap.Int("embedded", summary.Embedded))

	var buildErr error
	if len(failed) > 0 {
		buildErr = &rag.IngestionError{Failed: failed}
	}

	return corpus, errors.Join(buildErr, embedErr, insertErr)
}

// DeleteCorpus removes a corpus: its vectors from the index, its record from
// disk, and its registry entry. Sessions still bound to it will fail their
// next retrieval until rebound.
func (e *Engine) DeleteCorpus(ctx context.Context, id string) error {
	corpus, ok := e.Corpus(id)
	if !ok {
		return fmt.Errorf("engine: corpus %q not found", id)
	}

	var errs []error
	for _, ch := range corpus.Chunks {
		if !ch.Embedded() {
			continue
		}
		if err := e.index.Delete(ctx, ch.ID); err != nil {
			errs = append(errs, err)
		}
	}

	if err := e.corpusStore.Delete(id); err != nil {
		errs = append(errs, err)
	}

	e.mu.Lock()
	delete(e.corpora, id)
	e.mu.Unlock()

	return errors.Join(errs...)
}

// ReembedPending retries embedding for every chunk that is still vectorless,
// across all corpora. It returns the number of chunks embedded this pass.
func (e *Engine) ReembedPending(ctx context.Context) (int, error) {
	if e.embedder == nil {
		return 0, nil
	}

	var total int
	var errs []error
	for _, corpus := range e.Corpora() {
		n, err := e.reembedCorpus(ctx, corpus)
		total += n
		if err != nil {
			errs = append(errs, err)
		}
		if ctx.Err() != nil {
			break
		}
	}

	return total, errors.Join(errs...)
}

func (e *Engine) reembedCorpus(ctx context.Context, corpus *rag.Corpus) (int, error) {
	var pending []rag.Chunk
	for _, ch := range corpus.Chunks {
		if !ch.Embedded() {
			pending = append(pending, ch)
		}
	}
	if len(pending) == 0 {
		return 0, nil
	}

	if err := e.ensureIndex(ctx); err != nil {
		return 0, err
	}

	embedded, embedErr := e.batch.Embed(ctx, pending)
	if embedErr != nil {
		var ef *rag.EmbeddingFailed
		if !errors.As(embedErr, &ef) {
			return 0, embedErr
		}
	}

	// Registered corpora are read concurrently by retrievals, so updates go
	// through a fresh copy that replaces the registry entry at the end.
	updated := &rag.Corpus{
		ID:        corpus.ID,
		Name:      corpus.Name,
		Signature: corpus.Signature,
		Chunks:    append([]rag.Chunk(nil), corpus.Chunks...),
	}

	var done int
	var errs []error
	for _, ch := range embedded {
		if !ch.Embedded() {
			continue
		}
		pos, ok := updated.Position(ch.ID)
		if !ok {
			continue
		}
		if err := e.index.Insert(ctx, ch.ID, ch.Vector); err != nil {
			errs = append(errs, err)
			continue
		}
		updated.Chunks[pos] = ch
		done++
	}

	if done > 0 {
		if err := e.saveCorpus(updated); err != nil {
			errs = append(errs, err)
		}
		e.log.Info("re-embedded pending chunks",
			zap.String("corpus", corpus.ID),
			zap.Int("embedded", done),
			zap.Int("pending", len(pending)-done))
	}

	if embedErr != nil {
		errs = append(errs, embedErr)
	}

	return done, errors.Join(errs...)
}

// augment retrieves context for the query from the given corpus and builds
// the augmented prompt, capped so that prompt plus reply fit the context
// window. It returns the prompt and the chunks actually injected.
func (e *Engine) augment(ctx context.Context, corpusID, query string, params models.Parameters) (string, []rag.ScoredChunk, error) {
	corpus, ok := e.Corpus(corpusID)
	if !ok {
		return "", nil, fmt.Errorf("engine: corpus %q not found", corpusID)
	}
	if e.retriever == nil {
		return "", nil, errNoEmbedder
	}
	if err := e.ensureIndex(ctx); err != nil {
		return "", nil, err
	}

	res, err := e.retriever.Retrieve(ctx, corpus, query, e.cfg.RetrievalK)
	if err != nil {
		return "", nil, err
	}

	budget := params.ContextWindow - params.MaxTokens
	prompt, used := rag.BuildPrompt(query, res.Chunks, budget)

	return prompt, used, nil
}

// insertVectors inserts every embedded chunk into the index. It returns how
// many vectors were inserted and any insert errors joined.
func (e *Engine) insertVectors(ctx context.Context, chunks []rag.Chunk) (int, error) {
	var n int
	var errs []error
	for _, ch := range chunks {
		if !ch.Embedded() {
			continue
		}
		if err := e.index.Insert(ctx, ch.ID, ch.Vector); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}

	return n, errors.Join(errs...)
}

// saveCorpus persists a corpus and registers it for lookup.
func (e *Engine) saveCorpus(corpus *rag.Corpus) error {
	if err := e.corpusStore.Save(corpus.ID, *corpus); err != nil {
		return fmt.Errorf("engine: save corpus %q: %w", corpus.ID, err)
	}

	e.mu.Lock()
	e.corpora[corpus.ID] = corpus
	e.mu.Unlock()

	return nil
}

var errNoEmbedder = errors.New("engine: no embedding-capable provider configured")
