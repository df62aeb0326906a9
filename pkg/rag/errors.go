package rag

import (
	"fmt"
	"strings"
)

// DocumentError records why one document failed to ingest.
type DocumentError struct {
	DocumentID string
	Name       string
	Err        error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("rag: document %q: %v", e.Name, e.Err)
}

func (e *DocumentError) Unwrap() error { return e.Err }

// IngestionError reports the documents that failed during a batch ingest.
// Documents that ingested successfully are unaffected; the error carries only
// the failures.
type IngestionError struct {
	Failed []*DocumentError
}

func (e *IngestionError) Error() string {
	names := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		names[i] = f.Name
	}
	return fmt.Sprintf("rag: %d document(s) failed to ingest: %s", len(e.Failed), strings.Join(names, ", "))
}

// EmbeddingFailed reports the chunks whose embedding attempts were exhausted.
// Chunks outside ChunkIDs embedded successfully and keep their vectors.
type EmbeddingFailed struct {
	ChunkIDs []string
	Err      error
}

func (e *EmbeddingFailed) Error() string {
	return fmt.Sprintf("rag: embedding failed for %d chunk(s): %v", len(e.ChunkIDs), e.Err)
}

func (e *EmbeddingFailed) Unwrap() error { return e.Err }

// SignatureMismatch rejects a retrieval whose query would be embedded by a
// different model than the corpus was built with. Vector spaces are not
// comparable across models.
type SignatureMismatch struct {
	CorpusSignature   string
	EmbedderSignature string
}

func (e *SignatureMismatch) Error() string {
	return fmt.Sprintf("rag: corpus embedded with %q, embedder is %q", e.CorpusSignature, e.EmbedderSignature)
}
