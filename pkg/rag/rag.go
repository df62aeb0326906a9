// Package rag implements the retrieval pipeline: document chunking, batched
// embedding, vector index access, and augmented prompt assembly.
//
// The pipeline runs leaf-first: an Ingestor splits documents into chunks, a
// BatchEmbedder attaches vectors, the chunks are inserted into a VectorIndex,
// and a Retriever queries that index to build a context-augmented prompt for
// the model call.
package rag

import "context"

// Document is a named source text submitted for ingestion.
type Document struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Text string `json:"text"`
}

// Chunk is a bounded span of source-document text, the unit of embedding and
// retrieval. Start and End are rune offsets into the source document. Vector
// is nil until the chunk has been embedded, set exactly once by the embedder,
// and never mutated afterward.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Index      int       `json:"index"`
	Text       string    `json:"text"`
	Start      int       `json:"start"`
	End        int       `json:"end"`
	Vector     []float32 `json:"vector,omitempty"`
}

// Embedded reports whether the chunk has a vector attached.
func (c Chunk) Embedded() bool { return c.Vector != nil }

// ScoredChunk pairs a chunk with its similarity score for one query.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// RetrievalResult is the outcome of one retrieval call: the top-k chunks in
// descending similarity order. Ephemeral, never persisted.
type RetrievalResult struct {
	Query  string
	Chunks []ScoredChunk
	K      int
}

// EmbeddingClient maps texts to vectors. Implementations batch documents in
// one call and tag their vector space with a stable signature; vectors from
// different signatures are never comparable.
type EmbeddingClient interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Signature() string
}

// Hit is one nearest-neighbor match returned by a VectorIndex query.
type Hit struct {
	ChunkID string
	Score   float64
}

// VectorIndex is the consumed interface over an external nearest-neighbor
// store. The pipeline inserts each successfully embedded chunk exactly once
// and never queries an index with a vector from a different embedding model.
type VectorIndex interface {
	Insert(ctx context.Context, chunkID string, vector []float32) error
	Query(ctx context.Context, vector []float32, k int) ([]Hit, error)
	Delete(ctx context.Context, chunkID string) error
}
