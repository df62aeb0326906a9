package rag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sabercore/saber/pkg/modelprovider"
)

// Retriever answers queries against a corpus through a vector index.
type Retriever struct {
	client EmbeddingClient
	index  VectorIndex
}

// NewRetriever creates a Retriever over an embedding client and the index
// holding the corpus vectors.
func NewRetriever(client EmbeddingClient, index VectorIndex) *Retriever {
	return &Retriever{client: client, index: index}
}

// Retrieve embeds the query and returns the corpus's top-k chunks by
// descending similarity. Ties are broken by ingestion order, earlier chunk
// first, so results are deterministic. A corpus built with a different
// embedding model than the client's is rejected with *SignatureMismatch
// before any network call.
func (r *Retriever) Retrieve(ctx context.Context, corpus *Corpus, query string, k int) (*RetrievalResult, error) {
	if corpus.Signature != r.client.Signature() {
		return nil, &SignatureMismatch{
			CorpusSignature:   corpus.Signature,
			EmbedderSignature: r.client.Signature(),
		}
	}
	if k <= 0 {
		return nil, errors.New("rag: k must be positive")
	}

	vec, err := r.client.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("rag: embed query: %w", err)
	}

	hits, err := r.index.Query(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("rag: query index: %w", err)
	}

	scored := make([]ScoredChunk, 0, len(hits))
	for _, h := range hits {
		ch, ok := corpus.Chunk(h.ChunkID)
		if !ok {
			// Stale index entry from another corpus; not ours to return.
			continue
		}
		scored = append(scored, ScoredChunk{Chunk: ch, Score: h.Score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		pi, _ := corpus.Position(scored[i].Chunk.ID)
		pj, _ := corpus.Position(scored[j].Chunk.ID)
		return pi < pj
	})

	if len(scored) > k {
		scored = scored[:k]
	}

	return &RetrievalResult{Query: query, Chunks: scored, K: k}, nil
}

// promptTemplate frames retrieved context and the user question for the
// model call.
const promptTemplate = `Use the following context to answer the question. If the context does not contain the answer, say so.

Context:
%s
Question: %s`

// BuildPrompt renders the augmentation template over the retrieved chunks,
// dropping chunks from the lowest-ranked end until the rendered prompt fits
// within tokenBudget. It returns the prompt and the chunks actually kept.
// With no chunks left the raw query is returned untemplated.
func BuildPrompt(query string, chunks []ScoredChunk, tokenBudget int) (string, []ScoredChunk) {
	est := modelprovider.TokenEstimator{}

	used := chunks
	for {
		if len(used) == 0 {
			return query, nil
		}

		prompt := renderPrompt(query, used)
		if tokenBudget <= 0 || est.EstimateText(prompt) <= tokenBudget {
			return prompt, used
		}

		used = used[:len(used)-1]
	}
}

func renderPrompt(query string, chunks []ScoredChunk) string {
	var b strings.Builder
	for i, sc := range chunks {
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, strings.TrimSpace(sc.Chunk.Text))
	}
	return fmt.Sprintf(promptTemplate, b.String(), query)
}
