package rag

import "github.com/google/uuid"

// Corpus is an ordered collection of chunks sharing one embedding model
// signature. Mixing vectors from different models in one corpus is forbidden,
// so the signature is fixed at creation. Chunk order is ingestion order and
// breaks retrieval score ties deterministically.
type Corpus struct {
	ID        string  `json:"id"`
	Name      string  `json:"name,omitempty"`
	Signature string  `json:"signature"`
	Chunks    []Chunk `json:"chunks"`

	byID map[string]int
}

// NewCorpus creates an empty corpus bound to an embedding model signature.
func NewCorpus(name, signature string) *Corpus {
	return &Corpus{
		ID:        uuid.NewString(),
		Name:      name,
		Signature: signature,
	}
}

// Add appends chunks in ingestion order. A chunk id already present is
// skipped so re-adding can never duplicate entries.
func (c *Corpus) Add(chunks ...Chunk) {
	c.ensureIndex()

	for _, ch := range chunks {
		if _, dup := c.byID[ch.ID]; dup {
			continue
		}
		c.byID[ch.ID] = len(c.Chunks)
		c.Chunks = append(c.Chunks, ch)
	}
}

// Len returns the number of chunks.
func (c *Corpus) Len() int { return len(c.Chunks) }

// Chunk returns the chunk with the given id.
func (c *Corpus) Chunk(id string) (Chunk, bool) {
	c.ensureIndex()

	pos, ok := c.byID[id]
	if !ok {
		return Chunk{}, false
	}
	return c.Chunks[pos], true
}

// Position returns the ingestion position of the chunk with the given id.
func (c *Corpus) Position(id string) (int, bool) {
	c.ensureIndex()

	pos, ok := c.byID[id]
	return pos, ok
}

// ensureIndex rebuilds the id lookup, needed after JSON unmarshaling.
func (c *Corpus) ensureIndex() {
	if c.byID != nil {
		return
	}
	c.byID = make(map[string]int, len(c.Chunks))
	for i, ch := range c.Chunks {
		c.byID[ch.ID] = i
	}
}
