// Package qdrant implements the vector index on a Qdrant server over its
// REST API. Collections are created with cosine distance; chunk ids are used
// directly as point ids and echoed in the payload.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sabercore/saber/pkg/rag"
)

const (
	defaultTimeout = 15 * time.Second
	distanceCosine = "Cosine"
)

type Config struct {
	URL        string        // Server base URL, e.g. http://localhost:6333.
	APIKey     string        // Optional, sent as the api-key header.
	Collection string        // Collection name.
	Dimension  int           // Vector size the collection is created with.
	Timeout    time.Duration // Per-request timeout (default 15s).
}

// Index is a minimal REST client to one Qdrant collection.
type Index struct {
	baseURL    string
	apiKey     string
	collection string
	dim        int
	client     *http.Client
}

func New(cfg Config) (*Index, error) {
	switch {
	case cfg.URL == "":
		return nil, errors.New("qdrant: url is required")
	case cfg.Collection == "":
		return nil, errors.New("qdrant: collection is required")
	case cfg.Dimension <= 0:
		return nil, errors.New("qdrant: dimension must be positive")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	return &Index{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dim:        cfg.Dimension,
		client:     &http.Client{Timeout: timeout},
	}, nil
}

// Ensure creates the collection if missing. Qdrant answers 200 for an
// existing collection with the same schema, so calling it again is safe.
func (ix *Index) Ensure(ctx context.Context) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     ix.dim,
			"distance": distanceCosine,
		},
	}
	return ix.do(ctx, http.MethodPut, ix.path(""), body, nil)
}

// Insert upserts one point under chunkID, waiting for the write to be
// applied so a following Query sees it.
func (ix *Index) Insert(ctx context.Context, chunkID string, vector []float32) error {
	if chunkID == "" {
		return errors.New("qdrant: empty chunk id")
	}
	if len(vector) != ix.dim {
		return fmt.Errorf("qdrant: vector dimension %d does not match collection dimension %d", len(vector), ix.dim)
	}

	body := map[string]any{
		"points": []map[string]any{{
			"id":      chunkID,
			"vector":  vector,
			"payload": map[string]any{"chunk_id": chunkID},
		}},
	}
	return ix.do(ctx, http.MethodPut, ix.path("/points?wait=true"), body, nil)
}

// Query returns the k nearest points, best first.
func (ix *Index) Query(ctx context.Context, vector []float32, k int) ([]rag.Hit, error) {
	if k <= 0 {
		return nil, errors.New("qdrant: k must be positive")
	}

	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}

	var resp struct {
		Result []struct {
			ID      string         `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := ix.do(ctx, http.MethodPost, ix.path("/points/search"), req, &resp); err != nil {
		return nil, err
	}

	hits := make([]rag.Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		id := r.ID
		if v, ok := r.Payload["chunk_id"].(string); ok {
			id = v
		}
		hits = append(hits, rag.Hit{ChunkID: id, Score: r.Score})
	}
	return hits, nil
}

// Delete removes one point. Qdrant treats deleting an unknown id as success.
func (ix *Index) Delete(ctx context.Context, chunkID string) error {
	body := map[string]any{"points": []string{chunkID}}
	return ix.do(ctx, http.MethodPost, ix.path("/points/delete?wait=true"), body, nil)
}

// Drop removes the whole collection.
func (ix *Index) Drop(ctx context.Context) error {
	return ix.do(ctx, http.MethodDelete, ix.path(""), nil, nil)
}

func (ix *Index) path(suffix string) string {
	return "/collections/" + ix.collection + suffix
}

func (ix *Index) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("qdrant: encode request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, ix.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("qdrant: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if ix.apiKey != "" {
		req.Header.Set("api-key", ix.apiKey)
	}

	resp, err := ix.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("qdrant: %s %s: status %s: %s", method, path, resp.Status, bytes.TrimSpace(snippet))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("qdrant: decode response: %w", err)
		}
	}
	return nil
}
