package qdrant_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/sabercore/saber/pkg/vectorindex/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	APIKey string
	Body   map[string]any
}

// newTestIndex starts a fake Qdrant answering every request with respond and
// returns the index plus the recorded requests.
func newTestIndex(t *testing.T, respond func(w http.ResponseWriter, r *http.Request)) (*qdrant.Index, *[]recordedRequest) {
	t.Helper()

	var (
		mu   sync.Mutex
		reqs []recordedRequest
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path + query(r),
			APIKey: r.Header.Get("api-key"),
		}
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			_ = json.Unmarshal(data, &rec.Body)
		}
		mu.Lock()
		reqs = append(reqs, rec)
		mu.Unlock()

		if respond != nil {
			respond(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	t.Cleanup(srv.Close)

	ix, err := qdrant.New(qdrant.Config{
		URL:        srv.URL,
		APIKey:     "secret",
		Collection: "corpus-main",
		Dimension:  3,
	})
	require.NoError(t, err)

	return ix, &reqs
}

func query(r *http.Request) string {
	if r.URL.RawQuery == "" {
		return ""
	}
	return "?" + r.URL.RawQuery
}

func TestNew_Validation(t *testing.T) {
	_, err := qdrant.New(qdrant.Config{Collection: "c", Dimension: 3})
	assert.Error(t, err)

	_, err = qdrant.New(qdrant.Config{URL: "http://localhost:6333", Dimension: 3})
	assert.Error(t, err)

	_, err = qdrant.New(qdrant.Config{URL: "http://localhost:6333", Collection: "c"})
	assert.Error(t, err)
}

func TestEnsure_CreatesCollection(t *testing.T) {
	ix, reqs := newTestIndex(t, nil)

	require.NoError(t, ix.Ensure(context.Background()))

	require.Len(t, *reqs, 1)
	req := (*reqs)[0]
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/collections/corpus-main", req.Path)
	assert.Equal(t, "secret", req.APIKey)

	vectors := req.Body["vectors"].(map[string]any)
	assert.Equal(t, float64(3), vectors["size"])
	assert.Equal(t, "Cosine", vectors["distance"])
}

func TestInsert_UpsertsPoint(t *testing.T) {
	ix, reqs := newTestIndex(t, nil)

	err := ix.Insert(context.Background(), "chunk-1", []float32{1, 0, 0})
	require.NoError(t, err)

	require.Len(t, *reqs, 1)
	req := (*reqs)[0]
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/collections/corpus-main/points?wait=true", req.Path)

	points := req.Body["points"].([]any)
	require.Len(t, points, 1)
	point := points[0].(map[string]any)
	assert.Equal(t, "chunk-1", point["id"])
	assert.Equal(t, "chunk-1", point["payload"].(map[string]any)["chunk_id"])
}

func TestInsert_DimensionMismatch(t *testing.T) {
	ix, reqs := newTestIndex(t, nil)

	err := ix.Insert(context.Background(), "chunk-1", []float32{1, 0})
	assert.ErrorContains(t, err, "dimension")
	assert.Empty(t, *reqs)
}

func TestQuery_ParsesHits(t *testing.T) {
	ix, reqs := newTestIndex(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"result":[
			{"id":"p1","score":0.92,"payload":{"chunk_id":"chunk-1"}},
			{"id":"p2","score":0.71,"payload":{"chunk_id":"chunk-2"}}
		]}`))
	})

	hits, err := ix.Query(context.Background(), []float32{1, 0, 0}, 2)
	require.NoError(t, err)

	require.Len(t, *reqs, 1)
	req := (*reqs)[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/collections/corpus-main/points/search", req.Path)
	assert.Equal(t, float64(2), req.Body["limit"])
	assert.Equal(t, true, req.Body["with_payload"])

	require.Len(t, hits, 2)
	assert.Equal(t, "chunk-1", hits[0].ChunkID)
	assert.InDelta(t, 0.92, hits[0].Score, 1e-9)
	assert.Equal(t, "chunk-2", hits[1].ChunkID)
}

func TestQuery_FallsBackToPointID(t *testing.T) {
	ix, _ := newTestIndex(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"result":[{"id":"bare-point","score":0.5}]}`))
	})

	hits, err := ix.Query(context.Background(), []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "bare-point", hits[0].ChunkID)
}

func TestQuery_RejectsNonPositiveK(t *testing.T) {
	ix, _ := newTestIndex(t, nil)

	_, err := ix.Query(context.Background(), []float32{1, 0, 0}, 0)
	assert.Error(t, err)
}

func TestDelete_RemovesPoint(t *testing.T) {
	ix, reqs := newTestIndex(t, nil)

	require.NoError(t, ix.Delete(context.Background(), "chunk-1"))

	require.Len(t, *reqs, 1)
	req := (*reqs)[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/collections/corpus-main/points/delete?wait=true", req.Path)
	assert.Equal(t, []any{"chunk-1"}, req.Body["points"])
}

func TestDrop_DeletesCollection(t *testing.T) {
	ix, reqs := newTestIndex(t, nil)

	require.NoError(t, ix.Drop(context.Background()))

	require.Len(t, *reqs, 1)
	assert.Equal(t, http.MethodDelete, (*reqs)[0].Method)
	assert.Equal(t, "/collections/corpus-main", (*reqs)[0].Path)
}

func TestDo_SurfacesServerError(t *testing.T) {
	ix, _ := newTestIndex(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":{"error":"collection not found"}}`))
	})

	err := ix.Ensure(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "collection not found")
}
