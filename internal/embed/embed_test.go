package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zykairotis/contextd/internal/cxerr"
)

func TestSparseEmbedBatchShapes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req sparseRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if len(req.Texts) == 1 {
			// Single-object shape.
			_, _ = w.Write([]byte(`{"sparse":{"indices":[3,7],"values":[0.5,1.2]}}`))
			return
		}
		vecs := make([]sparsePayload, len(req.Texts))
		for i := range vecs {
			vecs[i] = sparsePayload{Indices: []uint32{uint32(i)}, Values: []float32{1}}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"sparse": vecs})
	}))
	defer srv.Close()

	c := NewSparseClient(srv.URL, 1, 16)
	one, err := c.EmbedBatch(context.Background(), []string{"hello"})
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, []uint32{3, 7}, one[0].Indices)

	many, err := c.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, many, 3)
	assert.Equal(t, []uint32{2}, many[2].Indices)
}

func TestSparseRetriesTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"sparse":{"indices":[1],"values":[0.4]}}`))
	}))
	defer srv.Close()

	c := NewSparseClient(srv.URL, 1, 16)
	vecs, err := c.EmbedBatch(context.Background(), []string{"x"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSparsePermanentFailureDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewSparseClient(srv.URL, 1, 16)
	_, err := c.EmbedBatch(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Equal(t, cxerr.KindPermanentRPC, cxerr.KindOf(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestSparseVectorValidate(t *testing.T) {
	assert.NoError(t, SparseVector{Indices: []uint32{1, 2}, Values: []float32{0.1, 0.2}}.Validate())
	assert.Error(t, SparseVector{Indices: []uint32{1}, Values: []float32{}}.Validate())
	assert.Error(t, SparseVector{Indices: []uint32{1, 1}, Values: []float32{1, 1}}.Validate())
	assert.Error(t, SparseVector{Indices: []uint32{1}, Values: []float32{-1}}.Validate())
	assert.True(t, SparseVector{}.IsEmpty())
}

func denseTestServer(t *testing.T, dim int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			vec := make([]float64, dim)
			vec[0] = float64(i + 1)
			data[i] = map[string]any{"object": "embedding", "index": i, "embedding": vec}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data})
	}))
}

func TestDenseEmbedBatchPreservesOrder(t *testing.T) {
	srv := denseTestServer(t, 8)
	defer srv.Close()

	c := NewDenseClient(srv.URL, "key", "test-model", 2, 2)
	vecs, err := c.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for _, v := range vecs {
		assert.Len(t, v, 8)
	}
	// First element encodes the in-batch index; order must be preserved
	// across micro-batches of size 2: [1,2] then [1].
	assert.Equal(t, float32(1), vecs[0][0])
	assert.Equal(t, float32(2), vecs[1][0])
	assert.Equal(t, float32(1), vecs[2][0])
}

func TestDenseDimensionProbeFreezes(t *testing.T) {
	srv := denseTestServer(t, 16)
	defer srv.Close()

	c := NewDenseClient(srv.URL, "test", "test-model", 1, 8)
	dim, err := c.Dimension(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 16, dim)

	again, err := c.Dimension(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 16, again)
}

func TestRouterFallsBackToText(t *testing.T) {
	text := &DenseClient{}
	r := Router{Text: text}
	assert.Same(t, text, r.ForCode())
	code := &DenseClient{}
	r.Code = code
	assert.Same(t, code, r.ForCode())
}
