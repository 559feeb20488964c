package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRerankBareArrayShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		scores := make([]float64, len(req.Texts))
		for i := range scores {
			scores[i] = float64(len(req.Texts) - i)
		}
		_ = json.NewEncoder(w).Encode(scores)
	}))
	defer srv.Close()

	c := New(srv.URL, 100, 10, time.Second)
	scores, err := c.Rerank(context.Background(), "q", []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 2, 1}, scores)
}

func TestRerankWrappedShapes(t *testing.T) {
	for _, body := range []string{
		`{"scores":[0.9,0.1]}`,
		`{"results":[{"index":1,"relevance_score":0.1},{"index":0,"relevance_score":0.9}]}`,
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		c := New(srv.URL, 100, 10, time.Second)
		scores, err := c.Rerank(context.Background(), "q", []string{"a", "b"})
		require.NoError(t, err, body)
		assert.Equal(t, []float64{0.9, 0.1}, scores, body)
		srv.Close()
	}
}

func TestRerankTruncatesItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		for _, text := range req.Texts {
			assert.LessOrEqual(t, len(text), 10)
		}
		_ = json.NewEncoder(w).Encode(make([]float64, len(req.Texts)))
	}))
	defer srv.Close()

	c := New(srv.URL, 10, 10, time.Second)
	_, err := c.Rerank(context.Background(), "q", []string{"this text is much longer than ten characters"})
	require.NoError(t, err)
}

func TestRerank413SplitsOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		scores := make([]float64, len(req.Texts))
		for i := range scores {
			scores[i] = 0.5
		}
		_ = json.NewEncoder(w).Encode(scores)
	}))
	defer srv.Close()

	c := New(srv.URL, 100, 10, time.Second)
	scores, err := c.Rerank(context.Background(), "q", []string{"a", "b", "c", "d"})
	require.NoError(t, err)
	assert.Len(t, scores, 4)
	// One oversized call plus two halves.
	assert.Equal(t, int32(3), calls.Load())
}

func TestRerankServerErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, 100, 10, time.Second)
	_, err := c.Rerank(context.Background(), "q", []string{"a"})
	require.Error(t, err)
}

func TestRerankEmptyInput(t *testing.T) {
	c := New("http://unused", 100, 10, time.Second)
	scores, err := c.Rerank(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Nil(t, scores)
}
