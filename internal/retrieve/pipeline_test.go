package retrieve

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zykairotis/contextd/internal/catalog"
	"github.com/Zykairotis/contextd/internal/config"
	"github.com/Zykairotis/contextd/internal/embed"
	"github.com/Zykairotis/contextd/internal/rerank"
	"github.com/Zykairotis/contextd/internal/vectorstore"
)

type fakeScopes struct {
	scopes []catalog.RetrievalScope
}

func (f *fakeScopes) ListRetrievalScopes(_ context.Context, projectName string) ([]catalog.RetrievalScope, error) {
	if projectName == "" {
		return f.scopes, nil
	}
	var out []catalog.RetrievalScope
	for _, sc := range f.scopes {
		if sc.ProjectName == projectName {
			out = append(out, sc)
		}
	}
	return out, nil
}

func (f *fakeScopes) LookupProject(context.Context, string) (catalog.Project, bool, error) {
	return catalog.Project{}, false, nil
}

func (f *fakeScopes) VisibleScopes(context.Context, string) ([]catalog.ScopeRef, error) {
	return nil, nil
}

func (f *fakeScopes) ScopesByDatasetIDs(context.Context, []string) ([]catalog.RetrievalScope, error) {
	return nil, nil
}

// fakeVector serves canned per-collection results.
type fakeVector struct {
	vectorstore.Store
	byCollection map[string][]vectorstore.Result
	sawSparse    bool
}

func (f *fakeVector) Search(_ context.Context, name string, q vectorstore.Query) ([]vectorstore.Result, error) {
	if q.Sparse != nil {
		f.sawSparse = true
	}
	return f.byCollection[name], nil
}

func embedServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/sparse") {
			_, _ = w.Write([]byte(`{"sparse":{"indices":[5],"values":[0.7]}}`))
			return
		}
		var req struct {
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			data[i] = map[string]any{"index": i, "embedding": []float64{0.1, 0.2, 0.3}}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
}

func testConfig() config.Config {
	cfg := config.Config{}
	cfg.Search.HybridEnabled = true
	cfg.Search.DenseWeight = 0.6
	cfg.Search.SparseWeight = 0.4
	cfg.Search.OverFetch = 3
	cfg.Search.TopK = 10
	cfg.Search.FanoutLimit = 4
	cfg.Reranker.InitialK = 150
	cfg.Reranker.FinalK = 10
	return cfg
}

func result(id, text, ref string, score float64) vectorstore.Result {
	return vectorstore.Result{
		ID:         id,
		Score:      score,
		DenseScore: score,
		Payload: map[string]any{
			"chunk_id":    id,
			"text":        text,
			"file_or_url": ref,
			"chunk_title": ref,
		},
	}
}

func newTestPipeline(t *testing.T, fv *fakeVector, rr *rerank.Client, rerankOn bool) *Pipeline {
	srv := embedServer(t)
	t.Cleanup(srv.Close)
	cfg := testConfig()
	cfg.Reranker.Enabled = rerankOn
	return &Pipeline{
		Catalog: &fakeScopes{scopes: []catalog.RetrievalScope{
			{ProjectID: "p1", ProjectName: "proj", DatasetID: "d1", DatasetName: "code", Collection: "ctx_proj_code", IsHybrid: true},
			{ProjectID: "p1", ProjectName: "proj", DatasetID: "d2", DatasetName: "docs", Collection: "ctx_proj_docs", IsHybrid: true},
		}},
		Vector:   fv,
		Dense:    embed.Router{Text: embed.NewDenseClient(srv.URL, "k", "m", 1, 8)},
		Sparse:   embed.NewSparseClient(srv.URL+"/sparse", 1, 8),
		Reranker: rr,
		Cfg:      cfg,
	}
}

func TestExecuteMergesAcrossCollections(t *testing.T) {
	fv := &fakeVector{byCollection: map[string][]vectorstore.Result{
		"ctx_proj_code": {result("c1", "func run()", "b.py", 0.9), result("c2", "func foo()", "a.ts", 0.4)},
		"ctx_proj_docs": {result("c3", "guide text", "https://d/x", 0.7)},
	}}
	p := newTestPipeline(t, fv, nil, false)

	resp, err := p.Execute(context.Background(), Request{Project: "proj", Query: "run method", TopK: 3})
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, []string{"c1", "c3", "c2"},
		[]string{chunkIDOf(resp.Results[0]), chunkIDOf(resp.Results[1]), chunkIDOf(resp.Results[2])})
	assert.True(t, fv.sawSparse, "hybrid collections receive the sparse arm")
	assert.True(t, resp.FeaturesUsed["hybrid"])
	assert.ElementsMatch(t, []string{"ctx_proj_code", "ctx_proj_docs"}, resp.Collections)
}

func TestExecuteDatasetPattern(t *testing.T) {
	fv := &fakeVector{byCollection: map[string][]vectorstore.Result{
		"ctx_proj_code": {result("c1", "x", "a.ts", 0.5)},
		"ctx_proj_docs": {result("c3", "y", "u", 0.9)},
	}}
	p := newTestPipeline(t, fv, nil, false)

	resp, err := p.Execute(context.Background(), Request{Project: "proj", Dataset: "code", Query: "x"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "code", resp.Results[0].Dataset)
}

func TestExecuteEmptyScopeReturnsEmpty(t *testing.T) {
	p := newTestPipeline(t, &fakeVector{byCollection: map[string][]vectorstore.Result{}}, nil, false)
	resp, err := p.Execute(context.Background(), Request{Project: "proj", Dataset: "nothing-matches-*", Query: "q"})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestExecuteRerankReplacesScores(t *testing.T) {
	rrSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Texts []string `json:"texts"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		// Invert the incoming order.
		scores := make([]float64, len(req.Texts))
		for i := range scores {
			scores[i] = float64(i)
		}
		_ = json.NewEncoder(w).Encode(scores)
	}))
	defer rrSrv.Close()

	fv := &fakeVector{byCollection: map[string][]vectorstore.Result{
		"ctx_proj_code": {result("c1", "first", "a", 0.9), result("c2", "second", "b", 0.5)},
	}}
	p := newTestPipeline(t, fv, rerank.New(rrSrv.URL, 1600, 64, time.Second), true)

	resp, err := p.Execute(context.Background(), Request{Project: "proj", Dataset: "code", Query: "q", TopK: 2})
	require.NoError(t, err)
	assert.Equal(t, "reranker", resp.ScoreMode)
	assert.False(t, resp.RerankerSkipped)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "c2", chunkIDOf(resp.Results[0]), "reranker inverted the order")
	// Fused scores survive alongside the replacing reranker score.
	assert.Equal(t, 0.5, resp.Results[0].FusedScore)
	assert.Equal(t, float64(1), resp.Results[0].Score)
}

func TestExecuteRerankFallback(t *testing.T) {
	rrSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer rrSrv.Close()

	fv := &fakeVector{byCollection: map[string][]vectorstore.Result{
		"ctx_proj_code": {result("c1", "first", "a", 0.9), result("c2", "second", "b", 0.5)},
	}}
	p := newTestPipeline(t, fv, rerank.New(rrSrv.URL, 1600, 64, time.Second), true)

	resp, err := p.Execute(context.Background(), Request{Project: "proj", Dataset: "code", Query: "q", TopK: 2})
	require.NoError(t, err)
	assert.True(t, resp.RerankerSkipped)
	assert.NotEqual(t, "reranker", resp.ScoreMode)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "c1", chunkIDOf(resp.Results[0]), "fusion order kept on fallback")
}

func TestExecuteEmptyQuery(t *testing.T) {
	p := newTestPipeline(t, &fakeVector{}, nil, false)
	_, err := p.Execute(context.Background(), Request{Project: "proj", Query: "   "})
	require.Error(t, err)
}
