package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zykairotis/contextd/internal/cxerr"
)

func setMinimalEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/ctx")
	t.Setenv("DENSE_EMBEDDING_URL", "http://dense:8001/v1")
	t.Setenv("SPARSE_EMBEDDING_URL", "http://sparse:8002/sparse")
	t.Setenv("RERANKER_URL", "http://rerank:8003/rerank")
	t.Setenv("QDRANT_URL", "http://localhost:6334")
}

func TestLoadDefaults(t *testing.T) {
	setMinimalEnv(t)
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "qdrant", cfg.VectorDB.Kind)
	assert.True(t, cfg.Sparse.Enabled, "hybrid defaults on")
	assert.True(t, cfg.Reranker.Enabled)
	assert.True(t, cfg.Chunking.SymbolsEnabled)
	assert.Equal(t, 1, cfg.Sparse.Concurrency, "sparse service gets one in-flight request")
	assert.Equal(t, 4, cfg.Dense.Concurrency)
	assert.Equal(t, 150, cfg.Reranker.InitialK)
	assert.Equal(t, 0.6, cfg.Search.DenseWeight)
	assert.Equal(t, 0.4, cfg.Search.SparseWeight)
	assert.Equal(t, 5*time.Minute, cfg.Jobs.VisibilityTimeout)
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
}

func TestLoadOverrides(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("EMBEDDING_CONCURRENCY", "9")
	t.Setenv("HYBRID_DENSE_WEIGHT", "0.7")
	t.Setenv("RERANK_INITIAL_K", "80")
	t.Setenv("JOB_VISIBILITY_TIMEOUT", "90")
	t.Setenv("RERANKING_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Dense.Concurrency)
	assert.Equal(t, 0.7, cfg.Search.DenseWeight)
	assert.Equal(t, 80, cfg.Reranker.InitialK)
	assert.Equal(t, 90*time.Second, cfg.Jobs.VisibilityTimeout)
	assert.False(t, cfg.Reranker.Enabled)
}

func TestLoadMissingDatabaseURL(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("DATABASE_URL", "")
	_, err := Load()
	require.Error(t, err)
	assert.Equal(t, cxerr.KindConfig, cxerr.KindOf(err))
}

func TestLoadHybridWithoutSparseURL(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("SPARSE_EMBEDDING_URL", "")
	_, err := Load()
	require.Error(t, err)
	assert.Equal(t, cxerr.KindConfig, cxerr.KindOf(err))

	// Disabling hybrid makes the same environment valid.
	t.Setenv("HYBRID_SEARCH", "false")
	_, err = Load()
	require.NoError(t, err)
}

func TestLoadUnknownVectorDB(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("VECTOR_DB", "faiss")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadPgvectorNeedsNoQdrantURL(t *testing.T) {
	setMinimalEnv(t)
	t.Setenv("VECTOR_DB", "pgvector")
	t.Setenv("QDRANT_URL", "")
	_, err := Load()
	require.NoError(t, err)
}
