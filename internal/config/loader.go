package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"

	"github.com/Zykairotis/contextd/internal/cxerr"
)

// Load reads configuration from environment variables (optionally .env),
// applies an optional YAML overlay named by CONTEXTD_CONFIG, fills defaults,
// and validates fatal combinations.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{}
	// Feature flags default on; explicit env/YAML turns them off.
	cfg.Sparse.Enabled = true
	cfg.Reranker.Enabled = true
	cfg.Chunking.SymbolsEnabled = true
	if path := strings.TrimSpace(os.Getenv("CONTEXTD_CONFIG")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, cxerr.Newf(cxerr.KindConfig, "config", "read config file %s: %v", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, cxerr.Newf(cxerr.KindConfig, "config", "parse config file %s: %v", path, err)
		}
	}

	// Environment overrides the YAML overlay.
	setStr(&cfg.Host, "HOST")
	setInt(&cfg.Port, "PORT")
	setStr(&cfg.LogLevel, "LOG_LEVEL")
	setStr(&cfg.LogPath, "LOG_PATH")
	setStr(&cfg.DatabaseURL, "DATABASE_URL")

	setStr(&cfg.VectorDB.Kind, "VECTOR_DB")
	setStr(&cfg.VectorDB.URL, "QDRANT_URL")
	setInt(&cfg.VectorDB.SparseVocabSize, "SPARSE_VOCAB_SIZE")

	setStr(&cfg.Dense.URL, "DENSE_EMBEDDING_URL")
	setStr(&cfg.Dense.Model, "DENSE_EMBEDDING_MODEL")
	setStr(&cfg.Dense.APIKey, "EMBEDDING_API_KEY")
	setInt(&cfg.Dense.Concurrency, "EMBEDDING_CONCURRENCY")
	setInt(&cfg.Dense.BatchSize, "EMBEDDING_BATCH_SIZE")

	setStr(&cfg.Code.URL, "CODE_EMBEDDING_URL")
	setStr(&cfg.Code.Model, "CODE_EMBEDDING_MODEL")
	cfg.Code.APIKey = cfg.Dense.APIKey
	cfg.Code.Concurrency = cfg.Dense.Concurrency
	cfg.Code.BatchSize = cfg.Dense.BatchSize

	setBool(&cfg.Sparse.Enabled, "HYBRID_SEARCH")
	setStr(&cfg.Sparse.URL, "SPARSE_EMBEDDING_URL")
	setInt(&cfg.Sparse.Concurrency, "SPARSE_CONCURRENCY")
	setInt(&cfg.Sparse.BatchSize, "SPARSE_BATCH_SIZE")

	setBool(&cfg.Reranker.Enabled, "RERANKING_ENABLED")
	setStr(&cfg.Reranker.URL, "RERANKER_URL")
	setInt(&cfg.Reranker.InitialK, "RERANK_INITIAL_K")
	setInt(&cfg.Reranker.FinalK, "RERANK_FINAL_K")
	setInt(&cfg.Reranker.TextMaxChars, "RERANK_TEXT_MAX_CHARS")
	setInt(&cfg.Reranker.MaxBatch, "RERANK_MAX_BATCH")

	setInt(&cfg.Chunking.ChunkSize, "CHUNK_SIZE")
	setInt(&cfg.Chunking.ChunkOverlap, "CHUNK_OVERLAP")
	setInt(&cfg.Chunking.BatchSize, "CHUNK_BATCH_SIZE")
	setInt(&cfg.Chunking.MaxConcurrentBatches, "MAX_CONCURRENT_BATCHES")
	setBool(&cfg.Chunking.SymbolsEnabled, "SYMBOLS_ENABLED")

	cfg.Search.HybridEnabled = cfg.Sparse.Enabled
	setFloat(&cfg.Search.DenseWeight, "HYBRID_DENSE_WEIGHT")
	setFloat(&cfg.Search.SparseWeight, "HYBRID_SPARSE_WEIGHT")
	setInt(&cfg.Search.OverFetch, "SEARCH_OVERFETCH")
	setInt(&cfg.Search.TopK, "SEARCH_TOP_K")
	setInt(&cfg.Search.FanoutLimit, "SEARCH_FANOUT_LIMIT")

	setDuration(&cfg.Jobs.VisibilityTimeout, "JOB_VISIBILITY_TIMEOUT")
	setInt(&cfg.Jobs.RetryLimit, "JOB_RETRY_LIMIT")
	setDuration(&cfg.Jobs.RetryDelay, "JOB_RETRY_DELAY")
	setDuration(&cfg.Jobs.RetentionTTL, "JOB_RETENTION_TTL")

	setStr(&cfg.GitHub.Token, "GITHUB_TOKEN")

	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.VectorDB.Kind == "" {
		cfg.VectorDB.Kind = "qdrant"
	}
	if cfg.VectorDB.SparseVocabSize == 0 {
		cfg.VectorDB.SparseVocabSize = 30522
	}
	if cfg.Dense.Concurrency == 0 {
		cfg.Dense.Concurrency = 4
		cfg.Code.Concurrency = 4
	}
	if cfg.Dense.BatchSize == 0 {
		cfg.Dense.BatchSize = 32
		cfg.Code.BatchSize = 32
	}
	if cfg.Sparse.Concurrency == 0 {
		// The sparse service is memory-constrained; keep one request in flight.
		cfg.Sparse.Concurrency = 1
	}
	if cfg.Sparse.BatchSize == 0 {
		cfg.Sparse.BatchSize = 16
	}
	if cfg.Reranker.InitialK == 0 {
		cfg.Reranker.InitialK = 150
	}
	if cfg.Reranker.FinalK == 0 {
		cfg.Reranker.FinalK = 10
	}
	if cfg.Reranker.TextMaxChars == 0 {
		cfg.Reranker.TextMaxChars = 1600
	}
	if cfg.Reranker.MaxBatch == 0 {
		cfg.Reranker.MaxBatch = 64
	}
	if cfg.Reranker.Timeout == 0 {
		cfg.Reranker.Timeout = 30 * time.Second
	}
	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = 1200
	}
	if cfg.Chunking.ChunkOverlap == 0 {
		cfg.Chunking.ChunkOverlap = 120
	}
	if cfg.Chunking.BatchSize == 0 {
		cfg.Chunking.BatchSize = 32
	}
	if cfg.Chunking.MaxConcurrentBatches == 0 {
		cfg.Chunking.MaxConcurrentBatches = 3
	}
	if cfg.Search.DenseWeight == 0 {
		cfg.Search.DenseWeight = 0.6
	}
	if cfg.Search.SparseWeight == 0 {
		cfg.Search.SparseWeight = 0.4
	}
	if cfg.Search.OverFetch == 0 {
		cfg.Search.OverFetch = 3
	}
	if cfg.Search.TopK == 0 {
		cfg.Search.TopK = 10
	}
	if cfg.Search.FanoutLimit == 0 {
		cfg.Search.FanoutLimit = 8
	}
	if cfg.Jobs.VisibilityTimeout == 0 {
		cfg.Jobs.VisibilityTimeout = 5 * time.Minute
	}
	if cfg.Jobs.RetryLimit == 0 {
		cfg.Jobs.RetryLimit = 2
	}
	if cfg.Jobs.RetryDelay == 0 {
		cfg.Jobs.RetryDelay = 30 * time.Second
	}
	if cfg.Jobs.RetentionTTL == 0 {
		cfg.Jobs.RetentionTTL = 24 * time.Hour
	}
}

func validate(cfg Config) error {
	if cfg.DatabaseURL == "" {
		return cxerr.Newf(cxerr.KindConfig, "config", "DATABASE_URL is required")
	}
	if cfg.Dense.URL == "" {
		return cxerr.Newf(cxerr.KindConfig, "config", "DENSE_EMBEDDING_URL is required")
	}
	if cfg.Sparse.Enabled && cfg.Sparse.URL == "" {
		return cxerr.Newf(cxerr.KindConfig, "config", "hybrid search enabled but SPARSE_EMBEDDING_URL unset")
	}
	if cfg.Reranker.Enabled && cfg.Reranker.URL == "" {
		return cxerr.Newf(cxerr.KindConfig, "config", "reranking enabled but RERANKER_URL unset")
	}
	switch cfg.VectorDB.Kind {
	case "qdrant":
		if cfg.VectorDB.URL == "" {
			return cxerr.Newf(cxerr.KindConfig, "config", "VECTOR_DB=qdrant requires QDRANT_URL")
		}
	case "pgvector":
	default:
		return cxerr.Newf(cxerr.KindConfig, "config", "unknown VECTOR_DB %q", cfg.VectorDB.Kind)
	}
	if w := cfg.Search.DenseWeight + cfg.Search.SparseWeight; w <= 0 {
		return cxerr.Newf(cxerr.KindConfig, "config", "fusion weights must sum to a positive value, got %v", w)
	}
	return nil
}

func setStr(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	*dst = strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func setDuration(dst *time.Duration, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
			return
		}
		// Bare integers are treated as seconds.
		if n, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(n) * time.Second
		}
	}
}

// Addr returns the host:port listen address.
func (c Config) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }
