package config

import "time"

// Config holds every runtime knob for the context engine. Values come from
// the environment (optionally a .env file) with an optional YAML overlay for
// the service blocks; see Load.
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
	LogPath  string `yaml:"log_path"`

	DatabaseURL string `yaml:"database_url"`

	VectorDB  VectorDBConfig  `yaml:"vector_db"`
	Dense     EmbeddingConfig `yaml:"dense"`
	Code      EmbeddingConfig `yaml:"code"`
	Sparse    SparseConfig    `yaml:"sparse"`
	Reranker  RerankerConfig  `yaml:"reranker"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Search    SearchConfig    `yaml:"search"`
	Jobs      JobsConfig      `yaml:"jobs"`
	GitHub    GitHubConfig    `yaml:"github"`
}

// VectorDBConfig selects and addresses the vector backend.
type VectorDBConfig struct {
	// Kind is "qdrant" or "pgvector".
	Kind string `yaml:"kind"`
	// URL is the qdrant gRPC DSN; ignored for pgvector which shares
	// DatabaseURL.
	URL string `yaml:"url"`
	// SparseVocabSize bounds sparsevec dimensions for the pgvector driver.
	SparseVocabSize int `yaml:"sparse_vocab_size"`
}

// EmbeddingConfig addresses one OpenAI-compatible dense embedding endpoint.
type EmbeddingConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Model       string `yaml:"model"`
	Concurrency int    `yaml:"concurrency"`
	BatchSize   int    `yaml:"batch_size"`
}

// SparseConfig addresses the sparse (learned lexical) embedding endpoint.
type SparseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	URL         string `yaml:"url"`
	Concurrency int    `yaml:"concurrency"`
	BatchSize   int    `yaml:"batch_size"`
}

// RerankerConfig addresses the cross-encoder endpoint.
type RerankerConfig struct {
	Enabled      bool          `yaml:"enabled"`
	URL          string        `yaml:"url"`
	InitialK     int           `yaml:"initial_k"`
	FinalK       int           `yaml:"final_k"`
	TextMaxChars int           `yaml:"text_max_chars"`
	MaxBatch     int           `yaml:"max_batch"`
	Timeout      time.Duration `yaml:"timeout"`
}

// ChunkingConfig drives the chunker and the ingest pipeline stages.
type ChunkingConfig struct {
	ChunkSize            int  `yaml:"chunk_size"`
	ChunkOverlap         int  `yaml:"chunk_overlap"`
	BatchSize            int  `yaml:"batch_size"`
	MaxConcurrentBatches int  `yaml:"max_concurrent_batches"`
	SymbolsEnabled       bool `yaml:"symbols_enabled"`
}

// SearchConfig drives hybrid retrieval.
type SearchConfig struct {
	HybridEnabled bool    `yaml:"hybrid_enabled"`
	DenseWeight   float64 `yaml:"dense_weight"`
	SparseWeight  float64 `yaml:"sparse_weight"`
	OverFetch     int     `yaml:"over_fetch"`
	TopK          int     `yaml:"top_k"`
	FanoutLimit   int     `yaml:"fanout_limit"`
}

// JobsConfig drives the durable queue.
type JobsConfig struct {
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`
	RetryLimit        int           `yaml:"retry_limit"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	RetentionTTL      time.Duration `yaml:"retention_ttl"`
}

// GitHubConfig configures the clone worker.
type GitHubConfig struct {
	Token string `yaml:"token"`
}
