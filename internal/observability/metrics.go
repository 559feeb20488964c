package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Package-level collectors registered on the default registry; exposed via
// the /metrics endpoint in httpapi.
var (
	ChunksIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contextd_chunks_ingested_total",
		Help: "Chunks written to the vector store, by project and source kind.",
	}, []string{"project", "source_kind"})

	DocumentsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contextd_documents_skipped_total",
		Help: "Documents skipped because their content hash was unchanged.",
	}, []string{"dataset"})

	EmbedLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "contextd_embed_request_seconds",
		Help:    "Latency of embedding RPCs.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	SearchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "contextd_search_seconds",
		Help:    "Latency of per-collection vector searches.",
		Buckets: prometheus.DefBuckets,
	}, []string{"driver"})

	RerankFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "contextd_rerank_fallbacks_total",
		Help: "Queries that fell back to fusion ordering after a reranker failure.",
	})

	JobTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contextd_job_transitions_total",
		Help: "Ingestion job status transitions.",
	}, []string{"status"})
)
