package vectorstore

import (
	"context"

	"github.com/Zykairotis/contextd/internal/cxerr"
	"github.com/Zykairotis/contextd/internal/embed"
)

// Payload field names shared by both drivers. The payload carries the full
// chunk metadata plus the parent identifiers every filter scopes on.
const (
	FieldProjectID  = "project_id"
	FieldDatasetID  = "dataset_id"
	FieldDocumentID = "document_id"
	FieldChunkID    = "chunk_id"
)

// Point is one chunk's vector-store representation.
type Point struct {
	ID      string
	Dense   []float32
	Sparse  *embed.SparseVector
	Payload map[string]any
}

// Filter scopes searches and deletions. Collections are never queryable
// without at least a dataset scope.
type Filter struct {
	ProjectID  string
	DatasetIDs []string
	DocumentID string
}

func (f Filter) empty() bool {
	return f.ProjectID == "" && len(f.DatasetIDs) == 0 && f.DocumentID == ""
}

// Query is a hybrid search request against one collection.
type Query struct {
	Dense  []float32
	Sparse *embed.SparseVector
	Filter Filter
	TopK   int
	// OverFetch multiplies TopK for each arm before fusion (default 3).
	OverFetch    int
	DenseWeight  float64
	SparseWeight float64
}

func (q Query) armLimit() int {
	of := q.OverFetch
	if of <= 0 {
		of = 3
	}
	k := q.TopK
	if k <= 0 {
		k = 10
	}
	return k * of
}

// Result is one scored hit. For hybrid searches Score is the fused RRF
// value and the per-arm scores/ranks are populated; for dense-only searches
// Score equals DenseScore.
type Result struct {
	ID          string
	Score       float64
	DenseScore  float64
	SparseScore float64
	DenseRank   int
	SparseRank  int
	Payload     map[string]any
}

// Stats reports the authoritative state of one collection.
type Stats struct {
	Name       string
	PointCount uint64
	Dim        int
	Hybrid     bool
}

// Store abstracts the dual-mode vector index. Two drivers ship: qdrant
// (named dense + sparse vectors over gRPC) and pgvector (vector + sparsevec
// columns in Postgres).
type Store interface {
	// EnsureCollection is idempotent; re-creation with a different dim fails.
	// The qdrant driver checks only collections this process has ensured; it
	// does not read back the dimension of a collection that already exists.
	EnsureCollection(ctx context.Context, name string, dim int, hybrid bool) error
	DropCollection(ctx context.Context, name string) error
	Upsert(ctx context.Context, name string, points []Point) error
	DeleteByFilter(ctx context.Context, name string, f Filter) error
	Search(ctx context.Context, name string, q Query) ([]Result, error)
	ListCollections(ctx context.Context) ([]string, error)
	CollectionStats(ctx context.Context, name string) (Stats, error)
	Close() error
}

func requireFilter(f Filter) error {
	if f.empty() {
		return cxerr.Newf(cxerr.KindConsistency, "vectorstore", "refusing unscoped operation: empty filter")
	}
	if len(f.DatasetIDs) == 0 {
		return cxerr.Newf(cxerr.KindConsistency, "vectorstore", "refusing unscoped operation: no dataset scope")
	}
	return nil
}
