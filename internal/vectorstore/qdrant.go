package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/Zykairotis/contextd/internal/cxerr"
	"github.com/Zykairotis/contextd/internal/observability"
)

const (
	denseVectorName  = "dense"
	sparseVectorName = "sparse"
)

// qdrantStore drives Qdrant over its gRPC API. Hybrid collections carry a
// named dense vector and a named sparse vector per point.
type qdrantStore struct {
	client *qdrant.Client

	mu   sync.Mutex
	dims map[string]int // collections seen by this process, for drift checks
}

// NewQdrant connects to a Qdrant DSN like http://localhost:6334 (gRPC port).
// An API key may be passed as a query parameter: ?api_key=...
func NewQdrant(dsn string) (Store, error) {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse qdrant DSN: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := 6334
	if p := parsed.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid port in qdrant DSN: %w", err)
		}
	}
	cfg := &qdrant.Config{Host: host, Port: port}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if key := parsed.Query().Get("api_key"); key != "" {
		cfg.APIKey = key
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	return &qdrantStore{client: client, dims: make(map[string]int)}, nil
}

func (q *qdrantStore) EnsureCollection(ctx context.Context, name string, dim int, hybrid bool) error {
	if dim <= 0 {
		return cxerr.Newf(cxerr.KindConsistency, "vectorstore.qdrant", "dimension must be positive, got %d", dim)
	}
	q.mu.Lock()
	if known, ok := q.dims[name]; ok && known != dim {
		q.mu.Unlock()
		return cxerr.Newf(cxerr.KindConsistency, "vectorstore.qdrant",
			"collection %s exists with dim %d, requested %d", name, known, dim)
	}
	q.mu.Unlock()

	exists, err := q.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if !exists {
		create := &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
				denseVectorName: {
					Size:     uint64(dim),
					Distance: qdrant.Distance_Cosine,
				},
			}),
		}
		if hybrid {
			create.SparseVectorsConfig = qdrant.NewSparseVectorsConfig(map[string]*qdrant.SparseVectorParams{
				sparseVectorName: {},
			})
		}
		if err := q.client.CreateCollection(ctx, create); err != nil {
			return fmt.Errorf("create collection %s: %w", name, err)
		}
	}
	q.mu.Lock()
	q.dims[name] = dim
	q.mu.Unlock()
	return nil
}

func (q *qdrantStore) DropCollection(ctx context.Context, name string) error {
	if err := q.client.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("drop collection %s: %w", name, err)
	}
	q.mu.Lock()
	delete(q.dims, name)
	q.mu.Unlock()
	return nil
}

func (q *qdrantStore) Upsert(ctx context.Context, name string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	qps := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		vectors := map[string]*qdrant.Vector{
			denseVectorName: qdrant.NewVectorDense(p.Dense),
		}
		if p.Sparse != nil && !p.Sparse.IsEmpty() {
			vectors[sparseVectorName] = qdrant.NewVectorSparse(p.Sparse.Indices, p.Sparse.Values)
		}
		qps[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(p.ID),
			Vectors: qdrant.NewVectorsMap(vectors),
			Payload: qdrant.NewValueMap(p.Payload),
		}
	}
	wait := true
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: name,
		Wait:           &wait,
		Points:         qps,
	})
	if err != nil {
		return fmt.Errorf("upsert %d points into %s: %w", len(points), name, err)
	}
	return nil
}

func (q *qdrantStore) DeleteByFilter(ctx context.Context, name string, f Filter) error {
	if err := requireFilter(f); err != nil {
		return err
	}
	wait := true
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: name,
		Wait:           &wait,
		Points:         qdrant.NewPointsSelectorFilter(buildFilter(f)),
	})
	if err != nil {
		return fmt.Errorf("delete by filter in %s: %w", name, err)
	}
	return nil
}

func (q *qdrantStore) Search(ctx context.Context, name string, query Query) ([]Result, error) {
	if err := requireFilter(query.Filter); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() {
		observability.SearchLatency.WithLabelValues("qdrant").Observe(time.Since(start).Seconds())
	}()

	filter := buildFilter(query.Filter)
	limit := uint64(query.armLimit())

	dense, err := q.queryArm(ctx, name, qdrant.NewQueryDense(query.Dense), denseVectorName, filter, limit)
	if err != nil {
		return nil, err
	}
	if query.Sparse == nil || query.Sparse.IsEmpty() {
		return truncate(denseOnly(dense), query.TopK), nil
	}
	sparse, err := q.queryArm(ctx, name,
		qdrant.NewQuerySparse(query.Sparse.Indices, query.Sparse.Values), sparseVectorName, filter, limit)
	if err != nil {
		return nil, err
	}
	return truncate(fuseRRF(dense, sparse, query.DenseWeight, query.SparseWeight), query.TopK), nil
}

func (q *qdrantStore) queryArm(ctx context.Context, name string, qv *qdrant.Query, using string, filter *qdrant.Filter, limit uint64) ([]armHit, error) {
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qv,
		Using:          &using,
		Limit:          &limit,
		Filter:         filter,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query %s (%s arm): %w", name, using, err)
	}
	out := make([]armHit, 0, len(hits))
	for _, hit := range hits {
		payload := make(map[string]any, len(hit.Payload))
		for k, v := range hit.Payload {
			payload[k] = valueToAny(v)
		}
		out = append(out, armHit{
			ID:      hit.Id.GetUuid(),
			Score:   float64(hit.Score),
			Payload: payload,
		})
	}
	return out, nil
}

func (q *qdrantStore) ListCollections(ctx context.Context) ([]string, error) {
	names, err := q.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	return names, nil
}

func (q *qdrantStore) CollectionStats(ctx context.Context, name string) (Stats, error) {
	info, err := q.client.GetCollectionInfo(ctx, name)
	if err != nil {
		return Stats{}, fmt.Errorf("collection info %s: %w", name, err)
	}
	stats := Stats{Name: name}
	if pc := info.GetPointsCount(); pc > 0 {
		stats.PointCount = pc
	}
	q.mu.Lock()
	stats.Dim = q.dims[name]
	q.mu.Unlock()
	return stats, nil
}

func (q *qdrantStore) Close() error { return q.client.Close() }

func buildFilter(f Filter) *qdrant.Filter {
	var must []*qdrant.Condition
	if f.ProjectID != "" {
		must = append(must, qdrant.NewMatch(FieldProjectID, f.ProjectID))
	}
	if len(f.DatasetIDs) == 1 {
		must = append(must, qdrant.NewMatch(FieldDatasetID, f.DatasetIDs[0]))
	} else if len(f.DatasetIDs) > 1 {
		must = append(must, qdrant.NewMatchKeywords(FieldDatasetID, f.DatasetIDs...))
	}
	if f.DocumentID != "" {
		must = append(must, qdrant.NewMatch(FieldDocumentID, f.DocumentID))
	}
	return &qdrant.Filter{Must: must}
}

func valueToAny(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	default:
		return v.String()
	}
}
