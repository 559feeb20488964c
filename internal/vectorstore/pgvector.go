package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/Zykairotis/contextd/internal/cxerr"
	"github.com/Zykairotis/contextd/internal/embed"
	"github.com/Zykairotis/contextd/internal/observability"
	"github.com/Zykairotis/contextd/internal/scope"
)

// pgvectorStore drives Postgres with the pgvector extension: one table per
// collection, a vector column for the dense arm and a sparsevec column for
// the sparse arm.
type pgvectorStore struct {
	pool      *pgxpool.Pool
	vocabSize int
}

// NewPgvector connects a pool and ensures the vector extension exists.
// vocabSize bounds the sparsevec dimension (the sparse model's vocabulary).
func NewPgvector(ctx context.Context, databaseURL string, vocabSize int) (Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect pgvector pool: %w", err)
	}
	if _, err := pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure vector extension: %w", err)
	}
	if vocabSize <= 0 {
		vocabSize = 30522
	}
	return &pgvectorStore{pool: pool, vocabSize: vocabSize}, nil
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func (s *pgvectorStore) EnsureCollection(ctx context.Context, name string, dim int, hybrid bool) error {
	if dim <= 0 {
		return cxerr.Newf(cxerr.KindConsistency, "vectorstore.pgvector", "dimension must be positive, got %d", dim)
	}
	var existing *int
	err := s.pool.QueryRow(ctx, `
		SELECT atttypmod FROM pg_attribute
		WHERE attrelid = to_regclass($1) AND attname = 'dense'`, name).Scan(&existing)
	if err == nil && existing != nil && *existing > 0 && *existing != dim {
		return cxerr.Newf(cxerr.KindConsistency, "vectorstore.pgvector",
			"collection %s exists with dim %d, requested %d", name, *existing, dim)
	}

	// The sparse column is always present (nullable) so upserts stay uniform;
	// hybrid only controls whether the posting-list index is provisioned.
	create := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY,
			dense vector(%d) NOT NULL,
			sparse sparsevec(%d),
			project_id TEXT NOT NULL,
			dataset_id TEXT NOT NULL,
			document_id TEXT NOT NULL,
			payload JSONB NOT NULL DEFAULT '{}'::jsonb
		)`, ident(name), dim, s.vocabSize)
	if _, err := s.pool.Exec(ctx, create); err != nil {
		return fmt.Errorf("create collection table %s: %w", name, err)
	}
	idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (dense vector_cosine_ops)`,
		ident(name+"_dense_idx"), ident(name))
	if _, err := s.pool.Exec(ctx, idx); err != nil {
		return fmt.Errorf("create dense index on %s: %w", name, err)
	}
	if hybrid {
		sidx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (sparse sparsevec_ip_ops)`,
			ident(name+"_sparse_idx"), ident(name))
		if _, err := s.pool.Exec(ctx, sidx); err != nil {
			return fmt.Errorf("create sparse index on %s: %w", name, err)
		}
	}
	scopeIdx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (dataset_id, document_id)`,
		ident(name+"_scope_idx"), ident(name))
	if _, err := s.pool.Exec(ctx, scopeIdx); err != nil {
		return fmt.Errorf("create scope index on %s: %w", name, err)
	}
	return nil
}

func (s *pgvectorStore) DropCollection(ctx context.Context, name string) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, ident(name)))
	if err != nil {
		return fmt.Errorf("drop collection %s: %w", name, err)
	}
	return nil
}

func (s *pgvectorStore) Upsert(ctx context.Context, name string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range points {
		payload, err := json.Marshal(p.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload for %s: %w", p.ID, err)
		}
		project, _ := p.Payload[FieldProjectID].(string)
		dataset, _ := p.Payload[FieldDatasetID].(string)
		document, _ := p.Payload[FieldDocumentID].(string)
		batch.Queue(fmt.Sprintf(`
			INSERT INTO %s (id, dense, sparse, project_id, dataset_id, document_id, payload)
			VALUES ($1, $2, $3::sparsevec, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET
				dense = EXCLUDED.dense,
				sparse = EXCLUDED.sparse,
				payload = EXCLUDED.payload`, ident(name)),
			p.ID, pgvector.NewVector(p.Dense), s.sparseLiteral(p.Sparse),
			project, dataset, document, payload)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range points {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert into %s: %w", name, err)
		}
	}
	return nil
}

// sparseLiteral renders the pgvector sparsevec text form {i:v,...}/dim.
// Indices are 1-based in sparsevec.
func (s *pgvectorStore) sparseLiteral(v *embed.SparseVector) *string {
	if v == nil || v.IsEmpty() {
		return nil
	}
	var b strings.Builder
	b.WriteByte('{')
	for i, idx := range v.Indices {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%d:%g", idx+1, v.Values[i])
	}
	fmt.Fprintf(&b, "}/%d", s.vocabSize)
	out := b.String()
	return &out
}

func (s *pgvectorStore) DeleteByFilter(ctx context.Context, name string, f Filter) error {
	if err := requireFilter(f); err != nil {
		return err
	}
	where, args := filterSQL(f)
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s`, ident(name), where), args...)
	if err != nil {
		return fmt.Errorf("delete by filter in %s: %w", name, err)
	}
	return nil
}

func (s *pgvectorStore) Search(ctx context.Context, name string, query Query) ([]Result, error) {
	if err := requireFilter(query.Filter); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() {
		observability.SearchLatency.WithLabelValues("pgvector").Observe(time.Since(start).Seconds())
	}()

	where, args := filterSQL(query.Filter)
	limit := query.armLimit()

	denseSQL := fmt.Sprintf(`
		SELECT id, 1 - (dense <=> $%d) AS score, payload
		FROM %s WHERE %s
		ORDER BY dense <=> $%d LIMIT %d`,
		len(args)+1, ident(name), where, len(args)+1, limit)
	dense, err := s.queryArm(ctx, denseSQL, append(args, pgvector.NewVector(query.Dense))...)
	if err != nil {
		return nil, fmt.Errorf("dense arm on %s: %w", name, err)
	}
	if query.Sparse == nil || query.Sparse.IsEmpty() {
		return truncate(denseOnly(dense), query.TopK), nil
	}

	sparseSQL := fmt.Sprintf(`
		SELECT id, -(sparse <#> $%d::sparsevec) AS score, payload
		FROM %s WHERE sparse IS NOT NULL AND %s
		ORDER BY sparse <#> $%d::sparsevec LIMIT %d`,
		len(args)+1, ident(name), where, len(args)+1, limit)
	sparse, err := s.queryArm(ctx, sparseSQL, append(args, *s.sparseLiteral(query.Sparse))...)
	if err != nil {
		return nil, fmt.Errorf("sparse arm on %s: %w", name, err)
	}
	return truncate(fuseRRF(dense, sparse, query.DenseWeight, query.SparseWeight), query.TopK), nil
}

func (s *pgvectorStore) queryArm(ctx context.Context, sql string, args ...any) ([]armHit, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []armHit
	for rows.Next() {
		var hit armHit
		var payload []byte
		if err := rows.Scan(&hit.ID, &hit.Score, &payload); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &hit.Payload); err != nil {
			return nil, err
		}
		out = append(out, hit)
	}
	return out, rows.Err()
}

func (s *pgvectorStore) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT tablename FROM pg_tables WHERE schemaname = 'public' AND tablename LIKE $1`,
		scope.CollectionPrefix+`\_%`)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (s *pgvectorStore) CollectionStats(ctx context.Context, name string) (Stats, error) {
	stats := Stats{Name: name}
	if err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT count(*) FROM %s`, ident(name))).Scan(&stats.PointCount); err != nil {
		return Stats{}, fmt.Errorf("stats for %s: %w", name, err)
	}
	var mod *int
	if err := s.pool.QueryRow(ctx, `
		SELECT atttypmod FROM pg_attribute
		WHERE attrelid = to_regclass($1) AND attname = 'dense'`, name).Scan(&mod); err == nil && mod != nil {
		stats.Dim = *mod
	}
	var hasSparse bool
	_ = s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pg_attribute
			WHERE attrelid = to_regclass($1) AND attname = 'sparse'
		)`, name).Scan(&hasSparse)
	stats.Hybrid = hasSparse
	return stats, nil
}

func (s *pgvectorStore) Close() error {
	s.pool.Close()
	return nil
}

func filterSQL(f Filter) (string, []any) {
	var conds []string
	var args []any
	if f.ProjectID != "" {
		args = append(args, f.ProjectID)
		conds = append(conds, fmt.Sprintf("project_id = $%d", len(args)))
	}
	if len(f.DatasetIDs) > 0 {
		args = append(args, f.DatasetIDs)
		conds = append(conds, fmt.Sprintf("dataset_id = ANY($%d)", len(args)))
	}
	if f.DocumentID != "" {
		args = append(args, f.DocumentID)
		conds = append(conds, fmt.Sprintf("document_id = $%d", len(args)))
	}
	return strings.Join(conds, " AND "), args
}
