package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// NotifyChannel is the LISTEN/NOTIFY channel job transitions are published
// on; the realtime bus relays from here without polling.
const NotifyChannel = "ctx_jobs"

// Store is the relational catalog: projects, datasets, collections,
// documents, web provenance, ingestion jobs, and project shares. All
// multi-row changes use short transactions; nothing holds a transaction
// across an RPC.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store { return &Store{pool: pool} }

// Connect opens a pool against databaseURL and runs migrations.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect catalog pool: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() { s.pool.Close() }

// Pool exposes the underlying pool for components that share it (the job
// queue and the notification listener).
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

var migrations = []string{
	`CREATE SCHEMA IF NOT EXISTS contextd`,
	`CREATE TABLE IF NOT EXISTS contextd.projects (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		name TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS contextd.datasets (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		project_id UUID NOT NULL REFERENCES contextd.projects(id),
		name TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (project_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS contextd.collections (
		name TEXT PRIMARY KEY,
		dataset_id UUID NOT NULL UNIQUE REFERENCES contextd.datasets(id),
		vector_dim INT NOT NULL,
		is_hybrid BOOLEAN NOT NULL DEFAULT false,
		vector_db_kind TEXT NOT NULL,
		point_count BIGINT NOT NULL DEFAULT 0,
		last_indexed_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS contextd.documents (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		dataset_id UUID NOT NULL REFERENCES contextd.datasets(id),
		source_kind TEXT NOT NULL,
		source_ref TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		size BIGINT NOT NULL DEFAULT 0,
		chunk_ids TEXT[] NOT NULL DEFAULT '{}',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (dataset_id, source_ref)
	)`,
	`CREATE TABLE IF NOT EXISTS contextd.web_provenance (
		url TEXT PRIMARY KEY,
		domain TEXT NOT NULL,
		first_indexed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_indexed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_modified_at TIMESTAMPTZ,
		etag TEXT,
		content_hash TEXT NOT NULL,
		version INT NOT NULL DEFAULT 1,
		metadata JSONB NOT NULL DEFAULT '{}'::jsonb
	)`,
	`CREATE TABLE IF NOT EXISTS contextd.ingestion_jobs (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		kind TEXT NOT NULL,
		project_id UUID NOT NULL REFERENCES contextd.projects(id),
		dataset_id UUID REFERENCES contextd.datasets(id),
		singleton_key TEXT NOT NULL,
		params JSONB NOT NULL DEFAULT '{}'::jsonb,
		status TEXT NOT NULL DEFAULT 'queued',
		progress INT NOT NULL DEFAULT 0,
		current_phase TEXT NOT NULL DEFAULT '',
		current_file TEXT,
		sha TEXT,
		indexed_files INT NOT NULL DEFAULT 0,
		total_chunks INT NOT NULL DEFAULT 0,
		attempts INT NOT NULL DEFAULT 0,
		lease_expires_at TIMESTAMPTZ,
		error TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		started_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ingestion_jobs_singleton_live
		ON contextd.ingestion_jobs (singleton_key)
		WHERE status IN ('queued', 'in_progress')`,
	`CREATE INDEX IF NOT EXISTS ingestion_jobs_claim
		ON contextd.ingestion_jobs (status, created_at)`,
	`CREATE TABLE IF NOT EXISTS contextd.project_shares (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		from_project UUID NOT NULL REFERENCES contextd.projects(id),
		to_project UUID NOT NULL REFERENCES contextd.projects(id),
		resource_type TEXT NOT NULL DEFAULT 'dataset',
		resource_id UUID NOT NULL,
		expires_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Migrate applies the schema. Statements are idempotent; the catalog owns
// its namespace.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	log.Debug().Int("statements", len(migrations)).Msg("catalog schema ensured")
	return nil
}
