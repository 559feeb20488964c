package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Zykairotis/contextd/internal/cxerr"
)

// EnsureScope idempotently upserts the project, dataset, and collection
// catalog rows inside one transaction and returns the resolved ids.
func (s *Store) EnsureScope(ctx context.Context, projectName, datasetName, collectionName string, vectorDim int, hybrid bool, dbKind string) (Project, Dataset, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Project{}, Dataset{}, fmt.Errorf("begin ensure scope: %w", err)
	}
	defer tx.Rollback(ctx)

	var proj Project
	err = tx.QueryRow(ctx, `
		INSERT INTO contextd.projects (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name, created_at`, projectName).
		Scan(&proj.ID, &proj.Name, &proj.CreatedAt)
	if err != nil {
		return Project{}, Dataset{}, fmt.Errorf("upsert project %s: %w", projectName, err)
	}

	var ds Dataset
	err = tx.QueryRow(ctx, `
		INSERT INTO contextd.datasets (project_id, name) VALUES ($1, $2)
		ON CONFLICT (project_id, name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, project_id, name, created_at`, proj.ID, datasetName).
		Scan(&ds.ID, &ds.ProjectID, &ds.Name, &ds.CreatedAt)
	if err != nil {
		return Project{}, Dataset{}, fmt.Errorf("upsert dataset %s: %w", datasetName, err)
	}

	var existingDim int
	err = tx.QueryRow(ctx,
		`SELECT vector_dim FROM contextd.collections WHERE name = $1`, collectionName).
		Scan(&existingDim)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		_, err = tx.Exec(ctx, `
			INSERT INTO contextd.collections (name, dataset_id, vector_dim, is_hybrid, vector_db_kind)
			VALUES ($1, $2, $3, $4, $5)`,
			collectionName, ds.ID, vectorDim, hybrid, dbKind)
		if err != nil {
			return Project{}, Dataset{}, fmt.Errorf("insert collection %s: %w", collectionName, err)
		}
	case err != nil:
		return Project{}, Dataset{}, fmt.Errorf("lookup collection %s: %w", collectionName, err)
	case existingDim != vectorDim:
		// A collection's dimension never changes after creation.
		return Project{}, Dataset{}, cxerr.Newf(cxerr.KindConsistency, "catalog",
			"collection %s has dim %d, embeddings now produce %d", collectionName, existingDim, vectorDim)
	}

	if err := tx.Commit(ctx); err != nil {
		return Project{}, Dataset{}, fmt.Errorf("commit ensure scope: %w", err)
	}
	return proj, ds, nil
}

// EnsureProject upserts a project row by name (lazy creation on first
// reference).
func (s *Store) EnsureProject(ctx context.Context, name string) (Project, error) {
	var p Project
	err := s.pool.QueryRow(ctx, `
		INSERT INTO contextd.projects (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name, created_at`, name).Scan(&p.ID, &p.Name, &p.CreatedAt)
	if err != nil {
		return Project{}, fmt.Errorf("ensure project %s: %w", name, err)
	}
	return p, nil
}

// LookupProject returns the project by name, if it exists.
func (s *Store) LookupProject(ctx context.Context, name string) (Project, bool, error) {
	var p Project
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM contextd.projects WHERE name = $1`, name).
		Scan(&p.ID, &p.Name, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Project{}, false, nil
	}
	if err != nil {
		return Project{}, false, fmt.Errorf("lookup project %s: %w", name, err)
	}
	return p, true, nil
}

// ProjectNameByID resolves a project id back to its name; realtime events
// are keyed by name so websocket filters line up with what clients submit.
func (s *Store) ProjectNameByID(ctx context.Context, id string) (string, error) {
	var name string
	err := s.pool.QueryRow(ctx,
		`SELECT name FROM contextd.projects WHERE id = $1`, id).Scan(&name)
	if err != nil {
		return "", fmt.Errorf("project name for %s: %w", id, err)
	}
	return name, nil
}

// ListDatasets returns a project's datasets ordered by name.
func (s *Store) ListDatasets(ctx context.Context, projectID string) ([]Dataset, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, project_id, name, created_at FROM contextd.datasets
		WHERE project_id = $1 ORDER BY name`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer rows.Close()
	var out []Dataset
	for rows.Next() {
		var d Dataset
		if err := rows.Scan(&d.ID, &d.ProjectID, &d.Name, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// CollectionForDataset returns the catalog row backing a dataset's index.
func (s *Store) CollectionForDataset(ctx context.Context, datasetID string) (Collection, bool, error) {
	var c Collection
	err := s.pool.QueryRow(ctx, `
		SELECT name, dataset_id, vector_dim, is_hybrid, vector_db_kind, point_count, last_indexed_at
		FROM contextd.collections WHERE dataset_id = $1`, datasetID).
		Scan(&c.Name, &c.DatasetID, &c.VectorDim, &c.IsHybrid, &c.VectorDBKind, &c.PointCount, &c.LastIndexedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Collection{}, false, nil
	}
	if err != nil {
		return Collection{}, false, fmt.Errorf("collection for dataset %s: %w", datasetID, err)
	}
	return c, true, nil
}

// UpdateCollectionStats records the advisory point count after an ingest.
func (s *Store) UpdateCollectionStats(ctx context.Context, name string, pointCount int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE contextd.collections
		SET point_count = $2, last_indexed_at = now()
		WHERE name = $1`, name, pointCount)
	if err != nil {
		return fmt.Errorf("update collection stats %s: %w", name, err)
	}
	return nil
}

// DropCollection removes the catalog row; callers drop the vector index
// first.
func (s *Store) DropCollection(ctx context.Context, name string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM contextd.collections WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("drop collection row %s: %w", name, err)
	}
	return nil
}

// RetrievalScope is one searchable (project, dataset, collection) binding.
type RetrievalScope struct {
	ProjectID   string `json:"project_id"`
	ProjectName string `json:"project_name"`
	DatasetID   string `json:"dataset_id"`
	DatasetName string `json:"dataset_name"`
	Collection  string `json:"collection"`
	IsHybrid    bool   `json:"is_hybrid"`
}

// ListRetrievalScopes returns every dataset with a collection, optionally
// restricted to one project. projectName empty means all projects.
func (s *Store) ListRetrievalScopes(ctx context.Context, projectName string) ([]RetrievalScope, error) {
	query := `
		SELECT p.id, p.name, d.id, d.name, c.name, c.is_hybrid
		FROM contextd.collections c
		JOIN contextd.datasets d ON d.id = c.dataset_id
		JOIN contextd.projects p ON p.id = d.project_id`
	var rows pgx.Rows
	var err error
	if projectName == "" {
		rows, err = s.pool.Query(ctx, query+` ORDER BY p.name, d.name`)
	} else {
		rows, err = s.pool.Query(ctx, query+` WHERE p.name = $1 ORDER BY d.name`, projectName)
	}
	if err != nil {
		return nil, fmt.Errorf("list retrieval scopes: %w", err)
	}
	defer rows.Close()
	var out []RetrievalScope
	for rows.Next() {
		var sc RetrievalScope
		if err := rows.Scan(&sc.ProjectID, &sc.ProjectName, &sc.DatasetID, &sc.DatasetName, &sc.Collection, &sc.IsHybrid); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// ScopesByDatasetIDs resolves share-granted dataset ids to full scopes.
func (s *Store) ScopesByDatasetIDs(ctx context.Context, datasetIDs []string) ([]RetrievalScope, error) {
	if len(datasetIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT p.id, p.name, d.id, d.name, c.name, c.is_hybrid
		FROM contextd.collections c
		JOIN contextd.datasets d ON d.id = c.dataset_id
		JOIN contextd.projects p ON p.id = d.project_id
		WHERE d.id = ANY($1)`, datasetIDs)
	if err != nil {
		return nil, fmt.Errorf("scopes by dataset ids: %w", err)
	}
	defer rows.Close()
	var out []RetrievalScope
	for rows.Next() {
		var sc RetrievalScope
		if err := rows.Scan(&sc.ProjectID, &sc.ProjectName, &sc.DatasetID, &sc.DatasetName, &sc.Collection, &sc.IsHybrid); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// ReconcileDocument compares an incoming (dataset, source_ref, content_hash)
// against the catalog and returns what the ingest must do. For updated
// documents the previous chunk ids are returned so the vector store deletes
// them before new points are written.
func (s *Store) ReconcileDocument(ctx context.Context, datasetID, sourceRef, contentHash string) (Reconciliation, error) {
	var docID, existingHash string
	var chunkIDs []string
	err := s.pool.QueryRow(ctx, `
		SELECT id, content_hash, chunk_ids FROM contextd.documents
		WHERE dataset_id = $1 AND source_ref = $2`, datasetID, sourceRef).
		Scan(&docID, &existingHash, &chunkIDs)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return Reconciliation{Action: ReconcileNew}, nil
	case err != nil:
		return Reconciliation{}, fmt.Errorf("reconcile %s: %w", sourceRef, err)
	case existingHash == contentHash:
		return Reconciliation{Action: ReconcileUnchanged, DocumentID: docID, OldChunkIDs: chunkIDs}, nil
	default:
		return Reconciliation{Action: ReconcileUpdated, DocumentID: docID, OldChunkIDs: chunkIDs}, nil
	}
}

// SaveDocument upserts the document row with its new hash and chunk ids.
func (s *Store) SaveDocument(ctx context.Context, d Document) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO contextd.documents (id, dataset_id, source_kind, source_ref, content_hash, size, chunk_ids, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (dataset_id, source_ref) DO UPDATE SET
			content_hash = EXCLUDED.content_hash,
			size = EXCLUDED.size,
			chunk_ids = EXCLUDED.chunk_ids,
			updated_at = now()
		RETURNING id`,
		d.ID, d.DatasetID, d.SourceKind, d.SourceRef, d.ContentHash, d.Size, d.ChunkIDs).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("save document %s: %w", d.SourceRef, err)
	}
	return id, nil
}

// DeleteDatasetDocuments removes all document rows for a dataset (dataset
// reset); vector points are deleted separately by filter.
func (s *Store) DeleteDatasetDocuments(ctx context.Context, datasetID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM contextd.documents WHERE dataset_id = $1`, datasetID)
	if err != nil {
		return fmt.Errorf("delete documents for dataset %s: %w", datasetID, err)
	}
	return nil
}

// DatasetStats summarizes a dataset for the stats endpoint.
func (s *Store) DatasetStats(ctx context.Context, datasetID string) (docs int, chunks int, err error) {
	err = s.pool.QueryRow(ctx, `
		SELECT count(*), COALESCE(sum(cardinality(chunk_ids)), 0)
		FROM contextd.documents WHERE dataset_id = $1`, datasetID).Scan(&docs, &chunks)
	if err != nil {
		return 0, 0, fmt.Errorf("dataset stats %s: %w", datasetID, err)
	}
	return docs, chunks, nil
}
