package catalog

import (
	"context"
	"fmt"
	"time"
)

// ProjectShare grants read visibility on a dataset across projects.
type ProjectShare struct {
	ID           string     `json:"id"`
	FromProject  string     `json:"from_project"`
	ToProject    string     `json:"to_project"`
	ResourceType string     `json:"resource_type"`
	ResourceID   string     `json:"resource_id"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// CreateShare grants toProject read access to a dataset owned by
// fromProject.
func (s *Store) CreateShare(ctx context.Context, fromProject, toProject, datasetID string, expiresAt *time.Time) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO contextd.project_shares (from_project, to_project, resource_type, resource_id, expires_at)
		VALUES ($1, $2, 'dataset', $3, $4)
		RETURNING id`, fromProject, toProject, datasetID, expiresAt).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create share: %w", err)
	}
	return id, nil
}

// VisibleScopes returns the (project, dataset) pairs a project can read via
// non-expired shares. Shares grant dataset-level visibility: the returned
// scopes point at the owning project so retrieval filters stay correct.
func (s *Store) VisibleScopes(ctx context.Context, toProjectID string) ([]ScopeRef, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT d.project_id, d.id
		FROM contextd.project_shares ps
		JOIN contextd.datasets d ON d.id = ps.resource_id
		WHERE ps.to_project = $1
		  AND ps.resource_type = 'dataset'
		  AND (ps.expires_at IS NULL OR ps.expires_at > now())`, toProjectID)
	if err != nil {
		return nil, fmt.Errorf("visible scopes: %w", err)
	}
	defer rows.Close()
	var out []ScopeRef
	for rows.Next() {
		var ref ScopeRef
		if err := rows.Scan(&ref.ProjectID, &ref.DatasetID); err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}
