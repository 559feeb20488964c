package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Zykairotis/contextd/internal/cxerr"
	"github.com/Zykairotis/contextd/internal/observability"
)

const jobColumns = `id, kind, project_id, dataset_id, singleton_key, params, status, progress,
	current_phase, current_file, sha, indexed_files, total_chunks, attempts, error,
	created_at, updated_at, started_at, completed_at`

func scanJob(row pgx.Row) (Job, error) {
	var j Job
	err := row.Scan(&j.ID, &j.Kind, &j.ProjectID, &j.DatasetID, &j.SingletonKey, &j.Params,
		&j.Status, &j.Progress, &j.CurrentPhase, &j.CurrentFile, &j.SHA,
		&j.IndexedFiles, &j.TotalChunks, &j.Attempts, &j.Error,
		&j.CreatedAt, &j.UpdatedAt, &j.StartedAt, &j.CompletedAt)
	return j, err
}

// EnqueueJob inserts a queued job. Submissions sharing a singleton key with
// a live (queued or in_progress) job coalesce: the existing job is returned
// and nothing is enqueued.
func (s *Store) EnqueueJob(ctx context.Context, kind, projectID string, datasetID *string, singletonKey string, params any) (Job, bool, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Job{}, false, fmt.Errorf("marshal job params: %w", err)
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO contextd.ingestion_jobs (kind, project_id, dataset_id, singleton_key, params)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (singleton_key) WHERE status IN ('queued', 'in_progress') DO NOTHING
		RETURNING `+jobColumns, kind, projectID, datasetID, singletonKey, raw)
	job, err := scanJob(row)
	if err == nil {
		s.notifyJob(ctx, job.ID, string(job.Status))
		observability.JobTransitions.WithLabelValues(string(JobQueued)).Inc()
		return job, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Job{}, false, fmt.Errorf("enqueue job: %w", err)
	}
	// Coalesced: hand back the live job with the same key.
	row = s.pool.QueryRow(ctx, `
		SELECT `+jobColumns+` FROM contextd.ingestion_jobs
		WHERE singleton_key = $1 AND status IN ('queued', 'in_progress')
		ORDER BY created_at DESC LIMIT 1`, singletonKey)
	job, err = scanJob(row)
	if err != nil {
		return Job{}, false, fmt.Errorf("lookup coalesced job: %w", err)
	}
	return job, false, nil
}

// ClaimJob atomically leases the oldest runnable queued job. Jobs whose
// lease expired while in_progress are reclaimed (at-least-once delivery).
func (s *Store) ClaimJob(ctx context.Context, visibility time.Duration, retryLimit int) (Job, bool, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE contextd.ingestion_jobs SET
			status = 'in_progress',
			attempts = attempts + 1,
			lease_expires_at = now() + $1::interval,
			started_at = COALESCE(started_at, now()),
			updated_at = now()
		WHERE id = (
			SELECT id FROM contextd.ingestion_jobs
			WHERE (status = 'queued' OR (status = 'in_progress' AND lease_expires_at < now()))
			  AND attempts <= $2
			ORDER BY created_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING `+jobColumns,
		fmt.Sprintf("%d seconds", int(visibility.Seconds())), retryLimit)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, fmt.Errorf("claim job: %w", err)
	}
	s.notifyJob(ctx, job.ID, string(job.Status))
	observability.JobTransitions.WithLabelValues(string(JobInProgress)).Inc()
	return job, true, nil
}

// UpdateJobProgress writes a progress snapshot. Progress never decreases;
// the greatest-so-far value wins so observers see a monotone sequence.
func (s *Store) UpdateJobProgress(ctx context.Context, jobID string, progress int, phase string, currentFile string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE contextd.ingestion_jobs SET
			progress = GREATEST(progress, $2),
			current_phase = $3,
			current_file = NULLIF($4, ''),
			updated_at = now()
		WHERE id = $1 AND status = 'in_progress'`, jobID, progress, phase, currentFile)
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	s.notifyJob(ctx, jobID, string(JobInProgress))
	return nil
}

// SetJobSHA records the resolved commit for a github job.
func (s *Store) SetJobSHA(ctx context.Context, jobID, sha string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE contextd.ingestion_jobs SET sha = $2, updated_at = now() WHERE id = $1`, jobID, sha)
	if err != nil {
		return fmt.Errorf("set job sha: %w", err)
	}
	return nil
}

// SetJobCounts records ingest totals on the job row.
func (s *Store) SetJobCounts(ctx context.Context, jobID string, indexedFiles, totalChunks int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE contextd.ingestion_jobs
		SET indexed_files = $2, total_chunks = $3, updated_at = now()
		WHERE id = $1`, jobID, indexedFiles, totalChunks)
	if err != nil {
		return fmt.Errorf("set job counts: %w", err)
	}
	return nil
}

// CompleteJob moves a job to a terminal state. Transitions out of a terminal
// state are refused; completing sets progress to 100.
func (s *Store) CompleteJob(ctx context.Context, jobID string, status JobStatus, jobErr error) error {
	if !status.Terminal() {
		return cxerr.Newf(cxerr.KindConsistency, "catalog", "CompleteJob with non-terminal status %s", status)
	}
	var errMsg *string
	if jobErr != nil {
		msg := jobErr.Error()
		errMsg = &msg
	}
	progress := "progress"
	if status == JobCompleted {
		progress = "100"
	}
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE contextd.ingestion_jobs SET
			status = $2,
			progress = %s,
			error = $3,
			completed_at = now(),
			updated_at = now()
		WHERE id = $1 AND status NOT IN ('completed', 'failed', 'cancelled')`, progress),
		jobID, status, errMsg)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Already terminal; terminal states never transition further.
		return nil
	}
	s.notifyJob(ctx, jobID, string(status))
	observability.JobTransitions.WithLabelValues(string(status)).Inc()
	return nil
}

// CancelRequested reports whether a cancel was recorded for the job.
func (s *Store) CancelRequested(ctx context.Context, jobID string) (bool, error) {
	var status JobStatus
	err := s.pool.QueryRow(ctx,
		`SELECT status FROM contextd.ingestion_jobs WHERE id = $1`, jobID).Scan(&status)
	if err != nil {
		return false, fmt.Errorf("check cancel: %w", err)
	}
	return status == JobCancelled, nil
}

// GetJob fetches one job by id.
func (s *Store) GetJob(ctx context.Context, jobID string) (Job, bool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM contextd.ingestion_jobs WHERE id = $1`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, fmt.Errorf("get job: %w", err)
	}
	return job, true, nil
}

// JobHistory lists a project's jobs newest first.
func (s *Store) JobHistory(ctx context.Context, projectID string, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM contextd.ingestion_jobs
		WHERE project_id = $1 ORDER BY created_at DESC LIMIT $2`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("job history: %w", err)
	}
	defer rows.Close()
	var out []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// PruneJobs deletes terminal jobs older than the retention TTL (kept for
// audit at least 24h).
func (s *Store) PruneJobs(ctx context.Context, ttl time.Duration) (int64, error) {
	if ttl < 24*time.Hour {
		ttl = 24 * time.Hour
	}
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM contextd.ingestion_jobs
		WHERE status IN ('completed', 'failed', 'cancelled')
		  AND completed_at < now() - $1::interval`,
		fmt.Sprintf("%d seconds", int(ttl.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}
