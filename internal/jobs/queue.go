package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Zykairotis/contextd/internal/catalog"
	"github.com/Zykairotis/contextd/internal/config"
	"github.com/Zykairotis/contextd/internal/cxerr"
	"github.com/Zykairotis/contextd/internal/realtime"
)

// Handler processes one claimed job. Returning an error fails the job; a
// cxerr KindCancelled error cancels it instead, and a KindTransientRPC error
// requeues it while the retry limit allows.
type Handler func(ctx context.Context, job catalog.Job) error

// Queue is the durable, relational-store-backed job queue: at-least-once
// delivery, singleton-key coalescing, visibility timeouts.
type Queue struct {
	store    *catalog.Store
	bus      *realtime.Bus
	cfg      config.JobsConfig
	handlers map[string]Handler
}

func NewQueue(store *catalog.Store, bus *realtime.Bus, cfg config.JobsConfig) *Queue {
	return &Queue{
		store:    store,
		bus:      bus,
		cfg:      cfg,
		handlers: make(map[string]Handler),
	}
}

// Register binds a handler to a job kind. Not safe after Run starts.
func (q *Queue) Register(kind string, h Handler) { q.handlers[kind] = h }

// SingletonKey builds the coalescing key for a submission.
func SingletonKey(project, sourceIdentity, scope string) string {
	return strings.Join([]string{project, sourceIdentity, scope}, "|")
}

// Submit enqueues a job. If a job with the same singleton key is already
// queued or running, that job is returned instead and no new work starts.
func (q *Queue) Submit(ctx context.Context, kind, projectName string, sourceIdentity, scope string, params any) (catalog.Job, error) {
	proj, err := q.store.EnsureProject(ctx, projectName)
	if err != nil {
		return catalog.Job{}, err
	}
	key := SingletonKey(projectName, sourceIdentity, scope)
	job, created, err := q.store.EnqueueJob(ctx, kind, proj.ID, nil, key, params)
	if err != nil {
		return catalog.Job{}, err
	}
	if !created {
		log.Info().Str("job_id", job.ID).Str("key", key).Msg("submission coalesced onto live job")
	}
	return job, nil
}

// Cancel requests cooperative cancellation of a job.
func (q *Queue) Cancel(ctx context.Context, jobID string) error {
	return q.store.CompleteJob(ctx, jobID, catalog.JobCancelled, nil)
}

const pollInterval = 2 * time.Second

// Run receives jobs one at a time until ctx is cancelled. Claimed jobs get a
// watchdog that renews nothing: if the worker stalls past the visibility
// timeout the job is released for retry by the next claim.
func (q *Queue) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for {
			job, ok, err := q.store.ClaimJob(ctx, q.cfg.VisibilityTimeout, q.cfg.RetryLimit)
			if err != nil {
				if ctx.Err() == nil {
					log.Error().Err(err).Msg("claim job failed")
				}
				break
			}
			if !ok {
				break
			}
			q.process(ctx, job)
		}
	}
}

func (q *Queue) process(ctx context.Context, job catalog.Job) {
	handler, ok := q.handlers[job.Kind]
	if !ok {
		err := cxerr.Newf(cxerr.KindConsistency, "jobs", "no handler for kind %q", job.Kind)
		_ = q.store.CompleteJob(ctx, job.ID, catalog.JobFailed, err)
		return
	}

	// Propagate cancellation from the job record to every downstream RPC.
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	watchDone := make(chan struct{})
	go q.watchCancel(jobCtx, job.ID, cancel, watchDone)

	log.Info().Str("job_id", job.ID).Str("kind", job.Kind).Int("attempt", job.Attempts).Msg("job started")
	err := handler(jobCtx, job)
	cancel()
	<-watchDone

	switch {
	case err == nil:
		_ = q.store.CompleteJob(ctx, job.ID, catalog.JobCompleted, nil)
		q.publishTerminal(ctx, job, catalog.JobCompleted, "")
		log.Info().Str("job_id", job.ID).Msg("job completed")
	case cxerr.IsCancelled(err):
		_ = q.store.CompleteJob(ctx, job.ID, catalog.JobCancelled, nil)
		q.publishTerminal(ctx, job, catalog.JobCancelled, "")
		log.Info().Str("job_id", job.ID).Msg("job cancelled")
	case cxerr.IsTransient(err) && job.Attempts <= q.cfg.RetryLimit:
		// Leave in_progress with an expired-lease requeue: the next claim
		// after RetryDelay picks it up again.
		log.Warn().Err(err).Str("job_id", job.ID).Msg("transient failure, job will be retried")
		q.requeue(ctx, job.ID)
	default:
		_ = q.store.CompleteJob(ctx, job.ID, catalog.JobFailed, err)
		q.publishTerminal(ctx, job, catalog.JobFailed, err.Error())
		log.Error().Err(err).Str("job_id", job.ID).Msg("job failed")
	}
}

// watchCancel polls the job record for an external cancel and fires the
// shared cancellation context.
func (q *Queue) watchCancel(ctx context.Context, jobID string, cancel context.CancelFunc, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cancelled, err := q.store.CancelRequested(ctx, jobID)
			if err == nil && cancelled {
				cancel()
				return
			}
		}
	}
}

// requeue leaves a transiently-failed job in_progress with a lease expiring
// after the retry delay; the claim query treats an expired lease as
// runnable, so the job is redelivered without losing its attempt count.
func (q *Queue) requeue(ctx context.Context, jobID string) {
	_, err := q.store.Pool().Exec(ctx, `
		UPDATE contextd.ingestion_jobs
		SET lease_expires_at = now() + $2::interval, updated_at = now()
		WHERE id = $1 AND status = 'in_progress'`,
		jobID, fmt.Sprintf("%d seconds", int(q.cfg.RetryDelay.Seconds())))
	if err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("requeue failed")
	}
}

func (q *Queue) publishTerminal(ctx context.Context, job catalog.Job, status catalog.JobStatus, errMsg string) {
	if q.bus == nil {
		return
	}
	projectName, err := q.store.ProjectNameByID(ctx, job.ProjectID)
	if err != nil {
		projectName = job.ProjectID
	}
	progress := job.Progress
	if status == catalog.JobCompleted {
		progress = 100
	}
	q.bus.PublishJobProgress(projectName, realtime.JobProgress{
		JobID:    job.ID,
		Status:   string(status),
		Progress: progress,
		Phase:    "done",
		Detail:   errMsg,
	})
}

// PruneLoop deletes expired terminal jobs on an hourly cadence.
func (q *Queue) PruneLoop(ctx context.Context, ttl time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := q.store.PruneJobs(ctx, ttl); err == nil && n > 0 {
				log.Info().Int64("pruned", n).Msg("expired jobs removed")
			}
		}
	}
}
