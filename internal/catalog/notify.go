package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
)

// jobNotification is the payload published on NotifyChannel at every job
// transition.
type jobNotification struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// notifyJob publishes a transition. Best effort: a failed notify never fails
// the transition itself.
func (s *Store) notifyJob(ctx context.Context, jobID, status string) {
	payload, _ := json.Marshal(jobNotification{JobID: jobID, Status: status})
	if _, err := s.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, string(payload)); err != nil {
		log.Warn().Err(err).Str("job_id", jobID).Msg("pg_notify failed")
	}
}

// ListenJobs blocks on the notification channel and invokes handle for every
// job transition until ctx is cancelled. The realtime bus uses this to relay
// transitions without polling.
func (s *Store) ListenJobs(ctx context.Context, handle func(jobID, status string)) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `LISTEN `+NotifyChannel); err != nil {
		return fmt.Errorf("listen %s: %w", NotifyChannel, err)
	}
	for {
		note, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("wait for notification: %w", err)
		}
		var n jobNotification
		if err := json.Unmarshal([]byte(note.Payload), &n); err != nil {
			log.Warn().Err(err).Str("payload", note.Payload).Msg("bad job notification")
			continue
		}
		handle(n.JobID, n.Status)
	}
}
