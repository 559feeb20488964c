package ingest

import (
	"context"
	"sync"

	"github.com/Zykairotis/contextd/internal/catalog"
	"github.com/Zykairotis/contextd/internal/realtime"
)

// Phase names and their progress bands.
type Phase struct {
	Name string
	Lo   int
	Hi   int
}

var (
	PhaseAcquire   = Phase{"acquire", 0, 10}
	PhaseEnumerate = Phase{"enumerate", 10, 20}
	PhaseChunk     = Phase{"chunk", 20, 40}
	PhaseEmbed     = Phase{"embed", 40, 80}
	PhaseUpsert    = Phase{"upsert", 80, 95}
	PhaseFinalize  = Phase{"finalize", 95, 100}
)

// progressTracker mirrors progress into the job record and the realtime bus.
// It emits only when the integer percent changes, bounding fan-out.
type progressTracker struct {
	jobID   string
	project string
	store   *catalog.Store
	bus     *realtime.Bus

	mu   sync.Mutex
	last int
}

func newProgressTracker(jobID, project string, store *catalog.Store, bus *realtime.Bus) *progressTracker {
	return &progressTracker{jobID: jobID, project: project, store: store, bus: bus, last: -1}
}

// emit reports fraction (0-1) of the given phase.
func (p *progressTracker) emit(ctx context.Context, phase Phase, fraction float64, detail string) {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	percent := phase.Lo + int(float64(phase.Hi-phase.Lo)*fraction)
	p.mu.Lock()
	if percent <= p.last {
		p.mu.Unlock()
		return
	}
	p.last = percent
	p.mu.Unlock()
	if p.store != nil && p.jobID != "" {
		_ = p.store.UpdateJobProgress(ctx, p.jobID, percent, phase.Name, detail)
	}
	if p.bus != nil {
		p.bus.PublishJobProgress(p.project, realtime.JobProgress{
			JobID:    p.jobID,
			Status:   string(catalog.JobInProgress),
			Progress: percent,
			Phase:    phase.Name,
			Detail:   detail,
		})
	}
}
