package catalog

import (
	"encoding/json"
	"time"
)

// Project is created lazily on first reference and never deleted by the
// engine.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Dataset struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Collection mirrors one vector index bound to a (project, dataset) pair.
// PointCount is advisory; the authoritative count lives in the vector store.
type Collection struct {
	Name          string     `json:"name"`
	DatasetID     string     `json:"dataset_id"`
	VectorDim     int        `json:"vector_dim"`
	IsHybrid      bool       `json:"is_hybrid"`
	VectorDBKind  string     `json:"vector_db_kind"`
	PointCount    int64      `json:"point_count"`
	LastIndexedAt *time.Time `json:"last_indexed_at,omitempty"`
}

type Document struct {
	ID          string    `json:"id"`
	DatasetID   string    `json:"dataset_id"`
	SourceKind  string    `json:"source_kind"` // code | web | text
	SourceRef   string    `json:"source_ref"`
	ContentHash string    `json:"content_hash"`
	Size        int64     `json:"size"`
	ChunkIDs    []string  `json:"chunk_ids"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ReconcileAction is the outcome of comparing an incoming document against
// the catalog.
type ReconcileAction string

const (
	ReconcileUnchanged ReconcileAction = "unchanged"
	ReconcileUpdated   ReconcileAction = "updated"
	ReconcileNew       ReconcileAction = "new"
)

// Reconciliation carries the action plus the state needed to act on it: the
// document id and, for updates, the chunk ids that must be deleted from the
// vector store before new points are written.
type Reconciliation struct {
	Action      ReconcileAction
	DocumentID  string
	OldChunkIDs []string
}

type WebProvenance struct {
	URL            string          `json:"url"`
	Domain         string          `json:"domain"`
	FirstIndexedAt time.Time       `json:"first_indexed_at"`
	LastIndexedAt  time.Time       `json:"last_indexed_at"`
	LastModifiedAt *time.Time      `json:"last_modified_at,omitempty"`
	ETag           string          `json:"etag,omitempty"`
	ContentHash    string          `json:"content_hash"`
	Version        int             `json:"version"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
}

// JobStatus transitions monotonically; terminal states never transition
// further.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobInProgress JobStatus = "in_progress"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

type Job struct {
	ID           string          `json:"id"`
	Kind         string          `json:"kind"` // github | web | text
	ProjectID    string          `json:"project_id"`
	DatasetID    *string         `json:"dataset_id,omitempty"`
	SingletonKey string          `json:"singleton_key"`
	Params       json.RawMessage `json:"params"`
	Status       JobStatus       `json:"status"`
	Progress     int             `json:"progress"`
	CurrentPhase string          `json:"current_phase"`
	CurrentFile  *string         `json:"current_file,omitempty"`
	SHA          *string         `json:"sha,omitempty"`
	IndexedFiles int             `json:"indexed_files"`
	TotalChunks  int             `json:"total_chunks"`
	Attempts     int             `json:"attempts"`
	Error        *string         `json:"error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// ScopeRef is one (project, dataset) pair visible to a caller.
type ScopeRef struct {
	ProjectID string `json:"project_id"`
	DatasetID string `json:"dataset_id"`
}
