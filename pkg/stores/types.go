package stores

import (
	"context"
	"database/sql"
	"time"
)

// RunStatus is the outcome of a recorded run.
type RunStatus string

const (
	RunStatusClean  RunStatus = "clean"
	RunStatusDirty  RunStatus = "dirty"
	RunStatusFailed RunStatus = "failed"
)

// EventKind groups events by the reporter callback that produced them.
type EventKind string

const (
	EventKindPhase      EventKind = "phase"
	EventKindFeature    EventKind = "feature"
	EventKindFile       EventKind = "file"
	EventKindDependency EventKind = "dependency"
)

// Run is one recorded apply.
type Run struct {
	ID          string     `json:"id"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Status      RunStatus  `json:"status"`
	Dirty       bool       `json:"dirty"`
	SummaryJSON string     `json:"summary_json"` // engine.Summary as JSON
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Event is one reporter event of a run. Seq orders events within the run.
type Event struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Seq       int       `json:"seq"`
	Kind      EventKind `json:"kind"`
	Subject   string    `json:"subject"`   // phase, feature, file path or package:dependency
	Operation string    `json:"operation"` // file or dependency op, phase outcome
	Detail    *string   `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store defines the interface for the run history.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (*sql.Tx, error)
	CommitTx(tx *sql.Tx) error
	RollbackTx(tx *sql.Tx) error

	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)
	DeleteRun(ctx context.Context, id string) error
	PruneRuns(ctx context.Context, keep int) (int64, error)
	RecordRun(ctx context.Context, run *Run, events []*Event) error

	// Event operations
	AppendEvents(ctx context.Context, events []*Event) error
	RunEvents(ctx context.Context, runID string, kind *EventKind) ([]*Event, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
