package stores

import (
	"context"
	"time"
)

// RunStatus represents the status of a configuration run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// EventLevel represents the severity level of an event
type EventLevel string

const (
	EventLevelDebug   EventLevel = "debug"
	EventLevelInfo    EventLevel = "info"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// Run is one search over a scenario.
type Run struct {
	ID          string     `json:"id"`
	Scenario    string     `json:"scenario"`
	Seed        uint64     `json:"seed"`
	Status      RunStatus  `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Incumbent is the best configuration as a JSON object.
	Incumbent     *string  `json:"incumbent,omitempty"`
	DefaultCost   *float64 `json:"default_cost,omitempty"`
	IncumbentCost *float64 `json:"incumbent_cost,omitempty"`
	Iterations    int      `json:"iterations"`

	Error    *string `json:"error,omitempty"`
	Metadata string  `json:"metadata"` // scenario as YAML

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RunResult is the final state written by CompleteRun.
type RunResult struct {
	Incumbent     string // JSON object
	DefaultCost   float64
	IncumbentCost float64
	Iterations    int
}

// Evaluation is one solver run made during a search.
type Evaluation struct {
	ID            int64     `json:"id"`
	RunID         string    `json:"run_id"`
	Iteration     int       `json:"iteration"`
	Configuration string    `json:"configuration"` // JSON object
	Vector        string    `json:"vector"`        // JSON array, null for inactive
	Instance      string    `json:"instance"`
	Seed          uint64    `json:"seed"`
	Status        string    `json:"status"`
	Runtime       float64   `json:"runtime"`
	ExitCode      int       `json:"exit_code"`
	Cost          float64   `json:"cost"`
	CreatedAt     time.Time `json:"created_at"`
}

// Event represents an append-only log event
type Event struct {
	ID        int64      `json:"id"`
	RunID     *string    `json:"run_id,omitempty"`
	Type      string     `json:"type"`
	Level     EventLevel `json:"level"`
	Message   string     `json:"message"`
	Details   *string    `json:"details,omitempty"` // JSON blob
	Timestamp time.Time  `json:"timestamp"`
}

// Store defines the interface for the persistence layer
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)
	CompleteRun(ctx context.Context, id string, result RunResult) error
	FailRun(ctx context.Context, id string, status RunStatus, errMsg string) error
	DeleteRun(ctx context.Context, id string) error

	// Evaluation operations
	RecordEvaluation(ctx context.Context, ev *Evaluation) error
	ListEvaluations(ctx context.Context, runID string, limit, offset int) ([]*Evaluation, error)
	CountEvaluations(ctx context.Context, runID string) (int, error)

	// Event operations
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, runID *string, level *EventLevel, limit, offset int) ([]*Event, error)

	// Utility
	HealthCheck(ctx context.Context) error
}

var _ Store = (*SQLiteStore)(nil)
