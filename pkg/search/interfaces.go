package search

import (
	"context"
	"time"

	"github.com/spysmac/spysmac/pkg/configspace"
	"github.com/spysmac/spysmac/pkg/runner"
)

// Evaluator runs one configuration on one instance. *runner.Evaluator
// implements it.
type Evaluator interface {
	Evaluate(ctx context.Context, cfg configspace.Configuration, instance string, seed uint64) (runner.Outcome, error)
}

// Constraint vetoes configurations before they are evaluated. It returns
// the reasons for a veto.
type Constraint interface {
	Allowed(ctx context.Context, cfg configspace.Configuration) (bool, []string, error)
}

// Recorder persists individual runs.
type Recorder interface {
	RecordEvaluation(ctx context.Context, ev *Evaluation) error
}

// EventSink receives search progress. *telemetry.EventPublisher implements it.
type EventSink interface {
	PublishSearchStarted(runID string, seed uint64, instances int) error
	PublishEvaluation(runID string, iteration int, cost float64, timeouts int) error
	PublishIncumbent(runID string, iteration int, cost float64, config map[string]string) error
	PublishSearchCompleted(runID string, iterations int, cost float64, duration time.Duration) error
	PublishSearchFailed(runID, reason string) error
	PublishPolicyVeto(runID string, reasons []string) error
}

// Evaluation is one solver run made by a search.
type Evaluation struct {
	RunID         string
	Iteration     int
	Configuration configspace.Configuration
	Vector        configspace.Vector
	Instance      string
	Seed          uint64
	Outcome       runner.Outcome

	// Cost is the PAR10 cost of the run.
	Cost float64
}

// InstanceResult is the outcome of one configuration on one instance.
type InstanceResult struct {
	Instance string         `json:"instance"`
	Seed     uint64         `json:"seed"`
	Outcome  runner.Outcome `json:"outcome"`
}

// TrajectoryEntry records an incumbent change.
type TrajectoryEntry struct {
	Iteration     int                       `json:"iteration"`
	Elapsed       time.Duration             `json:"elapsed"`
	Cost          float64                   `json:"cost"`
	Configuration configspace.Configuration `json:"configuration"`
}

// Result is the outcome of a search.
type Result struct {
	RunID string `json:"run_id"`
	Seed  uint64 `json:"seed"`

	Incumbent       configspace.Configuration `json:"incumbent"`
	IncumbentVector configspace.Vector        `json:"-"`
	IncumbentStats  Stats                     `json:"incumbent_stats"`
	DefaultStats    Stats                     `json:"default_stats"`

	// Iterations counts evaluated configurations, the default included.
	Iterations int `json:"iterations"`
	Runs       int `json:"runs"`
	Vetoed     int `json:"vetoed"`

	Trajectory []TrajectoryEntry `json:"trajectory"`
	Duration   time.Duration     `json:"duration"`
}

// Improved reports whether the search found a better configuration than
// the default.
func (r *Result) Improved() bool {
	return r.IncumbentStats.PAR10 < r.DefaultStats.PAR10
}
