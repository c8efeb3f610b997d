package stores

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/spysmac/spysmac/pkg/search"
	"github.com/spysmac/spysmac/pkg/telemetry"
)

// Recorder writes search progress to a store. It implements
// search.Recorder.
type Recorder struct {
	store  Store
	logger zerolog.Logger
}

// NewRecorder creates a recorder backed by store.
func NewRecorder(store Store, logger zerolog.Logger) *Recorder {
	return &Recorder{
		store:  store,
		logger: logger.With().Str("component", "recorder").Logger(),
	}
}

// RecordEvaluation stores one solver run.
func (r *Recorder) RecordEvaluation(ctx context.Context, ev *search.Evaluation) error {
	cfg, err := json.Marshal(ev.Configuration)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	vec, err := json.Marshal(ev.Vector)
	if err != nil {
		return fmt.Errorf("failed to encode vector: %w", err)
	}

	return r.store.RecordEvaluation(ctx, &Evaluation{
		RunID:         ev.RunID,
		Iteration:     ev.Iteration,
		Configuration: string(cfg),
		Vector:        string(vec),
		Instance:      ev.Instance,
		Seed:          ev.Seed,
		Status:        string(ev.Outcome.Status),
		Runtime:       ev.Outcome.Runtime,
		ExitCode:      ev.Outcome.ExitCode,
		Cost:          ev.Cost,
	})
}

// Complete stores the final state of a search.
func (r *Recorder) Complete(ctx context.Context, res *search.Result) error {
	incumbent, err := json.Marshal(res.Incumbent)
	if err != nil {
		return fmt.Errorf("failed to encode incumbent: %w", err)
	}

	return r.store.CompleteRun(ctx, res.RunID, RunResult{
		Incumbent:     string(incumbent),
		DefaultCost:   res.DefaultStats.PAR10,
		IncumbentCost: res.IncumbentStats.PAR10,
		Iterations:    res.Iterations,
	})
}

// Subscriber returns an event subscriber that appends telemetry events to
// the store. Store errors are logged; events are best effort.
func (r *Recorder) Subscriber(ctx context.Context) telemetry.EventSubscriber {
	return func(e telemetry.Event) {
		event := &Event{
			Type:      e.Type,
			Level:     eventLevel(e.Level),
			Message:   e.Message,
			Timestamp: e.Timestamp,
		}
		if e.RunID != "" {
			runID := e.RunID
			event.RunID = &runID
		}
		if len(e.Data) > 0 {
			if data, err := json.Marshal(e.Data); err == nil {
				details := string(data)
				event.Details = &details
			}
		}

		if err := r.store.AppendEvent(ctx, event); err != nil {
			r.logger.Warn().Err(err).Str("type", e.Type).Msg("Failed to store event")
		}
	}
}

func eventLevel(level string) EventLevel {
	switch EventLevel(level) {
	case EventLevelDebug, EventLevelInfo, EventLevelWarning, EventLevelError:
		return EventLevel(level)
	case "warn":
		return EventLevelWarning
	default:
		return EventLevelInfo
	}
}
