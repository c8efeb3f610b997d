package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a search lifecycle event.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// RunID is the associated run ID, if applicable.
	RunID string `json:"run_id,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]any `json:"data,omitempty"`
}

// Event types.
const (
	EventTypeSearchStarted   = "search.started"
	EventTypeEvaluation      = "search.evaluation"
	EventTypeIncumbent       = "search.incumbent"
	EventTypeSearchCompleted = "search.completed"
	EventTypeSearchFailed    = "search.failed"
	EventTypePolicyVeto      = "policy.veto"
)

// Event levels.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber handles delivered events. Subscribers run on the
// publisher's delivery goroutine and must not block.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher buffers events and delivers them to subscribers.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	ep := &EventPublisher{
		config: cfg,
		buffer: make(chan Event, cfg.BufferSize),
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers. Asynchronous publishers
// drop the event and return an error when the buffer is full.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Level == "" {
		event.Level = EventLevelInfo
	}

	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil
		}
	}
	ep.mu.RUnlock()

	if ep.config.EnableAsync {
		select {
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
		}
		select {
		case ep.buffer <- event:
			return nil
		default:
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	ep.deliverEvent(event)
	return nil
}

// PublishSearchStarted publishes a search started event.
func (ep *EventPublisher) PublishSearchStarted(runID string, seed uint64, instances int) error {
	return ep.Publish(Event{
		Type:    EventTypeSearchStarted,
		RunID:   runID,
		Message: fmt.Sprintf("Search %s started with seed %d on %d instances", runID, seed, instances),
		Data: map[string]any{
			"seed":      seed,
			"instances": instances,
		},
	})
}

// PublishEvaluation publishes the result of evaluating one configuration.
func (ep *EventPublisher) PublishEvaluation(runID string, iteration int, cost float64, timeouts int) error {
	return ep.Publish(Event{
		Type:    EventTypeEvaluation,
		RunID:   runID,
		Message: fmt.Sprintf("Iteration %d evaluated with cost %.3f", iteration, cost),
		Data: map[string]any{
			"iteration": iteration,
			"cost":      cost,
			"timeouts":  timeouts,
		},
	})
}

// PublishIncumbent publishes a new incumbent configuration.
func (ep *EventPublisher) PublishIncumbent(runID string, iteration int, cost float64, config map[string]string) error {
	return ep.Publish(Event{
		Type:    EventTypeIncumbent,
		RunID:   runID,
		Message: fmt.Sprintf("New incumbent at iteration %d with cost %.3f", iteration, cost),
		Data: map[string]any{
			"iteration":     iteration,
			"cost":          cost,
			"configuration": config,
		},
	})
}

// PublishSearchCompleted publishes a search completed event.
func (ep *EventPublisher) PublishSearchCompleted(runID string, iterations int, cost float64, duration time.Duration) error {
	return ep.Publish(Event{
		Type:    EventTypeSearchCompleted,
		RunID:   runID,
		Message: fmt.Sprintf("Search %s completed after %d iterations with cost %.3f", runID, iterations, cost),
		Data: map[string]any{
			"iterations": iterations,
			"cost":       cost,
			"duration":   duration.Seconds(),
		},
	})
}

// PublishSearchFailed publishes a search failed event.
func (ep *EventPublisher) PublishSearchFailed(runID, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypeSearchFailed,
		RunID:   runID,
		Message: fmt.Sprintf("Search %s failed: %s", runID, reason),
		Level:   EventLevelError,
		Data: map[string]any{
			"reason": reason,
		},
	})
}

// PublishPolicyVeto publishes a proposal rejected by a constraint policy.
func (ep *EventPublisher) PublishPolicyVeto(runID string, reasons []string) error {
	return ep.Publish(Event{
		Type:    EventTypePolicyVeto,
		RunID:   runID,
		Message: fmt.Sprintf("Proposal vetoed: %v", reasons),
		Level:   EventLevelWarning,
		Data: map[string]any{
			"reasons": reasons,
		},
	})
}

// Subscribe adds a new event subscriber. A nil filter accepts every event.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents delivers buffered events in batches, flushing on size and
// on every FlushInterval tick.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	interval := ep.config.FlushInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	batch := make([]Event, 0, ep.config.MaxBatchSize)
	flush := func() {
		for _, event := range batch {
			ep.deliverEvent(event)
		}
		batch = batch[:0]
	}

	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)
			if len(batch) >= ep.config.MaxBatchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-ep.ctx.Done():
			for {
				select {
				case event := <-ep.buffer:
					batch = append(batch, event)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown stops the publisher after delivering buffered events.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
		return nil
	}

	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByRunID creates a filter that only allows events for a specific run.
func FilterByRunID(runID string) EventFilter {
	return func(event Event) bool {
		return event.RunID == runID
	}
}
