package stores

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func createTestRun(t *testing.T, store *SQLiteStore, scenario string, startedAt time.Time) *Run {
	t.Helper()
	run := &Run{
		Scenario:  scenario,
		Seed:      42,
		StartedAt: startedAt,
		Metadata:  "binary: solver\n",
	}
	if err := store.CreateRun(context.Background(), run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}
	return run
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: filepath.Join(t.TempDir(), "spysmac.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.HealthCheck(ctx); err == nil {
		t.Error("expected health check to fail before Init")
	}
	if err := store.Migrate(ctx); err == nil {
		t.Error("expected migrate to fail before Init")
	}

	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	var mode string
	if err := store.db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("failed to read journal mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("expected WAL journal mode, got %s", mode)
	}

	// Migrations are idempotent.
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestNewSQLiteStore_RequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Error("expected error for empty path")
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tables := []string{"runs", "evaluations", "events"}
	for _, table := range tables {
		var count int
		err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count)
		if err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}
}

// TestRunLifecycle tests run creation, completion and failure
func TestRunLifecycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	run := createTestRun(t, store, "minisat", time.Now())
	if run.ID == "" {
		t.Fatal("expected generated run ID")
	}
	if run.Status != RunStatusRunning {
		t.Errorf("expected status running, got %s", run.Status)
	}

	retrieved, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if retrieved.Scenario != "minisat" || retrieved.Seed != 42 {
		t.Errorf("unexpected run: %+v", retrieved)
	}
	if retrieved.CompletedAt != nil || retrieved.Incumbent != nil {
		t.Error("new run should not be completed")
	}

	err = store.CompleteRun(ctx, run.ID, RunResult{
		Incumbent:     `{"restarts":"luby"}`,
		DefaultCost:   100,
		IncumbentCost: 1.5,
		Iterations:    12,
	})
	if err != nil {
		t.Fatalf("failed to complete run: %v", err)
	}

	completed, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("failed to get completed run: %v", err)
	}
	if completed.Status != RunStatusCompleted {
		t.Errorf("expected status completed, got %s", completed.Status)
	}
	if completed.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}
	if completed.Incumbent == nil || *completed.Incumbent != `{"restarts":"luby"}` {
		t.Errorf("unexpected incumbent: %v", completed.Incumbent)
	}
	if completed.DefaultCost == nil || *completed.DefaultCost != 100 {
		t.Errorf("unexpected default cost: %v", completed.DefaultCost)
	}
	if completed.IncumbentCost == nil || *completed.IncumbentCost != 1.5 {
		t.Errorf("unexpected incumbent cost: %v", completed.IncumbentCost)
	}
	if completed.Iterations != 12 {
		t.Errorf("expected 12 iterations, got %d", completed.Iterations)
	}

	other := createTestRun(t, store, "minisat", time.Now())
	if err := store.FailRun(ctx, other.ID, RunStatusCancelled, "interrupted"); err != nil {
		t.Fatalf("failed to cancel run: %v", err)
	}
	cancelled, err := store.GetRun(ctx, other.ID)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if cancelled.Status != RunStatusCancelled || cancelled.Error == nil || *cancelled.Error != "interrupted" {
		t.Errorf("unexpected cancelled run: %+v", cancelled)
	}

	if err := store.FailRun(ctx, other.ID, RunStatusCompleted, "x"); err == nil {
		t.Error("expected error for non-failure status")
	}
}

func TestRunNotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.GetRun(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.CompleteRun(ctx, "missing", RunResult{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.FailRun(ctx, "missing", RunStatusFailed, "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.DeleteRun(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListRuns(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	first := createTestRun(t, store, "a", base)
	second := createTestRun(t, store, "b", base.Add(time.Minute))
	third := createTestRun(t, store, "c", base.Add(2*time.Minute))

	runs, err := store.ListRuns(ctx, 10, 0)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	want := []string{third.ID, second.ID, first.ID}
	if len(runs) != len(want) {
		t.Fatalf("expected %d runs, got %d", len(want), len(runs))
	}
	for i, id := range want {
		if runs[i].ID != id {
			t.Errorf("run %d: expected %s, got %s", i, id, runs[i].ID)
		}
	}

	page, err := store.ListRuns(ctx, 1, 1)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(page) != 1 || page[0].ID != second.ID {
		t.Errorf("unexpected page: %v", page)
	}
}

// TestEvaluations tests recording and listing evaluations
func TestEvaluations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	run := createTestRun(t, store, "minisat", time.Now())

	for i := 0; i < 3; i++ {
		ev := &Evaluation{
			RunID:         run.ID,
			Iteration:     2 - i,
			Configuration: `{"restarts":"luby"}`,
			Vector:        `[0,null]`,
			Instance:      "a.cnf",
			Seed:          uint64(100 + i),
			Status:        "SAT",
			Runtime:       1.25,
			ExitCode:      10,
			Cost:          1.25,
		}
		if err := store.RecordEvaluation(ctx, ev); err != nil {
			t.Fatalf("failed to record evaluation: %v", err)
		}
		if ev.ID == 0 {
			t.Error("expected evaluation ID to be set")
		}
	}

	evs, err := store.ListEvaluations(ctx, run.ID, 10, 0)
	if err != nil {
		t.Fatalf("failed to list evaluations: %v", err)
	}
	if len(evs) != 3 {
		t.Fatalf("expected 3 evaluations, got %d", len(evs))
	}
	for i, ev := range evs {
		if ev.Iteration != i {
			t.Errorf("expected iteration order, got %d at %d", ev.Iteration, i)
		}
	}
	if evs[0].Seed != 102 || evs[0].ExitCode != 10 || evs[0].Vector != `[0,null]` {
		t.Errorf("unexpected evaluation: %+v", evs[0])
	}

	n, err := store.CountEvaluations(ctx, run.ID)
	if err != nil || n != 3 {
		t.Errorf("expected 3 evaluations, got %d (%v)", n, err)
	}

	orphan := &Evaluation{RunID: "missing", Configuration: "{}", Vector: "[]", Status: "SAT"}
	if err := store.RecordEvaluation(ctx, orphan); err == nil {
		t.Error("expected foreign key violation for unknown run")
	}

	// Deleting the run cascades.
	if err := store.DeleteRun(ctx, run.ID); err != nil {
		t.Fatalf("failed to delete run: %v", err)
	}
	n, err = store.CountEvaluations(ctx, run.ID)
	if err != nil || n != 0 {
		t.Errorf("expected evaluations to be deleted, got %d (%v)", n, err)
	}
}

// TestEvents tests the event log
func TestEvents(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	run := createTestRun(t, store, "minisat", time.Now())
	details := `{"cost":1.5}`
	base := time.Now()

	events := []*Event{
		{RunID: &run.ID, Type: "search.started", Level: EventLevelInfo, Message: "started", Timestamp: base},
		{RunID: &run.ID, Type: "policy.veto", Level: EventLevelWarning, Message: "vetoed", Timestamp: base.Add(time.Second)},
		{RunID: &run.ID, Type: "search.incumbent", Level: EventLevelInfo, Message: "better", Details: &details, Timestamp: base.Add(2 * time.Second)},
		{Type: "search.failed", Level: EventLevelError, Message: "no run"},
	}
	for _, e := range events {
		if err := store.AppendEvent(ctx, e); err != nil {
			t.Fatalf("failed to append event: %v", err)
		}
	}

	all, err := store.GetEvents(ctx, nil, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("expected 4 events, got %d", len(all))
	}

	forRun, err := store.GetEvents(ctx, &run.ID, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(forRun) != 3 {
		t.Fatalf("expected 3 run events, got %d", len(forRun))
	}
	if forRun[0].Type != "search.incumbent" || forRun[0].Details == nil || *forRun[0].Details != details {
		t.Errorf("expected newest event first, got %+v", forRun[0])
	}

	warn := EventLevelWarning
	warnings, err := store.GetEvents(ctx, &run.ID, &warn, 10, 0)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(warnings) != 1 || warnings[0].Message != "vetoed" {
		t.Errorf("unexpected warnings: %v", warnings)
	}
}
