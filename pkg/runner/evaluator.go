package runner

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/spysmac/spysmac/pkg/configspace"
)

// Stager prepares an instance for an executor and returns the path the
// solver should read. SSHExecutor implements it.
type Stager interface {
	Stage(ctx context.Context, localPath string) (string, error)
}

// EvaluatorConfig configures an Evaluator.
type EvaluatorConfig struct {
	Binary   string
	Cutoff   time.Duration
	MemoryMB int

	// TempRoot is the parent of the per-run <tempdir>. Empty means the
	// system temporary directory.
	TempRoot string
}

// Evaluator runs one configuration on one instance with one seed.
type Evaluator struct {
	builder  CommandBuilder
	executor Executor
	config   EvaluatorConfig
	logger   zerolog.Logger
}

// NewEvaluator creates an evaluator.
func NewEvaluator(builder CommandBuilder, executor Executor, config EvaluatorConfig, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		builder:  builder,
		executor: executor,
		config:   config,
		logger:   logger.With().Str("component", "evaluator").Logger(),
	}
}

// Cutoff returns the per-run time limit.
func (e *Evaluator) Cutoff() time.Duration {
	return e.config.Cutoff
}

// Evaluate builds the command for cfg and runs it.
func (e *Evaluator) Evaluate(ctx context.Context, cfg configspace.Configuration, instance string, seed uint64) (Outcome, error) {
	if stager, ok := e.executor.(Stager); ok {
		staged, err := stager.Stage(ctx, instance)
		if err != nil {
			return Outcome{}, err
		}
		instance = staged
	}

	tempDir, err := os.MkdirTemp(e.config.TempRoot, "spysmac-run-")
	if err != nil {
		return Outcome{}, &ExecError{Op: "build", Err: fmt.Errorf("failed to create temp dir: %w", err)}
	}
	defer os.RemoveAll(tempDir)

	argv, err := e.builder.Build(ctx, RunArgs{
		Binary:   e.config.Binary,
		Instance: instance,
		Seed:     seed,
		TempDir:  tempDir,
		MemoryMB: e.config.MemoryMB,
	}, cfg)
	if err != nil {
		return Outcome{}, &ExecError{Op: "build", Err: err}
	}

	e.logger.Debug().Strs("argv", argv).Uint64("seed", seed).Msg("Running solver")
	return e.executor.Execute(ctx, argv, e.config.Cutoff)
}
