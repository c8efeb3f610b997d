package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/rs/zerolog"
)

// Executor runs one solver command under a cutoff.
type Executor interface {
	Execute(ctx context.Context, argv []string, cutoff time.Duration) (Outcome, error)
}

// LocalExecutor runs solvers as child processes. Runtime is the CPU time of
// the child; its whole process group is killed when the cutoff passes in
// wall-clock time, so workers started by wrapper scripts die with it.
type LocalExecutor struct {
	logger zerolog.Logger
}

// NewLocalExecutor creates a local executor.
func NewLocalExecutor(logger zerolog.Logger) *LocalExecutor {
	return &LocalExecutor{logger: logger.With().Str("component", "local-executor").Logger()}
}

// Execute implements Executor.
func (e *LocalExecutor) Execute(ctx context.Context, argv []string, cutoff time.Duration) (Outcome, error) {
	if len(argv) == 0 {
		return Outcome{}, &ExecError{Op: "start", Err: errors.New("empty command")}
	}

	runCtx, cancel := context.WithTimeout(ctx, cutoff)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	killProcessGroup(cmd)
	// Descendants that escaped the group may still hold the output pipes.
	cmd.WaitDelay = time.Second

	startTime := time.Now()
	if err := cmd.Start(); err != nil {
		return Outcome{}, &ExecError{Op: "start", Err: fmt.Errorf("failed to start %s: %w", argv[0], err)}
	}
	waitErr := cmd.Wait()
	wall := time.Since(startTime)

	if ctx.Err() != nil {
		return Outcome{}, ctx.Err()
	}

	var cpu time.Duration
	exitCode := -1
	if cmd.ProcessState != nil {
		cpu = cmd.ProcessState.UserTime() + cmd.ProcessState.SystemTime()
		exitCode = cmd.ProcessState.ExitCode()
	}

	logEvent := e.logger.Debug().
		Str("binary", argv[0]).
		Int("exit_code", exitCode).
		Dur("cpu", cpu).
		Dur("wall", wall)

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		logEvent.Msg("Solver run reached cutoff")
		return timeoutOutcome(cutoff), nil
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return Outcome{}, &ExecError{Op: "wait", Err: waitErr}
	}

	out := finish(stdout.String(), cpu.Seconds(), exitCode, cutoff)
	logEvent.Str("status", string(out.Status)).Float64("runtime", out.Runtime).Msg("Solver run finished")
	if !out.Status.Solved() && stderr.Len() > 0 {
		e.logger.Debug().Str("stderr", truncate(stderr.String(), 512)).Msg("Solver produced no verdict")
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
