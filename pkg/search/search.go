package search

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/spysmac/spysmac/pkg/configspace"
	"github.com/spysmac/spysmac/pkg/runner"
	"github.com/spysmac/spysmac/pkg/telemetry"
)

// Stream identifiers for the PCG generator, so the proposal sequence and
// the instance seeds do not depend on each other.
const (
	searchStream     = 0x5350595300000001
	validationStream = 0x5350595300000002
)

// maxSolverSeed keeps seeds in the range solvers accept on their command line.
const maxSolverSeed = 1<<31 - 1

// Option configures a Search.
type Option func(*Search)

// WithConstraint vetoes proposals before evaluation.
func WithConstraint(c Constraint) Option {
	return func(s *Search) { s.constraint = c }
}

// WithRecorder persists every solver run.
func WithRecorder(r Recorder) Option {
	return func(s *Search) { s.recorder = r }
}

// WithTelemetry sets the tracer, metrics and, unless WithEvents is also
// given, the event sink.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(s *Search) { s.tel = t }
}

// WithEvents overrides the event sink.
func WithEvents(sink EventSink) Option {
	return func(s *Search) { s.events = sink }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Search) { s.logger = logger }
}

// Search is a configured local search over one configuration space.
type Search struct {
	space      *configspace.Space
	evaluator  Evaluator
	config     Config
	constraint Constraint
	recorder   Recorder
	events     EventSink
	tel        *telemetry.Telemetry
	logger     zerolog.Logger
}

// New creates a search. The config is validated and completed with
// defaults.
func New(space *configspace.Space, evaluator Evaluator, cfg Config, opts ...Option) (*Search, error) {
	if space == nil || evaluator == nil {
		return nil, errors.New("search needs a configuration space and an evaluator")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if cfg.MaxVetoes <= 0 {
		cfg.MaxVetoes = space.MaxAttempts()
	}

	s := &Search{
		space:     space,
		evaluator: evaluator,
		config:    cfg,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tel == nil {
		s.tel = telemetry.Nop()
	}
	if s.events == nil {
		s.events = s.tel.Events
	}
	s.logger = s.logger.With().Str("component", "search").Logger()
	return s, nil
}

// Config returns the effective configuration.
func (s *Search) Config() Config {
	return s.config
}

// Run searches for a configuration with lower PAR10 on instances. The
// default configuration is always evaluated in full; the wall-clock limit
// applies to the proposals after it.
func (s *Search) Run(ctx context.Context, runID string, instances []string) (*Result, error) {
	if len(instances) == 0 {
		return nil, errors.New("search needs at least one training instance")
	}

	start := time.Now()
	logger := s.logger.With().Str("run_id", runID).Uint64("seed", s.config.Seed).Logger()

	ctx, span := s.tel.Tracer.StartSearchSpan(ctx, runID, s.config.Seed)
	defer span.End()

	s.tel.Metrics.SearchStarted()
	defer s.tel.Metrics.SearchFinished()
	_ = s.events.PublishSearchStarted(runID, s.config.Seed, len(instances))

	rng := rand.New(rand.NewPCG(s.config.Seed, searchStream))
	seeds := drawSeeds(rng, len(instances))
	cutoff := s.config.Cutoff.Seconds()

	result := &Result{RunID: runID, Seed: s.config.Seed}

	fail := func(err error) (*Result, error) {
		telemetry.RecordError(span, err)
		_ = s.events.PublishSearchFailed(runID, err.Error())
		logger.Error().Err(err).Int("iterations", result.Iterations).Msg("Search failed")
		return nil, err
	}

	incVec := s.space.DefaultVector()
	incCfg := s.space.Defaults()

	logger.Info().Int("instances", len(instances)).Msg("Evaluating default configuration")
	defResults, err := s.evaluate(ctx, runID, 0, incCfg, incVec, instances, seeds)
	if err != nil {
		return fail(fmt.Errorf("default configuration: %w", err))
	}
	result.Iterations = 1
	result.Runs = len(defResults)
	incStats := NewStats(outcomes(defResults), cutoff)
	result.DefaultStats = incStats
	result.Trajectory = append(result.Trajectory, TrajectoryEntry{
		Iteration:     0,
		Elapsed:       time.Since(start),
		Cost:          incStats.PAR10,
		Configuration: incCfg,
	})
	s.tel.Metrics.SetIncumbentCost(incStats.PAR10)
	_ = s.events.PublishEvaluation(runID, 0, incStats.PAR10, incStats.Timeouts)
	_ = s.events.PublishIncumbent(runID, 0, incStats.PAR10, configStrings(incCfg))

	logger.Info().
		Float64("par10", incStats.PAR10).
		Int("timeouts", incStats.Timeouts).
		Msg("Default configuration evaluated")

	searchCtx := ctx
	if s.config.WallClock > 0 {
		remaining := s.config.WallClock - time.Since(start)
		var cancel context.CancelFunc
		searchCtx, cancel = context.WithTimeout(ctx, max(remaining, 0))
		defer cancel()
	}

	stopReason := "budget"
	consecutiveVetoes := 0

	for s.config.Budget == 0 || result.Iterations < s.config.Budget {
		if searchCtx.Err() != nil {
			if ctx.Err() != nil {
				return fail(ctx.Err())
			}
			stopReason = "wall-clock limit"
			break
		}

		vec, err := s.propose(rng, incVec)
		if err != nil {
			if configspace.IsExhaustion(err) {
				logger.Warn().Err(err).Msg("No further configurations can be proposed")
				stopReason = "space exhausted"
				break
			}
			return fail(err)
		}

		cfg, err := s.space.Decode(vec)
		if err != nil {
			return fail(err)
		}

		if s.constraint != nil {
			allowed, reasons, err := s.constraint.Allowed(searchCtx, cfg)
			if err != nil {
				return fail(fmt.Errorf("constraint check failed: %w", err))
			}
			if !allowed {
				result.Vetoed++
				consecutiveVetoes++
				s.tel.Metrics.RecordVeto()
				_ = s.events.PublishPolicyVeto(runID, reasons)
				logger.Debug().Strs("reasons", reasons).Msg("Proposal vetoed")
				if consecutiveVetoes >= s.config.MaxVetoes {
					stopReason = "constraints reject every proposal"
					break
				}
				continue
			}
		}
		consecutiveVetoes = 0

		iteration := result.Iterations
		results, err := s.evaluate(searchCtx, runID, iteration, cfg, vec, instances, seeds)
		if err != nil {
			if searchCtx.Err() != nil && ctx.Err() == nil {
				stopReason = "wall-clock limit"
				break
			}
			return fail(fmt.Errorf("iteration %d: %w", iteration, err))
		}
		result.Iterations++
		result.Runs += len(results)

		stats := NewStats(outcomes(results), cutoff)
		_ = s.events.PublishEvaluation(runID, iteration, stats.PAR10, stats.Timeouts)

		if stats.PAR10 >= incStats.PAR10 {
			logger.Debug().
				Int("iteration", iteration).
				Float64("par10", stats.PAR10).
				Float64("incumbent_par10", incStats.PAR10).
				Msg("Challenger rejected")
			continue
		}

		incVec, incCfg, incStats = vec, cfg, stats
		result.Trajectory = append(result.Trajectory, TrajectoryEntry{
			Iteration:     iteration,
			Elapsed:       time.Since(start),
			Cost:          stats.PAR10,
			Configuration: cfg,
		})
		s.tel.Metrics.SetIncumbentCost(stats.PAR10)
		_ = s.events.PublishIncumbent(runID, iteration, stats.PAR10, configStrings(cfg))

		logger.Info().
			Int("iteration", iteration).
			Float64("par10", stats.PAR10).
			Int("timeouts", stats.Timeouts).
			Msg("New incumbent")
	}

	result.Incumbent = incCfg
	result.IncumbentVector = incVec
	result.IncumbentStats = incStats
	result.Duration = time.Since(start)

	telemetry.RecordSuccess(span)
	_ = s.events.PublishSearchCompleted(runID, result.Iterations, incStats.PAR10, result.Duration)

	logger.Info().
		Str("reason", stopReason).
		Int("iterations", result.Iterations).
		Int("runs", result.Runs).
		Int("vetoed", result.Vetoed).
		Float64("default_par10", result.DefaultStats.PAR10).
		Float64("incumbent_par10", incStats.PAR10).
		Dur("duration", result.Duration).
		Msg("Search finished")

	return result, nil
}

// propose draws the next challenger. A neighbor that cannot be found falls
// back to a random sample.
func (s *Search) propose(rng *rand.Rand, incumbent configspace.Vector) (configspace.Vector, error) {
	if rng.Float64() >= s.config.RandomProb {
		vec, err := s.space.Neighbor(rng, incumbent)
		if err == nil {
			return vec, nil
		}
		if !configspace.IsExhaustion(err) {
			return nil, err
		}
		s.logger.Debug().Err(err).Msg("Neighbor search exhausted, sampling instead")
	}

	vec, err := s.space.Sample(rng)
	if err != nil {
		return nil, err
	}
	s.tel.Metrics.RecordSample()
	return vec, nil
}

// Validate runs cfg on instances with seeds derived from the search seed,
// so that different configurations see the same instance-seed pairs.
func (s *Search) Validate(ctx context.Context, cfg configspace.Configuration, instances []string) ([]InstanceResult, Stats, error) {
	rng := rand.New(rand.NewPCG(s.config.Seed, validationStream))
	seeds := drawSeeds(rng, len(instances))

	results, err := s.evaluate(ctx, "", -1, cfg, nil, instances, seeds)
	if err != nil {
		return nil, Stats{}, err
	}
	return results, NewStats(outcomes(results), s.config.Cutoff.Seconds()), nil
}

// evaluate runs cfg on every instance, NumProcs at a time. Runs from the
// search are recorded; validation runs (iteration < 0) are not.
func (s *Search) evaluate(
	ctx context.Context,
	runID string,
	iteration int,
	cfg configspace.Configuration,
	vec configspace.Vector,
	instances []string,
	seeds []uint64,
) ([]InstanceResult, error) {
	results := make([]InstanceResult, len(instances))
	cutoff := s.config.Cutoff.Seconds()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.NumProcs)

	for i, instance := range instances {
		seed := seeds[i]
		g.Go(func() error {
			out, err := s.runOnce(gctx, cfg, instance, seed)
			if err != nil {
				return fmt.Errorf("%s: %w", instance, err)
			}
			results[i] = InstanceResult{Instance: instance, Seed: seed, Outcome: out}

			if s.recorder == nil || iteration < 0 {
				return nil
			}
			ev := &Evaluation{
				RunID:         runID,
				Iteration:     iteration,
				Configuration: cfg,
				Vector:        vec,
				Instance:      instance,
				Seed:          seed,
				Outcome:       out,
				Cost:          Penalized(out, cutoff),
			}
			if err := s.recorder.RecordEvaluation(gctx, ev); err != nil {
				return fmt.Errorf("failed to record evaluation: %w", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// runOnce runs one evaluation, retrying temporary failures with
// exponential backoff.
func (s *Search) runOnce(ctx context.Context, cfg configspace.Configuration, instance string, seed uint64) (runner.Outcome, error) {
	ctx, span := s.tel.Tracer.StartEvaluationSpan(ctx, instance, seed)
	defer span.End()

	start := time.Now()
	var out runner.Outcome
	var err error

	for attempt := 0; ; attempt++ {
		out, err = s.evaluator.Evaluate(ctx, cfg, instance, seed)
		if err == nil || !isTemporary(err) || attempt >= s.config.MaxRetries {
			break
		}

		delay := s.backoff(attempt)
		s.logger.Warn().
			Err(err).
			Str("instance", instance).
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Msg("Retrying solver run after temporary failure")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			err = ctx.Err()
		}
		if ctx.Err() != nil {
			break
		}
	}

	if err != nil {
		telemetry.RecordError(span, err)
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			s.tel.Metrics.RecordError("execution", execOp(err))
		}
		return runner.Outcome{}, err
	}

	span.SetAttributes(
		telemetry.AttrStatus.String(string(out.Status)),
		telemetry.AttrCost.Float64(Penalized(out, s.config.Cutoff.Seconds())),
	)
	telemetry.RecordSuccess(span)
	s.tel.Metrics.RecordEvaluation(string(out.Status), time.Since(start))
	return out, nil
}

// backoff doubles the retry delay per attempt, capped at one minute.
func (s *Search) backoff(attempt int) time.Duration {
	delay := s.config.RetryDelay << attempt
	if delay > time.Minute || delay <= 0 {
		delay = time.Minute
	}
	return delay
}

func isTemporary(err error) bool {
	var t interface{ Temporary() bool }
	return errors.As(err, &t) && t.Temporary()
}

func execOp(err error) string {
	var execErr *runner.ExecError
	if errors.As(err, &execErr) {
		return execErr.Op
	}
	return "unknown"
}

// drawSeeds draws one solver seed per instance.
func drawSeeds(rng *rand.Rand, n int) []uint64 {
	seeds := make([]uint64, n)
	for i := range seeds {
		seeds[i] = rng.Uint64N(maxSolverSeed) + 1
	}
	return seeds
}

func configStrings(cfg configspace.Configuration) map[string]string {
	out := make(map[string]string, len(cfg))
	for name, v := range cfg {
		out[name] = v.String()
	}
	return out
}
