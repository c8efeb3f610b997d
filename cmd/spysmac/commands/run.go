package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/spysmac/spysmac/pkg/configspace"
	"github.com/spysmac/spysmac/pkg/policy"
	"github.com/spysmac/spysmac/pkg/runner"
	"github.com/spysmac/spysmac/pkg/scenario"
	"github.com/spysmac/spysmac/pkg/search"
	"github.com/spysmac/spysmac/pkg/stores"
	"github.com/spysmac/spysmac/pkg/telemetry"
)

// splitStream separates the instance split from the search streams.
const splitStream = 0x5eed

func newRunCommand() *cobra.Command {
	var (
		scenarioPath string
		metricsAddr  string
		evaluations  int
		seed         int64
		watch        bool
		disabled     []string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Configure a solver on a scenario",
		Long: `Run a full configuration experiment described by a scenario file:

  1. find the benchmark instances and split them into training and test sets
  2. search the parameter space on the training set, once per repetition
     with seeds seed, seed+1, ...
  3. validate the default and the best configuration on the test set
  4. report PAR10 before and after, and store every run in SQLite

With seed 0 only the default configuration is validated.`,
		Example: `  # Run a scenario
  spysmac run --scenario minisat.yaml

  # Expose Prometheus metrics while running
  spysmac run --scenario minisat.yaml --metrics-addr :9090

  # Quick smoke test with 20 configurations
  spysmac run --scenario minisat.yaml --evaluations 20

  # Pick up constraint edits during a long search, without one policy
  spysmac run --scenario minisat.yaml --watch-policies --disable-policy restarts`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := scenario.NewLoader(log.Logger)
			sc, err := loader.Load(scenarioPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("evaluations") {
				sc.Evaluations = evaluations
			}
			if cmd.Flags().Changed("seed") {
				if seed < 0 {
					return fmt.Errorf("seed must not be negative")
				}
				sc.Seed = uint64(seed)
			}
			if cmd.Flags().Changed("watch-policies") {
				sc.WatchPolicies = watch
			}
			sc.DisabledPolicies = append(sc.DisabledPolicies, disabled...)
			if sc.Name == "" {
				sc.Name = strings.TrimSuffix(filepath.Base(scenarioPath), filepath.Ext(scenarioPath))
			}

			tel, err := telemetry.NewTelemetryWithLogger(settings, telemetry.NewLoggerFrom(log.Logger, settings.Logging))
			if err != nil {
				return fmt.Errorf("failed to set up telemetry: %w", err)
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = tel.Shutdown(ctx)
			}()

			if metricsAddr != "" {
				if err := tel.Metrics.StartMetricsServer(cmd.Context(), metricsAddr); err != nil {
					return err
				}
			}

			reports, err := runExperiment(cmd.Context(), sc, tel)
			if len(reports) > 0 {
				if werr := writeReports(cmd.OutOrStdout(), reports); werr != nil && err == nil {
					err = werr
				}
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&scenarioPath, "scenario", "s", "", "scenario file (YAML, JSON or CUE)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().IntVar(&evaluations, "evaluations", 0, "override the scenario's evaluation budget")
	cmd.Flags().Int64Var(&seed, "seed", 0, "override the scenario's seed")
	cmd.Flags().BoolVar(&watch, "watch-policies", false, "reload constraint policies when their files change")
	cmd.Flags().StringSliceVar(&disabled, "disable-policy", nil, "do not enforce the named policy (repeatable)")
	_ = cmd.MarkFlagRequired("scenario")

	return cmd
}

// Report is the result of one repetition.
type Report struct {
	RunID      string                    `json:"run_id,omitempty"`
	Seed       uint64                    `json:"seed"`
	Train      int                       `json:"train_instances"`
	Test       int                       `json:"test_instances"`
	Iterations int                       `json:"iterations"`
	Vetoed     int                       `json:"vetoed"`
	Duration   time.Duration             `json:"duration"`
	Incumbent  configspace.Configuration `json:"incumbent,omitempty"`
	Training   *search.Stats             `json:"training,omitempty"`
	Validation search.Comparison         `json:"validation"`
}

// experiment holds what every repetition of a scenario shares.
type experiment struct {
	scenario  *scenario.Scenario
	space     *configspace.Space
	evaluator *runner.Evaluator
	store     stores.Store
	recorder  *stores.Recorder
	policies  *policy.Engine
	tel       *telemetry.Telemetry
	logger    zerolog.Logger
	yaml      string
}

func runExperiment(ctx context.Context, sc *scenario.Scenario, tel *telemetry.Telemetry) ([]Report, error) {
	logger := log.Logger.With().Str("scenario", sc.Name).Logger()
	ctx = tel.WithContext(ctx)

	var spaceOpts []configspace.Option
	spaceOpts = append(spaceOpts, configspace.WithObserver(tel.Metrics))
	if sc.MaxAttempts > 0 {
		spaceOpts = append(spaceOpts, configspace.WithMaxAttempts(sc.MaxAttempts))
	}
	space, err := parseSpace(ctx, sc.PCSFile, spaceOpts...)
	if err != nil {
		return nil, err
	}

	train, test, err := instanceSets(sc, logger)
	if err != nil {
		return nil, err
	}
	logger.Info().Int("train", len(train)).Int("test", len(test)).Msg("Instances selected")

	builder, err := commandBuilder(sc, logger)
	if err != nil {
		return nil, err
	}

	executor, closeExecutor, err := newExecutor(ctx, sc, logger)
	if err != nil {
		return nil, err
	}
	defer closeExecutor()

	store, err := stores.NewSQLiteStore(stores.Config{Path: sc.Store})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return nil, err
	}

	recorder := stores.NewRecorder(store, logger)
	tel.Events.Subscribe(recorder.Subscriber(context.WithoutCancel(ctx)), func(e telemetry.Event) bool {
		return e.Type != telemetry.EventTypeEvaluation
	})
	// Deliver buffered events before the store closes.
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Events.Shutdown(sctx)
	}()

	exp := &experiment{
		scenario: sc,
		space:    space,
		evaluator: runner.NewEvaluator(builder, executor, runner.EvaluatorConfig{
			Binary:   sc.Binary,
			Cutoff:   seconds(sc.Cutoff),
			MemoryMB: sc.MemoryMB,
		}, logger),
		store:    store,
		recorder: recorder,
		tel:      tel,
		logger:   logger,
	}

	if len(sc.Policies) > 0 {
		watchCtx, stopWatch := context.WithCancel(ctx)
		defer stopWatch()
		if exp.policies, err = loadPolicyEngine(watchCtx, sc, logger); err != nil {
			return nil, err
		}
	}

	if exp.yaml, err = sc.YAML(); err != nil {
		return nil, err
	}

	if sc.Seed == 0 {
		report, err := exp.validateDefault(ctx, train, test)
		if err != nil {
			return nil, err
		}
		return []Report{report}, nil
	}

	var reports []Report
	for rep := 0; rep < sc.Repetitions; rep++ {
		report, err := exp.repetition(ctx, sc.Seed+uint64(rep), train, test)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// loadPolicyEngine compiles the scenario's policies, disables the ones the
// scenario names and, if asked, keeps them in sync with their files until ctx
// is cancelled.
func loadPolicyEngine(ctx context.Context, sc *scenario.Scenario, logger zerolog.Logger) (*policy.Engine, error) {
	eng := policy.NewEngine(logger)
	if err := eng.LoadPolicies(ctx, sc.Policies); err != nil {
		return nil, err
	}
	for _, name := range sc.DisabledPolicies {
		if err := eng.DisablePolicy(ctx, name); err != nil {
			return nil, err
		}
	}

	for _, p := range eng.ListPolicies() {
		logger.Info().
			Str("policy", p.Name).
			Bool("enabled", p.Enabled).
			Str("source", p.Source).
			Msg("Constraint policy loaded")
	}

	if sc.WatchPolicies {
		if err := eng.Watch(ctx, sc.Policies); err != nil {
			return nil, fmt.Errorf("failed to watch policies: %w", err)
		}
		logger.Info().Strs("paths", sc.Policies).Msg("Watching constraint policies")
	}
	return eng, nil
}

// parseSpace loads the PCS file as a traced configspace.parse operation.
// Definition errors carry their class on the span.
func parseSpace(ctx context.Context, path string, opts ...configspace.Option) (*configspace.Space, error) {
	op := telemetry.StartOperation(ctx, "configspace.parse", telemetry.AttrSource.String(path))
	if telemetry.FromTelemetryContext(ctx) != nil {
		opts = append(opts, configspace.WithLogger(op.Logger.Zerolog()))
	}

	space, err := loadSpace(path, opts...)
	op.End(err)
	if err != nil {
		return nil, err
	}

	zl := op.Logger.Zerolog()
	zl.Debug().
		Int("parameters", space.Len()).
		Dur("duration", op.Timer.Duration()).
		Msg("Configuration space parsed")
	return space, nil
}

func (e *experiment) newSearch(seed uint64) (*search.Search, error) {
	opts := []search.Option{
		search.WithTelemetry(e.tel),
		search.WithRecorder(e.recorder),
		search.WithLogger(e.logger),
	}
	if e.policies != nil {
		opts = append(opts, search.WithConstraint(e.policies))
	}

	return search.New(e.space, e.evaluator, search.Config{
		Budget:     e.scenario.Evaluations,
		WallClock:  seconds(e.scenario.WallClock),
		NumProcs:   e.scenario.NumProcs,
		Cutoff:     seconds(e.scenario.Cutoff),
		RandomProb: e.scenario.RandomProb,
		Seed:       seed,
	}, opts...)
}

// repetition runs one search and validates its result.
func (e *experiment) repetition(ctx context.Context, seed uint64, train, test []string) (Report, error) {
	srch, err := e.newSearch(seed)
	if err != nil {
		return Report{}, err
	}

	run := &stores.Run{Scenario: e.scenario.Name, Seed: seed, Metadata: e.yaml}
	if err := e.store.CreateRun(ctx, run); err != nil {
		return Report{}, err
	}

	res, err := srch.Run(ctx, run.ID, train)
	if err != nil {
		e.failRun(ctx, run.ID, err)
		return Report{}, err
	}
	if err := e.recorder.Complete(ctx, res); err != nil {
		return Report{}, err
	}

	def, incumbent, err := e.validatePair(ctx, srch, res.Incumbent, test)
	if err != nil {
		return Report{}, err
	}
	training := res.IncumbentStats

	report := Report{
		RunID:      run.ID,
		Seed:       seed,
		Train:      len(train),
		Test:       len(test),
		Iterations: res.Iterations,
		Vetoed:     res.Vetoed,
		Duration:   res.Duration,
		Incumbent:  res.Incumbent,
		Training:   &training,
		Validation: search.Compare(def, incumbent, e.scenario.Cutoff),
	}

	e.logger.Info().
		Str("run_id", run.ID).
		Float64("default_par10", report.Validation.Default.PAR10).
		Float64("incumbent_par10", report.Validation.Configured.PAR10).
		Float64("speedup", report.Validation.Speedup).
		Msg("Repetition finished")

	return report, nil
}

func (e *experiment) validatePair(ctx context.Context, srch *search.Search, incumbent configspace.Configuration, test []string) (def, inc []search.InstanceResult, err error) {
	e.logger.Info().Int("instances", len(test)).Msg("Validating default configuration")
	def, _, err = srch.Validate(ctx, e.space.Defaults(), test)
	if err != nil {
		return nil, nil, fmt.Errorf("validating default configuration: %w", err)
	}

	e.logger.Info().Int("instances", len(test)).Msg("Validating incumbent configuration")
	inc, _, err = srch.Validate(ctx, incumbent, test)
	if err != nil {
		return nil, nil, fmt.Errorf("validating incumbent configuration: %w", err)
	}
	return def, inc, nil
}

// validateDefault only measures the default configuration on the test set.
func (e *experiment) validateDefault(ctx context.Context, train, test []string) (Report, error) {
	srch, err := e.newSearch(0)
	if err != nil {
		return Report{}, err
	}

	e.logger.Info().Int("instances", len(test)).Msg("Seed 0: validating the default configuration only")
	def, _, err := srch.Validate(ctx, e.space.Defaults(), test)
	if err != nil {
		return Report{}, err
	}

	return Report{
		Train:      len(train),
		Test:       len(test),
		Incumbent:  e.space.Defaults(),
		Validation: search.Compare(def, def, e.scenario.Cutoff),
	}, nil
}

func (e *experiment) failRun(ctx context.Context, runID string, cause error) {
	status := stores.RunStatusFailed
	if errors.Is(cause, context.Canceled) {
		status = stores.RunStatusCancelled
	}
	if err := e.store.FailRun(context.WithoutCancel(ctx), runID, status, cause.Error()); err != nil {
		e.logger.Error().Err(err).Str("run_id", runID).Msg("Failed to record run failure")
	}
}

// instanceSets returns the training and test instances of a scenario.
func instanceSets(sc *scenario.Scenario, logger zerolog.Logger) (train, test []string, err error) {
	if sc.TestInstances != "" {
		return runner.SplitExplicit(sc.Instances, sc.TestInstances, logger)
	}
	all, err := runner.FindInstances(sc.Instances, logger)
	if err != nil {
		return nil, nil, err
	}
	rng := rand.New(rand.NewPCG(sc.Seed, splitStream))
	return runner.Split(all, sc.ValidationFraction, rng)
}

func commandBuilder(sc *scenario.Scenario, logger zerolog.Logger) (runner.CommandBuilder, error) {
	if sc.Script != "" {
		return runner.NewStarlarkBuilderFromFile(sc.Script, runner.DefaultScriptTimeout, logger)
	}
	return runner.NewTemplateBuilder(sc.Callstring, sc.Prefix, sc.Separator)
}

func newExecutor(ctx context.Context, sc *scenario.Scenario, logger zerolog.Logger) (runner.Executor, func(), error) {
	if sc.Remote == nil {
		return runner.NewLocalExecutor(logger), func() {}, nil
	}

	r := sc.Remote
	exec := runner.NewSSHExecutor(&runner.SSHConfig{
		Host:           r.Host,
		Port:           r.Port,
		User:           r.User,
		KeyFile:        r.KeyFile,
		Password:       r.Password,
		KnownHostsFile: r.KnownHostsFile,
		WorkDir:        r.WorkDir,
		StageInstances: r.StageInstances,
		ConnectTimeout: 30 * time.Second,
	}, logger)
	if err := exec.Connect(ctx); err != nil {
		return nil, nil, err
	}
	return exec, func() { _ = exec.Close() }, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func writeReports(out io.Writer, reports []Report) error {
	if jsonOutput {
		return writeJSON(out, reports)
	}

	for _, r := range reports {
		if r.RunID != "" {
			fmt.Fprintf(out, "run %s (seed %d): %d configurations, %d vetoed, %s\n",
				r.RunID, r.Seed, r.Iterations, r.Vetoed, r.Duration.Round(time.Millisecond))
		} else {
			fmt.Fprintln(out, "default configuration only (seed 0)")
		}
		v := r.Validation
		fmt.Fprintf(out, "  instances: %d train, %d test\n", r.Train, r.Test)
		fmt.Fprintf(out, "  default:    PAR1 %.3f  PAR10 %.3f  timeouts %d/%d\n",
			v.Default.PAR1, v.Default.PAR10, v.Default.Timeouts, v.Default.N)
		if r.RunID != "" {
			fmt.Fprintf(out, "  configured: PAR1 %.3f  PAR10 %.3f  timeouts %d/%d\n",
				v.Configured.PAR1, v.Configured.PAR10, v.Configured.Timeouts, v.Configured.N)
			fmt.Fprintf(out, "  speedup %.2fx (%d better, %d worse, %d equal)\n",
				v.Speedup, v.Improved, v.Worsened, v.Equal)
		}
		if err := writeJSONLine(out, r.Incumbent); err != nil {
			return err
		}
	}
	return nil
}
