package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spysmac/spysmac/pkg/telemetry"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
	logLevel   string

	// settings holds the telemetry configuration resolved before each
	// command runs.
	settings *telemetry.Config
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "spysmac",
		Short: "spysmac - automatic algorithm configuration for SAT solvers",
		Long: `spysmac searches a solver's parameter space for a configuration that
solves a set of benchmark instances faster than the solver's defaults.

Parameter spaces are written in the PCS format:
  - categorical and numeric (integer, log-scale) parameters
  - conditions that activate parameters depending on others
  - forbidden combinations

Runs are scored by penalized average runtime (PAR10), validated on held-out
instances and stored in SQLite.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			cfg.ServiceVersion = version
			settings = cfg
			setupLogging(cfg.Logging)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "settings file (default .spysmac.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newSampleCommand())
	rootCmd.AddCommand(newNeighborsCommand())
	rootCmd.AddCommand(newDefaultsCommand())
	rootCmd.AddCommand(newConvertCommand())
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newRunsCommand())
	rootCmd.AddCommand(newPoliciesCommand())

	return rootCmd
}

// loadSettings reads telemetry settings from the settings file, SPYSMAC_*
// environment variables and flags, in increasing precedence.
func loadSettings(cmd *cobra.Command) (*telemetry.Config, error) {
	v := viper.New()
	defaults := telemetry.DefaultConfig()

	v.SetDefault("service_name", defaults.ServiceName)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)
	v.SetDefault("logging.output", defaults.Logging.Output)
	v.SetDefault("logging.enable_caller", defaults.Logging.EnableCaller)
	v.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	v.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	v.SetDefault("tracing.endpoint", defaults.Tracing.Endpoint)
	v.SetDefault("tracing.sampling_rate", defaults.Tracing.SamplingRate)
	v.SetDefault("tracing.export_timeout", defaults.Tracing.ExportTimeout)
	v.SetDefault("tracing.insecure", defaults.Tracing.Insecure)
	v.SetDefault("metrics.enabled", defaults.Metrics.Enabled)
	v.SetDefault("metrics.listen_address", defaults.Metrics.ListenAddress)
	v.SetDefault("metrics.path", defaults.Metrics.Path)
	v.SetDefault("metrics.namespace", defaults.Metrics.Namespace)
	v.SetDefault("metrics.runtime_buckets", defaults.Metrics.RuntimeBuckets)
	v.SetDefault("events.enabled", defaults.Events.Enabled)
	v.SetDefault("events.buffer_size", defaults.Events.BufferSize)
	v.SetDefault("events.flush_interval", defaults.Events.FlushInterval)
	v.SetDefault("events.max_batch_size", defaults.Events.MaxBatchSize)
	v.SetDefault("events.enable_async", defaults.Events.EnableAsync)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(".spysmac")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	v.SetEnvPrefix("SPYSMAC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// SPYSMAC_LOG_LEVEL is the documented shorthand.
	_ = v.BindEnv("logging.level", "SPYSMAC_LOG_LEVEL", "SPYSMAC_LOGGING_LEVEL")

	// Without --config a missing settings file is fine; defaults apply.
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound || configPath != "" {
			return nil, fmt.Errorf("failed to read settings: %w", err)
		}
	}

	if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
		v.Set("logging.level", logLevel)
	} else if verbose {
		v.Set("logging.level", "debug")
	}

	cfg := telemetry.DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return cfg, nil
}

// setupLogging points the global logger at the configured level and format.
func setupLogging(cfg telemetry.LoggingConfig) {
	logger, err := telemetry.NewLogger(cfg)
	if err != nil {
		log.Warn().Err(err).Str("output", cfg.Output).Msg("Falling back to stderr logging")
		logger = telemetry.NewLoggerFrom(log.Logger, cfg)
	}
	log.Logger = logger.Zerolog()
	zerolog.SetGlobalLevel(telemetry.ParseLevel(cfg.Level))
}
