package scenario

import (
	"fmt"
	"strings"
)

// Scenario describes one configuration run: the solver, its parameter
// space, the benchmark instances and the budget.
type Scenario struct {
	// Name identifies the scenario in stored runs.
	Name string `json:"name" yaml:"name" validate:"omitempty,max=128"`

	// Binary is the solver executable.
	Binary string `json:"binary" yaml:"binary" validate:"required"`

	// PCSFile is the parameter configuration space definition.
	PCSFile string `json:"pcs_file" yaml:"pcs_file" validate:"required"`

	// Instances is a directory of .cnf/.cnf.gz files or a file listing
	// instance paths, one per line.
	Instances string `json:"instances" yaml:"instances" validate:"required"`

	// TestInstances optionally fixes the validation instances; otherwise
	// Instances is split by ValidationFraction.
	TestInstances string `json:"test_instances,omitempty" yaml:"test_instances,omitempty"`

	// Prefix is prepended to every parameter name on the command line.
	Prefix string `json:"prefix" yaml:"prefix"`

	// Separator joins parameter names and values on the command line.
	Separator string `json:"separator" yaml:"separator"`

	// Callstring is the command template after the binary. It may use
	// <params>, <instance>, <seed> and <tempdir>.
	Callstring string `json:"callstring" yaml:"callstring" validate:"required,contains=<instance>"`

	// Script is a Starlark file defining command_line(runargs, config).
	// When set it replaces the Callstring template.
	Script string `json:"script,omitempty" yaml:"script,omitempty"`

	// Cutoff is the per-run time limit in seconds.
	Cutoff float64 `json:"cutoff" yaml:"cutoff" validate:"gt=0"`

	// WallClock is the total search budget in seconds.
	WallClock float64 `json:"wallclock_limit" yaml:"wallclock_limit" validate:"gte=0"`

	// Evaluations caps the number of configurations evaluated; 0 means the
	// wall-clock budget alone applies.
	Evaluations int `json:"evaluations,omitempty" yaml:"evaluations,omitempty" validate:"gte=0"`

	// Repetitions is the number of independent searches.
	Repetitions int `json:"repetitions" yaml:"repetitions" validate:"gte=1"`

	// Seed seeds the first search; later repetitions use Seed+1, Seed+2,
	// and so on. Seed 0 only validates the default configuration.
	Seed uint64 `json:"seed" yaml:"seed"`

	// ValidationFraction is the share of instances held out for testing.
	ValidationFraction float64 `json:"validation_fraction" yaml:"validation_fraction" validate:"gt=0,lt=1"`

	// NumProcs bounds concurrent solver runs.
	NumProcs int `json:"num_procs" yaml:"num_procs" validate:"gte=1"`

	// MemoryMB is the memory limit handed to command builders.
	MemoryMB int `json:"memory_mb" yaml:"memory_mb" validate:"gte=1"`

	// RandomProb is the probability of proposing a fresh random
	// configuration instead of a neighbor of the incumbent.
	RandomProb float64 `json:"random_prob" yaml:"random_prob" validate:"gte=0,lte=1"`

	// MaxAttempts bounds rejection sampling in the configuration space.
	MaxAttempts int `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty" validate:"gte=0"`

	// Policies lists Rego files or directories with constraint policies.
	Policies []string `json:"policies,omitempty" yaml:"policies,omitempty"`

	// WatchPolicies reloads Policies during a run whenever they change.
	WatchPolicies bool `json:"watch_policies,omitempty" yaml:"watch_policies,omitempty"`

	// DisabledPolicies names loaded policies that are not enforced.
	DisabledPolicies []string `json:"disabled_policies,omitempty" yaml:"disabled_policies,omitempty"`

	// Store is the SQLite database recording runs.
	Store string `json:"store" yaml:"store" validate:"required"`

	// Remote runs the solver over SSH when set.
	Remote *Remote `json:"remote,omitempty" yaml:"remote,omitempty"`

	// Dir is the directory relative paths were resolved against.
	Dir string `json:"-" yaml:"-"`
}

// Remote describes an SSH host that runs the solver.
type Remote struct {
	Host           string `json:"host" yaml:"host" validate:"required,hostname_rfc1123|ip"`
	Port           int    `json:"port" yaml:"port" validate:"gte=1,lte=65535"`
	User           string `json:"user" yaml:"user" validate:"required"`
	KeyFile        string `json:"key_file,omitempty" yaml:"key_file,omitempty"`
	Password       string `json:"password,omitempty" yaml:"password,omitempty"`
	KnownHostsFile string `json:"known_hosts_file,omitempty" yaml:"known_hosts_file,omitempty"`

	// WorkDir is the remote directory instances are staged into.
	WorkDir string `json:"work_dir,omitempty" yaml:"work_dir,omitempty"`

	// StageInstances uploads each instance over SFTP before running.
	StageInstances bool `json:"stage_instances,omitempty" yaml:"stage_instances,omitempty"`
}

// Default values.
const (
	DefaultCutoff             = 900.0
	DefaultRepetitions        = 1
	DefaultSeed               = 1
	DefaultValidationFraction = 0.5
	DefaultNumProcs           = 1
	DefaultMemoryMB           = 2000
	DefaultPrefix             = "--"
	DefaultSeparator          = "="
	DefaultCallstring         = "<params> <instance>"
	DefaultRandomProb         = 0.1
	DefaultStore              = "spysmac.db"
	DefaultSSHPort            = 22

	// wallClockFactor sets the default budget relative to the cutoff.
	wallClockFactor = 200
)

// Default returns a scenario with every optional field set to its default.
func Default() *Scenario {
	s := &Scenario{Seed: DefaultSeed}
	s.ApplyDefaults()
	return s
}

// ApplyDefaults fills zero-valued optional fields. Seed is left alone
// since 0 is meaningful.
func (s *Scenario) ApplyDefaults() {
	if s.Cutoff == 0 {
		s.Cutoff = DefaultCutoff
	}
	if s.WallClock == 0 {
		s.WallClock = wallClockFactor * s.Cutoff
	}
	if s.Repetitions == 0 {
		s.Repetitions = DefaultRepetitions
	}
	if s.ValidationFraction == 0 {
		s.ValidationFraction = DefaultValidationFraction
	}
	if s.NumProcs == 0 {
		s.NumProcs = DefaultNumProcs
	}
	if s.MemoryMB == 0 {
		s.MemoryMB = DefaultMemoryMB
	}
	if s.Prefix == "" {
		s.Prefix = DefaultPrefix
	}
	if s.Separator == "" {
		s.Separator = DefaultSeparator
	}
	if s.Callstring == "" {
		s.Callstring = DefaultCallstring
	}
	if s.RandomProb == 0 {
		s.RandomProb = DefaultRandomProb
	}
	if s.Store == "" {
		s.Store = DefaultStore
	}
	if s.Remote != nil && s.Remote.Port == 0 {
		s.Remote.Port = DefaultSSHPort
	}
}

// ValidationError is one problem found in a scenario file.
type ValidationError struct {
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

func (e ValidationError) String() string {
	var sb strings.Builder
	if e.File != "" {
		sb.WriteString(e.File)
		if e.Line > 0 {
			fmt.Fprintf(&sb, ":%d:%d", e.Line, e.Column)
		}
		sb.WriteString(": ")
	}
	if e.Path != "" {
		sb.WriteString(e.Path)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	return sb.String()
}

// ValidationErrors collects every problem found in a scenario.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.String()
	}
	return "invalid scenario: " + strings.Join(parts, "; ")
}
