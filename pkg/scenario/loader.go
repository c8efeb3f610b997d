package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Loader reads scenario files written in YAML, JSON or CUE. Every format is
// checked against the same CUE schema, then defaults are applied and the
// result is validated with struct tags.
type Loader struct {
	ctx       *cue.Context
	schema    cue.Value
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewLoader creates a loader with the built-in scenario schema.
func NewLoader(logger zerolog.Logger) *Loader {
	ctx := cuecontext.New()
	schema := ctx.CompileString(scenarioSchema, cue.Filename("scenario.cue")).
		LookupPath(cue.ParsePath("#Scenario"))
	if err := schema.Err(); err != nil {
		panic(fmt.Sprintf("scenario: invalid built-in schema: %v", err))
	}

	return &Loader{
		ctx:       ctx,
		schema:    schema,
		validator: validator.New(),
		logger:    logger.With().Str("component", "scenario").Logger(),
	}
}

// Load reads, checks and validates the scenario at path. Relative paths in
// the scenario are resolved against the file's directory.
func (l *Loader) Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}

	var val cue.Value
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		val = l.ctx.CompileBytes(data, cue.Filename(path))
		if err := val.Err(); err != nil {
			return nil, convertCUEErrors(err)
		}
	case ".yaml", ".yml", ".json":
		var raw map[string]any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, ValidationErrors{{File: path, Message: err.Error()}}
		}
		val = l.ctx.Encode(raw)
		if err := val.Err(); err != nil {
			return nil, fmt.Errorf("failed to encode scenario: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported scenario format %q (want .yaml, .yml, .json or .cue)", filepath.Ext(path))
	}

	s, err := l.decode(val, path)
	if err != nil {
		return nil, err
	}

	s.Dir = filepath.Dir(path)
	s.resolvePaths()

	l.logger.Debug().
		Str("file", path).
		Str("binary", s.Binary).
		Str("pcs_file", s.PCSFile).
		Float64("cutoff", s.Cutoff).
		Msg("Scenario loaded")

	return s, nil
}

// LoadString parses an in-memory scenario in the given format ("yaml",
// "json" or "cue"). Relative paths are kept as written.
func (l *Loader) LoadString(content, format string) (*Scenario, error) {
	var val cue.Value
	switch format {
	case "cue":
		val = l.ctx.CompileString(content, cue.Filename("inline.cue"))
		if err := val.Err(); err != nil {
			return nil, convertCUEErrors(err)
		}
	case "yaml", "json":
		var raw map[string]any
		if err := yaml.Unmarshal([]byte(content), &raw); err != nil {
			return nil, ValidationErrors{{File: "inline", Message: err.Error()}}
		}
		val = l.ctx.Encode(raw)
	default:
		return nil, fmt.Errorf("unsupported scenario format %q", format)
	}
	return l.decode(val, "inline")
}

func (l *Loader) decode(val cue.Value, source string) (*Scenario, error) {
	unified := l.schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		errs := convertCUEErrors(err)
		for i := range errs {
			if errs[i].File == "" {
				errs[i].File = source
			}
		}
		return nil, errs
	}

	s := &Scenario{Seed: DefaultSeed}
	if err := unified.Decode(s); err != nil {
		return nil, fmt.Errorf("failed to decode scenario: %w", err)
	}

	s.ApplyDefaults()
	if err := l.Validate(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks a scenario's struct constraints.
func (l *Loader) Validate(s *Scenario) error {
	err := l.validator.Struct(s)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("scenario validation failed: %w", err)
	}

	out := make(ValidationErrors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, ValidationError{
			Path:    fe.Namespace(),
			Message: fmt.Sprintf("failed on the '%s' rule", fe.Tag()),
		})
	}
	return out
}

// resolvePaths makes file references relative to the scenario directory.
// Binaries without a directory component are left for PATH lookup.
func (s *Scenario) resolvePaths() {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(s.Dir, p)
	}

	if strings.ContainsRune(s.Binary, filepath.Separator) {
		s.Binary = resolve(s.Binary)
	}
	s.PCSFile = resolve(s.PCSFile)
	s.Instances = resolve(s.Instances)
	s.TestInstances = resolve(s.TestInstances)
	s.Script = resolve(s.Script)
	s.Store = resolve(s.Store)
	for i, p := range s.Policies {
		s.Policies[i] = resolve(p)
	}
	if s.Remote != nil {
		s.Remote.KeyFile = resolve(s.Remote.KeyFile)
		s.Remote.KnownHostsFile = resolve(s.Remote.KnownHostsFile)
	}
}

// YAML renders the scenario for storage alongside a run.
func (s *Scenario) YAML() (string, error) {
	out, err := yaml.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to marshal scenario: %w", err)
	}
	return string(out), nil
}

func convertCUEErrors(err error) ValidationErrors {
	var out ValidationErrors
	for _, e := range cueerrors.Errors(err) {
		ve := ValidationError{
			Path:    strings.Join(e.Path(), "."),
			Message: cueerrors.Details(e, nil),
		}
		if pos := cueerrors.Positions(e); len(pos) > 0 {
			ve.File = pos[0].Filename()
			ve.Line = pos[0].Line()
			ve.Column = pos[0].Column()
		}
		out = append(out, ve)
	}
	if len(out) == 0 {
		out = append(out, ValidationError{Message: err.Error()})
	}
	return out
}
