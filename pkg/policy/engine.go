package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"

	"github.com/spysmac/spysmac/pkg/configspace"
)

// Engine evaluates constraint policies against configurations. All
// enabled modules are compiled together, so helper packages can be shared
// between files. It implements search.Constraint.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*Policy
	query    *rego.PreparedEvalQuery
	logger   zerolog.Logger
}

// NewEngine creates an engine without policies. It allows every
// configuration until policies are loaded.
func NewEngine(logger zerolog.Logger) *Engine {
	return &Engine{
		policies: make(map[string]*Policy),
		logger:   logger.With().Str("component", "policy-engine").Logger(),
	}
}

// LoadPolicies loads .rego files and directories and replaces the current
// policy set.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	policies, err := NewLoader(e.logger).LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}
	return e.ReplacePolicies(ctx, policies)
}

// AddPolicy compiles one more policy into the engine.
func (e *Engine) AddPolicy(ctx context.Context, policy Policy) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.policies[policy.Name]; exists {
		return fmt.Errorf("policy %s already loaded", policy.Name)
	}
	next := clonePolicies(e.policies)
	p := policy
	next[p.Name] = &p
	return e.compile(ctx, next)
}

// ReplacePolicies swaps the whole policy set. On a compile error the
// previous set stays in effect.
func (e *Engine) ReplacePolicies(ctx context.Context, policies []Policy) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := make(map[string]*Policy, len(policies))
	for i := range policies {
		p := policies[i]
		if _, dup := next[p.Name]; dup {
			return fmt.Errorf("duplicate policy name %s", p.Name)
		}
		next[p.Name] = &p
	}
	if err := e.compile(ctx, next); err != nil {
		return err
	}

	e.logger.Info().Int("count", len(next)).Msg("Policies loaded")
	return nil
}

// compile prepares the deny query over the enabled policies in set and
// installs it. The caller holds the write lock.
func (e *Engine) compile(ctx context.Context, set map[string]*Policy) error {
	opts := []func(*rego.Rego){
		rego.Query("data." + ConstraintsPackage + ".deny"),
	}

	constraints := 0
	for _, name := range sortedNames(set) {
		p := set[name]
		if !p.Enabled {
			continue
		}
		module, err := ast.ParseModule(p.Name, p.Rego)
		if err != nil {
			return fmt.Errorf("failed to parse policy %s: %w", p.Name, err)
		}
		if module.Package.Path.String() == "data."+ConstraintsPackage {
			constraints++
		} else {
			e.logger.Debug().
				Str("policy", p.Name).
				Str("package", module.Package.Path.String()).
				Msg("Policy is not in the constraints package and only serves as a library")
		}
		opts = append(opts, rego.ParsedModule(module))
	}

	if constraints == 0 {
		e.policies = set
		e.query = nil
		return nil
	}

	query, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to compile policies: %w", err)
	}

	e.policies = set
	e.query = &query
	return nil
}

// Evaluate runs the deny rules against cfg.
func (e *Engine) Evaluate(ctx context.Context, cfg configspace.Configuration) (*Result, error) {
	startTime := time.Now()

	e.mu.RLock()
	query := e.query
	evaluated := make([]string, 0, len(e.policies))
	for _, name := range sortedNames(e.policies) {
		if e.policies[name].Enabled {
			evaluated = append(evaluated, name)
		}
	}
	e.mu.RUnlock()

	result := &Result{Allowed: true, EvaluatedPolicies: evaluated}
	if query == nil {
		return result, nil
	}

	rs, err := query.Eval(ctx, rego.EvalInput(NewInput(cfg)))
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	for _, r := range rs {
		for _, expr := range r.Expressions {
			denySet, ok := expr.Value.([]any)
			if !ok {
				continue
			}
			for _, d := range denySet {
				v := newViolation(d)
				if v.Severity == SeverityWarning {
					result.Warnings = append(result.Warnings, v)
					continue
				}
				result.Violations = append(result.Violations, v)
			}
		}
	}
	sortViolations(result.Violations)
	sortViolations(result.Warnings)
	result.Allowed = len(result.Violations) == 0
	result.Duration = time.Since(startTime)

	e.logger.Debug().
		Bool("allowed", result.Allowed).
		Int("violations", len(result.Violations)).
		Int("warnings", len(result.Warnings)).
		Dur("duration", result.Duration).
		Msg("Configuration evaluated")

	return result, nil
}

// Allowed reports whether cfg passes every constraint, with the veto
// messages when it does not.
func (e *Engine) Allowed(ctx context.Context, cfg configspace.Configuration) (bool, []string, error) {
	result, err := e.Evaluate(ctx, cfg)
	if err != nil {
		return false, nil, err
	}
	return result.Allowed, result.Messages(), nil
}

// NewInput builds the policy input for cfg.
func NewInput(cfg configspace.Configuration) map[string]any {
	config := make(map[string]any, len(cfg))
	active := make([]any, 0, len(cfg))
	for name, v := range cfg {
		switch v.Kind() {
		case configspace.KindCategorical:
			config[name] = v.Str()
		case configspace.KindInteger:
			config[name] = v.Int()
		case configspace.KindReal:
			config[name] = v.Float()
		}
	}
	for _, name := range sortedKeys(config) {
		active = append(active, name)
	}
	return map[string]any{
		"config": config,
		"active": active,
	}
}

func newViolation(d any) Violation {
	v := Violation{Severity: SeverityError}
	switch val := d.(type) {
	case string:
		v.Message = val
	case map[string]any:
		if msg, ok := val["message"].(string); ok {
			v.Message = msg
		}
		if sev, ok := val["severity"].(string); ok && Severity(strings.ToLower(sev)) == SeverityWarning {
			v.Severity = SeverityWarning
		}
		if p, ok := val["parameter"].(string); ok {
			v.Parameter = p
		}
		if v.Message == "" {
			v.Message = fmt.Sprintf("%v", val)
		}
	default:
		v.Message = fmt.Sprintf("%v", d)
	}
	return v
}

func sortViolations(vs []Violation) {
	sort.Slice(vs, func(i, j int) bool { return vs[i].Message < vs[j].Message })
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	p, exists := e.policies[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}
	cp := *p
	return &cp, nil
}

// ListPolicies returns all loaded policies sorted by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, name := range sortedNames(e.policies) {
		policies = append(policies, *e.policies[name])
	}
	return policies
}

// EnablePolicy enables a policy by name.
func (e *Engine) EnablePolicy(ctx context.Context, name string) error {
	return e.setEnabled(ctx, name, true)
}

// DisablePolicy disables a policy by name.
func (e *Engine) DisablePolicy(ctx context.Context, name string) error {
	return e.setEnabled(ctx, name, false)
}

func (e *Engine) setEnabled(ctx context.Context, name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.policies[name]; !exists {
		return fmt.Errorf("policy not found: %s", name)
	}
	next := clonePolicies(e.policies)
	next[name].Enabled = enabled
	if err := e.compile(ctx, next); err != nil {
		return err
	}

	e.logger.Info().Str("policy", name).Bool("enabled", enabled).Msg("Policy state changed")
	return nil
}

// Watch reloads the policies under paths in the background whenever they
// change. A reload that fails to compile keeps the previous policies, and
// policies disabled with DisablePolicy stay disabled.
func (e *Engine) Watch(ctx context.Context, paths []string) error {
	loader := NewLoader(e.logger)
	return loader.Watch(ctx, paths, func(policies []Policy) error {
		e.mu.RLock()
		for i := range policies {
			if cur, ok := e.policies[policies[i].Name]; ok && !cur.Enabled {
				policies[i].Enabled = false
			}
		}
		e.mu.RUnlock()
		return e.ReplacePolicies(ctx, policies)
	})
}

func clonePolicies(set map[string]*Policy) map[string]*Policy {
	out := make(map[string]*Policy, len(set))
	for name, p := range set {
		cp := *p
		out[name] = &cp
	}
	return out
}

func sortedNames(set map[string]*Policy) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
