package policy

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/spysmac/spysmac/pkg/configspace"
)

const restartsPolicy = `package spysmac.constraints

# Luby restarts are too slow with the given base.

deny[msg] {
	input.config.restarts == "luby"
	input.config.base < 50
	msg := sprintf("luby restarts need base >= 50, got %d", [input.config.base])
}
`

const decayPolicy = `package spysmac.constraints

import rego.v1

deny contains violation if {
	input.config.decay > 0.99
	violation := {
		"message": "decay close to one makes the solver stall",
		"parameter": "decay",
	}
}

deny contains violation if {
	input.config.decay < 0.8
	violation := {
		"message": "low decay is rarely useful",
		"severity": "warning",
		"parameter": "decay",
	}
}
`

func newTestEngine(t *testing.T, policies ...Policy) *Engine {
	t.Helper()
	eng := NewEngine(zerolog.New(nil).Level(zerolog.Disabled))
	if err := eng.ReplacePolicies(context.Background(), policies); err != nil {
		t.Fatalf("Failed to load policies: %v", err)
	}
	return eng
}

func testConfig(restarts string, base int64, decay float64) configspace.Configuration {
	return configspace.Configuration{
		"restarts": configspace.Categorical(restarts),
		"base":     configspace.Integer(base),
		"decay":    configspace.Real(decay),
	}
}

func TestEngine_NoPolicies(t *testing.T) {
	eng := newTestEngine(t)

	allowed, msgs, err := eng.Allowed(context.Background(), testConfig("luby", 1, 0.5))
	if err != nil {
		t.Fatalf("Allowed failed: %v", err)
	}
	if !allowed || len(msgs) != 0 {
		t.Errorf("Expected configuration to be allowed without policies, got %v %v", allowed, msgs)
	}
}

func TestEngine_Allowed(t *testing.T) {
	eng := newTestEngine(t,
		Policy{Name: "restarts", Rego: restartsPolicy, Enabled: true},
		Policy{Name: "decay", Rego: decayPolicy, Enabled: true},
	)

	tests := []struct {
		name        string
		config      configspace.Configuration
		wantAllowed bool
		wantMsgs    []string
	}{
		{
			name:        "passes every rule",
			config:      testConfig("luby", 100, 0.95),
			wantAllowed: true,
		},
		{
			name:        "string violation",
			config:      testConfig("luby", 10, 0.95),
			wantAllowed: false,
			wantMsgs:    []string{"luby restarts need base >= 50, got 10"},
		},
		{
			name:        "object violation",
			config:      testConfig("geometric", 10, 0.999),
			wantAllowed: false,
			wantMsgs:    []string{"decay close to one makes the solver stall"},
		},
		{
			name:        "both rules deny",
			config:      testConfig("luby", 10, 0.999),
			wantAllowed: false,
			wantMsgs: []string{
				"decay close to one makes the solver stall",
				"luby restarts need base >= 50, got 10",
			},
		},
		{
			name:        "warning does not veto",
			config:      testConfig("geometric", 10, 0.5),
			wantAllowed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allowed, msgs, err := eng.Allowed(context.Background(), tt.config)
			if err != nil {
				t.Fatalf("Allowed failed: %v", err)
			}
			if allowed != tt.wantAllowed {
				t.Errorf("Expected allowed=%v, got %v (%v)", tt.wantAllowed, allowed, msgs)
			}
			if strings.Join(msgs, "|") != strings.Join(tt.wantMsgs, "|") {
				t.Errorf("Expected messages %q, got %q", tt.wantMsgs, msgs)
			}
		})
	}
}

func TestEngine_Evaluate_Details(t *testing.T) {
	eng := newTestEngine(t,
		Policy{Name: "restarts", Rego: restartsPolicy, Enabled: true},
		Policy{Name: "decay", Rego: decayPolicy, Enabled: true},
	)

	result, err := eng.Evaluate(context.Background(), testConfig("geometric", 10, 0.5))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if !result.Allowed {
		t.Error("Expected warnings only")
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("Expected 1 warning, got %d", len(result.Warnings))
	}
	w := result.Warnings[0]
	if w.Severity != SeverityWarning || w.Parameter != "decay" {
		t.Errorf("Unexpected warning: %+v", w)
	}
	if len(result.EvaluatedPolicies) != 2 || result.EvaluatedPolicies[0] != "decay" {
		t.Errorf("Unexpected evaluated policies: %v", result.EvaluatedPolicies)
	}

	result, err = eng.Evaluate(context.Background(), testConfig("geometric", 10, 0.999))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(result.Violations) != 1 || result.Violations[0].Severity != SeverityError {
		t.Errorf("Expected one error violation, got %+v", result.Violations)
	}
}

func TestEngine_InactiveParameters(t *testing.T) {
	// base is absent when restarts is not luby, so the rule must not fire.
	eng := newTestEngine(t, Policy{Name: "restarts", Rego: restartsPolicy, Enabled: true})

	cfg := configspace.Configuration{"restarts": configspace.Categorical("luby")}
	allowed, _, err := eng.Allowed(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Allowed failed: %v", err)
	}
	if !allowed {
		t.Error("Undefined parameters should not trigger deny rules")
	}
}

func TestEngine_EnableDisable(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, Policy{Name: "restarts", Rego: restartsPolicy, Enabled: true})
	cfg := testConfig("luby", 10, 0.9)

	if err := eng.DisablePolicy(ctx, "restarts"); err != nil {
		t.Fatalf("DisablePolicy failed: %v", err)
	}
	allowed, _, err := eng.Allowed(ctx, cfg)
	if err != nil || !allowed {
		t.Errorf("Expected allowed with disabled policy, got %v %v", allowed, err)
	}

	p, err := eng.GetPolicy("restarts")
	if err != nil {
		t.Fatalf("GetPolicy failed: %v", err)
	}
	if p.Enabled {
		t.Error("Policy should be disabled")
	}

	if err := eng.EnablePolicy(ctx, "restarts"); err != nil {
		t.Fatalf("EnablePolicy failed: %v", err)
	}
	allowed, _, err = eng.Allowed(ctx, cfg)
	if err != nil || allowed {
		t.Errorf("Expected veto with enabled policy, got %v %v", allowed, err)
	}

	if err := eng.EnablePolicy(ctx, "missing"); err == nil {
		t.Error("Expected error for unknown policy")
	}
}

func TestEngine_AddPolicy(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)

	if err := eng.AddPolicy(ctx, Policy{Name: "restarts", Rego: restartsPolicy, Enabled: true}); err != nil {
		t.Fatalf("AddPolicy failed: %v", err)
	}
	if err := eng.AddPolicy(ctx, Policy{Name: "restarts", Rego: restartsPolicy, Enabled: true}); err == nil {
		t.Error("Expected error for duplicate policy")
	}
	if got := len(eng.ListPolicies()); got != 1 {
		t.Errorf("Expected 1 policy, got %d", got)
	}
}

func TestEngine_InvalidPolicyKeepsPrevious(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t, Policy{Name: "restarts", Rego: restartsPolicy, Enabled: true})

	err := eng.ReplacePolicies(ctx, []Policy{{Name: "broken", Rego: "package spysmac.constraints\ndeny[msg] {", Enabled: true}})
	if err == nil {
		t.Fatal("Expected parse error")
	}

	allowed, _, err := eng.Allowed(ctx, testConfig("luby", 10, 0.9))
	if err != nil {
		t.Fatalf("Allowed failed: %v", err)
	}
	if allowed {
		t.Error("Previous policies should still be in effect")
	}
}

func TestEngine_SharedLibrary(t *testing.T) {
	lib := `package spysmac.lib

slow_restarts := {"luby", "fixed"}
`
	rule := `package spysmac.constraints

import data.spysmac.lib

deny[msg] {
	lib.slow_restarts[input.config.restarts]
	msg := sprintf("%s restarts are disabled", [input.config.restarts])
}
`
	eng := newTestEngine(t,
		Policy{Name: "lib", Rego: lib, Enabled: true},
		Policy{Name: "rule", Rego: rule, Enabled: true},
	)

	allowed, msgs, err := eng.Allowed(context.Background(), testConfig("fixed", 100, 0.9))
	if err != nil {
		t.Fatalf("Allowed failed: %v", err)
	}
	if allowed || len(msgs) != 1 || msgs[0] != "fixed restarts are disabled" {
		t.Errorf("Unexpected result: %v %v", allowed, msgs)
	}
}

func TestNewInput(t *testing.T) {
	input := NewInput(testConfig("luby", 3, 0.5))

	config, ok := input["config"].(map[string]any)
	if !ok {
		t.Fatalf("config has type %T", input["config"])
	}
	if config["restarts"] != "luby" || config["base"] != int64(3) || config["decay"] != 0.5 {
		t.Errorf("Unexpected config: %v", config)
	}

	active, ok := input["active"].([]any)
	if !ok || len(active) != 3 || active[0] != "base" {
		t.Errorf("Unexpected active list: %v", input["active"])
	}
}
