package policy

import (
	"time"
)

// ConstraintsPackage is the Rego package whose deny rules veto
// configurations.
const ConstraintsPackage = "spysmac.constraints"

// Severity represents the severity level of a violation.
type Severity string

const (
	// SeverityWarning is reported but does not veto the configuration.
	SeverityWarning Severity = "warning"

	// SeverityError vetoes the configuration.
	SeverityError Severity = "error"
)

// Policy is one Rego module.
type Policy struct {
	// Name is the unique name of the policy, the file name without
	// extension for policies loaded from disk.
	Name string `json:"name"`

	// Description is taken from the leading comment block.
	Description string `json:"description"`

	// Rego contains the module source.
	Rego string `json:"rego"`

	// Enabled indicates if the policy takes part in evaluation.
	Enabled bool `json:"enabled"`

	// Source is the file the policy was loaded from, if any.
	Source string `json:"source,omitempty"`

	LoadedAt time.Time `json:"loaded_at"`
}

// Violation is one message produced by a deny rule. Rules may produce a
// plain string or an object with message, severity and parameter fields.
type Violation struct {
	Message   string   `json:"message"`
	Severity  Severity `json:"severity"`
	Parameter string   `json:"parameter,omitempty"`
}

// Result is the outcome of evaluating one configuration.
type Result struct {
	// Allowed is false when any violation has error severity.
	Allowed bool `json:"allowed"`

	Violations []Violation `json:"violations,omitempty"`
	Warnings   []Violation `json:"warnings,omitempty"`

	// EvaluatedPolicies lists the enabled policies.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	Duration time.Duration `json:"duration"`
}

// Messages returns the messages of the vetoing violations.
func (r *Result) Messages() []string {
	out := make([]string, len(r.Violations))
	for i, v := range r.Violations {
		out[i] = v.Message
	}
	return out
}

// Input is the document exposed to policies as input.
type Input struct {
	// Config maps active parameter names to their natural values.
	Config map[string]any `json:"config"`

	// Active lists the active parameter names in sorted order.
	Active []string `json:"active"`
}
