package configspace

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind is the type of a parameter.
type Kind string

const (
	KindCategorical Kind = "categorical"
	KindInteger     Kind = "integer"
	KindReal        Kind = "real"
)

// IsNumeric reports whether the kind is integer or real.
func (k Kind) IsNumeric() bool {
	return k == KindInteger || k == KindReal
}

// Value is a natural parameter value: a categorical choice, an integer or a
// real number. The zero Value is invalid.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
}

// Categorical returns a categorical value.
func Categorical(s string) Value { return Value{kind: KindCategorical, s: s} }

// Integer returns an integer value.
func Integer(i int64) Value { return Value{kind: KindInteger, i: i} }

// Real returns a real value.
func Real(f float64) Value { return Value{kind: KindReal, f: f} }

// Kind returns the value kind.
func (v Value) Kind() Kind { return v.kind }

// IsValid reports whether v was built by one of the constructors.
func (v Value) IsValid() bool { return v.kind != "" }

// Str returns the categorical choice, or "" for numeric values.
func (v Value) Str() string { return v.s }

// Int returns the integer value; real values are rounded.
func (v Value) Int() int64 {
	switch v.kind {
	case KindInteger:
		return v.i
	case KindReal:
		return int64(math.Round(v.f))
	default:
		return 0
	}
}

// Float returns the numeric value as float64, or NaN for categorical values.
func (v Value) Float() float64 {
	switch v.kind {
	case KindInteger:
		return float64(v.i)
	case KindReal:
		return v.f
	default:
		return math.NaN()
	}
}

// String renders the value the way a solver command line expects it.
func (v Value) String() string {
	switch v.kind {
	case KindCategorical:
		return v.s
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindReal:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	default:
		return "<invalid>"
	}
}

// MarshalJSON encodes the natural value.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindCategorical:
		return json.Marshal(v.s)
	case KindInteger:
		return json.Marshal(v.i)
	case KindReal:
		return json.Marshal(v.f)
	default:
		return nil, fmt.Errorf("cannot marshal invalid value")
	}
}

// Parameter is one tunable dimension.
type Parameter struct {
	// Name is the unique parameter name.
	Name string `json:"name"`

	// Kind is categorical, integer or real.
	Kind Kind `json:"kind"`

	// Choices is the ordered categorical domain.
	Choices []string `json:"choices,omitempty"`

	// Min and Max bound numeric domains.
	Min float64 `json:"min,omitempty"`
	Max float64 `json:"max,omitempty"`

	// Log enables log-scale normalization of numeric values.
	Log bool `json:"log,omitempty"`

	// Default is the default value, valid in the domain.
	Default Value `json:"default"`

	defaultNorm float64
}

// NewCategorical creates a categorical parameter.
func NewCategorical(name string, choices []string, def string) (*Parameter, error) {
	if name == "" {
		return nil, NewDefinitionError("parameter name is empty", nil).WithCode(ErrCodeSyntax)
	}
	if len(choices) == 0 {
		return nil, NewDefinitionError("categorical domain is empty", nil).
			WithCode(ErrCodeInvalidDomain).WithParameter(name)
	}

	seen := make(map[string]bool, len(choices))
	for _, c := range choices {
		if c == "" {
			return nil, NewDefinitionError("categorical domain contains an empty value", nil).
				WithCode(ErrCodeInvalidDomain).WithParameter(name)
		}
		if seen[c] {
			return nil, NewDefinitionError(fmt.Sprintf("duplicate categorical value %q", c), nil).
				WithCode(ErrCodeInvalidDomain).WithParameter(name)
		}
		seen[c] = true
	}

	p := &Parameter{
		Name:    name,
		Kind:    KindCategorical,
		Choices: append([]string(nil), choices...),
		Default: Categorical(def),
	}
	idx := p.index(def)
	if idx < 0 {
		return nil, NewDefinitionError(fmt.Sprintf("default %q is not in domain %v", def, choices), nil).
			WithCode(ErrCodeInvalidDefault).WithParameter(name)
	}
	p.defaultNorm = float64(idx)
	return p, nil
}

// NewNumeric creates an integer or real parameter.
func NewNumeric(name string, kind Kind, lower, upper, def float64, log bool) (*Parameter, error) {
	if name == "" {
		return nil, NewDefinitionError("parameter name is empty", nil).WithCode(ErrCodeSyntax)
	}
	if !kind.IsNumeric() {
		return nil, NewDefinitionError(fmt.Sprintf("kind %q is not numeric", kind), nil).
			WithCode(ErrCodeKindMismatch).WithParameter(name)
	}
	if math.IsNaN(lower) || math.IsNaN(upper) || !(lower < upper) {
		return nil, NewDefinitionError(fmt.Sprintf("invalid bounds [%g, %g]: min must be below max", lower, upper), nil).
			WithCode(ErrCodeInvalidDomain).WithParameter(name)
	}
	if log && lower <= 0 {
		return nil, NewDefinitionError(fmt.Sprintf("log scale requires positive bounds, got min %g", lower), nil).
			WithCode(ErrCodeInvalidDomain).WithParameter(name)
	}
	if math.IsNaN(def) || def < lower || def > upper {
		return nil, NewDefinitionError(fmt.Sprintf("default %g is not in [%g, %g]", def, lower, upper), nil).
			WithCode(ErrCodeInvalidDefault).WithParameter(name)
	}

	p := &Parameter{
		Name: name,
		Kind: kind,
		Min:  lower,
		Max:  upper,
		Log:  log,
	}
	switch kind {
	case KindInteger:
		if def != math.Trunc(def) {
			return nil, NewDefinitionError(fmt.Sprintf("integer default %g is not integral", def), nil).
				WithCode(ErrCodeInvalidDefault).WithParameter(name)
		}
		p.Default = Integer(int64(def))
	case KindReal:
		p.Default = Real(def)
	}
	p.defaultNorm = p.normalize(def)
	return p, nil
}

// Cardinality is the number of choices for categorical parameters and 0
// otherwise.
func (p *Parameter) Cardinality() int {
	if p.Kind == KindCategorical {
		return len(p.Choices)
	}
	return 0
}

// DefaultNormalized is the default in vector units: the choice index for
// categorical parameters, the [0,1] position for numeric ones.
func (p *Parameter) DefaultNormalized() float64 {
	return p.defaultNorm
}

func (p *Parameter) clone() *Parameter {
	cp := *p
	cp.Choices = append([]string(nil), p.Choices...)
	return &cp
}

func (p *Parameter) index(choice string) int {
	for i, c := range p.Choices {
		if c == choice {
			return i
		}
	}
	return -1
}

func (p *Parameter) bounds() (float64, float64) {
	if p.Log {
		return math.Log(p.Min), math.Log(p.Max)
	}
	return p.Min, p.Max
}

// normalize maps a natural numeric value into [0,1] units. Values outside
// the bounds map outside [0,1]; range checks are the caller's concern.
func (p *Parameter) normalize(x float64) float64 {
	lo, hi := p.bounds()
	if p.Log {
		x = math.Log(x)
	}
	return (x - lo) / (hi - lo)
}

// denormalize inverts normalize. Integer parameters are rounded.
func (p *Parameter) denormalize(u float64) float64 {
	lo, hi := p.bounds()
	x := u*(hi-lo) + lo
	if p.Log {
		x = math.Exp(x)
	}
	if p.Kind == KindInteger {
		x = math.Round(x)
	}
	return x
}

// Condition activates Dependent only while Head holds one of Values.
type Condition struct {
	Dependent string   `json:"dependent"`
	Head      string   `json:"head"`
	Values    []string `json:"values"`

	indexes []int
}

// Indexes returns the activating values as indexes into the head's choices.
func (c Condition) Indexes() []int {
	return append([]int(nil), c.indexes...)
}

// String renders the condition in definition syntax.
func (c Condition) String() string {
	return fmt.Sprintf("%s | %s in {%s}", c.Dependent, c.Head, strings.Join(c.Values, ", "))
}

// Literal is one name=value pair of a forbidden clause.
type Literal struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ForbiddenClause rules out every configuration matching all its literals.
type ForbiddenClause struct {
	Literals []Literal `json:"literals"`
}

// String renders the clause in definition syntax.
func (f ForbiddenClause) String() string {
	parts := make([]string, len(f.Literals))
	for i, l := range f.Literals {
		parts[i] = l.Name + "=" + l.Value
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Vector is the position-encoded form of a configuration. Inactive
// positions hold NaN.
type Vector []float64

// Clone returns a copy of the vector.
func (v Vector) Clone() Vector {
	return append(Vector(nil), v...)
}

// MarshalJSON encodes inactive positions as null.
func (v Vector) MarshalJSON() ([]byte, error) {
	out := make([]*float64, len(v))
	for i := range v {
		if !math.IsNaN(v[i]) {
			out[i] = &v[i]
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes null entries as inactive positions.
func (v *Vector) UnmarshalJSON(data []byte) error {
	var in []*float64
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	out := make(Vector, len(in))
	for i, x := range in {
		if x == nil {
			out[i] = math.NaN()
		} else {
			out[i] = *x
		}
	}
	*v = out
	return nil
}

// Configuration is the named form of a configuration. Inactive parameters
// are absent.
type Configuration map[string]Value
