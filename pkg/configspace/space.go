package configspace

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/rs/zerolog"
)

// DefaultMaxAttempts bounds every rejection loop unless overridden.
const DefaultMaxAttempts = 10000

// Observer receives rejection-loop statistics. Implementations must be safe
// for concurrent use.
type Observer interface {
	// ObserveRejection is called for every discarded draw.
	ObserveRejection(operation string)

	// ObserveExhaustion is called when a loop gives up.
	ObserveExhaustion(operation string)
}

type nopObserver struct{}

func (nopObserver) ObserveRejection(string)  {}
func (nopObserver) ObserveExhaustion(string) {}

// Option configures a Builder and the Space it builds.
type Option func(*options)

type options struct {
	logger      zerolog.Logger
	maxAttempts int
	observer    Observer
	source      string
}

func defaultOptions() options {
	return options{
		logger:      zerolog.Nop(),
		maxAttempts: DefaultMaxAttempts,
		observer:    nopObserver{},
	}
}

// WithLogger sets the logger used for construction warnings.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger.With().Str("component", "configspace").Logger()
	}
}

// WithMaxAttempts bounds sampling and neighbor rejection loops. Values
// below 1 keep the default.
func WithMaxAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithObserver registers an observer for rejection statistics.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithSource names the definition in error messages.
func WithSource(name string) Option {
	return func(o *options) {
		o.source = name
	}
}

// Builder collects parameters, conditions and forbidden clauses and
// builds an immutable Space.
type Builder struct {
	opts       options
	params     map[string]*Parameter
	conditions []Condition
	condLines  []int
	forbidden  []ForbiddenClause
	forbLines  []int
}

// NewBuilder creates an empty builder.
func NewBuilder(opts ...Option) *Builder {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Builder{
		opts:   o,
		params: make(map[string]*Parameter),
	}
}

// AddCategorical declares a categorical parameter.
func (b *Builder) AddCategorical(name string, choices []string, def string) error {
	p, err := NewCategorical(name, choices, def)
	if err != nil {
		return err
	}
	return b.AddParameter(p)
}

// AddNumeric declares an integer or real parameter.
func (b *Builder) AddNumeric(name string, kind Kind, lower, upper, def float64, log bool) error {
	p, err := NewNumeric(name, kind, lower, upper, def, log)
	if err != nil {
		return err
	}
	return b.AddParameter(p)
}

// AddParameter declares p. Redeclaring a name with the same kind replaces
// the earlier definition; redeclaring it with another kind fails.
func (b *Builder) AddParameter(p *Parameter) error {
	if prev, ok := b.params[p.Name]; ok {
		if prev.Kind != p.Kind {
			return NewDefinitionError(
				fmt.Sprintf("parameter redefined as %s, previously %s", p.Kind, prev.Kind), nil,
			).WithCode(ErrCodeIncompatible).WithParameter(p.Name)
		}
		b.opts.logger.Warn().
			Str("parameter", p.Name).
			Str("kind", string(p.Kind)).
			Msg("Parameter redefined, keeping the last definition")
	}
	b.params[p.Name] = p
	return nil
}

// AddCondition makes dependent active only while head holds one of values.
// The head must already be declared.
func (b *Builder) AddCondition(dependent, head string, values []string) error {
	return b.addCondition(dependent, head, values, 0)
}

func (b *Builder) addCondition(dependent, head string, values []string, line int) error {
	hp, ok := b.params[head]
	if !ok {
		return NewDefinitionError(fmt.Sprintf("condition on %s references unknown head %s", dependent, head), nil).
			WithCode(ErrCodeUnknownParam).WithParameter(head)
	}
	if _, err := resolveHeadValues(hp, values); err != nil {
		return err
	}
	b.conditions = append(b.conditions, Condition{
		Dependent: dependent,
		Head:      head,
		Values:    append([]string(nil), values...),
	})
	b.condLines = append(b.condLines, line)
	return nil
}

// AddForbidden adds a clause ruling out every configuration that matches
// all literals. Literals are resolved when the space is built.
func (b *Builder) AddForbidden(literals []Literal) error {
	return b.addForbidden(literals, 0)
}

func (b *Builder) addForbidden(literals []Literal, line int) error {
	if len(literals) == 0 {
		return NewDefinitionError("forbidden clause is empty", nil).WithCode(ErrCodeSyntax)
	}
	b.forbidden = append(b.forbidden, ForbiddenClause{Literals: append([]Literal(nil), literals...)})
	b.forbLines = append(b.forbLines, line)
	return nil
}

// Build validates the collected definitions, orders the parameters and
// returns the space. No partial space is returned on error.
func (b *Builder) Build() (*Space, error) {
	conditions := make([]Condition, len(b.conditions))
	heads := make(map[string][]string)
	for i, c := range b.conditions {
		if _, ok := b.params[c.Dependent]; !ok {
			return nil, b.lineErr(NewDefinitionError(
				fmt.Sprintf("condition references unknown parameter %s", c.Dependent), nil,
			).WithCode(ErrCodeUnknownParam).WithParameter(c.Dependent), b.condLines[i])
		}
		idx, err := resolveHeadValues(b.params[c.Head], c.Values)
		if err != nil {
			return nil, b.lineErr(err, b.condLines[i])
		}
		c.indexes = idx
		conditions[i] = c
		heads[c.Dependent] = append(heads[c.Dependent], c.Head)
	}

	names := make([]string, 0, len(b.params))
	for name := range b.params {
		names = append(names, name)
	}
	sort.Strings(names)

	order, levels, err := orderParameters(names, heads)
	if err != nil {
		return nil, b.lineErr(err, 0)
	}

	s := &Space{
		params:      make(map[string]*Parameter, len(order)),
		conditions:  conditions,
		forbidden:   append([]ForbiddenClause(nil), b.forbidden...),
		order:       order,
		levels:      levels,
		position:    make(map[string]int, len(order)),
		isCat:       make([]bool, len(order)),
		cardinality: make([]int, len(order)),
		conds:       make([][]condRef, len(order)),
		maxAttempts: b.opts.maxAttempts,
		logger:      b.opts.logger,
		observer:    b.opts.observer,
	}
	for i, name := range order {
		p := b.params[name]
		s.params[name] = p
		s.position[name] = i
		s.isCat[i] = p.Kind == KindCategorical
		s.cardinality[i] = p.Cardinality()
	}
	for _, c := range conditions {
		child := s.position[c.Dependent]
		parent := s.position[c.Head]
		allowed := make([]bool, s.cardinality[parent])
		for _, idx := range c.indexes {
			allowed[idx] = true
		}
		s.conds[child] = append(s.conds[child], condRef{parent: parent, allowed: allowed})
	}

	s.clauses = make([][]literalRef, len(b.forbidden))
	for i, clause := range b.forbidden {
		refs, err := s.resolveClause(clause)
		if err != nil {
			return nil, b.lineErr(err, b.forbLines[i])
		}
		s.clauses[i] = refs
	}

	b.opts.logger.Debug().
		Strs("ordering", order).
		Int("levels", len(levels)).
		Int("conditions", len(conditions)).
		Int("forbidden", len(s.clauses)).
		Msg("Configuration space built")

	return s, nil
}

func (b *Builder) lineErr(err error, line int) error {
	e, ok := err.(*Error)
	if !ok {
		return err
	}
	if e.Source == "" {
		e.Source = b.opts.source
	}
	if e.Line == 0 {
		e.Line = line
	}
	return e
}

func resolveHeadValues(head *Parameter, values []string) ([]int, error) {
	if head.Kind != KindCategorical {
		return nil, NewDefinitionError(fmt.Sprintf("condition head %s is %s, must be categorical", head.Name, head.Kind), nil).
			WithCode(ErrCodeKindMismatch).WithParameter(head.Name)
	}
	if len(values) == 0 {
		return nil, NewDefinitionError("condition has no activating values", nil).
			WithCode(ErrCodeSyntax).WithParameter(head.Name)
	}
	idx := make([]int, 0, len(values))
	for _, v := range values {
		i := head.index(v)
		if i < 0 {
			return nil, NewDefinitionError(fmt.Sprintf("value %q is not in the domain of %s", v, head.Name), nil).
				WithCode(ErrCodeUnknownValue).WithParameter(head.Name)
		}
		idx = append(idx, i)
	}
	return idx, nil
}

// condRef is a resolved condition: the head position and a lookup table of
// activating choice indexes.
type condRef struct {
	parent  int
	allowed []bool
}

func (c condRef) allows(x float64) bool {
	if math.IsNaN(x) {
		return false
	}
	i := int(math.Round(x))
	return i >= 0 && i < len(c.allowed) && c.allowed[i]
}

// literalRef is a resolved forbidden literal.
type literalRef struct {
	pos   int
	param *Parameter
	index int
	value float64
}

func (s *Space) resolveClause(clause ForbiddenClause) ([]literalRef, error) {
	refs := make([]literalRef, 0, len(clause.Literals))
	for _, lit := range clause.Literals {
		pos, ok := s.position[lit.Name]
		if !ok {
			return nil, NewDefinitionError(fmt.Sprintf("forbidden clause references unknown parameter %s", lit.Name), nil).
				WithCode(ErrCodeUnknownParam).WithParameter(lit.Name)
		}
		p := s.params[lit.Name]
		ref := literalRef{pos: pos, param: p}
		switch p.Kind {
		case KindCategorical:
			ref.index = p.index(lit.Value)
			if ref.index < 0 {
				return nil, NewDefinitionError(fmt.Sprintf("forbidden value %q is not in the domain of %s", lit.Value, lit.Name), nil).
					WithCode(ErrCodeUnknownValue).WithParameter(lit.Name)
			}
		case KindInteger, KindReal:
			x, err := strconv.ParseFloat(lit.Value, 64)
			if err != nil {
				return nil, NewDefinitionError(fmt.Sprintf("forbidden value %q of %s is not a number", lit.Value, lit.Name), err).
					WithCode(ErrCodeSyntax).WithParameter(lit.Name)
			}
			if p.Kind == KindInteger && x != math.Trunc(x) {
				return nil, NewDefinitionError(fmt.Sprintf("forbidden value %q of integer %s is not integral", lit.Value, lit.Name), nil).
					WithCode(ErrCodeUnknownValue).WithParameter(lit.Name)
			}
			ref.value = x
		default:
			panic(fmt.Sprintf("configspace: unknown kind %q", p.Kind))
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// Space is an immutable configuration space. All methods are safe for
// concurrent use; randomness is supplied by the caller.
type Space struct {
	params     map[string]*Parameter
	conditions []Condition
	forbidden  []ForbiddenClause
	order      []string
	levels     [][]string
	position   map[string]int

	isCat       []bool
	cardinality []int
	conds       [][]condRef
	clauses     [][]literalRef

	maxAttempts int
	logger      zerolog.Logger
	observer    Observer
}

// Len returns the vector length.
func (s *Space) Len() int { return len(s.order) }

// Names returns the parameter names in vector order.
func (s *Space) Names() []string { return append([]string(nil), s.order...) }

// Levels returns the ordering passes: every name in level k only depends on
// names in levels below k.
func (s *Space) Levels() [][]string {
	out := make([][]string, len(s.levels))
	for i, l := range s.levels {
		out[i] = append([]string(nil), l...)
	}
	return out
}

// Parameter returns a copy of the named parameter.
func (s *Space) Parameter(name string) (*Parameter, bool) {
	p, ok := s.params[name]
	if !ok {
		return nil, false
	}
	return p.clone(), true
}

// Parameters returns copies of the parameters in vector order.
func (s *Space) Parameters() []*Parameter {
	out := make([]*Parameter, len(s.order))
	for i, name := range s.order {
		out[i] = s.params[name].clone()
	}
	return out
}

// Position returns the vector index of the named parameter.
func (s *Space) Position(name string) (int, bool) {
	i, ok := s.position[name]
	return i, ok
}

// Conditions returns the conditions in declaration order.
func (s *Space) Conditions() []Condition {
	return append([]Condition(nil), s.conditions...)
}

// Forbidden returns the forbidden clauses in declaration order.
func (s *Space) Forbidden() []ForbiddenClause {
	return append([]ForbiddenClause(nil), s.forbidden...)
}

// IsConditional reports whether the named parameter has any condition.
func (s *Space) IsConditional(name string) bool {
	i, ok := s.position[name]
	return ok && len(s.conds[i]) > 0
}

// MaxAttempts returns the rejection-loop bound.
func (s *Space) MaxAttempts() int { return s.maxAttempts }
