package configspace

import (
	"math"
	"math/rand/v2"
)

// Active reports, per position, whether the parameter is active in v. A
// parameter is active when every condition on it holds: the head is active
// and holds one of the activating values. Heads precede their dependents in
// the ordering, so one forward pass suffices.
func (s *Space) Active(v Vector) []bool {
	active := make([]bool, len(s.order))
	for i := range s.order {
		active[i] = s.conditionsHold(v, active, i)
	}
	return active
}

func (s *Space) conditionsHold(v Vector, active []bool, i int) bool {
	for _, c := range s.conds[i] {
		if !active[c.parent] || c.parent >= len(v) || !c.allows(v[c.parent]) {
			return false
		}
	}
	return true
}

// Repair returns a copy of v made consistent with the conditions: inactive
// positions are set to NaN and active positions holding NaN receive the
// parameter default.
func (s *Space) Repair(v Vector) Vector {
	return s.repair(nil, v)
}

// repair is Repair with fresh uniform draws for newly active positions
// when rng is non-nil.
func (s *Space) repair(rng *rand.Rand, v Vector) Vector {
	out := make(Vector, len(s.order))
	copy(out, v)

	active := make([]bool, len(s.order))
	for i := range s.order {
		if !s.conditionsHold(out, active, i) {
			out[i] = math.NaN()
			continue
		}
		active[i] = true
		if math.IsNaN(out[i]) {
			if rng != nil {
				out[i] = s.drawValue(rng, i)
			} else {
				out[i] = s.params[s.order[i]].defaultNorm
			}
		}
	}
	return out
}

// IsForbidden reports whether any forbidden clause matches v in full.
// Inactive positions never match a literal.
func (s *Space) IsForbidden(v Vector) bool {
	for _, clause := range s.clauses {
		if s.clauseMatches(v, clause) {
			return true
		}
	}
	return false
}

func (s *Space) clauseMatches(v Vector, clause []literalRef) bool {
	for _, lit := range clause {
		if lit.pos >= len(v) {
			return false
		}
		x := v[lit.pos]
		if math.IsNaN(x) {
			return false
		}
		switch lit.param.Kind {
		case KindCategorical:
			if int(math.Round(x)) != lit.index {
				return false
			}
		case KindInteger:
			if lit.param.denormalize(x) != lit.value {
				return false
			}
		case KindReal:
			if !approxEqual(lit.param.denormalize(x), lit.value) {
				return false
			}
		}
	}
	return true
}

const realTolerance = 1e-9

func approxEqual(a, b float64) bool {
	if a == b {
		return true
	}
	scale := math.Max(math.Abs(a), math.Abs(b))
	if scale < 1 {
		scale = 1
	}
	return math.Abs(a-b) <= realTolerance*scale
}
