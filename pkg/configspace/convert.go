package configspace

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Encode converts a named configuration into vector form. Absent names
// become NaN. Activity is not checked; use Repair for that.
func (s *Space) Encode(cfg Configuration) (Vector, error) {
	unknown := make([]string, 0)
	for name := range cfg {
		if _, ok := s.position[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, NewEncodingError(fmt.Sprintf("unknown parameter %s", unknown[0]), nil).
			WithCode(ErrCodeUnknownParam).WithParameter(unknown[0])
	}

	v := make(Vector, len(s.order))
	for i, name := range s.order {
		val, ok := cfg[name]
		if !ok {
			v[i] = math.NaN()
			continue
		}
		x, err := s.encodeValue(s.params[name], val)
		if err != nil {
			return nil, err
		}
		v[i] = x
	}
	return v, nil
}

func (s *Space) encodeValue(p *Parameter, val Value) (float64, error) {
	switch p.Kind {
	case KindCategorical:
		if val.Kind() != KindCategorical {
			return 0, NewEncodingError(fmt.Sprintf("expected a categorical value, got %s", val.Kind()), nil).
				WithCode(ErrCodeKindMismatch).WithParameter(p.Name)
		}
		idx := p.index(val.Str())
		if idx < 0 {
			return 0, NewEncodingError(fmt.Sprintf("value %q is not in the domain", val.Str()), nil).
				WithCode(ErrCodeUnknownValue).WithParameter(p.Name)
		}
		return float64(idx), nil

	case KindInteger, KindReal:
		if !val.Kind().IsNumeric() {
			return 0, NewEncodingError(fmt.Sprintf("expected a numeric value, got %s", val.Kind()), nil).
				WithCode(ErrCodeKindMismatch).WithParameter(p.Name)
		}
		x := val.Float()
		if p.Log && x <= 0 {
			return 0, NewEncodingError(fmt.Sprintf("value %g is not positive on a log scale", x), nil).
				WithCode(ErrCodeUnknownValue).WithParameter(p.Name)
		}
		return p.normalize(x), nil

	default:
		panic(fmt.Sprintf("configspace: unknown kind %q", p.Kind))
	}
}

// Decode converts a vector into a named configuration. NaN positions are
// omitted, categorical positions map to their choice and numeric positions
// are denormalized, integers rounded to the nearest integer.
func (s *Space) Decode(v Vector) (Configuration, error) {
	if len(v) != len(s.order) {
		return nil, NewEncodingError(
			fmt.Sprintf("vector has length %d, space has %d parameters", len(v), len(s.order)), nil,
		).WithCode(ErrCodeVectorLength)
	}

	cfg := make(Configuration, len(v))
	for i, x := range v {
		if math.IsNaN(x) {
			continue
		}
		name := s.order[i]
		p := s.params[name]
		switch p.Kind {
		case KindCategorical:
			idx := int(math.Round(x))
			if idx < 0 || idx >= len(p.Choices) {
				return nil, NewEncodingError(fmt.Sprintf("choice index %g is out of range [0, %d)", x, len(p.Choices)), nil).
					WithCode(ErrCodeIndexRange).WithParameter(name)
			}
			cfg[name] = Categorical(p.Choices[idx])
		case KindInteger:
			cfg[name] = Integer(int64(p.denormalize(x)))
		case KindReal:
			cfg[name] = Real(p.denormalize(x))
		}
	}
	return cfg, nil
}

// Defaults returns the default configuration with every parameter that is
// inactive under the defaults removed.
func (s *Space) Defaults() Configuration {
	cfg := make(Configuration, len(s.order))
	for i, x := range s.DefaultVector() {
		if math.IsNaN(x) {
			continue
		}
		name := s.order[i]
		cfg[name] = s.params[name].Default
	}
	return cfg
}

// DefaultVector returns the default configuration in vector form.
func (s *Space) DefaultVector() Vector {
	v := make(Vector, len(s.order))
	active := make([]bool, len(s.order))
	for i, name := range s.order {
		if !s.conditionsHold(v, active, i) {
			v[i] = math.NaN()
			continue
		}
		active[i] = true
		v[i] = s.params[name].defaultNorm
	}
	return v
}

// Coerce converts loosely typed values, as decoded from JSON or YAML, into
// a Configuration. Strings are parsed according to the parameter kind and
// numbers are accepted for categorical choices that spell them.
func (s *Space) Coerce(raw map[string]any) (Configuration, error) {
	cfg := make(Configuration, len(raw))
	for name, x := range raw {
		p, ok := s.params[name]
		if !ok {
			return nil, NewEncodingError(fmt.Sprintf("unknown parameter %s", name), nil).
				WithCode(ErrCodeUnknownParam).WithParameter(name)
		}
		val, err := coerceValue(p, x)
		if err != nil {
			return nil, err
		}
		cfg[name] = val
	}
	return cfg, nil
}

func coerceValue(p *Parameter, x any) (Value, error) {
	mismatch := func(err error) (Value, error) {
		return Value{}, NewEncodingError(fmt.Sprintf("cannot use %v (%T) as %s value", x, x, p.Kind), err).
			WithCode(ErrCodeKindMismatch).WithParameter(p.Name)
	}

	var f float64
	switch t := x.(type) {
	case Value:
		return t, nil
	case string:
		if p.Kind == KindCategorical {
			return Categorical(t), nil
		}
		n, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return mismatch(err)
		}
		f = n
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case uint64:
		f = float64(t)
	case bool:
		if p.Kind == KindCategorical {
			return Categorical(strconv.FormatBool(t)), nil
		}
		return mismatch(nil)
	default:
		return mismatch(nil)
	}

	switch p.Kind {
	case KindCategorical:
		return Categorical(strconv.FormatFloat(f, 'g', -1, 64)), nil
	case KindInteger:
		if f != math.Trunc(f) {
			return mismatch(fmt.Errorf("%g is not integral", f))
		}
		return Integer(int64(f)), nil
	default:
		return Real(f), nil
	}
}
