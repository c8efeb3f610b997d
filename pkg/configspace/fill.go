package configspace

import (
	"fmt"
	"math"
	"strconv"
)

// DefaultFillValue is the constant used for inactive positions when no
// other policy is chosen.
const DefaultFillValue = -512

type fillMode int

const (
	fillConstant fillMode = iota
	fillDefault
	fillMean
)

// FillPolicy replaces the NaN sentinels of a vector for consumers that
// cannot handle missing values.
type FillPolicy struct {
	mode  fillMode
	value float64
}

var (
	// FillDefault fills a position with its parameter's normalized default.
	FillDefault = FillPolicy{mode: fillDefault}

	// FillMean fills numeric positions with 0.5 and categorical positions
	// with cardinality/2, rounded down.
	FillMean = FillPolicy{mode: fillMean}
)

// FillConstant fills every inactive position with x.
func FillConstant(x float64) FillPolicy {
	return FillPolicy{mode: fillConstant, value: x}
}

// ParseFillPolicy accepts "def", "mean" or a number.
func ParseFillPolicy(s string) (FillPolicy, error) {
	switch s {
	case "def", "default":
		return FillDefault, nil
	case "mean":
		return FillMean, nil
	case "":
		return FillConstant(DefaultFillValue), nil
	}
	x, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return FillPolicy{}, fmt.Errorf("invalid fill policy %q: want def, mean or a number", s)
	}
	return FillConstant(x), nil
}

// String renders the policy in the form ParseFillPolicy accepts.
func (f FillPolicy) String() string {
	switch f.mode {
	case fillDefault:
		return "def"
	case fillMean:
		return "mean"
	default:
		return strconv.FormatFloat(f.value, 'g', -1, 64)
	}
}

// Fill returns a copy of v with every NaN replaced according to policy.
// Active positions are unchanged.
func (s *Space) Fill(v Vector, policy FillPolicy) Vector {
	out := v.Clone()
	for i, x := range out {
		if !math.IsNaN(x) || i >= len(s.order) {
			continue
		}
		switch policy.mode {
		case fillDefault:
			out[i] = s.params[s.order[i]].defaultNorm
		case fillMean:
			if s.isCat[i] {
				out[i] = float64(s.cardinality[i] / 2)
			} else {
				out[i] = 0.5
			}
		default:
			out[i] = policy.value
		}
	}
	return out
}
