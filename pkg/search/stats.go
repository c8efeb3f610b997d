package search

import (
	"github.com/spysmac/spysmac/pkg/runner"
)

// parFactor is the PAR10 penalty multiplier for timeouts.
const parFactor = 10

// Stats summarizes the runtimes of one configuration over a set of runs.
type Stats struct {
	// PAR1 is the mean runtime with timeouts counted at the cutoff.
	PAR1 float64 `json:"par1"`

	// PAR10 counts timeouts at ten times the cutoff.
	PAR10 float64 `json:"par10"`

	Timeouts int `json:"timeouts"`
	N        int `json:"n"`
}

// IsTimeout reports whether an outcome counts as unsolved for scoring.
func IsTimeout(o runner.Outcome, cutoff float64) bool {
	return !o.Status.Solved() || o.Runtime >= cutoff
}

// Penalized returns the PAR10 cost of one outcome.
func Penalized(o runner.Outcome, cutoff float64) float64 {
	if IsTimeout(o, cutoff) {
		return parFactor * cutoff
	}
	return o.Runtime
}

// NewStats scores outcomes against cutoff, in seconds. An empty list has
// zero stats.
func NewStats(outcomes []runner.Outcome, cutoff float64) Stats {
	s := Stats{N: len(outcomes)}
	if s.N == 0 {
		return s
	}

	var par1, par10 float64
	for _, o := range outcomes {
		if IsTimeout(o, cutoff) {
			s.Timeouts++
			par1 += cutoff
			par10 += parFactor * cutoff
			continue
		}
		par1 += o.Runtime
		par10 += o.Runtime
	}
	s.PAR1 = par1 / float64(s.N)
	s.PAR10 = par10 / float64(s.N)
	return s
}

// Comparison holds before/after stats on the same instances.
type Comparison struct {
	Default    Stats `json:"default"`
	Configured Stats `json:"configured"`

	// Speedup is Default.PAR10 / Configured.PAR10, or 0 when undefined.
	Speedup float64 `json:"speedup"`

	// Improved, Worsened and Equal count instances by which configuration
	// was faster after penalization.
	Improved int `json:"improved"`
	Worsened int `json:"worsened"`
	Equal    int `json:"equal"`
}

// Compare scores the default and configured outcomes, which must be
// aligned instance by instance.
func Compare(def, configured []InstanceResult, cutoff float64) Comparison {
	c := Comparison{
		Default:    NewStats(outcomes(def), cutoff),
		Configured: NewStats(outcomes(configured), cutoff),
	}
	if c.Configured.PAR10 > 0 {
		c.Speedup = c.Default.PAR10 / c.Configured.PAR10
	}

	n := min(len(def), len(configured))
	for i := 0; i < n; i++ {
		d, k := Penalized(def[i].Outcome, cutoff), Penalized(configured[i].Outcome, cutoff)
		switch {
		case k < d:
			c.Improved++
		case k > d:
			c.Worsened++
		default:
			c.Equal++
		}
	}
	return c
}

func outcomes(results []InstanceResult) []runner.Outcome {
	out := make([]runner.Outcome, len(results))
	for i, r := range results {
		out[i] = r.Outcome
	}
	return out
}
