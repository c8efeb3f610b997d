package configspace

import (
	"fmt"
	"math"
	"math/rand/v2"
)

const (
	opSample   = "sample"
	opNeighbor = "neighbor"

	// neighborStdDev is the standard deviation of numeric moves in
	// normalized units.
	neighborStdDev = 0.1
)

// Sample draws a uniformly random configuration that satisfies every
// condition and no forbidden clause. Categorical positions get a uniform
// index, numeric positions a uniform value in [0,1], inactive positions NaN.
// Forbidden draws are rejected and redrawn up to MaxAttempts times.
func (s *Space) Sample(rng *rand.Rand) (Vector, error) {
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		v := s.draw(rng)
		if !s.IsForbidden(v) {
			return v, nil
		}
		s.observer.ObserveRejection(opSample)
	}

	s.observer.ObserveExhaustion(opSample)
	return nil, NewExhaustionError(
		fmt.Sprintf("no allowed configuration after %d draws", s.maxAttempts), nil,
	).WithCode(ErrCodeAttemptsReached)
}

func (s *Space) draw(rng *rand.Rand) Vector {
	v := make(Vector, len(s.order))
	active := make([]bool, len(s.order))
	for i := range s.order {
		if !s.conditionsHold(v, active, i) {
			v[i] = math.NaN()
			continue
		}
		active[i] = true
		v[i] = s.drawValue(rng, i)
	}
	return v
}

func (s *Space) drawValue(rng *rand.Rand, i int) float64 {
	if s.isCat[i] {
		return float64(rng.IntN(s.cardinality[i]))
	}
	return rng.Float64()
}

// Neighbor returns a configuration one move away from v: a single active
// position is changed, then activity is repaired. Categorical positions
// with fewer than two choices are never moved. A categorical move picks a
// different choice uniformly; a numeric move adds Gaussian noise with
// standard deviation 0.1 and clamps to [0,1]. Positions that become active
// receive a fresh uniform draw. Forbidden results are retried up to
// MaxAttempts times. The input is not modified.
func (s *Space) Neighbor(rng *rand.Rand, v Vector) (Vector, error) {
	if len(v) != len(s.order) {
		return nil, NewEncodingError(
			fmt.Sprintf("vector has length %d, space has %d parameters", len(v), len(s.order)), nil,
		).WithCode(ErrCodeVectorLength)
	}

	eligible := make([]int, 0, len(v))
	for i, x := range v {
		if math.IsNaN(x) || (s.isCat[i] && s.cardinality[i] < 2) {
			continue
		}
		eligible = append(eligible, i)
	}
	if len(eligible) == 0 {
		s.observer.ObserveExhaustion(opNeighbor)
		return nil, NewExhaustionError("no active parameter can be moved", nil).
			WithCode(ErrCodeNoCandidates)
	}

	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		i := eligible[rng.IntN(len(eligible))]

		moved := v.Clone()
		moved[i] = s.move(rng, i, v[i])

		out := s.repair(rng, moved)
		if !s.IsForbidden(out) {
			return out, nil
		}
		s.observer.ObserveRejection(opNeighbor)
	}

	s.observer.ObserveExhaustion(opNeighbor)
	return nil, NewExhaustionError(
		fmt.Sprintf("no allowed neighbor after %d moves", s.maxAttempts), nil,
	).WithCode(ErrCodeAttemptsReached)
}

func (s *Space) move(rng *rand.Rand, i int, x float64) float64 {
	if s.isCat[i] {
		cur := int(math.Round(x))
		next := rng.IntN(s.cardinality[i] - 1)
		if next >= cur {
			next++
		}
		return float64(next)
	}
	return clamp01(x + rng.NormFloat64()*neighborStdDev)
}

func clamp01(x float64) float64 {
	return math.Min(1, math.Max(0, x))
}
