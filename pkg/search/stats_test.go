package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spysmac/spysmac/pkg/runner"
)

func sat(rt float64) runner.Outcome { return runner.Outcome{Status: runner.StatusSAT, Runtime: rt} }

func timeout(cutoff float64) runner.Outcome {
	return runner.Outcome{Status: runner.StatusTimeout, Runtime: cutoff}
}

func TestNewStats(t *testing.T) {
	const cutoff = 300.0

	s := NewStats([]runner.Outcome{sat(10), sat(20), timeout(cutoff), sat(300)}, cutoff)
	assert.Equal(t, 4, s.N)
	assert.Equal(t, 2, s.Timeouts, "runs at the cutoff count as timeouts")
	assert.InDelta(t, (10+20+300+300)/4.0, s.PAR1, 1e-9)
	assert.InDelta(t, (10+20+3000+3000)/4.0, s.PAR10, 1e-9)

	assert.Equal(t, Stats{}, NewStats(nil, cutoff))
}

func TestPenalized(t *testing.T) {
	assert.Equal(t, 5.0, Penalized(sat(5), 10))
	assert.Equal(t, 100.0, Penalized(timeout(10), 10))
	assert.Equal(t, 100.0, Penalized(runner.Outcome{Status: runner.StatusUNSAT, Runtime: 10}, 10))
}

func TestCompare(t *testing.T) {
	const cutoff = 10.0
	def := []InstanceResult{
		{Instance: "a", Outcome: sat(4)},
		{Instance: "b", Outcome: timeout(cutoff)},
		{Instance: "c", Outcome: sat(2)},
	}
	conf := []InstanceResult{
		{Instance: "a", Outcome: sat(1)},
		{Instance: "b", Outcome: sat(9)},
		{Instance: "c", Outcome: sat(2)},
	}

	c := Compare(def, conf, cutoff)
	assert.Equal(t, 3, c.Default.N)
	assert.Equal(t, 1, c.Default.Timeouts)
	assert.Equal(t, 0, c.Configured.Timeouts)
	assert.InDelta(t, 106.0/3, c.Default.PAR10, 1e-9)
	assert.InDelta(t, 4.0, c.Configured.PAR10, 1e-9)
	assert.InDelta(t, (106.0/3)/4.0, c.Speedup, 1e-9)
	assert.Equal(t, 2, c.Improved)
	assert.Equal(t, 0, c.Worsened)
	assert.Equal(t, 1, c.Equal)

	assert.Zero(t, Compare(nil, nil, cutoff).Speedup)
}
