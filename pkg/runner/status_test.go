package runner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		name   string
		stdout string
		want   Status
	}{
		{"sat", "c comment\ns SATISFIABLE\nv 1 -2 0\n", StatusSAT},
		{"unsat", "c comment\ns UNSATISFIABLE\n", StatusUNSAT},
		{"unsat after sat-looking line", "c SATISFIABLE assignment search\ns UNSATISFIABLE\n", StatusUNSAT},
		{"unknown", "s UNKNOWN\n", StatusTimeout},
		{"empty", "", StatusTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseStatus(tt.stdout))
		})
	}
}

func TestFinish(t *testing.T) {
	cutoff := 10 * time.Second

	out := finish("s SATISFIABLE", 0.001, 10, cutoff)
	assert.Equal(t, StatusSAT, out.Status)
	assert.Equal(t, MinRuntime, out.Runtime)
	assert.Equal(t, 10, out.ExitCode)

	out = finish("s UNSATISFIABLE", 3.5, 20, cutoff)
	assert.Equal(t, StatusUNSAT, out.Status)
	assert.Equal(t, 3.5, out.Runtime)

	out = finish("s SATISFIABLE", 12, 10, cutoff)
	assert.Equal(t, StatusTimeout, out.Status)
	assert.Equal(t, 10.0, out.Runtime)

	out = finish("crashed", 1, 139, cutoff)
	assert.Equal(t, StatusTimeout, out.Status)
	assert.Equal(t, 10.0, out.Runtime)
	assert.False(t, out.Status.Solved())
}

func TestExecError(t *testing.T) {
	err := &ExecError{Op: "connect", Err: assert.AnError, IsTemporary: true}
	assert.Equal(t, "connect: "+assert.AnError.Error(), err.Error())
	assert.ErrorIs(t, err, assert.AnError)
	assert.True(t, err.Temporary())
}
