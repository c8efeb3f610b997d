package runner

import (
	"bufio"
	"strings"
	"time"
)

// Status is the result class of one solver run.
type Status string

const (
	StatusSAT     Status = "SAT"
	StatusUNSAT   Status = "UNSAT"
	StatusTimeout Status = "TIMEOUT"
)

// Solved reports whether the solver produced an answer.
func (s Status) Solved() bool {
	return s == StatusSAT || s == StatusUNSAT
}

// MinRuntime is the smallest runtime reported for a run. Very short runs are
// dominated by process start-up noise.
const MinRuntime = 0.05

// Outcome is the observed result of one run.
type Outcome struct {
	Status Status `json:"status"`

	// Runtime is in seconds. Timeouts report the cutoff.
	Runtime float64 `json:"runtime"`

	ExitCode int `json:"exit_code"`
}

// timeoutOutcome is the outcome of a run stopped at the cutoff.
func timeoutOutcome(cutoff time.Duration) Outcome {
	return Outcome{Status: StatusTimeout, Runtime: cutoff.Seconds(), ExitCode: -1}
}

// ParseStatus reads the solver verdict from its standard output. Solvers in
// the SAT competition format print "s SATISFIABLE" or "s UNSATISFIABLE";
// anything else counts as a timeout.
func ParseStatus(stdout string) Status {
	sat := false
	sc := bufio.NewScanner(strings.NewReader(stdout))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.Contains(line, "UNSATISFIABLE") {
			return StatusUNSAT
		}
		if strings.Contains(line, "SATISFIABLE") {
			sat = true
		}
	}
	if sat {
		return StatusSAT
	}
	return StatusTimeout
}

// finish builds the outcome of a run that ended before the cutoff.
func finish(stdout string, runtime float64, exitCode int, cutoff time.Duration) Outcome {
	if runtime < MinRuntime {
		runtime = MinRuntime
	}
	status := ParseStatus(stdout)
	if !status.Solved() || runtime >= cutoff.Seconds() {
		return timeoutOutcome(cutoff)
	}
	return Outcome{Status: status, Runtime: runtime, ExitCode: exitCode}
}
