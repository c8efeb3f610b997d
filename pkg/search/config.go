package search

import (
	"errors"
	"fmt"
	"time"
)

// Defaults for Config fields left at zero.
const (
	DefaultRandomProb = 0.1
	DefaultMaxRetries = 2
	DefaultRetryDelay = time.Second
)

// Config bounds and steers a search.
type Config struct {
	// Budget caps the number of configurations evaluated, the default
	// included. Zero leaves only the wall-clock limit.
	Budget int

	// WallClock caps the total search time. Zero leaves only the budget.
	WallClock time.Duration

	// NumProcs bounds concurrent solver runs.
	NumProcs int

	Cutoff time.Duration

	// RandomProb is the chance of proposing a random configuration
	// instead of a neighbor of the incumbent. Negative disables random
	// proposals.
	RandomProb float64

	Seed uint64

	// MaxVetoes ends the search after that many consecutive vetoed
	// proposals. Zero uses the configuration space's attempt limit.
	MaxVetoes int

	// MaxRetries is how often a run failing with a temporary error is
	// retried. Negative disables retries.
	MaxRetries int

	// RetryDelay is the first backoff delay; it doubles per attempt.
	RetryDelay time.Duration
}

func (c *Config) applyDefaults() {
	if c.NumProcs <= 0 {
		c.NumProcs = 1
	}
	if c.RandomProb == 0 {
		c.RandomProb = DefaultRandomProb
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
}

// Validate checks that the search is bounded.
func (c *Config) Validate() error {
	if c.Cutoff <= 0 {
		return fmt.Errorf("cutoff must be positive, got %v", c.Cutoff)
	}
	if c.Budget < 0 || c.WallClock < 0 {
		return errors.New("budget and wall-clock limit must not be negative")
	}
	if c.Budget == 0 && c.WallClock == 0 {
		return errors.New("search needs an evaluation budget or a wall-clock limit")
	}
	if c.RandomProb > 1 {
		return fmt.Errorf("random probability %g is above 1", c.RandomProb)
	}
	return nil
}
