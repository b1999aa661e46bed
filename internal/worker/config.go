// Package worker runs the background refresh loop that probes every enabled
// service and publishes the results.
package worker

import (
	"time"
)

// SchedulerConfig holds configuration for the refresh scheduler.
type SchedulerConfig struct {
	// Interval is the cadence, measured from one cycle start to the next.
	// Default: 30 seconds
	Interval time.Duration

	// MaxConcurrency bounds the checks in flight within a cycle.
	// Default: 8
	MaxConcurrency int

	// CheckTimeout is the budget for one check. A check still running after
	// CheckTimeout plus CheckGrace is abandoned and reported unknown.
	// Default: 4 seconds
	CheckTimeout time.Duration

	// CheckGrace is added to CheckTimeout before a check is abandoned.
	// Default: 1 second
	CheckGrace time.Duration
}

// DefaultSchedulerConfig returns the default scheduler configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:       30 * time.Second,
		MaxConcurrency: 8,
		CheckTimeout:   4 * time.Second,
		CheckGrace:     time.Second,
	}
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	d := DefaultSchedulerConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.MaxConcurrency < 1 {
		c.MaxConcurrency = d.MaxConcurrency
	}
	if c.CheckTimeout <= 0 {
		c.CheckTimeout = d.CheckTimeout
	}
	if c.CheckGrace <= 0 {
		c.CheckGrace = d.CheckGrace
	}
	return c
}

// checkBudget is how long the scheduler waits for one check.
func (c SchedulerConfig) checkBudget() time.Duration {
	return c.CheckTimeout + c.CheckGrace
}
