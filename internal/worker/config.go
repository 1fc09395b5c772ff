// Package worker provides background schedule verification for the dispatch
// service.
package worker

import (
	"time"
)

// VerifyConfig holds configuration for the schedule verification job.
type VerifyConfig struct {
	// Interval is how often the full schedule is verified.
	// Default: 1 hour
	Interval time.Duration

	// Timeout is the timeout for one verification run.
	// Default: 5 minutes
	Timeout time.Duration
}

// DefaultVerifyConfig returns the default verification configuration.
func DefaultVerifyConfig() VerifyConfig {
	return VerifyConfig{
		Interval: time.Hour,
		Timeout:  5 * time.Minute,
	}
}
