// Package worker runs batch weather syncs in the background.
package worker

import (
	"time"
)

// Job types accepted on the Pub/Sub subscription.
const (
	JobTypeWeatherSyncAll = "weather_sync_all"
	JobTypeHealthCheck    = "health_check"
)

// RefreshConfig holds configuration for the batch weather refresh.
type RefreshConfig struct {
	// Interval between scheduled runs.
	// Default: 1 hour
	Interval time.Duration

	// Timeout bounds a whole batch run.
	// Default: 10 minutes
	Timeout time.Duration

	// RunOnStart triggers a run as soon as the scheduler starts
	// instead of waiting for the first interval.
	// Default: true
	RunOnStart bool

	// MaxFailureRatio is the share of failed locations above which a run
	// is reported as failed (so Pub/Sub redelivers the job).
	// Default: 0.5
	MaxFailureRatio float64
}

// DefaultRefreshConfig returns the default refresh configuration.
func DefaultRefreshConfig() RefreshConfig {
	return RefreshConfig{
		Interval:        time.Hour,
		Timeout:         10 * time.Minute,
		RunOnStart:      true,
		MaxFailureRatio: 0.5,
	}
}

func (c RefreshConfig) withDefaults() RefreshConfig {
	d := DefaultRefreshConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxFailureRatio <= 0 {
		c.MaxFailureRatio = d.MaxFailureRatio
	}
	return c
}
