package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/shutterspot/shutterspot/internal/weather"
)

// ErrRefreshInProgress is returned when a run is requested while another is active.
var ErrRefreshInProgress = errors.New("weather refresh already in progress")

// Syncer runs a batch sync over every active location.
type Syncer interface {
	SyncActive(ctx context.Context) (*weather.BatchResult, error)
}

// RefreshJob runs batch weather syncs and keeps running totals.
type RefreshJob struct {
	config  RefreshConfig
	syncer  Syncer
	logger  zerolog.Logger
	running atomic.Bool

	metrics *RefreshMetrics
}

// RefreshMetrics tracks refresh job statistics.
type RefreshMetrics struct {
	mu sync.RWMutex

	// Counters
	TotalRuns     int64
	FailedRuns    int64
	SkippedRuns   int64
	Synced        int64
	FromCache     int64
	Fallback      int64
	FailedSyncs   int64
	LocationsSeen int64

	// Timings
	LastRunAt       time.Time
	LastRunDuration time.Duration
	TotalDuration   time.Duration
}

// RefreshJobConfig holds configuration for creating a RefreshJob.
type RefreshJobConfig struct {
	Config RefreshConfig
	Syncer Syncer
	Logger zerolog.Logger
}

// NewRefreshJob creates a new refresh job.
func NewRefreshJob(cfg RefreshJobConfig) *RefreshJob {
	return &RefreshJob{
		config:  cfg.Config.withDefaults(),
		syncer:  cfg.Syncer,
		logger:  cfg.Logger,
		metrics: &RefreshMetrics{},
	}
}

// Config returns the effective configuration.
func (j *RefreshJob) Config() RefreshConfig {
	return j.config
}

// Run syncs every active location once. Overlapping runs are rejected with
// ErrRefreshInProgress. The returned error is non-nil when the batch could
// not start or when too many locations failed.
func (j *RefreshJob) Run(ctx context.Context) (*weather.BatchResult, error) {
	if !j.running.CompareAndSwap(false, true) {
		j.metrics.mu.Lock()
		j.metrics.SkippedRuns++
		j.metrics.mu.Unlock()

		j.logger.Warn().Msg("weather refresh skipped, previous run still active")
		return nil, ErrRefreshInProgress
	}
	defer j.running.Store(false)

	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	j.logger.Info().Msg("starting weather refresh job")

	result, err := j.syncer.SyncActive(ctx)
	if err != nil {
		j.updateMetrics(nil, true)
		j.logger.Error().Err(err).Msg("weather refresh job failed")
		return nil, err
	}

	for _, e := range result.Errors {
		j.logger.Warn().
			Str("location_id", e.LocationID).
			Str("error", e.Error).
			Msg("location sync failed")
	}

	err = j.checkFailures(result)
	j.updateMetrics(result, err != nil)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("total", result.Total).
		Int("synced", result.Synced).
		Int("from_cache", result.FromCache).
		Int("fallback", result.Fallback).
		Int("failed", result.Failed).
		Msg("weather refresh job completed")

	return result, err
}

func (j *RefreshJob) checkFailures(result *weather.BatchResult) error {
	if result.Total == 0 || result.Failed == 0 {
		return nil
	}
	if float64(result.Failed)/float64(result.Total) > j.config.MaxFailureRatio {
		return fmt.Errorf("too many sync failures: %d/%d", result.Failed, result.Total)
	}
	return nil
}

func (j *RefreshJob) updateMetrics(result *weather.BatchResult, failed bool) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRuns++
	if failed {
		j.metrics.FailedRuns++
	}
	if result == nil {
		return
	}

	j.metrics.Synced += int64(result.Synced)
	j.metrics.FromCache += int64(result.FromCache)
	j.metrics.Fallback += int64(result.Fallback)
	j.metrics.FailedSyncs += int64(result.Failed)
	j.metrics.LocationsSeen += int64(result.Total)
	j.metrics.LastRunAt = result.StartTime.Add(result.Duration)
	j.metrics.LastRunDuration = result.Duration
	j.metrics.TotalDuration += result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *RefreshJob) GetMetrics() RefreshMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return RefreshMetrics{
		TotalRuns:       j.metrics.TotalRuns,
		FailedRuns:      j.metrics.FailedRuns,
		SkippedRuns:     j.metrics.SkippedRuns,
		Synced:          j.metrics.Synced,
		FromCache:       j.metrics.FromCache,
		Fallback:        j.metrics.Fallback,
		FailedSyncs:     j.metrics.FailedSyncs,
		LocationsSeen:   j.metrics.LocationsSeen,
		LastRunAt:       j.metrics.LastRunAt,
		LastRunDuration: j.metrics.LastRunDuration,
		TotalDuration:   j.metrics.TotalDuration,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (j *RefreshJob) MetricsSnapshot() map[string]interface{} {
	m := j.GetMetrics()
	return map[string]interface{}{
		"total_runs":        m.TotalRuns,
		"failed_runs":       m.FailedRuns,
		"skipped_runs":      m.SkippedRuns,
		"synced":            m.Synced,
		"from_cache":        m.FromCache,
		"fallback":          m.Fallback,
		"failed_syncs":      m.FailedSyncs,
		"locations_seen":    m.LocationsSeen,
		"last_run_at":       m.LastRunAt,
		"last_run_duration": m.LastRunDuration.String(),
		"total_duration":    m.TotalDuration.String(),
	}
}
