package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
)

// Scheduler triggers the refresh job on a fixed interval.
type Scheduler struct {
	scheduler *gocron.Scheduler
	job       *RefreshJob
	logger    zerolog.Logger
}

// NewScheduler creates a scheduler for job. Call Start to begin running it.
func NewScheduler(job *RefreshJob, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		job:       job,
		logger:    logger,
	}
}

// Start schedules the refresh and starts the underlying scheduler.
// Runs stop being scheduled once ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	cfg := s.job.Config()

	sched := s.scheduler.Every(cfg.Interval).SingletonMode()
	if !cfg.RunOnStart {
		sched = sched.WaitForSchedule()
	}

	_, err := sched.Do(func() {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.job.Run(ctx); err != nil && !errors.Is(err, ErrRefreshInProgress) {
			s.logger.Error().Err(err).Msg("scheduled weather refresh failed")
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling weather refresh: %w", err)
	}

	s.logger.Info().
		Dur("interval", cfg.Interval).
		Bool("run_on_start", cfg.RunOnStart).
		Msg("weather refresh scheduled")

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler. A run already in progress finishes on its own.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// IsRunning reports whether the scheduler is started.
func (s *Scheduler) IsRunning() bool {
	return s.scheduler.IsRunning()
}
