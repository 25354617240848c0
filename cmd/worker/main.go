// Package main provides the entrypoint for the ShutterSpot weather sync worker.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/shutterspot/shutterspot/internal/api/handler"
	"github.com/shutterspot/shutterspot/internal/api/middleware"
	"github.com/shutterspot/shutterspot/internal/app"
	"github.com/shutterspot/shutterspot/internal/config"
	"github.com/shutterspot/shutterspot/internal/telemetry"
	"github.com/shutterspot/shutterspot/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "shutterspot-worker"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}
	log := app.WithLevel(app.NewLogger(serviceName, Version, cfg.Environment), cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error().Err(err).Msg("worker exited")
		os.Exit(1)
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	log.Info().
		Str("build_time", BuildTime).
		Msg("starting ShutterSpot worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shutdown telemetry")
		}
	}()

	services, err := app.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("initializing services: %w", err)
	}
	defer func() {
		if err := services.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close services")
		}
	}()

	refreshCfg := worker.DefaultRefreshConfig()
	refreshCfg.Interval = cfg.Scheduler.Interval
	refreshJob := worker.NewRefreshJob(worker.RefreshJobConfig{
		Config: refreshCfg,
		Syncer: services.Weather,
		Logger: log,
	})

	// Periodic batch sync
	var scheduler *worker.Scheduler
	if cfg.Scheduler.Enabled {
		scheduler = worker.NewScheduler(refreshJob, log)
		if err := scheduler.Start(ctx); err != nil {
			return fmt.Errorf("starting scheduler: %w", err)
		}
	} else {
		log.Info().Msg("scheduler disabled")
	}

	// On-demand jobs via Pub/Sub
	var pubsubHandler *worker.PubSubHandler
	if cfg.PubSub.ProjectID != "" {
		pubsubHandler, err = worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.PubSub.ProjectID,
			SubscriptionName: cfg.PubSub.SubscriptionName,
			Dispatcher: worker.NewDispatcher(worker.DispatcherConfig{
				RefreshJob: refreshJob,
				Registry:   services.Registry,
				Logger:     log,
			}),
			Logger: log,
		})
		if err != nil {
			return fmt.Errorf("creating pubsub handler: %w", err)
		}
		go func() {
			if err := pubsubHandler.Start(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("pubsub handler stopped")
			}
		}()
	}

	// Worker also exposes health endpoints for Cloud Run
	ops := handler.NewOpsHandler(handler.OpsConfig{
		Version:      Version,
		BuildTime:    BuildTime,
		Database:     services.Database,
		Registry:     services.Registry,
		CacheStats:   services.Cache.Stats,
		RefreshStats: refreshJob.MetricsSnapshot,
	})
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.ContentTypeJSON)
	r.Get("/health", ops.HealthCheck)
	r.Get("/ready", ops.ReadinessCheck)
	r.Get("/status", ops.SystemStatus)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down worker")

	if scheduler != nil {
		scheduler.Stop()
	}
	if pubsubHandler != nil {
		if err := pubsubHandler.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close pubsub client")
		}
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().
		Interface("metrics", refreshJob.MetricsSnapshot()).
		Msg("worker stopped")
	return nil
}
