// Package main provides the entrypoint for the ShutterSpot API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/shutterspot/shutterspot/internal/api"
	"github.com/shutterspot/shutterspot/internal/api/handler"
	"github.com/shutterspot/shutterspot/internal/api/middleware"
	"github.com/shutterspot/shutterspot/internal/app"
	"github.com/shutterspot/shutterspot/internal/auth"
	"github.com/shutterspot/shutterspot/internal/config"
	"github.com/shutterspot/shutterspot/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "shutterspot-api"

const devSigningKey = "local-dev-signing-key-change-in-production"

func main() {
	issueFor := flag.String("issue-token", "", "print an admin access token for `subject` and exit")
	roles := flag.String("roles", auth.RoleAdmin, "comma-separated roles for -issue-token")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}
	log := app.WithLevel(app.NewLogger(serviceName, Version, cfg.Environment), cfg.LogLevel)

	if *issueFor != "" {
		token, expiresAt, err := tokenService(cfg, log).Issue(*issueFor, strings.Split(*roles, ",")...)
		if err != nil {
			log.Fatal().Err(err).Msg("issuing token")
		}
		fmt.Println(token)
		log.Info().Str("subject", *issueFor).Time("expires_at", expiresAt).Msg("token issued")
		return
	}

	if err := run(cfg, log); err != nil {
		log.Error().Err(err).Msg("api exited")
		os.Exit(1)
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	log.Info().
		Str("build_time", BuildTime).
		Str("storage", cfg.Storage.Driver).
		Msg("starting ShutterSpot API")

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
	if cfg.Telemetry.Enabled {
		log.Info().Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).Msg("OpenTelemetry initialized")
	}

	metrics, err := middleware.NewMetrics()
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}

	services, err := app.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("initializing services: %w", err)
	}
	defer func() {
		if err := services.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close services")
		}
	}()

	router := api.NewRouter(api.RouterConfig{
		Version:    Version,
		BuildTime:  BuildTime,
		Logger:     log,
		Metrics:    metrics,
		RequireTLS: cfg.RequireTLS,
		RateLimits: middleware.RateLimits{
			Standard:  perMinute(cfg.RateLimits.StandardPerMinute),
			Expensive: perMinute(cfg.RateLimits.ExpensivePerMinute),
			Admin:     perMinute(cfg.RateLimits.AdminPerMinute),
		},
		Tokens:    tokenService(cfg, log),
		Weather:   services.Weather,
		Locations: services.Locations,
		Ops: handler.OpsConfig{
			Version:    Version,
			BuildTime:  BuildTime,
			Database:   services.Database,
			Registry:   services.Registry,
			CacheStats: services.Cache.Stats,
		},
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      2 * time.Minute, // batch sync runs inline
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("server stopped")
	return nil
}

func tokenService(cfg *config.Config, log zerolog.Logger) *auth.TokenService {
	key := cfg.Auth.SigningKey
	if key == "" {
		key = devSigningKey
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}
	return auth.NewTokenService(auth.Config{
		SigningKey: key,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
	})
}

func perMinute(n int) middleware.RateLimitConfig {
	return middleware.RateLimitConfig{RequestLimit: n, WindowLength: time.Minute}
}
