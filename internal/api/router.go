// Package api provides the HTTP API for ShutterSpot.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/shutterspot/shutterspot/internal/api/handler"
	"github.com/shutterspot/shutterspot/internal/api/middleware"
	"github.com/shutterspot/shutterspot/internal/auth"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version    string
	BuildTime  string
	Logger     zerolog.Logger
	Metrics    *middleware.Metrics
	RequireTLS bool

	// RateLimits overrides the per-tier budgets; unset tiers use defaults.
	RateLimits middleware.RateLimits

	// Tokens validates bearer tokens on operator endpoints.
	Tokens middleware.TokenValidator

	Weather   handler.WeatherSyncer
	Locations handler.LocationFinder
	Ops       handler.OpsConfig
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware - order matters
	r.Use(middleware.RequestID) // Generate/propagate request ID first
	r.Use(middleware.Tracing()) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(middleware.SecurityHeaders)      // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(cfg.Ops)
	weatherHandler := handler.NewWeatherHandler(cfg.Weather, cfg.Logger)
	locationHandler := handler.NewLocationHandler(cfg.Locations, cfg.Logger)

	authMiddleware := middleware.Auth(cfg.Tokens)
	adminOnly := middleware.RequireRole(auth.RoleAdmin)

	limits := cfg.RateLimits.WithDefaults()
	expensiveRateLimit := middleware.RateLimitByIP(limits.Expensive)
	standardRateLimit := middleware.RateLimitByIP(limits.Standard)

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			// Status exposes provider internals
			r.With(authMiddleware, adminOnly).Get("/status", opsHandler.SystemStatus)
		})

		r.Route("/locations", func(r chi.Router) {
			r.With(standardRateLimit).Get("/nearby", locationHandler.Nearby)
			r.With(standardRateLimit).Get("/nearest", locationHandler.Nearest)
			r.Route("/{locationId}", func(r chi.Router) {
				r.With(standardRateLimit).Get("/", locationHandler.Get)
				// May call the weather provider
				r.With(expensiveRateLimit).Post("/weather:sync", weatherHandler.SyncLocation)
			})
		})

		// Batch sync (operators only)
		r.With(
			authMiddleware,
			adminOnly,
			middleware.RateLimitByUser(limits.Admin),
		).Post("/weather:syncAll", weatherHandler.SyncAll)
	})

	return r
}
