// Package app wires configuration into the services shared by the API and
// the worker.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/shutterspot/shutterspot/internal/api/handler"
	"github.com/shutterspot/shutterspot/internal/config"
	"github.com/shutterspot/shutterspot/internal/database"
	"github.com/shutterspot/shutterspot/internal/geo"
	"github.com/shutterspot/shutterspot/internal/location"
	"github.com/shutterspot/shutterspot/internal/provider/resilience"
	"github.com/shutterspot/shutterspot/internal/synclock"
	"github.com/shutterspot/shutterspot/internal/weather"
	"github.com/shutterspot/shutterspot/internal/weather/openweathermap"
)

// distanceCacheSize bounds the shared origin/candidate distance cache.
const distanceCacheSize = 10_000

const userAgent = "shutterspot-weather-sync (+https://shutterspot.app)"

// App holds the wired services.
type App struct {
	Weather   *weather.Service
	Locations *location.Service
	Registry  *resilience.Registry
	Cache     *geo.DistanceCache
	Database  handler.Pinger

	closers []func() error
}

// Close releases storage and lock connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// New opens storage, the optional Redis lock and the weather provider
// client, and builds the weather and location services on top.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	if cfg.Provider.APIKey == "" {
		return nil, errors.New("OPENWEATHERMAP_API_KEY is required")
	}

	cache, err := geo.NewDistanceCache(distanceCacheSize)
	if err != nil {
		return nil, err
	}
	a := &App{
		Registry: resilience.NewRegistry(),
		Cache:    cache,
	}

	weatherStore, locationStore, err := a.openStorage(ctx, cfg, log)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	var locker weather.Locker
	if cfg.Redis.URL != "" {
		pool, err := synclock.NewPool(ctx, cfg.Redis.URL)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		locker = synclock.NewRedisLocker(synclock.RedisConfig{
			Pool:   pool,
			TTL:    cfg.Redis.LockTTL,
			Logger: log,
		})
		log.Info().Msg("redis sync lock enabled")
	}

	breaker := resilience.DefaultCircuitBreakerConfig(openweathermap.ProviderName)
	breaker.Timeout = cfg.Provider.BreakerTimeout
	if cfg.Provider.BreakerFailures > 0 {
		breaker.ReadyToTrip = resilience.TripOnConsecutiveFailures(uint32(cfg.Provider.BreakerFailures))
	}
	breaker.OnStateChange = resilience.LogStateChanges(log)

	httpClient := resilience.NewClient(resilience.ClientConfig{
		Name:              openweathermap.ProviderName,
		Timeout:           cfg.Provider.Timeout,
		MaxRetries:        uint64(max(cfg.Provider.MaxRetries, 0)),
		CircuitBreaker:    &breaker,
		RequestsPerSecond: cfg.Provider.RequestsPerSecond,
		Burst:             cfg.Provider.Burst,
		UserAgent:         userAgent,
	})

	source := openweathermap.NewClient(openweathermap.ClientConfig{
		APIKey:     cfg.Provider.APIKey,
		OneCallURL: cfg.Provider.OneCallURL,
		HTTPClient: httpClient,
		Registry:   a.Registry,
		Logger:     log,
	})

	a.Weather = weather.NewService(weather.ServiceConfig{
		Store:         weatherStore,
		Source:        source,
		Logger:        log,
		Policy:        cfg.StalenessPolicy(),
		Locker:        locker,
		WindDirection: cfg.Sync.WindDirection,
		Concurrency:   cfg.Sync.Concurrency,
		SyncTimeout:   cfg.Sync.Timeout,
	})

	a.Locations = location.NewService(location.ServiceConfig{
		Store:  locationStore,
		Logger: log,
		Cache:  a.Cache,
	})

	return a, nil
}

func (a *App) openStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (weather.Store, location.Store, error) {
	switch cfg.Storage.Driver {
	case config.StorageSQLite:
		db, err := database.OpenSQLite(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening sqlite: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		a.Database = sqlitePinger(db)
		log.Info().Str("path", cfg.Storage.SQLitePath).Msg("sqlite database opened")
		return weather.NewSQLiteStore(db), location.NewSQLiteRepository(db), nil

	default:
		pool, err := database.Connect(ctx, cfg.Storage.Postgres, log)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		a.Database = pool
		if err := database.MigratePostgres(ctx, pool); err != nil {
			return nil, nil, fmt.Errorf("migrating postgres: %w", err)
		}
		logPostgres(log, cfg.Storage.Postgres, pool)
		return weather.NewPostgresStore(pool), location.NewPostgresRepository(pool), nil
	}
}

func sqlitePinger(db *sql.DB) handler.Pinger {
	return handler.PingFunc(db.PingContext)
}

func logPostgres(log zerolog.Logger, cfg database.Config, pool *pgxpool.Pool) {
	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Int32("max_conns", pool.Config().MaxConns).
		Msg("database connected")
}
