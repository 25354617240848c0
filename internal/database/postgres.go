// Package database opens the PostgreSQL pool or SQLite file backing the
// weather and location stores and applies their schema.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Config holds PostgreSQL connection settings.
type Config struct {
	// URL overrides the individual fields when set.
	URL string

	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration

	// ConnectAttempts bounds retries while the database is still starting.
	ConnectAttempts int

	// SlowQuery logs queries at warn when they take longer. Zero disables it.
	SlowQuery time.Duration
}

// ConnectionString returns the PostgreSQL connection URL.
func (c Config) ConnectionString() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// Connect opens a pool and pings it, retrying with exponential backoff
// for up to ConnectAttempts tries.
func Connect(ctx context.Context, cfg Config, log zerolog.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	poolConfig.MinConns = cfg.MinConns
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.SlowQuery > 0 {
		poolConfig.ConnConfig.Tracer = NewSlowQueryTracer(log, cfg.SlowQuery)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	attempts := max(cfg.ConnectAttempts, 1)
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	retry := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(attempts-1)), ctx)

	err = backoff.RetryNotify(func() error {
		return pool.Ping(ctx)
	}, retry, func(err error, wait time.Duration) {
		log.Warn().Err(err).Dur("retry_in", wait).Msg("database not reachable yet")
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

type queryStartKey struct{}

type queryStart struct {
	at  time.Time
	sql string
}

// SlowQueryTracer is a pgx.QueryTracer that logs queries slower than a threshold.
type SlowQueryTracer struct {
	log       zerolog.Logger
	threshold time.Duration
}

var _ pgx.QueryTracer = (*SlowQueryTracer)(nil)

// NewSlowQueryTracer creates a tracer logging to log.
func NewSlowQueryTracer(log zerolog.Logger, threshold time.Duration) *SlowQueryTracer {
	return &SlowQueryTracer{log: log, threshold: threshold}
}

// TraceQueryStart implements pgx.QueryTracer.
func (t *SlowQueryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryStartKey{}, queryStart{at: time.Now(), sql: data.SQL})
}

// TraceQueryEnd implements pgx.QueryTracer.
func (t *SlowQueryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(queryStartKey{}).(queryStart)
	if !ok {
		return
	}
	elapsed := time.Since(start.at)
	if elapsed < t.threshold {
		return
	}
	event := t.log.Warn()
	if data.Err != nil {
		event = event.Err(data.Err)
	}
	event.
		Str("sql", start.sql).
		Dur("duration", elapsed).
		Str("command_tag", data.CommandTag.String()).
		Msg("slow query")
}
