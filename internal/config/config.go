// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/shutterspot/shutterspot/internal/database"
	"github.com/shutterspot/shutterspot/internal/weather"
)

// Storage drivers.
const (
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
)

// Config is the full process configuration shared by the API and the worker.
type Config struct {
	Port        string
	Environment string
	LogLevel    string

	// RequireTLS rejects requests a load balancer forwarded over plain HTTP.
	RequireTLS bool
	RateLimits RateLimitConfig

	Storage   StorageConfig
	Redis     RedisConfig
	Provider  ProviderConfig
	Sync      SyncConfig
	Scheduler SchedulerConfig
	PubSub    PubSubConfig
	Auth      AuthConfig
	Telemetry TelemetryConfig
}

// RateLimitConfig holds per-minute request budgets for each API tier.
type RateLimitConfig struct {
	StandardPerMinute  int
	ExpensivePerMinute int
	AdminPerMinute     int
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver     string
	Postgres   database.Config
	SQLitePath string
}

// RedisConfig configures the cross-process sync lock. Empty URL keeps locks in-process.
type RedisConfig struct {
	URL     string
	LockTTL time.Duration
}

// ProviderConfig configures the OpenWeatherMap client.
type ProviderConfig struct {
	APIKey            string
	OneCallURL        string
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerSecond float64
	Burst             int

	// BreakerTimeout is how long the circuit stays open before probing.
	BreakerTimeout time.Duration

	// BreakerFailures trips after this many consecutive failures.
	// Zero keeps the failure-ratio policy.
	BreakerFailures int
}

// SyncConfig configures weather sync behavior.
type SyncConfig struct {
	MaxAge        time.Duration
	CoverageDays  int
	WindDirection weather.WindDirectionMode
	Concurrency   int
	Timeout       time.Duration
}

// SchedulerConfig configures the periodic batch sync.
type SchedulerConfig struct {
	Enabled  bool
	Interval time.Duration
}

// PubSubConfig configures the Pub/Sub job trigger. Empty ProjectID disables it.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
}

// AuthConfig configures JWT validation for admin endpoints.
type AuthConfig struct {
	SigningKey string
	Issuer     string
	Audience   string
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string

	// SampleRatio is the fraction of new traces recorded; propagated parents are honored.
	SampleRatio float64
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	return FromEnv()
}

// FromEnv builds a Config from the current environment.
func FromEnv() (*Config, error) {
	wind, err := weather.ParseWindDirectionMode(getEnvOrDefault("WIND_DIRECTION_MODE", string(weather.WindFrom)))
	if err != nil {
		return nil, fmt.Errorf("invalid WIND_DIRECTION_MODE: %w", err)
	}

	cfg := &Config{
		Port:        getEnvOrDefault("APP_PORT", "8080"),
		Environment: getEnvOrDefault("APP_ENV", "development"),
		LogLevel:    getEnvOrDefault("LOG_LEVEL", "info"),
		RequireTLS:  getEnvBool("REQUIRE_TLS", false),
		RateLimits: RateLimitConfig{
			StandardPerMinute:  getEnvInt("RATE_LIMIT_STANDARD", 100),
			ExpensivePerMinute: getEnvInt("RATE_LIMIT_EXPENSIVE", 30),
			AdminPerMinute:     getEnvInt("RATE_LIMIT_ADMIN", 10),
		},
		Storage: StorageConfig{
			Driver:     strings.ToLower(getEnvOrDefault("STORAGE_DRIVER", StoragePostgres)),
			Postgres:   postgresFromEnv(),
			SQLitePath: getEnvOrDefault("SQLITE_PATH", "shutterspot.db"),
		},
		Redis: RedisConfig{
			URL:     os.Getenv("REDIS_URL"),
			LockTTL: getEnvDuration("REDIS_LOCK_TTL", 2*time.Minute),
		},
		Provider: ProviderConfig{
			APIKey:            os.Getenv("OPENWEATHERMAP_API_KEY"),
			OneCallURL:        os.Getenv("OPENWEATHERMAP_ONECALL_URL"),
			Timeout:           getEnvDuration("OPENWEATHERMAP_TIMEOUT", 10*time.Second),
			MaxRetries:        getEnvInt("OPENWEATHERMAP_MAX_RETRIES", 3),
			RequestsPerSecond: getEnvFloat("OPENWEATHERMAP_RPS", 10),
			Burst:             getEnvInt("OPENWEATHERMAP_BURST", 5),
			BreakerTimeout:    getEnvDuration("OPENWEATHERMAP_BREAKER_TIMEOUT", time.Minute),
			BreakerFailures:   getEnvInt("OPENWEATHERMAP_BREAKER_FAILURES", 0),
		},
		Sync: SyncConfig{
			MaxAge:        getEnvDuration("WEATHER_MAX_AGE", weather.DefaultMaxAge),
			CoverageDays:  getEnvInt("WEATHER_COVERAGE_DAYS", weather.DefaultCoverageDays),
			WindDirection: wind,
			Concurrency:   getEnvInt("SYNC_CONCURRENCY", 4),
			Timeout:       getEnvDuration("SYNC_TIMEOUT", 30*time.Second),
		},
		Scheduler: SchedulerConfig{
			Enabled:  getEnvBool("SCHEDULER_ENABLED", true),
			Interval: getEnvDuration("SYNC_INTERVAL", time.Hour),
		},
		PubSub: PubSubConfig{
			ProjectID:        os.Getenv("PUBSUB_PROJECT_ID"),
			SubscriptionName: getEnvOrDefault("PUBSUB_SUBSCRIPTION", "weather-sync-jobs"),
		},
		Auth: AuthConfig{
			SigningKey: os.Getenv("JWT_SIGNING_KEY"),
			Issuer:     getEnvOrDefault("JWT_ISSUER", "shutterspot"),
			Audience:   getEnvOrDefault("JWT_AUDIENCE", "shutterspot-api"),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getEnvBool("OTEL_ENABLED", false),
			OTLPEndpoint: getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			SampleRatio:  getEnvFloat("OTEL_TRACES_SAMPLER_ARG", 1),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StoragePostgres, StorageSQLite:
	default:
		return fmt.Errorf("invalid STORAGE_DRIVER %q: must be %q or %q", c.Storage.Driver, StoragePostgres, StorageSQLite)
	}
	if c.Sync.MaxAge <= 0 {
		return fmt.Errorf("invalid WEATHER_MAX_AGE: must be positive")
	}
	if c.Sync.CoverageDays <= 0 {
		return fmt.Errorf("invalid WEATHER_COVERAGE_DAYS: must be positive")
	}
	if c.Provider.BreakerFailures < 0 {
		return fmt.Errorf("invalid OPENWEATHERMAP_BREAKER_FAILURES: must not be negative")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("invalid OTEL_TRACES_SAMPLER_ARG: must be between 0 and 1")
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		return fmt.Errorf("invalid SYNC_INTERVAL: must be positive")
	}
	return nil
}

// StalenessPolicy returns the sync freshness policy.
func (c *Config) StalenessPolicy() weather.StalenessPolicy {
	return weather.StalenessPolicy{
		MaxAge:       c.Sync.MaxAge,
		CoverageDays: c.Sync.CoverageDays,
	}
}

func postgresFromEnv() database.Config {
	return database.Config{
		URL:             os.Getenv("DATABASE_URL"),
		Host:            getEnvOrDefault("DB_HOST", "localhost"),
		Port:            getEnvInt("DB_PORT", 5432),
		User:            getEnvOrDefault("DB_USER", "shutterspot"),
		Password:        getEnvOrDefault("DB_PASSWORD", "localdev"),
		Database:        getEnvOrDefault("DB_NAME", "shutterspot"),
		SSLMode:         getEnvOrDefault("DB_SSLMODE", "disable"),
		MaxConns:        int32(getEnvInt("DB_MAX_CONNS", 10)),
		MinConns:        int32(getEnvInt("DB_MIN_CONNS", 1)),
		MaxConnLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		ConnectAttempts: getEnvInt("DB_CONNECT_ATTEMPTS", 5),
		SlowQuery:       getEnvDuration("DB_SLOW_QUERY", 500*time.Millisecond),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}
