package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSchema creates the location and weather tables.
// Forecast rows are owned by their weather row and ordered by position.
var PostgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS locations (
		id          TEXT PRIMARY KEY,
		title       TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		latitude    DOUBLE PRECISION NOT NULL,
		longitude   DOUBLE PRECISION NOT NULL,
		city        TEXT NOT NULL DEFAULT '',
		state       TEXT NOT NULL DEFAULT '',
		photo_path  TEXT NOT NULL DEFAULT '',
		is_deleted  BOOLEAN NOT NULL DEFAULT FALSE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_locations_active ON locations (created_at) WHERE NOT is_deleted`,
	`CREATE TABLE IF NOT EXISTS weather (
		id              TEXT PRIMARY KEY,
		location_id     TEXT NOT NULL UNIQUE REFERENCES locations (id),
		latitude        DOUBLE PRECISION NOT NULL,
		longitude       DOUBLE PRECISION NOT NULL,
		timezone        TEXT NOT NULL DEFAULT '',
		timezone_offset INTEGER NOT NULL DEFAULT 0,
		last_update     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS daily_forecasts (
		weather_id      TEXT NOT NULL REFERENCES weather (id) ON DELETE CASCADE,
		position        INTEGER NOT NULL,
		date            TIMESTAMPTZ NOT NULL,
		sunrise         TIMESTAMPTZ NOT NULL,
		sunset          TIMESTAMPTZ NOT NULL,
		temperature     DOUBLE PRECISION NOT NULL,
		min_temperature DOUBLE PRECISION NOT NULL,
		max_temperature DOUBLE PRECISION NOT NULL,
		description     TEXT NOT NULL DEFAULT '',
		icon            TEXT NOT NULL DEFAULT '',
		wind_speed      DOUBLE PRECISION NOT NULL,
		wind_direction  DOUBLE PRECISION NOT NULL,
		wind_gust       DOUBLE PRECISION,
		humidity        INTEGER NOT NULL,
		pressure        INTEGER NOT NULL,
		clouds          INTEGER NOT NULL,
		uv_index        DOUBLE PRECISION NOT NULL,
		precipitation   DOUBLE PRECISION,
		moon_rise       TIMESTAMPTZ,
		moon_set        TIMESTAMPTZ,
		moon_phase      DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (weather_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS hourly_forecasts (
		weather_id     TEXT NOT NULL REFERENCES weather (id) ON DELETE CASCADE,
		position       INTEGER NOT NULL,
		time           TIMESTAMPTZ NOT NULL,
		temperature    DOUBLE PRECISION NOT NULL,
		feels_like     DOUBLE PRECISION NOT NULL,
		description    TEXT NOT NULL DEFAULT '',
		icon           TEXT NOT NULL DEFAULT '',
		wind_speed     DOUBLE PRECISION NOT NULL,
		wind_direction DOUBLE PRECISION NOT NULL,
		wind_gust      DOUBLE PRECISION,
		humidity       INTEGER NOT NULL,
		pressure       INTEGER NOT NULL,
		clouds         INTEGER NOT NULL,
		uv_index       DOUBLE PRECISION NOT NULL,
		visibility     INTEGER NOT NULL,
		dew_point      DOUBLE PRECISION NOT NULL,
		pop            DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (weather_id, position)
	)`,
}

// SQLiteSchema is PostgresSchema for SQLite. Timestamps are Unix milliseconds.
var SQLiteSchema = []string{
	`CREATE TABLE IF NOT EXISTS locations (
		id          TEXT PRIMARY KEY,
		title       TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		latitude    REAL NOT NULL,
		longitude   REAL NOT NULL,
		city        TEXT NOT NULL DEFAULT '',
		state       TEXT NOT NULL DEFAULT '',
		photo_path  TEXT NOT NULL DEFAULT '',
		is_deleted  INTEGER NOT NULL DEFAULT 0,
		created_at  INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS weather (
		id              TEXT PRIMARY KEY,
		location_id     TEXT NOT NULL UNIQUE REFERENCES locations (id),
		latitude        REAL NOT NULL,
		longitude       REAL NOT NULL,
		timezone        TEXT NOT NULL DEFAULT '',
		timezone_offset INTEGER NOT NULL DEFAULT 0,
		last_update     INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS daily_forecasts (
		weather_id      TEXT NOT NULL REFERENCES weather (id) ON DELETE CASCADE,
		position        INTEGER NOT NULL,
		date            INTEGER NOT NULL,
		sunrise         INTEGER NOT NULL,
		sunset          INTEGER NOT NULL,
		temperature     REAL NOT NULL,
		min_temperature REAL NOT NULL,
		max_temperature REAL NOT NULL,
		description     TEXT NOT NULL DEFAULT '',
		icon            TEXT NOT NULL DEFAULT '',
		wind_speed      REAL NOT NULL,
		wind_direction  REAL NOT NULL,
		wind_gust       REAL,
		humidity        INTEGER NOT NULL,
		pressure        INTEGER NOT NULL,
		clouds          INTEGER NOT NULL,
		uv_index        REAL NOT NULL,
		precipitation   REAL,
		moon_rise       INTEGER,
		moon_set        INTEGER,
		moon_phase      REAL NOT NULL,
		PRIMARY KEY (weather_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS hourly_forecasts (
		weather_id     TEXT NOT NULL REFERENCES weather (id) ON DELETE CASCADE,
		position       INTEGER NOT NULL,
		time           INTEGER NOT NULL,
		temperature    REAL NOT NULL,
		feels_like     REAL NOT NULL,
		description    TEXT NOT NULL DEFAULT '',
		icon           TEXT NOT NULL DEFAULT '',
		wind_speed     REAL NOT NULL,
		wind_direction REAL NOT NULL,
		wind_gust      REAL,
		humidity       INTEGER NOT NULL,
		pressure       INTEGER NOT NULL,
		clouds         INTEGER NOT NULL,
		uv_index       REAL NOT NULL,
		visibility     INTEGER NOT NULL,
		dew_point      REAL NOT NULL,
		pop            REAL NOT NULL,
		PRIMARY KEY (weather_id, position)
	)`,
}

// MigratePostgres applies PostgresSchema in one transaction.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback error is not critical

	for _, stmt := range PostgresSchema {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return tx.Commit(ctx)
}
