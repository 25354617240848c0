package weather

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shutterspot/shutterspot/internal/geo"
)

// PostgresStore is a PostgreSQL implementation of Store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL weather store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// GetByLocationID loads the aggregate and its forecasts.
func (s *PostgresStore) GetByLocationID(ctx context.Context, locationID string) (*Weather, error) {
	query := `
		SELECT id, location_id, latitude, longitude, timezone, timezone_offset, last_update
		FROM weather
		WHERE location_id = $1
	`

	var w Weather
	err := s.pool.QueryRow(ctx, query, locationID).Scan(
		&w.ID,
		&w.LocationID,
		&w.Coordinate.Latitude,
		&w.Coordinate.Longitude,
		&w.Timezone,
		&w.TimezoneOffsetSeconds,
		&w.LastUpdate,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWeatherNotFound
		}
		return nil, err
	}

	w.DailyForecasts, err = s.dailyForecasts(ctx, w.ID)
	if err != nil {
		return nil, err
	}
	w.HourlyForecasts, err = s.hourlyForecasts(ctx, w.ID)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *PostgresStore) dailyForecasts(ctx context.Context, weatherID string) ([]DailyForecast, error) {
	query := `
		SELECT
			date, sunrise, sunset,
			temperature, min_temperature, max_temperature,
			description, icon,
			wind_speed, wind_direction, wind_gust,
			humidity, pressure, clouds, uv_index, precipitation,
			moon_rise, moon_set, moon_phase
		FROM daily_forecasts
		WHERE weather_id = $1
		ORDER BY position
	`

	rows, err := s.pool.Query(ctx, query, weatherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	daily := []DailyForecast{}
	for rows.Next() {
		var d DailyForecast
		if err := rows.Scan(
			&d.Date, &d.Sunrise, &d.Sunset,
			&d.Temperature, &d.MinTemperature, &d.MaxTemperature,
			&d.Description, &d.Icon,
			&d.Wind.Speed, &d.Wind.Direction, &d.Wind.Gust,
			&d.Humidity, &d.Pressure, &d.Clouds, &d.UVIndex, &d.Precipitation,
			&d.MoonRise, &d.MoonSet, &d.MoonPhase,
		); err != nil {
			return nil, err
		}
		daily = append(daily, d)
	}
	return daily, rows.Err()
}

func (s *PostgresStore) hourlyForecasts(ctx context.Context, weatherID string) ([]HourlyForecast, error) {
	query := `
		SELECT
			time, temperature, feels_like,
			description, icon,
			wind_speed, wind_direction, wind_gust,
			humidity, pressure, clouds, uv_index,
			visibility, dew_point, pop
		FROM hourly_forecasts
		WHERE weather_id = $1
		ORDER BY position
	`

	rows, err := s.pool.Query(ctx, query, weatherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hourly := []HourlyForecast{}
	for rows.Next() {
		var h HourlyForecast
		if err := rows.Scan(
			&h.Time, &h.Temperature, &h.FeelsLike,
			&h.Description, &h.Icon,
			&h.Wind.Speed, &h.Wind.Direction, &h.Wind.Gust,
			&h.Humidity, &h.Pressure, &h.Clouds, &h.UVIndex,
			&h.Visibility, &h.DewPoint, &h.ProbabilityOfPrecipitation,
		); err != nil {
			return nil, err
		}
		hourly = append(hourly, h)
	}
	return hourly, rows.Err()
}

// Upsert replaces the aggregate and both forecast lists in one transaction.
func (s *PostgresStore) Upsert(ctx context.Context, w *Weather) (*Weather, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback error is not critical

	id := w.ID
	if id == "" {
		id = uuid.NewString()
	}

	query := `
		INSERT INTO weather (id, location_id, latitude, longitude, timezone, timezone_offset, last_update)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (location_id) DO UPDATE SET
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			timezone = EXCLUDED.timezone,
			timezone_offset = EXCLUDED.timezone_offset,
			last_update = EXCLUDED.last_update
		RETURNING id
	`

	var storedID string
	if err := tx.QueryRow(ctx, query,
		id, w.LocationID,
		w.Coordinate.Latitude, w.Coordinate.Longitude,
		w.Timezone, w.TimezoneOffsetSeconds, w.LastUpdate,
	).Scan(&storedID); err != nil {
		return nil, fmt.Errorf("upsert weather: %w", err)
	}

	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM daily_forecasts WHERE weather_id = $1`, storedID)
	batch.Queue(`DELETE FROM hourly_forecasts WHERE weather_id = $1`, storedID)

	for i, d := range w.DailyForecasts {
		batch.Queue(`
			INSERT INTO daily_forecasts (
				weather_id, position, date, sunrise, sunset,
				temperature, min_temperature, max_temperature,
				description, icon, wind_speed, wind_direction, wind_gust,
				humidity, pressure, clouds, uv_index, precipitation,
				moon_rise, moon_set, moon_phase
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
			storedID, i, d.Date, d.Sunrise, d.Sunset,
			d.Temperature, d.MinTemperature, d.MaxTemperature,
			d.Description, d.Icon, d.Wind.Speed, d.Wind.Direction, d.Wind.Gust,
			d.Humidity, d.Pressure, d.Clouds, d.UVIndex, d.Precipitation,
			d.MoonRise, d.MoonSet, d.MoonPhase,
		)
	}

	for i, h := range w.HourlyForecasts {
		batch.Queue(`
			INSERT INTO hourly_forecasts (
				weather_id, position, time, temperature, feels_like,
				description, icon, wind_speed, wind_direction, wind_gust,
				humidity, pressure, clouds, uv_index, visibility, dew_point, pop
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
			storedID, i, h.Time, h.Temperature, h.FeelsLike,
			h.Description, h.Icon, h.Wind.Speed, h.Wind.Direction, h.Wind.Gust,
			h.Humidity, h.Pressure, h.Clouds, h.UVIndex, h.Visibility, h.DewPoint, h.ProbabilityOfPrecipitation,
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return nil, fmt.Errorf("write forecasts: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	stored := w.Clone()
	stored.ID = storedID
	return stored, nil
}

// GetActiveLocations lists non-deleted locations.
func (s *PostgresStore) GetActiveLocations(ctx context.Context) ([]LocationRef, error) {
	query := `
		SELECT id, latitude, longitude
		FROM locations
		WHERE NOT is_deleted
		ORDER BY created_at, id
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []LocationRef
	for rows.Next() {
		var (
			id       string
			lat, lon float64
		)
		if err := rows.Scan(&id, &lat, &lon); err != nil {
			return nil, err
		}
		ref, err := newLocationRef(id, lat, lon)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// GetLocation returns one non-deleted location.
func (s *PostgresStore) GetLocation(ctx context.Context, locationID string) (*LocationRef, error) {
	query := `
		SELECT latitude, longitude
		FROM locations
		WHERE id = $1 AND NOT is_deleted
	`

	var lat, lon float64
	if err := s.pool.QueryRow(ctx, query, locationID).Scan(&lat, &lon); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLocationNotFound
		}
		return nil, err
	}

	ref, err := newLocationRef(locationID, lat, lon)
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

// DeleteByLocationID removes the aggregate; forecasts cascade.
func (s *PostgresStore) DeleteByLocationID(ctx context.Context, locationID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM weather WHERE location_id = $1`, locationID)
	return err
}

func newLocationRef(id string, lat, lon float64) (LocationRef, error) {
	coord, err := geo.NewCoordinate(lat, lon)
	if err != nil {
		return LocationRef{}, fmt.Errorf("location %s: %w", id, err)
	}
	return LocationRef{ID: id, Coordinate: coord}, nil
}
