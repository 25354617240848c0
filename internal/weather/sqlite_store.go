package weather

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SQLiteStore is the on-device implementation of Store, backed by the
// modernc.org/sqlite driver. Timestamps are stored as Unix milliseconds.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a store on an already migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// GetByLocationID loads the aggregate and its forecasts.
func (s *SQLiteStore) GetByLocationID(ctx context.Context, locationID string) (*Weather, error) {
	query := `
		SELECT id, location_id, latitude, longitude, timezone, timezone_offset, last_update
		FROM weather
		WHERE location_id = ?
	`

	var (
		w          Weather
		lastUpdate int64
	)
	err := s.db.QueryRowContext(ctx, query, locationID).Scan(
		&w.ID,
		&w.LocationID,
		&w.Coordinate.Latitude,
		&w.Coordinate.Longitude,
		&w.Timezone,
		&w.TimezoneOffsetSeconds,
		&lastUpdate,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWeatherNotFound
		}
		return nil, err
	}
	w.LastUpdate = fromMillis(lastUpdate)

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

func (s *SQLiteStore) dailyForecasts(ctx context.Context, weatherID string) ([]DailyForecast, error) {
	query := `
		SELECT
			date, sunrise, sunset,
			temperature, min_temperature, max_temperature,
			description, icon,
			wind_speed, wind_direction, wind_gust,
			humidity, pressure, clouds, uv_index, precipitation,
			moon_rise, moon_set, moon_phase
		FROM daily_forecasts
		WHERE weather_id = ?
		ORDER BY position
	`

	rows, err := s.db.QueryContext(ctx, query, weatherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	daily := []DailyForecast{}
	for rows.Next() {
		var (
			d                     DailyForecast
			date, sunrise, sunset int64
			gust, precipitation   sql.NullFloat64
			moonRise, moonSet     sql.NullInt64
		)
		if err := rows.Scan(
			&date, &sunrise, &sunset,
			&d.Temperature, &d.MinTemperature, &d.MaxTemperature,
			&d.Description, &d.Icon,
			&d.Wind.Speed, &d.Wind.Direction, &gust,
			&d.Humidity, &d.Pressure, &d.Clouds, &d.UVIndex, &precipitation,
			&moonRise, &moonSet, &d.MoonPhase,
		); err != nil {
			return nil, err
		}
		d.Date = fromMillis(date)
		d.Sunrise = fromMillis(sunrise)
		d.Sunset = fromMillis(sunset)
		d.Wind.Gust = nullFloat(gust)
		d.Precipitation = nullFloat(precipitation)
		d.MoonRise = nullTime(moonRise)
		d.MoonSet = nullTime(moonSet)
		daily = append(daily, d)
	}
	return daily, rows.Err()
}

func (s *SQLiteStore) hourlyForecasts(ctx context.Context, weatherID string) ([]HourlyForecast, error) {
	query := `
		SELECT
			time, temperature, feels_like,
			description, icon,
			wind_speed, wind_direction, wind_gust,
			humidity, pressure, clouds, uv_index,
			visibility, dew_point, pop
		FROM hourly_forecasts
		WHERE weather_id = ?
		ORDER BY position
	`

	rows, err := s.db.QueryContext(ctx, query, weatherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hourly := []HourlyForecast{}
	for rows.Next() {
		var (
			h    HourlyForecast
			at   int64
			gust sql.NullFloat64
		)
		if err := rows.Scan(
			&at, &h.Temperature, &h.FeelsLike,
			&h.Description, &h.Icon,
			&h.Wind.Speed, &h.Wind.Direction, &gust,
			&h.Humidity, &h.Pressure, &h.Clouds, &h.UVIndex,
			&h.Visibility, &h.DewPoint, &h.ProbabilityOfPrecipitation,
		); err != nil {
			return nil, err
		}
		h.Time = fromMillis(at)
		h.Wind.Gust = nullFloat(gust)
		hourly = append(hourly, h)
	}
	return hourly, rows.Err()
}

// Upsert replaces the aggregate and both forecast lists in one transaction.
func (s *SQLiteStore) Upsert(ctx context.Context, w *Weather) (*Weather, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback error is not critical

	id := w.ID
	if id == "" {
		id = uuid.NewString()
	}

	query := `
		INSERT INTO weather (id, location_id, latitude, longitude, timezone, timezone_offset, last_update)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (location_id) DO UPDATE SET
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			timezone = excluded.timezone,
			timezone_offset = excluded.timezone_offset,
			last_update = excluded.last_update
		RETURNING id
	`

	var storedID string
	if err := tx.QueryRowContext(ctx, query,
		id, w.LocationID,
		w.Coordinate.Latitude, w.Coordinate.Longitude,
		w.Timezone, w.TimezoneOffsetSeconds, w.LastUpdate.UnixMilli(),
	).Scan(&storedID); err != nil {
		return nil, fmt.Errorf("upsert weather: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM daily_forecasts WHERE weather_id = ?`, storedID); err != nil {
		return nil, fmt.Errorf("clear daily forecasts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM hourly_forecasts WHERE weather_id = ?`, storedID); err != nil {
		return nil, fmt.Errorf("clear hourly forecasts: %w", err)
	}

	dailyStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO daily_forecasts (
			weather_id, position, date, sunrise, sunset,
			temperature, min_temperature, max_temperature,
			description, icon, wind_speed, wind_direction, wind_gust,
			humidity, pressure, clouds, uv_index, precipitation,
			moon_rise, moon_set, moon_phase
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("prepare daily insert: %w", err)
	}
	defer dailyStmt.Close()

	for i, d := range w.DailyForecasts {
		if _, err := dailyStmt.ExecContext(ctx,
			storedID, i, d.Date.UnixMilli(), d.Sunrise.UnixMilli(), d.Sunset.UnixMilli(),
			d.Temperature, d.MinTemperature, d.MaxTemperature,
			d.Description, d.Icon, d.Wind.Speed, d.Wind.Direction, d.Wind.Gust,
			d.Humidity, d.Pressure, d.Clouds, d.UVIndex, d.Precipitation,
			toMillis(d.MoonRise), toMillis(d.MoonSet), d.MoonPhase,
		); err != nil {
			return nil, fmt.Errorf("insert daily forecast %d: %w", i, err)
		}
	}

	hourlyStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO hourly_forecasts (
			weather_id, position, time, temperature, feels_like,
			description, icon, wind_speed, wind_direction, wind_gust,
			humidity, pressure, clouds, uv_index, visibility, dew_point, pop
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("prepare hourly insert: %w", err)
	}
	defer hourlyStmt.Close()

	for i, h := range w.HourlyForecasts {
		if _, err := hourlyStmt.ExecContext(ctx,
			storedID, i, h.Time.UnixMilli(), h.Temperature, h.FeelsLike,
			h.Description, h.Icon, h.Wind.Speed, h.Wind.Direction, h.Wind.Gust,
			h.Humidity, h.Pressure, h.Clouds, h.UVIndex, h.Visibility, h.DewPoint, h.ProbabilityOfPrecipitation,
		); err != nil {
			return nil, fmt.Errorf("insert hourly forecast %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	stored := w.Clone()
	stored.ID = storedID
	return stored, nil
}

// GetActiveLocations lists non-deleted locations.
func (s *SQLiteStore) GetActiveLocations(ctx context.Context) ([]LocationRef, error) {
	query := `
		SELECT id, latitude, longitude
		FROM locations
		WHERE is_deleted = 0
		ORDER BY created_at, id
	`

	rows, err := s.db.QueryContext(ctx, query)
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
func (s *SQLiteStore) GetLocation(ctx context.Context, locationID string) (*LocationRef, error) {
	var lat, lon float64
	err := s.db.QueryRowContext(ctx,
		`SELECT latitude, longitude FROM locations WHERE id = ? AND is_deleted = 0`,
		locationID,
	).Scan(&lat, &lon)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
func (s *SQLiteStore) DeleteByLocationID(ctx context.Context, locationID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM weather WHERE location_id = ?`, locationID)
	return err
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func toMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}
