package weather_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shutterspot/shutterspot/internal/database"
	"github.com/shutterspot/shutterspot/internal/geo"
	"github.com/shutterspot/shutterspot/internal/weather"
)

// newPostgresStore connects to SHUTTERSPOT_TEST_DATABASE_URL and skips the
// test when it is unset.
func newPostgresStore(t *testing.T) (*weather.PostgresStore, *pgxpool.Pool) {
	t.Helper()

	dsn := os.Getenv("SHUTTERSPOT_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("SHUTTERSPOT_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := database.Connect(ctx, database.Config{URL: dsn, ConnectAttempts: 1}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, database.MigratePostgres(ctx, pool))

	return weather.NewPostgresStore(pool), pool
}

// insertPostgresLocation adds a location with a unique ID and removes it,
// with its weather, when the test ends.
func insertPostgresLocation(t *testing.T, pool *pgxpool.Pool, coord geo.Coordinate, deleted bool) weather.LocationRef {
	t.Helper()

	ref := weather.LocationRef{ID: "loc-" + uuid.NewString(), Coordinate: coord}
	_, err := pool.Exec(context.Background(),
		`INSERT INTO locations (id, title, latitude, longitude, is_deleted) VALUES ($1, $2, $3, $4, $5)`,
		ref.ID, ref.ID, coord.Latitude, coord.Longitude, deleted,
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx := context.Background()
		_, _ = pool.Exec(ctx, `DELETE FROM weather WHERE location_id = $1`, ref.ID)
		_, _ = pool.Exec(ctx, `DELETE FROM locations WHERE id = $1`, ref.ID)
	})
	return ref
}

func TestPostgresStore_UpsertReplacesForecasts(t *testing.T) {
	store, pool := newPostgresStore(t)
	ref := insertPostgresLocation(t, pool, yosemite.Coordinate, false)
	ctx := context.Background()

	_, err := store.GetByLocationID(ctx, ref.ID)
	require.ErrorIs(t, err, weather.ErrWeatherNotFound)

	old := fetchResult(testNow.Add(-72*time.Hour), 7, 48)
	old.Daily[0].Precipitation = ptr(1.25)
	first, err := weather.NewWeather(ref, old, testNow.Add(-72*time.Hour))
	require.NoError(t, err)

	stored, err := store.Upsert(ctx, first)
	require.NoError(t, err)
	require.NotEmpty(t, stored.ID)

	got, err := store.GetByLocationID(ctx, ref.ID)
	require.NoError(t, err)
	assert.Len(t, got.DailyForecasts, 7)
	assert.Len(t, got.HourlyForecasts, 48)
	require.NotNil(t, got.DailyForecasts[0].Precipitation)
	assert.Equal(t, 1.25, *got.DailyForecasts[0].Precipitation)

	fresh := fetchResult(testNow, 5, 6)
	for i := range fresh.Daily {
		fresh.Daily[i].Description = "fresh"
	}
	moved := geo.MustCoordinate(37.7304, -119.5734)
	next, err := stored.Relocate(moved).Refresh(fresh, testNow)
	require.NoError(t, err)

	again, err := store.Upsert(ctx, next)
	require.NoError(t, err)
	assert.Equal(t, stored.ID, again.ID)

	got, err = store.GetByLocationID(ctx, ref.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.ID, got.ID)
	assert.True(t, got.Coordinate.Equal(moved))
	assert.True(t, got.LastUpdate.Equal(testNow))
	require.Len(t, got.DailyForecasts, 5)
	assert.Len(t, got.HourlyForecasts, 6)
	for i, d := range got.DailyForecasts {
		assert.Equal(t, "fresh", d.Description)
		assert.True(t, d.Date.Equal(next.DailyForecasts[i].Date))
	}
	assert.Nil(t, got.DailyForecasts[0].Precipitation)
}

func TestPostgresStore_UpsertWithoutIDKeepsExisting(t *testing.T) {
	store, pool := newPostgresStore(t)
	ref := insertPostgresLocation(t, pool, bigSur.Coordinate, false)
	ctx := context.Background()

	w, err := weather.NewWeather(ref, fetchResult(testNow, 5, 0), testNow)
	require.NoError(t, err)
	stored, err := store.Upsert(ctx, w)
	require.NoError(t, err)

	again, err := store.Upsert(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, stored.ID, again.ID)
}

func TestPostgresStore_LocationsAndDelete(t *testing.T) {
	store, pool := newPostgresStore(t)
	active := insertPostgresLocation(t, pool, palouse.Coordinate, false)
	deleted := insertPostgresLocation(t, pool, bigSur.Coordinate, true)
	ctx := context.Background()

	refs, err := store.GetActiveLocations(ctx)
	require.NoError(t, err)
	ids := map[string]bool{}
	for _, r := range refs {
		ids[r.ID] = true
	}
	assert.True(t, ids[active.ID])
	assert.False(t, ids[deleted.ID])

	ref, err := store.GetLocation(ctx, active.ID)
	require.NoError(t, err)
	assert.True(t, ref.Coordinate.Equal(palouse.Coordinate))

	_, err = store.GetLocation(ctx, deleted.ID)
	assert.ErrorIs(t, err, weather.ErrLocationNotFound)

	w, err := weather.NewWeather(active, fetchResult(testNow, 3, 0), testNow)
	require.NoError(t, err)
	_, err = store.Upsert(ctx, w)
	require.NoError(t, err)

	require.NoError(t, store.DeleteByLocationID(ctx, active.ID))
	_, err = store.GetByLocationID(ctx, active.ID)
	assert.ErrorIs(t, err, weather.ErrWeatherNotFound)
}
