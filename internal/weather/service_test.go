package weather_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shutterspot/shutterspot/internal/geo"
	"github.com/shutterspot/shutterspot/internal/weather"
)

// mockSource is a mock remote source for testing.
type mockSource struct {
	mu        sync.Mutex
	callCount int
	result    *weather.FetchResult
	err       error
	errFor    map[string]error // keyed by coordinate
	block     bool
	started   chan struct{}
}

func newMockSource(result *weather.FetchResult) *mockSource {
	return &mockSource{result: result, errFor: make(map[string]error)}
}

func (m *mockSource) Name() string {
	return "mock"
}

func (m *mockSource) Fetch(ctx context.Context, coord geo.Coordinate) (*weather.FetchResult, error) {
	m.mu.Lock()
	m.callCount++
	block, started := m.block, m.started
	err := m.err
	if e, ok := m.errFor[coord.Key()]; ok {
		err = e
	}
	res := m.result
	m.mu.Unlock()

	if block {
		if started != nil {
			close(started)
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}

	cpy := *res
	cpy.Daily = append([]weather.DailyForecast(nil), res.Daily...)
	cpy.Hourly = append([]weather.HourlyForecast(nil), res.Hourly...)
	return &cpy, nil
}

func (m *mockSource) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

func (m *mockSource) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// mockStore wraps the in-memory store with failure injection.
type mockStore struct {
	*weather.InMemoryStore

	mu          sync.Mutex
	upsertCount int
	upsertErr   error
	getErr      error
	listErr     error
}

func newMockStore(locations ...weather.LocationRef) *mockStore {
	s := &mockStore{InMemoryStore: weather.NewInMemoryStore()}
	for _, l := range locations {
		s.PutLocation(l, true)
	}
	return s
}

func (m *mockStore) GetByLocationID(ctx context.Context, locationID string) (*weather.Weather, error) {
	m.mu.Lock()
	err := m.getErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.InMemoryStore.GetByLocationID(ctx, locationID)
}

func (m *mockStore) Upsert(ctx context.Context, w *weather.Weather) (*weather.Weather, error) {
	m.mu.Lock()
	m.upsertCount++
	err := m.upsertErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.InMemoryStore.Upsert(ctx, w)
}

func (m *mockStore) GetActiveLocations(ctx context.Context) ([]weather.LocationRef, error) {
	m.mu.Lock()
	err := m.listErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.InMemoryStore.GetActiveLocations(ctx)
}

func (m *mockStore) upserts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsertCount
}

// seed stores an aggregate fetched at fetchedAt.
func (m *mockStore) seed(t *testing.T, ref weather.LocationRef, res *weather.FetchResult, fetchedAt time.Time) *weather.Weather {
	t.Helper()
	w, err := weather.NewWeather(ref, res, fetchedAt)
	require.NoError(t, err)
	stored, err := m.InMemoryStore.Upsert(context.Background(), w)
	require.NoError(t, err)
	return stored
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestService(store weather.Store, source weather.RemoteSource, opts ...func(*weather.ServiceConfig)) *weather.Service {
	cfg := weather.ServiceConfig{
		Store:  store,
		Source: source,
		Logger: zerolog.Nop(),
		Now:    func() time.Time { return testNow },
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return weather.NewService(cfg)
}

func TestService_SyncLocationWeather_Missing(t *testing.T) {
	store := newMockStore(yosemite)
	source := newMockSource(fetchResult(testNow, 9, 60))
	svc := newTestService(store, source)

	view, err := svc.SyncLocationWeather(context.Background(), yosemite.ID)
	require.NoError(t, err)

	assert.Equal(t, weather.OriginRemote, view.Origin)
	assert.False(t, view.IsFallback())
	assert.NotEmpty(t, view.WeatherID)
	assert.Equal(t, yosemite.ID, view.LocationID)
	assert.True(t, view.LastUpdate.Equal(testNow))
	assert.Len(t, view.Daily, weather.MaxDailyForecasts)
	assert.Len(t, view.Hourly, weather.MaxHourlyForecasts)
	require.NotNil(t, view.Current)
	assert.True(t, view.Current.Date.Equal(view.Daily[0].Date))

	stored, err := store.GetByLocationID(context.Background(), yosemite.ID)
	require.NoError(t, err)
	assert.Equal(t, view.WeatherID, stored.ID)
	assert.Len(t, stored.DailyForecasts, weather.MaxDailyForecasts)
	assert.Equal(t, 1, source.calls())
}

func TestService_SyncLocationWeather_FreshCache(t *testing.T) {
	store := newMockStore(yosemite)
	cached := store.seed(t, yosemite, fetchResult(testNow, 7, 24), testNow.Add(-2*time.Hour))
	source := newMockSource(fetchResult(testNow, 7, 24))
	svc := newTestService(store, source)

	view, err := svc.SyncLocationWeather(context.Background(), yosemite.ID)
	require.NoError(t, err)

	assert.Equal(t, weather.OriginCache, view.Origin)
	assert.Equal(t, cached.ID, view.WeatherID)
	assert.True(t, view.LastUpdate.Equal(cached.LastUpdate))
	assert.Equal(t, 0, source.calls())
	assert.Equal(t, 0, store.upserts())
}

func TestService_SyncLocationWeather_StaleReplacesForecasts(t *testing.T) {
	store := newMockStore(yosemite)
	old := fetchResult(testNow.Add(-72*time.Hour), 7, 48)
	for i := range old.Daily {
		old.Daily[i].Description = "old"
	}
	cached := store.seed(t, yosemite, old, testNow.Add(-72*time.Hour))

	source := newMockSource(fetchResult(testNow, 6, 12))
	svc := newTestService(store, source)

	view, err := svc.SyncLocationWeather(context.Background(), yosemite.ID)
	require.NoError(t, err)

	assert.Equal(t, weather.OriginRemote, view.Origin)
	assert.Equal(t, cached.ID, view.WeatherID)
	assert.True(t, view.LastUpdate.Equal(testNow))

	stored, err := store.GetByLocationID(context.Background(), yosemite.ID)
	require.NoError(t, err)
	assert.Equal(t, cached.ID, stored.ID)
	require.Len(t, stored.DailyForecasts, 6)
	assert.Len(t, stored.HourlyForecasts, 12)
	for _, d := range stored.DailyForecasts {
		assert.Equal(t, "clear sky", d.Description)
	}
}

func TestService_SyncLocationWeather_FallbackOnFetchFailure(t *testing.T) {
	store := newMockStore(yosemite)
	cached := store.seed(t, yosemite, fetchResult(testNow.Add(-72*time.Hour), 7, 0), testNow.Add(-72*time.Hour))

	source := newMockSource(nil)
	source.setErr(errors.New("connection reset"))
	svc := newTestService(store, source)

	view, err := svc.SyncLocationWeather(context.Background(), yosemite.ID)
	require.NoError(t, err)

	assert.Equal(t, weather.OriginFallback, view.Origin)
	assert.True(t, view.IsFallback())
	assert.Equal(t, cached.ID, view.WeatherID)
	assert.True(t, view.LastUpdate.Equal(cached.LastUpdate))
	assert.Equal(t, 72*time.Hour, view.Age(testNow))
	assert.Equal(t, 0, store.upserts())
}

func TestService_SyncLocationWeather_UnavailableWithoutCache(t *testing.T) {
	store := newMockStore(yosemite)
	source := newMockSource(nil)
	source.setErr(errors.New("upstream 502"))
	svc := newTestService(store, source)

	_, err := svc.SyncLocationWeather(context.Background(), yosemite.ID)
	require.ErrorIs(t, err, weather.ErrWeatherUnavailable)
	assert.Equal(t, 0, store.upserts())

	_, err = store.GetByLocationID(context.Background(), yosemite.ID)
	assert.ErrorIs(t, err, weather.ErrWeatherNotFound)
}

func TestService_SyncLocationWeather_InvalidResponseIsFetchFailure(t *testing.T) {
	t.Run("empty daily without cache", func(t *testing.T) {
		store := newMockStore(yosemite)
		svc := newTestService(store, newMockSource(fetchResult(testNow, 0, 24)))

		_, err := svc.SyncLocationWeather(context.Background(), yosemite.ID)
		assert.ErrorIs(t, err, weather.ErrWeatherUnavailable)
	})

	t.Run("invalid record with cache", func(t *testing.T) {
		store := newMockStore(yosemite)
		store.seed(t, yosemite, fetchResult(testNow, 3, 0), testNow.Add(-time.Hour))

		bad := fetchResult(testNow, 7, 0)
		bad.Daily[1].MoonPhase = 2
		svc := newTestService(store, newMockSource(bad))

		view, err := svc.SyncLocationWeather(context.Background(), yosemite.ID)
		require.NoError(t, err)
		assert.Equal(t, weather.OriginFallback, view.Origin)
		assert.Len(t, view.Daily, 3)
		assert.Equal(t, 0, store.upserts())
	})
}

func TestService_SyncLocationWeather_UnknownLocation(t *testing.T) {
	store := newMockStore()
	source := newMockSource(fetchResult(testNow, 7, 0))
	svc := newTestService(store, source)

	_, err := svc.SyncLocationWeather(context.Background(), "nope")
	assert.ErrorIs(t, err, weather.ErrLocationNotFound)
	assert.Equal(t, 0, source.calls())

	_, err = svc.SyncLocationWeather(context.Background(), " ")
	assert.ErrorIs(t, err, weather.ErrValidation)
}

func TestService_SyncLocationWeather_PersistenceFailure(t *testing.T) {
	store := newMockStore(yosemite)
	cached := store.seed(t, yosemite, fetchResult(testNow.Add(-72*time.Hour), 7, 0), testNow.Add(-72*time.Hour))
	store.upsertErr = errors.New("disk full")

	svc := newTestService(store, newMockSource(fetchResult(testNow, 7, 0)))

	_, err := svc.SyncLocationWeather(context.Background(), yosemite.ID)
	require.ErrorIs(t, err, weather.ErrPersistence)

	stored, err := store.InMemoryStore.GetByLocationID(context.Background(), yosemite.ID)
	require.NoError(t, err)
	assert.True(t, stored.LastUpdate.Equal(cached.LastUpdate))
}

func TestService_SyncLocationWeather_LookupFailure(t *testing.T) {
	store := newMockStore(yosemite)
	store.getErr = errors.New("database is locked")
	source := newMockSource(fetchResult(testNow, 7, 0))
	svc := newTestService(store, source)

	_, err := svc.SyncLocationWeather(context.Background(), yosemite.ID)
	assert.ErrorIs(t, err, weather.ErrPersistence)
	assert.Equal(t, 0, source.calls())
}

func TestService_SyncLocationWeather_CancellationIsNotFallback(t *testing.T) {
	store := newMockStore(yosemite)
	store.seed(t, yosemite, fetchResult(testNow.Add(-72*time.Hour), 7, 0), testNow.Add(-72*time.Hour))

	source := newMockSource(fetchResult(testNow, 7, 0))
	source.block = true
	source.started = make(chan struct{})
	svc := newTestService(store, source)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-source.started
		cancel()
	}()

	view, err := svc.SyncLocationWeather(ctx, yosemite.ID)
	assert.Nil(t, view)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, store.upserts())
}

func TestService_SyncLocationWeather_FollowsMovedLocation(t *testing.T) {
	store := newMockStore(yosemite)
	cached := store.seed(t, yosemite, fetchResult(testNow.Add(-72*time.Hour), 7, 0), testNow.Add(-72*time.Hour))

	moved := weather.LocationRef{ID: yosemite.ID, Coordinate: geo.MustCoordinate(37.7304, -119.5734)}
	store.PutLocation(moved, true)

	source := newMockSource(fetchResult(testNow, 7, 0))
	source.errFor[yosemite.Coordinate.Key()] = errors.New("old coordinate fetched")
	svc := newTestService(store, source)

	view, err := svc.SyncLocationWeather(context.Background(), yosemite.ID)
	require.NoError(t, err)
	assert.Equal(t, weather.OriginRemote, view.Origin)
	assert.Equal(t, cached.ID, view.WeatherID)

	stored, err := store.GetByLocationID(context.Background(), yosemite.ID)
	require.NoError(t, err)
	assert.Equal(t, moved.Coordinate, stored.Coordinate)
	assert.Equal(t, yosemite.Coordinate, cached.Coordinate)
}

func TestService_SyncLocationWeather_RemovedLocationKeepsCachedCoordinate(t *testing.T) {
	store := newMockStore()
	store.seed(t, yosemite, fetchResult(testNow.Add(-72*time.Hour), 7, 0), testNow.Add(-72*time.Hour))
	source := newMockSource(fetchResult(testNow, 7, 0))
	svc := newTestService(store, source)

	view, err := svc.SyncLocationWeather(context.Background(), yosemite.ID)
	require.NoError(t, err)
	assert.Equal(t, weather.OriginRemote, view.Origin)

	stored, err := store.GetByLocationID(context.Background(), yosemite.ID)
	require.NoError(t, err)
	assert.Equal(t, yosemite.Coordinate, stored.Coordinate)
}

func TestService_SyncLocationWeather_WindTowards(t *testing.T) {
	store := newMockStore(yosemite)
	svc := newTestService(store, newMockSource(fetchResult(testNow, 7, 3)), func(cfg *weather.ServiceConfig) {
		cfg.WindDirection = weather.WindTowards
	})

	view, err := svc.SyncLocationWeather(context.Background(), yosemite.ID)
	require.NoError(t, err)

	assert.Equal(t, 90.0, view.Daily[0].Wind.Direction)
	assert.Equal(t, 90.0, view.Hourly[0].Wind.Direction)
	assert.Equal(t, 90.0, view.Current.Wind.Direction)

	stored, err := store.GetByLocationID(context.Background(), yosemite.ID)
	require.NoError(t, err)
	assert.Equal(t, 270.0, stored.DailyForecasts[0].Wind.Direction)
	assert.Equal(t, 270.0, stored.HourlyForecasts[0].Wind.Direction)
}

func TestService_SyncLocationWeather_SerializedPerLocation(t *testing.T) {
	store := newMockStore(yosemite)
	source := newMockSource(fetchResult(testNow, 7, 24))
	svc := newTestService(store, source)

	var wg sync.WaitGroup
	origins := make(chan weather.Origin, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			view, err := svc.SyncLocationWeather(context.Background(), yosemite.ID)
			if assert.NoError(t, err) {
				origins <- view.Origin
			}
		}()
	}
	wg.Wait()
	close(origins)

	counts := map[weather.Origin]int{}
	for o := range origins {
		counts[o]++
	}
	assert.Equal(t, 1, source.calls())
	assert.Equal(t, 1, counts[weather.OriginRemote])
	assert.Equal(t, 9, counts[weather.OriginCache])
}

func TestService_SyncLocationWeather_StaleAfterClockAdvance(t *testing.T) {
	clock := &testClock{now: testNow}
	store := newMockStore(yosemite)
	source := newMockSource(fetchResult(testNow, 7, 0))
	svc := newTestService(store, source, func(cfg *weather.ServiceConfig) {
		cfg.Now = clock.Now
		cfg.Policy = weather.StalenessPolicy{MaxAge: time.Hour, CoverageDays: 1}
	})

	_, err := svc.SyncLocationWeather(context.Background(), yosemite.ID)
	require.NoError(t, err)

	clock.Advance(30 * time.Minute)
	view, err := svc.SyncLocationWeather(context.Background(), yosemite.ID)
	require.NoError(t, err)
	assert.Equal(t, weather.OriginCache, view.Origin)

	clock.Advance(time.Hour)
	view, err = svc.SyncLocationWeather(context.Background(), yosemite.ID)
	require.NoError(t, err)
	assert.Equal(t, weather.OriginRemote, view.Origin)
	assert.True(t, view.LastUpdate.Equal(testNow.Add(90*time.Minute)))
	assert.Equal(t, 2, source.calls())
}

func TestService_Invalidate(t *testing.T) {
	store := newMockStore(yosemite)
	source := newMockSource(fetchResult(testNow, 7, 0))
	svc := newTestService(store, source)

	_, err := svc.SyncLocationWeather(context.Background(), yosemite.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Invalidate(context.Background(), yosemite.ID))
	_, err = store.GetByLocationID(context.Background(), yosemite.ID)
	assert.ErrorIs(t, err, weather.ErrWeatherNotFound)

	view, err := svc.SyncLocationWeather(context.Background(), yosemite.ID)
	require.NoError(t, err)
	assert.Equal(t, weather.OriginRemote, view.Origin)
	assert.Equal(t, 2, source.calls())
}

func TestService_SyncAll(t *testing.T) {
	store := newMockStore(yosemite, bigSur, palouse)
	store.PutLocation(weather.LocationRef{ID: "loc-deleted", Coordinate: geo.MustCoordinate(10, 10)}, false)

	// bigSur has stale data and its fetch fails: fallback, not counted.
	store.seed(t, bigSur, fetchResult(testNow.Add(-72*time.Hour), 7, 0), testNow.Add(-72*time.Hour))
	// palouse has no data and its fetch fails: failure.
	source := newMockSource(fetchResult(testNow, 7, 24))
	source.errFor[bigSur.Coordinate.Key()] = errors.New("timeout")
	source.errFor[palouse.Coordinate.Key()] = errors.New("timeout")

	svc := newTestService(store, source, func(cfg *weather.ServiceConfig) {
		cfg.Concurrency = 2
	})

	count, err := svc.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	result, err := svc.SyncActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 0, result.Synced)
	assert.Equal(t, 1, result.FromCache)
	assert.Equal(t, 1, result.Fallback)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, palouse.ID, result.Errors[0].LocationID)
	assert.Equal(t, 1, result.Succeeded())
}

func TestService_SyncLocations_TimeoutFallsBackToCache(t *testing.T) {
	store := newMockStore(yosemite, bigSur)
	cached := store.seed(t, yosemite, fetchResult(testNow.Add(-72*time.Hour), 7, 0), testNow.Add(-72*time.Hour))

	source := newMockSource(fetchResult(testNow, 7, 0))
	source.block = true
	svc := newTestService(store, source, func(cfg *weather.ServiceConfig) {
		cfg.SyncTimeout = 50 * time.Millisecond
	})

	result := svc.SyncLocations(context.Background(), []string{yosemite.ID, bigSur.ID})
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Fallback)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, bigSur.ID, result.Errors[0].LocationID)
	assert.Contains(t, result.Errors[0].Error, "weather unavailable")
	assert.Contains(t, result.Errors[0].Error, "location sync timed out")
	assert.Equal(t, 0, store.upserts())

	stored, err := store.GetByLocationID(context.Background(), yosemite.ID)
	require.NoError(t, err)
	assert.True(t, stored.LastUpdate.Equal(cached.LastUpdate))
}

func TestService_SyncLocations_CallerDeadlineIsNotFallback(t *testing.T) {
	store := newMockStore(yosemite)
	store.seed(t, yosemite, fetchResult(testNow.Add(-72*time.Hour), 7, 0), testNow.Add(-72*time.Hour))

	source := newMockSource(fetchResult(testNow, 7, 0))
	source.block = true
	svc := newTestService(store, source)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	result := svc.SyncLocations(ctx, []string{yosemite.ID})
	assert.Equal(t, 0, result.Fallback)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, context.DeadlineExceeded.Error(), result.Errors[0].Error)
}

func TestService_SyncAll_ListFailure(t *testing.T) {
	store := newMockStore(yosemite)
	store.listErr = errors.New("connection refused")
	svc := newTestService(store, newMockSource(fetchResult(testNow, 7, 0)))

	count, err := svc.SyncAll(context.Background())
	assert.ErrorIs(t, err, weather.ErrPersistence)
	assert.Zero(t, count)
}

func TestService_SyncAll_Empty(t *testing.T) {
	svc := newTestService(newMockStore(), newMockSource(fetchResult(testNow, 7, 0)))

	count, err := svc.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestParseWindDirectionMode(t *testing.T) {
	tests := []struct {
		in      string
		want    weather.WindDirectionMode
		wantErr bool
	}{
		{"", weather.WindFrom, false},
		{"from", weather.WindFrom, false},
		{"TOWARDS", weather.WindTowards, false},
		{" towards ", weather.WindTowards, false},
		{"sideways", "", true},
	}

	for _, tt := range tests {
		got, err := weather.ParseWindDirectionMode(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, weather.ErrValidation, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
