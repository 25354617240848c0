package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shutterspot/shutterspot/internal/api"
	"github.com/shutterspot/shutterspot/internal/api/handler"
	"github.com/shutterspot/shutterspot/internal/api/models"
	"github.com/shutterspot/shutterspot/internal/api/response"
	"github.com/shutterspot/shutterspot/internal/auth"
	"github.com/shutterspot/shutterspot/internal/geo"
	"github.com/shutterspot/shutterspot/internal/location"
	"github.com/shutterspot/shutterspot/internal/provider/resilience"
	"github.com/shutterspot/shutterspot/internal/weather"
)

var (
	seattle = geo.MustCoordinate(47.6062, -122.3321)
	tacoma  = geo.MustCoordinate(47.2529, -122.4443)
	la      = geo.MustCoordinate(34.0522, -118.2437)
)

// fakeSource is a RemoteSource returning a fixed forecast or error.
type fakeSource struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Fetch(_ context.Context, _ geo.Coordinate) (*weather.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	now := time.Now().UTC()
	res := &weather.FetchResult{Timezone: "UTC"}
	for i := 0; i < 7; i++ {
		day := time.Date(now.Year(), now.Month(), now.Day(), 12, 0, 0, 0, time.UTC).AddDate(0, 0, i)
		res.Daily = append(res.Daily, weather.DailyForecast{
			Date:           day,
			Sunrise:        day.Add(-6 * time.Hour),
			Sunset:         day.Add(7 * time.Hour),
			Temperature:    15,
			MinTemperature: 9,
			MaxTemperature: 19,
			Description:    "clear sky",
			Icon:           "01d",
			Wind:           weather.WindInfo{Speed: 3, Direction: 200},
			Humidity:       70,
			Pressure:       1015,
		})
	}
	return res, nil
}

func (f *fakeSource) fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeSource) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// testClock is a settable clock shared by the weather service.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	router http.Handler
	source *fakeSource
	tokens *auth.TokenService
	clock  *testClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := zerolog.New(io.Discard)

	repo := location.NewInMemoryRepository()
	weatherStore := weather.NewInMemoryStore()
	for _, l := range []location.Location{
		{ID: "loc-la", Title: "Griffith Observatory", Coordinate: la},
		{ID: "loc-tacoma", Title: "Point Defiance", Coordinate: tacoma},
		{ID: "loc-seattle", Title: "Kerry Park", Coordinate: seattle},
	} {
		l := l
		require.NoError(t, repo.Create(ctx, &l))
		weatherStore.PutLocation(weather.LocationRef{ID: l.ID, Coordinate: l.Coordinate}, true)
	}

	source := &fakeSource{}
	clock := &testClock{now: time.Now().UTC()}
	tokens := auth.NewTokenService(auth.Config{
		SigningKey: "test-secret-key-for-testing-only",
		Issuer:     "shutterspot",
		Audience:   "shutterspot-api",
	})
	cache, err := geo.NewDistanceCache(64)
	require.NoError(t, err)
	registry := resilience.NewRegistry()

	router := api.NewRouter(api.RouterConfig{
		Version:   "test",
		BuildTime: "2026-01-01T00:00:00Z",
		Logger:    logger,
		Tokens:    tokens,
		Weather: weather.NewService(weather.ServiceConfig{
			Store:  weatherStore,
			Source: source,
			Logger: logger,
			Now:    clock.Now,
		}),
		Locations: location.NewService(location.ServiceConfig{
			Store:  repo,
			Logger: logger,
			Cache:  cache,
		}),
		Ops: handler.OpsConfig{
			Version:    "test",
			Registry:   registry,
			CacheStats: cache.Stats,
		},
	})

	return &testEnv{router: router, source: source, tokens: tokens, clock: clock}
}

func (e *testEnv) token(t *testing.T, roles ...string) string {
	t.Helper()
	token, _, err := e.tokens.Issue("ops-bot", roles...)
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) models.Problem {
	t.Helper()
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	var problem models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
	return problem
}

func TestRouter_HealthCheck(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	var health models.Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.Equal(t, "test", health.Details["version"])
}

func TestRouter_ReadinessCheck(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/v1/ops/ready", http.NoBody))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_SystemStatus(t *testing.T) {
	env := newTestEnv(t)

	t.Run("requires auth", func(t *testing.T) {
		w := env.do(httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("admin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody)
		req.Header.Set("Authorization", "Bearer "+env.token(t, auth.RoleAdmin))

		w := env.do(req)

		require.Equal(t, http.StatusOK, w.Code)
		var status models.SystemStatus
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
		assert.Equal(t, models.HealthStatusOK, status.Status)
		assert.NotEmpty(t, status.Subsystems)
		require.NotNil(t, status.DistanceCache)
	})
}

func TestRouter_Nearby(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/locations/nearby?lat=47.6062&lon=-122.3321&radiusKm=50", http.NoBody)
	w := env.do(req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp models.NearbyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Items, 2)
	// Candidate order, not distance order.
	assert.Equal(t, "loc-tacoma", resp.Items[0].ID)
	assert.Equal(t, "loc-seattle", resp.Items[1].ID)
	assert.InDelta(t, 40.0, resp.Items[0].DistanceKm, 2.0)
}

func TestRouter_Nearby_SortedAndLimited(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/locations/nearby?lat=47.6062&lon=-122.3321&radiusKm=50&sort=distance&limit=1", http.NoBody)
	w := env.do(req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp models.NearbyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "loc-seattle", resp.Items[0].ID)
}

func TestRouter_Nearby_EmptyResultIsArray(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/locations/nearby?lat=0&lon=0&radiusKm=1", http.NoBody)
	w := env.do(req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"items":[]`)
}

func TestRouter_Nearby_ValidationErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name  string
		query string
		field string
	}{
		{"missing lat", "lon=0&radiusKm=5", "lat"},
		{"lat out of range", "lat=91&lon=0&radiusKm=5", "lat"},
		{"lon out of range", "lat=0&lon=-181&radiusKm=5", "lon"},
		{"not a number", "lat=abc&lon=0&radiusKm=5", "lat"},
		{"NaN latitude", "lat=NaN&lon=0&radiusKm=5", "lat"},
		{"negative radius", "lat=0&lon=0&radiusKm=-1", "radiusKm"},
		{"unknown sort", "lat=0&lon=0&radiusKm=5&sort=name", "sort"},
		{"negative limit", "lat=0&lon=0&radiusKm=5&limit=-2", "limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(httptest.NewRequest(http.MethodGet, "/v1/locations/nearby?"+tt.query, http.NoBody))

			require.Equal(t, http.StatusBadRequest, w.Code)
			problem := decodeProblem(t, w)
			assert.Equal(t, models.ProblemTypeValidation, problem.Type)
			assert.NotEmpty(t, problem.TraceID)
			require.NotEmpty(t, problem.Errors)
			assert.Equal(t, tt.field, problem.Errors[0].Field)
		})
	}
}

func TestRouter_Nearest(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/v1/locations/nearest?lat=47.30&lon=-122.45", http.NoBody))

	require.Equal(t, http.StatusOK, w.Code)
	var nearest location.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &nearest))
	assert.Equal(t, "loc-tacoma", nearest.ID)
}

func TestRouter_GetLocation(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/v1/locations/loc-seattle", http.NoBody))
	require.Equal(t, http.StatusOK, w.Code)
	var loc models.Location
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &loc))
	assert.Equal(t, "Kerry Park", loc.Title)

	w = env.do(httptest.NewRequest(http.MethodGet, "/v1/locations/loc-missing", http.NoBody))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_SyncLocationWeather(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodPost, "/v1/locations/loc-seattle/weather:sync", http.NoBody))

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "loc-seattle", body["locationId"])
	assert.Equal(t, string(weather.OriginRemote), body["origin"])
	assert.Equal(t, false, body["stale"])

	// Fresh data is reused on the second call.
	w = env.do(httptest.NewRequest(http.MethodPost, "/v1/locations/loc-seattle/weather:sync", http.NoBody))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, string(weather.OriginCache), body["origin"])
	assert.Equal(t, 1, env.source.fetches())
}

func TestRouter_SyncLocationWeather_Errors(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodPost, "/v1/locations/loc-missing/weather:sync", http.NoBody))
	assert.Equal(t, http.StatusNotFound, w.Code)

	env.source.setErr(errors.New("upstream down"))
	w = env.do(httptest.NewRequest(http.MethodPost, "/v1/locations/loc-tacoma/weather:sync", http.NoBody))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, models.ProblemTypeUnavailable, decodeProblem(t, w).Type)
}

func TestRouter_SyncLocationWeather_StaleFallback(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodPost, "/v1/locations/loc-seattle/weather:sync", http.NoBody))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Warning"))

	env.clock.advance(72 * time.Hour)
	env.source.setErr(errors.New("upstream down"))

	w = env.do(httptest.NewRequest(http.MethodPost, "/v1/locations/loc-seattle/weather:sync", http.NoBody))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.StaleWarning, w.Header().Get("Warning"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, string(weather.OriginFallback), body["origin"])
	assert.Equal(t, true, body["stale"])
}

func TestRouter_SyncAll(t *testing.T) {
	env := newTestEnv(t)

	t.Run("requires auth", func(t *testing.T) {
		w := env.do(httptest.NewRequest(http.MethodPost, "/v1/weather:syncAll", http.NoBody))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("requires admin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/weather:syncAll", http.NoBody)
		req.Header.Set("Authorization", "Bearer "+env.token(t))
		w := env.do(req)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("admin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/weather:syncAll", http.NoBody)
		req.Header.Set("Authorization", "Bearer "+env.token(t, auth.RoleAdmin))
		w := env.do(req)

		require.Equal(t, http.StatusOK, w.Code)
		var resp models.SyncAllResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 3, resp.Total)
		assert.Equal(t, 3, resp.Synced)
		assert.Equal(t, 3, resp.Succeeded)
		assert.Empty(t, resp.Errors)
	})
}

func TestRouter_RequestID_Generated(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody))

	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestRouter_RequestID_Preserved(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	req.Header.Set("X-Request-Id", "custom-request-id")
	w := env.do(req)

	assert.Equal(t, "custom-request-id", w.Header().Get("X-Request-Id"))
}

func TestRouter_NotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/v1/nonexistent", http.NoBody))

	assert.Equal(t, http.StatusNotFound, w.Code)
}
