package weather

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/shutterspot/shutterspot/internal/synclock"
)

const instrumentationName = "github.com/shutterspot/shutterspot/internal/weather"

// Sync outcomes recorded on spans and metrics.
const (
	outcomeCache    = "cache"
	outcomeRemote   = "remote"
	outcomeFallback = "fallback"
	outcomeError    = "error"
)

// ServiceConfig holds configuration for the weather sync service.
type ServiceConfig struct {
	// Store persists aggregates (required).
	Store Store

	// Source fetches remote forecasts (required).
	Source RemoteSource

	// Logger for service operations.
	Logger zerolog.Logger

	// Policy decides when cached data is reused (default: 48h / 5 days).
	Policy StalenessPolicy

	// Locker serializes syncs per location (default: in-process keyed mutex).
	Locker Locker

	// WindDirection controls how wind direction is presented (default: WindFrom).
	WindDirection WindDirectionMode

	// Concurrency bounds parallel syncs in SyncAll (default: 4).
	Concurrency int

	// SyncTimeout bounds a single location's sync inside SyncAll (default: 30 seconds).
	SyncTimeout time.Duration

	// Now overrides the clock (default: time.Now).
	Now func() time.Time
}

// Service keeps per-location weather aggregates in sync with a remote source.
type Service struct {
	store       Store
	source      RemoteSource
	logger      zerolog.Logger
	policy      StalenessPolicy
	locker      Locker
	wind        WindDirectionMode
	concurrency int
	syncTimeout time.Duration
	now         func() time.Time

	tracer       trace.Tracer
	syncTotal    metric.Int64Counter
	syncDuration metric.Float64Histogram
}

// NewService creates a new weather sync service.
func NewService(cfg ServiceConfig) *Service {
	locker := cfg.Locker
	if locker == nil {
		locker = synclock.NewKeyedMutex()
	}

	wind := cfg.WindDirection
	if wind == "" {
		wind = WindFrom
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	syncTimeout := cfg.SyncTimeout
	if syncTimeout == 0 {
		syncTimeout = 30 * time.Second
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	s := &Service{
		store:       cfg.Store,
		source:      cfg.Source,
		logger:      cfg.Logger,
		policy:      cfg.Policy.withDefaults(),
		locker:      locker,
		wind:        wind,
		concurrency: concurrency,
		syncTimeout: syncTimeout,
		now:         now,
		tracer:      otel.Tracer(instrumentationName),
	}
	s.initMetrics()
	return s
}

func (s *Service) initMetrics() {
	meter := otel.Meter(instrumentationName)

	total, err := meter.Int64Counter(
		"weather.sync.total",
		metric.WithDescription("Number of location weather syncs by outcome"),
		metric.WithUnit("{sync}"),
	)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to create sync counter, using noop")
		total, _ = noop.NewMeterProvider().Meter(instrumentationName).Int64Counter("weather.sync.total")
	}

	duration, err := meter.Float64Histogram(
		"weather.sync.duration",
		metric.WithDescription("Duration of location weather syncs in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to create sync histogram, using noop")
		duration, _ = noop.NewMeterProvider().Meter(instrumentationName).Float64Histogram("weather.sync.duration")
	}

	s.syncTotal = total
	s.syncDuration = duration
}

// Policy returns the effective staleness policy.
func (s *Service) Policy() StalenessPolicy {
	return s.policy
}

// SyncLocationWeather returns up-to-date weather for a location, refreshing
// and persisting it when the cached aggregate is missing or stale.
//
// When the refresh fails and a cached aggregate exists, the cached data is
// returned with Origin set to OriginFallback. Without cached data the error
// wraps ErrWeatherUnavailable. Context cancellation is returned unchanged.
func (s *Service) SyncLocationWeather(ctx context.Context, locationID string) (*View, error) {
	if strings.TrimSpace(locationID) == "" {
		return nil, &ValidationError{Field: "locationId", Rule: "required"}
	}

	ctx, span := s.tracer.Start(ctx, "weather.SyncLocationWeather",
		trace.WithAttributes(
			attribute.String("location.id", locationID),
			attribute.String("weather.source", s.source.Name()),
		),
	)
	defer span.End()

	start := time.Now()
	view, err := s.sync(ctx, span, locationID)

	outcome := outcomeError
	if err == nil {
		outcome = string(view.Origin)
	} else {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("sync.outcome", outcome))

	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	s.syncTotal.Add(ctx, 1, attrs)
	s.syncDuration.Record(ctx, time.Since(start).Seconds(), attrs)

	return view, err
}

func (s *Service) sync(ctx context.Context, span trace.Span, locationID string) (*View, error) {
	unlock, err := s.locker.Lock(ctx, locationID)
	if err != nil {
		if ctxErr := callerErr(ctx); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("acquiring sync lock: %w", err)
	}
	defer unlock()

	cached, err := s.store.GetByLocationID(ctx, locationID)
	switch {
	case errors.Is(err, ErrWeatherNotFound):
		cached = nil
	case err != nil:
		if ctxErr := callerErr(ctx); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: loading weather: %w", ErrPersistence, err)
	}

	freshness := s.policy.Decide(cached, s.now())
	span.SetAttributes(attribute.String("weather.freshness", string(freshness)))

	if freshness == FreshnessFresh {
		s.logger.Debug().
			Str("location_id", locationID).
			Time("last_update", cached.LastUpdate).
			Msg("serving cached weather")
		return newView(cached, OriginCache, s.wind), nil
	}

	ref, err := s.resolveLocation(ctx, cached, locationID)
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("location_id", locationID).
		Str("freshness", string(freshness)).
		Str("provider", s.source.Name()).
		Msg("fetching weather from provider")

	merged, err := s.fetchAndMerge(ctx, cached, ref)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		if ctxErr := callerErr(ctx); ctxErr != nil {
			return nil, ctxErr
		}
		if cause := context.Cause(ctx); errors.Is(cause, errSyncTimeout) {
			err = fmt.Errorf("%w: %w", cause, err)
		}
		return s.fallback(cached, locationID, err)
	}

	stored, err := s.store.Upsert(ctx, merged)
	if err != nil {
		if ctxErr := callerErr(ctx); ctxErr != nil {
			return nil, ctxErr
		}
		s.logger.Error().Err(err).
			Str("location_id", locationID).
			Msg("failed to persist weather")
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	s.logger.Info().
		Str("location_id", locationID).
		Str("weather_id", stored.ID).
		Int("daily", len(stored.DailyForecasts)).
		Int("hourly", len(stored.HourlyForecasts)).
		Msg("weather synced")

	return newView(stored, OriginRemote, s.wind), nil
}

// resolveLocation finds the coordinate to fetch for. The location's current
// coordinate wins so edits are picked up; when it can't be loaded a cached
// aggregate keeps its own.
func (s *Service) resolveLocation(ctx context.Context, cached *Weather, locationID string) (LocationRef, error) {
	ref, err := s.store.GetLocation(ctx, locationID)
	if err == nil {
		return *ref, nil
	}
	if ctxErr := callerErr(ctx); ctxErr != nil {
		return LocationRef{}, ctxErr
	}
	if cached != nil {
		if !errors.Is(err, ErrLocationNotFound) {
			s.logger.Warn().Err(err).
				Str("location_id", locationID).
				Msg("failed to load location, using cached coordinate")
		}
		return LocationRef{ID: cached.LocationID, Coordinate: cached.Coordinate}, nil
	}
	if errors.Is(err, ErrLocationNotFound) {
		return LocationRef{}, err
	}
	return LocationRef{}, fmt.Errorf("%w: loading location: %w", ErrPersistence, err)
}

func (s *Service) fetchAndMerge(ctx context.Context, cached *Weather, ref LocationRef) (*Weather, error) {
	res, err := s.source.Fetch(ctx, ref.Coordinate)
	if err != nil {
		return nil, err
	}

	fetchedAt := s.now()
	if cached != nil {
		return cached.Relocate(ref.Coordinate).Refresh(res, fetchedAt)
	}
	return NewWeather(ref, res, fetchedAt)
}

func (s *Service) fallback(cached *Weather, locationID string, cause error) (*View, error) {
	if cached == nil {
		s.logger.Error().Err(cause).
			Str("location_id", locationID).
			Str("provider", s.source.Name()).
			Msg("failed to fetch weather and no cached data available")
		return nil, fmt.Errorf("%w: %s", ErrWeatherUnavailable, cause.Error())
	}

	s.logger.Warn().Err(cause).
		Str("location_id", locationID).
		Time("last_update", cached.LastUpdate).
		Msg("serving stale weather data due to provider error")
	return newView(cached, OriginFallback, s.wind), nil
}

// Invalidate deletes a location's aggregate so the next sync refetches it.
func (s *Service) Invalidate(ctx context.Context, locationID string) error {
	if strings.TrimSpace(locationID) == "" {
		return &ValidationError{Field: "locationId", Rule: "required"}
	}

	unlock, err := s.locker.Lock(ctx, locationID)
	if err != nil {
		return fmt.Errorf("acquiring sync lock: %w", err)
	}
	defer unlock()

	if err := s.store.DeleteByLocationID(ctx, locationID); err != nil {
		return fmt.Errorf("%w: deleting weather: %w", ErrPersistence, err)
	}

	s.logger.Info().Str("location_id", locationID).Msg("weather invalidated")
	return nil
}

// errSyncTimeout is the cause of a per-location deadline set by
// SyncLocations.
var errSyncTimeout = errors.New("location sync timed out")

// callerErr returns ctx's error unless ctx only expired through its
// per-location sync deadline, which counts as a fetch failure.
func callerErr(ctx context.Context) error {
	err := ctx.Err()
	if err != nil && errors.Is(context.Cause(ctx), errSyncTimeout) {
		return nil
	}
	return err
}

// BatchResult summarizes a batch sync.
type BatchResult struct {
	StartTime time.Time
	Duration  time.Duration
	Total     int
	Synced    int
	FromCache int
	Fallback  int
	Failed    int
	Errors    []SyncError
}

// SyncError records a failed location in a batch.
type SyncError struct {
	LocationID string
	Error      string
}

// Succeeded counts locations that ended with fresh data, from cache or remote.
func (r *BatchResult) Succeeded() int {
	return r.Synced + r.FromCache
}

// SyncAll syncs every active location and returns how many ended with fresh
// data. Individual failures are logged and don't abort the batch; fallbacks
// are not counted. The error is non-nil only when the active locations can't
// be listed or ctx is done.
func (s *Service) SyncAll(ctx context.Context) (int, error) {
	result, err := s.SyncActive(ctx)
	if err != nil {
		return 0, err
	}
	return result.Succeeded(), ctx.Err()
}

// SyncActive is SyncAll with the full batch result.
func (s *Service) SyncActive(ctx context.Context) (*BatchResult, error) {
	refs, err := s.store.GetActiveLocations(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: listing active locations: %w", ErrPersistence, err)
	}

	ids := make([]string, len(refs))
	for i, ref := range refs {
		ids[i] = ref.ID
	}
	return s.SyncLocations(ctx, ids), nil
}

// SyncLocations syncs the given locations with bounded concurrency.
func (s *Service) SyncLocations(ctx context.Context, locationIDs []string) *BatchResult {
	result := &BatchResult{
		StartTime: time.Now(),
		Total:     len(locationIDs),
	}

	s.logger.Info().
		Int("total_locations", result.Total).
		Int("concurrency", s.concurrency).
		Msg("starting weather sync")

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.concurrency)

	for _, id := range locationIDs {
		if ctx.Err() != nil {
			break
		}

		g.Go(func() error {
			locCtx, cancel := context.WithTimeoutCause(ctx, s.syncTimeout, errSyncTimeout)
			defer cancel()

			view, err := s.SyncLocationWeather(locCtx, id)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				s.logger.Warn().Err(err).Str("location_id", id).Msg("location sync failed")
				result.Failed++
				result.Errors = append(result.Errors, SyncError{LocationID: id, Error: err.Error()})
				return nil
			}

			switch view.Origin {
			case OriginRemote:
				result.Synced++
			case OriginCache:
				result.FromCache++
			case OriginFallback:
				result.Fallback++
			}
			return nil
		})
	}
	_ = g.Wait()

	result.Duration = time.Since(result.StartTime)

	s.logger.Info().
		Dur("duration", result.Duration).
		Int("synced", result.Synced).
		Int("from_cache", result.FromCache).
		Int("fallback", result.Fallback).
		Int("failed", result.Failed).
		Msg("weather sync completed")

	return result
}
