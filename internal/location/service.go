package location

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/shutterspot/shutterspot/internal/geo"
)

// ServiceConfig holds configuration for the location service.
type ServiceConfig struct {
	// Store lists candidate locations (required).
	Store Store

	// Logger for service operations.
	Logger zerolog.Logger

	// Cache memoizes distances across queries (optional; nil disables memoization).
	Cache *geo.DistanceCache
}

// NearbyOptions refines a nearby query.
type NearbyOptions struct {
	// SortByDistance orders results nearest first instead of candidate order.
	SortByDistance bool

	// Limit caps the number of results. Zero means no limit.
	Limit int
}

// Service answers proximity queries over photo locations.
type Service struct {
	store  Store
	logger zerolog.Logger
	cache  *geo.DistanceCache
}

// NewService creates a new location service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		store:  cfg.Store,
		logger: cfg.Logger,
		cache:  cfg.Cache,
	}
}

// FindNearby returns the active locations within radiusKm of (lat, lon).
// Results keep the store's candidate order unless opts.SortByDistance is set.
func (s *Service) FindNearby(ctx context.Context, lat, lon, radiusKm float64, opts NearbyOptions) ([]Summary, error) {
	origin, err := geo.NewCoordinate(lat, lon)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(radiusKm) || math.IsInf(radiusKm, 0) || radiusKm < 0 {
		return nil, fmt.Errorf("%w: radius must be a non-negative number of kilometers", ErrInvalidQuery)
	}
	if opts.Limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", ErrInvalidQuery)
	}

	candidates, err := s.store.GetActiveCandidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing locations: %w", err)
	}

	matches := geo.Filter(origin, candidates, radiusKm, coordinateOf, s.cache)

	results := make([]Summary, 0, len(matches))
	for _, l := range matches {
		results = append(results, toSummary(l, s.cache.Distance(origin, l.Coordinate)))
	}

	if opts.SortByDistance {
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].DistanceKm < results[j].DistanceKm
		})
	}
	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}

	s.logger.Debug().
		Str("origin", origin.String()).
		Float64("radius_km", radiusKm).
		Int("candidates", len(candidates)).
		Int("matches", len(results)).
		Msg("nearby query")

	return results, nil
}

// FindNearest returns the active location closest to (lat, lon).
// Returns ErrLocationNotFound when there are no active locations.
func (s *Service) FindNearest(ctx context.Context, lat, lon float64) (*Summary, error) {
	origin, err := geo.NewCoordinate(lat, lon)
	if err != nil {
		return nil, err
	}

	candidates, err := s.store.GetActiveCandidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing locations: %w", err)
	}

	best, dist, err := geo.Nearest(origin, candidates, coordinateOf, s.cache)
	if err != nil {
		if errors.Is(err, geo.ErrNoCandidates) {
			return nil, fmt.Errorf("%w: %w", ErrLocationNotFound, err)
		}
		return nil, err
	}

	summary := toSummary(best, dist)
	return &summary, nil
}

// Get returns an active location by ID.
func (s *Service) Get(ctx context.Context, id string) (*Location, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: location id is required", ErrInvalidQuery)
	}

	loc, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if loc.IsDeleted {
		return nil, ErrLocationNotFound
	}
	return loc, nil
}

// CacheStats reports the shared distance cache's effectiveness.
func (s *Service) CacheStats() geo.CacheStats {
	return s.cache.Stats()
}

func toSummary(l Location, distanceKm float64) Summary {
	return Summary{
		ID:         l.ID,
		Title:      l.Title,
		City:       l.City,
		State:      l.State,
		PhotoPath:  l.PhotoPath,
		Coordinate: l.Coordinate,
		DistanceKm: distanceKm,
	}
}
