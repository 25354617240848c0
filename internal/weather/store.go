package weather

import (
	"context"

	"github.com/shutterspot/shutterspot/internal/geo"
)

// RemoteSource fetches forecasts for a coordinate.
type RemoteSource interface {
	// Fetch returns normalized forecasts for the coordinate.
	Fetch(ctx context.Context, coord geo.Coordinate) (*FetchResult, error)

	// Name returns the source name for logging.
	Name() string
}

// Store persists Weather aggregates and exposes the locations to sync.
type Store interface {
	// GetByLocationID returns the aggregate for a location.
	// Returns ErrWeatherNotFound if none exists yet.
	GetByLocationID(ctx context.Context, locationID string) (*Weather, error)

	// Upsert writes the aggregate and its forecast lists in one transaction and
	// returns the stored value. An empty ID is assigned on first insert.
	Upsert(ctx context.Context, w *Weather) (*Weather, error)

	// GetActiveLocations lists every non-deleted location.
	GetActiveLocations(ctx context.Context) ([]LocationRef, error)

	// GetLocation returns one active location.
	// Returns ErrLocationNotFound if it doesn't exist or is deleted.
	GetLocation(ctx context.Context, locationID string) (*LocationRef, error)

	// DeleteByLocationID removes the whole aggregate. Missing aggregates are not an error.
	DeleteByLocationID(ctx context.Context, locationID string) error
}

// Locker serializes syncs per location.
type Locker interface {
	// Lock blocks until the key is held or ctx is done. The returned func releases it.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
