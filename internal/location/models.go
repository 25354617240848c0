// Package location serves photo locations and answers proximity queries.
package location

import (
	"context"
	"errors"
	"time"

	"github.com/shutterspot/shutterspot/internal/geo"
)

// Location errors.
var (
	ErrLocationNotFound = errors.New("location not found")
	ErrInvalidQuery     = errors.New("invalid location query")
)

// Location is a photo location.
type Location struct {
	ID          string
	Title       string
	Description string
	Coordinate  geo.Coordinate
	City        string
	State       string
	PhotoPath   string
	IsDeleted   bool
	CreatedAt   time.Time
}

// Summary is a location returned from a proximity query.
type Summary struct {
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	City       string         `json:"city,omitempty"`
	State      string         `json:"state,omitempty"`
	PhotoPath  string         `json:"photoPath,omitempty"`
	Coordinate geo.Coordinate `json:"coordinate"`
	DistanceKm float64        `json:"distanceKm"`
}

// Store reads locations.
type Store interface {
	// GetActiveCandidates lists every non-deleted location.
	GetActiveCandidates(ctx context.Context) ([]Location, error)

	// Get returns a location by ID, including deleted ones.
	// Returns ErrLocationNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*Location, error)
}

// Repository is a Store that can also write locations.
type Repository interface {
	Store

	// Create inserts a location, assigning ID and CreatedAt when empty.
	Create(ctx context.Context, loc *Location) error

	// SoftDelete marks a location deleted.
	SoftDelete(ctx context.Context, id string) error
}

func coordinateOf(l Location) geo.Coordinate {
	return l.Coordinate
}
