package models

import (
	"github.com/shutterspot/shutterspot/internal/geo"
	"github.com/shutterspot/shutterspot/internal/location"
)

// NearbyQuery holds the query parameters of GET /v1/locations/nearby.
// Pointers distinguish a missing parameter from zero.
type NearbyQuery struct {
	Lat      *float64 `query:"lat" validate:"required,gte=-90,lte=90"`
	Lon      *float64 `query:"lon" validate:"required,gte=-180,lte=180"`
	RadiusKm *float64 `query:"radiusKm" validate:"required,gte=0,lte=20038"`
	Sort     string   `query:"sort" validate:"omitempty,oneof=distance"`
	Limit    int      `query:"limit" validate:"gte=0,lte=500"`
}

// PointQuery holds the lat/lon query parameters of GET /v1/locations/nearest.
type PointQuery struct {
	Lat *float64 `query:"lat" validate:"required,gte=-90,lte=90"`
	Lon *float64 `query:"lon" validate:"required,gte=-180,lte=180"`
}

// NearbyResponse is returned by GET /v1/locations/nearby.
type NearbyResponse struct {
	Origin   geo.Coordinate     `json:"origin"`
	RadiusKm float64            `json:"radiusKm"`
	Count    int                `json:"count"`
	Items    []location.Summary `json:"items"`
}

// Location is the public representation of a photo location.
type Location struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Coordinate  geo.Coordinate `json:"coordinate"`
	City        string         `json:"city,omitempty"`
	State       string         `json:"state,omitempty"`
	PhotoPath   string         `json:"photoPath,omitempty"`
	CreatedAt   Timestamp      `json:"createdAt"`
}

// NewLocation maps a domain location.
func NewLocation(l *location.Location) Location {
	return Location{
		ID:          l.ID,
		Title:       l.Title,
		Description: l.Description,
		Coordinate:  l.Coordinate,
		City:        l.City,
		State:       l.State,
		PhotoPath:   l.PhotoPath,
		CreatedAt:   Timestamp(l.CreatedAt),
	}
}
