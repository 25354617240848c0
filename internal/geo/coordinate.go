// Package geo provides coordinate math for location and weather lookups:
// great-circle distance, bearing, radius filtering and a bounded distance memo.
package geo

import (
	"errors"
	"fmt"
	"math"
)

const (
	// EarthRadiusKm is the mean Earth radius used by all distance math.
	EarthRadiusKm = 6371.0

	// coordinatePrecision rounds to 6 decimals (~0.11 m).
	coordinatePrecision = 1e6
)

// Coordinate errors.
var (
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	ErrNoCandidates      = errors.New("no candidate coordinates")
)

// ValidationError reports which coordinate bound was violated.
type ValidationError struct {
	Field string
	Value float64
	Min   float64
	Max   float64
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %v outside [%g, %g]", e.Field, e.Value, e.Min, e.Max)
}

// Unwrap lets callers match with errors.Is(err, ErrInvalidCoordinate).
func (e *ValidationError) Unwrap() error {
	return ErrInvalidCoordinate
}

// Coordinate is an immutable latitude/longitude pair in degrees.
// Values are rounded to 6 decimals on construction, so == and map keys are stable.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// NewCoordinate validates and normalizes a latitude/longitude pair.
// Out-of-range values are rejected, never clamped.
func NewCoordinate(lat, lon float64) (Coordinate, error) {
	if !(lat >= -90 && lat <= 90) {
		return Coordinate{}, &ValidationError{Field: "latitude", Value: lat, Min: -90, Max: 90}
	}
	if !(lon >= -180 && lon <= 180) {
		return Coordinate{}, &ValidationError{Field: "longitude", Value: lon, Min: -180, Max: 180}
	}

	return Coordinate{
		Latitude:  round6(lat),
		Longitude: round6(lon),
	}, nil
}

// MustCoordinate is NewCoordinate for literals known to be valid.
func MustCoordinate(lat, lon float64) Coordinate {
	c, err := NewCoordinate(lat, lon)
	if err != nil {
		panic(err)
	}
	return c
}

// Equal reports whether both coordinates match at 6-decimal precision.
func (c Coordinate) Equal(other Coordinate) bool {
	return round6(c.Latitude) == round6(other.Latitude) &&
		round6(c.Longitude) == round6(other.Longitude)
}

// Key returns a stable string form usable as a cache or map key.
func (c Coordinate) Key() string {
	return fmt.Sprintf("%.6f,%.6f", round6(c.Latitude), round6(c.Longitude))
}

// String implements fmt.Stringer.
func (c Coordinate) String() string {
	return c.Key()
}

// DistanceTo returns the great-circle (Haversine) distance in kilometers.
func (c Coordinate) DistanceTo(other Coordinate) float64 {
	if c.Equal(other) {
		return 0
	}

	lat1 := toRadians(c.Latitude)
	lat2 := toRadians(other.Latitude)
	dLat := lat2 - lat1
	dLon := toRadians(other.Longitude - c.Longitude)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon

	return 2 * EarthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// IsWithinDistance reports whether DistanceTo(other) <= maxKm.
// Nearby pairs that are clearly too far apart along the meridian are rejected
// without evaluating the full formula.
func (c Coordinate) IsWithinDistance(other Coordinate, maxKm float64) bool {
	if definitelyBeyond(c, other, maxKm) {
		return false
	}
	return c.DistanceTo(other) <= maxKm
}

// BearingTo returns the initial great-circle bearing to other in [0, 360).
func (c Coordinate) BearingTo(other Coordinate) float64 {
	lat1 := toRadians(c.Latitude)
	lat2 := toRadians(other.Latitude)
	dLon := toRadians(other.Longitude - c.Longitude)

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)

	return math.Mod(toDegrees(math.Atan2(y, x))+360, 360)
}

// kmPerMeridianDegree is the arc length of one degree of latitude on the sphere.
// Any great-circle path is at least this long per degree of latitude crossed.
const kmPerMeridianDegree = EarthRadiusKm * math.Pi / 180

// meridianSlackKm absorbs rounding so the bound never rejects a pair the
// full formula would accept.
const meridianSlackKm = 1e-9

// definitelyBeyond is a cheap lower-bound test that may only answer "too far".
// It only engages when both deltas are under one degree.
func definitelyBeyond(a, b Coordinate, maxKm float64) bool {
	dLat := math.Abs(a.Latitude - b.Latitude)
	dLon := math.Abs(a.Longitude - b.Longitude)
	if dLat >= 1 || dLon >= 1 || a.Equal(b) {
		return false
	}
	return dLat*kmPerMeridianDegree > maxKm+meridianSlackKm
}

func round6(v float64) float64 {
	return math.Round(v*coordinatePrecision) / coordinatePrecision
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
