package geo

import "math"

// boxPaddingDegrees widens every box edge slightly so rounding never drops a
// point lying exactly on the radius.
const boxPaddingDegrees = 1e-7

// BoundingBox is an axis-aligned latitude/longitude box.
// A box whose MinLon is greater than MaxLon wraps across the antimeridian.
type BoundingBox struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

// BoundingBoxAround returns a box that contains every point within radiusKm
// of center. The box is exact for a spherical cap (plus padding), opens to the
// full longitude range when the cap reaches a pole, and wraps at ±180°.
func BoundingBoxAround(center Coordinate, radiusKm float64) BoundingBox {
	angular := radiusKm / EarthRadiusKm
	if angular >= math.Pi {
		return BoundingBox{MinLat: -90, MaxLat: 90, MinLon: -180, MaxLon: 180}
	}

	spanLat := toDegrees(angular) + boxPaddingDegrees
	box := BoundingBox{
		MinLat: center.Latitude - spanLat,
		MaxLat: center.Latitude + spanLat,
		MinLon: -180,
		MaxLon: 180,
	}

	if box.MaxLat >= 90 || box.MinLat <= -90 {
		box.MinLat = math.Max(box.MinLat, -90)
		box.MaxLat = math.Min(box.MaxLat, 90)
		return box
	}

	ratio := math.Sin(angular) / math.Cos(toRadians(center.Latitude))
	if ratio >= 1 {
		return box
	}

	spanLon := toDegrees(math.Asin(ratio)) + boxPaddingDegrees
	if spanLon >= 180 {
		return box
	}

	box.MinLon = center.Longitude - spanLon
	box.MaxLon = center.Longitude + spanLon
	if box.MinLon < -180 {
		box.MinLon += 360
	}
	if box.MaxLon > 180 {
		box.MaxLon -= 360
	}

	return box
}

// Contains checks if a point is within the bounding box.
func (b BoundingBox) Contains(c Coordinate) bool {
	if c.Latitude < b.MinLat || c.Latitude > b.MaxLat {
		return false
	}
	if b.wraps() {
		return c.Longitude >= b.MinLon || c.Longitude <= b.MaxLon
	}
	return c.Longitude >= b.MinLon && c.Longitude <= b.MaxLon
}

// Center returns the center point of the bounding box.
func (b BoundingBox) Center() Coordinate {
	lon := (b.MinLon + b.MaxLon) / 2
	if b.wraps() {
		lon = (b.MinLon + b.MaxLon + 360) / 2
		if lon > 180 {
			lon -= 360
		}
	}
	return Coordinate{
		Latitude:  round6((b.MinLat + b.MaxLat) / 2),
		Longitude: round6(lon),
	}
}

func (b BoundingBox) wraps() bool {
	return b.MinLon > b.MaxLon
}
