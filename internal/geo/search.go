package geo

// RadiusFilterThreshold is the candidate count above which radius filtering
// narrows with a bounding box before computing exact distances.
const RadiusFilterThreshold = 100

// Filter returns the items whose coordinate lies within radiusKm of origin,
// in their original order. coordOf extracts the coordinate of an item; cache
// may be nil. Large inputs are narrowed with BoundingBoxAround first; the box
// is a superset of the radius, so both paths return the same items.
func Filter[T any](origin Coordinate, items []T, radiusKm float64, coordOf func(T) Coordinate, cache *DistanceCache) []T {
	result := make([]T, 0)
	if len(items) == 0 || !(radiusKm >= 0) {
		return result
	}

	var box *BoundingBox
	if len(items) > RadiusFilterThreshold {
		b := BoundingBoxAround(origin, radiusKm)
		box = &b
	}

	for _, item := range items {
		c := coordOf(item)
		if box != nil && !box.Contains(c) {
			continue
		}
		if definitelyBeyond(origin, c, radiusKm) {
			continue
		}
		if cache.Distance(origin, c) <= radiusKm {
			result = append(result, item)
		}
	}

	return result
}

// WithinRadius returns the candidates within radiusKm of origin.
func WithinRadius(origin Coordinate, candidates []Coordinate, radiusKm float64, cache *DistanceCache) []Coordinate {
	return Filter(origin, candidates, radiusKm, identity, cache)
}

// Nearest returns the item closest to origin by linear scan.
// Ties go to the first item encountered. Empty input fails with ErrNoCandidates.
func Nearest[T any](origin Coordinate, items []T, coordOf func(T) Coordinate, cache *DistanceCache) (T, float64, error) {
	var best T
	if len(items) == 0 {
		return best, 0, ErrNoCandidates
	}

	best = items[0]
	bestDist := cache.Distance(origin, coordOf(items[0]))
	for _, item := range items[1:] {
		if d := cache.Distance(origin, coordOf(item)); d < bestDist {
			best = item
			bestDist = d
		}
	}

	return best, bestDist, nil
}

// FindNearest returns the candidate closest to origin.
func FindNearest(origin Coordinate, candidates []Coordinate, cache *DistanceCache) (Coordinate, error) {
	c, _, err := Nearest(origin, candidates, identity, cache)
	return c, err
}

// FindNearest returns the candidate closest to c, without memoization.
func (c Coordinate) FindNearest(candidates []Coordinate) (Coordinate, error) {
	return FindNearest(c, candidates, nil)
}

// WithinRadius returns the candidates within radiusKm of c, without memoization.
func (c Coordinate) WithinRadius(candidates []Coordinate, radiusKm float64) []Coordinate {
	return WithinRadius(c, candidates, radiusKm, nil)
}

func identity(c Coordinate) Coordinate { return c }
