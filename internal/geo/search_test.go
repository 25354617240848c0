package geo_test

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shutterspot/shutterspot/internal/geo"
)

func TestWithinRadius_NearbyScenario(t *testing.T) {
	candidates := []geo.Coordinate{seattle, tacoma, la}

	got := seattle.WithinRadius(candidates, 50)

	assert.Equal(t, []geo.Coordinate{seattle, tacoma}, got)
}

func TestWithinRadius_EmptyAndInvalidRadius(t *testing.T) {
	assert.Empty(t, geo.WithinRadius(seattle, nil, 50, nil))
	assert.Empty(t, geo.WithinRadius(seattle, []geo.Coordinate{seattle}, -1, nil))
	assert.Equal(t, []geo.Coordinate{seattle}, geo.WithinRadius(seattle, []geo.Coordinate{seattle}, 0, nil))
}

// Chunks of at most RadiusFilterThreshold items take the direct path, so
// comparing against them checks the bounding-box path yields the same set.
func TestFilter_BoundingBoxPathMatchesDirectPath(t *testing.T) {
	origins := map[string]geo.Coordinate{
		"mid latitude": seattle,
		"antimeridian": geo.MustCoordinate(-16.5, 179.8),
		"near pole":    geo.MustCoordinate(88.9, 45),
		"equator":      geo.MustCoordinate(0, 0),
	}
	radii := []float64{0.5, 25, 120, 800, 25000}

	for name, origin := range origins {
		rng := rand.New(rand.NewSource(11))
		candidates := make([]geo.Coordinate, 0, 600)
		for i := 0; i < 600; i++ {
			candidates = append(candidates, wrap(origin, rng.Float64()*8-4, rng.Float64()*8-4))
		}
		candidates = append(candidates, origin)

		for _, radius := range radii {
			t.Run(fmt.Sprintf("%s/%gkm", name, radius), func(t *testing.T) {
				require.Greater(t, len(candidates), geo.RadiusFilterThreshold)
				boxed := geo.WithinRadius(origin, candidates, radius, nil)

				var direct []geo.Coordinate
				for start := 0; start < len(candidates); start += geo.RadiusFilterThreshold {
					end := min(start+geo.RadiusFilterThreshold, len(candidates))
					direct = append(direct, geo.WithinRadius(origin, candidates[start:end], radius, nil)...)
				}

				assert.Equal(t, len(direct), len(boxed), "radius %v", radius)
				assert.Equal(t, direct, boxed, "radius %v", radius)
				for _, c := range boxed {
					assert.LessOrEqual(t, origin.DistanceTo(c), radius)
				}
			})
		}
	}
}

func TestFilter_PreservesOrderAndItems(t *testing.T) {
	type place struct {
		name  string
		coord geo.Coordinate
	}
	places := []place{
		{"la", la},
		{"tacoma", tacoma},
		{"seattle", seattle},
	}

	got := geo.Filter(seattle, places, 50, func(p place) geo.Coordinate { return p.coord }, nil)

	require.Len(t, got, 2)
	assert.Equal(t, "tacoma", got[0].name)
	assert.Equal(t, "seattle", got[1].name)
}

func TestFindNearest(t *testing.T) {
	t.Run("picks the closest", func(t *testing.T) {
		got, err := seattle.FindNearest([]geo.Coordinate{la, tacoma})
		require.NoError(t, err)
		assert.Equal(t, tacoma, got)
	})

	t.Run("ties go to the first candidate", func(t *testing.T) {
		origin := geo.MustCoordinate(0, 0)
		east := geo.MustCoordinate(0, 1)
		west := geo.MustCoordinate(0, -1)

		got, err := origin.FindNearest([]geo.Coordinate{west, east})
		require.NoError(t, err)
		assert.Equal(t, west, got)

		got, err = origin.FindNearest([]geo.Coordinate{east, west})
		require.NoError(t, err)
		assert.Equal(t, east, got)
	})

	t.Run("empty input fails", func(t *testing.T) {
		_, err := seattle.FindNearest(nil)
		assert.True(t, errors.Is(err, geo.ErrNoCandidates))
	})

	t.Run("reports the distance", func(t *testing.T) {
		got, d, err := geo.Nearest(seattle, []geo.Coordinate{la, tacoma}, func(c geo.Coordinate) geo.Coordinate { return c }, nil)
		require.NoError(t, err)
		assert.Equal(t, tacoma, got)
		assert.InDelta(t, seattle.DistanceTo(tacoma), d, 1e-12)
	})
}

func TestBoundingBoxAround(t *testing.T) {
	t.Run("contains the center", func(t *testing.T) {
		box := geo.BoundingBoxAround(seattle, 10)
		assert.True(t, box.Contains(seattle))
		assert.False(t, box.Contains(la))
		assert.InDelta(t, seattle.Latitude, box.Center().Latitude, 1e-6)
		assert.InDelta(t, seattle.Longitude, box.Center().Longitude, 1e-6)
	})

	t.Run("wraps the antimeridian", func(t *testing.T) {
		box := geo.BoundingBoxAround(geo.MustCoordinate(0, 179.9), 50)
		assert.Greater(t, box.MinLon, box.MaxLon)
		assert.True(t, box.Contains(geo.MustCoordinate(0, -179.9)))
		assert.True(t, box.Contains(geo.MustCoordinate(0, 179.8)))
		assert.False(t, box.Contains(geo.MustCoordinate(0, 0)))
		assert.InDelta(t, 179.9, box.Center().Longitude, 1e-6)
	})

	t.Run("opens longitude when the pole is inside", func(t *testing.T) {
		box := geo.BoundingBoxAround(geo.MustCoordinate(89.9, 0), 50)
		assert.Equal(t, -180.0, box.MinLon)
		assert.Equal(t, 180.0, box.MaxLon)
		assert.Equal(t, 90.0, box.MaxLat)
		assert.True(t, box.Contains(geo.MustCoordinate(89.95, 180)))
	})

	t.Run("whole globe for huge radius", func(t *testing.T) {
		box := geo.BoundingBoxAround(seattle, 30000)
		assert.True(t, box.Contains(geo.MustCoordinate(-90, -180)))
	})
}

// wrap offsets c and folds the result back into valid ranges.
func wrap(c geo.Coordinate, dLat, dLon float64) geo.Coordinate {
	lat := c.Latitude + dLat
	if lat > 90 {
		lat = 180 - lat
	}
	if lat < -90 {
		lat = -180 - lat
	}
	lon := c.Longitude + dLon
	if lon > 180 {
		lon -= 360
	}
	if lon < -180 {
		lon += 360
	}
	return geo.MustCoordinate(lat, lon)
}
