package geo

import (
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultDistanceCacheSize bounds the distance memo.
const DefaultDistanceCacheSize = 100

// DistanceCache memoizes great-circle distances for unordered coordinate pairs.
// It is safe for concurrent use. A nil *DistanceCache computes every distance
// directly, so callers can disable memoization by passing nil.
type DistanceCache struct {
	entries *lru.Cache[pairKey, float64]
	hits    atomic.Int64
	misses  atomic.Int64
}

// CacheStats is a point-in-time view of cache effectiveness.
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Size   int   `json:"size"`
}

type pairKey struct {
	a Coordinate
	b Coordinate
}

// NewDistanceCache creates a cache holding at most size pairs.
// A non-positive size uses DefaultDistanceCacheSize.
func NewDistanceCache(size int) (*DistanceCache, error) {
	if size <= 0 {
		size = DefaultDistanceCacheSize
	}

	entries, err := lru.New[pairKey, float64](size)
	if err != nil {
		return nil, fmt.Errorf("creating distance cache: %w", err)
	}

	return &DistanceCache{entries: entries}, nil
}

// Distance returns a.DistanceTo(b), consulting the memo first.
func (c *DistanceCache) Distance(a, b Coordinate) float64 {
	if c == nil {
		return a.DistanceTo(b)
	}

	key := newPairKey(a, b)
	if d, ok := c.entries.Get(key); ok {
		c.hits.Add(1)
		return d
	}

	c.misses.Add(1)
	d := a.DistanceTo(b)
	c.entries.Add(key, d)
	return d
}

// Purge drops every memoized entry. Results are unaffected.
func (c *DistanceCache) Purge() {
	if c == nil {
		return
	}
	c.entries.Purge()
}

// Len returns the number of memoized pairs.
func (c *DistanceCache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}

// Stats returns hit/miss counters and the current size.
func (c *DistanceCache) Stats() CacheStats {
	if c == nil {
		return CacheStats{}
	}
	return CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Size:   c.entries.Len(),
	}
}

// newPairKey orders the pair so (a, b) and (b, a) share one entry.
// Distance is exactly symmetric, so either order yields the same value.
func newPairKey(a, b Coordinate) pairKey {
	if b.Latitude < a.Latitude || (b.Latitude == a.Latitude && b.Longitude < a.Longitude) {
		a, b = b, a
	}
	return pairKey{a: a, b: b}
}
