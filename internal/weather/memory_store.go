package weather

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// InMemoryStore is an in-memory implementation of Store.
// This is intended for testing. Production should use PostgresStore or SQLiteStore.
type InMemoryStore struct {
	mu        sync.RWMutex
	weather   map[string]*Weather // keyed by location ID
	locations map[string]inMemoryLocation
}

type inMemoryLocation struct {
	ref    LocationRef
	active bool
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		weather:   make(map[string]*Weather),
		locations: make(map[string]inMemoryLocation),
	}
}

// PutLocation registers a location. Inactive locations behave as deleted.
func (s *InMemoryStore) PutLocation(ref LocationRef, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locations[ref.ID] = inMemoryLocation{ref: ref, active: active}
}

// GetByLocationID returns a copy of the stored aggregate.
func (s *InMemoryStore) GetByLocationID(_ context.Context, locationID string) (*Weather, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.weather[locationID]
	if !ok {
		return nil, ErrWeatherNotFound
	}
	return w.Clone(), nil
}

// Upsert stores a copy of w, assigning an ID on first insert.
func (s *InMemoryStore) Upsert(ctx context.Context, w *Weather) (*Weather, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := w.Clone()
	if existing, ok := s.weather[w.LocationID]; ok {
		stored.ID = existing.ID
	} else if stored.ID == "" {
		stored.ID = uuid.NewString()
	}

	s.weather[w.LocationID] = stored
	return stored.Clone(), nil
}

// GetActiveLocations lists active locations ordered by ID.
func (s *InMemoryStore) GetActiveLocations(_ context.Context) ([]LocationRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	refs := make([]LocationRef, 0, len(s.locations))
	for _, l := range s.locations {
		if l.active {
			refs = append(refs, l.ref)
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs, nil
}

// GetLocation returns an active location.
func (s *InMemoryStore) GetLocation(_ context.Context, locationID string) (*LocationRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.locations[locationID]
	if !ok || !l.active {
		return nil, ErrLocationNotFound
	}
	ref := l.ref
	return &ref, nil
}

// DeleteByLocationID removes the aggregate for a location.
func (s *InMemoryStore) DeleteByLocationID(_ context.Context, locationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.weather, locationID)
	return nil
}
