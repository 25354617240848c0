package location

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing. Production should use PostgresRepository or SQLiteRepository.
type InMemoryRepository struct {
	mu        sync.RWMutex
	locations map[string]*Location
	seq       int
	order     map[string]int
}

// NewInMemoryRepository creates a new in-memory location repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		locations: make(map[string]*Location),
		order:     make(map[string]int),
	}
}

// Create stores a copy of loc.
func (r *InMemoryRepository) Create(_ context.Context, loc *Location) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if loc.ID == "" {
		loc.ID = uuid.NewString()
	}
	if loc.CreatedAt.IsZero() {
		loc.CreatedAt = time.Now().UTC()
	}

	cpy := *loc
	r.locations[loc.ID] = &cpy
	if _, ok := r.order[loc.ID]; !ok {
		r.seq++
		r.order[loc.ID] = r.seq
	}
	return nil
}

// Get retrieves a location by ID.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.locations[id]
	if !ok {
		return nil, ErrLocationNotFound
	}

	// Return a copy
	cpy := *l
	return &cpy, nil
}

// GetActiveCandidates lists non-deleted locations in insertion order.
func (r *InMemoryRepository) GetActiveCandidates(_ context.Context) ([]Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Location, 0, len(r.locations))
	for _, l := range r.locations {
		if !l.IsDeleted {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return r.order[out[i].ID] < r.order[out[j].ID]
	})
	return out, nil
}

// SoftDelete marks a location deleted.
func (r *InMemoryRepository) SoftDelete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.locations[id]
	if !ok {
		return ErrLocationNotFound
	}
	l.IsDeleted = true
	return nil
}
