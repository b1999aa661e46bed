package observation

import (
	"context"
	"errors"
	"sync"
)

// ErrCorrupt is returned by Load when the stored document cannot be decoded.
var ErrCorrupt = errors.New("observations document corrupt")

// Repository persists the observation state.
type Repository interface {
	// Load returns the stored state. A missing store yields an empty state.
	Load(ctx context.Context) (State, error)

	// Save replaces the stored state.
	Save(ctx context.Context, state State) error
}

// MemoryRepository keeps the state in memory. Useful for tests and the
// "memory" backend.
type MemoryRepository struct {
	mu    sync.Mutex
	state State
	saves int
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{state: NewState()}
}

// Load returns a copy of the stored state.
func (r *MemoryRepository) Load(ctx context.Context) (State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Clone(), nil
}

// Save stores a copy of state.
func (r *MemoryRepository) Save(ctx context.Context, state State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state.Clone()
	r.saves++
	return nil
}

// Saves returns how many times Save was called.
func (r *MemoryRepository) Saves() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

// Ensure MemoryRepository implements Repository interface.
var _ Repository = (*MemoryRepository)(nil)
