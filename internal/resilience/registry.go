package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Breaker is anything exposing circuit breaker state.
type Breaker interface {
	State() gobreaker.State
	Counts() gobreaker.Counts
}

// DependencyHealth is the health of one guarded dependency.
type DependencyHealth struct {
	Name          string
	CircuitState  gobreaker.State
	Counts        gobreaker.Counts
	LastSuccessAt *time.Time
	LastFailureAt *time.Time

	// LastError is a short error message. Callers must only record errors
	// that carry no secrets.
	LastError string
}

// IsHealthy returns true while the circuit is closed.
func (h *DependencyHealth) IsHealthy() bool {
	return h.CircuitState == gobreaker.StateClosed
}

// IsDegraded returns true while the circuit is half-open.
func (h *DependencyHealth) IsDegraded() bool {
	return h.CircuitState == gobreaker.StateHalfOpen
}

// IsUnhealthy returns true while the circuit is open.
func (h *DependencyHealth) IsUnhealthy() bool {
	return h.CircuitState == gobreaker.StateOpen
}

// Registry tracks guarded dependencies for the ops endpoint.
type Registry struct {
	mu   sync.RWMutex
	deps map[string]*entry
}

type entry struct {
	breaker       Breaker
	lastSuccessAt *time.Time
	lastFailureAt *time.Time
	lastError     string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{deps: make(map[string]*entry)}
}

// Register adds or replaces a dependency.
func (r *Registry) Register(name string, b Breaker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deps[name] = &entry{breaker: b}
}

// Unregister removes a dependency.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.deps, name)
}

// RecordSuccess notes a successful call.
func (r *Registry) RecordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.deps[name]; ok {
		now := time.Now()
		e.lastSuccessAt = &now
	}
}

// RecordFailure notes a failed call.
func (r *Registry) RecordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.deps[name]; ok {
		now := time.Now()
		e.lastFailureAt = &now
		if err != nil {
			e.lastError = err.Error()
		}
	}
}

// Health returns one dependency's health, or nil if unknown.
func (r *Registry) Health(name string) *DependencyHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.deps[name]
	if !ok {
		return nil
	}
	return e.health(name)
}

// All returns every dependency's health sorted by name.
func (r *Registry) All() []*DependencyHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*DependencyHealth, 0, len(r.deps))
	for name, e := range r.deps {
		out = append(out, e.health(name))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Count returns the number of registered dependencies.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.deps)
}

func (e *entry) health(name string) *DependencyHealth {
	return &DependencyHealth{
		Name:          name,
		CircuitState:  e.breaker.State(),
		Counts:        e.breaker.Counts(),
		LastSuccessAt: e.lastSuccessAt,
		LastFailureAt: e.lastFailureAt,
		LastError:     e.lastError,
	}
}
