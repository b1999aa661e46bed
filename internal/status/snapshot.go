package status

import (
	"sync/atomic"
	"time"
)

// ServiceView is one service's entry in a published snapshot.
type ServiceView struct {
	ID          string
	Name        string
	Group       string
	CheckType   string
	URL         string
	Icon        string
	Description string
	Status      Status
	LatencyMs   *int
	Detail      string
	LastChecked time.Time
}

// Counts tallies services per status.
type Counts struct {
	Healthy  int `json:"healthy"`
	Degraded int `json:"degraded"`
	Down     int `json:"down"`
	Unknown  int `json:"unknown"`
	Total    int `json:"total"`
}

// Snapshot is an immutable, fully built view of one refresh. Callers must not
// mutate a snapshot after handing it to a Cache.
type Snapshot struct {
	GeneratedAt time.Time
	RefreshedAt time.Time
	Duration    time.Duration
	Overall     Status
	Services    []ServiceView

	// Placeholder marks the all-unknown snapshot published before the first
	// refresh completes.
	Placeholder bool
}

// NewSnapshot builds a snapshot from the cycle's views and derives the
// overall status.
func NewSnapshot(services []ServiceView, refreshedAt, generatedAt time.Time, duration time.Duration) *Snapshot {
	statuses := make([]Status, len(services))
	for i, s := range services {
		statuses[i] = s.Status
	}
	return &Snapshot{
		GeneratedAt: generatedAt,
		RefreshedAt: refreshedAt,
		Duration:    duration,
		Overall:     Overall(statuses...),
		Services:    services,
	}
}

// Find returns the view for id.
func (s *Snapshot) Find(id string) (ServiceView, bool) {
	for _, v := range s.Services {
		if v.ID == id {
			return v, true
		}
	}
	return ServiceView{}, false
}

// Counts tallies the snapshot's services.
func (s *Snapshot) Counts() Counts {
	c := Counts{Total: len(s.Services)}
	for _, v := range s.Services {
		switch v.Status {
		case Healthy:
			c.Healthy++
		case Degraded:
			c.Degraded++
		case Down:
			c.Down++
		default:
			c.Unknown++
		}
	}
	return c
}

// Age is the time since the snapshot's refresh started, never negative.
func (s *Snapshot) Age(now time.Time) time.Duration {
	if s.RefreshedAt.IsZero() {
		return 0
	}
	age := now.Sub(s.RefreshedAt)
	if age < 0 {
		return 0
	}
	return age
}

// Cache is the single-writer cell holding the latest snapshot. Readers always
// see one complete snapshot.
type Cache struct {
	current atomic.Pointer[Snapshot]
}

// NewCache returns a cache holding an empty snapshot.
func NewCache() *Cache {
	c := &Cache{}
	c.current.Store(&Snapshot{Overall: Healthy, Placeholder: true})
	return c
}

// Load returns the current snapshot. It never returns nil.
func (c *Cache) Load() *Snapshot {
	return c.current.Load()
}

// Store replaces the current snapshot.
func (c *Cache) Store(s *Snapshot) {
	if s == nil {
		return
	}
	c.current.Store(s)
}
