package observation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/marcleai/statusboard/internal/resilience"
	"github.com/marcleai/statusboard/internal/status"
)

// Limits applied to incident queries.
const (
	MaxIncidentsLimit            = 200
	DefaultIncidentsLimit        = 50
	DefaultServiceIncidentsLimit = 20
)

// Options configures the derivation rules.
type Options struct {
	// HistoryLimit caps the global incident list.
	// Default: 200
	HistoryLimit int

	// FlapWindow is how far back transitions count towards flapping.
	// Default: 10 minutes
	FlapWindow time.Duration

	// FlapThreshold is the transition count that marks a service flapping.
	// Default: 3
	FlapThreshold int

	// FlapTimestampsLimit caps the stored transition instants per service.
	// Default: 20
	FlapTimestampsLimit int

	// PersistTimeout bounds one write-through, retries included. A write
	// that runs out of time is logged and dropped; the next one carries the
	// full state.
	// Default: 5 seconds
	PersistTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.HistoryLimit < 1 {
		o.HistoryLimit = 200
	}
	if o.FlapWindow <= 0 {
		o.FlapWindow = 10 * time.Minute
	}
	if o.FlapThreshold < 1 {
		o.FlapThreshold = 3
	}
	if o.FlapTimestampsLimit < 1 {
		o.FlapTimestampsLimit = 20
	}
	if o.PersistTimeout <= 0 {
		o.PersistTimeout = 5 * time.Second
	}
	return o
}

// Store holds observations in memory and writes them through to a
// Repository. Persistence failures are logged and never surface to readers.
type Store struct {
	opts   Options
	repo   Repository
	guard  *resilience.Guard
	logger zerolog.Logger

	mu    sync.RWMutex
	state State

	// saving serialises writes so an older state never overwrites a newer
	// one. It is a channel so waiting for it honours the write deadline.
	saving chan struct{}
}

// NewStore loads the persisted state from repo. A corrupt document is
// replaced by an empty state; any other load error leaves the store empty
// but serving.
func NewStore(ctx context.Context, repo Repository, guard *resilience.Guard, opts Options, logger zerolog.Logger) *Store {
	s := &Store{
		opts:   opts.withDefaults(),
		repo:   repo,
		guard:  guard,
		logger: logger.With().Str("component", "observations").Logger(),
		state:  NewState(),
		saving: make(chan struct{}, 1),
	}

	if repo == nil {
		return s
	}

	loaded, err := repo.Load(ctx)
	switch {
	case err == nil:
		loaded.normalize(s.opts.HistoryLimit)
		s.state = loaded
		s.logger.Info().
			Int("services", len(loaded.Services)).
			Int("incidents", len(loaded.History)).
			Msg("observations loaded")
	case errors.Is(err, ErrCorrupt):
		s.logger.Error().Err(err).Msg("observations document unreadable, resetting")
		s.persist(ctx)
	default:
		s.logger.Error().Err(err).Msg("loading observations failed, starting empty")
	}
	return s
}

// Options returns the effective options.
func (s *Store) Options() Options { return s.opts }

// Record applies one sample to the in-memory state without persisting.
func (s *Store) Record(serviceID string, st status.Status, now time.Time) Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordLocked(serviceID, st, now)
}

func (s *Store) recordLocked(serviceID string, st status.Status, now time.Time) Update {
	if !st.Valid() {
		st = status.Unknown
	}
	now = now.UTC()

	prior, ok := s.state.Services[serviceID]
	if !ok {
		prior = Observation{LastStatus: status.Unknown}
	}
	obs := prior.clone()

	upd := Update{ServiceID: serviceID, Status: st}
	if st != prior.LastStatus {
		inc := status.Incident{ServiceID: serviceID, From: prior.LastStatus, To: st, At: now}
		s.appendIncident(inc)
		obs.LastChangedAt = now
		obs.ChangeTimestamps = append(obs.ChangeTimestamps, now)
		upd.Changed = true
		upd.Incident = &inc
	}
	if obs.LastChangedAt.IsZero() {
		obs.LastChangedAt = now
	}

	obs.LastStatus = st
	obs.LastSeenAt = now
	obs.ChangeTimestamps = s.prune(obs.ChangeTimestamps, now)
	obs.Flapping = len(obs.ChangeTimestamps) >= s.opts.FlapThreshold

	s.state.Services[serviceID] = obs
	upd.Flapping = obs.Flapping
	return upd
}

func (s *Store) appendIncident(inc status.Incident) {
	s.state.History = append(s.state.History, inc)
	if over := len(s.state.History) - s.opts.HistoryLimit; over > 0 {
		s.state.History = append([]status.Incident(nil), s.state.History[over:]...)
	}
	last := inc
	s.state.LastIncident = &last
}

func (s *Store) prune(ts []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-s.opts.FlapWindow)
	kept := make([]time.Time, 0, len(ts))
	for _, t := range ts {
		if !t.Before(cutoff) {
			kept = append(kept, t)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Before(kept[j]) })
	if len(kept) > s.opts.FlapTimestampsLimit {
		kept = kept[len(kept)-s.opts.FlapTimestampsLimit:]
	}
	return kept
}

// Apply records every sample of one cycle at the same instant, in memory
// only. Disabled samples are ignored.
func (s *Store) Apply(samples []status.Sample, now time.Time) []Update {
	s.mu.Lock()
	defer s.mu.Unlock()

	updates := make([]Update, 0, len(samples))
	for _, smp := range samples {
		if smp.Disabled || smp.ServiceID == "" {
			continue
		}
		updates = append(updates, s.recordLocked(smp.ServiceID, smp.Status, now))
	}
	return updates
}

// ApplyRefresh is Apply followed by one Persist.
func (s *Store) ApplyRefresh(ctx context.Context, samples []status.Sample, now time.Time) []Update {
	updates := s.Apply(samples, now)
	s.Persist(ctx)
	return updates
}

// Persist writes the current state through to the repository. It returns
// after at most PersistTimeout whatever the repository does.
func (s *Store) Persist(ctx context.Context) {
	s.persist(ctx)
}

// Initialize seeds an entry for every id that has none, using the given
// status as the starting point. Existing entries are untouched and no
// incident is recorded.
func (s *Store) Initialize(ctx context.Context, seeds map[string]status.Status, now time.Time) int {
	now = now.UTC()

	s.mu.Lock()
	added := 0
	for id, st := range seeds {
		if id == "" {
			continue
		}
		if _, ok := s.state.Services[id]; ok {
			continue
		}
		if !st.Valid() {
			st = status.Unknown
		}
		s.state.Services[id] = Observation{
			LastStatus:    st,
			LastChangedAt: now,
			LastSeenAt:    now,
		}
		added++
	}
	s.mu.Unlock()

	if added > 0 {
		s.persist(ctx)
	}
	return added
}

// Forget removes a service's entry. Its past incidents stay in history.
func (s *Store) Forget(ctx context.Context, serviceID string) bool {
	s.mu.Lock()
	_, ok := s.state.Services[serviceID]
	delete(s.state.Services, serviceID)
	s.mu.Unlock()

	if ok {
		s.persist(ctx)
	}
	return ok
}

// Observation returns a copy of one service's entry.
func (s *Store) Observation(serviceID string) (Observation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.state.Services[serviceID]
	if !ok {
		return Observation{}, false
	}
	return o.clone(), true
}

// Flags returns the overview metadata for one service.
func (s *Store) Flags(serviceID string) (status.ObservationFlags, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.state.Services[serviceID]
	if !ok {
		return status.ObservationFlags{}, false
	}
	return status.ObservationFlags{
		LastStatus:    o.LastStatus,
		LastChangedAt: o.LastChangedAt,
		Flapping:      o.Flapping,
	}, true
}

// LastIncident returns the most recent transition across all services.
func (s *Store) LastIncident() *status.Incident {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.LastIncident == nil {
		return nil
	}
	inc := *s.state.LastIncident
	return &inc
}

// GlobalIncidents returns up to limit incidents, newest first.
func (s *Store) GlobalIncidents(limit int) []status.Incident {
	return s.incidents("", s.clampLimit(limit, DefaultIncidentsLimit))
}

// ServiceIncidents returns up to limit incidents for one service, newest
// first.
func (s *Store) ServiceIncidents(serviceID string, limit int) []status.Incident {
	return s.incidents(serviceID, s.clampLimit(limit, DefaultServiceIncidentsLimit))
}

// clampLimit normalises a requested incident count: non-positive values use
// def, and the result never exceeds MaxIncidentsLimit or the history cap.
func (s *Store) clampLimit(limit, def int) int {
	if limit <= 0 {
		limit = def
	}
	if limit > MaxIncidentsLimit {
		limit = MaxIncidentsLimit
	}
	if limit > s.opts.HistoryLimit {
		limit = s.opts.HistoryLimit
	}
	return limit
}

func (s *Store) incidents(serviceID string, limit int) []status.Incident {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]status.Incident, 0, min(limit, len(s.state.History)))
	for i := len(s.state.History) - 1; i >= 0 && len(out) < limit; i-- {
		inc := s.state.History[i]
		if serviceID != "" && inc.ServiceID != serviceID {
			continue
		}
		out = append(out, inc)
	}
	return out
}

// Snapshot returns a deep copy of the whole state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

func (s *Store) persist(ctx context.Context) {
	if s.repo == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.PersistTimeout)
	defer cancel()

	select {
	case s.saving <- struct{}{}:
		defer func() { <-s.saving }()
	case <-ctx.Done():
		s.logger.Error().Err(ctx.Err()).Msg("persisting observations skipped, previous write still running")
		return
	}

	snap := s.Snapshot()
	save := func(ctx context.Context) error { return s.repo.Save(ctx, snap) }

	var err error
	if s.guard != nil {
		err = s.guard.Do(ctx, save)
	} else {
		err = save(ctx)
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("persisting observations failed")
	}
}
