package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/marcleai/statusboard/internal/catalog"
	"github.com/marcleai/statusboard/internal/observation"
	"github.com/marcleai/statusboard/internal/status"
)

// Checker probes one service. Implementations must honour ctx and never
// panic; the scheduler still guards against both.
type Checker interface {
	Check(ctx context.Context, def catalog.ServiceDefinition) status.Sample
}

// Observations is the part of the observation store the scheduler drives.
// Apply must not block on I/O; Persist must return within its own deadline.
type Observations interface {
	Apply(samples []status.Sample, now time.Time) []observation.Update
	Persist(ctx context.Context)
	Initialize(ctx context.Context, seeds map[string]status.Status, now time.Time) int
	Forget(ctx context.Context, serviceID string) bool
}

// Detail strings for samples the scheduler synthesises.
const (
	DetailCheckAbandoned = "check exceeded its time budget"
	DetailCheckPanicked  = "check failed unexpectedly"
	DetailPending        = "awaiting first check"
)

// SchedulerDeps holds the collaborators of a Scheduler.
type SchedulerDeps struct {
	Config       SchedulerConfig
	Catalog      catalog.Reader
	Checker      Checker
	Observations Observations
	Cache        *status.Cache
	Logger       zerolog.Logger
	Observers    []CycleObserver

	// Now defaults to time.Now.
	Now func() time.Time
}

// Scheduler is the single writer of the status cache and the observation
// store. Cycles never overlap.
type Scheduler struct {
	cfg       SchedulerConfig
	catalog   catalog.Reader
	checker   Checker
	obs       Observations
	cache     *status.Cache
	logger    zerolog.Logger
	observers []CycleObserver
	now       func() time.Time
	metrics   *CycleMetrics

	// trigger holds at most one pending refresh request.
	trigger chan struct{}

	// cycleMu serialises cycles and cache rewrites.
	cycleMu sync.Mutex
}

// NewScheduler creates a scheduler.
func NewScheduler(deps SchedulerDeps) *Scheduler {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Cache == nil {
		deps.Cache = status.NewCache()
	}
	return &Scheduler{
		cfg:       deps.Config.withDefaults(),
		catalog:   deps.Catalog,
		checker:   deps.Checker,
		obs:       deps.Observations,
		cache:     deps.Cache,
		logger:    deps.Logger.With().Str("component", "scheduler").Logger(),
		observers: deps.Observers,
		now:       deps.Now,
		metrics:   &CycleMetrics{},
		trigger:   make(chan struct{}, 1),
	}
}

// Cache returns the cache the scheduler publishes to.
func (s *Scheduler) Cache() *status.Cache { return s.cache }

// Config returns the effective configuration.
func (s *Scheduler) Config() SchedulerConfig { return s.cfg }

// Trigger requests a cycle as soon as the current one (if any) finishes.
// Repeated calls before that collapse into one.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Prime publishes an all-unknown snapshot for the enabled services and seeds
// observations for ids seen for the first time. Readers never observe an
// empty cache before the first cycle completes.
func (s *Scheduler) Prime(ctx context.Context) error {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	defs, err := s.enabled(ctx)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	views := make([]status.ServiceView, 0, len(defs))
	seeds := make(map[string]status.Status, len(defs))
	for _, d := range defs {
		views = append(views, pendingView(d, now))
		seeds[d.ID] = status.Unknown
	}

	snap := status.NewSnapshot(views, time.Time{}, now, 0)
	snap.Placeholder = true
	s.cache.Store(snap)

	if s.obs != nil {
		if added := s.obs.Initialize(ctx, seeds, now); added > 0 {
			s.logger.Info().Int("services", added).Msg("initialised observations")
		}
	}
	return nil
}

// Reconcile republishes the current snapshot against the catalog after a
// mutation: removed or disabled services disappear, new ones show as
// pending, and every other view is kept. A refresh is then triggered.
func (s *Scheduler) Reconcile(ctx context.Context) error {
	defer s.Trigger()

	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	defs, err := s.enabled(ctx)
	if err != nil {
		return err
	}

	current := s.cache.Load()
	now := s.now().UTC()
	views := make([]status.ServiceView, 0, len(defs))
	for _, d := range defs {
		if v, ok := current.Find(d.ID); ok {
			views = append(views, mergeDefinition(v, d))
			continue
		}
		views = append(views, pendingView(d, now))
	}

	snap := status.NewSnapshot(views, current.RefreshedAt, now, current.Duration)
	snap.Placeholder = current.Placeholder
	s.cache.Store(snap)
	return nil
}

// WatchCatalog reacts to catalog changes until ctx ends or changes closes.
// Deleted services lose their observation entry.
func (s *Scheduler) WatchCatalog(ctx context.Context, changes <-chan catalog.Change) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			if c.Kind == catalog.ChangeDeleted && s.obs != nil {
				for _, id := range c.IDs {
					s.obs.Forget(ctx, id)
				}
			}
			if err := s.Reconcile(ctx); err != nil {
				s.logger.Error().Err(err).Str("change", string(c.Kind)).Msg("reconciling snapshot failed")
			}
		}
	}
}

// Run primes the cache and then runs cycles until ctx is cancelled. A cycle
// in progress at cancellation completes before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Prime(ctx); err != nil {
		s.logger.Error().Err(err).Msg("priming status cache failed")
	}

	s.logger.Info().
		Dur("interval", s.cfg.Interval).
		Int("max_concurrency", s.cfg.MaxConcurrency).
		Dur("check_timeout", s.cfg.CheckTimeout).
		Msg("refresh scheduler started")

	for {
		started := time.Now()

		if _, err := s.RunCycle(context.WithoutCancel(ctx)); err != nil {
			s.logger.Error().Err(err).Msg("refresh cycle skipped")
		}

		if ctx.Err() != nil {
			s.logger.Info().Msg("refresh scheduler stopped")
			return nil
		}

		wait := s.cfg.Interval - time.Since(started)
		if wait <= 0 {
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info().Msg("refresh scheduler stopped")
			return nil
		case <-s.trigger:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// RunCycle probes every enabled service once, feeds the samples to the
// observation store, publishes the new snapshot and then persists the
// observations. Per-service failures are
// folded into that service's sample; an error is returned only when the
// service list cannot be loaded.
func (s *Scheduler) RunCycle(ctx context.Context) (*CycleResult, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	// A trigger that arrived while waiting for the lock is served by this
	// cycle.
	select {
	case <-s.trigger:
	default:
	}

	started := s.now().UTC()
	clock := time.Now()

	defs, err := s.enabled(ctx)
	if err != nil {
		s.metrics.recordFailure()
		return nil, err
	}

	samples, abandoned, panicked := s.probeAll(ctx, defs)

	views := make([]status.ServiceView, len(defs))
	for i, d := range defs {
		views[i] = sampleView(d, samples[i])
	}

	transitions := 0
	if s.obs != nil {
		for _, u := range s.obs.Apply(samples, started) {
			if u.Changed {
				transitions++
			}
		}
	}

	duration := time.Since(clock)
	snap := status.NewSnapshot(views, started, s.now().UTC(), duration)
	s.cache.Store(snap)

	// Readers already see the new snapshot and flags; a slow repository
	// only delays the next cycle by the persist deadline.
	if s.obs != nil {
		s.obs.Persist(ctx)
	}

	result := CycleResult{
		StartedAt:   started,
		EndedAt:     started.Add(duration),
		Duration:    duration,
		Overall:     snap.Overall,
		Counts:      snap.Counts(),
		Transitions: transitions,
		Abandoned:   abandoned,
		Panicked:    panicked,
	}
	s.metrics.record(result)
	for _, o := range s.observers {
		o.ObserveCycle(result)
	}

	s.logger.Info().
		Int64("duration_ms", duration.Milliseconds()).
		Int("healthy", result.Counts.Healthy).
		Int("degraded", result.Counts.Degraded).
		Int("down", result.Counts.Down).
		Int("unknown", result.Counts.Unknown).
		Int("transitions", transitions).
		Str("overall", string(result.Overall)).
		Msg("refresh cycle completed")

	return &result, nil
}

type outcome struct {
	sample    status.Sample
	abandoned bool
	panicked  bool
}

// probeAll runs one check per definition with at most MaxConcurrency in
// flight. samples[i] always belongs to defs[i].
func (s *Scheduler) probeAll(ctx context.Context, defs []catalog.ServiceDefinition) ([]status.Sample, int, int) {
	samples := make([]status.Sample, len(defs))
	sem := make(chan struct{}, s.cfg.MaxConcurrency)

	var (
		wg                  sync.WaitGroup
		mu                  sync.Mutex
		abandoned, panicked int
	)
	for i, d := range defs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, d catalog.ServiceDefinition) {
			defer wg.Done()
			defer func() { <-sem }()

			out := s.probeOne(ctx, d)
			samples[i] = out.sample
			if out.abandoned || out.panicked {
				mu.Lock()
				if out.abandoned {
					abandoned++
				}
				if out.panicked {
					panicked++
				}
				mu.Unlock()
			}
		}(i, d)
	}
	wg.Wait()
	return samples, abandoned, panicked
}

// probeOne runs a single check under the scheduler's time budget and
// converts panics and overruns into unknown samples.
func (s *Scheduler) probeOne(ctx context.Context, d catalog.ServiceDefinition) outcome {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.checkBudget())
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error().
					Str("service_id", d.ID).
					Str("panic", fmt.Sprintf("%T", r)).
					Msg("check panicked")
				done <- outcome{sample: s.unknownSample(d.ID, DetailCheckPanicked), panicked: true}
			}
		}()
		smp := s.checker.Check(ctx, d)
		smp.ServiceID = d.ID
		if !smp.Status.Valid() {
			smp.Status = status.Unknown
		}
		if smp.CheckedAt.IsZero() {
			smp.CheckedAt = s.now().UTC()
		}
		done <- outcome{sample: smp}
	}()

	select {
	case out := <-done:
		return out
	case <-ctx.Done():
		s.logger.Warn().
			Str("service_id", d.ID).
			Dur("budget", s.cfg.checkBudget()).
			Msg("check abandoned")
		return outcome{sample: s.unknownSample(d.ID, DetailCheckAbandoned), abandoned: true}
	}
}

func (s *Scheduler) unknownSample(id, detail string) status.Sample {
	return status.Sample{ServiceID: id, Status: status.Unknown, Detail: detail, CheckedAt: s.now().UTC()}
}

func (s *Scheduler) enabled(ctx context.Context) ([]catalog.ServiceDefinition, error) {
	if s.catalog == nil {
		return nil, nil
	}
	all, err := s.catalog.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading service list: %w", err)
	}
	out := make([]catalog.ServiceDefinition, 0, len(all))
	for _, d := range all {
		if d.Enabled {
			out = append(out, d)
		}
	}
	return out, nil
}

func baseView(d catalog.ServiceDefinition) status.ServiceView {
	return status.ServiceView{
		ID:          d.ID,
		Name:        d.Name,
		Group:       string(d.Group),
		CheckType:   d.CheckType,
		URL:         d.URL,
		Icon:        d.Icon,
		Description: d.Description,
	}
}

func pendingView(d catalog.ServiceDefinition, now time.Time) status.ServiceView {
	v := baseView(d)
	v.Status = status.Unknown
	v.Detail = DetailPending
	v.LastChecked = now
	return v
}

func sampleView(d catalog.ServiceDefinition, smp status.Sample) status.ServiceView {
	v := baseView(d)
	v.Status = smp.Status
	v.LatencyMs = smp.LatencyMs
	v.Detail = smp.Detail
	v.LastChecked = smp.CheckedAt
	return v
}

// mergeDefinition keeps v's probe result and refreshes its descriptive fields
// from d.
func mergeDefinition(v status.ServiceView, d catalog.ServiceDefinition) status.ServiceView {
	out := baseView(d)
	out.Status = v.Status
	out.LatencyMs = v.LatencyMs
	out.Detail = v.Detail
	out.LastChecked = v.LastChecked
	return out
}
