package worker

import (
	"sync"
	"time"

	"github.com/marcleai/statusboard/internal/status"
)

// CycleResult summarises one refresh cycle.
type CycleResult struct {
	StartedAt   time.Time
	EndedAt     time.Time
	Duration    time.Duration
	Overall     status.Status
	Counts      status.Counts
	Transitions int
	Abandoned   int
	Panicked    int
}

// CycleObserver receives every completed cycle, e.g. to export metrics.
type CycleObserver interface {
	ObserveCycle(result CycleResult)
}

// CycleMetrics tracks scheduler statistics.
type CycleMetrics struct {
	mu sync.RWMutex

	// Counters
	TotalCycles   int64
	FailedCycles  int64
	TotalChecks   int64
	Transitions   int64
	AbandonedRuns int64

	// Timings
	LastCycleAt       time.Time
	LastCycleDuration time.Duration
	TotalDuration     time.Duration

	// Last outcome
	LastOverall status.Status
	LastCounts  status.Counts
}

func (m *CycleMetrics) record(r CycleResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalCycles++
	m.TotalChecks += int64(r.Counts.Total)
	m.Transitions += int64(r.Transitions)
	m.AbandonedRuns += int64(r.Abandoned)
	m.LastCycleAt = r.EndedAt
	m.LastCycleDuration = r.Duration
	m.TotalDuration += r.Duration
	m.LastOverall = r.Overall
	m.LastCounts = r.Counts
}

func (m *CycleMetrics) recordFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailedCycles++
}

// GetMetrics returns a copy of the current metrics.
func (s *Scheduler) GetMetrics() CycleMetrics {
	s.metrics.mu.RLock()
	defer s.metrics.mu.RUnlock()

	return CycleMetrics{
		TotalCycles:       s.metrics.TotalCycles,
		FailedCycles:      s.metrics.FailedCycles,
		TotalChecks:       s.metrics.TotalChecks,
		Transitions:       s.metrics.Transitions,
		AbandonedRuns:     s.metrics.AbandonedRuns,
		LastCycleAt:       s.metrics.LastCycleAt,
		LastCycleDuration: s.metrics.LastCycleDuration,
		TotalDuration:     s.metrics.TotalDuration,
		LastOverall:       s.metrics.LastOverall,
		LastCounts:        s.metrics.LastCounts,
	}
}

// MetricsSnapshot returns the current metrics as a map for the ops endpoint.
func (s *Scheduler) MetricsSnapshot() map[string]interface{} {
	m := s.GetMetrics()
	snap := map[string]interface{}{
		"total_cycles":        m.TotalCycles,
		"failed_cycles":       m.FailedCycles,
		"total_checks":        m.TotalChecks,
		"transitions":         m.Transitions,
		"abandoned_checks":    m.AbandonedRuns,
		"last_cycle_duration": m.LastCycleDuration.String(),
		"total_duration":      m.TotalDuration.String(),
		"last_counts":         m.LastCounts,
	}
	if !m.LastCycleAt.IsZero() {
		snap["last_cycle_at"] = m.LastCycleAt
		snap["last_overall_status"] = m.LastOverall
	}
	return snap
}
