package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcleai/statusboard/internal/metrics"
	"github.com/marcleai/statusboard/internal/resilience"
	"github.com/marcleai/statusboard/internal/status"
	"github.com/marcleai/statusboard/internal/worker"
)

func scrape(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	rec := httptest.NewRecorder()
	metrics.Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestRegister_IgnoresDuplicates(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := metrics.NewCycleRecorder()

	require.NoError(t, metrics.Register(reg, rec))
	require.NoError(t, metrics.Register(reg, rec))
}

func TestCycleRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := metrics.NewCycleRecorder()
	require.NoError(t, metrics.Register(reg, rec))

	var _ worker.CycleObserver = rec
	rec.ObserveCycle(worker.CycleResult{Duration: 1500 * time.Millisecond, Transitions: 2, Abandoned: 1})
	rec.ObserveCycle(worker.CycleResult{Duration: 200 * time.Millisecond})

	body := scrape(t, reg)
	assert.Contains(t, body, "statusboard_refresh_cycles_total 2")
	assert.Contains(t, body, "statusboard_status_transitions_total 2")
	assert.Contains(t, body, "statusboard_checks_abandoned_total 1")
	assert.Contains(t, body, "statusboard_refresh_cycle_seconds_count 2")
}

func TestSnapshotCollector(t *testing.T) {
	latency := 42
	cache := status.NewCache()
	snap := status.NewSnapshot([]status.ServiceView{
		{ID: "plex", Group: "media", Status: status.Down},
		{ID: "proxmox", Group: "core", Status: status.Healthy, LatencyMs: &latency},
	}, time.Now(), time.Now(), time.Second)
	cache.Store(snap)

	flags := func(id string) (status.ObservationFlags, bool) {
		return status.ObservationFlags{Flapping: id == "plex"}, true
	}

	registry := resilience.NewRegistry()
	resilience.NewGuard(resilience.GuardConfig{Name: "observations", Registry: registry})

	reg := prometheus.NewRegistry()
	require.NoError(t, metrics.Register(reg, metrics.NewSnapshotCollector(cache, flags, registry)))

	body := scrape(t, reg)
	assert.Contains(t, body, `statusboard_service_status{group="media",service="plex",status="down"} 1`)
	assert.Contains(t, body, `statusboard_service_status{group="media",service="plex",status="healthy"} 0`)
	assert.Contains(t, body, `statusboard_service_latency_milliseconds{service="proxmox"} 42`)
	assert.NotContains(t, body, `statusboard_service_latency_milliseconds{service="plex"}`)
	assert.Contains(t, body, `statusboard_service_flapping{service="plex"} 1`)
	assert.Contains(t, body, `statusboard_overall_status{status="down"} 1`)
	assert.Contains(t, body, `statusboard_dependency_circuit_state{dependency="observations"} 0`)
	assert.Contains(t, body, "statusboard_cache_age_seconds")
}
