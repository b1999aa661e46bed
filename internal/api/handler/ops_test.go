package handler_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcleai/statusboard/internal/api/handler"
	"github.com/marcleai/statusboard/internal/resilience"
	"github.com/marcleai/statusboard/internal/status"
)

type fakeBreaker struct{ state gobreaker.State }

func (b fakeBreaker) State() gobreaker.State   { return b.state }
func (b fakeBreaker) Counts() gobreaker.Counts { return gobreaker.Counts{} }

type fakeScheduler map[string]interface{}

func (s fakeScheduler) MetricsSnapshot() map[string]interface{} { return s }

func serve(h http.HandlerFunc, path string) (*httptest.ResponseRecorder, map[string]any) {
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, path, http.NoBody))
	var out map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func TestHealthCheck(t *testing.T) {
	h := handler.NewOpsHandler(handler.OpsConfig{Version: "1.2.3", Cache: status.NewCache()})

	rec, body := serve(h.HealthCheck, "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", body["status"])
	assert.Equal(t, "1.2.3", body["details"].(map[string]any)["version"])
}

func TestReadinessCheck(t *testing.T) {
	cache := status.NewCache()
	h := handler.NewOpsHandler(handler.OpsConfig{Cache: cache})

	rec, body := serve(h.ReadinessCheck, "/api/ops/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "placeholder snapshot is not ready")
	assert.Equal(t, "FAIL", body["status"])
	assert.Nil(t, body["last_refresh_at"])

	now := time.Now()
	cache.Store(status.NewSnapshot([]status.ServiceView{{ID: "plex", Status: status.Healthy}}, now.Add(-5*time.Second), now, time.Second))

	rec, body = serve(h.ReadinessCheck, "/api/ops/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", body["status"])
	assert.Equal(t, float64(1), body["services"])
	require.NotNil(t, body["cache_age_seconds"])
	assert.GreaterOrEqual(t, body["cache_age_seconds"].(float64), float64(5))
}

func TestSystemStatus(t *testing.T) {
	reg := resilience.NewRegistry()
	reg.Register("observations", fakeBreaker{state: gobreaker.StateOpen})
	reg.RecordFailure("observations", errors.New("connection refused"))

	h := handler.NewOpsHandler(handler.OpsConfig{
		Cache:        status.NewCache(),
		Dependencies: reg,
		Scheduler:    fakeScheduler{"total_cycles": 3},
	})

	rec, body := serve(h.SystemStatus, "/api/admin/ops/status")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "DEGRADED", body["status"])
	assert.Equal(t, float64(3), body["scheduler"].(map[string]any)["total_cycles"])

	deps := body["dependencies"].([]any)
	require.Len(t, deps, 1)
	dep := deps[0].(map[string]any)
	assert.Equal(t, "observations", dep["name"])
	assert.Equal(t, "FAIL", dep["status"])
	assert.Equal(t, "open", dep["circuit_state"])
	assert.Equal(t, "connection refused", dep["message"])
}

func TestSystemStatus_NoDependencies(t *testing.T) {
	h := handler.NewOpsHandler(handler.OpsConfig{Cache: status.NewCache()})

	_, body := serve(h.SystemStatus, "/api/admin/ops/status")

	assert.Equal(t, "OK", body["status"])
	assert.Empty(t, body["dependencies"])
}
