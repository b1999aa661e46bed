package handler

import (
	"net/http"
	"time"

	"github.com/marcleai/statusboard/internal/api/models"
	"github.com/marcleai/statusboard/internal/api/response"
	"github.com/marcleai/statusboard/internal/resilience"
)

// DependencyReporter lists guarded dependencies.
type DependencyReporter interface {
	All() []*resilience.DependencyHealth
}

// SchedulerStats exposes refresh loop counters.
type SchedulerStats interface {
	MetricsSnapshot() map[string]interface{}
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version      string
	buildTime    string
	cache        SnapshotSource
	dependencies DependencyReporter
	scheduler    SchedulerStats
	now          func() time.Time
}

// OpsConfig wires an OpsHandler. Dependencies and Scheduler are optional.
type OpsConfig struct {
	Version      string
	BuildTime    string
	Cache        SnapshotSource
	Dependencies DependencyReporter
	Scheduler    SchedulerStats
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{
		version:      cfg.Version,
		buildTime:    cfg.BuildTime,
		cache:        cfg.Cache,
		dependencies: cfg.Dependencies,
		scheduler:    cfg.Scheduler,
		now:          time.Now,
	}
}

// HealthCheck handles GET /healthz. It only reports that the process serves
// requests.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
		Details: map[string]any{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	})
}

// ReadinessCheck handles GET /api/ops/ready. It fails until the first
// refresh cycle has published a snapshot.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	snap := h.cache.Load()

	ready := models.Readiness{
		Status:   models.HealthStatusOK,
		Time:     models.Timestamp(now),
		Services: len(snap.Services),
	}
	if !snap.RefreshedAt.IsZero() {
		age := int(snap.Age(now) / time.Second)
		ready.LastRefreshAt = models.TimestampPtr(snap.RefreshedAt)
		ready.CacheAgeSeconds = &age
	}

	if snap.Placeholder {
		ready.Status = models.HealthStatusFail
		response.JSON(w, r, http.StatusServiceUnavailable, ready)
		return
	}
	response.JSON(w, r, http.StatusOK, ready)
}

// SystemStatus handles GET /api/admin/ops/status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	out := models.SystemStatus{
		Status:       models.HealthStatusOK,
		Time:         models.Timestamp(h.now()),
		Dependencies: []models.DependencyStatus{},
	}
	if h.scheduler != nil {
		out.Scheduler = h.scheduler.MetricsSnapshot()
	}

	if h.dependencies != nil {
		for _, dep := range h.dependencies.All() {
			ds := models.DependencyStatus{
				Name:         dep.Name,
				Status:       models.HealthStatusOK,
				CircuitState: dep.CircuitState.String(),
			}
			if dep.LastSuccessAt != nil {
				ds.LastSuccessAt = models.TimestampPtr(*dep.LastSuccessAt)
			}
			if dep.LastFailureAt != nil {
				ds.LastFailureAt = models.TimestampPtr(*dep.LastFailureAt)
			}
			if dep.LastError != "" {
				msg := dep.LastError
				ds.Message = &msg
			}

			switch {
			case dep.IsUnhealthy():
				ds.Status = models.HealthStatusFail
				out.Status = models.HealthStatusDegraded
			case dep.IsDegraded():
				ds.Status = models.HealthStatusDegraded
				out.Status = models.HealthStatusDegraded
			}
			out.Dependencies = append(out.Dependencies, ds)
		}
	}

	response.JSON(w, r, http.StatusOK, out)
}
