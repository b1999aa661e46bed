// Package handler provides the HTTP handlers of the statusboard API.
package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/marcleai/statusboard/internal/api/models"
	"github.com/marcleai/statusboard/internal/api/response"
	"github.com/marcleai/statusboard/internal/observation"
	"github.com/marcleai/statusboard/internal/status"
)

// SnapshotSource returns the most recently published snapshot.
type SnapshotSource interface {
	Load() *status.Snapshot
}

// ObservationReader is the read side of the observation store.
type ObservationReader interface {
	Flags(serviceID string) (status.ObservationFlags, bool)
	LastIncident() *status.Incident
	GlobalIncidents(limit int) []status.Incident
	ServiceIncidents(serviceID string, limit int) []status.Incident
}

// StatusHandler serves the public, read-only status endpoints. Every
// response is built from the published snapshot; nothing here probes.
type StatusHandler struct {
	cache        SnapshotSource
	observations ObservationReader
	exposeURLs   bool
	now          func() time.Time
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(cache SnapshotSource, observations ObservationReader, exposeURLs bool) *StatusHandler {
	return &StatusHandler{
		cache:        cache,
		observations: observations,
		exposeURLs:   exposeURLs,
		now:          time.Now,
	}
}

// GetStatus handles GET /api/status.
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	snap := h.cache.Load()

	resp := models.StatusResponse{
		GeneratedAt:   models.Timestamp(snap.GeneratedAt),
		OverallStatus: snap.Overall,
		Services:      make([]models.ServiceStatus, 0, len(snap.Services)),
	}
	if snap.GeneratedAt.IsZero() {
		resp.GeneratedAt = models.Timestamp(h.now())
	}
	for _, v := range snap.Services {
		resp.Services = append(resp.Services, models.NewServiceStatus(v, h.exposeURLs))
	}

	response.JSON(w, r, http.StatusOK, resp)
}

// GetOverview handles GET /api/overview.
func (h *StatusHandler) GetOverview(w http.ResponseWriter, r *http.Request) {
	ov := status.BuildOverview(h.cache.Load(), h.observations.Flags, h.observations.LastIncident(), h.now())
	response.JSON(w, r, http.StatusOK, models.NewOverviewResponse(ov))
}

// ListIncidents handles GET /api/incidents?limit=N.
func (h *StatusHandler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	limit := observation.DefaultIncidentsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.BadRequest(w, r, "limit must be a positive integer", []models.FieldError{
				{Field: "limit", Message: "must be an integer of at least 1", Code: "min"},
			})
			return
		}
		limit = n
	}

	response.JSON(w, r, http.StatusOK, models.NewIncidents(h.observations.GlobalIncidents(limit)))
}

// GetService handles GET /api/services/{id}.
func (h *StatusHandler) GetService(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	view, ok := h.cache.Load().Find(id)
	if !ok {
		response.NotFound(w, r, "service not found")
		return
	}

	detail := models.ServiceDetail{ServiceStatus: models.NewServiceStatus(view, h.exposeURLs)}
	if flags, ok := h.observations.Flags(id); ok {
		detail.LastChangedAt = models.TimestampPtr(flags.LastChangedAt)
		detail.Flapping = flags.Flapping
	}

	response.JSON(w, r, http.StatusOK, models.ServiceDetailResponse{
		Service:         detail,
		RecentIncidents: models.NewIncidents(h.observations.ServiceIncidents(id, observation.DefaultServiceIncidentsLimit)),
	})
}
