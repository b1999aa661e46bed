package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/marcleai/statusboard/internal/api/middleware"
	"github.com/marcleai/statusboard/internal/api/models"
	"github.com/marcleai/statusboard/internal/api/response"
	"github.com/marcleai/statusboard/internal/authref"
	"github.com/marcleai/statusboard/internal/catalog"
)

// Catalog is the service catalog as seen by the admin API.
type Catalog interface {
	List(ctx context.Context) ([]catalog.ServiceDefinition, error)
	Get(ctx context.Context, id string) (catalog.ServiceDefinition, error)
	Create(ctx context.Context, def catalog.ServiceDefinition) (catalog.ServiceDefinition, error)
	Upsert(ctx context.Context, def catalog.ServiceDefinition) (catalog.ServiceDefinition, bool, error)
	Delete(ctx context.Context, id string) error
	Toggle(ctx context.Context, id string) (catalog.ServiceDefinition, error)
	BulkSetEnabled(ctx context.Context, ids []string, enabled bool) ([]string, []string, error)
}

// AdminHandler manages service definitions. Refreshes after a mutation are
// driven by the catalog's change notifications, not by this handler.
type AdminHandler struct {
	catalog Catalog
	env     authref.Env
	logger  zerolog.Logger
}

// NewAdminHandler creates an AdminHandler. env is used only to report
// whether each service's credential resolves.
func NewAdminHandler(cat Catalog, env authref.Env, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{catalog: cat, env: env, logger: logger}
}

// ListServices handles GET /api/admin/services.
func (h *AdminHandler) ListServices(w http.ResponseWriter, r *http.Request) {
	list, err := h.catalog.List(r.Context())
	if err != nil {
		h.internalError(w, r, err, "listing services failed")
		return
	}
	response.JSON(w, r, http.StatusOK, models.AdminServicesResponse{Services: models.NewAdminServices(list, h.env)})
}

// GetService handles GET /api/admin/services/{id}.
func (h *AdminHandler) GetService(w http.ResponseWriter, r *http.Request) {
	def, err := h.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewAdminService(def, h.env))
}

// CreateService handles POST /api/admin/services.
func (h *AdminHandler) CreateService(w http.ResponseWriter, r *http.Request) {
	var def catalog.ServiceDefinition
	if !response.Decode(w, r, &def) {
		return
	}

	created, err := h.catalog.Create(r.Context(), def)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logMutation(r, "create", created.ID)
	response.Created(w, r, "/api/admin/services/"+created.ID, models.NewAdminService(created, h.env))
}

// UpsertService handles PUT /api/admin/services/{id}.
func (h *AdminHandler) UpsertService(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var def catalog.ServiceDefinition
	if !response.Decode(w, r, &def) {
		return
	}
	if def.ID == "" {
		def.ID = id
	}
	if def.ID != id {
		response.BadRequest(w, r, "body id must match the path", []models.FieldError{
			{Field: "id", Message: "must match the path", Code: "eqfield"},
		})
		return
	}

	saved, created, err := h.catalog.Upsert(r.Context(), def)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if created {
		h.logMutation(r, "create", saved.ID)
		response.Created(w, r, "/api/admin/services/"+saved.ID, models.NewAdminService(saved, h.env))
		return
	}
	h.logMutation(r, "update", saved.ID)
	response.JSON(w, r, http.StatusOK, models.NewAdminService(saved, h.env))
}

// DeleteService handles DELETE /api/admin/services/{id} and returns the
// removed definition.
func (h *AdminHandler) DeleteService(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	def, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.catalog.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logMutation(r, "delete", id)
	response.JSON(w, r, http.StatusOK, models.NewAdminService(def, h.env))
}

// ToggleService handles POST /api/admin/services/{id}/toggle.
func (h *AdminHandler) ToggleService(w http.ResponseWriter, r *http.Request) {
	def, err := h.catalog.Toggle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logMutation(r, "toggle", def.ID)
	response.JSON(w, r, http.StatusOK, models.NewAdminService(def, h.env))
}

// BulkSetEnabled handles POST /api/admin/services/bulk.
func (h *AdminHandler) BulkSetEnabled(w http.ResponseWriter, r *http.Request) {
	var req models.BulkRequest
	if !response.Decode(w, r, &req) {
		return
	}
	if err := catalog.ValidateStruct(req); err != nil {
		response.Invalid(w, r, err)
		return
	}

	updated, missing, err := h.catalog.BulkSetEnabled(r.Context(), req.IDs, *req.Enabled)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	services := make([]models.AdminService, 0, len(updated))
	for _, id := range updated {
		def, err := h.catalog.Get(r.Context(), id)
		if err != nil {
			continue
		}
		services = append(services, models.NewAdminService(def, h.env))
	}

	h.logger.Info().
		Str("request_id", middleware.GetRequestID(r.Context())).
		Str("action", "bulk").
		Strs("ids", updated).
		Strs("missing", missing).
		Bool("enabled", *req.Enabled).
		Msg("admin mutation")
	response.JSON(w, r, http.StatusOK, models.BulkResponse{Services: services, Missing: missing})
}

func (h *AdminHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *catalog.ValidationError
	switch {
	case errors.Is(err, catalog.ErrServiceNotFound):
		response.NotFound(w, r, "service not found")
	case errors.Is(err, catalog.ErrServiceExists):
		response.Conflict(w, r, "a service with this id already exists")
	case errors.As(err, &verr):
		response.Invalid(w, r, err)
	default:
		h.internalError(w, r, err, "updating the service catalog failed")
	}
}

func (h *AdminHandler) internalError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	h.logger.Error().
		Err(err).
		Str("request_id", middleware.GetRequestID(r.Context())).
		Msg(msg)
	response.InternalError(w, r, msg)
}

func (h *AdminHandler) logMutation(r *http.Request, action, id string) {
	h.logger.Info().
		Str("request_id", middleware.GetRequestID(r.Context())).
		Str("action", action).
		Str("service_id", id).
		Msg("admin mutation")
}
