// Package api wires the statusboard HTTP API.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/marcleai/statusboard/internal/api/handler"
	"github.com/marcleai/statusboard/internal/api/middleware"
	"github.com/marcleai/statusboard/internal/authref"
	"github.com/marcleai/statusboard/internal/config"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	Cache        handler.SnapshotSource
	Observations handler.ObservationReader
	ExposeURLs   bool

	// Catalog backs the admin API. AdminToken empty disables it (503).
	Catalog    handler.Catalog
	AdminToken string
	Env        authref.Env

	Dependencies handler.DependencyReporter
	Scheduler    handler.SchedulerStats

	// PrometheusHandler serves /metrics when set.
	PrometheusHandler http.Handler

	CORSOrigins []string
	RequireTLS  bool
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "statusboard"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.CORS(cfg.CORSOrigins))

	statusHandler := handler.NewStatusHandler(cfg.Cache, cfg.Observations, cfg.ExposeURLs)
	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:      cfg.Version,
		BuildTime:    cfg.BuildTime,
		Cache:        cfg.Cache,
		Dependencies: cfg.Dependencies,
		Scheduler:    cfg.Scheduler,
	})

	r.Get("/healthz", opsHandler.HealthCheck)
	if cfg.PrometheusHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.PrometheusHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/ops/ready", opsHandler.ReadinessCheck)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(middleware.PublicRateLimit))
			r.Get("/status", statusHandler.GetStatus)
			r.Get("/overview", statusHandler.GetOverview)
			r.Get("/incidents", statusHandler.ListIncidents)
			r.Get("/services/{id}", statusHandler.GetService)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(middleware.AdminRateLimit))
			r.Use(middleware.AdminToken(cfg.AdminToken))
			r.Use(middleware.RequireJSON)

			r.Get("/ops/status", opsHandler.SystemStatus)

			if cfg.Catalog == nil {
				return
			}
			env := cfg.Env
			if env == nil {
				env = config.NewEnvironment(nil)
			}
			adminHandler := handler.NewAdminHandler(cfg.Catalog, env, cfg.Logger)
			r.Route("/services", func(r chi.Router) {
				r.Get("/", adminHandler.ListServices)
				r.Post("/", adminHandler.CreateService)
				r.Post("/bulk", adminHandler.BulkSetEnabled)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", adminHandler.GetService)
					r.Put("/", adminHandler.UpsertService)
					r.Delete("/", adminHandler.DeleteService)
					r.Post("/toggle", adminHandler.ToggleService)
				})
			})
		})
	})

	return r
}
