// Package main provides the entrypoint for the statusboard server: the
// refresh scheduler and the HTTP API in one process.
package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/marcleai/statusboard/internal/api"
	"github.com/marcleai/statusboard/internal/api/middleware"
	"github.com/marcleai/statusboard/internal/catalog"
	"github.com/marcleai/statusboard/internal/config"
	"github.com/marcleai/statusboard/internal/database"
	"github.com/marcleai/statusboard/internal/metrics"
	"github.com/marcleai/statusboard/internal/observation"
	"github.com/marcleai/statusboard/internal/probe"
	"github.com/marcleai/statusboard/internal/redact"
	"github.com/marcleai/statusboard/internal/resilience"
	"github.com/marcleai/statusboard/internal/telemetry"
	"github.com/marcleai/statusboard/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "statusboard"

func main() {
	env := config.NewEnvironment(nil)
	settings := config.FromEnv(env)

	log := newLogger(os.Stdout, settings)
	log.Info().
		Str("build_time", BuildTime).
		Str("environment", settings.Environment).
		Msg("starting statusboard")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    settings.Environment,
		OTLPEndpoint:   settings.OTLPEndpoint,
		Enabled:        settings.OTelEnabled,
		SampleRatio:    settings.OTelSampleRatio,
		ExportInterval: settings.OTelExportInterval,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shutdown telemetry")
		}
	}()
	if settings.OTelEnabled {
		log.Info().Str("otlp_endpoint", settings.OTLPEndpoint).Msg("OpenTelemetry initialized")
	}

	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize HTTP metrics")
	}

	// Service catalog
	cat := catalog.NewStore(settings.ServicesConfigPath, log)
	if err := cat.Load(ctx); err != nil {
		log.Error().Err(err).Str("path", settings.ServicesConfigPath).Msg("loading service catalog failed, starting with no services")
	}

	// Observation store behind a retrying circuit breaker
	registry := resilience.NewRegistry()
	guard := resilience.NewGuard(resilience.GuardConfig{Name: "observations", Registry: registry})

	repo, closeRepo := openRepository(ctx, settings, env, log)
	defer closeRepo()

	observations := observation.NewStore(ctx, repo, guard, observation.Options{
		HistoryLimit:        settings.HistoryLimit,
		FlapWindow:          settings.FlapWindow,
		FlapThreshold:       settings.FlapThreshold,
		FlapTimestampsLimit: settings.FlapTimestampsLimit,
		PersistTimeout:      settings.PersistTimeout,
	}, log)

	// Prometheus registry; refresh cycles are also exported over OTLP
	promRegistry := prometheus.NewRegistry()
	cycleRecorder := metrics.NewCycleRecorder()
	observers := []worker.CycleObserver{cycleRecorder}
	if instruments, err := telemetry.NewCycleInstruments(tp.Meter); err != nil {
		log.Error().Err(err).Msg("failed to create refresh cycle instruments")
	} else {
		observers = append(observers, instruments)
	}

	executor := probe.NewExecutor(probe.Config{
		Timeout: settings.CheckTimeout,
		Env:     env,
		Logger:  log,
	})

	scheduler := worker.NewScheduler(worker.SchedulerDeps{
		Config: worker.SchedulerConfig{
			Interval:       settings.RefreshInterval,
			MaxConcurrency: settings.MaxConcurrency,
			CheckTimeout:   settings.CheckTimeout,
		},
		Catalog:      cat,
		Checker:      executor,
		Observations: observations,
		Logger:       log,
		Observers:    observers,
	})

	if err := metrics.Register(promRegistry,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		cycleRecorder,
		metrics.NewSnapshotCollector(scheduler.Cache(), observations.Flags, registry),
	); err != nil {
		log.Fatal().Err(err).Msg("failed to register prometheus collectors")
	}

	var background sync.WaitGroup
	background.Add(2)
	go func() {
		defer background.Done()
		scheduler.WatchCatalog(ctx, cat.Subscribe())
	}()
	go func() {
		defer background.Done()
		if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("scheduler stopped")
		}
	}()

	if settings.PubSubProjectID != "" && settings.PubSubSubscription != "" {
		startPubSub(ctx, &background, settings, scheduler, log)
	}

	if settings.AdminToken == "" {
		log.Warn().Msg("ADMIN_TOKEN not set, admin API disabled")
	}

	router := api.NewRouter(api.RouterConfig{
		Version:           Version,
		BuildTime:         BuildTime,
		Logger:            log,
		ServiceName:       serviceName,
		Metrics:           httpMetrics,
		Cache:             scheduler.Cache(),
		Observations:      observations,
		ExposeURLs:        settings.ExposeServiceURLs,
		Catalog:           cat,
		AdminToken:        settings.AdminToken,
		Env:               env,
		Dependencies:      registry,
		Scheduler:         scheduler,
		PrometheusHandler: metrics.Handler(promRegistry),
		CORSOrigins:       settings.CORSOrigins,
		RequireTLS:        settings.RequireTLS,
	})

	server := &http.Server{
		Addr:              ":" + settings.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	// An in-flight refresh cycle runs to completion and persists before exit.
	stopped := make(chan struct{})
	go func() {
		background.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		log.Error().Msg("background workers did not stop in time")
	}

	log.Info().Msg("server stopped")
}

// newLogger builds the process logger. Every line passes through the redacting
// writer before it reaches out.
func newLogger(out io.Writer, settings config.Settings) zerolog.Logger {
	var w io.Writer = redact.NewWriter(out)
	if strings.EqualFold(settings.LogFormat, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(settings.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()
}

// openRepository selects the observation backend. A Postgres backend that
// cannot be reached falls back to memory so the dashboard still serves.
func openRepository(ctx context.Context, settings config.Settings, env *config.Environment, log zerolog.Logger) (observation.Repository, func()) {
	noop := func() {}

	switch settings.ObservationsStore {
	case config.BackendPostgres:
		dbConfig := database.ConfigFromEnv(env)
		pool, err := database.Connect(ctx, dbConfig)
		if err != nil {
			log.Error().Err(err).Msg("failed to connect to database, keeping observations in memory")
			return observation.NewMemoryRepository(), noop
		}
		repo := observation.NewPostgresRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			log.Error().Err(err).Msg("failed to prepare observations schema, keeping observations in memory")
			pool.Close()
			return observation.NewMemoryRepository(), noop
		}
		log.Info().
			Str("host", dbConfig.Host).
			Int("port", dbConfig.Port).
			Str("database", dbConfig.Database).
			Msg("database connected")
		return repo, pool.Close

	case config.BackendMemory:
		log.Warn().Msg("observations are kept in memory and lost on restart")
		return observation.NewMemoryRepository(), noop

	default:
		log.Info().Str("path", settings.ObservationsPath).Msg("observations stored on disk")
		return observation.NewFileRepository(settings.ObservationsPath), noop
	}
}

func startPubSub(ctx context.Context, wg *sync.WaitGroup, settings config.Settings, scheduler *worker.Scheduler, log zerolog.Logger) {
	trigger, err := worker.NewPubSubTrigger(ctx, worker.PubSubConfig{
		ProjectID:        settings.PubSubProjectID,
		SubscriptionName: settings.PubSubSubscription,
		Scheduler:        scheduler,
		Logger:           log,
	})
	if err != nil {
		log.Error().Err(err).Msg("pubsub refresh trigger disabled")
		return
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() { _ = trigger.Close() }()
		if err := trigger.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("pubsub refresh trigger stopped")
		}
	}()
}
