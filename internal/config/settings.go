package config

import "time"

// Backend names for observation persistence.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Settings holds every knob the status service reads at startup.
type Settings struct {
	Port        string
	Environment string
	LogLevel    string
	LogFormat   string

	RequestTimeout  time.Duration
	CheckTimeout    time.Duration
	RefreshInterval time.Duration
	MaxConcurrency  int

	ServicesConfigPath string
	ObservationsPath   string
	ObservationsStore  string
	HistoryLimit       int
	PersistTimeout     time.Duration

	FlapWindow          time.Duration
	FlapThreshold       int
	FlapTimestampsLimit int

	ExposeServiceURLs bool
	CORSOrigins       []string
	AdminToken        string
	RequireTLS        bool

	OTelEnabled        bool
	OTLPEndpoint       string
	OTelSampleRatio    float64
	// OTelExportInterval is read in milliseconds, as the OpenTelemetry SDK
	// environment defines it.
	OTelExportInterval time.Duration

	PubSubProjectID    string
	PubSubSubscription string
}

// FromEnv builds Settings from env, applying the documented defaults.
func FromEnv(env *Environment) Settings {
	requestTimeout := env.Seconds("REQUEST_TIMEOUT_SECONDS", 4*time.Second)

	return Settings{
		Port:        env.Get("APP_PORT", "8080"),
		Environment: env.Get("APP_ENV", "development"),
		LogLevel:    env.Get("LOG_LEVEL", "info"),
		LogFormat:   env.Get("LOG_FORMAT", "json"),

		RequestTimeout:  requestTimeout,
		CheckTimeout:    env.Seconds("CHECK_TIMEOUT_SECONDS", requestTimeout),
		RefreshInterval: env.Seconds("REFRESH_INTERVAL_SECONDS", 30*time.Second),
		MaxConcurrency:  env.Int("MAX_CONCURRENCY", 10, 1),

		ServicesConfigPath: env.Get("SERVICES_CONFIG_PATH", "/data/services.json"),
		ObservationsPath:   env.Get("OBSERVATIONS_PATH", "/data/observations.json"),
		ObservationsStore:  env.Get("OBSERVATIONS_BACKEND", BackendFile),
		HistoryLimit:       env.Int("OBSERVATIONS_HISTORY_LIMIT", 200, 1),
		PersistTimeout:     env.Seconds("OBSERVATIONS_PERSIST_TIMEOUT_SECONDS", 5*time.Second),

		FlapWindow:          env.Seconds("FLAP_WINDOW_SECONDS", 600*time.Second),
		FlapThreshold:       env.Int("FLAP_THRESHOLD", 3, 1),
		FlapTimestampsLimit: env.Int("FLAP_TIMESTAMPS_LIMIT", 20, 1),

		ExposeServiceURLs: env.Bool("EXPOSE_SERVICE_URLS", false),
		CORSOrigins:       env.CSV("CORS_ORIGINS"),
		AdminToken:        env.Get("ADMIN_TOKEN", ""),
		RequireTLS:        env.Bool("REQUIRE_TLS", false),

		OTelEnabled:        env.Bool("OTEL_ENABLED", false),
		OTLPEndpoint:       env.Get("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTelSampleRatio:    env.Ratio("OTEL_TRACES_SAMPLER_ARG", 1),
		OTelExportInterval: time.Duration(env.Int("OTEL_METRIC_EXPORT_INTERVAL", 15000, 1000)) * time.Millisecond,

		PubSubProjectID:    env.Get("PUBSUB_PROJECT_ID", ""),
		PubSubSubscription: env.Get("PUBSUB_REFRESH_SUBSCRIPTION", ""),
	}
}
