package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcleai/statusboard/internal/config"
)

func TestEnvironment_Lookup_PrefersDirectValue(t *testing.T) {
	env := config.NewEnvironment(config.MapEnv{
		"RADARR_KEY":      "direct",
		"RADARR_KEY_FILE": "/does/not/matter",
	})

	v, ok := env.Lookup("RADARR_KEY")
	assert.True(t, ok)
	assert.Equal(t, "direct", v)
}

func TestEnvironment_Lookup_FileFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(path, []byte("  from-file\n"), 0o600))

	env := config.NewEnvironment(config.MapEnv{
		"PLEX_TOKEN":      "",
		"PLEX_TOKEN_FILE": path,
	})

	v, ok := env.Lookup("PLEX_TOKEN")
	assert.True(t, ok)
	assert.Equal(t, "from-file", v)
}

func TestEnvironment_Lookup_Missing(t *testing.T) {
	env := config.NewEnvironment(config.MapEnv{
		"EMPTY_FILE": filepath.Join(t.TempDir(), "missing"),
	})

	_, ok := env.Lookup("EMPTY")
	assert.False(t, ok)

	_, ok = env.Lookup("  ")
	assert.False(t, ok)
}

func TestEnvironment_Bool(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"1", true},
		{"true", true},
		{"YES", true},
		{"on", true},
		{"0", false},
		{"off", false},
		{"nope", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			env := config.NewEnvironment(config.MapEnv{"FLAG": tt.raw})
			assert.Equal(t, tt.want, env.Bool("FLAG", !tt.want))
		})
	}
}

func TestEnvironment_IntClampsAndFallsBack(t *testing.T) {
	env := config.NewEnvironment(config.MapEnv{
		"ZERO":    "0",
		"GARBAGE": "ten",
		"OK":      "7",
	})

	assert.Equal(t, 1, env.Int("ZERO", 10, 1))
	assert.Equal(t, 10, env.Int("GARBAGE", 10, 1))
	assert.Equal(t, 7, env.Int("OK", 10, 1))
	assert.Equal(t, 10, env.Int("MISSING", 10, 1))
}

func TestFromEnv_Defaults(t *testing.T) {
	s := config.FromEnv(config.NewEnvironment(config.MapEnv{}))

	assert.Equal(t, "8080", s.Port)
	assert.Equal(t, 4*time.Second, s.RequestTimeout)
	assert.Equal(t, 4*time.Second, s.CheckTimeout)
	assert.Equal(t, 30*time.Second, s.RefreshInterval)
	assert.Equal(t, 10, s.MaxConcurrency)
	assert.Equal(t, "/data/services.json", s.ServicesConfigPath)
	assert.Equal(t, "/data/observations.json", s.ObservationsPath)
	assert.Equal(t, config.BackendFile, s.ObservationsStore)
	assert.Equal(t, 200, s.HistoryLimit)
	assert.Equal(t, 600*time.Second, s.FlapWindow)
	assert.Equal(t, 3, s.FlapThreshold)
	assert.Equal(t, 20, s.FlapTimestampsLimit)
	assert.Equal(t, 5*time.Second, s.PersistTimeout)
	assert.Equal(t, 1.0, s.OTelSampleRatio)
	assert.Equal(t, 15*time.Second, s.OTelExportInterval)
	assert.False(t, s.ExposeServiceURLs)
	assert.Empty(t, s.CORSOrigins)
	assert.Empty(t, s.AdminToken)
}

func TestFromEnv_CheckTimeoutOverride(t *testing.T) {
	s := config.FromEnv(config.NewEnvironment(config.MapEnv{
		"REQUEST_TIMEOUT_SECONDS": "6",
		"CHECK_TIMEOUT_SECONDS":   "2.5",
		"CORS_ORIGINS":            "https://a.example, ,https://b.example",
		"EXPOSE_SERVICE_URLS":     "true",
	}))

	assert.Equal(t, 6*time.Second, s.RequestTimeout)
	assert.Equal(t, 2500*time.Millisecond, s.CheckTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, s.CORSOrigins)
	assert.True(t, s.ExposeServiceURLs)
}

func TestFromEnv_TelemetryKnobs(t *testing.T) {
	s := config.FromEnv(config.NewEnvironment(config.MapEnv{
		"OTEL_TRACES_SAMPLER_ARG":              "0.25",
		"OTEL_METRIC_EXPORT_INTERVAL":          "60000",
		"OBSERVATIONS_PERSIST_TIMEOUT_SECONDS": "2",
	}))

	assert.Equal(t, 0.25, s.OTelSampleRatio)
	assert.Equal(t, time.Minute, s.OTelExportInterval)
	assert.Equal(t, 2*time.Second, s.PersistTimeout)
}

func TestEnvironment_Ratio(t *testing.T) {
	env := config.NewEnvironment(config.MapEnv{"OK": "0.5", "HIGH": "1.5", "BAD": "half"})

	assert.Equal(t, 0.5, env.Ratio("OK", 1))
	assert.Equal(t, 1.0, env.Ratio("HIGH", 1))
	assert.Equal(t, 0.1, env.Ratio("BAD", 0.1))
	assert.Equal(t, 0.3, env.Ratio("MISSING", 0.3))
}
