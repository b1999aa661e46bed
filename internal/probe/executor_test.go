package probe_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcleai/statusboard/internal/authref"
	"github.com/marcleai/statusboard/internal/catalog"
	"github.com/marcleai/statusboard/internal/config"
	"github.com/marcleai/statusboard/internal/probe"
	"github.com/marcleai/statusboard/internal/status"
)

func newExecutor(t *testing.T, env map[string]string, logs *bytes.Buffer) *probe.Executor {
	t.Helper()
	logger := zerolog.Nop()
	if logs != nil {
		logger = zerolog.New(logs)
	}
	return probe.NewExecutor(probe.Config{
		Timeout: 500 * time.Millisecond,
		Env:     config.NewEnvironment(config.MapEnv(env)),
		Logger:  logger,
	})
}

func def(id, url, checkType string) catalog.ServiceDefinition {
	return catalog.ServiceDefinition{ID: id, Name: id, Group: catalog.GroupCore, URL: url, CheckType: checkType, Enabled: true}
}

func TestCheck_GenericStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		code int
		want status.Status
	}{
		{"200 is healthy", http.StatusOK, status.Healthy},
		{"204 is healthy", http.StatusNoContent, status.Healthy},
		{"404 is degraded", http.StatusNotFound, status.Degraded},
		{"503 is degraded", http.StatusServiceUnavailable, status.Degraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.code)
			}))
			defer srv.Close()

			s := newExecutor(t, nil, nil).Check(context.Background(), def("svc", srv.URL, ""))
			assert.Equal(t, tt.want, s.Status)
			assert.Equal(t, "svc", s.ServiceID)
			require.NotNil(t, s.LatencyMs)
			assert.GreaterOrEqual(t, *s.LatencyMs, 0)
		})
	}
}

func TestCheck_ConnectionRefusedIsDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	s := newExecutor(t, nil, nil).Check(context.Background(), def("gone", url, "generic"))
	assert.Equal(t, status.Down, s.Status)
	assert.Nil(t, s.LatencyMs)
}

func TestCheck_TimeoutIsDown(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	exec := probe.NewExecutor(probe.Config{Timeout: 50 * time.Millisecond, Logger: zerolog.Nop()})

	start := time.Now()
	s := exec.Check(context.Background(), def("slow", srv.URL, ""))
	assert.Equal(t, status.Down, s.Status)
	assert.Equal(t, "timeout", s.Detail)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestCheck_DisabledMakesNoCall(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	d := def("off", srv.URL, "")
	d.Enabled = false

	s := newExecutor(t, nil, nil).Check(context.Background(), d)
	assert.True(t, s.Disabled)
	assert.Equal(t, probe.DetailDisabled, s.Detail)
	assert.Zero(t, calls.Load())
}

func TestCheck_NoURLIsUnknown(t *testing.T) {
	s := newExecutor(t, nil, nil).Check(context.Background(), def("blank", "", ""))
	assert.Equal(t, status.Unknown, s.Status)
	assert.Equal(t, probe.DetailNoURL, s.Detail)
}

func TestCheck_MissingCredentialIsUnknownWithoutCall(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	d := def("sonarr", srv.URL, "sonarr")
	d.AuthRef = &authref.Ref{Scheme: authref.SchemeHeader, Env: "SONARR_API_KEY", HeaderName: "X-Api-Key"}

	var logs bytes.Buffer
	s := newExecutor(t, nil, &logs).Check(context.Background(), d)
	assert.Equal(t, status.Unknown, s.Status)
	assert.Equal(t, probe.DetailCredentialMissing, s.Detail)
	assert.Zero(t, calls.Load())
	assert.Contains(t, logs.String(), "SONARR_API_KEY")
}

func TestCheck_AppliesCredentialWithoutLeakingIt(t *testing.T) {
	const secret = "s3cr3t-value-123"
	var gotHeader, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("Authorization")
		gotQuery = r.URL.Query().Get("apikey")
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	var logs bytes.Buffer
	exec := newExecutor(t, map[string]string{"HA_TOKEN": secret, "TAUTULLI_KEY": secret}, &logs)

	bearer := def("ha", srv.URL, "homeassistant")
	bearer.AuthRef = &authref.Ref{Scheme: authref.SchemeBearer, Env: "HA_TOKEN"}
	s := exec.Check(context.Background(), bearer)
	assert.Equal(t, status.Degraded, s.Status)
	assert.Equal(t, "Bearer "+secret, gotHeader)

	query := def("tautulli", srv.URL, "tautulli")
	query.AuthRef = &authref.Ref{Scheme: authref.SchemeQueryParam, Env: "TAUTULLI_KEY", ParamName: "apikey"}
	s = exec.Check(context.Background(), query)
	assert.Equal(t, status.Degraded, s.Status)
	assert.Equal(t, secret, gotQuery)

	assert.NotContains(t, logs.String(), secret)
	assert.NotContains(t, s.Detail, secret)
}

func TestCheck_DoesNotFollowRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	exec := newExecutor(t, nil, nil)

	s := exec.Check(context.Background(), def("unifi", srv.URL, "unifi-network"))
	assert.Equal(t, status.Healthy, s.Status, "302 is healthy for unifi-network")

	s = exec.Check(context.Background(), def("web", srv.URL, "generic"))
	assert.Equal(t, status.Degraded, s.Status)
	assert.Equal(t, "HTTP 302", s.Detail)
}

func TestCheck_ProfileRequestShape(t *testing.T) {
	var path, cmd, accept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		cmd = r.URL.Query().Get("cmd")
		accept = r.Header.Get("Accept")
		_, _ = w.Write([]byte(`{"response":{"result":"success"},"MediaContainer":{"machineIdentifier":"abc"}}`))
	}))
	defer srv.Close()

	exec := newExecutor(t, nil, nil)

	s := exec.Check(context.Background(), def("tautulli", srv.URL+"/", "tautulli"))
	assert.Equal(t, status.Healthy, s.Status)
	assert.Equal(t, "/api/v2", path)
	assert.Equal(t, "status", cmd)

	s = exec.Check(context.Background(), def("plex", srv.URL, "plex"))
	assert.Equal(t, status.Healthy, s.Status)
	assert.Equal(t, "/identity", path)
	assert.Equal(t, "application/json", accept)
}

func TestCheck_MalformedBodyIsDegraded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>login</html>`))
	}))
	defer srv.Close()

	s := newExecutor(t, nil, nil).Check(context.Background(), def("radarr", srv.URL, "radarr"))
	assert.Equal(t, status.Degraded, s.Status)
	assert.NotNil(t, s.LatencyMs)
}

func TestCheck_OverridesFromDefinition(t *testing.T) {
	var path, custom string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		custom = r.Header.Get("X-Custom")
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	d := def("odd", srv.URL, "homeassistant")
	d.Path = "/ping"
	d.HealthyStatusCodes = []int{418}
	d.ExtraHeaders = map[string]string{"X-Custom": "yes"}

	s := newExecutor(t, nil, nil).Check(context.Background(), d)
	assert.Equal(t, status.Healthy, s.Status)
	assert.Equal(t, "/ping", path)
	assert.Equal(t, "yes", custom)
}
