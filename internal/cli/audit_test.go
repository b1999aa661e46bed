package cli_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcleai/statusboard/internal/authref"
	"github.com/marcleai/statusboard/internal/catalog"
	"github.com/marcleai/statusboard/internal/cli"
	"github.com/marcleai/statusboard/internal/config"
	"github.com/marcleai/statusboard/internal/status"
)

func boolPtr(b bool) *bool { return &b }

func TestAudit(t *testing.T) {
	services := []cli.AuditedService{
		{ServiceDefinition: catalog.ServiceDefinition{ID: "plex", Enabled: true, URL: "http://plex:32400",
			AuthRef: &authref.Ref{Scheme: authref.SchemeQueryParam, Env: "PLEX_TOKEN", ParamName: "X-Plex-Token"}},
			CredentialPresent: boolPtr(false)},
		{ServiceDefinition: catalog.ServiceDefinition{ID: "ha", Enabled: true}},
		{ServiceDefinition: catalog.ServiceDefinition{ID: "radarr", Enabled: true, URL: "http://radarr:7878",
			AuthRef: &authref.Ref{Scheme: authref.SchemeHeader, Env: "RADARR_KEY"}},
			CredentialPresent: boolPtr(true)},
		{ServiceDefinition: catalog.ServiceDefinition{ID: "sonarr", Enabled: true, URL: "http://sonarr:8989"}},
		{ServiceDefinition: catalog.ServiceDefinition{ID: "old", Enabled: false}},
	}
	live := map[string]cli.LiveStatus{
		"plex":   {Status: status.Unknown, Detail: "credential missing"},
		"radarr": {Status: status.Healthy},
		"sonarr": {Status: status.Down, Detail: "connection refused"},
	}

	issues := cli.Audit(services, live)

	assert.Equal(t, []cli.Issue{
		{ServiceID: "ha", Problem: "enabled without a url"},
		{ServiceID: "plex", Problem: "credential missing (env PLEX_TOKEN)"},
		{ServiceID: "radarr", Problem: "header auth without header_name"},
		{ServiceID: "sonarr", Problem: "down: connection refused"},
	}, issues)
}

func TestAudit_NoIssues(t *testing.T) {
	services := []cli.AuditedService{
		{ServiceDefinition: catalog.ServiceDefinition{ID: "n8n", Enabled: true, URL: "http://n8n:5678"}},
	}

	assert.Empty(t, cli.Audit(services, map[string]cli.LiveStatus{"n8n": {Status: status.Healthy}}))
}

func newStatusboard(t *testing.T, token string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/admin/services", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"services":[
			{"id":"plex","name":"Plex","group":"media","url":"http://plex:32400","check_type":"plex","enabled":true,
			 "auth_ref":{"scheme":"query_param","env":"PLEX_TOKEN","param_name":"X-Plex-Token"},"credential_present":false},
			{"id":"ha","name":"Home Assistant","group":"automation","url":"http://ha:8123","enabled":true,"credential_present":null}
		]}`))
	})
	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"generated_at":"2026-01-01T00:00:00Z","overall_status":"degraded","services":[
			{"id":"plex","status":"unknown","detail":"credential missing"},
			{"id":"ha","status":"degraded","detail":"HTTP 503"}
		]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func runCLI(t *testing.T, env config.MapEnv, args ...string) (string, error) {
	t.Helper()
	cmd := cli.NewRootCommand(cli.Options{Env: config.NewEnvironment(env)})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestAuditCommand(t *testing.T) {
	srv := newStatusboard(t, "s3cret")

	out, err := runCLI(t, config.MapEnv{"ADMIN_TOKEN": "s3cret"}, "audit", "--url", srv.URL)

	require.NoError(t, err)
	assert.Contains(t, out, "ha: degraded: HTTP 503\n")
	assert.Contains(t, out, "plex: credential missing (env PLEX_TOKEN)\n")
	assert.Contains(t, out, "2 issues across 2 services")
	assert.NotContains(t, out, "s3cret")
}

func TestAuditCommand_Strict(t *testing.T) {
	srv := newStatusboard(t, "s3cret")

	_, err := runCLI(t, nil, "audit", "--url", srv.URL, "--token", "s3cret", "--strict")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 issues found")
}

func TestAuditCommand_RejectedToken(t *testing.T) {
	srv := newStatusboard(t, "s3cret")

	_, err := runCLI(t, config.MapEnv{"ADMIN_TOKEN": "wrong"}, "audit", "--url", srv.URL)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "admin token rejected")
	assert.NotContains(t, err.Error(), "wrong")
}

func TestAuditCommand_RequiresToken(t *testing.T) {
	_, err := runCLI(t, config.MapEnv{}, "audit", "--url", "http://127.0.0.1:1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "admin token required")
}
