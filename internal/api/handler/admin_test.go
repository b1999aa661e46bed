package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcleai/statusboard/internal/api/handler"
	"github.com/marcleai/statusboard/internal/authref"
	"github.com/marcleai/statusboard/internal/catalog"
	"github.com/marcleai/statusboard/internal/config"
)

func newAdminRouter(t *testing.T, env config.MapEnv, services ...catalog.ServiceDefinition) (chi.Router, *catalog.Store) {
	t.Helper()

	store := catalog.NewMemoryStore(services)
	h := handler.NewAdminHandler(store, config.NewEnvironment(env), zerolog.Nop())

	r := chi.NewRouter()
	r.Route("/api/admin/services", func(r chi.Router) {
		r.Get("/", h.ListServices)
		r.Post("/", h.CreateService)
		r.Post("/bulk", h.BulkSetEnabled)
		r.Get("/{id}", h.GetService)
		r.Put("/{id}", h.UpsertService)
		r.Delete("/{id}", h.DeleteService)
		r.Post("/{id}/toggle", h.ToggleService)
	})
	return r, store
}

func plexDef() catalog.ServiceDefinition {
	return catalog.ServiceDefinition{
		ID:        "plex",
		Name:      "Plex",
		Group:     catalog.GroupMedia,
		URL:       "http://plex.lan:32400",
		CheckType: "plex",
		Enabled:   true,
		AuthRef:   &authref.Ref{Scheme: authref.SchemeQueryParam, Env: "PLEX_TOKEN", ParamName: "X-Plex-Token"},
	}
}

func do(t *testing.T, r http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func TestAdmin_ListServices_ReportsCredentialPresence(t *testing.T) {
	nas := catalog.ServiceDefinition{ID: "nas", Name: "NAS", Group: catalog.GroupCore, URL: "http://nas.lan", Enabled: true}
	r, _ := newAdminRouter(t, config.MapEnv{"PLEX_TOKEN": "super-secret"}, plexDef(), nas)

	rec, body := do(t, r, http.MethodGet, "/api/admin/services", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "super-secret")

	services := body["services"].([]any)
	require.Len(t, services, 2)
	assert.Equal(t, true, services[0].(map[string]any)["credential_present"])
	assert.Nil(t, services[1].(map[string]any)["credential_present"], "no auth_ref reports null")
}

func TestAdmin_ListServices_MissingCredential(t *testing.T) {
	r, _ := newAdminRouter(t, config.MapEnv{}, plexDef())

	_, body := do(t, r, http.MethodGet, "/api/admin/services", "")

	assert.Equal(t, false, body["services"].([]any)[0].(map[string]any)["credential_present"])
}

func TestAdmin_CreateService(t *testing.T) {
	r, store := newAdminRouter(t, config.MapEnv{})

	rec, body := do(t, r, http.MethodPost, "/api/admin/services",
		`{"id":"sonarr","name":"Sonarr","group":"media","url":"http://sonarr.lan","check_type":"sonarr"}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "/api/admin/services/sonarr", rec.Header().Get("Location"))
	assert.Equal(t, "sonarr", body["id"])
	assert.Equal(t, true, body["enabled"], "enabled defaults to true")

	_, err := store.Get(t.Context(), "sonarr")
	require.NoError(t, err)
}

func TestAdmin_CreateService_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		code   int
		fields []string
	}{
		{"duplicate", `{"id":"plex","name":"Plex","group":"media","url":"http://plex.lan"}`, http.StatusConflict, nil},
		{"invalid", `{"id":"bad id","group":"games","url":"ftp://x"}`, http.StatusBadRequest, []string{"id", "name", "group", "url"}},
		{"header without name", `{"id":"ha","name":"HA","group":"automation","url":"http://ha.lan","auth_ref":{"scheme":"header","env":"HA_KEY"}}`, http.StatusBadRequest, []string{"auth_ref.header_name"}},
		{"malformed", `{"id":`, http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newAdminRouter(t, config.MapEnv{}, plexDef())

			rec, body := do(t, r, http.MethodPost, "/api/admin/services", tt.body)

			require.Equal(t, tt.code, rec.Code, rec.Body.String())
			got := map[string]bool{}
			if errs, ok := body["errors"].([]any); ok {
				for _, e := range errs {
					got[e.(map[string]any)["field"].(string)] = true
				}
			}
			for _, f := range tt.fields {
				assert.True(t, got[f], "expected field error for %s, got %v", f, got)
			}
		})
	}
}

func TestAdmin_UpsertService(t *testing.T) {
	r, store := newAdminRouter(t, config.MapEnv{}, plexDef())

	rec, body := do(t, r, http.MethodPut, "/api/admin/services/plex",
		`{"name":"Plex Media Server","group":"media","url":"http://plex.lan:32400","enabled":false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Plex Media Server", body["name"])

	def, err := store.Get(t.Context(), "plex")
	require.NoError(t, err)
	assert.False(t, def.Enabled)

	rec, _ = do(t, r, http.MethodPut, "/api/admin/services/ollama",
		`{"name":"Ollama","group":"automation","url":"http://ollama.lan:11434"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestAdmin_UpsertService_IDMismatch(t *testing.T) {
	r, _ := newAdminRouter(t, config.MapEnv{}, plexDef())

	rec, body := do(t, r, http.MethodPut, "/api/admin/services/plex",
		`{"id":"other","name":"Other","group":"media","url":"http://other.lan"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "body id must match the path", body["detail"])
}

func TestAdmin_DeleteService(t *testing.T) {
	r, store := newAdminRouter(t, config.MapEnv{}, plexDef())

	rec, body := do(t, r, http.MethodDelete, "/api/admin/services/plex", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "plex", body["id"], "returns the removed definition")

	_, err := store.Get(t.Context(), "plex")
	assert.ErrorIs(t, err, catalog.ErrServiceNotFound)

	rec, _ = do(t, r, http.MethodDelete, "/api/admin/services/plex", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdmin_ToggleService(t *testing.T) {
	r, _ := newAdminRouter(t, config.MapEnv{}, plexDef())

	_, body := do(t, r, http.MethodPost, "/api/admin/services/plex/toggle", "")
	assert.Equal(t, false, body["enabled"])

	_, body = do(t, r, http.MethodPost, "/api/admin/services/plex/toggle", "")
	assert.Equal(t, true, body["enabled"])

	rec, _ := do(t, r, http.MethodPost, "/api/admin/services/nope/toggle", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdmin_BulkSetEnabled(t *testing.T) {
	nas := catalog.ServiceDefinition{ID: "nas", Name: "NAS", Group: catalog.GroupCore, URL: "http://nas.lan", Enabled: true}
	r, store := newAdminRouter(t, config.MapEnv{}, plexDef(), nas)

	rec, body := do(t, r, http.MethodPost, "/api/admin/services/bulk", `{"ids":["plex","nas","ghost"],"enabled":false}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, body["services"], 2)
	assert.Equal(t, []any{"ghost"}, body["missing"])

	list, err := store.List(t.Context())
	require.NoError(t, err)
	for _, d := range list {
		assert.False(t, d.Enabled, d.ID)
	}
}

func TestAdmin_BulkSetEnabled_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{"no ids", `{"ids":[],"enabled":true}`, http.StatusBadRequest},
		{"missing enabled", `{"ids":["plex"]}`, http.StatusBadRequest},
		{"none match", `{"ids":["ghost"],"enabled":true}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newAdminRouter(t, config.MapEnv{}, plexDef())

			rec, _ := do(t, r, http.MethodPost, "/api/admin/services/bulk", tt.body)

			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}
}
