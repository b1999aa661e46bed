// Package probe performs the outbound health checks for configured services.
package probe

import (
	"fmt"
	"net/url"
	"sort"

	"github.com/tidwall/gjson"

	"github.com/marcleai/statusboard/internal/catalog"
	"github.com/marcleai/statusboard/internal/status"
)

// GenericProfile is the fallback for unrecognised check types.
const GenericProfile = "generic"

// BodyCheck inspects a response body that already passed the status code
// check. It returns the refined status and a short detail.
type BodyCheck func(body []byte) (status.Status, string)

// Profile describes how one category of integration is probed.
type Profile struct {
	Name    string
	Path    string
	Query   url.Values
	Headers map[string]string

	// HealthyCodes lists the status codes mapped to healthy. Empty means any
	// 2xx response.
	HealthyCodes []int

	// Inspect, when set, refines a healthy status code using the body.
	Inspect BodyCheck
}

// Healthy reports whether code maps to healthy under this profile.
func (p Profile) Healthy(code int) bool {
	if len(p.HealthyCodes) == 0 {
		return code >= 200 && code < 300
	}
	for _, c := range p.HealthyCodes {
		if c == code {
			return true
		}
	}
	return false
}

var profiles = map[string]Profile{
	GenericProfile:  {Path: "/"},
	"proxmox":       {Path: "/api2/json/version", HealthyCodes: []int{200}, Inspect: proxmoxBody},
	"unifi-network": {Path: "/", HealthyCodes: []int{200, 302}},
	"unifi-protect": {Path: "/proxy/protect/api", HealthyCodes: []int{200}},
	"homeassistant": {Path: "/api/", HealthyCodes: []int{200}},
	"plex": {
		Path:         "/identity",
		HealthyCodes: []int{200},
		Headers:      map[string]string{"Accept": "application/json"},
		Inspect:      plexBody,
	},
	"overseerr": {Path: "/api/v1/status", HealthyCodes: []int{200}, Inspect: overseerrBody},
	"tautulli": {
		Path:         "/api/v2",
		Query:        url.Values{"cmd": {"status"}},
		HealthyCodes: []int{200},
		Inspect:      tautulliBody,
	},
	"arrs":   {Path: "/api/v3/health", HealthyCodes: []int{200}, Inspect: arrHealthBody},
	"radarr": {Path: "/api/v3/health", HealthyCodes: []int{200}, Inspect: arrHealthBody},
	"sonarr": {Path: "/api/v3/health", HealthyCodes: []int{200}, Inspect: arrHealthBody},
	"ollama": {Path: "/api/tags", HealthyCodes: []int{200}, Inspect: ollamaBody},
	"n8n":    {Path: "/healthz", HealthyCodes: []int{200, 204}},
}

// Names lists every known check type.
func Names() []string {
	names := make([]string, 0, len(profiles))
	for n := range profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Known reports whether checkType has a dedicated profile.
func Known(checkType string) bool {
	_, ok := profiles[checkType]
	return ok
}

// Lookup returns a copy of the profile for checkType, falling back to the
// generic profile.
func Lookup(checkType string) Profile {
	p, ok := profiles[checkType]
	name := checkType
	if !ok {
		p = profiles[GenericProfile]
		name = GenericProfile
	}
	p.Name = name
	p.HealthyCodes = append([]int(nil), p.HealthyCodes...)
	p.Query = cloneValues(p.Query)
	p.Headers = cloneHeaders(p.Headers)
	return p
}

// For resolves the effective profile for a service: the check type's profile
// with the definition's path, status codes and extra headers layered on top.
func For(def catalog.ServiceDefinition) Profile {
	p := Lookup(def.CheckType)
	if def.Path != "" {
		p.Path = def.Path
	}
	if len(def.HealthyStatusCodes) > 0 {
		p.HealthyCodes = append([]int(nil), def.HealthyStatusCodes...)
	}
	for k, v := range def.ExtraHeaders {
		if p.Headers == nil {
			p.Headers = make(map[string]string, len(def.ExtraHeaders))
		}
		p.Headers[k] = v
	}
	return p
}

func cloneValues(v url.Values) url.Values {
	if v == nil {
		return nil
	}
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}

func cloneHeaders(h map[string]string) map[string]string {
	if h == nil {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

const malformed = "malformed response body"

func tautulliBody(body []byte) (status.Status, string) {
	if !gjson.ValidBytes(body) {
		return status.Degraded, malformed
	}
	result := gjson.GetBytes(body, "response.result").String()
	if result != "success" {
		if msg := gjson.GetBytes(body, "response.message").String(); msg != "" {
			return status.Degraded, "tautulli: " + msg
		}
		return status.Degraded, fmt.Sprintf("tautulli result %q", result)
	}
	return status.Healthy, ""
}

func arrHealthBody(body []byte) (status.Status, string) {
	if !gjson.ValidBytes(body) {
		return status.Degraded, malformed
	}
	items := gjson.ParseBytes(body)
	if !items.IsArray() {
		return status.Degraded, malformed
	}

	var errs, warnings int
	items.ForEach(func(_, item gjson.Result) bool {
		switch item.Get("type").String() {
		case "error":
			errs++
		case "warning":
			warnings++
		}
		return true
	})

	switch {
	case errs > 0:
		return status.Degraded, fmt.Sprintf("%d health errors, %d warnings", errs, warnings)
	case warnings > 0:
		return status.Degraded, fmt.Sprintf("%d health warnings", warnings)
	}
	return status.Healthy, ""
}

func proxmoxBody(body []byte) (status.Status, string) {
	return requireField(body, "data.version", "proxmox")
}

func plexBody(body []byte) (status.Status, string) {
	return requireField(body, "MediaContainer.machineIdentifier", "plex")
}

func overseerrBody(body []byte) (status.Status, string) {
	return requireField(body, "version", "overseerr")
}

func ollamaBody(body []byte) (status.Status, string) {
	if !gjson.ValidBytes(body) {
		return status.Degraded, malformed
	}
	models := gjson.GetBytes(body, "models")
	if !models.IsArray() {
		return status.Degraded, "ollama: no model list"
	}
	return status.Healthy, fmt.Sprintf("%d models", len(models.Array()))
}

func requireField(body []byte, path, name string) (status.Status, string) {
	if !gjson.ValidBytes(body) {
		return status.Degraded, malformed
	}
	v := gjson.GetBytes(body, path)
	if !v.Exists() || v.String() == "" {
		return status.Degraded, name + ": missing " + path
	}
	return status.Healthy, ""
}
