// Package catalog owns the list of monitored service definitions.
package catalog

import (
	"encoding/json"
	"errors"

	"gopkg.in/yaml.v3"

	"github.com/marcleai/statusboard/internal/authref"
)

// Sentinel errors for catalog operations.
var (
	ErrServiceNotFound = errors.New("service not found")
	ErrServiceExists   = errors.New("service already exists")
)

// Group buckets services on the dashboard.
type Group string

// Known groups.
const (
	GroupCore       Group = "core"
	GroupMedia      Group = "media"
	GroupAutomation Group = "automation"
)

// ServiceDefinition declares one monitored service. It never carries secret
// values, only references to environment variables.
type ServiceDefinition struct {
	ID                 string            `json:"id" yaml:"id" validate:"required,max=64,serviceid"`
	Name               string            `json:"name" yaml:"name" validate:"required,max=100"`
	Group              Group             `json:"group" yaml:"group" validate:"required,oneof=core media automation"`
	URL                string            `json:"url" yaml:"url" validate:"omitempty,http_url"`
	CheckType          string            `json:"check_type,omitempty" yaml:"check_type,omitempty" validate:"omitempty,max=32"`
	Path               string            `json:"path,omitempty" yaml:"path,omitempty" validate:"omitempty,startswith=/"`
	Icon               string            `json:"icon,omitempty" yaml:"icon,omitempty"`
	Description        string            `json:"description,omitempty" yaml:"description,omitempty" validate:"max=500"`
	Enabled            bool              `json:"enabled" yaml:"enabled"`
	VerifySSL          bool              `json:"verify_ssl" yaml:"verify_ssl"`
	HealthyStatusCodes []int             `json:"healthy_status_codes,omitempty" yaml:"healthy_status_codes,omitempty" validate:"omitempty,dive,gte=100,lte=599"`
	AuthRef            *authref.Ref      `json:"auth_ref,omitempty" yaml:"auth_ref,omitempty"`
	ExtraHeaders       map[string]string `json:"extra_headers,omitempty" yaml:"extra_headers,omitempty"`
}

// definitionAlias has the same fields without the custom decoders, with
// Enabled as a pointer so an omitted field can default to true.
type definitionAlias struct {
	ID                 string            `json:"id" yaml:"id"`
	Name               string            `json:"name" yaml:"name"`
	Group              Group             `json:"group" yaml:"group"`
	URL                string            `json:"url" yaml:"url"`
	CheckType          string            `json:"check_type" yaml:"check_type"`
	Path               string            `json:"path" yaml:"path"`
	Icon               string            `json:"icon" yaml:"icon"`
	Description        string            `json:"description" yaml:"description"`
	Enabled            *bool             `json:"enabled" yaml:"enabled"`
	VerifySSL          bool              `json:"verify_ssl" yaml:"verify_ssl"`
	HealthyStatusCodes []int             `json:"healthy_status_codes" yaml:"healthy_status_codes"`
	AuthRef            *authref.Ref      `json:"auth_ref" yaml:"auth_ref"`
	ExtraHeaders       map[string]string `json:"extra_headers" yaml:"extra_headers"`
}

func (a definitionAlias) definition() ServiceDefinition {
	enabled := true
	if a.Enabled != nil {
		enabled = *a.Enabled
	}
	d := ServiceDefinition{
		ID:                 a.ID,
		Name:               a.Name,
		Group:              a.Group,
		URL:                a.URL,
		CheckType:          a.CheckType,
		Path:               a.Path,
		Icon:               a.Icon,
		Description:        a.Description,
		Enabled:            enabled,
		VerifySSL:          a.VerifySSL,
		HealthyStatusCodes: a.HealthyStatusCodes,
		AuthRef:            a.AuthRef,
		ExtraHeaders:       a.ExtraHeaders,
	}
	d.normalize()
	return d
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *ServiceDefinition) UnmarshalJSON(data []byte) error {
	var a definitionAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*d = a.definition()
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *ServiceDefinition) UnmarshalYAML(value *yaml.Node) error {
	var a definitionAlias
	if err := value.Decode(&a); err != nil {
		return err
	}
	*d = a.definition()
	return nil
}

func (d *ServiceDefinition) normalize() {
	if d.AuthRef != nil && d.AuthRef.Scheme == "" {
		d.AuthRef.Scheme = authref.SchemeNone
	}
}

// Clone returns a deep copy.
func (d ServiceDefinition) Clone() ServiceDefinition {
	out := d
	if d.HealthyStatusCodes != nil {
		out.HealthyStatusCodes = append([]int(nil), d.HealthyStatusCodes...)
	}
	if d.AuthRef != nil {
		ref := *d.AuthRef
		out.AuthRef = &ref
	}
	if d.ExtraHeaders != nil {
		out.ExtraHeaders = make(map[string]string, len(d.ExtraHeaders))
		for k, v := range d.ExtraHeaders {
			out.ExtraHeaders[k] = v
		}
	}
	return out
}
