package models

import (
	"github.com/marcleai/statusboard/internal/authref"
	"github.com/marcleai/statusboard/internal/catalog"
)

// AdminService is a service definition plus whether its credential is
// currently resolvable. It never carries the credential itself.
type AdminService struct {
	catalog.ServiceDefinition
	CredentialPresent *bool `json:"credential_present"`
}

// AdminServicesResponse lists services for the admin API.
type AdminServicesResponse struct {
	Services []AdminService `json:"services"`
}

// BulkRequest enables or disables several services at once.
type BulkRequest struct {
	IDs     []string `json:"ids" validate:"required,min=1,dive,required"`
	Enabled *bool    `json:"enabled" validate:"required"`
}

// BulkResponse reports the services changed by a bulk request.
type BulkResponse struct {
	Services []AdminService `json:"services"`
	Missing  []string       `json:"missing,omitempty"`
}

// NewAdminService annotates d with its credential presence.
func NewAdminService(d catalog.ServiceDefinition, env authref.Env) AdminService {
	return AdminService{ServiceDefinition: d, CredentialPresent: authref.Present(d.AuthRef, env)}
}

// NewAdminServices annotates a list.
func NewAdminServices(list []catalog.ServiceDefinition, env authref.Env) []AdminService {
	out := make([]AdminService, 0, len(list))
	for _, d := range list {
		out = append(out, NewAdminService(d, env))
	}
	return out
}
