package models

import "github.com/marcleai/statusboard/internal/status"

// ServiceStatus is one service in the public status payload. URL is only
// set when service URLs are exposed.
type ServiceStatus struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Group       string        `json:"group"`
	Status      status.Status `json:"status"`
	LatencyMs   *int          `json:"latency_ms"`
	URL         string        `json:"url,omitempty"`
	Description string        `json:"description,omitempty"`
	Icon        string        `json:"icon,omitempty"`
	Detail      string        `json:"detail,omitempty"`
	LastChecked *Timestamp    `json:"last_checked"`
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	GeneratedAt   Timestamp       `json:"generated_at"`
	OverallStatus status.Status   `json:"overall_status"`
	Services      []ServiceStatus `json:"services"`
}

// Incident is one recorded transition.
type Incident struct {
	ServiceID string        `json:"service_id"`
	From      status.Status `json:"from"`
	To        status.Status `json:"to"`
	At        Timestamp     `json:"at"`
}

// OverviewService is one row of the overview.
type OverviewService struct {
	ID            string        `json:"id"`
	LastStatus    status.Status `json:"last_status"`
	LastChangedAt *Timestamp    `json:"last_changed_at"`
	Flapping      bool          `json:"flapping"`
}

// OverviewResponse is the body of GET /api/overview.
type OverviewResponse struct {
	GeneratedAt     Timestamp         `json:"generated_at"`
	LastRefreshAt   *Timestamp        `json:"last_refresh_at"`
	CacheAgeSeconds *int              `json:"cache_age_seconds"`
	OverallStatus   status.Status     `json:"overall_status"`
	Counts          status.Counts     `json:"counts"`
	LastIncident    *Incident         `json:"last_incident"`
	Services        []OverviewService `json:"services"`
}

// ServiceDetail is a service's current sample joined with its observation.
type ServiceDetail struct {
	ServiceStatus
	LastChangedAt *Timestamp `json:"last_changed_at"`
	Flapping      bool       `json:"flapping"`
}

// ServiceDetailResponse is the body of GET /api/services/{id}.
type ServiceDetailResponse struct {
	Service         ServiceDetail `json:"service"`
	RecentIncidents []Incident    `json:"recent_incidents"`
}

// NewServiceStatus converts a snapshot view. The URL is dropped unless
// exposeURL is set.
func NewServiceStatus(v status.ServiceView, exposeURL bool) ServiceStatus {
	s := ServiceStatus{
		ID:          v.ID,
		Name:        v.Name,
		Group:       v.Group,
		Status:      v.Status,
		LatencyMs:   v.LatencyMs,
		Description: v.Description,
		Icon:        v.Icon,
		Detail:      v.Detail,
		LastChecked: TimestampPtr(v.LastChecked),
	}
	if exposeURL {
		s.URL = v.URL
	}
	return s
}

// NewIncident converts a recorded incident.
func NewIncident(i status.Incident) Incident {
	return Incident{ServiceID: i.ServiceID, From: i.From, To: i.To, At: Timestamp(i.At)}
}

// NewIncidents converts a list, never returning nil.
func NewIncidents(list []status.Incident) []Incident {
	out := make([]Incident, 0, len(list))
	for _, i := range list {
		out = append(out, NewIncident(i))
	}
	return out
}

// NewOverviewResponse converts an overview.
func NewOverviewResponse(ov status.Overview) OverviewResponse {
	resp := OverviewResponse{
		GeneratedAt:     Timestamp(ov.GeneratedAt),
		CacheAgeSeconds: ov.CacheAgeSeconds,
		OverallStatus:   ov.Overall,
		Counts:          ov.Counts,
		Services:        make([]OverviewService, 0, len(ov.Services)),
	}
	if ov.LastRefreshAt != nil {
		resp.LastRefreshAt = TimestampPtr(*ov.LastRefreshAt)
	}
	if ov.LastIncident != nil {
		inc := NewIncident(*ov.LastIncident)
		resp.LastIncident = &inc
	}
	for _, s := range ov.Services {
		row := OverviewService{ID: s.ID, LastStatus: s.LastStatus, Flapping: s.Flapping}
		if s.LastChangedAt != nil {
			row.LastChangedAt = TimestampPtr(*s.LastChangedAt)
		}
		resp.Services = append(resp.Services, row)
	}
	return resp
}
