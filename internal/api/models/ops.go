package models

// Health is the liveness body.
type Health struct {
	Status  HealthStatus   `json:"status"`
	Time    Timestamp      `json:"time"`
	Details map[string]any `json:"details,omitempty"`
}

// Readiness reports whether a completed refresh has been published.
type Readiness struct {
	Status          HealthStatus `json:"status"`
	Time            Timestamp    `json:"time"`
	Services        int          `json:"services"`
	LastRefreshAt   *Timestamp   `json:"last_refresh_at"`
	CacheAgeSeconds *int         `json:"cache_age_seconds"`
}

// SystemStatus is the admin view of the process and its dependencies.
type SystemStatus struct {
	Status       HealthStatus       `json:"status"`
	Time         Timestamp          `json:"time"`
	Scheduler    map[string]any     `json:"scheduler,omitempty"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// DependencyStatus is one guarded dependency.
type DependencyStatus struct {
	Name          string       `json:"name"`
	Status        HealthStatus `json:"status"`
	CircuitState  string       `json:"circuit_state"`
	LastSuccessAt *Timestamp   `json:"last_success_at,omitempty"`
	LastFailureAt *Timestamp   `json:"last_failure_at,omitempty"`
	Message       *string      `json:"message,omitempty"`
}
