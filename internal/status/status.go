// Package status holds the normalized health vocabulary shared by the probe,
// the scheduler, the observation store and the HTTP layer, together with the
// published snapshot and the cell readers load it from.
package status

import "time"

// Status is the normalized health of one service.
type Status string

// Known statuses.
const (
	Healthy  Status = "healthy"
	Degraded Status = "degraded"
	Down     Status = "down"
	Unknown  Status = "unknown"
)

// All lists statuses in reporting order.
var All = []Status{Healthy, Degraded, Down, Unknown}

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	switch s {
	case Healthy, Degraded, Down, Unknown:
		return true
	}
	return false
}

// severity orders statuses for aggregation: down > degraded > unknown > healthy.
func (s Status) severity() int {
	switch s {
	case Down:
		return 3
	case Degraded:
		return 2
	case Unknown:
		return 1
	case Healthy:
		return 0
	default:
		return 1
	}
}

// Worse returns the more severe of a and b.
func Worse(a, b Status) Status {
	if b.severity() > a.severity() {
		return b
	}
	return a
}

// Overall aggregates statuses, worst wins. An empty set is healthy.
func Overall(statuses ...Status) Status {
	overall := Healthy
	for _, s := range statuses {
		overall = Worse(overall, s)
	}
	return overall
}

// Sample is the result of one probe.
type Sample struct {
	ServiceID string
	Status    Status
	LatencyMs *int
	Detail    string
	CheckedAt time.Time

	// Disabled marks the synthetic sample returned for a disabled service.
	Disabled bool
}

// Incident records one status transition.
type Incident struct {
	ServiceID string    `json:"service_id"`
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	At        time.Time `json:"at"`
}
