// Package observation turns the stream of per-cycle samples into durable
// operational metadata: last change times, incident history and flapping.
package observation

import (
	"sort"
	"time"

	"github.com/marcleai/statusboard/internal/status"
)

// Observation is the persisted per-service record.
type Observation struct {
	LastStatus       status.Status `json:"last_status"`
	LastChangedAt    time.Time     `json:"last_changed_at,omitzero"`
	LastSeenAt       time.Time     `json:"last_seen_at,omitzero"`
	ChangeTimestamps []time.Time   `json:"change_timestamps"`
	Flapping         bool          `json:"flapping"`
}

func (o Observation) clone() Observation {
	o.ChangeTimestamps = append([]time.Time(nil), o.ChangeTimestamps...)
	return o
}

// Update describes what one Record call changed.
type Update struct {
	ServiceID string
	Status    status.Status
	Changed   bool
	Incident  *status.Incident
	Flapping  bool
}

// State is everything the store persists.
type State struct {
	Services     map[string]Observation
	LastIncident *status.Incident
	History      []status.Incident
}

// NewState returns an empty state.
func NewState() State {
	return State{Services: make(map[string]Observation)}
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := State{
		Services: make(map[string]Observation, len(s.Services)),
		History:  append([]status.Incident(nil), s.History...),
	}
	for id, o := range s.Services {
		out.Services[id] = o.clone()
	}
	if s.LastIncident != nil {
		inc := *s.LastIncident
		out.LastIncident = &inc
	}
	return out
}

// normalize drops invalid entries and caps history, keeping the newest.
func (s *State) normalize(historyLimit int) {
	if s.Services == nil {
		s.Services = make(map[string]Observation)
	}
	for id, o := range s.Services {
		if id == "" {
			delete(s.Services, id)
			continue
		}
		if !o.LastStatus.Valid() {
			o.LastStatus = status.Unknown
		}
		sort.Slice(o.ChangeTimestamps, func(i, j int) bool { return o.ChangeTimestamps[i].Before(o.ChangeTimestamps[j]) })
		s.Services[id] = o
	}

	kept := s.History[:0]
	for _, inc := range s.History {
		if inc.ServiceID == "" || !inc.From.Valid() || !inc.To.Valid() || inc.At.IsZero() {
			continue
		}
		kept = append(kept, inc)
	}
	s.History = kept
	if historyLimit > 0 && len(s.History) > historyLimit {
		s.History = append([]status.Incident(nil), s.History[len(s.History)-historyLimit:]...)
	}
	if s.LastIncident != nil && (s.LastIncident.ServiceID == "" || s.LastIncident.At.IsZero()) {
		s.LastIncident = nil
	}
}
