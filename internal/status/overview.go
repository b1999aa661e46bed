package status

import "time"

// ObservationFlags is the per-service metadata joined into the overview.
type ObservationFlags struct {
	LastStatus    Status
	LastChangedAt time.Time
	Flapping      bool
}

// OverviewService is one row of the overview.
type OverviewService struct {
	ID            string
	LastStatus    Status
	LastChangedAt *time.Time
	Flapping      bool
}

// Overview is the aggregate read model behind the overview endpoint.
type Overview struct {
	GeneratedAt     time.Time
	LastRefreshAt   *time.Time
	CacheAgeSeconds *int
	Overall         Status
	Counts          Counts
	LastIncident    *Incident
	Services        []OverviewService
}

// FlagsFunc looks up observation metadata for a service id.
type FlagsFunc func(id string) (ObservationFlags, bool)

// BuildOverview derives the overview from an already published snapshot. It
// performs no probing.
func BuildOverview(snap *Snapshot, flags FlagsFunc, last *Incident, now time.Time) Overview {
	ov := Overview{
		GeneratedAt:  now,
		Overall:      snap.Overall,
		Counts:       snap.Counts(),
		LastIncident: last,
		Services:     make([]OverviewService, 0, len(snap.Services)),
	}

	if !snap.RefreshedAt.IsZero() {
		refreshed := snap.RefreshedAt
		age := int(snap.Age(now) / time.Second)
		ov.LastRefreshAt = &refreshed
		ov.CacheAgeSeconds = &age
	}

	for _, v := range snap.Services {
		row := OverviewService{ID: v.ID, LastStatus: v.Status}
		if flags != nil {
			if f, ok := flags(v.ID); ok {
				row.LastStatus = f.LastStatus
				row.Flapping = f.Flapping
				if !f.LastChangedAt.IsZero() {
					changed := f.LastChangedAt
					row.LastChangedAt = &changed
				}
			}
		}
		ov.Services = append(ov.Services, row)
	}

	return ov
}
