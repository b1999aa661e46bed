package observation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/marcleai/statusboard/internal/status"
)

// FileRepository stores the state as one JSON document, replaced atomically
// on every save.
type FileRepository struct {
	path string
}

// NewFileRepository creates a repository backed by path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{path: path}
}

// Path returns the document path.
func (r *FileRepository) Path() string { return r.path }

type fileDocument struct {
	Services        map[string]fileObservation `json:"services"`
	LastIncident    *fileIncident              `json:"last_incident"`
	IncidentHistory []fileIncident             `json:"incident_history"`
}

type fileObservation struct {
	LastStatus       string   `json:"last_status"`
	LastChangedAt    string   `json:"last_changed_at,omitempty"`
	LastSeenAt       string   `json:"last_seen_at,omitempty"`
	ChangeTimestamps []string `json:"change_timestamps"`
	Flapping         bool     `json:"flapping"`
}

// fileIncident accepts both the from/to and from_status/to_status spellings
// on read and writes the latter.
type fileIncident struct {
	ServiceID  string `json:"service_id"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
	From       string `json:"from,omitempty"`
	To         string `json:"to,omitempty"`
	At         string `json:"at"`
}

// Load reads the document. A missing file yields an empty state; an
// undecodable one yields ErrCorrupt.
func (r *FileRepository) Load(ctx context.Context) (State, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewState(), nil
	}
	if err != nil {
		return State{}, fmt.Errorf("reading observations: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return NewState(), nil
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return State{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, filepath.Base(r.path), err)
	}
	return doc.state(), nil
}

// Save writes the document to a temp file in the same directory and renames
// it over the original.
func (r *FileRepository) Save(ctx context.Context, state State) error {
	data, err := json.MarshalIndent(newFileDocument(state), "", "  ")
	if err != nil {
		return fmt.Errorf("encoding observations: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating observations dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing observations: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing observations: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing observations: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("replacing observations: %w", err)
	}
	return nil
}

func newFileDocument(s State) fileDocument {
	doc := fileDocument{
		Services:        make(map[string]fileObservation, len(s.Services)),
		IncidentHistory: make([]fileIncident, 0, len(s.History)),
	}
	for id, o := range s.Services {
		ts := make([]string, 0, len(o.ChangeTimestamps))
		for _, t := range o.ChangeTimestamps {
			ts = append(ts, formatTime(t))
		}
		doc.Services[id] = fileObservation{
			LastStatus:       string(o.LastStatus),
			LastChangedAt:    formatTime(o.LastChangedAt),
			LastSeenAt:       formatTime(o.LastSeenAt),
			ChangeTimestamps: ts,
			Flapping:         o.Flapping,
		}
	}
	for _, inc := range s.History {
		doc.IncidentHistory = append(doc.IncidentHistory, toFileIncident(inc))
	}
	if s.LastIncident != nil {
		last := toFileIncident(*s.LastIncident)
		doc.LastIncident = &last
	}
	return doc
}

func (d fileDocument) state() State {
	s := NewState()
	for id, fo := range d.Services {
		o := Observation{
			LastStatus:    status.Status(fo.LastStatus),
			LastChangedAt: parseTime(fo.LastChangedAt),
			LastSeenAt:    parseTime(fo.LastSeenAt),
			Flapping:      fo.Flapping,
		}
		for _, raw := range fo.ChangeTimestamps {
			if t := parseTime(raw); !t.IsZero() {
				o.ChangeTimestamps = append(o.ChangeTimestamps, t)
			}
		}
		s.Services[id] = o
	}
	for _, fi := range d.IncidentHistory {
		s.History = append(s.History, fi.incident())
	}
	if d.LastIncident != nil {
		inc := d.LastIncident.incident()
		s.LastIncident = &inc
	}
	return s
}

func toFileIncident(inc status.Incident) fileIncident {
	return fileIncident{
		ServiceID:  inc.ServiceID,
		FromStatus: string(inc.From),
		ToStatus:   string(inc.To),
		At:         formatTime(inc.At),
	}
}

func (fi fileIncident) incident() status.Incident {
	from, to := fi.FromStatus, fi.ToStatus
	if from == "" {
		from = fi.From
	}
	if to == "" {
		to = fi.To
	}
	return status.Incident{
		ServiceID: fi.ServiceID,
		From:      status.Status(from),
		To:        status.Status(to),
		At:        parseTime(fi.At),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime accepts RFC 3339 with or without an offset; naive values are
// taken as UTC. Unparseable input yields the zero time.
func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// Ensure FileRepository implements Repository interface.
var _ Repository = (*FileRepository)(nil)
