package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// ChangeKind classifies a catalog mutation.
type ChangeKind string

// Change kinds.
const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
	ChangeToggled ChangeKind = "toggled"
	ChangeReload  ChangeKind = "reloaded"
)

// Change is emitted after every successful mutation or file reload.
type Change struct {
	Kind ChangeKind
	IDs  []string
}

// Reader is the read side of the catalog used by the refresh loop.
type Reader interface {
	List(ctx context.Context) ([]ServiceDefinition, error)
}

// Store keeps service definitions in a JSON or YAML file. Reads are served
// from memory and reloaded when the file's modification time changes.
// Mutations are written atomically before they become visible.
type Store struct {
	path   string
	logger zerolog.Logger

	mu       sync.RWMutex
	services []ServiceDefinition
	modTime  time.Time
	loaded   bool

	subMu sync.Mutex
	subs  []chan Change
}

// NewStore creates a store for the file at path.
func NewStore(path string, logger zerolog.Logger) *Store {
	return &Store{
		path:   path,
		logger: logger.With().Str("component", "catalog").Logger(),
	}
}

// NewMemoryStore creates a store that never touches disk.
func NewMemoryStore(services []ServiceDefinition) *Store {
	s := &Store{logger: zerolog.Nop(), loaded: true}
	for _, d := range services {
		d.normalize()
		s.services = append(s.services, d.Clone())
	}
	return s
}

// Path returns the backing file path; empty for memory stores.
func (s *Store) Path() string { return s.path }

// Load reads the backing file. A missing file yields an empty catalog.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.reloadLocked(true)
	return err
}

// List returns copies of every definition in file order.
func (s *Store) List(ctx context.Context) ([]ServiceDefinition, error) {
	if err := s.refresh(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.services), nil
}

// Get returns the definition with the given id.
func (s *Store) Get(ctx context.Context, id string) (ServiceDefinition, error) {
	if err := s.refresh(); err != nil {
		return ServiceDefinition{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := indexOf(s.services, id); i >= 0 {
		return s.services[i].Clone(), nil
	}
	return ServiceDefinition{}, ErrServiceNotFound
}

// Create adds a new definition. It fails with ErrServiceExists when the id is
// already taken.
func (s *Store) Create(ctx context.Context, def ServiceDefinition) (ServiceDefinition, error) {
	def.normalize()
	if err := Validate(def); err != nil {
		return ServiceDefinition{}, err
	}

	err := s.mutate(func(list []ServiceDefinition) ([]ServiceDefinition, error) {
		if indexOf(list, def.ID) >= 0 {
			return nil, fmt.Errorf("%w: %s", ErrServiceExists, def.ID)
		}
		return append(list, def.Clone()), nil
	})
	if err != nil {
		return ServiceDefinition{}, err
	}

	s.notify(Change{Kind: ChangeCreated, IDs: []string{def.ID}})
	return def.Clone(), nil
}

// Upsert replaces the definition with def.ID or appends it. The returned flag
// reports whether it was created.
func (s *Store) Upsert(ctx context.Context, def ServiceDefinition) (ServiceDefinition, bool, error) {
	def.normalize()
	if err := Validate(def); err != nil {
		return ServiceDefinition{}, false, err
	}

	created := false
	err := s.mutate(func(list []ServiceDefinition) ([]ServiceDefinition, error) {
		if i := indexOf(list, def.ID); i >= 0 {
			list[i] = def.Clone()
			return list, nil
		}
		created = true
		return append(list, def.Clone()), nil
	})
	if err != nil {
		return ServiceDefinition{}, false, err
	}

	kind := ChangeUpdated
	if created {
		kind = ChangeCreated
	}
	s.notify(Change{Kind: kind, IDs: []string{def.ID}})
	return def.Clone(), created, nil
}

// Delete removes the definition with the given id.
func (s *Store) Delete(ctx context.Context, id string) error {
	err := s.mutate(func(list []ServiceDefinition) ([]ServiceDefinition, error) {
		i := indexOf(list, id)
		if i < 0 {
			return nil, ErrServiceNotFound
		}
		return append(list[:i], list[i+1:]...), nil
	})
	if err != nil {
		return err
	}

	s.notify(Change{Kind: ChangeDeleted, IDs: []string{id}})
	return nil
}

// Toggle flips the enabled flag of one definition.
func (s *Store) Toggle(ctx context.Context, id string) (ServiceDefinition, error) {
	var out ServiceDefinition
	err := s.mutate(func(list []ServiceDefinition) ([]ServiceDefinition, error) {
		i := indexOf(list, id)
		if i < 0 {
			return nil, ErrServiceNotFound
		}
		list[i].Enabled = !list[i].Enabled
		out = list[i].Clone()
		return list, nil
	})
	if err != nil {
		return ServiceDefinition{}, err
	}

	s.notify(Change{Kind: ChangeToggled, IDs: []string{id}})
	return out, nil
}

// BulkSetEnabled sets the enabled flag on every listed id. Unknown ids are
// returned separately; if none match, ErrServiceNotFound is returned.
func (s *Store) BulkSetEnabled(ctx context.Context, ids []string, enabled bool) (updated []string, missing []string, err error) {
	err = s.mutate(func(list []ServiceDefinition) ([]ServiceDefinition, error) {
		for _, id := range ids {
			i := indexOf(list, id)
			if i < 0 {
				missing = append(missing, id)
				continue
			}
			list[i].Enabled = enabled
			updated = append(updated, id)
		}
		if len(updated) == 0 {
			return nil, ErrServiceNotFound
		}
		return list, nil
	})
	if err != nil {
		return nil, missing, err
	}

	s.notify(Change{Kind: ChangeToggled, IDs: updated})
	return updated, missing, nil
}

// Subscribe returns a channel receiving every change. Slow subscribers drop
// notifications rather than block writers.
func (s *Store) Subscribe() <-chan Change {
	ch := make(chan Change, 32)
	s.subMu.Lock()
	s.subs = append(s.subs, ch)
	s.subMu.Unlock()
	return ch
}

func (s *Store) notify(c Change) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- c:
		default:
			s.logger.Warn().Str("kind", string(c.Kind)).Msg("catalog subscriber is behind, dropping change")
		}
	}
}

// mutate applies fn to a copy of the list, persists the result and only then
// commits it in memory.
func (s *Store) mutate(fn func([]ServiceDefinition) ([]ServiceDefinition, error)) error {
	if err := s.refresh(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := fn(cloneAll(s.services))
	if err != nil {
		return err
	}

	if s.path != "" {
		if err := writeAtomic(s.path, next); err != nil {
			return fmt.Errorf("saving catalog: %w", err)
		}
		if info, err := os.Stat(s.path); err == nil {
			s.modTime = info.ModTime()
		}
	}
	s.services = next
	return nil
}

// refresh reloads the file if it changed on disk since the last read.
func (s *Store) refresh() error {
	if s.path == "" {
		return nil
	}

	s.mu.RLock()
	loaded, known := s.loaded, s.modTime
	s.mu.RUnlock()

	if loaded {
		info, err := os.Stat(s.path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			if known.IsZero() {
				return nil
			}
		case err != nil:
			return fmt.Errorf("stat catalog: %w", err)
		case info.ModTime().Equal(known):
			return nil
		}
	}

	s.mu.Lock()
	changed, err := s.reloadLocked(false)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if changed {
		s.notify(Change{Kind: ChangeReload})
	}
	return nil
}

func (s *Store) reloadLocked(force bool) (bool, error) {
	info, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		changed := s.loaded && len(s.services) > 0
		s.services, s.modTime, s.loaded = nil, time.Time{}, true
		return changed, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat catalog: %w", err)
	}
	if !force && s.loaded && info.ModTime().Equal(s.modTime) {
		return false, nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return false, fmt.Errorf("reading catalog: %w", err)
	}
	services, err := Parse(data, s.path)
	if err != nil {
		return false, err
	}

	s.services, s.modTime, s.loaded = services, info.ModTime(), true
	s.logger.Info().Int("services", len(services)).Str("path", s.path).Msg("catalog loaded")
	return true, nil
}

// Parse decodes a catalog document: either a bare list or an object with a
// "services" key, as JSON or YAML. Every entry is validated.
func Parse(data []byte, name string) ([]ServiceDefinition, error) {
	var services []ServiceDefinition
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var err error
	if isYAML(name) {
		services, err = decodeYAML(data)
	} else {
		services, err = decodeJSON(data)
		if err != nil {
			// Tolerate YAML content behind a .json name.
			if alt, yerr := decodeYAML(data); yerr == nil {
				services, err = alt, nil
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("decoding catalog %s: %w", filepath.Base(name), err)
	}

	seen := make(map[string]struct{}, len(services))
	for i, d := range services {
		if err := Validate(d); err != nil {
			return nil, fmt.Errorf("service #%d (%s): %w", i, d.ID, err)
		}
		if _, dup := seen[d.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %s", ErrServiceExists, d.ID)
		}
		seen[d.ID] = struct{}{}
	}
	return services, nil
}

type wrapped struct {
	Services []ServiceDefinition `json:"services" yaml:"services"`
}

func decodeJSON(data []byte) ([]ServiceDefinition, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var w wrapped
		if err := json.Unmarshal(trimmed, &w); err != nil {
			return nil, err
		}
		return w.Services, nil
	}
	var list []ServiceDefinition
	if err := json.Unmarshal(trimmed, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func decodeYAML(data []byte) ([]ServiceDefinition, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	if len(node.Content) == 0 {
		return nil, nil
	}
	root := node.Content[0]
	if root.Kind == yaml.MappingNode {
		var w wrapped
		if err := root.Decode(&w); err != nil {
			return nil, err
		}
		return w.Services, nil
	}
	var list []ServiceDefinition
	if err := root.Decode(&list); err != nil {
		return nil, err
	}
	return list, nil
}

// Encode renders services in the format implied by name.
func Encode(services []ServiceDefinition, name string) ([]byte, error) {
	if services == nil {
		services = []ServiceDefinition{}
	}
	if isYAML(name) {
		return yaml.Marshal(wrapped{Services: services})
	}
	out, err := json.MarshalIndent(services, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

func writeAtomic(path string, services []ServiceDefinition) error {
	data, err := Encode(services, path)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

func indexOf(list []ServiceDefinition, id string) int {
	for i, d := range list {
		if d.ID == id {
			return i
		}
	}
	return -1
}

func cloneAll(list []ServiceDefinition) []ServiceDefinition {
	out := make([]ServiceDefinition, len(list))
	for i, d := range list {
		out[i] = d.Clone()
	}
	return out
}

var _ Reader = (*Store)(nil)
