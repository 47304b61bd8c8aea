package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/stormguard/stormguard/internal/config"
	"gopkg.in/yaml.v3"
)

// Intent maps a spoken phrase to a panel action
type Intent struct {
	Phrase   string   `yaml:"phrase" json:"phrase"`
	Action   string   `yaml:"action" json:"action"`
	ServerID string   `yaml:"server_id" json:"server_id"`
	Roles    []string `yaml:"roles,omitempty" json:"roles,omitempty"`
}

// stateFile is the on-disk layout
type stateFile struct {
	Entities map[string]Entity `yaml:"entities"`
	Intents  []Intent          `yaml:"intents"`
}

// Store holds entity settings and assistant intents and persists every change
type Store struct {
	log      zerolog.Logger
	path     string
	seeds    map[string]config.EntityConfig
	mu       sync.RWMutex
	entities map[string]Entity
	intents  []Intent
}

// Open loads the state file at path (missing is fine) and seeds entities from config
// that the file does not know yet.
func Open(path string, seeds map[string]config.EntityConfig, log zerolog.Logger) (*Store, error) {
	s := &Store{
		log:   log.With().Str("component", "store").Logger(),
		path:  path,
		seeds: seeds,
	}

	entities, intents, seeded, err := s.load()
	if err != nil {
		return nil, err
	}
	s.entities = entities
	s.intents = intents
	if seeded > 0 {
		if err := s.saveLocked(); err != nil {
			return nil, err
		}
	}

	s.log.Info().
		Int("entities", len(s.entities)).
		Int("intents", len(s.intents)).
		Int("seeded", seeded).
		Msg("State loaded")

	return s, nil
}

// Reload re-reads the state file, picking up edits made while running.
// A file that fails to parse or validate leaves the current state untouched.
func (s *Store) Reload() error {
	entities, intents, seeded, err := s.load()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities = entities
	s.intents = intents
	if seeded > 0 {
		if err := s.saveLocked(); err != nil {
			return err
		}
	}

	s.log.Info().
		Int("entities", len(entities)).
		Int("intents", len(intents)).
		Msg("State reloaded")
	return nil
}

// load reads the state file and adds config seeds for entities it lacks
func (s *Store) load() (map[string]Entity, []Intent, int, error) {
	var st stateFile
	data, err := os.ReadFile(s.path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &st); err != nil {
			return nil, nil, 0, fmt.Errorf("parsing state file %s: %w", s.path, err)
		}
	case os.IsNotExist(err):
		s.log.Info().Str("path", s.path).Msg("State file not found, starting empty")
	default:
		return nil, nil, 0, fmt.Errorf("reading state file %s: %w", s.path, err)
	}

	entities := make(map[string]Entity, len(st.Entities)+len(s.seeds))
	for id, ent := range st.Entities {
		ent.ID = id
		ent.normalize()
		if ent.Location != nil {
			if err := validLocation(ent.Location.Latitude, ent.Location.Longitude); err != nil {
				return nil, nil, 0, fmt.Errorf("state file entity %s: %w", id, err)
			}
		}
		entities[id] = ent
	}

	seeded := 0
	for id, seed := range s.seeds {
		if _, ok := entities[id]; ok {
			continue
		}
		ent, err := fromConfig(id, seed)
		if err != nil {
			return nil, nil, 0, err
		}
		entities[id] = ent
		seeded++
	}
	return entities, st.Intents, seeded, nil
}

func fromConfig(id string, seed config.EntityConfig) (Entity, error) {
	ent := NewEntity(id)
	if seed.Latitude != nil && seed.Longitude != nil {
		if err := validLocation(*seed.Latitude, *seed.Longitude); err != nil {
			return Entity{}, fmt.Errorf("entity %s: %w", id, err)
		}
		ent.Location = &Location{Latitude: *seed.Latitude, Longitude: *seed.Longitude}
	}
	for _, a := range seed.Alerts {
		if !contains(ent.Alerts, a) {
			ent.Alerts = append(ent.Alerts, a)
		}
	}
	ent.Admins = append(ent.Admins, seed.Admins...)
	ent.AnnouncementChannel = seed.AnnouncementChannel
	ent.Enabled = seed.Enabled
	if seed.MonitoringInterval > 0 {
		ent.MonitoringInterval = seed.MonitoringInterval
	}
	ent.Servers = append(ent.Servers, seed.Servers...)
	return ent, nil
}

// Get returns a copy of the entity, or a fresh default one when it was never configured
func (s *Store) Get(id string) Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ent, ok := s.entities[id]; ok {
		return ent.clone()
	}
	return NewEntity(id)
}

// Lookup returns the entity only if it exists
func (s *Store) Lookup(id string) (Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ent, ok := s.entities[id]
	if !ok {
		return Entity{}, false
	}
	return ent.clone(), true
}

// List returns copies of all entities ordered by id
func (s *Store) List() []Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entity, 0, len(s.entities))
	for _, ent := range s.entities {
		out = append(out, ent.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetLocation sets both coordinates
func (s *Store) SetLocation(id string, lat, lon float64) (Entity, error) {
	if err := validLocation(lat, lon); err != nil {
		return Entity{}, err
	}
	return s.update(id, func(e *Entity) error {
		e.Location = &Location{Latitude: lat, Longitude: lon}
		return nil
	})
}

// ClearLocation removes the location, which pauses polling for the entity
func (s *Store) ClearLocation(id string) (Entity, error) {
	return s.update(id, func(e *Entity) error {
		e.Location = nil
		return nil
	})
}

// AddAdmin adds a notification target. Adding an existing one is a no-op.
func (s *Store) AddAdmin(id, admin string) (Entity, error) {
	admin = strings.TrimSpace(admin)
	if admin == "" {
		return Entity{}, ErrEmptyValue
	}
	return s.update(id, func(e *Entity) error {
		if !contains(e.Admins, admin) {
			e.Admins = append(e.Admins, admin)
		}
		return nil
	})
}

// RemoveAdmin removes a notification target
func (s *Store) RemoveAdmin(id, admin string) (Entity, error) {
	return s.update(id, func(e *Entity) error {
		e.Admins = without(e.Admins, admin)
		return nil
	})
}

// SetChannel sets the announcement target
func (s *Store) SetChannel(id, channel string) (Entity, error) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return Entity{}, ErrEmptyValue
	}
	return s.update(id, func(e *Entity) error {
		e.AnnouncementChannel = channel
		return nil
	})
}

// ClearChannel removes the announcement target
func (s *Store) ClearChannel(id string) (Entity, error) {
	return s.update(id, func(e *Entity) error {
		e.AnnouncementChannel = ""
		return nil
	})
}

// AddAlert starts tracking an event type
func (s *Store) AddAlert(id, alert string) (Entity, error) {
	alert = strings.TrimSpace(alert)
	if alert == "" {
		return Entity{}, ErrEmptyValue
	}
	return s.update(id, func(e *Entity) error {
		if contains(e.Alerts, alert) {
			return ErrAlreadyTracked
		}
		e.Alerts = append(e.Alerts, alert)
		return nil
	})
}

// RemoveAlert stops tracking an event type; the defaults are rejected
func (s *Store) RemoveAlert(id, alert string) (Entity, error) {
	alert = strings.TrimSpace(alert)
	if IsProtectedAlert(alert) {
		return s.Get(id), ErrProtectedAlert
	}
	return s.update(id, func(e *Entity) error {
		if !contains(e.Alerts, alert) {
			return ErrNotTracked
		}
		e.Alerts = without(e.Alerts, alert)
		return nil
	})
}

// Toggle flips enabled and returns the updated entity
func (s *Store) Toggle(id string) (Entity, error) {
	return s.update(id, func(e *Entity) error {
		e.Enabled = !e.Enabled
		return nil
	})
}

// AddServer adds a panel server stopped by the shutdown
func (s *Store) AddServer(id, server string) (Entity, error) {
	server = strings.TrimSpace(server)
	if server == "" {
		return Entity{}, ErrEmptyValue
	}
	return s.update(id, func(e *Entity) error {
		if !contains(e.Servers, server) {
			e.Servers = append(e.Servers, server)
		}
		return nil
	})
}

// RemoveServer removes a panel server
func (s *Store) RemoveServer(id, server string) (Entity, error) {
	return s.update(id, func(e *Entity) error {
		e.Servers = without(e.Servers, server)
		return nil
	})
}

// update applies fn to a copy and commits it only when fn and the save both succeed
func (s *Store) update(id string, fn func(*Entity) error) (Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.entities[id]
	next := NewEntity(id)
	if existed {
		next = prev.clone()
	}

	if err := fn(&next); err != nil {
		return next, err
	}

	s.entities[id] = next
	if err := s.saveLocked(); err != nil {
		if existed {
			s.entities[id] = prev
		} else {
			delete(s.entities, id)
		}
		return prev.clone(), err
	}

	return next.clone(), nil
}

// Intents returns the configured intents in insertion order
func (s *Store) Intents() []Intent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Intent, len(s.intents))
	for i, in := range s.intents {
		in.Roles = append([]string(nil), in.Roles...)
		out[i] = in
	}
	return out
}

// PutIntent adds an intent or replaces the one with the same phrase in place
func (s *Store) PutIntent(in Intent) error {
	if strings.TrimSpace(in.Phrase) == "" || in.Action == "" || in.ServerID == "" {
		return ErrEmptyValue
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.intents
	next := make([]Intent, 0, len(prev)+1)
	replaced := false
	for _, cur := range prev {
		if cur.Phrase == in.Phrase {
			next = append(next, in)
			replaced = true
			continue
		}
		next = append(next, cur)
	}
	if !replaced {
		next = append(next, in)
	}

	s.intents = next
	if err := s.saveLocked(); err != nil {
		s.intents = prev
		return err
	}
	return nil
}

// RemoveIntent deletes the intent with the phrase and reports whether it existed
func (s *Store) RemoveIntent(phrase string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.intents
	next := make([]Intent, 0, len(prev))
	for _, cur := range prev {
		if cur.Phrase != phrase {
			next = append(next, cur)
		}
	}
	if len(next) == len(prev) {
		return false, nil
	}

	s.intents = next
	if err := s.saveLocked(); err != nil {
		s.intents = prev
		return false, err
	}
	return true, nil
}

// saveLocked writes the state file atomically. Caller holds mu.
func (s *Store) saveLocked() error {
	if s.path == "" {
		return nil
	}

	data, err := yaml.Marshal(stateFile{Entities: s.entities, Intents: s.intents})
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".state-*.yaml")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing state: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing state file: %w", err)
	}

	s.log.Debug().Str("path", s.path).Msg("State saved")
	return nil
}
