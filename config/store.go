package config

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/pelletier/go-toml/v2"
)

// Store keeps connection profiles keyed by name and persists them, together
// with the rest of the configuration, to a TOML file.
type Store struct {
	Path string

	mu  sync.RWMutex
	cfg Config
}

// OpenStore loads path into a Store. A missing file yields an empty store.
func OpenStore(path string) (*Store, error) {
	s := &Store{Path: path}
	cfg, err := LoadConfig(path)
	if os.IsNotExist(err) {
		s.cfg = Config{}.WithDefaults()
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	s.cfg = *cfg
	return s, nil
}

// Config returns a copy of the loaded configuration.
func (s *Store) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.cfg
	c.Profiles = append([]Profile(nil), s.cfg.Profiles...)
	c.Jobs = append([]Job(nil), s.cfg.Jobs...)
	return c
}

func (s *Store) Get(name string) (Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.index(name); i >= 0 {
		return s.cfg.Profiles[i], true
	}
	return Profile{}, false
}

func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.cfg.Profiles))
	for _, p := range s.cfg.Profiles {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}

func (s *Store) Add(p Profile) error {
	if p.Name == "" {
		return fmt.Errorf("profile name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index(p.Name) >= 0 {
		return fmt.Errorf("profile %q already exists", p.Name)
	}
	s.cfg.Profiles = append(s.cfg.Profiles, p.WithDefaults())
	return nil
}

// Update replaces the profile stored under oldName. The new profile may carry a
// different name as long as it does not collide with another profile.
func (s *Store) Update(oldName string, p Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(oldName)
	if i < 0 {
		return fmt.Errorf("profile %q not found", oldName)
	}
	if p.Name != oldName && s.index(p.Name) >= 0 {
		return fmt.Errorf("profile %q already exists", p.Name)
	}
	s.cfg.Profiles[i] = p.WithDefaults()
	return nil
}

func (s *Store) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(name)
	if i < 0 {
		return fmt.Errorf("profile %q not found", name)
	}
	s.cfg.Profiles = append(s.cfg.Profiles[:i], s.cfg.Profiles[i+1:]...)
	return nil
}

func (s *Store) Save() error {
	s.mu.RLock()
	data, err := toml.Marshal(s.cfg)
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	return os.WriteFile(s.Path, data, 0600)
}

func (s *Store) index(name string) int {
	for i, p := range s.cfg.Profiles {
		if p.Name == name {
			return i
		}
	}
	return -1
}
