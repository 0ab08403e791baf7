package profile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

const fileName = "profiles.yaml"

// Storage reads and writes profiles.yaml. Each mutation is a
// load-modify-save under one lock.
type Storage struct {
	mu  sync.Mutex
	dir string
}

// NewStorage uses dir, normally config.DefaultConfigPath().
func NewStorage(dir string) *Storage {
	return &Storage{dir: dir}
}

func (s *Storage) path() string {
	return filepath.Join(s.dir, fileName)
}

// Load returns the stored profiles. A missing file is an empty config.
func (s *Storage) Load() (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Storage) loadLocked() (*Config, error) {
	data, err := os.ReadFile(s.path())
	if errors.Is(err, os.ErrNotExist) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.path(), err)
	}
	return &cfg, nil
}

func (s *Storage) saveLocked(cfg *Config) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal profiles: %w", err)
	}
	if err := os.WriteFile(s.path(), data, 0o644); err != nil {
		return fmt.Errorf("failed to write profiles file: %w", err)
	}
	return nil
}

func (s *Storage) update(fn func(cfg *Config) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, err := s.loadLocked()
	if err != nil {
		return err
	}
	if err := fn(cfg); err != nil {
		return err
	}
	return s.saveLocked(cfg)
}

// Set adds or replaces a profile. The first profile added becomes current.
func (s *Storage) Set(p Profile) error {
	if err := ValidateName(p.Name); err != nil {
		return err
	}
	if err := ValidateEndpoint(p.Endpoint); err != nil {
		return err
	}
	return s.update(func(cfg *Config) error {
		cfg.Put(p)
		if cfg.Current == "" {
			cfg.Current = p.Name
		}
		return nil
	})
}

// Use makes name the current profile.
func (s *Storage) Use(name string) error {
	return s.update(func(cfg *Config) error {
		if cfg.Get(name) == nil {
			return fmt.Errorf("profile %q not found", name)
		}
		cfg.Current = name
		return nil
	})
}

// Delete removes a profile.
func (s *Storage) Delete(name string) error {
	return s.update(func(cfg *Config) error {
		if !cfg.Remove(name) {
			return fmt.Errorf("profile %q not found", name)
		}
		return nil
	})
}

// Resolve returns the profile selected by name, by MCPGATEWAY_PROFILE or
// by the current setting, in that order. It returns nil without error when
// nothing is selected. A name that does not exist is an error.
func (s *Storage) Resolve(name string) (*Profile, error) {
	if name == "" {
		name = os.Getenv(EnvVar)
	}
	cfg, err := s.Load()
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = cfg.Current
		if name == "" {
			return nil, nil
		}
	}
	p := cfg.Get(name)
	if p == nil {
		return nil, fmt.Errorf("profile %q not found", name)
	}
	out := *p
	return &out, nil
}
