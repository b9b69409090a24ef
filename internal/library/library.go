// Package library keeps the named lighting profiles in a YAML file.
package library

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"kblight/internal/core"
)

// ErrUnknownProfile is returned for names that are not in the library.
var ErrUnknownProfile = errors.New("unknown profile")

// Library is a set of named profiles backed by a YAML file. Every change is
// written back immediately.
type Library struct {
	mu       sync.RWMutex
	path     string
	profiles map[string]core.Profile
	bus      *core.EventBus
	logger   zerolog.Logger
}

// Open loads the library at path. A missing file is an empty library.
func Open(path string) (*Library, error) {
	l := &Library{
		path:     path,
		profiles: make(map[string]core.Profile),
		logger:   log.With().Str("component", "library").Logger(),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		l.logger.Info().Str("path", path).Msg("no profile library yet, starting empty")
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read profile library: %w", err)
	}

	var loaded map[string]core.Profile
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("parse profile library %s: %w", path, err)
	}
	for name, p := range loaded {
		p.Name = name
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("profile library %s: %w", path, err)
		}
		l.profiles[name] = p
	}
	l.logger.Info().Int("count", len(l.profiles)).Str("path", path).Msg("profiles loaded")
	return l, nil
}

// SetEventBus makes the library publish ProfilesChangedEvent on bus after
// every successful Put or Delete.
func (l *Library) SetEventBus(bus *core.EventBus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bus = bus
}

// Get returns the profile called name.
func (l *Library) Get(name string) (core.Profile, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.profiles[name]
	if !ok {
		return core.Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return p, nil
}

// Put stores p under name, replacing any previous profile of that name.
func (l *Library) Put(name string, p core.Profile) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("profile name is required")
	}
	p.Name = name
	if err := p.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.profiles[name] = p
	return l.commit()
}

// Delete removes name from the library.
func (l *Library) Delete(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.profiles[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	delete(l.profiles, name)
	return l.commit()
}

// commit saves the library and announces the change. Callers hold l.mu.
func (l *Library) commit() error {
	if err := l.save(); err != nil {
		return err
	}
	l.bus.Publish(core.Event{Type: core.ProfilesChangedEvent, Payload: l.names()})
	return nil
}

// Names lists the profile names in sorted order.
func (l *Library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.names()
}

func (l *Library) names() []string {
	names := make([]string, 0, len(l.profiles))
	for name := range l.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns a copy of every profile keyed by name.
func (l *Library) All() map[string]core.Profile {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]core.Profile, len(l.profiles))
	for name, p := range l.profiles {
		out[name] = p
	}
	return out
}

// Save writes the library to disk.
func (l *Library) Save() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.save()
}

func (l *Library) save() error {
	out := make(map[string]core.Profile, len(l.profiles))
	for name, p := range l.profiles {
		p.Name = ""
		out[name] = p
	}
	data, err := yaml.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode profile library: %w", err)
	}

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create profile library dir: %w", err)
		}
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write profile library: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("replace profile library: %w", err)
	}
	l.logger.Debug().Int("count", len(out)).Msg("profiles saved")
	return nil
}
