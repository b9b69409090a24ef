// Package scheduler runs lighting commands on cron schedules.
package scheduler

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Dispatcher carries out scheduled commands.
type Dispatcher interface {
	ApplyProfile(name string) error
	RunCustom(name string) error
	Refresh() error
	Stop()
}

// Entry is a saved schedule.
type Entry struct {
	ID      int    `json:"id"`
	Spec    string `json:"spec"`
	Command string `json:"command"`
}

// ErrUnknownSchedule is returned when removing an id that does not exist.
var ErrUnknownSchedule = errors.New("unknown schedule")

// Scheduler owns the cron runner and the schedules file.
type Scheduler struct {
	cron          *cron.Cron
	store         map[cron.EntryID]Entry
	dispatcher    Dispatcher
	mu            sync.RWMutex
	schedulesFile string
	logger        zerolog.Logger
}

// New creates a scheduler and loads schedulesFile. Entries that no longer
// parse are logged and skipped.
func New(d Dispatcher, schedulesFile string) *Scheduler {
	s := &Scheduler{
		cron:          cron.New(),
		store:         make(map[cron.EntryID]Entry),
		dispatcher:    d,
		schedulesFile: schedulesFile,
		logger:        log.With().Str("component", "scheduler").Logger(),
	}
	s.load()
	return s
}

// Start begins firing schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Int("count", len(s.All())).Msg("scheduler started")
}

// Stop halts the cron runner and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("scheduler stopped")
}

// Add validates command, registers it under spec and saves the file.
func (s *Scheduler) Add(spec, command string) (Entry, error) {
	command = strings.TrimSpace(command)
	if err := ValidateCommand(command); err != nil {
		return Entry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(spec, func() { s.execute(command) })
	if err != nil {
		return Entry{}, fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	entry := Entry{ID: int(id), Spec: spec, Command: command}
	s.store[id] = entry
	s.save()
	s.logger.Info().Int("id", entry.ID).Str("spec", spec).Str("command", command).Msg("schedule added")
	return entry, nil
}

// Remove deletes a schedule.
func (s *Scheduler) Remove(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID := cron.EntryID(id)
	if _, ok := s.store[entryID]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownSchedule, id)
	}
	s.cron.Remove(entryID)
	delete(s.store, entryID)
	s.save()
	s.logger.Info().Int("id", id).Msg("schedule removed")
	return nil
}

// All returns the schedules ordered by id.
func (s *Scheduler) All() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.store))
	for _, e := range s.store {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ValidateCommand checks that command is one the scheduler can run:
// "profile <name>", "custom <name>", "refresh" or "stop".
func ValidateCommand(command string) error {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return errors.New("empty command")
	}
	switch parts[0] {
	case "profile", "custom":
		if len(parts) != 2 {
			return fmt.Errorf("%s needs exactly one name", parts[0])
		}
	case "refresh", "stop":
		if len(parts) != 1 {
			return fmt.Errorf("%s takes no arguments", parts[0])
		}
	default:
		return fmt.Errorf("unknown command %q", parts[0])
	}
	return nil
}

func (s *Scheduler) execute(command string) {
	s.logger.Info().Str("command", command).Msg("running scheduled command")
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return
	}

	var err error
	switch parts[0] {
	case "profile":
		err = s.dispatcher.ApplyProfile(parts[1])
	case "custom":
		err = s.dispatcher.RunCustom(parts[1])
	case "refresh":
		err = s.dispatcher.Refresh()
	case "stop":
		s.dispatcher.Stop()
	}
	if err != nil {
		s.logger.Error().Err(err).Str("command", command).Msg("scheduled command failed")
	}
}

func (s *Scheduler) save() {
	entries := make([]Entry, 0, len(s.store))
	for _, e := range s.store {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		s.logger.Error().Err(err).Msg("encode schedules")
		return
	}
	if err := os.WriteFile(s.schedulesFile, data, 0o644); err != nil {
		s.logger.Error().Err(err).Str("path", s.schedulesFile).Msg("write schedules")
	}
}

func (s *Scheduler) load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.schedulesFile)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Error().Err(err).Msg("read schedules file")
		}
		return
	}

	var saved []Entry
	if err := json.Unmarshal(data, &saved); err != nil {
		s.logger.Error().Err(err).Msg("parse schedules file")
		return
	}

	s.logger.Info().Int("count", len(saved)).Str("path", s.schedulesFile).Msg("loading schedules")
	for _, entry := range saved {
		if err := ValidateCommand(entry.Command); err != nil {
			s.logger.Warn().Err(err).Str("command", entry.Command).Msg("skipping saved schedule")
			continue
		}
		command := entry.Command
		id, err := s.cron.AddFunc(entry.Spec, func() { s.execute(command) })
		if err != nil {
			s.logger.Warn().Err(err).Str("spec", entry.Spec).Msg("skipping saved schedule")
			continue
		}
		entry.ID = int(id)
		s.store[id] = entry
	}
}
