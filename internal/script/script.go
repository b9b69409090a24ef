// Package script builds custom effects from Lua scripts.
//
// A script describes a custom effect declaratively; it never touches the
// keyboard. The helpers it can call are:
//
//	rgb(r, g, b)                 all four zones one color
//	zones(c1, c2, c3, c4)        one {r, g, b} per zone
//	set(colors, opts)            append a set step
//	transition(colors, opts)     append a transition step
//	loop([bool])                 repeat the steps until cancelled
//
// opts is a table with speed, brightness, sleep and, for transitions, steps
// and delay. Times are milliseconds.
package script

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"kblight/internal/core"
)

// DefaultTimeout bounds how long a script may run while building.
const DefaultTimeout = 2 * time.Second

// Store is the directory of Lua scripts.
type Store struct {
	dir     string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewStore returns a store over dir.
func NewStore(dir string) *Store {
	return &Store{
		dir:     dir,
		timeout: DefaultTimeout,
		logger:  log.With().Str("component", "script").Logger(),
	}
}

// Build runs the script called name and returns the effect it describes.
func (s *Store) Build(name string) (core.CustomEffect, error) {
	path, err := s.path(name)
	if err != nil {
		return core.CustomEffect{}, err
	}
	code, err := os.ReadFile(path)
	if err != nil {
		return core.CustomEffect{}, fmt.Errorf("read script: %w", err)
	}
	return s.BuildString(name, string(code))
}

// BuildString runs code and returns the effect it describes.
func (s *Store) BuildString(name, code string) (core.CustomEffect, error) {
	b := &builder{effect: core.CustomEffect{Name: strings.TrimSuffix(name, ".lua")}, logger: s.logger}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	L := lua.NewState()
	defer L.Close()
	L.SetContext(ctx)
	b.register(L)

	if err := L.DoString(code); err != nil {
		if ctx.Err() != nil {
			return core.CustomEffect{}, fmt.Errorf("script %q: timed out after %s", name, s.timeout)
		}
		return core.CustomEffect{}, fmt.Errorf("script %q: %w", name, err)
	}
	s.logger.Debug().Str("script", name).Int("steps", len(b.effect.Steps)).Bool("loop", b.effect.ShouldLoop).Msg("script built")
	return b.effect, nil
}
