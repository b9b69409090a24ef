package scheduler

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDispatcher struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeDispatcher) add(s string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, s)
	return nil
}

func (f *fakeDispatcher) ApplyProfile(name string) error { return f.add("profile " + name) }
func (f *fakeDispatcher) RunCustom(name string) error    { return f.add("custom " + name) }
func (f *fakeDispatcher) Refresh() error                 { return f.add("refresh") }
func (f *fakeDispatcher) Stop()                          { _ = f.add("stop") }

func TestValidateCommand(t *testing.T) {
	for _, ok := range []string{"profile night", "custom police", "refresh", "stop"} {
		assert.NoError(t, ValidateCommand(ok), ok)
	}
	for _, bad := range []string{"", "profile", "custom a b", "refresh now", "power on", "pattern x.lua"} {
		assert.Error(t, ValidateCommand(bad), bad)
	}
}

func TestExecuteDispatches(t *testing.T) {
	d := &fakeDispatcher{}
	s := New(d, filepath.Join(t.TempDir(), "schedules.json"))

	for _, cmd := range []string{"profile night", "custom police", "refresh", "stop"} {
		s.execute(cmd)
	}
	assert.Equal(t, []string{"profile night", "custom police", "refresh", "stop"}, d.calls)
}

func TestAddRemovePersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedules.json")
	s := New(&fakeDispatcher{}, path)

	night, err := s.Add("0 22 * * *", "profile night")
	require.NoError(t, err)
	_, err = s.Add("0 7 * * *", "refresh")
	require.NoError(t, err)

	_, err = s.Add("not a spec", "refresh")
	assert.Error(t, err)
	_, err = s.Add("* * * * *", "power on")
	assert.Error(t, err)
	assert.Len(t, s.All(), 2)

	reloaded := New(&fakeDispatcher{}, path)
	entries := reloaded.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "profile night", entries[0].Command)
	assert.Equal(t, "0 22 * * *", entries[0].Spec)

	require.NoError(t, s.Remove(night.ID))
	assert.ErrorIs(t, s.Remove(night.ID), ErrUnknownSchedule)
	assert.Len(t, New(&fakeDispatcher{}, path).All(), 1)
}
