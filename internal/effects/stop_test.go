package effects

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRaiseSetsBothFlags(t *testing.T) {
	s := NewStopSignals()
	assert.False(t, s.DeviceStopped())
	assert.False(t, s.WorkerStopped())

	e := s.Raise()
	assert.Equal(t, uint64(1), e)
	assert.True(t, s.DeviceStopped())
	assert.True(t, s.WorkerStopped())
}

func TestEnterClearsOnlyForCurrentEpoch(t *testing.T) {
	s := NewStopSignals()
	stale := s.Raise()
	current := s.Raise()

	tok := s.enter(stale)
	assert.True(t, tok.Stopped())
	assert.True(t, s.WorkerStopped())
	select {
	case <-tok.Context().Done():
	default:
		t.Fatal("stale token context not cancelled")
	}
	s.leave(tok)
	assert.True(t, s.WorkerStopped(), "stale leave must not clear flags")

	tok = s.enter(current)
	assert.False(t, tok.Stopped())
	assert.False(t, s.DeviceStopped())
	s.leave(tok)
	assert.False(t, s.WorkerStopped())
}

func TestRaiseWakesSleepingToken(t *testing.T) {
	s := NewStopSignals()
	tok := s.enter(s.Raise())

	go func() {
		time.Sleep(5 * time.Millisecond)
		s.Raise()
	}()

	start := time.Now()
	assert.True(t, tok.Sleep(time.Hour))
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, tok.Stopped())
}

func TestSleepCompletesWhenNotStopped(t *testing.T) {
	s := NewStopSignals()
	tok := s.enter(s.Raise())
	assert.False(t, tok.Sleep(time.Millisecond))
	assert.False(t, tok.Sleep(0))
}

func TestStaleEpochStaysStoppedAfterStoreFalse(t *testing.T) {
	s := NewStopSignals()
	tok := s.enter(s.Raise())
	s.Raise()
	s.StoreFalse()
	assert.True(t, tok.Stopped())
}
