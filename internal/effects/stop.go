package effects

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// StopSignals is the cancellation state shared between the worker, the
// producers and whatever effect is running on the worker's stack.
//
// The device-level and worker-level flags are always stored together; the
// keyboard polls the first inside its own loops, drivers poll the second
// through their Token. On top of the flags every submitted command takes a
// fresh epoch, so a command that was superseded before or while it ran can
// never mistake a later clear for permission to keep going.
type StopSignals struct {
	device atomic.Bool
	worker atomic.Bool
	epoch  atomic.Uint64

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewStopSignals returns signals at epoch zero, not stopped.
func NewStopSignals() *StopSignals {
	return &StopSignals{}
}

// StoreTrue sets both flags.
func (s *StopSignals) StoreTrue() {
	s.device.Store(true)
	s.worker.Store(true)
}

// StoreFalse clears both flags.
func (s *StopSignals) StoreFalse() {
	s.device.Store(false)
	s.worker.Store(false)
}

// DeviceStopped reports the device-level flag.
func (s *StopSignals) DeviceStopped() bool {
	return s.device.Load()
}

// WorkerStopped reports the worker-level flag.
func (s *StopSignals) WorkerStopped() bool {
	return s.worker.Load()
}

// Epoch returns the most recently issued epoch.
func (s *StopSignals) Epoch() uint64 {
	return s.epoch.Load()
}

// Raise issues a new epoch and tells whatever is running to stop. The
// returned epoch is stamped on the command that caused the raise.
func (s *StopSignals) Raise() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.epoch.Add(1)
	s.StoreTrue()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return e
}

// enter hands out the token for a command stamped with epoch. The flags are
// only cleared if no newer command has been submitted; otherwise the token
// starts out stopped.
func (s *StopSignals) enter(epoch uint64) *Token {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	t := &Token{signals: s, epoch: epoch, ctx: ctx, cancel: cancel}
	if epoch == s.epoch.Load() {
		s.StoreFalse()
		s.cancel = cancel
	} else {
		cancel()
	}
	return t
}

// leave restores the not-stopped baseline after a command, again only if
// it is still the newest one.
func (s *StopSignals) leave(t *Token) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.epoch == s.epoch.Load() {
		s.StoreFalse()
		s.cancel = nil
	}
	t.cancel()
}

// Token is the cancellation token of a single command.
type Token struct {
	signals *StopSignals
	epoch   uint64
	ctx     context.Context
	cancel  context.CancelFunc
}

// Epoch is the epoch the token was issued for.
func (t *Token) Epoch() uint64 {
	return t.epoch
}

// Stopped reports whether the command should stop: the worker-level flag
// is up or a newer command has been submitted.
func (t *Token) Stopped() bool {
	return t.signals.WorkerStopped() || t.signals.Epoch() != t.epoch
}

// Context is cancelled when the token is raised.
func (t *Token) Context() context.Context {
	return t.ctx
}

// Sleep waits for d. It returns true, possibly early, if the command was
// cancelled.
func (t *Token) Sleep(d time.Duration) bool {
	if d <= 0 {
		return t.Stopped()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return t.Stopped()
	case <-t.ctx.Done():
		return true
	}
}
