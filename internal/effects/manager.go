// Package effects runs lighting effects on the keyboard. A single worker
// goroutine owns the device and executes commands one at a time; submitting
// a new command cancels whatever effect is currently running.
package effects

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"kblight/internal/core"
	"kblight/internal/keyboard"
)

// ErrWorkerStopped is returned when a command is submitted after the worker
// has exited.
var ErrWorkerStopped = errors.New("effect worker stopped")

// OpenFunc acquires the device handle. It receives the device-level stop
// flag the keyboard should poll inside its own loops.
type OpenFunc func(stop keyboard.StopFlag) (Keyboard, error)

type options struct {
	poll    time.Duration
	bus     *core.EventBus
	rng     *rand.Rand
	sampler ScreenSampler
	thermo  Thermometer
	drivers map[core.EffectKind]Driver
}

// Option configures a Manager.
type Option func(*options)

// WithPollInterval bounds how long the worker blocks on an empty mailbox.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) { o.poll = d }
}

// WithEventBus publishes effect changes on bus.
func WithEventBus(bus *core.EventBus) Option {
	return func(o *options) { o.bus = bus }
}

// WithRand sets the random source of the random effects.
func WithRand(rng *rand.Rand) Option {
	return func(o *options) { o.rng = rng }
}

// WithScreenSampler sets where the ambient light effect gets its frames.
func WithScreenSampler(s ScreenSampler) Option {
	return func(o *options) { o.sampler = s }
}

// WithThermometer sets the temperature effect's sensor.
func WithThermometer(t Thermometer) Option {
	return func(o *options) { o.thermo = t }
}

// WithDriver replaces the driver for kind.
func WithDriver(kind core.EffectKind, d Driver) Option {
	return func(o *options) {
		if o.drivers == nil {
			o.drivers = make(map[core.EffectKind]Driver)
		}
		o.drivers[kind] = d
	}
}

// Manager is the handle the rest of the agent uses to talk to the worker.
type Manager struct {
	inbox   *mailbox
	signals *StopSignals
	worker  *worker
	done    chan struct{}

	// submitMu keeps queue order equal to epoch order.
	submitMu sync.Mutex
	shutdown sync.Once
	logger   zerolog.Logger
}

// New acquires the keyboard through open and starts the worker. If open
// fails nothing is started and the error is returned as is.
func New(open OpenFunc, opts ...Option) (*Manager, error) {
	o := options{poll: 20 * time.Millisecond}
	for _, opt := range opts {
		opt(&o)
	}
	if o.rng == nil {
		o.rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x6b626c69))
	}
	if o.sampler == nil {
		o.sampler = NewScreenSampler(0)
	}
	if o.thermo == nil {
		o.thermo = NewHostThermometer()
	}

	signals := NewStopSignals()
	kb, err := open(signals)
	if err != nil {
		return nil, fmt.Errorf("acquire keyboard: %w", err)
	}

	logger := log.With().Str("component", "effects").Logger()
	drivers := defaultDrivers(o.rng, o.sampler, o.thermo, logger)
	for kind, d := range o.drivers {
		drivers[kind] = d
	}

	inbox := newMailbox()
	w := &worker{
		device:  newDevice(kb, logger),
		inbox:   inbox,
		signals: signals,
		drivers: drivers,
		bus:     o.bus,
		poll:    o.poll,
		logger:  logger,
	}

	m := &Manager{
		inbox:   inbox,
		signals: signals,
		worker:  w,
		done:    make(chan struct{}),
		logger:  logger,
	}
	go w.run(m.done)
	return m, nil
}

func (m *Manager) submit(msg Message) error {
	m.submitMu.Lock()
	msg.Epoch = m.signals.Raise()
	err := m.inbox.send(msg)
	m.submitMu.Unlock()
	if err != nil {
		m.logger.Error().Err(err).Str("kind", msg.Kind.String()).Msg("command rejected, worker is gone")
		return fmt.Errorf("%w: %v", ErrWorkerStopped, err)
	}
	return nil
}

// SetProfile makes p the current profile. It never blocks.
func (m *Manager) SetProfile(p core.Profile) error {
	return m.submit(Message{Kind: MsgProfile, Profile: p})
}

// CustomEffect starts a custom effect. The last profile is left untouched,
// so a later Refresh goes back to it.
func (m *Manager) CustomEffect(effect core.CustomEffect) error {
	return m.submit(Message{Kind: MsgCustomEffect, Custom: effect})
}

// Refresh re-applies the last profile.
func (m *Manager) Refresh() error {
	return m.submit(Message{Kind: MsgRefresh})
}

// Stop cancels the running effect and leaves the keyboard showing its last
// frame.
func (m *Manager) Stop() {
	m.submitMu.Lock()
	defer m.submitMu.Unlock()
	m.signals.Raise()
}

// LastProfile returns the profile a Refresh would apply.
func (m *Manager) LastProfile() core.Profile {
	return m.worker.LastProfile()
}

// Signals exposes the stop signals, mainly for tests and diagnostics.
func (m *Manager) Signals() *StopSignals {
	return m.signals
}

// Done is closed once the worker has exited.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Shutdown stops the running effect, lets the worker drain everything
// submitted before it and waits for the worker to exit.
func (m *Manager) Shutdown() {
	m.shutdown.Do(func() {
		if err := m.submit(Message{Kind: MsgExit}); err != nil {
			m.logger.Warn().Err(err).Msg("exit not delivered")
		}
	})
	<-m.done
}
