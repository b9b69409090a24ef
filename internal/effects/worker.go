package effects

import (
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"kblight/internal/core"
	"kblight/internal/keyboard"
)

// worker is the single consumer of the mailbox and the only code that
// touches the keyboard.
type worker struct {
	device  *Device
	inbox   *mailbox
	signals *StopSignals
	drivers map[core.EffectKind]Driver
	bus     *core.EventBus
	poll    time.Duration
	logger  zerolog.Logger

	lastProfile atomic.Pointer[core.Profile]
}

func (w *worker) run(done chan<- struct{}) {
	defer close(done)
	w.logger.Info().Msg("effect worker started")

	for {
		msg, ok := w.inbox.receive(w.poll)
		if !ok {
			continue
		}
		queueDepth.Set(float64(w.inbox.len()))
		if !w.dispatch(msg) {
			if rest := w.inbox.close(); len(rest) > 0 {
				w.logger.Warn().Int("count", len(rest)).Msg("discarding messages sent after exit")
			}
			w.logger.Info().Msg("effect worker stopped")
			return
		}
	}
}

// dispatch executes msg to completion or until it is superseded. It returns
// false for MsgExit.
func (w *worker) dispatch(msg Message) (keepRunning bool) {
	messagesTotal.WithLabelValues(msg.Kind.String()).Inc()
	if msg.Epoch != w.signals.Epoch() && msg.Kind != MsgExit {
		supersededTotal.Inc()
	}

	defer func() {
		if r := recover(); r != nil {
			w.logger.Error().Interface("panic", r).Str("kind", msg.Kind.String()).Msg("effect panicked")
			keepRunning = true
		}
	}()

	switch msg.Kind {
	case MsgRefresh:
		w.applyProfile(msg.Epoch, w.LastProfile())
	case MsgProfile:
		p := msg.Profile
		w.lastProfile.Store(&p)
		w.applyProfile(msg.Epoch, p)
	case MsgCustomEffect:
		w.runCustom(msg.Epoch, msg.Custom)
	case MsgExit:
		return false
	default:
		w.logger.Warn().Int("kind", int(msg.Kind)).Msg("unknown message")
	}
	return true
}

// LastProfile is the profile a refresh replays.
func (w *worker) LastProfile() core.Profile {
	if p := w.lastProfile.Load(); p != nil {
		return *p
	}
	return core.DefaultProfile()
}

func (w *worker) applyProfile(epoch uint64, p core.Profile) {
	tok := w.signals.enter(epoch)
	defer w.signals.leave(tok)

	effectRunsTotal.WithLabelValues(string(p.Effect.Kind)).Inc()
	w.logger.Info().Str("profile", p.Name).Stringer("effect", p.Effect).Uint64("epoch", epoch).Msg("applying profile")
	w.bus.Publish(core.Event{
		Type:    core.EffectChangedEvent,
		Payload: core.EffectChange{Running: p.Effect.String(), Profile: &p},
	})

	dev := w.device
	dev.SetEffect(keyboard.Static)
	dev.SetSpeed(p.Speed)
	dev.SetBrightness(p.Brightness)

	switch p.Effect.Kind {
	case core.Static:
		dev.SetColorsTo(p.RGB)
		dev.SetEffect(keyboard.Static)
	case core.Breath:
		dev.SetColorsTo(p.RGB)
		dev.SetEffect(keyboard.Breath)
	case core.Smooth:
		dev.SetEffect(keyboard.Smooth)
	case core.Wave:
		if p.Effect.Direction == core.Right {
			dev.SetEffect(keyboard.RightWave)
		} else {
			dev.SetEffect(keyboard.LeftWave)
		}
	case core.SmoothWave:
		p.RGB = core.SmoothWavePalette
		w.runDriver(core.Swipe, dev, tok, p)
	default:
		w.runDriver(p.Effect.Kind, dev, tok, p)
	}
}

func (w *worker) runDriver(kind core.EffectKind, dev *Device, tok *Token, p core.Profile) {
	driver, ok := w.drivers[kind]
	if !ok {
		w.logger.Warn().Str("effect", string(kind)).Msg("no driver registered")
		return
	}
	driver.Run(dev, tok, p)
	if tok.Stopped() {
		w.logger.Debug().Str("effect", string(kind)).Uint64("epoch", tok.Epoch()).Msg("effect cancelled")
		return
	}
	w.idle()
}

// idle reports that a finite effect ran to completion.
func (w *worker) idle() {
	w.logger.Debug().Msg("effect finished")
	w.bus.Publish(core.Event{Type: core.EffectChangedEvent, Payload: core.EffectChange{}})
}

// runCustom plays a custom effect. Cancellation is checked once per step,
// after the step has been applied; a transition always finishes first.
func (w *worker) runCustom(epoch uint64, effect core.CustomEffect) {
	tok := w.signals.enter(epoch)
	defer w.signals.leave(tok)

	if len(effect.Steps) == 0 {
		w.logger.Warn().Str("custom", effect.Name).Msg("custom effect has no steps")
		return
	}

	effectRunsTotal.WithLabelValues("custom").Inc()
	w.logger.Info().Str("custom", effect.Name).Int("steps", len(effect.Steps)).Bool("loop", effect.ShouldLoop).Msg("running custom effect")
	w.bus.Publish(core.Event{
		Type:    core.EffectChangedEvent,
		Payload: core.EffectChange{Running: "custom", Custom: effect.Name},
	})

	dev := w.device
	for {
		for _, step := range effect.Steps {
			dev.SetSpeed(step.Speed)
			dev.SetBrightness(step.Brightness)
			if step.Type == core.StepTransition {
				dev.TransitionColorsTo(step.RGB, step.Steps, step.DelayBetweenSteps)
			} else {
				dev.SetColorsTo(step.RGB)
			}
			if tok.Stopped() {
				return
			}
			if tok.Sleep(step.Sleep) {
				return
			}
		}
		if !effect.ShouldLoop {
			w.idle()
			return
		}
	}
}

func defaultDrivers(rng *rand.Rand, sampler ScreenSampler, thermo Thermometer, logger zerolog.Logger) map[core.EffectKind]Driver {
	return map[core.EffectKind]Driver{
		core.Lightning:    &lightning{rng: rng},
		core.AmbientLight: &ambient{sampler: sampler, logger: logger},
		core.Swipe:        &swipe{},
		core.Disco:        &disco{rng: rng},
		core.Christmas:    &christmas{rng: rng},
		core.Fade:         &fade{},
		core.Temperature:  &temperature{thermo: thermo, logger: logger},
		core.Ripple:       &ripple{rng: rng},
	}
}
