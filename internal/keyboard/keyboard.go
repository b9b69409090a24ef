// Package keyboard drives the four-zone RGB backlight of Legion-style
// keyboards. Every change is sent as a single 33-byte feature report.
package keyboard

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"kblight/internal/core"
)

// ErrDeviceNotFound is returned when no compatible keyboard is present.
var ErrDeviceNotFound = errors.New("no compatible keyboard found")

// BaseEffect is a lighting mode implemented by the keyboard firmware.
type BaseEffect uint8

const (
	Static BaseEffect = iota
	Breath
	Smooth
	LeftWave
	RightWave
)

func (e BaseEffect) String() string {
	switch e {
	case Static:
		return "static"
	case Breath:
		return "breath"
	case Smooth:
		return "smooth"
	case LeftWave:
		return "left_wave"
	case RightWave:
		return "right_wave"
	}
	return fmt.Sprintf("BaseEffect(%d)", uint8(e))
}

const (
	reportLen = 33

	minSpeed      = 1
	maxSpeed      = 4
	minBrightness = 1
	maxBrightness = 2
)

// Transport delivers a complete feature report to the hardware.
type Transport interface {
	Write(report []byte) error
	Close() error
}

// StopFlag is the device-level half of the worker's stop signals. Loops
// inside the keyboard, such as transitions, poll it between sub-steps.
type StopFlag interface {
	DeviceStopped() bool
}

// State is what the firmware was last told.
type State struct {
	Effect     BaseEffect
	Speed      uint8
	Brightness uint8
	RGB        core.RGBArray
}

// Keyboard is the device handle. It is not meant to be shared: the effect
// worker owns it and is the only caller.
type Keyboard struct {
	mu        sync.Mutex
	transport Transport
	stop      StopFlag
	state     State
	sleep     func(time.Duration)
	logger    zerolog.Logger
}

// New wraps an already opened transport.
func New(t Transport, stop StopFlag) *Keyboard {
	return &Keyboard{
		transport: t,
		stop:      stop,
		state: State{
			Effect:     Static,
			Speed:      minSpeed,
			Brightness: minBrightness,
		},
		sleep:  time.Sleep,
		logger: log.With().Str("component", "keyboard").Logger(),
	}
}

// SetStopFlag attaches the device-level stop flag once the worker exists.
func (k *Keyboard) SetStopFlag(stop StopFlag) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.stop = stop
}

// State returns a copy of the last state sent to the device.
func (k *Keyboard) State() State {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.state
}

// SetEffect switches the firmware mode.
func (k *Keyboard) SetEffect(e BaseEffect) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.state.Effect = e
	return k.refresh()
}

// SetSpeed sets the firmware animation speed, clamped to 1..4.
func (k *Keyboard) SetSpeed(v uint8) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.state.Speed = clamp(v, minSpeed, maxSpeed)
	return k.refresh()
}

// SetBrightness sets the backlight level, clamped to 1..2.
func (k *Keyboard) SetBrightness(v uint8) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.state.Brightness = clamp(v, minBrightness, maxBrightness)
	return k.refresh()
}

// SetColorsTo pushes all four zone colors at once.
func (k *Keyboard) SetColorsTo(rgb core.RGBArray) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.state.RGB = rgb
	return k.refresh()
}

// TransitionColorsTo interpolates from the current colors to target in steps
// frames, waiting delay between frames. It returns early, leaving the
// intermediate frame on the device, once the device-level stop flag is set.
func (k *Keyboard) TransitionColorsTo(target core.RGBArray, steps uint8, delay time.Duration) error {
	if k.stopped() {
		return nil
	}
	if steps == 0 {
		return k.SetColorsTo(target)
	}

	start := k.State().RGB
	var delta [len(target)]float64
	for i := range target {
		delta[i] = (float64(target[i]) - float64(start[i])) / float64(steps)
	}

	for step := 1; step <= int(steps); step++ {
		if k.stopped() {
			return nil
		}
		var frame core.RGBArray
		for i := range frame {
			frame[i] = uint8(math.Round(float64(start[i]) + delta[i]*float64(step)))
		}
		if err := k.SetColorsTo(frame); err != nil {
			return err
		}
		k.sleep(delay)
	}

	if k.stopped() {
		return nil
	}
	return k.SetColorsTo(target)
}

// Close releases the transport.
func (k *Keyboard) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.transport.Close()
}

func (k *Keyboard) stopped() bool {
	k.mu.Lock()
	stop := k.stop
	k.mu.Unlock()
	return stop != nil && stop.DeviceStopped()
}

func (k *Keyboard) refresh() error {
	report := Report(k.state)
	if err := k.transport.Write(report); err != nil {
		return fmt.Errorf("write feature report: %w", err)
	}
	k.logger.Trace().Hex("report", report).Msg("report written")
	return nil
}

// Report encodes s as the firmware's feature report.
func Report(s State) []byte {
	payload := make([]byte, reportLen)
	payload[0] = 0xCC
	payload[1] = 0x16

	switch s.Effect {
	case Static:
		payload[2] = 0x01
	case Breath:
		payload[2] = 0x03
	case Smooth:
		payload[2] = 0x06
	case LeftWave:
		payload[2] = 0x04
		payload[19] = 0x01
	case RightWave:
		payload[2] = 0x04
		payload[18] = 0x01
	}

	payload[3] = clamp(s.Speed, minSpeed, maxSpeed)
	payload[4] = clamp(s.Brightness, minBrightness, maxBrightness)

	if s.Effect == Static || s.Effect == Breath {
		copy(payload[5:17], s.RGB[:])
	}
	return payload
}

func clamp(v, lo, hi uint8) uint8 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
