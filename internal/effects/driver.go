package effects

import (
	"time"

	"github.com/rs/zerolog"

	"kblight/internal/core"
	"kblight/internal/keyboard"
)

// Keyboard is the device handle the worker owns.
type Keyboard interface {
	SetEffect(e keyboard.BaseEffect) error
	SetSpeed(v uint8) error
	SetBrightness(v uint8) error
	SetColorsTo(rgb core.RGBArray) error
	TransitionColorsTo(target core.RGBArray, steps uint8, delay time.Duration) error
}

// Driver renders one animation family. Run pushes frames to dev until tok
// is stopped or, for finite effects, until the animation is done. Drivers
// run on the worker goroutine and must check tok after every frame.
type Driver interface {
	Run(dev *Device, tok *Token, p core.Profile)
}

// DriverFunc adapts a function to Driver.
type DriverFunc func(dev *Device, tok *Token, p core.Profile)

func (f DriverFunc) Run(dev *Device, tok *Token, p core.Profile) { f(dev, tok, p) }

// Device is the keyboard as drivers see it. A failed write is logged and
// counted and the frame is skipped; it never aborts the worker.
type Device struct {
	kb     Keyboard
	logger zerolog.Logger
}

func newDevice(kb Keyboard, logger zerolog.Logger) *Device {
	return &Device{kb: kb, logger: logger}
}

func (d *Device) SetEffect(e keyboard.BaseEffect) {
	d.check("set_effect", d.kb.SetEffect(e))
}

func (d *Device) SetSpeed(v uint8) {
	d.check("set_speed", d.kb.SetSpeed(v))
}

func (d *Device) SetBrightness(v uint8) {
	d.check("set_brightness", d.kb.SetBrightness(v))
}

func (d *Device) SetColorsTo(rgb core.RGBArray) {
	d.check("set_colors", d.kb.SetColorsTo(rgb))
}

func (d *Device) TransitionColorsTo(target core.RGBArray, steps uint8, delay time.Duration) {
	d.check("transition_colors", d.kb.TransitionColorsTo(target, steps, delay))
}

func (d *Device) check(op string, err error) {
	if err == nil {
		return
	}
	deviceErrorsTotal.WithLabelValues(op).Inc()
	d.logger.Warn().Err(err).Str("op", op).Msg("device write failed, skipping frame")
}

// frameDelay scales base by the profile speed: speed 1 keeps base, speed 4
// runs four times faster.
func frameDelay(speed uint8, base time.Duration) time.Duration {
	if speed == 0 {
		speed = 1
	}
	return base / time.Duration(speed)
}

// scale multiplies every channel of rgb by f in [0,1].
func scale(rgb core.RGBArray, f float64) core.RGBArray {
	var out core.RGBArray
	for i, v := range rgb {
		out[i] = uint8(float64(v)*f + 0.5)
	}
	return out
}
