package effects

import (
	"time"

	"kblight/internal/core"
)

// swipe moves the profile's zone colors one zone per cycle, blending into
// each new arrangement. Direction follows the profile effect, left by default.
type swipe struct{}

func (swipe) Run(dev *Device, tok *Token, p core.Profile) {
	colors := p.RGB
	steps := uint8(100 / clampSpeed(p.Speed))

	for {
		colors = rotate(colors, p.Effect.Direction)
		dev.TransitionColorsTo(colors, steps, 10*time.Millisecond)
		if tok.Stopped() {
			return
		}
		if tok.Sleep(20 * time.Millisecond) {
			return
		}
	}
}

func clampSpeed(speed uint8) uint8 {
	if speed == 0 {
		return 1
	}
	if speed > 4 {
		return 4
	}
	return speed
}

// rotate shifts zones by one; moving left means zone i takes zone i+1's color.
func rotate(rgb core.RGBArray, d core.Direction) core.RGBArray {
	var out core.RGBArray
	for i := 0; i < core.Zones; i++ {
		src := (i + 1) % core.Zones
		if d == core.Right {
			src = (i + core.Zones - 1) % core.Zones
		}
		r, g, b := rgb.Zone(src)
		out.SetZone(i, r, g, b)
	}
	return out
}
