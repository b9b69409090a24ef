package effects

import (
	"math/rand/v2"
	"time"

	"kblight/internal/core"
)

// ripple sends a pulse of the origin zone's profile color outwards from a
// random zone, leaving a dimmer trail behind the front.
type ripple struct {
	rng *rand.Rand
}

func (r *ripple) Run(dev *Device, tok *Token, p core.Profile) {
	step := frameDelay(p.Speed, 300*time.Millisecond)
	for {
		origin := r.rng.IntN(core.Zones)
		cr, cg, cb := p.RGB.Zone(origin)
		if cr == 0 && cg == 0 && cb == 0 {
			cr, cg, cb = 255, 255, 255
		}

		for radius := 0; radius <= core.Zones; radius++ {
			var frame core.RGBArray
			for zone := 0; zone < core.Zones; zone++ {
				d := zone - origin
				if d < 0 {
					d = -d
				}
				switch d {
				case radius:
					frame.SetZone(zone, cr, cg, cb)
				case radius - 1:
					frame.SetZone(zone, cr/4, cg/4, cb/4)
				}
			}
			dev.SetColorsTo(frame)
			if tok.Stopped() {
				return
			}
			if tok.Sleep(step) {
				return
			}
		}

		if tok.Sleep(step * 2) {
			return
		}
	}
}
