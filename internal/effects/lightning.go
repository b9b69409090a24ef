package effects

import (
	"math/rand/v2"
	"time"

	"kblight/internal/core"
)

// lightning is a single strike: a random zone flashes in its profile color
// and decays to black. It ends on its own.
type lightning struct {
	rng *rand.Rand
}

func (l *lightning) Run(dev *Device, tok *Token, p core.Profile) {
	zone := l.rng.IntN(core.Zones)
	var strike core.RGBArray
	r, g, b := p.RGB.Zone(zone)
	strike.SetZone(zone, r, g, b)

	dev.SetColorsTo(strike)
	if tok.Stopped() {
		return
	}
	decay := uint8(50 + l.rng.IntN(150))
	dev.TransitionColorsTo(core.RGBArray{}, decay, frameDelay(p.Speed, 5*time.Millisecond))
}
