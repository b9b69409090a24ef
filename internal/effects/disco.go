package effects

import (
	"math/rand/v2"
	"time"

	"kblight/internal/core"
)

var discoPalette = [][3]uint8{
	{255, 0, 0},
	{0, 255, 0},
	{0, 0, 255},
	{255, 255, 0},
	{255, 0, 255},
	{0, 255, 255},
	{255, 255, 255},
}

// disco gives every zone a random palette color each beat.
type disco struct {
	rng *rand.Rand
}

func (d *disco) Run(dev *Device, tok *Token, p core.Profile) {
	for {
		var frame core.RGBArray
		for zone := 0; zone < core.Zones; zone++ {
			c := discoPalette[d.rng.IntN(len(discoPalette))]
			frame.SetZone(zone, c[0], c[1], c[2])
		}
		dev.SetColorsTo(frame)
		if tok.Stopped() {
			return
		}
		if tok.Sleep(frameDelay(p.Speed, 800*time.Millisecond)) {
			return
		}
	}
}
