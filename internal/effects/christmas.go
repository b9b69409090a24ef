package effects

import (
	"math/rand/v2"
	"time"

	"kblight/internal/core"
)

var (
	xmasRed   = [3]uint8{255, 0, 0}
	xmasGreen = [3]uint8{0, 255, 0}
	xmasWhite = [3]uint8{255, 255, 255}
)

// christmas cycles through a few red/green/white sequences picked at random.
type christmas struct {
	rng *rand.Rand
}

func (c *christmas) Run(dev *Device, tok *Token, p core.Profile) {
	delay := frameDelay(p.Speed, 600*time.Millisecond)
	for {
		var frames []core.RGBArray
		switch c.rng.IntN(3) {
		case 0:
			frames = c.alternate(6)
		case 1:
			frames = c.twinkle(8)
		default:
			frames = c.chase()
		}
		for _, frame := range frames {
			dev.SetColorsTo(frame)
			if tok.Stopped() {
				return
			}
			if tok.Sleep(delay) {
				return
			}
		}
	}
}

// alternate swaps red and green zones back and forth.
func (c *christmas) alternate(n int) []core.RGBArray {
	frames := make([]core.RGBArray, n)
	for i := range frames {
		for zone := 0; zone < core.Zones; zone++ {
			col := xmasRed
			if (zone+i)%2 == 1 {
				col = xmasGreen
			}
			frames[i].SetZone(zone, col[0], col[1], col[2])
		}
	}
	return frames
}

// twinkle flashes one random zone white over a red/green base.
func (c *christmas) twinkle(n int) []core.RGBArray {
	frames := make([]core.RGBArray, n)
	for i := range frames {
		lit := c.rng.IntN(core.Zones)
		for zone := 0; zone < core.Zones; zone++ {
			col := xmasGreen
			if zone%2 == 0 {
				col = xmasRed
			}
			if zone == lit {
				col = xmasWhite
			}
			frames[i].SetZone(zone, col[0], col[1], col[2])
		}
	}
	return frames
}

// chase runs a single white zone across a red background.
func (c *christmas) chase() []core.RGBArray {
	frames := make([]core.RGBArray, core.Zones)
	for i := range frames {
		for zone := 0; zone < core.Zones; zone++ {
			col := xmasRed
			if zone == i {
				col = xmasWhite
			}
			frames[i].SetZone(zone, col[0], col[1], col[2])
		}
	}
	return frames
}
