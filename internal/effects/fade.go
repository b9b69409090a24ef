package effects

import (
	"time"

	"kblight/internal/core"
)

const fadeFrames = 50

// fade brings the keyboard up from black to the profile colors and then
// leaves it there. It is the one finite animation.
type fade struct{}

func (fade) Run(dev *Device, tok *Token, p core.Profile) {
	delay := frameDelay(p.Speed, 80*time.Millisecond)
	for i := 0; i <= fadeFrames; i++ {
		dev.SetColorsTo(scale(p.RGB, float64(i)/fadeFrames))
		if tok.Stopped() {
			return
		}
		if i < fadeFrames && tok.Sleep(delay) {
			return
		}
	}
}
