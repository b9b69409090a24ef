package effects

import (
	"errors"
	"image"
	"time"

	"github.com/kbinani/screenshot"
	"github.com/rs/zerolog"

	"kblight/internal/core"
)

// ScreenSampler captures the current screen contents.
type ScreenSampler interface {
	Sample() (image.Image, error)
}

type displaySampler struct {
	display int
}

// NewScreenSampler captures the given display.
func NewScreenSampler(display int) ScreenSampler {
	return &displaySampler{display: display}
}

func (s *displaySampler) Sample() (image.Image, error) {
	if screenshot.NumActiveDisplays() <= s.display {
		return nil, errors.New("display not available")
	}
	img, err := screenshot.CaptureDisplay(s.display)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// ambient mirrors the screen: each keyboard zone shows the average color of
// the matching vertical band of the screen.
type ambient struct {
	sampler ScreenSampler
	logger  zerolog.Logger
}

func (a *ambient) Run(dev *Device, tok *Token, p core.Profile) {
	fps := p.Effect.FPS
	if fps == 0 {
		fps = core.DefaultAmbientFPS
	}
	interval := time.Second / time.Duration(fps)

	for {
		img, err := a.sampler.Sample()
		if err != nil {
			a.logger.Warn().Err(err).Msg("screen capture failed, skipping frame")
		} else {
			dev.SetColorsTo(ZoneAverages(img))
		}
		if tok.Stopped() {
			return
		}
		if tok.Sleep(interval) {
			return
		}
	}
}

// ZoneAverages splits img into core.Zones vertical bands and averages each.
// Only every fourth pixel in each direction is sampled.
func ZoneAverages(img image.Image) core.RGBArray {
	const stride = 4
	var out core.RGBArray
	bounds := img.Bounds()
	width := bounds.Dx()
	if width == 0 || bounds.Dy() == 0 {
		return out
	}

	for zone := 0; zone < core.Zones; zone++ {
		x0 := bounds.Min.X + zone*width/core.Zones
		x1 := bounds.Min.X + (zone+1)*width/core.Zones
		var r, g, b, n uint64
		for y := bounds.Min.Y; y < bounds.Max.Y; y += stride {
			for x := x0; x < x1; x += stride {
				cr, cg, cb, _ := img.At(x, y).RGBA()
				r += uint64(cr >> 8)
				g += uint64(cg >> 8)
				b += uint64(cb >> 8)
				n++
			}
		}
		if n > 0 {
			out.SetZone(zone, uint8(r/n), uint8(g/n), uint8(b/n))
		}
	}
	return out
}
