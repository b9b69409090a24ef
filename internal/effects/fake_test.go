package effects

import (
	"fmt"
	"sync"
	"time"

	"kblight/internal/core"
	"kblight/internal/keyboard"
)

// recorder is a Keyboard that remembers every call.
type recorder struct {
	mu     sync.Mutex
	calls  []string
	colors []core.RGBArray
	fail   error
}

func (r *recorder) record(call string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	return r.fail
}

func (r *recorder) SetEffect(e keyboard.BaseEffect) error {
	return r.record("effect:" + e.String())
}

func (r *recorder) SetSpeed(v uint8) error {
	return r.record(fmt.Sprintf("speed:%d", v))
}

func (r *recorder) SetBrightness(v uint8) error {
	return r.record(fmt.Sprintf("brightness:%d", v))
}

func (r *recorder) SetColorsTo(rgb core.RGBArray) error {
	r.mu.Lock()
	r.colors = append(r.colors, rgb)
	r.mu.Unlock()
	return r.record(fmt.Sprintf("colors:%v", rgb))
}

func (r *recorder) TransitionColorsTo(target core.RGBArray, steps uint8, delay time.Duration) error {
	r.mu.Lock()
	r.colors = append(r.colors, target)
	r.mu.Unlock()
	return r.record(fmt.Sprintf("transition:%v/%d/%s", target, steps, delay))
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) Colors() []core.RGBArray {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.RGBArray(nil), r.colors...)
}

func (r *recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
	r.colors = nil
}

func (r *recorder) open(keyboard.StopFlag) (Keyboard, error) {
	return r, nil
}

func colorsCall(rgb core.RGBArray) string {
	return fmt.Sprintf("colors:%v", rgb)
}
