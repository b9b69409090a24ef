//go:build !linux

package keyboard

import "errors"

// HIDRaw is only available on Linux.
type HIDRaw struct{}

// OpenHIDRaw always fails outside Linux.
func OpenHIDRaw(path string) (*HIDRaw, error) {
	return nil, errors.New("hidraw transport is only supported on linux")
}

func (h *HIDRaw) Write(report []byte) error { return errors.New("hidraw: unsupported platform") }

func (h *HIDRaw) Close() error { return nil }
