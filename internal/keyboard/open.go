package keyboard

import (
	"context"
	"fmt"
	"time"

	"kblight/internal/config"
)

// Opened is a keyboard plus the transport-specific pieces the agent may need.
type Opened struct {
	Keyboard *Keyboard
	// Bridge is set for the ble transport; the agent runs its connection loop.
	Bridge *BLEBridge
}

// Open acquires the keyboard named by cfg. It fails with ErrDeviceNotFound
// when no compatible device is present.
func Open(ctx context.Context, cfg config.DeviceConfig) (*Opened, error) {
	switch cfg.Transport {
	case "log":
		return &Opened{Keyboard: New(NewLogTransport(), nil)}, nil

	case "ble":
		bridge, err := NewBLEBridge(ctx, BLEOptions{
			DeviceNames:        cfg.BLE.DeviceNames,
			ServiceUUID:        cfg.BLE.ServiceUUID,
			CharacteristicUUID: cfg.BLE.CharacteristicUUID,
			ScanTimeout:        parseDuration(cfg.BLE.ScanTimeout, 30*time.Second),
			ConnectTimeout:     parseDuration(cfg.BLE.ConnectTimeout, 7*time.Second),
			HeartbeatInterval:  parseDuration(cfg.BLE.HeartbeatInterval, time.Minute),
			RetryDelay:         parseDuration(cfg.BLE.RetryDelay, 5*time.Second),
			RateLimit:          cfg.BLE.RateLimit,
			RateBurst:          cfg.BLE.RateBurst,
		})
		if err != nil {
			return nil, err
		}
		return &Opened{Keyboard: New(bridge, nil), Bridge: bridge}, nil

	case "hidraw", "":
		path := cfg.HIDRawPath
		if path == "" {
			var err error
			path, err = Discover(cfg.SysfsRoot, KnownDevices)
			if err != nil {
				return nil, err
			}
		}
		raw, err := OpenHIDRaw(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
		}
		return &Opened{Keyboard: New(raw, nil)}, nil
	}
	return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
