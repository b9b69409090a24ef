package keyboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
	"tinygo.org/x/bluetooth"
)

var (
	errBridgeNotConnected = errors.New("ble bridge not connected")
	errBridgeQueueFull    = errors.New("ble bridge queue full")
)

// BLEOptions configures a BLEBridge.
type BLEOptions struct {
	DeviceNames        []string
	ServiceUUID        string
	CharacteristicUUID string
	ScanTimeout        time.Duration
	ConnectTimeout     time.Duration
	HeartbeatInterval  time.Duration
	RetryDelay         time.Duration
	RateLimit          float64
	RateBurst          int
}

// BLEBridge forwards feature reports to a Bluetooth LE bridge that relays
// them to the keyboard over USB. Reports are queued and written by a single
// rate-limited goroutine; Run keeps the connection alive.
type BLEBridge struct {
	adapter *bluetooth.Adapter

	mu             sync.RWMutex
	characteristic bluetooth.DeviceCharacteristic
	heartbeatChar  bluetooth.DeviceCharacteristic

	disconnectChan chan struct{}
	reportChan     chan []byte

	opts               BLEOptions
	serviceUUID        bluetooth.UUID
	characteristicUUID bluetooth.UUID
	limiter            *rate.Limiter
	logger             zerolog.Logger
}

// NewBLEBridge enables the default adapter and starts the writer goroutine.
// Failing to enable the adapter is a device acquisition failure.
func NewBLEBridge(ctx context.Context, opts BLEOptions) (*BLEBridge, error) {
	serviceUUID, err := bluetooth.ParseUUID(opts.ServiceUUID)
	if err != nil {
		return nil, fmt.Errorf("service uuid: %w", err)
	}
	characteristicUUID, err := bluetooth.ParseUUID(opts.CharacteristicUUID)
	if err != nil {
		return nil, fmt.Errorf("characteristic uuid: %w", err)
	}

	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("%w: enable bluetooth adapter: %v", ErrDeviceNotFound, err)
	}

	b := &BLEBridge{
		adapter:            adapter,
		disconnectChan:     make(chan struct{}, 1),
		reportChan:         make(chan []byte, opts.RateBurst*2),
		opts:               opts,
		serviceUUID:        serviceUUID,
		characteristicUUID: characteristicUUID,
		limiter:            rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateBurst),
		logger:             log.With().Str("component", "ble").Logger(),
	}

	go b.writerLoop(ctx)
	return b, nil
}

// Write queues a report. It never blocks the effect worker: a full queue or
// a missing connection is reported as an error and the frame is skipped.
func (b *BLEBridge) Write(report []byte) error {
	if !b.connected() {
		return errBridgeNotConnected
	}
	payload := append([]byte(nil), report...)
	select {
	case b.reportChan <- payload:
		return nil
	default:
		return errBridgeQueueFull
	}
}

// Close disconnects from the bridge on the next loop iteration.
func (b *BLEBridge) Close() error {
	b.signalDisconnect()
	return nil
}

func (b *BLEBridge) connected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.characteristic.UUID() != (bluetooth.UUID{})
}

func (b *BLEBridge) setCharacteristics(data, heartbeat bluetooth.DeviceCharacteristic) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.characteristic = data
	b.heartbeatChar = heartbeat
}

func (b *BLEBridge) writerLoop(ctx context.Context) {
	b.logger.Debug().Msg("writer loop started")
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-b.reportChan:
			if err := b.limiter.Wait(ctx); err != nil {
				return
			}

			b.mu.RLock()
			char := b.characteristic
			b.mu.RUnlock()
			if char.UUID() == (bluetooth.UUID{}) {
				continue
			}

			if _, err := char.WriteWithoutResponse(payload); err != nil {
				b.logger.Warn().Err(err).Msg("write failed, assuming disconnected")
				b.signalDisconnect()
			}
		}
	}
}

func (b *BLEBridge) signalDisconnect() {
	select {
	case b.disconnectChan <- struct{}{}:
	default:
	}
}

func contains(s []string, str string) bool {
	for _, v := range s {
		if v == str {
			return true
		}
	}
	return false
}

// Run scans, connects and heartbeats until ctx is done, reconnecting after
// every failure.
func (b *BLEBridge) Run(ctx context.Context, onStatusChange func(connected bool, rssi int16)) {
	onStatusChange(false, 0)

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("bridge shutting down")
			return
		default:
		}

		if !b.session(ctx, onStatusChange) {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(b.opts.RetryDelay):
		}
	}
}

// session runs one scan/connect/heartbeat cycle. It returns false when ctx
// ended the cycle.
func (b *BLEBridge) session(ctx context.Context, onStatusChange func(bool, int16)) bool {
	select {
	case <-b.disconnectChan:
	default:
	}
	b.setCharacteristics(bluetooth.DeviceCharacteristic{}, bluetooth.DeviceCharacteristic{})

	b.logger.Info().Strs("names", b.opts.DeviceNames).Msg("scanning for bridge")
	b.adapter.StopScan()

	found := make(chan bluetooth.ScanResult, 1)
	go func() {
		err := b.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if contains(b.opts.DeviceNames, result.LocalName()) {
				adapter.StopScan()
				select {
				case found <- result:
				default:
				}
			}
		})
		if err != nil {
			b.logger.Warn().Err(err).Msg("scan error")
		}
	}()

	var result bluetooth.ScanResult
	scanCtx, cancelScan := context.WithTimeout(ctx, b.opts.ScanTimeout)
	select {
	case result = <-found:
		cancelScan()
		b.logger.Info().Str("name", result.LocalName()).Int16("rssi", result.RSSI).Msg("found bridge")
	case <-scanCtx.Done():
		cancelScan()
		b.adapter.StopScan()
		b.logger.Info().Msg("scan timed out")
		return ctx.Err() == nil
	}

	var device bluetooth.Device
	connectErr := make(chan error, 1)
	go func() {
		d, err := b.adapter.Connect(result.Address, bluetooth.ConnectionParams{})
		if err == nil {
			device = d
		}
		connectErr <- err
	}()

	select {
	case err := <-connectErr:
		if err != nil {
			b.logger.Warn().Err(err).Msg("connect failed")
			onStatusChange(false, 0)
			return true
		}
	case <-time.After(b.opts.ConnectTimeout):
		b.logger.Warn().Msg("connect timed out")
		b.adapter.StopScan()
		return true
	case <-ctx.Done():
		return false
	}

	discoverErr := make(chan error, 1)
	go func() {
		data, heartbeat, err := b.discover(device)
		if err == nil {
			b.setCharacteristics(data, heartbeat)
		}
		discoverErr <- err
	}()

	select {
	case err := <-discoverErr:
		if err != nil {
			b.logger.Warn().Err(err).Msg("service discovery failed")
			device.Disconnect()
			return true
		}
	case <-time.After(b.opts.ConnectTimeout):
		b.logger.Warn().Msg("service discovery timed out")
		device.Disconnect()
		return true
	case <-ctx.Done():
		device.Disconnect()
		return false
	}

	b.logger.Info().Str("name", result.LocalName()).Msg("bridge ready")
	onStatusChange(true, result.RSSI)

	ok := b.heartbeat(ctx)

	onStatusChange(false, 0)
	b.setCharacteristics(bluetooth.DeviceCharacteristic{}, bluetooth.DeviceCharacteristic{})
	if err := device.Disconnect(); err != nil {
		b.logger.Warn().Err(err).Msg("disconnect")
	}
	return ok
}

func (b *BLEBridge) discover(device bluetooth.Device) (data, heartbeat bluetooth.DeviceCharacteristic, err error) {
	services, err := device.DiscoverServices([]bluetooth.UUID{b.serviceUUID})
	if err != nil {
		return data, heartbeat, err
	}
	if len(services) == 0 {
		return data, heartbeat, errors.New("bridge service not found")
	}
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{b.characteristicUUID})
	if err != nil {
		return data, heartbeat, err
	}
	if len(chars) == 0 {
		return data, heartbeat, errors.New("bridge characteristic not found")
	}
	data = chars[0]

	// Generic Access / Device Name doubles as a cheap liveness probe.
	genericAccess, _ := bluetooth.ParseUUID("00001800-0000-1000-8000-00805f9b34fb")
	deviceName, _ := bluetooth.ParseUUID("00002a00-0000-1000-8000-00805f9b34fb")
	gaServices, _ := device.DiscoverServices([]bluetooth.UUID{genericAccess})
	if len(gaServices) > 0 {
		gaChars, _ := gaServices[0].DiscoverCharacteristics([]bluetooth.UUID{deviceName})
		if len(gaChars) > 0 {
			heartbeat = gaChars[0]
		}
	}
	return data, heartbeat, nil
}

func (b *BLEBridge) heartbeat(ctx context.Context) bool {
	ticker := time.NewTicker(b.opts.HeartbeatInterval)
	defer ticker.Stop()
	buf := make([]byte, 20)

	for {
		select {
		case <-ticker.C:
			b.mu.RLock()
			hb := b.heartbeatChar
			b.mu.RUnlock()
			if hb.UUID() == (bluetooth.UUID{}) {
				continue
			}
			if _, err := hb.Read(buf); err != nil {
				b.logger.Warn().Err(err).Msg("heartbeat failed")
				b.signalDisconnect()
			}
		case <-b.disconnectChan:
			b.logger.Info().Msg("disconnect signalled, resetting connection")
			return true
		case <-ctx.Done():
			b.logger.Info().Msg("disconnecting for shutdown")
			return false
		}
	}
}
