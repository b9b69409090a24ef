// Package agent wires the keyboard, the effect worker and the outer
// surfaces together.
package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"kblight/internal/config"
	"kblight/internal/core"
	"kblight/internal/effects"
	"kblight/internal/keyboard"
	"kblight/internal/library"
	"kblight/internal/mqtt"
	"kblight/internal/scheduler"
	"kblight/internal/script"
	"kblight/internal/server"
)

type Agent struct {
	ctx    context.Context
	cancel context.CancelFunc
	config *config.Config
	wg     sync.WaitGroup

	state    *core.State
	eventBus *core.EventBus

	device     *keyboard.Opened
	effects    *effects.Manager
	profiles   *library.Library
	scripts    *script.Store
	scheduler  *scheduler.Scheduler
	server     *server.Server
	mqttClient *mqtt.Client

	shutdown sync.Once
	logger   zerolog.Logger
}

// New acquires the keyboard and builds every component. Nothing runs until
// Run is called, except the effect worker which idles on its mailbox.
func New(cfg *config.Config) (*Agent, error) {
	ctx, cancel := context.WithCancel(context.Background())

	a := &Agent{
		ctx:      ctx,
		cancel:   cancel,
		config:   cfg,
		state:    core.NewState(),
		eventBus: core.NewEventBus(),
		logger:   log.With().Str("component", "agent").Logger(),
	}

	profiles, err := library.Open(cfg.ProfilesFile)
	if err != nil {
		cancel()
		return nil, err
	}
	profiles.SetEventBus(a.eventBus)
	a.profiles = profiles
	a.scripts = script.NewStore(cfg.PatternsDir)

	device, err := keyboard.Open(ctx, cfg.Device)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open keyboard: %w", err)
	}
	a.device = device

	a.effects, err = effects.New(func(stop keyboard.StopFlag) (effects.Keyboard, error) {
		device.Keyboard.SetStopFlag(stop)
		return device.Keyboard, nil
	},
		effects.WithPollInterval(cfg.PollInterval()),
		effects.WithEventBus(a.eventBus),
	)
	if err != nil {
		cancel()
		_ = device.Keyboard.Close()
		return nil, err
	}

	a.scheduler = scheduler.New(a, cfg.SchedulesFile)
	a.server = server.New(cfg.Server, server.Deps{
		Controller: a,
		Profiles:   a.profiles,
		Scripts:    a.scripts,
		Schedules:  a.scheduler,
	})
	a.server.SetHandler(NewCommandHandler(a))
	a.mqttClient = mqtt.NewClient(cfg.MQTT, a)

	return a, nil
}

// Run starts every component and blocks until Shutdown.
func (a *Agent) Run() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.listenEvents()
	}()

	if a.mqttClient != nil {
		go func() {
			if err := a.mqttClient.Connect(); err != nil {
				a.logger.Error().Err(err).Msg("mqtt setup failed")
			}
		}()
	}

	if bridge := a.device.Bridge; bridge != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			bridge.Run(a.ctx, a.onDeviceStatus)
		}()
	} else {
		a.onDeviceStatus(true, 0)
	}

	a.scheduler.Start()
	a.applyStartupProfile()

	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error().Err(err).Msg("http server failed")
		}
	}()

	a.logger.Info().Str("transport", a.config.Device.Transport).Msg("agent running")
	<-a.ctx.Done()
}

func (a *Agent) applyStartupProfile() {
	name := a.config.Effects.StartupProfile
	if name == "" {
		if err := a.Refresh(); err != nil {
			a.logger.Error().Err(err).Msg("apply default profile")
		}
		return
	}
	if err := a.ApplyProfile(name); err != nil {
		a.logger.Warn().Err(err).Str("profile", name).Msg("startup profile unavailable, using default")
		_ = a.Refresh()
	}
}

func (a *Agent) onDeviceStatus(connected bool, rssi int16) {
	a.eventBus.Publish(core.Event{
		Type:    core.DeviceConnectedEvent,
		Payload: core.DeviceStatus{Connected: connected, RSSI: rssi},
	})
}

func (a *Agent) listenEvents() {
	events := []core.EventType{core.DeviceConnectedEvent, core.EffectChangedEvent, core.ProfilesChangedEvent}
	sub := a.eventBus.Subscribe(events...)
	defer a.eventBus.Unsubscribe(sub, events...)

	for {
		select {
		case <-a.ctx.Done():
			return
		case event := <-sub:
			if event.Type == core.ProfilesChangedEvent {
				a.server.Hub.Broadcast(server.NewMessage("profile_list", a.profiles.All()))
				continue
			}
			switch payload := event.Payload.(type) {
			case core.DeviceStatus:
				wasConnected := a.state.Clone().Connected
				a.state.SetConnection(payload.Connected, payload.RSSI)
				a.server.Hub.Broadcast(server.NewMessage("device_status", payload))
				if a.mqttClient != nil {
					a.mqttClient.PublishConnection(payload.Connected)
				}
				// A bridge that comes back has lost whatever was on the keyboard.
				if !wasConnected && payload.Connected && a.device.Bridge != nil {
					a.logger.Info().Msg("device reconnected, replaying last profile")
					_ = a.Refresh()
				}
			case core.EffectChange:
				a.state.Apply(payload)
				a.server.Hub.Broadcast(server.NewMessage("state", a.state.Clone()))
				if a.mqttClient != nil {
					a.mqttClient.PublishEffect(payload)
				}
			}
		}
	}
}

// ApplyProfile runs the library profile called name.
func (a *Agent) ApplyProfile(name string) error {
	p, err := a.profiles.Get(name)
	if err != nil {
		return err
	}
	return a.effects.SetProfile(p)
}

// SetProfile runs an ad hoc profile.
func (a *Agent) SetProfile(p core.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return a.effects.SetProfile(p)
}

// RunCustom builds the script called name and runs it.
func (a *Agent) RunCustom(name string) error {
	effect, err := a.scripts.Build(name)
	if err != nil {
		return err
	}
	return a.effects.CustomEffect(effect)
}

// Refresh re-applies the last profile.
func (a *Agent) Refresh() error {
	return a.effects.Refresh()
}

// Stop cancels the running effect.
func (a *Agent) Stop() {
	a.effects.Stop()
	a.state.Apply(core.EffectChange{})
	a.eventBus.Publish(core.Event{Type: core.EffectChangedEvent, Payload: core.EffectChange{}})
}

// State returns the current status snapshot.
func (a *Agent) State() core.Snapshot {
	return a.state.Clone()
}

// Shutdown stops the outer surfaces first so no new commands arrive, then
// drains the effect worker and releases the keyboard.
func (a *Agent) Shutdown() {
	a.shutdown.Do(func() {
		a.scheduler.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("http shutdown")
		}
		if a.mqttClient != nil {
			a.mqttClient.Disconnect()
		}

		a.effects.Shutdown()
		a.cancel()
		a.wg.Wait()

		if err := a.device.Keyboard.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("close keyboard")
		}
		a.logger.Info().Msg("agent stopped")
	})
}
