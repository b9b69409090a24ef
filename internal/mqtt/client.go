// Package mqtt bridges the agent to an MQTT broker.
package mqtt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"kblight/internal/config"
	"kblight/internal/core"
)

// Controller is what MQTT commands drive.
type Controller interface {
	ApplyProfile(name string) error
	SetProfile(p core.Profile) error
	RunCustom(name string) error
	Refresh() error
	Stop()
}

// Client subscribes to command topics under the configured prefix and
// publishes effect state and availability.
type Client struct {
	client     mqtt.Client
	cfg        config.MQTTConfig
	controller Controller
	prefix     string
	logger     zerolog.Logger
}

// NewClient returns nil when MQTT is disabled.
func NewClient(cfg config.MQTTConfig, controller Controller) *Client {
	if !cfg.Enabled {
		return nil
	}

	c := newClient(cfg, controller)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)

	opts.SetKeepAlive(10 * time.Second)
	opts.SetPingTimeout(5 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(time.Minute)
	// Keep retrying at startup so a broker that comes up later is still used.
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetOrderMatters(true)

	opts.SetWill(c.topic("availability"), "offline", 1, true)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.logger.Warn().Err(err).Msg("connection lost, retrying in background")
	})
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		c.logger.Info().Msg("reconnecting")
	})

	c.client = mqtt.NewClient(opts)
	return c
}

func newClient(cfg config.MQTTConfig, controller Controller) *Client {
	return &Client{
		cfg:        cfg,
		controller: controller,
		prefix:     strings.TrimSuffix(cfg.TopicPrefix, "/"),
		logger:     log.With().Str("component", "mqtt").Logger(),
	}
}

func (c *Client) topic(sub string) string {
	return c.prefix + "/" + sub
}

// Connect waits for the first connection attempt.
func (c *Client) Connect() error {
	if c.client == nil {
		return nil
	}
	c.logger.Info().Str("broker", c.cfg.Broker).Msg("connecting")

	token := c.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return nil
}

// Disconnect publishes offline and closes the connection.
func (c *Client) Disconnect() {
	if c.client == nil || !c.client.IsConnected() {
		return
	}
	token := c.client.Publish(c.topic("availability"), 1, true, "offline")
	if !token.WaitTimeout(2 * time.Second) {
		c.logger.Warn().Msg("timed out publishing offline status")
	} else if token.Error() != nil {
		c.logger.Warn().Err(token.Error()).Msg("publish offline status")
	}
	c.client.Disconnect(250)
	c.logger.Info().Msg("disconnected")
}

// Publish sends payload to prefix/subtopic without blocking the caller.
func (c *Client) Publish(subtopic string, payload interface{}, retained bool) {
	if c.client == nil || !c.client.IsConnected() {
		return
	}
	topic := c.topic(subtopic)
	token := c.client.Publish(topic, 0, retained, payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			c.logger.Warn().Str("topic", topic).Msg("publish timed out")
		} else if token.Error() != nil {
			c.logger.Warn().Err(token.Error()).Str("topic", topic).Msg("publish failed")
		}
	}()
}

type effectState struct {
	Running string        `json:"running"`
	Custom  string        `json:"custom,omitempty"`
	Profile *core.Profile `json:"profile,omitempty"`
}

// PublishEffect publishes an effect change as retained JSON.
func (c *Client) PublishEffect(change core.EffectChange) {
	data, err := json.Marshal(effectState{Running: change.Running, Custom: change.Custom, Profile: change.Profile})
	if err != nil {
		c.logger.Error().Err(err).Msg("encode effect state")
		return
	}
	c.Publish("effect/state", data, true)
}

// PublishConnection publishes the device link state.
func (c *Client) PublishConnection(connected bool) {
	state := "disconnected"
	if connected {
		state = "connected"
	}
	c.Publish("connection", state, true)
}

func (c *Client) handlers() map[string]mqtt.MessageHandler {
	return map[string]mqtt.MessageHandler{
		"profile/set": c.handleProfileSet,
		"custom/run":  c.handleCustomRun,
		"refresh":     c.handleRefresh,
		"stop":        c.handleStop,
	}
}

func (c *Client) onConnect(client mqtt.Client) {
	c.logger.Info().Msg("connected to broker")
	for sub, handler := range c.handlers() {
		topic := c.topic(sub)
		if token := client.Subscribe(topic, 1, handler); token.Wait() && token.Error() != nil {
			c.logger.Error().Err(token.Error()).Str("topic", topic).Msg("subscribe failed")
		} else {
			c.logger.Debug().Str("topic", topic).Msg("subscribed")
		}
	}
	go c.Publish("availability", "online", true)
}

// parseProfileCommand reads a profile/set payload: an inline JSON profile or
// the name of a library profile.
func parseProfileCommand(payload []byte) (name string, p *core.Profile, err error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return "", nil, fmt.Errorf("empty payload")
	}
	if payload[0] == '{' {
		var inline core.Profile
		if err := json.Unmarshal(payload, &inline); err != nil {
			return "", nil, fmt.Errorf("invalid profile: %w", err)
		}
		return "", &inline, nil
	}
	return string(payload), nil, nil
}

func (c *Client) handleProfileSet(_ mqtt.Client, msg mqtt.Message) {
	name, inline, err := parseProfileCommand(msg.Payload())
	if err == nil {
		if inline != nil {
			err = c.controller.SetProfile(*inline)
		} else {
			err = c.controller.ApplyProfile(name)
		}
	}
	c.report(msg, err)
}

func (c *Client) handleCustomRun(_ mqtt.Client, msg mqtt.Message) {
	name := strings.TrimSpace(string(msg.Payload()))
	c.report(msg, c.controller.RunCustom(name))
}

func (c *Client) handleRefresh(_ mqtt.Client, msg mqtt.Message) {
	c.report(msg, c.controller.Refresh())
}

func (c *Client) handleStop(_ mqtt.Client, msg mqtt.Message) {
	c.controller.Stop()
	c.report(msg, nil)
}

func (c *Client) report(msg mqtt.Message, err error) {
	if err != nil {
		c.logger.Warn().Err(err).Str("topic", msg.Topic()).Msg("command rejected")
		c.Publish("error", err.Error(), false)
		return
	}
	c.logger.Debug().Str("topic", msg.Topic()).Msg("command accepted")
}
