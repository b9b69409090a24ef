package mqtt

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kblight/internal/config"
	"kblight/internal/core"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type fakeController struct {
	calls []string
	err   error
}

func (f *fakeController) ApplyProfile(name string) error {
	f.calls = append(f.calls, "apply "+name)
	return f.err
}

func (f *fakeController) SetProfile(p core.Profile) error {
	f.calls = append(f.calls, "set "+p.Effect.String())
	return f.err
}

func (f *fakeController) RunCustom(name string) error {
	f.calls = append(f.calls, "custom "+name)
	return f.err
}

func (f *fakeController) Refresh() error {
	f.calls = append(f.calls, "refresh")
	return f.err
}

func (f *fakeController) Stop() { f.calls = append(f.calls, "stop") }

func TestNewClientDisabled(t *testing.T) {
	assert.Nil(t, NewClient(config.MQTTConfig{}, &fakeController{}))
}

func TestParseProfileCommand(t *testing.T) {
	name, p, err := parseProfileCommand([]byte(" night \n"))
	require.NoError(t, err)
	assert.Equal(t, "night", name)
	assert.Nil(t, p)

	_, p, err = parseProfileCommand([]byte(`{"effect":"disco","speed":3,"brightness":2}`))
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, core.Disco, p.Effect.Kind)

	_, _, err = parseProfileCommand([]byte(`{"effect":"nope"}`))
	assert.Error(t, err)
	_, _, err = parseProfileCommand(nil)
	assert.Error(t, err)
}

func TestHandlersDriveController(t *testing.T) {
	ctrl := &fakeController{}
	c := newClient(config.MQTTConfig{TopicPrefix: "kblight/"}, ctrl)
	h := c.handlers()

	h["profile/set"](nil, fakeMessage{topic: "kblight/profile/set", payload: []byte("night")})
	h["profile/set"](nil, fakeMessage{topic: "kblight/profile/set", payload: []byte(`{"effect":"wave:right","speed":1,"brightness":1}`)})
	h["profile/set"](nil, fakeMessage{topic: "kblight/profile/set", payload: []byte(`{bad`)})
	h["custom/run"](nil, fakeMessage{topic: "kblight/custom/run", payload: []byte("police")})
	h["refresh"](nil, fakeMessage{topic: "kblight/refresh"})
	h["stop"](nil, fakeMessage{topic: "kblight/stop"})

	assert.Equal(t, []string{"apply night", "set wave:right", "custom police", "refresh", "stop"}, ctrl.calls)
	assert.Equal(t, "kblight/effect/state", c.topic("effect/state"))
}

func TestPublishWithoutConnectionIsNoop(t *testing.T) {
	c := newClient(config.MQTTConfig{TopicPrefix: "kb"}, &fakeController{err: errors.New("x")})
	c.PublishEffect(core.EffectChange{Running: "static"})
	c.PublishConnection(true)
	c.Disconnect()
	assert.NoError(t, c.Connect())
}
