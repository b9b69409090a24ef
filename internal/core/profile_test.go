package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseEffect(t *testing.T) {
	cases := map[string]Effect{
		"static":           {Kind: Static},
		"wave":             {Kind: Wave, Direction: Left},
		"Wave:right":       {Kind: Wave, Direction: Right},
		"ambient_light":    {Kind: AmbientLight, FPS: DefaultAmbientFPS},
		"ambient-light:15": {Kind: AmbientLight, FPS: 15},
		"smooth_wave":      {Kind: SmoothWave},
	}
	for in, want := range cases {
		got, err := ParseEffect(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "rainbow", "wave:up", "ambient_light:0", "ambient_light:x"} {
		_, err := ParseEffect(bad)
		assert.Error(t, err, bad)
	}
}

func TestEffectStringRoundTrips(t *testing.T) {
	for _, e := range []Effect{WaveEffect(Right), AmbientEffect(12), {Kind: Disco}} {
		parsed, err := ParseEffect(e.String())
		require.NoError(t, err)
		assert.Equal(t, e, parsed)
	}
}

func TestProfileJSONAcceptsBothEffectForms(t *testing.T) {
	var p Profile
	require.NoError(t, json.Unmarshal([]byte(`{
		"effect": "wave:right",
		"rgb_array": [255,0,0, 0,255,0, 0,0,255, 255,255,255],
		"speed": 3,
		"brightness": 2
	}`), &p))
	assert.Equal(t, WaveEffect(Right), p.Effect)
	assert.Equal(t, RGBArray{255, 0, 0, 0, 255, 0, 0, 0, 255, 255, 255, 255}, p.RGB)
	require.NoError(t, p.Validate())

	require.NoError(t, json.Unmarshal([]byte(`{"effect": {"kind": "ambient_light"}, "speed": 1, "brightness": 1}`), &p))
	assert.Equal(t, AmbientEffect(DefaultAmbientFPS), p.Effect)

	assert.Error(t, json.Unmarshal([]byte(`{"effect": {"kind": "wave", "direction": "up"}}`), &p))
}

func TestProfileYAML(t *testing.T) {
	var profiles map[string]Profile
	require.NoError(t, yaml.Unmarshal([]byte(`
night:
  effect: breath
  rgb_array: [0, 0, 40, 0, 0, 40, 0, 0, 40, 0, 0, 40]
  speed: 1
  brightness: 1
party:
  effect:
    kind: wave
  speed: 4
  brightness: 2
`), &profiles))

	assert.Equal(t, Effect{Kind: Breath}, profiles["night"].Effect)
	assert.Equal(t, Uniform(0, 0, 40), profiles["night"].RGB)
	assert.Equal(t, WaveEffect(Left), profiles["party"].Effect)
}

func TestProfileValidate(t *testing.T) {
	assert.NoError(t, DefaultProfile().Validate())

	p := DefaultProfile()
	p.Speed = 0
	assert.Error(t, p.Validate())

	p = DefaultProfile()
	p.Brightness = 0
	assert.Error(t, p.Validate())
}

func TestRGBArrayZones(t *testing.T) {
	var a RGBArray
	a.SetZone(2, 7, 8, 9)
	r, g, b := a.Zone(2)
	assert.Equal(t, []uint8{7, 8, 9}, []uint8{r, g, b})
	assert.Equal(t, RGBArray{0, 0, 0, 0, 0, 0, 7, 8, 9, 0, 0, 0}, a)
}

func TestCustomEffectJSON(t *testing.T) {
	var ce CustomEffect
	require.NoError(t, json.Unmarshal([]byte(`{
		"effect_steps": [
			{"rgb_array": [1,1,1,1,1,1,1,1,1,1,1,1], "speed": 1, "brightness": 1, "sleep": 250},
			{"type": "transition", "rgb_array": [0,0,0,0,0,0,0,0,0,0,0,0], "speed": 2, "brightness": 2, "steps": 20, "delay_between_steps": 15, "sleep": 0}
		],
		"should_loop": true
	}`), &ce))

	require.Len(t, ce.Steps, 2)
	assert.True(t, ce.ShouldLoop)
	assert.Equal(t, StepSet, ce.Steps[0].Type)
	assert.Equal(t, 250*time.Millisecond, ce.Steps[0].Sleep)
	assert.Equal(t, StepTransition, ce.Steps[1].Type)
	assert.Equal(t, uint8(20), ce.Steps[1].Steps)
	assert.Equal(t, 15*time.Millisecond, ce.Steps[1].DelayBetweenSteps)

	assert.Error(t, json.Unmarshal([]byte(`{"effect_steps": [{"type": "jump"}]}`), &ce))
}

func TestStateAppliesEffectChanges(t *testing.T) {
	s := NewState()
	assert.Equal(t, DefaultProfile(), s.Clone().Profile)

	p := Profile{Name: "x", Effect: Effect{Kind: Disco}, Speed: 2, Brightness: 1}
	s.Apply(EffectChange{Running: "disco", Profile: &p})
	s.SetConnection(true, -40)
	snap := s.Clone()
	assert.Equal(t, "disco", snap.Running)
	assert.Equal(t, "x", snap.Profile.Name)
	assert.True(t, snap.Connected)

	s.Apply(EffectChange{Running: "custom", Custom: "blink"})
	snap = s.Clone()
	assert.Equal(t, "blink", snap.Custom)
	assert.Equal(t, "x", snap.Profile.Name)
}

func TestEventBusDropsWhenFull(t *testing.T) {
	bus := NewEventBus()
	sub := bus.Subscribe(EffectChangedEvent)
	for i := 0; i < 150; i++ {
		bus.Publish(Event{Type: EffectChangedEvent})
	}
	assert.Len(t, sub, 100)

	bus.Unsubscribe(sub, EffectChangedEvent)
	var nilBus *EventBus
	nilBus.Publish(Event{Type: EffectChangedEvent})
}
