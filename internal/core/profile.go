package core

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Zones is the number of independently lit keyboard zones.
const Zones = 4

// RGBArray holds one RGB triple per zone, left to right.
type RGBArray [Zones * 3]uint8

// Zone returns the color of zone i.
func (a RGBArray) Zone(i int) (r, g, b uint8) {
	return a[i*3], a[i*3+1], a[i*3+2]
}

// SetZone overwrites the color of zone i.
func (a *RGBArray) SetZone(i int, r, g, b uint8) {
	a[i*3], a[i*3+1], a[i*3+2] = r, g, b
}

// Uniform returns an array with every zone set to the same color.
func Uniform(r, g, b uint8) RGBArray {
	var a RGBArray
	for i := 0; i < Zones; i++ {
		a.SetZone(i, r, g, b)
	}
	return a
}

// Direction is the travel direction of wave-like effects.
type Direction string

const (
	Left  Direction = "left"
	Right Direction = "right"
)

// EffectKind enumerates every animation the worker knows how to drive.
type EffectKind string

const (
	Static       EffectKind = "static"
	Breath       EffectKind = "breath"
	Smooth       EffectKind = "smooth"
	Wave         EffectKind = "wave"
	Lightning    EffectKind = "lightning"
	AmbientLight EffectKind = "ambient_light"
	SmoothWave   EffectKind = "smooth_wave"
	Swipe        EffectKind = "swipe"
	Disco        EffectKind = "disco"
	Christmas    EffectKind = "christmas"
	Fade         EffectKind = "fade"
	Temperature  EffectKind = "temperature"
	Ripple       EffectKind = "ripple"
)

// EffectKinds lists the kinds in declaration order.
var EffectKinds = []EffectKind{
	Static, Breath, Smooth, Wave, Lightning, AmbientLight, SmoothWave,
	Swipe, Disco, Christmas, Fade, Temperature, Ripple,
}

// Valid reports whether k is one of the known kinds.
func (k EffectKind) Valid() bool {
	for _, known := range EffectKinds {
		if k == known {
			return true
		}
	}
	return false
}

// DefaultAmbientFPS is used when an ambient light effect does not name a rate.
const DefaultAmbientFPS = 30

// Effect is the effect variant of a profile. Direction only matters for Wave
// and FPS only for AmbientLight.
type Effect struct {
	Kind      EffectKind `json:"kind" yaml:"kind"`
	Direction Direction  `json:"direction,omitempty" yaml:"direction,omitempty"`
	FPS       uint8      `json:"fps,omitempty" yaml:"fps,omitempty"`
}

// WaveEffect builds a Wave effect travelling in d.
func WaveEffect(d Direction) Effect {
	return Effect{Kind: Wave, Direction: d}
}

// AmbientEffect builds an AmbientLight effect sampling at fps.
func AmbientEffect(fps uint8) Effect {
	return Effect{Kind: AmbientLight, FPS: fps}
}

// ParseEffect accepts "wave", "wave:right", "ambient_light:15" and the plain kind names.
func ParseEffect(s string) (Effect, error) {
	name, arg, _ := strings.Cut(strings.ToLower(strings.TrimSpace(s)), ":")
	e := Effect{Kind: EffectKind(strings.ReplaceAll(name, "-", "_"))}
	if !e.Kind.Valid() {
		return Effect{}, fmt.Errorf("unknown effect %q", s)
	}
	switch e.Kind {
	case Wave:
		e.Direction = Left
		if arg != "" {
			e.Direction = Direction(arg)
		}
	case AmbientLight:
		e.FPS = DefaultAmbientFPS
		if arg != "" {
			var fps int
			if _, err := fmt.Sscanf(arg, "%d", &fps); err != nil || fps <= 0 || fps > 255 {
				return Effect{}, fmt.Errorf("invalid ambient fps %q", arg)
			}
			e.FPS = uint8(fps)
		}
	}
	return e, e.Validate()
}

// Validate checks the variant-specific fields.
func (e Effect) Validate() error {
	if !e.Kind.Valid() {
		return fmt.Errorf("unknown effect kind %q", e.Kind)
	}
	if e.Kind == Wave && e.Direction != Left && e.Direction != Right {
		return fmt.Errorf("wave direction must be %q or %q, got %q", Left, Right, e.Direction)
	}
	return nil
}

func (e Effect) String() string {
	switch e.Kind {
	case Wave:
		return fmt.Sprintf("%s:%s", e.Kind, e.Direction)
	case AmbientLight:
		return fmt.Sprintf("%s:%d", e.Kind, e.FPS)
	}
	return string(e.Kind)
}

// UnmarshalJSON accepts either the object form or the short string form.
func (e *Effect) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := ParseEffect(s)
		if err != nil {
			return err
		}
		*e = parsed
		return nil
	}
	type plain Effect
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = Effect(p)
	if e.Kind == Wave && e.Direction == "" {
		e.Direction = Left
	}
	if e.Kind == AmbientLight && e.FPS == 0 {
		e.FPS = DefaultAmbientFPS
	}
	return e.Validate()
}

// UnmarshalYAML mirrors UnmarshalJSON for the profile library file.
func (e *Effect) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		parsed, err := ParseEffect(node.Value)
		if err != nil {
			return err
		}
		*e = parsed
		return nil
	}
	type plain Effect
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*e = Effect(p)
	if e.Kind == Wave && e.Direction == "" {
		e.Direction = Left
	}
	if e.Kind == AmbientLight && e.FPS == 0 {
		e.FPS = DefaultAmbientFPS
	}
	return e.Validate()
}

// Profile describes one static or animated lighting state. It is a value
// type; the worker keeps its own copy.
type Profile struct {
	Name       string   `json:"name,omitempty" yaml:"name,omitempty"`
	Effect     Effect   `json:"effect" yaml:"effect"`
	RGB        RGBArray `json:"rgb_array" yaml:"rgb_array,flow"`
	Speed      uint8    `json:"speed" yaml:"speed"`
	Brightness uint8    `json:"brightness" yaml:"brightness"`
}

// SmoothWavePalette is the fixed palette the smooth wave effect always uses.
var SmoothWavePalette = RGBArray{255, 0, 0, 0, 255, 0, 0, 0, 255, 255, 0, 255}

// DefaultProfile is applied when nothing else has been requested yet.
func DefaultProfile() Profile {
	return Profile{
		Name:       "default",
		Effect:     Effect{Kind: Static},
		RGB:        Uniform(255, 255, 255),
		Speed:      1,
		Brightness: 1,
	}
}

// Validate checks that p can be handed to the worker.
func (p Profile) Validate() error {
	if err := p.Effect.Validate(); err != nil {
		return err
	}
	if p.Speed == 0 {
		return fmt.Errorf("profile %q: speed must be positive", p.Name)
	}
	if p.Brightness == 0 {
		return fmt.Errorf("profile %q: brightness must be positive", p.Name)
	}
	return nil
}
