package script

import (
	"time"

	"github.com/rs/zerolog"
	lua "github.com/yuin/gopher-lua"

	"kblight/internal/core"
)

// builder collects the steps a script emits.
type builder struct {
	effect core.CustomEffect
	logger zerolog.Logger
}

func (b *builder) register(L *lua.LState) {
	L.SetGlobal("rgb", L.NewFunction(luaRGB))
	L.SetGlobal("zones", L.NewFunction(luaZones))
	L.SetGlobal("set", L.NewFunction(b.luaSet))
	L.SetGlobal("transition", L.NewFunction(b.luaTransition))
	L.SetGlobal("loop", L.NewFunction(b.luaLoop))
	L.SetGlobal("print", L.NewFunction(b.luaPrint))
}

func (b *builder) luaPrint(L *lua.LState) int {
	b.logger.Info().Str("script", b.effect.Name).Msg(L.ToString(1))
	return 0
}

func checkChannel(L *lua.LState, n int) uint8 {
	v := L.CheckInt(n)
	if v < 0 || v > 255 {
		L.ArgError(n, "color channel must be 0..255")
	}
	return uint8(v)
}

func pushColors(L *lua.LState, rgb core.RGBArray) {
	t := L.NewTable()
	for i, v := range rgb {
		t.RawSetInt(i+1, lua.LNumber(v))
	}
	L.Push(t)
}

func luaRGB(L *lua.LState) int {
	pushColors(L, core.Uniform(checkChannel(L, 1), checkChannel(L, 2), checkChannel(L, 3)))
	return 1
}

func luaZones(L *lua.LState) int {
	var rgb core.RGBArray
	for zone := 0; zone < core.Zones; zone++ {
		t := L.CheckTable(zone + 1)
		if t.Len() != 3 {
			L.ArgError(zone+1, "zone color must be {r, g, b}")
		}
		var c [3]uint8
		for i := range c {
			v, ok := t.RawGetInt(i + 1).(lua.LNumber)
			if !ok || v < 0 || v > 255 {
				L.ArgError(zone+1, "color channel must be 0..255")
			}
			c[i] = uint8(v)
		}
		rgb.SetZone(zone, c[0], c[1], c[2])
	}
	pushColors(L, rgb)
	return 1
}

func checkColors(L *lua.LState, n int) core.RGBArray {
	t := L.CheckTable(n)
	var rgb core.RGBArray
	if t.Len() != len(rgb) {
		L.ArgError(n, "expected 12 color values, use rgb() or zones()")
	}
	for i := range rgb {
		v, ok := t.RawGetInt(i + 1).(lua.LNumber)
		if !ok || v < 0 || v > 255 {
			L.ArgError(n, "color channel must be 0..255")
		}
		rgb[i] = uint8(v)
	}
	return rgb
}

func optInt(L *lua.LState, opts *lua.LTable, key string, def, lo, hi int) int {
	if opts == nil {
		return def
	}
	switch v := opts.RawGetString(key).(type) {
	case lua.LNumber:
		n := int(v)
		if n < lo || n > hi {
			L.RaiseError("%s must be %d..%d, got %d", key, lo, hi, n)
		}
		return n
	case *lua.LNilType:
		return def
	default:
		L.RaiseError("%s must be a number", key)
	}
	return def
}

func (b *builder) step(L *lua.LState, kind core.StepType) core.Step {
	rgb := checkColors(L, 1)
	opts := L.OptTable(2, nil)
	s := core.Step{
		Type:       kind,
		RGB:        rgb,
		Speed:      uint8(optInt(L, opts, "speed", 1, 1, 255)),
		Brightness: uint8(optInt(L, opts, "brightness", 1, 1, 255)),
		Sleep:      time.Duration(optInt(L, opts, "sleep", 0, 0, 1<<31-1)) * time.Millisecond,
	}
	if kind == core.StepTransition {
		s.Steps = uint8(optInt(L, opts, "steps", 50, 0, 255))
		s.DelayBetweenSteps = time.Duration(optInt(L, opts, "delay", 10, 0, 1<<31-1)) * time.Millisecond
	}
	return s
}

func (b *builder) luaSet(L *lua.LState) int {
	b.effect.Steps = append(b.effect.Steps, b.step(L, core.StepSet))
	return 0
}

func (b *builder) luaTransition(L *lua.LState) int {
	b.effect.Steps = append(b.effect.Steps, b.step(L, core.StepTransition))
	return 0
}

func (b *builder) luaLoop(L *lua.LState) int {
	b.effect.ShouldLoop = L.OptBool(1, true)
	return 0
}
