package lua

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"lightshow-agent/internal/effects"
	"lightshow-agent/internal/show"

	lua "github.com/yuin/gopher-lua"
)

// registerGoFunctions exposes the lighting API to the given Lua state.
func (e *Engine) registerGoFunctions(L *lua.LState, ctx context.Context) {
	L.SetGlobal("static", L.NewFunction(e.luaStatic))
	L.SetGlobal("color_cycle", L.NewFunction(e.luaColorCycle))
	L.SetGlobal("strobe", L.NewFunction(e.luaStrobe))
	L.SetGlobal("dimmer", L.NewFunction(e.luaDimmer))
	L.SetGlobal("chase", L.NewFunction(e.luaChase))
	L.SetGlobal("rainbow", L.NewFunction(e.luaRainbow))
	L.SetGlobal("pulse", L.NewFunction(e.luaPulse))

	L.SetGlobal("stop_effect", L.NewFunction(e.luaStopEffect))
	L.SetGlobal("stop_all", L.NewFunction(e.luaStopAll))
	L.SetGlobal("layer_intensity", L.NewFunction(e.luaLayerIntensity))
	L.SetGlobal("fixtures", L.NewFunction(e.luaFixtures))

	L.SetGlobal("sleep", L.NewFunction(luaSleep(ctx)))
	L.SetGlobal("should_stop", L.NewFunction(luaShouldStop(ctx)))
	L.SetGlobal("print", L.NewFunction(luaPrint))
}

func luaPrint(L *lua.LState) int {
	log.Printf("[Lua] %s", L.ToString(1))
	return 0
}

// luaSleep sleeps for the given milliseconds, waking early on cancel.
func luaSleep(ctx context.Context) lua.LGFunction {
	return func(L *lua.LState) int {
		ms := L.ToInt(1)
		select {
		case <-time.After(time.Duration(ms) * time.Millisecond):
		case <-ctx.Done():
		}
		return 0
	}
}

func luaShouldStop(ctx context.Context) lua.LGFunction {
	return func(L *lua.LState) int {
		select {
		case <-ctx.Done():
			L.Push(lua.LBool(true))
		default:
			L.Push(lua.LBool(false))
		}
		return 1
	}
}

// targetsAt reads a fixture selector at the given stack index: a fixture
// name, "*" for every fixture, or a table of names.
func (e *Engine) targetsAt(L *lua.LState, idx int) []string {
	switch v := L.Get(idx).(type) {
	case lua.LString:
		if string(v) == "*" {
			return e.lights.FixtureNames()
		}
		return []string{string(v)}
	case *lua.LTable:
		var out []string
		v.ForEach(func(_, value lua.LValue) {
			if s, ok := value.(lua.LString); ok {
				out = append(out, string(s))
			}
		})
		return out
	}
	return nil
}

// optsAt reads the optional trailing options table: id, layer, blend,
// priority, fade_in_ms, hold_ms, fade_out_ms.
func optsAt(L *lua.LState, idx int) *lua.LTable {
	if t, ok := L.Get(idx).(*lua.LTable); ok {
		return t
	}
	return nil
}

func optString(t *lua.LTable, key string) string {
	if t == nil {
		return ""
	}
	if s, ok := t.RawGetString(key).(lua.LString); ok {
		return string(s)
	}
	return ""
}

func optNumber(t *lua.LTable, key string, def float64) float64 {
	if t == nil {
		return def
	}
	if n, ok := t.RawGetString(key).(lua.LNumber); ok {
		return float64(n)
	}
	return def
}

func optDuration(t *lua.LTable, key string) time.Duration {
	return time.Duration(optNumber(t, key, 0)) * time.Millisecond
}

// start builds an instance from a script call and hands it to the
// engine. The effect id is pushed so scripts can stop it later.
func (e *Engine) start(L *lua.LState, effect effects.EffectType, targets []string, opts *lua.LTable) int {
	id := optString(opts, "id")
	if id == "" {
		id = "lua_" + uuid.NewString()
	}

	in := effects.NewInstance(id, effect, targets,
		optDuration(opts, "fade_in_ms"),
		optDuration(opts, "hold_ms"),
		optDuration(opts, "fade_out_ms"))
	in.Priority = uint8(optNumber(opts, "priority", 0))

	if layer := optString(opts, "layer"); layer != "" {
		switch strings.ToLower(layer) {
		case "midground", "mid":
			in.Layer = effects.Midground
		case "foreground", "fg":
			in.Layer = effects.Foreground
		}
	}
	if blend := optString(opts, "blend"); blend != "" {
		switch strings.ToLower(blend) {
		case "multiply":
			in.BlendMode = effects.Multiply
		case "add":
			in.BlendMode = effects.Add
		case "overlay":
			in.BlendMode = effects.Overlay
		case "screen":
			in.BlendMode = effects.Screen
		}
	}

	if err := e.lights.StartEffect(in); err != nil {
		log.Printf("[Lua] start effect: %v", err)
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LString(id))
	return 1
}

// rateAt reads a speed argument: a number is cycles per second, a
// string may carry a unit suffix ("2b", "1m", "4s", "2hz").
func rateAt(L *lua.LState, idx int) (effects.SpeedUnit, float64) {
	switch v := L.Get(idx).(type) {
	case lua.LNumber:
		return effects.UnitFixed, float64(v)
	case lua.LString:
		unit, value, err := show.ParseRate(string(v))
		if err != nil {
			log.Printf("[Lua] bad rate %q, treating as stopped", string(v))
			return effects.UnitFixed, 0
		}
		return unit, value
	}
	return effects.UnitFixed, 0
}

// static(fixtures, color, opts) starts a static color look.
func (e *Engine) luaStatic(L *lua.LState) int {
	targets := e.targetsAt(L, 1)
	color := L.ToString(2)
	opts := optsAt(L, 3)

	c, err := effects.ColorFromHex(color)
	if err != nil {
		if named, nerr := effects.ColorFromName(color); nerr == nil {
			c = named
		} else {
			log.Printf("[Lua] bad color %q: %v", color, err)
			L.Push(lua.LNil)
			return 1
		}
	}
	params := map[string]float64{
		"red":   float64(c.R) / 255.0,
		"green": float64(c.G) / 255.0,
		"blue":  float64(c.B) / 255.0,
	}
	return e.start(L, effects.StaticEffect{
		Parameters: params,
		Duration:   optDuration(opts, "duration_ms"),
	}, targets, opts)
}

// color_cycle(fixtures, colors, speed, opts) cycles through a color list.
func (e *Engine) luaColorCycle(L *lua.LState) int {
	targets := e.targetsAt(L, 1)
	var colors []effects.Color
	if t, ok := L.Get(2).(*lua.LTable); ok {
		t.ForEach(func(_, value lua.LValue) {
			if s, ok := value.(lua.LString); ok {
				if c, err := effects.ColorFromHex(string(s)); err == nil {
					colors = append(colors, c)
				} else if c, err := effects.ColorFromName(string(s)); err == nil {
					colors = append(colors, c)
				}
			}
		})
	}
	if len(colors) == 0 {
		log.Println("[Lua] color_cycle needs at least one color")
		L.Push(lua.LNil)
		return 1
	}
	unit, value := rateAt(L, 3)
	opts := optsAt(L, 4)

	transition := effects.Snap
	if strings.EqualFold(optString(opts, "transition"), "fade") {
		transition = effects.Fade
	}
	return e.start(L, effects.ColorCycleEffect{
		Colors:     colors,
		Speed:      effects.Speed{Unit: unit, Value: value},
		Transition: transition,
	}, targets, opts)
}

// strobe(fixtures, frequency, duration_ms, opts) flashes the targets.
func (e *Engine) luaStrobe(L *lua.LState) int {
	targets := e.targetsAt(L, 1)
	unit, value := rateAt(L, 2)
	duration := time.Duration(L.ToInt(3)) * time.Millisecond
	opts := optsAt(L, 4)
	return e.start(L, effects.StrobeEffect{
		Frequency: effects.Frequency{Unit: unit, Value: value},
		Duration:  duration,
	}, targets, opts)
}

// dimmer(fixtures, to, duration_ms, opts) fades brightness to a level.
func (e *Engine) luaDimmer(L *lua.LState) int {
	targets := e.targetsAt(L, 1)
	to := float64(L.ToNumber(2))
	duration := time.Duration(L.ToInt(3)) * time.Millisecond
	opts := optsAt(L, 4)
	return e.start(L, effects.DimmerEffect{
		StartLevel: optNumber(opts, "from", 0),
		EndLevel:   to,
		Duration:   duration,
	}, targets, opts)
}

// chase(fixtures, speed, opts) runs an intensity spot across the targets.
func (e *Engine) luaChase(L *lua.LState) int {
	targets := e.targetsAt(L, 1)
	unit, value := rateAt(L, 2)
	opts := optsAt(L, 3)

	pattern := effects.ChaseLinear
	switch strings.ToLower(optString(opts, "pattern")) {
	case "snake":
		pattern = effects.ChaseSnake
	case "random":
		pattern = effects.ChaseRandom
	}
	return e.start(L, effects.ChaseEffect{
		Pattern: pattern,
		Speed:   effects.Speed{Unit: unit, Value: value},
	}, targets, opts)
}

// rainbow(fixtures, speed, opts) sweeps the hue wheel.
func (e *Engine) luaRainbow(L *lua.LState) int {
	targets := e.targetsAt(L, 1)
	unit, value := rateAt(L, 2)
	opts := optsAt(L, 3)
	return e.start(L, effects.RainbowEffect{
		Speed:      effects.Speed{Unit: unit, Value: value},
		Saturation: optNumber(opts, "saturation", 1),
		Brightness: optNumber(opts, "brightness", 1),
	}, targets, opts)
}

// pulse(fixtures, frequency, opts) breathes brightness sinusoidally.
func (e *Engine) luaPulse(L *lua.LState) int {
	targets := e.targetsAt(L, 1)
	unit, value := rateAt(L, 2)
	opts := optsAt(L, 3)
	return e.start(L, effects.PulseEffect{
		BaseLevel: optNumber(opts, "base", 0.5),
		Amplitude: optNumber(opts, "amplitude", 0.5),
		Frequency: effects.Frequency{Unit: unit, Value: value},
		Duration:  optDuration(opts, "duration_ms"),
	}, targets, opts)
}

func (e *Engine) luaStopEffect(L *lua.LState) int {
	e.lights.StopEffect(L.ToString(1))
	return 0
}

func (e *Engine) luaStopAll(L *lua.LState) int {
	e.lights.StopAllEffects()
	return 0
}

// layer_intensity(layer, value) sets a layer master.
func (e *Engine) luaLayerIntensity(L *lua.LState) int {
	layer := effects.Background
	switch strings.ToLower(L.ToString(1)) {
	case "midground", "mid":
		layer = effects.Midground
	case "foreground", "fg":
		layer = effects.Foreground
	}
	e.lights.SetLayerIntensity(layer, float64(L.ToNumber(2)))
	return 0
}

// fixtures() returns the registered fixture names.
func (e *Engine) luaFixtures(L *lua.LState) int {
	t := L.NewTable()
	for _, name := range e.lights.FixtureNames() {
		t.Append(lua.LString(name))
	}
	L.Push(t)
	return 1
}
