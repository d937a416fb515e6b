package lua

import (
	"context"
	"math"
	"time"

	lua "github.com/yuin/gopher-lua"

	"hue-controller/internal/core"
	"hue-controller/internal/log"
)

// scriptEnv binds the Go functions of one script run to its context.
type scriptEnv struct {
	ctx     context.Context
	intents core.CommandChannel
}

// registerGoFunctions exposes Go functions to the given Lua state.
func (e *Engine) registerGoFunctions(L *lua.LState, ctx context.Context) {
	env := &scriptEnv{ctx: ctx, intents: e.intents}

	L.SetGlobal("set_color", L.NewFunction(env.luaSetColor))
	L.SetGlobal("set_brightness", L.NewFunction(env.luaSetBrightness))
	L.SetGlobal("set_power", L.NewFunction(env.luaSetPower))
	L.SetGlobal("print", L.NewFunction(luaPrint))
	L.SetGlobal("sleep", L.NewFunction(env.luaSleep))
	L.SetGlobal("should_stop", L.NewFunction(env.luaShouldStop))
	L.SetGlobal("breathe", L.NewFunction(env.luaBreathe))
	L.SetGlobal("fade", L.NewFunction(env.luaFade))
}

func luaPrint(L *lua.LState) int {
	log.WithComponent("lua").Infof("[script] %s", L.ToString(1))
	return 0
}

func clampByte(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// emit hands an intent to the agent. It reports false once the script is cancelled.
func (s *scriptEnv) emit(cmd core.Command) bool {
	select {
	case s.intents <- cmd:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *scriptEnv) luaSetColor(L *lua.LState) int {
	c := core.RGB{R: clampByte(L.ToInt(1)), G: clampByte(L.ToInt(2)), B: clampByte(L.ToInt(3))}
	s.emit(core.ColorIntent(c))
	return 0
}

func (s *scriptEnv) luaSetBrightness(L *lua.LState) int {
	s.emit(core.BrightnessIntent(int(clampByte(L.ToInt(1)))))
	return 0
}

func (s *scriptEnv) luaSetPower(L *lua.LState) int {
	s.emit(core.PowerIntent(L.ToBool(1)))
	return 0
}

// sleep waits for d and returns true if the script was cancelled meanwhile.
func (s *scriptEnv) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return false
	case <-s.ctx.Done():
		return true
	}
}

func (s *scriptEnv) luaSleep(L *lua.LState) int {
	s.sleep(time.Duration(L.ToInt(1)) * time.Millisecond)
	return 0
}

func (s *scriptEnv) luaShouldStop(L *lua.LState) int {
	L.Push(lua.LBool(s.ctx.Err() != nil))
	return 1
}

// luaBreathe pulses brightness from 1 to 255 and back over the given duration.
func (s *scriptEnv) luaBreathe(L *lua.LState) int {
	duration := time.Duration(L.ToInt(1)) * time.Millisecond

	const steps = 50
	stepDuration := duration / (2 * steps)

	for i := 1; i <= 2*steps; i++ {
		level := i
		if i > steps {
			level = 2*steps - i + 1
		}
		if !s.emit(core.BrightnessIntent(level * 255 / steps)) {
			return 0
		}
		if s.sleep(stepDuration) {
			return 0
		}
	}
	return 0
}

// luaFade transitions from one color to another over a duration.
func (s *scriptEnv) luaFade(L *lua.LState) int {
	r1, g1, b1 := L.ToInt(1), L.ToInt(2), L.ToInt(3)
	r2, g2, b2 := L.ToInt(4), L.ToInt(5), L.ToInt(6)
	duration := time.Duration(L.ToInt(7)) * time.Millisecond

	const steps = 50
	stepDuration := duration / steps

	lerp := func(a, b int, p float64) uint8 {
		return clampByte(int(math.Round(float64(a) + p*float64(b-a))))
	}

	for i := 0; i <= steps; i++ {
		p := float64(i) / steps
		c := core.RGB{R: lerp(r1, r2, p), G: lerp(g1, g2, p), B: lerp(b1, b2, p)}
		if !s.emit(core.ColorIntent(c)) {
			return 0
		}
		if i < steps && s.sleep(stepDuration) {
			return 0
		}
	}
	return 0
}
