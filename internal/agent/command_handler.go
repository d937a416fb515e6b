package agent

//go:generate mockgen -destination=mocks/mock_enqueuer.go -package=mocks hue-controller/internal/agent Enqueuer

import (
	"strconv"

	"github.com/robfig/cron/v3"

	"hue-controller/internal/core"
	"hue-controller/internal/log"
	"hue-controller/internal/scheduler"
)

// Enqueuer accepts light commands for coalesced delivery.
type Enqueuer interface {
	Enqueue(kind core.Kind, cmd core.LightCommand) error
}

// PatternRunner manages Lua pattern scripts.
type PatternRunner interface {
	RunPattern(name string) error
	StopCurrentPattern()
	GetPatternCode(name string) (string, error)
	SavePatternCode(name, code string) error
	DeletePattern(name string) error
	GetPatternList() ([]string, error)
}

// ScheduleManager manages cron schedules.
type ScheduleManager interface {
	Add(spec, command string) (cron.EntryID, error)
	Remove(id int)
	GetAll() map[cron.EntryID]scheduler.ScheduleEntry
}

// CommandHandler turns intents into queued light commands and management calls.
// It is used from the agent loop only.
type CommandHandler struct {
	state     *core.State
	eventBus  *core.EventBus
	queue     Enqueuer
	patterns  PatternRunner
	schedules ScheduleManager
}

// NewCommandHandler creates a handler. Light intents are dropped until SetQueue is called.
func NewCommandHandler(state *core.State, eb *core.EventBus, patterns PatternRunner, schedules ScheduleManager) *CommandHandler {
	return &CommandHandler{
		state:     state,
		eventBus:  eb,
		patterns:  patterns,
		schedules: schedules,
	}
}

// SetQueue installs the command queue once the bridge is ready.
func (h *CommandHandler) SetQueue(q Enqueuer) {
	h.queue = q
}

func number(payload map[string]interface{}, key string) (float64, bool) {
	switch v := payload[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case uint8:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

func level(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}

func (h *CommandHandler) enqueue(kind core.Kind, cmd core.LightCommand) bool {
	if err := h.queue.Enqueue(kind, cmd); err != nil {
		log.WithComponent("agent").Errorf("Enqueue %s %s: %v", kind, cmd, err)
		return false
	}
	return true
}

// Handle processes one intent.
func (h *CommandHandler) Handle(cmd core.Command) {
	logger := log.WithComponent("agent")
	logger.Debugf("Handling command: %s with payload: %v", cmd.Type, cmd.Payload)

	switch cmd.Type {
	case core.CmdSetPower, core.CmdSetBrightness, core.CmdSetColor:
		current := h.state.Clone()
		if !current.Ready || h.queue == nil {
			logger.Debugf("Bridge not ready, dropping %s", cmd.Type)
			return
		}
		h.handleLight(cmd, &current)

	case core.CmdRunPattern:
		name, _ := cmd.Payload["name"].(string)
		if err := h.patterns.RunPattern(name); err != nil {
			logger.Warnf("Cannot run pattern: %v", err)
		}

	case core.CmdStopPattern:
		h.patterns.StopCurrentPattern()

	case core.CmdAddSchedule:
		spec, _ := cmd.Payload["spec"].(string)
		command, _ := cmd.Payload["command"].(string)
		if _, err := h.schedules.Add(spec, command); err != nil {
			logger.Warnf("Cannot add schedule: %v", err)
			return
		}
		h.publish(core.ScheduleChangedEvent, h.schedules.GetAll())

	case core.CmdRemoveSchedule:
		id, ok := number(cmd.Payload, "id")
		if !ok {
			logger.Warnf("removeSchedule without a numeric id: %v", cmd.Payload["id"])
			return
		}
		h.schedules.Remove(int(id))
		h.publish(core.ScheduleChangedEvent, h.schedules.GetAll())

	case core.CmdGetPatternCode:
		name, _ := cmd.Payload["name"].(string)
		code, err := h.patterns.GetPatternCode(name)
		if err != nil {
			logger.Warnf("Error getting pattern code: %v", err)
			return
		}
		h.publish(core.PatternCodeEvent, map[string]string{"name": name, "code": code})

	case core.CmdSavePatternCode:
		name, nameOk := cmd.Payload["name"].(string)
		code, codeOk := cmd.Payload["code"].(string)
		if !nameOk || !codeOk {
			return
		}
		if err := h.patterns.SavePatternCode(name, code); err != nil {
			logger.Warnf("Error saving pattern: %v", err)
			return
		}
		h.publishPatternList()

	case core.CmdDeletePattern:
		name, _ := cmd.Payload["name"].(string)
		if err := h.patterns.DeletePattern(name); err != nil {
			logger.Warnf("Error deleting pattern '%s': %v", name, err)
			return
		}
		h.publishPatternList()

	default:
		logger.Warnf("Unknown command type: %s", cmd.Type)
	}
}

// handleLight applies the UI guards: brightness and color only go out while
// the light is on.
func (h *CommandHandler) handleLight(cmd core.Command, current *core.State) {
	logger := log.WithComponent("agent")

	switch cmd.Type {
	case core.CmdSetPower:
		isOn, ok := cmd.Payload["isOn"].(bool)
		if !ok {
			logger.Warnf("setPower without a boolean isOn: %v", cmd.Payload["isOn"])
			return
		}
		if !h.enqueue(core.KindPower, core.PowerCommand(isOn)) {
			return
		}
		h.state.SetPower(isOn)
		h.publish(core.PowerChangedEvent, map[string]interface{}{"isOn": isOn})

	case core.CmdSetBrightness:
		if !current.Power {
			logger.Debug("Light is off, ignoring brightness change")
			return
		}
		v, ok := number(cmd.Payload, "value")
		if !ok {
			logger.Warnf("setBrightness without a numeric value: %v", cmd.Payload["value"])
			return
		}
		bri := level(v)
		if !h.enqueue(core.KindBrightness, core.BrightnessCommand(bri)) {
			return
		}
		h.state.SetBrightness(bri)
		h.publish(core.BrightnessChangedEvent, map[string]interface{}{"value": bri})

	case core.CmdSetColor:
		if !current.Power {
			logger.Debug("Light is off, ignoring color change")
			return
		}
		r, rok := number(cmd.Payload, "r")
		g, gok := number(cmd.Payload, "g")
		b, bok := number(cmd.Payload, "b")
		if !rok || !gok || !bok {
			logger.Warnf("setColor needs r, g and b: %v", cmd.Payload)
			return
		}
		rgb := core.RGB{R: level(r), G: level(g), B: level(b)}
		bri := current.Brightness
		if a, ok := number(cmd.Payload, "a"); ok {
			bri = level(a)
		}
		if !h.enqueue(core.KindColor, core.ColorCommand(rgb, bri)) {
			return
		}
		h.state.SetColor(rgb)
		h.state.SetBrightness(bri)
		h.publish(core.ColorChangedEvent, map[string]interface{}{
			"r": rgb.R, "g": rgb.G, "b": rgb.B, "hex": rgb.Hex(), "brightness": bri,
		})
	}
}

func (h *CommandHandler) publish(t core.EventType, payload interface{}) {
	if h.eventBus != nil {
		h.eventBus.Publish(core.Event{Type: t, Payload: payload})
	}
}

func (h *CommandHandler) publishPatternList() {
	patterns, err := h.patterns.GetPatternList()
	if err != nil {
		log.WithComponent("agent").Warnf("Error listing patterns: %v", err)
		return
	}
	h.publish(core.PatternListEvent, patterns)
}
