package server

import "hue-controller/internal/core"

// Command represents an incoming JSON command from a WebSocket client.
type Command struct {
	Type    string                 `json:"type"`
	Payload map[string]interface{} `json:"payload"`
}

// Intent converts the client command into the agent's envelope.
func (c Command) Intent() core.Command {
	return core.Command{Type: core.CommandType(c.Type), Payload: c.Payload}
}

// Message represents an outgoing JSON message sent to WebSocket clients.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// NewMessage creates a new structured Message for broadcasting to clients.
func NewMessage(msgType string, payload interface{}) Message {
	return Message{Type: msgType, Payload: payload}
}

// eventMessages maps bus events onto the message types the web UI understands.
var eventMessages = map[core.EventType]string{
	core.PowerChangedEvent:      "power_update",
	core.BrightnessChangedEvent: "brightness_update",
	core.ColorChangedEvent:      "color_update",
	core.StateChangedEvent:      "device_state",
	core.BridgeReadyEvent:       "device_state",
	core.PatternChangedEvent:    "pattern_status",
	core.ScheduleChangedEvent:   "schedule_list",
	core.PatternListEvent:       "pattern_list",
	core.PatternCodeEvent:       "pattern_code",
}
