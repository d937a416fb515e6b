package core

// CommandType defines the type of intent being dispatched to the agent.
type CommandType string

const (
	CmdSetPower        CommandType = "setPower"
	CmdSetColor        CommandType = "setColor"
	CmdSetBrightness   CommandType = "setBrightness"
	CmdRunPattern      CommandType = "runPattern"
	CmdStopPattern     CommandType = "stopPattern"
	CmdAddSchedule     CommandType = "addSchedule"
	CmdRemoveSchedule  CommandType = "removeSchedule"
	CmdGetPatternCode  CommandType = "getPatternCode"
	CmdSavePatternCode CommandType = "savePatternCode"
	CmdDeletePattern   CommandType = "deletePattern"
)

// Command is the envelope for incoming requests to change state or perform actions.
type Command struct {
	Type    CommandType
	Payload map[string]interface{}
}

// CommandChannel is the single channel that the core Agent listens to for commands.
type CommandChannel chan Command

// PowerIntent builds a setPower intent.
func PowerIntent(isOn bool) Command {
	return Command{Type: CmdSetPower, Payload: map[string]interface{}{"isOn": isOn}}
}

// BrightnessIntent builds a setBrightness intent. Values are 0-255.
func BrightnessIntent(value int) Command {
	return Command{Type: CmdSetBrightness, Payload: map[string]interface{}{"value": float64(value)}}
}

// ColorIntent builds a setColor intent.
func ColorIntent(c RGB) Command {
	return Command{Type: CmdSetColor, Payload: map[string]interface{}{
		"r": float64(c.R), "g": float64(c.G), "b": float64(c.B),
	}}
}
