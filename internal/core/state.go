package core

import "sync"

// State holds the agent's view of the light. It reflects accepted intents,
// not confirmed device state.
type State struct {
	mu             sync.RWMutex
	Ready          bool
	LightID        string
	Power          bool
	Color          RGB
	Brightness     uint8
	RunningPattern string
}

// NewState creates a new State instance.
func NewState() *State {
	return &State{}
}

// Clone returns a snapshot of the current state for safe reading.
func (s *State) Clone() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		Ready:          s.Ready,
		LightID:        s.LightID,
		Power:          s.Power,
		Color:          s.Color,
		Brightness:     s.Brightness,
		RunningPattern: s.RunningPattern,
	}
}

// Seed records the state read from the bridge during initialization and marks it ready.
func (s *State) Seed(lightID string, initial LightCommand) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LightID = lightID
	if initial.On != nil {
		s.Power = *initial.On
	}
	if initial.Brightness != nil {
		s.Brightness = *initial.Brightness
	}
	if initial.Color != nil {
		s.Color = *initial.Color
	}
	s.Ready = true
}

// SetPower updates the power state.
func (s *State) SetPower(power bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Power = power
}

// SetColor updates the RGB color state.
func (s *State) SetColor(c RGB) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Color = c
}

// SetBrightness updates the brightness state.
func (s *State) SetBrightness(brightness uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Brightness = brightness
}

// SetRunningPattern updates the running pattern state.
func (s *State) SetRunningPattern(pattern string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RunningPattern = pattern
}

// Payload renders the state the way UI and MQTT consumers expect it.
func (s *State) Payload() map[string]interface{} {
	return map[string]interface{}{
		"ready":      s.Ready,
		"isOn":       s.Power,
		"r":          s.Color.R,
		"g":          s.Color.G,
		"b":          s.Color.B,
		"hex":        s.Color.Hex(),
		"brightness": s.Brightness,
		"pattern":    s.RunningPattern,
	}
}
