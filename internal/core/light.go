package core

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind partitions light commands into independent coalescing buckets.
type Kind string

const (
	KindPower      Kind = "power"
	KindBrightness Kind = "brightness"
	KindColor      Kind = "color"
)

// Kinds returns every recognized kind.
func Kinds() []Kind {
	return []Kind{KindPower, KindBrightness, KindColor}
}

// Valid reports whether k is one of the recognized kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindPower, KindBrightness, KindColor:
		return true
	}
	return false
}

// RGB is an 8-bit per channel color.
type RGB struct {
	R, G, B uint8
}

// Hex formats the color as #RRGGBB.
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// ParseHex parses "#RRGGBB" or "RRGGBB".
func ParseHex(s string) (RGB, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 {
		return RGB{}, fmt.Errorf("invalid hex color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return RGB{}, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	return RGB{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

// ParseRGBList parses "r,g,b" with each component in 0-255.
func ParseRGBList(s string) (RGB, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return RGB{}, fmt.Errorf("invalid rgb list %q", s)
	}
	var out [3]uint8
	for i, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 8)
		if err != nil {
			return RGB{}, fmt.Errorf("invalid rgb component %q: %w", p, err)
		}
		out[i] = uint8(v)
	}
	return RGB{R: out[0], G: out[1], B: out[2]}, nil
}

// LightCommand is an immutable desired-state delta for a light.
// Nil fields are unspecified and leave the device untouched.
type LightCommand struct {
	On         *bool
	Brightness *uint8
	Color      *RGB
}

// PowerCommand switches the light on or off.
func PowerCommand(on bool) LightCommand {
	return LightCommand{On: &on}
}

// BrightnessCommand sets the brightness level.
func BrightnessCommand(level uint8) LightCommand {
	return LightCommand{Brightness: &level}
}

// ColorCommand sets the color together with the picker's alpha as brightness.
func ColorCommand(c RGB, level uint8) LightCommand {
	return LightCommand{Color: &c, Brightness: &level}
}

// IsEmpty reports whether no field is set.
func (c LightCommand) IsEmpty() bool {
	return c.On == nil && c.Brightness == nil && c.Color == nil
}

func (c LightCommand) String() string {
	var parts []string
	if c.On != nil {
		parts = append(parts, fmt.Sprintf("on=%t", *c.On))
	}
	if c.Brightness != nil {
		parts = append(parts, fmt.Sprintf("bri=%d", *c.Brightness))
	}
	if c.Color != nil {
		parts = append(parts, "color="+c.Color.Hex())
	}
	if len(parts) == 0 {
		return "{}"
	}
	return "{" + strings.Join(parts, " ") + "}"
}
