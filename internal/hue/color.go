package hue

import (
	"math"

	"hue-controller/internal/core"
)

// D65 white, used for black where xy is undefined.
var whitePoint = [2]float64{0.3127, 0.3290}

// rgbToXY converts sRGB to CIE 1931 xy using the wide gamut matrix.
func rgbToXY(c core.RGB) [2]float64 {
	r := gammaCorrect(float64(c.R) / 255.0)
	g := gammaCorrect(float64(c.G) / 255.0)
	b := gammaCorrect(float64(c.B) / 255.0)

	x := r*0.664511 + g*0.154324 + b*0.162028
	y := r*0.283881 + g*0.668433 + b*0.047685
	z := r*0.000088 + g*0.072310 + b*0.986039

	sum := x + y + z
	if sum == 0 {
		return whitePoint
	}
	return [2]float64{x / sum, y / sum}
}

// xyToRGB converts CIE 1931 xy back to sRGB at full brightness. Brightness is
// carried separately by the dimming level.
func xyToRGB(x, y float64) core.RGB {
	if y <= 0 {
		return core.RGB{R: 255, G: 255, B: 255}
	}
	bigX := x / y
	bigZ := (1 - x - y) / y

	r := bigX*1.656492 - 0.354851 - bigZ*0.255038
	g := -bigX*0.707196 + 1.655397 + bigZ*0.036152
	b := bigX*0.051713 - 0.121364 + bigZ*1.011530

	r, g, b = math.Max(r, 0), math.Max(g, 0), math.Max(b, 0)
	if m := math.Max(r, math.Max(g, b)); m > 1 {
		r, g, b = r/m, g/m, b/m
	}
	return core.RGB{R: toByte(reverseGamma(r)), G: toByte(reverseGamma(g)), B: toByte(reverseGamma(b))}
}

func reverseGamma(v float64) float64 {
	if v <= 0.0031308 {
		return 12.92 * v
	}
	return 1.055*math.Pow(v, 1/2.4) - 0.055
}

func toByte(v float64) uint8 {
	return uint8(math.Round(math.Min(math.Max(v, 0), 1) * 255))
}

func gammaCorrect(v float64) float64 {
	if v > 0.04045 {
		return math.Pow((v+0.055)/1.055, 2.4)
	}
	return v / 12.92
}

// levelToPercent maps a 0-255 level onto the bridge's 0-100 dimming scale.
func levelToPercent(level uint8) float64 {
	return math.Round(float64(level)*100.0/255.0*100) / 100
}

func percentToLevel(p float64) uint8 {
	if p <= 0 {
		return 0
	}
	if p >= 100 {
		return 255
	}
	return uint8(math.Round(p * 255.0 / 100.0))
}
