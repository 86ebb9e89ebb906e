package plot

import (
	"math"

	"github.com/gookit/color"
)

// viridis stops, low to high.
var ramp = [][3]float64{
	{68, 1, 84},
	{59, 82, 139},
	{33, 145, 140},
	{94, 201, 98},
	{253, 231, 37},
}

// rampColor maps t in [0, 1] onto the color ramp.
func rampColor(t float64) color.RGBColor {
	if math.IsNaN(t) {
		t = 0
	}
	t = math.Max(0, math.Min(1, t))
	pos := t * float64(len(ramp)-1)
	i := int(pos)
	if i >= len(ramp)-1 {
		i = len(ramp) - 2
	}
	f := pos - float64(i)
	lerp := func(k int) uint8 {
		return uint8(math.Round(ramp[i][k] + f*(ramp[i+1][k]-ramp[i][k])))
	}
	return color.RGB(lerp(0), lerp(1), lerp(2))
}

// paint colors s when enabled.
func paint(enabled bool, t float64, s string) string {
	if !enabled {
		return s
	}
	return rampColor(t).Sprint(s)
}

// signed colors positive values red and negative values blue.
func signed(enabled bool, v float64, s string) string {
	if !enabled || v == 0 || math.IsNaN(v) {
		return s
	}
	if v > 0 {
		return color.Red.Sprint(s)
	}
	return color.Blue.Sprint(s)
}

// Strip removes color escape codes, leaving the plain text layout.
func Strip(s string) string {
	return color.ClearCode(s)
}
