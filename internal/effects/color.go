package effects

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Color is an RGB value with an optional white channel for RGBW fixtures.
// HasWhite is false for plain RGB fixtures; White is only meaningful when
// HasWhite is true.
type Color struct {
	R, G, B  uint8
	White    uint8
	HasWhite bool
}

// NewColor creates an RGB color without a white channel.
func NewColor(r, g, b uint8) Color {
	return Color{R: r, G: g, B: b}
}

// NewColorRGBW creates a color with a white channel.
func NewColorRGBW(r, g, b, w uint8) Color {
	return Color{R: r, G: g, B: b, White: w, HasWhite: true}
}

// ColorFromHex parses a "#RRGGBB" or "RRGGBB" hex string.
func ColorFromHex(hex string) (Color, error) {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return Color{}, fmt.Errorf("invalid hex color %q", hex)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("invalid hex color %q: %w", hex, err)
	}
	return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

var namedColors = map[string]Color{
	"red":     {R: 255},
	"green":   {G: 255},
	"blue":    {B: 255},
	"white":   {R: 255, G: 255, B: 255},
	"black":   {},
	"yellow":  {R: 255, G: 255},
	"cyan":    {G: 255, B: 255},
	"magenta": {R: 255, B: 255},
	"orange":  {R: 255, G: 165},
	"purple":  {R: 128, B: 128},
}

// ColorFromName resolves a friendly color name ("red", "cyan", ...).
func ColorFromName(name string) (Color, error) {
	c, ok := namedColors[strings.ToLower(name)]
	if !ok {
		return Color{}, fmt.Errorf("unknown color name %q", name)
	}
	return c, nil
}

// ColorFromHSV converts hue (degrees, 0-360), saturation and value (both 0-1)
// to RGB. Each 60 degree sector of the color wheel uses a different component
// ordering.
func ColorFromHSV(h, s, v float64) Color {
	c := v * s
	x := c * (1.0 - math.Abs(math.Mod(h/60.0, 2.0)-1.0))
	m := v - c

	var r, g, b float64
	switch int(math.Floor(h/60.0)) % 6 {
	case 0:
		r, g, b = c, x, 0
	case 1:
		r, g, b = x, c, 0
	case 2:
		r, g, b = 0, c, x
	case 3:
		r, g, b = 0, x, c
	case 4:
		r, g, b = x, 0, c
	default: // sector 5
		r, g, b = c, 0, x
	}

	return Color{
		R: uint8((r + m) * 255.0),
		G: uint8((g + m) * 255.0),
		B: uint8((b + m) * 255.0),
	}
}

// Lerp linearly interpolates between c and other. t is clamped to [0,1];
// t=0 returns c unchanged, t=1 returns other unchanged. A white channel
// present on only one side fades from/to zero.
func (c Color) Lerp(other Color, t float64) Color {
	t = clamp01(t)
	inv := 1.0 - t

	lerp8 := func(a, b uint8) uint8 {
		return uint8(float64(a)*inv + float64(b)*t)
	}

	out := Color{
		R: lerp8(c.R, other.R),
		G: lerp8(c.G, other.G),
		B: lerp8(c.B, other.B),
	}
	switch {
	case c.HasWhite && other.HasWhite:
		out.White = lerp8(c.White, other.White)
		out.HasWhite = true
	case c.HasWhite:
		out.White = uint8(float64(c.White) * inv)
		out.HasWhite = true
	case other.HasWhite:
		out.White = uint8(float64(other.White) * t)
		out.HasWhite = true
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0.0 {
		return 0.0
	}
	if v > 1.0 {
		return 1.0
	}
	return v
}
