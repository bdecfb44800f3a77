package config

import (
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"
)

// Color is an 8-bit RGBA color, not premultiplied.
type Color struct {
	R, G, B, A uint8
}

// ParseColor accepts "r,g,b", "r,g,b,a", "#rrggbb" or "#rrggbbaa".
// Alpha defaults to 255.
func ParseColor(s string) (Color, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "#") {
		return parseHexColor(s)
	}

	parts := strings.Split(s, ",")
	if len(parts) != 3 && len(parts) != 4 {
		return Color{}, fmt.Errorf("color %q: expected \"r,g,b[,a]\" or \"#rrggbb[aa]\"", s)
	}

	var ch [4]uint8
	ch[3] = 255
	for i, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 8)
		if err != nil {
			return Color{}, fmt.Errorf("color %q: component %d must be 0-255", s, i+1)
		}
		ch[i] = uint8(v)
	}
	return Color{ch[0], ch[1], ch[2], ch[3]}, nil
}

func parseHexColor(s string) (Color, error) {
	hex := s[1:]
	if len(hex) != 6 && len(hex) != 8 {
		return Color{}, fmt.Errorf("color %q: expected 6 or 8 hex digits", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("color %q: invalid hex", s)
	}
	if len(hex) == 6 {
		v = v<<8 | 0xff
	}
	return Color{uint8(v >> 24), uint8(v >> 16), uint8(v >> 8), uint8(v)}, nil
}

// String formats the color the way the config file writes it.
func (c Color) String() string {
	return fmt.Sprintf("%d,%d,%d,%d", c.R, c.G, c.B, c.A)
}

// NRGBA converts to the standard library color type.
func (c Color) NRGBA() color.NRGBA {
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: c.A}
}

// Dimmed returns c with alpha divided by divisor. A divisor of 1 or less
// leaves the color unchanged.
func (c Color) Dimmed(divisor float32) Color {
	if divisor <= 1 {
		return c
	}
	c.A = uint8(math.Round(float64(c.A) / float64(divisor)))
	return c
}

// WithAlpha returns c with its alpha scaled by f in [0, 1].
func (c Color) WithAlpha(f float32) Color {
	switch {
	case f <= 0:
		c.A = 0
	case f < 1:
		c.A = uint8(math.Round(float64(c.A) * float64(f)))
	}
	return c
}
