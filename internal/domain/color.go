package domain

import (
	"encoding/hex"
	"fmt"
	"image/color"
	"strings"
)

// ParseColor decodes a "#RRGGBBAA" string into a non-premultiplied color.
// Hex digits are case-insensitive.
func ParseColor(s string) (color.NRGBA, error) {
	digits, ok := strings.CutPrefix(s, "#")
	if !ok {
		return color.NRGBA{}, fmt.Errorf("color %q: missing '#' prefix", s)
	}
	if len(digits) != 8 {
		return color.NRGBA{}, fmt.Errorf("color %q: want 8 hex digits, got %d", s, len(digits))
	}
	b, err := hex.DecodeString(digits)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("color %q: %w", s, err)
	}
	return color.NRGBA{R: b[0], G: b[1], B: b[2], A: b[3]}, nil
}

// FormatColor encodes c as an upper-case "#RRGGBBAA" string.
func FormatColor(c color.NRGBA) string {
	return fmt.Sprintf("#%02X%02X%02X%02X", c.R, c.G, c.B, c.A)
}

// FormatRGB encodes c as "#RRGGBB", dropping alpha. SVG fills carry opacity
// in a separate attribute.
func FormatRGB(c color.NRGBA) string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// Opacity returns alpha as a fraction in [0, 1].
func Opacity(c color.NRGBA) float64 {
	return float64(c.A) / 255
}
