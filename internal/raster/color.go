package raster

import (
	"errors"
	"fmt"
	"image/color"
	"regexp"

	"github.com/lucasb-eyer/go-colorful"
)

var ErrInvalidColor = errors.New("invalid hex color")

var hexColorPattern = regexp.MustCompile(`^#?([0-9A-Fa-f]{3}|[0-9A-Fa-f]{6})$`)

// ParseColor accepts "RGB" or "RRGGBB" with an optional leading '#'.
// The returned color is always fully opaque.
func ParseColor(s string) (color.NRGBA, error) {
	m := hexColorPattern.FindStringSubmatch(s)
	if m == nil {
		return color.NRGBA{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}

	c, err := colorful.Hex("#" + m[1])
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("%w: %q: %v", ErrInvalidColor, s, err)
	}

	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}, nil
}
