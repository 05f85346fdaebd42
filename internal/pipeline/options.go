package pipeline

import (
	"fmt"
	"image/color"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/dunamismax/pixelcut/internal/domain"
	"github.com/dunamismax/pixelcut/internal/raster"
)

// Options configures Postprocess. Width and Height are both zero when the
// size stage is skipped.
type Options struct {
	Width      int
	Height     int
	Padding    int
	Background *color.NRGBA
	Filter     imaging.ResampleFilter
}

func (o Options) Resizes() bool {
	return o.Width > 0 && o.Height > 0
}

// InnerSize is the box the trimmed subject is fitted into.
func (o Options) InnerSize() (int, int) {
	return o.Width - 2*o.Padding, o.Height - 2*o.Padding
}

// Validate rejects an inner box that cannot hold any pixel. Checking it up
// front lets callers fail before fetching or running inference.
func (o Options) Validate() error {
	if !o.Resizes() {
		return nil
	}
	innerW, innerH := o.InnerSize()
	if innerW <= 0 || innerH <= 0 {
		return fmt.Errorf("%w: padding %d leaves %dx%d inside %dx%d",
			raster.ErrInvalidDimensions, o.Padding, innerW, innerH, o.Width, o.Height)
	}
	return nil
}

func OptionsFromParams(p domain.RemovalParams) (Options, error) {
	if err := p.ValidateProcessing(); err != nil {
		return Options{}, err
	}

	opts := Options{Padding: p.Padding}
	if p.HasSize() {
		opts.Width = p.Width
		opts.Height = p.Height
	}
	if p.BgColor != "" {
		bg, err := raster.ParseColor(p.BgColor)
		if err != nil {
			return Options{}, err
		}
		opts.Background = &bg
	}

	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

var filters = map[string]imaging.ResampleFilter{
	"lanczos":    imaging.Lanczos,
	"catmullrom": imaging.CatmullRom,
	"mitchell":   imaging.MitchellNetravali,
	"linear":     imaging.Linear,
	"box":        imaging.Box,
}

// ParseFilter resolves a resampling filter by name. An empty name selects
// Lanczos.
func ParseFilter(name string) (imaging.ResampleFilter, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return imaging.Lanczos, nil
	}
	f, ok := filters[name]
	if !ok {
		return imaging.ResampleFilter{}, fmt.Errorf("unknown resample filter %q", name)
	}
	return f, nil
}
