package pipeline

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/dunamismax/pixelcut/internal/raster"
)

// Postprocess runs the size stage (trim, fit, pad) when a size is set and
// then flattens onto the background when one is set. The input is never
// modified; with no stage enabled it is returned as is.
func Postprocess(img *image.NRGBA, opts Options) (*image.NRGBA, error) {
	out := img

	if opts.Resizes() {
		if err := opts.Validate(); err != nil {
			return nil, err
		}
		innerW, innerH := opts.InnerSize()

		filter := opts.Filter
		if filter.Kernel == nil {
			filter = imaging.Lanczos
		}

		trimmed := raster.Trim(out)
		fitted, err := raster.ResizeToFitWith(trimmed, innerW, innerH, filter)
		if err != nil {
			return nil, err
		}
		out = raster.PlaceOnCanvas(fitted, opts.Width, opts.Height)
	}

	if opts.Background != nil {
		out = raster.CompositeOver(out, *opts.Background)
	}

	return out, nil
}

// ToNRGBA converts any decoded image into a zero-origin NRGBA raster.
func ToNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	return imaging.Clone(img)
}
