package raster

import (
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

var ErrInvalidDimensions = errors.New("invalid target dimensions")

// FitSize computes the largest size with the source aspect ratio that fits in
// innerW x innerH. The limiting side always matches the box exactly, the
// other one is rounded down and may end up as 0.
func FitSize(srcW, srcH, innerW, innerH int) (int, int, error) {
	if innerW <= 0 || innerH <= 0 {
		return 0, 0, fmt.Errorf("%w: inner box %dx%d", ErrInvalidDimensions, innerW, innerH)
	}
	if srcW <= 0 || srcH <= 0 {
		return 0, 0, nil
	}

	targetRatio := float64(innerW) / float64(innerH)
	sourceRatio := float64(srcW) / float64(srcH)

	if sourceRatio > targetRatio {
		return innerW, int(float64(innerW) / sourceRatio), nil
	}
	return int(float64(innerH) * sourceRatio), innerH, nil
}

// ResizeToFit scales img into innerW x innerH with a Lanczos filter.
func ResizeToFit(img *image.NRGBA, innerW, innerH int) (*image.NRGBA, error) {
	return ResizeToFitWith(img, innerW, innerH, imaging.Lanczos)
}

func ResizeToFitWith(img *image.NRGBA, innerW, innerH int, filter imaging.ResampleFilter) (*image.NRGBA, error) {
	b := img.Bounds()
	newW, newH, err := FitSize(b.Dx(), b.Dy(), innerW, innerH)
	if err != nil {
		return nil, err
	}

	// imaging.Resize treats a zero side as "keep aspect ratio", which is not
	// what a collapsed side means here.
	if newW == 0 || newH == 0 {
		return image.NewNRGBA(image.Rect(0, 0, newW, newH)), nil
	}
	return imaging.Resize(img, newW, newH, filter), nil
}
