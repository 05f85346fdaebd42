package raster

import (
	"image"

	"github.com/disintegration/imaging"
)

// AlphaBounds returns the smallest rectangle holding every pixel whose alpha
// is non-zero. The rectangle is empty when the image is fully transparent.
func AlphaBounds(img *image.NRGBA) image.Rectangle {
	b := img.Bounds()
	minX, minY := b.Max.X, b.Max.Y
	maxX, maxY := b.Min.X, b.Min.Y
	found := false

	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.PixOffset(b.Min.X, y)
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.Pix[row+(x-b.Min.X)*4+3] == 0 {
				continue
			}
			found = true
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
		}
	}

	if !found {
		return image.Rectangle{}
	}
	return image.Rect(minX, minY, maxX+1, maxY+1)
}

// Trim crops img to AlphaBounds. A fully transparent image is returned as is.
func Trim(img *image.NRGBA) *image.NRGBA {
	box := AlphaBounds(img)
	if box.Empty() {
		return img
	}
	return imaging.Crop(img, box)
}
