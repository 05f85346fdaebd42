package raster

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// PlaceOnCanvas centers img on a transparent outW x outH canvas. Pixels are
// copied without blending; anything outside the canvas is clipped.
func PlaceOnCanvas(img *image.NRGBA, outW, outH int) *image.NRGBA {
	canvas := imaging.New(outW, outH, color.NRGBA{})
	if canvas.Bounds().Empty() {
		return canvas
	}

	b := img.Bounds()
	x := (outW - b.Dx()) / 2
	y := (outH - b.Dy()) / 2
	return imaging.Paste(canvas, img, image.Pt(x, y))
}
