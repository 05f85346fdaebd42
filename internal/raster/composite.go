package raster

import (
	"image"
	"image/color"
)

// CompositeOver flattens img onto an opaque background using the pixel's own
// alpha as the blend weight. The result is fully opaque.
func CompositeOver(img *image.NRGBA, bg color.NRGBA) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	for y := 0; y < b.Dy(); y++ {
		si := img.PixOffset(b.Min.X, b.Min.Y+y)
		di := y * out.Stride
		for x := 0; x < b.Dx(); x++ {
			a := uint32(img.Pix[si+3])
			out.Pix[di+0] = blend(img.Pix[si+0], bg.R, a)
			out.Pix[di+1] = blend(img.Pix[si+1], bg.G, a)
			out.Pix[di+2] = blend(img.Pix[si+2], bg.B, a)
			out.Pix[di+3] = 255
			si += 4
			di += 4
		}
	}
	return out
}

// blend rounds (src*a + bg*(255-a)) / 255 to the nearest integer.
func blend(src, bg uint8, a uint32) uint8 {
	v := uint32(src)*a + uint32(bg)*(255-a)
	return uint8((v + 127) / 255)
}
