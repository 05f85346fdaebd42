package raster

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlaceOnCanvas(t *testing.T) {
	img := solid(40, 20, red)

	got := PlaceOnCanvas(img, 60, 60)

	assert.Equal(t, image.Rect(0, 0, 60, 60), got.Bounds())
	inner := image.Rect(10, 20, 50, 40)
	for y := 0; y < 60; y++ {
		for x := 0; x < 60; x++ {
			want := color.NRGBA{}
			if image.Pt(x, y).In(inner) {
				want = red
			}
			if got.NRGBAAt(x, y) != want {
				t.Fatalf("pixel (%d,%d) = %v, want %v", x, y, got.NRGBAAt(x, y), want)
			}
		}
	}
}

func TestPlaceOnCanvas_OddRemainderTruncates(t *testing.T) {
	img := solid(2, 1, red)

	got := PlaceOnCanvas(img, 5, 4)

	// x = (5-2)/2 = 1, y = (4-1)/2 = 1
	assert.Equal(t, red, got.NRGBAAt(1, 1))
	assert.Equal(t, red, got.NRGBAAt(2, 1))
	assert.Equal(t, color.NRGBA{}, got.NRGBAAt(3, 1))
	assert.Equal(t, color.NRGBA{}, got.NRGBAAt(1, 2))
}

func TestPlaceOnCanvas_CopiesWithoutBlending(t *testing.T) {
	semi := color.NRGBA{R: 90, G: 80, B: 70, A: 60}
	img := solid(1, 1, semi)

	got := PlaceOnCanvas(img, 3, 3)
	assert.Equal(t, semi, got.NRGBAAt(1, 1))
}

func TestPlaceOnCanvas_ClipsLargerSource(t *testing.T) {
	img := withOpaqueBlock(6, 6, image.Rect(2, 2, 4, 4), red)

	got := PlaceOnCanvas(img, 2, 2)

	assert.Equal(t, image.Rect(0, 0, 2, 2), got.Bounds())
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			assert.Equal(t, red, got.NRGBAAt(x, y))
		}
	}
}

func TestPlaceOnCanvas_EmptySource(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 10, 0))

	got := PlaceOnCanvas(img, 4, 4)

	assert.Equal(t, image.Rect(0, 0, 4, 4), got.Bounds())
	assert.Equal(t, make([]uint8, 4*4*4), got.Pix)
}
