// Package raster holds the post-processing steps applied to a cut-out image:
// alpha trimming, aspect-fit resizing, centering on a fixed canvas and
// flattening onto a solid color.
//
// Every function takes an *image.NRGBA and returns either that same value or
// a newly allocated one. Inputs are never written to.
package raster
