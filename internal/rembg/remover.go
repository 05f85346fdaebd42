// Package rembg wraps the background-removal inference engine. The engine is
// an external collaborator; this package only talks to it.
package rembg

import (
	"context"
	"image"
)

type Remover interface {
	Remove(ctx context.Context, img image.Image) (image.Image, error)
}

// RemoverFunc adapts a plain function to Remover.
type RemoverFunc func(ctx context.Context, img image.Image) (image.Image, error)

func (f RemoverFunc) Remove(ctx context.Context, img image.Image) (image.Image, error) {
	return f(ctx, img)
}

// Passthrough returns its input unchanged. It stands in for the engine when no
// inference endpoint is configured and for images that are already cut out.
type Passthrough struct{}

func (Passthrough) Remove(ctx context.Context, img image.Image) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return img, nil
}
