package rembg

import (
	"context"
	"image"
)

// Limit bounds the number of concurrent calls into next. A limit of 1
// serializes access to an inference session that is not safe for concurrent
// use. Callers waiting for a slot give up when their context ends.
func Limit(next Remover, n int) Remover {
	if n < 1 {
		n = 1
	}
	return &limited{next: next, sem: make(chan struct{}, n)}
}

type limited struct {
	next Remover
	sem  chan struct{}
}

func (l *limited) Remove(ctx context.Context, img image.Image) (image.Image, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-l.sem }()

	return l.next.Remove(ctx, img)
}
