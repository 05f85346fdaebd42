//go:build govips && cgo

package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/disintegration/imaging"
)

var (
	startupOnce sync.Once
	shutdownMu  sync.Mutex
	started     bool
)

func Startup() error {
	startupOnce.Do(func() {
		vips.Startup(&vips.Config{
			MaxCacheFiles: 0,
			MaxCacheMem:   128 * 1024 * 1024,
			MaxCacheSize:  100,
		})

		shutdownMu.Lock()
		started = true
		shutdownMu.Unlock()
	})
	return nil
}

func Shutdown() {
	shutdownMu.Lock()
	defer shutdownMu.Unlock()
	if !started {
		return
	}
	vips.Shutdown()
	started = false
}

func newDecoder() Decoder {
	return vipsDecoder{}
}

// vipsDecoder lets libvips handle the source container (HEIF, AVIF, large
// JPEGs) and hands the upright result back as a lossless PNG.
type vipsDecoder struct{}

func (vipsDecoder) Decode(ctx context.Context, data []byte) (image.Image, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	ref, err := vips.NewImageFromBuffer(data)
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}
	defer ref.Close()

	if err := ref.AutoRotate(); err != nil {
		return nil, fmt.Errorf("auto-rotate source image: %w", err)
	}

	params := vips.NewPngExportParams()
	params.Compression = 0
	buf, _, err := ref.ExportPng(params)
	if err != nil {
		return nil, fmt.Errorf("export decoded image: %w", err)
	}

	img, err := imaging.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("decode exported image: %w", err)
	}
	return img, nil
}
