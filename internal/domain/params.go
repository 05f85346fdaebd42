package domain

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/dunamismax/pixelcut/internal/raster"
)

var ErrInvalidParams = errors.New("invalid request parameters")

// RemovalParams describes one background-removal request. Width and Height
// are zero when absent; they must be given together.
type RemovalParams struct {
	URL     string `json:"url"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	Padding int    `json:"padding,omitempty"`
	BgColor string `json:"bgcolor,omitempty"`
}

func (p RemovalParams) HasSize() bool {
	return p.Width != 0 || p.Height != 0
}

func (p RemovalParams) Validate() error {
	if strings.TrimSpace(p.URL) == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidParams)
	}
	if err := validateSourceURL(p.URL); err != nil {
		return err
	}
	if err := p.ValidateProcessing(); err != nil {
		return err
	}
	return nil
}

// ValidateProcessing checks everything except the source URL.
func (p RemovalParams) ValidateProcessing() error {
	if (p.Width == 0) != (p.Height == 0) {
		return fmt.Errorf("%w: width and height must be provided together", ErrInvalidParams)
	}
	if p.Width < 0 || p.Height < 0 {
		return fmt.Errorf("%w: width and height must be positive", ErrInvalidParams)
	}
	if p.Padding < 0 {
		return fmt.Errorf("%w: padding must not be negative", ErrInvalidParams)
	}
	if p.BgColor != "" {
		if _, err := raster.ParseColor(p.BgColor); err != nil {
			return fmt.Errorf("%w: bgcolor: %v", ErrInvalidParams, err)
		}
	}
	return nil
}

func validateSourceURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: url: %v", ErrInvalidParams, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: url must use http or https", ErrInvalidParams)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: url has no host", ErrInvalidParams)
	}
	return nil
}
