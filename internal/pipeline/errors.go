package pipeline

import (
	"errors"

	"github.com/dunamismax/pixelcut/internal/domain"
	"github.com/dunamismax/pixelcut/internal/raster"
)

var (
	ErrUpstreamFetch  = errors.New("source image could not be fetched")
	ErrSourceTooLarge = errors.New("source image exceeds size limit")
)

// Kind groups pipeline failures by who is at fault.
type Kind int

const (
	KindProcessing Kind = iota
	KindInvalidInput
	KindInvalidDimensions
	KindUpstreamFetch
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindInvalidDimensions:
		return "invalid_dimensions"
	case KindUpstreamFetch:
		return "upstream_fetch"
	default:
		return "processing"
	}
}

func KindOf(err error) Kind {
	switch {
	case errors.Is(err, raster.ErrInvalidDimensions):
		return KindInvalidDimensions
	case errors.Is(err, domain.ErrInvalidParams),
		errors.Is(err, raster.ErrInvalidColor),
		errors.Is(err, ErrSourceTooLarge):
		return KindInvalidInput
	case errors.Is(err, ErrUpstreamFetch):
		return KindUpstreamFetch
	default:
		return KindProcessing
	}
}
