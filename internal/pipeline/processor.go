package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/dunamismax/pixelcut/internal/domain"
	"github.com/dunamismax/pixelcut/internal/rembg"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/dunamismax/pixelcut/internal/pipeline"

type Request struct {
	JobID  string
	Source string
	Params domain.RemovalParams
}

type Timings struct {
	Fetch       time.Duration
	Decode      time.Duration
	Remove      time.Duration
	Postprocess time.Duration
	Encode      time.Duration
}

type Result struct {
	PNG         []byte
	Width       int
	Height      int
	SourceBytes int
	Timings     Timings
}

type Processor struct {
	fetcher     Fetcher
	decoder     Decoder
	remover     rembg.Remover
	filter      imaging.ResampleFilter
	compression png.CompressionLevel
	tracer      trace.Tracer
	logger      logrus.FieldLogger
}

type Option func(*Processor)

func WithDecoder(d Decoder) Option {
	return func(p *Processor) { p.decoder = d }
}

func WithFilter(f imaging.ResampleFilter) Option {
	return func(p *Processor) { p.filter = f }
}

func WithCompression(level png.CompressionLevel) Option {
	return func(p *Processor) { p.compression = level }
}

func WithTracer(t trace.Tracer) Option {
	return func(p *Processor) { p.tracer = t }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Processor) { p.logger = l }
}

func NewProcessor(fetcher Fetcher, remover rembg.Remover, opts ...Option) (*Processor, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if remover == nil {
		return nil, errors.New("remover is required")
	}

	p := &Processor{
		fetcher:     fetcher,
		decoder:     newDecoder(),
		remover:     remover,
		filter:      imaging.Lanczos,
		compression: png.DefaultCompression,
		tracer:      otel.Tracer(tracerName),
		logger:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Process fetches the source, removes its background and post-processes the
// cut-out into a PNG. Parameters are checked before any I/O happens.
func (p *Processor) Process(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.Source) == "" {
		return Result{}, fmt.Errorf("%w: source is required", domain.ErrInvalidParams)
	}

	opts, err := OptionsFromParams(req.Params)
	if err != nil {
		return Result{}, err
	}
	opts.Filter = p.filter

	var (
		res     Result
		data    []byte
		decoded image.Image
		cut     image.Image
		final   *image.NRGBA
	)

	err = p.stage(ctx, "fetch", &res.Timings.Fetch, func(ctx context.Context) error {
		data, err = p.fetcher.Fetch(ctx, req.Source)
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("fetch stage: %w", err)
	}
	res.SourceBytes = len(data)

	err = p.stage(ctx, "decode", &res.Timings.Decode, func(ctx context.Context) error {
		decoded, err = p.decoder.Decode(ctx, data)
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("decode stage: %w", err)
	}

	err = p.stage(ctx, "remove", &res.Timings.Remove, func(ctx context.Context) error {
		cut, err = p.remover.Remove(ctx, decoded)
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("remove stage: %w", err)
	}

	err = p.stage(ctx, "postprocess", &res.Timings.Postprocess, func(context.Context) error {
		final, err = Postprocess(ToNRGBA(cut), opts)
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("postprocess stage: %w", err)
	}

	err = p.stage(ctx, "encode", &res.Timings.Encode, func(context.Context) error {
		res.PNG, err = EncodePNG(final, p.compression)
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("encode stage: %w", err)
	}

	res.Width = final.Rect.Dx()
	res.Height = final.Rect.Dy()

	p.logger.WithFields(logrus.Fields{
		"job_id":       req.JobID,
		"source_bytes": res.SourceBytes,
		"width":        res.Width,
		"height":       res.Height,
		"remove_ms":    res.Timings.Remove.Milliseconds(),
	}).Debug("image processed")

	return res, nil
}

func (p *Processor) stage(ctx context.Context, name string, took *time.Duration, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ctx, span := p.tracer.Start(ctx, "pipeline."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	*took = time.Since(start)

	span.SetAttributes(attribute.Int64("pipeline.duration_ms", took.Milliseconds()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
