// Package bootstrap turns configuration into the collaborators shared by the
// api, worker and batch commands.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"strings"

	"github.com/dunamismax/pixelcut/internal/config"
	"github.com/dunamismax/pixelcut/internal/logging"
	"github.com/dunamismax/pixelcut/internal/pipeline"
	"github.com/dunamismax/pixelcut/internal/rembg"
	"github.com/dunamismax/pixelcut/internal/storage"
	"github.com/sirupsen/logrus"
)

func Logger(cfg config.LogConfig) (*logrus.Logger, error) {
	return logging.New(logging.Config{Level: cfg.Level, Format: cfg.Format})
}

// Remover connects to the inference server. Without an endpoint it fails
// unless passthrough was asked for explicitly. Calls are bounded by
// cfg.Concurrency.
func Remover(cfg config.RembgConfig, logger logrus.FieldLogger) (rembg.Remover, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		if !cfg.Passthrough {
			return nil, errors.New("rembg.endpoint is required; set rembg.passthrough to run without background removal")
		}
		logger.Warn("rembg passthrough enabled, background removal is disabled")
		return rembg.Limit(rembg.Passthrough{}, cfg.Concurrency), nil
	}

	remover, err := rembg.NewHTTPRemover(rembg.HTTPConfig{
		Endpoint: cfg.Endpoint,
		Timeout:  cfg.Timeout,
		Session: rembg.SessionOptions{
			Model:               cfg.Model,
			AlphaMatting:        cfg.AlphaMatting,
			ForegroundThreshold: cfg.ForegroundThreshold,
			BackgroundThreshold: cfg.BackgroundThreshold,
			ErodeSize:           cfg.ErodeSize,
			PostProcessMask:     cfg.PostProcessMask,
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("build rembg client: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"endpoint":    cfg.Endpoint,
		"model":       cfg.Model,
		"concurrency": cfg.Concurrency,
	}).Info("rembg client ready")
	return rembg.Limit(remover, cfg.Concurrency), nil
}

func Processor(cfg config.Config, fetcher pipeline.Fetcher, logger logrus.FieldLogger) (*pipeline.Processor, error) {
	remover, err := Remover(cfg.Rembg, logger)
	if err != nil {
		return nil, err
	}

	filter, err := pipeline.ParseFilter(cfg.Pipeline.Filter)
	if err != nil {
		return nil, err
	}
	compression, err := ParseCompression(cfg.Pipeline.PNGCompression)
	if err != nil {
		return nil, err
	}

	return pipeline.NewProcessor(fetcher, remover,
		pipeline.WithFilter(filter),
		pipeline.WithCompression(compression),
		pipeline.WithLogger(logger),
	)
}

func HTTPFetcher(cfg config.FetchConfig) *pipeline.HTTPFetcher {
	return pipeline.NewHTTPFetcher(pipeline.HTTPFetcherConfig{
		Timeout:   cfg.Timeout,
		MaxBytes:  cfg.MaxBytes,
		UserAgent: cfg.UserAgent,
	})
}

func ParseCompression(name string) (png.CompressionLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "default":
		return png.DefaultCompression, nil
	case "none":
		return png.NoCompression, nil
	case "speed":
		return png.BestSpeed, nil
	case "best":
		return png.BestCompression, nil
	default:
		return 0, fmt.Errorf("unknown png compression %q", name)
	}
}

// Storage connects to object storage and makes sure the bucket exists. It
// returns nil when no endpoint is configured.
func Storage(ctx context.Context, cfg config.StorageConfig) (*storage.Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, nil
	}

	client, err := storage.NewClient(storage.Config{
		Endpoint: cfg.Endpoint,
		Access:   cfg.AccessKey,
		Secret:   cfg.SecretKey,
		Bucket:   cfg.Bucket,
		UseSSL:   cfg.UseSSL,
		Region:   cfg.Region,
	})
	if err != nil {
		return nil, err
	}
	if err := client.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return client, nil
}
