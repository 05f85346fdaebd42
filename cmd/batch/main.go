package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dunamismax/pixelcut/internal/batch"
	"github.com/dunamismax/pixelcut/internal/bootstrap"
	"github.com/dunamismax/pixelcut/internal/config"
	"github.com/dunamismax/pixelcut/internal/domain"
	"github.com/dunamismax/pixelcut/internal/pipeline"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func main() {
	flags := pflag.NewFlagSet("batch", pflag.ExitOnError)
	flags.String("input", "", "directory with source images")
	flags.String("output", "", "directory for processed images")
	flags.Int("width", 0, "output width, requires --height")
	flags.Int("height", 0, "output height, requires --width")
	flags.Int("padding", 0, "padding inside the output canvas")
	flags.String("bgcolor", "", "background color as #rgb or #rrggbb")
	_ = flags.Parse(os.Args[1:])

	v, err := config.New()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	for key, name := range map[string]string{
		"batch.input_dir":  "input",
		"batch.output_dir": "output",
		"batch.width":      "width",
		"batch.height":     "height",
		"batch.padding":    "padding",
		"batch.bgcolor":    "bgcolor",
	} {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			logrus.WithError(err).Fatal("bind flag")
		}
	}

	cfg, err := config.Parse(v)
	if err != nil {
		logrus.WithError(err).Fatal("parse config")
	}

	logger, err := bootstrap.Logger(cfg.Log)
	if err != nil {
		logrus.WithError(err).Fatal("build logger")
	}
	log := logger.WithField("component", "batch")

	if err := pipeline.Startup(); err != nil {
		log.WithError(err).Fatal("start image runtime")
	}
	defer pipeline.Shutdown()

	processor, err := bootstrap.Processor(cfg, pipeline.LocalFileFetcher{}, log)
	if err != nil {
		log.WithError(err).Fatal("build processor")
	}

	if err := os.MkdirAll(cfg.Batch.OutputDir, 0o755); err != nil {
		log.WithError(err).Fatal("create output dir")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(logrus.Fields{
		"input":  cfg.Batch.InputDir,
		"output": cfg.Batch.OutputDir,
	}).Info("starting background removal")

	runner := batch.NewRunner(processor, pipeline.LocalFileEmitter{OutputDir: cfg.Batch.OutputDir}, log)
	summary, err := runner.Run(ctx, cfg.Batch.InputDir, domain.RemovalParams{
		Width:   cfg.Batch.Width,
		Height:  cfg.Batch.Height,
		Padding: cfg.Batch.Padding,
		BgColor: cfg.Batch.BgColor,
	})
	if err != nil {
		log.WithError(err).Fatal("batch run failed")
	}

	log.WithFields(logrus.Fields{
		"processed": summary.Processed,
		"failed":    summary.Failed,
		"skipped":   summary.Skipped,
	}).Info("finished processing all images")
}
