// Package batch removes backgrounds from every image in a directory.
package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dunamismax/pixelcut/internal/domain"
	"github.com/dunamismax/pixelcut/internal/pipeline"
	"github.com/sirupsen/logrus"
)

var supportedExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

type Processor interface {
	Process(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

type Summary struct {
	Processed int
	Failed    int
	Skipped   int
}

type Runner struct {
	processor Processor
	emitter   pipeline.Emitter
	logger    logrus.FieldLogger
}

func NewRunner(processor Processor, emitter pipeline.Emitter, logger logrus.FieldLogger) *Runner {
	return &Runner{processor: processor, emitter: emitter, logger: logger}
}

// Run processes the supported images directly inside inputDir in name order.
// A failing file is logged and counted; the run continues with the next one.
func (r *Runner) Run(ctx context.Context, inputDir string, params domain.RemovalParams) (Summary, error) {
	if _, err := pipeline.OptionsFromParams(params); err != nil {
		return Summary{}, err
	}

	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return Summary{}, fmt.Errorf("read input dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var sum Summary
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if entry.IsDir() || !supportedExts[strings.ToLower(filepath.Ext(entry.Name()))] {
			sum.Skipped++
			continue
		}

		log := r.logger.WithField("file", entry.Name())
		log.Info("processing")

		location, err := r.processFile(ctx, filepath.Join(inputDir, entry.Name()), params)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return sum, err
			}
			sum.Failed++
			log.WithError(err).Error("processing failed")
			continue
		}
		sum.Processed++
		log.WithField("output", location).Info("saved")
	}

	return sum, nil
}

func (r *Runner) processFile(ctx context.Context, path string, params domain.RemovalParams) (string, error) {
	res, err := r.processor.Process(ctx, pipeline.Request{
		JobID:  filepath.Base(path),
		Source: path,
		Params: params,
	})
	if err != nil {
		return "", err
	}
	return r.emitter.Emit(ctx, pipeline.BatchOutputName(path), res.PNG)
}
