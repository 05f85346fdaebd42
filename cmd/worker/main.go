package main

import (
	"context"
	"net/http"
	"time"

	"github.com/dunamismax/pixelcut/internal/bootstrap"
	"github.com/dunamismax/pixelcut/internal/config"
	"github.com/dunamismax/pixelcut/internal/pipeline"
	"github.com/dunamismax/pixelcut/internal/store"
	"github.com/dunamismax/pixelcut/internal/telemetry"
	"github.com/dunamismax/pixelcut/internal/webhook"
	"github.com/dunamismax/pixelcut/internal/worker"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}

	logger, err := bootstrap.Logger(cfg.Log)
	if err != nil {
		logrus.WithError(err).Fatal("build logger")
	}
	log := logger.WithField("component", "worker")

	ctx := context.Background()
	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  cfg.Telemetry.ServiceName + "-worker",
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	}, log)
	if err != nil {
		log.WithError(err).Fatal("setup tracing")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	if err := pipeline.Startup(); err != nil {
		log.WithError(err).Fatal("start image runtime")
	}
	defer pipeline.Shutdown()

	processor, err := bootstrap.Processor(cfg, bootstrap.HTTPFetcher(cfg.Fetch), log)
	if err != nil {
		log.WithError(err).Fatal("build processor")
	}

	var emitter pipeline.Emitter
	storageClient, err := bootstrap.Storage(ctx, cfg.Storage)
	switch {
	case err != nil:
		log.WithError(err).Fatal("connect object storage")
	case storageClient != nil:
		emitter = pipeline.ObjectStoreEmitter{Storage: storageClient, OutputPrefix: cfg.Storage.OutputPrefix}
	case cfg.Worker.LocalOutputDir != "":
		emitter = pipeline.LocalFileEmitter{OutputDir: cfg.Worker.LocalOutputDir}
	default:
		log.Fatal("either storage.endpoint or worker.local_output_dir must be set")
	}

	var jobStore store.JobStore
	if cfg.Database.DSN != "" {
		pg, err := store.NewPostgresJobStore(ctx, cfg.Database.DSN)
		if err != nil {
			log.WithError(err).Fatal("connect postgres")
		}
		defer pg.Close()
		jobStore = pg
	} else {
		log.Warn("no database configured, job state lives in memory")
		jobStore = store.NewMemoryJobStore()
	}

	webhookClient := webhook.NewClient(webhook.Config{
		SigningSecret: cfg.Webhook.Secret,
		Timeout:       cfg.Webhook.Timeout,
		MaxAttempts:   cfg.Webhook.MaxRetries + 1,
		MaxBackoff:    30 * time.Second,
	}, log)

	srv, err := worker.NewServer(cfg.Queue, cfg.Worker, worker.Deps{
		Processor: processor,
		Emitter:   emitter,
		Jobs:      jobStore,
		Webhooks:  webhookClient,
		Logger:    log,
	})
	if err != nil {
		log.WithError(err).Fatal("build worker")
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", srv.MetricsHandler())
		if err := http.ListenAndServe(cfg.Worker.MetricsAddr, mux); err != nil {
			log.WithError(err).Warn("metrics listener stopped")
		}
	}()

	log.WithFields(logrus.Fields{
		"concurrency":     cfg.Worker.Concurrency,
		"max_active_jobs": cfg.Worker.MaxActiveJobs,
		"queue":           cfg.Queue.Name,
		"redis":           cfg.Queue.RedisAddr,
	}).Info("starting worker")

	if err := srv.Run(); err != nil {
		log.WithError(err).Fatal("worker failed")
	}
}
