package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dunamismax/pixelcut/internal/api"
	"github.com/dunamismax/pixelcut/internal/bootstrap"
	"github.com/dunamismax/pixelcut/internal/config"
	"github.com/dunamismax/pixelcut/internal/pipeline"
	"github.com/dunamismax/pixelcut/internal/queue"
	"github.com/dunamismax/pixelcut/internal/ratelimit"
	"github.com/dunamismax/pixelcut/internal/store"
	"github.com/dunamismax/pixelcut/internal/telemetry"
	"github.com/redis/go-redis/v9"
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
	log := logger.WithField("component", "api")

	ctx := context.Background()
	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  cfg.Telemetry.ServiceName + "-api",
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	}, log)
	if err != nil {
		log.WithError(err).Fatal("setup tracing")
	}

	if err := pipeline.Startup(); err != nil {
		log.WithError(err).Fatal("start image runtime")
	}
	defer pipeline.Shutdown()

	processor, err := bootstrap.Processor(cfg, bootstrap.HTTPFetcher(cfg.Fetch), log)
	if err != nil {
		log.WithError(err).Fatal("build processor")
	}

	deps := api.Deps{
		Processor: processor,
		Tracer:    telemetry.Tracer("github.com/dunamismax/pixelcut/internal/api"),
		Logger:    log,
	}

	storageClient, err := bootstrap.Storage(ctx, cfg.Storage)
	if err != nil {
		log.WithError(err).Fatal("connect object storage")
	}
	if storageClient != nil {
		deps.Storage = storageClient
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
		log.Warn("no database configured, job state lives in memory and is not shared with workers")
		jobStore = store.NewMemoryJobStore()
	}
	deps.Jobs = jobStore

	queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), queue.ClientConfig{
		Queue:    cfg.Queue.Name,
		MaxRetry: cfg.Queue.MaxRetry,
		Timeout:  cfg.Worker.JobTimeout,
	})
	defer func() {
		if err := queueClient.Close(); err != nil {
			log.WithError(err).Warn("queue client close error")
		}
	}()
	deps.Queue = queueClient

	if cfg.RateLimit.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Queue.RedisAddr,
			Password: cfg.Queue.RedisPassword,
			DB:       cfg.Queue.RedisDB,
		})
		defer rdb.Close()

		limiter, err := ratelimit.NewRedisTokenBucket(rdb, ratelimit.Config{
			Burst:     cfg.RateLimit.Burst,
			Rate:      cfg.RateLimit.Rate,
			KeyPrefix: cfg.RateLimit.Prefix,
		})
		if err != nil {
			log.WithError(err).Fatal("build rate limiter")
		}
		deps.RateLimiter = limiter
	}

	app, err := api.NewServer(api.Config{
		AllowedOrigins: cfg.API.AllowedOrigins,
		RequestTimeout: cfg.API.RequestTimeout,
		PresignExpiry:  cfg.API.PresignExpiry,
		TrustedProxies: cfg.API.TrustedProxies,
	}, deps)
	if err != nil {
		log.WithError(err).Fatal("build api server")
	}

	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.API.RequestTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.API.Addr).Info("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Info("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.WithError(err).Warn("tracing shutdown failed")
	}
}
