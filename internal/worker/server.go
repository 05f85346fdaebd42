package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dunamismax/pixelcut/internal/config"
	"github.com/dunamismax/pixelcut/internal/domain"
	"github.com/dunamismax/pixelcut/internal/pipeline"
	"github.com/dunamismax/pixelcut/internal/queue"
	"github.com/dunamismax/pixelcut/internal/store"
	"github.com/dunamismax/pixelcut/internal/webhook"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Processor interface {
	Process(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

type webhookNotifier interface {
	Notify(ctx context.Context, endpoint string, n webhook.Notification) error
}

type Deps struct {
	Processor Processor
	Emitter   pipeline.Emitter
	Jobs      store.JobStore
	Webhooks  webhookNotifier
	Logger    logrus.FieldLogger
}

type Server struct {
	logger        logrus.FieldLogger
	server        *asynq.Server
	sem           chan struct{}
	processor     Processor
	emitter       pipeline.Emitter
	webhookClient webhookNotifier
	jobStore      store.JobStore
	metrics       *metrics
	tracer        trace.Tracer
}

func NewServer(queueCfg config.QueueConfig, workerCfg config.WorkerConfig, deps Deps) (*Server, error) {
	s, err := newServer(workerCfg, deps)
	if err != nil {
		return nil, err
	}

	logger := s.logger
	s.server = asynq.NewServer(
		queueCfg.RedisClientOpt(),
		asynq.Config{
			Concurrency: workerCfg.Concurrency,
			Queues: map[string]int{
				queueCfg.Name: 1,
			},
			Logger:   logger,
			LogLevel: asynq.InfoLevel,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logger.WithFields(logrus.Fields{
					"type":  task.Type(),
					"retry": fmt.Sprintf("%d/%d", retried, maxRetry),
				}).WithError(err).Warn("task failed")
			}),
		},
	)
	return s, nil
}

func newServer(workerCfg config.WorkerConfig, deps Deps) (*Server, error) {
	if deps.Processor == nil {
		return nil, errors.New("processor is required")
	}
	if deps.Emitter == nil {
		return nil, errors.New("emitter is required")
	}
	if deps.Jobs == nil {
		return nil, errors.New("job store is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Server{
		logger:        logger,
		sem:           make(chan struct{}, max(1, workerCfg.MaxActiveJobs)),
		processor:     deps.Processor,
		emitter:       deps.Emitter,
		webhookClient: deps.Webhooks,
		jobStore:      deps.Jobs,
		metrics:       newMetrics(),
		tracer:        otel.Tracer("github.com/dunamismax/pixelcut/internal/worker"),
	}, nil
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeRemoveBackground, s.handleRemoveBackground)
	return s.server.Run(mux)
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleRemoveBackground(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := domain.JobStatusFailed

	payload, err := queue.ParseRemoveBackgroundPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.remove_background", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("job.id", payload.JobID),
		attribute.Bool("job.resize", payload.Params.HasSize()),
		attribute.Bool("job.background", payload.Params.BgColor != ""),
	)
	defer span.End()
	defer func() {
		s.metrics.jobDuration.WithLabelValues(outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.jobsTotal.WithLabelValues(outcome).Inc()
	}()

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.metrics.activeJobs.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeJobs.Dec()
	}()

	log := s.logger.WithFields(logrus.Fields{"job_id": payload.JobID, "url": payload.Params.URL})
	log.Info("processing job")
	if job, err := s.jobStore.UpdateStatus(ctx, payload.JobID, domain.JobStatusProcessing); err != nil {
		log.WithError(err).WithField("status", domain.JobStatusProcessing).Warn("job status update failed")
	} else if job.Finished() {
		log.WithField("status", job.Status).Info("job already finished, skipping redelivered task")
		outcome = "skipped"
		return nil
	}

	output, err := s.run(ctx, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "job failed")
		return s.handleFailure(ctx, log, payload, err)
	}

	job, err := s.jobStore.Complete(ctx, payload.JobID, output)
	if err != nil {
		return fmt.Errorf("record job output: %w", err)
	}
	s.metrics.outputBytesTotal.Add(float64(output.Bytes))
	log.WithFields(logrus.Fields{
		"object_key": output.ObjectKey,
		"bytes":      output.Bytes,
	}).Info("job succeeded")

	s.notify(ctx, log, payload.WebhookURL, job)

	outcome = domain.JobStatusSucceeded
	span.SetStatus(codes.Ok, "processed")
	return nil
}

func (s *Server) run(ctx context.Context, payload queue.RemoveBackgroundPayload) (domain.JobOutput, error) {
	result, err := s.processor.Process(ctx, pipeline.Request{
		JobID:  payload.JobID,
		Source: payload.Params.URL,
		Params: payload.Params,
	})
	if err != nil {
		return domain.JobOutput{}, err
	}

	location, err := s.emitter.Emit(ctx, pipeline.JobOutputName(payload.JobID), result.PNG)
	if err != nil {
		return domain.JobOutput{}, fmt.Errorf("emit stage: %w", err)
	}

	return domain.JobOutput{
		ObjectKey: location,
		Width:     result.Width,
		Height:    result.Height,
		Bytes:     len(result.PNG),
	}, nil
}

// handleFailure decides between retrying and failing the job for good.
// Caller errors never succeed on retry, so they fail at once.
func (s *Server) handleFailure(ctx context.Context, log logrus.FieldLogger, payload queue.RemoveBackgroundPayload, err error) error {
	kind := pipeline.KindOf(err)
	s.metrics.failuresTotal.WithLabelValues(kind.String()).Inc()

	permanent := kind != pipeline.KindProcessing
	if !permanent && !finalAttempt(ctx) {
		log.WithError(err).Warn("job attempt failed, will retry")
		s.updateJobStatus(ctx, log, payload.JobID, domain.JobStatusQueued)
		return fmt.Errorf("remove background: %w", err)
	}

	log.WithError(err).WithField("kind", kind.String()).Error("job failed")
	job, failErr := s.jobStore.Fail(ctx, payload.JobID, err.Error())
	if failErr != nil {
		log.WithError(failErr).Warn("mark job failed")
	} else {
		s.notify(ctx, log, payload.WebhookURL, job)
	}

	if permanent {
		return fmt.Errorf("remove background: %v: %w", err, asynq.SkipRetry)
	}
	return fmt.Errorf("remove background: %w", err)
}

// finalAttempt reports whether asynq will not retry this task again. Outside
// of asynq there is no retry budget, so every attempt is final.
func finalAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return true
	}
	return retried >= maxRetry
}

func (s *Server) updateJobStatus(ctx context.Context, log logrus.FieldLogger, jobID, status string) {
	if _, err := s.jobStore.UpdateStatus(ctx, jobID, status); err != nil {
		log.WithError(err).WithField("status", status).Warn("job status update failed")
	}
}

// notify delivers the webhook for a finished job. Delivery failures are
// logged; the job outcome stands.
func (s *Server) notify(ctx context.Context, log logrus.FieldLogger, endpoint string, job domain.Job) {
	if endpoint == "" || s.webhookClient == nil {
		return
	}

	n := webhook.NotificationFor(job)
	if err := s.webhookClient.Notify(ctx, endpoint, n); err != nil {
		s.metrics.webhookFailures.Inc()
		log.WithError(err).WithField("event", n.Event).Warn("webhook delivery failed")
	}
}
