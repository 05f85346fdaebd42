package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dunamismax/pixelcut/internal/config"
	"github.com/dunamismax/pixelcut/internal/domain"
	"github.com/dunamismax/pixelcut/internal/pipeline"
	"github.com/dunamismax/pixelcut/internal/queue"
	"github.com/dunamismax/pixelcut/internal/raster"
	"github.com/dunamismax/pixelcut/internal/store"
	"github.com/dunamismax/pixelcut/internal/webhook"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProcessor struct {
	res pipeline.Result
	err error
	got []pipeline.Request
}

func (p *stubProcessor) Process(_ context.Context, req pipeline.Request) (pipeline.Result, error) {
	p.got = append(p.got, req)
	return p.res, p.err
}

type captureNotifier struct {
	endpoints []string
	sent      []webhook.Notification
	err       error
}

func (c *captureNotifier) Notify(_ context.Context, endpoint string, n webhook.Notification) error {
	c.endpoints = append(c.endpoints, endpoint)
	c.sent = append(c.sent, n)
	return c.err
}

type fixture struct {
	server   *Server
	jobs     *store.MemoryJobStore
	proc     *stubProcessor
	notifier *captureNotifier
	outDir   string
}

func newFixture(t *testing.T, proc *stubProcessor) fixture {
	t.Helper()

	logger, _ := test.NewNullLogger()
	jobs := store.NewMemoryJobStore()
	notifier := &captureNotifier{}
	outDir := t.TempDir()

	s, err := newServer(config.WorkerConfig{MaxActiveJobs: 1}, Deps{
		Processor: proc,
		Emitter:   pipeline.LocalFileEmitter{OutputDir: outDir},
		Jobs:      jobs,
		Webhooks:  notifier,
		Logger:    logger,
	})
	require.NoError(t, err)

	return fixture{server: s, jobs: jobs, proc: proc, notifier: notifier, outDir: outDir}
}

func (f fixture) seed(t *testing.T, jobID string) queue.RemoveBackgroundPayload {
	t.Helper()

	now := time.Now().UTC()
	params := domain.RemovalParams{URL: "https://example.com/a.png", Width: 60, Height: 60, Padding: 10}
	require.NoError(t, f.jobs.Create(context.Background(), domain.Job{
		ID:         jobID,
		Status:     domain.JobStatusQueued,
		Params:     params,
		WebhookURL: "https://hooks.example.com/done",
		CreatedAt:  now,
		UpdatedAt:  now,
	}))
	return queue.RemoveBackgroundPayload{
		JobID:       jobID,
		Params:      params,
		WebhookURL:  "https://hooks.example.com/done",
		RequestedAt: now,
	}
}

func task(t *testing.T, payload queue.RemoveBackgroundPayload) *asynq.Task {
	t.Helper()
	tk, err := queue.NewRemoveBackgroundTask(payload)
	require.NoError(t, err)
	return tk
}

func TestNewServer_RequiresDeps(t *testing.T) {
	_, err := newServer(config.WorkerConfig{}, Deps{})
	assert.Error(t, err)
}

func TestHandleRemoveBackground_Success(t *testing.T) {
	f := newFixture(t, &stubProcessor{res: pipeline.Result{PNG: []byte("png-bytes"), Width: 60, Height: 60}})
	payload := f.seed(t, "job-1")

	require.NoError(t, f.server.handleRemoveBackground(context.Background(), task(t, payload)))

	require.Len(t, f.proc.got, 1)
	assert.Equal(t, "https://example.com/a.png", f.proc.got[0].Source)
	assert.Equal(t, payload.Params, f.proc.got[0].Params)

	job, ok, err := f.jobs.Get(context.Background(), "job-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.JobStatusSucceeded, job.Status)
	require.NotNil(t, job.Output)
	assert.Equal(t, filepath.Join(f.outDir, "job-1", "result.png"), job.Output.ObjectKey)
	assert.Equal(t, len("png-bytes"), job.Output.Bytes)

	data, err := os.ReadFile(job.Output.ObjectKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, webhook.EventJobCompleted, f.notifier.sent[0].Event)
	assert.Equal(t, "https://hooks.example.com/done", f.notifier.endpoints[0])
}

func TestHandleRemoveBackground_SkipsFinishedJob(t *testing.T) {
	f := newFixture(t, &stubProcessor{res: pipeline.Result{PNG: []byte("png-bytes")}})
	payload := f.seed(t, "job-done")
	_, err := f.jobs.Complete(context.Background(), "job-done", domain.JobOutput{ObjectKey: "first", Bytes: 3})
	require.NoError(t, err)

	require.NoError(t, f.server.handleRemoveBackground(context.Background(), task(t, payload)))

	assert.Empty(t, f.proc.got)
	assert.Empty(t, f.notifier.sent)
	job, _, err := f.jobs.Get(context.Background(), "job-done")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusSucceeded, job.Status)
	assert.Equal(t, "first", job.Output.ObjectKey)
}

func TestHandleRemoveBackground_PermanentFailureSkipsRetry(t *testing.T) {
	f := newFixture(t, &stubProcessor{err: fmt.Errorf("fetch stage: %w: status=404", pipeline.ErrUpstreamFetch)})
	payload := f.seed(t, "job-2")

	err := f.server.handleRemoveBackground(context.Background(), task(t, payload))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)

	job, _, _ := f.jobs.Get(context.Background(), "job-2")
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "status=404")

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, webhook.EventJobFailed, f.notifier.sent[0].Event)
}

func TestHandleRemoveBackground_InvalidDimensions(t *testing.T) {
	f := newFixture(t, &stubProcessor{err: fmt.Errorf("wrap: %w", raster.ErrInvalidDimensions)})
	payload := f.seed(t, "job-3")

	err := f.server.handleRemoveBackground(context.Background(), task(t, payload))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleRemoveBackground_ProcessingFailureOnFinalAttempt(t *testing.T) {
	f := newFixture(t, &stubProcessor{err: errors.New("remove stage: session crashed")})
	payload := f.seed(t, "job-4")

	err := f.server.handleRemoveBackground(context.Background(), task(t, payload))
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)

	job, _, _ := f.jobs.Get(context.Background(), "job-4")
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Len(t, f.notifier.sent, 1)
}

func TestHandleRemoveBackground_WebhookFailureKeepsSuccess(t *testing.T) {
	f := newFixture(t, &stubProcessor{res: pipeline.Result{PNG: []byte("x"), Width: 1, Height: 1}})
	f.notifier.err = errors.New("hook down")
	payload := f.seed(t, "job-5")

	require.NoError(t, f.server.handleRemoveBackground(context.Background(), task(t, payload)))

	job, _, _ := f.jobs.Get(context.Background(), "job-5")
	assert.Equal(t, domain.JobStatusSucceeded, job.Status)
}

func TestHandleRemoveBackground_BadPayload(t *testing.T) {
	f := newFixture(t, &stubProcessor{})

	err := f.server.handleRemoveBackground(context.Background(), asynq.NewTask(queue.TypeRemoveBackground, []byte("nope")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, f.proc.got)
}

func TestHandleRemoveBackground_WaitsForSlot(t *testing.T) {
	f := newFixture(t, &stubProcessor{})
	payload := f.seed(t, "job-6")

	f.server.sem <- struct{}{}
	defer func() { <-f.server.sem }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := f.server.handleRemoveBackground(ctx, task(t, payload))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, f.proc.got)
}

func TestFinalAttemptOutsideAsynq(t *testing.T) {
	assert.True(t, finalAttempt(context.Background()))
}
