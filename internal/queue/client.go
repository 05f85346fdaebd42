package queue

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
)

type ClientConfig struct {
	Queue    string
	MaxRetry int
	Timeout  time.Duration
}

type Client struct {
	client   *asynq.Client
	queue    string
	maxRetry int
	timeout  time.Duration
}

func NewClient(redisOpt asynq.RedisClientOpt, cfg ClientConfig) *Client {
	queue := cfg.Queue
	if queue == "" {
		queue = "default"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	maxRetry := cfg.MaxRetry
	if maxRetry < 0 {
		maxRetry = 0
	}

	return &Client{
		client:   asynq.NewClient(redisOpt),
		queue:    queue,
		maxRetry: maxRetry,
		timeout:  timeout,
	}
}

func (c *Client) Queue() string {
	return c.queue
}

// EnqueueRemoveBackground schedules a job. The job id doubles as the task id
// so a job is never queued twice.
func (c *Client) EnqueueRemoveBackground(ctx context.Context, payload RemoveBackgroundPayload) (*asynq.TaskInfo, error) {
	task, err := NewRemoveBackgroundTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(
		ctx,
		task,
		asynq.Queue(c.queue),
		asynq.TaskID(payload.JobID),
		asynq.MaxRetry(c.maxRetry),
		asynq.Timeout(c.timeout),
	)
}

func (c *Client) Close() error {
	return c.client.Close()
}
