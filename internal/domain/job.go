package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	JobStatusCreated    = "created"
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusSucceeded  = "succeeded"
	JobStatusFailed     = "failed"
)

type CreateJobRequest struct {
	RemovalParams
	WebhookURL string `json:"webhook_url,omitempty"`
}

type JobOutput struct {
	ObjectKey string `json:"object_key"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Bytes     int    `json:"bytes"`
}

type Job struct {
	ID         string
	Status     string
	Params     RemovalParams
	WebhookURL string
	Output     *JobOutput
	Error      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (r CreateJobRequest) Validate() error {
	if err := r.RemovalParams.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(r.WebhookURL) != "" {
		if err := validateSourceURL(r.WebhookURL); err != nil {
			return fmt.Errorf("webhook_url: %w", err)
		}
	}
	return nil
}

func (j Job) Finished() bool {
	return j.Status == JobStatusSucceeded || j.Status == JobStatusFailed
}
