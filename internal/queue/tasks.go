package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dunamismax/pixelcut/internal/domain"
	"github.com/hibiken/asynq"
)

const TypeRemoveBackground = "image:removebg"

type RemoveBackgroundPayload struct {
	JobID       string               `json:"job_id"`
	Params      domain.RemovalParams `json:"params"`
	WebhookURL  string               `json:"webhook_url,omitempty"`
	RequestedAt time.Time            `json:"requested_at"`
}

func NewRemoveBackgroundTask(payload RemoveBackgroundPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal removebg payload: %w", err)
	}
	return asynq.NewTask(TypeRemoveBackground, body), nil
}

func ParseRemoveBackgroundPayload(task *asynq.Task) (RemoveBackgroundPayload, error) {
	var payload RemoveBackgroundPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return RemoveBackgroundPayload{}, fmt.Errorf("unmarshal removebg payload: %w", err)
	}
	if payload.JobID == "" {
		return RemoveBackgroundPayload{}, fmt.Errorf("removebg payload has no job_id")
	}
	return payload, nil
}
