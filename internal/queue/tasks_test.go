package queue

import (
	"testing"
	"time"

	"github.com/dunamismax/pixelcut/internal/domain"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoveBackgroundTask(t *testing.T) {
	payload := RemoveBackgroundPayload{
		JobID: "job-123",
		Params: domain.RemovalParams{
			URL:     "https://example.com/cat.jpg",
			Width:   512,
			Height:  512,
			Padding: 16,
			BgColor: "#fff",
		},
		WebhookURL:  "https://hooks.example.com/pixelcut",
		RequestedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	task, err := NewRemoveBackgroundTask(payload)
	require.NoError(t, err)
	assert.Equal(t, TypeRemoveBackground, task.Type())

	parsed, err := ParseRemoveBackgroundPayload(task)
	require.NoError(t, err)
	assert.Equal(t, payload, parsed)
}

func TestParseRemoveBackgroundPayload_Rejects(t *testing.T) {
	_, err := ParseRemoveBackgroundPayload(asynq.NewTask(TypeRemoveBackground, []byte("{")))
	assert.Error(t, err)

	_, err = ParseRemoveBackgroundPayload(asynq.NewTask(TypeRemoveBackground, []byte(`{"params":{}}`)))
	assert.Error(t, err)
}
