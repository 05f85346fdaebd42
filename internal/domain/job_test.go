package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCreateJobRequestValidate(t *testing.T) {
	valid := CreateJobRequest{
		RemovalParams: RemovalParams{URL: "https://example.com/cat.jpg", Width: 300, Height: 300},
		WebhookURL:    "https://hooks.example.com/done",
	}
	assert.NoError(t, valid.Validate())

	assert.ErrorIs(t, CreateJobRequest{}.Validate(), ErrInvalidParams)

	badHook := valid
	badHook.WebhookURL = "ftp://hooks.example.com"
	assert.ErrorIs(t, badHook.Validate(), ErrInvalidParams)
}

func TestJobFinished(t *testing.T) {
	assert.False(t, Job{Status: JobStatusQueued}.Finished())
	assert.True(t, Job{Status: JobStatusSucceeded}.Finished())
	assert.True(t, Job{Status: JobStatusFailed}.Finished())
}
