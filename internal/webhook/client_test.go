package webhook

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dunamismax/pixelcut/internal/domain"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func verify(secret, timestamp string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, timestamp, body)), []byte(signature))
}

func TestSendAddsSigningHeaders(t *testing.T) {
	var (
		gotSig  string
		gotTS   string
		gotEvt  string
		gotBody []byte
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(HeaderSignature)
		gotTS = r.Header.Get(HeaderTimestamp)
		gotEvt = r.Header.Get(HeaderEvent)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	logger, _ := test.NewNullLogger()
	client := NewClient(Config{
		SigningSecret:  "test-secret",
		Timeout:        2 * time.Second,
		MaxAttempts:    1,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     20 * time.Millisecond,
	}, logger)

	err := client.Send(context.Background(), srv.URL, EventJobCompleted, map[string]any{"job_id": "job-1"})
	require.NoError(t, err)

	assert.NotEmpty(t, gotTS)
	assert.Equal(t, EventJobCompleted, gotEvt)
	assert.True(t, verify("test-secret", gotTS, gotBody, gotSig))
	assert.False(t, verify("other-secret", gotTS, gotBody, gotSig))
}

func TestSendRetriesUntilSuccess(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	logger, hook := test.NewNullLogger()
	client := NewClient(Config{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}, logger)

	require.NoError(t, client.Send(context.Background(), srv.URL, EventJobFailed, map[string]string{}))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Len(t, hook.AllEntries(), 2)
}

func TestSendGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	logger, _ := test.NewNullLogger()
	client := NewClient(Config{MaxAttempts: 2, InitialBackoff: time.Millisecond}, logger)

	err := client.Send(context.Background(), srv.URL, EventJobFailed, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Contains(t, err.Error(), "status=500")
}

func TestSendSkipsEmptyEndpoint(t *testing.T) {
	logger, _ := test.NewNullLogger()
	assert.NoError(t, NewClient(Config{}, logger).Send(context.Background(), " ", EventJobCompleted, nil))
}

func TestNotificationFor(t *testing.T) {
	updated := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ok := NotificationFor(domain.Job{
		ID:        "j1",
		Status:    domain.JobStatusSucceeded,
		Output:    &domain.JobOutput{ObjectKey: "outputs/j1/result.png", Width: 60, Height: 60},
		UpdatedAt: updated,
	})
	assert.Equal(t, EventJobCompleted, ok.Event)
	assert.Equal(t, updated, ok.OccurredAt)

	failed := NotificationFor(domain.Job{ID: "j2", Status: domain.JobStatusFailed, Error: "boom"})
	assert.Equal(t, EventJobFailed, failed.Event)

	body, err := json.Marshal(failed)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"job.failed","job_id":"j2","status":"failed","error":"boom","occurred_at":"0001-01-01T00:00:00Z"}`, string(body))
}
