package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/dunamismax/pixelcut/internal/domain"
	"github.com/dunamismax/pixelcut/internal/id"
	"github.com/dunamismax/pixelcut/internal/pipeline"
	"github.com/dunamismax/pixelcut/internal/queue"
	"github.com/sirupsen/logrus"
)

type jobOutputResponse struct {
	domain.JobOutput
	DownloadURL string `json:"download_url,omitempty"`
}

type jobResponse struct {
	JobID     string               `json:"job_id"`
	Status    string               `json:"status"`
	Params    domain.RemovalParams `json:"params"`
	Output    *jobOutputResponse   `json:"output,omitempty"`
	Error     string               `json:"error,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	if s.queueClient == nil || s.jobStore == nil {
		writeError(w, http.StatusServiceUnavailable, "async jobs are not configured")
		return
	}

	var req domain.CreateJobRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	if _, err := pipeline.OptionsFromParams(req.RemovalParams); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	now := time.Now().UTC()
	job := domain.Job{
		ID:         id.New(),
		Status:     domain.JobStatusQueued,
		Params:     req.RemovalParams,
		WebhookURL: req.WebhookURL,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	log := s.logger.WithField("job_id", job.ID)

	// The job is stored as queued before the task exists, so a worker that
	// picks it up immediately is never overwritten by this handler.
	if err := s.jobStore.Create(r.Context(), job); err != nil {
		log.WithError(err).Error("create job failed")
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	taskInfo, err := s.queueClient.EnqueueRemoveBackground(r.Context(), queue.RemoveBackgroundPayload{
		JobID:       job.ID,
		Params:      job.Params,
		WebhookURL:  job.WebhookURL,
		RequestedAt: now,
	})
	if err != nil {
		log.WithError(err).Error("enqueue failed")
		if _, failErr := s.jobStore.Fail(r.Context(), job.ID, "failed to enqueue job"); failErr != nil {
			log.WithError(failErr).Warn("mark job failed")
		}
		writeError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}
	s.metrics.queueEnqueued.WithLabelValues(taskInfo.Queue).Inc()

	log.WithFields(logrus.Fields{
		"queue":   taskInfo.Queue,
		"task_id": taskInfo.ID,
	}).Info("job enqueued")

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":     job.ID,
		"status":     domain.JobStatusQueued,
		"status_url": fmt.Sprintf("/v1/jobs/%s", job.ID),
		"queue":      taskInfo.Queue,
		"task_id":    taskInfo.ID,
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	if s.jobStore == nil {
		writeError(w, http.StatusServiceUnavailable, "async jobs are not configured")
		return
	}

	jobID := r.PathValue("id")
	job, ok, err := s.jobStore.Get(r.Context(), jobID)
	if err != nil {
		s.logger.WithField("job_id", jobID).WithError(err).Error("fetch job failed")
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	resp := jobResponse{
		JobID:     job.ID,
		Status:    job.Status,
		Params:    job.Params,
		Error:     job.Error,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
	if job.Output != nil {
		resp.Output = &jobOutputResponse{JobOutput: *job.Output}
		if s.storage != nil {
			u, err := s.storage.PresignedGetURL(r.Context(), job.Output.ObjectKey, s.presignTTL)
			if err != nil {
				s.logger.WithField("job_id", job.ID).WithError(err).Warn("presign download failed")
			} else {
				resp.Output.DownloadURL = u
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
