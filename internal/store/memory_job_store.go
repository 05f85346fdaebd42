package store

import (
	"context"
	"sync"
	"time"

	"github.com/dunamismax/pixelcut/internal/domain"
)

type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]domain.Job
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs: make(map[string]domain.Job),
	}
}

func (s *MemoryJobStore) Create(_ context.Context, job domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

func (s *MemoryJobStore) Get(_ context.Context, id string) (domain.Job, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	return job, ok, nil
}

// UpdateStatus leaves finished jobs untouched and returns them as stored.
func (s *MemoryJobStore) UpdateStatus(_ context.Context, id, status string) (domain.Job, error) {
	return s.update(id, func(job *domain.Job) bool {
		if job.Finished() {
			return false
		}
		job.Status = status
		return true
	})
}

func (s *MemoryJobStore) Complete(_ context.Context, id string, output domain.JobOutput) (domain.Job, error) {
	return s.update(id, func(job *domain.Job) bool {
		job.Status = domain.JobStatusSucceeded
		job.Output = &output
		job.Error = ""
		return true
	})
}

func (s *MemoryJobStore) Fail(_ context.Context, id, reason string) (domain.Job, error) {
	return s.update(id, func(job *domain.Job) bool {
		job.Status = domain.JobStatusFailed
		job.Output = nil
		job.Error = reason
		return true
	})
}

func (s *MemoryJobStore) update(id string, fn func(*domain.Job) bool) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, ErrJobNotFound
	}

	if !fn(&job) {
		return job, nil
	}
	job.UpdatedAt = time.Now().UTC()
	s.jobs[id] = job
	return job, nil
}
