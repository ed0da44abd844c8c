// Package store keeps batch jobs. Jobs are operational bookkeeping with the
// lifetime of a process, so only a memory store exists.
package store

import (
	"context"
	"sync"

	"stampgate/internal/batch/models"
	id "stampgate/pkg/domain"
	"stampgate/pkg/platform/sentinel"
)

type Store interface {
	Create(ctx context.Context, job models.BatchJob) error
	Get(ctx context.Context, jobID id.BatchID) (models.BatchJob, error)
	Update(ctx context.Context, job models.BatchJob) error
}

type InMemoryStore struct {
	mu   sync.RWMutex
	jobs map[id.BatchID]models.BatchJob
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{jobs: make(map[id.BatchID]models.BatchJob)}
}

func (s *InMemoryStore) Create(_ context.Context, job models.BatchJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return sentinel.ErrConflict
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, jobID id.BatchID) (models.BatchJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return models.BatchJob{}, sentinel.ErrNotFound
	}
	return job, nil
}

func (s *InMemoryStore) Update(_ context.Context, job models.BatchJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; !exists {
		return sentinel.ErrNotFound
	}
	s.jobs[job.ID] = job
	return nil
}
