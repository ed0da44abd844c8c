package store

import (
	"context"
	"sync"

	"stampgate/internal/reference/models"
	"stampgate/pkg/platform/sentinel"
)

// InMemoryIndex holds the duplicate index under a single mutex so the
// check-and-insert is atomic. Default for tests and single-node runs.
type InMemoryIndex struct {
	mu      sync.RWMutex
	records map[string]models.ReferenceRecord
}

func NewInMemory() *InMemoryIndex {
	return &InMemoryIndex{records: make(map[string]models.ReferenceRecord)}
}

func (s *InMemoryIndex) PutIfAbsent(_ context.Context, record models.ReferenceRecord) (models.ReferenceRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[record.ContentHash]; ok {
		return existing, false, nil
	}
	s.records[record.ContentHash] = record
	return record, true, nil
}

func (s *InMemoryIndex) Get(_ context.Context, contentHash string) (models.ReferenceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[contentHash]
	if !ok {
		return models.ReferenceRecord{}, sentinel.ErrNotFound
	}
	return record, nil
}

func (s *InMemoryIndex) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.records)), nil
}
