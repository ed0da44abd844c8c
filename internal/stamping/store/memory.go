package store

import (
	"context"
	"sync"

	"stampgate/internal/stamping/models"
	id "stampgate/pkg/domain"
	"stampgate/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	byCSID  map[id.StampID]models.CryptographicStamp
	liveIRN map[string]id.StampID
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		byCSID:  make(map[id.StampID]models.CryptographicStamp),
		liveIRN: make(map[string]id.StampID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, stamp models.CryptographicStamp) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.liveIRN[stamp.IRNValue]; exists {
		return sentinel.ErrConflict
	}
	if _, exists := s.byCSID[stamp.CSID]; exists {
		return sentinel.ErrConflict
	}
	s.byCSID[stamp.CSID] = stamp
	s.liveIRN[stamp.IRNValue] = stamp.CSID
	return nil
}

func (s *InMemoryStore) GetLiveByIRN(_ context.Context, irnValue string) (models.CryptographicStamp, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	csid, ok := s.liveIRN[irnValue]
	if !ok {
		return models.CryptographicStamp{}, sentinel.ErrNotFound
	}
	return s.byCSID[csid], nil
}

func (s *InMemoryStore) GetByCSID(_ context.Context, csid id.StampID) (models.CryptographicStamp, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stamp, ok := s.byCSID[csid]
	if !ok {
		return models.CryptographicStamp{}, sentinel.ErrNotFound
	}
	return stamp, nil
}

func (s *InMemoryStore) Invalidate(_ context.Context, csid id.StampID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stamp, ok := s.byCSID[csid]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !stamp.Invalidated {
		stamp.Invalidated = true
		s.byCSID[csid] = stamp
		delete(s.liveIRN, stamp.IRNValue)
	}
	return nil
}

func (s *InMemoryStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.liveIRN)), nil
}
