package store

import (
	"context"
	"sync"

	"stampgate/internal/certificate/models"
	id "stampgate/pkg/domain"
	"stampgate/pkg/platform/sentinel"
)

// InMemoryStore keeps certificates and the active pointer under one mutex so
// SwapActive is atomic.
type InMemoryStore struct {
	mu        sync.RWMutex
	certs     map[id.CertificateID]models.Certificate
	active    id.CertificateID
	hasActive bool
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{certs: make(map[id.CertificateID]models.Certificate)}
}

func (s *InMemoryStore) Create(_ context.Context, cert models.Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.certs[cert.ID]; exists {
		return sentinel.ErrConflict
	}
	s.certs[cert.ID] = cert
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, certID id.CertificateID) (models.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cert, ok := s.certs[certID]
	if !ok {
		return models.Certificate{}, sentinel.ErrNotFound
	}
	return cert, nil
}

func (s *InMemoryStore) Update(_ context.Context, cert models.Certificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.certs[cert.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.certs[cert.ID] = cert
	return nil
}

func (s *InMemoryStore) GetActive(_ context.Context) (models.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasActive {
		return models.Certificate{}, sentinel.ErrNotFound
	}
	cert, ok := s.certs[s.active]
	if !ok {
		return models.Certificate{}, sentinel.ErrNotFound
	}
	return cert, nil
}

func (s *InMemoryStore) SwapActive(_ context.Context, newID id.CertificateID) (id.CertificateID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.certs[newID]; !ok {
		return id.CertificateID{}, false, sentinel.ErrNotFound
	}
	previous, hadPrevious := s.active, s.hasActive
	s.active, s.hasActive = newID, true
	return previous, hadPrevious, nil
}

func (s *InMemoryStore) List(_ context.Context) ([]models.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Certificate, 0, len(s.certs))
	for _, cert := range s.certs {
		out = append(out, cert)
	}
	return out, nil
}
