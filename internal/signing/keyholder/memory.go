// Package keyholder is the in-process key-holder. Production deployments
// point the same port at an HSM or cloud KMS; the interface is identical.
package keyholder

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"sync"

	"stampgate/internal/signing"
	dErrors "stampgate/pkg/domain-errors"
)

type InMemoryHolder struct {
	mu   sync.RWMutex
	keys map[string]ed25519.PrivateKey
}

func NewInMemory() *InMemoryHolder {
	return &InMemoryHolder{keys: make(map[string]ed25519.PrivateKey)}
}

func (h *InMemoryHolder) GenerateKey(_ context.Context, handle string, algorithm string) ([]byte, error) {
	if algorithm != signing.AlgorithmEd25519 {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "unsupported key algorithm %q", algorithm)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.keys[handle]; exists {
		return nil, dErrors.Newf(dErrors.CodeConflict, "key handle %q already exists", handle)
	}
	h.keys[handle] = priv
	return pub, nil
}

func (h *InMemoryHolder) Sign(_ context.Context, handle string, digest []byte) ([]byte, error) {
	h.mu.RLock()
	priv, ok := h.keys[handle]
	h.mu.RUnlock()
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeUnavailable, "signing backend has no key for handle %q", handle)
	}
	return ed25519.Sign(priv, digest), nil
}
