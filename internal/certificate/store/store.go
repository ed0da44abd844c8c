package store

import (
	"context"

	"stampgate/internal/certificate/models"
	id "stampgate/pkg/domain"
)

// Store persists certificates plus the single "current active" pointer.
type Store interface {
	Create(ctx context.Context, cert models.Certificate) error
	Get(ctx context.Context, certID id.CertificateID) (models.Certificate, error)
	// Update replaces the stored certificate; callers are responsible for
	// only writing legal lifecycle transitions.
	Update(ctx context.Context, cert models.Certificate) error
	// GetActive resolves the current-active pointer, sentinel.ErrNotFound
	// when no certificate holds it.
	GetActive(ctx context.Context) (models.Certificate, error)
	// SwapActive atomically points the current-active pointer at newID and
	// returns the previous holder's id, if any. The pointer swap and the
	// read of the previous holder must be one atomic step so two
	// concurrent activations cannot both see "no previous active".
	SwapActive(ctx context.Context, newID id.CertificateID) (previous id.CertificateID, hadPrevious bool, err error)
	// List returns all certificates (expiry sweep, dashboards).
	List(ctx context.Context) ([]models.Certificate, error)
}
