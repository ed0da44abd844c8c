package store

import (
	"context"

	"stampgate/internal/stamping/models"
	id "stampgate/pkg/domain"
)

// Store persists stamps keyed by IRN value. At most one non-invalidated
// stamp may exist per IRN; Create enforces that atomically.
type Store interface {
	// Create inserts the stamp unless a live (non-invalidated) stamp for
	// the same IRN exists, in which case it returns sentinel.ErrConflict.
	Create(ctx context.Context, stamp models.CryptographicStamp) error
	// GetLiveByIRN returns the non-invalidated stamp for an IRN, or
	// sentinel.ErrNotFound.
	GetLiveByIRN(ctx context.Context, irnValue string) (models.CryptographicStamp, error)
	// GetByCSID returns a stamp by its id, invalidated or not.
	GetByCSID(ctx context.Context, csid id.StampID) (models.CryptographicStamp, error)
	// Invalidate marks the stamp so a replacement may be issued.
	Invalidate(ctx context.Context, csid id.StampID) error
	// Count reports how many live stamps exist (statistics signedCount).
	Count(ctx context.Context) (int64, error)
}
