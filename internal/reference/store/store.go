// Package store implements the duplicate index: a content-addressed map from
// invoice content hash to the issued reference record. The only mutation is
// an atomic check-and-insert, which is what guarantees at most one IRN per
// content hash under concurrent callers.
package store

import (
	"context"

	"stampgate/internal/reference/models"
)

// DuplicateIndex is the content-addressed reference store.
type DuplicateIndex interface {
	// PutIfAbsent inserts record keyed by its ContentHash unless an entry
	// already exists. It returns the record that owns the key after the
	// call (the argument on a win, the existing entry on a loss) and
	// whether the insert happened. Implementations must make the
	// check-and-insert atomic; read-then-write is not acceptable here.
	PutIfAbsent(ctx context.Context, record models.ReferenceRecord) (models.ReferenceRecord, bool, error)

	// Get returns the record for a content hash, or sentinel.ErrNotFound.
	Get(ctx context.Context, contentHash string) (models.ReferenceRecord, error)

	// Count reports how many references have been issued (statistics).
	Count(ctx context.Context) (int64, error)
}
