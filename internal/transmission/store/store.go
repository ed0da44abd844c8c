// Package store is the transmission ledger: the single authoritative home of
// delivery status, indexed for dashboard queries.
package store

import (
	"context"
	"time"

	"stampgate/internal/transmission/models"
	id "stampgate/pkg/domain"
)

// Counts is the raw aggregate the statistics endpoint is computed from.
type Counts struct {
	Total        int64
	Succeeded    int64
	Retrying     int64
	DeadLettered int64
	AttemptSum   int64
}

// Ledger persists transmission records keyed by id, secondarily indexed by
// IRN value and by status.
type Ledger interface {
	// Create inserts a new record; sentinel.ErrConflict if the id exists.
	Create(ctx context.Context, record models.TransmissionRecord) error
	// Get returns one record with its attempt history, or sentinel.ErrNotFound.
	Get(ctx context.Context, recordID id.TransmissionID) (models.TransmissionRecord, error)
	// GetByIRN returns the most recent record for an IRN value.
	GetByIRN(ctx context.Context, irnValue string) (models.TransmissionRecord, error)
	// Update overwrites the record's mutable fields (not the attempt history).
	Update(ctx context.Context, record models.TransmissionRecord) error
	// AppendAttempt adds one attempt to the record's history.
	AppendAttempt(ctx context.Context, recordID id.TransmissionID, attempt models.Attempt) error
	// ListByStatus returns records in the given status, oldest first.
	ListByStatus(ctx context.Context, status models.Status) ([]models.TransmissionRecord, error)
	// Counts aggregates the whole ledger for statistics.
	Counts(ctx context.Context) (Counts, error)
	// Timeline buckets finished attempts by outcome over [start, end).
	Timeline(ctx context.Context, start, end time.Time, interval time.Duration) ([]models.TimelineBucket, error)
}
