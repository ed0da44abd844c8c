// Package sequence allocates the monotonic counter embedded in IRN values.
// The sequence space is fixed at ten decimal digits; running it out is fatal
// and needs an operator to provision a new range.
package sequence

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	dErrors "stampgate/pkg/domain-errors"
)

// Max is the last allocatable sequence number (ten decimal digits).
const Max = 9_999_999_999

// Allocator hands out strictly increasing sequence numbers.
type Allocator interface {
	Next(ctx context.Context) (uint64, error)
}

// InMemory is a process-local allocator for tests and single-node runs.
type InMemory struct {
	last atomic.Uint64
}

func NewInMemory(start uint64) *InMemory {
	a := &InMemory{}
	a.last.Store(start)
	return a
}

func (a *InMemory) Next(_ context.Context) (uint64, error) {
	next := a.last.Add(1)
	if next > Max {
		return 0, dErrors.New(dErrors.CodeExhausted, "irn sequence space exhausted")
	}
	return next, nil
}

// Postgres allocates from a single-row counter table so concurrent nodes
// never hand out the same number.
//
// Schema:
//
//	CREATE TABLE irn_sequence (
//	    id         BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (id),
//	    last_value BIGINT NOT NULL
//	);
//	INSERT INTO irn_sequence (last_value) VALUES (0);
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (a *Postgres) Next(ctx context.Context) (uint64, error) {
	var next int64
	err := a.db.QueryRowContext(ctx, `
		UPDATE irn_sequence SET last_value = last_value + 1 RETURNING last_value`,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("allocate sequence: %w", err)
	}
	if next > Max {
		return 0, dErrors.New(dErrors.CodeExhausted, "irn sequence space exhausted")
	}
	return uint64(next), nil
}
