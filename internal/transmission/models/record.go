// Package models defines the transmission ledger records: the per-document
// delivery state machine and its attempt history.
package models

import (
	"time"

	id "stampgate/pkg/domain"
)

// Status is the delivery state of one document.
type Status string

const (
	StatusCreated      Status = "created"
	StatusQueued       Status = "queued"
	StatusTransmitting Status = "transmitting"
	StatusSucceeded    Status = "succeeded"
	StatusRetrying     Status = "retrying"
	StatusDeadLettered Status = "dead_lettered"
)

// validTransitions is the delivery state machine. Succeeded is absorbing;
// dead_lettered is absorbing except for the forced-retry escape hatch.
var validTransitions = map[Status][]Status{
	StatusCreated:      {StatusQueued, StatusDeadLettered},
	StatusQueued:       {StatusTransmitting},
	StatusRetrying:     {StatusTransmitting},
	StatusTransmitting: {StatusSucceeded, StatusRetrying, StatusDeadLettered},
	StatusDeadLettered: {StatusRetrying},
}

// CanTransition reports whether from → to is a legal delivery move.
func CanTransition(from, to Status) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the record accepts no further automatic work.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusDeadLettered
}

// AttemptOutcome classifies one finished attempt for the timeline.
type AttemptOutcome string

const (
	OutcomeSucceeded AttemptOutcome = "succeeded"
	OutcomeFailed    AttemptOutcome = "failed"
	OutcomeCancelled AttemptOutcome = "cancelled"
)

// Attempt is one delivery try, appended to the record's history. Cancelled
// attempts carry Number 0: they never counted against the ceiling.
type Attempt struct {
	Number      int            `json:"number"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
	Outcome     AttemptOutcome `json:"outcome"`
	Error       string         `json:"error,omitempty"`
}

// TransmissionRecord is the ledger entry for one stamped document. The ledger
// is the single source of truth for status; nothing else caches it.
type TransmissionRecord struct {
	ID             id.TransmissionID `json:"id"`
	IRNValue       string            `json:"irn_value"`
	StampCSID      id.StampID        `json:"stamp_csid"`
	Status         Status            `json:"status"`
	AttemptCount   int               `json:"attempt_count"`
	MaxRetries     int               `json:"max_retries"`
	NextAttemptAt  time.Time         `json:"next_attempt_at,omitzero"`
	BackoffSeconds float64           `json:"backoff_seconds,omitempty"`
	LastError      string            `json:"last_error,omitempty"`
	Forced         bool              `json:"forced,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	Attempts       []Attempt         `json:"attempts,omitempty"`
}

// Stats is the dashboard aggregate over the whole ledger.
type Stats struct {
	SuccessRate    float64 `json:"success_rate"`
	AverageRetries float64 `json:"average_retries"`
	RetryingCount  int64   `json:"retrying_count"`
	SignedCount    int64   `json:"signed_count"`
	Total          int64   `json:"total"`
}

// TimelineBucket is one interval of the attempt timeline, counted by outcome.
type TimelineBucket struct {
	Start     time.Time `json:"start"`
	Succeeded int64     `json:"succeeded"`
	Failed    int64     `json:"failed"`
	Cancelled int64     `json:"cancelled"`
}
