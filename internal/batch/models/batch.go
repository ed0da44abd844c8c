// Package models defines batch jobs: aggregates over transmission records.
// A job counts outcomes; it never mutates the underlying records.
package models

import (
	"time"

	id "stampgate/pkg/domain"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
)

// BatchJob tracks one fan-out over the transmission engine. A member is
// succeeded or failed once terminal; members still in backoff when the
// observation window closes are reported pending.
type BatchJob struct {
	ID          id.BatchID          `json:"id"`
	RecordIDs   []id.TransmissionID `json:"record_ids"`
	Status      Status              `json:"status"`
	StartedAt   time.Time           `json:"started_at"`
	CompletedAt time.Time           `json:"completed_at,omitzero"`
	Succeeded   int                 `json:"succeeded"`
	Failed      int                 `json:"failed"`
	Pending     int                 `json:"pending"`
}
