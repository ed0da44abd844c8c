// Package audit records regulatory-relevant actions: identifier issuance,
// certificate lifecycle transitions, stamp issuance and transmission outcomes.
// Events are append-only and keyed by the business subject they concern
// (IRN value, certificate id, transmission id).
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventName enumerates the recorded actions.
type EventName string

const (
	EventReferenceIssued       EventName = "reference.issued"
	EventReferenceDuplicate    EventName = "reference.duplicate_hit"
	EventCertificateRequested  EventName = "certificate.requested"
	EventCertificateActivated  EventName = "certificate.activated"
	EventCertificateExpiring   EventName = "certificate.expiring"
	EventCertificateSuperseded EventName = "certificate.superseded"
	EventStampIssued           EventName = "stamp.issued"
	EventStampInvalidated      EventName = "stamp.invalidated"
	EventTransmissionSucceeded EventName = "transmission.succeeded"
	EventTransmissionDead      EventName = "transmission.dead_lettered"
	EventTransmissionForced    EventName = "transmission.forced_retry"
	EventTransmissionCancelled EventName = "transmission.cancelled"
)

// Event is one audit record.
type Event struct {
	ID        uuid.UUID
	Action    string
	Subject   string
	Detail    map[string]string
	Timestamp time.Time
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subject string) ([]Event, error)
}
