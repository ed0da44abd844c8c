package models

import (
	"time"

	id "stampgate/pkg/domain"
)

// Status is the certificate lifecycle state.
type Status string

const (
	StatusRequested  Status = "requested"
	StatusIssued     Status = "issued"
	StatusActive     Status = "active"
	StatusExpiring   Status = "expiring"
	StatusRevoked    Status = "revoked"
	StatusSuperseded Status = "superseded"
)

// validTransitions is the closed lifecycle graph:
// requested → issued → active → expiring; active/expiring → superseded when a
// newer certificate replaces them; revocation is allowed from any live state.
var validTransitions = map[Status][]Status{
	StatusRequested: {StatusIssued, StatusRevoked},
	StatusIssued:    {StatusActive, StatusRevoked},
	StatusActive:    {StatusExpiring, StatusSuperseded, StatusRevoked},
	StatusExpiring:  {StatusSuperseded, StatusRevoked},
}

// CanTransition reports whether from → to is a legal lifecycle move.
func CanTransition(from, to Status) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Usable reports whether a certificate in this status may sign or verify.
// Expiring is a warning state, not a blocking one.
func (s Status) Usable() bool {
	return s == StatusActive || s == StatusExpiring
}

// SubjectInfo identifies the certificate subject. CommonName, Organization
// and Country are mandatory at request time.
type SubjectInfo struct {
	CommonName   string `json:"common_name"`
	Organization string `json:"organization"`
	Country      string `json:"country"`
}

// StatusChange is one lifecycle transition, kept for audit.
type StatusChange struct {
	From Status    `json:"from"`
	To   Status    `json:"to"`
	At   time.Time `json:"at"`
}

// Certificate is the signing credential metadata. Private key material is
// never embedded here; the key-holder owns it and is addressed by the
// certificate id as key handle.
type Certificate struct {
	ID           id.CertificateID `json:"id"`
	Subject      SubjectInfo      `json:"subject"`
	PublicKey    []byte           `json:"public_key"`
	KeyAlgorithm string           `json:"key_algorithm"`
	KeySize      int              `json:"key_size"`
	Status       Status           `json:"status"`
	IssuedAt     time.Time        `json:"issued_at,omitzero"`
	ExpiresAt    time.Time        `json:"expires_at,omitzero"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	History      []StatusChange   `json:"history,omitempty"`
}
