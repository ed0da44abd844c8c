package models

import "time"

// ReferenceRecord is one issued IRN. Created once, immutable, never deleted;
// the duplicate index guarantees at most one record per content hash.
type ReferenceRecord struct {
	// Value is the globally unique IRN: fixed-length alphanumeric built from
	// a monotonic sequence plus a checksum segment.
	Value string `json:"value"`
	// VerificationCode is a short, separately derived code for out-of-band
	// human confirmation (printed next to the QR on the document).
	VerificationCode string    `json:"verification_code"`
	ContentHash      string    `json:"content_hash"`
	SourceInvoiceID  string    `json:"source_invoice_id"`
	CreatedAt        time.Time `json:"created_at"`
}

// GenerateResult wraps a record with the duplicate-hit flag; a duplicate hit
// is an idempotent success, not an error.
type GenerateResult struct {
	Record    ReferenceRecord `json:"record"`
	Duplicate bool            `json:"duplicate"`
}
