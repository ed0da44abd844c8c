package models

import (
	"time"

	certmodels "stampgate/internal/certificate/models"
	id "stampgate/pkg/domain"
)

// CryptographicStamp is the verifiable proof attached to an invoice:
// signature over the invoice digest, the certificate that produced it, and
// the scannable payload. Created once per IRN; immutable unless invalidated.
type CryptographicStamp struct {
	CSID          id.StampID       `json:"csid"`
	IRNValue      string           `json:"irn_value"`
	Algorithm     string           `json:"algorithm"`
	Digest        string           `json:"digest"`
	Signature     []byte           `json:"signature"`
	CertificateID id.CertificateID `json:"certificate_id"`
	IssuedAt      time.Time        `json:"issued_at"`
	QRPayload     string           `json:"qr_payload"`
	Invalidated   bool             `json:"invalidated"`
}

// StampResult flags idempotent replays the same way reference generation does.
type StampResult struct {
	Stamp    CryptographicStamp `json:"stamp"`
	Existing bool               `json:"existing"`
}

// VerificationResult is the read-only outcome of a verification pass.
type VerificationResult struct {
	IsValid           bool               `json:"is_valid"`
	Reason            string             `json:"reason,omitempty"`
	CertificateStatus certmodels.Status  `json:"certificate_status,omitempty"`
	VerifiedAt        time.Time          `json:"verified_at"`
}
