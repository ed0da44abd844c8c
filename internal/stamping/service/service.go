// Package service implements the stamping and verification engines: digest
// computation, signing through the key-holder, QR payload construction, and
// the independent verification path used both as a debugging tool and as the
// transmission pre-flight.
package service

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	certmodels "stampgate/internal/certificate/models"
	invoicemodels "stampgate/internal/invoice/models"
	refmodels "stampgate/internal/reference/models"
	"stampgate/internal/signing"
	"stampgate/internal/stamping/models"
	"stampgate/internal/stamping/store"
	id "stampgate/pkg/domain"
	dErrors "stampgate/pkg/domain-errors"
	audit "stampgate/pkg/platform/audit"
	"stampgate/pkg/platform/sentinel"
)

// CertificateDirectory is the slice of the certificate service the engines
// need: the fresh active certificate for stamping, lookup by id for
// verification. Callers never cache the active certificate.
type CertificateDirectory interface {
	GetActive(ctx context.Context) (certmodels.Certificate, error)
	Get(ctx context.Context, certID id.CertificateID) (certmodels.Certificate, error)
}

// AuditPublisher is the slice of the audit publisher this service needs.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	stamps    store.Store
	certs     CertificateDirectory
	keyHolder signing.KeyHolder

	logger  *slog.Logger
	auditor AuditPublisher
	now     func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.auditor = publisher }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(stamps store.Store, certs CertificateDirectory, keyHolder signing.KeyHolder, opts ...Option) (*Service, error) {
	if stamps == nil {
		return nil, fmt.Errorf("stamp store is required")
	}
	if certs == nil {
		return nil, fmt.Errorf("certificate directory is required")
	}
	if keyHolder == nil {
		return nil, fmt.Errorf("key holder is required")
	}

	svc := &Service{
		stamps:    stamps,
		certs:     certs,
		keyHolder: keyHolder,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// qrPayload is the compact scannable shape: IRN, human verification code and
// a signature fingerprint, base64-encoded for embedding in a QR code.
type qrPayload struct {
	IRN  string `json:"irn"`
	Code string `json:"code"`
	FP   string `json:"fp"`
}

// Stamp signs the invoice digest under the active certificate. Exactly one
// live stamp exists per IRN: a repeat request returns the existing stamp
// unchanged. Signing failures are returned to the caller unretried; delivery
// retry policy belongs to the transmission engine alone.
func (s *Service) Stamp(ctx context.Context, invoice invoicemodels.NormalizedInvoice, ref refmodels.ReferenceRecord) (models.StampResult, error) {
	if err := invoice.Validate(); err != nil {
		return models.StampResult{}, err
	}
	if invoice.ContentHash() != ref.ContentHash {
		return models.StampResult{}, dErrors.New(dErrors.CodeBadRequest, "invoice content does not match reference record")
	}

	if existing, err := s.stamps.GetLiveByIRN(ctx, ref.Value); err == nil {
		return models.StampResult{Stamp: existing, Existing: true}, nil
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return models.StampResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "stamp lookup failed")
	}

	cert, err := s.certs.GetActive(ctx)
	if err != nil {
		return models.StampResult{}, err
	}

	digest := computeDigest(invoice, ref.Value)
	signature, err := s.keyHolder.Sign(ctx, cert.ID.String(), digest)
	if err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeUnavailable {
			return models.StampResult{}, err
		}
		return models.StampResult{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "signing backend failed")
	}

	// Integrity self-check before anything is persisted. A failure here is a
	// programming fault, not a caller problem.
	if !ed25519.Verify(ed25519.PublicKey(cert.PublicKey), digest, signature) {
		return models.StampResult{}, dErrors.New(dErrors.CodeInternal, "digest signature self-check failed")
	}

	stamp := models.CryptographicStamp{
		CSID:          id.NewStampID(),
		IRNValue:      ref.Value,
		Algorithm:     cert.KeyAlgorithm,
		Digest:        hex.EncodeToString(digest),
		Signature:     signature,
		CertificateID: cert.ID,
		IssuedAt:      s.now().UTC(),
		QRPayload:     encodeQRPayload(ref, signature),
	}

	if err := s.stamps.Create(ctx, stamp); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// Lost a concurrent race for the same IRN; the winner's stamp
			// is the one that counts.
			existing, getErr := s.stamps.GetLiveByIRN(ctx, ref.Value)
			if getErr != nil {
				return models.StampResult{}, dErrors.Wrap(getErr, dErrors.CodeInternal, "stamp lookup failed")
			}
			return models.StampResult{Stamp: existing, Existing: true}, nil
		}
		return models.StampResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "persist stamp failed")
	}

	if s.auditor != nil {
		_ = s.auditor.Emit(ctx, audit.Event{
			Action:  string(audit.EventStampIssued),
			Subject: stamp.IRNValue,
			Detail: map[string]string{
				"csid":           stamp.CSID.String(),
				"certificate_id": stamp.CertificateID.String(),
			},
		})
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "stamp issued",
			"csid", stamp.CSID.String(),
			"irn", stamp.IRNValue,
		)
	}
	return models.StampResult{Stamp: stamp, Existing: false}, nil
}

// Verify recomputes the digest from the invoice and checks the stamp against
// it. Read-only and side-effect-free; infrastructure failures are the only
// errors, every verdict is carried in the result.
func (s *Service) Verify(ctx context.Context, invoice invoicemodels.NormalizedInvoice, stamp models.CryptographicStamp) (models.VerificationResult, error) {
	expected := hex.EncodeToString(computeDigest(invoice, stamp.IRNValue))
	if expected != stamp.Digest {
		return s.invalid("digest_mismatch", ""), nil
	}
	return s.verifySignature(ctx, stamp)
}

// VerifyStored checks the stamp against its own recorded digest. This is the
// transmission pre-flight, which runs without the invoice body.
func (s *Service) VerifyStored(ctx context.Context, stamp models.CryptographicStamp) (models.VerificationResult, error) {
	return s.verifySignature(ctx, stamp)
}

func (s *Service) verifySignature(ctx context.Context, stamp models.CryptographicStamp) (models.VerificationResult, error) {
	if stamp.Invalidated {
		return s.invalid("stamp_invalidated", ""), nil
	}

	cert, err := s.certs.Get(ctx, stamp.CertificateID)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeNotFound) {
			return s.invalid("unknown_certificate", ""), nil
		}
		return models.VerificationResult{}, err
	}
	if !cert.Status.Usable() {
		return s.invalid("certificate_not_usable", cert.Status), nil
	}

	digest, err := hex.DecodeString(stamp.Digest)
	if err != nil {
		return s.invalid("malformed_digest", cert.Status), nil
	}
	if !ed25519.Verify(ed25519.PublicKey(cert.PublicKey), digest, stamp.Signature) {
		return s.invalid("signature_invalid", cert.Status), nil
	}

	return models.VerificationResult{
		IsValid:           true,
		CertificateStatus: cert.Status,
		VerifiedAt:        s.now().UTC(),
	}, nil
}

// GetByCSID serves stamp lookups for the transmission engine and dashboards.
func (s *Service) GetByCSID(ctx context.Context, csid id.StampID) (models.CryptographicStamp, error) {
	stamp, err := s.stamps.GetByCSID(ctx, csid)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.CryptographicStamp{}, dErrors.New(dErrors.CodeNotFound, "stamp not found")
		}
		return models.CryptographicStamp{}, dErrors.Wrap(err, dErrors.CodeInternal, "stamp lookup failed")
	}
	return stamp, nil
}

// Invalidate withdraws a stamp so a replacement can be issued for its IRN.
func (s *Service) Invalidate(ctx context.Context, csid id.StampID) error {
	if err := s.stamps.Invalidate(ctx, csid); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "stamp not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "invalidate stamp failed")
	}
	if s.auditor != nil {
		_ = s.auditor.Emit(ctx, audit.Event{
			Action:  string(audit.EventStampInvalidated),
			Subject: csid.String(),
		})
	}
	return nil
}

// SignedCount feeds the statistics endpoint.
func (s *Service) SignedCount(ctx context.Context) (int64, error) {
	return s.stamps.Count(ctx)
}

func (s *Service) invalid(reason string, status certmodels.Status) models.VerificationResult {
	return models.VerificationResult{
		IsValid:           false,
		Reason:            reason,
		CertificateStatus: status,
		VerifiedAt:        s.now().UTC(),
	}
}

// computeDigest covers the canonical invoice bytes and the IRN value so a
// stamp cannot be replayed onto a different reference.
func computeDigest(invoice invoicemodels.NormalizedInvoice, irnValue string) []byte {
	h := sha256.New()
	h.Write(invoice.CanonicalBytes())
	h.Write([]byte{'|'})
	h.Write([]byte(irnValue))
	return h.Sum(nil)
}

func encodeQRPayload(ref refmodels.ReferenceRecord, signature []byte) string {
	fp := sha256.Sum256(signature)
	payload, _ := json.Marshal(qrPayload{
		IRN:  ref.Value,
		Code: ref.VerificationCode,
		FP:   hex.EncodeToString(fp[:8]),
	})
	return base64.StdEncoding.EncodeToString(payload)
}
