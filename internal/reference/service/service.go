// Package service implements the reference generator: deterministic content
// hashing, duplicate suppression and IRN issuance.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"log/slog"
	"time"

	invoicemodels "stampgate/internal/invoice/models"
	"stampgate/internal/reference/metrics"
	"stampgate/internal/reference/models"
	"stampgate/internal/reference/sequence"
	"stampgate/internal/reference/store"
	dErrors "stampgate/pkg/domain-errors"
	audit "stampgate/pkg/platform/audit"
	"stampgate/pkg/platform/sentinel"
)

// AuditPublisher is the slice of the audit publisher this service needs.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	index     store.DuplicateIndex
	sequences sequence.Allocator

	logger  *slog.Logger
	metrics *metrics.Metrics
	auditor AuditPublisher
	now     func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.auditor = publisher }
}

// WithClock overrides the time source in tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(index store.DuplicateIndex, sequences sequence.Allocator, opts ...Option) (*Service, error) {
	if index == nil {
		return nil, fmt.Errorf("duplicate index is required")
	}
	if sequences == nil {
		return nil, fmt.Errorf("sequence allocator is required")
	}

	svc := &Service{
		index:     index,
		sequences: sequences,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Generate issues an IRN for the invoice, or returns the existing record when
// an invoice with identical normalized content was processed before. Safe
// under concurrent callers: the duplicate index's atomic check-and-insert
// decides the winner, and losers return the winner's record.
func (s *Service) Generate(ctx context.Context, invoice invoicemodels.NormalizedInvoice) (models.GenerateResult, error) {
	if err := invoice.Validate(); err != nil {
		return models.GenerateResult{}, err
	}

	contentHash := invoice.ContentHash()

	// Fast path: already issued.
	if existing, err := s.index.Get(ctx, contentHash); err == nil {
		s.observeDuplicate(ctx, existing)
		return models.GenerateResult{Record: existing, Duplicate: true}, nil
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return models.GenerateResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "duplicate index lookup failed")
	}

	seq, err := s.sequences.Next(ctx)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeExhausted) {
			return models.GenerateResult{}, err
		}
		return models.GenerateResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "sequence allocation failed")
	}

	value := formatIRN(seq, contentHash)
	record := models.ReferenceRecord{
		Value:            value,
		VerificationCode: verificationCode(contentHash, value),
		ContentHash:      contentHash,
		SourceInvoiceID:  invoice.SourceInvoiceID,
		CreatedAt:        s.now().UTC(),
	}

	winner, inserted, err := s.index.PutIfAbsent(ctx, record)
	if err != nil {
		return models.GenerateResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "duplicate index insert failed")
	}
	if !inserted {
		// Lost the race; the allocated sequence number is abandoned, which
		// leaves a gap but keeps values unique.
		s.observeDuplicate(ctx, winner)
		return models.GenerateResult{Record: winner, Duplicate: true}, nil
	}

	if s.metrics != nil {
		s.metrics.IncrementIssued()
	}
	if s.auditor != nil {
		_ = s.auditor.Emit(ctx, audit.Event{
			Action:  string(audit.EventReferenceIssued),
			Subject: record.Value,
			Detail: map[string]string{
				"content_hash":      record.ContentHash,
				"source_invoice_id": record.SourceInvoiceID,
			},
		})
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "reference issued",
			"irn", record.Value,
			"content_hash", record.ContentHash,
		)
	}
	return models.GenerateResult{Record: record, Duplicate: false}, nil
}

// GetByContentHash serves lookups for dashboards; not part of issuance.
func (s *Service) GetByContentHash(ctx context.Context, contentHash string) (models.ReferenceRecord, error) {
	record, err := s.index.Get(ctx, contentHash)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.ReferenceRecord{}, dErrors.New(dErrors.CodeNotFound, "reference not found")
		}
		return models.ReferenceRecord{}, dErrors.Wrap(err, dErrors.CodeInternal, "duplicate index lookup failed")
	}
	return record, nil
}

func (s *Service) observeDuplicate(ctx context.Context, record models.ReferenceRecord) {
	if s.metrics != nil {
		s.metrics.IncrementDuplicateHits()
	}
	if s.auditor != nil {
		_ = s.auditor.Emit(ctx, audit.Event{
			Action:  string(audit.EventReferenceDuplicate),
			Subject: record.Value,
			Detail:  map[string]string{"content_hash": record.ContentHash},
		})
	}
}

// formatIRN renders the fixed-length value: "IRN", ten digits of sequence,
// then a four-character checksum over the content hash and sequence so a
// mistyped value fails fast at the verifier.
func formatIRN(seq uint64, contentHash string) string {
	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], seq)
	sum := crc32.ChecksumIEEE(append([]byte(contentHash), seqBytes[:]...))

	var sumBytes [4]byte
	binary.BigEndian.PutUint32(sumBytes[:], sum)
	check := base32.StdEncoding.EncodeToString(sumBytes[:])[:4]

	return fmt.Sprintf("IRN%010d%s", seq, check)
}

// verificationCode derives the eight-digit human confirmation code from the
// content hash and the issued value.
func verificationCode(contentHash, value string) string {
	sum := sha256.Sum256([]byte(contentHash + value))
	n := binary.BigEndian.Uint32(sum[:4]) % 100_000_000
	return fmt.Sprintf("%08d", n)
}
