// Package service owns the certificate lifecycle: request, issuance,
// activation with supersession, and the background expiry sweep.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"stampgate/internal/certificate/metrics"
	"stampgate/internal/certificate/models"
	"stampgate/internal/certificate/store"
	"stampgate/internal/signing"
	id "stampgate/pkg/domain"
	dErrors "stampgate/pkg/domain-errors"
	audit "stampgate/pkg/platform/audit"
	"stampgate/pkg/platform/sentinel"
)

// AuditPublisher is the slice of the audit publisher this service needs.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	store     store.Store
	keyHolder signing.KeyHolder

	expiryWindow time.Duration

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

func WithExpiryWindow(window time.Duration) Option {
	return func(s *Service) { s.expiryWindow = window }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(certs store.Store, keyHolder signing.KeyHolder, opts ...Option) (*Service, error) {
	if certs == nil {
		return nil, fmt.Errorf("certificate store is required")
	}
	if keyHolder == nil {
		return nil, fmt.Errorf("key holder is required")
	}

	svc := &Service{
		store:        certs,
		keyHolder:    keyHolder,
		expiryWindow: 30 * 24 * time.Hour,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Request validates the subject, has the key-holder generate a key pair under
// the new certificate's handle, and records the certificate as requested.
// The private key never leaves the key-holder.
func (s *Service) Request(ctx context.Context, subject models.SubjectInfo, keyAlgorithm string, keySize int) (models.Certificate, error) {
	if err := validateSubject(subject); err != nil {
		return models.Certificate{}, err
	}

	certID := id.NewCertificateID()
	publicKey, err := s.keyHolder.GenerateKey(ctx, certID.String(), keyAlgorithm)
	if err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeBadRequest {
			return models.Certificate{}, err
		}
		return models.Certificate{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "key generation failed")
	}

	now := s.now().UTC()
	cert := models.Certificate{
		ID:           certID,
		Subject:      subject,
		PublicKey:    publicKey,
		KeyAlgorithm: keyAlgorithm,
		KeySize:      keySize,
		Status:       models.StatusRequested,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, cert); err != nil {
		return models.Certificate{}, dErrors.Wrap(err, dErrors.CodeInternal, "store certificate failed")
	}

	s.emit(ctx, audit.EventCertificateRequested, cert.ID, nil)
	return cert, nil
}

// MarkIssued records the issuing authority's response: requested → issued
// with validity bounds.
func (s *Service) MarkIssued(ctx context.Context, certID id.CertificateID, issuedAt, expiresAt time.Time) (models.Certificate, error) {
	cert, err := s.get(ctx, certID)
	if err != nil {
		return models.Certificate{}, err
	}
	if expiresAt.Before(issuedAt) {
		return models.Certificate{}, dErrors.New(dErrors.CodeBadRequest, "expires_at precedes issued_at")
	}

	cert, err = s.transition(ctx, cert, models.StatusIssued)
	if err != nil {
		return models.Certificate{}, err
	}
	cert.IssuedAt = issuedAt.UTC()
	cert.ExpiresAt = expiresAt.UTC()
	if err := s.store.Update(ctx, cert); err != nil {
		return models.Certificate{}, dErrors.Wrap(err, dErrors.CodeInternal, "update certificate failed")
	}
	return cert, nil
}

// Activate makes an issued certificate the current one; any previous active
// certificate becomes superseded and its stamps no longer verify.
func (s *Service) Activate(ctx context.Context, certID id.CertificateID) (models.Certificate, error) {
	cert, err := s.get(ctx, certID)
	if err != nil {
		return models.Certificate{}, err
	}

	cert, err = s.transition(ctx, cert, models.StatusActive)
	if err != nil {
		return models.Certificate{}, err
	}
	if err := s.store.Update(ctx, cert); err != nil {
		return models.Certificate{}, dErrors.Wrap(err, dErrors.CodeInternal, "update certificate failed")
	}

	previousID, hadPrevious, err := s.store.SwapActive(ctx, certID)
	if err != nil {
		return models.Certificate{}, dErrors.Wrap(err, dErrors.CodeInternal, "swap active pointer failed")
	}
	if hadPrevious && previousID != certID {
		if err := s.supersede(ctx, previousID); err != nil {
			return models.Certificate{}, err
		}
	}

	if s.metrics != nil {
		s.metrics.IncrementActivations()
	}
	s.emit(ctx, audit.EventCertificateActivated, cert.ID, nil)
	return cert, nil
}

// Revoke terminates a certificate from any live state.
func (s *Service) Revoke(ctx context.Context, certID id.CertificateID) (models.Certificate, error) {
	cert, err := s.get(ctx, certID)
	if err != nil {
		return models.Certificate{}, err
	}
	cert, err = s.transition(ctx, cert, models.StatusRevoked)
	if err != nil {
		return models.Certificate{}, err
	}
	if err := s.store.Update(ctx, cert); err != nil {
		return models.Certificate{}, dErrors.Wrap(err, dErrors.CodeInternal, "update certificate failed")
	}
	return cert, nil
}

// GetActive returns the certificate behind the current-active pointer while
// it is still usable. Expiring is a warning, not a block; revocation or
// supersession of the pointer target surfaces as no active certificate.
func (s *Service) GetActive(ctx context.Context) (models.Certificate, error) {
	cert, err := s.store.GetActive(ctx)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.Certificate{}, dErrors.New(dErrors.CodeNotFound, "no active certificate")
		}
		return models.Certificate{}, dErrors.Wrap(err, dErrors.CodeInternal, "read active certificate failed")
	}
	if !cert.Status.Usable() {
		return models.Certificate{}, dErrors.New(dErrors.CodeNotFound, "no active certificate")
	}
	return cert, nil
}

// Get returns one certificate by id.
func (s *Service) Get(ctx context.Context, certID id.CertificateID) (models.Certificate, error) {
	return s.get(ctx, certID)
}

// SweepOnce flags certificates inside the expiry window as expiring and
// returns how many are currently in that state. Non-fatal: the flagged
// certificate keeps signing until rotation.
func (s *Service) SweepOnce(ctx context.Context) (int, error) {
	certs, err := s.store.List(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "list certificates failed")
	}

	deadline := s.now().UTC().Add(s.expiryWindow)
	expiring := 0
	for _, cert := range certs {
		if cert.Status == models.StatusExpiring {
			expiring++
			continue
		}
		if cert.Status != models.StatusActive || cert.ExpiresAt.IsZero() || cert.ExpiresAt.After(deadline) {
			continue
		}
		cert, err = s.transition(ctx, cert, models.StatusExpiring)
		if err != nil {
			return 0, err
		}
		if err := s.store.Update(ctx, cert); err != nil {
			return 0, dErrors.Wrap(err, dErrors.CodeInternal, "update certificate failed")
		}
		expiring++
		s.emit(ctx, audit.EventCertificateExpiring, cert.ID, map[string]string{
			"expires_at": cert.ExpiresAt.Format(time.RFC3339),
		})
		if s.logger != nil {
			s.logger.WarnContext(ctx, "certificate expiring",
				"certificate_id", cert.ID.String(),
				"expires_at", cert.ExpiresAt,
			)
		}
	}

	if s.metrics != nil {
		s.metrics.SetExpiring(expiring)
	}
	return expiring, nil
}

// RunExpirySweep runs SweepOnce on the given interval until ctx is done.
func (s *Service) RunExpirySweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && s.logger != nil {
				s.logger.ErrorContext(ctx, "expiry sweep failed", "error", err)
			}
		}
	}
}

func (s *Service) get(ctx context.Context, certID id.CertificateID) (models.Certificate, error) {
	cert, err := s.store.Get(ctx, certID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.Certificate{}, dErrors.New(dErrors.CodeNotFound, "certificate not found")
		}
		return models.Certificate{}, dErrors.Wrap(err, dErrors.CodeInternal, "read certificate failed")
	}
	return cert, nil
}

// transition applies one lifecycle move, recording it in the history.
func (s *Service) transition(_ context.Context, cert models.Certificate, to models.Status) (models.Certificate, error) {
	if !models.CanTransition(cert.Status, to) {
		return models.Certificate{}, dErrors.Newf(dErrors.CodeInvalidTransition,
			"certificate cannot move from %s to %s", cert.Status, to)
	}
	now := s.now().UTC()
	cert.History = append(cert.History, models.StatusChange{From: cert.Status, To: to, At: now})
	cert.Status = to
	cert.UpdatedAt = now
	return cert, nil
}

func (s *Service) supersede(ctx context.Context, certID id.CertificateID) error {
	previous, err := s.get(ctx, certID)
	if err != nil {
		return err
	}
	previous, err = s.transition(ctx, previous, models.StatusSuperseded)
	if err != nil {
		return err
	}
	if err := s.store.Update(ctx, previous); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "supersede certificate failed")
	}
	s.emit(ctx, audit.EventCertificateSuperseded, previous.ID, nil)
	return nil
}

func (s *Service) emit(ctx context.Context, name audit.EventName, certID id.CertificateID, detail map[string]string) {
	if s.auditor == nil {
		return
	}
	_ = s.auditor.Emit(ctx, audit.Event{
		Action:  string(name),
		Subject: certID.String(),
		Detail:  detail,
	})
}

func validateSubject(subject models.SubjectInfo) error {
	switch {
	case strings.TrimSpace(subject.CommonName) == "":
		return dErrors.New(dErrors.CodeBadRequest, "common_name is required")
	case strings.TrimSpace(subject.Organization) == "":
		return dErrors.New(dErrors.CodeBadRequest, "organization is required")
	case len(strings.TrimSpace(subject.Country)) != 2:
		return dErrors.New(dErrors.CodeBadRequest, "country must be a 2-letter code")
	}
	return nil
}
