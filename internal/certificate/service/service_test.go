package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"stampgate/internal/certificate/models"
	"stampgate/internal/certificate/store"
	"stampgate/internal/signing"
	"stampgate/internal/signing/keyholder"
	dErrors "stampgate/pkg/domain-errors"
)

type CertificateServiceSuite struct {
	suite.Suite
	store   *store.InMemoryStore
	service *Service
}

func TestCertificateServiceSuite(t *testing.T) {
	suite.Run(t, new(CertificateServiceSuite))
}

func (s *CertificateServiceSuite) SetupTest() {
	s.store = store.NewInMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var err error
	s.service, err = New(s.store, keyholder.NewInMemory(),
		WithLogger(logger),
		WithExpiryWindow(30*24*time.Hour),
	)
	s.Require().NoError(err)
}

func subject() models.SubjectInfo {
	return models.SubjectInfo{
		CommonName:   "acme-einvoicing",
		Organization: "ACME Trading LLC",
		Country:      "SA",
	}
}

// requestActive walks a certificate to active for tests that need one.
func (s *CertificateServiceSuite) requestActive(expiresAt time.Time) models.Certificate {
	ctx := context.Background()
	cert, err := s.service.Request(ctx, subject(), signing.AlgorithmEd25519, 256)
	s.Require().NoError(err)
	cert, err = s.service.MarkIssued(ctx, cert.ID, time.Now().UTC(), expiresAt)
	s.Require().NoError(err)
	cert, err = s.service.Activate(ctx, cert.ID)
	s.Require().NoError(err)
	return cert
}

func (s *CertificateServiceSuite) TestRequest() {
	ctx := context.Background()

	s.Run("returns a requested certificate with a public key", func() {
		cert, err := s.service.Request(ctx, subject(), signing.AlgorithmEd25519, 256)
		s.Require().NoError(err)
		s.Equal(models.StatusRequested, cert.Status)
		s.NotEmpty(cert.PublicKey)
	})

	s.Run("mandatory subject fields", func() {
		bad := subject()
		bad.CommonName = ""
		_, err := s.service.Request(ctx, bad, signing.AlgorithmEd25519, 256)
		s.True(dErrors.Is(err, dErrors.CodeBadRequest))

		bad = subject()
		bad.Country = "KSA"
		_, err = s.service.Request(ctx, bad, signing.AlgorithmEd25519, 256)
		s.True(dErrors.Is(err, dErrors.CodeBadRequest))
	})

	s.Run("unsupported algorithm rejected", func() {
		_, err := s.service.Request(ctx, subject(), "RSA-512", 512)
		s.True(dErrors.Is(err, dErrors.CodeBadRequest))
	})
}

func (s *CertificateServiceSuite) TestActivate() {
	ctx := context.Background()

	s.Run("issued certificate becomes active", func() {
		cert := s.requestActive(time.Now().Add(365 * 24 * time.Hour))
		s.Equal(models.StatusActive, cert.Status)

		active, err := s.service.GetActive(ctx)
		s.Require().NoError(err)
		s.Equal(cert.ID, active.ID)
	})

	s.Run("activating a requested certificate is an invalid transition", func() {
		cert, err := s.service.Request(ctx, subject(), signing.AlgorithmEd25519, 256)
		s.Require().NoError(err)

		_, err = s.service.Activate(ctx, cert.ID)
		s.True(dErrors.Is(err, dErrors.CodeInvalidTransition))
	})

	s.Run("new activation supersedes the previous active", func() {
		first := s.requestActive(time.Now().Add(365 * 24 * time.Hour))
		second := s.requestActive(time.Now().Add(2 * 365 * 24 * time.Hour))

		active, err := s.service.GetActive(ctx)
		s.Require().NoError(err)
		s.Equal(second.ID, active.ID)

		superseded, err := s.service.Get(ctx, first.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusSuperseded, superseded.Status)
	})
}

func (s *CertificateServiceSuite) TestGetActive() {
	ctx := context.Background()

	s.Run("no active certificate is fatal for callers", func() {
		_, err := s.service.GetActive(ctx)
		s.True(dErrors.Is(err, dErrors.CodeNotFound))
	})

	s.Run("revoked pointer target is not active", func() {
		cert := s.requestActive(time.Now().Add(365 * 24 * time.Hour))
		_, err := s.service.Revoke(ctx, cert.ID)
		s.Require().NoError(err)

		_, err = s.service.GetActive(ctx)
		s.True(dErrors.Is(err, dErrors.CodeNotFound))
	})
}

func (s *CertificateServiceSuite) TestExpirySweep() {
	ctx := context.Background()

	s.Run("certificate inside the window moves to expiring", func() {
		cert := s.requestActive(time.Now().Add(10 * 24 * time.Hour))

		expiring, err := s.service.SweepOnce(ctx)
		s.Require().NoError(err)
		s.Equal(1, expiring)

		swept, err := s.service.Get(ctx, cert.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusExpiring, swept.Status)

		// Expiring is non-blocking: the certificate is still the active one.
		active, err := s.service.GetActive(ctx)
		s.Require().NoError(err)
		s.Equal(cert.ID, active.ID)
	})

	s.Run("certificate outside the window is untouched", func() {
		cert := s.requestActive(time.Now().Add(365 * 24 * time.Hour))

		_, err := s.service.SweepOnce(ctx)
		s.Require().NoError(err)

		kept, err := s.service.Get(ctx, cert.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusActive, kept.Status)
	})

	s.Run("sweep is idempotent", func() {
		s.requestActive(time.Now().Add(10 * 24 * time.Hour))

		first, err := s.service.SweepOnce(ctx)
		s.Require().NoError(err)
		second, err := s.service.SweepOnce(ctx)
		s.Require().NoError(err)
		s.Equal(first, second)
	})
}

func (s *CertificateServiceSuite) TestHistoryRecordsTransitions() {
	cert := s.requestActive(time.Now().Add(365 * 24 * time.Hour))

	stored, err := s.service.Get(context.Background(), cert.ID)
	s.Require().NoError(err)
	s.Require().Len(stored.History, 2)
	s.Equal(models.StatusRequested, stored.History[0].From)
	s.Equal(models.StatusIssued, stored.History[0].To)
	s.Equal(models.StatusActive, stored.History[1].To)
}
