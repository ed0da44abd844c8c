package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	certmodels "stampgate/internal/certificate/models"
	certservice "stampgate/internal/certificate/service"
	certstore "stampgate/internal/certificate/store"
	invoicemodels "stampgate/internal/invoice/models"
	refmodels "stampgate/internal/reference/models"
	"stampgate/internal/signing"
	"stampgate/internal/signing/keyholder"
	"stampgate/internal/stamping/store"
	dErrors "stampgate/pkg/domain-errors"
)

type StampingServiceSuite struct {
	suite.Suite
	stamps  *store.InMemoryStore
	certs   *certservice.Service
	service *Service
}

func TestStampingServiceSuite(t *testing.T) {
	suite.Run(t, new(StampingServiceSuite))
}

func (s *StampingServiceSuite) SetupTest() {
	s.stamps = store.NewInMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	holder := keyholder.NewInMemory()

	var err error
	s.certs, err = certservice.New(certstore.NewInMemory(), holder)
	s.Require().NoError(err)

	s.service, err = New(s.stamps, s.certs, holder, WithLogger(logger))
	s.Require().NoError(err)
}

func (s *StampingServiceSuite) SetupSubTest() {
	s.SetupTest()
}

func (s *StampingServiceSuite) activateCertificate() certmodels.Certificate {
	ctx := context.Background()
	cert, err := s.certs.Request(ctx, certmodels.SubjectInfo{
		CommonName:   "acme-einvoicing",
		Organization: "ACME Trading LLC",
		Country:      "SA",
	}, signing.AlgorithmEd25519, 256)
	s.Require().NoError(err)
	cert, err = s.certs.MarkIssued(ctx, cert.ID, time.Now().UTC(), time.Now().Add(365*24*time.Hour))
	s.Require().NoError(err)
	cert, err = s.certs.Activate(ctx, cert.ID)
	s.Require().NoError(err)
	return cert
}

func invoice() invoicemodels.NormalizedInvoice {
	return invoicemodels.NormalizedInvoice{
		SourceInvoiceID:  "INV-2026-000123",
		SupplierTaxID:    "310122393500003",
		CustomerTaxID:    "310175397400003",
		Currency:         "SAR",
		IssueDate:        time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		DocumentTypeCode: "388",
		Lines: []invoicemodels.LineTotal{
			{Amount: decimal.RequireFromString("1150.00")},
			{Amount: decimal.RequireFromString("287.50")},
		},
	}
}

func reference(inv invoicemodels.NormalizedInvoice) refmodels.ReferenceRecord {
	return refmodels.ReferenceRecord{
		Value:            "IRN0000000042QZXW",
		VerificationCode: "48210974",
		ContentHash:      inv.ContentHash(),
		SourceInvoiceID:  inv.SourceInvoiceID,
		CreatedAt:        time.Now().UTC(),
	}
}

func (s *StampingServiceSuite) TestStamp() {
	ctx := context.Background()

	s.Run("issues a stamp under the active certificate", func() {
		cert := s.activateCertificate()
		inv := invoice()

		result, err := s.service.Stamp(ctx, inv, reference(inv))
		s.Require().NoError(err)
		s.False(result.Existing)
		s.Equal(cert.ID, result.Stamp.CertificateID)
		s.Equal(signing.AlgorithmEd25519, result.Stamp.Algorithm)
		s.NotEmpty(result.Stamp.Signature)
		s.NotEmpty(result.Stamp.QRPayload)
	})

	s.Run("second stamp for the same IRN returns the existing one", func() {
		s.activateCertificate()
		inv := invoice()
		ref := reference(inv)

		first, err := s.service.Stamp(ctx, inv, ref)
		s.Require().NoError(err)
		second, err := s.service.Stamp(ctx, inv, ref)
		s.Require().NoError(err)
		s.True(second.Existing)
		s.Equal(first.Stamp.CSID, second.Stamp.CSID)
	})

	s.Run("no active certificate is fatal", func() {
		inv := invoice()
		_, err := s.service.Stamp(ctx, inv, reference(inv))
		s.True(dErrors.Is(err, dErrors.CodeNotFound))
	})

	s.Run("invoice content must match the reference record", func() {
		s.activateCertificate()
		inv := invoice()
		ref := reference(inv)
		inv.Currency = "USD"

		_, err := s.service.Stamp(ctx, inv, ref)
		s.True(dErrors.Is(err, dErrors.CodeBadRequest))
	})
}

func (s *StampingServiceSuite) TestVerify() {
	ctx := context.Background()

	s.Run("round trip verifies", func() {
		s.activateCertificate()
		inv := invoice()

		result, err := s.service.Stamp(ctx, inv, reference(inv))
		s.Require().NoError(err)

		verdict, err := s.service.Verify(ctx, inv, result.Stamp)
		s.Require().NoError(err)
		s.True(verdict.IsValid)
		s.Equal(certmodels.StatusActive, verdict.CertificateStatus)
	})

	s.Run("any mutation after stamping fails verification", func() {
		s.activateCertificate()
		inv := invoice()

		result, err := s.service.Stamp(ctx, inv, reference(inv))
		s.Require().NoError(err)

		tampered := inv
		tampered.Lines = []invoicemodels.LineTotal{
			{Amount: decimal.RequireFromString("1150.00")},
			{Amount: decimal.RequireFromString("287.51")},
		}
		verdict, err := s.service.Verify(ctx, tampered, result.Stamp)
		s.Require().NoError(err)
		s.False(verdict.IsValid)
		s.Equal("digest_mismatch", verdict.Reason)
	})

	s.Run("tampered signature fails verification", func() {
		s.activateCertificate()
		inv := invoice()

		result, err := s.service.Stamp(ctx, inv, reference(inv))
		s.Require().NoError(err)

		result.Stamp.Signature[0] ^= 0xFF
		verdict, err := s.service.Verify(ctx, inv, result.Stamp)
		s.Require().NoError(err)
		s.False(verdict.IsValid)
		s.Equal("signature_invalid", verdict.Reason)
	})

	s.Run("revoked certificate fails verification", func() {
		cert := s.activateCertificate()
		inv := invoice()

		result, err := s.service.Stamp(ctx, inv, reference(inv))
		s.Require().NoError(err)

		_, err = s.certs.Revoke(ctx, cert.ID)
		s.Require().NoError(err)

		verdict, err := s.service.Verify(ctx, inv, result.Stamp)
		s.Require().NoError(err)
		s.False(verdict.IsValid)
		s.Equal("certificate_not_usable", verdict.Reason)
		s.Equal(certmodels.StatusRevoked, verdict.CertificateStatus)
	})

	s.Run("superseded certificate fails verification", func() {
		s.activateCertificate()
		inv := invoice()

		result, err := s.service.Stamp(ctx, inv, reference(inv))
		s.Require().NoError(err)

		// Rotation: a new certificate supersedes the signing one.
		s.activateCertificate()

		verdict, err := s.service.Verify(ctx, inv, result.Stamp)
		s.Require().NoError(err)
		s.False(verdict.IsValid)
		s.Equal("certificate_not_usable", verdict.Reason)
	})
}

func (s *StampingServiceSuite) TestVerifyStored() {
	ctx := context.Background()

	s.Run("pre-flight passes without the invoice body", func() {
		s.activateCertificate()
		inv := invoice()

		result, err := s.service.Stamp(ctx, inv, reference(inv))
		s.Require().NoError(err)

		verdict, err := s.service.VerifyStored(ctx, result.Stamp)
		s.Require().NoError(err)
		s.True(verdict.IsValid)
	})

	s.Run("invalidated stamp fails pre-flight", func() {
		s.activateCertificate()
		inv := invoice()

		result, err := s.service.Stamp(ctx, inv, reference(inv))
		s.Require().NoError(err)
		s.Require().NoError(s.service.Invalidate(ctx, result.Stamp.CSID))

		stamp, err := s.service.GetByCSID(ctx, result.Stamp.CSID)
		s.Require().NoError(err)
		verdict, err := s.service.VerifyStored(ctx, stamp)
		s.Require().NoError(err)
		s.False(verdict.IsValid)
		s.Equal("stamp_invalidated", verdict.Reason)
	})
}

func (s *StampingServiceSuite) TestInvalidateFreesTheIRN() {
	ctx := context.Background()
	s.activateCertificate()
	inv := invoice()
	ref := reference(inv)

	first, err := s.service.Stamp(ctx, inv, ref)
	s.Require().NoError(err)
	s.Require().NoError(s.service.Invalidate(ctx, first.Stamp.CSID))

	replacement, err := s.service.Stamp(ctx, inv, ref)
	s.Require().NoError(err)
	s.False(replacement.Existing)
	s.NotEqual(first.Stamp.CSID, replacement.Stamp.CSID)
}
