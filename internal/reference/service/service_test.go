package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	invoicemodels "stampgate/internal/invoice/models"
	"stampgate/internal/reference/sequence"
	"stampgate/internal/reference/store"
	dErrors "stampgate/pkg/domain-errors"
)

type ReferenceServiceSuite struct {
	suite.Suite
	index   *store.InMemoryIndex
	service *Service
}

func TestReferenceServiceSuite(t *testing.T) {
	suite.Run(t, new(ReferenceServiceSuite))
}

func (s *ReferenceServiceSuite) SetupTest() {
	s.index = store.NewInMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var err error
	s.service, err = New(s.index, sequence.NewInMemory(0), WithLogger(logger))
	s.Require().NoError(err)
}

func testInvoice(sourceID string) invoicemodels.NormalizedInvoice {
	return invoicemodels.NormalizedInvoice{
		SourceInvoiceID:  sourceID,
		SupplierTaxID:    "310122393500003",
		CustomerTaxID:    "311111111101113",
		Currency:         "SAR",
		IssueDate:        time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		DocumentTypeCode: "388",
		Lines: []invoicemodels.LineTotal{
			{Amount: decimal.RequireFromString("150.00")},
		},
	}
}

func (s *ReferenceServiceSuite) TestNew() {
	s.Run("nil index returns error", func() {
		_, err := New(nil, sequence.NewInMemory(0))
		s.Error(err)
		s.Contains(err.Error(), "duplicate index is required")
	})

	s.Run("nil allocator returns error", func() {
		_, err := New(store.NewInMemory(), nil)
		s.Error(err)
		s.Contains(err.Error(), "sequence allocator is required")
	})
}

func (s *ReferenceServiceSuite) TestGenerate() {
	ctx := context.Background()

	s.Run("issues a fixed-length alphanumeric value", func() {
		result, err := s.service.Generate(ctx, testInvoice("inv-1"))
		s.Require().NoError(err)
		s.False(result.Duplicate)
		s.Len(result.Record.Value, 17)
		s.Equal("IRN", result.Record.Value[:3])
		s.Len(result.Record.VerificationCode, 8)
		s.NotEmpty(result.Record.ContentHash)
	})

	s.Run("invalid invoice is a bad request", func() {
		inv := testInvoice("inv-2")
		inv.SupplierTaxID = ""
		_, err := s.service.Generate(ctx, inv)
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeBadRequest))
	})
}

func (s *ReferenceServiceSuite) TestGenerateIdempotent() {
	ctx := context.Background()

	first, err := s.service.Generate(ctx, testInvoice("inv-1"))
	s.Require().NoError(err)
	s.False(first.Duplicate)

	// Identical content, different submission: same record, flagged.
	second, err := s.service.Generate(ctx, testInvoice("inv-1"))
	s.Require().NoError(err)
	s.True(second.Duplicate)
	s.Equal(first.Record.Value, second.Record.Value)

	count, err := s.index.Count(ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), count)
}

func (s *ReferenceServiceSuite) TestGenerateConcurrent() {
	ctx := context.Background()
	const callers = 32

	var wg sync.WaitGroup
	values := make([]string, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := s.service.Generate(ctx, testInvoice("inv-concurrent"))
			s.NoError(err)
			values[i] = result.Record.Value
		}()
	}
	wg.Wait()

	for _, v := range values[1:] {
		s.Equal(values[0], v, "all concurrent callers must observe the same IRN")
	}

	count, err := s.index.Count(ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), count, "exactly one entry per content hash")
}

func (s *ReferenceServiceSuite) TestDistinctContentDistinctIRN() {
	ctx := context.Background()

	a, err := s.service.Generate(ctx, testInvoice("inv-a"))
	s.Require().NoError(err)

	inv := testInvoice("inv-b")
	inv.Lines[0].Amount = decimal.RequireFromString("99.00")
	b, err := s.service.Generate(ctx, inv)
	s.Require().NoError(err)

	s.NotEqual(a.Record.Value, b.Record.Value)
	s.False(b.Duplicate)
}

func (s *ReferenceServiceSuite) TestSequenceExhausted() {
	ctx := context.Background()

	svc, err := New(s.index, sequence.NewInMemory(sequence.Max))
	s.Require().NoError(err)

	_, err = svc.Generate(ctx, testInvoice("inv-last"))
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeExhausted))
}
