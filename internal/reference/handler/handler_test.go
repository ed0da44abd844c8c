package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	invoicemodels "stampgate/internal/invoice/models"
	"stampgate/internal/reference/models"
	dErrors "stampgate/pkg/domain-errors"
)

type mockService struct {
	result models.GenerateResult
	err    error
}

func (m *mockService) Generate(context.Context, invoicemodels.NormalizedInvoice) (models.GenerateResult, error) {
	return m.result, m.err
}

func (m *mockService) GetByContentHash(context.Context, string) (models.ReferenceRecord, error) {
	return m.result.Record, m.err
}

func newServer(svc *mockService) *httptest.Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	New(svc, logger).Register(r)
	return httptest.NewServer(r)
}

func invoiceBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(invoicemodels.NormalizedInvoice{
		SourceInvoiceID:  "INV-1",
		SupplierTaxID:    "310122393500003",
		CustomerTaxID:    "310175397400003",
		Currency:         "SAR",
		IssueDate:        time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		DocumentTypeCode: "388",
	})
	require.NoError(t, err)
	return body
}

func TestHandleGenerate(t *testing.T) {
	t.Run("fresh issue answers 201", func(t *testing.T) {
		svc := &mockService{result: models.GenerateResult{
			Record: models.ReferenceRecord{Value: "IRN0000000001ABCD"},
		}}
		srv := newServer(svc)
		defer srv.Close()

		resp, err := http.Post(srv.URL+"/references", "application/json", bytes.NewReader(invoiceBody(t)))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		var got generateResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		require.Equal(t, "IRN0000000001ABCD", got.Record.Value)
		require.False(t, got.Duplicate)
	})

	t.Run("duplicate hit answers 200", func(t *testing.T) {
		svc := &mockService{result: models.GenerateResult{
			Record:    models.ReferenceRecord{Value: "IRN0000000001ABCD"},
			Duplicate: true,
		}}
		srv := newServer(svc)
		defer srv.Close()

		resp, err := http.Post(srv.URL+"/references", "application/json", bytes.NewReader(invoiceBody(t)))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("invalid invoice answers 400", func(t *testing.T) {
		svc := &mockService{err: dErrors.New(dErrors.CodeBadRequest, "currency must be a 3-letter code")}
		srv := newServer(svc)
		defer srv.Close()

		resp, err := http.Post(srv.URL+"/references", "application/json", bytes.NewReader(invoiceBody(t)))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var errBody map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&errBody))
		require.Equal(t, "bad_request", errBody["error"])
		require.Contains(t, errBody["error_description"], "currency")
	})

	t.Run("malformed body answers 400", func(t *testing.T) {
		srv := newServer(&mockService{})
		defer srv.Close()

		resp, err := http.Post(srv.URL+"/references", "application/json", bytes.NewReader([]byte("{")))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}
