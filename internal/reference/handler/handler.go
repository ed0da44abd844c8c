// Package handler wires reference endpoints to the reference service.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	invoicemodels "stampgate/internal/invoice/models"
	"stampgate/internal/platform/middleware"
	"stampgate/internal/reference/models"
	"stampgate/pkg/platform/httputil"
)

// Service defines the interface for reference operations.
type Service interface {
	Generate(ctx context.Context, invoice invoicemodels.NormalizedInvoice) (models.GenerateResult, error)
	GetByContentHash(ctx context.Context, contentHash string) (models.ReferenceRecord, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts reference endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/references", h.HandleGenerate)
	r.Get("/references/{contentHash}", h.HandleGet)
}

type generateResponse struct {
	Record    models.ReferenceRecord `json:"record"`
	Duplicate bool                   `json:"duplicate"`
}

// HandleGenerate handles POST /references. A duplicate hit answers 200 with
// the prior record; a fresh issue answers 201.
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	invoice, ok := httputil.Decode[invoicemodels.NormalizedInvoice](w, r)
	if !ok {
		return
	}

	result, err := h.service.Generate(ctx, invoice)
	if err != nil {
		h.logger.WarnContext(ctx, "reference generation failed",
			"request_id", middleware.GetRequestID(ctx),
			"source_invoice_id", invoice.SourceInvoiceID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	httputil.WriteJSON(w, status, generateResponse{Record: result.Record, Duplicate: result.Duplicate})
}

// HandleGet handles GET /references/{contentHash}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	record, err := h.service.GetByContentHash(r.Context(), chi.URLParam(r, "contentHash"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}
