// Package handler wires stamping and verification endpoints to the engines.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	invoicemodels "stampgate/internal/invoice/models"
	"stampgate/internal/platform/middleware"
	refmodels "stampgate/internal/reference/models"
	"stampgate/internal/stamping/models"
	id "stampgate/pkg/domain"
	dErrors "stampgate/pkg/domain-errors"
	"stampgate/pkg/platform/httputil"
)

// Service defines the interface for stamping operations.
type Service interface {
	Stamp(ctx context.Context, invoice invoicemodels.NormalizedInvoice, ref refmodels.ReferenceRecord) (models.StampResult, error)
	Verify(ctx context.Context, invoice invoicemodels.NormalizedInvoice, stamp models.CryptographicStamp) (models.VerificationResult, error)
	GetByCSID(ctx context.Context, csid id.StampID) (models.CryptographicStamp, error)
	Invalidate(ctx context.Context, csid id.StampID) error
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts stamping endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/stamps", h.HandleStamp)
	r.Get("/stamps/{csid}", h.HandleGet)
	r.Post("/stamps/{csid}/invalidate", h.HandleInvalidate)
	r.Post("/verify", h.HandleVerify)
}

type stampRequest struct {
	Invoice   invoicemodels.NormalizedInvoice `json:"invoice"`
	Reference refmodels.ReferenceRecord       `json:"reference"`
}

type verifyRequest struct {
	Invoice invoicemodels.NormalizedInvoice `json:"invoice"`
	Stamp   models.CryptographicStamp       `json:"stamp"`
}

// HandleStamp handles POST /stamps. A repeat request for an already stamped
// IRN answers 200 with the existing stamp; a fresh stamp answers 201.
func (h *Handler) HandleStamp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.Decode[stampRequest](w, r)
	if !ok {
		return
	}

	result, err := h.service.Stamp(ctx, req.Invoice, req.Reference)
	if err != nil {
		h.logger.WarnContext(ctx, "stamping failed",
			"request_id", middleware.GetRequestID(ctx),
			"irn", req.Reference.Value,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Existing {
		status = http.StatusOK
	}
	httputil.WriteJSON(w, status, result)
}

// HandleVerify handles POST /verify. Every verdict is a 200; only
// infrastructure failures surface as errors.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[verifyRequest](w, r)
	if !ok {
		return
	}

	result, err := h.service.Verify(r.Context(), req.Invoice, req.Stamp)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleGet handles GET /stamps/{csid}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	csid, err := parseCSID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	stamp, err := h.service.GetByCSID(r.Context(), csid)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stamp)
}

// HandleInvalidate handles POST /stamps/{csid}/invalidate.
func (h *Handler) HandleInvalidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	csid, err := parseCSID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.Invalidate(ctx, csid); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "stamp invalidated",
		"request_id", middleware.GetRequestID(ctx),
		"csid", csid.String(),
	)
	w.WriteHeader(http.StatusNoContent)
}

func parseCSID(r *http.Request) (id.StampID, error) {
	csid, err := id.ParseStampID(chi.URLParam(r, "csid"))
	if err != nil {
		return id.StampID{}, dErrors.New(dErrors.CodeBadRequest, "invalid stamp id")
	}
	return csid, nil
}
