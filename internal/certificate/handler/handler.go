// Package handler wires certificate lifecycle endpoints to the service.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"stampgate/internal/certificate/models"
	"stampgate/internal/platform/middleware"
	id "stampgate/pkg/domain"
	dErrors "stampgate/pkg/domain-errors"
	"stampgate/pkg/platform/httputil"
)

// Service defines the interface for certificate lifecycle operations.
type Service interface {
	Request(ctx context.Context, subject models.SubjectInfo, keyAlgorithm string, keySize int) (models.Certificate, error)
	MarkIssued(ctx context.Context, certID id.CertificateID, issuedAt, expiresAt time.Time) (models.Certificate, error)
	Activate(ctx context.Context, certID id.CertificateID) (models.Certificate, error)
	Revoke(ctx context.Context, certID id.CertificateID) (models.Certificate, error)
	GetActive(ctx context.Context) (models.Certificate, error)
	Get(ctx context.Context, certID id.CertificateID) (models.Certificate, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts certificate endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/certificates", h.HandleRequest)
	r.Get("/certificates/active", h.HandleGetActive)
	r.Get("/certificates/{id}", h.HandleGet)
	r.Post("/certificates/{id}/issue", h.HandleMarkIssued)
	r.Post("/certificates/{id}/activate", h.HandleActivate)
	r.Post("/certificates/{id}/revoke", h.HandleRevoke)
}

type requestCertificate struct {
	Subject      models.SubjectInfo `json:"subject"`
	KeyAlgorithm string             `json:"key_algorithm"`
	KeySize      int                `json:"key_size"`
}

type markIssued struct {
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HandleRequest handles POST /certificates.
func (h *Handler) HandleRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.Decode[requestCertificate](w, r)
	if !ok {
		return
	}

	cert, err := h.service.Request(ctx, req.Subject, req.KeyAlgorithm, req.KeySize)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "certificate requested",
		"request_id", middleware.GetRequestID(ctx),
		"certificate_id", cert.ID.String(),
	)
	httputil.WriteJSON(w, http.StatusCreated, cert)
}

// HandleMarkIssued handles POST /certificates/{id}/issue.
func (h *Handler) HandleMarkIssued(w http.ResponseWriter, r *http.Request) {
	certID, err := parseCertID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[markIssued](w, r)
	if !ok {
		return
	}

	cert, err := h.service.MarkIssued(r.Context(), certID, req.IssuedAt, req.ExpiresAt)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cert)
}

// HandleActivate handles POST /certificates/{id}/activate.
func (h *Handler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	certID, err := parseCertID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	cert, err := h.service.Activate(ctx, certID)
	if err != nil {
		h.logger.WarnContext(ctx, "certificate activation failed",
			"request_id", middleware.GetRequestID(ctx),
			"certificate_id", certID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cert)
}

// HandleRevoke handles POST /certificates/{id}/revoke.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	certID, err := parseCertID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	cert, err := h.service.Revoke(r.Context(), certID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cert)
}

// HandleGetActive handles GET /certificates/active.
func (h *Handler) HandleGetActive(w http.ResponseWriter, r *http.Request) {
	cert, err := h.service.GetActive(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cert)
}

// HandleGet handles GET /certificates/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	certID, err := parseCertID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	cert, err := h.service.Get(r.Context(), certID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cert)
}

func parseCertID(r *http.Request) (id.CertificateID, error) {
	certID, err := id.ParseCertificateID(chi.URLParam(r, "id"))
	if err != nil {
		return id.CertificateID{}, dErrors.New(dErrors.CodeBadRequest, "invalid certificate id")
	}
	return certID, nil
}
