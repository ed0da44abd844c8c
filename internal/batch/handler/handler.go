// Package handler wires batch endpoints to the orchestrator.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"stampgate/internal/batch/models"
	"stampgate/internal/platform/middleware"
	id "stampgate/pkg/domain"
	dErrors "stampgate/pkg/domain-errors"
	"stampgate/pkg/platform/httputil"
)

// Service defines the interface for batch operations.
type Service interface {
	Submit(ctx context.Context, csids []id.StampID) (models.BatchJob, error)
	Get(ctx context.Context, jobID id.BatchID) (models.BatchJob, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts batch endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/batches", h.HandleSubmit)
	r.Get("/batches/{id}", h.HandleGet)
}

type submitRequest struct {
	CSIDs []id.StampID `json:"csids"`
}

// HandleSubmit handles POST /batches. The job is returned running; progress
// is polled through GET /batches/{id}.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.Decode[submitRequest](w, r)
	if !ok {
		return
	}

	job, err := h.service.Submit(ctx, req.CSIDs)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "batch submitted",
		"request_id", middleware.GetRequestID(ctx),
		"batch_id", job.ID.String(),
		"members", len(req.CSIDs),
	)
	httputil.WriteJSON(w, http.StatusAccepted, job)
}

// HandleGet handles GET /batches/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	jobID, err := id.ParseBatchID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid batch id"))
		return
	}

	job, err := h.service.Get(r.Context(), jobID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, job)
}
