// Package handler wires transmission endpoints to the engine: enqueue,
// record lookup, operator retry/cancel and the dashboard aggregates.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"stampgate/internal/platform/middleware"
	"stampgate/internal/transmission/models"
	"stampgate/internal/transmission/service"
	id "stampgate/pkg/domain"
	dErrors "stampgate/pkg/domain-errors"
	"stampgate/pkg/platform/httputil"
)

// Engine defines the interface for transmission operations.
type Engine interface {
	Enqueue(ctx context.Context, csid id.StampID) (models.TransmissionRecord, error)
	Get(ctx context.Context, recordID id.TransmissionID) (models.TransmissionRecord, error)
	RetryNow(ctx context.Context, recordID id.TransmissionID, opts service.RetryOptions) (models.TransmissionRecord, error)
	Cancel(ctx context.Context, recordID id.TransmissionID) error
	Statistics(ctx context.Context) (models.Stats, error)
	Timeline(ctx context.Context, start, end time.Time, interval time.Duration) ([]models.TimelineBucket, error)
}

type Handler struct {
	engine Engine
	logger *slog.Logger
}

func New(engine Engine, logger *slog.Logger) *Handler {
	return &Handler{engine: engine, logger: logger}
}

// Register mounts transmission endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/transmissions", h.HandleEnqueue)
	r.Get("/transmissions/statistics", h.HandleStatistics)
	r.Get("/transmissions/timeline", h.HandleTimeline)
	r.Get("/transmissions/{id}", h.HandleGet)
	r.Post("/transmissions/{id}/retry", h.HandleRetry)
	r.Post("/transmissions/{id}/cancel", h.HandleCancel)
}

type enqueueRequest struct {
	CSID id.StampID `json:"csid"`
}

type retryRequest struct {
	MaxRetries        *int `json:"max_retries,omitempty"`
	RetryDelaySeconds *int `json:"retry_delay_seconds,omitempty"`
	Force             bool `json:"force,omitempty"`
}

// HandleEnqueue handles POST /transmissions. The response carries the
// accepted record; a stamp failing pre-flight comes back dead-lettered.
func (h *Handler) HandleEnqueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.Decode[enqueueRequest](w, r)
	if !ok {
		return
	}
	if req.CSID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "csid is required"))
		return
	}

	record, err := h.engine.Enqueue(ctx, req.CSID)
	if err != nil {
		h.logger.WarnContext(ctx, "enqueue failed",
			"request_id", middleware.GetRequestID(ctx),
			"csid", req.CSID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, record)
}

// HandleGet handles GET /transmissions/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	recordID, err := parseRecordID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	record, err := h.engine.Get(r.Context(), recordID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

// HandleRetry handles POST /transmissions/{id}/retry.
func (h *Handler) HandleRetry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	recordID, err := parseRecordID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[retryRequest](w, r)
	if !ok {
		return
	}

	record, err := h.engine.RetryNow(ctx, recordID, service.RetryOptions{
		MaxRetries:        req.MaxRetries,
		RetryDelaySeconds: req.RetryDelaySeconds,
		Force:             req.Force,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "operator retry failed",
			"request_id", middleware.GetRequestID(ctx),
			"record_id", recordID.String(),
			"force", req.Force,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

// HandleCancel handles POST /transmissions/{id}/cancel. The attempt is
// cancelled asynchronously; the caller polls the record for the outcome.
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	recordID, err := parseRecordID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.engine.Cancel(r.Context(), recordID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// HandleStatistics handles GET /transmissions/statistics.
func (h *Handler) HandleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Statistics(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

// HandleTimeline handles GET /transmissions/timeline?start=&end=&interval=.
// Timestamps are RFC 3339; interval is a Go duration string.
func (h *Handler) HandleTimeline(w http.ResponseWriter, r *http.Request) {
	start, err := time.Parse(time.RFC3339, r.URL.Query().Get("start"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "start must be an RFC 3339 timestamp"))
		return
	}
	end, err := time.Parse(time.RFC3339, r.URL.Query().Get("end"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "end must be an RFC 3339 timestamp"))
		return
	}
	interval, err := time.ParseDuration(r.URL.Query().Get("interval"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "interval must be a duration"))
		return
	}

	buckets, err := h.engine.Timeline(r.Context(), start, end, interval)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, buckets)
}

func parseRecordID(r *http.Request) (id.TransmissionID, error) {
	recordID, err := id.ParseTransmissionID(chi.URLParam(r, "id"))
	if err != nil {
		return id.TransmissionID{}, dErrors.New(dErrors.CodeBadRequest, "invalid transmission id")
	}
	return recordID, nil
}
