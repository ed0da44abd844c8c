// Package httptransport assembles the HTTP surface: middleware chain, the
// domain handlers, health probes and the Prometheus endpoint.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	batchhandler "stampgate/internal/batch/handler"
	certhandler "stampgate/internal/certificate/handler"
	platformmetrics "stampgate/internal/platform/metrics"
	"stampgate/internal/platform/middleware"
	refhandler "stampgate/internal/reference/handler"
	stamphandler "stampgate/internal/stamping/handler"
	transmissionhandler "stampgate/internal/transmission/handler"
	"stampgate/pkg/platform/httputil"
)

// Probe is one backing-service health check.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// Dependencies carries everything the router mounts.
type Dependencies struct {
	Logger       *slog.Logger
	Metrics      *platformmetrics.Metrics
	JWTValidator middleware.JWTValidator

	Reference    *refhandler.Handler
	Stamping     *stamphandler.Handler
	Certificate  *certhandler.Handler
	Transmission *transmissionhandler.Handler
	Batch        *batchhandler.Handler

	Probes []Probe
}

// NewRouter builds the chi router. Health and metrics are public; every
// domain endpoint sits behind bearer-token auth.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Timeout(60 * time.Second))
	if deps.Metrics != nil {
		r.Use(middleware.LatencyMiddleware(deps.Metrics))
	}

	r.Get("/healthz", healthz(deps.Probes))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(deps.JWTValidator, deps.Logger))
		r.Use(middleware.ContentTypeJSON)

		deps.Reference.Register(r)
		deps.Stamping.Register(r)
		deps.Certificate.Register(r)
		deps.Transmission.Register(r)
		deps.Batch.Register(r)
	})

	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthz(probes []Probe) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(probes))}
		status := http.StatusOK
		for _, probe := range probes {
			if err := probe.Check(ctx); err != nil {
				resp.Checks[probe.Name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[probe.Name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
