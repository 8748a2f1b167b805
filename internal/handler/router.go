package handler

import (
	"net/http"
	"time"

	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/infra/observability"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// DefaultMaxUploadBytes bounds a CSV upload.
const DefaultMaxUploadBytes = 64 << 20

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(runs *service.RunRegistry, metrics *observability.Metrics, maxUpload int64, logger *zap.Logger) http.Handler {
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}
	started := time.Now()

	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(started))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Get("/metrics/pipeline", pipelineMetricsHandler(metrics))

		r.Route("/runs", func(r chi.Router) {
			r.With(MaxBodyMiddleware(maxUpload, logger)).Post("/", submitRunHandler(runs, logger))
			r.Get("/{runId}", getRunHandler(runs, logger))
			r.Get("/{runId}/rfm", getRFMHandler(runs, logger))
			r.Get("/{runId}/cltv", getCLTVHandler(runs, logger))
			r.Get("/{runId}/audiences/{name}", getAudienceHandler(runs, logger))
		})
	})

	return r
}

// ============================================================
// Probes & metrics
// ============================================================

func healthzHandler(started time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":         "healthy",
			"uptime_seconds": int64(time.Since(started).Seconds()),
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func pipelineMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetPipelineSnapshot())
	}
}
