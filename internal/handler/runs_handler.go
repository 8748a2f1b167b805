package handler

import (
	"net/http"

	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/domain"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/infra/export"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/infra/source"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Batch runs: /v1/runs
// ============================================================

type rfmResponse struct {
	RunID    string                  `json:"run_id"`
	Segments []domain.SegmentSummary `json:"segments"`
	Records  []domain.ScoredRFM      `json:"records"`
}

type cltvResponse struct {
	RunID      string                       `json:"run_id"`
	BGNBD      domain.BGNBDParams           `json:"bgnbd_params"`
	GammaGamma domain.GammaGammaParams      `json:"gamma_gamma_params"`
	Segments   []domain.ValueSegmentSummary `json:"segments"`
	Records    []domain.CLTVRecord          `json:"records"`
}

// wantsCSV reports whether the client asked for the tabular artifact.
func wantsCSV(r *http.Request) bool {
	return r.URL.Query().Get("format") == "csv" || r.Header.Get("Accept") == "text/csv"
}

func submitRunHandler(runs *service.RunRegistry, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/runs")
		defer span.End()

		opts, err := parseOverrides(r, runs.Defaults())
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		records, err := source.NewCSVReader("upload", r.Body, logger).Load(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.Int("run.records", len(records)))

		res, err := runs.Submit(ctx, records, opts)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		w.Header().Set("Location", "/v1/runs/"+res.RunID)
		writeJSON(w, http.StatusCreated, res.Summary())
	}
}

func getRunHandler(runs *service.RunRegistry, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/runs/{runId}")
		defer span.End()

		res, err := runs.Get(ctx, chi.URLParam(r, "runId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, res.Summary())
	}
}

func getRFMHandler(runs *service.RunRegistry, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/runs/{runId}/rfm")
		defer span.End()

		res, err := runs.Get(ctx, chi.URLParam(r, "runId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		if wantsCSV(r) {
			w.Header().Set("Content-Type", "text/csv")
			if err := export.WriteRFM(w, res.RFM.Records); err != nil {
				logger.Error("failed to stream rfm csv", zap.Error(err))
			}
			return
		}
		writeJSON(w, http.StatusOK, rfmResponse{
			RunID:    res.RunID,
			Segments: res.RFM.Segments,
			Records:  res.RFM.Records,
		})
	}
}

func getCLTVHandler(runs *service.RunRegistry, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/runs/{runId}/cltv")
		defer span.End()

		res, err := runs.Get(ctx, chi.URLParam(r, "runId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		if wantsCSV(r) {
			w.Header().Set("Content-Type", "text/csv")
			if err := export.WriteCLTV(w, res.CLTV.Records); err != nil {
				logger.Error("failed to stream cltv csv", zap.Error(err))
			}
			return
		}
		writeJSON(w, http.StatusOK, cltvResponse{
			RunID:      res.RunID,
			BGNBD:      res.CLTV.BGNBD,
			GammaGamma: res.CLTV.GammaGamma,
			Segments:   res.CLTV.Segments,
			Records:    res.CLTV.Records,
		})
	}
}

func getAudienceHandler(runs *service.RunRegistry, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/runs/{runId}/audiences/{name}")
		defer span.End()

		aud, err := runs.Audience(ctx, chi.URLParam(r, "runId"), chi.URLParam(r, "name"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		if wantsCSV(r) {
			w.Header().Set("Content-Type", "text/csv")
			if err := export.WriteAudience(w, *aud); err != nil {
				logger.Error("failed to stream audience csv", zap.Error(err))
			}
			return
		}
		writeJSON(w, http.StatusOK, aud)
	}
}
