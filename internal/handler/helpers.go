package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// Shared helper functions
// ============================================================

type errorResponse struct {
	Error string   `json:"error"`
	IDs   []string `json:"ids,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// parseOverrides applies query-string overrides to the registry defaults.
func parseOverrides(r *http.Request, opts domain.AnalysisOptions) (domain.AnalysisOptions, error) {
	q := r.URL.Query()
	if v := q.Get("months"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, &domain.ErrValidation{Field: "months", Message: "must be an integer"}
		}
		opts.HorizonMonths = n
	}
	if v := q.Get("segments"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, &domain.ErrValidation{Field: "segments", Message: "must be an integer"}
		}
		opts.SegmentCount = n
	}
	if v := q.Get("discount_rate"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return opts, &domain.ErrValidation{Field: "discount_rate", Message: "must be a number"}
		}
		opts.DiscountRate = f
	}
	if v := q.Get("discount_period"); v != "" {
		opts.DiscountPeriod = domain.DiscountPeriod(v)
	}
	if v := q.Get("analysis_date"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return opts, &domain.ErrValidation{Field: "analysis_date", Message: "must be YYYY-MM-DD"}
		}
		opts.AnalysisDate = &t
	}
	return opts, opts.Validate()
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var notFound *domain.ErrNotFound
	var circuitOpen *domain.ErrCircuitOpen
	var timeout *domain.ErrTimeout
	var validation *domain.ErrValidation
	var invalid *domain.ErrInvalidRecords
	var notConverged *domain.ErrNotConverged
	var degenerate *domain.ErrDegeneratePopulation
	var classification *domain.ErrClassification
	var external *domain.ErrExternalService
	var tooLarge *http.MaxBytesError

	switch {
	case errors.As(err, &tooLarge):
		logger.Warn("request body too large", zap.Int64("limit", tooLarge.Limit))
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &circuitOpen):
		logger.Error("circuit breaker open", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &timeout), errors.Is(err, context.DeadlineExceeded):
		logger.Error("request timeout", zap.Error(err))
		writeError(w, http.StatusGatewayTimeout, err.Error())
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &invalid):
		logger.Warn("invalid records",
			zap.String("stage", invalid.Stage),
			zap.Int("count", len(invalid.IDs)),
		)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), IDs: invalid.IDs})
	case errors.As(err, &notConverged):
		logger.Warn("fit did not converge",
			zap.String("model", notConverged.Model),
			zap.String("status", notConverged.Status),
		)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &degenerate):
		logger.Warn("degenerate population", zap.String("metric", degenerate.Metric))
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &classification):
		logger.Error("classification failed", zap.String("code", classification.Code))
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &external):
		logger.Error("external service error", zap.String("service", external.Service), zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
