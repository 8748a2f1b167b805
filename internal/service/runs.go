package service

import (
	"context"

	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/domain"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/infra/observability"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/infra/resilience"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/port"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/rfm"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// RunRegistry executes batch runs for the HTTP API and keeps finished
// results addressable by run id until they expire.
type RunRegistry struct {
	analyzer *Analyzer
	runs     port.Cache[*domain.AnalysisResult]
	bulkhead *resilience.Bulkhead
	defaults domain.AnalysisOptions
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewRunRegistry creates the registry with all dependencies injected.
func NewRunRegistry(
	analyzer *Analyzer,
	runs port.Cache[*domain.AnalysisResult],
	bulkhead *resilience.Bulkhead,
	defaults domain.AnalysisOptions,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *RunRegistry {
	return &RunRegistry{
		analyzer: analyzer,
		runs:     runs,
		bulkhead: bulkhead,
		defaults: defaults,
		metrics:  metrics,
		logger:   logger,
	}
}

// Defaults returns the options applied when a request overrides nothing.
func (r *RunRegistry) Defaults() domain.AnalysisOptions {
	return r.defaults
}

// Submit runs a full batch synchronously, waiting for a free slot first,
// and stores the result.
func (r *RunRegistry) Submit(ctx context.Context, records []domain.CustomerRecord, opts domain.AnalysisOptions) (*domain.AnalysisResult, error) {
	ctx, span := tracer.Start(ctx, "RunRegistry.Submit")
	defer span.End()
	span.SetAttributes(attribute.Int("run.records", len(records)))

	if err := r.bulkhead.Acquire(ctx); err != nil {
		return nil, &domain.ErrTimeout{Operation: "waiting for a free analysis slot"}
	}
	defer r.bulkhead.Release()

	res, err := r.analyzer.Run(ctx, records, opts)
	if err != nil {
		return nil, err
	}
	r.runs.Set(res.RunID, res)
	r.logger.Info("run stored", zap.String("run_id", res.RunID))
	return res, nil
}

// Get returns a stored run.
func (r *RunRegistry) Get(ctx context.Context, runID string) (*domain.AnalysisResult, error) {
	_, span := tracer.Start(ctx, "RunRegistry.Get")
	defer span.End()

	res, ok := r.runs.Get(runID)
	if !ok {
		r.metrics.IncrCacheMiss("runs")
		return nil, &domain.ErrNotFound{Resource: "run", ID: runID}
	}
	r.metrics.IncrCacheHit("runs")
	return res, nil
}

// Audience returns the named target audience of a stored run.
func (r *RunRegistry) Audience(ctx context.Context, runID, name string) (*domain.AudienceResult, error) {
	res, err := r.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if _, ok := rfm.FindAudience(name); !ok {
		return nil, &domain.ErrNotFound{Resource: "audience", ID: name}
	}
	for i := range res.RFM.Audiences {
		if res.RFM.Audiences[i].Name == name {
			return &res.RFM.Audiences[i], nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "audience", ID: name}
}
