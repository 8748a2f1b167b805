package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/cltv"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/domain"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/infra/observability"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/model"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/optim"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/port"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/prep"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/rfm"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("service/analyzer")

// progressEvery is how many customers a worker scores between progress ticks.
const progressEvery = 256

// Analyzer runs one batch through preprocessing, the RFM pipeline and the
// CLTV pipeline. It holds no per-run state and is safe for concurrent use.
type Analyzer struct {
	maximizer optim.Maximizer
	workers   int
	progress  port.Progress
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewAnalyzer creates the analyzer with all dependencies injected. A nil
// progress discards progress events.
func NewAnalyzer(
	maximizer optim.Maximizer,
	workers int,
	progress port.Progress,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Analyzer {
	if progress == nil {
		progress = noopProgress{}
	}
	return &Analyzer{
		maximizer: maximizer,
		workers:   workers,
		progress:  progress,
		metrics:   metrics,
		logger:    logger,
	}
}

// RunSource loads records from src and analyzes them.
func (a *Analyzer) RunSource(ctx context.Context, src port.CustomerSource, opts domain.AnalysisOptions) (*domain.AnalysisResult, error) {
	ctx, span := tracer.Start(ctx, "Analyzer.RunSource")
	defer span.End()
	span.SetAttributes(attribute.String("source", src.Name()))

	start := time.Now()
	records, err := src.Load(ctx)
	a.metrics.RecordStage("load", time.Since(start))
	if err != nil {
		a.metrics.IncrSourceError(src.Name())
		a.logger.Error("failed to load customer records",
			zap.String("source", src.Name()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("load %s: %w", src.Name(), err)
	}
	a.logger.Info("customer records loaded",
		zap.String("source", src.Name()),
		zap.Int("records", len(records)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return a.Run(ctx, records, opts)
}

// Run analyzes one snapshot of customer records.
func (a *Analyzer) Run(ctx context.Context, records []domain.CustomerRecord, opts domain.AnalysisOptions) (*domain.AnalysisResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "Analyzer.Run")
	defer span.End()

	result := &domain.AnalysisResult{
		RunID:     uuid.NewString(),
		Options:   opts,
		Customers: len(records),
		StartedAt: time.Now(),
	}
	span.SetAttributes(
		attribute.String("run.id", result.RunID),
		attribute.Int("run.customers", len(records)),
	)

	err := a.run(ctx, records, opts, result)
	result.Duration = time.Since(result.StartedAt)
	if err != nil {
		a.metrics.IncrRun("error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.logger.Error("analysis run failed",
			zap.String("run_id", result.RunID),
			zap.Error(err),
		)
		return nil, err
	}

	a.metrics.IncrRun("success")
	a.logger.Info("analysis run finished",
		zap.String("run_id", result.RunID),
		zap.Int("customers", result.Customers),
		zap.Float64("total_forecast", result.CLTV.TotalForecast),
		zap.Duration("elapsed", result.Duration),
	)
	return result, nil
}

func (a *Analyzer) run(ctx context.Context, records []domain.CustomerRecord, opts domain.AnalysisOptions, result *domain.AnalysisResult) error {
	// --- Step 1: preprocessing shared by both pipelines ---
	start := time.Now()
	result.Channels = prep.Channels(records)

	capped, thresholds := prep.NewCapper(opts.OutlierLowQ, opts.OutlierHighQ).Cap(records)
	for _, th := range thresholds {
		a.logger.Debug("outlier threshold",
			zap.String("field", string(th.Field)),
			zap.Float64("high", th.High),
		)
	}

	aggs, err := prep.Aggregate(capped)
	if err != nil {
		return fmt.Errorf("preprocess: %w", err)
	}
	instant, err := prep.AnalysisInstant(aggs, opts.BufferDays, opts.AnalysisDate)
	if err != nil {
		return fmt.Errorf("preprocess: %w", err)
	}
	result.AnalysisDate = instant
	a.metrics.RecordStage("prep", time.Since(start))
	a.logger.Info("preprocessing done",
		zap.Int("customers", len(aggs)),
		zap.Time("analysis_date", instant),
	)

	// --- Step 2: RFM and CLTV pipelines run concurrently ---
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		res, err := a.runRFM(gCtx, aggs, records, instant)
		if err != nil {
			return fmt.Errorf("rfm: %w", err)
		}
		result.RFM = res
		return nil
	})

	g.Go(func() error {
		res, err := a.runCLTV(gCtx, aggs, instant, opts)
		if err != nil {
			return fmt.Errorf("cltv: %w", err)
		}
		result.CLTV = res
		return nil
	})

	return g.Wait()
}

func (a *Analyzer) runRFM(ctx context.Context, aggs []domain.CustomerAggregate, records []domain.CustomerRecord, instant time.Time) (*domain.RFMResult, error) {
	_, span := tracer.Start(ctx, "Analyzer.RFM")
	defer span.End()

	start := time.Now()
	metrics, err := rfm.BuildMetrics(aggs, instant)
	if err != nil {
		return nil, err
	}
	scored, err := rfm.Score(metrics)
	if err != nil {
		return nil, err
	}

	res := &domain.RFMResult{
		Records:  scored,
		Segments: rfm.Summarize(scored),
	}
	interests := rfm.Interests(records)
	for _, aud := range rfm.DefaultAudiences {
		res.Audiences = append(res.Audiences, aud.Select(scored, interests))
	}

	a.metrics.RecordStage("rfm", time.Since(start))
	a.metrics.AddCustomers("rfm", len(scored))
	a.logger.Info("rfm scoring done",
		zap.Int("customers", len(scored)),
		zap.Int("segments", len(res.Segments)),
	)
	return res, nil
}

func (a *Analyzer) runCLTV(ctx context.Context, aggs []domain.CustomerAggregate, instant time.Time, opts domain.AnalysisOptions) (*domain.CLTVResult, error) {
	ctx, span := tracer.Start(ctx, "Analyzer.CLTV")
	defer span.End()

	inputs, err := cltv.BuildInputs(aggs, instant)
	if err != nil {
		return nil, err
	}

	// Barrier: both fits see the complete population.
	bgParams, ggParams, fits, err := a.fit(ctx, inputs, opts)
	if err != nil {
		return nil, err
	}
	bg, err := model.NewBGNBDPredictor(bgParams)
	if err != nil {
		return nil, err
	}
	gg, err := model.NewGammaGammaPredictor(ggParams)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	calc := cltv.NewCalculator(bg, gg, opts.HorizonMonths, opts.DiscountRate, opts.DiscountPeriod)
	records := make([]domain.CLTVRecord, len(inputs))

	a.progress.Start("cltv", len(inputs))
	err = parallelRange(ctx, len(inputs), a.workers, func(ctx context.Context, lo, hi int) error {
		for i := lo; i < hi; i++ {
			rec, err := calc.Record(inputs[i])
			if err != nil {
				return fmt.Errorf("predict %s: %w", inputs[i].ID, err)
			}
			records[i] = rec
			if (i-lo+1)%progressEvery == 0 {
				a.progress.Add(progressEvery)
				if err := ctx.Err(); err != nil {
					return err
				}
			}
		}
		a.progress.Add((hi - lo) % progressEvery)
		return nil
	})
	a.progress.Finish()
	if err != nil {
		return nil, err
	}
	a.metrics.RecordStage("predict", time.Since(start))

	if err := cltv.Segment(records, opts.SegmentCount); err != nil {
		return nil, err
	}
	total, mean := cltv.Totals(records)
	a.metrics.AddCustomers("cltv", len(records))

	return &domain.CLTVResult{
		Records:         records,
		BGNBD:           bgParams,
		GammaGamma:      ggParams,
		Fits:            fits,
		Segments:        cltv.Summarize(records),
		Top:             cltv.Top(records, opts.TopN),
		TotalForecast:   total,
		AverageForecast: mean,
	}, nil
}

// fit runs the two independent model fits concurrently.
func (a *Analyzer) fit(ctx context.Context, inputs []domain.CLTVInputs, opts domain.AnalysisOptions) (domain.BGNBDParams, domain.GammaGammaParams, []domain.FitReport, error) {
	ctx, span := tracer.Start(ctx, "Analyzer.Fit")
	defer span.End()

	var (
		bgParams domain.BGNBDParams
		ggParams domain.GammaGammaParams
		bgReport domain.FitReport
		ggReport domain.FitReport
	)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		start := time.Now()
		p, r, err := model.NewBGNBDFitter(opts.BGNBDPenalizer, a.maximizer).Fit(gCtx, inputs)
		a.metrics.RecordStage("fit_bgnbd", time.Since(start))
		if err != nil {
			return a.fitFailed(model.ModelBGNBD, err)
		}
		bgParams, bgReport = p, r
		a.metrics.RecordFit(r)
		a.logger.Info("bg-nbd fitted",
			zap.Float64("r", p.R),
			zap.Float64("alpha", p.Alpha),
			zap.Float64("a", p.A),
			zap.Float64("b", p.B),
			zap.Int("iterations", r.Iterations),
			zap.Float64("log_likelihood", r.LogLikelihood),
		)
		return nil
	})

	g.Go(func() error {
		start := time.Now()
		p, r, err := model.NewGammaGammaFitter(opts.GammaGammaPenalizer, a.maximizer).Fit(gCtx, inputs)
		a.metrics.RecordStage("fit_gamma_gamma", time.Since(start))
		if err != nil {
			return a.fitFailed(model.ModelGammaGamma, err)
		}
		ggParams, ggReport = p, r
		a.metrics.RecordFit(r)
		a.logger.Info("gamma-gamma fitted",
			zap.Float64("p", p.P),
			zap.Float64("q", p.Q),
			zap.Float64("v", p.V),
			zap.Int("iterations", r.Iterations),
			zap.Float64("log_likelihood", r.LogLikelihood),
		)
		return nil
	})

	if err := g.Wait(); err != nil {
		return bgParams, ggParams, nil, err
	}
	return bgParams, ggParams, []domain.FitReport{bgReport, ggReport}, nil
}

func (a *Analyzer) fitFailed(modelName string, err error) error {
	var nc *domain.ErrNotConverged
	if errors.As(err, &nc) {
		a.metrics.IncrFitFailure(modelName)
	}
	a.logger.Error("model fit failed",
		zap.String("model", modelName),
		zap.Error(err),
	)
	return fmt.Errorf("fit %s: %w", modelName, err)
}
