package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/config"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/domain"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/infra/observability"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/optim"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/port"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/service"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const serviceName = "crm-analytics"

func main() {
	// --- Load .env file (for local development) ---
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, "warning: .env:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// flags holds command-line overrides; only flags the user set are applied.
type flags struct {
	configFile   string
	logLevel     string
	optimizer    string
	workers      int
	months       int
	segments     int
	discount     string
	analysisDate string
	source       string
	dataPath     string
	outputDir    string
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:          "crm",
		Short:        "RFM segmentation and CLTV forecasting for omnichannel retail customers",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.configFile, "config", "", "YAML file overriding analysis options (CONFIG_FILE)")
	pf.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error (LOG_LEVEL)")
	pf.StringVar(&f.optimizer, "optimizer", "", "nelder-mead or lbfgs (OPTIMIZER)")
	pf.IntVar(&f.workers, "workers", 0, "fan-out width for per-customer steps (WORKERS)")
	pf.IntVar(&f.months, "months", 0, "CLTV horizon in months (HORIZON_MONTHS)")
	pf.IntVar(&f.segments, "segments", 0, "number of CLTV value segments (SEGMENT_COUNT)")
	pf.StringVar(&f.discount, "discount-period", "", "week or month (DISCOUNT_PERIOD)")
	pf.StringVar(&f.analysisDate, "analysis-date", "", "YYYY-MM-DD or now (ANALYSIS_DATE)")

	root.AddCommand(newRunCmd(f), newServeCmd(f))
	return root
}

// loadConfig reads env and the YAML overlay, then applies explicitly set flags.
func loadConfig(fs *pflag.FlagSet, f *flags) (*config.Config, error) {
	if fs.Changed("config") {
		os.Setenv("CONFIG_FILE", f.configFile)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if fs.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if fs.Changed("optimizer") {
		cfg.Optimizer = f.optimizer
	}
	if fs.Changed("workers") {
		cfg.Workers = f.workers
	}
	if fs.Changed("months") {
		cfg.Analysis.HorizonMonths = f.months
	}
	if fs.Changed("segments") {
		cfg.Analysis.SegmentCount = f.segments
	}
	if fs.Changed("discount-period") {
		cfg.Analysis.DiscountPeriod = domain.DiscountPeriod(f.discount)
	}
	if fs.Changed("analysis-date") {
		if err := cfg.SetAnalysisDate(f.analysisDate); err != nil {
			return nil, err
		}
	}
	if fs.Changed("source") {
		cfg.Source = f.source
	}
	if fs.Changed("data") {
		cfg.DataPath = f.dataPath
	}
	if fs.Changed("output") {
		cfg.OutputDir = f.outputDir
	}
	return cfg, cfg.Analysis.Validate()
}

// app bundles the dependencies shared by both commands.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	metrics  *observability.Metrics
	shutdown func(context.Context) error
}

func newApp(cfg *config.Config) (*app, error) {
	logger := observability.NewLogger(cfg.LogLevel)

	logger.Info("configuration loaded",
		zap.String("source", cfg.Source),
		zap.String("optimizer", cfg.Optimizer),
		zap.Int("workers", cfg.Workers),
		zap.Int("horizon_months", cfg.Analysis.HorizonMonths),
		zap.Int("segment_count", cfg.Analysis.SegmentCount),
		zap.Float64("bgnbd_penalizer", cfg.Analysis.BGNBDPenalizer),
		zap.Float64("gg_penalizer", cfg.Analysis.GammaGammaPenalizer),
		zap.Float64("discount_rate", cfg.Analysis.DiscountRate),
		zap.String("discount_period", string(cfg.Analysis.DiscountPeriod)),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, serviceName)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		metrics:  observability.NewMetrics(),
		shutdown: shutdown,
	}, nil
}

func (a *app) analyzer(progress port.Progress) (*service.Analyzer, error) {
	m, err := optim.New(a.cfg.Optimizer, a.cfg.OptimizerConfig())
	if err != nil {
		return nil, err
	}
	return service.NewAnalyzer(m, a.cfg.Workers, progress, a.metrics, a.logger), nil
}

func (a *app) close() {
	if err := a.shutdown(context.Background()); err != nil {
		a.logger.Warn("tracer shutdown failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}
