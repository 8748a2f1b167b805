package main

import (
	"context"
	"fmt"
	"os"

	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/config"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/domain"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/infra/export"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/infra/progress"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/infra/resilience"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/infra/source"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/port"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRunCmd(f *flags) *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one batch analysis and write the artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags(), f)
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.close()

			var bar port.Progress
			if !quiet {
				bar = progress.NewBar(os.Stderr)
			}
			return a.runBatch(cmd.Context(), bar)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.source, "source", "", "csv, postgres or mysql (SOURCE)")
	fs.StringVar(&f.dataPath, "data", "", "CSV input path (DATA_PATH)")
	fs.StringVar(&f.outputDir, "output", "", "artifact directory (OUTPUT_DIR)")
	fs.BoolVarP(&quiet, "quiet", "q", false, "disable the progress bar")
	return cmd
}

func (a *app) runBatch(ctx context.Context, bar port.Progress) error {
	src, closeSrc, err := openSource(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer closeSrc()

	analyzer, err := a.analyzer(bar)
	if err != nil {
		return err
	}
	res, err := analyzer.RunSource(ctx, src, a.cfg.Analysis)
	if err != nil {
		return err
	}

	paths, err := export.NewFileSink(a.cfg.OutputDir, a.logger).Write(ctx, res)
	if err != nil {
		return fmt.Errorf("write artifacts: %w", err)
	}
	printSummary(res, paths)
	return nil
}

// openSource builds the configured customer source and its cleanup.
func openSource(ctx context.Context, cfg *config.Config, logger *zap.Logger) (port.CustomerSource, func(), error) {
	noop := func() {}
	var (
		db  *sqlx.DB
		err error
	)
	switch cfg.Source {
	case config.SourceCSV:
		return source.NewCSVFile(cfg.DataPath, logger), noop, nil
	case config.SourcePostgres:
		if cfg.DatabaseURL == "" {
			return nil, noop, &domain.ErrValidation{Field: "DATABASE_URL", Message: "required for the postgres source"}
		}
		db, err = source.OpenPostgres(ctx, cfg.DatabaseURL)
	case config.SourceMySQL:
		if cfg.MySQLDSN == "" {
			return nil, noop, &domain.ErrValidation{Field: "MYSQL_DSN", Message: "required for the mysql source"}
		}
		db, err = source.OpenMySQL(ctx, cfg.MySQLDSN)
	default:
		return nil, noop, &domain.ErrValidation{Field: "SOURCE", Message: fmt.Sprintf("unknown source %q", cfg.Source)}
	}
	if err != nil {
		return nil, noop, err
	}

	src, err := source.NewSQL(db, source.SQLConfig{
		Table:        cfg.SourceTable,
		QueryTimeout: cfg.QueryTimeout,
		Retry: resilience.Config{
			MaxRetries:     cfg.MaxRetries,
			InitialBackoff: cfg.InitialBackoff,
		},
	}, logger)
	if err != nil {
		db.Close()
		return nil, noop, err
	}
	return src, func() { db.Close() }, nil
}

func printSummary(res *domain.AnalysisResult, paths []string) {
	s := res.Summary()
	fmt.Printf("run %s: %d customers, analysis date %s\n", s.RunID, s.Customers, s.AnalysisDate)
	fmt.Println("\nRFM segments:")
	for _, seg := range s.RFMSegments {
		fmt.Printf("  %-20s %6d  recency %7.1f  frequency %5.2f  monetary %9.2f\n",
			seg.Segment, seg.Customers, seg.MeanRecency, seg.MeanFrequency, seg.MeanMonetary)
	}
	fmt.Println("\nCLTV segments:")
	for _, seg := range s.ValueSegments {
		fmt.Printf("  %-3s %6d  mean cltv %9.2f  sum cltv %12.2f\n",
			seg.Segment, seg.Customers, seg.MeanCLTV, seg.SumCLTV)
	}
	fmt.Printf("\nforecast total %.2f, mean %.2f\n", s.TotalForecast, s.AverageForecast)
	fmt.Println("\nartifacts:")
	for _, p := range paths {
		fmt.Println("  " + p)
	}
}
