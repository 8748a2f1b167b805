package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/domain"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/handler"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/infra/cache"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/infra/resilience"
	"github.com/necatictnkyaa1/crm-analytics-rfm-cltv/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(f *flags) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the batch-run HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags(), f)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.close()
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "listen port (PORT)")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	analyzer, err := a.analyzer(nil)
	if err != nil {
		return err
	}

	// --- Run registry ---
	runs := cache.New[*domain.AnalysisResult](a.cfg.RunTTL)
	defer runs.Close()
	registry := service.NewRunRegistry(
		analyzer,
		runs,
		resilience.NewBulkhead(a.cfg.MaxConcurrentRuns),
		a.cfg.Analysis,
		a.metrics,
		a.logger,
	)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.Port),
		Handler:      handler.NewRouter(registry, a.metrics, a.cfg.MaxUploadBytes, a.logger),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server starting", zap.Int("port", a.cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// --- Graceful shutdown ---
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced shutdown: %w", err)
	}
	a.logger.Info("server stopped")
	return nil
}
