package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/me/workprep/internal/config"
	"github.com/me/workprep/internal/server"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cfg := config.DefaultServerConfig()
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the genome catalog and work-item ledger over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := loadCatalog()
			if err != nil {
				return err
			}
			cfg.LogLevel, cfg.LogFormat = flagLogLevel, flagLogFormat

			var opts []server.Option
			if cfg.DBPath != "" {
				ledger, err := openLedger(cmd.Context(), cfg.DBPath)
				if err != nil {
					return err
				}
				defer ledger.Close()
				logger.Info("ledger ready", "path", cfg.DBPath)
				opts = append(opts, server.WithLedger(ledger))
			}

			srv := server.New(cfg, cat, logger, opts...)
			httpServer := &http.Server{
				Addr:              cfg.Addr,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			// Graceful shutdown
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errc := make(chan error, 1)
			go func() {
				logger.Info("server starting", "addr", cfg.Addr)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errc <- err
				}
				close(errc)
			}()

			select {
			case err := <-errc:
				if err != nil {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}
			logger.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			logger.Info("server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&cfg.Addr, "addr", cfg.Addr, "Listen address")
	cmd.Flags().StringVar(&cfg.DBPath, "db", cfg.DBPath, "Work-item ledger database to serve")
	return cmd
}
