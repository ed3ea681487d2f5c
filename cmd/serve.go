package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ifrog800/StravaAddon/config"
	"github.com/ifrog800/StravaAddon/pkg/bootstrap"
	"github.com/ifrog800/StravaAddon/pkg/logging"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the consent server, poller, and enrichment worker",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			logger, closeLogs, err := logging.Setup(cfg.LogDir, os.Getenv("DEBUG") != "")
			if err != nil {
				return err
			}
			defer func() {
				if err := closeLogs(); err != nil {
					slog.Error("closing log file", slog.Any("error", err))
				}
			}()

			svc, err := bootstrap.NewService(cfg, logger)
			if err != nil {
				return err
			}
			defer sentry.Flush(2 * time.Second)

			return run(cfg, svc, logger)
		},
	}

	rootCmd.AddCommand(cmd)
}

func run(cfg *config.Config, svc *bootstrap.Service, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      svc.Server.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("listening", "addr", cfg.ListenAddr)
		logger.Info("authorize new athletes at", "url", svc.Server.AuthorizeURL())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("consent server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return svc.Poller.Run(ctx, cfg.PollInterval)
	})
	g.Go(func() error {
		return svc.Worker.Run(ctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
