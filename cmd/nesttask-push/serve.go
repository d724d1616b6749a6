package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nesttask/nesttask-push/internal/config"
	"github.com/nesttask/nesttask-push/internal/httpapp"
	"github.com/nesttask/nesttask-push/internal/logging"
	"github.com/nesttask/nesttask-push/internal/metrics"
	"github.com/nesttask/nesttask-push/internal/push"
	"github.com/nesttask/nesttask-push/internal/reminder"
	"github.com/nesttask/nesttask-push/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the push API server and the deadline reminder loop.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.BootstrapFromEnv(logging.BootstrapOptions{Command: "serve"})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	st := store.New(pool)

	cred, err := loadCredential(ctx, cfg)
	if err != nil {
		return err
	}
	gateway := newGateway(cfg, cred)

	svc := push.NewService(gateway, st, cfg.PushWorkers, logging.ForComponent(logger, "push"))

	scheduler := &reminder.Scheduler{
		Deliverer: svc,
		Tasks:     st,
		Interval:  cfg.ReminderInterval,
		Window:    cfg.ReminderWindow,
		Logger:    logging.ForComponent(logger, "reminder"),
	}
	go scheduler.Run(ctx)

	_, metricsErr := metrics.StartServer(ctx, cfg.MetricsAddr, logger)

	srv, err := httpapp.NewEchoServer(cfg, svc, st, logging.ForComponent(logger, "http"))
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", slog.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		var cause error
		select {
		case <-gctx.Done():
		case cause = <-metricsErr:
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); cause == nil {
			cause = err
		}
		return cause
	})
	return g.Wait()
}
