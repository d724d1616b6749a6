package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/nesttask/nesttask-push/internal/config"
	"github.com/nesttask/nesttask-push/internal/logging"
	"github.com/nesttask/nesttask-push/internal/metrics"
	"github.com/nesttask/nesttask-push/internal/push"
	"github.com/nesttask/nesttask-push/internal/reminder"
	"github.com/nesttask/nesttask-push/internal/store"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run only the deadline reminder loop.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorker()
	},
}

func runWorker() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.ReminderInterval <= 0 {
		return errors.New("REMINDER_INTERVAL must be > 0 to run the worker")
	}

	logger, err := logging.BootstrapFromEnv(logging.BootstrapOptions{Command: "worker"})
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
	svc := push.NewService(newGateway(cfg, cred), st, cfg.PushWorkers, logging.ForComponent(logger, "push"))

	_, metricsErr := metrics.StartServer(ctx, cfg.MetricsAddr, logger)
	go func() {
		if err, ok := <-metricsErr; ok && err != nil {
			logger.Error("metrics server failed", slog.Any("error", err))
		}
	}()

	logger.Info("reminder worker started",
		slog.Duration("interval", cfg.ReminderInterval),
		slog.Duration("window", cfg.ReminderWindow),
	)
	scheduler := &reminder.Scheduler{
		Deliverer: svc,
		Tasks:     st,
		Interval:  cfg.ReminderInterval,
		Window:    cfg.ReminderWindow,
		Logger:    logging.ForComponent(logger, "reminder"),
	}
	scheduler.Run(ctx)
	return nil
}
