package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/nesttask/nesttask-push/internal/config"
	"github.com/nesttask/nesttask-push/internal/logging"
	"github.com/nesttask/nesttask-push/internal/push"
	"github.com/nesttask/nesttask-push/internal/store"
)

var (
	sendTaskID  string
	sendTitle   string
	sendBody    string
	sendSection string
	sendData    []string
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Deliver a single notification batch from the command line.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSend(cmd)
	},
}

func init() {
	sendCmd.Flags().StringVar(&sendTaskID, "task-id", "", "task the notification is about (required)")
	sendCmd.Flags().StringVar(&sendTitle, "title", "", "notification title (required)")
	sendCmd.Flags().StringVar(&sendBody, "body", "", "notification body (required)")
	sendCmd.Flags().StringVar(&sendSection, "section", "", "scope the audience to a section")
	sendCmd.Flags().StringArrayVar(&sendData, "data", nil, "extra data entry as key=value, repeatable")
	_ = sendCmd.MarkFlagRequired("task-id")
	_ = sendCmd.MarkFlagRequired("title")
	_ = sendCmd.MarkFlagRequired("body")
}

func runSend(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.BootstrapFromEnv(logging.BootstrapOptions{Command: "send"})
	if err != nil {
		return err
	}

	data, err := parseDataFlags(sendData)
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

	cred, err := loadCredential(ctx, cfg)
	if err != nil {
		return err
	}
	svc := push.NewService(newGateway(cfg, cred), store.New(pool), cfg.PushWorkers, logging.ForComponent(logger, "push"))

	result, deliverErr := svc.Deliver(ctx, push.Notification{
		TaskID:    sendTaskID,
		Title:     sendTitle,
		Body:      sendBody,
		SectionID: sendSection,
		Data:      data,
	})
	if deliverErr != nil {
		return deliveryExitError(deliverErr)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// deliveryExitError maps a one-off delivery failure onto process exit codes:
// interrupted runs exit 130 without noise, everything else exits 1.
func deliveryExitError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return &exitError{code: 130, err: err, silent: true}
	}
	return &exitError{code: 1, err: err, silent: false}
}

func parseDataFlags(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	data := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, errors.New("invalid --data entry, want key=value: " + pair)
		}
		data[strings.TrimSpace(key)] = value
	}
	return data, nil
}
