package main

import (
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/solera-erp/solera-erp/internal/app"
	"github.com/solera-erp/solera-erp/jobs"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep-overdue",
	Short: "Enqueue an immediate overdue sweep",
	Long: `Enqueues the overdue sweep task for the worker to process now,
instead of waiting for the nightly schedule. The sweep logs overdue
invoices and refreshes the cached billing summary.`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg)

	client, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	info, err := client.EnqueueOverdueSweep(cmd.Context())
	if err != nil {
		return err
	}
	logger.Info("overdue sweep enqueued", slog.String("task_id", info.ID), slog.String("queue", info.Queue))
	return nil
}
