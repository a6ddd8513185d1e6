package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/solera-erp/solera-erp/internal/app"
	"github.com/solera-erp/solera-erp/internal/platform/db"
	"github.com/solera-erp/solera-erp/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	Example: `  # Apply migrations against PG_DSN
  solerctl migrate`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg)

	if err := db.Migrate(migrations.Files, cfg.PGDSN); err != nil {
		return err
	}
	logger.Info("migrations applied", slog.String("dsn", cfg.PGDSN))
	return nil
}
