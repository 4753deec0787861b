package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"cybertrainer/internal/app"
	"cybertrainer/internal/config"
	"cybertrainer/internal/db"
	"cybertrainer/internal/observability"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.NewLogger()

		cfg, err := config.Load(loadDotEnv)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()

		database, err := app.OpenDatabase(ctx, cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		applied, err := db.RunMigrations(ctx, database)
		if err != nil {
			logger.Error("migrations_failed", map[string]any{"error": err.Error(), "applied": applied})
			return err
		}

		logger.Info("migrations_applied", map[string]any{"versions": applied})
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
