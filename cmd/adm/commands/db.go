// Package commands provides CLI commands for the admin tool
package commands

import (
	"context"
	"fmt"

	"helpcy/internal/config"
	"helpcy/internal/database"
	"helpcy/internal/observability"
	contextutils "helpcy/internal/utils"

	"github.com/spf13/cobra"
)

// MigrateCommand returns the migrate command
func MigrateCommand(cfg *config.Config, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Long: `Apply the embedded schema migrations to the configured database.

The database is taken from database.driver and database.url; migrations are
also applied on server startup when store.driver is "sql".`,
		RunE: runMigrate(cfg, logger),
	}
}

func runMigrate(cfg *config.Config, logger *observability.Logger) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		ctx := context.Background()

		logger.Info(ctx, "Running migrations", map[string]interface{}{
			"driver": cfg.Database.Driver,
			"url":    maskDatabaseURL(cfg.Database.URL),
		})

		db, _, err := database.NewManager(logger).InitDB(ctx, cfg.Database)
		if err != nil {
			return contextutils.WrapError(err, "failed to migrate database")
		}
		defer func() {
			if err := db.Close(); err != nil {
				logger.Warn(ctx, "Warning: failed to close database connection", map[string]interface{}{"error": err.Error()})
			}
		}()

		fmt.Fprintf(cmd.OutOrStdout(), "Migrations applied to %s (%s)\n", maskDatabaseURL(cfg.Database.URL), cfg.Database.Driver)
		return nil
	}
}
