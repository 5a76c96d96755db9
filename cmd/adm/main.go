// Package main provides the main entry point for the helpcy admin CLI tool.
package main

import (
	"context"
	"fmt"
	"os"

	"helpcy/cmd/adm/commands"
	"helpcy/internal/config"
	"helpcy/internal/di"
	"helpcy/internal/observability"

	"github.com/spf13/cobra"
)

func main() {
	ctx := context.Background()

	// Set default config file if not already set
	if os.Getenv(config.ConfigFileEnv) == "" {
		for _, path := range []string{"config.yaml", "../config.yaml", "../../config.yaml"} {
			if _, err := os.Stat(path); err == nil {
				if err := os.Setenv(config.ConfigFileEnv, path); err != nil {
					fmt.Fprintf(os.Stderr, "Failed to set HELPCY_CONFIG_FILE environment variable: %v\n", err)
					os.Exit(1)
				}
				break
			}
		}
	}

	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Disable all OpenTelemetry features for admin CLI to avoid connection errors
	cfg.OpenTelemetry.EnableTracing = false
	cfg.OpenTelemetry.EnableMetrics = false
	cfg.OpenTelemetry.EnableLogging = false

	_, _, logger, err := observability.SetupObservability(&cfg.OpenTelemetry, "helpcy-admin", "error")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize observability: %v\n", err)
		os.Exit(1)
	}

	var container *di.ServiceContainer
	provide := func(ctx context.Context) (di.ServiceContainerInterface, error) {
		if container == nil {
			c := di.NewServiceContainer(cfg, logger)
			if err := c.Initialize(ctx); err != nil {
				return nil, err
			}
			container = c
		}
		return container, nil
	}
	rootCmd := &cobra.Command{
		Use:   "adm",
		Short: "helpcy administration tool",
		Long: `helpcy administration tool

Inspect the category taxonomy, try the classifier on local files, look at
user drafts and apply database migrations.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				fmt.Printf("Error showing help: %v\n", err)
			}
		},
	}

	rootCmd.AddCommand(commands.CategoriesCommand(cfg))
	rootCmd.AddCommand(commands.ClassifyCommand(provide))
	rootCmd.AddCommand(commands.DraftCommands(provide))
	rootCmd.AddCommand(commands.MigrateCommand(cfg, logger))
	rootCmd.AddCommand(commands.VersionCommand())

	err = rootCmd.Execute()
	if container != nil {
		if shutdownErr := container.Shutdown(ctx); shutdownErr != nil {
			logger.Warn(ctx, "Warning: failed to shutdown services", map[string]interface{}{"error": shutdownErr.Error()})
		}
	}
	if err != nil {
		os.Exit(1)
	}
}
