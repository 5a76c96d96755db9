package commands

import (
	"fmt"

	"helpcy/internal/config"
	"helpcy/internal/services"
	"helpcy/internal/version"

	"github.com/spf13/cobra"
)

// CategoriesCommand prints the configured taxonomy
func CategoriesCommand(cfg *config.Config) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Print the category taxonomy",
		Long: `Print the categories and subcategories users can choose from.

The built-in taxonomy is used unless catalog.file points at an override.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := services.NewCatalogFromConfig(cfg.Catalog)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), catalog.Entries())
			}

			out := cmd.OutOrStdout()
			fmt.Fprint(out, catalog.String())
			category, subcategory := catalog.FallbackPair()
			fmt.Fprintf(out, "\nFallback: %s / %s\n", category, subcategory)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the taxonomy as JSON")
	return cmd
}

// VersionCommand prints build metadata
func VersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
