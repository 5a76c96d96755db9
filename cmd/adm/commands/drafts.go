package commands

import (
	"context"
	"fmt"
	"time"

	"helpcy/internal/di"
	"helpcy/internal/models"
	"helpcy/internal/services"
	contextutils "helpcy/internal/utils"

	"github.com/spf13/cobra"
)

// ContainerProvider initializes the service container on first use, so
// commands that need no services never open the database.
type ContainerProvider func(ctx context.Context) (di.ServiceContainerInterface, error)

// DraftCommands returns the draft inspection commands
func DraftCommands(provide ContainerProvider) *cobra.Command {
	draftsCmd := &cobra.Command{
		Use:   "drafts",
		Short: "Inspect and clear report drafts",
		Long: `Inspect and clear report drafts.

Available commands:
  get       - Show a user's draft and the prompt for its current step
  clear     - Discard a user's draft
  reports   - List a user's submitted reports
  purge     - Discard drafts nobody touched within the draft TTL

Drafts live in the configured store; with store.driver "memory" only the
drafts of this process are visible.`,
	}

	draftsCmd.AddCommand(draftGetCmd(provide))
	draftsCmd.AddCommand(draftClearCmd(provide))
	draftsCmd.AddCommand(reportsCmd(provide))
	draftsCmd.AddCommand(draftPurgeCmd(provide))
	return draftsCmd
}

func draftGetCmd(provide ContainerProvider) *cobra.Command {
	var userID int64

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Show a user's draft",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := context.Background()
			container, err := provide(ctx)
			if err != nil {
				return err
			}
			conversation, err := container.GetConversationService()
			if err != nil {
				return err
			}

			draft, action, err := conversation.Current(ctx, userID)
			if err != nil {
				return contextutils.WrapErrorf(err, "failed to load draft for user %d", userID)
			}
			if draft == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "User %d has no draft\n", userID)
				return nil
			}
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{"draft": draft, "next": action})
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "User id (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func draftClearCmd(provide ContainerProvider) *cobra.Command {
	var userID int64

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Discard a user's draft",
		Long: `Discard a user's draft by sending the same clear event the /clear
chat command sends, so the conversation restarts at the location step.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := context.Background()
			container, err := provide(ctx)
			if err != nil {
				return err
			}
			conversation, err := container.GetConversationService()
			if err != nil {
				return err
			}

			event := models.NewSignalEvent(userID, models.EventClearRequested).From(models.SourceCLI)
			action, err := conversation.Dispatch(contextutils.WithEventSource(ctx, string(models.SourceCLI)), event)
			if err != nil {
				return contextutils.WrapErrorf(err, "failed to clear draft for user %d", userID)
			}
			container.GetLogger().Info(ctx, "Draft cleared from the admin tool", map[string]interface{}{"user_id": userID})
			fmt.Fprintf(cmd.OutOrStdout(), "Draft for user %d cleared, next step: %s\n", userID, action.Type)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "User id (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func reportsCmd(provide ContainerProvider) *cobra.Command {
	var userID int64
	var limit int

	cmd := &cobra.Command{
		Use:   "reports",
		Short: "List a user's submitted reports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := context.Background()
			container, err := provide(ctx)
			if err != nil {
				return err
			}
			reports, err := container.GetReportRepository()
			if err != nil {
				return err
			}

			list, err := reports.ListByUser(ctx, userID, limit)
			if err != nil {
				return contextutils.WrapErrorf(err, "failed to list reports for user %d", userID)
			}
			return printJSON(cmd.OutOrStdout(), list)
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "User id (required)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of reports")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func draftPurgeCmd(provide ContainerProvider) *cobra.Command {
	var olderThan time.Duration
	var stats bool

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Discard idle drafts",
		Long: `Discard drafts that have not changed within the idle window.

The window defaults to store.draft_ttl; --older-than overrides it.
Use --stats to count the drafts that would be discarded without removing them.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := context.Background()
			container, err := provide(ctx)
			if err != nil {
				return err
			}
			store, err := container.GetDraftStore()
			if err != nil {
				return err
			}
			purger, ok := store.(services.IdleDraftPurger)
			if !ok {
				return contextutils.ErrorWithContextf("draft store %T cannot discard idle drafts", store)
			}

			if olderThan <= 0 {
				olderThan = container.GetConfig().Store.DraftTTL
			}
			cleanup := services.NewCleanupServiceWithLogger(purger, olderThan, container.GetLogger())

			if stats {
				result, err := cleanup.GetCleanupStats(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Drafts idle for more than %s: %d\n", cleanup.TTL(), result["idle_drafts"])
				return nil
			}

			purged, err := cleanup.CleanupIdleDrafts(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Discarded %d drafts idle for more than %s\n", purged, cleanup.TTL())
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Idle window (defaults to store.draft_ttl)")
	cmd.Flags().BoolVar(&stats, "stats", false, "Only count the idle drafts")
	return cmd
}
