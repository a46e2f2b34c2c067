package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/sprintpilot/internal/client"
	"github.com/raphaelgruber/sprintpilot/internal/models"
)

var (
	listArchived bool
	listAll      bool
	listProject  string
	listLimit    int
	deleteForce  bool
)

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conv"},
	Short:   "Manage conversations",
}

var convListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your conversations",
	Long: `List conversations in the workspace, most recently updated first.

Examples:
  sprintpilot conversations list
  sprintpilot conversations list --archived
  sprintpilot conversations list --all --project p1`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		convs, err := apiClient.ListConversations(cmd.Context(), workspaceID, client.ListOptions{
			ProjectID:       listProject,
			Mine:            !listAll,
			IncludeArchived: listArchived,
			Limit:           listLimit,
		})
		if err != nil {
			return fmt.Errorf("list conversations: %w", err)
		}
		printConversations(cmd.OutOrStdout(), convs)
		return nil
	},
}

var convShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conv, err := apiClient.GetConversation(cmd.Context(), workspaceID, args[0])
		if err != nil {
			return fmt.Errorf("get conversation: %w", err)
		}
		printMessages(cmd.OutOrStdout(), conv)
		return nil
	},
}

var convRenameCmd = &cobra.Command{
	Use:   "rename <id> <title>",
	Short: "Rename a conversation",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateConversation(cmd, args[0], models.ConversationUpdate{Title: &args[1]}, "Renamed")
	},
}

var convArchiveCmd = &cobra.Command{
	Use:   "archive <id>",
	Short: "Archive a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateConversation(cmd, args[0], models.ConversationUpdate{Archived: models.Ptr(true)}, "Archived")
	},
}

var convUnarchiveCmd = &cobra.Command{
	Use:   "unarchive <id>",
	Short: "Restore an archived conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateConversation(cmd, args[0], models.ConversationUpdate{Archived: models.Ptr(false)}, "Restored")
	},
}

var convDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a conversation and its messages",
	Long: `Delete a conversation and all of its messages. This cannot be undone.

Examples:
  sprintpilot conversations delete 3f2a...
  sprintpilot conversations delete 3f2a... --force`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		out := cmd.OutOrStdout()
		if !deleteForce {
			fmt.Fprintf(out, "Delete conversation %s? [y/N] ", id)
			var answer string
			_, _ = fmt.Fscanln(cmd.InOrStdin(), &answer)
			if answer != "y" && answer != "Y" {
				fmt.Fprintln(out, "Cancelled.")
				return nil
			}
		}
		if err := apiClient.DeleteConversation(cmd.Context(), workspaceID, id); err != nil {
			return fmt.Errorf("delete conversation: %w", err)
		}
		fmt.Fprintf(out, "Deleted %s\n", id)
		return nil
	},
}

func init() {
	convListCmd.Flags().BoolVar(&listArchived, "archived", false, "include archived conversations")
	convListCmd.Flags().BoolVar(&listAll, "all", false, "include conversations started by others")
	convListCmd.Flags().StringVarP(&listProject, "project", "p", "", "only conversations about this project")
	convListCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "max conversations to list")

	convDeleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "skip confirmation")

	conversationsCmd.AddCommand(convListCmd, convShowCmd, convRenameCmd, convArchiveCmd, convUnarchiveCmd, convDeleteCmd)
}

func updateConversation(cmd *cobra.Command, id string, update models.ConversationUpdate, verb string) error {
	conv, err := apiClient.UpdateConversation(cmd.Context(), workspaceID, id, update)
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, conv.ID)
	return nil
}
