package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/sprintpilot/internal/models"
)

var (
	settingsEnabled  bool
	settingsProvider string
	settingsModel    string
	settingsLimit    int64
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change assistant settings for the workspace",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := apiClient.GetSettings(cmd.Context(), workspaceID)
		if err != nil {
			return fmt.Errorf("get settings: %w", err)
		}
		printSettings(cmd.OutOrStdout(), st)
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change assistant settings",
	Long: `Change assistant settings. Only the flags you pass are changed.

Examples:
  sprintpilot settings set --enabled --provider anthropic
  sprintpilot settings set --model claude-sonnet-4-5
  sprintpilot settings set --limit 2000000
  sprintpilot settings set --enabled=false`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		var update models.SettingsUpdate
		if flags.Changed("enabled") {
			update.Enabled = &settingsEnabled
		}
		if flags.Changed("provider") {
			update.Provider = &settingsProvider
		}
		if flags.Changed("model") {
			update.Model = &settingsModel
		}
		if flags.Changed("limit") {
			update.MonthlyTokenLimit = &settingsLimit
		}
		if update == (models.SettingsUpdate{}) {
			return errors.New("nothing to change: pass at least one of --enabled, --provider, --model, --limit")
		}

		st, err := apiClient.UpdateSettings(cmd.Context(), workspaceID, update)
		if err != nil {
			return fmt.Errorf("update settings: %w", err)
		}
		printSettings(cmd.OutOrStdout(), st)
		return nil
	},
}

func init() {
	settingsSetCmd.Flags().BoolVar(&settingsEnabled, "enabled", false, "turn the assistant on or off")
	settingsSetCmd.Flags().StringVar(&settingsProvider, "provider", "", "LLM provider name")
	settingsSetCmd.Flags().StringVar(&settingsModel, "model", "", "model id (empty for the server default)")
	settingsSetCmd.Flags().Int64Var(&settingsLimit, "limit", 0, "monthly token limit")

	settingsCmd.AddCommand(settingsSetCmd)
}
