// Package cli provides the command-line interface for sprintpilot.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/sprintpilot/internal/client"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	serverURL   string
	workspaceID string
	userID      string

	// apiClient talks to the server. Set in PersistentPreRunE.
	apiClient *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "sprintpilot",
	Short: "AI planning assistant for your team workspace",
	Long: `SprintPilot is an AI planning assistant for team workspaces.

Ask about team capacity, the backlog, upcoming deadlines and projects.
The assistant answers from live workspace data and can create projects,
epics and stories for you.

Most commands talk to a running sprintpilot-server
(SPRINTPILOT_SERVER_URL, default http://localhost:8585).`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// seed works on the store directly
		if cmd.Name() == "seed" || cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}
		if workspaceID == "" {
			return fmt.Errorf("workspace required: pass --workspace or set SPRINTPILOT_WORKSPACE")
		}
		apiClient = client.New(serverURL, userID)
		return nil
	},
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (default $SPRINTPILOT_SERVER_URL or http://localhost:8585)")
	rootCmd.PersistentFlags().StringVarP(&workspaceID, "workspace", "w", os.Getenv("SPRINTPILOT_WORKSPACE"), "workspace id")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", defaultUser(), "your member id")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(conversationsCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(usageCmd)
	rootCmd.AddCommand(seedCmd)
}

func defaultUser() string {
	if u := os.Getenv("SPRINTPILOT_USER"); u != "" {
		return u
	}
	return os.Getenv("USER")
}
