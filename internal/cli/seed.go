package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/sprintpilot/internal/app"
	"github.com/raphaelgruber/sprintpilot/internal/config"
	"github.com/raphaelgruber/sprintpilot/internal/models"
)

var seedWipe bool

var seedCmd = &cobra.Command{
	Use:   "seed <fixture.yaml>",
	Short: "Load a demo workspace into the database",
	Long: `Load a workspace fixture (members, tasks, time off, projects, epics)
directly into SurrealDB. Uses the same SURREALDB_* settings as the server.

Examples:
  sprintpilot seed testdata/demo.yaml
  sprintpilot seed --wipe testdata/demo.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().BoolVar(&seedWipe, "wipe", false, "delete all data before seeding")
}

func runSeed(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open fixture: %w", err)
	}
	defer f.Close()

	fx, err := models.DecodeFixture(f)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Store == config.StoreMemory {
		return errors.New("seed needs a persistent store; the memory store loads fixtures via SPRINTPILOT_FIXTURE")
	}
	cfg.LogFile = ""
	logger, cleanup := config.SetupLogger(cfg, "seed")
	defer func() { _ = cleanup() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() { _ = a.Close(context.Background()) }()

	if seedWipe {
		if err := a.WipeData(ctx); err != nil {
			return fmt.Errorf("wipe: %w", err)
		}
	}
	if err := a.Seed(ctx, fx); err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s Seeded workspace %s: %d members, %d tasks, %d projects, %d epics\n",
		defaultTheme.completedStyle().Render("✓"), fx.Workspace.ID,
		len(fx.Members), len(fx.Tasks), len(fx.Projects), len(fx.Epics))
	return nil
}
