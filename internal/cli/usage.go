package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/sprintpilot/internal/metrics"
	"github.com/raphaelgruber/sprintpilot/internal/usage"
)

var usageServer bool

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show token usage for the workspace",
	Long: `Show this month's token usage against the workspace limit.

Examples:
  sprintpilot usage
  sprintpilot usage --server-stats`,
	RunE: runUsage,
}

func init() {
	usageCmd.Flags().BoolVar(&usageServer, "server-stats", false, "also show server runtime statistics")
}

func runUsage(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	report, err := apiClient.GetUsage(ctx, workspaceID)
	if err != nil {
		return fmt.Errorf("get usage: %w", err)
	}
	printUsageReport(out, report)

	if !usageServer {
		return nil
	}
	stats, err := apiClient.GetServerStats(ctx)
	if err != nil {
		return fmt.Errorf("get server stats: %w", err)
	}
	fmt.Fprintln(out)
	printServerStats(out, stats)
	return nil
}

func printUsageReport(w io.Writer, r *usage.Report) {
	fmt.Fprintf(w, "Token Usage (%s, %s)\n", r.WorkspaceID, r.Month)
	fmt.Fprintf(w, "═══════════════════════════════════════\n\n")
	fmt.Fprintf(w, "Input tokens:   %d\n", r.InputTokens)
	fmt.Fprintf(w, "Output tokens:  %d\n", r.OutputTokens)
	fmt.Fprintf(w, "Total tokens:   %d\n", r.TotalTokens)
	fmt.Fprintf(w, "Requests:       %d\n", r.RequestCount)
	fmt.Fprintf(w, "Limit:          %d (%.1f%% used, %d remaining)\n", r.Limit, r.PercentUsed, r.RemainingTokens)
}

// printServerStats displays server runtime statistics.
func printServerStats(w io.Writer, stats *metrics.Snapshot) {
	fmt.Fprintf(w, "Server Statistics (in-memory, since restart)\n")
	fmt.Fprintf(w, "═══════════════════════════════════════════════\n")
	fmt.Fprintf(w, "Uptime: %.1f seconds\n", stats.UptimeSeconds)

	if len(stats.Turns) > 0 {
		outcomes := make([]string, 0, len(stats.Turns))
		for outcome := range stats.Turns {
			outcomes = append(outcomes, outcome)
		}
		sort.Strings(outcomes)
		fmt.Fprintf(w, "\nTurns:\n")
		for _, outcome := range outcomes {
			fmt.Fprintf(w, "  %-14s %d\n", outcome, stats.Turns[outcome])
		}
	}

	if stats.ChatRound != nil {
		fmt.Fprintf(w, "\nChat Rounds:\n")
		printProviderStats(w, stats.ChatRound)
	}

	if stats.Summarize != nil {
		fmt.Fprintf(w, "\nSummaries:\n")
		printProviderStats(w, stats.Summarize)
	}

	if len(stats.Tools) > 0 {
		fmt.Fprintf(w, "\nTool Calls:\n")
		for _, t := range stats.Tools {
			fmt.Fprintf(w, "  %-24s %3d calls, %d failed, avg %.1fms, max %dms\n",
				t.Name, t.Count, t.Failures, t.AvgMs, t.MaxMs)
		}
	}

	if stats.DBQuery != nil {
		fmt.Fprintf(w, "\nDB Query:\n")
		printTiming(w, stats.DBQuery)
	}
}

// printTiming displays timing statistics for an operation.
func printTiming(w io.Writer, op *metrics.TimingSnapshot) {
	fmt.Fprintf(w, "  Calls: %d, Total: %dms\n", op.Count, op.TotalMs)
	fmt.Fprintf(w, "  Time: avg %.1fms, min %dms, max %dms\n", op.AvgMs, op.MinMs, op.MaxMs)
}

// printProviderStats displays timing and token statistics of a provider operation.
func printProviderStats(w io.Writer, op *metrics.ProviderSnapshot) {
	printTiming(w, &op.TimingSnapshot)
	fmt.Fprintf(w, "  Tokens In:  %d total, avg %.0f, max %d\n", op.InputTokens, op.AvgInputTokens, op.MaxInputTokens)
	fmt.Fprintf(w, "  Tokens Out: %d total\n", op.OutputTokens)
}
