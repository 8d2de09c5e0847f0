package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/yungbote/lexbridge-backend/internal/app"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Run one crawl over the configured seed sites",
	Long: `Runs a manual crawl synchronously and prints the run summary.
Fails if another crawl holds the run lock.`,
	Args: cobra.NoArgs,
	RunE: runCrawl,
}

func init() {
	rootCmd.AddCommand(crawlCmd)
}

func runCrawl(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		res, err := a.Services.Scheduler.TriggerManualCrawl(ctx)
		if err != nil {
			return fmt.Errorf("crawl failed: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd, res)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Discovered: %d\nIngested:   %d\nSkipped:    %d\nFailed:     %d\nDuration:   %s\n",
			res.Discovered, res.Ingested, res.Skipped, res.Failed, res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))
		for _, f := range res.Failures {
			fmt.Fprintf(cmd.OutOrStdout(), "  ! %s: %s\n", f.URL, f.Error)
		}
		return nil
	})
}
