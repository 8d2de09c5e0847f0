package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yungbote/lexbridge-backend/internal/app"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Compare indexed vectors with stored chunks",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		rep, err := a.Services.Ingestion.IndexReport(ctx)
		if err != nil {
			return fmt.Errorf("index report: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd, rep)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Provider:          %s\n", rep.Provider)
		fmt.Fprintf(cmd.OutOrStdout(), "Documents:         %d\n", rep.Documents)
		fmt.Fprintf(cmd.OutOrStdout(), "Chunks:            %d (%d from fallback providers)\n", rep.Chunks, rep.FallbackChunks)
		fmt.Fprintf(cmd.OutOrStdout(), "Vectors (total):   %d\n", rep.IndexedVectors)
		fmt.Fprintf(cmd.OutOrStdout(), "Vectors (ns):      %d\n", rep.NamespaceVectors)
		fmt.Fprintf(cmd.OutOrStdout(), "Vectors (rows):    %d\n", rep.RecordedVectors)
		if !rep.Consistent {
			fmt.Fprintln(cmd.OutOrStdout(), "WARNING: index vector count does not match chunk or document counts")
		}
		return nil
	})
}
