package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yungbote/lexbridge-backend/internal/app"
)

var deleteCmd = &cobra.Command{
	Use:   "delete [documentId]",
	Short: "Remove a document with its chunks and vectors",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid document id %q: %w", args[0], err)
	}
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		if err := a.Services.Ingestion.DeleteDocument(ctx, id); err != nil {
			return fmt.Errorf("delete failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted document %s\n", id)
		return nil
	})
}
