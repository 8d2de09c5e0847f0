package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yungbote/lexbridge-backend/internal/app"
	"github.com/yungbote/lexbridge-backend/internal/modules/legal/rag"
)

var askUngrounded bool

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a legal question from the indexed documents",
	Long: `Retrieves the closest chunks from the vector index and asks the chat model
to answer from them, citing sources. With --ungrounded the model answers from
general knowledge and no sources are returned.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askUngrounded, "ungrounded", false, "skip retrieval and answer from general knowledge")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return fmt.Errorf("question is empty")
	}
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		var (
			resp rag.Response
			err  error
		)
		if askUngrounded {
			resp, err = a.Services.RAG.QueryWithoutRAG(ctx, question, nil)
		} else {
			resp, err = a.Services.RAG.Answer(ctx, question, nil)
		}
		if err != nil {
			return fmt.Errorf("query failed: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd, resp)
		}
		outputAnswer(cmd, resp)
		return nil
	})
}

func outputAnswer(cmd *cobra.Command, resp rag.Response) {
	fmt.Fprintln(cmd.OutOrStdout(), resp.Answer)
	fmt.Fprintln(cmd.OutOrStdout())
	if resp.Degraded {
		fmt.Fprintln(cmd.OutOrStdout(), "(retrieval unavailable; answered without sources)")
	}
	if len(resp.Sources) > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Sources:")
		for i, s := range resp.Sources {
			line := fmt.Sprintf("  [%d] %s", i+1, s.Title)
			if s.Citation != "" {
				line += " - " + s.Citation
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%.0f%%)\n", line, s.Score*100)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Model: %s  Confidence: %.2f  Tokens: %d\n", resp.ModelUsed, resp.Confidence, resp.TokensUsed)
}
