package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/yungbote/lexbridge-backend/internal/app"
	"github.com/yungbote/lexbridge-backend/internal/domain/legal"
	"github.com/yungbote/lexbridge-backend/internal/modules/legal/ingestion"
	"github.com/yungbote/lexbridge-backend/internal/modules/legal/ingestion/extractor"
)

var (
	ingestTitle    string
	ingestType     string
	ingestCategory string
	ingestCitation string
	ingestSource   string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Ingest a local file or directory",
	Long: `Extracts, chunks, embeds and indexes a PDF, DOCX, HTML or text file.
A directory is walked and every supported file is ingested; per-file
failures are reported without stopping the batch.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "document title (defaults to the file name)")
	ingestCmd.Flags().StringVar(&ingestType, "type", "", "document type: CONSTITUTION, ACT, REGULATION, CASE_LAW, PROCEDURE, FORM, GUIDELINE, TREATY, BILL, OTHER")
	ingestCmd.Flags().StringVar(&ingestCategory, "category", "", "document category")
	ingestCmd.Flags().StringVar(&ingestCitation, "citation", "", "formal citation")
	ingestCmd.Flags().StringVar(&ingestSource, "source-url", "", "origin URL recorded on the document")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	path := args[0]
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	meta := ingestion.Metadata{
		Title:     ingestTitle,
		Category:  ingestCategory,
		Citation:  ingestCitation,
		SourceURL: ingestSource,
	}
	if ingestType != "" {
		meta.DocumentType = legal.ParseDocumentType(ingestType)
	}

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		if info.IsDir() {
			res, err := a.Services.Ingestion.IngestDirectory(ctx, path, meta)
			if err != nil {
				return fmt.Errorf("ingest directory: %w", err)
			}
			if jsonOutput {
				return printJSON(cmd, res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d file(s), %d failed\n", res.SuccessCount(), res.FailureCount())
			for _, f := range res.Failed {
				fmt.Fprintf(cmd.OutOrStdout(), "  ! %s: %s\n", f.File, f.Error)
			}
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		name := filepath.Base(path)
		if meta.Title == "" {
			meta.Title = name
		}
		res, err := a.Services.Ingestion.IngestFile(ctx, ingestion.File{
			Data: data,
			Name: name,
			Type: extractor.DetectType(name, data),
		}, meta)
		if err != nil {
			return fmt.Errorf("ingest %s: %w", name, err)
		}
		if jsonOutput {
			return printJSON(cmd, res)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Document %s: %d chunk(s), %d vector(s)", res.DocumentID, res.ChunksProcessed, res.VectorsCreated)
		if res.FallbackVectors > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), " (%d from fallback providers)", res.FallbackVectors)
		}
		fmt.Fprintln(cmd.OutOrStdout())
		return nil
	})
}
