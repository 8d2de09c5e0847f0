package gcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"

	"github.com/yungbote/lexbridge-backend/internal/platform/ctxutil"
	"github.com/yungbote/lexbridge-backend/internal/platform/envutil"
	"github.com/yungbote/lexbridge-backend/internal/platform/logger"
)

// OCR turns scanned documents into text.
type OCR interface {
	ExtractText(ctx context.Context, data []byte, mimeType string) (string, error)
	Close() error
}

type DocumentAIConfig struct {
	ProjectID        string
	Location         string
	ProcessorID      string
	ProcessorVersion string
	Timeout          time.Duration
}

// DocumentAIConfigFromEnv reports ok=false when no processor is configured.
func DocumentAIConfigFromEnv() (DocumentAIConfig, bool) {
	cfg := DocumentAIConfig{
		ProjectID:        envutil.String("DOCUMENTAI_PROJECT_ID", envutil.String("GOOGLE_CLOUD_PROJECT", "")),
		Location:         envutil.String("DOCUMENTAI_LOCATION", "us"),
		ProcessorID:      envutil.String("DOCUMENTAI_PROCESSOR_ID", ""),
		ProcessorVersion: envutil.String("DOCUMENTAI_PROCESSOR_VERSION", ""),
		Timeout:          envutil.Duration("DOCUMENTAI_TIMEOUT_SECONDS", time.Second, 3*time.Minute),
	}
	return cfg, processorName(cfg.ProjectID, cfg.Location, cfg.ProcessorID, cfg.ProcessorVersion) != ""
}

type documentOCR struct {
	log       *logger.Logger
	client    *documentai.DocumentProcessorClient
	processor string
	timeout   time.Duration
}

func NewDocumentOCR(log *logger.Logger, cfg DocumentAIConfig) (OCR, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	name := processorName(cfg.ProjectID, cfg.Location, cfg.ProcessorID, cfg.ProcessorVersion)
	if name == "" {
		return nil, fmt.Errorf("documentai: project, location and processor id are required")
	}
	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)
	opts := append([]option.ClientOption{option.WithEndpoint(endpoint)}, ClientOptionsFromEnv()...)
	c, err := documentai.NewDocumentProcessorClient(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("documentai client: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Minute
	}
	slog := log.With("service", "gcp.DocumentOCR")
	slog.Info("Document AI initialized", "endpoint", endpoint, "processor", name)
	return &documentOCR{log: slog, client: c, processor: name, timeout: cfg.Timeout}, nil
}

func (s *documentOCR) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *documentOCR) ExtractText(ctx context.Context, data []byte, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	if mimeType == "" {
		mimeType = "application/pdf"
	}
	ctx, cancel := context.WithTimeout(ctxutil.Default(ctx), s.timeout)
	defer cancel()

	resp, err := s.client.ProcessDocument(ctx, &documentaipb.ProcessRequest{
		Name: s.processor,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{Content: data, MimeType: mimeType},
		},
	})
	if err != nil {
		return "", fmt.Errorf("documentai ProcessDocument: %w", err)
	}
	if resp == nil || resp.Document == nil {
		return "", nil
	}
	return documentText(resp.Document), nil
}

// documentText rebuilds page-ordered text from paragraphs, rendering tables
// as markdown. Falls back to the flat text when no layout is present.
func documentText(doc *documentaipb.Document) string {
	if doc == nil {
		return ""
	}
	var out strings.Builder
	for _, p := range doc.Pages {
		if p == nil {
			continue
		}
		for _, para := range p.Paragraphs {
			if para == nil || para.Layout == nil {
				continue
			}
			if t := collapseWhitespace(textFromAnchor(doc.Text, para.Layout.TextAnchor)); t != "" {
				out.WriteString(t)
				out.WriteString("\n")
			}
		}
		for _, tbl := range p.Tables {
			if md := tableToMarkdown(doc.Text, tbl); md != "" {
				out.WriteString("\n")
				out.WriteString(md)
			}
		}
		out.WriteString("\n")
	}
	if text := strings.TrimSpace(out.String()); text != "" {
		return text
	}
	return strings.TrimSpace(doc.Text)
}

func textFromAnchor(full string, anchor *documentaipb.Document_TextAnchor) string {
	if anchor == nil || full == "" {
		return ""
	}
	var b strings.Builder
	for _, seg := range anchor.TextSegments {
		if seg == nil {
			continue
		}
		start, end := int(seg.StartIndex), int(seg.EndIndex)
		if start < 0 {
			start = 0
		}
		if end > len(full) {
			end = len(full)
		}
		if start < end {
			b.WriteString(full[start:end])
		}
	}
	return b.String()
}

func tableToMarkdown(full string, t *documentaipb.Document_Page_Table) string {
	if t == nil {
		return ""
	}
	var rows [][]string
	for _, r := range t.HeaderRows {
		rows = append(rows, rowCells(full, r))
	}
	for _, r := range t.BodyRows {
		rows = append(rows, rowCells(full, r))
	}
	cols := 0
	for _, r := range rows {
		if len(r) > cols {
			cols = len(r)
		}
	}
	if cols == 0 {
		return ""
	}

	var out strings.Builder
	writeRow := func(cells []string) {
		for len(cells) < cols {
			cells = append(cells, "")
		}
		out.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	writeRow(rows[0])
	sep := make([]string, cols)
	for i := range sep {
		sep[i] = "---"
	}
	writeRow(sep)
	for _, r := range rows[1:] {
		writeRow(r)
	}
	return out.String()
}

func rowCells(full string, r *documentaipb.Document_Page_Table_TableRow) []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.Cells))
	for _, c := range r.Cells {
		text := ""
		if c != nil && c.Layout != nil {
			text = collapseWhitespace(textFromAnchor(full, c.Layout.TextAnchor))
		}
		out = append(out, strings.ReplaceAll(text, "|", "\\|"))
	}
	return out
}

func processorName(project, location, processorID, version string) string {
	project = strings.TrimSpace(project)
	location = strings.TrimSpace(location)
	processorID = strings.TrimSpace(processorID)
	if project == "" || location == "" || processorID == "" {
		return ""
	}
	base := fmt.Sprintf("projects/%s/locations/%s/processors/%s", project, location, processorID)
	if v := strings.TrimSpace(version); v != "" {
		return base + "/processorVersions/" + v
	}
	return base
}
