package extractor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
	pdf "github.com/ledongthuc/pdf"

	"github.com/yungbote/lexbridge-backend/internal/domain/legal"
	"github.com/yungbote/lexbridge-backend/internal/platform/logger"
)

type FileType string

const (
	FileTypePDF     FileType = "pdf"
	FileTypeDOCX    FileType = "docx"
	FileTypeDOC     FileType = "doc"
	FileTypeHTML    FileType = "html"
	FileTypeText    FileType = "txt"
	FileTypeUnknown FileType = ""
)

// OCR recognizes text in scanned documents.
type OCR interface {
	ExtractText(ctx context.Context, data []byte, mimeType string) (string, error)
}

type Extractor struct {
	log *logger.Logger
	ocr OCR
	// ocrBelow triggers OCR when a PDF text layer is shorter than this.
	ocrBelow int
	readPDF  func([]byte) (string, error)
}

func New(log *logger.Logger, ocr OCR, ocrBelow int) *Extractor {
	if log == nil {
		log = logger.Nop()
	}
	return &Extractor{log: log.With("service", "TextExtractor"), ocr: ocr, ocrBelow: ocrBelow}
}

// DetectType sniffs magic bytes first, then falls back to the extension.
func DetectType(fileName string, data []byte) FileType {
	switch {
	case bytes.HasPrefix(data, []byte("%PDF-")):
		return FileTypePDF
	case bytes.HasPrefix(data, []byte("PK\x03\x04")):
		return FileTypeDOCX
	case bytes.HasPrefix(data, []byte{0xD0, 0xCF, 0x11, 0xE0}):
		return FileTypeDOC
	case looksLikeHTML(data):
		return FileTypeHTML
	}
	return TypeFromName(fileName)
}

func TypeFromName(fileName string) FileType {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return FileTypePDF
	case ".docx":
		return FileTypeDOCX
	case ".doc":
		return FileTypeDOC
	case ".html", ".htm":
		return FileTypeHTML
	case ".txt", ".md":
		return FileTypeText
	}
	return FileTypeUnknown
}

func looksLikeHTML(b []byte) bool {
	head := strings.ToLower(strings.TrimSpace(string(b[:min(len(b), 2048)])))
	return strings.HasPrefix(head, "<!doctype html") || strings.HasPrefix(head, "<html") ||
		(strings.Contains(head, "<html") && strings.Contains(head, "<body"))
}

// Extract returns the plain text of a source file. Unsupported formats and
// parser failures are extraction errors.
func (e *Extractor) Extract(ctx context.Context, data []byte, fileName string, fileType FileType) (string, error) {
	if len(data) == 0 {
		return "", legal.Errorf(legal.KindExtraction, "extract", "empty file %q", fileName)
	}
	if fileType == FileTypeUnknown {
		fileType = DetectType(fileName, data)
	}

	var (
		text string
		err  error
	)
	switch fileType {
	case FileTypePDF:
		text, err = e.extractPDF(ctx, data)
	case FileTypeDOCX:
		text, err = extractDOCX(data)
	case FileTypeHTML:
		text = ExtractHTML(string(data))
	case FileTypeText:
		text = string(data)
	default:
		return "", legal.Errorf(legal.KindExtraction, "extract", "unsupported file type %q for %q", fileType, fileName)
	}
	if err != nil {
		return "", legal.NewError(legal.KindExtraction, "extract", fmt.Errorf("%s: %w", fileName, err))
	}
	return strings.TrimSpace(text), nil
}

// extractPDF concatenates page text in page order. When the text layer is
// thin and OCR is configured, the OCR result is used instead.
func (e *Extractor) extractPDF(ctx context.Context, data []byte) (string, error) {
	read := e.readPDF
	if read == nil {
		read = e.pdfText
	}
	text, err := read(data)
	if err != nil {
		return "", err
	}
	if e.ocr != nil && len(strings.TrimSpace(text)) < e.ocrBelow {
		ocrText, ocrErr := e.ocr.ExtractText(ctx, data, "application/pdf")
		if ocrErr != nil {
			e.log.Warn("OCR fallback failed", "error", ocrErr)
			return text, nil
		}
		if len(ocrText) > len(text) {
			e.log.Info("Using OCR text for scanned PDF", "chars", len(ocrText))
			return ocrText, nil
		}
	}
	return text, nil
}

func (e *Extractor) pdfText(data []byte) (string, error) {
	text, err := pdfTextFitz(data)
	if err == nil {
		return text, nil
	}
	e.log.Warn("go-fitz failed; trying pure-Go reader", "error", err)
	return pdfTextPlain(data)
}

func pdfTextFitz(data []byte) (string, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return "", err
	}
	defer doc.Close()

	var out strings.Builder
	for i := 0; i < doc.NumPage(); i++ {
		page, err := doc.Text(i)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i+1, err)
		}
		out.WriteString(page)
		out.WriteString("\n")
	}
	return out.String(), nil
}

func pdfTextPlain(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdf reader: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("pdf plaintext: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("pdf read: %w", err)
	}
	return string(b), nil
}
