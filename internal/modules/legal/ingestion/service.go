package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/lexbridge-backend/internal/data/repos"
	types "github.com/yungbote/lexbridge-backend/internal/domain"
	"github.com/yungbote/lexbridge-backend/internal/domain/legal"
	"github.com/yungbote/lexbridge-backend/internal/modules/legal/embedding"
	"github.com/yungbote/lexbridge-backend/internal/modules/legal/ingestion/extractor"
	"github.com/yungbote/lexbridge-backend/internal/modules/legal/vectorindex"
	"github.com/yungbote/lexbridge-backend/internal/observability"
	"github.com/yungbote/lexbridge-backend/internal/pkg/dbctx"
	"github.com/yungbote/lexbridge-backend/internal/platform/gcp"
	"github.com/yungbote/lexbridge-backend/internal/platform/logger"
)

// MinTextLength is the shortest trimmed text accepted for ingestion.
const MinTextLength = 100

var sectionPattern = regexp.MustCompile(`(?i)\b(Section|Article|Chapter|Part)\s+(\d+[A-Za-z]?)`)

type Embedder interface {
	Chunk(text string) []embedding.Chunk
	GenerateEmbeddingsBatch(ctx context.Context, texts []string) ([]embedding.Result, error)
}

type Index interface {
	UpsertVectors(ctx context.Context, records []vectorindex.Record, namespace string) error
	DeleteByDocumentID(ctx context.Context, documentID string, namespace string) error
	GetStats(ctx context.Context, namespace string) (vectorindex.Stats, error)
}

type TextExtractor interface {
	Extract(ctx context.Context, data []byte, fileName string, fileType extractor.FileType) (string, error)
}

// Metadata is caller-supplied document information.
type Metadata struct {
	Title         string
	DocumentType  legal.DocumentType
	Category      string
	Citation      string
	SourceURL     string
	UploadedBy    uuid.UUID
	EffectiveDate *time.Time
	Extra         map[string]any
}

// File is a source file handed to the pipeline. StoredKey is set when the
// bytes already live in object storage.
type File struct {
	Data      []byte
	Name      string
	Type      extractor.FileType
	StoredKey string
}

type Result struct {
	DocumentID      uuid.UUID `json:"document_id"`
	ChunksProcessed int       `json:"chunks_processed"`
	VectorsCreated  int       `json:"vectors_created"`
	FallbackVectors int       `json:"fallback_vectors"`
}

type Deps struct {
	DB        *gorm.DB
	Log       *logger.Logger
	Metrics   *observability.Metrics
	Repos     repos.Repos
	Embedding Embedder
	Index     Index
	Extractor TextExtractor
	// Bucket is optional; without it file bytes are not persisted.
	Bucket    gcp.BucketService
	Namespace string
}

type Service struct {
	db        *gorm.DB
	log       *logger.Logger
	metrics   *observability.Metrics
	repos     repos.Repos
	embedding Embedder
	index     Index
	extractor TextExtractor
	bucket    gcp.BucketService
	namespace string
}

func New(deps Deps) (*Service, error) {
	switch {
	case deps.DB == nil:
		return nil, legal.Errorf(legal.KindConfiguration, "ingestion.New", "db required")
	case deps.Embedding == nil:
		return nil, legal.Errorf(legal.KindConfiguration, "ingestion.New", "embedding service required")
	case deps.Index == nil:
		return nil, legal.Errorf(legal.KindConfiguration, "ingestion.New", "vector index required")
	}
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	ex := deps.Extractor
	if ex == nil {
		ex = extractor.New(log, nil, 0)
	}
	return &Service{
		db:        deps.DB,
		log:       log.With("service", "IngestionService"),
		metrics:   deps.Metrics,
		repos:     deps.Repos,
		embedding: deps.Embedding,
		index:     deps.Index,
		extractor: ex,
		bucket:    deps.Bucket,
		namespace: deps.Namespace,
	}, nil
}

// IngestDocumentText validates text, creates the document row, then chunks,
// embeds and indexes it. A failure after the row exists removes the row and
// any vectors already written.
func (s *Service) IngestDocumentText(ctx context.Context, text string, meta Metadata) (Result, error) {
	text = strings.TrimSpace(text)
	if err := validateText(text); err != nil {
		return Result{}, err
	}
	if err := s.checkSource(ctx, meta.SourceURL); err != nil {
		return Result{}, err
	}
	doc := newDocument(meta)
	if err := s.repos.LegalDocument.Create(dbctx.Of(ctx), doc); err != nil {
		return Result{}, fmt.Errorf("create document: %w", err)
	}
	return s.ingest(ctx, "text", doc, text)
}

// IngestFile extracts text from f and ingests it, recording file metadata.
func (s *Service) IngestFile(ctx context.Context, f File, meta Metadata) (Result, error) {
	if err := s.checkSource(ctx, meta.SourceURL); err != nil {
		return Result{}, err
	}
	text, err := s.extractor.Extract(ctx, f.Data, f.Name, f.Type)
	if err != nil {
		return Result{}, err
	}
	if err := validateText(text); err != nil {
		return Result{}, err
	}
	if meta.Title == "" {
		meta.Title = TitleFromFileName(f.Name)
	}
	doc := newDocument(meta)
	doc.ID = uuid.New()
	if err := s.storeFile(ctx, doc, &f); err != nil {
		return Result{}, err
	}
	if err := s.repos.LegalDocument.Create(dbctx.Of(ctx), doc); err != nil {
		s.deleteObject(ctx, doc.FilePath)
		return Result{}, fmt.Errorf("create document: %w", err)
	}
	return s.ingest(ctx, "file", doc, text)
}

// IngestClaimed ingests f into a row the caller already inserted, such as a
// crawler source claim. On failure the row is removed so a later run may
// retry the source.
func (s *Service) IngestClaimed(ctx context.Context, doc *types.LegalDocument, f File) (Result, error) {
	if doc == nil || doc.ID == uuid.Nil {
		return Result{}, errors.New("claimed document required")
	}
	fail := func(err error) (Result, error) {
		s.cleanup(ctx, doc)
		return Result{}, err
	}
	text, err := s.extractor.Extract(ctx, f.Data, f.Name, f.Type)
	if err != nil {
		return fail(err)
	}
	if err := validateText(text); err != nil {
		return fail(err)
	}
	if err := s.storeFile(ctx, doc, &f); err != nil {
		return fail(err)
	}
	if err := s.repos.LegalDocument.UpdateFields(dbctx.Of(ctx), doc.ID, map[string]interface{}{
		"file_path": doc.FilePath,
		"file_name": doc.FileName,
		"file_size": doc.FileSize,
		"metadata":  doc.Metadata,
	}); err != nil {
		return fail(fmt.Errorf("record file metadata: %w", err))
	}
	return s.ingest(ctx, "crawler", doc, text)
}

func (s *Service) ingest(ctx context.Context, source string, doc *types.LegalDocument, text string) (res Result, err error) {
	started := time.Now()
	ctx, span := observability.StartSpan(ctx, "ingestion.ingest",
		attribute.String("document.id", doc.ID.String()),
		attribute.String("ingest.source", source),
	)
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
			s.cleanup(ctx, doc)
		}
		s.metrics.ObserveIngest(source, status, res.ChunksProcessed, time.Since(started))
		observability.EndSpan(span, err)
	}()

	chunks := s.embedding.Chunk(text)
	if len(chunks) == 0 {
		return Result{}, legal.Errorf(legal.KindContentTooShort, "ingestion.chunk", "no chunks produced")
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	embeddings, err := s.embedding.GenerateEmbeddingsBatch(ctx, texts)
	if err != nil {
		return Result{}, fmt.Errorf("embed chunks: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return Result{}, fmt.Errorf("embed chunks: got %d embeddings for %d chunks", len(embeddings), len(chunks))
	}

	records := make([]vectorindex.Record, len(chunks))
	rows := make([]*types.DocumentChunk, len(chunks))
	fallbacks := 0
	for i, c := range chunks {
		emb := embeddings[i]
		if emb.Fallback {
			fallbacks++
		}
		section := SectionLabel(c.Text)
		vectorID := legal.VectorID(doc.ID, c.Index)
		records[i] = vectorindex.Record{
			ID:       vectorID,
			Values:   emb.Vector,
			Metadata: vectorMetadata(doc, c, section, emb),
		}
		rows[i] = &types.DocumentChunk{
			DocumentID:        doc.ID,
			ChunkIndex:        c.Index,
			ChunkText:         c.Text,
			VectorID:          vectorID,
			TokenCount:        c.TokenCount,
			Section:           section,
			EmbeddingProvider: emb.Provider,
			EmbeddingFallback: emb.Fallback,
		}
	}

	if err := s.index.UpsertVectors(ctx, records, s.namespace); err != nil {
		return Result{}, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if _, err := s.repos.DocumentChunk.Create(dbc, rows); err != nil {
			return fmt.Errorf("create chunks: %w", err)
		}
		return s.repos.LegalDocument.MarkIngested(dbc, doc.ID, len(rows), len(records))
	})
	if err != nil {
		return Result{}, err
	}

	if fallbacks > 0 {
		s.log.Warn("Document indexed with fallback embeddings",
			"document_id", doc.ID,
			"fallback_vectors", fallbacks,
			"chunks", len(chunks),
		)
	}
	s.log.Info("Document ingested",
		"document_id", doc.ID,
		"title", doc.Title,
		"chunks", len(chunks),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return Result{
		DocumentID:      doc.ID,
		ChunksProcessed: len(rows),
		VectorsCreated:  len(records),
		FallbackVectors: fallbacks,
	}, nil
}

// cleanup removes everything a failed ingestion may have written.
func (s *Service) cleanup(ctx context.Context, doc *types.LegalDocument) {
	ctx = context.WithoutCancel(ctx)
	if err := s.index.DeleteByDocumentID(ctx, doc.ID.String(), s.namespace); err != nil {
		s.log.Warn("Vector cleanup failed", "document_id", doc.ID, "error", err)
	}
	if err := s.repos.LegalDocument.FullDelete(dbctx.Of(ctx), doc.ID); err != nil {
		s.log.Warn("Document cleanup failed", "document_id", doc.ID, "error", err)
	}
	s.deleteObject(ctx, doc.FilePath)
}

// DeleteDocument removes the document's vectors, stored file and rows.
// Vector and file cleanup failures are logged; the rows are always removed.
func (s *Service) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	doc, err := s.repos.LegalDocument.GetByID(dbctx.Of(ctx), id)
	if err != nil {
		return err
	}
	if err := s.index.DeleteByDocumentID(ctx, id.String(), s.namespace); err != nil {
		s.log.Warn("Vector delete failed; removing rows anyway", "document_id", id, "error", err)
	}
	s.deleteObject(ctx, doc.FilePath)
	if err := s.repos.LegalDocument.FullDelete(dbctx.Of(ctx), id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	s.log.Info("Document deleted", "document_id", id, "title", doc.Title)
	return nil
}

func (s *Service) storeFile(ctx context.Context, doc *types.LegalDocument, f *File) error {
	doc.FileName = filepath.Base(f.Name)
	doc.FileSize = int64(len(f.Data))
	if f.StoredKey != "" {
		doc.FilePath = f.StoredKey
		return nil
	}
	if s.bucket == nil {
		return nil
	}
	key, err := gcp.CleanKey(fmt.Sprintf("legal-docs/%s/%s", doc.ID, doc.FileName))
	if err != nil {
		return legal.NewError(legal.KindExtraction, "ingestion.store_file", err)
	}
	attrs, err := s.bucket.UploadFile(dbctx.Of(ctx), key, bytes.NewReader(f.Data))
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	f.StoredKey = key
	doc.FilePath = key
	doc.Metadata = mergeJSON(doc.Metadata, map[string]any{
		"storageLocation": s.bucket.Location(key),
		"contentType":     attrs.ContentType,
	})
	return nil
}

func (s *Service) deleteObject(ctx context.Context, key string) {
	if s.bucket == nil || key == "" {
		return
	}
	if err := s.bucket.DeleteFile(dbctx.Of(ctx), key); err != nil {
		s.log.Warn("Stored file delete failed", "key", key, "error", err)
	}
}

// checkSource rejects a source URL that already has a document before any
// extraction or upload work. The unique index still decides races.
func (s *Service) checkSource(ctx context.Context, sourceURL string) error {
	if strings.TrimSpace(sourceURL) == "" {
		return nil
	}
	exists, err := s.repos.LegalDocument.ExistsBySourceURL(dbctx.Of(ctx), sourceURL)
	if err != nil {
		return fmt.Errorf("check source: %w", err)
	}
	if exists {
		return legal.Errorf(legal.KindDuplicateSource, "ingestion.checkSource", "source already ingested: %s", strings.TrimSpace(sourceURL))
	}
	return nil
}

func validateText(text string) error {
	n := len([]rune(strings.TrimSpace(text)))
	if n < MinTextLength {
		return legal.Errorf(legal.KindContentTooShort, "ingestion.validate",
			"extracted text has %d characters, need at least %d", n, MinTextLength)
	}
	return nil
}

func newDocument(meta Metadata) *types.LegalDocument {
	title := strings.TrimSpace(meta.Title)
	if title == "" {
		title = "Untitled Document"
	}
	doc := &types.LegalDocument{
		Title:         title,
		DocumentType:  meta.DocumentType,
		Category:      strings.TrimSpace(meta.Category),
		UploadedBy:    meta.UploadedBy,
		EffectiveDate: meta.EffectiveDate,
		Metadata:      mergeJSON(nil, meta.Extra),
	}
	if doc.DocumentType == "" {
		doc.DocumentType = legal.DocumentTypeOther
	}
	if c := strings.TrimSpace(meta.Citation); c != "" {
		doc.Citation = &c
	}
	if u := strings.TrimSpace(meta.SourceURL); u != "" {
		doc.SourceURL = &u
	}
	return doc
}

func vectorMetadata(doc *types.LegalDocument, c embedding.Chunk, section *string, emb embedding.Result) map[string]any {
	md := map[string]any{
		"documentId":        doc.ID.String(),
		"chunkIndex":        c.Index,
		"documentTitle":     doc.Title,
		"documentType":      string(doc.DocumentType),
		"category":          doc.Category,
		"text":              c.Text,
		"embeddingProvider": emb.Provider,
		"embeddingFallback": emb.Fallback,
	}
	if doc.Citation != nil {
		md["citation"] = *doc.Citation
	}
	if section != nil {
		md["section"] = *section
	}
	if doc.SourceURL != nil {
		md["sourceUrl"] = *doc.SourceURL
	}
	return md
}

// SectionLabel returns the first "Section 12A"-style reference in text.
func SectionLabel(text string) *string {
	m := sectionPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	kind := strings.ToUpper(m[1][:1]) + strings.ToLower(m[1][1:])
	label := kind + " " + m[2]
	return &label
}

// TitleFromFileName strips the directory and extension.
func TitleFromFileName(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	title := strings.TrimSuffix(base, filepath.Ext(base))
	title = strings.NewReplacer("_", " ", "-", " ").Replace(title)
	return strings.Join(strings.Fields(title), " ")
}

func mergeJSON(existing datatypes.JSON, extra map[string]any) datatypes.JSON {
	if len(extra) == 0 {
		return existing
	}
	merged := map[string]any{}
	if len(existing) > 0 {
		_ = json.Unmarshal(existing, &merged)
	}
	for k, v := range extra {
		merged[k] = v
	}
	b, err := json.Marshal(merged)
	if err != nil {
		return existing
	}
	return datatypes.JSON(b)
}
