package ingestion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/lexbridge-backend/internal/data/repos"
	"github.com/yungbote/lexbridge-backend/internal/data/repos/testutil"
	types "github.com/yungbote/lexbridge-backend/internal/domain"
	"github.com/yungbote/lexbridge-backend/internal/domain/legal"
	"github.com/yungbote/lexbridge-backend/internal/modules/legal/embedding"
	"github.com/yungbote/lexbridge-backend/internal/modules/legal/vectorindex"
	"github.com/yungbote/lexbridge-backend/internal/observability"
	"github.com/yungbote/lexbridge-backend/internal/pkg/dbctx"
	"github.com/yungbote/lexbridge-backend/internal/pkg/pointers"
	"github.com/yungbote/lexbridge-backend/internal/platform/gcp"
	"github.com/yungbote/lexbridge-backend/internal/platform/memvector"
	"github.com/yungbote/lexbridge-backend/internal/platform/vectorstore"
)

const testDim = 8

type stubProvider struct {
	name string
	err  error
}

func (p stubProvider) Name() string    { return p.name }
func (p stubProvider) Dimensions() int { return testDim }

func (p stubProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if p.err != nil {
		return nil, p.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = embedding.SyntheticVector("stub:"+t, testDim)
	}
	return out, nil
}

type harness struct {
	svc   *Service
	repos repos.Repos
	store *memvector.Store
	index *vectorindex.Service
}

func newHarness(t *testing.T, primary embedding.Provider, opts ...func(*Deps)) *harness {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	rp := repos.New(db, log)

	emb, err := embedding.New(embedding.Deps{
		Log:        log,
		Metrics:    observability.NewMetrics(),
		Strategies: []embedding.Strategy{{Provider: primary, FallbackOn: embedding.RateLimitOrTransient}},
		Sleep:      func(context.Context, time.Duration) error { return nil },
	}, embedding.Config{Dimensions: testDim, ChunkSize: 50, Overlap: 10})
	if err != nil {
		t.Fatalf("embedding.New: %v", err)
	}
	store := memvector.New(testDim)
	idx, err := vectorindex.New(store, log, vectorindex.Config{})
	if err != nil {
		t.Fatalf("vectorindex.New: %v", err)
	}
	deps := Deps{DB: db, Log: log, Metrics: observability.NewMetrics(), Repos: rp, Embedding: emb, Index: idx}
	for _, o := range opts {
		o(&deps)
	}
	svc, err := New(deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &harness{svc: svc, repos: rp, store: store, index: idx}
}

// statute returns n runes of statute-like text. With 200-rune windows and a
// 40-rune overlap, 450 runes make three chunks.
func statute(n int) string {
	base := strings.Repeat("Section 3 Every employer shall pay wages in legal tender. ", 1+n/40)
	return string([]rune(base)[:n])
}

func (h *harness) counts(t *testing.T) (docs, chunks int64) {
	t.Helper()
	dbc := dbctx.Of(context.Background())
	docs, err := h.repos.LegalDocument.Count(dbc)
	if err != nil {
		t.Fatalf("count docs: %v", err)
	}
	chunks, err = h.repos.DocumentChunk.Count(dbc)
	if err != nil {
		t.Fatalf("count chunks: %v", err)
	}
	return docs, chunks
}

func TestIngestDocumentTextRejectsShortText(t *testing.T) {
	h := newHarness(t, stubProvider{name: "openai"})

	_, err := h.svc.IngestDocumentText(context.Background(), strings.Repeat("x", 50), Metadata{Title: "Short"})
	if !errors.Is(err, legal.ErrContentTooShort) {
		t.Fatalf("want ErrContentTooShort got=%v", err)
	}
	if docs, chunks := h.counts(t); docs != 0 || chunks != 0 {
		t.Fatalf("rows after rejection: docs=%d chunks=%d", docs, chunks)
	}
}

func TestIngestDocumentTextCountsAreConsistent(t *testing.T) {
	h := newHarness(t, stubProvider{name: "openai"})
	ctx := context.Background()

	res, err := h.svc.IngestDocumentText(ctx, statute(450), Metadata{
		Title:        "Employment Act 2007",
		DocumentType: legal.DocumentTypeAct,
		Category:     "Employment Law",
		Citation:     "Cap. 226",
	})
	if err != nil {
		t.Fatalf("IngestDocumentText: %v", err)
	}
	if res.ChunksProcessed != 3 || res.VectorsCreated != 3 || res.FallbackVectors != 0 {
		t.Fatalf("result: got=%+v", res)
	}

	dbc := dbctx.Of(ctx)
	stored, err := h.repos.DocumentChunk.CountByDocumentID(dbc, res.DocumentID)
	if err != nil || stored != 3 {
		t.Fatalf("stored chunks: n=%d err=%v", stored, err)
	}
	doc, err := h.repos.LegalDocument.GetByID(dbc, res.DocumentID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if doc.ChunksCount != 3 || doc.VectorsCount != 3 || !doc.Ingested() {
		t.Fatalf("document counters: %+v", doc)
	}

	rows, _ := h.repos.DocumentChunk.ListByDocumentID(dbc, res.DocumentID)
	for i, r := range rows {
		if r.ChunkIndex != i || r.VectorID != legal.VectorID(res.DocumentID, i) {
			t.Fatalf("chunk %d: index=%d vector_id=%s", i, r.ChunkIndex, r.VectorID)
		}
		if r.EmbeddingProvider != "openai" || r.EmbeddingFallback {
			t.Fatalf("chunk %d provider tag: %s fallback=%v", i, r.EmbeddingProvider, r.EmbeddingFallback)
		}
	}
	if rows[0].Section == nil || *rows[0].Section != "Section 3" {
		t.Fatalf("section label: got=%v", rows[0].Section)
	}

	st, err := h.index.GetStats(ctx, "")
	if err != nil || st.NamespaceVectors != 3 {
		t.Fatalf("index stats: %+v err=%v", st, err)
	}
	matches, err := h.index.SearchSimilar(ctx, embedding.SyntheticVector("stub:"+rows[1].ChunkText, testDim), 1, "", nil)
	if err != nil || len(matches) != 1 {
		t.Fatalf("search: %v err=%v", matches, err)
	}
	md := matches[0].Metadata
	if matches[0].ID != rows[1].VectorID || md["documentTitle"] != "Employment Act 2007" || md["citation"] != "Cap. 226" || md["text"] != rows[1].ChunkText {
		t.Fatalf("denormalized metadata: id=%s md=%v", matches[0].ID, md)
	}

	rep, err := h.svc.IndexReport(ctx)
	if err != nil || !rep.Consistent || rep.Chunks != 3 || rep.Documents != 1 || rep.RecordedVectors != 3 {
		t.Fatalf("IndexReport: %+v err=%v", rep, err)
	}
}

func TestIngestCompletesOnRateLimitWithFallbackVectors(t *testing.T) {
	limited := stubProvider{name: "openai", err: legal.Errorf(legal.KindProviderRateLimit, "openai.embed", "429 quota exceeded")}
	h := newHarness(t, limited)
	ctx := context.Background()

	res, err := h.svc.IngestDocumentText(ctx, statute(450), Metadata{Title: "Land Act"})
	if err != nil {
		t.Fatalf("IngestDocumentText: %v", err)
	}
	if res.ChunksProcessed != 3 || res.VectorsCreated != 3 || res.FallbackVectors != 3 {
		t.Fatalf("result: got=%+v", res)
	}
	n, err := h.repos.DocumentChunk.CountFallback(dbctx.Of(ctx))
	if err != nil || n != 3 {
		t.Fatalf("fallback chunks: n=%d err=%v", n, err)
	}
	matches, err := h.store.QueryMatches(ctx, vectorstore.DefaultNamespace, embedding.SyntheticVector(statute(200), testDim), 3,
		map[string]any{"documentId": res.DocumentID.String()})
	if err != nil || len(matches) != 3 {
		t.Fatalf("fallback vectors: n=%d err=%v", len(matches), err)
	}
	for _, m := range matches {
		if m.Metadata["embeddingProvider"] != "synthetic" || m.Metadata["embeddingFallback"] != true {
			t.Fatalf("vector tag: %v", m.Metadata)
		}
	}
}

type failingIndex struct {
	*vectorindex.Service
	err error
}

func (f failingIndex) UpsertVectors(context.Context, []vectorindex.Record, string) error { return f.err }

func TestVectorFailureLeavesNoDocument(t *testing.T) {
	upsertErr := legal.Errorf(legal.KindVectorIndex, "vectorindex.upsert", "index unavailable")
	h := newHarness(t, stubProvider{name: "openai"}, func(d *Deps) {
		d.Index = failingIndex{Service: d.Index.(*vectorindex.Service), err: upsertErr}
	})

	_, err := h.svc.IngestDocumentText(context.Background(), statute(300), Metadata{Title: "Finance Act"})
	if !errors.Is(err, legal.ErrVectorIndex) {
		t.Fatalf("want ErrVectorIndex got=%v", err)
	}
	if docs, chunks := h.counts(t); docs != 0 || chunks != 0 {
		t.Fatalf("rows after vector failure: docs=%d chunks=%d", docs, chunks)
	}
}

func TestDeleteDocumentRemovesVectorsAndRows(t *testing.T) {
	h := newHarness(t, stubProvider{name: "openai"})
	ctx := context.Background()
	res, err := h.svc.IngestDocumentText(ctx, statute(450), Metadata{Title: "Companies Act"})
	if err != nil {
		t.Fatalf("IngestDocumentText: %v", err)
	}
	if err := h.svc.DeleteDocument(ctx, res.DocumentID); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if docs, chunks := h.counts(t); docs != 0 || chunks != 0 {
		t.Fatalf("rows after delete: docs=%d chunks=%d", docs, chunks)
	}
	if st, _ := h.index.GetStats(ctx, ""); st.NamespaceVectors != 0 {
		t.Fatalf("vectors after delete: %d", st.NamespaceVectors)
	}
	if err := h.svc.DeleteDocument(ctx, uuid.New()); !errors.Is(err, legal.ErrNotFound) {
		t.Fatalf("delete unknown: want ErrNotFound got=%v", err)
	}
}

func TestIngestFileStoresBytesAndFileMetadata(t *testing.T) {
	bucketDir := t.TempDir()
	bucket, err := gcp.NewBucketServiceWithConfig(nil, gcp.ObjectStorageConfig{Mode: gcp.ObjectStorageModeLocal, LocalDir: bucketDir})
	if err != nil {
		t.Fatalf("bucket: %v", err)
	}
	h := newHarness(t, stubProvider{name: "openai"}, func(d *Deps) { d.Bucket = bucket })
	ctx := context.Background()

	body := []byte(statute(300))
	res, err := h.svc.IngestFile(ctx, File{Data: body, Name: "employment_act-2007.txt"}, Metadata{DocumentType: legal.DocumentTypeAct})
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	doc, err := h.repos.LegalDocument.GetByID(dbctx.Of(ctx), res.DocumentID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if doc.Title != "employment act 2007" || doc.FileName != "employment_act-2007.txt" || doc.FileSize != int64(len(body)) {
		t.Fatalf("file fields: %+v", doc)
	}
	if doc.FilePath == "" {
		t.Fatalf("file path not recorded")
	}
	if _, err := os.Stat(bucket.Location(doc.FilePath)); err != nil {
		t.Fatalf("stored object: %v", err)
	}

	if err := h.svc.DeleteDocument(ctx, doc.ID); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if _, err := os.Stat(bucket.Location(doc.FilePath)); !os.IsNotExist(err) {
		t.Fatalf("stored object after delete: err=%v", err)
	}
}

func TestIngestDirectoryReportsPerFileOutcomes(t *testing.T) {
	h := newHarness(t, stubProvider{name: "openai"})
	dir := t.TempDir()
	write := func(name, body string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	write("a_good.txt", statute(250))
	write("b_short.txt", "too short")
	write("c_ignored.bin", statute(250))

	out, err := h.svc.IngestDirectory(context.Background(), dir, Metadata{Category: "Statutes"})
	if err != nil {
		t.Fatalf("IngestDirectory: %v", err)
	}
	if out.SuccessCount() != 1 || out.FailureCount() != 1 {
		t.Fatalf("batch: successful=%d failed=%d", out.SuccessCount(), out.FailureCount())
	}
	if filepath.Base(out.Successful[0].File) != "a_good.txt" || out.Successful[0].Result.ChunksProcessed != 2 {
		t.Fatalf("success item: %+v", out.Successful[0])
	}
	if filepath.Base(out.Failed[0].File) != "b_short.txt" || !strings.Contains(out.Failed[0].Error, "content too short") {
		t.Fatalf("failure item: %+v", out.Failed[0])
	}
}

func TestIngestClaimedFailureReleasesClaim(t *testing.T) {
	h := newHarness(t, stubProvider{name: "openai"})
	ctx := context.Background()
	dbc := dbctx.Of(ctx)
	src := "https://kenyalaw.org/files/scan.pdf"

	doc := &types.LegalDocument{Title: "scan", SourceURL: pointers.String(src)}
	if ok, err := h.repos.LegalDocument.ClaimSource(dbc, doc); err != nil || !ok {
		t.Fatalf("ClaimSource: ok=%v err=%v", ok, err)
	}
	_, err := h.svc.IngestClaimed(ctx, doc, File{Data: []byte("tiny"), Name: "scan.txt"})
	if !errors.Is(err, legal.ErrContentTooShort) {
		t.Fatalf("want ErrContentTooShort got=%v", err)
	}
	if ok, _ := h.repos.LegalDocument.ExistsBySourceURL(dbc, src); ok {
		t.Fatalf("claim should be released after failure")
	}

	again := &types.LegalDocument{Title: "scan", SourceURL: pointers.String(src)}
	if ok, err := h.repos.LegalDocument.ClaimSource(dbc, again); err != nil || !ok {
		t.Fatalf("reclaim: ok=%v err=%v", ok, err)
	}
	res, err := h.svc.IngestClaimed(ctx, again, File{Data: []byte(statute(300)), Name: "scan.txt"})
	if err != nil || res.DocumentID != again.ID || res.ChunksProcessed != 2 {
		t.Fatalf("IngestClaimed: res=%+v err=%v", res, err)
	}
}

func TestSectionLabel(t *testing.T) {
	cases := map[string]string{
		"as provided under SECTION 12A of the Act": "Section 12A",
		"see article 27(4)":                         "Article 27",
		"Part 4 - Miscellaneous":                    "Part 4",
		"no reference here":                         "",
	}
	for in, want := range cases {
		got := SectionLabel(in)
		if want == "" {
			if got != nil {
				t.Fatalf("SectionLabel(%q): want nil got=%q", in, *got)
			}
			continue
		}
		if got == nil || *got != want {
			t.Fatalf("SectionLabel(%q): want=%q got=%v", in, want, got)
		}
	}
}

func TestIngestRejectsKnownSourceBeforeWork(t *testing.T) {
	h := newHarness(t, stubProvider{name: "openai"})
	ctx := context.Background()
	src := "https://kenyalaw.org/files/" + uuid.NewString() + ".pdf"

	if _, err := h.svc.IngestDocumentText(ctx, statute(300), Metadata{Title: "Employment Act", SourceURL: src}); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	_, err := h.svc.IngestDocumentText(ctx, statute(300), Metadata{Title: "Employment Act", SourceURL: " " + src + " "})
	if !errors.Is(err, legal.ErrDuplicateSource) {
		t.Fatalf("second text ingest: want=%v got=%v", legal.ErrDuplicateSource, err)
	}
	_, err = h.svc.IngestFile(ctx, File{Data: []byte("x"), Name: "act.txt"}, Metadata{SourceURL: src})
	if !errors.Is(err, legal.ErrDuplicateSource) {
		t.Fatalf("file ingest: want=%v got=%v", legal.ErrDuplicateSource, err)
	}
	n, err := h.repos.LegalDocument.Count(dbctx.Of(ctx))
	if err != nil || n != 1 {
		t.Fatalf("documents: want=1 got=%d err=%v", n, err)
	}
}
