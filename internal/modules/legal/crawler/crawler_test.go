package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/lexbridge-backend/internal/data/repos"
	"github.com/yungbote/lexbridge-backend/internal/data/repos/testutil"
	types "github.com/yungbote/lexbridge-backend/internal/domain"
	"github.com/yungbote/lexbridge-backend/internal/modules/legal/ingestion"
	"github.com/yungbote/lexbridge-backend/internal/pkg/dbctx"
)

type legalSite struct {
	mu    sync.Mutex
	hits  map[string]int
	pages map[string]string
	// flaky answers 503 this many times before serving the file.
	flaky map[string]int
	gone  map[string]bool
}

func newLegalSite() *legalSite {
	return &legalSite{
		hits:  map[string]int{},
		flaky: map[string]int{},
		gone:  map[string]bool{},
		pages: map[string]string{
			"/": `<html><body>
<a href="/judgments/">Judgments</a>
<a href="/contact">Contact us</a>
<a href="/docs/employment-act-2007.pdf">Employment Act 2007 Revised Edition</a>
<a href="https://example.com/judgments/x">External judgments</a>
</body></html>`,
			"/judgments/": `<html><body>
<a href="/judgments/page-2">Judgments page 2</a>
<table><tr><td><strong>Republic v Mwangi [2019] eKLR</strong></td><td><a href="/docs/republic-v-mwangi.pdf">Download</a></td></tr></table>
</body></html>`,
			"/judgments/page-2": `<html><body><a href="/judgments/page-3">Judgments page 3</a></body></html>`,
			"/judgments/page-3": `<html><body><a href="/docs/deep-judgment-2020.pdf">Deep Court Judgment 2020 Nairobi</a></body></html>`,
		},
	}
}

func (s *legalSite) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits[r.URL.Path]++
	page, isPage := s.pages[r.URL.Path]
	failures := s.flaky[r.URL.Path]
	if failures > 0 {
		s.flaky[r.URL.Path] = failures - 1
	}
	gone := s.gone[r.URL.Path]
	s.mu.Unlock()

	switch {
	case isPage:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, page)
	case gone:
		http.NotFound(w, r)
	case failures > 0:
		w.WriteHeader(http.StatusServiceUnavailable)
	case len(r.URL.Path) > 6 && r.URL.Path[:6] == "/docs/":
		w.Header().Set("Content-Type", "application/pdf")
		fmt.Fprint(w, "%PDF-1.4 "+r.URL.Path)
	default:
		http.NotFound(w, r)
	}
}

func (s *legalSite) hitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

type fakeIngester struct {
	mu    sync.Mutex
	files []string
}

func (f *fakeIngester) IngestClaimed(ctx context.Context, doc *types.LegalDocument, file ingestion.File) (ingestion.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files = append(f.files, file.Name)
	return ingestion.Result{DocumentID: doc.ID, ChunksProcessed: 1, VectorsCreated: 1}, nil
}

type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleeps = append(s.sleeps, d)
	return ctx.Err()
}

type fixture struct {
	site    *legalSite
	srv     *httptest.Server
	repos   repos.Repos
	ingest  *fakeIngester
	sleeper *sleepRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	site := newLegalSite()
	srv := httptest.NewServer(site)
	t.Cleanup(srv.Close)
	db := testutil.DB(t)
	return &fixture{
		site:    site,
		srv:     srv,
		repos:   repos.New(db, testutil.Logger(t)),
		ingest:  &fakeIngester{},
		sleeper: &sleepRecorder{},
	}
}

func (f *fixture) config(maxDepth int) Config {
	cfg := DefaultConfig()
	cfg.SeedURLs = []string{f.srv.URL + "/"}
	cfg.AllowedDomains = []string{"127.0.0.1"}
	cfg.LegacyHosts = nil
	cfg.MaxDepth = maxDepth
	cfg.LinkDelay = 0
	return cfg
}

func (f *fixture) crawler(t *testing.T, cfg Config) *Crawler {
	t.Helper()
	c, err := New(Deps{
		Log:       testutil.Logger(t),
		HTTP:      f.srv.Client(),
		Repos:     f.repos,
		Ingestion: f.ingest,
		Sleep:     f.sleeper.sleep,
	}, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestCrawlWithNoSeedsIsEmpty(t *testing.T) {
	f := newFixture(t)
	cfg := f.config(5)
	cfg.SeedURLs = nil

	res, err := f.crawler(t, cfg).Crawl(context.Background())
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if res.Discovered != 0 || res.Ingested != 0 || res.Failed != 0 {
		t.Fatalf("result: %+v", res)
	}
	if _, err := f.repos.User.GetByEmail(dbctx.Of(context.Background()), SystemUserEmail); err == nil {
		t.Fatalf("system user should not be created for an empty run")
	}
}

func TestCrawlRespectsMaxDepth(t *testing.T) {
	f := newFixture(t)
	res, err := f.crawler(t, f.config(2)).Crawl(context.Background())
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if n := f.site.hitCount("/judgments/page-3"); n != 0 {
		t.Fatalf("depth-3 page fetched %d times", n)
	}
	if f.site.hitCount("/judgments/page-2") != 1 {
		t.Fatalf("depth-2 page should be fetched once")
	}
	if f.site.hitCount("/contact") != 0 {
		t.Fatalf("non-legal page was crawled")
	}
	if res.Discovered != 2 || res.Ingested != 2 {
		t.Fatalf("result: %+v", res)
	}
	want := []string{"employment-act-2007.pdf", "republic-v-mwangi.pdf"}
	if !reflect.DeepEqual(f.ingest.files, want) {
		t.Fatalf("ingested files: want=%v got=%v", want, f.ingest.files)
	}

	deep, err := f.crawler(t, f.config(5)).Crawl(context.Background())
	if err != nil {
		t.Fatalf("deep Crawl: %v", err)
	}
	if deep.Discovered != 3 || f.site.hitCount("/judgments/page-3") != 1 {
		t.Fatalf("deep crawl: %+v page3 hits=%d", deep, f.site.hitCount("/judgments/page-3"))
	}
}

func TestCrawlTwiceSkipsKnownSources(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.crawler(t, f.config(5))

	first, err := c.Crawl(ctx)
	if err != nil {
		t.Fatalf("first Crawl: %v", err)
	}
	if first.Ingested != 3 || first.Skipped != 0 {
		t.Fatalf("first run: %+v", first)
	}

	second, err := c.Crawl(ctx)
	if err != nil {
		t.Fatalf("second Crawl: %v", err)
	}
	if second.Discovered != 3 || second.Ingested != 0 || second.Skipped != 3 {
		t.Fatalf("second run: %+v", second)
	}
	for _, p := range []string{"/docs/employment-act-2007.pdf", "/docs/republic-v-mwangi.pdf", "/docs/deep-judgment-2020.pdf"} {
		if n := f.site.hitCount(p); n != 1 {
			t.Fatalf("%s downloaded %d times", p, n)
		}
	}
	n, err := f.repos.LegalDocument.Count(dbctx.Of(ctx))
	if err != nil || n != 3 {
		t.Fatalf("documents: n=%d err=%v", n, err)
	}
	if len(f.ingest.files) != 3 {
		t.Fatalf("ingest calls: %v", f.ingest.files)
	}
}

func TestDownloadRetriesWithLinearBackoff(t *testing.T) {
	f := newFixture(t)
	f.site.flaky["/docs/employment-act-2007.pdf"] = 2
	cfg := f.config(0)

	res, err := f.crawler(t, cfg).Crawl(context.Background())
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if res.Ingested != 1 || res.Failed != 0 {
		t.Fatalf("result: %+v", res)
	}
	if n := f.site.hitCount("/docs/employment-act-2007.pdf"); n != 3 {
		t.Fatalf("download attempts: want=3 got=%d", n)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second, time.Second}
	if !reflect.DeepEqual(f.sleeper.sleeps, want) {
		t.Fatalf("sleeps: want=%v got=%v", want, f.sleeper.sleeps)
	}
}

func TestDownloadFailureIsRecordedAndReleasesClaim(t *testing.T) {
	f := newFixture(t)
	f.site.gone["/docs/employment-act-2007.pdf"] = true
	ctx := context.Background()

	res, err := f.crawler(t, f.config(0)).Crawl(ctx)
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if res.Failed != 1 || res.Ingested != 0 || len(res.Failures) != 1 {
		t.Fatalf("result: %+v", res)
	}
	src := f.srv.URL + "/docs/employment-act-2007.pdf"
	if res.Failures[0].URL != src {
		t.Fatalf("failure url: %q", res.Failures[0].URL)
	}
	if ok, _ := f.repos.LegalDocument.ExistsBySourceURL(dbctx.Of(ctx), src); ok {
		t.Fatalf("failed download should release its claim")
	}
}

func TestCrawlStopsAtTwiceMaxDocuments(t *testing.T) {
	f := newFixture(t)
	cfg := f.config(5)
	cfg.MaxDocumentsPerRun = 1

	res, err := f.crawler(t, cfg).Crawl(context.Background())
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if res.Discovered != 2 || res.Ingested != 1 {
		t.Fatalf("result: %+v", res)
	}
	if f.site.hitCount("/judgments/page-2") != 0 {
		t.Fatalf("crawl continued past the discovery limit")
	}
}

func TestSeedsArePaced(t *testing.T) {
	f := newFixture(t)
	cfg := f.config(0)
	cfg.SeedURLs = []string{f.srv.URL + "/judgments/page-2", f.srv.URL + "/judgments/page-3"}

	res, err := f.crawler(t, cfg).Crawl(context.Background())
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if res.Discovered != 1 {
		t.Fatalf("result: %+v", res)
	}
	if len(f.sleeper.sleeps) == 0 || f.sleeper.sleeps[0] != 2*time.Second {
		t.Fatalf("seed delay: got=%v", f.sleeper.sleeps)
	}
}

func TestCrawlHonorsCancellation(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.crawler(t, f.config(5)).Crawl(ctx); err == nil {
		t.Fatalf("want context error")
	}
}
