package crawler

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
	"gorm.io/datatypes"

	"github.com/yungbote/lexbridge-backend/internal/data/repos"
	types "github.com/yungbote/lexbridge-backend/internal/domain"
	"github.com/yungbote/lexbridge-backend/internal/domain/legal"
	"github.com/yungbote/lexbridge-backend/internal/domain/user"
	"github.com/yungbote/lexbridge-backend/internal/modules/legal/ingestion"
	"github.com/yungbote/lexbridge-backend/internal/observability"
	"github.com/yungbote/lexbridge-backend/internal/pkg/dbctx"
	"github.com/yungbote/lexbridge-backend/internal/pkg/httpx"
	"github.com/yungbote/lexbridge-backend/internal/platform/ctxutil"
	"github.com/yungbote/lexbridge-backend/internal/platform/logger"
)

const SystemUserEmail = "crawler@lexbridge.system"

// DiscoveredDocument lives only for the run that found it.
type DiscoveredDocument struct {
	URL       string             `json:"url"`
	Title     string             `json:"title"`
	SourceURL string             `json:"source_url"`
	Type      legal.DocumentType `json:"type"`
	Category  string             `json:"category"`
	Depth     int                `json:"depth"`
}

type Failure struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

type Result struct {
	Discovered int       `json:"discovered"`
	Ingested   int       `json:"ingested"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Failures   []Failure `json:"failures"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

type Ingester interface {
	IngestClaimed(ctx context.Context, doc *types.LegalDocument, f ingestion.File) (ingestion.Result, error)
}

type Deps struct {
	Log       *logger.Logger
	Metrics   *observability.Metrics
	HTTP      *http.Client
	Repos     repos.Repos
	Ingestion Ingester
	// Sleep implements the fixed politeness and backoff delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

type Crawler struct {
	log       *logger.Logger
	metrics   *observability.Metrics
	http      *http.Client
	repos     repos.Repos
	ingestion Ingester
	sleep     func(ctx context.Context, d time.Duration) error
	cfg       Config

	userMu     sync.Mutex
	systemUser *types.User
}

func New(deps Deps, cfg Config) (*Crawler, error) {
	if deps.Ingestion == nil {
		return nil, legal.Errorf(legal.KindConfiguration, "crawler.New", "ingestion pipeline required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, legal.NewError(legal.KindConfiguration, "crawler.New", err)
	}
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	client := deps.HTTP
	if client == nil {
		client = &http.Client{}
	}
	sleep := deps.Sleep
	if sleep == nil {
		sleep = httpx.Sleep
	}
	return &Crawler{
		log:       log.With("service", "CrawlerService"),
		metrics:   deps.Metrics,
		http:      client,
		repos:     deps.Repos,
		ingestion: deps.Ingestion,
		sleep:     sleep,
		cfg:       cfg.withDefaults(),
	}, nil
}

func (c *Crawler) Config() Config { return c.cfg }

// run holds the state of one Crawl call. Concurrent runs never share it.
type run struct {
	c          *Crawler
	limiter    *rate.Limiter
	visited    map[string]bool
	queued     map[string]bool
	seenDocs   map[string]bool
	discovered []DiscoveredDocument
}

type queueItem struct {
	url   string
	depth int
}

func (c *Crawler) newRun() *run {
	limit := rate.Inf
	if c.cfg.LinkDelay > 0 {
		limit = rate.Every(c.cfg.LinkDelay)
	}
	return &run{
		c:        c,
		limiter:  rate.NewLimiter(limit, 1),
		visited:  map[string]bool{},
		queued:   map[string]bool{},
		seenDocs: map[string]bool{},
	}
}

func (r *run) full() bool {
	return len(r.discovered) >= 2*r.c.cfg.MaxDocumentsPerRun
}

// Crawl walks every seed in order, then ingests what it found.
func (c *Crawler) Crawl(ctx context.Context) (res Result, err error) {
	started := time.Now()
	ctx, span := observability.StartSpan(ctx, "crawler.crawl", attribute.Int("crawl.seeds", len(c.cfg.SeedURLs)))
	defer func() { observability.EndSpan(span, err) }()

	log := c.log
	if id := ctxutil.RunID(ctx); id != "" {
		log = log.With("run_id", id)
	}
	log.Info("Crawl started",
		"seeds", len(c.cfg.SeedURLs),
		"max_depth", c.cfg.MaxDepth,
		"max_documents", c.cfg.MaxDocumentsPerRun,
		"respect_robots_txt", c.cfg.RespectRobotsTxt,
	)
	r := c.newRun()
	for i, seed := range c.cfg.SeedURLs {
		if r.full() {
			log.Info("Discovery limit reached; stopping early", "discovered", len(r.discovered))
			break
		}
		if i > 0 && c.cfg.SeedDelay > 0 {
			if err := c.sleep(ctx, c.cfg.SeedDelay); err != nil {
				return Result{}, err
			}
		}
		if err := r.crawlSeed(ctx, strings.TrimSpace(seed)); err != nil {
			return Result{}, err
		}
	}

	res, err = c.ingestDocuments(ctx, r.discovered)
	res.Discovered = len(r.discovered)
	res.StartedAt = started
	res.FinishedAt = time.Now()
	if err != nil {
		return res, err
	}
	span.SetAttributes(attribute.Int("crawl.discovered", res.Discovered), attribute.Int("crawl.ingested", res.Ingested))
	log.Info("Crawl finished",
		"discovered", res.Discovered,
		"ingested", res.Ingested,
		"skipped", res.Skipped,
		"failed", res.Failed,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return res, nil
}

func (r *run) crawlSeed(ctx context.Context, seed string) error {
	queue := []queueItem{{url: seed, depth: 0}}
	r.queued[seed] = true
	for len(queue) > 0 && !r.full() {
		if err := ctx.Err(); err != nil {
			return err
		}
		item := queue[0]
		queue = queue[1:]
		next, err := r.crawlPage(ctx, item)
		if err != nil {
			return err
		}
		queue = append(queue, next...)
	}
	return nil
}

// crawlPage fetches one page and returns the pages to visit next. Only
// context cancellation is returned as an error; fetch failures are logged.
func (r *run) crawlPage(ctx context.Context, item queueItem) ([]queueItem, error) {
	c := r.c
	if r.visited[item.url] || item.depth > c.cfg.MaxDepth || !c.IsAllowedDomain(item.url) {
		return nil, nil
	}
	r.visited[item.url] = true

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	links, err := c.fetchLinks(ctx, item.url)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.metrics.IncCrawlPage("error")
		c.log.Warn("Page fetch failed", "url", item.url, "depth", item.depth, "error", err)
		return nil, nil
	}
	c.metrics.IncCrawlPage("ok")

	var next []queueItem
	for _, l := range links {
		if IsLegalDocument(l.URL) {
			if r.seenDocs[l.URL] {
				continue
			}
			r.seenDocs[l.URL] = true
			if !IsValidLegalDocument(l.Title, l.URL) {
				c.metrics.IncCrawlDocument("rejected")
				c.log.Debug("Rejected document link", "url", l.URL, "title", l.Title)
				continue
			}
			cls := CategorizeDocument(l.URL, item.url)
			r.discovered = append(r.discovered, DiscoveredDocument{
				URL:       l.URL,
				Title:     l.Title,
				SourceURL: item.url,
				Type:      cls.Type,
				Category:  cls.Category,
				Depth:     item.depth,
			})
			c.metrics.IncCrawlDocument("discovered")
			if r.full() {
				break
			}
			continue
		}
		if len(next) >= c.cfg.LinksPerPage || item.depth+1 > c.cfg.MaxDepth {
			continue
		}
		if r.visited[l.URL] || r.queued[l.URL] || !c.IsAllowedDomain(l.URL) || !isLegalRelated(l.URL, l.Text) {
			continue
		}
		r.queued[l.URL] = true
		next = append(next, queueItem{url: l.URL, depth: item.depth + 1})
	}
	return next, nil
}

func (c *Crawler) fetchLinks(ctx context.Context, pageURL string) ([]Link, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.PageTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, legal.NewError(legal.KindNetwork, "crawler.fetch_page", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &httpx.StatusError{URL: pageURL, StatusCode: resp.StatusCode}
	}
	if ct := strings.ToLower(resp.Header.Get("Content-Type")); ct != "" && !strings.Contains(ct, "html") {
		return nil, nil
	}
	return ParseLinks(resp.Request.URL, io.LimitReader(resp.Body, 10<<20))
}

// ingestDocuments claims, downloads and ingests up to MaxDocumentsPerRun
// candidates. Per-document failures are recorded and the run continues.
func (c *Crawler) ingestDocuments(ctx context.Context, discovered []DiscoveredDocument) (Result, error) {
	res := Result{Failures: []Failure{}}
	candidates := discovered
	if len(candidates) > c.cfg.MaxDocumentsPerRun {
		candidates = candidates[:c.cfg.MaxDocumentsPerRun]
	}
	if len(candidates) == 0 {
		return res, nil
	}
	owner, err := c.ensureSystemUser(ctx)
	if err != nil {
		return res, fmt.Errorf("crawler system user: %w", err)
	}

	fail := func(d DiscoveredDocument, err error) {
		res.Failed++
		res.Failures = append(res.Failures, Failure{URL: d.URL, Error: err.Error()})
		c.metrics.IncCrawlDocument("failed")
		c.log.Warn("Document ingestion failed", "url", d.URL, "error", err)
	}

	for _, d := range candidates {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		doc := claimRow(d, owner.ID)
		claimed, err := c.repos.LegalDocument.ClaimSource(dbctx.Of(ctx), doc)
		if err != nil {
			fail(d, fmt.Errorf("claim source: %w", err))
			continue
		}
		if !claimed {
			res.Skipped++
			c.metrics.IncCrawlDocument("skipped")
			c.log.Debug("Source already ingested", "url", d.URL)
			continue
		}

		data, finalURL, err := c.download(ctx, d.URL)
		if err != nil {
			c.release(ctx, doc)
			fail(d, err)
			continue
		}
		out, err := c.ingestion.IngestClaimed(ctx, doc, ingestion.File{Data: data, Name: fileNameFromURL(finalURL)})
		if err != nil {
			fail(d, err)
			continue
		}
		res.Ingested++
		c.metrics.IncCrawlDocument("ingested")
		c.log.Info("Crawled document ingested",
			"url", d.URL,
			"document_id", out.DocumentID,
			"chunks", out.ChunksProcessed,
			"category", d.Category,
		)
		if c.cfg.IngestDelay > 0 {
			if err := c.sleep(ctx, c.cfg.IngestDelay); err != nil {
				return res, err
			}
		}
	}
	return res, nil
}

func claimRow(d DiscoveredDocument, owner uuid.UUID) *types.LegalDocument {
	title := ingestion.TitleFromFileName(fileNameFromURL(d.URL))
	if len(title) < 5 {
		title = d.Title
	}
	meta, _ := json.Marshal(map[string]any{
		"source":       "crawler",
		"linkTitle":    d.Title,
		"discoveredOn": d.SourceURL,
		"depth":        d.Depth,
	})
	src := d.URL
	return &types.LegalDocument{
		Title:        title,
		DocumentType: d.Type,
		Category:     d.Category,
		SourceURL:    &src,
		UploadedBy:   owner,
		Metadata:     datatypes.JSON(meta),
	}
}

func (c *Crawler) release(ctx context.Context, doc *types.LegalDocument) {
	if err := c.repos.LegalDocument.FullDelete(dbctx.Of(context.WithoutCancel(ctx)), doc.ID); err != nil {
		c.log.Warn("Failed to release source claim", "url", *doc.SourceURL, "error", err)
	}
}

// download tries the URL, then its scheme-swapped alternate, each up to
// DownloadAttempts times with attempt x DownloadBackoff between tries.
func (c *Crawler) download(ctx context.Context, rawURL string) ([]byte, string, error) {
	var lastErr error
	for _, u := range candidateURLs(rawURL) {
		for attempt := 1; attempt <= c.cfg.DownloadAttempts; attempt++ {
			data, err := c.downloadOnce(ctx, u)
			if err == nil {
				return data, u, nil
			}
			lastErr = err
			if ctx.Err() != nil {
				return nil, "", ctx.Err()
			}
			if !httpx.IsRetryableError(err) {
				break
			}
			if attempt < c.cfg.DownloadAttempts {
				c.log.Warn("Download failed; retrying", "url", u, "attempt", attempt, "error", err)
				if err := c.sleep(ctx, time.Duration(attempt)*c.cfg.DownloadBackoff); err != nil {
					return nil, "", err
				}
			}
		}
	}
	return nil, "", legal.NewError(legal.KindNetwork, "crawler.download", lastErr)
}

func (c *Crawler) downloadOnce(ctx context.Context, u string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.DownloadTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/pdf,application/vnd.openxmlformats-officedocument.wordprocessingml.document,application/msword,*/*")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		return nil, &httpx.StatusError{URL: u, StatusCode: resp.StatusCode}
	}
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(resp.Body, c.cfg.MaxDownloadBytes+1))
	if err != nil {
		return nil, err
	}
	if n > c.cfg.MaxDownloadBytes {
		return nil, fmt.Errorf("%s exceeds %d bytes", u, c.cfg.MaxDownloadBytes)
	}
	if n == 0 {
		return nil, errors.New("empty response body")
	}
	return buf.Bytes(), nil
}

func candidateURLs(raw string) []string {
	out := []string{raw}
	u, err := url.Parse(raw)
	if err != nil {
		return out
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "http"
	case "http":
		u.Scheme = "https"
	default:
		return out
	}
	return append(out, u.String())
}

func fileNameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "document"
	}
	base := path.Base(u.Path)
	if un, err := url.PathUnescape(base); err == nil {
		base = un
	}
	if base == "." || base == "/" || base == "" {
		return "document"
	}
	return base
}

// ensureSystemUser returns the account crawler uploads are attributed to,
// creating it on first use. Its password hash matches no password.
func (c *Crawler) ensureSystemUser(ctx context.Context) (*types.User, error) {
	c.userMu.Lock()
	defer c.userMu.Unlock()
	if c.systemUser != nil {
		return c.systemUser, nil
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(secret)), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u, err := c.repos.User.EnsureByEmail(dbctx.Of(ctx), &types.User{
		Email:     SystemUserEmail,
		Password:  string(hash),
		FirstName: "LexBridge",
		LastName:  "Crawler",
		Role:      user.RoleService,
	})
	if err != nil {
		return nil, err
	}
	c.systemUser = u
	return u, nil
}
