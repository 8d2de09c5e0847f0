package crawler

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/lexbridge-backend/internal/platform/envutil"
)

const (
	DefaultMaxDepth           = 5
	DefaultMaxDocumentsPerRun = 50
	DefaultLinksPerPage       = 20
	DefaultDownloadAttempts   = 3

	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

var DefaultSeedURLs = []string{
	"https://new.kenyalaw.org/judgments/",
	"https://new.kenyalaw.org/legislation/",
	"https://www.judiciary.go.ke/judgments/",
	"http://www.parliament.go.ke/the-national-assembly/house-business/bills",
	"https://lsk.or.ke/resources/",
}

var DefaultAllowedDomains = []string{
	"kenyalaw.org",
	"new.kenyalaw.org",
	"judiciary.go.ke",
	"parliament.go.ke",
	"lsk.or.ke",
}

// Legacy hosts serve navigation through query strings; only their download
// links are followed.
var DefaultLegacyHosts = []string{"kenyalaw.org"}

// Config is fixed for the duration of one run.
type Config struct {
	SeedURLs           []string      `yaml:"seed_urls"`
	AllowedDomains     []string      `yaml:"allowed_domains"`
	LegacyHosts        []string      `yaml:"legacy_hosts"`
	MaxDepth           int           `yaml:"max_depth"`
	MaxDocumentsPerRun int           `yaml:"max_documents_per_run"`
	LinksPerPage       int           `yaml:"links_per_page"`
	RespectRobotsTxt   bool          `yaml:"respect_robots_txt"`
	LinkDelay          time.Duration `yaml:"link_delay"`
	SeedDelay          time.Duration `yaml:"seed_delay"`
	IngestDelay        time.Duration `yaml:"ingest_delay"`
	DownloadAttempts   int           `yaml:"download_attempts"`
	DownloadBackoff    time.Duration `yaml:"download_backoff"`
	PageTimeout        time.Duration `yaml:"page_timeout"`
	DownloadTimeout    time.Duration `yaml:"download_timeout"`
	MaxDownloadBytes   int64         `yaml:"max_download_bytes"`
	UserAgent          string        `yaml:"user_agent"`
}

func DefaultConfig() Config {
	return Config{
		SeedURLs:           append([]string(nil), DefaultSeedURLs...),
		AllowedDomains:     append([]string(nil), DefaultAllowedDomains...),
		LegacyHosts:        append([]string(nil), DefaultLegacyHosts...),
		MaxDepth:           DefaultMaxDepth,
		MaxDocumentsPerRun: DefaultMaxDocumentsPerRun,
		LinksPerPage:       DefaultLinksPerPage,
		RespectRobotsTxt:   true,
		LinkDelay:          time.Second,
		SeedDelay:          2 * time.Second,
		IngestDelay:        time.Second,
		DownloadAttempts:   DefaultDownloadAttempts,
		DownloadBackoff:    2 * time.Second,
		PageTimeout:        60 * time.Second,
		DownloadTimeout:    120 * time.Second,
		MaxDownloadBytes:   100 << 20,
		UserAgent:          DefaultUserAgent,
	}
}

// ConfigFromEnv starts from defaults, applies the YAML profile named by
// CRAWL_CONFIG_PATH when set, then CRAWL_* overrides.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if path := strings.TrimSpace(os.Getenv("CRAWL_CONFIG_PATH")); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.SeedURLs = envutil.List("CRAWL_SEED_URLS", cfg.SeedURLs)
	cfg.AllowedDomains = envutil.List("CRAWL_ALLOWED_DOMAINS", cfg.AllowedDomains)
	cfg.MaxDepth = envutil.Int("CRAWL_MAX_DEPTH", cfg.MaxDepth)
	cfg.MaxDocumentsPerRun = envutil.Int("CRAWL_MAX_DOCUMENTS_PER_RUN", cfg.MaxDocumentsPerRun)
	cfg.RespectRobotsTxt = envutil.Bool("CRAWL_RESPECT_ROBOTS_TXT", cfg.RespectRobotsTxt)
	cfg.LinkDelay = envutil.Duration("CRAWL_LINK_DELAY_MS", time.Millisecond, cfg.LinkDelay)
	cfg.SeedDelay = envutil.Duration("CRAWL_SEED_DELAY_MS", time.Millisecond, cfg.SeedDelay)
	cfg.UserAgent = envutil.String("CRAWL_USER_AGENT", cfg.UserAgent)
	return cfg, cfg.Validate()
}

// LoadFile overlays a YAML crawl profile onto cfg. Missing files are an error.
func (cfg *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read crawl profile: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse crawl profile %s: %w", path, err)
	}
	return nil
}

func (cfg Config) Validate() error {
	if cfg.MaxDepth < 0 {
		return errors.New("crawl max_depth must be >= 0")
	}
	if cfg.MaxDocumentsPerRun <= 0 {
		return errors.New("crawl max_documents_per_run must be > 0")
	}
	if len(cfg.AllowedDomains) == 0 && len(cfg.SeedURLs) > 0 {
		return errors.New("crawl allowed_domains required when seeds are configured")
	}
	return nil
}

func (cfg Config) withDefaults() Config {
	d := DefaultConfig()
	if cfg.LinksPerPage <= 0 {
		cfg.LinksPerPage = d.LinksPerPage
	}
	if cfg.DownloadAttempts <= 0 {
		cfg.DownloadAttempts = d.DownloadAttempts
	}
	if cfg.MaxDocumentsPerRun <= 0 {
		cfg.MaxDocumentsPerRun = d.MaxDocumentsPerRun
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = d.PageTimeout
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = d.DownloadTimeout
	}
	if cfg.MaxDownloadBytes <= 0 {
		cfg.MaxDownloadBytes = d.MaxDownloadBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = d.UserAgent
	}
	return cfg
}
