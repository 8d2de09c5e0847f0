package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/lexbridge-backend/internal/pkg/httpx"
	"github.com/yungbote/lexbridge-backend/internal/platform/envutil"
	"github.com/yungbote/lexbridge-backend/internal/platform/logger"
)

const (
	DefaultBaseURL    = "http://localhost:11434"
	DefaultModel      = "nomic-embed-text"
	DefaultDimensions = 768
)

type Config struct {
	BaseURL    string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

// ConfigFromEnv returns ok=false when OLLAMA_BASE_URL is unset; the
// secondary provider is optional.
func ConfigFromEnv() (Config, bool) {
	base := envutil.String("OLLAMA_BASE_URL", "")
	if base == "" {
		return Config{}, false
	}
	return Config{
		BaseURL:    base,
		Model:      envutil.String("OLLAMA_EMBED_MODEL", DefaultModel),
		Dimensions: envutil.Int("OLLAMA_EMBED_DIMENSIONS", DefaultDimensions),
		Timeout:    envutil.Duration("OLLAMA_TIMEOUT_SECONDS", time.Second, 30*time.Second),
	}, true
}

// Client calls the local Ollama embeddings endpoint, one prompt per request.
type Client struct {
	log  *logger.Logger
	cfg  Config
	http *http.Client
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

func NewClient(log *logger.Logger, cfg Config, httpClient *http.Client) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{log: log.With("service", "OllamaClient"), cfg: cfg, http: httpClient}
}

func (c *Client) Model() string   { return c.cfg.Model }
func (c *Client) Dimensions() int { return c.cfg.Dimensions }

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := c.embedOne(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("ollama embed text %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

func (c *Client) embedOne(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: c.cfg.Model, Prompt: text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return nil, &httpx.StatusError{URL: req.URL.String(), StatusCode: resp.StatusCode}
	}
	var er embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(er.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding from model %s", c.cfg.Model)
	}
	vec := make([]float32, len(er.Embedding))
	for i, v := range er.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

// Ping checks reachability via /api/tags without running inference.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/api/tags", http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ollama: ping failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &httpx.StatusError{URL: req.URL.String(), StatusCode: resp.StatusCode}
	}
	return nil
}
