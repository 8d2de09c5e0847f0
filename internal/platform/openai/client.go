package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/lexbridge-backend/internal/observability"
	"github.com/yungbote/lexbridge-backend/internal/pkg/httpx"
	"github.com/yungbote/lexbridge-backend/internal/platform/envutil"
	"github.com/yungbote/lexbridge-backend/internal/platform/logger"
)

type Client interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	EmbedModel() string
	EmbedDimensions() int
}

type Config struct {
	APIKey          string
	BaseURL         string
	ChatModel       string
	EmbedModel      string
	EmbedDimensions int
	Timeout         time.Duration
	MaxRetries      int
}

func ConfigFromEnv() Config {
	return Config{
		APIKey:          envutil.String("OPENAI_API_KEY", ""),
		BaseURL:         envutil.String("OPENAI_BASE_URL", "https://api.openai.com"),
		ChatModel:       envutil.String("OPENAI_CHAT_MODEL", "gpt-4o"),
		EmbedModel:      envutil.String("OPENAI_EMBED_MODEL", "text-embedding-3-small"),
		EmbedDimensions: envutil.Int("EMBED_DIMENSIONS", 1536),
		Timeout:         envutil.Duration("OPENAI_TIMEOUT_SECONDS", time.Second, 180*time.Second),
		MaxRetries:      envutil.Int("OPENAI_MAX_RETRIES", 4),
	}
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
	sleep      func(context.Context, time.Duration) error
}

// NewClient reads its configuration from the environment. A missing
// OPENAI_API_KEY is a startup error.
func NewClient(log *logger.Logger) (Client, error) {
	return NewClientWithConfig(log, ConfigFromEnv(), nil)
}

func NewClientWithConfig(log *logger.Logger, cfg Config, httpClient *http.Client) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = "text-embedding-3-small"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 180 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &client{
		log:        log.With("service", "OpenAIClient"),
		cfg:        cfg,
		httpClient: httpClient,
		sleep:      httpx.Sleep,
	}, nil
}

func (c *client) EmbedModel() string   { return c.cfg.EmbedModel }
func (c *client) EmbedDimensions() int { return c.cfg.EmbedDimensions }

// HTTPError is a non-2xx answer from the API.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

// IsRateLimit reports throttling and quota exhaustion.
func IsRateLimit(err error) bool {
	var he *HTTPError
	if !errors.As(err, &he) {
		return false
	}
	if he.StatusCode == http.StatusTooManyRequests {
		return true
	}
	body := strings.ToLower(he.Body)
	return strings.Contains(body, "insufficient_quota") || strings.Contains(body, "rate_limit") || strings.Contains(body, "rate limit")
}

// IsAuth reports rejected credentials.
func IsAuth(err error) bool {
	var he *HTTPError
	if !errors.As(err, &he) {
		return false
	}
	return he.StatusCode == http.StatusUnauthorized || he.StatusCode == http.StatusForbidden
}

// quota exhaustion comes back as 429 but will not clear by waiting.
func isQuotaExhausted(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && strings.Contains(strings.ToLower(he.Body), "insufficient_quota")
}

func (c *client) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &HTTPError{StatusCode: resp.StatusCode, Body: truncate(string(raw), 2048)}
	}
	return resp, raw, nil
}

func (c *client) do(ctx context.Context, method, path, model string, body any, out any) error {
	backoff := 1 * time.Second
	start := time.Now()
	metrics := observability.Current()

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			in, outTokens := extractUsageFromRaw(raw)
			metrics.ObserveLLMRequest(model, path, statusFromResp(resp), time.Since(start), in, outTokens)
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("openai decode error: %w", uErr)
			}
			return nil
		}

		if !httpx.IsRetryableError(err) || isQuotaExhausted(err) || attempt == c.cfg.MaxRetries {
			metrics.ObserveLLMRequest(model, path, statusFromRespErr(resp, err), time.Since(start), 0, 0)
			return err
		}

		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		c.log.Warn("OpenAI request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.cfg.MaxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		if err := c.sleep(ctx, sleepFor); err != nil {
			return err
		}
		backoff *= 2
	}
	return fmt.Errorf("unreachable retry loop")
}

// -------------------- Embeddings --------------------

type embeddingsRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (c *client) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}
	clean := make([]string, len(inputs))
	for i := range inputs {
		s := strings.TrimSpace(inputs[i])
		if s == "" {
			s = " "
		}
		clean[i] = s
	}
	req := embeddingsRequest{Model: c.cfg.EmbedModel, Input: clean}
	if strings.HasPrefix(c.cfg.EmbedModel, "text-embedding-3") {
		req.Dimensions = c.cfg.EmbedDimensions
	}

	var resp embeddingsResponse
	if err := c.do(ctx, http.MethodPost, "/v1/embeddings", req.Model, req, &resp); err != nil {
		return nil, err
	}

	out := make([][]float32, len(clean))
	for pos, d := range resp.Data {
		idx := d.Index
		if idx < 0 || idx >= len(out) || out[idx] != nil {
			idx = pos
		}
		if idx >= len(out) {
			continue
		}
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		out[idx] = vec
	}
	for i := range out {
		if len(out[i]) == 0 {
			return nil, fmt.Errorf("openai embeddings missing index %d: requested=%d returned=%d model=%s", i, len(clean), len(resp.Data), c.cfg.EmbedModel)
		}
	}
	return out, nil
}

// -------------------- Chat completions --------------------

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ChatResponse struct {
	Content string
	Model   string
	Usage   Usage
}

type chatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

func (c *client) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.cfg.ChatModel
	}
	if len(req.Messages) == 0 {
		return ChatResponse{}, fmt.Errorf("chat: no messages")
	}
	body := chatCompletionRequest{
		Model:       model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	var resp chatCompletionResponse
	if err := c.do(ctx, http.MethodPost, "/v1/chat/completions", model, body, &resp); err != nil {
		return ChatResponse{}, err
	}
	out := ChatResponse{Model: resp.Model, Usage: resp.Usage}
	if out.Model == "" {
		out.Model = model
	}
	if len(resp.Choices) > 0 {
		out.Content = strings.TrimSpace(resp.Choices[0].Message.Content)
	}
	if out.Usage.TotalTokens == 0 {
		out.Usage.TotalTokens = out.Usage.PromptTokens + out.Usage.CompletionTokens
	}
	return out, nil
}

// -------------------- helpers --------------------

func extractUsageFromRaw(raw []byte) (int, int) {
	var payload struct {
		Usage map[string]any `json:"usage"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &payload) != nil || payload.Usage == nil {
		return 0, 0
	}
	usage := payload.Usage
	inTokens := intFromAny(usage["prompt_tokens"])
	outTokens := intFromAny(usage["completion_tokens"])
	if inTokens == 0 && outTokens == 0 {
		inTokens = intFromAny(usage["total_tokens"])
	}
	return inTokens, outTokens
}

func intFromAny(v any) int {
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return int(i)
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return i
		}
	}
	return 0
}

func statusFromResp(resp *http.Response) string {
	if resp == nil {
		return "unknown"
	}
	return strconv.Itoa(resp.StatusCode)
}

func statusFromRespErr(resp *http.Response, err error) string {
	if resp != nil {
		return strconv.Itoa(resp.StatusCode)
	}
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
