package pinecone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/lexbridge-backend/internal/platform/ctxutil"
	"github.com/yungbote/lexbridge-backend/internal/platform/envutil"
	"github.com/yungbote/lexbridge-backend/internal/platform/logger"
)

type Client interface {
	DescribeIndex(ctx context.Context, indexName string) (*IndexDescription, error)
	CreateIndex(ctx context.Context, req CreateIndexRequest) (*IndexDescription, error)
	UpsertVectors(ctx context.Context, host string, req UpsertRequest) (*UpsertResponse, error)
	Query(ctx context.Context, host string, req QueryRequest) (*QueryResponse, error)
	DeleteVectors(ctx context.Context, host string, req DeleteRequest) error
	DescribeIndexStats(ctx context.Context, host string) (*IndexStats, error)
}

type Config struct {
	APIKey     string
	APIVersion string
	BaseURL    string
	IndexName  string
	IndexHost  string
	Cloud      string
	Region     string
	NSPrefix   string
	Timeout    time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		APIKey:     envutil.String("PINECONE_API_KEY", ""),
		APIVersion: envutil.String("PINECONE_API_VERSION", "2025-10"),
		BaseURL:    envutil.String("PINECONE_BASE_URL", "https://api.pinecone.io"),
		IndexName:  envutil.String("PINECONE_INDEX_NAME", "legal-documents"),
		IndexHost:  envutil.String("PINECONE_INDEX_HOST", ""),
		Cloud:      envutil.String("PINECONE_CLOUD", "aws"),
		Region:     envutil.String("PINECONE_REGION", "us-east-1"),
		NSPrefix:   envutil.String("PINECONE_NAMESPACE_PREFIX", "lex"),
		Timeout:    envutil.Duration("PINECONE_TIMEOUT_SECONDS", time.Second, 30*time.Second),
	}
}

// HTTPError is a non-2xx answer from either plane.
type HTTPError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("pinecone %s http %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *HTTPError) HTTPStatusCode() int { return e.StatusCode }

type client struct {
	log  *logger.Logger
	cfg  Config
	http *http.Client
}

func NewClient(log *logger.Logger, cfg Config, httpClient *http.Client) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing PINECONE_API_KEY")
	}
	if strings.TrimSpace(cfg.APIVersion) == "" {
		cfg.APIVersion = "2025-10"
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.pinecone.io"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &client{
		log:  log.With("client", "PineconeClient"),
		cfg:  cfg,
		http: httpClient,
	}, nil
}

// -------------------- Control plane --------------------

type IndexDescription struct {
	Name      string `json:"name"`
	Host      string `json:"host"`
	Dimension int    `json:"dimension"`
	Metric    string `json:"metric"`
	Status    struct {
		Ready bool   `json:"ready"`
		State string `json:"state"`
	} `json:"status"`
}

type CreateIndexRequest struct {
	Name      string         `json:"name"`
	Dimension int            `json:"dimension"`
	Metric    string         `json:"metric"`
	Spec      map[string]any `json:"spec"`
}

func (c *client) DescribeIndex(ctx context.Context, indexName string) (*IndexDescription, error) {
	indexName = strings.TrimSpace(indexName)
	if indexName == "" {
		return nil, fmt.Errorf("indexName required")
	}
	u := strings.TrimRight(c.cfg.BaseURL, "/") + "/indexes/" + indexName
	return doJSON[IndexDescription](c, ctx, "describe_index", http.MethodGet, u, nil)
}

func (c *client) CreateIndex(ctx context.Context, req CreateIndexRequest) (*IndexDescription, error) {
	if req.Metric == "" {
		req.Metric = "cosine"
	}
	if req.Spec == nil {
		req.Spec = map[string]any{
			"serverless": map[string]any{"cloud": c.cfg.Cloud, "region": c.cfg.Region},
		}
	}
	u := strings.TrimRight(c.cfg.BaseURL, "/") + "/indexes"
	return doJSON[IndexDescription](c, ctx, "create_index", http.MethodPost, u, req)
}

// -------------------- Data plane --------------------

type Vector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type UpsertRequest struct {
	Vectors   []Vector `json:"vectors"`
	Namespace string   `json:"namespace,omitempty"`
}

type UpsertResponse struct {
	UpsertedCount int64 `json:"upsertedCount"`
}

func (c *client) UpsertVectors(ctx context.Context, host string, req UpsertRequest) (*UpsertResponse, error) {
	if len(req.Vectors) == 0 {
		return &UpsertResponse{}, nil
	}
	u, err := dataURL(host, "/vectors/upsert")
	if err != nil {
		return nil, err
	}
	return doJSON[UpsertResponse](c, ctx, "upsert", http.MethodPost, u, req)
}

type QueryRequest struct {
	Namespace       string         `json:"namespace,omitempty"`
	Vector          []float32      `json:"vector,omitempty"`
	TopK            int            `json:"topK"`
	Filter          map[string]any `json:"filter,omitempty"`
	IncludeValues   bool           `json:"includeValues,omitempty"`
	IncludeMetadata bool           `json:"includeMetadata,omitempty"`
}

type QueryMatch struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Values   []float32      `json:"values,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type QueryResponse struct {
	Matches []QueryMatch `json:"matches"`
}

func (c *client) Query(ctx context.Context, host string, req QueryRequest) (*QueryResponse, error) {
	if req.TopK <= 0 {
		req.TopK = 10
	}
	if len(req.Vector) == 0 {
		return nil, fmt.Errorf("query vector required")
	}
	u, err := dataURL(host, "/query")
	if err != nil {
		return nil, err
	}
	return doJSON[QueryResponse](c, ctx, "query", http.MethodPost, u, req)
}

type DeleteRequest struct {
	IDs       []string       `json:"ids,omitempty"`
	Filter    map[string]any `json:"filter,omitempty"`
	Namespace string         `json:"namespace,omitempty"`
}

func (c *client) DeleteVectors(ctx context.Context, host string, req DeleteRequest) error {
	if len(req.IDs) == 0 && len(req.Filter) == 0 {
		return nil
	}
	u, err := dataURL(host, "/vectors/delete")
	if err != nil {
		return err
	}
	_, err = doJSON[map[string]any](c, ctx, "delete", http.MethodPost, u, req)
	return err
}

type IndexStats struct {
	Dimension        int                       `json:"dimension"`
	TotalVectorCount int64                     `json:"totalVectorCount"`
	Namespaces       map[string]NamespaceStats `json:"namespaces"`
}

type NamespaceStats struct {
	VectorCount int64 `json:"vectorCount"`
}

func (c *client) DescribeIndexStats(ctx context.Context, host string) (*IndexStats, error) {
	u, err := dataURL(host, "/describe_index_stats")
	if err != nil {
		return nil, err
	}
	return doJSON[IndexStats](c, ctx, "describe_index_stats", http.MethodPost, u, map[string]any{})
}

// -------------------- helpers --------------------

// dataURL accepts a bare index host (as returned by describe_index) or a full
// base URL for local emulators.
func dataURL(host, path string) (string, error) {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if host == "" {
		return "", fmt.Errorf("host required")
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
	}
	return host + path, nil
}

func doJSON[T any](c *client, ctx context.Context, op, method, url string, body any) (*T, error) {
	var rdr io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
		rdr = &buf
	}

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), method, url, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Api-Key", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Pinecone-Api-Version", c.cfg.APIVersion)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var out T
	if len(bytes.TrimSpace(raw)) == 0 {
		return &out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("pinecone %s decode error: %w", op, err)
	}
	return &out, nil
}
