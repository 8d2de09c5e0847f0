package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/lexbridge-backend/internal/platform/envutil"
	"github.com/yungbote/lexbridge-backend/internal/platform/logger"
)

const prefix = "lex_"

type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge

	llmRequests *CounterVec
	llmLatency  *HistogramVec
	llmTokens   *CounterVec

	embeddingRequests  *CounterVec
	embeddingFallbacks *CounterVec

	vectorOps     *CounterVec
	vectorLatency *HistogramVec

	crawlRuns        *CounterVec
	crawlRunDuration *HistogramVec
	crawlPages       *CounterVec
	crawlDocuments   *CounterVec
	crawlInProgress  *Gauge

	ingestDocuments *CounterVec
	ingestDuration  *HistogramVec
	ingestChunks    *CounterVec

	ragQueries    *CounterVec
	ragConfidence *HistogramVec

	dbStats *GaugeVec
	redisUp *Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

// Current returns the process metrics, or nil when disabled. Every method is
// nil-safe.
func Current() *Metrics {
	return instance
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = NewMetrics()
		if log != nil {
			log.Info("Metrics enabled")
		}
	})
	return instance
}

// NewMetrics builds an unregistered metric set.
func NewMetrics() *Metrics {
	latency := []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}
	return &Metrics{
		apiRequests: NewCounterVec(prefix+"api_requests_total", "Ops API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency:  NewHistogramVec(prefix+"api_request_duration_seconds", "Ops API latency.", []string{"method", "route", "status"}, latency),
		apiInflight: NewGauge(prefix+"api_inflight_requests", "In-flight ops API requests."),

		llmRequests: NewCounterVec(prefix+"llm_requests_total", "Provider requests by model/endpoint/status.", []string{"model", "endpoint", "status"}),
		llmLatency:  NewHistogramVec(prefix+"llm_request_duration_seconds", "Provider request latency.", []string{"model", "endpoint", "status"}, latency),
		llmTokens:   NewCounterVec(prefix+"llm_tokens_total", "Provider tokens by model/direction.", []string{"model", "direction"}),

		embeddingRequests:  NewCounterVec(prefix+"embedding_requests_total", "Embedding attempts by provider/status.", []string{"provider", "status"}),
		embeddingFallbacks: NewCounterVec(prefix+"embedding_fallback_vectors_total", "Vectors produced by a fallback tier.", []string{"provider"}),

		vectorOps:     NewCounterVec(prefix+"vector_store_operations_total", "Vector store calls by provider/operation/status.", []string{"provider", "operation", "status"}),
		vectorLatency: NewHistogramVec(prefix+"vector_store_operation_duration_seconds", "Vector store call latency.", []string{"provider", "operation"}, latency),

		crawlRuns:        NewCounterVec(prefix+"crawl_runs_total", "Crawl runs by trigger/status.", []string{"trigger", "status"}),
		crawlRunDuration: NewHistogramVec(prefix+"crawl_run_duration_seconds", "Crawl run wall time.", []string{"trigger"}, []float64{10, 30, 60, 300, 600, 1800, 3600}),
		crawlPages:       NewCounterVec(prefix+"crawl_pages_total", "Crawled pages by status.", []string{"status"}),
		crawlDocuments:   NewCounterVec(prefix+"crawl_documents_total", "Candidate documents by outcome.", []string{"outcome"}),
		crawlInProgress:  NewGauge(prefix+"crawl_in_progress", "Crawl runs currently executing."),

		ingestDocuments: NewCounterVec(prefix+"ingest_documents_total", "Ingested documents by source/status.", []string{"source", "status"}),
		ingestDuration:  NewHistogramVec(prefix+"ingest_duration_seconds", "Single document ingest time.", []string{"source"}, latency),
		ingestChunks:    NewCounterVec(prefix+"ingest_chunks_total", "Chunks written.", []string{"source"}),

		ragQueries:    NewCounterVec(prefix+"rag_queries_total", "RAG queries by mode/model/status.", []string{"mode", "model", "status"}),
		ragConfidence: NewHistogramVec(prefix+"rag_confidence", "Retrieval confidence per grounded query.", nil, []float64{0.1, 0.3, 0.5, 0.7, 0.8, 0.85, 0.9, 0.95, 1}),

		dbStats: NewGaugeVec(prefix+"db_stats", "database/sql pool stats.", []string{"stat"}),
		redisUp: NewGauge(prefix+"redis_up", "Redis reachability."),
	}
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

type promWriter interface {
	WritePrometheus(w io.Writer) error
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	all := []promWriter{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.llmRequests, m.llmLatency, m.llmTokens,
		m.embeddingRequests, m.embeddingFallbacks,
		m.vectorOps, m.vectorLatency,
		m.crawlRuns, m.crawlRunDuration, m.crawlPages, m.crawlDocuments, m.crawlInProgress,
		m.ingestDocuments, m.ingestDuration, m.ingestChunks,
		m.ragQueries, m.ragConfidence,
		m.dbStats, m.redisUp,
	}
	for _, pw := range all {
		if err := pw.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveLLMRequest(model, endpoint, status string, dur time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	m.llmRequests.Inc(model, endpoint, status)
	if dur > 0 {
		m.llmLatency.Observe(dur.Seconds(), model, endpoint, status)
	}
	if inputTokens > 0 {
		m.llmTokens.Add(float64(inputTokens), model, "input")
	}
	if outputTokens > 0 {
		m.llmTokens.Add(float64(outputTokens), model, "output")
	}
}

func (m *Metrics) ObserveEmbedding(provider, status string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.embeddingRequests.Add(float64(n), provider, status)
}

// IncEmbeddingFallback counts vectors produced by a non-primary tier.
func (m *Metrics) IncEmbeddingFallback(provider string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.embeddingFallbacks.Add(float64(n), provider)
}

func (m *Metrics) EmbeddingFallbackCount(provider string) float64 {
	if m == nil {
		return 0
	}
	return m.embeddingFallbacks.Value(provider)
}

func (m *Metrics) ObserveVectorStoreOperation(provider, op, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.vectorOps.Inc(provider, op, status)
	m.vectorLatency.Observe(dur.Seconds(), provider, op)
}

func (m *Metrics) ObserveCrawlRun(trigger, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.crawlRuns.Inc(trigger, status)
	m.crawlRunDuration.Observe(dur.Seconds(), trigger)
}

func (m *Metrics) CrawlStarted() {
	if m == nil {
		return
	}
	m.crawlInProgress.Inc()
}

func (m *Metrics) CrawlFinished() {
	if m == nil {
		return
	}
	m.crawlInProgress.Dec()
}

func (m *Metrics) IncCrawlPage(status string) {
	if m == nil {
		return
	}
	m.crawlPages.Inc(status)
}

func (m *Metrics) IncCrawlDocument(outcome string) {
	if m == nil {
		return
	}
	m.crawlDocuments.Inc(outcome)
}

func (m *Metrics) ObserveIngest(source, status string, chunks int, dur time.Duration) {
	if m == nil {
		return
	}
	m.ingestDocuments.Inc(source, status)
	m.ingestDuration.Observe(dur.Seconds(), source)
	if chunks > 0 {
		m.ingestChunks.Add(float64(chunks), source)
	}
}

func (m *Metrics) ObserveRAGQuery(mode, model, status string, confidence float64) {
	if m == nil {
		return
	}
	m.ragQueries.Inc(mode, model, status)
	if mode == "grounded" && status == "ok" {
		m.ragConfidence.Observe(confidence)
	}
}

func (m *Metrics) StartDBCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := envutil.Duration("METRICS_SCRAPE_INTERVAL_SECONDS", time.Second, 10*time.Second)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sqlDB, err := db.DB()
				if err != nil {
					if log != nil {
						log.Warn("metrics: db stats unavailable", "error", err)
					}
					continue
				}
				stats := sqlDB.Stats()
				m.dbStats.Set(float64(stats.OpenConnections), "open_connections")
				m.dbStats.Set(float64(stats.InUse), "in_use")
				m.dbStats.Set(float64(stats.Idle), "idle")
				m.dbStats.Set(float64(stats.WaitCount), "wait_count")
				m.dbStats.Set(stats.WaitDuration.Seconds(), "wait_duration_seconds")
			}
		}
	}()
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb *redis.Client) {
	if m == nil || rdb == nil {
		return
	}
	interval := envutil.Duration("METRICS_SCRAPE_INTERVAL_SECONDS", time.Second, 10*time.Second)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
			}
		}
	}()
}
