package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yungbote/lexbridge-backend/internal/domain/legal"
	"github.com/yungbote/lexbridge-backend/internal/observability"
	"github.com/yungbote/lexbridge-backend/internal/pkg/httpx"
	"github.com/yungbote/lexbridge-backend/internal/platform/envutil"
	"github.com/yungbote/lexbridge-backend/internal/platform/logger"
)

const (
	DefaultDimensions = 1536
	DefaultBatchSize  = 100
)

// Strategy is one tier of the fallback chain. FallbackOn decides whether an
// error from this tier lets the chain move on to the next one.
type Strategy struct {
	Provider   Provider
	FallbackOn func(error) bool
}

// Result is a tagged embedding: which provider produced it and whether it
// came from a tier after the first.
type Result struct {
	Vector   []float32
	Provider string
	Fallback bool
	Padded   bool
}

type Config struct {
	Dimensions int
	BatchSize  int
	BatchDelay time.Duration
	ChunkSize  int
	Overlap    int
}

func ConfigFromEnv() Config {
	return Config{
		Dimensions: envutil.Int("EMBED_DIMENSIONS", DefaultDimensions),
		BatchSize:  envutil.Int("EMBED_BATCH_SIZE", DefaultBatchSize),
		BatchDelay: envutil.Duration("EMBED_BATCH_DELAY_MS", time.Millisecond, 100*time.Millisecond),
		ChunkSize:  envutil.Int("CHUNK_SIZE_TOKENS", DefaultChunkTokens),
		Overlap:    envutil.Int("CHUNK_OVERLAP_TOKENS", DefaultChunkOverlap),
	}
}

type Deps struct {
	Log        *logger.Logger
	Metrics    *observability.Metrics
	Strategies []Strategy
	// Tokenizer may be nil; counting and chunking then use 4 chars per token.
	Tokenizer Tokenizer
	// Sleep waits between batches; defaults to a context-aware sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

type Service struct {
	log        *logger.Logger
	metrics    *observability.Metrics
	strategies []Strategy
	chunker    Chunker
	cfg        Config
	sleep      func(ctx context.Context, d time.Duration) error
}

// New builds the service. A synthetic tier is appended when the chain does
// not already end with one, so embedding never hard-fails on provider outage.
func New(deps Deps, cfg Config) (*Service, error) {
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if len(deps.Strategies) == 0 {
		return nil, legal.Errorf(legal.KindConfiguration, "embedding.New", "at least one embedding provider is required")
	}
	strategies := append([]Strategy(nil), deps.Strategies...)
	if _, ok := strategies[len(strategies)-1].Provider.(SyntheticProvider); !ok {
		strategies = append(strategies, Strategy{Provider: SyntheticProvider{Dim: cfg.Dimensions}})
	}
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	sleep := deps.Sleep
	if sleep == nil {
		sleep = httpx.Sleep
	}
	return &Service{
		log:        log.With("service", "EmbeddingService"),
		metrics:    deps.Metrics,
		strategies: strategies,
		chunker:    Chunker{Tokenizer: deps.Tokenizer, Size: cfg.ChunkSize, Overlap: cfg.Overlap},
		cfg:        cfg,
		sleep:      sleep,
	}, nil
}

func (s *Service) Dimensions() int { return s.cfg.Dimensions }

// Providers lists the chain in order, for logs and health output.
func (s *Service) Providers() []string {
	out := make([]string, 0, len(s.strategies))
	for _, st := range s.strategies {
		out = append(out, st.Provider.Name())
	}
	return out
}

func (s *Service) CountTokens(text string) int { return CountTokens(s.chunker.Tokenizer, text) }

func (s *Service) Chunk(text string) []Chunk { return s.chunker.Split(text) }

func (s *Service) GenerateEmbedding(ctx context.Context, text string) (Result, error) {
	out, err := s.embedChain(ctx, []string{text})
	if err != nil {
		return Result{}, err
	}
	return out[0], nil
}

// GenerateEmbeddingsBatch embeds in fixed-size batches, running the whole
// fallback chain per failed batch, and keeps input order.
func (s *Service) GenerateEmbeddingsBatch(ctx context.Context, texts []string) ([]Result, error) {
	out := make([]Result, 0, len(texts))
	for start := 0; start < len(texts); start += s.cfg.BatchSize {
		if start > 0 && s.cfg.BatchDelay > 0 {
			if err := s.sleep(ctx, s.cfg.BatchDelay); err != nil {
				return nil, err
			}
		}
		end := start + s.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := s.embedChain(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (s *Service) embedChain(ctx context.Context, texts []string) ([]Result, error) {
	var lastErr error
	for tier, st := range s.strategies {
		name := st.Provider.Name()
		vecs, err := st.Provider.Embed(ctx, texts)
		if err == nil {
			var results []Result
			results, err = s.reconcile(name, tier > 0, vecs, len(texts))
			if err == nil {
				s.metrics.ObserveEmbedding(name, "ok", len(texts))
				if tier > 0 {
					s.metrics.IncEmbeddingFallback(name, len(texts))
					s.log.Warn("Embedding fallback used",
						"provider", name,
						"tier", tier,
						"count", len(texts),
						"cause", errString(lastErr),
					)
				}
				return results, nil
			}
		}
		s.metrics.ObserveEmbedding(name, "error", len(texts))
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		if st.FallbackOn == nil || !st.FallbackOn(err) || tier == len(s.strategies)-1 {
			return nil, err
		}
		s.log.Warn("Embedding provider failed; trying next tier", "provider", name, "error", err)
	}
	return nil, lastErr
}

// reconcile zero-pads shorter vectors to the index dimension. Longer vectors
// cannot be stored and fail the tier.
func (s *Service) reconcile(provider string, fallback bool, vecs [][]float32, want int) ([]Result, error) {
	if len(vecs) != want {
		return nil, fmt.Errorf("%s returned %d embeddings for %d inputs", provider, len(vecs), want)
	}
	out := make([]Result, len(vecs))
	for i, v := range vecs {
		switch {
		case len(v) == s.cfg.Dimensions:
			out[i] = Result{Vector: v, Provider: provider, Fallback: fallback}
		case len(v) > 0 && len(v) < s.cfg.Dimensions:
			padded := make([]float32, s.cfg.Dimensions)
			copy(padded, v)
			out[i] = Result{Vector: padded, Provider: provider, Fallback: fallback, Padded: true}
		default:
			return nil, legal.Errorf(legal.KindConfiguration, "embedding.reconcile",
				"%s embedding dimension %d does not fit index dimension %d", provider, len(v), s.cfg.Dimensions)
		}
	}
	return out, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	var le *legal.Error
	if errors.As(err, &le) {
		return string(le.Kind)
	}
	return err.Error()
}
