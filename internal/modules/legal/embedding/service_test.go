package embedding

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/lexbridge-backend/internal/domain/legal"
	"github.com/yungbote/lexbridge-backend/internal/observability"
)

type fakeProvider struct {
	name  string
	dim   int
	err   error
	calls [][]string
}

func (f *fakeProvider) Name() string    { return f.name }
func (f *fakeProvider) Dimensions() int { return f.dim }

func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, append([]string(nil), texts...))
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, f.dim)
		v[i%f.dim] = 1
		out[i] = v
	}
	return out, nil
}

func newTestService(t *testing.T, cfg Config, strategies ...Strategy) *Service {
	t.Helper()
	s, err := New(Deps{Metrics: observability.NewMetrics(), Strategies: strategies, Sleep: func(context.Context, time.Duration) error { return nil }}, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestGenerateEmbeddingPrimary(t *testing.T) {
	primary := &fakeProvider{name: "openai", dim: 8}
	s := newTestService(t, Config{Dimensions: 8}, Strategy{Provider: primary, FallbackOn: RateLimitOrTransient})

	res, err := s.GenerateEmbedding(context.Background(), "Section 1 of the Act")
	if err != nil {
		t.Fatalf("GenerateEmbedding: %v", err)
	}
	if res.Provider != "openai" || res.Fallback || res.Padded || len(res.Vector) != 8 {
		t.Fatalf("result: got=%+v", res)
	}
}

func TestRateLimitFallsBackToSecondaryWithPadding(t *testing.T) {
	primary := &fakeProvider{name: "openai", dim: 8, err: legal.Errorf(legal.KindProviderRateLimit, "embed", "429")}
	secondary := &fakeProvider{name: "ollama", dim: 4}
	s := newTestService(t, Config{Dimensions: 8},
		Strategy{Provider: primary, FallbackOn: RateLimitOrTransient},
		Strategy{Provider: secondary, FallbackOn: Always},
	)

	res, err := s.GenerateEmbedding(context.Background(), "text")
	if err != nil {
		t.Fatalf("GenerateEmbedding: %v", err)
	}
	if res.Provider != "ollama" || !res.Fallback || !res.Padded {
		t.Fatalf("result: got=%+v", res)
	}
	if len(res.Vector) != 8 {
		t.Fatalf("padded length: want=8 got=%d", len(res.Vector))
	}
	for _, x := range res.Vector[4:] {
		if x != 0 {
			t.Fatalf("padding must be zeros: got=%v", res.Vector)
		}
	}
	if got := s.metrics.EmbeddingFallbackCount("ollama"); got != 1 {
		t.Fatalf("fallback metric: want=1 got=%v", got)
	}
}

func TestBothProvidersFailUsesSynthetic(t *testing.T) {
	primary := &fakeProvider{name: "openai", dim: 8, err: legal.Errorf(legal.KindProviderRateLimit, "embed", "quota")}
	secondary := &fakeProvider{name: "ollama", dim: 4, err: errors.New("connection refused")}
	s := newTestService(t, Config{Dimensions: 8},
		Strategy{Provider: primary, FallbackOn: RateLimitOrTransient},
		Strategy{Provider: secondary, FallbackOn: Always},
	)

	res, err := s.GenerateEmbedding(context.Background(), "text")
	if err != nil {
		t.Fatalf("GenerateEmbedding: %v", err)
	}
	if res.Provider != "synthetic" || !res.Fallback {
		t.Fatalf("result: got=%+v", res)
	}
	var norm float64
	for _, x := range res.Vector {
		norm += float64(x) * float64(x)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Fatalf("synthetic vector must be unit length: norm=%v", norm)
	}
}

func TestAuthErrorIsNotFallbackEligible(t *testing.T) {
	primary := &fakeProvider{name: "openai", dim: 8, err: legal.Errorf(legal.KindProviderAuth, "embed", "401")}
	secondary := &fakeProvider{name: "ollama", dim: 8}
	s := newTestService(t, Config{Dimensions: 8},
		Strategy{Provider: primary, FallbackOn: RateLimitOrTransient},
		Strategy{Provider: secondary, FallbackOn: Always},
	)
	_, err := s.GenerateEmbedding(context.Background(), "text")
	if !errors.Is(err, legal.ErrProviderAuth) {
		t.Fatalf("err: want provider auth got=%v", err)
	}
	if len(secondary.calls) != 0 {
		t.Fatalf("secondary must not be called on auth failure")
	}
}

func TestBatchPreservesOrderAndSplits(t *testing.T) {
	primary := &fakeProvider{name: "openai", dim: 4}
	var slept int
	s, err := New(Deps{
		Strategies: []Strategy{{Provider: primary, FallbackOn: RateLimitOrTransient}},
		Sleep: func(context.Context, time.Duration) error {
			slept++
			return nil
		},
	}, Config{Dimensions: 4, BatchSize: 2, BatchDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	texts := []string{"a", "b", "c", "d", "e"}
	out, err := s.GenerateEmbeddingsBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("GenerateEmbeddingsBatch: %v", err)
	}
	if len(out) != 5 {
		t.Fatalf("results: want=5 got=%d", len(out))
	}
	if len(primary.calls) != 3 || strings.Join(primary.calls[2], ",") != "e" {
		t.Fatalf("batches: got=%v", primary.calls)
	}
	if slept != 2 {
		t.Fatalf("inter-batch delays: want=2 got=%d", slept)
	}
}

func TestBatchFallbackAppliesToWholeBatch(t *testing.T) {
	primary := &fakeProvider{name: "openai", dim: 4, err: legal.Errorf(legal.KindProviderRateLimit, "embed", "429")}
	s := newTestService(t, Config{Dimensions: 4, BatchSize: 100},
		Strategy{Provider: primary, FallbackOn: RateLimitOrTransient},
	)
	out, err := s.GenerateEmbeddingsBatch(context.Background(), []string{"one", "two", "three"})
	if err != nil {
		t.Fatalf("GenerateEmbeddingsBatch: %v", err)
	}
	for i, r := range out {
		if r.Provider != "synthetic" || !r.Fallback {
			t.Fatalf("result %d: got=%+v", i, r)
		}
	}
}

func TestOversizedVectorFailsTier(t *testing.T) {
	primary := &fakeProvider{name: "openai", dim: 16}
	s := newTestService(t, Config{Dimensions: 8}, Strategy{Provider: primary, FallbackOn: RateLimitOrTransient})
	_, err := s.GenerateEmbedding(context.Background(), "x")
	if !errors.Is(err, legal.ErrConfiguration) {
		t.Fatalf("err: want configuration got=%v", err)
	}
}

func TestSyntheticVectorDeterministic(t *testing.T) {
	a := SyntheticVector("Constitution of Kenya", 32)
	b := SyntheticVector("Constitution of Kenya", 32)
	c := SyntheticVector("Employment Act", 32)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("synthetic vector must be deterministic")
		}
	}
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
		}
	}
	if same {
		t.Fatalf("different texts should hash differently")
	}
}
