package embedding

import (
	"context"
	"errors"
	"hash/fnv"
	"math"

	"github.com/yungbote/lexbridge-backend/internal/domain/legal"
	"github.com/yungbote/lexbridge-backend/internal/pkg/httpx"
	"github.com/yungbote/lexbridge-backend/internal/platform/ollama"
	"github.com/yungbote/lexbridge-backend/internal/platform/openai"
)

// Provider turns texts into vectors, one per input, in input order.
type Provider interface {
	Name() string
	Dimensions() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type openAIProvider struct{ c openai.Client }

func NewOpenAIProvider(c openai.Client) Provider { return openAIProvider{c: c} }

func (p openAIProvider) Name() string    { return "openai" }
func (p openAIProvider) Dimensions() int { return p.c.EmbedDimensions() }

func (p openAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out, err := p.c.Embed(ctx, texts)
	switch {
	case err == nil:
		return out, nil
	case openai.IsRateLimit(err):
		return nil, legal.NewError(legal.KindProviderRateLimit, "openai.embed", err)
	case openai.IsAuth(err):
		return nil, legal.NewError(legal.KindProviderAuth, "openai.embed", err)
	case httpx.IsRetryableError(err):
		return nil, legal.NewError(legal.KindNetwork, "openai.embed", err)
	default:
		return nil, err
	}
}

type ollamaProvider struct{ c *ollama.Client }

func NewOllamaProvider(c *ollama.Client) Provider { return ollamaProvider{c: c} }

func (p ollamaProvider) Name() string    { return "ollama" }
func (p ollamaProvider) Dimensions() int { return p.c.Dimensions() }

func (p ollamaProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return p.c.Embed(ctx, texts)
}

// SyntheticProvider derives a unit vector from character hashes. It never
// fails and carries no semantic meaning.
type SyntheticProvider struct{ Dim int }

func (p SyntheticProvider) Name() string    { return "synthetic" }
func (p SyntheticProvider) Dimensions() int { return p.Dim }

func (p SyntheticProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = SyntheticVector(t, p.Dim)
	}
	return out, nil
}

// SyntheticVector hashes each rune with its position into dim buckets and
// normalizes the result.
func SyntheticVector(text string, dim int) []float32 {
	if dim <= 0 {
		return nil
	}
	v := make([]float64, dim)
	pos := 0
	for _, r := range text {
		h := fnv.New32a()
		_, _ = h.Write([]byte{byte(r), byte(r >> 8), byte(r >> 16), byte(pos), byte(pos >> 8)})
		sum := h.Sum32()
		sign := 1.0
		if sum&1 == 1 {
			sign = -1
		}
		v[int(sum>>1)%dim] += sign
		pos++
	}
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	out := make([]float32, dim)
	if norm == 0 {
		out[0] = 1
		return out
	}
	norm = math.Sqrt(norm)
	for i, x := range v {
		out[i] = float32(x / norm)
	}
	return out
}

// RateLimitOrTransient allows fallback on throttling, quota and transient
// upstream failures. Auth and configuration errors stay fatal.
func RateLimitOrTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, legal.ErrProviderAuth) {
		return false
	}
	return errors.Is(err, legal.ErrProviderRateLimit) ||
		errors.Is(err, legal.ErrNetwork) ||
		httpx.IsRetryableError(err)
}

// Always allows fallback on any error.
func Always(error) bool { return true }
