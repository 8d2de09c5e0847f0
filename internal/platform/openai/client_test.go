package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/lexbridge-backend/internal/platform/logger"
)

func newTestClient(t *testing.T, srv *httptest.Server, retries int) *client {
	t.Helper()
	c, err := NewClientWithConfig(logger.Nop(), Config{
		APIKey:          "sk-test",
		BaseURL:         srv.URL,
		ChatModel:       "gpt-4o",
		EmbedModel:      "text-embedding-3-small",
		EmbedDimensions: 4,
		MaxRetries:      retries,
	}, srv.Client())
	if err != nil {
		t.Fatalf("NewClientWithConfig: %v", err)
	}
	cc := c.(*client)
	cc.sleep = func(context.Context, time.Duration) error { return nil }
	return cc
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := NewClientWithConfig(logger.Nop(), Config{}, nil); err == nil || !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Fatalf("want missing key error, got=%v", err)
	}
}

func TestEmbedMapsByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Fatalf("path: want=/v1/embeddings got=%s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Fatalf("auth header: got=%q", got)
		}
		var req embeddingsRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Dimensions != 4 || len(req.Input) != 2 {
			t.Fatalf("request: %+v", req)
		}
		_, _ = io.WriteString(w, `{"data":[{"index":1,"embedding":[0,1,0,0]},{"index":0,"embedding":[1,0,0,0]}]}`)
	}))
	defer srv.Close()

	out, err := newTestClient(t, srv, 0).Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if out[0][0] != 1 || out[1][1] != 1 {
		t.Fatalf("order: got=%v", out)
	}
}

func TestQuotaExhaustedIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"code":"insufficient_quota"}}`)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, 3).Embed(context.Background(), []string{"a"})
	if !IsRateLimit(err) {
		t.Fatalf("want rate limit error, got=%v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls: want=1 got=%d", calls.Load())
	}
}

func TestChatRetriesTransientThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"model":"gpt-4o","choices":[{"message":{"role":"assistant","content":" Under Section 40 ... "}}],"usage":{"prompt_tokens":10,"completion_tokens":5}}`)
	}))
	defer srv.Close()

	resp, err := newTestClient(t, srv, 2).Chat(context.Background(), ChatRequest{
		Messages:    []Message{{Role: "user", Content: "q"}},
		Temperature: 0.3,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "Under Section 40 ..." || resp.Usage.TotalTokens != 15 || resp.Model != "gpt-4o" {
		t.Fatalf("resp: %+v", resp)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls: want=2 got=%d", calls.Load())
	}
}

func TestIsAuth(t *testing.T) {
	if !IsAuth(&HTTPError{StatusCode: 401}) || IsAuth(&HTTPError{StatusCode: 500}) {
		t.Fatalf("IsAuth misclassified")
	}
}
