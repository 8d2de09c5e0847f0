package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/yungbote/lexbridge-backend/internal/modules/legal/embedding"
	"github.com/yungbote/lexbridge-backend/internal/modules/legal/vectorindex"
	"github.com/yungbote/lexbridge-backend/internal/platform/openai"
)

type fakeEmbedder struct{ err error }

func (f fakeEmbedder) GenerateEmbedding(ctx context.Context, text string) (embedding.Result, error) {
	if f.err != nil {
		return embedding.Result{}, f.err
	}
	return embedding.Result{Vector: []float32{1, 0, 0}, Provider: "openai"}, nil
}

type fakeSearcher struct {
	matches []vectorindex.Match
	topK    int
}

func (f *fakeSearcher) SearchSimilar(ctx context.Context, vector []float32, topK int, namespace string, filter map[string]any) ([]vectorindex.Match, error) {
	f.topK = topK
	return f.matches, nil
}

type fakeChat struct {
	reqs    []openai.ChatRequest
	content string
	err     error
}

func (f *fakeChat) Chat(ctx context.Context, req openai.ChatRequest) (openai.ChatResponse, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return openai.ChatResponse{}, f.err
	}
	return openai.ChatResponse{
		Content: f.content,
		Model:   req.Model,
		Usage:   openai.Usage{PromptTokens: 120, CompletionTokens: 30, TotalTokens: 150},
	}, nil
}

func match(id string, score float64) vectorindex.Match {
	return vectorindex.Match{ID: id, Score: score, Metadata: map[string]any{
		"documentId":    "doc-" + id,
		"documentTitle": "Employment Act " + id,
		"text":          "An employer shall pay wages " + id,
		"citation":      "Cap. 226",
		"section":       "Section 17",
		"chunkIndex":    0,
	}}
}

func newService(t *testing.T, cfg Config, idx *fakeSearcher, chat *fakeChat) *Service {
	t.Helper()
	s, err := New(Deps{Embedder: fakeEmbedder{}, Index: idx, Chat: chat}, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestRetrieveContextNoMatchesAboveThreshold(t *testing.T) {
	idx := &fakeSearcher{matches: []vectorindex.Match{match("a", 0.69), match("b", 0.4)}}
	chat := &fakeChat{content: ""}
	s := newService(t, DefaultConfig(), idx, chat)

	rc, err := s.RetrieveContext(context.Background(), "What is the notice period for termination?")
	if err != nil {
		t.Fatalf("RetrieveContext: %v", err)
	}
	if len(rc.Sources) != 0 || rc.AvgConfidence != 0 {
		t.Fatalf("context: want=empty/0 got=%d/%v", len(rc.Sources), rc.AvgConfidence)
	}
	if idx.topK != DefaultTopK {
		t.Fatalf("topK: want=%d got=%d", DefaultTopK, idx.topK)
	}

	resp, err := s.GenerateAnswer(context.Background(), "What is the notice period for termination?", rc, nil)
	if err != nil {
		t.Fatalf("GenerateAnswer: %v", err)
	}
	if strings.TrimSpace(resp.Answer) == "" {
		t.Fatalf("answer: want non-empty")
	}
	if resp.Sources == nil || len(resp.Sources) != 0 {
		t.Fatalf("sources: want empty slice got=%v", resp.Sources)
	}
}

func TestRetrieveContextConfidence(t *testing.T) {
	idx := &fakeSearcher{matches: []vectorindex.Match{match("a", 0.9), match("b", 0.8), match("c", 0.5)}}
	s := newService(t, DefaultConfig(), idx, &fakeChat{content: "ok"})

	rc, err := s.RetrieveContext(context.Background(), "wages")
	if err != nil {
		t.Fatalf("RetrieveContext: %v", err)
	}
	if rc.RetrievedCount != 2 {
		t.Fatalf("retained: want=2 got=%d", rc.RetrievedCount)
	}
	if rc.AvgConfidence < 0.849 || rc.AvgConfidence > 0.851 {
		t.Fatalf("avg confidence: want=0.85 got=%v", rc.AvgConfidence)
	}
	for _, src := range rc.Sources {
		if src.Score < DefaultSimilarityThreshold {
			t.Fatalf("source below threshold: %+v", src)
		}
	}
	if rc.Sources[0].DocumentID != "doc-a" || rc.Sources[0].Citation != "Cap. 226" {
		t.Fatalf("source metadata: got=%+v", rc.Sources[0])
	}
}

func TestRetrieveContextClampsConfidence(t *testing.T) {
	idx := &fakeSearcher{matches: []vectorindex.Match{match("a", 1.0000004)}}
	s := newService(t, DefaultConfig(), idx, &fakeChat{content: "ok"})

	rc, err := s.RetrieveContext(context.Background(), "wages")
	if err != nil {
		t.Fatalf("RetrieveContext: %v", err)
	}
	if rc.AvgConfidence != 1 {
		t.Fatalf("avg confidence: want=1 got=%v", rc.AvgConfidence)
	}
}

func TestSelectModel(t *testing.T) {
	cfg := DefaultConfig()
	s := newService(t, cfg, &fakeSearcher{}, &fakeChat{})
	if got := s.SelectModel(0.95); got != DefaultModel {
		t.Fatalf("cheap model disabled: want=%s got=%s", DefaultModel, got)
	}

	cfg.UseCheapModel = true
	s = newService(t, cfg, &fakeSearcher{}, &fakeChat{})
	cases := []struct {
		conf float64
		want string
	}{
		{0.84, DefaultModel},
		{0.85, DefaultCheapModel},
		{0.97, DefaultCheapModel},
	}
	for _, tc := range cases {
		if got := s.SelectModel(tc.conf); got != tc.want {
			t.Fatalf("SelectModel(%v): want=%s got=%s", tc.conf, tc.want, got)
		}
	}
}

func TestGenerateAnswerPromptAndHistory(t *testing.T) {
	chat := &fakeChat{content: "Under Section 17 [1]..."}
	s := newService(t, DefaultConfig(), &fakeSearcher{}, chat)
	rc := Context{Sources: []Source{{DocumentID: "d1", Title: "Employment Act", Citation: "Cap. 226", Section: "Section 17", Text: "wages", Score: 0.91}}, RetrievedCount: 1, AvgConfidence: 0.91}

	var history []Turn
	for i := 0; i < 8; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		history = append(history, Turn{Role: role, Content: "turn " + string(rune('0'+i))})
	}
	resp, err := s.GenerateAnswer(context.Background(), "When are wages due?", rc, history)
	if err != nil {
		t.Fatalf("GenerateAnswer: %v", err)
	}
	if resp.TokensUsed != 150 || resp.ModelUsed != DefaultModel || resp.Confidence != 0.91 {
		t.Fatalf("response: got=%+v", resp)
	}

	req := chat.reqs[0]
	if req.Temperature != DefaultTemperature || req.MaxTokens != DefaultMaxTokens {
		t.Fatalf("request params: got temp=%v max=%d", req.Temperature, req.MaxTokens)
	}
	// system + 5 history turns + query
	if len(req.Messages) != 7 {
		t.Fatalf("messages: want=7 got=%d", len(req.Messages))
	}
	if req.Messages[1].Content != "turn 3" {
		t.Fatalf("oldest kept turn: want=turn 3 got=%s", req.Messages[1].Content)
	}
	if last := req.Messages[6]; last.Role != "user" || last.Content != "When are wages due?" {
		t.Fatalf("last message: got=%+v", last)
	}
	sys := req.Messages[0].Content
	for _, want := range []string{"Employment Act", "Cap. 226", "Section 17", "Relevance: 91%", "qualified legal professional"} {
		if !strings.Contains(sys, want) {
			t.Fatalf("system prompt missing %q", want)
		}
	}
}

func TestQueryWithoutRAG(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UseCheapModel = true
	chat := &fakeChat{content: "Generally..."}
	s := newService(t, cfg, &fakeSearcher{}, chat)

	resp, err := s.QueryWithoutRAG(context.Background(), "Can I appeal?", nil)
	if err != nil {
		t.Fatalf("QueryWithoutRAG: %v", err)
	}
	if resp.Confidence != 0 || len(resp.Sources) != 0 || resp.Mode != ModeUngrounded {
		t.Fatalf("response: got=%+v", resp)
	}
	if chat.reqs[0].Model != DefaultModel {
		t.Fatalf("model: want=%s got=%s", DefaultModel, chat.reqs[0].Model)
	}
}

func TestQueryPropagatesErrors(t *testing.T) {
	chat := &fakeChat{err: errors.New("upstream 500")}
	s := newService(t, DefaultConfig(), &fakeSearcher{matches: []vectorindex.Match{match("a", 0.9)}}, chat)
	if _, err := s.Query(context.Background(), "wages", nil); err == nil {
		t.Fatalf("Query: want error")
	}
}

func TestAnswerRouting(t *testing.T) {
	embedErr := errors.New("embedding outage")

	cfg := DefaultConfig()
	chat := &fakeChat{content: "fallback answer"}
	s, err := New(Deps{Embedder: fakeEmbedder{err: embedErr}, Index: &fakeSearcher{}, Chat: chat}, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := s.Answer(context.Background(), "wages", nil)
	if err != nil {
		t.Fatalf("Answer with fallback: %v", err)
	}
	if !resp.Degraded || resp.Mode != ModeUngrounded {
		t.Fatalf("degraded answer: got=%+v", resp)
	}

	cfg.FallbackUngrounded = false
	s, _ = New(Deps{Embedder: fakeEmbedder{err: embedErr}, Index: &fakeSearcher{}, Chat: chat}, cfg)
	if _, err := s.Answer(context.Background(), "wages", nil); !errors.Is(err, embedErr) {
		t.Fatalf("Answer without fallback: want=%v got=%v", embedErr, err)
	}

	cfg.Mode = ModeUngrounded
	chat = &fakeChat{content: "general"}
	s, err = New(Deps{Chat: chat}, cfg)
	if err != nil {
		t.Fatalf("New ungrounded: %v", err)
	}
	resp, err = s.Answer(context.Background(), "wages", nil)
	if err != nil || resp.Mode != ModeUngrounded || resp.Degraded {
		t.Fatalf("ungrounded answer: resp=%+v err=%v", resp, err)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = "hybrid"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("bad mode: want error")
	}
	cfg = DefaultConfig()
	cfg.SimilarityThreshold = 1.2
	if err := cfg.Validate(); err == nil {
		t.Fatalf("bad threshold: want error")
	}
}

func TestZeroTemperatureIsKept(t *testing.T) {
	t.Setenv("RAG_TEMPERATURE", "0")
	cfg := ConfigFromEnv()
	if cfg.Temperature != 0 {
		t.Fatalf("env temperature: want=0 got=%v", cfg.Temperature)
	}
	chat := &fakeChat{content: "ok"}
	s := newService(t, cfg, &fakeSearcher{}, chat)
	if _, err := s.GenerateAnswer(context.Background(), "When are wages due?", Context{}, nil); err != nil {
		t.Fatalf("GenerateAnswer: %v", err)
	}
	if got := chat.reqs[0].Temperature; got != 0 {
		t.Fatalf("request temperature: want=0 got=%v", got)
	}
}
