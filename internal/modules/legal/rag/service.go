package rag

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/lexbridge-backend/internal/domain/legal"
	"github.com/yungbote/lexbridge-backend/internal/modules/legal/embedding"
	"github.com/yungbote/lexbridge-backend/internal/modules/legal/vectorindex"
	"github.com/yungbote/lexbridge-backend/internal/observability"
	"github.com/yungbote/lexbridge-backend/internal/platform/logger"
	"github.com/yungbote/lexbridge-backend/internal/platform/openai"
)

type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) (embedding.Result, error)
}

type Searcher interface {
	SearchSimilar(ctx context.Context, vector []float32, topK int, namespace string, filter map[string]any) ([]vectorindex.Match, error)
}

type ChatClient interface {
	Chat(ctx context.Context, req openai.ChatRequest) (openai.ChatResponse, error)
}

type Source struct {
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title"`
	Text       string  `json:"text"`
	Citation   string  `json:"citation,omitempty"`
	Section    string  `json:"section,omitempty"`
	Score      float64 `json:"score"`
}

// Context is the retrieval result for one query. Every source scored at or
// above the similarity threshold and AvgConfidence is in [0,1].
type Context struct {
	Sources        []Source `json:"sources"`
	RetrievedCount int      `json:"retrieved_count"`
	AvgConfidence  float64  `json:"avg_confidence"`
}

type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Response struct {
	Answer     string   `json:"answer"`
	Sources    []Source `json:"sources"`
	Confidence float64  `json:"confidence"`
	TokensUsed int      `json:"tokens_used"`
	ModelUsed  string   `json:"model_used"`
	Mode       Mode     `json:"mode"`
	// Degraded is set when a grounded request was answered ungrounded.
	Degraded bool `json:"degraded,omitempty"`
}

type Deps struct {
	Log      *logger.Logger
	Metrics  *observability.Metrics
	Embedder Embedder
	Index    Searcher
	Chat     ChatClient
}

type Service struct {
	log      *logger.Logger
	metrics  *observability.Metrics
	embedder Embedder
	index    Searcher
	chat     ChatClient
	cfg      Config
}

func New(deps Deps, cfg Config) (*Service, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Chat == nil {
		return nil, legal.Errorf(legal.KindConfiguration, "rag.New", "chat client required")
	}
	if cfg.Mode == ModeGrounded && (deps.Embedder == nil || deps.Index == nil) {
		return nil, legal.Errorf(legal.KindConfiguration, "rag.New", "grounded mode needs an embedder and an index")
	}
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		log:      log.With("service", "RAGService"),
		metrics:  deps.Metrics,
		embedder: deps.Embedder,
		index:    deps.Index,
		chat:     deps.Chat,
		cfg:      cfg,
	}, nil
}

func (s *Service) Config() Config { return s.cfg }

// RetrieveContext embeds the query, searches the index and keeps only the
// matches at or above the similarity threshold.
func (s *Service) RetrieveContext(ctx context.Context, query string) (rc Context, err error) {
	ctx, span := observability.StartSpan(ctx, "rag.retrieve")
	defer func() { observability.EndSpan(span, err) }()

	if s.embedder == nil || s.index == nil {
		return Context{}, legal.Errorf(legal.KindConfiguration, "rag.retrieve", "retrieval is not configured")
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return Context{Sources: []Source{}}, nil
	}
	emb, err := s.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		return Context{}, fmt.Errorf("embed query: %w", err)
	}
	if emb.Fallback {
		s.log.Warn("Query embedded with fallback provider", "provider", emb.Provider)
	}
	matches, err := s.index.SearchSimilar(ctx, emb.Vector, s.cfg.TopK, s.cfg.Namespace, nil)
	if err != nil {
		return Context{}, fmt.Errorf("search index: %w", err)
	}

	rc = Context{Sources: make([]Source, 0, len(matches))}
	var sum float64
	for _, m := range matches {
		if m.Score < s.cfg.SimilarityThreshold {
			continue
		}
		rc.Sources = append(rc.Sources, sourceFromMatch(m))
		sum += m.Score
	}
	rc.RetrievedCount = len(rc.Sources)
	if rc.RetrievedCount > 0 {
		rc.AvgConfidence = clamp01(sum / float64(rc.RetrievedCount))
	}
	span.SetAttributes(
		attribute.Int("rag.matches", len(matches)),
		attribute.Int("rag.retained", rc.RetrievedCount),
		attribute.Float64("rag.confidence", rc.AvgConfidence),
	)
	return rc, nil
}

// SelectModel returns the cheaper model only when confidence is high and the
// cheap model is explicitly allowed.
func (s *Service) SelectModel(confidence float64) string {
	if s.cfg.UseCheapModel && confidence >= s.cfg.HighConfidenceThreshold {
		return s.cfg.CheapModel
	}
	return s.cfg.Model
}

func (s *Service) GenerateAnswer(ctx context.Context, query string, rc Context, history []Turn) (resp Response, err error) {
	model := s.SelectModel(rc.AvgConfidence)
	ctx, span := observability.StartSpan(ctx, "rag.generate", attribute.String("llm.model", model))
	defer func() { observability.EndSpan(span, err) }()

	msgs := s.messages(groundedSystemPrompt(rc.Sources), history, query)
	out, err := s.chat.Chat(ctx, openai.ChatRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
	})
	if err != nil {
		return Response{}, fmt.Errorf("generate answer: %w", err)
	}
	sources := rc.Sources
	if sources == nil {
		sources = []Source{}
	}
	return Response{
		Answer:     answerText(out.Content),
		Sources:    sources,
		Confidence: rc.AvgConfidence,
		TokensUsed: out.Usage.TotalTokens,
		ModelUsed:  modelUsed(out.Model, model),
		Mode:       ModeGrounded,
	}, nil
}

// Query runs retrieval then grounded generation. Errors are returned to the
// caller unchanged.
func (s *Service) Query(ctx context.Context, query string, history []Turn) (Response, error) {
	rc, err := s.RetrieveContext(ctx, query)
	if err != nil {
		s.metrics.ObserveRAGQuery(string(ModeGrounded), "", "error", 0)
		return Response{}, err
	}
	resp, err := s.GenerateAnswer(ctx, query, rc, history)
	if err != nil {
		s.metrics.ObserveRAGQuery(string(ModeGrounded), s.SelectModel(rc.AvgConfidence), "error", rc.AvgConfidence)
		return Response{}, err
	}
	s.metrics.ObserveRAGQuery(string(ModeGrounded), resp.ModelUsed, "ok", resp.Confidence)
	s.log.Debug("Grounded answer generated",
		"sources", len(resp.Sources),
		"confidence", resp.Confidence,
		"model", resp.ModelUsed,
		"tokens", resp.TokensUsed,
	)
	return resp, nil
}

// QueryWithoutRAG answers from the model alone with the higher-capability
// model. Confidence is always 0 and there are no sources.
func (s *Service) QueryWithoutRAG(ctx context.Context, query string, history []Turn) (resp Response, err error) {
	ctx, span := observability.StartSpan(ctx, "rag.ungrounded", attribute.String("llm.model", s.cfg.Model))
	defer func() { observability.EndSpan(span, err) }()

	out, err := s.chat.Chat(ctx, openai.ChatRequest{
		Model:       s.cfg.Model,
		Messages:    s.messages(ungroundedSystemPrompt(), history, query),
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
	})
	if err != nil {
		s.metrics.ObserveRAGQuery(string(ModeUngrounded), s.cfg.Model, "error", 0)
		return Response{}, fmt.Errorf("ungrounded answer: %w", err)
	}
	resp = Response{
		Answer:     answerText(out.Content),
		Sources:    []Source{},
		Confidence: 0,
		TokensUsed: out.Usage.TotalTokens,
		ModelUsed:  modelUsed(out.Model, s.cfg.Model),
		Mode:       ModeUngrounded,
	}
	s.metrics.ObserveRAGQuery(string(ModeUngrounded), resp.ModelUsed, "ok", 0)
	return resp, nil
}

// Answer routes by the configured mode. A failed grounded query falls back
// to QueryWithoutRAG when FallbackUngrounded is set.
func (s *Service) Answer(ctx context.Context, query string, history []Turn) (Response, error) {
	if s.cfg.Mode == ModeUngrounded {
		return s.QueryWithoutRAG(ctx, query, history)
	}
	resp, err := s.Query(ctx, query, history)
	if err == nil || !s.cfg.FallbackUngrounded {
		return resp, err
	}
	s.log.Warn("Grounded query failed; answering without retrieval", "error", err)
	resp, ferr := s.QueryWithoutRAG(ctx, query, history)
	if ferr != nil {
		return Response{}, fmt.Errorf("%w (ungrounded fallback: %v)", err, ferr)
	}
	resp.Degraded = true
	return resp, nil
}

func (s *Service) messages(system string, history []Turn, query string) []openai.Message {
	if n := s.cfg.HistoryTurns; len(history) > n {
		history = history[len(history)-n:]
	}
	msgs := make([]openai.Message, 0, len(history)+2)
	msgs = append(msgs, openai.Message{Role: "system", Content: system})
	for _, t := range history {
		content := strings.TrimSpace(t.Content)
		if content == "" {
			continue
		}
		role := strings.ToLower(strings.TrimSpace(t.Role))
		if role != "assistant" {
			role = "user"
		}
		msgs = append(msgs, openai.Message{Role: role, Content: content})
	}
	msgs = append(msgs, openai.Message{Role: "user", Content: strings.TrimSpace(query)})
	return msgs
}

func sourceFromMatch(m vectorindex.Match) Source {
	return Source{
		DocumentID: metaString(m.Metadata, "documentId"),
		Title:      metaString(m.Metadata, "documentTitle"),
		Text:       metaString(m.Metadata, "text"),
		Citation:   metaString(m.Metadata, "citation"),
		Section:    metaString(m.Metadata, "section"),
		Score:      m.Score,
	}
}

func metaString(md map[string]any, key string) string {
	if md == nil {
		return ""
	}
	switch v := md[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func answerText(content string) string {
	if strings.TrimSpace(content) == "" {
		return NoContextAnswer
	}
	return content
}

func modelUsed(reported, requested string) string {
	if strings.TrimSpace(reported) != "" {
		return reported
	}
	return requested
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
