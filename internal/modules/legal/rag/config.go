package rag

import (
	"strings"

	"github.com/yungbote/lexbridge-backend/internal/domain/legal"
	"github.com/yungbote/lexbridge-backend/internal/platform/envutil"
)

type Mode string

const (
	ModeGrounded   Mode = "grounded"
	ModeUngrounded Mode = "ungrounded"
)

const (
	DefaultTopK                    = 5
	DefaultSimilarityThreshold     = 0.70
	DefaultHighConfidenceThreshold = 0.85
	DefaultTemperature             = 0.3
	DefaultMaxTokens               = 2000
	DefaultHistoryTurns            = 5
	DefaultModel                   = "gpt-4o"
	DefaultCheapModel              = "gpt-4o-mini"
)

type Config struct {
	Mode               Mode
	FallbackUngrounded bool

	TopK                    int
	SimilarityThreshold     float64
	HighConfidenceThreshold float64
	// UseCheapModel allows CheapModel when confidence reaches
	// HighConfidenceThreshold. Off unless set.
	UseCheapModel bool

	Model        string
	CheapModel   string
	Temperature  float64
	MaxTokens    int
	HistoryTurns int
	Namespace    string
}

func DefaultConfig() Config {
	return Config{
		Mode:                    ModeGrounded,
		FallbackUngrounded:      true,
		TopK:                    DefaultTopK,
		SimilarityThreshold:     DefaultSimilarityThreshold,
		HighConfidenceThreshold: DefaultHighConfidenceThreshold,
		Model:                   DefaultModel,
		CheapModel:              DefaultCheapModel,
		Temperature:             DefaultTemperature,
		MaxTokens:               DefaultMaxTokens,
		HistoryTurns:            DefaultHistoryTurns,
	}
}

func ConfigFromEnv() Config {
	d := DefaultConfig()
	return Config{
		Mode:                    Mode(strings.ToLower(envutil.String("RAG_MODE", string(d.Mode)))),
		FallbackUngrounded:      envutil.Bool("RAG_FALLBACK_UNGROUNDED", d.FallbackUngrounded),
		TopK:                    envutil.Int("RAG_TOP_K", d.TopK),
		SimilarityThreshold:     envutil.Float("RAG_SIMILARITY_THRESHOLD", d.SimilarityThreshold),
		HighConfidenceThreshold: envutil.Float("RAG_HIGH_CONFIDENCE_THRESHOLD", d.HighConfidenceThreshold),
		UseCheapModel:           envutil.Bool("RAG_USE_CHEAP_MODEL_FOR_HIGH_CONFIDENCE", false),
		Model:                   envutil.String("OPENAI_CHAT_MODEL", d.Model),
		CheapModel:              envutil.String("OPENAI_CHEAP_CHAT_MODEL", d.CheapModel),
		Temperature:             envutil.Float("RAG_TEMPERATURE", d.Temperature),
		MaxTokens:               envutil.Int("RAG_MAX_TOKENS", d.MaxTokens),
		HistoryTurns:            envutil.Int("RAG_HISTORY_TURNS", d.HistoryTurns),
		Namespace:               envutil.String("VECTOR_NAMESPACE", ""),
	}
}

func (c Config) Validate() error {
	switch c.Mode {
	case ModeGrounded, ModeUngrounded:
	default:
		return legal.Errorf(legal.KindConfiguration, "rag.config", "RAG_MODE must be grounded or ungrounded, got %q", c.Mode)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return legal.Errorf(legal.KindConfiguration, "rag.config", "similarity threshold %v outside [0,1]", c.SimilarityThreshold)
	}
	if c.HighConfidenceThreshold < 0 || c.HighConfidenceThreshold > 1 {
		return legal.Errorf(legal.KindConfiguration, "rag.config", "high confidence threshold %v outside [0,1]", c.HighConfidenceThreshold)
	}
	return nil
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Mode == "" {
		c.Mode = d.Mode
	}
	if c.TopK <= 0 {
		c.TopK = d.TopK
	}
	if c.HighConfidenceThreshold == 0 {
		c.HighConfidenceThreshold = d.HighConfidenceThreshold
	}
	if strings.TrimSpace(c.Model) == "" {
		c.Model = d.Model
	}
	if strings.TrimSpace(c.CheapModel) == "" {
		c.CheapModel = d.CheapModel
	}
	// Zero is a valid, deterministic temperature.
	if c.Temperature < 0 {
		c.Temperature = d.Temperature
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.HistoryTurns <= 0 {
		c.HistoryTurns = d.HistoryTurns
	}
	return c
}
