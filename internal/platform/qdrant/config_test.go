package qdrant

import (
	"errors"
	"testing"
)

func TestResolveConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("QDRANT_URL", "http://localhost:6333")
	t.Setenv("QDRANT_COLLECTION", "")
	t.Setenv("QDRANT_VECTOR_DIM", "")
	t.Setenv("QDRANT_NAMESPACE_PREFIX", "")

	cfg, err := ResolveConfigFromEnv(1536)
	if err != nil {
		t.Fatalf("ResolveConfigFromEnv: %v", err)
	}
	if cfg.Collection != "legal_documents" || cfg.NamespacePrefix != "lex" || cfg.VectorDim != 1536 {
		t.Fatalf("defaults: got=%+v", cfg)
	}
}

func TestResolveConfigFromEnvInvalidURL(t *testing.T) {
	t.Setenv("QDRANT_URL", "qdrant:6333")
	_, err := ResolveConfigFromEnv(1536)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Code != ConfigErrorInvalidURL {
		t.Fatalf("err: want invalid url got=%v", err)
	}
}

func TestValidateConfigDimension(t *testing.T) {
	err := ValidateConfig(Config{URL: "http://q:6333", Collection: "c", VectorDim: 0})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Code != ConfigErrorInvalidVectorDim {
		t.Fatalf("err: want invalid dim got=%v", err)
	}
}
