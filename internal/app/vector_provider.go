package app

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	neturl "net/url"
	"strings"

	"gorm.io/gorm"

	"github.com/yungbote/lexbridge-backend/internal/observability"
	"github.com/yungbote/lexbridge-backend/internal/platform/logger"
	"github.com/yungbote/lexbridge-backend/internal/platform/memvector"
	"github.com/yungbote/lexbridge-backend/internal/platform/pgvector"
	"github.com/yungbote/lexbridge-backend/internal/platform/pinecone"
	"github.com/yungbote/lexbridge-backend/internal/platform/qdrant"
	"github.com/yungbote/lexbridge-backend/internal/platform/vectorstore"
)

var (
	newPineconeClient    = pinecone.NewClient
	newPineconeStore     = pinecone.NewStore
	newQdrantVectorStore = qdrant.New
	newPgvectorStore     = pgvector.New
)

type VectorProviderBootstrapErrorCode string

const (
	VectorProviderBootstrapErrorInvalidProvider    VectorProviderBootstrapErrorCode = "invalid_provider"
	VectorProviderBootstrapErrorMissingAPIKey      VectorProviderBootstrapErrorCode = "missing_api_key"
	VectorProviderBootstrapErrorMissingDB          VectorProviderBootstrapErrorCode = "missing_db"
	VectorProviderBootstrapErrorQdrantConfigFailed VectorProviderBootstrapErrorCode = "qdrant_config_failed"
	VectorProviderBootstrapErrorConnectFailed      VectorProviderBootstrapErrorCode = "connect_failed"
	VectorProviderBootstrapErrorProviderInitFailed VectorProviderBootstrapErrorCode = "provider_init_failed"
)

type VectorProviderBootstrapError struct {
	Code     VectorProviderBootstrapErrorCode
	Provider VectorProvider
	Cause    error
}

func (e *VectorProviderBootstrapError) Error() string {
	if e == nil {
		return "vector provider bootstrap failed"
	}
	return fmt.Sprintf("vector provider bootstrap failed (code=%s provider=%q): %v", e.Code, e.Provider, e.Cause)
}

func (e *VectorProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveVectorStore builds the backend named by pcfg. The store is wrapped
// with operation metrics; index creation is left to vectorindex.Initialize.
func resolveVectorStore(
	log *logger.Logger,
	pcfg VectorProviderConfig,
	db *gorm.DB,
	httpClient *http.Client,
	dim int,
	metrics *observability.Metrics,
) (vectorstore.Store, error) {
	log.Info(
		"Selecting vector store provider",
		"provider", pcfg.Provider,
		"provider_mode_source", pcfg.ModeSource,
		"dimension", dim,
	)

	store, err := buildVectorStore(log, pcfg, db, httpClient, dim)
	if err != nil {
		classified := classifyVectorProviderBootstrapError(pcfg.Provider, err)
		log.Error(
			"Vector store provider bootstrap failed",
			"provider", pcfg.Provider,
			"provider_mode_source", pcfg.ModeSource,
			"error_code", vectorProviderBootstrapErrorCode(classified),
			"error", classified,
		)
		return nil, classified
	}
	return vectorstore.Instrument(store, metrics), nil
}

func buildVectorStore(
	log *logger.Logger,
	pcfg VectorProviderConfig,
	db *gorm.DB,
	httpClient *http.Client,
	dim int,
) (vectorstore.Store, error) {
	switch pcfg.Provider {
	case VectorProviderQdrant:
		return newQdrantVectorStore(log, pcfg.Qdrant, httpClient)

	case VectorProviderPinecone:
		cfg := pinecone.ConfigFromEnv()
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, &VectorProviderBootstrapError{
				Code:     VectorProviderBootstrapErrorMissingAPIKey,
				Provider: pcfg.Provider,
				Cause:    errors.New("PINECONE_API_KEY is required"),
			}
		}
		pc, err := newPineconeClient(log, cfg, httpClient)
		if err != nil {
			return nil, err
		}
		return newPineconeStore(log, pc, cfg, dim)

	case VectorProviderPgvector:
		if db == nil {
			return nil, &VectorProviderBootstrapError{
				Code:     VectorProviderBootstrapErrorMissingDB,
				Provider: pcfg.Provider,
				Cause:    errors.New("pgvector requires a postgres connection"),
			}
		}
		return newPgvectorStore(db, log, pgvector.ConfigFromEnv(dim))

	case VectorProviderMemory:
		log.Warn("Using in-memory vector store; embeddings are lost on restart")
		return memvector.New(dim), nil

	default:
		return nil, &VectorProviderBootstrapError{
			Code:     VectorProviderBootstrapErrorInvalidProvider,
			Provider: pcfg.Provider,
			Cause:    fmt.Errorf("unsupported vector provider %q", pcfg.Provider),
		}
	}
}

func classifyVectorProviderBootstrapError(provider VectorProvider, err error) error {
	var bootstrapErr *VectorProviderBootstrapError
	if errors.As(err, &bootstrapErr) {
		return err
	}
	var urlErr *neturl.Error
	if errors.As(err, &urlErr) {
		return &VectorProviderBootstrapError{Code: VectorProviderBootstrapErrorConnectFailed, Provider: provider, Cause: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &VectorProviderBootstrapError{Code: VectorProviderBootstrapErrorConnectFailed, Provider: provider, Cause: err}
	}
	if strings.Contains(strings.ToLower(err.Error()), "connection refused") {
		return &VectorProviderBootstrapError{Code: VectorProviderBootstrapErrorConnectFailed, Provider: provider, Cause: err}
	}
	var cfgErr *qdrant.ConfigError
	if errors.As(err, &cfgErr) {
		return &VectorProviderBootstrapError{Code: VectorProviderBootstrapErrorQdrantConfigFailed, Provider: provider, Cause: err}
	}
	return &VectorProviderBootstrapError{Code: VectorProviderBootstrapErrorProviderInitFailed, Provider: provider, Cause: err}
}

func vectorProviderBootstrapErrorCode(err error) VectorProviderBootstrapErrorCode {
	var bootstrapErr *VectorProviderBootstrapError
	if errors.As(err, &bootstrapErr) && bootstrapErr.Code != "" {
		return bootstrapErr.Code
	}
	return VectorProviderBootstrapErrorConnectFailed
}
