package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/lexbridge-backend/internal/platform/gcp"
	"github.com/yungbote/lexbridge-backend/internal/platform/qdrant"
)

type VectorProvider string

const (
	VectorProviderPinecone VectorProvider = "pinecone"
	VectorProviderQdrant   VectorProvider = "qdrant"
	VectorProviderPgvector VectorProvider = "pgvector"
	VectorProviderMemory   VectorProvider = "memory"
)

const (
	modeSourceExplicit    = "vector_provider_env"
	modeSourceStorageMode = "object_storage_mode_default"
)

type VectorProviderConfigErrorCode string

const (
	VectorProviderConfigErrorInvalidProvider      VectorProviderConfigErrorCode = "invalid_provider"
	VectorProviderConfigErrorInvalidStorageMode   VectorProviderConfigErrorCode = "invalid_storage_mode"
	VectorProviderConfigErrorMissingQdrantURL     VectorProviderConfigErrorCode = "missing_qdrant_url"
	VectorProviderConfigErrorInvalidQdrantURL     VectorProviderConfigErrorCode = "invalid_qdrant_url"
	VectorProviderConfigErrorMissingQdrantColl    VectorProviderConfigErrorCode = "missing_qdrant_collection"
	VectorProviderConfigErrorInvalidQdrantVector  VectorProviderConfigErrorCode = "invalid_qdrant_vector_dim"
	VectorProviderConfigErrorUnknownQdrantFailure VectorProviderConfigErrorCode = "qdrant_config_error"
)

type VectorProviderConfigError struct {
	Code        VectorProviderConfigErrorCode
	Provider    VectorProvider
	StorageMode string
	Cause       error
}

func (e *VectorProviderConfigError) Error() string {
	if e == nil {
		return "invalid vector provider config"
	}
	return fmt.Sprintf(
		"invalid vector provider config (code=%s provider=%q object_storage_mode=%q): %v",
		e.Code,
		e.Provider,
		e.StorageMode,
		e.Cause,
	)
}

func (e *VectorProviderConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

type VectorProviderConfig struct {
	Provider   VectorProvider
	ModeSource string
	Qdrant     qdrant.Config
}

// resolveVectorProviderConfig honours an explicit VECTOR_PROVIDER. Otherwise
// the object storage mode picks: gcs uses pinecone, the emulator uses qdrant
// and local storage keeps vectors in memory.
func resolveVectorProviderConfig(explicit string, storageMode gcp.ObjectStorageMode, embedDim int) (VectorProviderConfig, error) {
	provider := VectorProvider(strings.ToLower(strings.TrimSpace(explicit)))
	source := modeSourceExplicit
	if provider == "" {
		source = modeSourceStorageMode
		switch storageMode {
		case gcp.ObjectStorageModeGCS:
			provider = VectorProviderPinecone
		case gcp.ObjectStorageModeGCSEmulator:
			provider = VectorProviderQdrant
		case gcp.ObjectStorageModeLocal:
			provider = VectorProviderMemory
		default:
			return VectorProviderConfig{}, &VectorProviderConfigError{
				Code:        VectorProviderConfigErrorInvalidStorageMode,
				StorageMode: string(storageMode),
				Cause:       fmt.Errorf("unsupported object storage mode %q", storageMode),
			}
		}
	}

	switch provider {
	case VectorProviderQdrant:
		qcfg, err := qdrant.ResolveConfigFromEnv(embedDim)
		if err != nil {
			return VectorProviderConfig{}, mapVectorProviderConfigError(storageMode, err)
		}
		return VectorProviderConfig{Provider: provider, ModeSource: source, Qdrant: qcfg}, nil
	case VectorProviderPinecone, VectorProviderPgvector, VectorProviderMemory:
		return VectorProviderConfig{Provider: provider, ModeSource: source}, nil
	default:
		return VectorProviderConfig{}, &VectorProviderConfigError{
			Code:        VectorProviderConfigErrorInvalidProvider,
			Provider:    provider,
			StorageMode: string(storageMode),
			Cause:       fmt.Errorf("unsupported vector provider %q (allowed: qdrant, pinecone, pgvector, memory)", provider),
		}
	}
}

func mapVectorProviderConfigError(storageMode gcp.ObjectStorageMode, err error) error {
	var qerr *qdrant.ConfigError
	if errors.As(err, &qerr) {
		code := VectorProviderConfigErrorUnknownQdrantFailure
		switch qerr.Code {
		case qdrant.ConfigErrorMissingURL:
			code = VectorProviderConfigErrorMissingQdrantURL
		case qdrant.ConfigErrorInvalidURL:
			code = VectorProviderConfigErrorInvalidQdrantURL
		case qdrant.ConfigErrorMissingCollection:
			code = VectorProviderConfigErrorMissingQdrantColl
		case qdrant.ConfigErrorInvalidVectorDim:
			code = VectorProviderConfigErrorInvalidQdrantVector
		}
		return &VectorProviderConfigError{
			Code:        code,
			Provider:    VectorProviderQdrant,
			StorageMode: string(storageMode),
			Cause:       err,
		}
	}
	return &VectorProviderConfigError{
		Code:        VectorProviderConfigErrorUnknownQdrantFailure,
		Provider:    VectorProviderQdrant,
		StorageMode: string(storageMode),
		Cause:       err,
	}
}
