package gcp

import (
	"errors"
	"testing"
)

func TestResolveObjectStorageConfigDefaultsToLocal(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_MODE", "")
	t.Setenv("STORAGE_EMULATOR_HOST", "")
	t.Setenv("LEGAL_DOCS_GCS_BUCKET_NAME", "")

	cfg, err := ResolveObjectStorageConfigFromEnv()
	if err != nil {
		t.Fatalf("ResolveObjectStorageConfigFromEnv: %v", err)
	}
	if cfg.Mode != ObjectStorageModeLocal || !cfg.Inferred {
		t.Fatalf("mode: want inferred local got=%+v", cfg)
	}
}

func TestResolveObjectStorageConfigInfersGCSFromBucket(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_MODE", "")
	t.Setenv("STORAGE_EMULATOR_HOST", "")
	t.Setenv("LEGAL_DOCS_GCS_BUCKET_NAME", "lex-docs")

	cfg, err := ResolveObjectStorageConfigFromEnv()
	if err != nil {
		t.Fatalf("ResolveObjectStorageConfigFromEnv: %v", err)
	}
	if cfg.Mode != ObjectStorageModeGCS {
		t.Fatalf("mode: want=%q got=%q", ObjectStorageModeGCS, cfg.Mode)
	}
}

func TestResolveObjectStorageConfigEmulatorRequiresValidHost(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_MODE", "gcs_emulator")
	t.Setenv("STORAGE_EMULATOR_HOST", "fake-gcs:4443")
	t.Setenv("LEGAL_DOCS_GCS_BUCKET_NAME", "lex-docs")

	_, err := ResolveObjectStorageConfigFromEnv()
	var cfgErr *ObjectStorageConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Code != ObjectStorageConfigErrorInvalidEmulatorHost {
		t.Fatalf("err: want invalid emulator host got=%v", err)
	}
}

func TestResolveObjectStorageConfigRejectsUnknownMode(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_MODE", "s3")
	_, err := ResolveObjectStorageConfigFromEnv()
	var cfgErr *ObjectStorageConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Code != ObjectStorageConfigErrorInvalidMode {
		t.Fatalf("err: want invalid mode got=%v", err)
	}
}

func TestValidateObjectStorageConfigGCSRequiresBucket(t *testing.T) {
	err := ValidateObjectStorageConfig(ObjectStorageConfig{Mode: ObjectStorageModeGCS})
	var cfgErr *ObjectStorageConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Code != ObjectStorageConfigErrorMissingBucket {
		t.Fatalf("err: want missing bucket got=%v", err)
	}
}
