package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/lexbridge-backend/internal/pkg/dbctx"
	"github.com/yungbote/lexbridge-backend/internal/platform/logger"
)

// BucketService stores downloaded source files for legal documents.
type BucketService interface {
	Mode() ObjectStorageMode
	UploadFile(dbc dbctx.Context, key string, file io.Reader) (*ObjectAttrs, error)
	DownloadFile(ctx context.Context, key string) (io.ReadCloser, error)
	DeleteFile(dbc dbctx.Context, key string) error
	// Location is the durable path recorded on the document row.
	Location(key string) string
	Close() error
}

type ObjectAttrs struct {
	Key         string
	Size        int64
	ContentType string
	Updated     time.Time
}

var ErrInvalidKey = errors.New("invalid object key")

func NewBucketService(log *logger.Logger) (BucketService, error) {
	cfg, err := ResolveObjectStorageConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("resolve object storage config: %w", err)
	}
	return NewBucketServiceWithConfig(log, cfg)
}

func NewBucketServiceWithConfig(log *logger.Logger, cfg ObjectStorageConfig) (BucketService, error) {
	if err := ValidateObjectStorageConfig(cfg); err != nil {
		return nil, fmt.Errorf("validate object storage config: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}
	serviceLog := log.With("service", "BucketService")

	if cfg.Mode == ObjectStorageModeLocal {
		dir, err := filepath.Abs(cfg.LocalDir)
		if err != nil {
			return nil, fmt.Errorf("resolve LOCAL_STORAGE_DIR: %w", err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create LOCAL_STORAGE_DIR: %w", err)
		}
		serviceLog.Info("Object storage initialized", "mode", cfg.Mode, "mode_source", cfg.ModeSource(), "dir", dir)
		return &localBucket{log: serviceLog, dir: dir}, nil
	}

	client, err := newStorageClientForMode(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	serviceLog.Info("Object storage initialized",
		"mode", cfg.Mode,
		"mode_source", cfg.ModeSource(),
		"emulator_host", cfg.EmulatorHost,
		"bucket", cfg.Bucket,
	)
	return &gcsBucket{log: serviceLog, client: client, bucket: cfg.Bucket, mode: cfg.Mode}, nil
}

func newStorageClientForMode(ctx context.Context, cfg ObjectStorageConfig) (*storage.Client, error) {
	switch cfg.Mode {
	case ObjectStorageModeGCS:
		opts := ClientOptionsFromEnv()
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
		return storage.NewClient(ctx, opts...)
	case ObjectStorageModeGCSEmulator:
		// The storage client reads STORAGE_EMULATOR_HOST itself.
		_ = os.Setenv("STORAGE_EMULATOR_HOST", strings.TrimRight(cfg.EmulatorHost, "/"))
		return storage.NewClient(ctx, option.WithoutAuthentication())
	default:
		return nil, &ObjectStorageConfigError{Code: ObjectStorageConfigErrorInvalidMode, Mode: string(cfg.Mode)}
	}
}

// CleanKey normalizes an object key and rejects traversal.
func CleanKey(key string) (string, error) {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	key = strings.TrimLeft(path.Clean("/"+key), "/")
	if key == "" || key == "." {
		return "", ErrInvalidKey
	}
	return key, nil
}

func contentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	if i := strings.Index(s, "?"); i >= 0 {
		s = s[:i]
	}
	switch {
	case strings.HasSuffix(s, ".pdf"):
		return "application/pdf"
	case strings.HasSuffix(s, ".docx"):
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case strings.HasSuffix(s, ".doc"):
		return "application/msword"
	case strings.HasSuffix(s, ".html"), strings.HasSuffix(s, ".htm"):
		return "text/html"
	case strings.HasSuffix(s, ".txt"):
		return "text/plain"
	case strings.HasSuffix(s, ".json"):
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// ---------- gcs ----------

type gcsBucket struct {
	log    *logger.Logger
	client *storage.Client
	bucket string
	mode   ObjectStorageMode
}

func (b *gcsBucket) Mode() ObjectStorageMode { return b.mode }

func (b *gcsBucket) UploadFile(dbc dbctx.Context, key string, file io.Reader) (*ObjectAttrs, error) {
	key, err := CleanKey(key)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(dbctx.Of(dbc.Ctx).Ctx, 2*time.Minute)
	defer cancel()

	w := b.client.Bucket(b.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentTypeForKey(key)
	n, err := io.Copy(w, file)
	if err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return &ObjectAttrs{Key: key, Size: n, ContentType: w.ContentType, Updated: time.Now()}, nil
}

// readCloserWithCancel keeps the download context alive until Close.
type readCloserWithCancel struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *readCloserWithCancel) Close() error {
	err := r.ReadCloser.Close()
	if r.cancel != nil {
		r.cancel()
	}
	return err
}

func (b *gcsBucket) DownloadFile(ctx context.Context, key string) (io.ReadCloser, error) {
	key, err := CleanKey(key)
	if err != nil {
		return nil, err
	}
	ctx2, cancel := context.WithTimeout(ctx, 2*time.Minute)
	r, err := b.client.Bucket(b.bucket).Object(key).NewReader(ctx2)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open GCS reader: %w", err)
	}
	return &readCloserWithCancel{ReadCloser: r, cancel: cancel}, nil
}

func (b *gcsBucket) DeleteFile(dbc dbctx.Context, key string) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(dbctx.Of(dbc.Ctx).Ctx, 30*time.Second)
	defer cancel()
	if err := b.client.Bucket(b.bucket).Object(key).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete GCS object %q in bucket %q: %w", key, b.bucket, err)
	}
	return nil
}

func (b *gcsBucket) Location(key string) string {
	key, _ = CleanKey(key)
	return fmt.Sprintf("gs://%s/%s", b.bucket, key)
}

func (b *gcsBucket) Close() error { return b.client.Close() }

// ---------- local ----------

type localBucket struct {
	log *logger.Logger
	dir string
}

func (b *localBucket) Mode() ObjectStorageMode { return ObjectStorageModeLocal }

func (b *localBucket) path(key string) (string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(b.dir, filepath.FromSlash(key)), nil
}

func (b *localBucket) UploadFile(dbc dbctx.Context, key string, file io.Reader) (*ObjectAttrs, error) {
	p, err := b.path(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, err
	}
	tmp := p + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return nil, err
	}
	n, err := io.Copy(f, file)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("write %s: %w", p, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return nil, err
	}
	clean, _ := CleanKey(key)
	return &ObjectAttrs{Key: clean, Size: n, ContentType: contentTypeForKey(key), Updated: time.Now()}, nil
}

func (b *localBucket) DownloadFile(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := b.path(key)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

func (b *localBucket) DeleteFile(dbc dbctx.Context, key string) error {
	p, err := b.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (b *localBucket) Location(key string) string {
	p, err := b.path(key)
	if err != nil {
		return ""
	}
	return p
}

func (b *localBucket) Close() error { return nil }
