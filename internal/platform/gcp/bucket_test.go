package gcp

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yungbote/lexbridge-backend/internal/pkg/dbctx"
	"github.com/yungbote/lexbridge-backend/internal/platform/logger"
)

func TestLocalBucketRoundTrip(t *testing.T) {
	dir := t.TempDir()
	bs, err := NewBucketServiceWithConfig(logger.Nop(), ObjectStorageConfig{Mode: ObjectStorageModeLocal, LocalDir: dir})
	if err != nil {
		t.Fatalf("NewBucketServiceWithConfig: %v", err)
	}
	dbc := dbctx.Of(context.Background())

	attrs, err := bs.UploadFile(dbc, "crawler/kenyalaw.org/act.pdf", strings.NewReader("%PDF-1.4 body"))
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if attrs.Size != 13 || attrs.ContentType != "application/pdf" {
		t.Fatalf("attrs: got=%+v", attrs)
	}
	if want := filepath.Join(dir, "crawler", "kenyalaw.org", "act.pdf"); bs.Location("crawler/kenyalaw.org/act.pdf") != want {
		t.Fatalf("location: want=%q got=%q", want, bs.Location("crawler/kenyalaw.org/act.pdf"))
	}

	rc, err := bs.DownloadFile(context.Background(), "crawler/kenyalaw.org/act.pdf")
	if err != nil {
		t.Fatalf("DownloadFile: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "%PDF-1.4 body" {
		t.Fatalf("body: got=%q", body)
	}

	if err := bs.DeleteFile(dbc, "crawler/kenyalaw.org/act.pdf"); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	if err := bs.DeleteFile(dbc, "crawler/kenyalaw.org/act.pdf"); err != nil {
		t.Fatalf("DeleteFile missing: %v", err)
	}
}

func TestCleanKeyBlocksTraversal(t *testing.T) {
	got, err := CleanKey("../../etc/passwd")
	if err != nil {
		t.Fatalf("CleanKey: %v", err)
	}
	if got != "etc/passwd" {
		t.Fatalf("clean: want=%q got=%q", "etc/passwd", got)
	}
	if _, err := CleanKey("  "); err == nil {
		t.Fatalf("CleanKey blank: expected error")
	}
}
