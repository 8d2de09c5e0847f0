package http

import (
	"context"
	"encoding/json"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/lexbridge-backend/internal/domain/legal"
	"github.com/yungbote/lexbridge-backend/internal/domain/user"
	httpH "github.com/yungbote/lexbridge-backend/internal/http/handlers"
	httpMW "github.com/yungbote/lexbridge-backend/internal/http/middleware"
	"github.com/yungbote/lexbridge-backend/internal/modules/legal/crawler"
	"github.com/yungbote/lexbridge-backend/internal/modules/legal/ingestion"
	"github.com/yungbote/lexbridge-backend/internal/modules/legal/scheduler"
)

type fakeScheduler struct {
	busy bool
	next time.Time
	last *scheduler.RunStatus
}

func (f *fakeScheduler) TriggerManualCrawl(ctx context.Context) (crawler.Result, error) {
	if f.busy {
		return crawler.Result{}, scheduler.ErrCrawlInProgress
	}
	return crawler.Result{Discovered: 5, Ingested: 4, Skipped: 1}, nil
}

func (f *fakeScheduler) TriggerManualCrawlAsync() (string, error) {
	if f.busy {
		return "", scheduler.ErrCrawlInProgress
	}
	f.busy = true
	return "run-1", nil
}

func (f *fakeScheduler) IsRunning() bool                { return true }
func (f *fakeScheduler) CrawlInProgress() bool          { return f.busy }
func (f *fakeScheduler) GetNextRunTime() time.Time      { return f.next }
func (f *fakeScheduler) LastRun() *scheduler.RunStatus { return f.last }

type fakeReporter struct{}

func (fakeReporter) IndexReport(ctx context.Context) (ingestion.IndexReport, error) {
	return ingestion.IndexReport{Provider: "memory", Documents: 2, Chunks: 7, NamespaceVectors: 7, IndexedVectors: 7, Consistent: true}, nil
}

type fakeDeleter struct{ known uuid.UUID }

func (f fakeDeleter) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	if id != f.known {
		return legal.Errorf(legal.KindNotFound, "legal_document.get", "document %s", id)
	}
	return nil
}

func newTestRouter(secret string, sched *fakeScheduler, known uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(RouterConfig{
		OpsAuth:         httpMW.NewOpsAuth(nil, secret),
		HealthHandler:   httpH.NewHealthHandler(nil),
		CrawlHandler:    httpH.NewCrawlHandler(nil, sched),
		IndexHandler:    httpH.NewIndexHandler(fakeReporter{}),
		DocumentHandler: httpH.NewDocumentHandler(nil, fakeDeleter{known: known}),
	})
}

func serve(r nethttp.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	rec := serve(newTestRouter("", &fakeScheduler{}, uuid.New()), nethttp.MethodGet, "/healthz", "")
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("healthz: want=200 got=%d", rec.Code)
	}
}

func TestCrawlTriggerAndStatus(t *testing.T) {
	sched := &fakeScheduler{next: time.Date(2026, 10, 16, 14, 0, 0, 0, time.UTC)}
	r := newTestRouter("", sched, uuid.New())

	rec := serve(r, nethttp.MethodPost, "/admin/crawl", "")
	if rec.Code != nethttp.StatusAccepted {
		t.Fatalf("trigger: want=202 got=%d body=%s", rec.Code, rec.Body.String())
	}
	var started struct {
		RunID string `json:"run_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &started); err != nil || started.RunID != "run-1" {
		t.Fatalf("trigger body: %s err=%v", rec.Body.String(), err)
	}

	if rec := serve(r, nethttp.MethodPost, "/admin/crawl", ""); rec.Code != nethttp.StatusConflict {
		t.Fatalf("overlapping trigger: want=409 got=%d", rec.Code)
	}

	rec = serve(r, nethttp.MethodGet, "/admin/crawl/status", "")
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("status: want=200 got=%d", rec.Code)
	}
	var status struct {
		InProgress bool      `json:"crawl_in_progress"`
		NextRun    time.Time `json:"next_run"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("status body: %v", err)
	}
	if !status.InProgress || !status.NextRun.Equal(sched.next) {
		t.Fatalf("status: got=%+v", status)
	}
}

func TestCrawlTriggerWait(t *testing.T) {
	r := newTestRouter("", &fakeScheduler{}, uuid.New())
	rec := serve(r, nethttp.MethodPost, "/admin/crawl?wait=true", "")
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("sync trigger: want=200 got=%d", rec.Code)
	}
	var body struct {
		Result crawler.Result `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Result.Ingested != 4 {
		t.Fatalf("ingested: want=4 got=%d", body.Result.Ingested)
	}
}

func TestIndexStats(t *testing.T) {
	rec := serve(newTestRouter("", &fakeScheduler{}, uuid.New()), nethttp.MethodGet, "/admin/index/stats", "")
	if rec.Code != nethttp.StatusOK {
		t.Fatalf("stats: want=200 got=%d", rec.Code)
	}
	var rep ingestion.IndexReport
	if err := json.Unmarshal(rec.Body.Bytes(), &rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !rep.Consistent || rep.Chunks != 7 {
		t.Fatalf("report: got=%+v", rep)
	}
}

func TestDeleteDocument(t *testing.T) {
	known := uuid.New()
	r := newTestRouter("", &fakeScheduler{}, known)

	cases := []struct {
		path string
		want int
	}{
		{"/admin/documents/not-a-uuid", nethttp.StatusBadRequest},
		{"/admin/documents/" + uuid.NewString(), nethttp.StatusNotFound},
		{"/admin/documents/" + known.String(), nethttp.StatusNoContent},
	}
	for _, tc := range cases {
		if rec := serve(r, nethttp.MethodDelete, tc.path, ""); rec.Code != tc.want {
			t.Fatalf("DELETE %s: want=%d got=%d", tc.path, tc.want, rec.Code)
		}
	}
}

func TestAdminRoutesRequireTokenWhenSecretSet(t *testing.T) {
	const secret = "ops-secret"
	r := newTestRouter(secret, &fakeScheduler{}, uuid.New())

	if rec := serve(r, nethttp.MethodGet, "/admin/index/stats", ""); rec.Code != nethttp.StatusUnauthorized {
		t.Fatalf("no token: want=401 got=%d", rec.Code)
	}
	if rec := serve(r, nethttp.MethodGet, "/healthz", ""); rec.Code != nethttp.StatusOK {
		t.Fatalf("healthz stays public: want=200 got=%d", rec.Code)
	}
	token, err := httpMW.IssueToken(secret, "ops", user.RoleAdmin, time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if rec := serve(r, nethttp.MethodGet, "/admin/index/stats", token); rec.Code != nethttp.StatusOK {
		t.Fatalf("with token: want=200 got=%d", rec.Code)
	}
}
