package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/lexbridge-backend/internal/http/response"
	"github.com/yungbote/lexbridge-backend/internal/modules/legal/crawler"
	"github.com/yungbote/lexbridge-backend/internal/modules/legal/scheduler"
	"github.com/yungbote/lexbridge-backend/internal/platform/logger"
)

type CrawlScheduler interface {
	TriggerManualCrawl(ctx context.Context) (crawler.Result, error)
	TriggerManualCrawlAsync() (string, error)
	IsRunning() bool
	CrawlInProgress() bool
	GetNextRunTime() time.Time
	LastRun() *scheduler.RunStatus
}

type CrawlHandler struct {
	log       *logger.Logger
	scheduler CrawlScheduler
}

func NewCrawlHandler(log *logger.Logger, s CrawlScheduler) *CrawlHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &CrawlHandler{log: log.With("handler", "CrawlHandler"), scheduler: s}
}

// POST /admin/crawl
// Starts a crawl in the background and answers 202. With ?wait=true the
// request blocks until the crawl finishes and returns its result.
func (h *CrawlHandler) Trigger(c *gin.Context) {
	wait, _ := strconv.ParseBool(c.Query("wait"))
	if wait {
		res, err := h.scheduler.TriggerManualCrawl(c.Request.Context())
		if errors.Is(err, scheduler.ErrCrawlInProgress) {
			response.RespondError(c, http.StatusConflict, "crawl_in_progress", err)
			return
		}
		if err != nil {
			h.log.Error("Manual crawl failed", "error", err)
			response.RespondAPIError(c, err)
			return
		}
		response.RespondOK(c, gin.H{"result": res})
		return
	}

	runID, err := h.scheduler.TriggerManualCrawlAsync()
	if errors.Is(err, scheduler.ErrCrawlInProgress) {
		response.RespondError(c, http.StatusConflict, "crawl_in_progress", err)
		return
	}
	if errors.Is(err, scheduler.ErrStopping) {
		response.RespondError(c, http.StatusServiceUnavailable, "scheduler_stopping", err)
		return
	}
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run_id": runID, "status": "started"})
}

// GET /admin/crawl/status
func (h *CrawlHandler) Status(c *gin.Context) {
	out := gin.H{
		"scheduler_running": h.scheduler.IsRunning(),
		"crawl_in_progress": h.scheduler.CrawlInProgress(),
		"last_run":          h.scheduler.LastRun(),
	}
	if next := h.scheduler.GetNextRunTime(); !next.IsZero() {
		out["next_run"] = next
	}
	response.RespondOK(c, out)
}
