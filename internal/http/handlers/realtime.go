package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/lexbridge-backend/internal/http/response"
	"github.com/yungbote/lexbridge-backend/internal/platform/logger"
	"github.com/yungbote/lexbridge-backend/internal/realtime/bus"
)

type RealtimeHandler struct {
	log       *logger.Logger
	bus       bus.Bus
	keepAlive time.Duration
}

func NewRealtimeHandler(log *logger.Logger, b bus.Bus) *RealtimeHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &RealtimeHandler{log: log.With("handler", "RealtimeHandler"), bus: b, keepAlive: 25 * time.Second}
}

// GET /admin/crawl/events streams crawl run events as server-sent events.
func (h *RealtimeHandler) CrawlEvents(c *gin.Context) {
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	events := make(chan bus.Event, 32)
	err := h.bus.StartForwarder(ctx, func(ev bus.Event) {
		select {
		case events <- ev:
		default:
		}
	})
	if err != nil {
		h.log.Warn("Crawl event subscription failed", "error", err)
		response.RespondError(c, http.StatusServiceUnavailable, "events_unavailable", err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev := <-events:
			c.SSEvent(string(ev.Type), ev)
			return true
		case t := <-ticker.C:
			c.SSEvent("ping", gin.H{"at": t.UTC()})
			return true
		}
	})
}
