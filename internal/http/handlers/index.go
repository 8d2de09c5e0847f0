package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/lexbridge-backend/internal/http/response"
	"github.com/yungbote/lexbridge-backend/internal/modules/legal/ingestion"
)

type IndexReporter interface {
	IndexReport(ctx context.Context) (ingestion.IndexReport, error)
}

type IndexHandler struct {
	reporter IndexReporter
}

func NewIndexHandler(r IndexReporter) *IndexHandler { return &IndexHandler{reporter: r} }

// GET /admin/index/stats
func (h *IndexHandler) Stats(c *gin.Context) {
	rep, err := h.reporter.IndexReport(c.Request.Context())
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, rep)
}
