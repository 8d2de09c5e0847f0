package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/lexbridge-backend/internal/http/response"
	"github.com/yungbote/lexbridge-backend/internal/platform/logger"
)

type DocumentDeleter interface {
	DeleteDocument(ctx context.Context, id uuid.UUID) error
}

type DocumentHandler struct {
	log     *logger.Logger
	deleter DocumentDeleter
}

func NewDocumentHandler(log *logger.Logger, d DocumentDeleter) *DocumentHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &DocumentHandler{log: log.With("handler", "DocumentHandler"), deleter: d}
}

// DELETE /admin/documents/:id
func (h *DocumentHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", fmt.Errorf("invalid document id %q", c.Param("id")))
		return
	}
	if err := h.deleter.DeleteDocument(c.Request.Context(), id); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	h.log.Info("Document deleted", "document_id", id.String())
	c.Status(http.StatusNoContent)
}
