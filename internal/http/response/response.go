package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/lexbridge-backend/internal/domain/legal"
	"github.com/yungbote/lexbridge-backend/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondAPIError maps err onto a status and code. Legal error kinds get
// their own status; everything else is a 500.
func RespondAPIError(c *gin.Context, err error) {
	ae := FromError(err)
	RespondError(c, ae.Status, ae.Code, ae.Err)
}

func FromError(err error) *apierr.Error {
	var ae *apierr.Error
	if errors.As(err, &ae) {
		return ae
	}
	kind, _ := legal.KindOf(err)
	switch kind {
	case legal.KindNotFound:
		return apierr.New(http.StatusNotFound, "not_found", err)
	case legal.KindContentTooShort, legal.KindExtraction:
		return apierr.New(http.StatusUnprocessableEntity, string(kind), err)
	case legal.KindDuplicateSource:
		return apierr.New(http.StatusConflict, "duplicate_source", err)
	case legal.KindProviderRateLimit:
		return apierr.New(http.StatusTooManyRequests, "provider_rate_limit", err)
	case legal.KindConfiguration:
		return apierr.New(http.StatusServiceUnavailable, "configuration", err)
	case legal.KindNetwork, legal.KindVectorIndex, legal.KindProviderAuth:
		return apierr.New(http.StatusBadGateway, string(kind), err)
	}
	return apierr.From(err)
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
