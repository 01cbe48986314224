package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "focuspal/backend/internal/errors"
	"focuspal/backend/internal/observability"
)

func writeError(c *gin.Context, apiErr *apperrors.APIError) {
	if apiErr == nil {
		apiErr = apperrors.Internal("")
	}
	if apiErr.Status >= http.StatusInternalServerError {
		observability.LoggerFromContext(c.Request.Context()).Error("request failed",
			"path", c.FullPath(),
			"code", apiErr.Code,
			"message", apiErr.Message,
		)
	}
	c.JSON(apiErr.Status, apiErr.Envelope())
}

// bindOptionalJSON decodes the body into dst when one is present.
func bindOptionalJSON(c *gin.Context, dst interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		writeError(c, apperrors.InvalidJSON())
		return false
	}
	return true
}
