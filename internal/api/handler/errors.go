package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/transfer-market/internal/api/dto"
	"github.com/cuongbtq/transfer-market/internal/apperr"
	"github.com/gin-gonic/gin"
)

// ErrorBody is the shared error envelope
func ErrorBody(kind, message string, retryable bool) gin.H {
	return gin.H{
		"error": gin.H{
			"kind":      kind,
			"message":   message,
			"retryable": retryable,
		},
	}
}

// writeError maps an apperr kind onto its HTTP status. Internal causes are
// logged but never echoed to the client.
func writeError(c *gin.Context, logger *slog.Logger, err error) {
	kind := apperr.KindOf(err)
	meta := apperr.MetadataFor(kind)

	message := "internal error"
	var typed *apperr.Error
	if errors.As(err, &typed) && kind != apperr.KindInternal {
		message = typed.Message
	}

	if meta.HTTPStatus >= http.StatusInternalServerError {
		_ = c.Error(err)
		logger.Error("Request failed",
			slog.String("path", c.FullPath()),
			slog.String("kind", string(kind)),
			slog.Any("error", err),
		)
	}

	c.AbortWithStatusJSON(meta.HTTPStatus, ErrorBody(string(kind), message, meta.Retryable))
}

// writeBindError reports a request that failed binding or validation
func writeBindError(c *gin.Context, logger *slog.Logger, err error) {
	logger.Debug("Invalid request", slog.String("path", c.FullPath()), slog.String("error", err.Error()))

	body := ErrorBody(string(apperr.KindValidation), "invalid request", false)
	if fields := dto.FieldErrors(err); len(fields) > 0 {
		body["error"].(gin.H)["fields"] = fields
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, body)
}
