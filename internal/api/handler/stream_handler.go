package handler

import (
	"log/slog"
	"net/http"

	"github.com/cuongbtq/transfer-market/internal/realtime"
	"github.com/gin-gonic/gin"
)

// StreamHandler upgrades viewers onto the realtime job event stream
type StreamHandler struct {
	logger *slog.Logger
	hub    *realtime.Hub
}

func NewStreamHandler(deps *Dependencies) *StreamHandler {
	return &StreamHandler{logger: deps.Logger, hub: deps.Hub}
}

// StreamJobs handles GET /ws/jobs
func (h *StreamHandler) StreamJobs(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	if h.hub == nil {
		c.JSON(http.StatusNotFound, ErrorBody("not_found", "realtime stream is disabled", false))
		return
	}

	// Serve blocks until the viewer disconnects; the upgrader has already
	// written the HTTP response when it fails.
	if err := h.hub.Serve(c.Writer, c.Request, actor.UserID); err != nil {
		h.logger.Debug("Websocket upgrade failed", slog.String("user_id", actor.UserID), slog.Any("error", err))
	}
}
