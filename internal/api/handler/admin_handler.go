package handler

import (
	"net/http"

	"github.com/cuongbtq/transfer-market/internal/api/dto"
	"github.com/gin-gonic/gin"
)

// GetSettings handles GET /api/v1/admin/settings
func (h *AdminHandler) GetSettings(c *gin.Context) {
	s, err := h.settings.Get(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSettingsDTO(s))
}

// UpdateSettings handles PUT /api/v1/admin/settings
func (h *AdminHandler) UpdateSettings(c *gin.Context) {
	var req dto.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, h.logger, err)
		return
	}

	s, err := h.settings.Update(c.Request.Context(), req.Settings())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSettingsDTO(s))
}

// ListPendingTopups handles GET /api/v1/admin/topups
func (h *AdminHandler) ListPendingTopups(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req dto.ListTopupsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		writeBindError(c, h.logger, err)
		return
	}

	topups, err := h.topups.ListPending(c.Request.Context(), actor, req.PageSize)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"topups": topupDTOs(topups)})
}

// ApproveTopup handles POST /api/v1/admin/topups/:topup_id/approve
func (h *AdminHandler) ApproveTopup(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	t, err := h.topups.Approve(c.Request.Context(), actor, c.Param("topup_id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewTopupDTO(t))
}

// RejectTopup handles POST /api/v1/admin/topups/:topup_id/reject
func (h *AdminHandler) RejectTopup(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req dto.RejectTopupRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBindError(c, h.logger, err)
			return
		}
	}

	t, err := h.topups.Reject(c.Request.Context(), actor, c.Param("topup_id"), req.Note)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewTopupDTO(t))
}

// ReconcileUser handles GET /api/v1/admin/users/:user_id/reconcile
func (h *AdminHandler) ReconcileUser(c *gin.Context) {
	rec, err := h.ledger.Reconcile(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewReconciliationDTO(rec))
}
