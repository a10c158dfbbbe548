package handler

import (
	"net/http"

	"github.com/cuongbtq/transfer-market/internal/api/dto"
	"github.com/cuongbtq/transfer-market/internal/topup"
	"github.com/gin-gonic/gin"
)

// RequestTopup handles POST /api/v1/topups
func (h *TopupHandler) RequestTopup(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req dto.CreateTopupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, h.logger, err)
		return
	}

	t, err := h.topups.Request(c.Request.Context(), actor, req.Amount, req.Reference)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewTopupDTO(t))
}

// ListTopups handles GET /api/v1/topups
func (h *TopupHandler) ListTopups(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req dto.ListTopupsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		writeBindError(c, h.logger, err)
		return
	}

	topups, err := h.topups.ListMine(c.Request.Context(), actor, req.PageSize)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"topups": topupDTOs(topups)})
}

func topupDTOs(topups []topup.Topup) []dto.TopupDTO {
	out := make([]dto.TopupDTO, len(topups))
	for i := range topups {
		out[i] = dto.NewTopupDTO(&topups[i])
	}
	return out
}
