package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/transfer-market/internal/api/dto"
	"github.com/cuongbtq/transfer-market/internal/apperr"
	"github.com/cuongbtq/transfer-market/internal/auth"
	"github.com/cuongbtq/transfer-market/internal/marketplace"
	"github.com/gin-gonic/gin"
)

// CreateJob handles POST /api/v1/jobs
func (h *JobHandler) CreateJob(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, h.logger, err)
		return
	}

	job, err := h.engine.CreateJob(c.Request.Context(), actor, req.Input())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewJobDTO(job))
}

// GetJob handles GET /api/v1/jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	job, err := h.engine.GetJob(c.Request.Context(), actor, c.Param("job_id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewJobDTO(job))
}

// ListJobs handles GET /api/v1/jobs
// scope=board (default) lists open jobs; selling and buying list the caller's own
func (h *JobHandler) ListJobs(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		writeBindError(c, h.logger, err)
		return
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		writeError(c, h.logger, apperr.Validation("invalid cursor"))
		return
	}

	jobs, hasMore, err := h.engine.ListJobs(c.Request.Context(), actor, marketplace.ListJobsInput{
		Scope:       marketplace.JobScope(req.Scope),
		Status:      marketplace.Status(req.Status),
		VehicleType: req.VehicleType,
		PageSize:    req.PageSize,
		Cursor:      cursor,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	jobResponse := make([]dto.JobDTO, len(jobs))
	for i := range jobs {
		jobResponse[i] = dto.NewJobDTO(&jobs[i])
	}

	var nextCursor string
	if hasMore && len(jobs) > 0 {
		lastJob := jobs[len(jobs)-1]
		nextCursor = EncodeJobCursor(&marketplace.JobCursor{
			CreatedAt: lastJob.CreatedAt,
			JobID:     lastJob.ID,
		})
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       jobResponse,
		NextCursor: nextCursor,
	})
}

type transitionFunc func(ctx context.Context, actor auth.Actor, jobID string) (*marketplace.Job, error)

func (h *JobHandler) transition(c *gin.Context, op string, fn transitionFunc) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	jobID := c.Param("job_id")
	job, err := fn(c.Request.Context(), actor, jobID)
	if err != nil {
		h.logger.Debug("Job transition rejected",
			slog.String("operation", op),
			slog.String("job_id", jobID),
			slog.String("kind", string(apperr.KindOf(err))),
		)
		writeError(c, h.logger, err)
		return
	}

	view := job.ViewFor(actor.UserID, actor.IsAdmin())
	c.JSON(http.StatusOK, dto.NewJobDTO(&view))
}

// PurchaseJob handles POST /api/v1/jobs/:job_id/purchase
func (h *JobHandler) PurchaseJob(c *gin.Context) {
	h.transition(c, "purchase", h.engine.PurchaseJob)
}

// ApproveJob handles POST /api/v1/jobs/:job_id/approve
func (h *JobHandler) ApproveJob(c *gin.Context) {
	h.transition(c, "approve", h.engine.ApproveJob)
}

// RejectJob handles POST /api/v1/jobs/:job_id/reject
func (h *JobHandler) RejectJob(c *gin.Context) {
	h.transition(c, "reject", h.engine.RejectJob)
}

// CancelJob handles POST /api/v1/jobs/:job_id/cancel
func (h *JobHandler) CancelJob(c *gin.Context) {
	h.transition(c, "cancel", h.engine.CancelJob)
}

// WithdrawJob handles POST /api/v1/jobs/:job_id/withdraw
func (h *JobHandler) WithdrawJob(c *gin.Context) {
	h.transition(c, "withdraw", h.engine.WithdrawJob)
}

// ShareIBAN handles POST /api/v1/jobs/:job_id/iban
func (h *JobHandler) ShareIBAN(c *gin.Context) {
	var req dto.ShareIBANRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, h.logger, err)
		return
	}

	h.transition(c, "share_iban", func(ctx context.Context, actor auth.Actor, jobID string) (*marketplace.Job, error) {
		return h.engine.ShareIBAN(ctx, actor, jobID, marketplace.ShareIBANInput{
			IBAN:        req.IBAN,
			AccountName: req.AccountName,
		})
	})
}

// CompleteJob handles POST /api/v1/jobs/:job_id/complete
func (h *JobHandler) CompleteJob(c *gin.Context) {
	var req dto.CompleteJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, h.logger, err)
		return
	}

	h.transition(c, "complete", func(ctx context.Context, actor auth.Actor, jobID string) (*marketplace.Job, error) {
		return h.engine.CompleteJob(ctx, actor, jobID, req.PaymentConfirmed)
	})
}
