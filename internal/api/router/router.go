package router

import (
	"context"
	"net/http"
	"time"

	"github.com/cuongbtq/transfer-market/internal/api/dto"
	"github.com/cuongbtq/transfer-market/internal/api/handler"
	"github.com/cuongbtq/transfer-market/internal/auth"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) (*gin.Engine, error) {
	if err := dto.RegisterValidators(); err != nil {
		return nil, err
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware(deps.AllowedOrigins))
	r.Use(MetricsMiddleware(deps.Metrics))

	r.GET("/health", healthHandler(deps))
	if deps.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}

	authenticated := []gin.HandlerFunc{AuthMiddleware(deps.Verifier, deps.Logger)}
	if deps.RateLimit.RequestsPerSecond > 0 {
		limiter := NewRateLimiter(deps.RateLimit.RequestsPerSecond, deps.RateLimit.Burst, deps.Logger)
		if deps.RateLimit.Done != nil {
			limiter.StartCleanup(time.Minute, deps.RateLimit.Done)
		}
		authenticated = append(authenticated, limiter.Middleware())
	}

	streamHandler := handler.NewStreamHandler(deps)
	r.GET("/ws/jobs", append(authenticated, streamHandler.StreamJobs)...)

	if deps.Redis != nil {
		authenticated = append(authenticated, Idempotency(deps.Redis, deps.IdempotencyTTL, deps.Logger))
	}

	jobHandler := handler.NewJobHandler(deps)
	balanceHandler := handler.NewBalanceHandler(deps)
	topupHandler := handler.NewTopupHandler(deps)
	adminHandler := handler.NewAdminHandler(deps)

	v1 := r.Group("/api/v1", authenticated...)
	{
		jobs := v1.Group("/jobs")
		{
			jobs.POST("", jobHandler.CreateJob)
			jobs.GET("", jobHandler.ListJobs)
			jobs.GET("/:job_id", jobHandler.GetJob)

			jobs.POST("/:job_id/purchase", jobHandler.PurchaseJob)
			jobs.POST("/:job_id/approve", jobHandler.ApproveJob)
			jobs.POST("/:job_id/reject", jobHandler.RejectJob)
			jobs.POST("/:job_id/cancel", jobHandler.CancelJob)
			jobs.POST("/:job_id/iban", jobHandler.ShareIBAN)
			jobs.POST("/:job_id/complete", jobHandler.CompleteJob)
			jobs.POST("/:job_id/withdraw", jobHandler.WithdrawJob)
		}

		balance := v1.Group("/balance")
		{
			balance.GET("", balanceHandler.GetBalance)
			balance.GET("/transactions", balanceHandler.ListTransactions)
			balance.GET("/reconcile", balanceHandler.Reconcile)
		}

		topups := v1.Group("/topups")
		{
			topups.POST("", topupHandler.RequestTopup)
			topups.GET("", topupHandler.ListTopups)
		}

		admin := v1.Group("/admin", RequireRole(auth.RoleAdmin))
		{
			admin.GET("/settings", adminHandler.GetSettings)
			admin.PUT("/settings", adminHandler.UpdateSettings)
			admin.GET("/topups", adminHandler.ListPendingTopups)
			admin.POST("/topups/:topup_id/approve", adminHandler.ApproveTopup)
			admin.POST("/topups/:topup_id/reject", adminHandler.RejectTopup)
			admin.GET("/users/:user_id/reconcile", adminHandler.ReconcileUser)
		}
	}

	return r, nil
}

func healthHandler(deps *handler.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		if deps.DBClient != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := deps.DBClient.HealthCheck(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": deps.ServiceName,
					"error":   "database unavailable",
				})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": deps.ServiceName,
		})
	}
}
