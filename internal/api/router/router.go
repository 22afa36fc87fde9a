package router

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/avatar-podcast/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		if deps.Database != nil {
			if err := deps.Database.HealthCheck(c.Request.Context()); err != nil {
				deps.Logger.Warn("Readiness check failed", slog.String("error", err.Error()))
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": "podcast-api-service",
					"error":   "database unavailable",
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "podcast-api-service",
		})
	})

	jobHandler := handler.NewJobHandler(deps)
	avatarHandler := handler.NewAvatarHandler(deps)

	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			jobs.POST("", jobHandler.CreateJob)
			jobs.GET("", jobHandler.ListJobs)

			// GET refreshes turn statuses against the provider
			jobs.GET("/:job_id", jobHandler.GetJob)

			jobs.PATCH("/:job_id/turns/:turn_index", jobHandler.UpdateTurnVideo)
			jobs.POST("/:job_id/stitch", jobHandler.RequestStitch)
		}

		v1.GET("/avatars/health", avatarHandler.Health)
	}

	return r
}
