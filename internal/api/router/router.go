package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thumbforge/thumbforge/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "thumbforge-api",
		})
	})

	imageHandler := handler.NewImageHandler(deps)

	// API v1 routes
	v1 := r.Group("/v1")
	{
		images := v1.Group("/images")
		{
			// POST /v1/images - Submit a source URL for thumbnailing
			images.POST("", imageHandler.SubmitImage)

			// GET /v1/images - List jobs with filtering and pagination
			images.GET("", imageHandler.ListImages)

			// GET /v1/images/:job_id - Get job details
			images.GET("/:job_id", imageHandler.GetImage)

			// GET /v1/images/:job_id/thumbnail - Serve the generated thumbnail
			images.GET("/:job_id/thumbnail", imageHandler.GetThumbnail)
		}

		// GET /v1/metrics - Job counts per status
		v1.GET("/metrics", imageHandler.GetMetrics)
	}

	return r
}
