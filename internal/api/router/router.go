package router

import (
	"net/http"

	"github.com/cuongbtq/docinsight-be/internal/api/handler"
	"github.com/gin-gonic/gin"
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
			"service": "docinsight-api",
		})
	})

	// Initialize session handler
	sessionHandler := handler.NewSessionHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		sessions := v1.Group("/sessions")
		{
			// POST /api/v1/sessions - Upload a document and start analysis
			sessions.POST("", sessionHandler.CreateSession)

			// GET /api/v1/sessions/:session_id - Session status query
			sessions.GET("/:session_id", sessionHandler.GetSession)

			// GET /api/v1/sessions/:session_id/events - SSE progress stream
			sessions.GET("/:session_id/events", sessionHandler.Subscribe)

			// POST /api/v1/sessions/:session_id/retry - Manual retry trigger
			sessions.POST("/:session_id/retry", sessionHandler.RetrySession)

			// DELETE /api/v1/sessions/:session_id/subscribers - Close streams
			sessions.DELETE("/:session_id/subscribers", sessionHandler.CloseSubscribers)

			// DELETE /api/v1/sessions/:session_id - Delete a session
			sessions.DELETE("/:session_id", sessionHandler.DeleteSession)
		}
	}

	return r
}
