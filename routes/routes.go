package routes

import (
	"net/http"

	"coinrush/handlers"
	"coinrush/middleware"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(
	router *gin.Engine,
	sessionHandler *handlers.SessionHandler,
	docHandler *handlers.DocHandler,
	verifier middleware.TokenVerifier,
) {
	api := router.Group("/api")
	{
		api.POST("/auth/session", sessionHandler.OpenSession)

		// Reads are public; anyone holding a room code may look.
		api.GET("/docs/:collection/:id", docHandler.GetDocument)
		api.GET("/rooms/:id/results", docHandler.RoomResults)

		protected := api.Group("/")
		protected.Use(middleware.AuthMiddleware(verifier))
		{
			protected.GET("/auth/session", sessionHandler.Whoami)
			protected.PUT("/docs/:collection/:id", docHandler.CreateDocument)
			protected.PATCH("/docs/:collection/:id", docHandler.PatchDocument)
		}
	}

	router.GET("/ws/docs/:collection/:id", middleware.OptionalAuth(verifier), docHandler.WatchDocument)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
