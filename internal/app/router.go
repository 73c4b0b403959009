package app

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"floodgate.io/floodgate/internal/api/handlers"
	"floodgate.io/floodgate/internal/api/middleware"
)

func newRouter(server *handlers.Server) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.ErrorHandler())

	// The dashboard is served from a different origin.
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Content-Type", middleware.RequestIDHeader},
	}))

	router.POST("/ingest", server.PostIngest)
	router.GET("/health", server.GetHealth)
	router.GET("/api/stats", server.GetStats)
	router.GET("/ws", server.GetWS)

	return router
}
