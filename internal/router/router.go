package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"focuspal/backend/internal/handler"
	"focuspal/backend/internal/middleware"
	"focuspal/backend/internal/service"
)

func New(
	authService *service.AuthService,
	authHandler *handler.AuthHandler,
	focusHandler *handler.FocusHandler,
	corsOrigins []string,
) *gin.Engine {
	engine := gin.New()
	engine.Use(middleware.RequestID(), gin.Logger(), gin.Recovery(), middleware.CORS(corsOrigins))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := engine.Group("/api")
	auth := api.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.GET("/me", middleware.Auth(authService), authHandler.Me)

	focus := api.Group("/focus")
	focus.Use(middleware.Auth(authService))
	focus.GET("/state", focusHandler.GetState)
	focus.POST("/start", focusHandler.Start)
	focus.POST("/pause", focusHandler.Pause)
	focus.POST("/resume", focusHandler.Resume)
	focus.POST("/stop", focusHandler.Stop)
	focus.POST("/break", focusHandler.StartBreak)
	focus.PUT("/settings", focusHandler.UpdateSettings)
	focus.GET("/history", focusHandler.GetHistory)
	focus.GET("/stats", focusHandler.GetStats)
	focus.GET("/notifications", focusHandler.ListNotifications)
	focus.GET("/events", focusHandler.Events)

	return engine
}
