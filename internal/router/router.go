package router

import (
	"time"

	"jabbr/config"
	"jabbr/internal/chat"
	"jabbr/internal/handler"
	"jabbr/internal/middleware"
	"jabbr/internal/repository"
	"jabbr/internal/service"
	"jabbr/internal/ws"

	"github.com/gin-gonic/gin"
)

// Setup wires handlers onto the engine. Dependencies are constructed in main
// and passed down explicitly; nothing here reaches into a global container.
func Setup(cfg *config.Config, repo *repository.ChatRepository, registry *ws.Registry, coordinator *chat.Coordinator) *gin.Engine {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RateLimit(middleware.NewSlidingWindowLimiter(300, 60*time.Second)))

	authSvc := service.NewAuthService(cfg, repo)
	authHandler := handler.NewAuthHandler(authSvc)
	roomHandler := handler.NewRoomHandler(repo, coordinator)

	api := r.Group("/api/v1")
	{
		api.POST("/auth/register", authHandler.Register)
		api.POST("/auth/login", authHandler.Login)

		authed := api.Group("", middleware.AuthRequired(&cfg.JWT))
		{
			authed.GET("/rooms", roomHandler.List)
			authed.POST("/rooms", roomHandler.Create)
			authed.GET("/rooms/:name", roomHandler.Get)
			authed.GET("/notifications/unread", roomHandler.Unread)
		}
	}

	r.GET("/ws/chat", handler.UpgradeChatWS(&cfg.JWT, registry, coordinator))

	return r
}
