package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/mfolio/internal/middleware"
)

type RouterDeps struct {
	Search        *SearchHandler
	Chat          *ChatHandler
	Admin         *AdminHandler
	AdminSecret   []byte
	ChatRateLimit time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/search", deps.Search.Search)

	api.POST("/chat", middleware.RateLimit(deps.ChatRateLimit), deps.Chat.Chat)
	api.GET("/chat/history", deps.Chat.History)
	api.PUT("/chat/sessions/title", deps.Chat.Rename)

	adminGroup := api.Group("/admin")
	adminGroup.Use(middleware.AdminAuth(deps.AdminSecret))
	adminGroup.POST("/index", deps.Admin.Index)
	adminGroup.POST("/prune", deps.Admin.Prune)
}
