package routes

import (
	"bridge-relay/internal/handler"

	"github.com/gin-gonic/gin"
)

// RegisterRelayRoutes 注册会话与中继路由
func RegisterRelayRoutes(rg *gin.RouterGroup, h *handler.RelayHandler) {
	rg.GET("/status", h.GetStatus)
	rg.GET("/networks", h.ListNetworks)
	rg.GET("/history", h.ListHistory)

	// 会话
	rg.GET("/sessions", h.ListSessions)
	sessionGroup := rg.Group("/session")
	{
		sessionGroup.POST("/init", h.InitSession)
		sessionGroup.POST("/pair", h.Pair)
	}

	// 队列
	txGroup := rg.Group("/transactions")
	{
		txGroup.GET("", h.ListTransactions)
		txGroup.POST("/:id/submit", h.SubmitTransaction)
		txGroup.POST("/:id/check", h.CheckTransaction)
		txGroup.POST("/:id/cancel", h.CancelTransaction)
	}
}
