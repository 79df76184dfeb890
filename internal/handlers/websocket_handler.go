package handlers

import (
	"net/http"

	"hostpilot/internal/services"

	"github.com/gin-gonic/gin"
)

type WebSocketHandler struct {
	wsHub *services.WebSocketHub
}

func NewWebSocketHandler(wsHub *services.WebSocketHub) *WebSocketHandler {
	return &WebSocketHandler{wsHub: wsHub}
}

func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	h.wsHub.HandleWebSocket(c)
}

func (h *WebSocketHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": map[string]interface{}{
			"connected_clients": h.wsHub.GetClientCount(),
			"status":            "running",
		},
	})
}

// RegisterWebSocketRoutes 注册状态推送路由
func RegisterWebSocketRoutes(r *gin.Engine, handler *WebSocketHandler) {
	r.GET("/ws/:client_id", handler.HandleWebSocket)
	r.GET("/ws-stats", handler.GetStats)
}
