package routes

import (
	"pulse/internal/controllers"

	"github.com/gin-gonic/gin"
)

// RegisterAuthRoutes registers the WebSocket stream behind tenant
// resolution. Tokens are issued via CLI only (no HTTP endpoints).
func RegisterAuthRoutes(r *gin.Engine, tenant gin.HandlerFunc, ws *controllers.WebSocketController) {
	r.GET("/ws", tenant, ws.HandleWebSocket)
}
