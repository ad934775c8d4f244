package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chatroom-service/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints. /debug/audit-test emits one
// audit record, scoped to ?room_id= when given, to check the AMQP path.
func RegisterDebugRoutes(router gin.IRouter, emitter *telemetry.AuditEmitter, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		requestID := requestIDFromContext(c)
		roomID := c.Query("room_id")
		emitter.Emit(c.Request.Context(), "INFO", "audit test", requestID, userIDFromContext(c), roomID)
		c.JSON(http.StatusOK, gin.H{"status": "ok", "request_id": requestID, "room_id": roomID})
	})
}
