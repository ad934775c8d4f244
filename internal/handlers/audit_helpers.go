package handlers

import (
	"github.com/gin-gonic/gin"

	"chatroom-service/internal/observability"
)

const requestIDContextKey = "request_id"

// requestIDFromContext resolves the request id once per request and echoes it
// back so clients can quote it.
func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := observability.RequestIDFromRequest(c.Request)
	c.Set(requestIDContextKey, requestID)
	c.Header(observability.RequestIDHeader, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) *string {
	if userID := c.GetString("userID"); userID != "" {
		return &userID
	}
	return nil
}
