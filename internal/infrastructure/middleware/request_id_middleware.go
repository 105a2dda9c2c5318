package middleware

import (
	"context"

	"skillcall/pkg/logger"
	"skillcall/pkg/utils"

	"github.com/gin-gonic/gin"
)

// RequestIDMiddleware assigns a correlation id to every request, honoring a
// caller-supplied X-Request-ID, and exposes it both on the response and in
// the request context for log correlation.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = utils.GenerateRequestID()
		}

		ctx := context.WithValue(c.Request.Context(), logger.RequestIDKey, requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}
