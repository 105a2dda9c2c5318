package middleware

import (
	"net/http"

	apperrors "skillcall/pkg/errors"
	"skillcall/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandlerMiddleware converts errors attached to the gin context into a
// uniform JSON error response. Log lines carry the request id and user id
// from the request context.
func ErrorHandlerMiddleware(log *logger.ContextLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		ctx := c.Request.Context()

		appErr := apperrors.GetAppError(err)
		if appErr == nil {
			log.LogError(ctx, err, "unhandled error", zap.String("path", c.Request.URL.Path))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": gin.H{
					"code":    apperrors.ErrCodeInternal,
					"message": "internal server error",
				},
			})
			return
		}

		if appErr.HTTPStatus >= http.StatusInternalServerError {
			log.LogError(ctx, appErr, "request failed",
				zap.String("code", string(appErr.Code)),
				zap.String("path", c.Request.URL.Path),
			)
		} else {
			log.WithContext(ctx).Debug("request rejected",
				zap.String("code", string(appErr.Code)),
				zap.String("message", appErr.Message),
				zap.String("path", c.Request.URL.Path),
			)
		}

		c.JSON(appErr.HTTPStatus, gin.H{
			"error": gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
			},
		})
	}
}

// RecoveryMiddleware turns panics into 500 responses instead of dropping
// the connection.
func RecoveryMiddleware(log *logger.ContextLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.WithContext(c.Request.Context()).Error("panic recovered",
					zap.Any("panic", r),
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": gin.H{
						"code":    apperrors.ErrCodeInternal,
						"message": "internal server error",
					},
				})
			}
		}()
		c.Next()
	}
}
