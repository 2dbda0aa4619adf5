package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sentinelhive/svh/internal/pkg/requestid"
	"go.uber.org/zap"
)

const ContextKeyRequestID = "request_id"

// maxRequestIDLen caps ids accepted from callers.
const maxRequestIDLen = 128

// RequestID reuses the caller's X-Request-ID or assigns one, echoes it on
// the response and stores it on the request context for outgoing calls.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestid.Header)
		if id == "" || len(id) > maxRequestIDLen {
			id = requestid.New()
		}
		c.Set(ContextKeyRequestID, id)
		c.Header(requestid.Header, id)
		c.Request = c.Request.WithContext(requestid.NewContext(c.Request.Context(), id))
		c.Next()
	}
}

// CurrentRequestID returns the id assigned by RequestID.
func CurrentRequestID(c *gin.Context) string {
	return c.GetString(ContextKeyRequestID)
}

// Logger returns a Gin middleware that logs each request using zap.
func Logger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
			zap.String("request_id", CurrentRequestID(c)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		log.Info("request", fields...)
	}
}
