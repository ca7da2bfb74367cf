package logger

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GinContextKey is the gin context key holding the request logger
const GinContextKey = "logger"

// GinMiddleware logs each request once it completes. It expects the request
// ID under "request_id" in the gin context and stores a request-scoped logger
// both in the gin context and in the request's context.Context.
func GinMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetString("request_id")

		ctx, reqLogger := WithRequestID(c.Request.Context(), logger.With(
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
		), requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Set(GinContextKey, reqLogger)

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("body_size", c.Writer.Size()),
		}
		if route := c.FullPath(); route != "" {
			fields = append(fields, zap.String("route", route))
		}
		if q := c.Request.URL.RawQuery; q != "" {
			fields = append(fields, zap.String("query", q))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.Strings("errors", c.Errors.Errors()))
		}
		reqLogger = WithTraceContext(c.Request.Context(), reqLogger)

		const msg = "HTTP Request"
		switch {
		case status >= 500:
			reqLogger.Error(msg, fields...)
		case status >= 400:
			reqLogger.Warn(msg, fields...)
		default:
			reqLogger.Info(msg, fields...)
		}
	}
}

// Recovery logs panics and answers 500
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("Panic recovered",
					zap.String("request_id", c.GetString("request_id")),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.Any("error", err),
					zap.Stack("stacktrace"),
				)
				c.AbortWithStatus(500)
			}
		}()
		c.Next()
	}
}

// GetGinLogger returns the request logger or a no-op logger
func GetGinLogger(c *gin.Context) *zap.Logger {
	if l, ok := c.Value(GinContextKey).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}
