package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	ServiceName string
	Enabled     bool
	// SkipPaths are not traced.
	SkipPaths []string
}

// DefaultTracingConfig returns default tracing configuration.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName: "stock-engine",
		Enabled:     true,
		SkipPaths:   []string{"/health"},
	}
}

// Tracing returns OpenTelemetry tracing middleware with default configuration.
func Tracing() gin.HandlerFunc {
	return TracingWithConfig(DefaultTracingConfig())
}

// TracingWithConfig wraps otelgin and leaves SkipPaths untraced.
func TracingWithConfig(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}

	return otelgin.Middleware(cfg.ServiceName,
		otelgin.WithFilter(func(r *http.Request) bool {
			_, skipped := skip[r.URL.Path]
			return !skipped
		}),
	)
}

// SpanAttributes enriches the active span with the request ID and actor and
// marks it failed on 5xx. It must run after RequestID and the tracing
// middleware; the actor is read once the handler chain has run.
func SpanAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			c.Next()
			return
		}

		if id := GetRequestID(c); id != "" {
			span.SetAttributes(attribute.String("request_id", id))
		}
		c.Next()

		if userID := GetJWTUserID(c); userID != "" {
			span.SetAttributes(attribute.String("actor_id", userID))
		}

		status := c.Writer.Status()
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
		if len(c.Errors) > 0 {
			span.SetAttributes(attribute.String("gin.errors", c.Errors.String()))
		}
	}
}
