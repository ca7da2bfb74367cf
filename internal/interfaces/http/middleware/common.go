// Package middleware provides the gin middleware of the stock API.
package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Request ID keys
const (
	RequestIDHeader = "X-Request-ID"
	// RequestIDKey is where RequestID stores the ID in the gin context
	RequestIDKey = "request_id"
	// MaxRequestIDLength bounds client supplied request IDs
	MaxRequestIDLength = 128
)

// CORSConfig holds CORS middleware configuration
type CORSConfig struct {
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	ExposeHeaders    []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// DefaultCORSConfig returns the default CORS configuration. No origin is
// allowed until AllowOrigins is configured.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins:     []string{},
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization", RequestIDHeader, "Accept", "Origin"},
		ExposeHeaders:    []string{RequestIDHeader, "Retry-After", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
}

// CORS returns a middleware that handles CORS with default configuration
func CORS() gin.HandlerFunc {
	return CORSWithConfig(DefaultCORSConfig())
}

// CORSWithConfig returns a CORS middleware with custom configuration.
// Preflight requests always end with 204; the CORS headers are only set for
// allowed origins.
func CORSWithConfig(cfg CORSConfig) gin.HandlerFunc {
	allowWildcard := slices.Contains(cfg.AllowOrigins, "*")

	allowed := func(origin string) string {
		if allowWildcard {
			return "*"
		}
		if origin != "" && slices.Contains(cfg.AllowOrigins, origin) {
			return origin
		}
		return ""
	}

	return func(c *gin.Context) {
		if origin := allowed(c.Request.Header.Get("Origin")); origin != "" {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			if cfg.AllowCredentials && origin != "*" {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			h.Set("Access-Control-Allow-Headers", strings.Join(cfg.AllowHeaders, ", "))
			h.Set("Access-Control-Allow-Methods", strings.Join(cfg.AllowMethods, ", "))
			if len(cfg.ExposeHeaders) > 0 {
				h.Set("Access-Control-Expose-Headers", strings.Join(cfg.ExposeHeaders, ", "))
			}
			if cfg.MaxAge > 0 {
				h.Set("Access-Control-Max-Age", strconv.Itoa(int(cfg.MaxAge.Seconds())))
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RequestID propagates the caller's X-Request-ID or assigns a new one
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if len(requestID) > MaxRequestIDLength {
			requestID = requestID[:MaxRequestIDLength]
		}
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(RequestIDKey, requestID)
		c.Writer.Header().Set(RequestIDHeader, requestID)
		c.Next()
	}
}

// GetRequestID returns the request ID assigned by RequestID
func GetRequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}

// Secure sets the response headers an API behind a browser should carry
func Secure() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Next()
	}
}
