package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/grafana/pyroscope-go"
)

// Profiling label names
const (
	ProfilingLabelRoute    = "route"
	ProfilingLabelMethod   = "method"
	ProfilingLabelResource = "resource"
)

// ProfilingConfig holds configuration for the profiling middleware.
type ProfilingConfig struct {
	Enabled   bool
	SkipPaths []string
}

// DefaultProfilingConfig returns default profiling middleware configuration.
func DefaultProfilingConfig() ProfilingConfig {
	return ProfilingConfig{
		Enabled:   true,
		SkipPaths: []string{"/health"},
	}
}

// Profiling tags the CPU samples of each request with its route so that
// Pyroscope can split the profile by endpoint.
func Profiling(cfg ProfilingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		for _, skip := range cfg.SkipPaths {
			if c.Request.URL.Path == skip {
				c.Next()
				return
			}
		}

		pyroscope.TagWrapper(c.Request.Context(), pyroscope.Labels(profilingLabels(c)...), func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}

func profilingLabels(c *gin.Context) []string {
	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	labels := []string{ProfilingLabelMethod, c.Request.Method, ProfilingLabelRoute, route}
	if resource := resourceFromRoute(route); resource != "" {
		labels = append(labels, ProfilingLabelResource, resource)
	}
	return labels
}

// resourceFromRoute returns the first segment after the API prefix that is
// neither a version nor a path parameter.
// Example: "/api/v1/stock/items/:item_id" -> "stock"
func resourceFromRoute(route string) string {
	for _, part := range strings.Split(route, "/") {
		if part == "" || part == "api" || isVersionSegment(part) || strings.HasPrefix(part, ":") {
			continue
		}
		return part
	}
	return ""
}

func isVersionSegment(segment string) bool {
	if len(segment) < 2 || (segment[0] != 'v' && segment[0] != 'V') {
		return false
	}
	for i := 1; i < len(segment); i++ {
		if segment[i] < '0' || segment[i] > '9' {
			return false
		}
	}
	return true
}
