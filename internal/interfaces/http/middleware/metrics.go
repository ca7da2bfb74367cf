package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HTTPDurationBuckets are latency boundaries in seconds
var HTTPDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// httpMetrics holds the HTTP instruments
type httpMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
	active   metric.Int64UpDownCounter
}

func newHTTPMetrics(meter metric.Meter) (*httpMetrics, error) {
	requests, err := meter.Int64Counter("http_server_request_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter http_server_request_total: %w", err)
	}
	duration, err := meter.Float64Histogram("http_server_request_duration_seconds",
		metric.WithDescription("HTTP request latency distribution in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(HTTPDurationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create histogram http_server_request_duration_seconds: %w", err)
	}
	active, err := meter.Int64UpDownCounter("http_server_active_requests",
		metric.WithDescription("In-flight HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create updown counter http_server_active_requests: %w", err)
	}
	return &httpMetrics{requests: requests, duration: duration, active: active}, nil
}

// HTTPMetrics records request count, latency and in-flight requests per
// route. A nil meter disables the middleware.
func HTTPMetrics(meter metric.Meter) (gin.HandlerFunc, error) {
	if meter == nil {
		return func(c *gin.Context) { c.Next() }, nil
	}
	m, err := newHTTPMetrics(meter)
	if err != nil {
		return nil, err
	}

	return func(c *gin.Context) {
		start := time.Now()
		ctx := c.Request.Context()
		route := getRoutePattern(c)
		routeAttrs := metric.WithAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
		)

		m.active.Add(ctx, 1, routeAttrs)
		defer m.active.Add(ctx, -1, routeAttrs)

		c.Next()

		status := c.Writer.Status()
		attrs := metric.WithAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
			attribute.String("http.status_group", HTTPMetricsStatusGroup(status)),
		)
		m.requests.Add(ctx, 1, attrs)
		m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	}, nil
}

// getRoutePattern returns the matched route, keeping label cardinality low
func getRoutePattern(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unmatched"
}

// HTTPMetricsStatusGroup returns "2xx", "4xx" etc.
func HTTPMetricsStatusGroup(statusCode int) string {
	switch {
	case statusCode >= 500:
		return "5xx"
	case statusCode >= 400:
		return "4xx"
	case statusCode >= 300:
		return "3xx"
	case statusCode >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
