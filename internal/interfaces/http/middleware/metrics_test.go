package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func setupTestMeter(t *testing.T) (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return reader, provider
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func findMetricByName(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestHTTPMetrics_RecordsRequests(t *testing.T) {
	reader, provider := setupTestMeter(t)
	mw, err := HTTPMetrics(provider.Meter("test"))
	require.NoError(t, err)

	router := gin.New()
	router.Use(mw)
	router.GET("/api/v1/stock/items/:item_id", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	router.POST("/api/v1/stock/reservations", func(c *gin.Context) { c.String(http.StatusUnprocessableEntity, "short") })

	serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/stock/items/a", nil))
	serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/stock/items/b", nil))
	serve(router, httptest.NewRequest(http.MethodPost, "/api/v1/stock/reservations", nil))

	rm := collectMetrics(t, reader)

	requests := findMetricByName(rm, "http_server_request_total")
	require.NotNil(t, requests)
	sum, ok := requests.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	byRoute := map[string]int64{}
	for _, dp := range sum.DataPoints {
		route, _ := dp.Attributes.Value("http.route")
		byRoute[route.AsString()] += dp.Value
		if route.AsString() == "/api/v1/stock/reservations" {
			group, _ := dp.Attributes.Value("http.status_group")
			assert.Equal(t, "4xx", group.AsString())
		}
	}
	assert.Equal(t, int64(2), byRoute["/api/v1/stock/items/:item_id"])
	assert.Equal(t, int64(1), byRoute["/api/v1/stock/reservations"])

	assert.NotNil(t, findMetricByName(rm, "http_server_request_duration_seconds"))
	assert.NotNil(t, findMetricByName(rm, "http_server_active_requests"))
}

func TestHTTPMetrics_UnmatchedRoute(t *testing.T) {
	reader, provider := setupTestMeter(t)
	mw, err := HTTPMetrics(provider.Meter("test"))
	require.NoError(t, err)

	router := gin.New()
	router.Use(mw)
	serve(router, httptest.NewRequest(http.MethodGet, "/nope", nil))

	sum := findMetricByName(collectMetrics(t, reader), "http_server_request_total").Data.(metricdata.Sum[int64])
	require.Len(t, sum.DataPoints, 1)
	route, _ := sum.DataPoints[0].Attributes.Value("http.route")
	assert.Equal(t, "unmatched", route.AsString())
}

func TestHTTPMetrics_NilMeter(t *testing.T) {
	mw, err := HTTPMetrics(nil)
	require.NoError(t, err)

	router := gin.New()
	router.Use(mw)
	router.GET("/test", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	assert.Equal(t, http.StatusOK, serve(router, httptest.NewRequest(http.MethodGet, "/test", nil)).Code)
}

func TestHTTPMetricsStatusGroup(t *testing.T) {
	cases := map[int]string{101: "1xx", 200: "2xx", 204: "2xx", 304: "3xx", 404: "4xx", 422: "4xx", 503: "5xx"}
	for status, want := range cases {
		assert.Equal(t, want, HTTPMetricsStatusGroup(status), "status %d", status)
	}
}
