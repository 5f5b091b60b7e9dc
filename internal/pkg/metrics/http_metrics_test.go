// File: internal/pkg/metrics/http_metrics_test.go
package metrics

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"critter-coliseum/internal/pkg/ctxkey"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPMetrics_RecordRequest(t *testing.T) {
	tests := []struct {
		name       string
		route      string
		method     string
		statusCode int
	}{
		{name: "记录 POST 创建战斗 - 201", route: "/api/v1/battles", method: "POST", statusCode: 201},
		{name: "记录 GET 查询斗兽 - 404", route: "/api/v1/critters/:critter_id", method: "GET", statusCode: 404},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := prometheus.NewRegistry()
			metrics := NewHTTPMetricsWithRegistry("test", reg)

			metrics.RecordRequest("management", tt.route, tt.method, tt.statusCode, 20*time.Millisecond)

			count := testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("management", tt.route, tt.method, strconv.Itoa(tt.statusCode)))
			assert.Equal(t, float64(1), count)
		})
	}
}

func TestMiddleware_RecordsRouteTemplate(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetricsWithRegistry("test", reg)

	e := echo.New()
	e.Use(Middleware(m, "management"))

	var method string
	e.GET("/api/v1/battles/:battle_id", func(c echo.Context) error {
		method = ctxkey.GetString(c.Request().Context(), ctxkey.HTTPMethod)
		return c.NoContent(http.StatusOK)
	})
	e.GET("/health", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/battles/battle-123", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.MethodGet, method)

	count := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("management", "/api/v1/battles/:battle_id", "GET", "200"))
	assert.Equal(t, float64(1), count)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.RequestsInProgress.WithLabelValues("management")))

	// 健康检查端点不计入指标
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	e.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, 1, testutil.CollectAndCount(m.RequestsTotal))
}

func TestMiddleware_HTTPErrorStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetricsWithRegistry("test", reg)

	e := echo.New()
	e.Use(Middleware(m, "management"))
	e.POST("/api/v1/battles", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadRequest, "bad")
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/battles", nil)
	e.ServeHTTP(httptest.NewRecorder(), req)

	count := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("management", "/api/v1/battles", "POST", "400"))
	assert.Equal(t, float64(1), count)
}

func TestIsHealthCheckEndpoint(t *testing.T) {
	assert.True(t, IsHealthCheckEndpoint("/health"))
	assert.True(t, IsHealthCheckEndpoint("/metrics"))
	assert.False(t, IsHealthCheckEndpoint("/api/v1/battles"))
	assert.Equal(t, "unknown", NormalizeRoute(""))
}
