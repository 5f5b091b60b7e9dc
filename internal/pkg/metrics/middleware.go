// File: internal/pkg/metrics/middleware.go
package metrics

import (
	"time"

	"critter-coliseum/internal/pkg/ctxkey"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Middleware Echo 中间件：记录 HTTP 方法到 context，并按路由模板统计请求
func Middleware(m *HTTPMetrics, service string) echo.MiddlewareFunc {
	if m == nil {
		m = DefaultHTTPMetrics
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := ctxkey.WithValue(req.Context(), ctxkey.HTTPMethod, req.Method)
			c.SetRequest(req.WithContext(ctx))

			if IsHealthCheckEndpoint(req.URL.Path) {
				return next(c)
			}

			m.IncInProgress(service)
			start := time.Now()
			err := next(c)
			m.DecInProgress(service)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			m.RecordRequest(service, NormalizeRoute(c.Path()), req.Method, status, time.Since(start))
			return err
		}
	}
}

// EchoHandler Echo 框架的 Prometheus metrics 处理器，暴露当前注册表
func EchoHandler() echo.HandlerFunc {
	h := promhttp.HandlerFor(GetGatherer(), promhttp.HandlerOpts{})
	return func(c echo.Context) error {
		h.ServeHTTP(c.Response().Writer, c.Request())
		return nil
	}
}
