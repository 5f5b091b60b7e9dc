// File: internal/pkg/trace/middleware.go
package trace

import (
	"github.com/labstack/echo/v4"
)

// HeaderTraceID 回写给调用方的追踪头
const HeaderTraceID = "X-Trace-Id"

// Middleware Echo 中间件 - 提取或生成 TraceID 并写入 context 与响应头
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, traceID := Ensure(c.Request().Context(), ExtractFromHeader(c.Request().Header))
			c.SetRequest(c.Request().WithContext(ctx))
			c.Response().Header().Set(HeaderTraceID, traceID)
			return next(c)
		}
	}
}
