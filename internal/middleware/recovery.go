package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"critter-coliseum/internal/pkg/log"
	"critter-coliseum/internal/pkg/response"
	"critter-coliseum/internal/pkg/xerrors"

	"github.com/labstack/echo/v4"
)

// RecoveryMiddleware 将 handler 中的 panic 转为 CodeInternalError 响应。
// http.ErrAbortHandler 原样抛出；响应已开始写出时只记录日志
func RecoveryMiddleware(respWriter response.Writer, logger log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if e, ok := r.(error); ok && errors.Is(e, http.ErrAbortHandler) {
					panic(r)
				}

				req := c.Request()
				ctx := req.Context()
				committed := c.Response().Committed

				logger.ErrorContext(ctx, "请求处理发生 panic",
					log.Any("panic_value", r),
					log.String("method", req.Method),
					log.String("route", c.Path()),
					log.Bool("response_committed", committed),
					log.String("stack", string(debug.Stack())),
				)

				if committed {
					return
				}
				appErr := xerrors.FromCode(xerrors.CodeInternalError).
					WithService("echo-middleware", "recovery").
					WithMetadata("panic_value", fmt.Sprintf("%v", r))
				err = respWriter.WriteError(ctx, c.Response(), appErr)
			}()

			return next(c)
		}
	}
}
