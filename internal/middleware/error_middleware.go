package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"critter-coliseum/internal/pkg/log"
	"critter-coliseum/internal/pkg/response"
	"critter-coliseum/internal/pkg/xerrors"

	"github.com/labstack/echo/v4"
)

// ErrorMiddleware 统一错误处理中间件
func ErrorMiddleware(respWriter response.Writer, logger log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}
			if c.Response().Committed {
				return err
			}

			ctx := c.Request().Context()

			var appErr *xerrors.AppError
			var echoErr *echo.HTTPError
			switch {
			case errors.As(err, &appErr):
				// 业务错误，直接使用 response writer 处理
			case errors.As(err, &echoErr):
				appErr = convertEchoError(echoErr)
			default:
				appErr = xerrors.NewWithError(
					xerrors.CodeInternalError,
					"系统内部错误",
					err,
				).WithService("echo-middleware", "error_handler")

				logger.ErrorContext(ctx, "未处理的错误",
					log.Any("original_error", err),
					log.String("error_type", fmt.Sprintf("%T", err)),
				)
			}

			// 写入 c.Response()，echo 才能记录真实状态码
			return respWriter.WriteError(ctx, c.Response(), appErr)
		}
	}
}

// convertEchoError 将 Echo 错误转换为业务错误
func convertEchoError(echoErr *echo.HTTPError) *xerrors.AppError {
	message := fmt.Sprintf("%v", echoErr.Message)
	switch echoErr.Code {
	case http.StatusBadRequest, http.StatusUnsupportedMediaType:
		return xerrors.FromCode(xerrors.CodeInvalidRequest).
			WithMetadata("echo_message", message)
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return xerrors.FromCode(xerrors.CodeResourceNotFound).
			WithMetadata("echo_message", message)
	default:
		return xerrors.FromCode(xerrors.CodeInternalError).
			WithMetadata("echo_code", fmt.Sprintf("%d", echoErr.Code)).
			WithMetadata("echo_message", message)
	}
}
