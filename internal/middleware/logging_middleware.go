package middleware

import (
	"bytes"
	"io"
	"strings"
	"time"

	"critter-coliseum/internal/pkg/log"

	"github.com/labstack/echo/v4"
)

// LoggingConfig 日志配置
type LoggingConfig struct {
	// SkipPaths 跳过日志记录的路径前缀
	SkipPaths []string

	// LogRequestBody 是否记录请求体（仅开发环境）
	LogRequestBody bool

	// MaxBodySize 最大记录的 body 大小（字节）
	MaxBodySize int64
}

// DefaultLoggingConfig 默认日志配置
func DefaultLoggingConfig() *LoggingConfig {
	return &LoggingConfig{
		SkipPaths: []string{
			"/health",
			"/metrics",
		},
		MaxBodySize: 4 * 1024,
	}
}

// LoggingMiddleware 日志中间件
func LoggingMiddleware(logger log.Logger) echo.MiddlewareFunc {
	return LoggingMiddlewareWithConfig(logger, DefaultLoggingConfig())
}

// LoggingMiddlewareWithConfig 带配置的日志中间件。trace_id 由 log.ContextHandler 自动附加
func LoggingMiddlewareWithConfig(logger log.Logger, config *LoggingConfig) echo.MiddlewareFunc {
	if config == nil {
		config = DefaultLoggingConfig()
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if shouldSkip(c.Request().URL.Path, config.SkipPaths) {
				return next(c)
			}

			start := time.Now()
			ctx := c.Request().Context()

			fields := []any{
				log.String("method", c.Request().Method),
				log.String("path", c.Request().URL.Path),
				log.String("client_ip", c.RealIP()),
			}
			if config.LogRequestBody && c.Request().Body != nil {
				if body := readAndRestoreBody(c, config.MaxBodySize); body != "" {
					fields = append(fields, log.String("request_body", body))
				}
			}
			logger.DebugContext(ctx, "请求开始", fields...)

			err := next(c)

			statusCode := c.Response().Status
			responseFields := []any{
				log.String("method", c.Request().Method),
				log.String("route", c.Path()),
				log.Int("status_code", statusCode),
				log.Duration("duration", time.Since(start).Milliseconds()),
				log.Int64("response_size", c.Response().Size),
			}

			if err != nil {
				responseFields = append(responseFields, log.Any("error", err))
				logger.ErrorContext(ctx, "请求处理出错", responseFields...)
				return err
			}

			switch {
			case statusCode >= 500:
				logger.ErrorContext(ctx, "请求完成（服务器错误）", responseFields...)
			case statusCode >= 400:
				logger.WarnContext(ctx, "请求完成（客户端错误）", responseFields...)
			default:
				logger.InfoContext(ctx, "请求完成", responseFields...)
			}
			return nil
		}
	}
}

// shouldSkip 检查是否应该跳过日志记录
func shouldSkip(path string, skipPaths []string) bool {
	for _, skipPath := range skipPaths {
		if strings.HasPrefix(path, skipPath) {
			return true
		}
	}
	return false
}

// readAndRestoreBody 读取并恢复请求体
func readAndRestoreBody(c echo.Context, maxSize int64) string {
	limitedReader := io.LimitReader(c.Request().Body, maxSize)
	bodyBytes, err := io.ReadAll(limitedReader)
	if err != nil {
		return ""
	}

	// 截断读取时，把剩余部分拼回去，后续处理器仍能读到完整 body
	c.Request().Body = io.NopCloser(io.MultiReader(bytes.NewReader(bodyBytes), c.Request().Body))

	body := string(bodyBytes)
	if int64(len(bodyBytes)) >= maxSize {
		body += "... (truncated)"
	}
	return body
}
