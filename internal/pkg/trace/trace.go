// File: internal/pkg/trace/trace.go
package trace

import (
	"context"
	"strings"

	"critter-coliseum/internal/pkg/ctxkey"

	"github.com/google/uuid"
)

// WithTraceID 在 context 中设置 trace ID
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return ctxkey.WithValue(ctx, ctxkey.TraceID, traceID)
}

// GetTraceID 从 context 中获取 trace ID
func GetTraceID(ctx context.Context) string {
	return ctxkey.GetString(ctx, ctxkey.TraceID)
}

// GenerateTraceID 生成新的 trace ID（32 位十六进制，与 W3C trace-id 等长）
func GenerateTraceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Ensure 保证 context 中带有 trace ID。
// 战斗任务跨服务流转时沿用消息里携带的 ID，缺失时生成新的。
func Ensure(ctx context.Context, carried string) (context.Context, string) {
	if carried == "" {
		carried = GetTraceID(ctx)
	}
	if carried == "" {
		carried = GenerateTraceID()
	}
	return WithTraceID(ctx, carried), carried
}

// ExtractFromHeader 从 HTTP 头部提取 trace ID
// 支持 X-Trace-Id、X-Request-Id 与 W3C Traceparent
func ExtractFromHeader(headers map[string][]string) string {
	if traceID := getHeader(headers, "X-Trace-Id"); traceID != "" {
		return traceID
	}
	if requestID := getHeader(headers, "X-Request-Id"); requestID != "" {
		return requestID
	}
	if traceparent := getHeader(headers, "Traceparent"); traceparent != "" {
		if traceID := parseTraceparent(traceparent); traceID != "" {
			return traceID
		}
	}
	return GenerateTraceID()
}

func getHeader(headers map[string][]string, key string) string {
	for k, values := range headers {
		if strings.EqualFold(k, key) && len(values) > 0 {
			return values[0]
		}
	}
	return ""
}

// parseTraceparent 解析 W3C Traceparent 头部
// 格式: "00-<trace-id>-<parent-id>-<flags>"
func parseTraceparent(traceparent string) string {
	parts := strings.Split(traceparent, "-")
	if len(parts) != 4 || len(parts[1]) != 32 {
		return ""
	}
	return parts[1]
}
