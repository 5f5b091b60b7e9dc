package response

import (
	"context"
	"encoding/json"
	"net/http"

	"critter-coliseum/internal/pkg/ctxkey"
	"critter-coliseum/internal/pkg/log"
	"critter-coliseum/internal/pkg/metrics"
	"critter-coliseum/internal/pkg/trace"
	"critter-coliseum/internal/pkg/xerrors"
)

// Writer 统一的响应写入接口
type Writer interface {
	WriteSuccess(ctx context.Context, w http.ResponseWriter, data any) error
	WriteError(ctx context.Context, w http.ResponseWriter, err error) error
	WriteJSON(ctx context.Context, w http.ResponseWriter, data any, statusCode int) error
}

// ResponseHandler Writer 的默认实现
type ResponseHandler struct {
	logger      log.Logger
	environment string
	errMetrics  *metrics.ErrorMetrics
}

// NewResponseHandler 创建响应处理器。仅 development 环境在响应中返回错误详情
func NewResponseHandler(logger log.Logger, environment string) *ResponseHandler {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &ResponseHandler{
		logger:      logger,
		environment: environment,
		errMetrics:  metrics.DefaultErrorMetrics,
	}
}

// DefaultResponseHandler 使用全局 logger 的生产环境处理器
func DefaultResponseHandler() *ResponseHandler {
	return NewResponseHandler(log.GetLogger(), "production")
}

// WithErrorMetrics 替换错误指标收集器（测试用）
func (h *ResponseHandler) WithErrorMetrics(m *metrics.ErrorMetrics) *ResponseHandler {
	h.errMetrics = m
	return h
}

func (h *ResponseHandler) WriteSuccess(ctx context.Context, w http.ResponseWriter, data any) error {
	resp := Success(&data)
	resp.TraceId = trace.GetTraceID(ctx)
	return JSON(w, http.StatusOK, resp)
}

func (h *ResponseHandler) WriteError(ctx context.Context, w http.ResponseWriter, err error) error {
	appErr := xerrors.Wrap(err, xerrors.CodeInternalError, "系统内部错误")
	if appErr == nil {
		appErr = xerrors.FromCode(xerrors.CodeInternalError)
	}
	status := xerrors.GetHTTPStatus(appErr.Code)

	if status >= http.StatusInternalServerError {
		log.LogAppError(ctx, h.logger, "请求处理失败", appErr)
	} else {
		h.logger.WarnContext(ctx, "请求被拒绝",
			log.Int("code", int(appErr.Code)),
			log.String("message", appErr.Message),
		)
	}
	if h.errMetrics != nil {
		h.errMetrics.RecordError(appErr, ctxkey.GetString(ctx, ctxkey.HTTPMethod), "")
	}

	message := appErr.Message
	detail := ""
	if h.environment == "development" {
		detail = appErr.Error()
	} else if status >= http.StatusInternalServerError {
		// 生产环境不暴露内部错误信息
		message = appErr.Code.Message()
	}

	resp := Error[EmptyData](int(appErr.Code), message, detail)
	resp.TraceId = trace.GetTraceID(ctx)
	return JSON(w, status, resp)
}

// WriteJSON 直接返回 JSON（不包装 ResponseResult）
func (h *ResponseHandler) WriteJSON(ctx context.Context, w http.ResponseWriter, data any, statusCode int) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}
