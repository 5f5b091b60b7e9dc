// File: internal/pkg/xerrors/codes.go
package xerrors

import "fmt"

// ErrorCode 错误码类型（类型安全）
type ErrorCode int

// IsValid 检查错误码是否在预定义列表中
func (c ErrorCode) IsValid() bool {
	_, exists := codeMessages[c]
	return exists
}

// String 返回错误码的字符串表示
func (c ErrorCode) String() string {
	if msg, ok := codeMessages[c]; ok {
		return fmt.Sprintf("%d (%s)", c, msg)
	}
	return fmt.Sprintf("%d (未定义的错误码)", c)
}

// Message 返回错误码对应的消息
func (c ErrorCode) Message() string {
	if msg, ok := codeMessages[c]; ok {
		return msg
	}
	return "未知错误"
}

// -----------------------------------------------------------------------------
// 业务错误码统一定义
// 1xxxxx 通用 / 6xxxxx 存储不变量 / 7xxxxx 外部依赖 / 8xxxxx 战斗业务
// -----------------------------------------------------------------------------
const (
	// 1xxxxx: 通用错误码
	CodeSuccess          ErrorCode = 100000 // 操作成功
	CodeInternalError    ErrorCode = 100001 // 内部服务错误
	CodeInvalidParams    ErrorCode = 100002 // 参数错误
	CodeInvalidRequest   ErrorCode = 100003 // 请求格式错误
	CodeResourceNotFound ErrorCode = 100404 // 资源不存在

	// 6xxxxx: 存储状态
	CodeUnexpectedStoreState ErrorCode = 600002 // 存储状态违反不变量

	// 7xxxxx: 外部服务错误码
	CodeDatabaseError     ErrorCode = 700003 // 数据库错误
	CodeCacheError        ErrorCode = 700004 // 缓存服务错误
	CodeMessageQueueError ErrorCode = 700005 // 消息队列错误

	// 8xxxxx: 战斗业务错误码
	CodeCritterNotFound         ErrorCode = 800001 // 斗兽不存在
	CodeInvalidCritterReference ErrorCode = 800002 // 斗兽引用无效
	CodeCritterBusy             ErrorCode = 800003 // 斗兽已在战斗中
	CodeBattleNotFound          ErrorCode = 810001 // 战斗不存在
	CodeUnknownBattleKind       ErrorCode = 810002 // 未知的战斗类型
	CodeMalformedBattleJob      ErrorCode = 810003 // 战斗任务格式错误
)

// -----------------------------------------------------------------------------
// HTTP 状态码常量定义
// -----------------------------------------------------------------------------
const (
	HTTPStatusOK                  = 200
	HTTPStatusBadRequest          = 400
	HTTPStatusNotFound            = 404
	HTTPStatusInternalServerError = 500
)

// -----------------------------------------------------------------------------
// 错误消息映射
// -----------------------------------------------------------------------------
var codeMessages = map[ErrorCode]string{
	CodeSuccess:          "操作成功",
	CodeInternalError:    "内部服务错误",
	CodeInvalidParams:    "参数错误",
	CodeInvalidRequest:   "请求格式错误",
	CodeResourceNotFound: "资源不存在",

	CodeUnexpectedStoreState: "存储状态异常",

	CodeDatabaseError:     "数据库错误",
	CodeCacheError:        "缓存服务错误",
	CodeMessageQueueError: "消息队列错误",

	CodeCritterNotFound:         "斗兽不存在",
	CodeInvalidCritterReference: "斗兽 ID 无效",
	CodeCritterBusy:             "斗兽已在战斗中",
	CodeBattleNotFound:          "战斗不存在",
	CodeUnknownBattleKind:       "未知的战斗类型",
	CodeMalformedBattleJob:      "战斗任务格式错误",
}

// GetHTTPStatus 根据业务错误码获取HTTP状态码
func GetHTTPStatus(code ErrorCode) int {
	switch code {
	case CodeSuccess:
		return HTTPStatusOK
	case CodeInvalidParams, CodeInvalidRequest, CodeInvalidCritterReference, CodeCritterBusy:
		return HTTPStatusBadRequest
	case CodeResourceNotFound, CodeCritterNotFound, CodeBattleNotFound:
		return HTTPStatusNotFound
	default:
		// 存储与外部依赖故障对调用方统一表现为 500
		return HTTPStatusInternalServerError
	}
}

// IsUserError 调用方可自行修正的错误（4xx）
func IsUserError(code ErrorCode) bool {
	status := GetHTTPStatus(code)
	return status >= 400 && status < 500
}

// getCategoryByCode 根据错误码获取分类
func getCategoryByCode(code ErrorCode) string {
	switch {
	case code >= 100000 && code < 200000:
		return "system"
	case code >= 600000 && code < 700000:
		return "store"
	case code >= 700000 && code < 800000:
		return "external"
	case code >= 800000 && code < 900000:
		return "battle"
	default:
		return "unknown"
	}
}

// getLevelByCode 根据错误码获取级别
func getLevelByCode(code ErrorCode) ErrorLevel {
	switch {
	case code == CodeSuccess:
		return LevelInfo
	case IsUserError(code):
		return LevelWarn
	case code == CodeUnexpectedStoreState, code >= 700000 && code < 800000:
		return LevelCritical
	default:
		return LevelError
	}
}

// isRetryableByCode 根据错误码判断是否可重试
func isRetryableByCode(code ErrorCode) bool {
	switch code {
	case CodeInternalError, CodeDatabaseError, CodeCacheError, CodeMessageQueueError:
		return true
	default:
		return false
	}
}
