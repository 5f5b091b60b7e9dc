package validator

import (
	"critter-coliseum/internal/pkg/xerrors"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// CustomValidator wraps go-playground validator for Echo
type CustomValidator struct {
	validator *validator.Validate
}

// Validate implements echo.Validator interface.
// 校验失败时返回 CodeInvalidParams 的 AppError，消息为第一条中文翻译
func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		details := TranslateValidationErrors(err)
		appErr := xerrors.NewValidationError(details[0].Field, details[0].Message)
		return appErr.WithMetadata("validation_errors", details)
	}
	return nil
}

// New creates a new custom validator instance
func New() echo.Validator {
	return &CustomValidator{
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}
