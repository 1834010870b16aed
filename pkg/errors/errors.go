// Package errors turns service errors into API responses.
// Package errors 将业务错误转换为统一的 API 响应
package errors

import (
	"context"
	"errors"

	"github.com/haierkeys/library-backup-service/pkg/app"
	"github.com/haierkeys/library-backup-service/pkg/code"

	"github.com/gin-gonic/gin"
)

// AsCode finds a *code.Code in err's chain. Context deadline maps to
// ErrorRequestTimeout, anything else to ErrorServerInternal without details.
// AsCode 从错误链中提取 *code.Code，未知错误返回内部错误（不带原始信息）
func AsCode(err error) *code.Code {
	if err == nil {
		return code.Success
	}
	var codeErr *code.Code
	if errors.As(err, &codeErr) {
		return codeErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return code.ErrorRequestTimeout
	}
	return code.ErrorServerInternal
}

// IsCode reports whether err carries c
func IsCode(err error, c *code.Code) bool {
	return errors.Is(err, c)
}

// ErrorResponse writes err as the response envelope with the HTTP status of its code.
// ErrorResponse 统一错误响应，HTTP 状态码取自错误码
func ErrorResponse(c *gin.Context, err error) {
	_ = c.Error(err)
	app.NewResponse(c).ToResponse(AsCode(err))
}
