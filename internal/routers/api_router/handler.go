// Package api_router 提供 HTTP API 路由处理器
package api_router

import (
	"context"

	"github.com/haierkeys/library-backup-service/internal/app"
	"github.com/haierkeys/library-backup-service/internal/middleware"
	pkgapp "github.com/haierkeys/library-backup-service/pkg/app"
	"github.com/haierkeys/library-backup-service/pkg/code"
	"github.com/haierkeys/library-backup-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler 基础 Handler 结构体，封装 App Container
// 所有 API Handler 都应该嵌入此结构体以获得依赖注入能力
type Handler struct {
	App *app.App
}

// NewHandler 创建基础 Handler 实例
func NewHandler(a *app.App) *Handler {
	return &Handler{App: a}
}

// logError 记录带 Trace ID 的错误日志
func (h *Handler) logError(ctx context.Context, method string, err error) {
	h.App.Logger().Error(method,
		zap.Error(err),
		zap.String(logger.FieldTraceID, middleware.GetTraceID(ctx)),
	)
}

// bind 绑定并校验参数，失败时输出 InvalidParams
func bind(c *gin.Context, params any) bool {
	if valid, errs := pkgapp.BindAndValid(c, params); !valid {
		pkgapp.NewResponse(c).ToResponse(code.ErrorInvalidParams.WithDetails(errs.Errors()...).WithData(errs.Maps()))
		return false
	}
	return true
}

// configID 读取 :id 路径参数
func configID(c *gin.Context) (int64, bool) {
	id, ok := pkgapp.ParamInt64(c, "id")
	if !ok {
		pkgapp.NewResponse(c).ToResponse(code.ErrorInvalidParams.WithDetails("id must be a positive integer"))
	}
	return id, ok
}
