package api_router

import (
	"github.com/haierkeys/library-backup-service/internal/app"
	"github.com/haierkeys/library-backup-service/internal/dto"
	"github.com/haierkeys/library-backup-service/internal/quickshare"
	pkgapp "github.com/haierkeys/library-backup-service/pkg/app"
	"github.com/haierkeys/library-backup-service/pkg/code"
	apperrors "github.com/haierkeys/library-backup-service/pkg/errors"

	"github.com/gin-gonic/gin"
)

// ShareHandler share API router handler
// ShareHandler 共享资料库 API 路由处理器
type ShareHandler struct {
	*Handler
}

// NewShareHandler creates ShareHandler instance
func NewShareHandler(a *app.App) *ShareHandler {
	return &ShareHandler{Handler: NewHandler(a)}
}

// Status reports rclone availability
// @Summary Share status
// @Tags Share
// @Produce json
// @Success 200 {object} pkgapp.Res{data=remote.Status} "Success"
// @Router /api/share/status [get]
func (h *ShareHandler) Status(c *gin.Context) {
	pkgapp.NewResponse(c).ToResponse(code.Success.WithData(h.App.ShareService.Status(c.Request.Context())))
}

// Libraries lists the shared libraries and their versions
// @Summary Shared libraries
// @Tags Share
// @Produce json
// @Success 200 {object} pkgapp.Res{data=[]dto.ShareLibraryDTO} "Success"
// @Router /api/share/libraries [get]
func (h *ShareHandler) Libraries(c *gin.Context) {
	libs, err := h.App.ShareService.Libraries(c.Request.Context())
	if err != nil {
		h.logError(c.Request.Context(), "ShareHandler.Libraries", err)
		apperrors.ErrorResponse(c, err)
		return
	}
	pkgapp.NewResponse(c).ToResponseList(code.Success, libs, len(libs))
}

// Code generates a quick-share code
// @Summary New quick-share code
// @Tags Share
// @Produce json
// @Success 200 {object} pkgapp.Res{data=dto.ShareCodeDTO} "Success"
// @Router /api/share/code [get]
func (h *ShareHandler) Code(c *gin.Context) {
	res := h.App.ShareService.GenerateCode()
	if res.Degraded {
		pkgapp.NewResponse(c).ToResponse(code.SuccessDegraded.WithData(res))
		return
	}
	pkgapp.NewResponse(c).ToResponse(code.Success.WithData(res))
}

// Init prepares the shared remote
// @Summary Initialize the shared remote
// @Tags Share
// @Produce json
// @Success 200 {object} pkgapp.Res{data=remote.CommandResult} "Success"
// @Router /api/share/init [post]
func (h *ShareHandler) Init(c *gin.Context) {
	res, err := h.App.ShareService.Init(c.Request.Context())
	if err != nil {
		h.logError(c.Request.Context(), "ShareHandler.Init", err)
		apperrors.ErrorResponse(c, err)
		return
	}
	pkgapp.NewResponse(c).ToResponse(code.Success.WithData(res))
}

// Publish uploads a library version, or sends the local library under a quick-share code
// @Summary Publish library
// @Tags Share
// @Accept json
// @Produce json
// @Param params body dto.SharePublishRequest true "Publish Parameters"
// @Success 200 {object} pkgapp.Res "Success"
// @Router /api/share/publish [post]
func (h *ShareHandler) Publish(c *gin.Context) {
	params := &dto.SharePublishRequest{}
	if !bind(c, params) {
		return
	}
	ctx := c.Request.Context()

	if params.Code != "" {
		res, err := h.App.ShareService.Send(ctx, params.Code, quickshare.Scope(params.Scope), params.Collections)
		if err != nil {
			h.logError(ctx, "ShareHandler.Publish", err)
			apperrors.ErrorResponse(c, err)
			return
		}
		pkgapp.NewResponse(c).ToResponse(code.Success.WithData(res))
		return
	}

	if params.Name == "" || params.Source == "" {
		pkgapp.NewResponse(c).ToResponse(code.ErrorInvalidParams.WithDetails("either code, or name and source are required"))
		return
	}
	res, err := h.App.ShareService.Publish(ctx, params.Name, params.Source, params.Version, params.Note)
	if err != nil {
		h.logError(ctx, "ShareHandler.Publish", err)
		apperrors.ErrorResponse(c, err)
		return
	}
	pkgapp.NewResponse(c).ToResponse(code.Success.WithData(res))
}

// Pull downloads a library version, or receives a quick share and imports it
// @Summary Pull library
// @Tags Share
// @Accept json
// @Produce json
// @Param params body dto.SharePullRequest true "Pull Parameters"
// @Success 200 {object} pkgapp.Res "Success"
// @Router /api/share/pull [post]
func (h *ShareHandler) Pull(c *gin.Context) {
	params := &dto.SharePullRequest{}
	if !bind(c, params) {
		return
	}
	ctx := c.Request.Context()

	if params.Code != "" {
		res, err := h.App.ShareService.Receive(ctx, params.Code, params.Target, quickshare.Scope(params.Scope), params.Collections)
		if err != nil {
			h.logError(ctx, "ShareHandler.Pull", err)
			apperrors.ErrorResponse(c, err)
			return
		}
		pkgapp.NewResponse(c).ToResponse(code.Success.WithData(res))
		return
	}

	if params.Name == "" {
		pkgapp.NewResponse(c).ToResponse(code.ErrorInvalidParams.WithDetails("either code or name is required"))
		return
	}
	res, err := h.App.ShareService.Pull(ctx, params.Name, params.Version, params.Target)
	if err != nil {
		h.logError(ctx, "ShareHandler.Pull", err)
		apperrors.ErrorResponse(c, err)
		return
	}
	pkgapp.NewResponse(c).ToResponse(code.Success.WithData(res))
}

// Sync pulls the latest version of every shared library
// @Summary Sync all libraries
// @Tags Share
// @Accept json
// @Produce json
// @Param params body dto.ShareSyncRequest false "Sync Parameters"
// @Success 200 {object} pkgapp.Res{data=remote.SyncResult} "Success"
// @Router /api/share/sync [post]
func (h *ShareHandler) Sync(c *gin.Context) {
	params := &dto.ShareSyncRequest{}
	if c.Request.ContentLength != 0 && !bind(c, params) {
		return
	}
	res, err := h.App.ShareService.Sync(c.Request.Context(), params.TargetRoot)
	if err != nil {
		h.logError(c.Request.Context(), "ShareHandler.Sync", err)
		apperrors.ErrorResponse(c, err)
		return
	}
	pkgapp.NewResponse(c).ToResponse(code.Success.WithData(res))
}
