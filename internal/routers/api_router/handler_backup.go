package api_router

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/haierkeys/library-backup-service/internal/app"
	"github.com/haierkeys/library-backup-service/internal/dto"
	pkgapp "github.com/haierkeys/library-backup-service/pkg/app"
	"github.com/haierkeys/library-backup-service/pkg/code"
	apperrors "github.com/haierkeys/library-backup-service/pkg/errors"

	"github.com/gin-gonic/gin"
)

// BackupHandler backup API router handler
// BackupHandler 备份 API 路由处理器
type BackupHandler struct {
	*Handler
}

// NewBackupHandler creates BackupHandler instance
func NewBackupHandler(a *app.App) *BackupHandler {
	return &BackupHandler{
		Handler: NewHandler(a),
	}
}

// Status lists configs with tool availability
// @Summary Backup overview
// @Description Lists backup configs and probes restic/rclone. Degrades to a plain list after repeated probe failures.
// @Tags Backup
// @Produce json
// @Success 200 {object} pkgapp.Res{data=dto.BackupStatusDTO} "Success"
// @Router /api/backup/status [get]
func (h *BackupHandler) Status(c *gin.Context) {
	response := pkgapp.NewResponse(c)

	status, err := h.App.BackupService.Status(c.Request.Context())
	if err != nil {
		h.logError(c.Request.Context(), "BackupHandler.Status", err)
		apperrors.ErrorResponse(c, err)
		return
	}
	if status.Degraded {
		response.ToResponse(code.SuccessDegraded.WithData(status))
		return
	}
	response.ToResponse(code.Success.WithData(status))
}

// ListConfigs gets backup configurations
// @Summary Get backup configurations
// @Tags Backup
// @Produce json
// @Success 200 {object} pkgapp.Res{data=[]dto.BackupConfigDTO} "Success"
// @Router /api/backup/configs [get]
func (h *BackupHandler) ListConfigs(c *gin.Context) {
	response := pkgapp.NewResponse(c)

	configs, err := h.App.BackupService.ListConfigs(c.Request.Context())
	if err != nil {
		h.logError(c.Request.Context(), "BackupHandler.ListConfigs", err)
		apperrors.ErrorResponse(c, err)
		return
	}

	response.ToResponse(code.Success.WithData(configs))
}

// CreateConfig creates a backup configuration
// @Summary Create backup configuration
// @Tags Backup
// @Accept json
// @Produce json
// @Param params body dto.BackupConfigCreateRequest true "Backup Parameters"
// @Success 200 {object} pkgapp.Res{data=dto.BackupConfigDTO} "Success"
// @Failure 400 {object} pkgapp.Res "Invalid Params"
// @Router /api/backup/configs [post]
func (h *BackupHandler) CreateConfig(c *gin.Context) {
	params := &dto.BackupConfigCreateRequest{}
	if !bind(c, params) {
		return
	}

	config, err := h.App.BackupService.CreateConfig(c.Request.Context(), params)
	if err != nil {
		h.logError(c.Request.Context(), "BackupHandler.CreateConfig", err)
		apperrors.ErrorResponse(c, err)
		return
	}

	pkgapp.NewResponse(c).ToResponse(code.SuccessCreate.WithData(config))
}

// UpdateConfig updates backup configuration
// @Summary Update backup configuration
// @Description Partial update. Omitted params keep stored credentials.
// @Tags Backup
// @Accept json
// @Produce json
// @Param id path int true "Config ID"
// @Param params body dto.BackupConfigUpdateRequest true "Backup Parameters"
// @Success 200 {object} pkgapp.Res{data=dto.BackupConfigDTO} "Success"
// @Failure 400 {object} pkgapp.Res "Invalid Params"
// @Failure 404 {object} pkgapp.Res "Not Found"
// @Router /api/backup/configs/{id} [patch]
func (h *BackupHandler) UpdateConfig(c *gin.Context) {
	id, ok := configID(c)
	if !ok {
		return
	}
	params := &dto.BackupConfigUpdateRequest{}
	if !bind(c, params) {
		return
	}

	config, err := h.App.BackupService.UpdateConfig(c.Request.Context(), id, params)
	if err != nil {
		h.logError(c.Request.Context(), "BackupHandler.UpdateConfig", err)
		apperrors.ErrorResponse(c, err)
		return
	}

	pkgapp.NewResponse(c).ToResponse(code.SuccessUpdate.WithData(config))
}

// DeleteConfig deletes backup configuration
// @Summary Delete backup configuration
// @Description A running backup of the config is aborted first. Logs are removed with the config.
// @Tags Backup
// @Produce json
// @Param id path int true "Config ID"
// @Success 200 {object} pkgapp.Res "Success"
// @Failure 404 {object} pkgapp.Res "Not Found"
// @Router /api/backup/configs/{id} [delete]
func (h *BackupHandler) DeleteConfig(c *gin.Context) {
	id, ok := configID(c)
	if !ok {
		return
	}

	if err := h.App.BackupService.DeleteConfig(c.Request.Context(), id); err != nil {
		h.logError(c.Request.Context(), "BackupHandler.DeleteConfig", err)
		apperrors.ErrorResponse(c, err)
		return
	}

	pkgapp.NewResponse(c).ToResponse(code.SuccessDelete)
}

// Run starts a backup in the background
// @Summary Run backup now
// @Tags Backup
// @Produce json
// @Param id path int true "Config ID"
// @Success 200 {object} pkgapp.Res{data=dto.BackupLogDTO} "Running log"
// @Failure 409 {object} pkgapp.Res "Already running"
// @Router /api/backup/configs/{id}/run [post]
func (h *BackupHandler) Run(c *gin.Context) {
	id, ok := configID(c)
	if !ok {
		return
	}

	log, err := h.App.BackupService.RunBackup(c.Request.Context(), id)
	if err != nil {
		h.logError(c.Request.Context(), "BackupHandler.Run", err)
		apperrors.ErrorResponse(c, err)
		return
	}

	pkgapp.NewResponse(c).ToResponse(code.Success.WithData(log))
}

// Test probes the destination of a config
// @Summary Test destination connection
// @Tags Backup
// @Produce json
// @Param id path int true "Config ID"
// @Success 200 {object} pkgapp.Res{data=dto.TestConnectionDTO} "Probe result"
// @Router /api/backup/configs/{id}/test [post]
func (h *BackupHandler) Test(c *gin.Context) {
	id, ok := configID(c)
	if !ok {
		return
	}

	res, err := h.App.BackupService.TestConnection(c.Request.Context(), id)
	if err != nil {
		h.logError(c.Request.Context(), "BackupHandler.Test", err)
		apperrors.ErrorResponse(c, err)
		return
	}

	pkgapp.NewResponse(c).ToResponse(code.Success.WithData(res))
}

// RunAll starts every enabled config
// @Summary Run all enabled backups
// @Tags Backup
// @Produce json
// @Success 200 {object} pkgapp.Res{data=dto.RunAllDTO} "Started, skipped and failed configs"
// @Router /api/backup/run-all [post]
func (h *BackupHandler) RunAll(c *gin.Context) {
	res, err := h.App.BackupService.RunAll(c.Request.Context())
	if err != nil {
		h.logError(c.Request.Context(), "BackupHandler.RunAll", err)
		apperrors.ErrorResponse(c, err)
		return
	}

	pkgapp.NewResponse(c).ToResponse(code.Success.WithData(res))
}

// Logs lists the newest logs of a config
// @Summary Backup logs
// @Tags Backup
// @Produce json
// @Param id path int true "Config ID"
// @Param limit query int false "Max logs, default 20, at most 200"
// @Success 200 {object} pkgapp.Res{data=[]dto.BackupLogDTO} "Success"
// @Router /api/backup/configs/{id}/logs [get]
func (h *BackupHandler) Logs(c *gin.Context) {
	id, ok := configID(c)
	if !ok {
		return
	}
	params := &dto.BackupLogListRequest{}
	if !bind(c, params) {
		return
	}

	logs, err := h.App.BackupService.ListLogs(c.Request.Context(), id, pkgapp.ClampLimit(params.Limit, pkgapp.LogLimit))
	if err != nil {
		h.logError(c.Request.Context(), "BackupHandler.Logs", err)
		apperrors.ErrorResponse(c, err)
		return
	}

	pkgapp.NewResponse(c).ToResponseList(code.Success, logs, len(logs))
}

// RecoveryKey returns what is needed to restore without this service
// @Summary Recovery key
// @Description Available once the config has a successful backup.
// @Tags Backup
// @Produce json
// @Param id path int true "Config ID"
// @Success 200 {object} pkgapp.Res{data=domain.RecoveryKey} "Success"
// @Failure 404 {object} pkgapp.Res "No successful backup yet"
// @Router /api/backup/configs/{id}/recovery-key [get]
func (h *BackupHandler) RecoveryKey(c *gin.Context) {
	id, ok := configID(c)
	if !ok {
		return
	}

	key, err := h.App.BackupService.RecoveryKey(c.Request.Context(), id)
	if err != nil {
		h.logError(c.Request.Context(), "BackupHandler.RecoveryKey", err)
		apperrors.ErrorResponse(c, err)
		return
	}

	pkgapp.NewResponse(c).ToResponse(code.Success.WithData(key))
}

// AuthURL starts a Google Drive authorization
// @Summary Google Drive consent URL
// @Description Without configId a disabled "Google Drive" config is created first.
// @Tags Backup
// @Produce json
// @Param configId query int false "gdrive config ID"
// @Success 200 {object} pkgapp.Res{data=dto.AuthURLDTO} "Success"
// @Failure 503 {object} pkgapp.Res "OAuth client not configured"
// @Router /api/backup/gdrive/auth-url [get]
func (h *BackupHandler) AuthURL(c *gin.Context) {
	params := &dto.BackupAuthURLRequest{}
	if !bind(c, params) {
		return
	}
	if !h.App.OAuth.Configured() {
		apperrors.ErrorResponse(c, code.ErrorOAuthNotConfigured)
		return
	}

	id, err := h.App.BackupService.EnsureGDriveConfig(c.Request.Context(), params.ConfigID)
	if err != nil {
		h.logError(c.Request.Context(), "BackupHandler.AuthURL", err)
		apperrors.ErrorResponse(c, err)
		return
	}

	authURL, pending, err := h.App.OAuth.AuthURL(id)
	if err != nil {
		h.logError(c.Request.Context(), "BackupHandler.AuthURL", err)
		apperrors.ErrorResponse(c, err)
		return
	}

	pkgapp.NewResponse(c).ToResponse(code.Success.WithData(dto.AuthURLDTO{
		URL:       authURL,
		State:     pending.State,
		ConfigID:  id,
		ExpiresAt: pending.ExpiresAt,
	}))
}

// Callback finishes the authorization and redirects the browser to the frontend
// @Summary Google Drive OAuth callback
// @Tags Backup
// @Param code query string false "Authorization code"
// @Param state query string true "State"
// @Param error query string false "Provider error"
// @Success 302 "Redirect with backup_gdrive_linked=1 or backup_gdrive_linked=0&error=..."
// @Router /api/backup/gdrive/callback [get]
func (h *BackupHandler) Callback(c *gin.Context) {
	params := &dto.BackupCallbackRequest{}
	_ = c.ShouldBindQuery(params)

	ctx := c.Request.Context()
	var err error
	switch {
	case params.Error != "":
		_, err = h.App.OAuth.Deny(ctx, params.State, params.Error)
	case params.Code == "":
		_, err = h.App.OAuth.Deny(ctx, params.State, "missing authorization code")
	default:
		_, err = h.App.OAuth.HandleCallback(ctx, params.Code, params.State)
	}

	q := url.Values{}
	if err != nil {
		h.logError(ctx, "BackupHandler.Callback", err)
		q.Set("backup_gdrive_linked", "0")
		cerr := apperrors.AsCode(err)
		msg := pkgapp.Message(c, cerr)
		if cerr.HaveDetails() {
			msg += ": " + strings.Join(cerr.Details(), "; ")
		}
		q.Set("error", msg)
	} else {
		q.Set("backup_gdrive_linked", "1")
	}
	c.Redirect(http.StatusFound, withQuery(h.App.Config().OAuth.FrontendRedirect, q))
}

// withQuery appends q to target, keeping any query it already has
func withQuery(target string, q url.Values) string {
	if target == "" {
		target = "/"
	}
	u, err := url.Parse(target)
	if err != nil {
		return "/?" + q.Encode()
	}
	merged := u.Query()
	for k, vs := range q {
		merged[k] = vs
	}
	u.RawQuery = merged.Encode()
	return u.String()
}
