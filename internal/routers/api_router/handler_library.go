package api_router

import (
	"net/http"

	"github.com/haierkeys/library-backup-service/internal/app"
	"github.com/haierkeys/library-backup-service/internal/dto"
	pkgapp "github.com/haierkeys/library-backup-service/pkg/app"
	"github.com/haierkeys/library-backup-service/pkg/code"
	apperrors "github.com/haierkeys/library-backup-service/pkg/errors"
	"github.com/haierkeys/library-backup-service/pkg/timex"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LibraryHandler library import/export API router handler
// LibraryHandler 资料库导入导出处理器
type LibraryHandler struct {
	*Handler
}

// NewLibraryHandler creates LibraryHandler instance
func NewLibraryHandler(a *app.App) *LibraryHandler {
	return &LibraryHandler{Handler: NewHandler(a)}
}

// Export copies the library to a folder
// @Summary Export library
// @Tags Library
// @Accept json
// @Produce json
// @Param params body dto.LibraryExportRequest false "Target folder, default under the export root"
// @Success 200 {object} pkgapp.Res{data=library.ExportResult} "Success"
// @Router /api/library/export [post]
func (h *LibraryHandler) Export(c *gin.Context) {
	params := &dto.LibraryExportRequest{}
	if c.Request.ContentLength != 0 && !bind(c, params) {
		return
	}

	res, err := h.App.LibraryService.Export(c.Request.Context(), params.TargetPath)
	if err != nil {
		h.logError(c.Request.Context(), "LibraryHandler.Export", err)
		apperrors.ErrorResponse(c, err)
		return
	}

	pkgapp.NewResponse(c).ToResponse(code.Success.WithData(res))
}

// Import loads an exported library folder
// @Summary Import library
// @Description mode=replace swaps the named collections, mode=source adds the folder as a source.
// @Tags Library
// @Accept json
// @Produce json
// @Param params body dto.LibraryImportRequest true "Import Parameters"
// @Success 200 {object} pkgapp.Res{data=library.ImportResult} "Success"
// @Failure 400 {object} pkgapp.Res "Path not readable"
// @Router /api/library/import [post]
func (h *LibraryHandler) Import(c *gin.Context) {
	params := &dto.LibraryImportRequest{}
	if !bind(c, params) {
		return
	}

	res, err := h.App.LibraryService.Import(c.Request.Context(), params)
	if err != nil {
		h.logError(c.Request.Context(), "LibraryHandler.Import", err)
		apperrors.ErrorResponse(c, err)
		return
	}

	pkgapp.NewResponse(c).ToResponse(code.Success.WithData(res))
}

// Download streams the library as a zip
// @Summary Download library zip
// @Tags Backup
// @Produce application/zip
// @Param includeAudio query bool false "Include audio files"
// @Success 200 {file} binary "Zip archive"
// @Router /api/backup/download [get]
func (h *LibraryHandler) Download(c *gin.Context) {
	params := &dto.BackupDownloadRequest{}
	if !bind(c, params) {
		return
	}

	name := "library-" + timex.VersionLabel(timex.System.Now()) + ".zip"
	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Status(http.StatusOK)

	n, err := h.App.LibraryService.Archive(c.Request.Context(), c.Writer, params.IncludeAudio)
	if err != nil {
		if !c.Writer.Written() {
			c.Header("Content-Disposition", "")
			c.Header("Content-Type", "")
			apperrors.ErrorResponse(c, err)
			return
		}
		// headers are gone, the client sees a truncated archive
		h.App.Logger().Warn("library download aborted", zap.Int("files", n), zap.Error(err))
		_ = c.Error(err)
		c.Abort()
	}
}
