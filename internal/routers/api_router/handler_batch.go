package api_router

import (
	"github.com/haierkeys/library-backup-service/internal/app"
	"github.com/haierkeys/library-backup-service/internal/batch"
	"github.com/haierkeys/library-backup-service/internal/dto"
	pkgapp "github.com/haierkeys/library-backup-service/pkg/app"
	"github.com/haierkeys/library-backup-service/pkg/code"
	apperrors "github.com/haierkeys/library-backup-service/pkg/errors"

	"github.com/gin-gonic/gin"
)

// BatchHandler batch re-analysis API router handler
// BatchHandler 批量重新分析处理器
type BatchHandler struct {
	*Handler
}

// NewBatchHandler creates BatchHandler instance
func NewBatchHandler(a *app.App) *BatchHandler {
	return &BatchHandler{Handler: NewHandler(a)}
}

func (h *BatchHandler) manager(c *gin.Context) (*batch.Manager, bool) {
	if h.App.Batch == nil {
		apperrors.ErrorResponse(c, code.ErrorBatchDisabled)
		return nil, false
	}
	return h.App.Batch, true
}

// Status returns the current job. The completion notice is included once.
// @Summary Batch job status
// @Tags Batch
// @Produce json
// @Success 200 {object} pkgapp.Res{data=batch.Job} "Success"
// @Router /api/batch-reanalyze/status [get]
func (h *BatchHandler) Status(c *gin.Context) {
	m, ok := h.manager(c)
	if !ok {
		return
	}
	pkgapp.NewResponse(c).ToResponse(code.Success.WithData(m.Status()))
}

// Start launches a job
// @Summary Start batch re-analysis
// @Tags Batch
// @Accept json
// @Produce json
// @Param params body dto.BatchStartRequest false "Start Parameters"
// @Success 200 {object} pkgapp.Res{data=batch.Job} "Success"
// @Failure 409 {object} pkgapp.Res "A job is already running"
// @Router /api/batch-reanalyze/start [post]
func (h *BatchHandler) Start(c *gin.Context) {
	m, ok := h.manager(c)
	if !ok {
		return
	}
	params := &dto.BatchStartRequest{}
	if c.Request.ContentLength != 0 && !bind(c, params) {
		return
	}

	job, err := m.Start(c.Request.Context(), batch.StartRequest{
		ItemIDs:             params.ItemIDs,
		Profile:             params.Profile,
		Concurrency:         params.Concurrency,
		IncludeFilenameTags: params.IncludeFilenameTags,
		AllowAITagging:      params.AllowAITagging,
	})
	if err != nil {
		h.logError(c.Request.Context(), "BatchHandler.Start", err)
		apperrors.ErrorResponse(c, err)
		return
	}
	pkgapp.NewResponse(c).ToResponse(code.Success.WithData(job))
}

// Cancel asks the running job to stop
// @Summary Cancel batch re-analysis
// @Tags Batch
// @Produce json
// @Success 200 {object} pkgapp.Res{data=batch.Job} "Success"
// @Router /api/batch-reanalyze/cancel [post]
func (h *BatchHandler) Cancel(c *gin.Context) {
	m, ok := h.manager(c)
	if !ok {
		return
	}
	pkgapp.NewResponse(c).ToResponse(code.Success.WithData(m.Cancel()))
}
