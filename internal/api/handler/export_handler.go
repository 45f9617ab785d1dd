package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nclamvn/english-center-cms/internal/dto"
	"github.com/nclamvn/english-center-cms/internal/service"
	"github.com/nclamvn/english-center-cms/pkg/response"
)

const (
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypeICS  = "text/calendar; charset=utf-8"
)

// ExportHandler 导出模块 HTTP 处理器
type ExportHandler struct {
	exportSvc service.ExportService
}

// NewExportHandler 创建 ExportHandler
func NewExportHandler(exportSvc service.ExportService) *ExportHandler {
	return &ExportHandler{exportSvc: exportSvc}
}

// ExportCharges 导出收费单
// GET /api/v1/export/charges?class_id=xxx&period_start=2026-03-01
func (h *ExportHandler) ExportCharges(c *gin.Context) {
	var req dto.ChargeListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badBinding(c, 23001, err)
		return
	}

	buf, filename, err := h.exportSvc.ExportCharges(c.Request.Context(), &req)
	if err != nil {
		h.handleExportError(c, err)
		return
	}

	response.Attachment(c, filename, contentTypeXLSX, buf.Bytes())
}

// ExportClassCalendar 导出班级课表日历
// GET /api/v1/export/classes/:id/sessions.ics?from=2026-03-01&to=2026-06-30
func (h *ExportHandler) ExportClassCalendar(c *gin.Context) {
	from, ok := parseDateQuery(c, "from")
	if !ok {
		return
	}
	to, ok := parseDateQuery(c, "to")
	if !ok {
		return
	}

	buf, filename, err := h.exportSvc.ExportClassCalendar(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		h.handleExportError(c, err)
		return
	}

	response.Attachment(c, filename, contentTypeICS, buf.Bytes())
}

func (h *ExportHandler) handleExportError(c *gin.Context, err error) {
	var verr *service.ValidationError

	switch {
	case errors.As(err, &verr):
		writeValidationError(c, 23103, verr)
	case errors.Is(err, service.ErrExportNoCharges):
		response.NotFound(c, 23101, "没有符合条件的收费单")
	case errors.Is(err, service.ErrClassNotFound):
		response.NotFound(c, 23102, "班级不存在")
	default:
		response.InternalError(c)
	}
}

// parseDateQuery 可选日期参数，格式错误时写入 400
func parseDateQuery(c *gin.Context, key string) (*time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		response.ErrorWithData(c, http.StatusBadRequest, 23001, "参数校验失败", map[string]string{
			key: "日期格式应为 YYYY-MM-DD",
		})
		return nil, false
	}
	return &t, true
}
