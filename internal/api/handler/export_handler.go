package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"sashi-calendar/backend/internal/dto"
	"sashi-calendar/backend/internal/service"
	"sashi-calendar/backend/pkg/response"
)

const (
	contentTypeICS  = "text/calendar; charset=utf-8"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ExportHandler 导出模块 HTTP 处理器
type ExportHandler struct {
	exportSvc service.ExportService
}

// NewExportHandler 创建 ExportHandler
func NewExportHandler(exportSvc service.ExportService) *ExportHandler {
	return &ExportHandler{exportSvc: exportSvc}
}

// ExportICS 导出窗口内的发生为 iCalendar
// GET /api/v1/events/export.ics?start=&end=
func (h *ExportHandler) ExportICS(c *gin.Context) {
	var req dto.ListEventsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 16001, "参数校验失败")
		return
	}

	buf, filename, err := h.exportSvc.ExportICS(c.Request.Context(), &req)
	if err != nil {
		h.handleExportError(c, err)
		return
	}
	response.Attachment(c, filename, contentTypeICS, buf.Bytes())
}

// ExportXLSX 导出窗口内的发生为 Excel
// GET /api/v1/export/events?start=&end=
func (h *ExportHandler) ExportXLSX(c *gin.Context) {
	var req dto.ListEventsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 16001, "参数校验失败")
		return
	}

	buf, filename, err := h.exportSvc.ExportXLSX(c.Request.Context(), &req)
	if err != nil {
		h.handleExportError(c, err)
		return
	}
	response.Attachment(c, filename, contentTypeXLSX, buf.Bytes())
}

func (h *ExportHandler) handleExportError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidDate):
		response.BadRequest(c, 16101, "日期格式应为 YYYY-MM-DD")
	case errors.Is(err, service.ErrInvalidWindow):
		response.BadRequest(c, 16102, "查询窗口无效")
	default:
		_ = c.Error(err)
		response.InternalError(c)
	}
}
