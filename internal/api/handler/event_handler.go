package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"sashi-calendar/backend/internal/dto"
	"sashi-calendar/backend/internal/service"
	pkgerrors "sashi-calendar/backend/pkg/errors"
	"sashi-calendar/backend/pkg/response"
)

// EventHandler 日程模块 HTTP 处理器
type EventHandler struct {
	eventSvc service.EventService
	loc      *time.Location
}

// NewEventHandler 创建 EventHandler
func NewEventHandler(eventSvc service.EventService, loc *time.Location) *EventHandler {
	return &EventHandler{eventSvc: eventSvc, loc: loc}
}

// List 展开窗口内的全部发生
// GET /api/v1/events?start=YYYY-MM-DD&end=YYYY-MM-DD
func (h *EventHandler) List(c *gin.Context) {
	var req dto.ListEventsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 20001, "参数校验失败")
		return
	}

	result, err := h.eventSvc.ListInstances(c.Request.Context(), &req)
	if err != nil {
		h.handleEventError(c, err)
		return
	}

	response.OK(c, result)
}

// Get 获取系列详情（含例外记录）
// GET /api/v1/events/:id
func (h *EventHandler) Get(c *gin.Context) {
	event, err := h.eventSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleEventError(c, err)
		return
	}

	response.OK(c, event)
}

// Create 创建系列
// POST /api/v1/events
func (h *EventHandler) Create(c *gin.Context) {
	var req dto.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 20001, "参数校验失败")
		return
	}

	event, err := h.eventSvc.Create(c.Request.Context(), &req, CallerID(c))
	if err != nil {
		h.handleEventError(c, err)
		return
	}

	response.Created(c, event)
}

// Update 按作用域修改
// PATCH /api/v1/events/:id?editMode=all|thisAndFuture|single&date=YYYY-MM-DD
func (h *EventHandler) Update(c *gin.Context) {
	var q dto.EditQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, 20001, "参数校验失败")
		return
	}

	// 补丁需要区分"缺省"与"显式 null"，不能走 ShouldBindJSON
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		_ = c.Error(err)
		response.BadRequest(c, 20001, "读取请求体失败")
		return
	}
	patch, err := dto.DecodeEventPatch(body, h.loc)
	if err != nil {
		h.handleEventError(c, err)
		return
	}

	result, err := h.eventSvc.Update(c.Request.Context(), c.Param("id"), &dto.MutateEventRequest{
		EditMode: q.EditMode,
		Date:     q.Date,
		Patch:    patch,
	}, CallerID(c))
	if err != nil {
		h.handleEventError(c, err)
		return
	}

	response.OK(c, result)
}

// Delete 按作用域删除
// DELETE /api/v1/events/:id?deleteMode=all|thisAndFuture|single&date=YYYY-MM-DD
func (h *EventHandler) Delete(c *gin.Context) {
	var q dto.DeleteQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, 20001, "参数校验失败")
		return
	}

	result, err := h.eventSvc.Delete(c.Request.Context(), c.Param("id"), &q, CallerID(c))
	if err != nil {
		h.handleEventError(c, err)
		return
	}

	response.OK(c, result)
}

// Batch 批量修改，全部成功或全部回滚
// PATCH /api/v1/events/batch
func (h *EventHandler) Batch(c *gin.Context) {
	var req dto.BatchMutationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 20001, "参数校验失败")
		return
	}

	items := make([]service.BatchItem, 0, len(req.Items))
	for _, it := range req.Items {
		patch, err := dto.DecodeEventPatch(it.Patch, h.loc)
		if err != nil {
			h.handleEventError(c, err)
			return
		}
		items = append(items, service.BatchItem{
			ID: it.ID,
			Request: dto.MutateEventRequest{
				EditMode: it.EditMode,
				Date:     it.Date,
				Patch:    patch,
			},
		})
	}

	results, err := h.eventSvc.BatchUpdate(c.Request.Context(), items, CallerID(c))
	if err != nil {
		h.handleEventError(c, err)
		return
	}

	response.OK(c, gin.H{"list": results})
}

// Consistency 检查同族系列日期重叠
// GET /api/v1/events/consistency
func (h *EventHandler) Consistency(c *gin.Context) {
	overlaps, err := h.eventSvc.CheckConsistency(c.Request.Context())
	if err != nil {
		h.handleEventError(c, err)
		return
	}

	response.OK(c, gin.H{"list": overlaps})
}

// handleEventError 统一处理日程模块业务错误
func (h *EventHandler) handleEventError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrScopeRequiresDate):
		response.BadRequest(c, 20101, "single 与 thisAndFuture 作用域必须提供 date")
	case errors.Is(err, service.ErrInvalidEditScope):
		response.BadRequest(c, 20102, "无效的编辑作用域")
	case errors.Is(err, service.ErrInvalidDate):
		response.BadRequest(c, 20103, "日期格式应为 YYYY-MM-DD")
	case errors.Is(err, service.ErrInvalidWindow):
		response.BadRequest(c, 20104, "查询窗口无效")
	case errors.Is(err, service.ErrInvalidEvent), errors.Is(err, dto.ErrInvalidPatch):
		response.ErrorWithDetails(c, http.StatusBadRequest, 20105, "事件参数无效", err.Error())
	case errors.Is(err, service.ErrEventNotFound):
		response.NotFound(c, 20106, "事件不存在")
	case errors.Is(err, pkgerrors.ErrOptimisticLock):
		response.Conflict(c, 20107, "事件已被修改，请刷新后重试")
	case errors.Is(err, service.ErrSeriesSplitFailed):
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, 20108, "系列拆分失败")
	default:
		_ = c.Error(err)
		response.InternalError(c)
	}
}
