package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"sashi-calendar/backend/internal/dto"
	"sashi-calendar/backend/internal/service"
	"sashi-calendar/backend/pkg/response"
)

// QueueHandler 任务队列看板 HTTP 处理器
type QueueHandler struct {
	queueSvc service.QueueService
}

// NewQueueHandler 创建 QueueHandler
func NewQueueHandler(queueSvc service.QueueService) *QueueHandler {
	return &QueueHandler{queueSvc: queueSvc}
}

// Board 看板（按状态分列）
// GET /api/v1/queue
func (h *QueueHandler) Board(c *gin.Context) {
	columns, err := h.queueSvc.Board(c.Request.Context())
	if err != nil {
		h.handleQueueError(c, err)
		return
	}

	response.OK(c, gin.H{"columns": columns})
}

// Enqueue 新建条目
// POST /api/v1/queue
func (h *QueueHandler) Enqueue(c *gin.Context) {
	var req dto.EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 21001, "参数校验失败")
		return
	}

	item, err := h.queueSvc.Enqueue(c.Request.Context(), &req)
	if err != nil {
		h.handleQueueError(c, err)
		return
	}

	response.Created(c, item)
}

// UpdateStatus 状态流转
// PUT /api/v1/queue/:id/status
func (h *QueueHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateQueueStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 21001, "参数校验失败")
		return
	}

	item, err := h.queueSvc.Transition(c.Request.Context(), c.Param("id"), *req.Status)
	if err != nil {
		h.handleQueueError(c, err)
		return
	}

	response.OK(c, item)
}

func (h *QueueHandler) handleQueueError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrQueueItemNotFound):
		response.NotFound(c, 21101, "队列条目不存在")
	default:
		_ = c.Error(err)
		response.InternalError(c)
	}
}
