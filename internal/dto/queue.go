package dto

import "sashi-calendar/backend/internal/model"

// ── 任务队列 DTO ──

// EnqueueRequest 入队请求
type EnqueueRequest struct {
	Task       string  `json:"task"        binding:"required,min=1"`
	SessionKey *string `json:"session_key" binding:"omitempty,max=255"`
}

// UpdateQueueStatusRequest 状态流转请求
// Status 在反序列化时即校验，未知状态直接 400
type UpdateQueueStatusRequest struct {
	Status *model.QueueStatus `json:"status" binding:"required"`
}

// QueueItemResponse 队列条目响应
type QueueItemResponse struct {
	ID          string            `json:"id"`
	Task        string            `json:"task"`
	Status      model.QueueStatus `json:"status"`
	SessionKey  *string           `json:"session_key,omitempty"`
	StartedAt   *string           `json:"started_at,omitempty"`
	CompletedAt *string           `json:"completed_at,omitempty"`
	CreatedAt   string            `json:"created_at"`
}

// QueueColumnResponse 看板中的一列
type QueueColumnResponse struct {
	model.QueueStatusMeta
	Items []QueueItemResponse `json:"items"`
}
