package handler

import (
	"time"

	"sashi-calendar/backend/internal/service"
)

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Auth   *AuthHandler
	Event  *EventHandler
	Export *ExportHandler
	Queue  *QueueHandler
}

// NewHandler 创建 Handler 聚合；revoker 为 nil 时登出接口不可用
func NewHandler(svc *service.Service, revoker TokenRevoker, loc *time.Location) *Handler {
	return &Handler{
		Auth:   NewAuthHandler(revoker),
		Event:  NewEventHandler(svc.Event, loc),
		Export: NewExportHandler(svc.Export),
		Queue:  NewQueueHandler(svc.Queue),
	}
}
