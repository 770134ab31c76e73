package service

import (
	"time"

	"go.uber.org/zap"

	"sashi-calendar/backend/config"
	"sashi-calendar/backend/internal/repository"
	"sashi-calendar/backend/pkg/recurrence"
)

// Service 所有 Service 的聚合入口
type Service struct {
	Event  EventService
	Export ExportService
	Queue  QueueService
}

// NewService 创建 Service 聚合；publisher 为 nil 时不发布变更通知
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	publisher ChangePublisher,
	logger *zap.Logger,
) *Service {
	loc := cfg.Calendar.Location()
	expander := NewOccurrenceExpander(recurrence.NewRRuleEvaluator(), loc, cfg.Calendar.MaxOccurrencesPerEvent)

	weekStart := time.Sunday
	if cfg.Calendar.WeekStart == "monday" {
		weekStart = time.Monday
	}

	events := NewEventService(repo, expander, publisher, weekStart, logger)
	return &Service{
		Event:  events,
		Export: NewExportService(events, loc, logger),
		Queue:  NewQueueService(repo, logger),
	}
}
