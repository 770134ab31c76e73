package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"sashi-calendar/backend/internal/dto"
	"sashi-calendar/backend/internal/model"
	"sashi-calendar/backend/internal/repository"
)

// ── 任务队列业务错误 ──

var (
	ErrQueueItemNotFound = errors.New("队列条目不存在")
)

// QueueService 任务队列看板业务接口
type QueueService interface {
	Board(ctx context.Context) ([]dto.QueueColumnResponse, error)
	Enqueue(ctx context.Context, req *dto.EnqueueRequest) (*dto.QueueItemResponse, error)
	Transition(ctx context.Context, id string, status model.QueueStatus) (*dto.QueueItemResponse, error)
}

type queueService struct {
	repo   *repository.Repository
	now    func() time.Time
	logger *zap.Logger
}

// NewQueueService 创建 QueueService 实例
func NewQueueService(repo *repository.Repository, logger *zap.Logger) QueueService {
	return &queueService{repo: repo, now: time.Now, logger: logger}
}

// Board 按状态表顺序分组，每一列都会出现（可能为空）
func (s *queueService) Board(ctx context.Context) ([]dto.QueueColumnResponse, error) {
	items, err := s.repo.QueueItem.List(ctx)
	if err != nil {
		s.logger.Error("查询队列失败", zap.Error(err))
		return nil, err
	}

	statuses := model.AllQueueStatuses()
	columns := make([]dto.QueueColumnResponse, len(statuses))
	index := make(map[model.QueueStatus]int, len(statuses))
	for i, st := range statuses {
		columns[i] = dto.QueueColumnResponse{QueueStatusMeta: st.Meta(), Items: []dto.QueueItemResponse{}}
		index[st] = i
	}
	for i := range items {
		col := index[items[i].Status]
		columns[col].Items = append(columns[col].Items, toQueueItemResponse(&items[i]))
	}
	return columns, nil
}

func (s *queueService) Enqueue(ctx context.Context, req *dto.EnqueueRequest) (*dto.QueueItemResponse, error) {
	item := &model.QueueItem{
		Task:       req.Task,
		Status:     model.QueueStatusQueued,
		SessionKey: req.SessionKey,
	}
	if err := s.repo.QueueItem.Create(ctx, item); err != nil {
		s.logger.Error("入队失败", zap.Error(err))
		return nil, err
	}
	resp := toQueueItemResponse(item)
	return &resp, nil
}

// Transition 进入 in_progress 记录开始时间，进入 done 记录完成时间
func (s *queueService) Transition(ctx context.Context, id string, status model.QueueStatus) (*dto.QueueItemResponse, error) {
	item, err := s.repo.QueueItem.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQueueItemNotFound
		}
		s.logger.Error("查询队列条目失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}

	now := s.now().UTC()
	item.Status = status
	switch status {
	case model.QueueStatusInProgress:
		if item.StartedAt == nil {
			item.StartedAt = &now
		}
		item.CompletedAt = nil
	case model.QueueStatusDone:
		item.CompletedAt = &now
	case model.QueueStatusQueued:
		item.StartedAt = nil
		item.CompletedAt = nil
	case model.QueueStatusBlocked:
		item.CompletedAt = nil
	}

	if err := s.repo.QueueItem.UpdateStatus(ctx, item); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQueueItemNotFound
		}
		s.logger.Error("更新队列状态失败", zap.String("id", id), zap.Stringer("status", status), zap.Error(err))
		return nil, err
	}

	resp := toQueueItemResponse(item)
	return &resp, nil
}

func toQueueItemResponse(item *model.QueueItem) dto.QueueItemResponse {
	resp := dto.QueueItemResponse{
		ID:         item.QueueItemID,
		Task:       item.Task,
		Status:     item.Status,
		SessionKey: item.SessionKey,
		CreatedAt:  item.CreatedAt.Format(time.RFC3339),
	}
	if item.StartedAt != nil {
		v := item.StartedAt.Format(time.RFC3339)
		resp.StartedAt = &v
	}
	if item.CompletedAt != nil {
		v := item.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &v
	}
	return resp
}
