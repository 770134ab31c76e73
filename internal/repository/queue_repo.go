package repository

import (
	"context"

	"gorm.io/gorm"

	"sashi-calendar/backend/internal/model"
)

// QueueItemRepository 任务队列数据访问接口
type QueueItemRepository interface {
	Create(ctx context.Context, item *model.QueueItem) error
	GetByID(ctx context.Context, id string) (*model.QueueItem, error)
	List(ctx context.Context) ([]model.QueueItem, error)
	UpdateStatus(ctx context.Context, item *model.QueueItem) error
}

type queueItemRepo struct {
	db *gorm.DB
}

func NewQueueItemRepo(db *gorm.DB) QueueItemRepository {
	return &queueItemRepo{db: db}
}

func (r *queueItemRepo) Create(ctx context.Context, item *model.QueueItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *queueItemRepo) GetByID(ctx context.Context, id string) (*model.QueueItem, error) {
	var item model.QueueItem
	err := r.db.WithContext(ctx).
		Where("queue_item_id = ?", id).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *queueItemRepo) List(ctx context.Context) ([]model.QueueItem, error) {
	var items []model.QueueItem
	err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Find(&items).Error
	return items, err
}

func (r *queueItemRepo) UpdateStatus(ctx context.Context, item *model.QueueItem) error {
	result := r.db.WithContext(ctx).
		Model(&model.QueueItem{}).
		Where("queue_item_id = ?", item.QueueItemID).
		Updates(map[string]interface{}{
			"status":       item.Status,
			"started_at":   item.StartedAt,
			"completed_at": item.CompletedAt,
			"updated_at":   gorm.Expr("CURRENT_TIMESTAMP"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
