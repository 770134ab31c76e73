package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"sashi-calendar/backend/internal/model"
	pkgerrors "sashi-calendar/backend/pkg/errors"
)

// EventRepository 系列数据访问接口
type EventRepository interface {
	Create(ctx context.Context, event *model.Event) error
	GetByID(ctx context.Context, id string) (*model.Event, error)
	GetWithExceptions(ctx context.Context, id string) (*model.Event, error)
	ListForWindow(ctx context.Context, windowStart, windowEnd time.Time) ([]model.Event, error)
	ListRecurring(ctx context.Context) ([]model.Event, error)
	Update(ctx context.Context, event *model.Event, fields map[string]interface{}) error
	Delete(ctx context.Context, id string) error
}

type eventRepo struct {
	db *gorm.DB
}

func NewEventRepo(db *gorm.DB) EventRepository {
	return &eventRepo{db: db}
}

func (r *eventRepo) Create(ctx context.Context, event *model.Event) error {
	return r.db.WithContext(ctx).Omit("Exceptions").Create(event).Error
}

func (r *eventRepo) GetByID(ctx context.Context, id string) (*model.Event, error) {
	var event model.Event
	err := r.db.WithContext(ctx).
		Where("event_id = ?", id).
		First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *eventRepo) GetWithExceptions(ctx context.Context, id string) (*model.Event, error) {
	var event model.Event
	err := r.db.WithContext(ctx).
		Preload("Exceptions", func(db *gorm.DB) *gorm.DB {
			return db.Order("original_date ASC")
		}).
		Where("event_id = ?", id).
		First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// ListForWindow 返回可能在窗口内产生发生的系列
// 单次事件要求 start_date 落在窗口内；重复系列要求 start_date <= 窗口结束，
// 且 recurrence_end 为空或不早于窗口起始日，避免每次都扫描早已结束的旧系列
func (r *eventRepo) ListForWindow(ctx context.Context, windowStart, windowEnd time.Time) ([]model.Event, error) {
	var events []model.Event
	startDay := time.Date(windowStart.Year(), windowStart.Month(), windowStart.Day(), 0, 0, 0, 0, time.UTC)
	err := r.db.WithContext(ctx).
		Where("start_date <= ?", windowEnd).
		Where(
			r.db.Where("COALESCE(recurrence_rule, '') = '' AND start_date >= ?", windowStart).
				Or("COALESCE(recurrence_rule, '') <> '' AND (recurrence_end IS NULL OR recurrence_end >= ?)", startDay),
		).
		Order("start_date ASC, event_id ASC").
		Find(&events).Error
	return events, err
}

// ListRecurring 全部重复系列，供同族重叠巡检使用
func (r *eventRepo) ListRecurring(ctx context.Context) ([]model.Event, error) {
	var events []model.Event
	err := r.db.WithContext(ctx).
		Where("COALESCE(recurrence_rule, '') <> ''").
		Order("family_id ASC, start_date ASC, event_id ASC").
		Find(&events).Error
	return events, err
}

// Update 按版本号更新指定列，版本不匹配返回 ErrOptimisticLock
func (r *eventRepo) Update(ctx context.Context, event *model.Event, fields map[string]interface{}) error {
	oldVersion := event.Version
	updates := make(map[string]interface{}, len(fields)+2)
	for k, v := range fields {
		updates[k] = v
	}
	updates["updated_by"] = event.UpdatedBy
	updates["version"] = oldVersion + 1

	result := r.db.WithContext(ctx).
		Model(&model.Event{}).
		Where("event_id = ? AND version = ?", event.EventID, oldVersion).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	event.Version = oldVersion + 1
	return nil
}

// Delete 删除系列；例外记录由外键级联删除
func (r *eventRepo) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Where("event_id = ?", id).
		Delete(&model.Event{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
