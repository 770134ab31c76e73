package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sashi-calendar/backend/internal/model"
)

// EventExceptionRepository 例外记录数据访问接口
// 只做存取，不含任何展开逻辑
type EventExceptionRepository interface {
	GetByEventAndDate(ctx context.Context, eventID string, originalDate time.Time) (*model.EventException, error)
	ListByEventIDs(ctx context.Context, eventIDs []string) ([]model.EventException, error)
	Upsert(ctx context.Context, ex *model.EventException) error
}

type eventExceptionRepo struct {
	db *gorm.DB
}

func NewEventExceptionRepo(db *gorm.DB) EventExceptionRepository {
	return &eventExceptionRepo{db: db}
}

func (r *eventExceptionRepo) GetByEventAndDate(ctx context.Context, eventID string, originalDate time.Time) (*model.EventException, error) {
	var ex model.EventException
	err := r.db.WithContext(ctx).
		Where("event_id = ? AND original_date = ?", eventID, originalDate.Format("2006-01-02")).
		First(&ex).Error
	if err != nil {
		return nil, err
	}
	return &ex, nil
}

func (r *eventExceptionRepo) ListByEventIDs(ctx context.Context, eventIDs []string) ([]model.EventException, error) {
	if len(eventIDs) == 0 {
		return nil, nil
	}
	var list []model.EventException
	err := r.db.WithContext(ctx).
		Where("event_id IN ?", eventIDs).
		Order("event_id ASC, original_date ASC").
		Find(&list).Error
	return list, err
}

// Upsert 以 (event_id, original_date) 为冲突键写入
// 调用方负责合并字段，这里整行覆盖
func (r *eventExceptionRepo) Upsert(ctx context.Context, ex *model.EventException) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "event_id"}, {Name: "original_date"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"is_cancelled",
				"modified_name",
				"modified_start_time",
				"modified_end_time",
				"modified_location",
				"updated_at",
			}),
		}).
		Create(ex).Error
}
