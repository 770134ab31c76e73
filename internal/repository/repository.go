package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repository 所有 Repository 的聚合入口
type Repository struct {
	Event          EventRepository
	EventException EventExceptionRepository
	QueueItem      QueueItemRepository

	db *gorm.DB
}

// NewRepository 创建 Repository 聚合
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		Event:          NewEventRepo(db),
		EventException: NewEventExceptionRepo(db),
		QueueItem:      NewQueueItemRepo(db),
		db:             db,
	}
}

// Transaction 在同一个数据库事务中执行 fn
// fn 收到的 Repository 全部绑定到事务连接；返回错误即回滚
// db 为空时（单元测试中手工组装的聚合）直接在当前聚合上执行
func (r *Repository) Transaction(ctx context.Context, fn func(tx *Repository) error) error {
	if r.db == nil {
		return fn(r)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepository(tx))
	})
}
