package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// QueueStatus 队列条目状态（封闭枚举）
type QueueStatus uint8

const (
	QueueStatusQueued QueueStatus = iota
	QueueStatusInProgress
	QueueStatusDone
	QueueStatusBlocked

	queueStatusCount
)

// QueueStatusMeta 状态的展示元数据
type QueueStatusMeta struct {
	Name  string `json:"status"`
	Label string `json:"label"`
	Icon  string `json:"icon"`
	Order int    `json:"order"`
}

// queueStatusTable 按枚举值索引；数组长度与枚举数量不一致时无法编译
var queueStatusTable = [queueStatusCount]QueueStatusMeta{
	QueueStatusQueued:     {Name: "queued", Label: "Queued", Icon: "clock", Order: 0},
	QueueStatusInProgress: {Name: "in_progress", Label: "In Progress", Icon: "play", Order: 1},
	QueueStatusDone:       {Name: "done", Label: "Done", Icon: "check", Order: 3},
	QueueStatusBlocked:    {Name: "blocked", Label: "Blocked", Icon: "alert", Order: 2},
}

// 每个枚举值都必须在表中有名称
var _ = func() struct{} {
	for i, m := range queueStatusTable {
		if m.Name == "" {
			panic(fmt.Sprintf("queue status %d 缺少元数据", i))
		}
	}
	return struct{}{}
}()

// AllQueueStatuses 按看板顺序返回全部状态
func AllQueueStatuses() []QueueStatus {
	out := make([]QueueStatus, queueStatusCount)
	for i := range queueStatusTable {
		out[queueStatusTable[i].Order] = QueueStatus(i)
	}
	return out
}

// ParseQueueStatus 解析边界输入，未知字符串直接报错
func ParseQueueStatus(s string) (QueueStatus, error) {
	for i, m := range queueStatusTable {
		if m.Name == s {
			return QueueStatus(i), nil
		}
	}
	return 0, fmt.Errorf("未知的队列状态 %q", s)
}

// Meta 返回展示元数据
func (s QueueStatus) Meta() QueueStatusMeta {
	if s >= queueStatusCount {
		return QueueStatusMeta{Name: s.String(), Label: s.String(), Order: int(s)}
	}
	return queueStatusTable[s]
}

func (s QueueStatus) String() string {
	if s >= queueStatusCount {
		return fmt.Sprintf("QueueStatus(%d)", uint8(s))
	}
	return queueStatusTable[s].Name
}

// MarshalJSON 以字符串形式输出
func (s QueueStatus) MarshalJSON() ([]byte, error) {
	if s >= queueStatusCount {
		return nil, fmt.Errorf("无效的队列状态 %d", uint8(s))
	}
	return json.Marshal(s.String())
}

// UnmarshalJSON 只接受已知状态
func (s *QueueStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	v, err := ParseQueueStatus(str)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Scan 实现 sql.Scanner
func (s *QueueStatus) Scan(src interface{}) error {
	var str string
	switch v := src.(type) {
	case []byte:
		str = string(v)
	case string:
		str = v
	default:
		return fmt.Errorf("QueueStatus.Scan: unsupported type %T", src)
	}
	parsed, err := ParseQueueStatus(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Value 实现 driver.Valuer
func (s QueueStatus) Value() (driver.Value, error) {
	if s >= queueStatusCount {
		return nil, fmt.Errorf("无效的队列状态 %d", uint8(s))
	}
	return s.String(), nil
}

// QueueItem 任务队列条目 — 对应 queue_items
type QueueItem struct {
	QueueItemID string      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Task        string      `gorm:"type:text;not null"                             json:"task"`
	Status      QueueStatus `gorm:"type:varchar(20);not null;default:'queued'"     json:"status"`
	SessionKey  *string     `gorm:"type:varchar(255)"                              json:"session_key,omitempty"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	CreatedAt   time.Time   `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"created_at"`
	UpdatedAt   time.Time   `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"updated_at"`
}

func (QueueItem) TableName() string { return "queue_items" }
