package model

import (
	"time"

	"github.com/samber/mo"

	"sashi-calendar/backend/pkg/recurrence"
)

// DefaultEventColor 新建事件的默认颜色
const DefaultEventColor = "#3b82f6"

// Event 系列定义 — 对应 events
// RecurrenceRule 为空时是单次事件，唯一的发生就是 StartDate，此时 RecurrenceEnd 不参与计算
type Event struct {
	EventID        string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	FamilyID       string     `gorm:"type:uuid;not null;index"                       json:"family_id"`
	Name           string     `gorm:"type:varchar(255);not null"                     json:"name"`
	Description    *string    `gorm:"type:text"                                      json:"description"`
	Location       *string    `gorm:"type:varchar(255)"                              json:"location"`
	Color          string     `gorm:"type:varchar(16);not null;default:'#3b82f6'"    json:"color"`
	StartDate      time.Time  `gorm:"not null"                                       json:"start_date"`
	StartTime      *string    `gorm:"type:varchar(5)"                                json:"start_time"` // HH:MM，本地时间
	EndTime        *string    `gorm:"type:varchar(5)"                                json:"end_time"`
	IsAllDay       bool       `gorm:"not null;default:false"                         json:"is_all_day"`
	RecurrenceRule *string    `gorm:"type:text"                                      json:"recurrence_rule"`
	RecurrenceEnd  *time.Time `gorm:"type:date"                                      json:"recurrence_end"` // 含当天
	VersionedModel

	// 关联
	Exceptions []EventException `gorm:"foreignKey:EventID;references:EventID;constraint:OnDelete:CASCADE" json:"exceptions,omitempty"`
}

func (Event) TableName() string { return "events" }

// IsRecurring 是否为重复系列
func (e *Event) IsRecurring() bool {
	return e.RecurrenceRule != nil && *e.RecurrenceRule != ""
}

// Clone 深拷贝（不含关联）
func (e *Event) Clone() *Event {
	c := *e
	c.Description = cloneString(e.Description)
	c.Location = cloneString(e.Location)
	c.StartTime = cloneString(e.StartTime)
	c.EndTime = cloneString(e.EndTime)
	c.RecurrenceRule = cloneString(e.RecurrenceRule)
	if e.RecurrenceEnd != nil {
		t := *e.RecurrenceEnd
		c.RecurrenceEnd = &t
	}
	c.Exceptions = nil
	return &c
}

// EventException 单次发生的覆盖或取消 — 对应 event_exceptions
// (EventID, OriginalDate) 唯一；OriginalDate 是被覆盖的原始日期而不是新日期
type EventException struct {
	ExceptionID       string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"                        json:"id"`
	EventID           string    `gorm:"type:uuid;not null;uniqueIndex:uq_event_exceptions_event_date"         json:"event_id"`
	OriginalDate      time.Time `gorm:"type:date;not null;uniqueIndex:uq_event_exceptions_event_date"         json:"original_date"`
	IsCancelled       bool      `gorm:"not null;default:false"                                                json:"is_cancelled"`
	ModifiedName      *string   `gorm:"type:varchar(255)"                                                     json:"modified_name"`
	ModifiedStartTime *string   `gorm:"type:varchar(5)"                                                       json:"modified_start_time"`
	ModifiedEndTime   *string   `gorm:"type:varchar(5)"                                                       json:"modified_end_time"`
	ModifiedLocation  *string   `gorm:"type:varchar(255)"                                                     json:"modified_location"`
	CreatedAt         time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"                                    json:"created_at"`
	UpdatedAt         time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"                                    json:"updated_at"`
}

func (EventException) TableName() string { return "event_exceptions" }

// ── 补丁 ──

// EventPatch 局部更新
// 每个字段三态：mo.None 表示不修改；Some(nil) 表示清空可空字段；Some(v) 表示设置新值
type EventPatch struct {
	Name           mo.Option[string]
	Description    mo.Option[*string]
	Location       mo.Option[*string]
	Color          mo.Option[string]
	StartDate      mo.Option[time.Time]
	StartTime      mo.Option[*string]
	EndTime        mo.Option[*string]
	IsAllDay       mo.Option[bool]
	RecurrenceRule mo.Option[*string]
	RecurrenceEnd  mo.Option[*time.Time]

	// StartDayOnly start_date 只给了日期，时分沿用系列原值
	StartDayOnly bool
}

// KeepClock 纯日期的 start_date 换成 current 的时分，实例时刻不因改日期而漂移
func (p EventPatch) KeepClock(current time.Time, loc *time.Location) EventPatch {
	if v, ok := p.StartDate.Get(); ok && p.StartDayOnly {
		p.StartDate = mo.Some(recurrence.WithDay(current, v, loc))
		p.StartDayOnly = false
	}
	return p
}

// IsEmpty 补丁是否没有任何字段
func (p EventPatch) IsEmpty() bool {
	return p.Name.IsAbsent() && p.Description.IsAbsent() && p.Location.IsAbsent() &&
		p.Color.IsAbsent() && p.StartDate.IsAbsent() && p.StartTime.IsAbsent() &&
		p.EndTime.IsAbsent() && p.IsAllDay.IsAbsent() && p.RecurrenceRule.IsAbsent() &&
		p.RecurrenceEnd.IsAbsent()
}

// ApplyTo 把补丁字段写到系列上
func (p EventPatch) ApplyTo(e *Event) {
	if v, ok := p.Name.Get(); ok {
		e.Name = v
	}
	if v, ok := p.Description.Get(); ok {
		e.Description = cloneString(v)
	}
	if v, ok := p.Location.Get(); ok {
		e.Location = cloneString(v)
	}
	if v, ok := p.Color.Get(); ok {
		e.Color = v
	}
	if v, ok := p.StartDate.Get(); ok {
		e.StartDate = v
	}
	if v, ok := p.StartTime.Get(); ok {
		e.StartTime = cloneString(v)
	}
	if v, ok := p.EndTime.Get(); ok {
		e.EndTime = cloneString(v)
	}
	if v, ok := p.IsAllDay.Get(); ok {
		e.IsAllDay = v
	}
	if v, ok := p.RecurrenceRule.Get(); ok {
		e.RecurrenceRule = cloneString(v)
	}
	if v, ok := p.RecurrenceEnd.Get(); ok {
		if v == nil {
			e.RecurrenceEnd = nil
		} else {
			t := *v
			e.RecurrenceEnd = &t
		}
	}
}

// Columns 转换为 gorm Updates 使用的列映射，只包含补丁中出现的字段
func (p EventPatch) Columns() map[string]interface{} {
	cols := make(map[string]interface{})
	if v, ok := p.Name.Get(); ok {
		cols["name"] = v
	}
	if v, ok := p.Description.Get(); ok {
		cols["description"] = v
	}
	if v, ok := p.Location.Get(); ok {
		cols["location"] = v
	}
	if v, ok := p.Color.Get(); ok {
		cols["color"] = v
	}
	if v, ok := p.StartDate.Get(); ok {
		cols["start_date"] = v
	}
	if v, ok := p.StartTime.Get(); ok {
		cols["start_time"] = v
	}
	if v, ok := p.EndTime.Get(); ok {
		cols["end_time"] = v
	}
	if v, ok := p.IsAllDay.Get(); ok {
		cols["is_all_day"] = v
	}
	if v, ok := p.RecurrenceRule.Get(); ok {
		cols["recurrence_rule"] = v
	}
	if v, ok := p.RecurrenceEnd.Get(); ok {
		cols["recurrence_end"] = v
	}
	return cols
}

// ExceptionOverlay 单次覆盖只允许改名称、起止时间和地点
// ignored 返回补丁中被丢弃的字段名
func (p EventPatch) ExceptionOverlay() (overlay ExceptionPatch, ignored []string) {
	overlay = ExceptionPatch{
		Name:      p.Name,
		StartTime: p.StartTime,
		EndTime:   p.EndTime,
		Location:  p.Location,
	}
	if p.Description.IsPresent() {
		ignored = append(ignored, "description")
	}
	if p.Color.IsPresent() {
		ignored = append(ignored, "color")
	}
	if p.StartDate.IsPresent() {
		ignored = append(ignored, "start_date")
	}
	if p.IsAllDay.IsPresent() {
		ignored = append(ignored, "is_all_day")
	}
	if p.RecurrenceRule.IsPresent() {
		ignored = append(ignored, "recurrence_rule")
	}
	if p.RecurrenceEnd.IsPresent() {
		ignored = append(ignored, "recurrence_end")
	}
	return overlay, ignored
}

// ExceptionPatch 作用在例外记录上的补丁
type ExceptionPatch struct {
	Name      mo.Option[string]
	StartTime mo.Option[*string]
	EndTime   mo.Option[*string]
	Location  mo.Option[*string]
}

// IsEmpty 是否没有任何覆盖字段
func (p ExceptionPatch) IsEmpty() bool {
	return p.Name.IsAbsent() && p.StartTime.IsAbsent() && p.EndTime.IsAbsent() && p.Location.IsAbsent()
}

// MergeInto 合并到已有例外：补丁中出现的字段覆盖，缺省字段保留原值
func (p ExceptionPatch) MergeInto(ex *EventException) {
	if v, ok := p.Name.Get(); ok {
		ex.ModifiedName = &v
	}
	if v, ok := p.StartTime.Get(); ok {
		ex.ModifiedStartTime = cloneString(v)
	}
	if v, ok := p.EndTime.Get(); ok {
		ex.ModifiedEndTime = cloneString(v)
	}
	if v, ok := p.Location.Get(); ok {
		ex.ModifiedLocation = cloneString(v)
	}
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
