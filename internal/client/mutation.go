package client

import (
	"errors"
	"fmt"
	"time"

	"sashi-calendar/backend/internal/dto"
	"sashi-calendar/backend/pkg/recurrence"
)

var (
	// ErrRollbackTargetMissing 回滚时缓存中已找不到被修改的实例（例如已滚出窗口）
	// 不是致命错误，下一次完整读取会重新同步
	ErrRollbackTargetMissing = errors.New("回滚目标不在缓存中")
	// ErrSingleMoveAcrossDays single 作用域只能改时间，不能把一次发生挪到另一天
	ErrSingleMoveAcrossDays = errors.New("single 作用域不支持跨天移动")
	// ErrBatchDelete 批量接口只接受修改
	ErrBatchDelete = errors.New("批量操作不支持删除")
)

const clockLayout = "15:04"

// 作用域取值与服务端一致
const (
	ScopeAll           = "all"
	ScopeThisAndFuture = "thisAndFuture"
	ScopeSingle        = "single"
)

// Patch 部分修改，键为线上字段名；值为 nil 表示清空可空字段
type Patch map[string]interface{}

// Mutation 一次带作用域的修改或删除
type Mutation struct {
	SeriesID string
	Scope    string
	Date     string // 被操作的那次发生的日期 YYYY-MM-DD，all 作用域可为空
	Patch    Patch
	Delete   bool
}

func (m Mutation) scope() string {
	if m.Scope == "" {
		return ScopeAll
	}
	return m.Scope
}

// matches 判断实例是否落在这次修改的作用域内
func (m Mutation) matches(inst *dto.InstanceResponse, loc *time.Location) bool {
	if inst.ID != m.SeriesID {
		return false
	}
	switch m.scope() {
	case ScopeSingle:
		return instanceDay(inst, loc) == m.Date
	case ScopeThisAndFuture:
		return instanceDay(inst, loc) >= m.Date
	default:
		return true
	}
}

// patchFor 乐观视图中实例看到的补丁
// all 作用域不改动被例外覆盖的字段；thisAndFuture 会拆出不带例外的新系列，补丁整体生效
func (m Mutation) patchFor(inst *dto.InstanceResponse) Patch {
	if m.scope() != ScopeAll {
		return m.Patch
	}
	return protectOverrides(m.Patch, inst)
}

// protectOverrides 去掉补丁中被例外覆盖的字段
func protectOverrides(patch Patch, inst *dto.InstanceResponse) Patch {
	if len(inst.OverriddenFields) == 0 {
		return patch
	}
	p := make(Patch, len(patch))
	for k, v := range patch {
		p[k] = v
	}
	for _, f := range inst.OverriddenFields {
		delete(p, f)
	}
	return p
}

func instanceTime(inst *dto.InstanceResponse, loc *time.Location) time.Time {
	return time.UnixMilli(inst.InstanceDate).In(loc)
}

func instanceDay(inst *dto.InstanceResponse, loc *time.Location) string {
	return recurrence.DayKey(instanceTime(inst, loc), loc)
}

// seriesDay 系列起始日
func seriesDay(inst *dto.InstanceResponse, loc *time.Location) string {
	t, err := time.Parse(time.RFC3339, inst.StartDate)
	if err != nil {
		return instanceDay(inst, loc)
	}
	return recurrence.DayKey(t, loc)
}

// applyPatch 把补丁作用到实例的展示副本上
// start_date 按相对 anchorDay 的天数平移实例日期，时分不变
// start_time 只改展示字段：服务端的实例时刻锚定在 start_date 的时分上，不随 start_time 变化
func applyPatch(inst *dto.InstanceResponse, p Patch, anchorDay string, loc *time.Location) error {
	for key, v := range p {
		switch key {
		case "name":
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("name 必须为字符串")
			}
			inst.Name = s
		case "color":
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("color 必须为字符串")
			}
			inst.Color = s
		case "is_all_day":
			b, ok := v.(bool)
			if !ok {
				return fmt.Errorf("is_all_day 必须为布尔值")
			}
			inst.IsAllDay = b
		case "description":
			inst.Description = optString(v)
		case "location":
			inst.Location = optString(v)
		case "end_time":
			inst.EndTime = optString(v)
		case "recurrence_rule":
			inst.RecurrenceRule = optString(v)
		case "recurrence_end":
			inst.RecurrenceEnd = optString(v)
		case "start_time":
			inst.StartTime = optString(v)
			if inst.StartTime != nil {
				if _, err := time.Parse(clockLayout, *inst.StartTime); err != nil {
					return fmt.Errorf("start_time 格式错误: %w", err)
				}
			}
		case "start_date":
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("start_date 必须为 YYYY-MM-DD")
			}
			if err := shiftDay(inst, anchorDay, s, loc); err != nil {
				return err
			}
		}
	}
	return nil
}

func shiftDay(inst *dto.InstanceResponse, anchorDay, newDay string, loc *time.Location) error {
	to, err := recurrence.ParseDay(newDay, loc)
	if err != nil {
		return fmt.Errorf("start_date 格式错误: %w", err)
	}
	from, err := recurrence.ParseDay(anchorDay, loc)
	if err != nil {
		return fmt.Errorf("锚定日期格式错误: %w", err)
	}
	delta := recurrence.DaysBetween(from, to, loc)

	t := instanceTime(inst, loc)
	inst.InstanceDate = t.AddDate(0, 0, delta).UnixMilli()
	if start, err := time.Parse(time.RFC3339, inst.StartDate); err == nil {
		inst.StartDate = start.In(loc).AddDate(0, 0, delta).Format(time.RFC3339)
	}
	return nil
}

func optString(v interface{}) *string {
	switch s := v.(type) {
	case string:
		return &s
	case *string:
		if s == nil {
			return nil
		}
		c := *s
		return &c
	default:
		return nil
	}
}

// shiftClock 按原时长推算新的结束时间，跨午夜时回绕
func shiftClock(oldStart, oldEnd, newStart string) (string, bool) {
	s, err1 := time.Parse(clockLayout, oldStart)
	e, err2 := time.Parse(clockLayout, oldEnd)
	n, err3 := time.Parse(clockLayout, newStart)
	if err1 != nil || err2 != nil || err3 != nil {
		return "", false
	}
	d := e.Sub(s)
	if d < 0 {
		d += 24 * time.Hour
	}
	return n.Add(d).Format(clockLayout), true
}
