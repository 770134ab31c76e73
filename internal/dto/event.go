package dto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/samber/mo"

	"sashi-calendar/backend/internal/model"
	"sashi-calendar/backend/pkg/recurrence"
)

// ── 事件模块 DTO ──

// ErrInvalidPatch 补丁格式错误
var ErrInvalidPatch = errors.New("补丁格式无效")

// clockRule HH:MM，与 binding 标签共用同一条规则
const clockRule = "len=5,datetime=15:04"

var fallbackValidator = validator.New()

// CreateEventRequest 创建系列请求
type CreateEventRequest struct {
	Name           string  `json:"name"            binding:"required,min=1,max=255"`
	Description    *string `json:"description"`
	Location       *string `json:"location"        binding:"omitempty,max=255"`
	Color          string  `json:"color"           binding:"omitempty,max=16"`
	StartDate      string  `json:"start_date"      binding:"required"`
	StartTime      *string `json:"start_time"      binding:"omitempty,len=5,datetime=15:04"`
	EndTime        *string `json:"end_time"        binding:"omitempty,len=5,datetime=15:04"`
	IsAllDay       bool    `json:"is_all_day"`
	RecurrenceRule *string `json:"recurrence_rule"`
	RecurrenceEnd  *string `json:"recurrence_end"`
}

// ListEventsRequest 展开查询参数（YYYY-MM-DD，两端包含）
type ListEventsRequest struct {
	Start string `form:"start"`
	End   string `form:"end"`
}

// EditQuery 写接口查询参数
type EditQuery struct {
	EditMode string `form:"editMode"`
	Date     string `form:"date"`
}

// DeleteQuery 删除接口查询参数
type DeleteQuery struct {
	DeleteMode string `form:"deleteMode"`
	Date       string `form:"date"`
}

// MutateEventRequest 一次带作用域的修改
type MutateEventRequest struct {
	EditMode string
	Date     string
	Patch    model.EventPatch
}

// BatchMutationItem 批量修改中的一项
type BatchMutationItem struct {
	ID       string          `json:"id"        binding:"required"`
	EditMode string          `json:"edit_mode"`
	Date     string          `json:"date"`
	Patch    json.RawMessage `json:"patch"     binding:"required"`
}

// BatchMutationRequest 批量修改请求
type BatchMutationRequest struct {
	Items []BatchMutationItem `json:"items" binding:"required,min=1,max=100,dive"`
}

// ParseStartDate 解析系列起始日期
// 纯日期按当地中午处理，避免时区换算把日期推到前一天或后一天
func ParseStartDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if d, err := recurrence.ParseDay(s, loc); err == nil {
		return d.Add(12 * time.Hour), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: start_date %q 既不是 YYYY-MM-DD 也不是 RFC3339", ErrInvalidPatch, s)
	}
	return t, nil
}

// ParseCivilDate 解析 YYYY-MM-DD 为 DATE 列值
func ParseCivilDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(recurrence.DayLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: 日期 %q 格式应为 YYYY-MM-DD", ErrInvalidPatch, s)
	}
	return d, nil
}

// ValidateClock 校验 HH:MM
func ValidateClock(field string, v *string) error {
	if v == nil {
		return nil
	}
	if err := clockValidator().Var(*v, clockRule); err != nil {
		return fmt.Errorf("%w: %s %q 格式应为 HH:MM", ErrInvalidPatch, field, *v)
	}
	return nil
}

// clockValidator 优先复用 gin 的校验引擎
func clockValidator() *validator.Validate {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		return v
	}
	return fallbackValidator
}

// ValidateRule 校验可选的重复规则
func ValidateRule(v *string) error {
	if v == nil || *v == "" {
		return nil
	}
	if err := recurrence.Validate(*v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	return nil
}

// DecodeEventPatch 解析 PATCH 请求体
// 缺省的键不修改；可空字段显式传 null 表示清空；未知键忽略
func DecodeEventPatch(body []byte, loc *time.Location) (model.EventPatch, error) {
	var patch model.EventPatch

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return patch, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return patch, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}

	var err error
	if patch.Name, err = requiredString(raw, "name"); err != nil {
		return patch, err
	}
	if name, ok := patch.Name.Get(); ok && strings.TrimSpace(name) == "" {
		return patch, fmt.Errorf("%w: name 不能为空", ErrInvalidPatch)
	}
	if patch.Color, err = requiredString(raw, "color"); err != nil {
		return patch, err
	}
	if patch.Description, err = nullableString(raw, "description"); err != nil {
		return patch, err
	}
	if patch.Location, err = nullableString(raw, "location"); err != nil {
		return patch, err
	}
	if patch.StartTime, err = nullableString(raw, "start_time"); err != nil {
		return patch, err
	}
	if patch.EndTime, err = nullableString(raw, "end_time"); err != nil {
		return patch, err
	}
	if patch.RecurrenceRule, err = nullableString(raw, "recurrence_rule"); err != nil {
		return patch, err
	}

	for field, opt := range map[string]mo.Option[*string]{"start_time": patch.StartTime, "end_time": patch.EndTime} {
		if v, ok := opt.Get(); ok {
			if err := ValidateClock(field, v); err != nil {
				return patch, err
			}
		}
	}
	if v, ok := patch.RecurrenceRule.Get(); ok {
		if err := ValidateRule(v); err != nil {
			return patch, err
		}
		if v != nil && *v == "" {
			patch.RecurrenceRule = mo.Some[*string](nil)
		}
	}

	if msg, ok := raw["is_all_day"]; ok {
		var v *bool
		if err := json.Unmarshal(msg, &v); err != nil || v == nil {
			return patch, fmt.Errorf("%w: is_all_day 必须为布尔值", ErrInvalidPatch)
		}
		patch.IsAllDay = mo.Some(*v)
	}

	if msg, ok := raw["start_date"]; ok {
		var v *string
		if err := json.Unmarshal(msg, &v); err != nil || v == nil {
			return patch, fmt.Errorf("%w: start_date 必须为字符串", ErrInvalidPatch)
		}
		t, err := ParseStartDate(*v, loc)
		if err != nil {
			return patch, err
		}
		patch.StartDate = mo.Some(t)
		_, dayErr := recurrence.ParseDay(strings.TrimSpace(*v), loc)
		patch.StartDayOnly = dayErr == nil
	}

	if msg, ok := raw["recurrence_end"]; ok {
		var v *string
		if err := json.Unmarshal(msg, &v); err != nil {
			return patch, fmt.Errorf("%w: recurrence_end 必须为字符串或 null", ErrInvalidPatch)
		}
		if v == nil || *v == "" {
			patch.RecurrenceEnd = mo.Some[*time.Time](nil)
		} else {
			d, err := ParseCivilDate(*v)
			if err != nil {
				return patch, err
			}
			patch.RecurrenceEnd = mo.Some(&d)
		}
	}

	return patch, nil
}

func requiredString(raw map[string]json.RawMessage, key string) (mo.Option[string], error) {
	msg, ok := raw[key]
	if !ok {
		return mo.None[string](), nil
	}
	var v *string
	if err := json.Unmarshal(msg, &v); err != nil || v == nil {
		return mo.None[string](), fmt.Errorf("%w: %s 必须为非空字符串", ErrInvalidPatch, key)
	}
	return mo.Some(*v), nil
}

func nullableString(raw map[string]json.RawMessage, key string) (mo.Option[*string], error) {
	msg, ok := raw[key]
	if !ok {
		return mo.None[*string](), nil
	}
	var v *string
	if err := json.Unmarshal(msg, &v); err != nil {
		return mo.None[*string](), fmt.Errorf("%w: %s 必须为字符串或 null", ErrInvalidPatch, key)
	}
	return mo.Some(v), nil
}

// ── 响应 ──

// EventResponse 系列响应
type EventResponse struct {
	ID             string              `json:"id"`
	FamilyID       string              `json:"family_id"`
	Name           string              `json:"name"`
	Description    *string             `json:"description"`
	Location       *string             `json:"location"`
	Color          string              `json:"color"`
	StartDate      string              `json:"start_date"`
	StartTime      *string             `json:"start_time"`
	EndTime        *string             `json:"end_time"`
	IsAllDay       bool                `json:"is_all_day"`
	RecurrenceRule *string             `json:"recurrence_rule"`
	RecurrenceEnd  *string             `json:"recurrence_end"`
	Version        int                 `json:"version"`
	Exceptions     []ExceptionResponse `json:"exceptions,omitempty"`
	CreatedAt      string              `json:"created_at"`
	UpdatedAt      string              `json:"updated_at"`
}

// ExceptionResponse 例外记录响应
type ExceptionResponse struct {
	ID                string  `json:"id"`
	EventID           string  `json:"event_id"`
	OriginalDate      string  `json:"original_date"`
	IsCancelled       bool    `json:"is_cancelled"`
	ModifiedName      *string `json:"modified_name"`
	ModifiedStartTime *string `json:"modified_start_time"`
	ModifiedEndTime   *string `json:"modified_end_time"`
	ModifiedLocation  *string `json:"modified_location"`
}

// InstanceResponse 展开后的一次发生
type InstanceResponse struct {
	ID                  string   `json:"id"`
	FamilyID            string   `json:"family_id"`
	Name                string   `json:"name"`
	Description         *string  `json:"description"`
	Location            *string  `json:"location"`
	Color               string   `json:"color"`
	StartDate           string   `json:"start_date"`
	StartTime           *string  `json:"start_time"`
	EndTime             *string  `json:"end_time"`
	IsAllDay            bool     `json:"is_all_day"`
	RecurrenceRule      *string  `json:"recurrence_rule"`
	RecurrenceEnd       *string  `json:"recurrence_end"`
	InstanceDate        int64    `json:"instance_date"` // 毫秒时间戳
	IsRecurringInstance bool     `json:"is_recurring_instance"`
	OverriddenFields    []string `json:"overridden_fields,omitempty"`
	UpdatedAt           string   `json:"updated_at"`
}

// DiagnosticResponse 展开过程中的非致命问题
type DiagnosticResponse struct {
	SeriesID string `json:"series_id"`
	Kind     string `json:"kind"` // rule_parse_error | truncated
	Rule     string `json:"rule,omitempty"`
	Message  string `json:"message"`
}

// InstanceListResponse 展开查询响应
type InstanceListResponse struct {
	List        []InstanceResponse   `json:"list"`
	Diagnostics []DiagnosticResponse `json:"diagnostics"`
}

// MutationResponse 写接口响应
// Event 为写入后的当前系列；thisAndFuture 时同时给出被截断的原系列和新系列
type MutationResponse struct {
	Event         *EventResponse     `json:"event,omitempty"`
	OriginalEvent *EventResponse     `json:"original_event,omitempty"`
	CreatedEvent  *EventResponse     `json:"created_event,omitempty"`
	Exception     *ExceptionResponse `json:"exception,omitempty"`
	Deleted       bool               `json:"deleted,omitempty"`
}

// OverlapResponse 同族系列重叠
type OverlapResponse struct {
	FamilyID     string `json:"family_id"`
	FirstID      string `json:"first_id"`
	SecondID     string `json:"second_id"`
	OverlapStart string `json:"overlap_start"`
	OverlapEnd   string `json:"overlap_end"` // 空表示无上界
}
