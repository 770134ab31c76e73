package service

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"sashi-calendar/backend/internal/model"
	"sashi-calendar/backend/pkg/recurrence"
)

// 诊断类型
const (
	DiagnosticRuleParseError = "rule_parse_error"
	DiagnosticTruncated      = "truncated"
)

// Instance 展开后的一次发生（派生数据，从不落库）
// 展示字段已叠加例外覆盖；SeriesID + InstanceDate 唯一标识一次发生
type Instance struct {
	SeriesID            string
	FamilyID            string
	Name                string
	Description         *string
	Location            *string
	Color               string
	StartDate           time.Time
	StartTime           *string
	EndTime             *string
	IsAllDay            bool
	RecurrenceRule      *string
	RecurrenceEnd       *time.Time
	InstanceDate        time.Time
	IsRecurringInstance bool
	OverriddenFields    []string
	UpdatedAt           time.Time
}

// Diagnostic 展开过程中的非致命问题
type Diagnostic struct {
	SeriesID string
	Kind     string
	Rule     string
	Err      error
}

// Expansion 一次展开的结果
type Expansion struct {
	Instances   []Instance
	Diagnostics []Diagnostic
}

// OccurrenceExpander 把系列、例外和规则求值结果合成为可展示的发生列表
// 无共享可变状态，可被并发请求同时使用
type OccurrenceExpander struct {
	evaluator      recurrence.Evaluator
	loc            *time.Location
	maxOccurrences int
}

// NewOccurrenceExpander 创建展开器；maxOccurrences <= 0 表示不限制
func NewOccurrenceExpander(evaluator recurrence.Evaluator, loc *time.Location, maxOccurrences int) *OccurrenceExpander {
	if loc == nil {
		loc = time.UTC
	}
	return &OccurrenceExpander{evaluator: evaluator, loc: loc, maxOccurrences: maxOccurrences}
}

// Location 日历时区
func (x *OccurrenceExpander) Location() *time.Location {
	return x.loc
}

// Expand 展开 [windowStart, windowEnd]（两端包含）内的全部发生
// 输出按 InstanceDate 升序；同一时刻的不同系列保持输入顺序
func (x *OccurrenceExpander) Expand(series []model.Event, exceptions []model.EventException, windowStart, windowEnd time.Time) Expansion {
	bySeries := make(map[string]map[string]*model.EventException, len(series))
	for i := range exceptions {
		ex := &exceptions[i]
		m, ok := bySeries[ex.EventID]
		if !ok {
			m = make(map[string]*model.EventException)
			bySeries[ex.EventID] = m
		}
		m[recurrence.CivilKey(ex.OriginalDate)] = ex
	}

	out := Expansion{Instances: []Instance{}, Diagnostics: []Diagnostic{}}
	for i := range series {
		instances, diags := x.expandSeries(&series[i], bySeries[series[i].EventID], windowStart, windowEnd)
		out.Instances = append(out.Instances, instances...)
		out.Diagnostics = append(out.Diagnostics, diags...)
	}

	sort.SliceStable(out.Instances, func(i, j int) bool {
		return out.Instances[i].InstanceDate.Before(out.Instances[j].InstanceDate)
	})
	return out
}

func (x *OccurrenceExpander) expandSeries(s *model.Event, exceptions map[string]*model.EventException, windowStart, windowEnd time.Time) ([]Instance, []Diagnostic) {
	if !s.IsRecurring() {
		return x.single(s, windowStart, windowEnd), nil
	}

	rule := *s.RecurrenceRule
	to := windowEnd
	if s.RecurrenceEnd != nil {
		capEnd := recurrence.EndOfDay(recurrence.FromCivil(*s.RecurrenceEnd, x.loc), x.loc)
		if capEnd.Before(to) {
			to = capEnd
		}
	}
	if to.Before(windowStart) {
		return nil, nil
	}

	anchor := s.StartDate.In(x.loc)
	dates, err := x.evaluator.Evaluate(rule, anchor, windowStart, to)
	if err != nil {
		var perr *recurrence.RuleParseError
		if !errors.As(err, &perr) {
			err = &recurrence.RuleParseError{Rule: rule, Err: err}
		}
		diag := Diagnostic{SeriesID: s.EventID, Kind: DiagnosticRuleParseError, Rule: rule, Err: err}
		return x.single(s, windowStart, windowEnd), []Diagnostic{diag}
	}

	var diags []Diagnostic
	if x.maxOccurrences > 0 && len(dates) > x.maxOccurrences {
		diags = append(diags, Diagnostic{
			SeriesID: s.EventID,
			Kind:     DiagnosticTruncated,
			Rule:     rule,
			Err:      fmt.Errorf("窗口内发生次数 %d 超过上限 %d，已截断", len(dates), x.maxOccurrences),
		})
		dates = dates[:x.maxOccurrences]
	}

	instances := make([]Instance, 0, len(dates))
	for _, d := range dates {
		ex := exceptions[recurrence.DayKey(d, x.loc)]
		if ex != nil && ex.IsCancelled {
			continue
		}
		inst := baseInstance(s, d, true)
		if ex != nil {
			overlay(&inst, ex)
		}
		instances = append(instances, inst)
	}
	return instances, diags
}

// single 非重复系列：唯一的发生就是 StartDate
func (x *OccurrenceExpander) single(s *model.Event, windowStart, windowEnd time.Time) []Instance {
	if s.StartDate.Before(windowStart) || s.StartDate.After(windowEnd) {
		return nil
	}
	return []Instance{baseInstance(s, s.StartDate, false)}
}

func baseInstance(s *model.Event, at time.Time, recurring bool) Instance {
	return Instance{
		SeriesID:            s.EventID,
		FamilyID:            s.FamilyID,
		Name:                s.Name,
		Description:         s.Description,
		Location:            s.Location,
		Color:               s.Color,
		StartDate:           s.StartDate,
		StartTime:           s.StartTime,
		EndTime:             s.EndTime,
		IsAllDay:            s.IsAllDay,
		RecurrenceRule:      s.RecurrenceRule,
		RecurrenceEnd:       s.RecurrenceEnd,
		InstanceDate:        at,
		IsRecurringInstance: recurring,
		UpdatedAt:           s.UpdatedAt,
	}
}

// overlay 非空的 modified* 字段覆盖系列字段
func overlay(inst *Instance, ex *model.EventException) {
	if ex.ModifiedName != nil {
		inst.Name = *ex.ModifiedName
		inst.OverriddenFields = append(inst.OverriddenFields, "name")
	}
	if ex.ModifiedStartTime != nil {
		inst.StartTime = ex.ModifiedStartTime
		inst.OverriddenFields = append(inst.OverriddenFields, "start_time")
	}
	if ex.ModifiedEndTime != nil {
		inst.EndTime = ex.ModifiedEndTime
		inst.OverriddenFields = append(inst.OverriddenFields, "end_time")
	}
	if ex.ModifiedLocation != nil {
		inst.Location = ex.ModifiedLocation
		inst.OverriddenFields = append(inst.OverriddenFields, "location")
	}
	if ex.UpdatedAt.After(inst.UpdatedAt) {
		inst.UpdatedAt = ex.UpdatedAt
	}
}
