package service

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"sashi-calendar/backend/internal/model"
	"sashi-calendar/backend/pkg/recurrence"
)

// ── 测试辅助 ──

func strPtr(s string) *string { return &s }

func civil(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func civilPtr(y int, m time.Month, d int) *time.Time {
	t := civil(y, m, d)
	return &t
}

func january() (time.Time, time.Time) {
	return civil(2026, 1, 1), recurrence.EndOfDay(civil(2026, 1, 31), time.UTC)
}

// standup 周一例会：2026-01-05 起，每周一 09:00-09:15
func standup() model.Event {
	return model.Event{
		EventID:        "series-standup",
		FamilyID:       "series-standup",
		Name:           "Standup",
		Color:          model.DefaultEventColor,
		StartDate:      time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC),
		StartTime:      strPtr("09:00"),
		EndTime:        strPtr("09:15"),
		RecurrenceRule: strPtr("FREQ=WEEKLY;BYDAY=MO"),
	}
}

func newTestExpander() *OccurrenceExpander {
	return NewOccurrenceExpander(recurrence.NewRRuleEvaluator(), time.UTC, 0)
}

func instanceDays(list []Instance) []int {
	days := make([]int, 0, len(list))
	for _, inst := range list {
		days = append(days, inst.InstanceDate.Day())
	}
	return days
}

type failingEvaluator struct{}

func (failingEvaluator) Evaluate(rule string, _, _, _ time.Time) ([]time.Time, error) {
	return nil, &recurrence.RuleParseError{Rule: rule, Err: errors.New("boom")}
}

// ── 基本展开 ──

func TestExpand_WeeklySeries(t *testing.T) {
	x := newTestExpander()
	from, to := january()

	got := x.Expand([]model.Event{standup()}, nil, from, to)

	if want := []int{5, 12, 19, 26}; !reflect.DeepEqual(instanceDays(got.Instances), want) {
		t.Fatalf("期望 %v，实际 %v", want, instanceDays(got.Instances))
	}
	for _, inst := range got.Instances {
		if !inst.IsRecurringInstance {
			t.Error("重复系列的发生应标记 IsRecurringInstance=true")
		}
		if inst.SeriesID != "series-standup" {
			t.Errorf("期望 SeriesID=series-standup，实际 %s", inst.SeriesID)
		}
	}
	if len(got.Diagnostics) != 0 {
		t.Errorf("不应有诊断信息: %+v", got.Diagnostics)
	}
}

func TestExpand_CancelledOccurrenceSuppressed(t *testing.T) {
	x := newTestExpander()
	from, to := january()
	exceptions := []model.EventException{
		{EventID: "series-standup", OriginalDate: civil(2026, 1, 12), IsCancelled: true, ModifiedName: strPtr("ignored")},
	}

	got := x.Expand([]model.Event{standup()}, exceptions, from, to)

	if want := []int{5, 19, 26}; !reflect.DeepEqual(instanceDays(got.Instances), want) {
		t.Fatalf("期望 %v，实际 %v", want, instanceDays(got.Instances))
	}
}

func TestExpand_ModifiedStartTimeOnlyOnThatDay(t *testing.T) {
	x := newTestExpander()
	from, to := january()
	exceptions := []model.EventException{
		{EventID: "series-standup", OriginalDate: civil(2026, 1, 19), ModifiedStartTime: strPtr("15:00")},
	}

	got := x.Expand([]model.Event{standup()}, exceptions, from, to)
	if len(got.Instances) != 4 {
		t.Fatalf("期望 4 次发生，实际 %d", len(got.Instances))
	}
	for _, inst := range got.Instances {
		want := "09:00"
		if inst.InstanceDate.Day() == 19 {
			want = "15:00"
			if !reflect.DeepEqual(inst.OverriddenFields, []string{"start_time"}) {
				t.Errorf("期望 OverriddenFields=[start_time]，实际 %v", inst.OverriddenFields)
			}
		}
		if *inst.StartTime != want {
			t.Errorf("%d 日期望 startTime=%s，实际 %s", inst.InstanceDate.Day(), want, *inst.StartTime)
		}
		if *inst.EndTime != "09:15" {
			t.Errorf("endTime 应继承系列，实际 %s", *inst.EndTime)
		}
	}
}

// 例外按日历日匹配，与原始发生的时刻无关
func TestExpand_ExceptionMatchesByCalendarDay(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Skipf("缺少时区数据: %v", err)
	}
	x := NewOccurrenceExpander(recurrence.NewRRuleEvaluator(), loc, 0)

	s := standup()
	s.StartDate = time.Date(2026, 1, 5, 20, 0, 0, 0, loc) // UTC 已是次日
	exceptions := []model.EventException{
		{EventID: s.EventID, OriginalDate: civil(2026, 1, 12), IsCancelled: true},
	}

	got := x.Expand([]model.Event{s}, exceptions, time.Date(2026, 1, 1, 0, 0, 0, 0, loc), time.Date(2026, 1, 31, 23, 59, 59, 0, loc))
	for _, inst := range got.Instances {
		if recurrence.DayKey(inst.InstanceDate, loc) == "2026-01-12" {
			t.Fatal("1 月 12 日的发生应被取消")
		}
	}
	if len(got.Instances) != 3 {
		t.Errorf("期望 3 次发生，实际 %d", len(got.Instances))
	}
}

// ── 不变量 ──

func TestExpand_Idempotent(t *testing.T) {
	x := newTestExpander()
	from, to := january()
	series := []model.Event{standup()}
	exceptions := []model.EventException{
		{EventID: "series-standup", OriginalDate: civil(2026, 1, 19), ModifiedName: strPtr("Retro")},
	}

	a := x.Expand(series, exceptions, from, to)
	b := x.Expand(series, exceptions, from, to)
	if !reflect.DeepEqual(a, b) {
		t.Error("相同输入两次展开的结果应完全一致")
	}
}

func TestExpand_NonRecurringInvariant(t *testing.T) {
	x := newTestExpander()
	from, to := january()
	start := time.Date(2026, 1, 14, 12, 0, 0, 0, time.UTC)
	one := model.Event{EventID: "one-off", Name: "Dentist", StartDate: start, RecurrenceEnd: civilPtr(2025, 1, 1)}

	got := x.Expand([]model.Event{one}, []model.EventException{
		{EventID: "one-off", OriginalDate: civil(2026, 1, 14), IsCancelled: true},
	}, from, to)
	if len(got.Instances) != 1 {
		t.Fatalf("单次事件应恰好一次发生，实际 %d", len(got.Instances))
	}
	if !got.Instances[0].InstanceDate.Equal(start) {
		t.Errorf("发生时刻应等于 startDate，实际 %v", got.Instances[0].InstanceDate)
	}
	if got.Instances[0].IsRecurringInstance {
		t.Error("单次事件的发生应标记 IsRecurringInstance=false")
	}

	outside := x.Expand([]model.Event{one}, nil, civil(2026, 2, 1), civil(2026, 2, 28))
	if len(outside.Instances) != 0 {
		t.Errorf("窗口外的单次事件不应出现，实际 %d", len(outside.Instances))
	}
}

func TestExpand_OverridePrecedenceAfterRename(t *testing.T) {
	x := newTestExpander()
	from, to := january()
	s := standup()
	s.Name = "Y"
	exceptions := []model.EventException{
		{EventID: s.EventID, OriginalDate: civil(2026, 1, 12), ModifiedName: strPtr("X")},
	}

	got := x.Expand([]model.Event{s}, exceptions, from, to)
	for _, inst := range got.Instances {
		want := "Y"
		if inst.InstanceDate.Day() == 12 {
			want = "X"
		}
		if inst.Name != want {
			t.Errorf("%d 日期望 name=%s，实际 %s", inst.InstanceDate.Day(), want, inst.Name)
		}
	}
}

func TestExpand_RecurrenceEndInclusive(t *testing.T) {
	x := newTestExpander()
	from, to := january()
	s := standup()
	s.RecurrenceEnd = civilPtr(2026, 1, 19)

	got := x.Expand([]model.Event{s}, nil, from, to)
	if want := []int{5, 12, 19}; !reflect.DeepEqual(instanceDays(got.Instances), want) {
		t.Fatalf("期望 %v，实际 %v", want, instanceDays(got.Instances))
	}

	// 截断到起始日之前的系列没有任何发生
	s.RecurrenceEnd = civilPtr(2026, 1, 4)
	if got := x.Expand([]model.Event{s}, nil, from, to); len(got.Instances) != 0 {
		t.Errorf("自终止系列不应产生发生，实际 %d", len(got.Instances))
	}
}

// ── 降级与排序 ──

func TestExpand_MalformedRuleFallsBackToAnchor(t *testing.T) {
	x := newTestExpander()
	from, to := january()
	s := standup()
	s.RecurrenceRule = strPtr("FREQ=FORTNIGHTLY")

	got := x.Expand([]model.Event{s}, nil, from, to)
	if len(got.Instances) != 1 {
		t.Fatalf("规则非法时应只保留锚点，实际 %d", len(got.Instances))
	}
	if got.Instances[0].IsRecurringInstance {
		t.Error("降级后的发生应按单次事件处理")
	}
	if len(got.Diagnostics) != 1 || got.Diagnostics[0].Kind != DiagnosticRuleParseError {
		t.Fatalf("期望一条 rule_parse_error 诊断，实际 %+v", got.Diagnostics)
	}
	var perr *recurrence.RuleParseError
	if !errors.As(got.Diagnostics[0].Err, &perr) {
		t.Errorf("诊断应携带 *RuleParseError，实际 %T", got.Diagnostics[0].Err)
	}

	// 锚点不在窗口内时降级结果为空，但诊断仍然存在
	feb := x.Expand([]model.Event{s}, nil, civil(2026, 2, 1), civil(2026, 2, 28))
	if len(feb.Instances) != 0 || len(feb.Diagnostics) != 1 {
		t.Errorf("期望 0 次发生和 1 条诊断，实际 %d / %d", len(feb.Instances), len(feb.Diagnostics))
	}
}

func TestExpand_EvaluatorErrorNeverEscapes(t *testing.T) {
	x := NewOccurrenceExpander(failingEvaluator{}, time.UTC, 0)
	from, to := january()

	got := x.Expand([]model.Event{standup()}, nil, from, to)
	if len(got.Instances) != 1 || len(got.Diagnostics) != 1 {
		t.Fatalf("期望 1 次发生和 1 条诊断，实际 %d / %d", len(got.Instances), len(got.Diagnostics))
	}
}

func TestExpand_StableOrderAcrossSeries(t *testing.T) {
	x := newTestExpander()
	from, to := january()

	a := standup()
	a.EventID = "a"
	b := standup()
	b.EventID = "b"
	daily := model.Event{
		EventID:        "daily",
		Name:           "Daily",
		StartDate:      time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC),
		RecurrenceRule: strPtr("FREQ=DAILY"),
	}

	got := x.Expand([]model.Event{b, daily, a}, nil, from, to)
	for i := 1; i < len(got.Instances); i++ {
		if got.Instances[i].InstanceDate.Before(got.Instances[i-1].InstanceDate) {
			t.Fatalf("输出应按 InstanceDate 升序，位置 %d 乱序", i)
		}
	}

	// 同一时刻的 b 与 a 保持输入顺序
	var sameSlot []string
	for _, inst := range got.Instances {
		if inst.InstanceDate.Equal(time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC)) {
			sameSlot = append(sameSlot, inst.SeriesID)
		}
	}
	if !reflect.DeepEqual(sameSlot, []string{"b", "a"}) {
		t.Errorf("同一时刻应保持输入顺序 [b a]，实际 %v", sameSlot)
	}
}

func TestExpand_TruncatesAtCap(t *testing.T) {
	x := NewOccurrenceExpander(recurrence.NewRRuleEvaluator(), time.UTC, 10)
	from, to := january()
	daily := model.Event{
		EventID:        "daily",
		StartDate:      time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC),
		RecurrenceRule: strPtr("FREQ=DAILY"),
	}

	got := x.Expand([]model.Event{daily}, nil, from, to)
	if len(got.Instances) != 10 {
		t.Errorf("期望截断为 10 次，实际 %d", len(got.Instances))
	}
	if len(got.Diagnostics) != 1 || got.Diagnostics[0].Kind != DiagnosticTruncated {
		t.Errorf("期望一条 truncated 诊断，实际 %+v", got.Diagnostics)
	}
}
