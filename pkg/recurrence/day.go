package recurrence

import "time"

// DayLayout 日期参数与日期列的格式
const DayLayout = "2006-01-02"

// StartOfDay 返回 t 在 loc 中所属日历日的零点
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

// EndOfDay 返回 t 在 loc 中所属日历日的最后一纳秒
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	return StartOfDay(t, loc).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// DayKey 日历日键；同一天内的两个时刻得到相同的键
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DayLayout)
}

// Civil 把 t 所在日历日表示为 UTC 零点，对应数据库 DATE 列的读回形式
func Civil(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, time.UTC)
}

// CivilKey 读取 DATE 列值的日历日键
func CivilKey(d time.Time) string {
	return d.UTC().Format(DayLayout)
}

// FromCivil 把 DATE 列值还原为 loc 中当天零点
func FromCivil(d time.Time, loc *time.Location) time.Time {
	u := d.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, loc)
}

// ParseDay 解析 YYYY-MM-DD，返回 loc 中当天零点
func ParseDay(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DayLayout, s, loc)
}

// DaysBetween 两个日历日之间的天数差（b - a）
func DaysBetween(a, b time.Time, loc *time.Location) int {
	ca, cb := Civil(a, loc), Civil(b, loc)
	return int(cb.Sub(ca).Hours() / 24)
}

// WithDay 保留 t 在 loc 中的时分秒，把日期换成 day 所在日历日
func WithDay(t, day time.Time, loc *time.Location) time.Time {
	lt, ld := t.In(loc), day.In(loc)
	return time.Date(ld.Year(), ld.Month(), ld.Day(), lt.Hour(), lt.Minute(), lt.Second(), lt.Nanosecond(), loc)
}

// WeekWindow 返回包含 now 的一周：起始日零点到第七天结束
func WeekWindow(now time.Time, loc *time.Location, weekStart time.Weekday) (time.Time, time.Time) {
	day := StartOfDay(now, loc)
	offset := (int(day.Weekday()) - int(weekStart) + 7) % 7
	start := day.AddDate(0, 0, -offset)
	end := EndOfDay(start.AddDate(0, 0, 6), loc)
	return start, end
}
