package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"sashi-calendar/backend/internal/dto"
	"sashi-calendar/backend/pkg/recurrence"
)

// ── 导出模块业务错误 ──

var (
	ErrExportGenerateFail = errors.New("生成导出文件失败")
)

// ExportService 导出业务接口
//
// 设计说明：
//   - 导出与读接口使用同一次展开，窗口参数含义一致
//   - 以 bytes.Buffer 返回，由 Handler 层设置 HTTP 响应头后写入 Response
type ExportService interface {
	// ExportICS 导出窗口内的全部发生为 iCalendar
	ExportICS(ctx context.Context, req *dto.ListEventsRequest) (*bytes.Buffer, string, error)
	// ExportXLSX 导出窗口内的全部发生为 Excel
	ExportXLSX(ctx context.Context, req *dto.ListEventsRequest) (*bytes.Buffer, string, error)
}

type exportService struct {
	events EventService
	loc    *time.Location
	logger *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(events EventService, loc *time.Location, logger *zap.Logger) ExportService {
	return &exportService{events: events, loc: loc, logger: logger}
}

// ═══════════════════════════════════════════════════════════
// ExportICS 每次发生输出为一个独立的 VEVENT
// ═══════════════════════════════════════════════════════════
//
// UID 使用 "<系列ID>-<发生日期>"，同一次发生多次导出得到相同 UID

func (s *exportService) ExportICS(ctx context.Context, req *dto.ListEventsRequest) (*bytes.Buffer, string, error) {
	expansion, err := s.events.Expand(ctx, req)
	if err != nil {
		return nil, "", err
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//sashi//calendar//ZH")
	cal.SetXWRTimezone(s.loc.String())

	stamp := time.Now().UTC()
	for i := range expansion.Instances {
		inst := &expansion.Instances[i]
		day := recurrence.StartOfDay(inst.InstanceDate, s.loc)

		ev := cal.AddEvent(fmt.Sprintf("%s-%s", inst.SeriesID, day.Format("20060102")))
		ev.SetDtStampTime(stamp)
		ev.SetModifiedAt(inst.UpdatedAt)
		ev.SetSummary(inst.Name)
		if inst.Description != nil {
			ev.SetDescription(*inst.Description)
		}
		if inst.Location != nil {
			ev.SetLocation(*inst.Location)
		}

		start, end, allDay := s.bounds(inst, day)
		if allDay {
			ev.SetAllDayStartAt(start)
			ev.SetAllDayEndAt(end)
		} else {
			ev.SetStartAt(start)
			ev.SetEndAt(end)
		}
	}

	buf := bytes.NewBufferString(cal.Serialize())
	return buf, fmt.Sprintf("calendar_%s.ics", time.Now().In(s.loc).Format("20060102")), nil
}

// ═══════════════════════════════════════════════════════════
// ExportXLSX 单 Sheet，按发生时间排序
// ═══════════════════════════════════════════════════════════
//
// 列：日期 | 开始 | 结束 | 名称 | 地点 | 重复规则 | 已覆盖字段

func (s *exportService) ExportXLSX(ctx context.Context, req *dto.ListEventsRequest) (*bytes.Buffer, string, error) {
	expansion, err := s.events.Expand(ctx, req)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "日程"
	idx, _ := f.NewSheet(sheetName)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	f.SetColWidth(sheetName, "A", "A", 12)
	f.SetColWidth(sheetName, "B", "C", 8)
	f.SetColWidth(sheetName, "D", "E", 24)
	f.SetColWidth(sheetName, "F", "F", 28)
	f.SetColWidth(sheetName, "G", "G", 20)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	headers := []string{"日期", "开始", "结束", "名称", "地点", "重复规则", "已覆盖字段"}
	for i, h := range headers {
		f.SetCellValue(sheetName, cell(colName(i), 1), h)
	}
	f.SetCellStyle(sheetName, "A1", cell(colName(len(headers)-1), 1), headerStyle)

	row := 2
	for i := range expansion.Instances {
		inst := &expansion.Instances[i]
		f.SetCellValue(sheetName, cell("A", row), recurrence.DayKey(inst.InstanceDate, s.loc))
		if inst.IsAllDay || inst.StartTime == nil {
			f.SetCellValue(sheetName, cell("B", row), "全天")
		} else {
			f.SetCellValue(sheetName, cell("B", row), *inst.StartTime)
			if inst.EndTime != nil {
				f.SetCellValue(sheetName, cell("C", row), *inst.EndTime)
			}
		}
		f.SetCellValue(sheetName, cell("D", row), inst.Name)
		if inst.Location != nil {
			f.SetCellValue(sheetName, cell("E", row), *inst.Location)
		}
		if inst.RecurrenceRule != nil {
			f.SetCellValue(sheetName, cell("F", row), *inst.RecurrenceRule)
		}
		f.SetCellValue(sheetName, cell("G", row), strings.Join(inst.OverriddenFields, ","))
		row++
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	return buf, fmt.Sprintf("日程_%s.xlsx", time.Now().In(s.loc).Format("20060102")), nil
}

// bounds 计算一次发生的起止时刻
// 全天或缺少开始时间时返回 [当天, 次日)；缺少结束时间按一小时处理
func (s *exportService) bounds(inst *Instance, day time.Time) (time.Time, time.Time, bool) {
	if inst.IsAllDay || inst.StartTime == nil {
		return day, day.AddDate(0, 0, 1), true
	}
	start := atClock(day, *inst.StartTime, s.loc)
	end := start.Add(time.Hour)
	if inst.EndTime != nil {
		end = atClock(day, *inst.EndTime, s.loc)
		if !end.After(start) {
			end = end.AddDate(0, 0, 1) // 跨午夜
		}
	}
	return start, end, false
}

func atClock(day time.Time, clock string, loc *time.Location) time.Time {
	t, err := time.ParseInLocation("15:04", clock, loc)
	if err != nil {
		return day
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, loc)
}

// ── 辅助函数 ──

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
