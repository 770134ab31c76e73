package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sashi-calendar/backend/internal/dto"
	"sashi-calendar/backend/pkg/recurrence"
)

// Dispatcher 发起修改的唯一入口：乐观写缓存 → 调用服务端 → 确认或回滚 → 记录撤销
// 单次失败即终止并提示用户，是否重试由调用方决定
type Dispatcher struct {
	cache     *Cache
	transport Transport
	undo      *UndoBuffer
	notifier  Notifier
	loc       *time.Location
}

// NewDispatcher undo 由调用方持有，可为 nil（不记录撤销）
func NewDispatcher(cache *Cache, transport Transport, undo *UndoBuffer, notifier Notifier) *Dispatcher {
	return &Dispatcher{
		cache:     cache,
		transport: transport,
		undo:      undo,
		notifier:  notifier,
		loc:       cache.loc,
	}
}

// Reload 后台拉取窗口并按冲突策略合并进缓存
func (d *Dispatcher) Reload(ctx context.Context, start, end time.Time) (SyncStats, error) {
	resp, err := d.transport.List(ctx, recurrence.DayKey(start, d.loc), recurrence.DayKey(end, d.loc))
	if err != nil {
		return SyncStats{}, err
	}
	return d.cache.Sync(recurrence.StartOfDay(start, d.loc), recurrence.EndOfDay(end, d.loc), resp.List), nil
}

// Update 按作用域修改
func (d *Dispatcher) Update(ctx context.Context, m Mutation, description string) error {
	m.Delete = false
	return d.run(ctx, []Mutation{m}, UndoUpdate, description, true)
}

// Delete 按作用域删除
func (d *Dispatcher) Delete(ctx context.Context, m Mutation, description string) error {
	m.Delete = true
	m.Patch = nil
	return d.run(ctx, []Mutation{m}, UndoDelete, description, true)
}

// Move 把一次发生移到 newDay，newStart 非空时同时改开始时间并保持原时长
// instanceDate 为缓存中该实例的毫秒时间戳
func (d *Dispatcher) Move(ctx context.Context, seriesID string, instanceDate int64, scope, newDay string, newStart *string) error {
	m, err := d.moveMutation(seriesID, instanceDate, scope, newDay, newStart)
	if err != nil {
		return err
	}
	return d.run(ctx, []Mutation{m}, UndoMove, "移动日程", true)
}

// MoveRequest 批量移动中的一项
type MoveRequest struct {
	SeriesID     string
	InstanceDate int64
	Scope        string
	NewDay       string
	NewStart     *string
}

// BatchMove 多个实例一起移动；服务端失败时整体回滚
func (d *Dispatcher) BatchMove(ctx context.Context, moves []MoveRequest) error {
	ms := make([]Mutation, 0, len(moves))
	for _, mv := range moves {
		m, err := d.moveMutation(mv.SeriesID, mv.InstanceDate, mv.Scope, mv.NewDay, mv.NewStart)
		if err != nil {
			return err
		}
		ms = append(ms, m)
	}
	return d.run(ctx, ms, UndoMove, fmt.Sprintf("移动 %d 个日程", len(ms)), true)
}

// Undo 撤销最近一次操作；失败时记录放回缓冲区
func (d *Dispatcher) Undo(ctx context.Context) (bool, error) {
	if d.undo == nil {
		return false, nil
	}
	rec, ok := d.undo.Pop()
	if !ok {
		d.notifier.Info("没有可撤销的操作")
		return false, nil
	}

	var err error
	if rec.Kind == UndoDelete {
		_, err = d.transport.Create(ctx, rec.InversePatch)
		if err != nil {
			d.notifier.Failure("撤销失败: "+rec.Description, err)
		} else {
			d.notifier.Success("已撤销: " + rec.Description)
		}
	} else {
		err = d.run(ctx, []Mutation{{
			SeriesID: rec.TargetID,
			Scope:    rec.Scope,
			Date:     rec.Date,
			Patch:    rec.InversePatch,
		}}, rec.Kind, "撤销: "+rec.Description, false)
	}
	if err != nil {
		d.undo.Push(rec)
		return false, err
	}
	return true, nil
}

func (d *Dispatcher) moveMutation(seriesID string, instanceDate int64, scope, newDay string, newStart *string) (Mutation, error) {
	m := Mutation{SeriesID: seriesID, Scope: scope, Patch: Patch{}}
	inst, found := d.cache.Find(seriesID, instanceDate)
	day := recurrence.DayKey(time.UnixMilli(instanceDate), d.loc)
	if m.scope() != ScopeAll {
		m.Date = day
	}

	if m.scope() == ScopeSingle {
		if newDay != day {
			return m, ErrSingleMoveAcrossDays
		}
	} else {
		m.Patch["start_date"] = newDay
		if m.scope() == ScopeAll {
			// all 作用域按系列起始日平移，保持与所拖动实例相同的天数差
			if found {
				from, _ := recurrence.ParseDay(day, d.loc)
				to, err := recurrence.ParseDay(newDay, d.loc)
				if err != nil {
					return m, fmt.Errorf("start_date 格式错误: %w", err)
				}
				start, _ := recurrence.ParseDay(seriesDay(&inst, d.loc), d.loc)
				m.Patch["start_date"] = recurrence.DayKey(start.AddDate(0, 0, recurrence.DaysBetween(from, to, d.loc)), d.loc)
			}
		}
	}

	if newStart != nil {
		m.Patch["start_time"] = *newStart
		if found && inst.StartTime != nil && inst.EndTime != nil {
			if end, ok := shiftClock(*inst.StartTime, *inst.EndTime, *newStart); ok {
				m.Patch["end_time"] = end
			}
		}
	}
	return m, nil
}

func (d *Dispatcher) run(ctx context.Context, ms []Mutation, kind UndoKind, description string, record bool) error {
	op, err := d.cache.Begin(ms...)
	if err != nil {
		d.notifier.Failure(description+"失败", err)
		return err
	}

	results, err := d.send(ctx, ms)
	if err != nil {
		if rbErr := d.cache.Rollback(op); errors.Is(rbErr, ErrRollbackTargetMissing) {
			d.notifier.Info("部分日程已不在当前视图中，下次刷新时同步")
		}
		d.notifier.Failure(description+"失败", err)
		return err
	}

	d.cache.Commit(op, results)
	if record && d.undo != nil {
		for i, m := range ms {
			var resp *dto.MutationResponse
			if i < len(results) {
				resp = &results[i]
			}
			if rec, ok := inverseOf(m, kind, op.Before, resp, description, d.loc); ok {
				d.undo.Push(rec)
			}
		}
	}
	d.notifier.Success(description)
	return nil
}

func (d *Dispatcher) send(ctx context.Context, ms []Mutation) ([]dto.MutationResponse, error) {
	if len(ms) == 1 {
		var (
			resp *dto.MutationResponse
			err  error
		)
		if ms[0].Delete {
			resp, err = d.transport.Delete(ctx, ms[0])
		} else {
			resp, err = d.transport.Update(ctx, ms[0])
		}
		if err != nil {
			return nil, err
		}
		return []dto.MutationResponse{*resp}, nil
	}
	return d.transport.Batch(ctx, ms)
}

// inverseOf 根据操作前的实例推算撤销记录
// single 删除没有对应的恢复接口，不记录
func inverseOf(m Mutation, kind UndoKind, before []dto.InstanceResponse, resp *dto.MutationResponse, description string, loc *time.Location) (UndoRecord, bool) {
	var prior *dto.InstanceResponse
	for i := range before {
		if m.matches(&before[i], loc) {
			prior = &before[i]
			break
		}
	}
	if prior == nil {
		return UndoRecord{}, false
	}

	rec := UndoRecord{Kind: kind, TargetID: m.SeriesID, Scope: m.scope(), Date: m.Date, Description: description}

	if m.Delete {
		switch m.scope() {
		case ScopeSingle:
			return UndoRecord{}, false
		case ScopeThisAndFuture:
			rec.Kind = UndoUpdate
			rec.Scope, rec.Date = ScopeAll, ""
			rec.InversePatch = Patch{"recurrence_end": nullable(prior.RecurrenceEnd)}
			return rec, true
		default:
			rec.InversePatch = Patch{
				"name":            prior.Name,
				"description":     nullable(prior.Description),
				"location":        nullable(prior.Location),
				"color":           prior.Color,
				"start_date":      prior.StartDate,
				"start_time":      nullable(prior.StartTime),
				"end_time":        nullable(prior.EndTime),
				"is_all_day":      prior.IsAllDay,
				"recurrence_rule": nullable(prior.RecurrenceRule),
				"recurrence_end":  nullable(prior.RecurrenceEnd),
			}
			return rec, true
		}
	}

	split := resp != nil && resp.CreatedEvent != nil
	switch {
	case split:
		// 拆分后撤销作用于新系列本身
		rec.TargetID = resp.CreatedEvent.ID
		rec.Scope, rec.Date = ScopeAll, ""
	case rec.Scope == ScopeThisAndFuture:
		// 服务端未拆分即整体修改
		rec.Scope, rec.Date = ScopeAll, ""
	}

	inverse := Patch{}
	for key := range m.Patch {
		switch key {
		case "name":
			inverse[key] = prior.Name
		case "color":
			inverse[key] = prior.Color
		case "is_all_day":
			inverse[key] = prior.IsAllDay
		case "description":
			inverse[key] = nullable(prior.Description)
		case "location":
			inverse[key] = nullable(prior.Location)
		case "start_time":
			inverse[key] = nullable(prior.StartTime)
		case "end_time":
			inverse[key] = nullable(prior.EndTime)
		case "recurrence_rule":
			inverse[key] = nullable(prior.RecurrenceRule)
		case "recurrence_end":
			inverse[key] = nullable(prior.RecurrenceEnd)
		case "start_date":
			switch {
			case split:
				inverse[key] = m.Date
			case rec.Scope == ScopeAll:
				inverse[key] = seriesDay(prior, loc)
			}
		}
	}
	rec.InversePatch = inverse
	return rec, true
}

// nullable nil 指针编码为 JSON null
func nullable(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}
