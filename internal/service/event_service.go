package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"sashi-calendar/backend/internal/dto"
	"sashi-calendar/backend/internal/model"
	"sashi-calendar/backend/internal/repository"
	pkgerrors "sashi-calendar/backend/pkg/errors"
	"sashi-calendar/backend/pkg/recurrence"
	"sashi-calendar/backend/pkg/redis"
)

// ── 事件模块业务错误 ──

var (
	ErrEventNotFound     = errors.New("事件不存在")
	ErrInvalidEditScope  = errors.New("无效的编辑作用域，只能为 all、thisAndFuture 或 single")
	ErrScopeRequiresDate = errors.New("single 与 thisAndFuture 作用域必须提供 date 参数")
	ErrInvalidDate       = errors.New("日期格式应为 YYYY-MM-DD")
	ErrInvalidWindow     = errors.New("查询窗口无效：end 不能早于 start")
	ErrInvalidEvent      = errors.New("事件参数无效")
	ErrSeriesSplitFailed = errors.New("系列拆分失败")
)

// EditScope 修改作用域
type EditScope string

const (
	ScopeAll           EditScope = "all"
	ScopeThisAndFuture EditScope = "thisAndFuture"
	ScopeSingle        EditScope = "single"
)

// ParseEditScope 空字符串视为 all
func ParseEditScope(s string) (EditScope, error) {
	switch EditScope(s) {
	case "", ScopeAll:
		return ScopeAll, nil
	case ScopeThisAndFuture:
		return ScopeThisAndFuture, nil
	case ScopeSingle:
		return ScopeSingle, nil
	default:
		return "", ErrInvalidEditScope
	}
}

// ChangePublisher 变更通知发布者（Redis 可选）
type ChangePublisher interface {
	PublishSeriesChange(ctx context.Context, change redis.SeriesChange) error
}

// EventService 事件业务接口
type EventService interface {
	Create(ctx context.Context, req *dto.CreateEventRequest, callerID string) (*dto.EventResponse, error)
	GetByID(ctx context.Context, id string) (*dto.EventResponse, error)
	Expand(ctx context.Context, req *dto.ListEventsRequest) (*Expansion, error)
	ListInstances(ctx context.Context, req *dto.ListEventsRequest) (*dto.InstanceListResponse, error)
	Update(ctx context.Context, id string, req *dto.MutateEventRequest, callerID string) (*dto.MutationResponse, error)
	Delete(ctx context.Context, id string, req *dto.DeleteQuery, callerID string) (*dto.MutationResponse, error)
	BatchUpdate(ctx context.Context, items []BatchItem, callerID string) ([]dto.MutationResponse, error)
	CheckConsistency(ctx context.Context) ([]dto.OverlapResponse, error)
}

// BatchItem 批量修改中已解析的一项
type BatchItem struct {
	ID      string
	Request dto.MutateEventRequest
}

type eventService struct {
	repo      *repository.Repository
	expander  *OccurrenceExpander
	publisher ChangePublisher
	weekStart time.Weekday
	now       func() time.Time
	logger    *zap.Logger
}

// NewEventService 创建 EventService 实例；publisher 可为 nil
func NewEventService(
	repo *repository.Repository,
	expander *OccurrenceExpander,
	publisher ChangePublisher,
	weekStart time.Weekday,
	logger *zap.Logger,
) EventService {
	return &eventService{
		repo:      repo,
		expander:  expander,
		publisher: publisher,
		weekStart: weekStart,
		now:       time.Now,
		logger:    logger,
	}
}

func (s *eventService) loc() *time.Location {
	return s.expander.Location()
}

// ────────────────────── Create ──────────────────────

func (s *eventService) Create(ctx context.Context, req *dto.CreateEventRequest, callerID string) (*dto.EventResponse, error) {
	startDate, err := dto.ParseStartDate(req.StartDate, s.loc())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if err := dto.ValidateClock("start_time", req.StartTime); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if err := dto.ValidateClock("end_time", req.EndTime); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if err := dto.ValidateRule(req.RecurrenceRule); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	id := uuid.New().String()
	event := &model.Event{
		EventID:     id,
		FamilyID:    id,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Location:    req.Location,
		Color:       req.Color,
		StartDate:   startDate,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		IsAllDay:    req.IsAllDay,
	}
	if event.Color == "" {
		event.Color = model.DefaultEventColor
	}
	if req.RecurrenceRule != nil && *req.RecurrenceRule != "" {
		event.RecurrenceRule = req.RecurrenceRule
	}
	if req.RecurrenceEnd != nil && *req.RecurrenceEnd != "" {
		end, err := dto.ParseCivilDate(*req.RecurrenceEnd)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
		if end.Before(recurrence.Civil(startDate, s.loc())) {
			return nil, fmt.Errorf("%w: recurrence_end 不能早于 start_date", ErrInvalidEvent)
		}
		event.RecurrenceEnd = &end
	}
	event.Version = 1
	setAudit(&event.BaseModel, callerID, true)

	if err := s.repo.Event.Create(ctx, event); err != nil {
		s.logger.Error("创建事件失败", zap.Error(err))
		return nil, err
	}

	s.publish(ctx, redis.SeriesChange{Type: "created", SeriesIDs: []string{event.EventID}})
	return toEventResponse(event, s.loc()), nil
}

// ────────────────────── GetByID ──────────────────────

func (s *eventService) GetByID(ctx context.Context, id string) (*dto.EventResponse, error) {
	event, err := s.repo.Event.GetWithExceptions(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		s.logger.Error("查询事件失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return toEventResponse(event, s.loc()), nil
}

// ────────────────────── Expand / ListInstances ──────────────────────

// Expand 拉取窗口内可能产生发生的系列与例外，交给展开器合成
func (s *eventService) Expand(ctx context.Context, req *dto.ListEventsRequest) (*Expansion, error) {
	windowStart, windowEnd, err := s.resolveWindow(req)
	if err != nil {
		return nil, err
	}

	series, err := s.repo.Event.ListForWindow(ctx, windowStart, windowEnd)
	if err != nil {
		s.logger.Error("查询窗口内系列失败", zap.Time("start", windowStart), zap.Time("end", windowEnd), zap.Error(err))
		return nil, err
	}

	ids := make([]string, 0, len(series))
	for i := range series {
		if series[i].IsRecurring() {
			ids = append(ids, series[i].EventID)
		}
	}
	exceptions, err := s.repo.EventException.ListByEventIDs(ctx, ids)
	if err != nil {
		s.logger.Error("查询例外记录失败", zap.Int("series", len(ids)), zap.Error(err))
		return nil, err
	}

	expansion := s.expander.Expand(series, exceptions, windowStart, windowEnd)
	for _, d := range expansion.Diagnostics {
		s.logger.Warn("展开系列时出现问题，已降级处理",
			zap.String("series_id", d.SeriesID),
			zap.String("kind", d.Kind),
			zap.String("rule", d.Rule),
			zap.Error(d.Err),
		)
	}
	return &expansion, nil
}

func (s *eventService) ListInstances(ctx context.Context, req *dto.ListEventsRequest) (*dto.InstanceListResponse, error) {
	expansion, err := s.Expand(ctx, req)
	if err != nil {
		return nil, err
	}

	resp := &dto.InstanceListResponse{
		List:        make([]dto.InstanceResponse, 0, len(expansion.Instances)),
		Diagnostics: make([]dto.DiagnosticResponse, 0, len(expansion.Diagnostics)),
	}
	for i := range expansion.Instances {
		resp.List = append(resp.List, toInstanceResponse(&expansion.Instances[i], s.loc()))
	}
	for _, d := range expansion.Diagnostics {
		resp.Diagnostics = append(resp.Diagnostics, dto.DiagnosticResponse{
			SeriesID: d.SeriesID,
			Kind:     d.Kind,
			Rule:     d.Rule,
			Message:  d.Err.Error(),
		})
	}
	return resp, nil
}

// resolveWindow 两端日期均包含；缺省为当前周
func (s *eventService) resolveWindow(req *dto.ListEventsRequest) (time.Time, time.Time, error) {
	loc := s.loc()
	var start, end time.Time

	if req.Start != "" {
		d, err := recurrence.ParseDay(req.Start, loc)
		if err != nil {
			return start, end, ErrInvalidDate
		}
		start = d
	}
	if req.End != "" {
		d, err := recurrence.ParseDay(req.End, loc)
		if err != nil {
			return start, end, ErrInvalidDate
		}
		end = recurrence.EndOfDay(d, loc)
	}

	switch {
	case req.Start == "" && req.End == "":
		start, end = recurrence.WeekWindow(s.now(), loc, s.weekStart)
	case req.End == "":
		end = recurrence.EndOfDay(start.AddDate(0, 0, 6), loc)
	case req.Start == "":
		start = recurrence.StartOfDay(end, loc).AddDate(0, 0, -6)
	}

	if end.Before(start) {
		return start, end, ErrInvalidWindow
	}
	return start, end, nil
}

// ────────────────────── Update ──────────────────────

func (s *eventService) Update(ctx context.Context, id string, req *dto.MutateEventRequest, callerID string) (*dto.MutationResponse, error) {
	scope, day, err := s.resolveScope(req.EditMode, req.Date)
	if err != nil {
		return nil, err
	}

	var (
		resp   *dto.MutationResponse
		change redis.SeriesChange
	)
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		var err error
		resp, change, err = s.applyUpdate(ctx, tx, id, scope, day, req.Patch, callerID)
		return err
	})
	if err != nil {
		return nil, s.logMutationError("修改事件失败", id, scope, err)
	}

	s.publish(ctx, change)
	return resp, nil
}

// BatchUpdate 所有修改在同一事务中执行，任一失败整体回滚
func (s *eventService) BatchUpdate(ctx context.Context, items []BatchItem, callerID string) ([]dto.MutationResponse, error) {
	type resolved struct {
		scope EditScope
		day   time.Time
	}
	plans := make([]resolved, len(items))
	for i, item := range items {
		scope, day, err := s.resolveScope(item.Request.EditMode, item.Request.Date)
		if err != nil {
			return nil, fmt.Errorf("第 %d 项: %w", i+1, err)
		}
		plans[i] = resolved{scope: scope, day: day}
	}

	results := make([]dto.MutationResponse, 0, len(items))
	changes := make([]redis.SeriesChange, 0, len(items))
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		results = results[:0]
		changes = changes[:0]
		for i, item := range items {
			resp, change, err := s.applyUpdate(ctx, tx, item.ID, plans[i].scope, plans[i].day, item.Request.Patch, callerID)
			if err != nil {
				return fmt.Errorf("第 %d 项 (%s): %w", i+1, item.ID, err)
			}
			results = append(results, *resp)
			changes = append(changes, change)
		}
		return nil
	})
	if err != nil {
		return nil, s.logMutationError("批量修改事件失败", "", ScopeAll, err)
	}

	for _, c := range changes {
		s.publish(ctx, c)
	}
	return results, nil
}

func (s *eventService) applyUpdate(
	ctx context.Context,
	tx *repository.Repository,
	id string,
	scope EditScope,
	day time.Time,
	patch model.EventPatch,
	callerID string,
) (*dto.MutationResponse, redis.SeriesChange, error) {
	change := redis.SeriesChange{Scope: string(scope)}

	event, err := s.loadEvent(ctx, tx, id)
	if err != nil {
		return nil, change, err
	}
	patch = patch.KeepClock(event.StartDate, s.loc())

	// 单次事件只有一次发生，三种作用域含义相同
	if !event.IsRecurring() && scope != ScopeAll {
		s.logger.Debug("单次事件按 all 作用域处理", zap.String("id", id), zap.String("scope", string(scope)))
		scope = ScopeAll
		change.Scope = string(scope)
	}
	if scope != ScopeAll {
		change.Date = recurrence.CivilKey(day)
	}

	switch scope {
	case ScopeSingle:
		ex, err := s.upsertException(ctx, tx, event, day, func(ex *model.EventException) {
			overlayPatch, ignored := patch.ExceptionOverlay()
			if len(ignored) > 0 {
				s.logger.Debug("单次修改忽略不可覆盖的字段", zap.String("id", id), zap.Strings("fields", ignored))
			}
			overlayPatch.MergeInto(ex)
		})
		if err != nil {
			return nil, change, err
		}
		change.Type = "exception"
		change.SeriesIDs = []string{event.EventID}
		return &dto.MutationResponse{
			Event:     toEventResponse(event, s.loc()),
			Exception: toExceptionResponse(ex),
		}, change, nil

	case ScopeThisAndFuture:
		created, err := s.split(ctx, tx, event, day, patch, callerID)
		if err != nil {
			return nil, change, err
		}
		change.Type = "split"
		change.SeriesIDs = []string{event.EventID, created.EventID}
		return &dto.MutationResponse{
			Event:         toEventResponse(created, s.loc()),
			OriginalEvent: toEventResponse(event, s.loc()),
			CreatedEvent:  toEventResponse(created, s.loc()),
		}, change, nil

	default:
		// 已有的例外记录不动，继续叠加在新的系列字段之上
		fields := patch.Columns()
		if len(fields) > 0 {
			setAudit(&event.BaseModel, callerID, false)
			if err := tx.Event.Update(ctx, event, fields); err != nil {
				return nil, change, err
			}
			patch.ApplyTo(event)
		}
		change.Type = "updated"
		change.SeriesIDs = []string{event.EventID}
		return &dto.MutationResponse{Event: toEventResponse(event, s.loc())}, change, nil
	}
}

// split 把系列在 day 处一分为二
// 先插入新系列再截断原系列：即使两步之间失败，也只会产生可检测的重叠而不会出现空档
func (s *eventService) split(
	ctx context.Context,
	tx *repository.Repository,
	event *model.Event,
	day time.Time,
	patch model.EventPatch,
	callerID string,
) (*model.Event, error) {
	loc := s.loc()

	created := event.Clone()
	created.EventID = uuid.New().String()
	created.FamilyID = event.FamilyID
	created.StartDate = recurrence.WithDay(event.StartDate, recurrence.FromCivil(day, loc), loc)
	created.VersionedModel = model.VersionedModel{Version: 1}
	setAudit(&created.BaseModel, callerID, true)
	patch.ApplyTo(created)

	if err := tx.Event.Create(ctx, created); err != nil {
		return nil, fmt.Errorf("%w: 创建新系列: %v", ErrSeriesSplitFailed, err)
	}

	boundary := day.AddDate(0, 0, -1)
	if err := s.shrink(ctx, tx, event, boundary, callerID); err != nil {
		if errors.Is(err, pkgerrors.ErrOptimisticLock) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: 截断原系列: %v", ErrSeriesSplitFailed, err)
	}
	return created, nil
}

// shrink recurrence_end = min(现有值, boundary)
func (s *eventService) shrink(ctx context.Context, tx *repository.Repository, event *model.Event, boundary time.Time, callerID string) error {
	newEnd := boundary
	if event.RecurrenceEnd != nil && event.RecurrenceEnd.Before(boundary) {
		newEnd = *event.RecurrenceEnd
	}
	setAudit(&event.BaseModel, callerID, false)
	if err := tx.Event.Update(ctx, event, map[string]interface{}{"recurrence_end": newEnd}); err != nil {
		return err
	}
	event.RecurrenceEnd = &newEnd
	return nil
}

// upsertException 读取 (event, day) 的例外记录，交给 mutate 合并后整行写回
// 不存在时新建，初始 is_cancelled=false，未修改的字段保持 null（继承系列）
func (s *eventService) upsertException(
	ctx context.Context,
	tx *repository.Repository,
	event *model.Event,
	day time.Time,
	mutate func(ex *model.EventException),
) (*model.EventException, error) {
	ex, err := tx.EventException.GetByEventAndDate(ctx, event.EventID, day)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		ex = &model.EventException{
			ExceptionID:  uuid.New().String(),
			EventID:      event.EventID,
			OriginalDate: day,
			CreatedAt:    s.now().UTC(),
		}
	}
	mutate(ex)
	ex.UpdatedAt = s.now().UTC()

	if err := tx.EventException.Upsert(ctx, ex); err != nil {
		return nil, err
	}
	return ex, nil
}

// ────────────────────── Delete ──────────────────────

func (s *eventService) Delete(ctx context.Context, id string, req *dto.DeleteQuery, callerID string) (*dto.MutationResponse, error) {
	scope, day, err := s.resolveScope(req.DeleteMode, req.Date)
	if err != nil {
		return nil, err
	}

	var (
		resp   *dto.MutationResponse
		change = redis.SeriesChange{SeriesIDs: []string{id}, Scope: string(scope)}
	)
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		event, err := s.loadEvent(ctx, tx, id)
		if err != nil {
			return err
		}
		if !event.IsRecurring() {
			scope = ScopeAll
			change.Scope = string(scope)
		}
		if scope != ScopeAll {
			change.Date = recurrence.CivilKey(day)
		}

		switch scope {
		case ScopeSingle:
			ex, err := s.upsertException(ctx, tx, event, day, func(ex *model.EventException) {
				ex.IsCancelled = true
			})
			if err != nil {
				return err
			}
			change.Type = "exception"
			resp = &dto.MutationResponse{Event: toEventResponse(event, s.loc()), Exception: toExceptionResponse(ex)}

		case ScopeThisAndFuture:
			if err := s.shrink(ctx, tx, event, day.AddDate(0, 0, -1), callerID); err != nil {
				return err
			}
			change.Type = "updated"
			resp = &dto.MutationResponse{Event: toEventResponse(event, s.loc()), OriginalEvent: toEventResponse(event, s.loc())}

		default:
			if err := tx.Event.Delete(ctx, event.EventID); err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrEventNotFound
				}
				return err
			}
			change.Type = "deleted"
			resp = &dto.MutationResponse{Event: toEventResponse(event, s.loc()), Deleted: true}
		}
		return nil
	})
	if err != nil {
		return nil, s.logMutationError("删除事件失败", id, scope, err)
	}

	s.publish(ctx, change)
	return resp, nil
}

// ────────────────────── CheckConsistency ──────────────────────

type dayRange struct {
	event *model.Event
	start time.Time  // civil
	end   *time.Time // civil，nil 表示无上界
}

// CheckConsistency 同一族内任意两个系列的 [startDate, recurrenceEnd] 日期区间不得重叠
func (s *eventService) CheckConsistency(ctx context.Context) ([]dto.OverlapResponse, error) {
	events, err := s.repo.Event.ListRecurring(ctx)
	if err != nil {
		s.logger.Error("一致性检查查询系列失败", zap.Error(err))
		return nil, err
	}

	families := make(map[string][]dayRange)
	var order []string
	for i := range events {
		e := &events[i]
		r := dayRange{event: e, start: recurrence.Civil(e.StartDate, s.loc()), end: e.RecurrenceEnd}
		if r.end != nil && r.end.Before(r.start) {
			continue // 零次发生的系列不占任何日期
		}
		if _, ok := families[e.FamilyID]; !ok {
			order = append(order, e.FamilyID)
		}
		families[e.FamilyID] = append(families[e.FamilyID], r)
	}
	sort.Strings(order)

	overlaps := make([]dto.OverlapResponse, 0)
	for _, fid := range order {
		ranges := families[fid]
		sort.SliceStable(ranges, func(i, j int) bool { return ranges[i].start.Before(ranges[j].start) })
		for i := 0; i < len(ranges); i++ {
			for j := i + 1; j < len(ranges); j++ {
				a, b := ranges[i], ranges[j]
				if a.end != nil && a.end.Before(b.start) {
					continue
				}
				o := dto.OverlapResponse{
					FamilyID:     fid,
					FirstID:      a.event.EventID,
					SecondID:     b.event.EventID,
					OverlapStart: recurrence.CivilKey(b.start),
				}
				switch {
				case a.end == nil && b.end == nil:
				case a.end == nil:
					o.OverlapEnd = recurrence.CivilKey(*b.end)
				case b.end == nil || a.end.Before(*b.end):
					o.OverlapEnd = recurrence.CivilKey(*a.end)
				default:
					o.OverlapEnd = recurrence.CivilKey(*b.end)
				}
				s.logger.Warn("检测到同族系列日期重叠",
					zap.String("family_id", fid),
					zap.String("first_id", o.FirstID),
					zap.String("second_id", o.SecondID),
					zap.String("overlap_start", o.OverlapStart),
					zap.String("overlap_end", o.OverlapEnd),
				)
				overlaps = append(overlaps, o)
			}
		}
	}
	return overlaps, nil
}

// ── 辅助函数 ──

// resolveScope 在触碰存储之前校验作用域与日期
func (s *eventService) resolveScope(mode, date string) (EditScope, time.Time, error) {
	scope, err := ParseEditScope(mode)
	if err != nil {
		return "", time.Time{}, err
	}
	if scope == ScopeAll {
		return scope, time.Time{}, nil
	}
	if date == "" {
		return "", time.Time{}, ErrScopeRequiresDate
	}
	day, err := time.ParseInLocation(recurrence.DayLayout, date, time.UTC)
	if err != nil {
		return "", time.Time{}, ErrInvalidDate
	}
	return scope, day, nil
}

func (s *eventService) loadEvent(ctx context.Context, tx *repository.Repository, id string) (*model.Event, error) {
	event, err := tx.Event.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return event, nil
}

func (s *eventService) logMutationError(msg, id string, scope EditScope, err error) error {
	switch {
	case errors.Is(err, ErrEventNotFound), errors.Is(err, pkgerrors.ErrOptimisticLock):
		s.logger.Warn(msg, zap.String("id", id), zap.String("scope", string(scope)), zap.Error(err))
	default:
		s.logger.Error(msg, zap.String("id", id), zap.String("scope", string(scope)), zap.Error(err))
	}
	return err
}

// publish 提交后尽力发布，失败只记录日志
func (s *eventService) publish(ctx context.Context, change redis.SeriesChange) {
	if s.publisher == nil || change.Type == "" {
		return
	}
	if err := s.publisher.PublishSeriesChange(ctx, change); err != nil {
		s.logger.Warn("发布系列变更通知失败", zap.Strings("series_ids", change.SeriesIDs), zap.Error(err))
	}
}

func setAudit(b *model.BaseModel, callerID string, creating bool) {
	if _, err := uuid.Parse(callerID); err != nil {
		return
	}
	id := callerID
	b.UpdatedBy = &id
	if creating {
		b.CreatedBy = &id
	}
}

func toEventResponse(e *model.Event, loc *time.Location) *dto.EventResponse {
	resp := &dto.EventResponse{
		ID:             e.EventID,
		FamilyID:       e.FamilyID,
		Name:           e.Name,
		Description:    e.Description,
		Location:       e.Location,
		Color:          e.Color,
		StartDate:      e.StartDate.In(loc).Format(time.RFC3339),
		StartTime:      e.StartTime,
		EndTime:        e.EndTime,
		IsAllDay:       e.IsAllDay,
		RecurrenceRule: e.RecurrenceRule,
		RecurrenceEnd:  civilString(e.RecurrenceEnd),
		Version:        e.Version,
		CreatedAt:      e.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      e.UpdatedAt.Format(time.RFC3339),
	}
	for i := range e.Exceptions {
		resp.Exceptions = append(resp.Exceptions, *toExceptionResponse(&e.Exceptions[i]))
	}
	return resp
}

func toExceptionResponse(ex *model.EventException) *dto.ExceptionResponse {
	return &dto.ExceptionResponse{
		ID:                ex.ExceptionID,
		EventID:           ex.EventID,
		OriginalDate:      recurrence.CivilKey(ex.OriginalDate),
		IsCancelled:       ex.IsCancelled,
		ModifiedName:      ex.ModifiedName,
		ModifiedStartTime: ex.ModifiedStartTime,
		ModifiedEndTime:   ex.ModifiedEndTime,
		ModifiedLocation:  ex.ModifiedLocation,
	}
}

func toInstanceResponse(inst *Instance, loc *time.Location) dto.InstanceResponse {
	return dto.InstanceResponse{
		ID:                  inst.SeriesID,
		FamilyID:            inst.FamilyID,
		Name:                inst.Name,
		Description:         inst.Description,
		Location:            inst.Location,
		Color:               inst.Color,
		StartDate:           inst.StartDate.In(loc).Format(time.RFC3339),
		StartTime:           inst.StartTime,
		EndTime:             inst.EndTime,
		IsAllDay:            inst.IsAllDay,
		RecurrenceRule:      inst.RecurrenceRule,
		RecurrenceEnd:       civilString(inst.RecurrenceEnd),
		InstanceDate:        inst.InstanceDate.UnixMilli(),
		IsRecurringInstance: inst.IsRecurringInstance,
		OverriddenFields:    inst.OverriddenFields,
		UpdatedAt:           inst.UpdatedAt.Format(time.RFC3339),
	}
}

func civilString(d *time.Time) *string {
	if d == nil {
		return nil
	}
	s := recurrence.CivilKey(*d)
	return &s
}
