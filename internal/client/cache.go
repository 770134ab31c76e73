package client

import (
	"sort"
	"sync"
	"time"

	"sashi-calendar/backend/internal/dto"
)

type instanceKey struct {
	seriesID string
	at       int64
}

func keyOf(inst *dto.InstanceResponse) instanceKey {
	return instanceKey{seriesID: inst.ID, at: inst.InstanceDate}
}

// Op 一次尚未确认的乐观操作
// 操作只保存修改本身，展示列表在读取时由已确认列表叠加全部未确认操作得到
type Op struct {
	id        uint64
	mutations []Mutation
	touched   []instanceKey
	// Before 操作生效前被触及的实例（按缓存顺序）
	Before []dto.InstanceResponse
}

// Mutations 本次操作包含的修改
func (o *Op) Mutations() []Mutation { return o.mutations }

// SyncStats 一次后台同步的结果
type SyncStats struct {
	Pulled    int
	Conflicts int
	Protected int
}

// Cache 客户端已展开实例的缓存
// 乐观修改不会直接写入已确认列表：确认前读到的是叠加视图，失败时丢弃叠加即回滚
type Cache struct {
	mu      sync.Mutex
	loc     *time.Location
	policy  ConflictPolicy
	base    []dto.InstanceResponse
	pending []*Op
	seq     uint64
}

// NewCache policy 为 nil 时使用 RemoteWins
func NewCache(loc *time.Location, policy ConflictPolicy) *Cache {
	if policy == nil {
		policy = RemoteWins
	}
	return &Cache{loc: loc, policy: policy}
}

// Load 用一次完整读取替换已确认列表
func (c *Cache) Load(list []dto.InstanceResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.base = append([]dto.InstanceResponse(nil), list...)
}

// Snapshot 当前展示视图
func (c *Cache) Snapshot() []dto.InstanceResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view()
}

// Find 在展示视图中按系列与实例时刻查找
func (c *Cache) Find(seriesID string, instanceDate int64) (dto.InstanceResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, inst := range c.view() {
		if inst.ID == seriesID && inst.InstanceDate == instanceDate {
			return inst, true
		}
	}
	return dto.InstanceResponse{}, false
}

// Pending 未确认操作数
func (c *Cache) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Begin 登记一次乐观操作；多条修改作为一个整体确认或回滚
func (c *Cache) Begin(ms ...Mutation) (*Op, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.view()
	op := &Op{mutations: ms}
	seen := make(map[instanceKey]bool)
	for _, m := range ms {
		for i := range current {
			if !m.matches(&current[i], c.loc) {
				continue
			}
			k := keyOf(&current[i])
			if seen[k] {
				continue
			}
			seen[k] = true
			op.touched = append(op.touched, k)
			op.Before = append(op.Before, current[i])
		}
	}

	// 先在副本上试算，补丁本身有问题时不登记
	if _, err := c.apply(current, op); err != nil {
		return nil, err
	}

	c.seq++
	op.id = c.seq
	c.pending = append(c.pending, op)
	return op, nil
}

// Rollback 丢弃操作；若被触及的实例已不在缓存中返回 ErrRollbackTargetMissing
func (c *Cache) Rollback(op *Op) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.drop(op)

	current := c.view()
	present := make(map[instanceKey]bool, len(current))
	for i := range current {
		present[keyOf(&current[i])] = true
	}
	for _, k := range op.touched {
		if !present[k] {
			return ErrRollbackTargetMissing
		}
	}
	return nil
}

// Commit 以服务端返回的规范字段写入已确认列表，不重新展开
// results 与操作中的修改按下标一一对应
func (c *Cache) Commit(op *Op, results []dto.MutationResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.drop(op)
	for i, m := range op.mutations {
		var resp *dto.MutationResponse
		if i < len(results) {
			resp = &results[i]
		}
		c.base = c.commitOne(c.base, m, resp)
	}
	c.sort(c.base)
}

// Sync 合并一次后台读取：窗口外的实例保留，窗口内以 ConflictPolicy 合并
// 被未确认操作触及的实例保持本地版本
func (c *Cache) Sync(start, end time.Time, remote []dto.InstanceResponse) SyncStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	protected := make(map[instanceKey]bool)
	for _, op := range c.pending {
		for _, k := range op.touched {
			protected[k] = true
		}
	}

	inWindow := func(inst *dto.InstanceResponse) bool {
		t := time.UnixMilli(inst.InstanceDate)
		return !t.Before(start) && !t.After(end)
	}

	local := make(map[instanceKey]dto.InstanceResponse)
	next := make([]dto.InstanceResponse, 0, len(c.base)+len(remote))
	for i := range c.base {
		if inWindow(&c.base[i]) {
			local[keyOf(&c.base[i])] = c.base[i]
			continue
		}
		next = append(next, c.base[i])
	}

	var stats SyncStats
	for i := range remote {
		k := keyOf(&remote[i])
		l, ok := local[k]
		delete(local, k)
		switch {
		case ok && protected[k]:
			stats.Protected++
			next = append(next, l)
		case ok:
			if l.UpdatedAt != remote[i].UpdatedAt {
				stats.Conflicts++
			}
			next = append(next, c.policy.Resolve(l, remote[i]))
		default:
			next = append(next, remote[i])
		}
		stats.Pulled++
	}
	// 服务端已不存在但仍有未确认操作的实例，等操作结束再处理
	for k, l := range local {
		if protected[k] {
			stats.Protected++
			next = append(next, l)
		}
	}

	c.sort(next)
	c.base = next
	return stats
}

// ── 内部实现（调用方持有锁） ──

func (c *Cache) view() []dto.InstanceResponse {
	list := append([]dto.InstanceResponse(nil), c.base...)
	for _, op := range c.pending {
		// Begin 时已试算过，这里不会出错
		list, _ = c.apply(list, op)
	}
	c.sort(list)
	return list
}

func (c *Cache) apply(list []dto.InstanceResponse, op *Op) ([]dto.InstanceResponse, error) {
	out := list
	for _, m := range op.mutations {
		var err error
		if out, err = c.applyMutation(out, m); err != nil {
			return list, err
		}
	}
	return out, nil
}

func (c *Cache) applyMutation(list []dto.InstanceResponse, m Mutation) ([]dto.InstanceResponse, error) {
	out := make([]dto.InstanceResponse, 0, len(list))
	for i := range list {
		inst := list[i]
		if !m.matches(&inst, c.loc) {
			out = append(out, inst)
			continue
		}
		if m.Delete {
			continue
		}
		anchor := m.Date
		if anchor == "" {
			anchor = seriesDay(&inst, c.loc)
		}
		if err := applyPatch(&inst, m.patchFor(&inst), anchor, c.loc); err != nil {
			return list, err
		}
		out = append(out, inst)
	}
	return out, nil
}

// commitOne 先按修改本身更新，再用服务端返回的系列或例外覆盖规范字段
func (c *Cache) commitOne(list []dto.InstanceResponse, m Mutation, resp *dto.MutationResponse) []dto.InstanceResponse {
	// 匹配需在修改前判定，移动后的实例可能不再满足作用域
	matched := make(map[int]bool)
	for i := range list {
		if m.matches(&list[i], c.loc) {
			matched[i] = true
		}
	}

	out := make([]dto.InstanceResponse, 0, len(list))
	for i := range list {
		inst := list[i]
		if !matched[i] {
			if resp != nil && resp.OriginalEvent != nil && inst.ID == resp.OriginalEvent.ID {
				inst.RecurrenceEnd = resp.OriginalEvent.RecurrenceEnd
			}
			out = append(out, inst)
			continue
		}
		if m.Delete {
			continue
		}

		anchor := m.Date
		if anchor == "" {
			anchor = seriesDay(&inst, c.loc)
		}
		split := resp != nil && resp.CreatedEvent != nil
		patch := m.patchFor(&inst)
		if !split && m.scope() == ScopeThisAndFuture {
			// 服务端未拆分（单次事件按 all 处理），例外继续叠加
			patch = protectOverrides(m.Patch, &inst)
		}
		_ = applyPatch(&inst, patch, anchor, c.loc)

		if resp != nil {
			switch {
			case split:
				// thisAndFuture 拆分：后半段实例改归新系列，新系列不带例外
				inst.OverriddenFields = nil
				canonicalize(&inst, resp.CreatedEvent)
			case resp.Exception != nil:
				if resp.Exception.IsCancelled {
					continue
				}
				overlayException(&inst, resp.Exception)
			case resp.Event != nil:
				canonicalize(&inst, resp.Event)
			}
		}
		out = append(out, inst)
	}
	return out
}

// canonicalize 用系列字段覆盖实例，被例外覆盖的字段保持不变
func canonicalize(inst *dto.InstanceResponse, ev *dto.EventResponse) {
	overridden := make(map[string]bool, len(inst.OverriddenFields))
	for _, f := range inst.OverriddenFields {
		overridden[f] = true
	}

	inst.ID = ev.ID
	inst.FamilyID = ev.FamilyID
	if !overridden["name"] {
		inst.Name = ev.Name
	}
	if !overridden["location"] {
		inst.Location = ev.Location
	}
	if !overridden["start_time"] {
		inst.StartTime = ev.StartTime
	}
	if !overridden["end_time"] {
		inst.EndTime = ev.EndTime
	}
	inst.Description = ev.Description
	inst.Color = ev.Color
	inst.StartDate = ev.StartDate
	inst.IsAllDay = ev.IsAllDay
	inst.RecurrenceRule = ev.RecurrenceRule
	inst.RecurrenceEnd = ev.RecurrenceEnd
	inst.UpdatedAt = ev.UpdatedAt
}

func overlayException(inst *dto.InstanceResponse, ex *dto.ExceptionResponse) {
	if ex.ModifiedName != nil {
		inst.Name = *ex.ModifiedName
		markOverridden(inst, "name")
	}
	if ex.ModifiedStartTime != nil {
		inst.StartTime = cloneString(ex.ModifiedStartTime)
		markOverridden(inst, "start_time")
	}
	if ex.ModifiedEndTime != nil {
		inst.EndTime = cloneString(ex.ModifiedEndTime)
		markOverridden(inst, "end_time")
	}
	if ex.ModifiedLocation != nil {
		inst.Location = cloneString(ex.ModifiedLocation)
		markOverridden(inst, "location")
	}
}

func markOverridden(inst *dto.InstanceResponse, field string) {
	for _, f := range inst.OverriddenFields {
		if f == field {
			return
		}
	}
	inst.OverriddenFields = append(inst.OverriddenFields, field)
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func (c *Cache) drop(op *Op) {
	for i, p := range c.pending {
		if p.id == op.id {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return
		}
	}
}

// sort 按实例时刻排序，同一时刻保持原有相对顺序
func (c *Cache) sort(list []dto.InstanceResponse) {
	sort.SliceStable(list, func(i, j int) bool { return list[i].InstanceDate < list[j].InstanceDate })
}
