package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"sashi-calendar/backend/internal/model"
	"sashi-calendar/backend/internal/repository"
	pkgerrors "sashi-calendar/backend/pkg/errors"
	"sashi-calendar/backend/pkg/recurrence"
	"sashi-calendar/backend/pkg/redis"
)

// ── Mock EventRepository ──

type mockEventRepo struct {
	events    map[string]*model.Event
	createErr error
	updateErr error
	creates   []string
	onDelete  func(id string)
}

func newMockEventRepo() *mockEventRepo {
	return &mockEventRepo{events: make(map[string]*model.Event)}
}

func (m *mockEventRepo) put(e *model.Event) {
	if e.FamilyID == "" {
		e.FamilyID = e.EventID
	}
	if e.Version == 0 {
		e.Version = 1
	}
	m.events[e.EventID] = e.Clone()
}

func (m *mockEventRepo) Create(_ context.Context, event *model.Event) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.creates = append(m.creates, event.EventID)
	m.events[event.EventID] = event.Clone()
	return nil
}

func (m *mockEventRepo) GetByID(_ context.Context, id string) (*model.Event, error) {
	if e, ok := m.events[id]; ok {
		return e.Clone(), nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockEventRepo) GetWithExceptions(ctx context.Context, id string) (*model.Event, error) {
	return m.GetByID(ctx, id)
}

func (m *mockEventRepo) ListForWindow(_ context.Context, windowStart, windowEnd time.Time) ([]model.Event, error) {
	var result []model.Event
	startDay := recurrence.Civil(windowStart, windowStart.Location())
	for _, e := range m.events {
		if e.StartDate.After(windowEnd) {
			continue
		}
		if !e.IsRecurring() && e.StartDate.Before(windowStart) {
			continue
		}
		if e.IsRecurring() && e.RecurrenceEnd != nil && e.RecurrenceEnd.Before(startDay) {
			continue
		}
		result = append(result, *e.Clone())
	}
	sortEvents(result)
	return result, nil
}

func (m *mockEventRepo) ListRecurring(_ context.Context) ([]model.Event, error) {
	var result []model.Event
	for _, e := range m.events {
		if e.IsRecurring() {
			result = append(result, *e.Clone())
		}
	}
	sortEvents(result)
	return result, nil
}

func (m *mockEventRepo) Update(_ context.Context, event *model.Event, fields map[string]interface{}) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	stored, ok := m.events[event.EventID]
	if !ok || stored.Version != event.Version {
		return pkgerrors.ErrOptimisticLock
	}
	for k, v := range fields {
		switch k {
		case "name":
			stored.Name = v.(string)
		case "description":
			stored.Description = v.(*string)
		case "location":
			stored.Location = v.(*string)
		case "color":
			stored.Color = v.(string)
		case "start_date":
			stored.StartDate = v.(time.Time)
		case "start_time":
			stored.StartTime = v.(*string)
		case "end_time":
			stored.EndTime = v.(*string)
		case "is_all_day":
			stored.IsAllDay = v.(bool)
		case "recurrence_rule":
			stored.RecurrenceRule = v.(*string)
		case "recurrence_end":
			switch d := v.(type) {
			case time.Time:
				stored.RecurrenceEnd = &d
			case *time.Time:
				stored.RecurrenceEnd = d
			}
		}
	}
	stored.Version++
	event.Version = stored.Version
	return nil
}

func (m *mockEventRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.events[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.events, id)
	if m.onDelete != nil {
		m.onDelete(id)
	}
	return nil
}

func sortEvents(list []model.Event) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].StartDate.Equal(list[j].StartDate) {
			return list[i].StartDate.Before(list[j].StartDate)
		}
		return list[i].EventID < list[j].EventID
	})
}

// ── Mock EventExceptionRepository ──

type mockExceptionRepo struct {
	exceptions map[string]*model.EventException // eventID|YYYY-MM-DD
	upsertErr  error
}

func newMockExceptionRepo() *mockExceptionRepo {
	return &mockExceptionRepo{exceptions: make(map[string]*model.EventException)}
}

func exceptionKey(eventID string, d time.Time) string {
	return eventID + "|" + recurrence.CivilKey(d)
}

func (m *mockExceptionRepo) GetByEventAndDate(_ context.Context, eventID string, originalDate time.Time) (*model.EventException, error) {
	if ex, ok := m.exceptions[exceptionKey(eventID, originalDate)]; ok {
		c := *ex
		return &c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockExceptionRepo) ListByEventIDs(_ context.Context, eventIDs []string) ([]model.EventException, error) {
	want := make(map[string]bool, len(eventIDs))
	for _, id := range eventIDs {
		want[id] = true
	}
	var result []model.EventException
	for _, ex := range m.exceptions {
		if want[ex.EventID] {
			result = append(result, *ex)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return exceptionKey(result[i].EventID, result[i].OriginalDate) < exceptionKey(result[j].EventID, result[j].OriginalDate)
	})
	return result, nil
}

func (m *mockExceptionRepo) Upsert(_ context.Context, ex *model.EventException) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	c := *ex
	m.exceptions[exceptionKey(ex.EventID, ex.OriginalDate)] = &c
	return nil
}

// cascade 模拟外键 ON DELETE CASCADE
func (m *mockExceptionRepo) cascade(eventID string) {
	for k, ex := range m.exceptions {
		if ex.EventID == eventID {
			delete(m.exceptions, k)
		}
	}
}

// ── Mock QueueItemRepository ──

type mockQueueRepo struct {
	items map[string]*model.QueueItem
	seq   int
}

func newMockQueueRepo() *mockQueueRepo {
	return &mockQueueRepo{items: make(map[string]*model.QueueItem)}
}

func (m *mockQueueRepo) Create(_ context.Context, item *model.QueueItem) error {
	m.seq++
	if item.QueueItemID == "" {
		item.QueueItemID = "q-" + string(rune('a'+m.seq-1))
	}
	item.CreatedAt = time.Date(2026, 1, 1, 0, m.seq, 0, 0, time.UTC)
	c := *item
	m.items[item.QueueItemID] = &c
	return nil
}

func (m *mockQueueRepo) GetByID(_ context.Context, id string) (*model.QueueItem, error) {
	if it, ok := m.items[id]; ok {
		c := *it
		return &c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockQueueRepo) List(_ context.Context) ([]model.QueueItem, error) {
	var result []model.QueueItem
	for _, it := range m.items {
		result = append(result, *it)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (m *mockQueueRepo) UpdateStatus(_ context.Context, item *model.QueueItem) error {
	if _, ok := m.items[item.QueueItemID]; !ok {
		return gorm.ErrRecordNotFound
	}
	c := *item
	m.items[item.QueueItemID] = &c
	return nil
}

// ── Mock ChangePublisher ──

type mockPublisher struct {
	mu      sync.Mutex
	changes []redis.SeriesChange
	err     error
}

func (m *mockPublisher) PublishSeriesChange(_ context.Context, change redis.SeriesChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.changes = append(m.changes, change)
	return nil
}

// ── 组装 ──

type testRepos struct {
	events     *mockEventRepo
	exceptions *mockExceptionRepo
	queue      *mockQueueRepo
}

func newTestRepository() (*repository.Repository, *testRepos) {
	r := &testRepos{
		events:     newMockEventRepo(),
		exceptions: newMockExceptionRepo(),
		queue:      newMockQueueRepo(),
	}
	r.events.onDelete = r.exceptions.cascade
	return &repository.Repository{
		Event:          r.events,
		EventException: r.exceptions,
		QueueItem:      r.queue,
	}, r
}

var errStorage = errors.New("storage unavailable")
