package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"sashi-calendar/backend/internal/dto"
	"sashi-calendar/backend/internal/model"
	"sashi-calendar/backend/internal/service"
	pkgerrors "sashi-calendar/backend/pkg/errors"
	"sashi-calendar/backend/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ═══════════════════════════════════════════════════════════
// Mock Services
// ═══════════════════════════════════════════════════════════

// ── Mock EventService ──

type mockEventService struct {
	listResult   *dto.InstanceListResponse
	getResult    *dto.EventResponse
	createResult *dto.EventResponse
	mutateResult *dto.MutationResponse
	batchResult  []dto.MutationResponse
	overlaps     []dto.OverlapResponse
	err          error

	lastID     string
	lastCaller string
	lastMutate *dto.MutateEventRequest
	lastDelete *dto.DeleteQuery
	lastBatch  []service.BatchItem
}

func (m *mockEventService) Create(_ context.Context, _ *dto.CreateEventRequest, callerID string) (*dto.EventResponse, error) {
	m.lastCaller = callerID
	return m.createResult, m.err
}
func (m *mockEventService) GetByID(_ context.Context, id string) (*dto.EventResponse, error) {
	m.lastID = id
	return m.getResult, m.err
}
func (m *mockEventService) Expand(_ context.Context, _ *dto.ListEventsRequest) (*service.Expansion, error) {
	return &service.Expansion{}, m.err
}
func (m *mockEventService) ListInstances(_ context.Context, _ *dto.ListEventsRequest) (*dto.InstanceListResponse, error) {
	return m.listResult, m.err
}
func (m *mockEventService) Update(_ context.Context, id string, req *dto.MutateEventRequest, callerID string) (*dto.MutationResponse, error) {
	m.lastID, m.lastMutate, m.lastCaller = id, req, callerID
	return m.mutateResult, m.err
}
func (m *mockEventService) Delete(_ context.Context, id string, req *dto.DeleteQuery, callerID string) (*dto.MutationResponse, error) {
	m.lastID, m.lastDelete, m.lastCaller = id, req, callerID
	return m.mutateResult, m.err
}
func (m *mockEventService) BatchUpdate(_ context.Context, items []service.BatchItem, _ string) ([]dto.MutationResponse, error) {
	m.lastBatch = items
	return m.batchResult, m.err
}
func (m *mockEventService) CheckConsistency(_ context.Context) ([]dto.OverlapResponse, error) {
	return m.overlaps, m.err
}

// ── Mock ExportService ──

type mockExportService struct {
	buf      *bytes.Buffer
	filename string
	err      error
}

func (m *mockExportService) ExportICS(_ context.Context, _ *dto.ListEventsRequest) (*bytes.Buffer, string, error) {
	return m.buf, m.filename, m.err
}
func (m *mockExportService) ExportXLSX(_ context.Context, _ *dto.ListEventsRequest) (*bytes.Buffer, string, error) {
	return m.buf, m.filename, m.err
}

// ── Mock QueueService ──

type mockQueueService struct {
	board      []dto.QueueColumnResponse
	item       *dto.QueueItemResponse
	err        error
	lastStatus model.QueueStatus
}

func (m *mockQueueService) Board(_ context.Context) ([]dto.QueueColumnResponse, error) {
	return m.board, m.err
}
func (m *mockQueueService) Enqueue(_ context.Context, _ *dto.EnqueueRequest) (*dto.QueueItemResponse, error) {
	return m.item, m.err
}
func (m *mockQueueService) Transition(_ context.Context, _ string, status model.QueueStatus) (*dto.QueueItemResponse, error) {
	m.lastStatus = status
	return m.item, m.err
}

// ── Mock TokenRevoker ──

type mockRevoker struct {
	jti string
	ttl time.Duration
	err error
}

func (m *mockRevoker) RevokeToken(_ context.Context, jti string, ttl time.Duration) error {
	m.jti, m.ttl = jti, ttl
	return m.err
}

// ═══════════════════════════════════════════════════════════
// Test Helpers
// ═══════════════════════════════════════════════════════════

func setAuth(c *gin.Context) {
	c.Set("user_id", "test-user-id")
	c.Set("token_jti", "test-jti")
	c.Set("token_exp", time.Now().Add(15*time.Minute))
}

func jsonBody(v interface{}) io.Reader {
	b, _ := json.Marshal(v)
	return bytes.NewReader(b)
}

func parseResponse(w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	json.Unmarshal(w.Body.Bytes(), &resp)
	return resp
}

func eventRouter(h *EventHandler, authed bool) *gin.Engine {
	r := gin.New()
	if authed {
		r.Use(func(c *gin.Context) { setAuth(c); c.Next() })
	}
	r.GET("/events", h.List)
	r.POST("/events", h.Create)
	r.PATCH("/events/batch", h.Batch)
	r.GET("/events/consistency", h.Consistency)
	r.GET("/events/:id", h.Get)
	r.PATCH("/events/:id", h.Update)
	r.DELETE("/events/:id", h.Delete)
	return r
}

func serve(r *gin.Engine, method, path string, body io.Reader) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	r.ServeHTTP(w, req)
	return w
}

// ═══════════════════════════════════════════════════════════
// EventHandler Tests
// ═══════════════════════════════════════════════════════════

func TestEventHandler_List_Success(t *testing.T) {
	mock := &mockEventService{listResult: &dto.InstanceListResponse{
		List: []dto.InstanceResponse{{ID: "s1", Name: "Standup"}},
	}}
	r := eventRouter(NewEventHandler(mock, time.UTC), false)

	w := serve(r, "GET", "/events?start=2026-01-01&end=2026-01-31", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"name":"Standup"`) {
		t.Errorf("响应缺少实例数据: %s", w.Body.String())
	}
}

func TestEventHandler_List_InvalidWindow(t *testing.T) {
	mock := &mockEventService{err: service.ErrInvalidWindow}
	r := eventRouter(NewEventHandler(mock, time.UTC), false)

	w := serve(r, "GET", "/events?start=2026-02-01&end=2026-01-01", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if resp := parseResponse(w); resp.Code != 20104 {
		t.Errorf("expected code 20104, got %d", resp.Code)
	}
}

func TestEventHandler_Get_NotFound(t *testing.T) {
	mock := &mockEventService{err: service.ErrEventNotFound}
	r := eventRouter(NewEventHandler(mock, time.UTC), false)

	w := serve(r, "GET", "/events/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	if mock.lastID != "missing" {
		t.Errorf("expected id missing, got %s", mock.lastID)
	}
}

func TestEventHandler_Create(t *testing.T) {
	mock := &mockEventService{createResult: &dto.EventResponse{ID: "new"}}
	r := eventRouter(NewEventHandler(mock, time.UTC), true)

	w := serve(r, "POST", "/events", jsonBody(map[string]interface{}{
		"name": "Standup", "start_date": "2026-01-05",
	}))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	if mock.lastCaller != "test-user-id" {
		t.Errorf("调用方应透传给 Service，实际 %q", mock.lastCaller)
	}
}

func TestEventHandler_Create_ValidationError(t *testing.T) {
	mock := &mockEventService{}
	r := eventRouter(NewEventHandler(mock, time.UTC), false)

	w := serve(r, "POST", "/events", jsonBody(map[string]interface{}{"start_date": "2026-01-05"}))
	if w.Code != http.StatusBadRequest {
		t.Errorf("缺少 name 应返回 400，实际 %d", w.Code)
	}
}

func TestEventHandler_Create_RejectsBadClock(t *testing.T) {
	mock := &mockEventService{}
	r := eventRouter(NewEventHandler(mock, time.UTC), false)

	w := serve(r, "POST", "/events", jsonBody(map[string]interface{}{
		"name": "Standup", "start_date": "2026-01-05", "start_time": "25:00",
	}))
	if w.Code != http.StatusBadRequest {
		t.Errorf("非法 start_time 应返回 400，实际 %d", w.Code)
	}
}

func TestEventHandler_Update_DecodesPatchAndScope(t *testing.T) {
	mock := &mockEventService{mutateResult: &dto.MutationResponse{}}
	r := eventRouter(NewEventHandler(mock, time.UTC), false)

	w := serve(r, "PATCH", "/events/s1?editMode=single&date=2026-01-12",
		strings.NewReader(`{"start_time":"10:00","location":null}`))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	got := mock.lastMutate
	if got.EditMode != "single" || got.Date != "2026-01-12" {
		t.Errorf("作用域参数未透传: %+v", got)
	}
	if v, ok := got.Patch.StartTime.Get(); !ok || *v != "10:00" {
		t.Errorf("start_time 应出现在补丁中")
	}
	if v, ok := got.Patch.Location.Get(); !ok || v != nil {
		t.Errorf("显式 null 应解析为清空 location")
	}
	if got.Patch.Name.IsPresent() {
		t.Errorf("未出现的键不应出现在补丁中")
	}
}

func TestEventHandler_Update_InvalidPatch(t *testing.T) {
	mock := &mockEventService{}
	r := eventRouter(NewEventHandler(mock, time.UTC), false)

	w := serve(r, "PATCH", "/events/s1", strings.NewReader(`{"name":null}`))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if mock.lastMutate != nil {
		t.Error("补丁非法时不应调用 Service")
	}
}

func TestEventHandler_Update_ErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   int
	}{
		{service.ErrScopeRequiresDate, http.StatusBadRequest, 20101},
		{service.ErrInvalidEditScope, http.StatusBadRequest, 20102},
		{service.ErrInvalidDate, http.StatusBadRequest, 20103},
		{service.ErrEventNotFound, http.StatusNotFound, 20106},
		{pkgerrors.ErrOptimisticLock, http.StatusConflict, 20107},
		{service.ErrSeriesSplitFailed, http.StatusInternalServerError, 20108},
		{errors.New("boom"), http.StatusInternalServerError, 50000},
	}
	for _, tc := range cases {
		mock := &mockEventService{err: tc.err}
		r := eventRouter(NewEventHandler(mock, time.UTC), false)

		w := serve(r, "PATCH", "/events/s1?editMode=single", strings.NewReader(`{}`))
		if w.Code != tc.status {
			t.Errorf("%v: expected %d, got %d", tc.err, tc.status, w.Code)
		}
		if resp := parseResponse(w); resp.Code != tc.code {
			t.Errorf("%v: expected code %d, got %d", tc.err, tc.code, resp.Code)
		}
	}
}

func TestEventHandler_Delete(t *testing.T) {
	mock := &mockEventService{mutateResult: &dto.MutationResponse{Deleted: true}}
	r := eventRouter(NewEventHandler(mock, time.UTC), false)

	w := serve(r, "DELETE", "/events/s1?deleteMode=thisAndFuture&date=2026-01-19", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if mock.lastDelete.DeleteMode != "thisAndFuture" || mock.lastDelete.Date != "2026-01-19" {
		t.Errorf("删除参数未透传: %+v", mock.lastDelete)
	}
}

func TestEventHandler_Batch(t *testing.T) {
	mock := &mockEventService{batchResult: []dto.MutationResponse{{}, {}}}
	r := eventRouter(NewEventHandler(mock, time.UTC), false)

	w := serve(r, "PATCH", "/events/batch", strings.NewReader(`{"items":[
		{"id":"a","patch":{"name":"x"}},
		{"id":"b","edit_mode":"single","date":"2026-01-12","patch":{"start_time":"11:00"}}
	]}`))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(mock.lastBatch) != 2 || mock.lastBatch[1].Request.EditMode != "single" {
		t.Errorf("批量项未正确解析: %+v", mock.lastBatch)
	}
}

func TestEventHandler_Batch_Empty(t *testing.T) {
	mock := &mockEventService{}
	r := eventRouter(NewEventHandler(mock, time.UTC), false)

	w := serve(r, "PATCH", "/events/batch", strings.NewReader(`{"items":[]}`))
	if w.Code != http.StatusBadRequest {
		t.Errorf("空批量应返回 400，实际 %d", w.Code)
	}
}

func TestEventHandler_Consistency(t *testing.T) {
	mock := &mockEventService{overlaps: []dto.OverlapResponse{{FamilyID: "f", FirstID: "a", SecondID: "b", OverlapStart: "2026-01-19"}}}
	r := eventRouter(NewEventHandler(mock, time.UTC), false)

	w := serve(r, "GET", "/events/consistency", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"overlap_start":"2026-01-19"`) {
		t.Errorf("响应缺少重叠信息: %s", w.Body.String())
	}
}

// ═══════════════════════════════════════════════════════════
// ExportHandler Tests
// ═══════════════════════════════════════════════════════════

func TestExportHandler_ExportICS(t *testing.T) {
	mock := &mockExportService{buf: bytes.NewBufferString("BEGIN:VCALENDAR"), filename: "calendar_20260114.ics"}
	h := NewExportHandler(mock)

	r := gin.New()
	r.GET("/events/export.ics", h.ExportICS)
	w := serve(r, "GET", "/events/export.ics?start=2026-01-01", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Errorf("unexpected content type %s", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "calendar_20260114.ics") {
		t.Errorf("unexpected disposition %s", cd)
	}
}

func TestExportHandler_InvalidWindow(t *testing.T) {
	mock := &mockExportService{err: service.ErrInvalidWindow}
	h := NewExportHandler(mock)

	r := gin.New()
	r.GET("/export/events", h.ExportXLSX)
	w := serve(r, "GET", "/export/events?start=2026-02-01&end=2026-01-01", nil)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// ═══════════════════════════════════════════════════════════
// QueueHandler Tests
// ═══════════════════════════════════════════════════════════

func TestQueueHandler_UpdateStatus(t *testing.T) {
	mock := &mockQueueService{item: &dto.QueueItemResponse{ID: "q1", Status: model.QueueStatusDone}}
	h := NewQueueHandler(mock)

	r := gin.New()
	r.PUT("/queue/:id/status", h.UpdateStatus)

	w := serve(r, "PUT", "/queue/q1/status", strings.NewReader(`{"status":"done"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if mock.lastStatus != model.QueueStatusDone {
		t.Errorf("expected done, got %s", mock.lastStatus)
	}

	for _, body := range []string{`{"status":"archived"}`, `{}`} {
		w = serve(r, "PUT", "/queue/q1/status", strings.NewReader(body))
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", body, w.Code)
		}
	}
}

func TestQueueHandler_NotFound(t *testing.T) {
	mock := &mockQueueService{err: service.ErrQueueItemNotFound}
	h := NewQueueHandler(mock)

	r := gin.New()
	r.PUT("/queue/:id/status", h.UpdateStatus)

	w := serve(r, "PUT", "/queue/missing/status", strings.NewReader(`{"status":"queued"}`))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

// ═══════════════════════════════════════════════════════════
// AuthHandler Tests
// ═══════════════════════════════════════════════════════════

func TestAuthHandler_Logout(t *testing.T) {
	revoker := &mockRevoker{}
	h := NewAuthHandler(revoker)

	r := gin.New()
	r.Use(func(c *gin.Context) { setAuth(c); c.Next() })
	r.POST("/auth/logout", h.Logout)

	w := serve(r, "POST", "/auth/logout", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if revoker.jti != "test-jti" || revoker.ttl <= 0 {
		t.Errorf("应按剩余有效期吊销当前 Token: %+v", revoker)
	}
}

func TestAuthHandler_Logout_Unauthenticated(t *testing.T) {
	h := NewAuthHandler(&mockRevoker{})

	r := gin.New()
	r.POST("/auth/logout", h.Logout)

	w := serve(r, "POST", "/auth/logout", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}
