package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nclamvn/english-center-cms/internal/dto"
	"github.com/nclamvn/english-center-cms/internal/service"
	pkgerrors "github.com/nclamvn/english-center-cms/pkg/errors"
	"github.com/nclamvn/english-center-cms/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
	RegisterValidators()
}

const (
	testSessionID = "5f0c6a52-3c43-4c52-9d1b-2f3f1f6f0a01"
	testStudentID = "9a1d3c8e-7b6f-4f0a-8e2d-1c5b4a3f2e10"
	testClassID   = "0b7e3f7c-2d1a-4c6b-9f8e-5a4d3c2b1a00"
)

// ═══════════════════════════════════════════════════════════
// Mock Services
// ═══════════════════════════════════════════════════════════

// ── Mock AttendanceService ──

type mockAttendanceService struct {
	getResult  *dto.SessionAttendanceResponse
	getErr     error
	saveResult *dto.SaveAttendanceResponse
	saveErr    error
	logsResult []dto.AttendanceLogResponse
	logsErr    error

	gotActorID string
	gotEdits   []dto.AttendanceEdit
}

func (m *mockAttendanceService) GetSessionAttendance(_ context.Context, _ string) (*dto.SessionAttendanceResponse, error) {
	return m.getResult, m.getErr
}
func (m *mockAttendanceService) SaveAttendance(_ context.Context, _ string, actorID string, edits []dto.AttendanceEdit) (*dto.SaveAttendanceResponse, error) {
	m.gotActorID = actorID
	m.gotEdits = edits
	return m.saveResult, m.saveErr
}
func (m *mockAttendanceService) ListChangeLogs(_ context.Context, _ string) ([]dto.AttendanceLogResponse, error) {
	return m.logsResult, m.logsErr
}

// ── Mock SessionService ──

type mockSessionService struct {
	createResult *dto.SessionDetailResponse
	createErr    error
	statusResult *dto.SessionDetailResponse
	statusErr    error
	lockResult   *dto.LockStatusResponse
	lockErr      error

	gotRole string
}

func (m *mockSessionService) Create(_ context.Context, _ *dto.CreateSessionRequest, _ string) (*dto.SessionDetailResponse, error) {
	return m.createResult, m.createErr
}
func (m *mockSessionService) UpdateStatus(_ context.Context, _ string, _ *dto.UpdateSessionStatusRequest, _ string) (*dto.SessionDetailResponse, error) {
	return m.statusResult, m.statusErr
}
func (m *mockSessionService) GetLockStatus(_ context.Context, _ string) (*dto.LockStatusResponse, error) {
	return m.lockResult, m.lockErr
}
func (m *mockSessionService) SetLock(_ context.Context, _ string, _ *dto.SetLockRequest, _ string, role string) (*dto.LockStatusResponse, error) {
	m.gotRole = role
	return m.lockResult, m.lockErr
}

// ── Mock BillingService ──

type mockBillingService struct {
	generateResult *dto.GenerateChargesResponse
	generateErr    error
	listResult     []dto.ChargeResponse
	listTotal      int64
	listErr        error
	updateResult   *dto.ChargeResponse
	updateErr      error
	planResult     *dto.BillingPlanResponse
	planErr        error
}

func (m *mockBillingService) GenerateCharges(_ context.Context, _ *dto.GenerateChargesRequest, _ string) (*dto.GenerateChargesResponse, error) {
	return m.generateResult, m.generateErr
}
func (m *mockBillingService) ListCharges(_ context.Context, _ *dto.ChargeListRequest) ([]dto.ChargeResponse, int64, error) {
	return m.listResult, m.listTotal, m.listErr
}
func (m *mockBillingService) UpdateChargeStatus(_ context.Context, _ string, _ *dto.UpdateChargeStatusRequest, _ string) (*dto.ChargeResponse, error) {
	return m.updateResult, m.updateErr
}
func (m *mockBillingService) SetBillingPlan(_ context.Context, _ string, _ *dto.BillingPlanRequest, _ string) (*dto.BillingPlanResponse, error) {
	return m.planResult, m.planErr
}

// ── Mock ExportService ──

type mockExportService struct {
	chargesBuf  *bytes.Buffer
	chargesName string
	chargesErr  error
	icsBuf      *bytes.Buffer
	icsName     string
	icsErr      error

	gotFrom *time.Time
	gotTo   *time.Time
}

func (m *mockExportService) ExportCharges(_ context.Context, _ *dto.ChargeListRequest) (*bytes.Buffer, string, error) {
	return m.chargesBuf, m.chargesName, m.chargesErr
}
func (m *mockExportService) ExportClassCalendar(_ context.Context, _ string, from, to *time.Time) (*bytes.Buffer, string, error) {
	m.gotFrom, m.gotTo = from, to
	return m.icsBuf, m.icsName, m.icsErr
}

// ═══════════════════════════════════════════════════════════
// Helpers
// ═══════════════════════════════════════════════════════════

// newRouter 注册单条路由，authed=true 时模拟 JWT 中间件注入身份
func newRouter(method, path string, authed bool, role string, h gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	handlers := []gin.HandlerFunc{}
	if authed {
		handlers = append(handlers, func(c *gin.Context) {
			c.Set("user_id", "teacher-1")
			c.Set("role", role)
			c.Next()
		})
	}
	r.Handle(method, path, append(handlers, h)...)
	return r
}

func doRequest(r *gin.Engine, method, target string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func jsonBody(v interface{}) io.Reader {
	b, _ := json.Marshal(v)
	return bytes.NewReader(b)
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func dataMap(t *testing.T, resp response.Response) map[string]interface{} {
	t.Helper()
	m, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "data should be an object, got %T", resp.Data)
	return m
}

// ═══════════════════════════════════════════════════════════
// AttendanceHandler Tests
// ═══════════════════════════════════════════════════════════

func TestAttendanceHandler_SaveAttendance_Success(t *testing.T) {
	mock := &mockAttendanceService{saveResult: &dto.SaveAttendanceResponse{Count: 1}}
	h := NewAttendanceHandler(mock)
	r := newRouter(http.MethodPost, "/sessions/:id/attendance", true, "teacher", h.SaveAttendance)

	w := doRequest(r, http.MethodPost, "/sessions/"+testSessionID+"/attendance", jsonBody(gin.H{
		"attendances": []gin.H{{"student_id": testStudentID, "status": "LATE", "late_minutes": 10}},
	}))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, parseResponse(t, w).Code)
	assert.Equal(t, "teacher-1", mock.gotActorID)
	require.Len(t, mock.gotEdits, 1)
	assert.Equal(t, "LATE", mock.gotEdits[0].Status)
	require.NotNil(t, mock.gotEdits[0].LateMinutes)
	assert.Equal(t, 10, *mock.gotEdits[0].LateMinutes)
}

func TestAttendanceHandler_SaveAttendance_UnknownStatus(t *testing.T) {
	mock := &mockAttendanceService{}
	h := NewAttendanceHandler(mock)
	r := newRouter(http.MethodPost, "/sessions/:id/attendance", true, "teacher", h.SaveAttendance)

	w := doRequest(r, http.MethodPost, "/sessions/"+testSessionID+"/attendance", jsonBody(gin.H{
		"attendances": []gin.H{{"student_id": testStudentID, "status": "HERE"}},
	}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := parseResponse(t, w)
	assert.Equal(t, 20001, resp.Code)
	assert.Equal(t, "attendance_status", dataMap(t, resp)["Attendances[0].Status"])
	assert.Nil(t, mock.gotEdits, "service must not be called")
}

func TestAttendanceHandler_SaveAttendance_BadJSON(t *testing.T) {
	h := NewAttendanceHandler(&mockAttendanceService{})
	r := newRouter(http.MethodPost, "/sessions/:id/attendance", true, "teacher", h.SaveAttendance)

	w := doRequest(r, http.MethodPost, "/sessions/"+testSessionID+"/attendance", bytes.NewReader([]byte("not json")))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 20001, parseResponse(t, w).Code)
}

func TestAttendanceHandler_SaveAttendance_Unauthenticated(t *testing.T) {
	h := NewAttendanceHandler(&mockAttendanceService{})
	r := newRouter(http.MethodPost, "/sessions/:id/attendance", false, "", h.SaveAttendance)

	w := doRequest(r, http.MethodPost, "/sessions/"+testSessionID+"/attendance", jsonBody(gin.H{
		"attendances": []gin.H{{"student_id": testStudentID, "status": "PRESENT"}},
	}))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 10002, parseResponse(t, w).Code)
}

func TestAttendanceHandler_SaveAttendance_AutoLocked(t *testing.T) {
	lockedAt := time.Date(2026, 3, 10, 6, 6, 0, 0, time.UTC)
	reason := "auto-locked after 2 hours"
	mock := &mockAttendanceService{saveErr: &service.LockedError{
		LockedAt:   &lockedAt,
		LockReason: &reason,
		AutoLocked: true,
	}}
	h := NewAttendanceHandler(mock)
	r := newRouter(http.MethodPost, "/sessions/:id/attendance", true, "teacher", h.SaveAttendance)

	w := doRequest(r, http.MethodPost, "/sessions/"+testSessionID+"/attendance", jsonBody(gin.H{
		"attendances": []gin.H{{"student_id": testStudentID, "status": "PRESENT"}},
	}))

	assert.Equal(t, http.StatusForbidden, w.Code)
	resp := parseResponse(t, w)
	assert.Equal(t, 20102, resp.Code)
	data := dataMap(t, resp)
	assert.Equal(t, "2026-03-10T06:06:00Z", data["locked_at"])
	assert.Equal(t, reason, data["lock_reason"])
	assert.Equal(t, true, data["auto_locked"])
}

func TestAttendanceHandler_SaveAttendance_ValidationError(t *testing.T) {
	mock := &mockAttendanceService{saveErr: &service.ValidationError{Fields: map[string]string{
		"attendances[0].student_id": "学员未在该班级在读",
	}}}
	h := NewAttendanceHandler(mock)
	r := newRouter(http.MethodPost, "/sessions/:id/attendance", true, "teacher", h.SaveAttendance)

	w := doRequest(r, http.MethodPost, "/sessions/"+testSessionID+"/attendance", jsonBody(gin.H{
		"attendances": []gin.H{{"student_id": testStudentID, "status": "PRESENT"}},
	}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := parseResponse(t, w)
	assert.Equal(t, 20103, resp.Code)
	assert.Contains(t, dataMap(t, resp), "attendances[0].student_id")
}

func TestAttendanceHandler_GetSessionAttendance_NotFound(t *testing.T) {
	h := NewAttendanceHandler(&mockAttendanceService{getErr: service.ErrSessionNotFound})
	r := newRouter(http.MethodGet, "/sessions/:id/attendance", true, "teacher", h.GetSessionAttendance)

	w := doRequest(r, http.MethodGet, "/sessions/"+testSessionID+"/attendance", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 20101, parseResponse(t, w).Code)
}

func TestAttendanceHandler_ListChangeLogs_Success(t *testing.T) {
	mock := &mockAttendanceService{logsResult: []dto.AttendanceLogResponse{
		{ID: "log-1", StudentID: testStudentID, Action: "UPDATE", NewStatus: "ABSENT_EXCUSED", ChangedBy: "teacher-1"},
	}}
	h := NewAttendanceHandler(mock)
	r := newRouter(http.MethodGet, "/sessions/:id/attendance/logs", true, "teacher", h.ListChangeLogs)

	w := doRequest(r, http.MethodGet, "/sessions/"+testSessionID+"/attendance/logs", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	list, ok := dataMap(t, parseResponse(t, w))["list"].([]interface{})
	require.True(t, ok)
	assert.Len(t, list, 1)
}

// ═══════════════════════════════════════════════════════════
// SessionHandler Tests
// ═══════════════════════════════════════════════════════════

func TestSessionHandler_SetLock_PassesRole(t *testing.T) {
	mock := &mockSessionService{lockResult: &dto.LockStatusResponse{ID: testSessionID}}
	h := NewSessionHandler(mock)
	r := newRouter(http.MethodPost, "/sessions/:id/lock", true, "manager", h.SetLock)

	w := doRequest(r, http.MethodPost, "/sessions/"+testSessionID+"/lock", jsonBody(dto.SetLockRequest{
		Action: "unlock",
		Reason: "parent sent medical note",
	}))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "manager", mock.gotRole)
}

func TestSessionHandler_SetLock_Forbidden(t *testing.T) {
	h := NewSessionHandler(&mockSessionService{lockErr: service.ErrUnlockForbidden})
	r := newRouter(http.MethodPost, "/sessions/:id/lock", true, "teacher", h.SetLock)

	w := doRequest(r, http.MethodPost, "/sessions/"+testSessionID+"/lock", jsonBody(dto.SetLockRequest{
		Action: "unlock",
		Reason: "typo",
	}))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 21104, parseResponse(t, w).Code)
}

func TestSessionHandler_SetLock_MissingReason(t *testing.T) {
	mock := &mockSessionService{lockErr: &service.ValidationError{Fields: map[string]string{"reason": "解锁必须填写原因"}}}
	h := NewSessionHandler(mock)
	r := newRouter(http.MethodPost, "/sessions/:id/lock", true, "admin", h.SetLock)

	w := doRequest(r, http.MethodPost, "/sessions/"+testSessionID+"/lock", jsonBody(dto.SetLockRequest{Action: "unlock"}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := parseResponse(t, w)
	assert.Equal(t, 21105, resp.Code)
	assert.Equal(t, "解锁必须填写原因", dataMap(t, resp)["reason"])
}

func TestSessionHandler_SetLock_MissingAction(t *testing.T) {
	h := NewSessionHandler(&mockSessionService{})
	r := newRouter(http.MethodPost, "/sessions/:id/lock", true, "admin", h.SetLock)

	w := doRequest(r, http.MethodPost, "/sessions/"+testSessionID+"/lock", jsonBody(gin.H{}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 21001, parseResponse(t, w).Code)
}

func TestSessionHandler_UpdateStatus_InvalidTransition(t *testing.T) {
	h := NewSessionHandler(&mockSessionService{statusErr: service.ErrInvalidSessionTransition})
	r := newRouter(http.MethodPut, "/sessions/:id/status", true, "admin", h.UpdateStatus)

	w := doRequest(r, http.MethodPut, "/sessions/"+testSessionID+"/status", jsonBody(dto.UpdateSessionStatusRequest{Status: "COMPLETED"}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 21103, parseResponse(t, w).Code)
}

func TestSessionHandler_Create_Created(t *testing.T) {
	mock := &mockSessionService{createResult: &dto.SessionDetailResponse{ID: testSessionID, Status: "SCHEDULED"}}
	h := NewSessionHandler(mock)
	r := newRouter(http.MethodPost, "/sessions", true, "admin", h.Create)

	w := doRequest(r, http.MethodPost, "/sessions", jsonBody(dto.CreateSessionRequest{
		ClassID:   testClassID,
		Date:      "2026-03-10",
		StartTime: "09:00",
		EndTime:   "11:00",
		Mode:      "OFFLINE",
	}))

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, testSessionID, dataMap(t, parseResponse(t, w))["id"])
}

// ═══════════════════════════════════════════════════════════
// BillingHandler Tests
// ═══════════════════════════════════════════════════════════

func TestBillingHandler_GenerateCharges_NoPlan(t *testing.T) {
	h := NewBillingHandler(&mockBillingService{generateErr: service.ErrNoBillingPlan})
	r := newRouter(http.MethodPost, "/billing/generate", true, "admin", h.GenerateCharges)

	w := doRequest(r, http.MethodPost, "/billing/generate", jsonBody(dto.GenerateChargesRequest{
		ClassID:     testClassID,
		PeriodStart: "2026-03-01",
		PeriodEnd:   "2026-03-31",
	}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 22102, parseResponse(t, w).Code)
}

func TestBillingHandler_GenerateCharges_BadDate(t *testing.T) {
	h := NewBillingHandler(&mockBillingService{})
	r := newRouter(http.MethodPost, "/billing/generate", true, "admin", h.GenerateCharges)

	w := doRequest(r, http.MethodPost, "/billing/generate", jsonBody(dto.GenerateChargesRequest{
		ClassID:     testClassID,
		PeriodStart: "03/01/2026",
		PeriodEnd:   "2026-03-31",
	}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := parseResponse(t, w)
	assert.Equal(t, 22001, resp.Code)
	assert.Equal(t, "datetime", dataMap(t, resp)["PeriodStart"])
}

func TestBillingHandler_ListCharges_Page(t *testing.T) {
	mock := &mockBillingService{
		listResult: []dto.ChargeResponse{{ID: "c-1", Amount: 1050000}},
		listTotal:  41,
	}
	h := NewBillingHandler(mock)
	r := newRouter(http.MethodGet, "/charges", true, "admin", h.ListCharges)

	w := doRequest(r, http.MethodGet, "/charges?page=2&page_size=20&status=PENDING", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	data := dataMap(t, parseResponse(t, w))
	pagination, ok := data["pagination"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 2, pagination["page"])
	assert.EqualValues(t, 41, pagination["total"])
	assert.EqualValues(t, 3, pagination["total_pages"])
}

func TestBillingHandler_ListCharges_BadStatus(t *testing.T) {
	h := NewBillingHandler(&mockBillingService{})
	r := newRouter(http.MethodGet, "/charges", true, "admin", h.ListCharges)

	w := doRequest(r, http.MethodGet, "/charges?status=OVERDUE", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBillingHandler_UpdateChargeStatus_Conflict(t *testing.T) {
	h := NewBillingHandler(&mockBillingService{updateErr: pkgerrors.ErrOptimisticLock})
	r := newRouter(http.MethodPut, "/charges/:id/status", true, "admin", h.UpdateChargeStatus)

	w := doRequest(r, http.MethodPut, "/charges/c-1/status", jsonBody(dto.UpdateChargeStatusRequest{Status: "PAID", Version: 1}))

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 22105, parseResponse(t, w).Code)
}

func TestBillingHandler_SetBillingPlan_Ambiguous(t *testing.T) {
	h := NewBillingHandler(&mockBillingService{planErr: service.ErrAmbiguousBillingPlan})
	r := newRouter(http.MethodPut, "/classes/:id/billing-plan", true, "admin", h.SetBillingPlan)

	w := doRequest(r, http.MethodPut, "/classes/"+testClassID+"/billing-plan", jsonBody(gin.H{"price_per_session": 150000}))

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 22103, parseResponse(t, w).Code)
}

// ═══════════════════════════════════════════════════════════
// ExportHandler Tests
// ═══════════════════════════════════════════════════════════

func TestExportHandler_ExportCharges_Success(t *testing.T) {
	mock := &mockExportService{chargesBuf: bytes.NewBufferString("xlsx-bytes"), chargesName: "charges_2026-03-01.xlsx"}
	h := NewExportHandler(mock)
	r := newRouter(http.MethodGet, "/export/charges", true, "admin", h.ExportCharges)

	w := doRequest(r, http.MethodGet, "/export/charges?class_id="+testClassID, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, contentTypeXLSX, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "charges_2026-03-01.xlsx")
	assert.Equal(t, "xlsx-bytes", w.Body.String())
}

func TestExportHandler_ExportCharges_Empty(t *testing.T) {
	h := NewExportHandler(&mockExportService{chargesErr: service.ErrExportNoCharges})
	r := newRouter(http.MethodGet, "/export/charges", true, "admin", h.ExportCharges)

	w := doRequest(r, http.MethodGet, "/export/charges", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 23101, parseResponse(t, w).Code)
}

func TestExportHandler_ExportClassCalendar_Range(t *testing.T) {
	mock := &mockExportService{icsBuf: bytes.NewBufferString("BEGIN:VCALENDAR"), icsName: "class_x_sessions.ics"}
	h := NewExportHandler(mock)
	r := newRouter(http.MethodGet, "/export/classes/:id/sessions.ics", true, "admin", h.ExportClassCalendar)

	w := doRequest(r, http.MethodGet, "/export/classes/"+testClassID+"/sessions.ics?from=2026-03-01&to=2026-03-31", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, contentTypeICS, w.Header().Get("Content-Type"))
	require.NotNil(t, mock.gotFrom)
	require.NotNil(t, mock.gotTo)
	assert.Equal(t, "2026-03-01", mock.gotFrom.Format("2006-01-02"))
	assert.Equal(t, "2026-03-31", mock.gotTo.Format("2006-01-02"))
}

func TestExportHandler_ExportClassCalendar_BadDate(t *testing.T) {
	mock := &mockExportService{}
	h := NewExportHandler(mock)
	r := newRouter(http.MethodGet, "/export/classes/:id/sessions.ics", true, "admin", h.ExportClassCalendar)

	w := doRequest(r, http.MethodGet, "/export/classes/"+testClassID+"/sessions.ics?from=March", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 23001, parseResponse(t, w).Code)
	assert.Nil(t, mock.gotFrom)
}
