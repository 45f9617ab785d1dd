package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nclamvn/english-center-cms/internal/dto"
	"github.com/nclamvn/english-center-cms/internal/service"
	"github.com/nclamvn/english-center-cms/pkg/response"
)

// AttendanceHandler 考勤模块 HTTP 处理器
type AttendanceHandler struct {
	attendanceSvc service.AttendanceService
}

// NewAttendanceHandler 创建 AttendanceHandler
func NewAttendanceHandler(attendanceSvc service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{attendanceSvc: attendanceSvc}
}

// GetSessionAttendance 获取课次考勤
// GET /api/v1/sessions/:id/attendance
func (h *AttendanceHandler) GetSessionAttendance(c *gin.Context) {
	result, err := h.attendanceSvc.GetSessionAttendance(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}

	response.OK(c, result)
}

// SaveAttendance 批量保存考勤
// POST /api/v1/sessions/:id/attendance
func (h *AttendanceHandler) SaveAttendance(c *gin.Context) {
	var req dto.SaveAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBinding(c, 20001, err)
		return
	}

	actorID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.attendanceSvc.SaveAttendance(c.Request.Context(), c.Param("id"), actorID, req.Attendances)
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}

	response.OK(c, result)
}

// ListChangeLogs 课次考勤变更日志
// GET /api/v1/sessions/:id/attendance/logs
func (h *AttendanceHandler) ListChangeLogs(c *gin.Context) {
	logs, err := h.attendanceSvc.ListChangeLogs(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}

	response.OK(c, gin.H{"list": logs})
}

// handleAttendanceError 统一处理考勤模块业务错误
func (h *AttendanceHandler) handleAttendanceError(c *gin.Context, err error) {
	var lockedErr *service.LockedError
	var verr *service.ValidationError

	switch {
	case errors.As(err, &lockedErr):
		response.ErrorWithData(c, http.StatusForbidden, 20102, lockedErr.Error(), gin.H{
			"locked_at":   formatLockedAt(lockedErr),
			"lock_reason": lockedErr.LockReason,
			"auto_locked": lockedErr.AutoLocked,
		})
	case errors.As(err, &verr):
		writeValidationError(c, 20103, verr)
	case errors.Is(err, service.ErrSessionNotFound):
		response.NotFound(c, 20101, "课次不存在")
	default:
		response.InternalError(c)
	}
}

func formatLockedAt(e *service.LockedError) *string {
	if e.LockedAt == nil {
		return nil
	}
	s := e.LockedAt.UTC().Format(time.RFC3339)
	return &s
}
