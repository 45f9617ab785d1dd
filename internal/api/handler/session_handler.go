package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/nclamvn/english-center-cms/internal/dto"
	"github.com/nclamvn/english-center-cms/internal/service"
	"github.com/nclamvn/english-center-cms/pkg/response"
)

// SessionHandler 课次模块 HTTP 处理器
type SessionHandler struct {
	sessionSvc service.SessionService
}

// NewSessionHandler 创建 SessionHandler
func NewSessionHandler(sessionSvc service.SessionService) *SessionHandler {
	return &SessionHandler{sessionSvc: sessionSvc}
}

// Create 创建课次
// POST /api/v1/sessions
func (h *SessionHandler) Create(c *gin.Context) {
	var req dto.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBinding(c, 21001, err)
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.sessionSvc.Create(c.Request.Context(), &req, callerID)
	if err != nil {
		h.handleSessionError(c, err)
		return
	}

	response.Created(c, result)
}

// UpdateStatus 更新课次状态
// PUT /api/v1/sessions/:id/status
func (h *SessionHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateSessionStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBinding(c, 21001, err)
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.sessionSvc.UpdateStatus(c.Request.Context(), c.Param("id"), &req, callerID)
	if err != nil {
		h.handleSessionError(c, err)
		return
	}

	response.OK(c, result)
}

// GetLockStatus 查询课次锁定状态
// GET /api/v1/sessions/:id/lock
func (h *SessionHandler) GetLockStatus(c *gin.Context) {
	result, err := h.sessionSvc.GetLockStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleSessionError(c, err)
		return
	}

	response.OK(c, result)
}

// SetLock 锁定 / 解锁课次考勤
// POST /api/v1/sessions/:id/lock
func (h *SessionHandler) SetLock(c *gin.Context) {
	var req dto.SetLockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBinding(c, 21001, err)
		return
	}

	actorID, ok := MustGetUserID(c)
	if !ok {
		return
	}
	role, ok := MustGetRole(c)
	if !ok {
		return
	}

	result, err := h.sessionSvc.SetLock(c.Request.Context(), c.Param("id"), &req, actorID, role)
	if err != nil {
		h.handleSessionError(c, err)
		return
	}

	response.OK(c, result)
}

// handleSessionError 统一处理课次模块业务错误
func (h *SessionHandler) handleSessionError(c *gin.Context, err error) {
	var verr *service.ValidationError

	switch {
	case errors.As(err, &verr):
		writeValidationError(c, 21105, verr)
	case errors.Is(err, service.ErrSessionNotFound):
		response.NotFound(c, 21101, "课次不存在")
	case errors.Is(err, service.ErrClassNotFound):
		response.NotFound(c, 21102, "班级不存在")
	case errors.Is(err, service.ErrInvalidSessionTransition):
		response.BadRequest(c, 21103, "无效的课次状态流转")
	case errors.Is(err, service.ErrUnlockForbidden):
		response.Forbidden(c, 21104, "当前角色无权解锁考勤")
	default:
		response.InternalError(c)
	}
}
