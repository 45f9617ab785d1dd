package dto

// ── 课次模块请求 ──

// CreateSessionRequest 创建课次
type CreateSessionRequest struct {
	ClassID   string `json:"class_id"   binding:"required,uuid"`
	Date      string `json:"date"       binding:"required,datetime=2006-01-02"`
	StartTime string `json:"start_time" binding:"required,datetime=15:04"`
	EndTime   string `json:"end_time"   binding:"required,datetime=15:04"`
	Mode      string `json:"mode"       binding:"omitempty,oneof=OFFLINE ONLINE"`
	Room      string `json:"room"       binding:"omitempty,max=100"`
}

// UpdateSessionStatusRequest 课次状态流转
type UpdateSessionStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=IN_PROGRESS COMPLETED CANCELLED"`
}

// SetLockRequest 锁定 / 解锁课次考勤
// POST /api/v1/sessions/:id/lock
type SetLockRequest struct {
	Action string `json:"action" binding:"required"` // lock | unlock
	Reason string `json:"reason" binding:"omitempty,max=500"`
}

// ── 课次模块响应 ──

// LockStatusResponse 锁定状态
// GET /api/v1/sessions/:id/lock
type LockStatusResponse struct {
	ID             string  `json:"id"`
	IsLocked       bool    `json:"is_locked"`
	LockedAt       *string `json:"locked_at"`
	LockedBy       *string `json:"locked_by"`
	LockReason     *string `json:"lock_reason"`
	ShouldAutoLock bool    `json:"should_auto_lock"`
}
