package dto

// ── 考勤模块请求 ──

// AttendanceEdit 单个学员的考勤编辑
type AttendanceEdit struct {
	StudentID   string  `json:"student_id"   binding:"required,uuid"`
	Status      string  `json:"status"       binding:"required,attendance_status"`
	LateMinutes *int    `json:"late_minutes" binding:"omitempty,min=0,max=600"`
	Note        *string `json:"note"         binding:"omitempty,max=1000"`
	Attachment  *string `json:"attachment"   binding:"omitempty,max=500"`
}

// SaveAttendanceRequest 批量保存考勤
// POST /api/v1/sessions/:id/attendance
type SaveAttendanceRequest struct {
	Attendances []AttendanceEdit `json:"attendances" binding:"required,dive"`
}

// ── 考勤模块响应 ──

// SessionDetailResponse 课次信息（含锁定状态）
type SessionDetailResponse struct {
	ID             string      `json:"id"`
	ClassID        string      `json:"class_id"`
	Date           string      `json:"date"`
	StartTime      string      `json:"start_time"`
	EndTime        string      `json:"end_time"`
	Mode           string      `json:"mode"`
	Room           string      `json:"room,omitempty"`
	Status         string      `json:"status"`
	IsLocked       bool        `json:"is_locked"`
	LockedAt       *string     `json:"locked_at"`
	LockedBy       *string     `json:"locked_by"`
	LockReason     *string     `json:"lock_reason"`
	ShouldAutoLock bool        `json:"should_auto_lock"`
	LockDeadline   string      `json:"lock_deadline,omitempty"`
	Class          *ClassBrief `json:"class,omitempty"`
}

// AttendanceRecordResponse 考勤记录
type AttendanceRecordResponse struct {
	ID          string  `json:"id"`
	StudentID   string  `json:"student_id"`
	Status      string  `json:"status"`
	LateMinutes *int    `json:"late_minutes"`
	Note        *string `json:"note"`
	Attachment  *string `json:"attachment"`
	MarkedBy    string  `json:"marked_by"`
	MarkedAt    string  `json:"marked_at"`
}

// StudentAttendanceResponse 在读学员及其考勤（未点名时 attendance 为 null）
type StudentAttendanceResponse struct {
	Student    StudentBrief              `json:"student"`
	Attendance *AttendanceRecordResponse `json:"attendance"`
}

// AttendanceSummary 课次出勤统计
type AttendanceSummary struct {
	TotalStudents  int            `json:"total_students"`
	MarkedCount    int            `json:"marked_count"`
	PresentCount   int            `json:"present_count"`
	AttendanceRate float64        `json:"attendance_rate"` // 0-100，保留一位小数
	ByStatus       map[string]int `json:"by_status"`
}

// SessionAttendanceResponse 课次考勤全貌
// GET /api/v1/sessions/:id/attendance
type SessionAttendanceResponse struct {
	Session  SessionDetailResponse       `json:"session"`
	Students []StudentAttendanceResponse `json:"students"`
	Summary  AttendanceSummary           `json:"summary"`
}

// FailedEdit 保存失败的单条编辑
type FailedEdit struct {
	StudentID string `json:"student_id"`
	Reason    string `json:"reason"`
}

// SaveAttendanceResponse 批量保存结果
type SaveAttendanceResponse struct {
	Count  int          `json:"count"`
	Failed []FailedEdit `json:"failed"`
}

// AttendanceLogResponse 考勤变更日志（按学员展开）
type AttendanceLogResponse struct {
	ID             string  `json:"id"`
	StudentID      string  `json:"student_id"`
	StudentName    string  `json:"student_name"`
	Action         string  `json:"action"`
	PreviousStatus *string `json:"previous_status"`
	NewStatus      string  `json:"new_status"`
	PreviousNote   *string `json:"previous_note"`
	NewNote        *string `json:"new_note"`
	ChangedBy      string  `json:"changed_by"` // 为空时为 System
	ChangedAt      string  `json:"changed_at"`
	Reason         *string `json:"reason"`
}
