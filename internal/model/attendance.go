package model

import "time"

// AttendanceStatus 考勤状态
type AttendanceStatus string

const (
	AttendancePresent         AttendanceStatus = "PRESENT"
	AttendanceLate            AttendanceStatus = "LATE"
	AttendanceAbsentExcused   AttendanceStatus = "ABSENT_EXCUSED"
	AttendanceAbsentUnexcused AttendanceStatus = "ABSENT_UNEXCUSED"
	AttendanceMakeup          AttendanceStatus = "MAKEUP"
	AttendanceOnline          AttendanceStatus = "ONLINE"
)

// AttendanceStatuses 全部合法考勤状态（顺序即展示顺序）
var AttendanceStatuses = []AttendanceStatus{
	AttendancePresent,
	AttendanceLate,
	AttendanceAbsentExcused,
	AttendanceAbsentUnexcused,
	AttendanceMakeup,
	AttendanceOnline,
}

// Valid 是否为合法考勤状态
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendancePresent, AttendanceLate, AttendanceAbsentExcused,
		AttendanceAbsentUnexcused, AttendanceMakeup, AttendanceOnline:
		return true
	}
	return false
}

// CountsAsPresent 出勤统计口径：到课、迟到、线上均算出勤
func (s AttendanceStatus) CountsAsPresent() bool {
	return s == AttendancePresent || s == AttendanceLate || s == AttendanceOnline
}

// AttendanceRecord 考勤记录表 — 对应 attendances
// (session_id, student_id) 唯一；不做物理删除，修改通过变更日志留痕
type AttendanceRecord struct {
	AttendanceID string           `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"     json:"attendance_id"`
	SessionID    string           `gorm:"type:uuid;not null;uniqueIndex:uq_attendance_session_student" json:"session_id"`
	StudentID    string           `gorm:"type:uuid;not null;uniqueIndex:uq_attendance_session_student" json:"student_id"`
	Status       AttendanceStatus `gorm:"type:varchar(20);not null"                          json:"status"`
	LateMinutes  *int             `json:"late_minutes,omitempty"`
	Note         *string          `gorm:"type:text"                                          json:"note,omitempty"`
	Attachment   *string          `gorm:"type:varchar(500)"                                  json:"attachment,omitempty"`
	MarkedBy     string           `gorm:"type:uuid;not null"                                 json:"marked_by"`
	MarkedAt     time.Time        `gorm:"not null"                                           json:"marked_at"`
	CreatedAt    time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP"                 json:"created_at"`
	UpdatedAt    time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP"                 json:"updated_at"`

	// 关联
	Student *Student `gorm:"foreignKey:StudentID;references:StudentID" json:"student,omitempty"`
}

// TableName 指定表名
func (AttendanceRecord) TableName() string { return "attendances" }

// 变更日志动作
const (
	ChangeActionCreate = "CREATE"
	ChangeActionUpdate = "UPDATE"
)

// AttendanceChangeLog 考勤变更日志表 — 对应 attendance_logs（只追加，不修改不删除）
type AttendanceChangeLog struct {
	LogID          string            `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"log_id"`
	AttendanceID   string            `gorm:"type:uuid;not null;index"                       json:"attendance_id"`
	Action         string            `gorm:"type:varchar(10);not null"                      json:"action"` // CREATE | UPDATE
	PreviousStatus *AttendanceStatus `gorm:"type:varchar(20)"                               json:"previous_status,omitempty"`
	NewStatus      AttendanceStatus  `gorm:"type:varchar(20);not null"                      json:"new_status"`
	PreviousNote   *string           `gorm:"type:text"                                      json:"previous_note,omitempty"`
	NewNote        *string           `gorm:"type:text"                                      json:"new_note,omitempty"`
	ChangedBy      *string           `gorm:"type:uuid"                                      json:"changed_by,omitempty"`
	ChangedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"changed_at"`
	Reason         *string           `gorm:"type:varchar(500)"                              json:"reason,omitempty"`

	// 关联
	Attendance *AttendanceRecord `gorm:"foreignKey:AttendanceID;references:AttendanceID" json:"attendance,omitempty"`
}

// TableName 指定表名
func (AttendanceChangeLog) TableName() string { return "attendance_logs" }
