package model

import "time"

// 课次状态
// SCHEDULED → IN_PROGRESS → COMPLETED；CANCELLED 可由 SCHEDULED / IN_PROGRESS 进入
const (
	SessionStatusScheduled  = "SCHEDULED"
	SessionStatusInProgress = "IN_PROGRESS"
	SessionStatusCompleted  = "COMPLETED"
	SessionStatusCancelled  = "CANCELLED"
)

// 授课方式
const (
	SessionModeOffline = "OFFLINE"
	SessionModeOnline  = "ONLINE"
)

// Session 课次表 — 对应 sessions
// LockedAt 为空表示未锁定；锁定状态与 Status 相互独立
type Session struct {
	SessionID  string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"session_id"`
	ClassID    string     `gorm:"type:uuid;not null"                             json:"class_id"`
	Date       time.Time  `gorm:"type:date;not null"                             json:"date"`
	StartTime  string     `gorm:"type:varchar(5);not null"                       json:"start_time"` // HH:MM
	EndTime    string     `gorm:"type:varchar(5);not null"                       json:"end_time"`   // HH:MM
	Mode       string     `gorm:"type:varchar(20);not null;default:'OFFLINE'"    json:"mode"`
	Room       string     `gorm:"type:varchar(100)"                              json:"room,omitempty"`
	Status     string     `gorm:"type:varchar(20);not null;default:'SCHEDULED'"  json:"status"`
	LockedAt   *time.Time `json:"locked_at,omitempty"`
	LockedBy   *string    `gorm:"type:uuid"                                      json:"locked_by,omitempty"`
	LockReason *string    `gorm:"type:varchar(500)"                              json:"lock_reason,omitempty"`
	BaseModel

	// 关联
	Class *Class `gorm:"foreignKey:ClassID;references:ClassID" json:"class,omitempty"`
}

// TableName 指定表名
func (Session) TableName() string { return "sessions" }

// IsExplicitlyLocked 是否已持久化锁定（手动或已落库的自动锁定）
func (s *Session) IsExplicitlyLocked() bool { return s.LockedAt != nil }
