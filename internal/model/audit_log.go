package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog 审计日志表 — 对应 audit_logs（本模块只写不读）
type AuditLog struct {
	AuditLogID string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"audit_log_id"`
	ActorID    *string        `gorm:"type:uuid"                                      json:"actor_id,omitempty"`
	Entity     string         `gorm:"type:varchar(50);not null"                      json:"entity"`
	EntityID   string         `gorm:"type:varchar(100);not null"                     json:"entity_id"`
	Action     string         `gorm:"type:varchar(20);not null"                      json:"action"`
	DiffJSON   datatypes.JSON `gorm:"column:diff_json;type:jsonb"                    json:"diff"`
	CreatedAt  time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"created_at"`
}

// TableName 指定表名
func (AuditLog) TableName() string { return "audit_logs" }
