package service

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"github.com/nclamvn/english-center-cms/internal/model"
	"github.com/nclamvn/english-center-cms/internal/repository"
)

// 审计实体与动作
const (
	AuditEntityAttendance  = "Attendance"
	AuditEntitySession     = "Session"
	AuditEntityCharge      = "Charge"
	AuditEntityBillingPlan = "BillingPlan"

	AuditActionCreate = "CREATE"
	AuditActionUpdate = "UPDATE"
	AuditActionUnlock = "UNLOCK"
)

type auditEntry struct {
	ActorID  *string
	Entity   string
	EntityID string
	Action   string
	Payload  interface{}
}

// auditDiff 前后快照
func auditDiff(before, after interface{}) map[string]interface{} {
	return map[string]interface{}{"before": before, "after": after}
}

// recordAudit 写入审计日志；与业务写入共用调用方的事务
func recordAudit(ctx context.Context, repo *repository.Repository, e auditEntry) error {
	raw, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("序列化审计内容失败: %w", err)
	}
	return repo.AuditLog.Create(ctx, &model.AuditLog{
		ActorID:  e.ActorID,
		Entity:   e.Entity,
		EntityID: e.EntityID,
		Action:   e.Action,
		DiffJSON: datatypes.JSON(raw),
	})
}
