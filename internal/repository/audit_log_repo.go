package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/nclamvn/english-center-cms/internal/model"
)

// AuditLogRepository 审计日志数据访问接口（只写）
type AuditLogRepository interface {
	Create(ctx context.Context, log *model.AuditLog) error
}

type auditLogRepo struct {
	db *gorm.DB
}

func NewAuditLogRepo(db *gorm.DB) AuditLogRepository {
	return &auditLogRepo{db: db}
}

func (r *auditLogRepo) Create(ctx context.Context, log *model.AuditLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}
