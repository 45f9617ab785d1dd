package repository

import (
	"context"

	"gorm.io/gorm"
)

// Transactor 事务执行器
// fn 内通过 tx 访问的所有 Repository 共享同一事务；fn 返回错误时整体回滚。
// 在事务内再次调用 WithinTransaction 会创建 SAVEPOINT，内层失败只回滚内层。
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(tx *Repository) error) error
}

// Repository 所有 Repository 的聚合入口
type Repository struct {
	Class         ClassRepository
	Enrollment    EnrollmentRepository
	Session       SessionRepository
	Attendance    AttendanceRepository
	AttendanceLog AttendanceChangeLogRepository
	BillingPlan   BillingPlanRepository
	Charge        ChargeRepository
	AuditLog      AuditLogRepository
	Tx            Transactor
}

// NewRepository 创建 Repository 聚合
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		Class:         NewClassRepo(db),
		Enrollment:    NewEnrollmentRepo(db),
		Session:       NewSessionRepo(db),
		Attendance:    NewAttendanceRepo(db),
		AttendanceLog: NewAttendanceChangeLogRepo(db),
		BillingPlan:   NewBillingPlanRepo(db),
		Charge:        NewChargeRepo(db),
		AuditLog:      NewAuditLogRepo(db),
		Tx:            &gormTransactor{db: db},
	}
}

// ── GORM 事务实现 ──

type gormTransactor struct {
	db *gorm.DB
}

func (t *gormTransactor) WithinTransaction(ctx context.Context, fn func(tx *Repository) error) error {
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepository(tx))
	})
}
