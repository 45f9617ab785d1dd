package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nclamvn/english-center-cms/internal/model"
	pkgerrors "github.com/nclamvn/english-center-cms/pkg/errors"
)

// BillingPlanRepository 计费方案数据访问接口
type BillingPlanRepository interface {
	ListActiveByClass(ctx context.Context, classID string) ([]model.BillingPlan, error)
	DeactivateByClass(ctx context.Context, classID string, updatedBy *string) error
	Create(ctx context.Context, plan *model.BillingPlan) error
}

// ChargeFilter 收费单查询条件
type ChargeFilter struct {
	ClassID     string
	StudentID   string
	PeriodStart *time.Time
	Status      string
}

// ChargeRepository 收费单数据访问接口
type ChargeRepository interface {
	GetByID(ctx context.Context, id string) (*model.Charge, error)
	Create(ctx context.Context, charge *model.Charge) error
	// CreateIfAbsent 插入收费单；同一学员/班级/周期已存在时不写入并返回 false
	CreateIfAbsent(ctx context.Context, charge *model.Charge) (bool, error)
	// UpdateCalculation 仅更新金额与计算明细，不触碰付款状态
	UpdateCalculation(ctx context.Context, charge *model.Charge) error
	// UpdateStatus 乐观锁更新付款状态
	UpdateStatus(ctx context.Context, charge *model.Charge) error
	List(ctx context.Context, filter ChargeFilter, offset, limit int) ([]model.Charge, int64, error)
}

// ── BillingPlan Repository 实现 ──

type billingPlanRepo struct {
	db *gorm.DB
}

func NewBillingPlanRepo(db *gorm.DB) BillingPlanRepository {
	return &billingPlanRepo{db: db}
}

func (r *billingPlanRepo) ListActiveByClass(ctx context.Context, classID string) ([]model.BillingPlan, error) {
	var plans []model.BillingPlan
	err := r.db.WithContext(ctx).
		Where("class_id = ? AND status = ?", classID, model.EntityStatusActive).
		Order("created_at DESC").
		Find(&plans).Error
	return plans, err
}

func (r *billingPlanRepo) DeactivateByClass(ctx context.Context, classID string, updatedBy *string) error {
	return r.db.WithContext(ctx).
		Model(&model.BillingPlan{}).
		Where("class_id = ? AND status = ?", classID, model.EntityStatusActive).
		Updates(map[string]interface{}{
			"status":     model.EntityStatusInactive,
			"updated_by": updatedBy,
			"updated_at": gorm.Expr("CURRENT_TIMESTAMP"),
		}).Error
}

func (r *billingPlanRepo) Create(ctx context.Context, plan *model.BillingPlan) error {
	return pkgerrors.TranslateDuplicate(r.db.WithContext(ctx).Create(plan).Error)
}

// ── Charge Repository 实现 ──

type chargeRepo struct {
	db *gorm.DB
}

func NewChargeRepo(db *gorm.DB) ChargeRepository {
	return &chargeRepo{db: db}
}

func (r *chargeRepo) GetByID(ctx context.Context, id string) (*model.Charge, error) {
	var charge model.Charge
	err := r.db.WithContext(ctx).
		Preload("Student").
		Where("charge_id = ?", id).
		First(&charge).Error
	if err != nil {
		return nil, err
	}
	return &charge, nil
}

func (r *chargeRepo) Create(ctx context.Context, charge *model.Charge) error {
	return pkgerrors.TranslateDuplicate(r.db.WithContext(ctx).Create(charge).Error)
}

func (r *chargeRepo) CreateIfAbsent(ctx context.Context, charge *model.Charge) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(charge)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *chargeRepo) UpdateCalculation(ctx context.Context, charge *model.Charge) error {
	result := r.db.WithContext(ctx).
		Model(&model.Charge{}).
		Where("charge_id = ?", charge.ChargeID).
		Updates(map[string]interface{}{
			"amount":     charge.Amount,
			"calc_json":  charge.CalcJSON,
			"period_end": charge.PeriodEnd,
			"updated_by": charge.UpdatedBy,
			"version":    gorm.Expr("version + 1"),
			"updated_at": gorm.Expr("CURRENT_TIMESTAMP"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	charge.Version++
	return nil
}

func (r *chargeRepo) UpdateStatus(ctx context.Context, charge *model.Charge) error {
	oldVersion := charge.Version
	result := r.db.WithContext(ctx).
		Model(&model.Charge{}).
		Where("charge_id = ? AND version = ?", charge.ChargeID, oldVersion).
		Updates(map[string]interface{}{
			"status":     charge.Status,
			"updated_by": charge.UpdatedBy,
			"version":    oldVersion + 1,
			"updated_at": gorm.Expr("CURRENT_TIMESTAMP"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	charge.Version = oldVersion + 1
	return nil
}

func (r *chargeRepo) List(ctx context.Context, filter ChargeFilter, offset, limit int) ([]model.Charge, int64, error) {
	var charges []model.Charge
	var total int64

	db := r.db.WithContext(ctx).Model(&model.Charge{})
	if filter.ClassID != "" {
		db = db.Where("class_id = ?", filter.ClassID)
	}
	if filter.StudentID != "" {
		db = db.Where("student_id = ?", filter.StudentID)
	}
	if filter.PeriodStart != nil {
		db = db.Where("period_start = ?", filter.PeriodStart.Format(time.DateOnly))
	}
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	q := db.Preload("Student").Order("period_start DESC, student_id ASC").Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&charges).Error
	return charges, total, err
}
