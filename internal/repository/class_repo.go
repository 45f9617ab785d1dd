package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/nclamvn/english-center-cms/internal/model"
)

// ClassRepository 班级数据访问接口（只读）
type ClassRepository interface {
	GetByID(ctx context.Context, id string) (*model.Class, error)
}

// EnrollmentRepository 报名数据访问接口（只读）
type EnrollmentRepository interface {
	ListActiveByClass(ctx context.Context, classID string) ([]model.Enrollment, error)
}

// ── Class Repository 实现 ──

type classRepo struct {
	db *gorm.DB
}

func NewClassRepo(db *gorm.DB) ClassRepository {
	return &classRepo{db: db}
}

func (r *classRepo) GetByID(ctx context.Context, id string) (*model.Class, error) {
	var class model.Class
	err := r.db.WithContext(ctx).
		Where("class_id = ?", id).
		First(&class).Error
	if err != nil {
		return nil, err
	}
	return &class, nil
}

// ── Enrollment Repository 实现 ──

type enrollmentRepo struct {
	db *gorm.DB
}

func NewEnrollmentRepo(db *gorm.DB) EnrollmentRepository {
	return &enrollmentRepo{db: db}
}

func (r *enrollmentRepo) ListActiveByClass(ctx context.Context, classID string) ([]model.Enrollment, error) {
	var enrollments []model.Enrollment
	err := r.db.WithContext(ctx).
		Preload("Student").
		Joins("JOIN students ON students.student_id = enrollments.student_id").
		Where("enrollments.class_id = ? AND enrollments.status = ?", classID, model.EnrollmentStatusActive).
		Order("students.full_name ASC").
		Find(&enrollments).Error
	return enrollments, err
}
