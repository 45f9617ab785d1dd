package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nclamvn/english-center-cms/internal/model"
)

// AttendanceRepository 考勤记录数据访问接口
type AttendanceRepository interface {
	GetBySessionAndStudent(ctx context.Context, sessionID, studentID string) (*model.AttendanceRecord, error)
	// Upsert 按 (session_id, student_id) 插入或整行覆盖，回填 AttendanceID
	Upsert(ctx context.Context, record *model.AttendanceRecord) error
	ListBySession(ctx context.Context, sessionID string) ([]model.AttendanceRecord, error)
	ListBySessions(ctx context.Context, sessionIDs []string) ([]model.AttendanceRecord, error)
}

// AttendanceChangeLogRepository 考勤变更日志数据访问接口（只追加）
type AttendanceChangeLogRepository interface {
	Create(ctx context.Context, log *model.AttendanceChangeLog) error
	// ListBySession 返回课次下全部学员的变更日志，按 changed_at 倒序
	ListBySession(ctx context.Context, sessionID string) ([]model.AttendanceChangeLog, error)
}

// ── Attendance Repository 实现 ──

type attendanceRepo struct {
	db *gorm.DB
}

func NewAttendanceRepo(db *gorm.DB) AttendanceRepository {
	return &attendanceRepo{db: db}
}

func (r *attendanceRepo) GetBySessionAndStudent(ctx context.Context, sessionID, studentID string) (*model.AttendanceRecord, error) {
	var record model.AttendanceRecord
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND student_id = ?", sessionID, studentID).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *attendanceRepo) Upsert(ctx context.Context, record *model.AttendanceRecord) error {
	return r.db.WithContext(ctx).
		Clauses(
			clause.OnConflict{
				Columns: []clause.Column{{Name: "session_id"}, {Name: "student_id"}},
				DoUpdates: clause.Assignments(map[string]interface{}{
					"status":       record.Status,
					"late_minutes": record.LateMinutes,
					"note":         record.Note,
					"attachment":   record.Attachment,
					"marked_by":    record.MarkedBy,
					"marked_at":    record.MarkedAt,
					"updated_at":   gorm.Expr("CURRENT_TIMESTAMP"),
				}),
			},
			clause.Returning{Columns: []clause.Column{{Name: "attendance_id"}, {Name: "created_at"}}},
		).
		Create(record).Error
}

func (r *attendanceRepo) ListBySession(ctx context.Context, sessionID string) ([]model.AttendanceRecord, error) {
	var records []model.AttendanceRecord
	err := r.db.WithContext(ctx).
		Preload("Student").
		Where("session_id = ?", sessionID).
		Find(&records).Error
	return records, err
}

func (r *attendanceRepo) ListBySessions(ctx context.Context, sessionIDs []string) ([]model.AttendanceRecord, error) {
	if len(sessionIDs) == 0 {
		return nil, nil
	}
	var records []model.AttendanceRecord
	err := r.db.WithContext(ctx).
		Where("session_id IN ?", sessionIDs).
		Find(&records).Error
	return records, err
}

// ── AttendanceChangeLog Repository 实现 ──

type attendanceChangeLogRepo struct {
	db *gorm.DB
}

func NewAttendanceChangeLogRepo(db *gorm.DB) AttendanceChangeLogRepository {
	return &attendanceChangeLogRepo{db: db}
}

func (r *attendanceChangeLogRepo) Create(ctx context.Context, log *model.AttendanceChangeLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *attendanceChangeLogRepo) ListBySession(ctx context.Context, sessionID string) ([]model.AttendanceChangeLog, error) {
	var logs []model.AttendanceChangeLog
	err := r.db.WithContext(ctx).
		Preload("Attendance").Preload("Attendance.Student").
		Joins("JOIN attendances ON attendances.attendance_id = attendance_logs.attendance_id").
		Where("attendances.session_id = ?", sessionID).
		Order("attendance_logs.changed_at DESC").
		Find(&logs).Error
	return logs, err
}
