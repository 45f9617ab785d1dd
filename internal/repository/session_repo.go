package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nclamvn/english-center-cms/internal/model"
)

// SessionRepository 课次数据访问接口
type SessionRepository interface {
	Create(ctx context.Context, session *model.Session) error
	GetByID(ctx context.Context, id string) (*model.Session, error)
	// GetByIDForUpdate 加行锁读取，必须在事务内调用
	GetByIDForUpdate(ctx context.Context, id string) (*model.Session, error)
	ListByClassAndPeriod(ctx context.Context, classID string, from, to time.Time) ([]model.Session, error)
	UpdateLock(ctx context.Context, session *model.Session) error
	// TransitionStatus 仅当当前状态为 from 时更新为 to，返回是否发生更新
	TransitionStatus(ctx context.Context, id, from, to string, updatedBy *string) (bool, error)
}

// ── Session Repository 实现 ──

type sessionRepo struct {
	db *gorm.DB
}

func NewSessionRepo(db *gorm.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) Create(ctx context.Context, session *model.Session) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *sessionRepo) GetByID(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := r.db.WithContext(ctx).
		Preload("Class").
		Where("session_id = ?", id).
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("session_id = ?", id).
		First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) ListByClassAndPeriod(ctx context.Context, classID string, from, to time.Time) ([]model.Session, error) {
	var sessions []model.Session
	err := r.db.WithContext(ctx).
		Where("class_id = ? AND date >= ? AND date <= ? AND status <> ?",
			classID, from.Format(time.DateOnly), to.Format(time.DateOnly), model.SessionStatusCancelled).
		Order("date ASC, start_time ASC").
		Find(&sessions).Error
	return sessions, err
}

func (r *sessionRepo) UpdateLock(ctx context.Context, session *model.Session) error {
	// map 形式更新，确保 nil 值写入 NULL
	return r.db.WithContext(ctx).
		Model(&model.Session{}).
		Where("session_id = ?", session.SessionID).
		Updates(map[string]interface{}{
			"locked_at":   session.LockedAt,
			"locked_by":   session.LockedBy,
			"lock_reason": session.LockReason,
			"updated_by":  session.UpdatedBy,
			"updated_at":  gorm.Expr("CURRENT_TIMESTAMP"),
		}).Error
}

func (r *sessionRepo) TransitionStatus(ctx context.Context, id, from, to string, updatedBy *string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Session{}).
		Where("session_id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_by": updatedBy,
			"updated_at": gorm.Expr("CURRENT_TIMESTAMP"),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
