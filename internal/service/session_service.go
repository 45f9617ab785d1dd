package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/nclamvn/english-center-cms/internal/dto"
	"github.com/nclamvn/english-center-cms/internal/model"
	"github.com/nclamvn/english-center-cms/internal/repository"
)

// 锁定动作
const (
	LockActionLock   = "lock"
	LockActionUnlock = "unlock"
)

// sessionTransitions 课次状态机（SCHEDULED → IN_PROGRESS 也由考勤保存触发）
var sessionTransitions = map[string][]string{
	model.SessionStatusScheduled:  {model.SessionStatusInProgress, model.SessionStatusCancelled},
	model.SessionStatusInProgress: {model.SessionStatusCompleted, model.SessionStatusCancelled},
}

// SessionService 课次业务接口：创建、状态流转、锁定 / 解锁
type SessionService interface {
	Create(ctx context.Context, req *dto.CreateSessionRequest, callerID string) (*dto.SessionDetailResponse, error)
	UpdateStatus(ctx context.Context, id string, req *dto.UpdateSessionStatusRequest, callerID string) (*dto.SessionDetailResponse, error)
	GetLockStatus(ctx context.Context, id string) (*dto.LockStatusResponse, error)
	// SetLock 锁定或解锁；解锁必须填写原因且角色在允许列表内
	SetLock(ctx context.Context, id string, req *dto.SetLockRequest, actorID, role string) (*dto.LockStatusResponse, error)
}

type sessionService struct {
	repo        *repository.Repository
	policy      *LockPolicy
	unlockRoles []string
	logger      *zap.Logger
	now         func() time.Time
}

// NewSessionService 创建 SessionService 实例
func NewSessionService(repo *repository.Repository, policy *LockPolicy, unlockRoles []string, logger *zap.Logger) SessionService {
	return &sessionService{
		repo:        repo,
		policy:      policy,
		unlockRoles: unlockRoles,
		logger:      logger,
		now:         time.Now,
	}
}

// ────────────────────── Create ──────────────────────

func (s *sessionService) Create(ctx context.Context, req *dto.CreateSessionRequest, callerID string) (*dto.SessionDetailResponse, error) {
	verr := &ValidationError{}
	date, err := time.Parse(time.DateOnly, req.Date)
	if err != nil {
		verr.add("date", "日期格式应为 YYYY-MM-DD")
	}
	sh, sm, err := parseClock(req.StartTime)
	if err != nil {
		verr.add("start_time", "时间格式应为 HH:MM")
	}
	eh, em, err := parseClock(req.EndTime)
	if err != nil {
		verr.add("end_time", "时间格式应为 HH:MM")
	}
	if verr.empty() && eh*60+em <= sh*60+sm {
		verr.add("end_time", "下课时间必须晚于上课时间")
	}
	if !verr.empty() {
		return nil, verr
	}

	class, err := s.repo.Class.GetByID(ctx, req.ClassID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClassNotFound
		}
		s.logger.Error("查询班级失败", zap.String("class_id", req.ClassID), zap.Error(err))
		return nil, err
	}

	session := &model.Session{
		ClassID:   class.ClassID,
		Date:      date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Mode:      lo.Ternary(req.Mode == "", model.SessionModeOffline, req.Mode),
		Room:      req.Room,
		Status:    model.SessionStatusScheduled,
	}
	session.CreatedBy = &callerID
	session.UpdatedBy = &callerID

	if err := s.repo.Session.Create(ctx, session); err != nil {
		s.logger.Error("创建课次失败", zap.Error(err))
		return nil, err
	}
	session.Class = class

	detail := buildSessionDetail(session, s.policy, s.now())
	return &detail, nil
}

// ────────────────────── UpdateStatus ──────────────────────

func (s *sessionService) UpdateStatus(ctx context.Context, id string, req *dto.UpdateSessionStatusRequest, callerID string) (*dto.SessionDetailResponse, error) {
	session, err := s.getSession(ctx, id)
	if err != nil {
		return nil, err
	}

	if !lo.Contains(sessionTransitions[session.Status], req.Status) {
		return nil, ErrInvalidSessionTransition
	}

	ok, err := s.repo.Session.TransitionStatus(ctx, id, session.Status, req.Status, &callerID)
	if err != nil {
		s.logger.Error("更新课次状态失败", zap.String("session_id", id), zap.Error(err))
		return nil, err
	}
	if !ok {
		// 期间状态已被其他请求修改
		return nil, ErrInvalidSessionTransition
	}

	s.logger.Info("课次状态变更",
		zap.String("session_id", id),
		zap.String("from", session.Status),
		zap.String("to", req.Status),
		zap.String("operator", callerID),
	)

	session.Status = req.Status
	detail := buildSessionDetail(session, s.policy, s.now())
	return &detail, nil
}

// ────────────────────── GetLockStatus ──────────────────────

func (s *sessionService) GetLockStatus(ctx context.Context, id string) (*dto.LockStatusResponse, error) {
	session, err := s.getSession(ctx, id)
	if err != nil {
		return nil, err
	}
	return buildLockStatus(session, s.policy, s.now()), nil
}

// ────────────────────── SetLock ──────────────────────

func (s *sessionService) SetLock(ctx context.Context, id string, req *dto.SetLockRequest, actorID, role string) (*dto.LockStatusResponse, error) {
	action := strings.ToLower(strings.TrimSpace(req.Action))
	reason := strings.TrimSpace(req.Reason)

	switch action {
	case LockActionLock:
	case LockActionUnlock:
		if reason == "" {
			return nil, newValidationError("reason", "解锁必须填写原因")
		}
		if !lo.Contains(s.unlockRoles, role) {
			return nil, ErrUnlockForbidden
		}
	default:
		return nil, newValidationError("action", "action 只能是 lock 或 unlock")
	}

	now := s.now()
	var result *model.Session

	err := s.repo.Tx.WithinTransaction(ctx, func(tx *repository.Repository) error {
		session, err := tx.Session.GetByIDForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return err
		}

		session.UpdatedBy = &actorID
		if action == LockActionLock {
			session.LockedAt = &now
			session.LockedBy = &actorID
			session.LockReason = lo.ToPtr(lo.Ternary(reason == "", ManualLockReason, reason))
			if err := tx.Session.UpdateLock(ctx, session); err != nil {
				return err
			}
			result = session
			return nil
		}

		session.LockedAt = nil
		session.LockedBy = nil
		session.LockReason = nil
		if err := tx.Session.UpdateLock(ctx, session); err != nil {
			return err
		}
		if err := recordAudit(ctx, tx, auditEntry{
			ActorID:  &actorID,
			Entity:   AuditEntitySession,
			EntityID: session.SessionID,
			Action:   AuditActionUnlock,
			Payload: map[string]interface{}{
				"reason":     reason,
				"unlockedAt": now.UTC().Format(time.RFC3339),
			},
		}); err != nil {
			return err
		}
		result = session
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			s.logger.Error("更新课次锁定状态失败",
				zap.String("session_id", id), zap.String("action", action), zap.Error(err))
		}
		return nil, err
	}

	s.logger.Info("课次锁定状态变更",
		zap.String("session_id", id),
		zap.String("action", action),
		zap.String("operator", actorID),
	)

	return buildLockStatus(result, s.policy, now), nil
}

// ── 辅助方法 ──

func (s *sessionService) getSession(ctx context.Context, id string) (*model.Session, error) {
	session, err := s.repo.Session.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		s.logger.Error("查询课次失败", zap.String("session_id", id), zap.Error(err))
		return nil, err
	}
	return session, nil
}

func buildLockStatus(session *model.Session, policy *LockPolicy, now time.Time) *dto.LockStatusResponse {
	return &dto.LockStatusResponse{
		ID:             session.SessionID,
		IsLocked:       policy.IsLocked(session, now),
		LockedAt:       formatTimePtr(session.LockedAt),
		LockedBy:       session.LockedBy,
		LockReason:     session.LockReason,
		ShouldAutoLock: policy.ShouldAutoLock(session, now),
	}
}

func buildSessionDetail(session *model.Session, policy *LockPolicy, now time.Time) dto.SessionDetailResponse {
	detail := dto.SessionDetailResponse{
		ID:             session.SessionID,
		ClassID:        session.ClassID,
		Date:           session.Date.Format(time.DateOnly),
		StartTime:      session.StartTime,
		EndTime:        session.EndTime,
		Mode:           session.Mode,
		Room:           session.Room,
		Status:         session.Status,
		IsLocked:       policy.IsLocked(session, now),
		LockedAt:       formatTimePtr(session.LockedAt),
		LockedBy:       session.LockedBy,
		LockReason:     session.LockReason,
		ShouldAutoLock: policy.ShouldAutoLock(session, now),
	}
	if deadline, err := policy.LockDeadline(session); err == nil {
		detail.LockDeadline = deadline.Format(time.RFC3339)
	}
	if session.Class != nil {
		detail.Class = &dto.ClassBrief{ID: session.Class.ClassID, Name: session.Class.Name}
	}
	return detail
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}
