package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/nclamvn/english-center-cms/internal/dto"
	"github.com/nclamvn/english-center-cms/internal/model"
	"github.com/nclamvn/english-center-cms/internal/repository"
)

// changedBySystem 变更人为空时的展示名
const changedBySystem = "System"

// AttendanceService 考勤业务接口
type AttendanceService interface {
	// GetSessionAttendance 课次信息 + 每个在读学员的考勤（未点名为 nil）+ 出勤统计
	GetSessionAttendance(ctx context.Context, sessionID string) (*dto.SessionAttendanceResponse, error)
	// SaveAttendance 批量保存考勤
	SaveAttendance(ctx context.Context, sessionID, actorID string, edits []dto.AttendanceEdit) (*dto.SaveAttendanceResponse, error)
	// ListChangeLogs 课次全部学员的考勤变更日志，按时间倒序
	ListChangeLogs(ctx context.Context, sessionID string) ([]dto.AttendanceLogResponse, error)
}

type attendanceService struct {
	repo   *repository.Repository
	policy *LockPolicy
	logger *zap.Logger
	now    func() time.Time
}

// NewAttendanceService 创建 AttendanceService 实例
func NewAttendanceService(repo *repository.Repository, policy *LockPolicy, logger *zap.Logger) AttendanceService {
	return &attendanceService{repo: repo, policy: policy, logger: logger, now: time.Now}
}

// ═══════════════════════════════════════════════════════════
// GetSessionAttendance
// ═══════════════════════════════════════════════════════════

func (s *attendanceService) GetSessionAttendance(ctx context.Context, sessionID string) (*dto.SessionAttendanceResponse, error) {
	session, err := s.repo.Session.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		s.logger.Error("查询课次失败", zap.String("session_id", sessionID), zap.Error(err))
		return nil, err
	}

	enrollments, err := s.repo.Enrollment.ListActiveByClass(ctx, session.ClassID)
	if err != nil {
		s.logger.Error("查询在读学员失败", zap.String("class_id", session.ClassID), zap.Error(err))
		return nil, err
	}

	records, err := s.repo.Attendance.ListBySession(ctx, sessionID)
	if err != nil {
		s.logger.Error("查询考勤记录失败", zap.String("session_id", sessionID), zap.Error(err))
		return nil, err
	}
	byStudent := lo.KeyBy(records, func(r model.AttendanceRecord) string { return r.StudentID })

	students := make([]dto.StudentAttendanceResponse, 0, len(enrollments))
	summary := dto.AttendanceSummary{
		TotalStudents: len(enrollments),
		ByStatus:      make(map[string]int, len(model.AttendanceStatuses)),
	}
	for _, st := range model.AttendanceStatuses {
		summary.ByStatus[string(st)] = 0
	}

	for _, e := range enrollments {
		item := dto.StudentAttendanceResponse{Student: dto.StudentBrief{ID: e.StudentID}}
		if e.Student != nil {
			item.Student.FullName = e.Student.FullName
			item.Student.Status = e.Student.Status
		}
		if rec, ok := byStudent[e.StudentID]; ok {
			item.Attendance = toAttendanceRecordResponse(&rec)
			summary.MarkedCount++
			summary.ByStatus[string(rec.Status)]++
			if rec.Status.CountsAsPresent() {
				summary.PresentCount++
			}
		}
		students = append(students, item)
	}
	if summary.TotalStudents > 0 {
		rate := float64(summary.PresentCount) / float64(summary.TotalStudents) * 100
		summary.AttendanceRate = math.Round(rate*10) / 10
	}

	return &dto.SessionAttendanceResponse{
		Session:  buildSessionDetail(session, s.policy, s.now()),
		Students: students,
		Summary:  summary,
	}, nil
}

// ═══════════════════════════════════════════════════════════
// SaveAttendance
// ═══════════════════════════════════════════════════════════
//
// 流程（整体在一个事务内，课次行 FOR UPDATE）：
//  1. 已锁定 → LockedError，不写入
//  2. 满足自动锁定条件 → 落库锁定并提交，返回 LockedError{AutoLocked}
//  3. 校验全部编辑，任一不合法 → ValidationError，不写入
//  4. 逐条保存，每条一个 SAVEPOINT；单条失败只回滚该条并计入 failed
//  5. 全部成功且课次为 SCHEDULED → IN_PROGRESS

func (s *attendanceService) SaveAttendance(ctx context.Context, sessionID, actorID string, edits []dto.AttendanceEdit) (*dto.SaveAttendanceResponse, error) {
	now := s.now()
	result := &dto.SaveAttendanceResponse{Failed: []dto.FailedEdit{}}
	var autoLocked *LockedError

	err := s.repo.Tx.WithinTransaction(ctx, func(tx *repository.Repository) error {
		session, err := tx.Session.GetByIDForUpdate(ctx, sessionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return err
		}

		if session.IsExplicitlyLocked() {
			return &LockedError{LockedAt: session.LockedAt, LockReason: session.LockReason}
		}

		if s.policy.ShouldAutoLock(session, now) {
			reason := s.policy.AutoLockReason()
			session.LockedAt = &now
			session.LockedBy = nil
			session.LockReason = &reason
			if err := tx.Session.UpdateLock(ctx, session); err != nil {
				return err
			}
			// 锁定需要提交，错误在事务外返回
			autoLocked = &LockedError{LockedAt: &now, LockReason: &reason, AutoLocked: true}
			return nil
		}

		if verr := validateEdits(edits); verr != nil {
			return verr
		}

		for i := range edits {
			edit := &edits[i]
			err := tx.Tx.WithinTransaction(ctx, func(etx *repository.Repository) error {
				return s.applyEdit(ctx, etx, sessionID, actorID, edit, now)
			})
			if err != nil {
				s.logger.Warn("保存考勤失败",
					zap.String("session_id", sessionID),
					zap.String("student_id", edit.StudentID),
					zap.Error(err),
				)
				result.Failed = append(result.Failed, dto.FailedEdit{StudentID: edit.StudentID, Reason: "保存失败"})
				continue
			}
			result.Count++
		}

		if len(result.Failed) == 0 && session.Status == model.SessionStatusScheduled {
			if _, err := tx.Session.TransitionStatus(ctx, sessionID,
				model.SessionStatusScheduled, model.SessionStatusInProgress, &actorID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var lockedErr *LockedError
		var validationErr *ValidationError
		if !errors.Is(err, ErrSessionNotFound) && !errors.As(err, &lockedErr) && !errors.As(err, &validationErr) {
			s.logger.Error("保存考勤事务失败", zap.String("session_id", sessionID), zap.Error(err))
		}
		return nil, err
	}

	if autoLocked != nil {
		s.logger.Info("课次已自动锁定", zap.String("session_id", sessionID), zap.Time("locked_at", now))
		return nil, autoLocked
	}

	s.logger.Info("考勤已保存",
		zap.String("session_id", sessionID),
		zap.Int("count", result.Count),
		zap.Int("failed", len(result.Failed)),
		zap.String("operator", actorID),
	)
	return result, nil
}

// applyEdit 保存单条考勤并写变更日志与审计日志
func (s *attendanceService) applyEdit(ctx context.Context, tx *repository.Repository, sessionID, actorID string, edit *dto.AttendanceEdit, now time.Time) error {
	existing, err := tx.Attendance.GetBySessionAndStudent(ctx, sessionID, edit.StudentID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		existing = nil
	}
	isCreate := existing == nil

	status := model.AttendanceStatus(edit.Status)
	record := &model.AttendanceRecord{
		SessionID:  sessionID,
		StudentID:  edit.StudentID,
		Status:     status,
		Note:       edit.Note,
		Attachment: edit.Attachment,
		MarkedBy:   actorID,
		MarkedAt:   now,
	}
	if status == model.AttendanceLate {
		record.LateMinutes = edit.LateMinutes
	}
	if !isCreate {
		record.AttendanceID = existing.AttendanceID
		record.CreatedAt = existing.CreatedAt
	}

	if err := tx.Attendance.Upsert(ctx, record); err != nil {
		return err
	}

	action := changeAction(isCreate)
	if isCreate || existing.Status != status || lo.FromPtr(existing.Note) != lo.FromPtr(edit.Note) {
		entry := &model.AttendanceChangeLog{
			AttendanceID: record.AttendanceID,
			Action:       action,
			NewStatus:    status,
			NewNote:      edit.Note,
			ChangedBy:    &actorID,
			ChangedAt:    now,
		}
		if !isCreate {
			entry.PreviousStatus = &existing.Status
			entry.PreviousNote = existing.Note
		}
		if err := tx.AttendanceLog.Create(ctx, entry); err != nil {
			return err
		}
	}

	var before interface{}
	if !isCreate {
		before = existing
	}
	return recordAudit(ctx, tx, auditEntry{
		ActorID:  &actorID,
		Entity:   AuditEntityAttendance,
		EntityID: record.AttendanceID,
		Action:   action,
		Payload:  auditDiff(before, record),
	})
}

func changeAction(isCreate bool) string {
	if isCreate {
		return model.ChangeActionCreate
	}
	return model.ChangeActionUpdate
}

// validateEdits 结构校验；全部合法返回 nil
func validateEdits(edits []dto.AttendanceEdit) *ValidationError {
	verr := &ValidationError{}
	for i, e := range edits {
		prefix := fmt.Sprintf("attendances[%d]", i)
		if _, err := uuid.Parse(e.StudentID); err != nil {
			verr.add(prefix+".student_id", "学员ID格式无效")
		}
		if e.Status == "" {
			verr.add(prefix+".status", "考勤状态不能为空")
		} else if !model.AttendanceStatus(e.Status).Valid() {
			verr.add(prefix+".status", "未知的考勤状态")
		}
		if e.LateMinutes != nil && *e.LateMinutes < 0 {
			verr.add(prefix+".late_minutes", "迟到分钟数不能为负")
		}
	}
	if verr.empty() {
		return nil
	}
	return verr
}

// ═══════════════════════════════════════════════════════════
// ListChangeLogs
// ═══════════════════════════════════════════════════════════

func (s *attendanceService) ListChangeLogs(ctx context.Context, sessionID string) ([]dto.AttendanceLogResponse, error) {
	if _, err := s.repo.Session.GetByID(ctx, sessionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		s.logger.Error("查询课次失败", zap.String("session_id", sessionID), zap.Error(err))
		return nil, err
	}

	logs, err := s.repo.AttendanceLog.ListBySession(ctx, sessionID)
	if err != nil {
		s.logger.Error("查询考勤变更日志失败", zap.String("session_id", sessionID), zap.Error(err))
		return nil, err
	}

	result := make([]dto.AttendanceLogResponse, 0, len(logs))
	for i := range logs {
		l := &logs[i]
		item := dto.AttendanceLogResponse{
			ID:           l.LogID,
			Action:       l.Action,
			NewStatus:    string(l.NewStatus),
			PreviousNote: l.PreviousNote,
			NewNote:      l.NewNote,
			ChangedBy:    lo.Ternary(l.ChangedBy != nil, lo.FromPtr(l.ChangedBy), changedBySystem),
			ChangedAt:    formatTime(l.ChangedAt),
			Reason:       l.Reason,
		}
		if l.PreviousStatus != nil {
			item.PreviousStatus = lo.ToPtr(string(*l.PreviousStatus))
		}
		if l.Attendance != nil {
			item.StudentID = l.Attendance.StudentID
			if l.Attendance.Student != nil {
				item.StudentName = l.Attendance.Student.FullName
			}
		}
		result = append(result, item)
	}
	return result, nil
}

func toAttendanceRecordResponse(r *model.AttendanceRecord) *dto.AttendanceRecordResponse {
	return &dto.AttendanceRecordResponse{
		ID:          r.AttendanceID,
		StudentID:   r.StudentID,
		Status:      string(r.Status),
		LateMinutes: r.LateMinutes,
		Note:        r.Note,
		Attachment:  r.Attachment,
		MarkedBy:    r.MarkedBy,
		MarkedAt:    formatTime(r.MarkedAt),
	}
}
