package service

import (
	"go.uber.org/zap"

	"github.com/nclamvn/english-center-cms/config"
	"github.com/nclamvn/english-center-cms/internal/repository"
)

// Service 所有 Service 的聚合入口
type Service struct {
	Attendance AttendanceService
	Session    SessionService
	Billing    BillingService
	Export     ExportService
}

// NewService 创建 Service 聚合
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	policy *LockPolicy,
	logger *zap.Logger,
) *Service {
	return &Service{
		Attendance: NewAttendanceService(repo, policy, logger),
		Session:    NewSessionService(repo, policy, cfg.Attendance.UnlockRoles, logger),
		Billing:    NewBillingService(repo, logger),
		Export:     NewExportService(repo, policy, logger),
	}
}
