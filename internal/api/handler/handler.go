package handler

import "github.com/nclamvn/english-center-cms/internal/service"

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Attendance *AttendanceHandler
	Session    *SessionHandler
	Billing    *BillingHandler
	Export     *ExportHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		Attendance: NewAttendanceHandler(svc.Attendance),
		Session:    NewSessionHandler(svc.Session),
		Billing:    NewBillingHandler(svc.Billing),
		Export:     NewExportHandler(svc.Export),
	}
}
