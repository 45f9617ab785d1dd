package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/nclamvn/english-center-cms/internal/dto"
	"github.com/nclamvn/english-center-cms/internal/model"
	"github.com/nclamvn/english-center-cms/internal/repository"
	pkgerrors "github.com/nclamvn/english-center-cms/pkg/errors"
)

// chargeNamespace 收费单确定性 ID 的 UUIDv5 命名空间
var chargeNamespace = uuid.MustParse("4b6f7c2e-9d1a-5e83-b0c4-3f2a8d61e7b9")

// ChargeID 由 (学员, 班级, 周期开始日) 生成收费单 ID，重复生成得到同一 ID
func ChargeID(studentID, classID string, periodStart time.Time) string {
	key := studentID + "|" + classID + "|" + periodStart.Format(time.DateOnly)
	return uuid.NewSHA1(chargeNamespace, []byte(key)).String()
}

// CalculateCharge 计算单个学员在周期内的计费明细
// statuses 为该学员 sessionID → 考勤状态，缺失的课次按无记录计
func CalculateCharge(sessions []model.Session, statuses map[string]model.AttendanceStatus, rules model.BillingRules, pricePerSession int64) (model.ChargeCalculation, int64) {
	calc := model.ChargeCalculation{
		Sessions:        make([]model.ChargeSessionLine, 0, len(sessions)),
		PricePerSession: pricePerSession,
		Rules:           rules,
	}
	for _, sess := range sessions {
		line := model.ChargeSessionLine{
			SessionID: sess.SessionID,
			Date:      sess.Date.Format(time.DateOnly),
			Status:    model.NoRecordStatus,
		}
		if st, ok := statuses[sess.SessionID]; ok {
			line.Status = string(st)
			line.CountAs = rules.Weight(&st)
		} else {
			line.CountAs = rules.Weight(nil)
		}
		calc.ChargeableSessions += line.CountAs
		calc.Sessions = append(calc.Sessions, line)
	}
	return calc, int64(calc.ChargeableSessions) * pricePerSession
}

// BillingService 计费业务接口
type BillingService interface {
	// GenerateCharges 按班级当前计费方案生成或刷新周期内全部在读学员的收费单
	GenerateCharges(ctx context.Context, req *dto.GenerateChargesRequest, actorID string) (*dto.GenerateChargesResponse, error)
	ListCharges(ctx context.Context, req *dto.ChargeListRequest) ([]dto.ChargeResponse, int64, error)
	UpdateChargeStatus(ctx context.Context, id string, req *dto.UpdateChargeStatusRequest, actorID string) (*dto.ChargeResponse, error)
	// SetBillingPlan 停用班级原有方案并启用新方案
	SetBillingPlan(ctx context.Context, classID string, req *dto.BillingPlanRequest, actorID string) (*dto.BillingPlanResponse, error)
}

type billingService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewBillingService 创建 BillingService 实例
func NewBillingService(repo *repository.Repository, logger *zap.Logger) BillingService {
	return &billingService{repo: repo, logger: logger}
}

// ═══════════════════════════════════════════════════════════
// GenerateCharges
// ═══════════════════════════════════════════════════════════
//
// 整个生成过程在一个事务内：任一学员失败则全部回滚。
// 已存在的收费单只更新金额、明细与周期结束日，付款状态保持不变。

func (s *billingService) GenerateCharges(ctx context.Context, req *dto.GenerateChargesRequest, actorID string) (*dto.GenerateChargesResponse, error) {
	periodStart, periodEnd, verr := parsePeriod(req.PeriodStart, req.PeriodEnd)
	if verr != nil {
		return nil, verr
	}

	var charges []model.Charge
	err := s.repo.Tx.WithinTransaction(ctx, func(tx *repository.Repository) error {
		if _, err := tx.Class.GetByID(ctx, req.ClassID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrClassNotFound
			}
			return err
		}

		plans, err := tx.BillingPlan.ListActiveByClass(ctx, req.ClassID)
		if err != nil {
			return err
		}
		switch {
		case len(plans) == 0:
			return ErrNoBillingPlan
		case len(plans) > 1:
			return ErrAmbiguousBillingPlan
		}
		plan := plans[0]
		rules := plan.Rules.Data()

		enrollments, err := tx.Enrollment.ListActiveByClass(ctx, req.ClassID)
		if err != nil {
			return err
		}
		sessions, err := tx.Session.ListByClassAndPeriod(ctx, req.ClassID, periodStart, periodEnd)
		if err != nil {
			return err
		}
		records, err := tx.Attendance.ListBySessions(ctx, lo.Map(sessions, func(sess model.Session, _ int) string {
			return sess.SessionID
		}))
		if err != nil {
			return err
		}
		byStudent := lo.GroupBy(records, func(r model.AttendanceRecord) string { return r.StudentID })

		for _, e := range enrollments {
			statuses := lo.SliceToMap(byStudent[e.StudentID], func(r model.AttendanceRecord) (string, model.AttendanceStatus) {
				return r.SessionID, r.Status
			})
			calc, amount := CalculateCharge(sessions, statuses, rules, plan.PricePerSession)

			charge, err := s.upsertCharge(ctx, tx, e.StudentID, req.ClassID, periodStart, periodEnd, amount, calc, actorID)
			if err != nil {
				return err
			}
			charge.Student = e.Student
			charges = append(charges, *charge)
		}
		return nil
	})
	if err != nil {
		if !isBillingBusinessError(err) {
			s.logger.Error("生成收费单失败", zap.String("class_id", req.ClassID), zap.Error(err))
		}
		return nil, err
	}

	s.logger.Info("收费单已生成",
		zap.String("class_id", req.ClassID),
		zap.String("period_start", req.PeriodStart),
		zap.String("period_end", req.PeriodEnd),
		zap.Int("count", len(charges)),
		zap.String("operator", actorID),
	)

	resp := &dto.GenerateChargesResponse{
		Count:   len(charges),
		Charges: make([]dto.ChargeResponse, 0, len(charges)),
	}
	for i := range charges {
		resp.Charges = append(resp.Charges, toChargeResponse(&charges[i]))
	}
	return resp, nil
}

// upsertCharge 按确定性 ID 新建或刷新收费单，并写审计日志
func (s *billingService) upsertCharge(
	ctx context.Context,
	tx *repository.Repository,
	studentID, classID string,
	periodStart, periodEnd time.Time,
	amount int64,
	calc model.ChargeCalculation,
	actorID string,
) (*model.Charge, error) {
	id := ChargeID(studentID, classID, periodStart)

	existing, err := tx.Charge.GetByID(ctx, id)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		charge := &model.Charge{
			ChargeID:    id,
			StudentID:   studentID,
			ClassID:     classID,
			PeriodStart: periodStart,
			PeriodEnd:   periodEnd,
			Amount:      amount,
			CalcJSON:    datatypes.NewJSONType(calc),
			Status:      model.ChargeStatusPending,
		}
		charge.Version = 1
		charge.CreatedBy = &actorID
		charge.UpdatedBy = &actorID
		created, err := tx.Charge.CreateIfAbsent(ctx, charge)
		if err != nil {
			return nil, err
		}
		if created {
			if err := recordAudit(ctx, tx, auditEntry{
				ActorID:  &actorID,
				Entity:   AuditEntityCharge,
				EntityID: id,
				Action:   AuditActionCreate,
				Payload:  auditDiff(nil, charge),
			}); err != nil {
				return nil, err
			}
			return charge, nil
		}

		// 并发生成已写入同一收费单，转为刷新计算结果
		existing, err = tx.Charge.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
	}

	before := *existing
	before.Student = nil
	existing.Amount = amount
	existing.CalcJSON = datatypes.NewJSONType(calc)
	existing.PeriodEnd = periodEnd
	existing.UpdatedBy = &actorID
	if err := tx.Charge.UpdateCalculation(ctx, existing); err != nil {
		return nil, err
	}
	after := *existing
	after.Student = nil
	if err := recordAudit(ctx, tx, auditEntry{
		ActorID:  &actorID,
		Entity:   AuditEntityCharge,
		EntityID: id,
		Action:   AuditActionUpdate,
		Payload:  auditDiff(before, after),
	}); err != nil {
		return nil, err
	}
	return existing, nil
}

// ═══════════════════════════════════════════════════════════
// ListCharges
// ═══════════════════════════════════════════════════════════

func (s *billingService) ListCharges(ctx context.Context, req *dto.ChargeListRequest) ([]dto.ChargeResponse, int64, error) {
	filter, verr := chargeFilter(req)
	if verr != nil {
		return nil, 0, verr
	}

	charges, total, err := s.repo.Charge.List(ctx, filter, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("查询收费单失败", zap.Error(err))
		return nil, 0, err
	}

	result := make([]dto.ChargeResponse, 0, len(charges))
	for i := range charges {
		result = append(result, toChargeResponse(&charges[i]))
	}
	return result, total, nil
}

// ═══════════════════════════════════════════════════════════
// UpdateChargeStatus
// ═══════════════════════════════════════════════════════════

func (s *billingService) UpdateChargeStatus(ctx context.Context, id string, req *dto.UpdateChargeStatusRequest, actorID string) (*dto.ChargeResponse, error) {
	var charge *model.Charge
	err := s.repo.Tx.WithinTransaction(ctx, func(tx *repository.Repository) error {
		c, err := tx.Charge.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrChargeNotFound
			}
			return err
		}
		if c.Version != req.Version {
			return pkgerrors.ErrOptimisticLock
		}

		before := map[string]interface{}{"status": c.Status, "version": c.Version}
		c.Status = req.Status
		c.UpdatedBy = &actorID
		if err := tx.Charge.UpdateStatus(ctx, c); err != nil {
			return err
		}
		charge = c
		return recordAudit(ctx, tx, auditEntry{
			ActorID:  &actorID,
			Entity:   AuditEntityCharge,
			EntityID: id,
			Action:   AuditActionUpdate,
			Payload:  auditDiff(before, map[string]interface{}{"status": c.Status, "version": c.Version}),
		})
	})
	if err != nil {
		if !errors.Is(err, ErrChargeNotFound) && !errors.Is(err, pkgerrors.ErrOptimisticLock) {
			s.logger.Error("更新收费单状态失败", zap.String("charge_id", id), zap.Error(err))
		}
		return nil, err
	}

	resp := toChargeResponse(charge)
	return &resp, nil
}

// ═══════════════════════════════════════════════════════════
// SetBillingPlan
// ═══════════════════════════════════════════════════════════

func (s *billingService) SetBillingPlan(ctx context.Context, classID string, req *dto.BillingPlanRequest, actorID string) (*dto.BillingPlanResponse, error) {
	verr := &ValidationError{}
	if req.PricePerSession < 0 {
		verr.add("price_per_session", "单价不能为负")
	}
	for _, f := range req.Rules.NegativeFields() {
		verr.add("rules."+f, "计费权重不能为负")
	}
	if !verr.empty() {
		return nil, verr
	}

	plan := &model.BillingPlan{
		ClassID:         classID,
		PricePerSession: req.PricePerSession,
		Rules:           datatypes.NewJSONType(req.Rules),
		Status:          model.EntityStatusActive,
	}
	plan.CreatedBy = &actorID
	plan.UpdatedBy = &actorID

	err := s.repo.Tx.WithinTransaction(ctx, func(tx *repository.Repository) error {
		if _, err := tx.Class.GetByID(ctx, classID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrClassNotFound
			}
			return err
		}
		if err := tx.BillingPlan.DeactivateByClass(ctx, classID, &actorID); err != nil {
			return err
		}
		if err := tx.BillingPlan.Create(ctx, plan); err != nil {
			return err
		}
		return recordAudit(ctx, tx, auditEntry{
			ActorID:  &actorID,
			Entity:   AuditEntityBillingPlan,
			EntityID: plan.BillingPlanID,
			Action:   AuditActionCreate,
			Payload:  auditDiff(nil, plan),
		})
	})
	if err != nil {
		if !errors.Is(err, ErrClassNotFound) {
			s.logger.Error("设置计费方案失败", zap.String("class_id", classID), zap.Error(err))
		}
		return nil, err
	}

	effective := make(map[string]int, len(model.AttendanceStatuses))
	for st, w := range req.Rules.Effective() {
		effective[string(st)] = w
	}
	return &dto.BillingPlanResponse{
		ID:               plan.BillingPlanID,
		ClassID:          plan.ClassID,
		PricePerSession:  plan.PricePerSession,
		Rules:            req.Rules,
		EffectiveWeights: effective,
		Status:           plan.Status,
	}, nil
}

// ── 辅助函数 ──

func parsePeriod(start, end string) (time.Time, time.Time, *ValidationError) {
	verr := &ValidationError{}
	periodStart, err := time.Parse(time.DateOnly, start)
	if err != nil {
		verr.add("period_start", "日期格式应为 YYYY-MM-DD")
	}
	periodEnd, err := time.Parse(time.DateOnly, end)
	if err != nil {
		verr.add("period_end", "日期格式应为 YYYY-MM-DD")
	}
	if verr.empty() && periodEnd.Before(periodStart) {
		verr.add("period_end", "结束日期不能早于开始日期")
	}
	if !verr.empty() {
		return time.Time{}, time.Time{}, verr
	}
	return periodStart, periodEnd, nil
}

func chargeFilter(req *dto.ChargeListRequest) (repository.ChargeFilter, *ValidationError) {
	filter := repository.ChargeFilter{
		ClassID:   req.ClassID,
		StudentID: req.StudentID,
		Status:    req.Status,
	}
	if req.PeriodStart != "" {
		t, err := time.Parse(time.DateOnly, req.PeriodStart)
		if err != nil {
			return filter, newValidationError("period_start", "日期格式应为 YYYY-MM-DD")
		}
		filter.PeriodStart = &t
	}
	return filter, nil
}

func isBillingBusinessError(err error) bool {
	var verr *ValidationError
	return errors.Is(err, ErrClassNotFound) ||
		errors.Is(err, ErrNoBillingPlan) ||
		errors.Is(err, ErrAmbiguousBillingPlan) ||
		errors.As(err, &verr)
}

func toChargeResponse(c *model.Charge) dto.ChargeResponse {
	resp := dto.ChargeResponse{
		ID:          c.ChargeID,
		StudentID:   c.StudentID,
		ClassID:     c.ClassID,
		PeriodStart: c.PeriodStart.Format(time.DateOnly),
		PeriodEnd:   c.PeriodEnd.Format(time.DateOnly),
		Amount:      c.Amount,
		Status:      c.Status,
		Version:     c.Version,
		Calc:        c.CalcJSON.Data(),
	}
	if c.Student != nil {
		resp.StudentName = c.Student.FullName
	}
	return resp
}
