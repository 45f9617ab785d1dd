package dto

import "github.com/nclamvn/english-center-cms/internal/model"

// ── 计费模块请求 ──

// GenerateChargesRequest 生成班级某周期收费单
// POST /api/v1/billing/generate
type GenerateChargesRequest struct {
	ClassID     string `json:"class_id"     binding:"required,uuid"`
	PeriodStart string `json:"period_start" binding:"required,datetime=2006-01-02"`
	PeriodEnd   string `json:"period_end"   binding:"required,datetime=2006-01-02"`
}

// ChargeListRequest 收费单查询
type ChargeListRequest struct {
	PaginationRequest
	ClassID     string `form:"class_id"     binding:"omitempty,uuid"`
	StudentID   string `form:"student_id"   binding:"omitempty,uuid"`
	PeriodStart string `form:"period_start" binding:"omitempty,datetime=2006-01-02"`
	Status      string `form:"status"       binding:"omitempty,oneof=PENDING PAID PARTIAL CANCELLED"`
}

// UpdateChargeStatusRequest 更新收费单付款状态（乐观锁）
type UpdateChargeStatusRequest struct {
	Status  string `json:"status"  binding:"required,oneof=PENDING PAID PARTIAL CANCELLED"`
	Version int    `json:"version" binding:"required,min=1"`
}

// BillingPlanRequest 设置班级计费方案
// PUT /api/v1/classes/:id/billing-plan
type BillingPlanRequest struct {
	PricePerSession int64              `json:"price_per_session" binding:"min=0"`
	Rules           model.BillingRules `json:"rules"`
}

// ── 计费模块响应 ──

// ChargeResponse 收费单
type ChargeResponse struct {
	ID          string                  `json:"id"`
	StudentID   string                  `json:"student_id"`
	StudentName string                  `json:"student_name,omitempty"`
	ClassID     string                  `json:"class_id"`
	PeriodStart string                  `json:"period_start"`
	PeriodEnd   string                  `json:"period_end"`
	Amount      int64                   `json:"amount"`
	Status      string                  `json:"status"`
	Version     int                     `json:"version"`
	Calc        model.ChargeCalculation `json:"calc"`
}

// GenerateChargesResponse 生成结果
type GenerateChargesResponse struct {
	Count   int              `json:"count"`
	Charges []ChargeResponse `json:"charges"`
}

// BillingPlanResponse 计费方案
type BillingPlanResponse struct {
	ID               string             `json:"id"`
	ClassID          string             `json:"class_id"`
	PricePerSession  int64              `json:"price_per_session"`
	Rules            model.BillingRules `json:"rules"`
	EffectiveWeights map[string]int     `json:"effective_weights"`
	Status           string             `json:"status"`
}
