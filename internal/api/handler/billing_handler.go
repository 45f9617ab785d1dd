package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/nclamvn/english-center-cms/internal/dto"
	"github.com/nclamvn/english-center-cms/internal/service"
	pkgerrors "github.com/nclamvn/english-center-cms/pkg/errors"
	"github.com/nclamvn/english-center-cms/pkg/response"
)

// BillingHandler 计费模块 HTTP 处理器
type BillingHandler struct {
	billingSvc service.BillingService
}

// NewBillingHandler 创建 BillingHandler
func NewBillingHandler(billingSvc service.BillingService) *BillingHandler {
	return &BillingHandler{billingSvc: billingSvc}
}

// GenerateCharges 生成班级周期收费单
// POST /api/v1/billing/generate
func (h *BillingHandler) GenerateCharges(c *gin.Context) {
	var req dto.GenerateChargesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBinding(c, 22001, err)
		return
	}

	actorID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.billingSvc.GenerateCharges(c.Request.Context(), &req, actorID)
	if err != nil {
		h.handleBillingError(c, err)
		return
	}

	response.OK(c, result)
}

// ListCharges 收费单列表
// GET /api/v1/charges
func (h *BillingHandler) ListCharges(c *gin.Context) {
	var req dto.ChargeListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badBinding(c, 22001, err)
		return
	}

	list, total, err := h.billingSvc.ListCharges(c.Request.Context(), &req)
	if err != nil {
		h.handleBillingError(c, err)
		return
	}

	response.OKPage(c, list, total, req.GetPage(), req.GetPageSize())
}

// UpdateChargeStatus 更新收费单付款状态
// PUT /api/v1/charges/:id/status
func (h *BillingHandler) UpdateChargeStatus(c *gin.Context) {
	var req dto.UpdateChargeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBinding(c, 22001, err)
		return
	}

	actorID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.billingSvc.UpdateChargeStatus(c.Request.Context(), c.Param("id"), &req, actorID)
	if err != nil {
		h.handleBillingError(c, err)
		return
	}

	response.OK(c, result)
}

// SetBillingPlan 设置班级计费方案
// PUT /api/v1/classes/:id/billing-plan
func (h *BillingHandler) SetBillingPlan(c *gin.Context) {
	var req dto.BillingPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBinding(c, 22001, err)
		return
	}

	actorID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.billingSvc.SetBillingPlan(c.Request.Context(), c.Param("id"), &req, actorID)
	if err != nil {
		h.handleBillingError(c, err)
		return
	}

	response.OK(c, result)
}

// handleBillingError 统一处理计费模块业务错误
func (h *BillingHandler) handleBillingError(c *gin.Context, err error) {
	var verr *service.ValidationError

	switch {
	case errors.As(err, &verr):
		writeValidationError(c, 22106, verr)
	case errors.Is(err, service.ErrClassNotFound):
		response.NotFound(c, 22101, "班级不存在")
	case errors.Is(err, service.ErrNoBillingPlan):
		response.BadRequest(c, 22102, "该班级没有生效的计费方案")
	case errors.Is(err, service.ErrAmbiguousBillingPlan):
		response.Conflict(c, 22103, "该班级存在多个生效的计费方案，请先处理")
	case errors.Is(err, service.ErrChargeNotFound):
		response.NotFound(c, 22104, "收费单不存在")
	case errors.Is(err, pkgerrors.ErrOptimisticLock):
		response.Conflict(c, 22105, "收费单已被他人修改，请刷新后重试")
	default:
		response.InternalError(c)
	}
}
