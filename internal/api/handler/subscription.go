package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/vendor_portal_server/internal/model/dto"
	"github.com/qs3c/vendor_portal_server/internal/pkg/response"
	"github.com/qs3c/vendor_portal_server/internal/service"
)

type SubscriptionHandler struct {
	subscriptions *service.SubscriptionService
	renewals      *service.RenewalService
}

func NewSubscriptionHandler(subscriptions *service.SubscriptionService, renewals *service.RenewalService) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptions: subscriptions,
		renewals:      renewals,
	}
}

// Get 当前账号的会员状态
// GET /api/v1/vendor/subscription
func (h *SubscriptionHandler) Get(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}

	sub, err := h.subscriptions.ForUser(c.Request.Context(), userID)
	if err != nil {
		handleError(c, err)
		return
	}

	status, err := h.subscriptions.GetStatus(c.Request.Context(), sub.VendorID)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, status)
}

// GetByVendorID 按 vendor ID 查询，仅限本人或审核人员
// GET /api/v1/subscriptions/:vendor_id
func (h *SubscriptionHandler) GetByVendorID(c *gin.Context) {
	userID, role, ok := currentUser(c)
	if !ok {
		return
	}

	vendorID := c.Param("vendor_id")
	if !role.IsStaff() {
		own, err := h.subscriptions.ForUser(c.Request.Context(), userID)
		if err != nil || own.VendorID != vendorID {
			response.PermissionError(c, "")
			return
		}
	}

	status, err := h.subscriptions.GetStatus(c.Request.Context(), vendorID)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, status)
}

// CreateRenewalOrder 续费下单
// POST /api/v1/vendor/renewal/order
func (h *SubscriptionHandler) CreateRenewalOrder(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}

	order, err := h.renewals.CreateOrder(c.Request.Context(), userID)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, order)
}

// CompleteRenewal 续费支付成功
// POST /api/v1/vendor/renewal/complete
func (h *SubscriptionHandler) CompleteRenewal(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}

	var req dto.PaymentConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	status, err := h.renewals.Complete(c.Request.Context(), userID, &req)
	if err != nil {
		handleError(c, err)
		return
	}

	response.SuccessWithMessage(c, "membership renewed", status)
}

type autoRenewRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// SetAutoRenew 开关自动续费提醒
// PUT /api/v1/vendor/subscription/auto-renew
func (h *SubscriptionHandler) SetAutoRenew(c *gin.Context) {
	userID, _, ok := currentUser(c)
	if !ok {
		return
	}

	var req autoRenewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	sub, err := h.subscriptions.ForUser(c.Request.Context(), userID)
	if err != nil {
		handleError(c, err)
		return
	}
	if _, err := h.subscriptions.SetAutoRenew(c.Request.Context(), sub.VendorID, *req.Enabled); err != nil {
		handleError(c, err)
		return
	}

	status, err := h.subscriptions.GetStatus(c.Request.Context(), sub.VendorID)
	if err != nil {
		handleError(c, err)
		return
	}

	response.Success(c, status)
}
