package service

import (
	"context"
	"errors"

	"github.com/qs3c/vendor_portal_server/config"
	"github.com/qs3c/vendor_portal_server/internal/model"
	"github.com/qs3c/vendor_portal_server/internal/model/dto"
	"github.com/qs3c/vendor_portal_server/internal/pkg/payment"
	"github.com/qs3c/vendor_portal_server/internal/pkg/staging"
)

// RenewalService 续费下单与支付确认
type RenewalService struct {
	subscriptions *SubscriptionService
	gateway       payment.Gateway
	orders        *staging.Store
	cfg           *config.Config
	rt            Runtime
}

func NewRenewalService(subscriptions *SubscriptionService, gateway payment.Gateway, orders *staging.Store, cfg *config.Config, rt Runtime) *RenewalService {
	return &RenewalService{
		subscriptions: subscriptions,
		gateway:       gateway,
		orders:        orders,
		cfg:           cfg,
		rt:            rt,
	}
}

// CreateOrder 为登录账号的会员创建续费订单
func (s *RenewalService) CreateOrder(ctx context.Context, userID int64) (*dto.RenewalOrderResponse, error) {
	sub, err := s.subscriptions.ForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub.Status == model.SubscriptionCancelled {
		return nil, invalidState("membership for vendor %s has been cancelled", sub.VendorID)
	}

	amount, currency, err := membershipFee(s.cfg)
	if err != nil {
		return nil, err
	}
	order, err := s.gateway.CreateOrder(ctx, amount, currency, "renew_"+sub.VendorID)
	if err != nil {
		return nil, downstream("payment gateway", err)
	}
	if _, err := s.orders.Put(ctx, order.ID, &stagedOrder{
		VendorID: sub.VendorID,
		UserID:   userID,
		Amount:   order.Amount,
		Currency: order.Currency,
	}); err != nil {
		return nil, downstream("order staging", err)
	}

	s.rt.log().Info("renewal order created", "vendor_id", sub.VendorID, "order_id", order.ID)
	return &dto.RenewalOrderResponse{
		OrderID:  order.ID,
		Amount:   order.Amount.StringFixed(2),
		Currency: order.Currency,
		KeyID:    s.gateway.KeyID(),
	}, nil
}

// Complete 验证签名后续费，订单只能由下单账号确认
func (s *RenewalService) Complete(ctx context.Context, userID int64, req *dto.PaymentConfirmRequest) (*dto.SubscriptionStatusResponse, error) {
	if err := s.gateway.VerifySignature(req.OrderID, req.PaymentID, req.Signature); err != nil {
		return nil, fieldError("signature", "payment signature verification failed")
	}

	var order stagedOrder
	if err := s.orders.Get(ctx, req.OrderID, &order); err != nil {
		if errors.Is(err, staging.ErrNotFound) {
			return nil, notFound("payment order %s not found or expired", req.OrderID)
		}
		return nil, downstream("order staging", err)
	}
	if order.UserID != userID || order.VendorID == "" {
		return nil, newError(ErrForbidden, "payment order %s belongs to another account", req.OrderID)
	}

	sub, err := s.subscriptions.Renew(ctx, order.VendorID, PaymentReceipt{
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Amount:    order.Amount,
		Currency:  order.Currency,
	})
	if err != nil {
		return nil, err
	}

	if err := s.orders.Delete(ctx, req.OrderID); err != nil {
		s.rt.log().Warn("delete staged order failed", "order_id", req.OrderID, "error", err)
	}
	return s.subscriptions.GetStatus(ctx, sub.VendorID)
}
