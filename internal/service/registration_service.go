package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/qs3c/vendor_portal_server/config"
	"github.com/qs3c/vendor_portal_server/internal/model"
	"github.com/qs3c/vendor_portal_server/internal/model/dto"
	"github.com/qs3c/vendor_portal_server/internal/pkg/payment"
	"github.com/qs3c/vendor_portal_server/internal/pkg/staging"
	"github.com/qs3c/vendor_portal_server/internal/repository"
)

// stagedRegistration 付款完成前暂存的注册信息，密码只保存哈希
type stagedRegistration struct {
	Request      dto.SubmitApplicationRequest `json:"request"`
	PasswordHash string                       `json:"password_hash,omitempty"`
	OrderID      string                       `json:"order_id"`
	Amount       decimal.Decimal              `json:"amount"`
	Currency     string                       `json:"currency"`
}

// stagedOrder 已提交申请的补缴订单
type stagedOrder struct {
	Reference string          `json:"reference,omitempty"`
	VendorID  string          `json:"vendor_id,omitempty"`
	UserID    int64           `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
}

// RegistrationService 先付款后建档的注册流程
type RegistrationService struct {
	repos   *repository.Repositories
	apps    *ApplicationService
	gateway payment.Gateway
	staged  *staging.Store
	orders  *staging.Store
	cfg     *config.Config
	rt      Runtime
}

// NewRegistrationService staged 保存注册信息，orders 保存已有申请的补缴订单
func NewRegistrationService(repos *repository.Repositories, apps *ApplicationService, gateway payment.Gateway, staged, orders *staging.Store, cfg *config.Config, rt Runtime) *RegistrationService {
	return &RegistrationService{
		repos:   repos,
		apps:    apps,
		gateway: gateway,
		staged:  staged,
		orders:  orders,
		cfg:     cfg,
		rt:      rt,
	}
}

// membershipFee 会员费，配置错误时返回错误
func membershipFee(cfg *config.Config) (decimal.Decimal, string, error) {
	fee, err := decimal.NewFromString(cfg.Subscription.Fee)
	if err != nil {
		return decimal.Zero, "", err
	}
	return fee, cfg.Subscription.Currency, nil
}

// Start 校验注册信息并创建支付订单，信息暂存到付款完成
func (s *RegistrationService) Start(ctx context.Context, req *dto.SubmitApplicationRequest) (*dto.StartRegistrationResponse, error) {
	if err := ValidateSubmission(req); err != nil {
		return nil, err
	}
	if err := s.apps.CheckIdentityAvailable(ctx, req.Mobile, req.Email); err != nil {
		return nil, err
	}

	amount, currency, err := membershipFee(s.cfg)
	if err != nil {
		return nil, err
	}

	stagingID := staging.NewID()
	order, err := s.gateway.CreateOrder(ctx, amount, currency, "reg_"+stagingID[:8])
	if err != nil {
		return nil, downstream("payment gateway", err)
	}

	entry := &stagedRegistration{
		Request:  *req,
		OrderID:  order.ID,
		Amount:   order.Amount,
		Currency: order.Currency,
	}
	if req.Password != "" {
		if entry.PasswordHash, err = hashPassword(req.Password); err != nil {
			return nil, err
		}
		entry.Request.Password = ""
	}

	expiresAt, err := s.staged.Put(ctx, stagingID, entry)
	if err != nil {
		return nil, downstream("registration staging", err)
	}

	s.rt.log().Info("registration staged", "staging_id", stagingID, "order_id", order.ID)
	return &dto.StartRegistrationResponse{
		StagingID: stagingID,
		OrderID:   order.ID,
		Amount:    order.Amount.StringFixed(2),
		Currency:  order.Currency,
		KeyID:     s.gateway.KeyID(),
		ExpiresAt: formatTime(expiresAt),
	}, nil
}

// Complete 验证付款签名后建档：创建申请、记录付款并进入审核
func (s *RegistrationService) Complete(ctx context.Context, req *dto.CompleteRegistrationRequest) (*dto.SubmitApplicationResponse, error) {
	if err := s.gateway.VerifySignature(req.OrderID, req.PaymentID, req.Signature); err != nil {
		return nil, fieldError("signature", "payment signature verification failed")
	}

	var entry stagedRegistration
	if err := s.staged.Get(ctx, req.StagingID, &entry); err != nil {
		if errors.Is(err, staging.ErrNotFound) {
			return nil, notFound("registration session expired, please register again")
		}
		return nil, downstream("registration staging", err)
	}
	if entry.OrderID != req.OrderID {
		return nil, fieldError("order_id", "does not match the registration order")
	}

	var app *model.Application
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if err := ensurePaymentUnused(ctx, tx, req.PaymentID); err != nil {
			return err
		}

		var err error
		app, err = s.apps.create(ctx, tx, &entry.Request, entry.PasswordHash)
		if err != nil {
			return err
		}
		if err := s.apps.transitionTx(ctx, tx, app, app.UserID, model.ApplicationUnderReview, nil); err != nil {
			return err
		}
		return recordPayment(ctx, tx, app, model.PaymentRegistration, PaymentReceipt{
			OrderID:   req.OrderID,
			PaymentID: req.PaymentID,
			Amount:    entry.Amount,
			Currency:  entry.Currency,
		}, s.rt.now())
	})
	if err != nil {
		return nil, err
	}

	if err := s.staged.Delete(ctx, req.StagingID); err != nil {
		s.rt.log().Warn("delete staged registration failed", "staging_id", req.StagingID, "error", err)
	}
	s.rt.log().Info("registration completed", "reference", app.Reference, "payment_id", req.PaymentID)
	s.apps.publish(ctx, app)

	return &dto.SubmitApplicationResponse{
		Reference: app.Reference,
		Status:    string(app.Status),
	}, nil
}

// CreateOrder 为已提交未付款的申请创建补缴订单，申请进入 payment_pending
func (s *RegistrationService) CreateOrder(ctx context.Context, userID int64, ref string) (*dto.RenewalOrderResponse, error) {
	app, err := s.apps.GetByReference(ctx, ref)
	if err != nil {
		return nil, err
	}
	if app.UserID != userID {
		return nil, newError(ErrForbidden, "application %s belongs to another account", ref)
	}
	if app.Status != model.ApplicationPending && app.Status != model.ApplicationPaymentPending {
		return nil, invalidState("application %s is %s and does not accept payment", ref, app.Status)
	}

	amount, currency, err := membershipFee(s.cfg)
	if err != nil {
		return nil, err
	}
	order, err := s.gateway.CreateOrder(ctx, amount, currency, app.Reference)
	if err != nil {
		return nil, downstream("payment gateway", err)
	}
	if _, err := s.orders.Put(ctx, order.ID, &stagedOrder{
		Reference: app.Reference,
		UserID:    userID,
		Amount:    order.Amount,
		Currency:  order.Currency,
	}); err != nil {
		return nil, downstream("order staging", err)
	}

	if app.Status == model.ApplicationPending {
		if _, err := s.apps.MarkPaymentPending(ctx, userID, ref); err != nil {
			return nil, err
		}
	}

	return &dto.RenewalOrderResponse{
		OrderID:  order.ID,
		Amount:   order.Amount.StringFixed(2),
		Currency: order.Currency,
		KeyID:    s.gateway.KeyID(),
	}, nil
}

// PayRegistration 补缴成功：记录付款并把申请移入审核
func (s *RegistrationService) PayRegistration(ctx context.Context, userID int64, ref string, req *dto.PaymentConfirmRequest) (*model.Application, error) {
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
	if order.Reference != ref || order.UserID != userID {
		return nil, newError(ErrForbidden, "payment order %s does not belong to application %s", req.OrderID, ref)
	}

	var app *model.Application
	var from model.ApplicationStatus
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if err := ensurePaymentUnused(ctx, tx, req.PaymentID); err != nil {
			return err
		}
		var err error
		app, err = tx.Applications.GetByReference(ctx, ref)
		if err != nil {
			return translate(err, "application")
		}
		from = app.Status
		if err := s.apps.transitionTx(ctx, tx, app, userID, model.ApplicationUnderReview, nil); err != nil {
			return err
		}
		return recordPayment(ctx, tx, app, model.PaymentRegistration, PaymentReceipt{
			OrderID:   req.OrderID,
			PaymentID: req.PaymentID,
			Amount:    order.Amount,
			Currency:  order.Currency,
		}, s.rt.now())
	})
	if err != nil {
		return nil, err
	}

	if err := s.orders.Delete(ctx, req.OrderID); err != nil {
		s.rt.log().Warn("delete staged order failed", "order_id", req.OrderID, "error", err)
	}
	s.rt.Metrics.IncTransition(string(from), string(app.Status))
	s.apps.publish(ctx, app)
	return app, nil
}

func ensurePaymentUnused(ctx context.Context, r *repository.Repositories, paymentID string) error {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return fieldError("payment_id", "is required")
	}
	exists, err := r.Payments.ExistsByPaymentID(ctx, paymentID)
	if err != nil {
		return err
	}
	if exists {
		return conflict("payment %s has already been applied", paymentID)
	}
	return nil
}

func recordPayment(ctx context.Context, r *repository.Repositories, app *model.Application, purpose model.PaymentPurpose, receipt PaymentReceipt, now time.Time) error {
	p := &model.Payment{
		ApplicationID: app.ID,
		VendorID:      app.VendorID,
		Purpose:       purpose,
		OrderID:       receipt.OrderID,
		PaymentID:     strings.TrimSpace(receipt.PaymentID),
		Amount:        receipt.Amount,
		Currency:      receipt.Currency,
		PaidAt:        now,
	}
	if err := r.Payments.Create(ctx, p); err != nil {
		return translate(err, "payment "+p.PaymentID)
	}
	return nil
}
