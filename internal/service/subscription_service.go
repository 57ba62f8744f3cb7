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
	"github.com/qs3c/vendor_portal_server/internal/pkg/notify"
	"github.com/qs3c/vendor_portal_server/internal/repository"
)

// PaymentReceipt 已完成的付款
type PaymentReceipt struct {
	OrderID   string
	PaymentID string
	Amount    decimal.Decimal
	Currency  string
}

// SweepResult 周期状态刷新的统计
type SweepResult struct {
	Scanned         int `json:"scanned"`
	Updated         int `json:"updated"`
	ExpiryScheduled int `json:"expiry_scheduled"`
}

// SubscriptionService 会员生命周期
type SubscriptionService struct {
	repos      *repository.Repositories
	reminders  *ReminderService
	dispatcher notify.Dispatcher
	cfg        *config.Config
	rt         Runtime
}

func NewSubscriptionService(repos *repository.Repositories, reminders *ReminderService, dispatcher notify.Dispatcher, cfg *config.Config, rt Runtime) *SubscriptionService {
	return &SubscriptionService{
		repos:      repos,
		reminders:  reminders,
		dispatcher: dispatcher,
		cfg:        cfg,
		rt:         rt,
	}
}

func (s *SubscriptionService) period() time.Duration {
	days := s.cfg.Subscription.PeriodDays
	if days <= 0 {
		days = 365
	}
	return time.Duration(days) * 24 * time.Hour
}

// DeriveSubscriptionStatus 由到期时间推导状态，cancelled 优先
func DeriveSubscriptionStatus(sub *model.Subscription, now time.Time, window time.Duration) model.SubscriptionStatus {
	switch {
	case sub.Status == model.SubscriptionCancelled:
		return model.SubscriptionCancelled
	case sub.ExpiresAt.Before(now):
		return model.SubscriptionExpired
	case !sub.ExpiresAt.After(now.Add(window)):
		return model.SubscriptionExpiringSoon
	default:
		return model.SubscriptionActive
	}
}

// DeriveStatus 按配置的临期窗口推导状态
func (s *SubscriptionService) DeriveStatus(sub *model.Subscription, now time.Time) model.SubscriptionStatus {
	window := time.Duration(s.cfg.Subscription.ExpiringWindowDays) * 24 * time.Hour
	return DeriveSubscriptionStatus(sub, now, window)
}

// Activate 为已通过的申请开通会员
func (s *SubscriptionService) Activate(ctx context.Context, appID int64, vendorID, paymentID string) (*model.Subscription, error) {
	var sub *model.Subscription
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		app, err := tx.Applications.GetByID(ctx, appID)
		if err != nil {
			return translate(err, "application")
		}
		sub, err = s.activateTx(ctx, tx, app, vendorID, paymentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// activateTx 会员只在申请通过时创建一次，到期时间为开通时间加一个周期
func (s *SubscriptionService) activateTx(ctx context.Context, r *repository.Repositories, app *model.Application, vendorID, paymentID string) (*model.Subscription, error) {
	if app.Status != model.ApplicationApproved || app.VendorID == nil || *app.VendorID != vendorID {
		return nil, invalidState("application %s is not approved as %s", app.Reference, vendorID)
	}
	if _, err := r.Subscriptions.GetByApplicationID(ctx, app.ID); err == nil {
		return nil, conflict("membership for %s already exists", vendorID)
	} else if !errors.Is(translate(err, "subscription"), ErrNotFound) {
		return nil, err
	}

	now := s.rt.now()
	sub := &model.Subscription{
		ApplicationID: app.ID,
		UserID:        app.UserID,
		VendorID:      vendorID,
		Status:        model.SubscriptionActive,
		ActivatedAt:   now,
		ExpiresAt:     now.Add(s.period()),
		LastPaymentID: paymentID,
	}
	sub.Status = s.DeriveStatus(sub, now)
	if err := r.Subscriptions.Create(ctx, sub); err != nil {
		return nil, translate(err, "subscription")
	}
	if _, err := s.reminders.scheduleTx(ctx, r, vendorID, sub.ID, sub.ExpiresAt); err != nil {
		return nil, err
	}
	return sub, nil
}

// Renew 续费：从原到期时间顺延一个周期，重置提醒并重新生成节点
func (s *SubscriptionService) Renew(ctx context.Context, vendorID string, receipt PaymentReceipt) (*model.Subscription, error) {
	receipt.PaymentID = strings.TrimSpace(receipt.PaymentID)
	if receipt.PaymentID == "" {
		return nil, fieldError("payment_id", "is required")
	}
	if receipt.Currency == "" {
		receipt.Currency = s.cfg.Subscription.Currency
	}

	var sub *model.Subscription
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		var err error
		sub, err = tx.Subscriptions.GetByVendorIDForUpdate(ctx, vendorID)
		if err != nil {
			if errors.Is(translate(err, "subscription"), ErrNotFound) {
				return notFound("no active membership for vendor %s", vendorID)
			}
			return err
		}
		if sub.Status == model.SubscriptionCancelled {
			return invalidState("membership for vendor %s has been cancelled", vendorID)
		}

		if err := ensurePaymentUnused(ctx, tx, receipt.PaymentID); err != nil {
			return err
		}

		now := s.rt.now()
		renewed := *sub
		renewed.ExpiresAt = sub.ExpiresAt.UTC().Add(s.period())
		renewed.Status = s.DeriveStatus(&renewed, now)
		renewed.LastReminderSentAt = nil
		renewed.LastPaymentID = receipt.PaymentID
		renewed.RenewalCount = sub.RenewalCount + 1

		// 只写续费相关的列；读取之后被取消或被另一笔续费抢先时不命中
		ok, err := tx.Subscriptions.CompareAndSwap(ctx, sub, map[string]interface{}{
			"expires_at":            renewed.ExpiresAt,
			"status":                renewed.Status,
			"last_reminder_sent_at": nil,
			"last_payment_id":       renewed.LastPaymentID,
			"renewal_count":         renewed.RenewalCount,
		})
		if err != nil {
			return err
		}
		if !ok {
			return s.renewConflict(ctx, tx, sub)
		}
		sub = &renewed

		app, err := tx.Applications.GetByID(ctx, sub.ApplicationID)
		if err != nil {
			return translate(err, "application")
		}
		if err := recordPayment(ctx, tx, app, model.PaymentRenewal, receipt, now); err != nil {
			return err
		}

		_, err = s.reminders.scheduleTx(ctx, tx, sub.VendorID, sub.ID, sub.ExpiresAt)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.rt.Metrics.IncRenewal()
	s.rt.log().Info("membership renewed",
		"vendor_id", sub.VendorID,
		"expires_at", sub.ExpiresAt,
		"payment_id", receipt.PaymentID)
	s.notify(ctx, sub, notify.KindRenewed, "renewal:"+receipt.PaymentID)
	return sub, nil
}

// renewConflict 比较交换未命中时区分已取消与并发续费
func (s *SubscriptionService) renewConflict(ctx context.Context, tx *repository.Repositories, sub *model.Subscription) error {
	current, err := tx.Subscriptions.GetByID(ctx, sub.ID)
	if err != nil {
		return translate(err, "subscription")
	}
	if current.Status == model.SubscriptionCancelled {
		return invalidState("membership for vendor %s has been cancelled", sub.VendorID)
	}
	return conflict("membership for vendor %s was modified concurrently", sub.VendorID)
}

// GetStatus 推导当前状态；没有会员记录时返回 no_subscription
func (s *SubscriptionService) GetStatus(ctx context.Context, vendorID string) (*dto.SubscriptionStatusResponse, error) {
	sub, err := s.repos.Subscriptions.GetByVendorID(ctx, vendorID)
	if err != nil {
		if errors.Is(translate(err, "subscription"), ErrNotFound) {
			return &dto.SubscriptionStatusResponse{
				VendorID: vendorID,
				Status:   string(model.SubscriptionNone),
			}, nil
		}
		return nil, err
	}

	now := s.rt.now()
	return &dto.SubscriptionStatusResponse{
		VendorID:        sub.VendorID,
		Status:          string(s.DeriveStatus(sub, now)),
		DaysUntilExpiry: daysUntil(sub.ExpiresAt, now),
		ExpiresAt:       formatTime(sub.ExpiresAt),
		ActivatedAt:     formatTime(sub.ActivatedAt),
		AutoRenew:       sub.AutoRenew,
	}, nil
}

// GetByVendorID 会员记录
func (s *SubscriptionService) GetByVendorID(ctx context.Context, vendorID string) (*model.Subscription, error) {
	sub, err := s.repos.Subscriptions.GetByVendorID(ctx, vendorID)
	if err != nil {
		return nil, translate(err, "subscription")
	}
	return sub, nil
}

// ForUser 账号名下的会员，供应商端接口按登录账号定位
func (s *SubscriptionService) ForUser(ctx context.Context, userID int64) (*model.Subscription, error) {
	sub, err := s.repos.Subscriptions.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(translate(err, "subscription"), ErrNotFound) {
			return nil, notFound("no active membership")
		}
		return nil, err
	}
	return sub, nil
}

// Cancel 取消会员（终态），并取消所有待发送提醒
func (s *SubscriptionService) Cancel(ctx context.Context, vendorID string) (*model.Subscription, error) {
	var sub *model.Subscription
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		var err error
		sub, err = tx.Subscriptions.GetByVendorIDForUpdate(ctx, vendorID)
		if err != nil {
			if errors.Is(translate(err, "subscription"), ErrNotFound) {
				return notFound("no active membership for vendor %s", vendorID)
			}
			return err
		}
		if sub.Status == model.SubscriptionCancelled {
			return nil
		}

		now := s.rt.now()
		ok, err := tx.Subscriptions.UpdateUnlessCancelled(ctx, sub.ID, map[string]interface{}{
			"status":       model.SubscriptionCancelled,
			"cancelled_at": now,
		})
		if err != nil {
			return err
		}
		if ok {
			if _, err := tx.Reminders.CancelPendingByVendor(ctx, vendorID); err != nil {
				return err
			}
		}
		// 重新读取，带上期间可能已提交的续费
		sub, err = tx.Subscriptions.GetByID(ctx, sub.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// SetAutoRenew 自动续费开关
func (s *SubscriptionService) SetAutoRenew(ctx context.Context, vendorID string, enabled bool) (*model.Subscription, error) {
	sub, err := s.GetByVendorID(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	if sub.Status == model.SubscriptionCancelled {
		return nil, invalidState("membership for vendor %s has been cancelled", vendorID)
	}
	if err := s.repos.Subscriptions.UpdateFields(ctx, sub.ID, map[string]interface{}{"auto_renew": enabled}); err != nil {
		return nil, err
	}
	sub.AutoRenew = enabled
	return sub, nil
}

// SweepStatuses 把推导出的状态写回数据库；首次发现过期时安排一次过期通知
func (s *SubscriptionService) SweepStatuses(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	subs, err := s.repos.Subscriptions.ListNotCancelled(ctx)
	if err != nil {
		return result, err
	}

	now := s.rt.now()
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Scanned++

		derived := s.DeriveStatus(sub, now)
		if derived != sub.Status {
			// 列表之后被取消或续费的会员不覆盖，留给下一轮
			ok, err := s.repos.Subscriptions.CompareAndSwap(ctx, sub, map[string]interface{}{"status": derived})
			if err != nil {
				s.rt.log().Error("persist subscription status failed", "vendor_id", sub.VendorID, "error", err)
				continue
			}
			if !ok {
				s.rt.log().Info("subscription changed during sweep, skipped", "vendor_id", sub.VendorID)
				continue
			}
			result.Updated++
		}

		if derived == model.SubscriptionExpired {
			scheduled, err := s.reminders.scheduleExpiryNotice(ctx, sub)
			if err != nil {
				s.rt.log().Error("schedule expiry notice failed", "vendor_id", sub.VendorID, "error", err)
				continue
			}
			if scheduled {
				result.ExpiryScheduled++
			}
		}
	}

	s.rt.log().Info("subscription sweep finished",
		"scanned", result.Scanned,
		"updated", result.Updated,
		"expiry_scheduled", result.ExpiryScheduled)
	return result, nil
}

// notify 会员相关通知，失败只记录日志
func (s *SubscriptionService) notify(ctx context.Context, sub *model.Subscription, kind notify.Kind, dedupKey string) {
	if s.dispatcher == nil {
		return
	}
	app, err := s.repos.Applications.GetByID(ctx, sub.ApplicationID)
	if err != nil {
		s.rt.log().Warn("load application for notification failed", "vendor_id", sub.VendorID, "error", err)
		return
	}
	recipient, err := recipientFor(ctx, s.repos, app)
	if err != nil {
		s.rt.log().Warn("resolve recipient failed", "vendor_id", sub.VendorID, "error", err)
		return
	}

	expiresAt := sub.ExpiresAt
	err = s.dispatcher.Dispatch(ctx, &notify.Notification{
		Kind:      kind,
		UserID:    sub.UserID,
		Recipient: recipient,
		Name:      app.FullName,
		Reference: app.Reference,
		VendorID:  sub.VendorID,
		ExpiresAt: &expiresAt,
		DedupKey:  dedupKey,
	})
	if err != nil {
		s.rt.log().Warn("membership notification failed",
			"vendor_id", sub.VendorID,
			"kind", kind,
			"error", downstream("notification dispatcher", err))
	}
}
