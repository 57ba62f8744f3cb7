package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/vendor_portal_server/config"
	"github.com/qs3c/vendor_portal_server/internal/model"
	"github.com/qs3c/vendor_portal_server/internal/model/dto"
	"github.com/qs3c/vendor_portal_server/internal/pkg/notify"
	"github.com/qs3c/vendor_portal_server/internal/repository"
)

// 唯一键冲突时重新生成 vendor ID 的次数
const maxDecisionAttempts = 3

// ReviewService 终审
type ReviewService struct {
	repos         *repository.Repositories
	apps          *ApplicationService
	subscriptions *SubscriptionService
	dispatcher    notify.Dispatcher
	cfg           *config.Config
	rt            Runtime
}

func NewReviewService(repos *repository.Repositories, apps *ApplicationService, subscriptions *SubscriptionService, dispatcher notify.Dispatcher, cfg *config.Config, rt Runtime) *ReviewService {
	return &ReviewService{
		repos:         repos,
		apps:          apps,
		subscriptions: subscriptions,
		dispatcher:    dispatcher,
		cfg:           cfg,
		rt:            rt,
	}
}

type decision struct {
	app *model.Application
	sub *model.Subscription
}

// Decide 对 under_review 的申请做出 approved / rejected 决定。
// 通过时在同一事务内分配 vendor ID、开通会员并生成提醒节点；
// 事务提交后发送一次结果通知，通知失败不回滚
func (s *ReviewService) Decide(ctx context.Context, reviewerID int64, ref string, outcome model.ApplicationStatus, reason string) (*dto.DecisionResponse, error) {
	reason = strings.TrimSpace(reason)

	var d *decision
	var err error
	for attempt := 1; attempt <= maxDecisionAttempts; attempt++ {
		d, err = s.decideOnce(ctx, reviewerID, ref, outcome, reason)
		if err == nil || !errors.Is(err, gorm.ErrDuplicatedKey) {
			break
		}
		s.rt.log().Warn("vendor id collision, retrying", "reference", ref, "attempt", attempt)
	}
	if err != nil {
		return nil, err
	}

	s.rt.Metrics.IncDecision(string(outcome))
	s.rt.Metrics.IncTransition(string(model.ApplicationUnderReview), string(outcome))
	s.rt.log().Info("application decided",
		"reference", d.app.Reference,
		"outcome", outcome,
		"reviewer_id", reviewerID)

	s.notifyDecision(ctx, d)
	if s.apps != nil {
		s.apps.publish(ctx, d.app)
	}
	return toDecisionResponse(d), nil
}

func (s *ReviewService) decideOnce(ctx context.Context, reviewerID int64, ref string, outcome model.ApplicationStatus, reason string) (*decision, error) {
	d := &decision{}
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		app, err := tx.Applications.GetByReference(ctx, ref)
		if err != nil {
			return translate(err, "application")
		}
		if app.Status != model.ApplicationUnderReview {
			return invalidState("application %s is %s, not under review", app.Reference, app.Status)
		}
		if err := validateDecision(outcome, reason); err != nil {
			return err
		}
		ok, err := fullyVerified(ctx, tx, app.ID)
		if err != nil {
			return err
		}
		if !ok {
			return invalidState("all sections of application %s must be verified before a decision", app.Reference)
		}

		now := s.rt.now()
		fields := map[string]interface{}{
			"reviewed_at": now,
			"reviewed_by": reviewerID,
		}

		action := model.AuditApplicationRejected
		if outcome == model.ApplicationApproved {
			action = model.AuditApplicationApproved
			vendorID, err := s.allocateVendorID(ctx, tx, now)
			if err != nil {
				return err
			}
			fields["vendor_id"] = vendorID
		} else {
			fields["rejection_reason"] = reason
		}

		if err := s.apps.transitionTx(ctx, tx, app, reviewerID, outcome, fields); err != nil {
			return err
		}

		if outcome == model.ApplicationApproved {
			paymentID, err := registrationPaymentID(ctx, tx, app.ID)
			if err != nil {
				return err
			}
			d.sub, err = s.subscriptions.activateTx(ctx, tx, app, *app.VendorID, paymentID)
			if err != nil {
				return err
			}
		}
		d.app = app

		after := map[string]interface{}{"status": app.Status}
		if app.VendorID != nil {
			after["vendor_id"] = *app.VendorID
		}
		if app.RejectionReason != nil {
			after["reason"] = *app.RejectionReason
		}
		if d.sub != nil {
			after["expires_at"] = d.sub.ExpiresAt
		}
		return appendAudit(ctx, tx, &model.AuditLog{
			ApplicationID: app.ID,
			ActorID:       reviewerID,
			Action:        action,
			CreatedAt:     now,
		}, map[string]string{"status": string(model.ApplicationUnderReview)}, after)
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func validateDecision(outcome model.ApplicationStatus, reason string) error {
	switch outcome {
	case model.ApplicationApproved:
		return nil
	case model.ApplicationRejected:
		if reason == "" {
			return fieldError("reason", "is required when rejecting an application")
		}
		return nil
	default:
		return fieldError("outcome", "must be approved or rejected")
	}
}

// allocateVendorID 预先排除已占用的编号，并发冲突由唯一索引与外层重试处理
func (s *ReviewService) allocateVendorID(ctx context.Context, r *repository.Repositories, now time.Time) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		vendorID := newVendorID(now)
		exists, err := r.Applications.ExistsByVendorID(ctx, vendorID)
		if err != nil {
			return "", err
		}
		if !exists {
			return vendorID, nil
		}
	}
	return "", conflict("could not allocate vendor id")
}

// registrationPaymentID 最近一笔注册付款，没有时为空
func registrationPaymentID(ctx context.Context, r *repository.Repositories, appID int64) (string, error) {
	payments, err := r.Payments.ListByApplication(ctx, appID)
	if err != nil {
		return "", err
	}
	for i := len(payments) - 1; i >= 0; i-- {
		if payments[i].Purpose == model.PaymentRegistration {
			return payments[i].PaymentID, nil
		}
	}
	return "", nil
}

func (s *ReviewService) notifyDecision(ctx context.Context, d *decision) {
	if s.dispatcher == nil {
		return
	}
	app := d.app
	recipient, err := recipientFor(ctx, s.repos, app)
	if err != nil {
		s.rt.log().Warn("resolve recipient failed", "reference", app.Reference, "error", err)
		return
	}

	n := &notify.Notification{
		Kind:      notify.KindRejected,
		UserID:    app.UserID,
		Recipient: recipient,
		Name:      app.FullName,
		Reference: app.Reference,
		DedupKey:  "decision:" + app.Reference,
	}
	if app.Status == model.ApplicationApproved {
		n.Kind = notify.KindApproved
		n.VendorID = *app.VendorID
		if d.sub != nil {
			expiresAt := d.sub.ExpiresAt
			n.ExpiresAt = &expiresAt
		}
	} else if app.RejectionReason != nil {
		n.Reason = *app.RejectionReason
	}

	if err := s.dispatcher.Dispatch(ctx, n); err != nil {
		s.rt.log().Error("decision notification failed",
			"reference", app.Reference,
			"kind", n.Kind,
			"error", downstream("notification dispatcher", err))
	}
}

func toDecisionResponse(d *decision) *dto.DecisionResponse {
	resp := &dto.DecisionResponse{
		Reference: d.app.Reference,
		Status:    string(d.app.Status),
	}
	if d.app.VendorID != nil {
		resp.VendorID = *d.app.VendorID
	}
	if d.app.RejectionReason != nil {
		resp.RejectionReason = *d.app.RejectionReason
	}
	if d.app.ReviewedAt != nil {
		resp.ReviewedAt = formatTime(*d.app.ReviewedAt)
	}
	if d.sub != nil {
		resp.ExpiresAt = formatTime(d.sub.ExpiresAt)
	}
	return resp
}
