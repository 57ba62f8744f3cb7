package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync/atomic"
	"time"

	"github.com/qs3c/vendor_portal_server/config"
	"github.com/qs3c/vendor_portal_server/internal/model"
	"github.com/qs3c/vendor_portal_server/internal/pkg/notify"
	"github.com/qs3c/vendor_portal_server/internal/repository"
)

// ErrSequenceConsumed 到期序列只能遍历一次，需要重新查询
var ErrSequenceConsumed = errors.New("due checkpoint sequence already consumed")

// BatchResult 一次提醒批处理的统计
type BatchResult struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Retried   int `json:"retried"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

// ReminderService 续费提醒节点
type ReminderService struct {
	repos      *repository.Repositories
	dispatcher notify.Dispatcher
	cfg        *config.Config
	rt         Runtime
}

func NewReminderService(repos *repository.Repositories, dispatcher notify.Dispatcher, cfg *config.Config, rt Runtime) *ReminderService {
	return &ReminderService{repos: repos, dispatcher: dispatcher, cfg: cfg, rt: rt}
}

// ScheduleFor 删除该供应商的旧节点，按到期时间重新生成提前提醒节点
func (s *ReminderService) ScheduleFor(ctx context.Context, vendorID string, subscriptionID int64, expiresAt time.Time) ([]*model.ReminderCheckpoint, error) {
	var checkpoints []*model.ReminderCheckpoint
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		var err error
		checkpoints, err = s.scheduleTx(ctx, tx, vendorID, subscriptionID, expiresAt)
		return err
	})
	return checkpoints, err
}

func (s *ReminderService) scheduleTx(ctx context.Context, r *repository.Repositories, vendorID string, subscriptionID int64, expiresAt time.Time) ([]*model.ReminderCheckpoint, error) {
	if err := r.Reminders.DeleteByVendor(ctx, vendorID); err != nil {
		return nil, err
	}

	expiresAt = expiresAt.UTC()
	checkpoints := make([]*model.ReminderCheckpoint, 0, len(model.ReminderOffsetDays))
	for _, days := range model.ReminderOffsetDays {
		kind, _ := model.CheckpointKindForOffset(days)
		checkpoints = append(checkpoints, &model.ReminderCheckpoint{
			SubscriptionID: subscriptionID,
			VendorID:       vendorID,
			Kind:           kind,
			KindRank:       kind.Rank(),
			ExpiresAt:      expiresAt,
			FireAt:         expiresAt.Add(-time.Duration(days) * 24 * time.Hour),
			Status:         model.CheckpointPending,
		})
	}
	if err := r.Reminders.CreateBatch(ctx, checkpoints); err != nil {
		return nil, err
	}
	return checkpoints, nil
}

// scheduleExpiryNotice 会员首次过期时补一个 expired 节点，由下一轮提醒发送
func (s *ReminderService) scheduleExpiryNotice(ctx context.Context, sub *model.Subscription) (bool, error) {
	exists, err := s.repos.Reminders.ExistsKind(ctx, sub.ID, model.CheckpointExpired)
	if err != nil || exists {
		return false, err
	}
	cp := &model.ReminderCheckpoint{
		SubscriptionID: sub.ID,
		VendorID:       sub.VendorID,
		Kind:           model.CheckpointExpired,
		KindRank:       model.CheckpointExpired.Rank(),
		ExpiresAt:      sub.ExpiresAt.UTC(),
		FireAt:         sub.ExpiresAt.UTC(),
		Status:         model.CheckpointPending,
	}
	if err := s.repos.Reminders.CreateBatch(ctx, []*model.ReminderCheckpoint{cp}); err != nil {
		return false, err
	}
	return true, nil
}

// DueCheckpoints 到期且仍为 pending 的节点，按触发时间、节点顺序惰性产出。
// 序列只能遍历一次；每个元素在产出前重新读取，期间被处理或删除的节点会被跳过
func (s *ReminderService) DueCheckpoints(ctx context.Context, now time.Time) iter.Seq2[*model.ReminderCheckpoint, error] {
	var consumed atomic.Bool
	return func(yield func(*model.ReminderCheckpoint, error) bool) {
		if consumed.Swap(true) {
			yield(nil, ErrSequenceConsumed)
			return
		}

		ids, err := s.repos.Reminders.DueIDs(ctx, now)
		if err != nil {
			yield(nil, err)
			return
		}

		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			cp, err := s.repos.Reminders.GetByID(ctx, id)
			if err != nil {
				if errors.Is(translate(err, "checkpoint"), ErrNotFound) {
					continue
				}
				if !yield(nil, err) {
					return
				}
				continue
			}
			if cp.Status != model.CheckpointPending || cp.FireAt.After(now) {
				continue
			}
			if !yield(cp, nil) {
				return
			}
		}
	}
}

// MarkFired 写入 sent/failed 终态；已是终态时不做任何修改，返回 false
func (s *ReminderService) MarkFired(ctx context.Context, id int64, outcome model.CheckpointStatus) (bool, error) {
	if outcome != model.CheckpointSent && outcome != model.CheckpointFailed {
		return false, fieldError("outcome", "must be sent or failed")
	}
	return s.repos.Reminders.MarkFired(ctx, id, outcome, s.rt.now(), "")
}

// CancelForVendor 取消该供应商全部待发送节点
func (s *ReminderService) CancelForVendor(ctx context.Context, vendorID string) (int64, error) {
	return s.repos.Reminders.CancelPendingByVendor(ctx, vendorID)
}

// ProcessDue 处理 now 之前到期的全部节点，单个节点失败不影响其他节点
func (s *ReminderService) ProcessDue(ctx context.Context, now time.Time) (BatchResult, error) {
	var result BatchResult
	for cp, err := range s.DueCheckpoints(ctx, now) {
		if err != nil {
			if ctx.Err() != nil {
				return result, err
			}
			s.rt.log().Error("load due checkpoint failed", "error", err)
			result.Errors++
			continue
		}

		result.Processed++
		outcome, err := s.fire(ctx, cp, now)
		if err != nil {
			s.rt.log().Error("process checkpoint failed",
				"checkpoint_id", cp.ID,
				"vendor_id", cp.VendorID,
				"kind", cp.Kind,
				"error", err)
			result.Errors++
			continue
		}

		switch outcome {
		case outcomeSent:
			result.Sent++
		case outcomeFailed:
			result.Failed++
		case outcomeRetry:
			result.Retried++
		default:
			result.Skipped++
		}
		s.rt.Metrics.IncReminder(string(cp.Kind), outcome)
	}

	s.rt.log().Info("reminder batch finished",
		"processed", result.Processed,
		"sent", result.Sent,
		"failed", result.Failed,
		"retried", result.Retried,
		"skipped", result.Skipped,
		"errors", result.Errors)
	return result, nil
}

const (
	outcomeSent    = "sent"
	outcomeFailed  = "failed"
	outcomeRetry   = "retry"
	outcomeSkipped = "skipped"
)

// fire 重新校验节点仍属于当前排期，然后投递并记录结果
func (s *ReminderService) fire(ctx context.Context, cp *model.ReminderCheckpoint, now time.Time) (string, error) {
	sub, err := s.repos.Subscriptions.GetByID(ctx, cp.SubscriptionID)
	if err != nil {
		if errors.Is(translate(err, "subscription"), ErrNotFound) {
			return s.discard(ctx, cp, "subscription removed")
		}
		return "", err
	}

	switch {
	case sub.Status == model.SubscriptionCancelled:
		return s.discard(ctx, cp, "subscription cancelled")
	case sub.VendorID != cp.VendorID || !sub.ExpiresAt.Equal(cp.ExpiresAt):
		return s.discard(ctx, cp, "superseded schedule")
	case cp.Kind != model.CheckpointExpired && now.After(sub.ExpiresAt):
		return s.discard(ctx, cp, "subscription already expired")
	}

	app, err := s.repos.Applications.GetByID(ctx, sub.ApplicationID)
	if err != nil {
		return "", translate(err, "application")
	}
	recipient, err := recipientFor(ctx, s.repos, app)
	if err != nil {
		return "", err
	}

	n := &notify.Notification{
		Kind:          notify.KindRenewalReminder,
		UserID:        sub.UserID,
		Recipient:     recipient,
		Name:          app.FullName,
		Reference:     app.Reference,
		VendorID:      sub.VendorID,
		Checkpoint:    string(cp.Kind),
		DaysRemaining: daysUntil(sub.ExpiresAt, now),
		ExpiresAt:     &sub.ExpiresAt,
		DedupKey:      fmt.Sprintf("reminder:%d", cp.ID),
	}
	if cp.Kind == model.CheckpointExpired {
		n.Kind = notify.KindExpired
	}

	if err := s.dispatcher.Dispatch(ctx, n); err != nil {
		return s.recordFailure(ctx, cp, err)
	}

	fired, err := s.repos.Reminders.MarkFired(ctx, cp.ID, model.CheckpointSent, now, "")
	if err != nil {
		return "", err
	}
	if !fired {
		return outcomeSkipped, nil
	}
	if err := s.repos.Subscriptions.UpdateFields(ctx, sub.ID, map[string]interface{}{
		"last_reminder_sent_at": now,
	}); err != nil {
		return "", err
	}
	return outcomeSent, nil
}

// recordFailure 投递失败：缺收件人直接失败，其余错误在达到最大次数前保持 pending
func (s *ReminderService) recordFailure(ctx context.Context, cp *model.ReminderCheckpoint, cause error) (string, error) {
	s.rt.log().Warn("reminder dispatch failed",
		"checkpoint_id", cp.ID,
		"vendor_id", cp.VendorID,
		"attempt", cp.Attempts+1,
		"error", cause)

	maxAttempts := s.cfg.Reminder.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if errors.Is(cause, notify.ErrNoRecipient) || cp.Attempts+1 >= maxAttempts {
		if _, err := s.repos.Reminders.MarkFired(ctx, cp.ID, model.CheckpointFailed, s.rt.now(), cause.Error()); err != nil {
			return "", err
		}
		return outcomeFailed, nil
	}

	if err := s.repos.Reminders.RecordAttempt(ctx, cp.ID, cause.Error()); err != nil {
		return "", err
	}
	return outcomeRetry, nil
}

func (s *ReminderService) discard(ctx context.Context, cp *model.ReminderCheckpoint, why string) (string, error) {
	if _, err := s.repos.Reminders.MarkFired(ctx, cp.ID, model.CheckpointCancelled, s.rt.now(), why); err != nil {
		return "", err
	}
	s.rt.log().Debug("stale checkpoint skipped", "checkpoint_id", cp.ID, "reason", why)
	return outcomeSkipped, nil
}

// daysUntil 距到期的整天数，向下取整，最小为 0
func daysUntil(expiresAt, now time.Time) int {
	if !expiresAt.After(now) {
		return 0
	}
	return int(expiresAt.Sub(now) / (24 * time.Hour))
}
