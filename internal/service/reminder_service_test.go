package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/vendor_portal_server/config"
	"github.com/qs3c/vendor_portal_server/internal/model"
	"github.com/qs3c/vendor_portal_server/internal/pkg/notify"
)

func collectDue(t *testing.T, env *testEnv, now time.Time) []*model.ReminderCheckpoint {
	t.Helper()
	var out []*model.ReminderCheckpoint
	for cp, err := range env.reminders.DueCheckpoints(context.Background(), now) {
		require.NoError(t, err)
		out = append(out, cp)
	}
	return out
}

func TestReminderService_ScheduleFor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	expires := day(2025, 6, 30)

	cps, err := env.reminders.ScheduleFor(ctx, "VND-2024-SCHEDULE", 1, expires)
	require.NoError(t, err)
	require.Len(t, cps, 4)

	want := map[model.CheckpointKind]time.Time{
		model.Checkpoint30Days: expires.AddDate(0, 0, -30),
		model.Checkpoint15Days: expires.AddDate(0, 0, -15),
		model.Checkpoint7Days:  expires.AddDate(0, 0, -7),
		model.Checkpoint1Day:   expires.AddDate(0, 0, -1),
	}
	for _, cp := range env.checkpoints(t, "VND-2024-SCHEDULE") {
		fireAt, ok := want[cp.Kind]
		require.True(t, ok, cp.Kind)
		assert.True(t, fireAt.Equal(cp.FireAt), cp.Kind)
		assert.Equal(t, model.CheckpointPending, cp.Status)
		delete(want, cp.Kind)
	}
	assert.Empty(t, want)

	// 再次排期会清除旧节点
	_, err = env.reminders.ScheduleFor(ctx, "VND-2024-SCHEDULE", 1, expires.AddDate(1, 0, 0))
	require.NoError(t, err)
	cps = env.checkpoints(t, "VND-2024-SCHEDULE")
	require.Len(t, cps, 4)
	for _, cp := range cps {
		assert.True(t, expires.AddDate(1, 0, 0).Equal(cp.ExpiresAt))
	}
}

func TestReminderService_DueCheckpoints_FilterAndOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	fireAt := day(2024, 6, 1)

	sameTime := []*model.ReminderCheckpoint{
		{SubscriptionID: 1, VendorID: "VND-A", Kind: model.Checkpoint1Day, KindRank: model.Checkpoint1Day.Rank(), ExpiresAt: fireAt, FireAt: fireAt, Status: model.CheckpointPending},
		{SubscriptionID: 2, VendorID: "VND-B", Kind: model.Checkpoint30Days, KindRank: model.Checkpoint30Days.Rank(), ExpiresAt: fireAt, FireAt: fireAt, Status: model.CheckpointPending},
		{SubscriptionID: 3, VendorID: "VND-C", Kind: model.Checkpoint7Days, KindRank: model.Checkpoint7Days.Rank(), ExpiresAt: fireAt, FireAt: fireAt.Add(-time.Hour), Status: model.CheckpointPending},
		{SubscriptionID: 4, VendorID: "VND-D", Kind: model.Checkpoint15Days, KindRank: model.Checkpoint15Days.Rank(), ExpiresAt: fireAt, FireAt: fireAt.Add(time.Hour), Status: model.CheckpointPending},
		{SubscriptionID: 5, VendorID: "VND-E", Kind: model.Checkpoint7Days, KindRank: model.Checkpoint7Days.Rank(), ExpiresAt: fireAt, FireAt: fireAt, Status: model.CheckpointSent},
	}
	require.NoError(t, env.repos.Reminders.CreateBatch(ctx, sameTime))

	due := collectDue(t, env, fireAt)
	require.Len(t, due, 3)
	assert.Equal(t, "VND-C", due[0].VendorID)
	assert.Equal(t, model.Checkpoint30Days, due[1].Kind)
	assert.Equal(t, model.Checkpoint1Day, due[2].Kind)
	for _, cp := range due {
		assert.Equal(t, model.CheckpointPending, cp.Status)
		assert.False(t, cp.FireAt.After(fireAt))
	}
}

func TestReminderService_DueCheckpoints_OneShot(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.reminders.ScheduleFor(context.Background(), "VND-ONESHOT", 1, day(2024, 3, 10))
	require.NoError(t, err)

	seq := env.reminders.DueCheckpoints(context.Background(), day(2024, 3, 20))
	n := 0
	for _, err := range seq {
		require.NoError(t, err)
		n++
	}
	assert.Equal(t, 4, n)

	var second error
	for _, err := range seq {
		second = err
	}
	assert.ErrorIs(t, second, ErrSequenceConsumed)
}

func TestReminderService_DueCheckpoints_SkipsRowsChangedMidIteration(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.reminders.ScheduleFor(ctx, "VND-MIDITER", 1, day(2024, 3, 10))
	require.NoError(t, err)

	var seen []model.CheckpointKind
	for cp, err := range env.reminders.DueCheckpoints(ctx, day(2024, 3, 20)) {
		require.NoError(t, err)
		seen = append(seen, cp.Kind)
		if cp.Kind == model.Checkpoint30Days {
			_, err := env.reminders.CancelForVendor(ctx, "VND-MIDITER")
			require.NoError(t, err)
		}
	}
	assert.Equal(t, []model.CheckpointKind{model.Checkpoint30Days}, seen)
}

func TestReminderService_MarkFired_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.clock.Set(day(2024, 1, 1))
	_, sub := env.approved(t)

	var sevenDay *model.ReminderCheckpoint
	for _, cp := range env.checkpoints(t, sub.VendorID) {
		if cp.Kind == model.Checkpoint7Days {
			sevenDay = cp
		}
	}
	require.NotNil(t, sevenDay)

	ok, err := env.reminders.MarkFired(ctx, sevenDay.ID, model.CheckpointSent)
	require.NoError(t, err)
	assert.True(t, ok)
	before, err := env.repos.Reminders.GetByID(ctx, sevenDay.ID)
	require.NoError(t, err)

	env.clock.Advance(time.Hour)
	ok, err = env.reminders.MarkFired(ctx, sevenDay.ID, model.CheckpointSent)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = env.reminders.MarkFired(ctx, sevenDay.ID, model.CheckpointFailed)
	require.NoError(t, err)
	assert.False(t, ok)

	after, err := env.repos.Reminders.GetByID(ctx, sevenDay.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CheckpointSent, after.Status)
	assert.True(t, before.FiredAt.Equal(*after.FiredAt))

	_, err = env.reminders.MarkFired(ctx, sevenDay.ID, model.CheckpointPending)
	assert.ErrorIs(t, err, ErrValidation)

	// 已发送的节点不会再次投递
	result, err := env.reminders.ProcessDue(ctx, day(2024, 12, 26))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Sent)
	for _, n := range env.dispatcher.Sent() {
		assert.NotEqual(t, string(model.Checkpoint7Days), n.Checkpoint)
	}
}

func TestReminderService_ProcessDue_Sends(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.clock.Set(day(2024, 1, 1))
	app, sub := env.approved(t)

	now := day(2024, 12, 1).Add(time.Hour)
	env.clock.Set(now)
	result, err := env.reminders.ProcessDue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Processed: 1, Sent: 1}, result)

	sent := env.dispatcher.Sent()
	require.Len(t, sent, 2)
	n := sent[1]
	assert.Equal(t, notify.KindRenewalReminder, n.Kind)
	assert.Equal(t, *app.Email, n.Recipient)
	assert.Equal(t, string(model.Checkpoint30Days), n.Checkpoint)
	assert.Equal(t, 29, n.DaysRemaining)
	assert.Equal(t, sub.VendorID, n.VendorID)
	assert.NotEmpty(t, n.DedupKey)

	stored, err := env.subscriptions.GetByVendorID(ctx, sub.VendorID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastReminderSentAt)
	assert.True(t, now.Equal(*stored.LastReminderSentAt))

	// 同一时刻再跑一次不会重复发送
	result, err = env.reminders.ProcessDue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{}, result)
}

func TestReminderService_ProcessDue_RetryThenFail(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Reminder.MaxAttempts = 2
	})
	ctx := context.Background()

	env.clock.Set(day(2024, 1, 1))
	_, sub := env.approved(t)
	env.dispatcher.SetErr(errors.New("queue unavailable"))

	now := day(2024, 12, 2)
	result, err := env.reminders.ProcessDue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Processed: 1, Retried: 1}, result)

	cps := env.checkpoints(t, sub.VendorID)
	assert.Equal(t, model.CheckpointPending, cps[0].Status)
	assert.Equal(t, 1, cps[0].Attempts)
	assert.Equal(t, "queue unavailable", cps[0].LastError)

	result, err = env.reminders.ProcessDue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Processed: 1, Failed: 1}, result)

	cps = env.checkpoints(t, sub.VendorID)
	assert.Equal(t, model.CheckpointFailed, cps[0].Status)
}

func TestReminderService_ProcessDue_FailureIsolated(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.clock.Set(day(2024, 1, 1))
	_, withEmail := env.approved(t)
	_, withoutEmail := env.approved(t)

	// 第二个供应商没有任何邮箱
	app, err := env.repos.Applications.GetByID(ctx, withoutEmail.ApplicationID)
	require.NoError(t, err)
	require.NoError(t, env.db.Model(&model.Application{}).Where("id = ?", app.ID).Update("email", nil).Error)
	require.NoError(t, env.db.Model(&model.User{}).Where("id = ?", app.UserID).Update("email", nil).Error)

	result, err := env.reminders.ProcessDue(ctx, day(2024, 12, 2))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, 1, result.Failed)

	assert.Equal(t, model.CheckpointSent, env.checkpoints(t, withEmail.VendorID)[0].Status)
	assert.Equal(t, model.CheckpointFailed, env.checkpoints(t, withoutEmail.VendorID)[0].Status)
}

func TestReminderService_ProcessDue_SkipsStaleCheckpoints(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.clock.Set(day(2024, 1, 1))
	_, sub := env.approved(t)

	stale := env.checkpoints(t, sub.VendorID)[0]

	// 续费后旧排期被替换，模拟一个残留的旧节点
	_, err := env.subscriptions.Renew(ctx, sub.VendorID, receipt("pay_stale"))
	require.NoError(t, err)
	stale.ID = 0
	require.NoError(t, env.repos.Reminders.CreateBatch(ctx, []*model.ReminderCheckpoint{stale}))

	sentBefore := len(env.dispatcher.Sent())
	result, err := env.reminders.ProcessDue(ctx, day(2024, 12, 2))
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Processed: 1, Skipped: 1}, result)
	assert.Len(t, env.dispatcher.Sent(), sentBefore)

	got, err := env.repos.Reminders.GetByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CheckpointCancelled, got.Status)
}

func TestReminderService_ProcessDue_ExpiryNotice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.clock.Set(day(2024, 1, 1))
	_, sub := env.approved(t)

	// 提前提醒全部错过后才运行
	now := day(2025, 1, 2)
	env.clock.Set(now)
	_, err := env.subscriptions.SweepStatuses(ctx)
	require.NoError(t, err)

	result, err := env.reminders.ProcessDue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 5, result.Processed)
	assert.Equal(t, 4, result.Skipped)
	assert.Equal(t, 1, result.Sent)

	sent := env.dispatcher.Sent()
	last := sent[len(sent)-1]
	assert.Equal(t, notify.KindExpired, last.Kind)
	assert.Equal(t, sub.VendorID, last.VendorID)
	assert.Equal(t, 0, last.DaysRemaining)
}
