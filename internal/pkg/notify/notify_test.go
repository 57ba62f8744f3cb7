package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/vendor_portal_server/internal/pkg/queue"
	"github.com/qs3c/vendor_portal_server/internal/testutil"
)

type fakeSender struct {
	err   error
	calls int
	to    string
	subj  string
	body  string
}

func (f *fakeSender) SendHTML(to, subject, body string) error {
	f.calls++
	f.to, f.subj, f.body = to, subject, body
	return f.err
}

func reminder() *Notification {
	expires := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	return &Notification{
		Kind:          KindRenewalReminder,
		UserID:        7,
		Recipient:     "vendor@example.com",
		Name:          "Asha",
		VendorID:      "VND-2024-0A1B2C3D",
		Checkpoint:    "7_days",
		DaysRemaining: 7,
		ExpiresAt:     &expires,
		DedupKey:      "reminder:12",
	}
}

func TestNotification_Render(t *testing.T) {
	t.Run("renewal reminder", func(t *testing.T) {
		subject, body := reminder().Render()
		assert.Equal(t, "Your vendor membership expires in 7 day(s)", subject)
		assert.Contains(t, body, "VND-2024-0A1B2C3D")
		assert.Contains(t, body, "01 Mar 2025")
		assert.Contains(t, body, "Hello Asha,")
	})

	t.Run("rejection carries the reason", func(t *testing.T) {
		n := &Notification{Kind: KindRejected, Reference: "APP-1", Reason: "GST certificate expired"}
		_, body := n.Render()
		assert.Contains(t, body, "GST certificate expired")
		assert.Contains(t, body, "Hello,")
	})

	t.Run("approval without expiry", func(t *testing.T) {
		n := &Notification{Kind: KindApproved, Reference: "APP-1", VendorID: "VND-2024-00000001"}
		subject, body := n.Render()
		assert.Contains(t, subject, "approved")
		assert.Contains(t, body, "valid until -.")
	})
}

func TestNotification_Validate(t *testing.T) {
	assert.NoError(t, reminder().Validate())

	n := reminder()
	n.Recipient = ""
	assert.ErrorIs(t, n.Validate(), ErrNoRecipient)

	var nilN *Notification
	assert.Error(t, nilN.Validate())
}

func TestQueueDispatcher(t *testing.T) {
	client, _ := testutil.SetupTestRedis(t)
	q := queue.NewQueue(client, "notifications_test")
	d := NewQueueDispatcher(q)
	ctx := context.Background()

	require.NoError(t, d.Dispatch(ctx, reminder()))

	msg, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, MessageType, msg.Type)

	var got Notification
	require.NoError(t, msg.Decode(&got))
	assert.Equal(t, KindRenewalReminder, got.Kind)
	assert.Equal(t, "reminder:12", got.DedupKey)
	assert.Equal(t, 7, got.DaysRemaining)

	t.Run("missing recipient is not enqueued", func(t *testing.T) {
		n := reminder()
		n.Recipient = ""
		assert.ErrorIs(t, d.Dispatch(ctx, n), ErrNoRecipient)

		length, err := q.Length(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(0), length)
	})
}

func TestEmailDispatcher(t *testing.T) {
	ctx := context.Background()

	t.Run("sends rendered email", func(t *testing.T) {
		sender := &fakeSender{}
		d := NewEmailDispatcher(sender, BreakerSettings{}, nil)

		require.NoError(t, d.Dispatch(ctx, reminder()))
		assert.Equal(t, 1, sender.calls)
		assert.Equal(t, "vendor@example.com", sender.to)
		assert.Contains(t, sender.subj, "7 day(s)")
	})

	t.Run("opens circuit after consecutive failures", func(t *testing.T) {
		sender := &fakeSender{err: errors.New("smtp timeout")}
		d := NewEmailDispatcher(sender, BreakerSettings{FailureThreshold: 2, Timeout: time.Minute}, nil)

		err := d.Dispatch(ctx, reminder())
		assert.ErrorContains(t, err, "smtp timeout")
		err = d.Dispatch(ctx, reminder())
		assert.ErrorContains(t, err, "smtp timeout")

		err = d.Dispatch(ctx, reminder())
		assert.ErrorIs(t, err, ErrCircuitOpen)
		assert.Equal(t, 2, sender.calls)
	})

	t.Run("cancelled context", func(t *testing.T) {
		sender := &fakeSender{}
		d := NewEmailDispatcher(sender, BreakerSettings{}, nil)

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		assert.ErrorIs(t, d.Dispatch(cctx, reminder()), context.Canceled)
		assert.Equal(t, 0, sender.calls)
	})
}

func TestLogDispatcher(t *testing.T) {
	var buf bytes.Buffer
	d := NewLogDispatcher(slog.New(slog.NewTextHandler(&buf, nil)))

	require.NoError(t, d.Dispatch(context.Background(), reminder()))
	assert.Contains(t, buf.String(), "kind=renewal_reminder")
	assert.Contains(t, buf.String(), "dedup_key=reminder:12")
}
