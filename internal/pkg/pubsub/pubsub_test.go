package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/vendor_portal_server/internal/testutil"
)

func TestStatusMessages(t *testing.T) {
	for _, status := range []string{"pending", "payment_pending", "under_review", "approved", "rejected"} {
		assert.NotEmpty(t, StatusMessages[status], "status %s should have a message", status)
	}
}

func TestStatusMessage_OmitEmpty(t *testing.T) {
	data, err := json.Marshal(&StatusMessage{UserID: 1, Status: "under_review"})
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.Contains(t, raw, "user_id")
	assert.NotContains(t, raw, "vendor_id")
	assert.NotContains(t, raw, "reason")
}

func TestPublisherSubscriber(t *testing.T) {
	client, _ := testutil.SetupTestRedis(t)
	publisher := NewPublisher(client)
	subscriber := NewSubscriber(client)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan *StatusMessage, 1)
	go func() {
		_ = subscriber.Subscribe(ctx, func(msg *StatusMessage) {
			received <- msg
		})
	}()

	require.Eventually(t, func() bool {
		n, err := client.PubSubNumSub(ctx, ChannelApplicationStatus).Result()
		return err == nil && n[ChannelApplicationStatus] == 1
	}, 2*time.Second, 10*time.Millisecond)

	err := publisher.PublishStatus(ctx, &StatusMessage{
		UserID:    42,
		Reference: "APP-20240101-ABCD1234",
		Status:    "approved",
		VendorID:  "VND-2024-0A1B2C3D",
	})
	require.NoError(t, err)

	select {
	case msg := <-received:
		assert.Equal(t, TypeStatusChanged, msg.Type)
		assert.Equal(t, int64(42), msg.UserID)
		assert.Equal(t, "VND-2024-0A1B2C3D", msg.VendorID)
		assert.Equal(t, StatusMessages["approved"], msg.Message)
		assert.False(t, msg.At.IsZero())
	case <-ctx.Done():
		t.Fatal("timeout waiting for status message")
	}
}

func TestSubscribe_StopsOnCancel(t *testing.T) {
	client, _ := testutil.SetupTestRedis(t)
	subscriber := NewSubscriber(client)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- subscriber.Subscribe(ctx, func(*StatusMessage) {})
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not stop")
	}
}
