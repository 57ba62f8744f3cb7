package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/vendor_portal_server/internal/testutil"
)

type reminderPayload struct {
	VendorID string `json:"vendor_id"`
	Days     int    `json:"days"`
}

func TestQueue_PushPop(t *testing.T) {
	client, _ := testutil.SetupTestRedis(t)
	q := NewQueue(client, "test_queue")
	ctx := context.Background()

	msg, err := NewMessage("renewal_reminder", reminderPayload{VendorID: "VND-2024-ABCDEF12", Days: 7})
	require.NoError(t, err)
	require.NoError(t, q.Push(ctx, msg))

	length, err := q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), length)

	got, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "renewal_reminder", got.Type)
	assert.Equal(t, 0, got.Attempts)
	assert.False(t, got.EnqueuedAt.IsZero())

	var payload reminderPayload
	require.NoError(t, got.Decode(&payload))
	assert.Equal(t, "VND-2024-ABCDEF12", payload.VendorID)
	assert.Equal(t, 7, payload.Days)
}

func TestQueue_FIFO(t *testing.T) {
	client, _ := testutil.SetupTestRedis(t)
	q := NewQueue(client, "test_queue")
	ctx := context.Background()

	for _, kind := range []string{"first", "second", "third"} {
		require.NoError(t, q.Push(ctx, &Message{Type: kind}))
	}

	for _, want := range []string{"first", "second", "third"} {
		got, err := q.Pop(ctx, time.Second)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, want, got.Type)
	}
}

func TestQueue_Requeue(t *testing.T) {
	client, _ := testutil.SetupTestRedis(t)
	q := NewQueue(client, "test_queue")
	ctx := context.Background()

	msg := &Message{Type: "decision"}
	require.NoError(t, q.Requeue(ctx, msg))
	require.NoError(t, q.Requeue(ctx, msg))

	first, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Attempts)

	second, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Attempts)
}

func TestQueue_PopInvalidJSON(t *testing.T) {
	client, _ := testutil.SetupTestRedis(t)
	q := NewQueue(client, "test_queue")
	ctx := context.Background()

	require.NoError(t, client.LPush(ctx, "test_queue", "not json").Err())

	got, err := q.Pop(ctx, time.Second)
	assert.Error(t, err)
	assert.Nil(t, got)
}

func TestQueue_Name(t *testing.T) {
	client, _ := testutil.SetupTestRedis(t)
	assert.Equal(t, "vendor_notifications", NewQueue(client, "vendor_notifications").Name())
}
