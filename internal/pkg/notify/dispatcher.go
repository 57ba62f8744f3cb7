package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/qs3c/vendor_portal_server/internal/pkg/queue"
)

// MessageType 队列中通知消息的类型
const MessageType = "notification"

// ErrCircuitOpen 邮件通道熔断中
var ErrCircuitOpen = errors.New("email circuit breaker is open")

// QueueDispatcher 写入 Redis 队列，由 worker 异步发送
type QueueDispatcher struct {
	queue *queue.Queue
}

func NewQueueDispatcher(q *queue.Queue) *QueueDispatcher {
	return &QueueDispatcher{queue: q}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, n *Notification) error {
	if err := n.Validate(); err != nil {
		return err
	}
	msg, err := queue.NewMessage(MessageType, n)
	if err != nil {
		return err
	}
	if err := d.queue.Push(ctx, msg); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// Sender 邮件发送
type Sender interface {
	SendHTML(to, subject, body string) error
}

// BreakerSettings 邮件熔断参数
type BreakerSettings struct {
	FailureThreshold uint32
	Timeout          time.Duration
}

// EmailDispatcher 直接通过 SMTP 发送，连续失败后熔断
type EmailDispatcher struct {
	sender  Sender
	breaker *gobreaker.CircuitBreaker[any]
	logger  *slog.Logger
}

func NewEmailDispatcher(sender Sender, settings BreakerSettings, logger *slog.Logger) *EmailDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = 5
	}
	if settings.Timeout == 0 {
		settings.Timeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "smtp",
		MaxRequests: 1,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return &EmailDispatcher{sender: sender, breaker: breaker, logger: logger}
}

func (d *EmailDispatcher) Dispatch(ctx context.Context, n *Notification) error {
	if err := n.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	subject, body := n.Render()
	_, err := d.breaker.Execute(func() (any, error) {
		return nil, d.sender.SendHTML(n.Recipient, subject, body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	if err != nil {
		return fmt.Errorf("send %s email: %w", n.Kind, err)
	}

	d.logger.Info("notification sent", "kind", n.Kind, "dedup_key", n.DedupKey)
	return nil
}

// LogDispatcher 只记录日志，开发环境使用
type LogDispatcher struct {
	logger *slog.Logger
}

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Dispatch(_ context.Context, n *Notification) error {
	if err := n.Validate(); err != nil {
		return err
	}
	subject, _ := n.Render()
	d.logger.Info("notification",
		"kind", n.Kind,
		"recipient", n.Recipient,
		"subject", subject,
		"dedup_key", n.DedupKey,
	)
	return nil
}
