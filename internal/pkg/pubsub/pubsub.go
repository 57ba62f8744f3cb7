package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	ChannelApplicationStatus = "application_status"
)

// 消息类型
const (
	TypeStatusChanged  = "status_changed"
	TypeDocumentAction = "document_action"
)

// StatusMessage 申请状态变更消息，server 订阅后推送给申请人的 websocket
type StatusMessage struct {
	Type      string    `json:"type"`
	UserID    int64     `json:"user_id"`
	Reference string    `json:"reference"`
	Status    string    `json:"status"`
	VendorID  string    `json:"vendor_id,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Message   string    `json:"message,omitempty"`
	At        time.Time `json:"at"`
}

// 状态对应的提示文案
var StatusMessages = map[string]string{
	"pending":         "Application received",
	"payment_pending": "Waiting for registration payment",
	"under_review":    "Application is under review",
	"approved":        "Application approved",
	"rejected":        "Application rejected",
}

// Publisher Redis 发布者
type Publisher struct {
	client *redis.Client
}

// NewPublisher 创建发布者
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// PublishStatus 发布状态变更消息
func (p *Publisher) PublishStatus(ctx context.Context, msg *StatusMessage) error {
	if msg.Type == "" {
		msg.Type = TypeStatusChanged
	}
	if msg.Message == "" {
		msg.Message = StatusMessages[msg.Status]
	}
	if msg.At.IsZero() {
		msg.At = time.Now().UTC()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal status message: %w", err)
	}

	return p.client.Publish(ctx, ChannelApplicationStatus, data).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client *redis.Client
}

// NewSubscriber 创建订阅者
func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe 订阅状态消息，直到 ctx 结束
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*StatusMessage)) error {
	pubsub := s.client.Subscribe(ctx, ChannelApplicationStatus)
	defer pubsub.Close()

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var statusMsg StatusMessage
			if err := json.Unmarshal([]byte(msg.Payload), &statusMsg); err != nil {
				continue // 忽略解析错误
			}

			handler(&statusMsg)
		}
	}
}
