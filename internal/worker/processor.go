package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/qs3c/vendor_portal_server/config"
	"github.com/qs3c/vendor_portal_server/internal/pkg/notify"
	"github.com/qs3c/vendor_portal_server/internal/pkg/queue"
)

const sentKeyPrefix = "notification:sent:"

// Source 通知队列
type Source interface {
	Pop(ctx context.Context, timeout time.Duration) (*queue.Message, error)
	Requeue(ctx context.Context, msg *queue.Message) error
}

// Processor 消费通知队列并通过 dispatcher 真正发送
type Processor struct {
	source      Source
	dispatcher  notify.Dispatcher
	rdb         *redis.Client
	maxAttempts int
	dedupTTL    time.Duration
	logger      *slog.Logger
}

// NewProcessor rdb 为 nil 时不做去重
func NewProcessor(source Source, dispatcher notify.Dispatcher, rdb *redis.Client, cfg config.QueueConfig, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	ttl := time.Duration(cfg.DedupTTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &Processor{
		source:      source,
		dispatcher:  dispatcher,
		rdb:         rdb,
		maxAttempts: maxAttempts,
		dedupTTL:    ttl,
		logger:      logger,
	}
}

// Process 处理一条消息。返回 error 表示消息已被丢弃或重新入队
func (p *Processor) Process(ctx context.Context, msg *queue.Message) error {
	if msg.Type != notify.MessageType {
		p.logger.Warn("dropping unknown message", "type", msg.Type)
		return fmt.Errorf("unknown message type %q", msg.Type)
	}

	var n notify.Notification
	if err := msg.Decode(&n); err != nil {
		p.logger.Error("dropping malformed notification", "error", err)
		return fmt.Errorf("decode notification: %w", err)
	}

	if n.DedupKey != "" {
		sent, err := p.alreadySent(ctx, n.DedupKey)
		if err != nil {
			p.logger.Warn("dedup lookup failed", "dedup_key", n.DedupKey, "error", err)
		} else if sent {
			p.logger.Info("skipping duplicate notification", "kind", n.Kind, "dedup_key", n.DedupKey)
			return nil
		}
	}

	err := p.dispatcher.Dispatch(ctx, &n)
	if err == nil {
		p.markSent(ctx, n.DedupKey)
		return nil
	}

	// 缺少收件人时重试没有意义
	if errors.Is(err, notify.ErrNoRecipient) {
		p.logger.Error("dropping notification without recipient", "kind", n.Kind, "dedup_key", n.DedupKey)
		return err
	}

	if msg.Attempts+1 >= p.maxAttempts {
		p.logger.Error("notification delivery gave up",
			"kind", n.Kind,
			"dedup_key", n.DedupKey,
			"attempts", msg.Attempts+1,
			"error", err,
		)
		return err
	}

	if rqErr := p.source.Requeue(ctx, msg); rqErr != nil {
		p.logger.Error("requeue notification failed", "dedup_key", n.DedupKey, "error", rqErr)
		return errors.Join(err, rqErr)
	}
	p.logger.Warn("notification requeued",
		"kind", n.Kind,
		"dedup_key", n.DedupKey,
		"attempts", msg.Attempts,
		"error", err,
	)
	return err
}

func (p *Processor) alreadySent(ctx context.Context, key string) (bool, error) {
	if p.rdb == nil {
		return false, nil
	}
	n, err := p.rdb.Exists(ctx, sentKeyPrefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (p *Processor) markSent(ctx context.Context, key string) {
	if p.rdb == nil || key == "" {
		return
	}
	if err := p.rdb.Set(ctx, sentKeyPrefix+key, time.Now().UTC().Format(time.RFC3339), p.dedupTTL).Err(); err != nil {
		p.logger.Warn("mark notification sent failed", "dedup_key", key, "error", err)
	}
}

// Run 启动 workers 个消费协程，ctx 取消后等待全部退出
func (p *Processor) Run(ctx context.Context, workers int, popTimeout time.Duration) {
	if workers <= 0 {
		workers = 1
	}
	if popTimeout <= 0 {
		popTimeout = 5 * time.Second
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					p.logger.Info("worker shutting down", "worker", workerID)
					return
				default:
				}

				msg, err := p.source.Pop(ctx, popTimeout)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					p.logger.Error("pop notification failed", "worker", workerID, "error", err)
					time.Sleep(time.Second)
					continue
				}
				if msg == nil {
					continue // 超时，继续等待
				}

				_ = p.Process(ctx, msg)
			}
		}(i)
	}
	wg.Wait()
}
